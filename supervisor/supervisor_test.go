package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freundallein/packer/chassis/monkey"
	"github.com/freundallein/packer/chassis/storage"
)

type fakeReclaimer struct {
	mu     sync.Mutex
	calls  int
	expire int
	err    error
}

func (f *fakeReclaimer) Reclaim(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	n := f.expire
	if n > limit {
		n = limit
	}
	f.expire -= n
	return n, nil
}

func (f *fakeReclaimer) called() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func stuckTask(t *testing.T, repo *storage.MemoryRepository, picking int64) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := repo.Enqueue(ctx, &storage.Task{Cron: "cron_1", OrderName: "SO", PickingID: picking})
	require.NoError(t, err)
	_, err = repo.ClaimOldestPending(ctx, "cron_1")
	require.NoError(t, err)
	return id
}

func TestRepair(t *testing.T) {
	repo := storage.NewMemoryRepository()
	id := stuckTask(t, repo, 1)
	time.Sleep(5 * time.Millisecond)
	q := &fakeReclaimer{expire: 3}

	tasks, messages, err := Repair(context.Background(), &Config{
		Repository:      repo,
		Queues:          []Reclaimer{q},
		RepairBatchSize: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 1, tasks)
	require.Equal(t, 2, messages)

	task, ok := repo.Get(id)
	require.True(t, ok)
	require.Equal(t, storage.FAILED, task.Status)
	require.Equal(t, "stale task", task.ProcessError)

	// the lane is unblocked for the next order
	next, err := repo.Enqueue(context.Background(), &storage.Task{Cron: "cron_1", OrderName: "SO", PickingID: 2})
	require.NoError(t, err)
	claimed, err := repo.ClaimOldestPending(context.Background(), "cron_1")
	require.NoError(t, err)
	require.Equal(t, next, claimed.ID)
}

func TestRepair_KeepsFreshTasks(t *testing.T) {
	repo := storage.NewMemoryRepository()
	id := stuckTask(t, repo, 1)

	tasks, _, err := Repair(context.Background(), &Config{
		Repository:      repo,
		StaleTimeout:    900,
		RepairBatchSize: 10,
	})
	require.NoError(t, err)
	require.Zero(t, tasks)
	task, _ := repo.Get(id)
	require.Equal(t, storage.PROCESSING, task.Status)
}

func TestRepair_Failures(t *testing.T) {
	repo := storage.NewMemoryRepository()
	boom := errors.New("redis down")

	_, _, err := Repair(context.Background(), &Config{
		Repository:      repo,
		Queues:          []Reclaimer{&fakeReclaimer{err: boom}},
		RepairBatchSize: 10,
	})
	require.ErrorIs(t, err, boom)

	_, _, err = Repair(context.Background(), &Config{
		Repository:      repo,
		RepairBatchSize: 10,
		Monkey:          monkey.New(1),
	})
	require.ErrorIs(t, err, monkey.ErrMonkey)
}

func TestRun_RepairsOnInterval(t *testing.T) {
	q := &fakeReclaimer{}
	ctx, cancel := context.WithCancel(context.Background())
	var group sync.WaitGroup
	Run(ctx, &Config{
		Repository:      storage.NewMemoryRepository(),
		Queues:          []Reclaimer{q},
		Workers:         2,
		Interval:        10 * time.Millisecond,
		RepairBatchSize: 10,
	}, &group)

	require.Eventually(t, func() bool { return q.called() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	group.Wait()
}

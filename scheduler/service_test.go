package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/freundallein/packer/chassis/storage"
	"github.com/freundallein/packer/drainer"
)

type fakeTrigger struct {
	mu    sync.Mutex
	busy  map[string]bool
	calls []string
}

func (f *fakeTrigger) Trigger(_ context.Context, cron string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cron)
	if f.busy[cron] {
		return "", drainer.ErrLaneBusy
	}
	if cron == "cron_broken" {
		return "", errors.New("redis down")
	}
	return "token", nil
}

func (f *fakeTrigger) triggered() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

func TestTick(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	for i, cron := range []string{"cron_1", "cron_2", "cron_busy", "cron_broken"} {
		_, err := repo.Enqueue(ctx, &storage.Task{Cron: cron, OrderName: "SO", PickingID: int64(i)})
		require.NoError(t, err)
	}
	lanes := &fakeTrigger{busy: map[string]bool{"cron_busy": true}}

	started, err := Tick(ctx, &Config{Repository: repo, Lanes: lanes})
	require.NoError(t, err)
	require.Equal(t, 2, started)
	require.Equal(t, []string{"cron_1", "cron_2", "cron_broken", "cron_busy"}, lanes.triggered())
}

func TestRun_TriggersOnInterval(t *testing.T) {
	repo := storage.NewMemoryRepository()
	_, err := repo.Enqueue(context.Background(), &storage.Task{Cron: "cron_1", OrderName: "SO", PickingID: 1})
	require.NoError(t, err)
	lanes := &fakeTrigger{}

	ctx, cancel := context.WithCancel(context.Background())
	var group sync.WaitGroup
	Run(ctx, &Config{Repository: repo, Lanes: lanes, Interval: 10 * time.Millisecond}, &group)

	require.Eventually(t, func() bool {
		return len(lanes.triggered()) >= 2
	}, time.Second, 5*time.Millisecond)
	cancel()
	group.Wait()
}

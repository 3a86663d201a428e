package submitter

import (
	"context"
	"sync"
	"testing"
	"time"

	mrd "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/freundallein/packer/chassis/protocol"
	"github.com/freundallein/packer/chassis/queue"
	"github.com/freundallein/packer/chassis/storage"
	"github.com/freundallein/packer/drainer"
)

type fakeTrigger struct {
	mu    sync.Mutex
	calls []string
	busy  bool
}

func (f *fakeTrigger) Trigger(_ context.Context, cron string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, cron)
	if f.busy {
		return "", drainer.ErrLaneBusy
	}
	return "token", nil
}

func (f *fakeTrigger) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func submitRequest(params map[string]string) *protocol.Request {
	return &protocol.Request{Method: protocol.MethodSubmit, Params: params}
}

func validParams() map[string]string {
	return map[string]string{
		"cron":           "cron_1",
		"order_name":     "SO001",
		"picking_id":     "42",
		"operation_type": "split_multi_box",
		"line_data":      `{"split_multi_box": [{"product_name": "A", "quantity": "2"}]}`,
		"weight":         "1.25",
	}
}

func TestTaskFromRequest(t *testing.T) {
	task, err := TaskFromRequest(submitRequest(validParams()))
	require.NoError(t, err)
	require.Equal(t, "cron_1", task.Cron)
	require.EqualValues(t, 42, task.PickingID)
	require.Equal(t, 1.25, task.Weight)
	require.Zero(t, task.Height)
}

func TestTaskFromRequest_Rejects(t *testing.T) {
	for name, mutate := range map[string]func(map[string]string){
		"no cron":       func(p map[string]string) { delete(p, "cron") },
		"bad picking":   func(p map[string]string) { p["picking_id"] = "x" },
		"bad weight":    func(p map[string]string) { p["weight"] = "heavy" },
		"bad line data": func(p map[string]string) { p["line_data"] = `{"split_multi_box": [{"product_name": "A", "quantity": 0}]}` },
		"no order name": func(p map[string]string) { p["order_name"] = "" },
		"no operation":  func(p map[string]string) { delete(p, "operation_type") },
	} {
		params := validParams()
		mutate(params)
		_, err := TaskFromRequest(submitRequest(params))
		require.ErrorIs(t, err, ErrBadRequest, name)
	}

	_, err := TaskFromRequest(&protocol.Request{Method: "submit:export", Params: validParams()})
	require.ErrorIs(t, err, ErrBadRequest)
}

func TestSubmit_DuplicateStillTriggers(t *testing.T) {
	ctx := context.Background()
	repo := storage.NewMemoryRepository()
	lanes := &fakeTrigger{}
	cfg := &Config{Repository: repo, Lanes: lanes}

	task, err := TaskFromRequest(submitRequest(validParams()))
	require.NoError(t, err)
	require.NoError(t, Submit(ctx, cfg, task))
	require.NoError(t, Submit(ctx, cfg, task))
	require.Equal(t, 2, lanes.count())

	lanesWithWork, err := repo.PendingLanes(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"cron_1"}, lanesWithWork)

	lanes.busy = true
	task.PickingID = 43
	require.NoError(t, Submit(ctx, cfg, task))
}

func TestRun_ConsumesSubmitMessages(t *testing.T) {
	s := mrd.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	q := queue.InitRedisQueue(rdb, queue.Config{Name: "submit"}).WithWait(20 * time.Millisecond)

	repo := storage.NewMemoryRepository()
	lanes := &fakeTrigger{}
	ctx, cancel := context.WithCancel(context.Background())
	var group sync.WaitGroup
	Run(ctx, &Config{Queue: q, Repository: repo, Lanes: lanes, Workers: 2}, &group)

	body, err := submitRequest(validParams()).JSON()
	require.NoError(t, err)
	require.NoError(t, q.SendMessage(context.Background(), body))
	require.NoError(t, q.SendMessage(context.Background(), "garbage"))

	require.Eventually(t, func() bool {
		ok, err := repo.HasPending(context.Background(), "cron_1")
		return err == nil && ok && lanes.count() == 1
	}, 2*time.Second, 10*time.Millisecond)
	cancel()
	group.Wait()
}

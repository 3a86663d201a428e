package timeout

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type counters struct {
	terminated atomic.Int32
	synced     atomic.Int32
}

func (c *counters) terminate() { c.terminated.Add(1) }

func (c *counters) sync(err error) func(context.Context) error {
	return func(ctx context.Context) error {
		c.synced.Add(1)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
}

func TestSupervisor_Overrun(t *testing.T) {
	c := &counters{}
	started := time.Now()
	out := Supervisor{Budget: time.Second}.Run(context.Background(), func(ctx context.Context) error {
		time.Sleep(5 * time.Second)
		return nil
	}, c.terminate, c.sync(nil))

	require.Less(t, time.Since(started), 4*time.Second)
	require.True(t, out.Failed())
	require.True(t, out.TimedOut)
	require.ErrorIs(t, out.Cause, ErrTimeout)
	require.NoError(t, out.Cleanup)
	require.EqualValues(t, 1, c.terminated.Load())
	require.EqualValues(t, 1, c.synced.Load())
	require.Equal(t, MsgUpdated, out.Message())
	require.Equal(t, "Session timed out after 1 seconds", out.Detail())
}

func TestSupervisor_OverrunAndSyncFailure(t *testing.T) {
	c := &counters{}
	syncErr := errors.New("oms unavailable")
	out := Supervisor{Budget: 50 * time.Millisecond}.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}, c.terminate, c.sync(syncErr))

	require.True(t, out.TimedOut)
	require.ErrorIs(t, out.Cause, ErrTimeout)
	require.ErrorIs(t, out.Cleanup, syncErr)
	require.Equal(t, MsgUpdateFailed, out.Message())
	require.Contains(t, out.Detail(), "Process Failed Status Update Failed. oms unavailable")
	require.Equal(t, "Session timed out after 50ms oms unavailable", out.Error())
}

func TestSupervisor_WorkflowError(t *testing.T) {
	c := &counters{}
	boom := errors.New("order not found")
	out := Supervisor{Budget: time.Second}.Run(context.Background(), func(context.Context) error {
		return boom
	}, c.terminate, c.sync(nil))

	require.False(t, out.TimedOut)
	require.ErrorIs(t, out.Cause, boom)
	require.NoError(t, out.Cleanup)
	require.EqualValues(t, 1, c.terminated.Load())
	require.EqualValues(t, 1, c.synced.Load())
	require.Equal(t, "Error order not found. Process Failed Status Updated to OMS", out.Detail())
}

func TestSupervisor_WorkflowErrorAndSyncFailure(t *testing.T) {
	c := &counters{}
	out := Supervisor{Budget: time.Second}.Run(context.Background(), func(context.Context) error {
		return errors.New("entry failed")
	}, c.terminate, c.sync(errors.New("oms down")))

	require.Equal(t, MsgUpdateFailed, out.Message())
	require.Equal(t, "entry failed oms down", out.Error())
	require.Equal(t, "Error entry failed. Process Failed Status Update Failed: oms down", out.Detail())
}

func TestSupervisor_Success(t *testing.T) {
	c := &counters{}
	out := Supervisor{Budget: time.Second}.Run(context.Background(), func(context.Context) error {
		return nil
	}, c.terminate, c.sync(nil))

	require.False(t, out.Failed())
	require.Equal(t, MsgCompleted, out.Message())
	require.Empty(t, out.Error())
	require.Zero(t, c.terminated.Load())
	require.Zero(t, c.synced.Load())
}

func TestSupervisor_Panic(t *testing.T) {
	c := &counters{}
	out := Supervisor{Budget: time.Second}.Run(context.Background(), func(context.Context) error {
		panic("nil session")
	}, c.terminate, c.sync(nil))

	var panicErr *PanicError
	require.True(t, errors.As(out.Cause, &panicErr))
	require.EqualValues(t, 1, c.terminated.Load())
}

func TestSupervisor_CallbackOutlivesCancelledParent(t *testing.T) {
	c := &counters{}
	ctx, cancel := context.WithCancel(context.Background())
	out := Supervisor{Budget: time.Second}.Run(ctx, func(context.Context) error {
		cancel()
		return errors.New("aborted")
	}, c.terminate, c.sync(nil))

	require.NoError(t, out.Cleanup)
	require.EqualValues(t, 1, c.synced.Load())
}

func TestError_Is(t *testing.T) {
	var err error = &Error{Budget: DefaultBudget}
	require.True(t, errors.Is(err, ErrTimeout))
	require.Equal(t, "Session timed out after 180 seconds", err.Error())
}

func TestError_SubSecondBudget(t *testing.T) {
	require.Equal(t, "Session timed out after 250ms", (&Error{Budget: 250 * time.Millisecond}).Error())
	require.Equal(t, "Session timed out after 1.5s", (&Error{Budget: 1500 * time.Millisecond}).Error())
	require.Equal(t, "Session timed out after 2 seconds", (&Error{Budget: 2 * time.Second}).Error())
}

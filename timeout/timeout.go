// Package timeout runs one packing workflow under a wall-clock budget.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultBudget - ...
const DefaultBudget = 180 * time.Second

// ErrTimeout - the workflow overran its budget
var ErrTimeout = errors.New("workflow timed out")

// Messages stored with the task.
const (
	MsgCompleted    = "Process Completed"
	MsgUpdated      = "Process Failed Status Updated to OMS"
	MsgUpdateFailed = "Process Failed Status Update Failed"
)

// Error - overrun of a budget
type Error struct {
	Budget time.Duration
}

func (e *Error) Error() string {
	if e.Budget < time.Second || e.Budget%time.Second != 0 {
		return fmt.Sprintf("Session timed out after %s", e.Budget)
	}
	return fmt.Sprintf("Session timed out after %d seconds", int(e.Budget.Seconds()))
}

// Is - matches ErrTimeout
func (e *Error) Is(target error) bool { return target == ErrTimeout }

// PanicError - the workflow panicked
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string { return fmt.Sprintf("workflow panic: %v", e.Value) }

// Outcome - result of a supervised run. Cause is the primary failure,
// Cleanup the failure of the manual shipment callback that followed it.
type Outcome struct {
	Cause    error
	Cleanup  error
	TimedOut bool
}

// Failed - ...
func (o Outcome) Failed() bool { return o.Cause != nil }

// Message - the human message of the outcome
func (o Outcome) Message() string {
	switch {
	case o.Cause == nil:
		return MsgCompleted
	case o.Cleanup == nil:
		return MsgUpdated
	default:
		return MsgUpdateFailed
	}
}

// Error - both causes, primary first
func (o Outcome) Error() string {
	if o.Cause == nil {
		return ""
	}
	if o.Cleanup == nil {
		return o.Cause.Error()
	}
	return o.Cause.Error() + " " + o.Cleanup.Error()
}

// Detail - the log line describing a failed outcome
func (o Outcome) Detail() string {
	switch {
	case o.Cause == nil:
		return ""
	case o.TimedOut && o.Cleanup == nil:
		return o.Cause.Error()
	case o.TimedOut:
		return fmt.Sprintf("%v. %s. %v", o.Cause, MsgUpdateFailed, o.Cleanup)
	case o.Cleanup == nil:
		return fmt.Sprintf("Error %v. %s", o.Cause, MsgUpdated)
	default:
		return fmt.Sprintf("Error %v. %s: %v", o.Cause, MsgUpdateFailed, o.Cleanup)
	}
}

// Supervisor - ...
type Supervisor struct {
	Budget time.Duration
}

func (s Supervisor) budget() time.Duration {
	if s.Budget <= 0 {
		return DefaultBudget
	}
	return s.Budget
}

// Run executes work on its own goroutine. When work fails or overruns the
// budget, terminate is called, then onFailure; Run does not wait for an
// overrunning work to return.
func (s Supervisor) Run(ctx context.Context, work func(ctx context.Context) error, terminate func(), onFailure func(ctx context.Context) error) Outcome {
	budget := s.budget()
	runCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &PanicError{Value: r}
			}
		}()
		done <- work(runCtx)
	}()

	var out Outcome
	select {
	case err := <-done:
		if err == nil {
			return out
		}
		out.Cause = err
		if errors.Is(err, context.DeadlineExceeded) && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			out.Cause = &Error{Budget: budget}
			out.TimedOut = true
		}
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			out.Cause = &Error{Budget: budget}
			out.TimedOut = true
		} else {
			out.Cause = runCtx.Err()
		}
	}
	terminate()
	out.Cleanup = onFailure(context.WithoutCancel(ctx))
	return out
}

package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNoTask - the lane has no pending task, or another task of the lane is in flight
	ErrNoTask = errors.New("no pending task")
	// ErrTaskNotFound - update hit zero rows
	ErrTaskNotFound = errors.New("task not found")
	// ErrDuplicateTask - the order is already waiting in the lane
	ErrDuplicateTask = errors.New("duplicated task")
	// ErrEmptyUpdate - nothing to write
	ErrEmptyUpdate = errors.New("empty update")
	// ErrUnknownColumn - column is not updatable
	ErrUnknownColumn = errors.New("unknown column")
	// ErrBadValue - value type does not match the column
	ErrBadValue = errors.New("bad value")
)

// StoreError - persistence layer failure
type StoreError struct {
	Op     string
	Column string
	Err    error
}

func (e *StoreError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("storage: %s %s: %v", e.Op, e.Column, e.Err)
	}
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Config - ...
type Config struct {
	DSN string
}

// TaskRepository - durable record of orders to pack
type TaskRepository interface {
	Enqueue(ctx context.Context, task *Task) (int64, error)
	// ClaimOldestPending atomically moves the oldest pending task of the lane
	// to processing. It returns ErrNoTask when there is nothing to claim.
	ClaimOldestPending(ctx context.Context, cron string) (*Task, error)
	HasPending(ctx context.Context, cron string) (bool, error)
	PendingLanes(ctx context.Context) ([]string, error)
	WriteStatus(ctx context.Context, id int64, fields Fields) error
	RepairStaleTasks(ctx context.Context, timeout int, batchSize int) (int, error)
}

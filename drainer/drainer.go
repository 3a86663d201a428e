// Package drainer empties cron lanes one task at a time.
package drainer

import (
	"context"
	"errors"

	"github.com/google/uuid"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/lane"
	"github.com/freundallein/packer/chassis/metrics"
	"github.com/freundallein/packer/chassis/protocol"
	"github.com/freundallein/packer/chassis/queue"
	"github.com/freundallein/packer/chassis/storage"
	"github.com/freundallein/packer/processor"
)

// ErrLaneBusy - another drain cycle holds the lane
var ErrLaneBusy = errors.New("lane already active")

// Iteration - what one drain iteration did
type Iteration string

const (
	// STALE - the message carried a token that no longer holds the lane
	STALE Iteration = "stale"
	// IDLE - nothing to claim, lane released
	IDLE Iteration = "idle"
	// REQUEUED - a task was processed and more are waiting
	REQUEUED Iteration = "requeued"
	// DRAINED - a task was processed and the lane is empty
	DRAINED Iteration = "drained"
	// BLOCKED - pending work waits behind a task still in flight
	BLOCKED Iteration = "blocked"
)

// Processor - runs one task to a terminal status without failing
type Processor interface {
	Process(ctx context.Context, task *storage.Task) processor.Result
}

// Drainer - ...
type Drainer struct {
	Repo      storage.TaskRepository
	Lanes     lane.Leaser
	Queue     queue.Client
	Processor Processor
}

// Trigger starts a drain cycle for the lane unless one is running.
func (d *Drainer) Trigger(ctx context.Context, cron string) (string, error) {
	token := uuid.NewString()
	ok, err := d.Lanes.Acquire(ctx, cron, token)
	if err != nil {
		metrics.LaneTriggers.WithLabelValues("error").Inc()
		return "", err
	}
	if !ok {
		metrics.LaneTriggers.WithLabelValues("busy").Inc()
		return "", ErrLaneBusy
	}
	if err := d.submit(ctx, cron, token); err != nil {
		metrics.LaneTriggers.WithLabelValues("error").Inc()
		if releaseErr := d.Lanes.Release(ctx, cron, token); releaseErr != nil {
			log.WithFields(log.Fields{
				"event": "lane_release_failed",
				"cron":  cron,
			}).Error(releaseErr)
		}
		return "", err
	}
	metrics.LaneTriggers.WithLabelValues("started").Inc()
	log.WithFields(log.Fields{
		"event": "lane_triggered",
		"cron":  cron,
		"token": token,
	}).Info("drain cycle started")
	return token, nil
}

// Drain runs one iteration: claim the oldest pending task, process it, then
// either resubmit the lane or release it.
func (d *Drainer) Drain(ctx context.Context, cron, token string) (Iteration, error) {
	if err := d.Lanes.Refresh(ctx, cron, token); err != nil {
		if errors.Is(err, lane.ErrNotHeld) {
			metrics.DrainIterations.WithLabelValues(string(STALE)).Inc()
			return STALE, nil
		}
		return "", err
	}
	task, err := d.Repo.ClaimOldestPending(ctx, cron)
	if errors.Is(err, storage.ErrNoTask) {
		return d.idle(ctx, cron, token)
	}
	if err != nil {
		return "", err
	}
	log.WithFields(log.Fields{
		"event":  "task_claimed",
		"cron":   cron,
		"taskID": task.ID,
	}).Info("claimed oldest pending task")

	res := d.Processor.Process(ctx, task)
	log.WithFields(log.Fields{
		"event":  "task_processed",
		"cron":   cron,
		"taskID": task.ID,
		"status": res.Status,
	}).Info("task reached terminal status")

	more, err := d.Repo.HasPending(ctx, cron)
	if err != nil {
		// lease expiry frees the lane if nobody resubmits it
		return "", err
	}
	if more {
		if err := d.submit(ctx, cron, token); err != nil {
			return "", err
		}
		metrics.DrainIterations.WithLabelValues(string(REQUEUED)).Inc()
		return REQUEUED, nil
	}
	metrics.DrainIterations.WithLabelValues(string(DRAINED)).Inc()
	return DRAINED, d.Lanes.Release(ctx, cron, token)
}

// idle - nothing was claimed. The lane stays leased while a redelivered
// message races the iteration that still processes a task.
func (d *Drainer) idle(ctx context.Context, cron, token string) (Iteration, error) {
	pending, err := d.Repo.HasPending(ctx, cron)
	if err != nil {
		return "", err
	}
	if pending {
		metrics.DrainIterations.WithLabelValues(string(BLOCKED)).Inc()
		return BLOCKED, nil
	}
	metrics.DrainIterations.WithLabelValues(string(IDLE)).Inc()
	return IDLE, d.Lanes.Release(ctx, cron, token)
}

func (d *Drainer) submit(ctx context.Context, cron, token string) error {
	msg, err := protocol.DrainRequest(cron, token).JSON()
	if err != nil {
		return err
	}
	return d.Queue.SendMessage(ctx, msg)
}

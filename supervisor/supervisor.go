package supervisor

import (
	"context"
	"sync"
	"time"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/metrics"
	"github.com/freundallein/packer/chassis/monkey"
	"github.com/freundallein/packer/chassis/storage"
)

// Reclaimer - queue that can return messages whose visibility ran out
type Reclaimer interface {
	Reclaim(ctx context.Context, limit int) (int, error)
}

// Config ...
type Config struct {
	Repository      storage.TaskRepository
	Queues          []Reclaimer
	Workers         int
	Interval        time.Duration
	StaleTimeout    int
	RepairBatchSize int
	Monkey          *monkey.Injector
}

// Repair fails tasks stuck in processing and reclaims expired queue messages.
func Repair(ctx context.Context, cfg *Config) (tasks int, messages int, err error) {
	tasks, err = cfg.Repository.RepairStaleTasks(ctx, cfg.StaleTimeout, cfg.RepairBatchSize)
	err = cfg.Monkey.RandomizeError(err)
	if err != nil {
		return 0, 0, err
	}
	metrics.Repaired.WithLabelValues("task").Add(float64(tasks))
	for _, q := range cfg.Queues {
		n, err := q.Reclaim(ctx, cfg.RepairBatchSize)
		if err != nil {
			return tasks, messages, err
		}
		messages += n
	}
	metrics.Repaired.WithLabelValues("message").Add(float64(messages))
	return tasks, messages, nil
}

func worker(ctx context.Context, cfg *Config, workerID int, group *sync.WaitGroup) {
	defer group.Done()
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"event":  "ctx_canceled",
				"worker": workerID,
			}).Info("exit goroutine")
			return
		case <-time.After(cfg.Interval):
			tasks, messages, err := Repair(ctx, cfg)
			if err != nil {
				log.WithFields(log.Fields{
					"event":  "stale_task_repair_failed",
					"worker": workerID,
				}).Error(err)
				continue
			}
			log.WithFields(log.Fields{
				"event":  "stale_task_repair",
				"worker": workerID,
			}).Info("select and repair stale tasks:", tasks, " reclaimed messages:", messages)
		}
	}
}

// Run ...
func Run(ctx context.Context, cfg *Config, group *sync.WaitGroup) {
	log.WithFields(log.Fields{
		"event": "start_service",
	}).Info("starting ", cfg.Workers, " workers")
	for wrk := 1; wrk <= cfg.Workers; wrk++ {
		group.Add(1)
		go worker(ctx, cfg, wrk, group)
	}
}

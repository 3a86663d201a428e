package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/storage"
	"github.com/freundallein/packer/drainer"
)

// Trigger - starts a drain cycle of a lane
type Trigger interface {
	Trigger(ctx context.Context, cron string) (string, error)
}

// Config ...
type Config struct {
	Repository storage.TaskRepository
	Lanes      Trigger
	Interval   time.Duration
}

// Tick triggers every lane with pending work and reports how many started.
func Tick(ctx context.Context, cfg *Config) (int, error) {
	lanes, err := cfg.Repository.PendingLanes(ctx)
	if err != nil {
		return 0, err
	}
	started := 0
	for _, cron := range lanes {
		_, err := cfg.Lanes.Trigger(ctx, cron)
		switch {
		case err == nil:
			started++
		case errors.Is(err, drainer.ErrLaneBusy):
			log.WithFields(log.Fields{
				"event": "lane_busy",
				"cron":  cron,
			}).Debug("drain cycle already running")
		default:
			log.WithFields(log.Fields{
				"event": "lane_trigger_failed",
				"cron":  cron,
			}).Error(err)
		}
	}
	return started, nil
}

func worker(ctx context.Context, cfg *Config, group *sync.WaitGroup) {
	defer group.Done()
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"event":  "ctx_canceled",
				"worker": "scheduler",
			}).Info("exit goroutine")
			return
		case <-time.After(cfg.Interval):
			started, err := Tick(ctx, cfg)
			if err != nil {
				log.WithFields(log.Fields{
					"event":  "select_lanes_failed",
					"worker": "scheduler",
				}).Error(err)
				continue
			}
			log.WithFields(log.Fields{
				"event":  "lanes_triggered",
				"worker": "scheduler",
			}).Info("triggered lanes: ", started)
		}
	}
}

// Run ...
func Run(ctx context.Context, cfg *Config, group *sync.WaitGroup) {
	log.WithFields(log.Fields{
		"event": "start_service",
	}).Info("starting scheduler with ", cfg.Interval, " interval")
	group.Add(1)
	go worker(ctx, cfg, group)
}

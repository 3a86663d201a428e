package drainer

import (
	"context"
	"errors"
	"sync"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/protocol"
	"github.com/freundallein/packer/chassis/queue"
)

// Config ...
type Config struct {
	Drainer *Drainer
	Queue   queue.Client
	Workers int
}

func worker(ctx context.Context, cfg *Config, workerID int, group *sync.WaitGroup) {
	defer group.Done()
	cli := cfg.Queue
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"event":  "ctx_canceled",
				"worker": workerID,
			}).Info("exit goroutine")
			return
		default:
			msg, err := cli.ReceiveMessage(ctx)
			if err != nil {
				if !errors.Is(err, queue.ErrNoMessage) && !errors.Is(err, context.Canceled) {
					log.WithFields(log.Fields{
						"event":  "receive_failed",
						"worker": workerID,
					}).Error(err)
				}
				continue
			}
			request := &protocol.Request{}
			if err := request.FromJSON(msg.Body); err != nil || request.Method != protocol.MethodDrain {
				log.WithFields(log.Fields{
					"event":  "receive_broken_message",
					"worker": workerID,
				}).Error(msg.Body)
				ack(ctx, cli, msg, workerID)
				continue
			}
			cron, token := request.Params["cron"], request.Params["token"]
			// a started task is finished even when the service is stopping
			iteration, err := cfg.Drainer.Drain(context.WithoutCancel(ctx), cron, token)
			if err != nil {
				log.WithFields(log.Fields{
					"event":  "drain_failed",
					"worker": workerID,
					"cron":   cron,
				}).Error(err)
				continue
			}
			log.WithFields(log.Fields{
				"event":     "drain_iteration",
				"worker":    workerID,
				"cron":      cron,
				"iteration": iteration,
			}).Debug(request)
			ack(ctx, cli, msg, workerID)
		}
	}
}

func ack(ctx context.Context, cli queue.Client, msg *queue.RecvMessage, workerID int) {
	if err := cli.Acknowledge(context.WithoutCancel(ctx), msg); err != nil {
		log.WithFields(log.Fields{
			"event":  "ack_message_failed",
			"worker": workerID,
		}).Error(err)
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

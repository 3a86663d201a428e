package submitter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/protocol"
	"github.com/freundallein/packer/chassis/queue"
	"github.com/freundallein/packer/chassis/storage"
	"github.com/freundallein/packer/drainer"
	"github.com/freundallein/packer/packing"
)

// ErrBadRequest - the submit message cannot become a task
var ErrBadRequest = errors.New("bad submit request")

// Trigger - starts a drain cycle of a lane
type Trigger interface {
	Trigger(ctx context.Context, cron string) (string, error)
}

// Config ...
type Config struct {
	Queue      queue.Client
	Repository storage.TaskRepository
	Lanes      Trigger
	Workers    int
}

// TaskFromRequest builds a pending task out of a submit:pack request.
func TaskFromRequest(request *protocol.Request) (*storage.Task, error) {
	if request.Method != protocol.MethodSubmit {
		return nil, fmt.Errorf("%w: method %q", ErrBadRequest, request.Method)
	}
	params := request.Params
	for _, key := range []string{"cron", "order_name", "picking_id", "operation_type"} {
		if params[key] == "" {
			return nil, fmt.Errorf("%w: no %s supported", ErrBadRequest, key)
		}
	}
	picking, err := strconv.ParseInt(params["picking_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: picking_id: %v", ErrBadRequest, err)
	}
	if _, err := packing.ParseLines(params["line_data"]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	task := &storage.Task{
		Cron:          params["cron"],
		OrderName:     params["order_name"],
		PickingID:     picking,
		OperationType: params["operation_type"],
		LineData:      params["line_data"],
	}
	dims := []struct {
		key string
		dst *float64
	}{
		{"weight", &task.Weight},
		{"length", &task.Length},
		{"width", &task.Width},
		{"height", &task.Height},
	}
	for _, dim := range dims {
		raw := params[dim.key]
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrBadRequest, dim.key, err)
		}
		*dim.dst = v
	}
	if task.LineData == "" {
		task.LineData = "{}"
	}
	return task, nil
}

// Submit stores the task and starts its lane. A duplicate still triggers the lane.
func Submit(ctx context.Context, cfg *Config, task *storage.Task) error {
	_, err := cfg.Repository.Enqueue(ctx, task)
	if err != nil && !errors.Is(err, storage.ErrDuplicateTask) {
		return err
	}
	if errors.Is(err, storage.ErrDuplicateTask) {
		log.WithFields(log.Fields{
			"event":   "duplicated_task",
			"cron":    task.Cron,
			"picking": task.PickingID,
		}).Warn("receive duplicated task")
	}
	if _, err := cfg.Lanes.Trigger(ctx, task.Cron); err != nil && !errors.Is(err, drainer.ErrLaneBusy) {
		return err
	}
	return nil
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
			task, err := func() (*storage.Task, error) {
				if err := request.FromJSON(msg.Body); err != nil {
					return nil, err
				}
				return TaskFromRequest(request)
			}()
			if err != nil {
				log.WithFields(log.Fields{
					"event":  "received_broken_message",
					"worker": workerID,
				}).Error(err)
				if err := cli.Acknowledge(ctx, msg); err != nil {
					log.WithFields(log.Fields{
						"event":  "ack_message_failed",
						"worker": workerID,
					}).Error(err)
				}
				continue
			}
			if err := Submit(ctx, cfg, task); err != nil {
				log.WithFields(log.Fields{
					"event":  "submit_failed",
					"worker": workerID,
					"cron":   task.Cron,
					"order":  task.OrderName,
				}).Error(err)
				continue
			}
			log.WithFields(log.Fields{
				"event":  "submit_to_db",
				"worker": workerID,
				"cron":   task.Cron,
				"order":  task.OrderName,
			}).Info("submit task to storage")
			if err := cli.Acknowledge(ctx, msg); err != nil {
				log.WithFields(log.Fields{
					"event":  "ack_message_failed",
					"worker": workerID,
					"cron":   task.Cron,
					"order":  task.OrderName,
				}).Error(err)
			}
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

// Package loadgen feeds the submit queue with random packaging orders.
package loadgen

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/protocol"
	"github.com/freundallein/packer/chassis/queue"
	"github.com/freundallein/packer/packing"
)

var letters = []rune("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ")

var strategies = []packing.Strategy{
	packing.ALL,
	packing.SEPARATE_BOX,
	packing.SEPARATE_MULTI_BOX,
	packing.SAME_BOX,
	packing.SPLIT_MULTI_BOX,
	packing.MIXED,
}

// Config ...
type Config struct {
	QueueDst queue.Client
	Workers  int
	Lanes    int
	Pause    time.Duration
}

func randSeq(rnd *rand.Rand, n int) string {
	b := make([]rune, n)
	for i := range b {
		b[i] = letters[rnd.Intn(len(letters))]
	}
	return string(b)
}

func randLines(rnd *rand.Rand, n int) []packing.PackingLine {
	lines := make([]packing.PackingLine, n)
	for i := range lines {
		lines[i] = packing.PackingLine{
			Product:  randSeq(rnd, 6),
			Quantity: packing.Quantity(1 + rnd.Intn(3)),
		}
	}
	return lines
}

func randLineData(rnd *rand.Rand, strategy packing.Strategy) packing.Lines {
	var lines packing.Lines
	boxes := func() []packing.Package {
		pkgs := make([]packing.Package, 1+rnd.Intn(2))
		for i := range pkgs {
			pkgs[i] = packing.Package{Lines: randLines(rnd, 1+rnd.Intn(2))}
		}
		return pkgs
	}
	switch strategy {
	case packing.SEPARATE_MULTI_BOX:
		lines.SeparateMultiBox = boxes()
	case packing.SAME_BOX:
		lines.SameBox = boxes()
	case packing.SPLIT_MULTI_BOX:
		lines.SplitMultiBox = randLines(rnd, 1+rnd.Intn(3))
	case packing.MIXED:
		lines.SeparateMultiBox = boxes()
		lines.SplitMultiBox = randLines(rnd, 1+rnd.Intn(2))
	}
	return lines
}

// RandomOrder builds a submit:pack request for one of lanes crons.
func RandomOrder(rnd *rand.Rand, lanes int, picking int64) (*protocol.Request, error) {
	if lanes <= 0 {
		lanes = 1
	}
	strategy := strategies[rnd.Intn(len(strategies))]
	data, err := json.Marshal(randLineData(rnd, strategy))
	if err != nil {
		return nil, err
	}
	return &protocol.Request{
		Method: protocol.MethodSubmit,
		Params: map[string]string{
			"cron":           fmt.Sprintf("cron_%d", 1+rnd.Intn(lanes)),
			"order_name":     "SO" + strconv.FormatInt(picking, 10),
			"picking_id":     strconv.FormatInt(picking, 10),
			"operation_type": string(strategy),
			"line_data":      string(data),
			"weight":         strconv.FormatFloat(0.5+rnd.Float64()*10, 'f', 2, 64),
			"length":         strconv.Itoa(10 + rnd.Intn(50)),
			"width":          strconv.Itoa(10 + rnd.Intn(50)),
			"height":         strconv.Itoa(10 + rnd.Intn(50)),
		},
	}, nil
}

func worker(ctx context.Context, cfg *Config, workerID int, picking *int64, group *sync.WaitGroup) {
	defer group.Done()
	cli := cfg.QueueDst
	rnd := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))
	for {
		select {
		case <-ctx.Done():
			log.WithFields(log.Fields{
				"event":  "ctx_canceled",
				"worker": workerID,
			}).Info("exit goroutine")
			return
		case <-time.After(cfg.Pause):
			message, err := RandomOrder(rnd, cfg.Lanes, atomic.AddInt64(picking, 1))
			if err != nil {
				log.WithFields(log.Fields{
					"event":  "generate_failed",
					"worker": workerID,
				}).Error(err)
				continue
			}
			jsonMsg, err := message.JSON()
			if err != nil {
				log.WithFields(log.Fields{
					"event":  "serialize_failed",
					"worker": workerID,
				}).Error(err)
				continue
			}
			if err := cli.SendMessage(ctx, jsonMsg); err != nil {
				log.WithFields(log.Fields{
					"event":  "send_message_failed",
					"worker": workerID,
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
	picking := time.Now().Unix()
	for wrk := 1; wrk <= cfg.Workers; wrk++ {
		group.Add(1)
		go worker(ctx, cfg, wrk, &picking, group)
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/chassis/bootstrap"
	"github.com/freundallein/packer/chassis/config"
	"github.com/freundallein/packer/loadgen"
)

func main() {
	appCfg, err := config.Read()
	if err != nil {
		log.WithFields(log.Fields{
			"event": "config_read_failed",
		}).Fatal(err)
	}
	log.Init("loadgen", appCfg.Submitter.LogLevel)
	log.WithFields(log.Fields{
		"event": "init_service",
	}).Info("loadgen service initialized")
	rdb := bootstrap.Redis(appCfg)
	defer rdb.Close()
	// Use submitter's cfg
	queueClient, _, err := bootstrap.Queue(appCfg, appCfg.Submitter.Queuesrc, rdb)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "init_queue_failed",
		}).Fatal(err)
	}
	cfg := &loadgen.Config{
		QueueDst: queueClient,
		Workers:  appCfg.Submitter.Workers,
		Lanes:    3,
		Pause:    time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var group sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	loadgen.Run(ctx, cfg, &group)
	<-done
	log.WithFields(log.Fields{
		"event": "ctx_cancel",
	}).Info("received syscall")
	cancel()
	group.Wait()
}

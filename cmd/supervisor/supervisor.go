package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	log "github.com/freundallein/packer/chassis/logging"

	"github.com/freundallein/packer/api"
	"github.com/freundallein/packer/chassis/bootstrap"
	"github.com/freundallein/packer/chassis/config"
	"github.com/freundallein/packer/chassis/monkey"
	"github.com/freundallein/packer/supervisor"
)

func main() {
	appCfg, err := config.Read()

	if err != nil {
		log.WithFields(log.Fields{
			"event": "config_read_failed",
		}).Fatal(err)
	}
	log.Init("supervisor", appCfg.Supervisor.LogLevel)
	log.WithFields(log.Fields{
		"event": "init_service",
	}).Info("service initialized")
	repo, closeRepo, err := bootstrap.Repository(appCfg)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "init_storage_failed",
		}).Fatal(err)
	}
	defer closeRepo()
	rdb := bootstrap.Redis(appCfg)
	defer rdb.Close()
	cfg := &supervisor.Config{
		Repository:      repo,
		Workers:         appCfg.Supervisor.Workers,
		Interval:        time.Duration(appCfg.Supervisor.Interval) * time.Second,
		StaleTimeout:    appCfg.Supervisor.StaleTimeout,
		RepairBatchSize: appCfg.Supervisor.RepairBatchSize,
		Monkey:          monkey.New(appCfg.Monkey.ErrorChance),
	}
	// SQS redelivers on its own; only redis queues need reclaiming
	for _, q := range []config.Queue{appCfg.Drainer.Queue, appCfg.Submitter.Queuesrc} {
		_, reclaimer, err := bootstrap.Queue(appCfg, q, rdb)
		if err != nil {
			log.WithFields(log.Fields{
				"event": "init_queue_failed",
			}).Fatal(err)
		}
		if reclaimer != nil {
			cfg.Queues = append(cfg.Queues, reclaimer)
		}
	}
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var group sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	supervisor.Run(ctx, cfg, &group)

	srv := &http.Server{
		Addr:    appCfg.HTTP.Addr,
		Handler: api.NewRouter(nil, nil),
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("listen: ", err)
		}
	}()
	<-done
	log.WithFields(log.Fields{
		"event": "ctx_cancel",
	}).Info("received syscall")
	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server Shutdown Failed: ", err)
	}
	group.Wait()
}

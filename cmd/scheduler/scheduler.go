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
	"github.com/freundallein/packer/scheduler"
)

func main() {
	appCfg, err := config.Read()

	if err != nil {
		log.WithFields(log.Fields{
			"event": "config_read_failed",
		}).Fatal(err)
	}
	log.Init("scheduler", appCfg.Scheduler.LogLevel)
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
	drainQueue, _, err := bootstrap.Queue(appCfg, appCfg.Drainer.Queue, rdb)
	if err != nil {
		log.WithFields(log.Fields{
			"event": "init_queue_failed",
		}).Fatal(err)
	}
	// triggers only; drain messages are consumed by the drainer
	lanes := bootstrap.Drainer(repo, bootstrap.Leaser(appCfg, rdb), drainQueue, nil)
	cfg := &scheduler.Config{
		Repository: repo,
		Lanes:      lanes,
		Interval:   time.Duration(appCfg.Scheduler.Interval) * time.Second,
	}
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var group sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	scheduler.Run(ctx, cfg, &group)

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

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
	"github.com/freundallein/packer/drainer"
)

func main() {
	appCfg, err := config.Read()

	if err != nil {
		log.WithFields(log.Fields{
			"event": "config_read_failed",
		}).Fatal(err)
	}
	log.Init("drainer", appCfg.Drainer.LogLevel)
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
	leaser := bootstrap.Leaser(appCfg, rdb)
	lanes := bootstrap.Drainer(repo, leaser, drainQueue, bootstrap.Processor(appCfg, repo))
	cfg := &drainer.Config{
		Drainer: lanes,
		Queue:   drainQueue,
		Workers: appCfg.Drainer.Workers,
	}
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	var group sync.WaitGroup
	ctx, cancel := context.WithCancel(context.Background())

	drainer.Run(ctx, cfg, &group)

	srv := &http.Server{
		Addr:    appCfg.HTTP.Addr,
		Handler: api.NewRouter(lanes, leaser),
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

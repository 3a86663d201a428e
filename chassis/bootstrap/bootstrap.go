// Package bootstrap builds the engine's dependencies out of the application config.
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/freundallein/packer/chassis/archive"
	"github.com/freundallein/packer/chassis/config"
	"github.com/freundallein/packer/chassis/lane"
	"github.com/freundallein/packer/chassis/monkey"
	"github.com/freundallein/packer/chassis/oms"
	"github.com/freundallein/packer/chassis/queue"
	"github.com/freundallein/packer/chassis/storage"
	"github.com/freundallein/packer/chassis/uidriver"
	"github.com/freundallein/packer/drainer"
	"github.com/freundallein/packer/packing"
	"github.com/freundallein/packer/processor"
	"github.com/freundallein/packer/timeout"
)

const memoryDSN = "memory://"

// Repository opens postgres, or the in-process store for memory://.
func Repository(cfg *config.AppConfig) (storage.TaskRepository, func(), error) {
	if strings.HasPrefix(cfg.Storage.DSN, memoryDSN) {
		return storage.NewMemoryRepository(), func() {}, nil
	}
	repo, err := storage.InitPGRepository(storage.Config{DSN: cfg.Storage.DSN})
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}

// Redis ...
func Redis(cfg *config.AppConfig) redis.UniversalClient {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// Queue builds the queue described by q. The second value is non-nil for
// queues the supervisor can reclaim.
func Queue(cfg *config.AppConfig, q config.Queue, rdb redis.UniversalClient) (queue.Client, *queue.RedisQueue, error) {
	qcfg := queue.Config{
		Name:       q.Name,
		URL:        q.URL,
		Retries:    q.Retries,
		Visibility: q.Visibility,

		//AWS specific
		Region:             cfg.AWS.Region,
		CredentialsFile:    cfg.AWS.CredentialsFile,
		CredentialsProfile: cfg.AWS.CredentialsProfile,
	}
	chaos := monkey.New(cfg.Monkey.ErrorChance)
	switch q.Kind {
	case "sqs":
		return monkey.WrapQueue(queue.InitAWSQueue(qcfg), chaos), nil, nil
	case "redis":
		if rdb == nil {
			return nil, nil, fmt.Errorf("queue %s: redis is not configured", q.Name)
		}
		rq := queue.InitRedisQueue(rdb, qcfg)
		return monkey.WrapQueue(rq, chaos), rq, nil
	default:
		return nil, nil, fmt.Errorf("queue %s: unknown kind %q", q.Name, q.Kind)
	}
}

// Processor wires the UI driver, the OMS and the optional archive.
func Processor(cfg *config.AppConfig, repo storage.TaskRepository) *processor.Processor {
	proc := &processor.Processor{
		Repo: repo,
		Sessions: uidriver.NewRemoteFactory(uidriver.RemoteConfig{
			URL:      cfg.UI.URL,
			Username: cfg.UI.Username,
			Password: cfg.UI.Password,
		}),
		OMS: oms.NewHTTPClient(oms.Config{
			URL:        cfg.OMS.URL,
			Database:   cfg.OMS.Database,
			Username:   cfg.OMS.Username,
			Password:   cfg.OMS.Password,
			WebhookURL: cfg.OMS.WebhookURL,
			AuthKey:    cfg.OMS.AuthKey,
		}),
		Dispatcher: packing.Dispatcher{Settle: time.Duration(cfg.Drainer.SettleDelay) * time.Millisecond},
		Supervisor: timeout.Supervisor{Budget: time.Duration(cfg.Drainer.Timeout) * time.Second},
	}
	if cfg.Archive.Bucket != "" {
		proc.Archive = archive.InitS3Archiver(archive.Config{
			Bucket:             cfg.Archive.Bucket,
			Prefix:             cfg.Archive.Prefix,
			Endpoint:           cfg.Archive.Endpoint,
			Region:             cfg.AWS.Region,
			CredentialsFile:    cfg.AWS.CredentialsFile,
			CredentialsProfile: cfg.AWS.CredentialsProfile,
			Retries:            cfg.Drainer.Queue.Retries,
		})
	}
	return proc
}

// Leaser ...
func Leaser(cfg *config.AppConfig, rdb redis.UniversalClient) *lane.RedisLeaser {
	return lane.NewRedisLeaser(rdb, time.Duration(cfg.Drainer.LeaseTTL)*time.Second)
}

// Drainer assembles the lane drainer on top of the drain queue.
func Drainer(repo storage.TaskRepository, leaser lane.Leaser, drainQueue queue.Client, proc drainer.Processor) *drainer.Drainer {
	return &drainer.Drainer{
		Repo:      repo,
		Lanes:     leaser,
		Queue:     drainQueue,
		Processor: proc,
	}
}

package config

import (
	"errors"
	"os"

	"gopkg.in/yaml.v2"
)

const (
	defaultWorkers         = 1
	defaultLeaseTTL        = 600
	defaultTimeout         = 180
	defaultSettleDelay     = 3000
	defaultInterval        = 30
	defaultStaleTimeout    = 900
	defaultRepairBatchSize = 10
	defaultVisibility      = 600
	defaultHTTPAddr        = ":2112"
)

// Queue describes one message queue.
type Queue struct {
	Kind       string `yaml:"kind"`
	Name       string `yaml:"name"`
	URL        string `yaml:"url"`
	Retries    int    `yaml:"readRetries"`
	Visibility int    `yaml:"visibility"`
}

// AppConfig ...
type AppConfig struct {
	Storage struct {
		DSN string `yaml:"dsn"`
	}
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	}
	AWS struct {
		Region             string `yaml:"region"`
		CredentialsFile    string `yaml:"credentialsFile"`
		CredentialsProfile string `yaml:"credentialsProfile"`
	}
	HTTP struct {
		Addr string `yaml:"addr"`
	}
	Drainer struct {
		Queue       Queue  `yaml:"queue"`
		Workers     int    `yaml:"workers"`
		LogLevel    string `yaml:"loglevel"`
		LeaseTTL    int    `yaml:"leaseTTL"`
		Timeout     int    `yaml:"timeout"`
		SettleDelay int    `yaml:"settleDelay"`
	}
	Scheduler struct {
		Interval int    `yaml:"interval"`
		LogLevel string `yaml:"loglevel"`
	}
	Submitter struct {
		Queuesrc Queue  `yaml:"queuesrc"`
		Workers  int    `yaml:"workers"`
		LogLevel string `yaml:"loglevel"`
	}
	Supervisor struct {
		Workers         int    `yaml:"workers"`
		LogLevel        string `yaml:"loglevel"`
		Interval        int    `yaml:"interval"`
		StaleTimeout    int    `yaml:"staleTimeout"`
		RepairBatchSize int    `yaml:"repairBatchSize"`
	}
	UI struct {
		URL      string `yaml:"url"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
	}
	OMS struct {
		URL        string `yaml:"url"`
		Database   string `yaml:"database"`
		Username   string `yaml:"username"`
		Password   string `yaml:"password"`
		WebhookURL string `yaml:"webhookURL"`
		AuthKey    string `yaml:"authKey"`
	}
	Archive struct {
		Bucket   string `yaml:"bucket"`
		Prefix   string `yaml:"prefix"`
		Endpoint string `yaml:"endpoint"`
	}
	Monkey struct {
		ErrorChance float64 `yaml:"errorChance"`
	}
}

// Read loads the YAML file named by CFG_PATH and fills in defaults.
func Read() (*AppConfig, error) {
	filename := os.Getenv("CFG_PATH")
	if filename == "" {
		return nil, errors.New("CFG_PATH is not set")
	}
	buff, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Parse(buff)
}

// Parse decodes raw YAML into an AppConfig with defaults applied.
func Parse(buff []byte) (*AppConfig, error) {
	cfg := &AppConfig{}
	if err := yaml.Unmarshal(buff, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (cfg *AppConfig) applyDefaults() {
	orInt(&cfg.Drainer.Workers, defaultWorkers)
	orInt(&cfg.Drainer.LeaseTTL, defaultLeaseTTL)
	orInt(&cfg.Drainer.Timeout, defaultTimeout)
	orInt(&cfg.Drainer.SettleDelay, defaultSettleDelay)
	orInt(&cfg.Drainer.Queue.Visibility, defaultVisibility)
	orString(&cfg.Drainer.Queue.Kind, "sqs")
	orInt(&cfg.Scheduler.Interval, defaultInterval)
	orInt(&cfg.Submitter.Workers, defaultWorkers)
	orInt(&cfg.Submitter.Queuesrc.Visibility, defaultVisibility)
	orString(&cfg.Submitter.Queuesrc.Kind, "sqs")
	orInt(&cfg.Supervisor.Workers, defaultWorkers)
	orInt(&cfg.Supervisor.Interval, defaultInterval)
	orInt(&cfg.Supervisor.StaleTimeout, defaultStaleTimeout)
	orInt(&cfg.Supervisor.RepairBatchSize, defaultRepairBatchSize)
	orString(&cfg.HTTP.Addr, defaultHTTPAddr)
}

func orInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func orString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

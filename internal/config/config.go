package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Channel   ChannelConfig
	Retention RetentionConfig
	Log       LogConfig
}

type ServerConfig struct {
	Address string
}

type DatabaseConfig struct {
	Driver string
	DSN    string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type SchedulerConfig struct {
	Interval     time.Duration
	SendTimeout  time.Duration
	DefaultDelay int
	Location     *time.Location
}

type ChannelConfig struct {
	Driver     string
	BridgeURL  string
	PollEvery  time.Duration
	RatePerSec float64
}

type RetentionConfig struct {
	Days int
	Cron string
}

type LogConfig struct {
	Level string
	JSON  bool
	File  string
}

func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	intervalSec, err := getEnvInt("SCHED_INTERVAL_SECONDS", 60)
	collect(err)
	sendTimeoutSec, err := getEnvInt("SEND_TIMEOUT_SECONDS", 60)
	collect(err)
	defaultDelay, err := getEnvInt("DEFAULT_DELAY_SECONDS", 10)
	collect(err)
	pollSec, err := getEnvInt("BRIDGE_POLL_SECONDS", 5)
	collect(err)
	rate, err := getEnvFloat("CHANNEL_RATE_PER_SEC", 0)
	collect(err)
	retentionDays, err := getEnvInt("RETENTION_DAYS", 30)
	collect(err)

	loc := time.Local
	if name := os.Getenv("TZ_LOCATION"); name != "" {
		l, err := time.LoadLocation(name)
		if err != nil {
			collect(fmt.Errorf("invalid TZ_LOCATION %q: %w", name, err))
		} else {
			loc = l
		}
	}

	redisCfg, err := loadRedisConfig()
	collect(err)

	cfg := &Config{
		Server: ServerConfig{
			Address: getEnv("SERVER_ADDRESS", ":8080"),
		},
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("DB_DRIVER", "sqlite")),
			DSN:    getEnv("DB_DSN", "data/messages.db"),
		},
		Scheduler: SchedulerConfig{
			Interval:     time.Duration(intervalSec) * time.Second,
			SendTimeout:  time.Duration(sendTimeoutSec) * time.Second,
			DefaultDelay: defaultDelay,
			Location:     loc,
		},
		Channel: ChannelConfig{
			Driver:     strings.ToLower(getEnv("CHANNEL_DRIVER", "dryrun")),
			BridgeURL:  os.Getenv("BRIDGE_URL"),
			PollEvery:  time.Duration(pollSec) * time.Second,
			RatePerSec: rate,
		},
		Retention: RetentionConfig{
			Days: retentionDays,
			Cron: getEnv("RETENTION_CRON", "0 3 * * *"),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
			JSON:  getEnv("LOG_FORMAT", "console") == "json",
			File:  os.Getenv("LOG_FILE"),
		},
		Redis: redisCfg,
	}

	if len(errs) > 0 {
		return nil, joinErrors(errs)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadRedisConfig() (RedisConfig, error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	db, err1 := getEnvInt("REDIS_DB", 0)
	ttl, err2 := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err := joinErrors([]error{err1, err2}); err != nil {
		return RedisConfig{}, err
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, nil
}

func validate(cfg *Config) error {
	var errs []error
	if cfg.Scheduler.Interval <= 0 {
		errs = append(errs, errors.New("SCHED_INTERVAL_SECONDS must be > 0"))
	}
	if cfg.Scheduler.SendTimeout <= 0 {
		errs = append(errs, errors.New("SEND_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Scheduler.DefaultDelay < 0 {
		errs = append(errs, errors.New("DEFAULT_DELAY_SECONDS must be >= 0"))
	}
	if cfg.Retention.Days < 0 {
		errs = append(errs, errors.New("RETENTION_DAYS must be >= 0"))
	}
	if cfg.Channel.RatePerSec < 0 {
		errs = append(errs, errors.New("CHANNEL_RATE_PER_SEC must be >= 0"))
	}

	switch cfg.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("DB_DRIVER must be sqlite or postgres, got %q", cfg.Database.Driver))
	}

	switch cfg.Channel.Driver {
	case "dryrun":
	case "bridge":
		if cfg.Channel.BridgeURL == "" {
			errs = append(errs, errors.New("BRIDGE_URL is required when CHANNEL_DRIVER=bridge"))
		}
		if cfg.Channel.PollEvery <= 0 {
			errs = append(errs, errors.New("BRIDGE_POLL_SECONDS must be > 0"))
		}
	default:
		errs = append(errs, fmt.Errorf("CHANNEL_DRIVER must be dryrun or bridge, got %q", cfg.Channel.Driver))
	}

	return joinErrors(errs)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number for env %s: %q", key, v)
	}
	return f, nil
}

func joinErrors(errs []error) error {
	return errors.Join(errs...)
}

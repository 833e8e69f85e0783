package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env         string `yaml:"env" env:"ENV" env-default:"local"`
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH"`
	HTTPServer  `yaml:"http_server"`
	Redis       Redis      `yaml:"redis"`
	Attendance  Attendance `yaml:"attendance"`
	Scheduler   Scheduler  `yaml:"scheduler"`
}

type HTTPServer struct {
	Address         string        `yaml:"address" env:"HTTP_ADDRESS" env-default:"localhost:8080"`
	Timeout         time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env-default:"15s"`
}

// Redis is optional. Without an address locks are in-process and
// notifications only go to the log.
type Redis struct {
	Address string `yaml:"address" env:"REDIS_ADDR"`
	Channel string `yaml:"channel" env-default:"attendance.marked"`
}

type Attendance struct {
	LockTTL                 time.Duration `yaml:"lock_ttl" env-default:"10s"`
	LockRetry               time.Duration `yaml:"lock_retry" env-default:"50ms"`
	Workers                 int           `yaml:"workers" env-default:"8"`
	ReconnectWindow         time.Duration `yaml:"reconnect_window" env-default:"120s"`
	PostSessionGrace        time.Duration `yaml:"post_session_grace" env-default:"30m"`
	EventTTL                time.Duration `yaml:"event_ttl" env-default:"24h"`
	DefaultGraceMinutes     int           `yaml:"default_grace_minutes" env-default:"15"`
	DefaultThresholdPercent float64       `yaml:"default_threshold_percent" env-default:"80"`
	NotificationQueueSize   int           `yaml:"notification_queue_size" env-default:"256"`
	NotificationTimeout     time.Duration `yaml:"notification_timeout" env-default:"5s"`
}

type Scheduler struct {
	Enabled  bool          `yaml:"enabled" env-default:"true"`
	Spec     string        `yaml:"spec" env-default:"@every 5m"`
	Lookback time.Duration `yaml:"lookback" env-default:"168h"`
	Delay    time.Duration `yaml:"delay" env-default:"5m"`
}

func MustLoad() *Config {
	var cfg Config

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("Config file does not exist: %s", configPath)
	}

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	return &cfg
}

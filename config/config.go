package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Configuration keys.
const (
	KeyPort             = "port"
	KeyDBPath           = "db_path"
	KeySnapshotPath     = "snapshot_path"
	KeySnapshotDir      = "snapshot_dir"
	KeySnapshotInterval = "snapshot_interval"
	KeyShutdownGrace    = "shutdown_grace"
	KeyAdminName        = "admin_name"
	KeyAdminToken       = "admin_token"
	KeyAIBots           = "ai_bots"
	KeyRateLimit        = "rate_limit"
	KeyRateBurst        = "rate_burst"
	KeyTaskWorkers      = "task_workers"
	KeyTaskQueue        = "task_queue"
	KeyCORSOrigins      = "cors_origins"
)

// EnvPrefix is prepended to every key when reading environment variables,
// e.g. CHAT_PORT.
const EnvPrefix = "CHAT"

// ErrInvalidConfig is returned when a loaded value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the resolved server configuration.
type Config struct {
	Port             int
	DBPath           string
	SnapshotPath     string
	SnapshotDir      string
	SnapshotInterval time.Duration
	ShutdownGrace    time.Duration
	AdminName        string
	AdminToken       string
	AIBots           string
	RateLimit        float64
	RateBurst        int
	TaskWorkers      int
	TaskQueue        int
	CORSOrigins      string
}

// Addr returns the listen address for Port.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// NewViper returns a viper instance with defaults and environment binding
// set up. Callers may bind command-line flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault(KeyPort, 3000)
	v.SetDefault(KeyDBPath, "chat.db")
	v.SetDefault(KeySnapshotPath, "data/chat_history.json")
	v.SetDefault(KeySnapshotDir, "data/backups")
	v.SetDefault(KeySnapshotInterval, 5*time.Minute)
	v.SetDefault(KeyShutdownGrace, 2*time.Second)
	v.SetDefault(KeyAdminName, "admin")
	v.SetDefault(KeyAdminToken, "")
	v.SetDefault(KeyAIBots, "")
	v.SetDefault(KeyRateLimit, 10.0)
	v.SetDefault(KeyRateBurst, 20)
	v.SetDefault(KeyTaskWorkers, 2)
	v.SetDefault(KeyTaskQueue, 256)
	v.SetDefault(KeyCORSOrigins, "*")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and resolves all keys. When cfgFile
// is empty the CHAT_CONFIG environment variable is consulted; when neither
// is set only defaults and environment variables apply.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile == "" {
		cfgFile = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		Port:             v.GetInt(KeyPort),
		DBPath:           v.GetString(KeyDBPath),
		SnapshotPath:     v.GetString(KeySnapshotPath),
		SnapshotDir:      v.GetString(KeySnapshotDir),
		SnapshotInterval: v.GetDuration(KeySnapshotInterval),
		ShutdownGrace:    v.GetDuration(KeyShutdownGrace),
		AdminName:        v.GetString(KeyAdminName),
		AdminToken:       v.GetString(KeyAdminToken),
		AIBots:           v.GetString(KeyAIBots),
		RateLimit:        v.GetFloat64(KeyRateLimit),
		RateBurst:        v.GetInt(KeyRateBurst),
		TaskWorkers:      v.GetInt(KeyTaskWorkers),
		TaskQueue:        v.GetInt(KeyTaskQueue),
		CORSOrigins:      v.GetString(KeyCORSOrigins),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.SnapshotPath == "":
		return fmt.Errorf("%w: snapshot_path is required", ErrInvalidConfig)
	case c.SnapshotInterval < 0:
		return fmt.Errorf("%w: snapshot_interval must not be negative", ErrInvalidConfig)
	case c.ShutdownGrace <= 0:
		return fmt.Errorf("%w: shutdown_grace must be positive", ErrInvalidConfig)
	case c.AdminName == "":
		return fmt.Errorf("%w: admin_name is required", ErrInvalidConfig)
	case c.RateLimit <= 0 || c.RateBurst <= 0:
		return fmt.Errorf("%w: rate_limit and rate_burst must be positive", ErrInvalidConfig)
	case c.TaskWorkers <= 0 || c.TaskQueue <= 0:
		return fmt.Errorf("%w: task_workers and task_queue must be positive", ErrInvalidConfig)
	}
	return nil
}

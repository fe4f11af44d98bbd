// Package config loads typing-replay settings. TYPING_REPLAY_* environment
// variables override the YAML file, which overrides the defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`
	Replay struct {
		Speed    float64 `mapstructure:"speed"`
		LineMode bool    `mapstructure:"lineMode"`
	} `mapstructure:"replay"`
	Store struct {
		Backend       string        `mapstructure:"backend"`
		FlushInterval time.Duration `mapstructure:"flushInterval"`
	} `mapstructure:"store"`
	Firestore struct {
		Project    string `mapstructure:"project"`
		Collection string `mapstructure:"collection"`
	} `mapstructure:"firestore"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
		Prefix   string `mapstructure:"prefix"`
	} `mapstructure:"redis"`
	// Git enables importing file histories. Clones are kept under CacheDir;
	// an empty Remote disables the import endpoint.
	Git struct {
		CacheDir string `mapstructure:"cacheDir"`
		Remote   string `mapstructure:"remote"`
	} `mapstructure:"git"`
}

const (
	BackendMemory    = "memory"
	BackendFirestore = "firestore"
	BackendRedis     = "redis"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("replay.speed", 1.0)
	v.SetDefault("replay.lineMode", false)
	v.SetDefault("store.backend", BackendMemory)
	v.SetDefault("store.flushInterval", 5*time.Second)
	v.SetDefault("firestore.project", "")
	v.SetDefault("firestore.collection", "documents")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "replay")
	v.SetDefault("git.cacheDir", filepath.Join(os.TempDir(), "typing-replay", "repos"))
	v.SetDefault("git.remote", "https://github.com")
}

// Load reads the configuration. An empty path searches for
// typing-replay.yaml in ./config and the working directory and tolerates its
// absence; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TYPING_REPLAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	} else {
		v.SetConfigName("typing-replay")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, err
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendMemory, BackendRedis:
	case BackendFirestore:
		if c.Firestore.Project == "" {
			return errors.New("config: firestore backend needs firestore.project")
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Replay.Speed <= 0 {
		return fmt.Errorf("config: replay.speed must be positive, got %v", c.Replay.Speed)
	}
	if c.Git.Remote != "" && c.Git.CacheDir == "" {
		return errors.New("config: git.remote needs git.cacheDir")
	}
	if c.Store.FlushInterval <= 0 {
		return fmt.Errorf("config: store.flushInterval must be positive, got %v", c.Store.FlushInterval)
	}
	return nil
}

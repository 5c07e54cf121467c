package internal

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	AppName string `mapstructure:"app_name"`

	Server struct {
		Addr         string `mapstructure:"addr"`
		FrameCodec   string `mapstructure:"frame_codec"`
		MaxFrameSize int    `mapstructure:"max_frame_size"`
	} `mapstructure:"server"`

	Schema struct {
		File string `mapstructure:"file"`
	} `mapstructure:"schema"`

	Client struct {
		Addr                string        `mapstructure:"addr"`
		Timeout             time.Duration `mapstructure:"timeout"`
		DescriptorCacheSize int           `mapstructure:"descriptor_cache_size"`
	} `mapstructure:"client"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

// NewViper returns a viper instance with defaults and NOVA_* environment
// overrides (NOVA_SERVER_ADDR, NOVA_LOG_LEVEL, ...).
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("app_name", "novasql")
	v.SetDefault("server.addr", "127.0.0.1:8866")
	v.SetDefault("server.frame_codec", "json")
	v.SetDefault("server.max_frame_size", 16<<20)
	v.SetDefault("schema.file", "")
	v.SetDefault("client.addr", "127.0.0.1:8866")
	v.SetDefault("client.timeout", 10*time.Second)
	v.SetDefault("client.descriptor_cache_size", 128)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("NOVA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// LoadConfig reads path (optional) on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	v := NewViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return Unmarshal(v)
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Server.MaxFrameSize <= 0 {
		return nil, fmt.Errorf("config: server.max_frame_size must be positive")
	}
	if cfg.Client.DescriptorCacheSize <= 0 {
		return nil, fmt.Errorf("config: client.descriptor_cache_size must be positive")
	}
	return &cfg, nil
}

// NewLogger builds the process logger from the log section.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return nil, fmt.Errorf("config: log.level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(c.Log.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)).With("app", c.AppName), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)).With("app", c.AppName), nil
	default:
		return nil, fmt.Errorf("config: unknown log.format %q", c.Log.Format)
	}
}

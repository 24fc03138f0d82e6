package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Loader reads the bridge configuration file and can watch it for edits.
type Loader struct {
	path string

	mu sync.Mutex
	v  *viper.Viper
}

func NewLoader(path string) *Loader {
	return &Loader{path: path}
}

// Load parses the file, overlays MQTT settings from the environment and
// validates the result.
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(l.path)
	v.SetConfigType("yaml")
	setDefaults(v)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read %s: %w", l.path, err)
	}
	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.v = v
	l.mu.Unlock()
	return cfg, nil
}

// Watch re-reads the file on every write and hands each valid fresh config
// to fn. Invalid edits are logged and skipped so the previous config stays
// live. fn runs on the watcher goroutine; Load must have succeeded first.
func (l *Loader) Watch(fn func(*Config)) {
	l.mu.Lock()
	v := l.v
	l.mu.Unlock()
	if v == nil {
		return
	}
	v.OnConfigChange(func(in fsnotify.Event) {
		cfg, err := unmarshal(v)
		if err != nil {
			zap.L().Error("config change ignored", zap.String("file", in.Name), zap.Error(err))
			return
		}
		zap.L().Info("config reloaded", zap.String("file", in.Name))
		fn(cfg)
	})
	v.WatchConfig()
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg.Mqtt); err != nil {
		return nil, fmt.Errorf("config: environment overlay: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	for i := range c.Onvif {
		if c.Onvif[i].Port == 0 {
			c.Onvif[i].Port = 80
		}
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.topic_prefix", "onvif2mqtt")
	v.SetDefault("bridge.debounce_window", time.Second)
}

package config

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// Config is the root bridge configuration, loaded from the yaml file with
// MQTT credentials optionally overridden from the environment.
type Config struct {
	Mqtt     MqttConfig     `mapstructure:"mqtt"`
	Onvif    []DeviceConfig `mapstructure:"onvif"`
	Api      ApiConfig      `mapstructure:"api"`
	Bridge   BridgeConfig   `mapstructure:"bridge"`
	LogLevel string         `mapstructure:"log_level"`
}

type MqttConfig struct {
	Host          string `mapstructure:"host" env:"MQTT_HOST"`
	Port          int    `mapstructure:"port" env:"MQTT_PORT"`
	Username      string `mapstructure:"username" env:"MQTT_USER"`
	Password      string `mapstructure:"password" env:"MQTT_PASS"`
	ClientID      string `mapstructure:"client_id" env:"MQTT_CLIENT_ID"`
	TopicPrefix   string `mapstructure:"topic_prefix"`
	HomeAssistant bool   `mapstructure:"home_assistant"`
}

type DeviceConfig struct {
	Name     string `mapstructure:"name"`
	Hostname string `mapstructure:"hostname"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ApiConfig struct {
	Templates []Template `mapstructure:"templates"`
}

// Template is one operator-defined publication: a subtopic pattern, a body
// pattern and whether the broker should retain the message.
type Template struct {
	Subtopic string `mapstructure:"subtopic"`
	Template string `mapstructure:"template"`
	Retain   bool   `mapstructure:"retain"`
}

type BridgeConfig struct {
	DebounceWindow time.Duration `mapstructure:"debounce_window"`
}

func (c *Config) validate() error {
	if c.Mqtt.Host == "" {
		return fmt.Errorf("config: mqtt.host is required")
	}
	seen := map[string]struct{}{}
	for i, device := range c.Onvif {
		if device.Name == "" {
			return fmt.Errorf("config: onvif[%d].name is required", i)
		}
		if device.Hostname == "" {
			return fmt.Errorf("config: onvif device %q has no hostname", device.Name)
		}
		if _, ok := seen[device.Name]; ok {
			return fmt.Errorf("config: duplicate onvif device name %q", device.Name)
		}
		seen[device.Name] = struct{}{}
	}
	for i, tmpl := range c.Api.Templates {
		if tmpl.Subtopic == "" {
			return fmt.Errorf("config: api.templates[%d].subtopic is required", i)
		}
	}
	return nil
}

// DevicesEqual reports whether two device sets match, ignoring order. The
// reload path uses it to skip subscription rebuilds for template-only edits.
func DevicesEqual(a, b []DeviceConfig) bool {
	if len(a) != len(b) {
		return false
	}
	byName := lo.KeyBy(a, func(d DeviceConfig) string { return d.Name })
	for _, device := range b {
		if byName[device.Name] != device {
			return false
		}
	}
	return true
}

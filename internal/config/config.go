// Package config loads cellwatch configuration with viper.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Config is a nil-safe read view over a viper instance.
type Config struct {
	v *viper.Viper
}

// New wraps v. A nil v yields a Config whose getters return zero values.
func New(v *viper.Viper) *Config {
	return &Config{v: v}
}

// Viper returns the wrapped instance, which may be nil.
func (c *Config) Viper() *viper.Viper { return c.v }

func (c *Config) GetString(key string) string {
	if c.v == nil {
		return ""
	}
	return c.v.GetString(key)
}

func (c *Config) GetInt(key string) int {
	if c.v == nil {
		return 0
	}
	return c.v.GetInt(key)
}

func (c *Config) GetBool(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.GetBool(key)
}

func (c *Config) GetDuration(key string) time.Duration {
	if c.v == nil {
		return 0
	}
	return c.v.GetDuration(key)
}

func (c *Config) GetStringSlice(key string) []string {
	if c.v == nil {
		return nil
	}
	return c.v.GetStringSlice(key)
}

func (c *Config) IsSet(key string) bool {
	if c.v == nil {
		return false
	}
	return c.v.IsSet(key)
}

// Sub returns the subtree at key. A missing key yields an empty Config,
// never nil.
func (c *Config) Sub(key string) *Config {
	if c.v == nil {
		return New(nil)
	}
	sub := c.v.Sub(key)
	if sub == nil {
		return New(viper.New())
	}
	return New(sub)
}

// Unmarshal decodes the whole tree into target.
func (c *Config) Unmarshal(target any) error {
	if c.v == nil {
		return nil
	}
	return c.v.Unmarshal(target)
}

// UnmarshalKey decodes the subtree at key into target.
func (c *Config) UnmarshalKey(key string, target any) error {
	if c.v == nil {
		return nil
	}
	return c.v.UnmarshalKey(key, target)
}

package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetters(t *testing.T) {
	v := viper.New()
	v.Set("monitor.unit", "sagecell")
	v.Set("web.remote.port", 2222)
	v.Set("web.remote.ping", true)
	v.Set("monitor.stop_timeout", "45s")
	v.Set("web.sessions", []string{"sagecell", "sagecell-router"})
	cfg := New(v)

	assert.Equal(t, "sagecell", cfg.GetString("monitor.unit"))
	assert.Equal(t, 2222, cfg.GetInt("web.remote.port"))
	assert.True(t, cfg.GetBool("web.remote.ping"))
	assert.Equal(t, 45*time.Second, cfg.GetDuration("monitor.stop_timeout"))
	assert.Equal(t, []string{"sagecell", "sagecell-router"}, cfg.GetStringSlice("web.sessions"))
	assert.True(t, cfg.IsSet("monitor.unit"))
	assert.False(t, cfg.IsSet("monitor.missing"))
}

func TestSub(t *testing.T) {
	v := viper.New()
	v.Set("web.remote.host", "worker-1")
	v.Set("web.remote.port", 2222)
	cfg := New(v)

	sub := cfg.Sub("web.remote")
	require.NotNil(t, sub)
	assert.Equal(t, "worker-1", sub.GetString("host"))
	assert.Equal(t, 2222, sub.GetInt("port"))

	missing := cfg.Sub("alert")
	require.NotNil(t, missing, "missing subtree yields an empty Config")
	assert.Empty(t, missing.GetString("webhook_url"))
}

func TestUnmarshalKey(t *testing.T) {
	v := viper.New()
	v.Set("journal.path", "/tmp/j.db")
	v.Set("journal.enabled", true)
	cfg := New(v)

	var jc JournalConfig
	require.NoError(t, cfg.UnmarshalKey("journal", &jc))
	assert.Equal(t, JournalConfig{Enabled: true, Path: "/tmp/j.db"}, jc)
}

func TestNilViper(t *testing.T) {
	cfg := New(nil)
	assert.Empty(t, cfg.GetString("monitor.unit"))
	assert.Zero(t, cfg.GetInt("web.remote.port"))
	assert.False(t, cfg.GetBool("journal.enabled"))
	assert.Zero(t, cfg.GetDuration("monitor.stop_timeout"))
	assert.False(t, cfg.IsSet("monitor.unit"))
	assert.Empty(t, cfg.File())
	assert.NotNil(t, cfg.Sub("monitor"))

	var s Settings
	assert.NoError(t, cfg.Unmarshal(&s))
}

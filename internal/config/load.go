package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/HerbHall/cellwatch/internal/alert"
	"github.com/HerbHall/cellwatch/internal/logging"
	"github.com/HerbHall/cellwatch/internal/monitor"
	"github.com/HerbHall/cellwatch/internal/webrestart"
)

// EnvPrefix prefixes every environment override, e.g. CELLWATCH_MONITOR_UNIT.
const EnvPrefix = "CELLWATCH"

// Search paths used when no explicit config file is given.
var searchPaths = []string{"/etc/cellwatch", "$HOME/.config/cellwatch"}

// JournalConfig locates the run history database.
type JournalConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	// Retention prunes older runs after each record. Zero keeps everything.
	Retention time.Duration `mapstructure:"retention"`
}

// MetricsConfig locates the node_exporter textfile. Empty disables export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Settings is the typed form of the whole configuration.
type Settings struct {
	Monitor monitor.Config    `mapstructure:"monitor"`
	Web     webrestart.Config `mapstructure:"web"`
	Journal JournalConfig     `mapstructure:"journal"`
	Metrics MetricsConfig     `mapstructure:"metrics"`
	Alert   alert.Config      `mapstructure:"alert"`
	Log     logging.Config    `mapstructure:"log"`
}

// Load reads path (or the first cellwatch.yaml found on the search paths when
// path is empty), applies CELLWATCH_* environment overrides over it and
// returns the resulting Config. A missing file is only an error when path was
// given explicitly.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("cellwatch")
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return New(v), nil
}

// File returns the config file in use, or "" when running on defaults.
func (c *Config) File() string {
	if c.v == nil {
		return ""
	}
	return c.v.ConfigFileUsed()
}

// Settings decodes the typed configuration.
func (c *Config) Settings() (*Settings, error) {
	s := &Settings{
		Monitor: *monitor.DefaultConfig(),
		Web:     *webrestart.DefaultConfig(),
		Log:     logging.DefaultConfig(),
	}
	if err := c.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return s, nil
}

// setDefaults registers every key so environment overrides are visible to
// Unmarshal.
func setDefaults(v *viper.Viper) {
	m := monitor.DefaultConfig()
	v.SetDefault("monitor.unit", m.Unit)
	v.SetDefault("monitor.account", m.Account)
	v.SetDefault("monitor.init_system", m.InitSystem)
	v.SetDefault("monitor.probe", m.Probe)
	v.SetDefault("monitor.probe_timeout", m.ProbeTimeout)
	v.SetDefault("monitor.stop_timeout", m.StopTimeout)
	v.SetDefault("monitor.kill_timeout", m.KillTimeout)
	v.SetDefault("monitor.facility.command", m.Facility.Command)
	v.SetDefault("monitor.facility.flag_file", m.Facility.FlagFile)
	v.SetDefault("monitor.watch.interval", m.Watch.Interval)
	v.SetDefault("monitor.watch.restart_gap", m.Watch.RestartGap)
	v.SetDefault("monitor.watch.listen", m.Watch.Listen)

	w := webrestart.DefaultConfig()
	v.SetDefault("web.sessions", w.Sessions)
	v.SetDefault("web.session_timeout", w.SessionTimeout)
	v.SetDefault("web.tmux_socket", w.TmuxSocket)
	v.SetDefault("web.process_pattern", w.ProcessPattern)
	v.SetDefault("web.socket_globs", w.SocketGlobs)
	v.SetDefault("web.settle", w.Settle)
	v.SetDefault("web.remote.host", w.Remote.Host)
	v.SetDefault("web.remote.port", w.Remote.Port)
	v.SetDefault("web.remote.user", w.Remote.User)
	v.SetDefault("web.remote.key_file", w.Remote.KeyFile)
	v.SetDefault("web.remote.known_hosts_file", w.Remote.KnownHostsFile)
	v.SetDefault("web.remote.insecure_host_key", w.Remote.Insecure)
	v.SetDefault("web.remote.dial_timeout", w.Remote.DialTimeout)
	v.SetDefault("web.remote.ping", w.Remote.Ping)
	v.SetDefault("web.remote.ping_timeout", w.Remote.PingTimeout)
	v.SetDefault("web.build.dir", w.Build.Dir)
	v.SetDefault("web.build.command", w.Build.Command)
	v.SetDefault("web.build.timeout", w.Build.Timeout)
	v.SetDefault("web.launch.session", w.Launch.Session)
	v.SetDefault("web.launch.dir", w.Launch.Dir)
	v.SetDefault("web.launch.command", w.Launch.Command)
	v.SetDefault("web.launch.timeout", w.Launch.Timeout)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", "/var/lib/cellwatch/journal.db")
	v.SetDefault("journal.retention", 90*24*time.Hour)
	v.SetDefault("metrics.textfile", "")

	v.SetDefault("alert.webhook_url", "")
	v.SetDefault("alert.method", "POST")
	v.SetDefault("alert.subject", "cellwatch")
	v.SetDefault("alert.timeout", "10s")

	l := logging.DefaultConfig()
	v.SetDefault("log.level", l.Level)
	v.SetDefault("log.format", l.Format)
	v.SetDefault("log.file", l.File)
	v.SetDefault("log.max_size_mb", l.MaxSizeMB)
	v.SetDefault("log.max_backups", l.MaxBackups)
	v.SetDefault("log.max_age_days", l.MaxAgeDays)
	v.SetDefault("log.compress", l.Compress)
}

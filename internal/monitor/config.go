package monitor

import "time"

// Config holds the Health Monitor configuration.
type Config struct {
	Unit         string         `mapstructure:"unit"`
	Account      string         `mapstructure:"account"`
	InitSystem   string         `mapstructure:"init_system"`
	Probe        []string       `mapstructure:"probe"`
	ProbeTimeout time.Duration  `mapstructure:"probe_timeout"`
	StopTimeout  time.Duration  `mapstructure:"stop_timeout"`
	KillTimeout  time.Duration  `mapstructure:"kill_timeout"`
	Facility     FacilityConfig `mapstructure:"facility"`
	Watch        WatchConfig    `mapstructure:"watch"`
}

// FacilityConfig selects the global on/off gate. Command takes precedence
// over FlagFile when both are set.
type FacilityConfig struct {
	Command  []string `mapstructure:"command"`
	FlagFile string   `mapstructure:"flag_file"`
}

// WatchConfig controls the long-running watch mode.
type WatchConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// RestartGap is the minimum time between two remedial restarts.
	RestartGap time.Duration `mapstructure:"restart_gap"`
	// Listen, when set, serves /healthz, /api/v1/last and /metrics.
	Listen string `mapstructure:"listen"`
}

// DefaultConfig returns the default monitor configuration.
func DefaultConfig() *Config {
	return &Config{
		Unit:         "sagecell",
		Account:      "sc_work",
		InitSystem:   "auto",
		Probe:        []string{"/home/sc_serv/sagecell/contrib/sagecell-client/sagecell-service.py"},
		ProbeTimeout: 2 * time.Minute,
		StopTimeout:  30 * time.Second,
		KillTimeout:  15 * time.Second,
		Facility: FacilityConfig{
			FlagFile: "/var/lib/cellwatch/healthcheck",
		},
		Watch: WatchConfig{
			Interval:   5 * time.Minute,
			RestartGap: 15 * time.Minute,
		},
	}
}

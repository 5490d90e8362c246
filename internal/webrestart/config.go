package webrestart

import (
	"time"

	"github.com/HerbHall/cellwatch/internal/remote"
)

// Config holds the Service Restarter configuration.
type Config struct {
	// Sessions are terminated in order: web server first, then its router.
	Sessions       []string      `mapstructure:"sessions"`
	SessionTimeout time.Duration `mapstructure:"session_timeout"`
	TmuxSocket     string        `mapstructure:"tmux_socket"`
	ProcessPattern string        `mapstructure:"process_pattern"`
	SocketGlobs    []string      `mapstructure:"socket_globs"`
	// Settle is an optional pause between cleanup and verification.
	Settle         time.Duration `mapstructure:"settle"`
	Remote         RemoteConfig  `mapstructure:"remote"`
	Build          BuildConfig   `mapstructure:"build"`
	Launch         LaunchConfig  `mapstructure:"launch"`
}

// RemoteConfig enables the best-effort kill on a second host.
type RemoteConfig struct {
	remote.Config `mapstructure:",squash"`
	// Ping skips the remote kill when the host does not answer ICMP.
	Ping        bool          `mapstructure:"ping"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

// Enabled reports whether a remote host is configured.
func (c RemoteConfig) Enabled() bool {
	return c.Host != ""
}

// BuildConfig describes the forced rebuild.
type BuildConfig struct {
	Dir     string        `mapstructure:"dir"`
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// LaunchConfig describes the relaunched session.
type LaunchConfig struct {
	Session string        `mapstructure:"session"`
	Dir     string        `mapstructure:"dir"`
	Command []string      `mapstructure:"command"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DefaultConfig returns the default restarter configuration.
func DefaultConfig() *Config {
	return &Config{
		Sessions:       []string{"sagecell", "sagecell-router"},
		SessionTimeout: 10 * time.Second,
		ProcessPattern: "web_server.py",
		SocketGlobs:    []string{"/tmp/sagecell-ipc-*"},
		Remote: RemoteConfig{
			Config: remote.Config{
				Port:           22,
				User:           "sc_work",
				KeyFile:        "/home/sc_serv/.ssh/id_rsa",
				KnownHostsFile: "/home/sc_serv/.ssh/known_hosts",
				DialTimeout:    10 * time.Second,
			},
			PingTimeout: 3 * time.Second,
		},
		Build: BuildConfig{
			Dir:     "/home/sc_serv/sagecell",
			Command: []string{"make", "-B"},
			Timeout: 30 * time.Minute,
		},
		Launch: LaunchConfig{
			Session: "sagecell",
			Dir:     "/home/sc_serv/sagecell",
			Command: []string{"../sage/sage", "web_server.py", "-p", "8888"},
			Timeout: 10 * time.Second,
		},
	}
}

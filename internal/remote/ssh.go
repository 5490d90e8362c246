// Package remote executes commands on another host over SSH and checks
// whether that host is reachable at all.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/HerbHall/cellwatch/internal/command"
)

// Config describes how to reach the remote host.
type Config struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	KeyFile        string        `mapstructure:"key_file"`
	KnownHostsFile string        `mapstructure:"known_hosts_file"`
	Insecure       bool          `mapstructure:"insecure_host_key"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout"`
}

// Addr returns host:port, defaulting the port to 22.
func (c Config) Addr() string {
	port := c.Port
	if port == 0 {
		port = 22
	}
	return net.JoinHostPort(c.Host, fmt.Sprint(port))
}

// SSHRunner implements command.Runner against a remote host. Each Run opens a
// fresh connection; the restart procedure issues at most a handful of
// remote commands.
type SSHRunner struct {
	cfg       Config
	clientCfg *ssh.ClientConfig
}

// Compile-time interface guard.
var _ command.Runner = (*SSHRunner)(nil)

// NewSSHRunner loads the private key and host key policy.
func NewSSHRunner(cfg Config) (*SSHRunner, error) {
	if cfg.Host == "" {
		return nil, errors.New("remote host is required")
	}
	if cfg.User == "" {
		return nil, errors.New("remote user is required")
	}

	keyPEM, err := os.ReadFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("read ssh key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, fmt.Errorf("parse ssh key %s: %w", cfg.KeyFile, err)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if !cfg.Insecure {
		hostKeyCallback, err = knownhosts.New(cfg.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("load known hosts %s: %w", cfg.KnownHostsFile, err)
		}
	}

	timeout := cfg.DialTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &SSHRunner{
		cfg: cfg,
		clientCfg: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         timeout,
		},
	}, nil
}

// Host returns the configured remote host name.
func (r *SSHRunner) Host() string { return r.cfg.Host }

// Run executes name with args through the remote user's shell.
func (r *SSHRunner) Run(ctx context.Context, name string, args ...string) (res command.Result) {
	res = command.Result{Name: name, Args: args}
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	client, err := r.dial(ctx)
	if err != nil {
		res.ExitCode = -1
		res.Err = err
		return res
	}
	defer client.Close()

	// Tear the connection down if the caller gives up.
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		res.ExitCode = -1
		res.Err = fmt.Errorf("open session: %w", err)
		return res
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	err = session.Run(ShellJoin(name, args...))
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()

	var exitErr *ssh.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitStatus()
	case ctx.Err() != nil:
		res.ExitCode = -1
		res.Err = ctx.Err()
	default:
		res.ExitCode = -1
		res.Err = err
	}
	return res
}

func (r *SSHRunner) dial(ctx context.Context) (*ssh.Client, error) {
	addr := r.cfg.Addr()
	d := net.Dialer{Timeout: r.clientCfg.Timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, r.clientCfg)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", addr, err)
	}
	return ssh.NewClient(c, chans, reqs), nil
}

// ShellJoin quotes each word for a POSIX shell and joins them.
func ShellJoin(name string, args ...string) string {
	words := make([]string, 0, len(args)+1)
	words = append(words, shellQuote(name))
	for _, a := range args {
		words = append(words, shellQuote(a))
	}
	return strings.Join(words, " ")
}

func shellQuote(value string) string {
	if value != "" && strings.IndexFunc(value, unsafeShellRune) < 0 {
		return value
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

func unsafeShellRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	case strings.ContainsRune("-_./=:@%+,", r):
		return false
	}
	return true
}

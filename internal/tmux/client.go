// Package tmux drives named terminal-multiplexer sessions that host
// long-running processes.
package tmux

import (
	"context"
	"fmt"
	"strings"

	"github.com/HerbHall/cellwatch/internal/command"
)

// Client issues tmux commands through a command.Runner.
type Client struct {
	runner command.Runner
	binary string
	socket string
}

// Option configures a Client.
type Option func(*Client)

// WithBinary overrides the tmux executable.
func WithBinary(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithSocket selects a named server socket (tmux -L).
func WithSocket(name string) Option {
	return func(c *Client) { c.socket = name }
}

// NewClient returns a Client for the default tmux server.
func NewClient(runner command.Runner, opts ...Option) *Client {
	c := &Client{runner: runner, binary: "tmux"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) run(ctx context.Context, args ...string) command.Result {
	if c.socket != "" {
		args = append([]string{"-L", c.socket}, args...)
	}
	return c.runner.Run(ctx, c.binary, args...)
}

// ListSessions returns the names of all sessions. A server that is not
// running has no sessions and is not an error.
func (c *Client) ListSessions(ctx context.Context) ([]string, error) {
	res := c.run(ctx, "list-sessions", "-F", "#{session_name}")
	if res.OK() {
		return parseSessions(res.Stdout), nil
	}
	if res.Err == nil && noServer(res.Stderr) {
		return []string{}, nil
	}
	return nil, fmt.Errorf("list tmux sessions: %w", res.Error())
}

// HasSession reports whether a session with exactly this name exists.
func (c *Client) HasSession(ctx context.Context, name string) (bool, error) {
	sessions, err := c.ListSessions(ctx)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s == name {
			return true, nil
		}
	}
	return false, nil
}

// Interrupt types Ctrl-C into the session's active pane.
func (c *Client) Interrupt(ctx context.Context, name string) error {
	return c.run(ctx, "send-keys", "-t", target(name), "C-c").Error()
}

// NewDetached starts a detached session running argv in dir.
func (c *Client) NewDetached(ctx context.Context, name, dir string, argv ...string) error {
	if name == "" {
		return fmt.Errorf("session name is required")
	}
	args := []string{"new-session", "-d", "-s", name}
	if dir != "" {
		args = append(args, "-c", dir)
	}
	args = append(args, argv...)
	return c.run(ctx, args...).Error()
}

// target pins an exact session match; a bare name is a prefix match in tmux.
func target(name string) string {
	return "=" + name
}

func noServer(stderr string) bool {
	s := strings.ToLower(stderr)
	return strings.Contains(s, "no server running") ||
		strings.Contains(s, "no sessions") ||
		strings.Contains(s, "error connecting to")
}

// parseSessions extracts session names from list-sessions output. Both the
// "-F #{session_name}" form and the default "name: N windows ..." form are
// accepted.
func parseSessions(output string) []string {
	lines := strings.Split(output, "\n")
	sessions := []string{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		name, _, _ := strings.Cut(line, ":")
		sessions = append(sessions, strings.TrimSpace(name))
	}
	return sessions
}

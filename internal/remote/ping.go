package remote

import (
	"context"
	"fmt"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// Pinger checks whether a host answers ICMP echo.
type Pinger interface {
	Reachable(ctx context.Context, host string) (bool, error)
}

// ICMPPinger pings targets using ICMP via pro-bing.
type ICMPPinger struct {
	timeout time.Duration
	count   int
}

// NewICMPPinger creates a pinger with the given timeout and ping count.
func NewICMPPinger(timeout time.Duration, count int) *ICMPPinger {
	if count <= 0 {
		count = 1
	}
	return &ICMPPinger{timeout: timeout, count: count}
}

// Reachable pings host and reports whether any reply arrived.
func (p *ICMPPinger) Reachable(ctx context.Context, host string) (bool, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return false, fmt.Errorf("create pinger: %w", err)
	}

	pinger.Count = p.count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		if runErr != nil {
			return false, fmt.Errorf("ping %s: %w", host, runErr)
		}
		return pinger.Statistics().PacketsRecv > 0, nil
	case <-ctx.Done():
		pinger.Stop()
		return false, ctx.Err()
	}
}

// Package alert posts a webhook notification when a run needed or failed
// remediation.
package alert

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	nfy "github.com/nikoksr/notify"
	nfyhttp "github.com/nikoksr/notify/service/http"
	"go.uber.org/zap"

	"github.com/HerbHall/cellwatch/internal/report"
	"github.com/HerbHall/cellwatch/internal/version"
)

// Config describes the webhook receiver.
type Config struct {
	WebhookURL string            `mapstructure:"webhook_url"`
	Method     string            `mapstructure:"method"`
	Headers    map[string]string `mapstructure:"headers"`
	Subject    string            `mapstructure:"subject"`
	Timeout    time.Duration     `mapstructure:"timeout"`
}

// Notifier sends reports worth attention to the configured webhook.
type Notifier struct {
	notifier *nfy.Notify
	subject  string
	timeout  time.Duration
	logger   *zap.Logger
}

// New builds a Notifier. It returns nil when no webhook is configured; a nil
// Notifier is safe to use and sends nothing.
func New(cfg Config, logger *zap.Logger) *Notifier {
	if cfg.WebhookURL == "" {
		return nil
	}
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = http.MethodPost
	}
	hdrs := make(http.Header)
	hdrs.Set("User-Agent", version.UserAgent())
	for k, v := range cfg.Headers {
		hdrs.Set(k, v)
	}
	subject := cfg.Subject
	if subject == "" {
		subject = "cellwatch"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	svc := nfyhttp.New()
	svc.AddReceivers(&nfyhttp.Webhook{
		URL:         cfg.WebhookURL,
		Header:      hdrs,
		ContentType: "application/json; charset=utf-8",
		Method:      method,
		BuildPayload: func(subject, message string) any {
			return map[string]string{
				"subject": subject,
				"message": message,
			}
		},
	})

	n := nfy.New()
	n.UseServices(svc)
	return &Notifier{notifier: n, subject: subject, timeout: timeout, logger: logger}
}

// Worth reports whether an outcome warrants a notification.
func Worth(o report.Outcome) bool {
	switch o {
	case report.OutcomeRestarted, report.OutcomeNotTerminated, report.OutcomeFailed:
		return true
	}
	return false
}

// Notify sends rep if its outcome warrants it.
func (n *Notifier) Notify(ctx context.Context, rep *report.Report) error {
	if n == nil || !Worth(rep.Outcome) {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.notifier.Send(ctx, n.subject, Message(rep)); err != nil {
		return fmt.Errorf("send %s alert: %w", rep.Kind, err)
	}
	n.logger.Debug("alert sent", zap.String("run_id", rep.ID), zap.String("outcome", string(rep.Outcome)))
	return nil
}

// Message renders rep as a short plain-text body.
func Message(rep *report.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s (exit %d)", rep.Kind, rep.Outcome, rep.ExitCode)
	if rep.Detail != "" {
		fmt.Fprintf(&b, ": %s", rep.Detail)
	}
	for _, s := range rep.Failed() {
		fmt.Fprintf(&b, "\n- %s failed", s.Name)
		if s.Detail != "" {
			fmt.Fprintf(&b, ": %s", s.Detail)
		}
	}
	fmt.Fprintf(&b, "\nrun %s", rep.ID)
	return b.String()
}

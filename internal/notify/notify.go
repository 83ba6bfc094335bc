package notify

import (
	"log/slog"

	"github.com/getsentry/sentry-go"
)

// Notifier carries user-facing auth outcomes. The original UI rendered these
// as toasts; here they are structured log lines, with failures also captured
// by Sentry when it is configured.
type Notifier struct{}

func New() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Success(msg string) {
	slog.Info("auth notification", "kind", "success", "message", msg)
}

func (n *Notifier) Error(msg string) {
	slog.Error("auth notification", "kind", "error", "message", msg)
	if hub := sentry.CurrentHub(); hub.Client() != nil {
		hub.CaptureMessage(msg)
	}
}

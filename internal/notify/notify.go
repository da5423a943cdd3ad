// Package notify sends operator alerts for conditions the core itself
// can't resolve: a task that has been poisoned (permanent decode
// failure) or a lease-recovery sweep that reclaimed an unusually large
// number of rows (a sign some worker fleet is down). Grounded on the
// teacher's internal/email package — same Sender-interface /
// LogSender-vs-ResendSender split, repurposed from user-facing
// magic-link delivery to operator alerting.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/resend/resend-go/v2"
)

// Notifier sends a single operator alert.
type Notifier interface {
	Notify(ctx context.Context, subject, body string) error
}

// LogNotifier logs the alert instead of sending it — used in ENV=local.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Notify(_ context.Context, subject, body string) error {
	n.Logger.Warn("operator alert (local dev)", "subject", subject, "body", body)
	return nil
}

// ResendNotifier sends the alert via the Resend API to a fixed operator
// address — used in staging/production.
type ResendNotifier struct {
	client *resend.Client
	from   string
	to     string
}

func (n *ResendNotifier) Notify(ctx context.Context, subject, body string) error {
	params := &resend.SendEmailRequest{
		From:    n.from,
		To:      []string{n.to},
		Subject: subject,
		Html:    body,
	}
	if _, err := n.client.Emails.SendWithContext(ctx, params); err != nil {
		return fmt.Errorf("notify: send alert email: %w", err)
	}
	return nil
}

// New returns a LogNotifier for ENV=local, ResendNotifier otherwise.
func New(env, apiKey, from, to string, logger *slog.Logger) Notifier {
	if env == "local" {
		return &LogNotifier{Logger: logger}
	}
	return &ResendNotifier{
		client: resend.NewClient(apiKey),
		from:   from,
		to:     to,
	}
}

// PoisonedTaskAlert formats the alert body for a task that has just
// been poisoned (spec §7: PermanentDecodeError past the poison
// ceiling).
func PoisonedTaskAlert(taskName, taskInstance string, cause error) (subject, body string) {
	subject = fmt.Sprintf("scheduler: task poisoned (%s/%s)", taskName, taskInstance)
	body = fmt.Sprintf("Task %s/%s was marked poisoned and will not be retried.\n\nCause: %v", taskName, taskInstance, cause)
	return subject, body
}

// MassLeaseRecoveryAlert formats the alert body for an unusually large
// lease-recovery sweep, a sign some worker fleet crashed or stalled.
func MassLeaseRecoveryAlert(recovered, threshold int) (subject, body string) {
	subject = "scheduler: mass lease recovery"
	body = fmt.Sprintf("Lease recovery reclaimed %d tasks in one sweep (threshold %d). Check worker fleet health.", recovered, threshold)
	return subject, body
}

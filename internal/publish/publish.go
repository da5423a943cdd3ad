// Package publish defines the broker-publish collaborator the execution
// pipeline calls once it has decoded a task's payload. The concrete
// broker client is an external collaborator per spec §1 — only this
// contract is specified here. Implementations are assumed thread-safe
// and transport-level-idempotent only to the extent the underlying
// broker provides; end-to-end idempotence is the consumer's
// responsibility (spec §4.4, §7).
package publish

import (
	"context"
	"errors"
	"log/slog"
)

// ErrTransient marks a transient broker failure (spec §7:
// TransientPublishError). The pipeline does not inspect the error kind:
// every non-nil Publish error, this one and a context cancellation
// alike, is handled as an execution failure and rescheduled with
// backoff.
var ErrTransient = errors.New("publish: transient broker error")

// Publisher republishes a decoded task payload to a broker topic.
type Publisher interface {
	// Publish sends data with attrs to topic and returns the broker's
	// message ID on success.
	Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (messageID string, err error)
}

// LogPublisher logs the publish instead of sending it anywhere. It is
// the only Publisher this build contains, and `start` always wires it,
// whether or not broker settings are configured — modelled on the
// teacher's log-only email sender.
type LogPublisher struct {
	Logger *slog.Logger
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, data []byte, attrs map[string]string) (string, error) {
	p.Logger.InfoContext(ctx, "publish (log-only)", "topic", topic, "bytes", len(data), "attributes", attrs)
	return "log-" + topic, nil
}

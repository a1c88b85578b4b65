// Package notify publishes build outcomes to external listeners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is used when no subject is configured.
const DefaultSubject = "sitebuilder.builds"

// Event describes one finished build.
type Event struct {
	BuildID    string    `json:"build_id"`
	Outcome    string    `json:"outcome"`
	Trigger    string    `json:"trigger,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Rendered   int       `json:"rendered"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
}

// Notifier delivers build events.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
	Close() error
}

// Noop discards events.
type Noop struct{}

func (Noop) Notify(context.Context, Event) error { return nil }
func (Noop) Close() error                        { return nil }

type publisher interface {
	Publish(subject string, data []byte) error
	FlushTimeout(timeout time.Duration) error
	Close()
}

// NATS publishes events as JSON on a NATS subject.
type NATS struct {
	conn    publisher
	subject string
	flush   time.Duration
}

// NewNATS connects to url.
func NewNATS(url, subject string) (*NATS, error) {
	conn, err := nats.Connect(url,
		nats.Name("sitebuilder"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS notifier connected", "url", url, "subject", subjectOrDefault(subject))
	return newNATS(conn, subject), nil
}

func newNATS(conn publisher, subject string) *NATS {
	return &NATS{conn: conn, subject: subjectOrDefault(subject), flush: 2 * time.Second}
}

// Notify implements Notifier.
func (n *NATS) Notify(ctx context.Context, ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	flush := n.flush
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < flush {
		flush = time.Until(dl)
	}
	if err := n.conn.FlushTimeout(flush); err != nil {
		return fmt.Errorf("failed to flush event: %w", err)
	}
	slog.Debug("Published build event", "subject", n.subject, "build_id", ev.BuildID, "outcome", ev.Outcome)
	return nil
}

// Close implements Notifier.
func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}

func subjectOrDefault(s string) string {
	if s == "" {
		return DefaultSubject
	}
	return s
}

// Package notify provides alert notification adapters that plug into the
// engine as notification hooks.
package notify

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/coffersTech/logalytics/internal/engine"
)

const defaultSubject = "alerts.fired"

// AlertFiredEvent is the wire shape published for each alert.
type AlertFiredEvent struct {
	EventType string         `json:"event_type"`
	Alert     engine.Alert   `json:"alert"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NATSNotifier publishes fired alerts to a NATS subject. Its Notify method
// satisfies engine.NotifyFunc; publish failures surface as errors, which
// the engine logs without aborting ingestion.
type NATSNotifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

// NewNATSNotifier wraps an established connection. An empty subject falls
// back to "alerts.fired".
func NewNATSNotifier(conn *nats.Conn, subject string, logger *slog.Logger) *NATSNotifier {
	if subject == "" {
		subject = defaultSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSNotifier{conn: conn, subject: subject, logger: logger}
}

// Notify publishes the alert as JSON.
func (n *NATSNotifier) Notify(alert engine.Alert) error {
	event := AlertFiredEvent{
		EventType: "alert.fired",
		Alert:     alert,
		Timestamp: time.Now(),
		Metadata: map[string]any{
			"service": "logalytics",
		},
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding alert event: %w", err)
	}
	if err := n.conn.Publish(n.subject, data); err != nil {
		return fmt.Errorf("publishing alert to %s: %w", n.subject, err)
	}
	n.logger.Debug("alert published",
		"rule", alert.RuleName, "subject", n.subject)
	return nil
}

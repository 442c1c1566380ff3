// Package nats mirrors live events onto a NATS subject tree so other
// services can consume telemetry without holding a WebSocket open. The
// mirror is best effort: publish failures are counted and logged but never
// propagate to the ingest path.
package nats

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/c360/telemetrygate/event"
	"github.com/c360/telemetrygate/metric"
)

// DefaultSubjectPrefix is the root of the mirror subject tree.
const DefaultSubjectPrefix = "telemetry"

// Publisher mirrors events onto NATS subjects of the form
// <prefix>.<deviceID>.<type>. A nil Publisher is valid and publishes
// nothing.
type Publisher struct {
	conn    *nats.Conn
	prefix  string
	logger  *slog.Logger
	metrics *metric.Metrics
}

// Options configures a Publisher.
type Options struct {
	// SubjectPrefix overrides DefaultSubjectPrefix.
	SubjectPrefix string
	Logger        *slog.Logger
	Registry      *metric.MetricsRegistry
}

// New creates a Publisher over an established connection.
func New(conn *nats.Conn, opts Options) *Publisher {
	if opts.SubjectPrefix == "" {
		opts.SubjectPrefix = DefaultSubjectPrefix
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	p := &Publisher{
		conn:   conn,
		prefix: opts.SubjectPrefix,
		logger: opts.Logger.With("component", "nats-mirror"),
	}
	if opts.Registry != nil {
		p.metrics = opts.Registry.CoreMetrics()
	}
	return p
}

// Publish mirrors one event. Events without a device ID are dropped; there
// is no sensible subject for them.
func (p *Publisher) Publish(ev event.LiveEvent) {
	if p == nil || p.conn == nil || ev.DeviceID == "" {
		return
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		p.fail(ev, err)
		return
	}

	subject := fmt.Sprintf("%s.%s.%s", p.prefix, ev.DeviceID, ev.Type)
	if err := p.conn.Publish(subject, payload); err != nil {
		p.fail(ev, err)
		return
	}
	if p.metrics != nil {
		p.metrics.MirrorPublished.Inc()
	}
}

// PublishAll mirrors a batch in order.
func (p *Publisher) PublishAll(events []event.LiveEvent) {
	for _, ev := range events {
		p.Publish(ev)
	}
}

func (p *Publisher) fail(ev event.LiveEvent, err error) {
	p.logger.Warn("mirror publish failed",
		"device_id", ev.DeviceID,
		"type", string(ev.Type),
		"error", err)
	if p.metrics != nil {
		p.metrics.MirrorFailed.Inc()
	}
}

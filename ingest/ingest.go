// Package ingest orchestrates the uplink pipeline: decode the raw payload,
// fan live events out to subscribers and the mirror, run the persistence
// batch, and produce the downlink reply. Live delivery happens before
// persistence so dashboards see telemetry even when the backend is slow.
package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/telemetrygate/errors"
	"github.com/c360/telemetrygate/event"
	"github.com/c360/telemetrygate/hub"
	"github.com/c360/telemetrygate/metric"
	natsout "github.com/c360/telemetrygate/output/nats"
	"github.com/c360/telemetrygate/persist"
	"github.com/c360/telemetrygate/wire"
)

// Downlink policy defaults. Every accepted uplink is answered with these
// unless overridden by configuration.
const (
	DefaultHeartbeatInterval = 720
	DefaultLocationMode      = wire.LocationWiFi
)

// Persister runs the backend write batch for one decoded uplink.
type Persister interface {
	Persist(ctx context.Context, rec *wire.UplinkRecord) persist.BatchResult
}

// Options configures an Orchestrator.
type Options struct {
	// Policy is the downlink configuration returned to devices. Zero values
	// fall back to the package defaults.
	Policy wire.DownlinkConfig

	Logger   *slog.Logger
	Registry *metric.MetricsRegistry

	// Mirror is optional; nil disables the NATS mirror.
	Mirror *natsout.Publisher

	// Clock overrides time.Now for event timestamps. Tests only.
	Clock func() time.Time
}

// Orchestrator coordinates the end-to-end handling of one uplink.
type Orchestrator struct {
	hub       *hub.Hub
	persister Persister
	mirror    *natsout.Publisher
	policy    wire.DownlinkConfig
	logger    *slog.Logger
	metrics   *metric.Metrics
	now       func() time.Time
}

// New creates an Orchestrator broadcasting through h and persisting through p.
func New(h *hub.Hub, p Persister, opts Options) *Orchestrator {
	if opts.Policy.HeartbeatInterval == 0 {
		opts.Policy.HeartbeatInterval = DefaultHeartbeatInterval
		opts.Policy.LocationMode = DefaultLocationMode
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	o := &Orchestrator{
		hub:       h,
		persister: p,
		mirror:    opts.Mirror,
		policy:    opts.Policy,
		logger:    opts.Logger.With("component", "ingest"),
		now:       opts.Clock,
	}
	if opts.Registry != nil {
		o.metrics = opts.Registry.CoreMetrics()
	}
	return o
}

// HandleUplink processes one raw uplink payload and returns the encoded
// downlink reply. A payload that does not decode is rejected whole: no
// events are emitted, nothing is persisted, and no reply is produced.
func (o *Orchestrator) HandleUplink(ctx context.Context, raw []byte) ([]byte, error) {
	started := o.now()
	if o.metrics != nil {
		o.metrics.UplinksReceived.Inc()
		o.metrics.UplinkBytes.Add(float64(len(raw)))
	}

	rec, err := wire.Decode(raw)
	if err != nil {
		if o.metrics != nil {
			o.metrics.UplinksFailed.WithLabelValues("decode").Inc()
		}
		o.logger.Warn("uplink rejected", "bytes", len(raw), "error", err)
		return nil, errors.WrapInvalid(err, "ingest", "HandleUplink", "decode uplink")
	}

	if rec.DeviceID == "" {
		o.logger.Debug("uplink without device identity, skipping fan-out",
			"uplink_count", rec.UplinkSequence)
	} else {
		events := event.FromRecord(rec, raw, o.now())
		for _, ev := range events {
			o.hub.Broadcast(rec.DeviceID, ev)
		}
		o.mirror.PublishAll(events)

		// Persistence must not be aborted by the transport exchange ending;
		// each backend write carries its own deadline.
		result := o.persister.Persist(context.WithoutCancel(ctx), rec)
		o.logger.Info("uplink persisted",
			"device_id", rec.DeviceID,
			"uplink_count", rec.UplinkSequence,
			"operations", result.Total,
			"succeeded", result.Succeeded)
	}

	reply, err := wire.EncodeDownlink(o.policy)
	if err != nil {
		if o.metrics != nil {
			o.metrics.UplinksFailed.WithLabelValues("encode_reply").Inc()
		}
		return nil, errors.WrapFatal(err, "ingest", "HandleUplink", "encode downlink reply")
	}

	if o.metrics != nil {
		o.metrics.DownlinksSent.Inc()
		o.metrics.ProcessingDuration.Observe(o.now().Sub(started).Seconds())
	}
	return reply, nil
}

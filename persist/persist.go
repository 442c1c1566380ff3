// Package persist turns one decoded uplink into the set of backend writes
// it implies and runs them with dependency-aware concurrency: the device
// configuration upsert completes first so the device row exists, then the
// remaining appends run concurrently. A batch never fails as a whole; each
// operation's outcome is reported individually.
package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/c360/telemetrygate/metric"
	"github.com/c360/telemetrygate/store"
	"github.com/c360/telemetrygate/wire"
)

// OperationKind names one backend write derived from an uplink.
type OperationKind string

// Operation kinds, one per backend table write.
const (
	OpConfigUpsert   OperationKind = "config_upsert"
	OpActivityInsert OperationKind = "activity_insert"
	OpRebootInsert   OperationKind = "reboot_insert"
	OpSensorInsert   OperationKind = "sensor_insert"
)

// OperationResult is the outcome of one backend write.
type OperationResult struct {
	Kind OperationKind
	Err  error
}

// BatchResult summarizes one uplink's persistence batch.
type BatchResult struct {
	Total      int
	Succeeded  int
	Operations []OperationResult
}

// Options configures a Coordinator.
type Options struct {
	// OpTimeout bounds each individual backend write. Zero means the
	// default of 10 seconds.
	OpTimeout time.Duration
	Logger    *slog.Logger
	Registry  *metric.MetricsRegistry
}

// Coordinator derives and executes the backend writes for decoded uplinks.
type Coordinator struct {
	store     store.Store
	opTimeout time.Duration
	logger    *slog.Logger
	metrics   *metric.Metrics
}

const defaultOpTimeout = 10 * time.Second

// New creates a Coordinator writing through st.
func New(st store.Store, opts Options) *Coordinator {
	if opts.OpTimeout <= 0 {
		opts.OpTimeout = defaultOpTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	c := &Coordinator{
		store:     st,
		opTimeout: opts.OpTimeout,
		logger:    opts.Logger.With("component", "persist"),
	}
	if opts.Registry != nil {
		c.metrics = opts.Registry.CoreMetrics()
	}
	return c
}

// Persist runs the backend writes implied by rec. The configuration upsert,
// when present, completes before any other write starts; the remaining
// writes run concurrently. The returned BatchResult always covers every
// derived operation; Persist itself never fails.
func (c *Coordinator) Persist(ctx context.Context, rec *wire.UplinkRecord) BatchResult {
	ops := c.plan(rec)
	result := BatchResult{
		Total:      len(ops),
		Operations: make([]OperationResult, len(ops)),
	}
	if len(ops) == 0 {
		result.Operations = nil
		return result
	}

	start := 0
	if ops[0].kind == OpConfigUpsert {
		result.Operations[0] = c.run(ctx, rec.DeviceID, ops[0])
		start = 1
	}

	var wg sync.WaitGroup
	for i := start; i < len(ops); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result.Operations[i] = c.run(ctx, rec.DeviceID, ops[i])
		}(i)
	}
	wg.Wait()

	for _, op := range result.Operations {
		if op.Err == nil {
			result.Succeeded++
		}
	}
	return result
}

type operation struct {
	kind OperationKind
	exec func(context.Context) error
}

// plan derives the write set from the sections present on the record. Order
// matters only for the configuration upsert, which plan always places first.
func (c *Coordinator) plan(rec *wire.UplinkRecord) []operation {
	if rec == nil || rec.DeviceID == "" {
		return nil
	}

	var ops []operation
	if rec.HasConfig {
		cfg := store.DeviceConfig{
			DeviceID:          rec.DeviceID,
			HeartbeatInterval: rec.Config.HeartbeatInterval,
			ICCID:             rec.Config.ICCID,
			HWVersion:         rec.Config.HWVersion,
			SWVersion:         rec.Config.SWVersion,
			ApplicationMode:   rec.Config.LocationMode.String(),
		}
		ops = append(ops, operation{OpConfigUpsert, func(ctx context.Context) error {
			return c.store.UpsertDeviceConfig(ctx, cfg)
		}})
	}
	if rec.HasActivity {
		act := store.ActivityRecord{
			DeviceID:       rec.DeviceID,
			UplinkSequence: rec.UplinkSequence,
			Sleep:          rec.Activity.Sleep,
			Modem:          rec.Activity.Modem,
			GNSS:           rec.Activity.GNSS,
			WiFi:           rec.Activity.WiFi,
			Other:          rec.Activity.Other,
		}
		ops = append(ops, operation{OpActivityInsert, func(ctx context.Context) error {
			return c.store.InsertActivity(ctx, act)
		}})
	}
	if rec.HasReboot {
		rb := store.RebootRecord{
			DeviceID:       rec.DeviceID,
			UplinkSequence: rec.UplinkSequence,
			Reason:         rec.Reboot.Reason.String(),
			File:           rec.Reboot.File,
			Line:           rec.Reboot.Line,
		}
		ops = append(ops, operation{OpRebootInsert, func(ctx context.Context) error {
			return c.store.InsertReboot(ctx, rb)
		}})
	}
	if rec.HasTemperature {
		sr := store.SensorRecord{
			DeviceID:       rec.DeviceID,
			UplinkSequence: rec.UplinkSequence,
			Kind:           store.SensorTemperature,
			Data:           map[string]any{"temperature": rec.Temperature},
		}
		ops = append(ops, operation{OpSensorInsert, func(ctx context.Context) error {
			return c.store.InsertSensorData(ctx, sr)
		}})
	}
	if len(rec.WifiScans) > 0 {
		scans := make([]map[string]any, 0, len(rec.WifiScans))
		for _, scan := range rec.WifiScans {
			scans = append(scans, map[string]any{
				"mac":  scan.MAC,
				"rssi": scan.RSSI,
			})
		}
		sr := store.SensorRecord{
			DeviceID:       rec.DeviceID,
			UplinkSequence: rec.UplinkSequence,
			Kind:           store.SensorLocation,
			Data:           map[string]any{"wifi_scans": scans},
		}
		ops = append(ops, operation{OpSensorInsert, func(ctx context.Context) error {
			return c.store.InsertSensorData(ctx, sr)
		}})
	}
	return ops
}

// run executes one operation with its own deadline and records the outcome.
func (c *Coordinator) run(ctx context.Context, deviceID string, op operation) OperationResult {
	opCtx, cancel := context.WithTimeout(ctx, c.opTimeout)
	defer cancel()

	started := time.Now()
	err := op.exec(opCtx)
	elapsed := time.Since(started)

	status := "success"
	if err != nil {
		status = "failure"
		c.logger.Warn("backend write failed",
			"kind", string(op.kind),
			"device_id", deviceID,
			"duration", elapsed,
			"error", err)
	}
	if c.metrics != nil {
		c.metrics.PersistOperations.WithLabelValues(string(op.kind), status).Inc()
		c.metrics.PersistDuration.WithLabelValues(string(op.kind)).Observe(elapsed.Seconds())
	}
	return OperationResult{Kind: op.kind, Err: err}
}

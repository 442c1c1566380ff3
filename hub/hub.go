// Package hub implements the process-wide live-subscriber registry: a
// device-keyed set of open push channels with best-effort broadcast.
//
// Each device's subscriber set is synchronized independently; the registry
// lock is held only for map lookups, never across deliveries. Every
// subscriber owns a bounded outbound queue drained by a dedicated write
// pump, which preserves FIFO ordering per connection while keeping Broadcast
// non-blocking for callers. A send failure, ping failure, or full queue
// removes exactly that subscriber; the rest keep receiving.
package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/c360/telemetrygate/event"
	"github.com/c360/telemetrygate/metric"
)

// Conn is the transport-level connection a subscriber listens on. The
// WebSocket adapter lives in gateway/http; tests use in-memory fakes.
type Conn interface {
	// WriteEvent pushes one event to the peer. Implementations apply their
	// own write deadline; a deadline overrun is a delivery failure.
	WriteEvent(ev event.LiveEvent) error
	// Ping probes transport liveness.
	Ping() error
	Close() error
}

// Subscription is the handle returned by Subscribe. Membership is owned
// exclusively by the hub: once the hub removes the subscription, the handle
// is inert and Unsubscribe becomes a no-op.
type Subscription struct {
	ID       string
	DeviceID string

	conn  Conn
	queue chan event.LiveEvent
	done  chan struct{}
	once  sync.Once
}

type deviceSet struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

// Options configures a Hub. The zero value gets usable defaults.
type Options struct {
	// QueueSize bounds each subscriber's outbound queue; a full queue counts
	// as a delivery failure and removes the subscriber.
	QueueSize int
	// PingInterval is the transport keepalive period.
	PingInterval time.Duration
	// Logger defaults to slog.Default.
	Logger *slog.Logger
	// Registry enables prometheus metrics when non-nil.
	Registry *metric.MetricsRegistry
}

// Hub is the device-to-subscribers registry.
type Hub struct {
	mu      sync.RWMutex
	devices map[string]*deviceSet

	queueSize    int
	pingInterval time.Duration
	logger       *slog.Logger
	metrics      *metric.Metrics

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   sync.Once
}

// New creates a hub ready for subscriptions.
func New(opts Options) *Hub {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	h := &Hub{
		devices:      make(map[string]*deviceSet),
		queueSize:    opts.QueueSize,
		pingInterval: opts.PingInterval,
		logger:       opts.Logger.With("component", "hub"),
		shutdown:     make(chan struct{}),
	}
	if opts.Registry != nil {
		h.metrics = opts.Registry.CoreMetrics()
	}
	return h
}

// Subscribe registers conn under deviceID and sends the system/connected
// acknowledgement synchronously before returning. If that initial send
// fails the connection is closed and no subscription is created.
func (h *Hub) Subscribe(deviceID string, conn Conn) (*Subscription, error) {
	sub := &Subscription{
		ID:       uuid.NewString(),
		DeviceID: deviceID,
		conn:     conn,
		queue:    make(chan event.LiveEvent, h.queueSize),
		done:     make(chan struct{}),
	}

	if err := conn.WriteEvent(event.Connected(deviceID, "gateway/ws", time.Now())); err != nil {
		_ = conn.Close()
		return nil, err
	}

	set := h.deviceSetFor(deviceID, true)
	set.mu.Lock()
	set.subs[sub] = struct{}{}
	count := len(set.subs)
	set.mu.Unlock()

	if h.metrics != nil {
		h.metrics.Subscribers.Inc()
	}
	h.logger.Info("subscriber connected",
		"device_id", deviceID, "subscription_id", sub.ID, "device_subscribers", count)

	h.wg.Add(1)
	go h.writePump(sub)

	return sub, nil
}

// Unsubscribe removes the subscription. Idempotent: safe to call multiple
// times and after the hub already dropped the connection.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil {
		return
	}
	h.remove(sub, "unsubscribe")
}

// Broadcast delivers ev to every current subscriber of deviceID. With no
// subscribers it returns immediately; it never blocks on a slow subscriber
// and never reports an error to the caller. Delivery is at-most-once per
// subscriber per call; successive broadcasts for one device reach each
// subscriber in call order.
func (h *Hub) Broadcast(deviceID string, ev event.LiveEvent) {
	set := h.deviceSetFor(deviceID, false)
	if set == nil {
		return
	}

	set.mu.RLock()
	subs := make([]*Subscription, 0, len(set.subs))
	for sub := range set.subs {
		subs = append(subs, sub)
	}
	set.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.queue <- ev:
			if h.metrics != nil {
				h.metrics.EventsDelivered.Inc()
			}
		default:
			// Queue full: the consumer is too slow to keep its live view
			// meaningful. Drop the subscriber, not the event stream.
			if h.metrics != nil {
				h.metrics.EventsDropped.WithLabelValues("queue_full").Inc()
			}
			h.logger.Warn("subscriber queue full, dropping subscriber",
				"device_id", deviceID, "subscription_id", sub.ID)
			h.remove(sub, "queue_full")
		}
	}
}

// Snapshot returns current subscriber counts per device, for the health
// endpoint. Devices with zero subscribers are omitted.
func (h *Hub) Snapshot() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	counts := make(map[string]int, len(h.devices))
	for deviceID, set := range h.devices {
		set.mu.RLock()
		if n := len(set.subs); n > 0 {
			counts[deviceID] = n
		}
		set.mu.RUnlock()
	}
	return counts
}

// Total returns the total subscriber count across all devices.
func (h *Hub) Total() int {
	total := 0
	for _, n := range h.Snapshot() {
		total += n
	}
	return total
}

// Close drops all subscribers and waits for their write pumps to exit.
func (h *Hub) Close() {
	h.closed.Do(func() {
		close(h.shutdown)

		h.mu.Lock()
		sets := make([]*deviceSet, 0, len(h.devices))
		for _, set := range h.devices {
			sets = append(sets, set)
		}
		h.mu.Unlock()

		for _, set := range sets {
			set.mu.Lock()
			subs := make([]*Subscription, 0, len(set.subs))
			for sub := range set.subs {
				subs = append(subs, sub)
			}
			set.mu.Unlock()
			for _, sub := range subs {
				h.remove(sub, "shutdown")
			}
		}

		h.wg.Wait()
	})
}

func (h *Hub) deviceSetFor(deviceID string, create bool) *deviceSet {
	h.mu.RLock()
	set, ok := h.devices[deviceID]
	h.mu.RUnlock()
	if ok || !create {
		return set
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok = h.devices[deviceID]; ok {
		return set
	}
	set = &deviceSet{subs: make(map[*Subscription]struct{})}
	h.devices[deviceID] = set
	return set
}

// remove detaches the subscription from the registry and tears the
// connection down, exactly once per subscription.
func (h *Hub) remove(sub *Subscription, reason string) {
	sub.once.Do(func() {
		close(sub.done)

		set := h.deviceSetFor(sub.DeviceID, false)
		removed := false
		if set != nil {
			set.mu.Lock()
			if _, ok := set.subs[sub]; ok {
				delete(set.subs, sub)
				removed = true
			}
			remaining := len(set.subs)
			set.mu.Unlock()

			h.logger.Info("subscriber removed",
				"device_id", sub.DeviceID, "subscription_id", sub.ID,
				"reason", reason, "remaining", remaining)
		}

		if removed && h.metrics != nil {
			h.metrics.Subscribers.Dec()
		}
		_ = sub.conn.Close()
	})
}

// writePump drains the subscriber's queue sequentially, preserving event
// order per connection, and runs the keepalive ping. Any failure removes the
// subscriber.
func (h *Hub) writePump(sub *Subscription) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case ev := <-sub.queue:
			if err := sub.conn.WriteEvent(ev); err != nil {
				h.logger.Warn("subscriber send failed",
					"device_id", sub.DeviceID, "subscription_id", sub.ID, "error", err)
				if h.metrics != nil {
					h.metrics.EventsDropped.WithLabelValues("send_failed").Inc()
				}
				h.remove(sub, "send_failed")
				return
			}
		case <-ticker.C:
			if err := sub.conn.Ping(); err != nil {
				h.remove(sub, "ping_failed")
				return
			}
		case <-sub.done:
			return
		case <-h.shutdown:
			return
		}
	}
}

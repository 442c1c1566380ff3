// Package event defines the outward-facing LiveEvent notification and its
// derivation from a decoded uplink record. JSON field names match the live
// channel contract consumed by existing dashboards (deviceId, details,
// uplink_count).
package event

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/c360/telemetrygate/wire"
)

// Type discriminates live events on the subscription channel.
type Type string

// Event types. The first six are derived from uplinks; system and pong are
// channel-control events emitted by the hub and the live endpoint.
const (
	TypeCoAP        Type = "coap"
	TypeHeartbeat   Type = "heartbeat"
	TypeActivity    Type = "activity"
	TypeReboot      Type = "reboot"
	TypeTemperature Type = "temperature"
	TypeLocation    Type = "location"
	TypeSystem      Type = "system"
	TypePong        Type = "pong"
)

// LiveEvent is one notification pushed to live subscribers of a device.
type LiveEvent struct {
	ID        string         `json:"id,omitempty"`
	Type      Type           `json:"type"`
	DeviceID  string         `json:"deviceId"`
	Timestamp string         `json:"timestamp"`
	Message   string         `json:"message,omitempty"`
	Raw       string         `json:"raw,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Timestamp returns the wall clock in the channel's ISO-8601 millisecond
// format, e.g. "2026-08-30T11:02:03.456Z".
func Timestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// FromRecord derives the live events for one decoded uplink: the base coap
// event first, then one event per present section in fixed order heartbeat,
// activity, reboot, temperature, location. raw is the undecoded payload,
// included hex-encoded on the base event. The record must carry a device ID;
// callers skip derivation entirely when it does not.
func FromRecord(rec *wire.UplinkRecord, raw []byte, now time.Time) []LiveEvent {
	ts := Timestamp(now)
	id := fmt.Sprintf("%s-%d-%d", rec.DeviceID, rec.UplinkSequence, now.UnixMilli())
	seq := rec.UplinkSequence

	events := make([]LiveEvent, 0, 6)
	events = append(events, LiveEvent{
		ID:        id,
		Type:      TypeCoAP,
		DeviceID:  rec.DeviceID,
		Timestamp: ts,
		Message:   fmt.Sprintf("Received uplink #%d", seq),
		Raw:       hex.EncodeToString(raw),
		Details: map[string]any{
			"uplink_count": seq,
			"bytes":        len(raw),
			"source":       "coap/uplink",
		},
	})

	if rec.HasConfig {
		events = append(events, LiveEvent{
			ID:        id,
			Type:      TypeHeartbeat,
			DeviceID:  rec.DeviceID,
			Timestamp: ts,
			Message:   "Heartbeat config received",
			Details: map[string]any{
				"heartbeat_interval": rec.Config.HeartbeatInterval,
				"iccid":              rec.Config.ICCID,
				"hw_version":         rec.Config.HWVersion,
				"sw_version":         rec.Config.SWVersion,
				"application_mode":   rec.Config.LocationMode.String(),
				"uplink_count":       seq,
			},
		})
	}

	if rec.HasActivity {
		events = append(events, LiveEvent{
			ID:        id,
			Type:      TypeActivity,
			DeviceID:  rec.DeviceID,
			Timestamp: ts,
			Message:   "Activity metrics received",
			Details: map[string]any{
				"sleep":        rec.Activity.Sleep,
				"modem":        rec.Activity.Modem,
				"gnss":         rec.Activity.GNSS,
				"wifi":         rec.Activity.WiFi,
				"other":        rec.Activity.Other,
				"uplink_count": seq,
			},
		})
	}

	if rec.HasReboot {
		events = append(events, LiveEvent{
			ID:        id,
			Type:      TypeReboot,
			DeviceID:  rec.DeviceID,
			Timestamp: ts,
			Message:   "Reboot info received",
			Details: map[string]any{
				"reason":       rec.Reboot.Reason.String(),
				"file":         rec.Reboot.File,
				"line":         rec.Reboot.Line,
				"uplink_count": seq,
			},
		})
	}

	if rec.HasTemperature {
		events = append(events, LiveEvent{
			ID:        id,
			Type:      TypeTemperature,
			DeviceID:  rec.DeviceID,
			Timestamp: ts,
			Message:   fmt.Sprintf("Temperature reading: %d°C", rec.Temperature),
			Details: map[string]any{
				"temperature":  rec.Temperature,
				"uplink_count": seq,
			},
		})
	}

	if len(rec.WifiScans) > 0 {
		events = append(events, LiveEvent{
			ID:        id,
			Type:      TypeLocation,
			DeviceID:  rec.DeviceID,
			Timestamp: ts,
			Message:   fmt.Sprintf("WiFi scan (%d APs)", len(rec.WifiScans)),
			Details: map[string]any{
				"wifi_scans":   rec.WifiScans,
				"uplink_count": seq,
			},
		})
	}

	return events
}

// Connected builds the system/connected acknowledgement sent synchronously
// on subscribe.
func Connected(deviceID, source string, now time.Time) LiveEvent {
	return LiveEvent{
		Type:      TypeSystem,
		DeviceID:  deviceID,
		Timestamp: Timestamp(now),
		Message:   "connected",
		Details:   map[string]any{"source": source},
	}
}

// Pong builds the reply to a client ping on the live channel.
func Pong(deviceID string, now time.Time) LiveEvent {
	return LiveEvent{
		Type:      TypePong,
		DeviceID:  deviceID,
		Timestamp: Timestamp(now),
	}
}

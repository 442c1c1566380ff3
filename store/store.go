// Package store defines the backend persistence capability the gateway
// writes telemetry to. The gateway only needs "send payload, get
// success/failure": one idempotent upsert keyed by device and three
// append-only inserts. Implementations live in subpackages (store/supabase).
package store

import "context"

// SensorKind discriminates rows in the sensor_data table.
type SensorKind string

// Sensor data kinds.
const (
	SensorTemperature SensorKind = "temperature"
	SensorLocation    SensorKind = "location"
)

// DeviceConfig is the configuration row upserted per device.
type DeviceConfig struct {
	DeviceID          string `json:"devid"`
	HeartbeatInterval uint32 `json:"heartbeat_interval,omitempty"`
	ICCID             string `json:"iccid,omitempty"`
	HWVersion         string `json:"hw_version,omitempty"`
	SWVersion         string `json:"sw_version,omitempty"`
	ApplicationMode   string `json:"application_mode,omitempty"`
}

// ActivityRecord is one duty-cycle sample.
type ActivityRecord struct {
	DeviceID       string `json:"devid"`
	UplinkSequence uint32 `json:"uplink_count"`
	Sleep          uint32 `json:"sleep"`
	Modem          uint32 `json:"modem"`
	GNSS           uint32 `json:"gnss"`
	WiFi           uint32 `json:"wifi"`
	Other          uint32 `json:"other"`
}

// RebootRecord is one reboot diagnostic entry.
type RebootRecord struct {
	DeviceID       string `json:"devid"`
	UplinkSequence uint32 `json:"uplink_count"`
	Reason         string `json:"reason,omitempty"`
	File           string `json:"file,omitempty"`
	Line           uint32 `json:"line"`
}

// SensorRecord is one generic sensor sample; Data carries the kind-specific
// payload (temperature scalar or wifi scan list).
type SensorRecord struct {
	DeviceID       string     `json:"devid"`
	UplinkSequence uint32     `json:"uplink_count"`
	Kind           SensorKind `json:"data_type"`
	Data           any        `json:"data"`
}

// Activation is one device activation code row, written by the offline
// label tool.
type Activation struct {
	DeviceID       string `json:"device_id"`
	ActivationCode string `json:"activation_code"`
	Claimed        bool   `json:"claimed"`
}

// Store is the backend write capability. The device configuration upsert is
// idempotent keyed by device ID; all other operations are pure appends.
// Every call is bounded by its context; failures classify as transient.
type Store interface {
	UpsertDeviceConfig(ctx context.Context, cfg DeviceConfig) error
	InsertActivity(ctx context.Context, rec ActivityRecord) error
	InsertReboot(ctx context.Context, rec RebootRecord) error
	InsertSensorData(ctx context.Context, rec SensorRecord) error
}

// ActivationStore is the extra capability the offline activation-code tool
// needs on top of Store.
type ActivationStore interface {
	// DeviceExists reports whether the device has a configuration row.
	DeviceExists(ctx context.Context, deviceID string) (bool, error)
	// ActivationCode returns the existing code for the device, or "" when
	// none has been issued yet.
	ActivationCode(ctx context.Context, deviceID string) (string, error)
	InsertActivation(ctx context.Context, act Activation) error
}

// Package wire implements the binary codec between device uplink payloads and
// structured records, and the construction of downlink configuration replies.
//
// The codec is pure and stateless: no I/O, no shared state, no suspension.
// Section presence (config, activity, reboot, temperature) is decoded from
// explicit submessage/field occurrence on the wire, never inferred from field
// values, so a section whose fields are all zero still counts as present.
package wire

import "fmt"

// LocationMode selects how a device resolves its position.
type LocationMode uint32

// Location mode values match the LocationMode enum in uplink.proto.
const (
	LocationNone LocationMode = 0
	LocationWiFi LocationMode = 1
	LocationGPS  LocationMode = 2
)

// String returns the wire enum label for the location mode.
func (m LocationMode) String() string {
	switch m {
	case LocationNone:
		return "NONE"
	case LocationWiFi:
		return "WIFI"
	case LocationGPS:
		return "GPS"
	default:
		return fmt.Sprintf("LOCATION_MODE(%d)", uint32(m))
	}
}

// Valid reports whether the mode is a defined enum value.
func (m LocationMode) Valid() bool {
	return m <= LocationGPS
}

// RebootReason identifies why a device last rebooted.
type RebootReason uint32

// Reboot reason values match the RebootReason enum in uplink.proto.
const (
	RebootUnknown   RebootReason = 0
	RebootPowerOn   RebootReason = 1
	RebootWatchdog  RebootReason = 2
	RebootSoftware  RebootReason = 3
	RebootHardReset RebootReason = 4
)

// String returns the wire enum label for the reboot reason.
func (r RebootReason) String() string {
	switch r {
	case RebootUnknown:
		return "UNKNOWN"
	case RebootPowerOn:
		return "POWER_ON"
	case RebootWatchdog:
		return "WATCHDOG"
	case RebootSoftware:
		return "SOFTWARE"
	case RebootHardReset:
		return "HARD_RESET"
	default:
		return fmt.Sprintf("REBOOT_REASON(%d)", uint32(r))
	}
}

// DeviceConfig is the configuration section of an uplink.
type DeviceConfig struct {
	DeviceID          string       `json:"dev_id,omitempty"`
	HeartbeatInterval uint32       `json:"heartbeat_interval"`
	ICCID             string       `json:"iccid,omitempty"`
	HWVersion         string       `json:"hw_version,omitempty"`
	SWVersion         string       `json:"sw_version,omitempty"`
	LocationMode      LocationMode `json:"-"`
}

// Activity carries duty-cycle counters, in seconds per modality.
type Activity struct {
	Sleep uint32 `json:"sleep"`
	Modem uint32 `json:"modem"`
	GNSS  uint32 `json:"gnss"`
	WiFi  uint32 `json:"wifi"`
	Other uint32 `json:"other"`
}

// Reboot carries last-reboot diagnostics.
type Reboot struct {
	Reason RebootReason `json:"-"`
	File   string       `json:"file,omitempty"`
	Line   uint32       `json:"line"`
}

// WifiScan is one observed access point from a location scan.
type WifiScan struct {
	// MAC is the colon-hex formatted address, e.g. "aa:bb:cc:dd:ee:ff".
	MAC  string `json:"mac"`
	RSSI int32  `json:"rssi"`
}

// UplinkRecord is the decoded form of one device transmission.
//
// The Has* booleans are the section presence markers: a section is present
// iff its submessage (or, for temperature, its field) occurred on the wire.
// Downstream fan-out and persistence key off these booleans, not off field
// values.
type UplinkRecord struct {
	// DeviceID is empty when the uplink carried no config section; downstream
	// broadcast and persistence are skipped in that case.
	DeviceID       string
	UplinkSequence uint32

	HasConfig bool
	Config    DeviceConfig

	HasActivity bool
	Activity    Activity

	HasReboot bool
	Reboot    Reboot

	HasTemperature bool
	Temperature    int32

	WifiScans []WifiScan
}

// HasSections reports whether any persistable section is present.
func (r *UplinkRecord) HasSections() bool {
	return r.HasConfig || r.HasActivity || r.HasReboot || r.HasTemperature || len(r.WifiScans) > 0
}

// DownlinkConfig holds the gateway policy values encoded into a downlink
// reply. Values are fixed gateway policy, never echoed from the device.
type DownlinkConfig struct {
	HeartbeatInterval uint32
	LocationMode      LocationMode
}

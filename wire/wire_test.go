package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/c360/telemetrygate/errors"
)

func fullRecord() *UplinkRecord {
	return &UplinkRecord{
		DeviceID:       "100042",
		UplinkSequence: 17,
		HasConfig:      true,
		Config: DeviceConfig{
			DeviceID:          "100042",
			HeartbeatInterval: 300,
			ICCID:             "8901234567890123456",
			HWVersion:         "v1.2",
			SWVersion:         "v2.0.1",
			LocationMode:      LocationWiFi,
		},
		HasActivity: true,
		Activity:    Activity{Sleep: 80, Modem: 10, GNSS: 5, WiFi: 3, Other: 2},
		HasReboot:   true,
		Reboot:      Reboot{Reason: RebootWatchdog, File: "main.c", Line: 214},
		HasTemperature: true,
		Temperature:    -7,
		WifiScans: []WifiScan{
			{MAC: "aa:bb:cc:dd:ee:ff", RSSI: -61},
			{MAC: "00:11:22:33:44:55", RSSI: -80},
		},
	}
}

func TestDecodeFullUplink(t *testing.T) {
	payload := EncodeUplink(fullRecord())

	rec, err := Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, "100042", rec.DeviceID)
	assert.Equal(t, uint32(17), rec.UplinkSequence)

	require.True(t, rec.HasConfig)
	assert.Equal(t, uint32(300), rec.Config.HeartbeatInterval)
	assert.Equal(t, "8901234567890123456", rec.Config.ICCID)
	assert.Equal(t, "v1.2", rec.Config.HWVersion)
	assert.Equal(t, "v2.0.1", rec.Config.SWVersion)
	assert.Equal(t, LocationWiFi, rec.Config.LocationMode)

	require.True(t, rec.HasActivity)
	assert.Equal(t, Activity{Sleep: 80, Modem: 10, GNSS: 5, WiFi: 3, Other: 2}, rec.Activity)

	require.True(t, rec.HasReboot)
	assert.Equal(t, RebootWatchdog, rec.Reboot.Reason)
	assert.Equal(t, "main.c", rec.Reboot.File)
	assert.Equal(t, uint32(214), rec.Reboot.Line)

	require.True(t, rec.HasTemperature)
	assert.Equal(t, int32(-7), rec.Temperature)

	require.Len(t, rec.WifiScans, 2)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", rec.WifiScans[0].MAC)
	assert.Equal(t, int32(-61), rec.WifiScans[0].RSSI)
	assert.Equal(t, int32(-80), rec.WifiScans[1].RSSI)
}

// A section whose fields are all zero must still decode as present: presence
// comes from the wire marker, not from value truthiness.
func TestDecodeAllZeroSectionIsPresent(t *testing.T) {
	rec := &UplinkRecord{
		UplinkSequence: 1,
		HasActivity:    true,
		Activity:       Activity{},
		HasTemperature: true,
		Temperature:    0,
	}
	payload := EncodeUplink(rec)

	got, err := Decode(payload)
	require.NoError(t, err)

	assert.True(t, got.HasActivity, "all-zero activity section must stay present")
	assert.Equal(t, Activity{}, got.Activity)
	assert.True(t, got.HasTemperature, "zero temperature must stay present")
	assert.Equal(t, int32(0), got.Temperature)
	assert.False(t, got.HasConfig)
	assert.False(t, got.HasReboot)
	assert.Empty(t, got.WifiScans)
}

func TestDecodeEmptyPayload(t *testing.T) {
	rec, err := Decode(nil)
	require.NoError(t, err)
	assert.Equal(t, "", rec.DeviceID)
	assert.False(t, rec.HasSections())
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"dangling tag":          {0x12},
		"truncated submessage":  {0x12, 0x05, 0x0a},
		"length beyond payload": {0x12, 0x7f, 0x01},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			rec, err := Decode(payload)
			require.Error(t, err)
			assert.Nil(t, rec, "decode must be all-or-nothing")
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDecodeSkipsUnknownFields(t *testing.T) {
	payload := EncodeUplink(&UplinkRecord{UplinkSequence: 9})
	// Field 15, varint type: unknown to this schema version.
	payload = protowire.AppendTag(payload, 15, protowire.VarintType)
	payload = protowire.AppendVarint(payload, 1234)

	rec, err := Decode(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(9), rec.UplinkSequence)
}

func TestEncodeDownlinkRoundTrip(t *testing.T) {
	payload, err := EncodeDownlink(DownlinkConfig{HeartbeatInterval: 720, LocationMode: LocationWiFi})
	require.NoError(t, err)
	require.NotEmpty(t, payload)

	cfg, err := DecodeDownlink(payload)
	require.NoError(t, err)
	assert.Equal(t, uint32(720), cfg.HeartbeatInterval)
	assert.Equal(t, LocationWiFi, cfg.LocationMode)
}

func TestEncodeDownlinkRejectsOutOfRange(t *testing.T) {
	_, err := EncodeDownlink(DownlinkConfig{HeartbeatInterval: 1, LocationMode: LocationWiFi})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = EncodeDownlink(DownlinkConfig{HeartbeatInterval: 720, LocationMode: LocationMode(9)})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestFormatMAC(t *testing.T) {
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", FormatMAC([]byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}))
	assert.Equal(t, "00:01:02:03:04:05", FormatMAC([]byte{0, 1, 2, 3, 4, 5}))
	assert.Equal(t, "", FormatMAC(nil))
	assert.Equal(t, "7f", FormatMAC([]byte{0x7f}))
}

func TestLocationModeStrings(t *testing.T) {
	assert.Equal(t, "NONE", LocationNone.String())
	assert.Equal(t, "WIFI", LocationWiFi.String())
	assert.Equal(t, "GPS", LocationGPS.String())
	assert.Equal(t, "WATCHDOG", RebootWatchdog.String())
	assert.Equal(t, "HARD_RESET", RebootHardReset.String())
}

package wire

import (
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/c360/telemetrygate/errors"
)

// Field numbers from uplink.proto.
const (
	uplinkFieldCount     = 1
	uplinkFieldHeartbeat = 2
	uplinkFieldLocation  = 3

	heartbeatFieldConfig      = 1
	heartbeatFieldActivity    = 2
	heartbeatFieldReboot      = 3
	heartbeatFieldTemperature = 4

	configFieldDeviceID          = 1
	configFieldHeartbeatInterval = 2
	configFieldICCID             = 3
	configFieldHWVersion         = 4
	configFieldSWVersion         = 5
	configFieldLocationMode      = 6

	activityFieldSleep = 1
	activityFieldModem = 2
	activityFieldGNSS  = 3
	activityFieldWiFi  = 4
	activityFieldOther = 5

	rebootFieldReason = 1
	rebootFieldFile   = 2
	rebootFieldLine   = 3

	locationFieldWifi = 1

	wifiFieldMAC  = 1
	wifiFieldRSSI = 2
)

// Decode parses a binary uplink payload into an UplinkRecord.
//
// Decoding is all-or-nothing: on any wire-level error the returned record is
// nil and the error classifies as invalid. Unknown fields are skipped for
// forward compatibility with newer device firmware.
func Decode(data []byte) (*UplinkRecord, error) {
	rec := &UplinkRecord{}
	if err := decodeUplink(data, rec); err != nil {
		return nil, errors.WrapInvalid(err, "wire", "Decode", "parse uplink")
	}
	return rec, nil
}

func decodeUplink(data []byte, rec *UplinkRecord) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.ErrTruncated
		}
		data = data[n:]

		switch {
		case num == uplinkFieldCount && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			rec.UplinkSequence = uint32(v)
			data = data[n:]
		case num == uplinkFieldHeartbeat && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			if err := decodeHeartbeat(sub, rec); err != nil {
				return err
			}
			data = data[n:]
		case num == uplinkFieldLocation && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			if err := decodeLocation(sub, rec); err != nil {
				return err
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.ErrTruncated
			}
			data = data[n:]
		}
	}
	return nil
}

func decodeHeartbeat(data []byte, rec *UplinkRecord) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.ErrTruncated
		}
		data = data[n:]

		switch {
		case num == heartbeatFieldConfig && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			cfg, err := decodeConfig(sub)
			if err != nil {
				return err
			}
			rec.HasConfig = true
			rec.Config = cfg
			rec.DeviceID = cfg.DeviceID
			data = data[n:]
		case num == heartbeatFieldActivity && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			act, err := decodeActivity(sub)
			if err != nil {
				return err
			}
			rec.HasActivity = true
			rec.Activity = act
			data = data[n:]
		case num == heartbeatFieldReboot && typ == protowire.BytesType:
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			rb, err := decodeReboot(sub)
			if err != nil {
				return err
			}
			rec.HasReboot = true
			rec.Reboot = rb
			data = data[n:]
		case num == heartbeatFieldTemperature && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			rec.HasTemperature = true
			rec.Temperature = int32(protowire.DecodeZigZag(v))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return errors.ErrTruncated
			}
			data = data[n:]
		}
	}
	return nil
}

func decodeConfig(data []byte) (DeviceConfig, error) {
	var cfg DeviceConfig
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return cfg, errors.ErrTruncated
		}
		data = data[n:]

		switch {
		case num == configFieldDeviceID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return cfg, errors.ErrTruncated
			}
			cfg.DeviceID = s
			data = data[n:]
		case num == configFieldHeartbeatInterval && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return cfg, errors.ErrTruncated
			}
			cfg.HeartbeatInterval = uint32(v)
			data = data[n:]
		case num == configFieldICCID && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return cfg, errors.ErrTruncated
			}
			cfg.ICCID = s
			data = data[n:]
		case num == configFieldHWVersion && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return cfg, errors.ErrTruncated
			}
			cfg.HWVersion = s
			data = data[n:]
		case num == configFieldSWVersion && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return cfg, errors.ErrTruncated
			}
			cfg.SWVersion = s
			data = data[n:]
		case num == configFieldLocationMode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return cfg, errors.ErrTruncated
			}
			cfg.LocationMode = LocationMode(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return cfg, errors.ErrTruncated
			}
			data = data[n:]
		}
	}
	return cfg, nil
}

func decodeActivity(data []byte) (Activity, error) {
	var act Activity
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return act, errors.ErrTruncated
		}
		data = data[n:]

		if typ != protowire.VarintType {
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return act, errors.ErrTruncated
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeVarint(data)
		if n < 0 {
			return act, errors.ErrTruncated
		}
		data = data[n:]

		switch num {
		case activityFieldSleep:
			act.Sleep = uint32(v)
		case activityFieldModem:
			act.Modem = uint32(v)
		case activityFieldGNSS:
			act.GNSS = uint32(v)
		case activityFieldWiFi:
			act.WiFi = uint32(v)
		case activityFieldOther:
			act.Other = uint32(v)
		}
	}
	return act, nil
}

func decodeReboot(data []byte) (Reboot, error) {
	var rb Reboot
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return rb, errors.ErrTruncated
		}
		data = data[n:]

		switch {
		case num == rebootFieldReason && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return rb, errors.ErrTruncated
			}
			rb.Reason = RebootReason(v)
			data = data[n:]
		case num == rebootFieldFile && typ == protowire.BytesType:
			s, n := protowire.ConsumeString(data)
			if n < 0 {
				return rb, errors.ErrTruncated
			}
			rb.File = s
			data = data[n:]
		case num == rebootFieldLine && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return rb, errors.ErrTruncated
			}
			rb.Line = uint32(v)
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return rb, errors.ErrTruncated
			}
			data = data[n:]
		}
	}
	return rb, nil
}

func decodeLocation(data []byte, rec *UplinkRecord) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.ErrTruncated
		}
		data = data[n:]

		if num == locationFieldWifi && typ == protowire.BytesType {
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			scan, err := decodeWifiScan(sub)
			if err != nil {
				return err
			}
			rec.WifiScans = append(rec.WifiScans, scan)
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return errors.ErrTruncated
		}
		data = data[n:]
	}
	return nil
}

func decodeWifiScan(data []byte) (WifiScan, error) {
	var scan WifiScan
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return scan, errors.ErrTruncated
		}
		data = data[n:]

		switch {
		case num == wifiFieldMAC && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return scan, errors.ErrTruncated
			}
			scan.MAC = FormatMAC(b)
			data = data[n:]
		case num == wifiFieldRSSI && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return scan, errors.ErrTruncated
			}
			scan.RSSI = int32(protowire.DecodeZigZag(v))
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return scan, errors.ErrTruncated
			}
			data = data[n:]
		}
	}
	return scan, nil
}

// EncodeUplink serializes a record back to the uplink wire format. The
// gateway itself never sends uplinks; this exists for tests, simulators and
// the device firmware contract. Sections are emitted iff their presence
// marker is set, so an all-zero section survives a round trip.
func EncodeUplink(rec *UplinkRecord) []byte {
	var b []byte
	b = protowire.AppendTag(b, uplinkFieldCount, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rec.UplinkSequence))

	if rec.HasConfig || rec.HasActivity || rec.HasReboot || rec.HasTemperature {
		hb := encodeHeartbeat(rec)
		b = protowire.AppendTag(b, uplinkFieldHeartbeat, protowire.BytesType)
		b = protowire.AppendBytes(b, hb)
	}

	if len(rec.WifiScans) > 0 {
		loc := encodeLocation(rec.WifiScans)
		b = protowire.AppendTag(b, uplinkFieldLocation, protowire.BytesType)
		b = protowire.AppendBytes(b, loc)
	}
	return b
}

func encodeHeartbeat(rec *UplinkRecord) []byte {
	var b []byte
	if rec.HasConfig {
		cfg := encodeConfig(rec.Config)
		b = protowire.AppendTag(b, heartbeatFieldConfig, protowire.BytesType)
		b = protowire.AppendBytes(b, cfg)
	}
	if rec.HasActivity {
		act := encodeActivity(rec.Activity)
		b = protowire.AppendTag(b, heartbeatFieldActivity, protowire.BytesType)
		b = protowire.AppendBytes(b, act)
	}
	if rec.HasReboot {
		rb := encodeReboot(rec.Reboot)
		b = protowire.AppendTag(b, heartbeatFieldReboot, protowire.BytesType)
		b = protowire.AppendBytes(b, rb)
	}
	if rec.HasTemperature {
		b = protowire.AppendTag(b, heartbeatFieldTemperature, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(rec.Temperature)))
	}
	return b
}

func encodeConfig(cfg DeviceConfig) []byte {
	var b []byte
	b = protowire.AppendTag(b, configFieldDeviceID, protowire.BytesType)
	b = protowire.AppendString(b, cfg.DeviceID)
	b = protowire.AppendTag(b, configFieldHeartbeatInterval, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cfg.HeartbeatInterval))
	b = protowire.AppendTag(b, configFieldICCID, protowire.BytesType)
	b = protowire.AppendString(b, cfg.ICCID)
	b = protowire.AppendTag(b, configFieldHWVersion, protowire.BytesType)
	b = protowire.AppendString(b, cfg.HWVersion)
	b = protowire.AppendTag(b, configFieldSWVersion, protowire.BytesType)
	b = protowire.AppendString(b, cfg.SWVersion)
	b = protowire.AppendTag(b, configFieldLocationMode, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cfg.LocationMode))
	return b
}

func encodeActivity(act Activity) []byte {
	var b []byte
	b = protowire.AppendTag(b, activityFieldSleep, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(act.Sleep))
	b = protowire.AppendTag(b, activityFieldModem, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(act.Modem))
	b = protowire.AppendTag(b, activityFieldGNSS, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(act.GNSS))
	b = protowire.AppendTag(b, activityFieldWiFi, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(act.WiFi))
	b = protowire.AppendTag(b, activityFieldOther, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(act.Other))
	return b
}

func encodeReboot(rb Reboot) []byte {
	var b []byte
	b = protowire.AppendTag(b, rebootFieldReason, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rb.Reason))
	b = protowire.AppendTag(b, rebootFieldFile, protowire.BytesType)
	b = protowire.AppendString(b, rb.File)
	b = protowire.AppendTag(b, rebootFieldLine, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rb.Line))
	return b
}

func encodeLocation(scans []WifiScan) []byte {
	var b []byte
	for _, scan := range scans {
		entry := encodeWifiScan(scan)
		b = protowire.AppendTag(b, locationFieldWifi, protowire.BytesType)
		b = protowire.AppendBytes(b, entry)
	}
	return b
}

func encodeWifiScan(scan WifiScan) []byte {
	var b []byte
	b = protowire.AppendTag(b, wifiFieldMAC, protowire.BytesType)
	b = protowire.AppendBytes(b, macBytes(scan.MAC))
	b = protowire.AppendTag(b, wifiFieldRSSI, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(scan.RSSI)))
	return b
}

// macBytes reverses FormatMAC for the encoder; undecodable input yields an
// empty address rather than a panic since the encoder is test/tooling only.
func macBytes(mac string) []byte {
	var out []byte
	var v byte
	nibbles := 0
	for i := 0; i < len(mac); i++ {
		c := mac[i]
		if c == ':' {
			continue
		}
		var d byte
		switch {
		case c >= '0' && c <= '9':
			d = c - '0'
		case c >= 'a' && c <= 'f':
			d = c - 'a' + 10
		case c >= 'A' && c <= 'F':
			d = c - 'A' + 10
		default:
			return nil
		}
		v = v<<4 | d
		nibbles++
		if nibbles%2 == 0 {
			out = append(out, v)
			v = 0
		}
	}
	if nibbles%2 != 0 {
		return nil
	}
	return out
}

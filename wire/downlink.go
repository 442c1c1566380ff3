package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/c360/telemetrygate/errors"
)

// Field numbers from downlink.proto.
const (
	downlinkFieldConfig = 1

	downlinkConfigFieldHeartbeatInterval = 1
	downlinkConfigFieldLocationMode      = 2
)

// Downlink heartbeat intervals outside this range are treated as encode
// errors; the lower bound keeps devices from burning their battery on a
// misconfigured policy, the upper bound is one week.
const (
	minHeartbeatInterval = 30
	maxHeartbeatInterval = 7 * 24 * 3600
)

// EncodeDownlink builds the binary downlink reply carrying the gateway's
// target configuration. It fails with an invalid-classified error when the
// configuration is out of range; with fixed policy values that is a
// programming-invariant violation, not a runtime condition.
func EncodeDownlink(cfg DownlinkConfig) ([]byte, error) {
	if cfg.HeartbeatInterval < minHeartbeatInterval || cfg.HeartbeatInterval > maxHeartbeatInterval {
		return nil, errors.WrapInvalid(errors.ErrValueOutOfRange, "wire", "EncodeDownlink",
			fmt.Sprintf("heartbeat interval %d outside [%d, %d]",
				cfg.HeartbeatInterval, minHeartbeatInterval, maxHeartbeatInterval))
	}
	if !cfg.LocationMode.Valid() {
		return nil, errors.WrapInvalid(errors.ErrValueOutOfRange, "wire", "EncodeDownlink",
			fmt.Sprintf("location mode %d undefined", uint32(cfg.LocationMode)))
	}

	var inner []byte
	inner = protowire.AppendTag(inner, downlinkConfigFieldHeartbeatInterval, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(cfg.HeartbeatInterval))
	inner = protowire.AppendTag(inner, downlinkConfigFieldLocationMode, protowire.VarintType)
	inner = protowire.AppendVarint(inner, uint64(cfg.LocationMode))

	var b []byte
	b = protowire.AppendTag(b, downlinkFieldConfig, protowire.BytesType)
	b = protowire.AppendBytes(b, inner)
	return b, nil
}

// DecodeDownlink parses a downlink payload. The gateway only encodes
// downlinks; decoding exists for tests and device-side tooling.
func DecodeDownlink(data []byte) (DownlinkConfig, error) {
	var cfg DownlinkConfig
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return cfg, errors.WrapInvalid(errors.ErrTruncated, "wire", "DecodeDownlink", "parse downlink")
		}
		data = data[n:]

		if num == downlinkFieldConfig && typ == protowire.BytesType {
			sub, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return cfg, errors.WrapInvalid(errors.ErrTruncated, "wire", "DecodeDownlink", "parse downlink config")
			}
			if err := decodeDownlinkConfig(sub, &cfg); err != nil {
				return cfg, errors.WrapInvalid(err, "wire", "DecodeDownlink", "parse downlink config")
			}
			data = data[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, data)
		if n < 0 {
			return cfg, errors.WrapInvalid(errors.ErrTruncated, "wire", "DecodeDownlink", "parse downlink")
		}
		data = data[n:]
	}
	return cfg, nil
}

func decodeDownlinkConfig(data []byte, cfg *DownlinkConfig) error {
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return errors.ErrTruncated
		}
		data = data[n:]

		switch {
		case num == downlinkConfigFieldHeartbeatInterval && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			cfg.HeartbeatInterval = uint32(v)
			data = data[n:]
		case num == downlinkConfigFieldLocationMode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return errors.ErrTruncated
			}
			cfg.LocationMode = LocationMode(v)
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

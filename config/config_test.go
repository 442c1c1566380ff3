package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrygate/wire"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":5683", cfg.Intake.Addr)
	assert.Equal(t, ":8080", cfg.Live.Addr)
	assert.Equal(t, 64, cfg.Live.QueueSize)
	assert.Equal(t, 30*time.Second, cfg.PingInterval())
	assert.Equal(t, 10*time.Second, cfg.OpTimeout())
	assert.Equal(t, "telemetry", cfg.NATS.SubjectPrefix)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)

	policy, err := cfg.DownlinkPolicy()
	require.NoError(t, err)
	assert.Equal(t, uint32(720), policy.HeartbeatInterval)
	assert.Equal(t, wire.LocationWiFi, policy.LocationMode)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `{
		"intake": {"addr": ":15683"},
		"live": {"addr": ":18080", "token": "secret", "queue_size": 128},
		"store": {"url": "https://xyz.supabase.co", "key": "service-key", "op_timeout_seconds": 5},
		"downlink": {"heartbeat_interval_seconds": 3600, "location_mode": "GPS"},
		"logging": {"level": "debug", "format": "text"}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":15683", cfg.Intake.Addr)
	assert.Equal(t, "secret", cfg.Live.Token)
	assert.Equal(t, 128, cfg.Live.QueueSize)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout())

	policy, err := cfg.DownlinkPolicy()
	require.NoError(t, err)
	assert.Equal(t, uint32(3600), policy.HeartbeatInterval)
	assert.Equal(t, wire.LocationGPS, policy.LocationMode)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SUPABASE_URL", "https://env.supabase.co")
	t.Setenv("SUPABASE_KEY", "env-key")
	t.Setenv("WS_TOKEN", "env-token")
	t.Setenv("NATS_URL", "nats://localhost:4222")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "https://env.supabase.co", cfg.Store.URL)
	assert.Equal(t, "env-key", cfg.Store.Key)
	assert.Equal(t, "env-token", cfg.Live.Token)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
}

func TestValidateRejectsPartialStore(t *testing.T) {
	path := writeConfig(t, `{"store": {"url": "https://xyz.supabase.co"}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store url and key")
}

func TestValidateRejectsUnencodableHeartbeat(t *testing.T) {
	path := writeConfig(t, `{"downlink": {"heartbeat_interval_seconds": 10}}`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "heartbeat interval")

	path = writeConfig(t, `{"downlink": {"heartbeat_interval_seconds": 604801}}`)
	_, err = Load(path)
	require.Error(t, err)
}

func TestValidateRejectsUnknownLocationMode(t *testing.T) {
	path := writeConfig(t, `{"downlink": {"location_mode": "BLUETOOTH"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	path := writeConfig(t, `{"logging": {"level": "verbose"}}`)
	_, err := Load(path)
	require.Error(t, err)
}

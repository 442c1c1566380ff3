package persist

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telemetrygate/errors"
	"github.com/c360/telemetrygate/store"
	"github.com/c360/telemetrygate/wire"
)

// fakeStore records call order and start times and lets individual
// operations fail or block.
type fakeStore struct {
	mu      sync.Mutex
	calls   []string
	starts  map[string]time.Time
	sensors []store.SensorRecord

	failConfig   bool
	failActivity bool
	failSensor   bool
	configDelay  time.Duration

	configDone time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{starts: make(map[string]time.Time)}
}

func (f *fakeStore) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	f.starts[name] = time.Now()
}

func (f *fakeStore) callList() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeStore) UpsertDeviceConfig(ctx context.Context, cfg store.DeviceConfig) error {
	f.record("config:" + cfg.DeviceID)
	if f.configDelay > 0 {
		time.Sleep(f.configDelay)
	}
	f.mu.Lock()
	f.configDone = time.Now()
	f.mu.Unlock()
	if f.failConfig {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "fake", "UpsertDeviceConfig", "write device_config")
	}
	return nil
}

func (f *fakeStore) InsertActivity(ctx context.Context, rec store.ActivityRecord) error {
	f.record("activity")
	if f.failActivity {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "fake", "InsertActivity", "write activity")
	}
	return nil
}

func (f *fakeStore) InsertReboot(ctx context.Context, rec store.RebootRecord) error {
	f.record("reboot")
	return nil
}

func (f *fakeStore) InsertSensorData(ctx context.Context, rec store.SensorRecord) error {
	f.record("sensor:" + string(rec.Kind))
	f.mu.Lock()
	f.sensors = append(f.sensors, rec)
	f.mu.Unlock()
	if f.failSensor {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "fake", "InsertSensorData", "write sensor_data")
	}
	return nil
}

func fullRecord() *wire.UplinkRecord {
	return &wire.UplinkRecord{
		DeviceID:       "A1B2C3",
		UplinkSequence: 9,
		HasConfig:      true,
		Config: wire.DeviceConfig{
			DeviceID:          "A1B2C3",
			HeartbeatInterval: 720,
			LocationMode:      wire.LocationWiFi,
		},
		HasActivity:    true,
		Activity:       wire.Activity{Sleep: 500, Modem: 30},
		HasReboot:      true,
		Reboot:         wire.Reboot{Reason: wire.RebootWatchdog, File: "main.c", Line: 42},
		HasTemperature: true,
		Temperature:    -7,
		WifiScans: []wire.WifiScan{
			{MAC: "aa:bb:cc:dd:ee:ff", RSSI: -61},
		},
	}
}

func TestPersistRunsEveryDerivedOperation(t *testing.T) {
	fake := newFakeStore()
	coord := New(fake, Options{})

	result := coord.Persist(context.Background(), fullRecord())

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 5, result.Succeeded)
	require.Len(t, result.Operations, 5)

	kinds := make(map[OperationKind]int)
	for _, op := range result.Operations {
		require.NoError(t, op.Err)
		kinds[op.Kind]++
	}
	assert.Equal(t, 1, kinds[OpConfigUpsert])
	assert.Equal(t, 1, kinds[OpActivityInsert])
	assert.Equal(t, 1, kinds[OpRebootInsert])
	assert.Equal(t, 2, kinds[OpSensorInsert])
}

func TestConfigUpsertCompletesBeforeOtherWrites(t *testing.T) {
	fake := newFakeStore()
	fake.configDelay = 30 * time.Millisecond
	coord := New(fake, Options{})

	coord.Persist(context.Background(), fullRecord())

	calls := fake.callList()
	require.Len(t, calls, 5)
	assert.Equal(t, "config:A1B2C3", calls[0])

	// The delayed upsert must have finished before any other write started.
	fake.mu.Lock()
	configDone := fake.configDone
	starts := fake.starts
	fake.mu.Unlock()
	require.False(t, configDone.IsZero())
	for name, started := range starts {
		if name == "config:A1B2C3" {
			continue
		}
		assert.False(t, started.Before(configDone), "%s dispatched before config upsert completed", name)
	}
}

func TestFailedSensorInsertDoesNotAbortBatch(t *testing.T) {
	fake := newFakeStore()
	fake.failSensor = true
	coord := New(fake, Options{})

	result := coord.Persist(context.Background(), fullRecord())

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 3, result.Succeeded)

	for _, op := range result.Operations {
		if op.Err != nil {
			assert.Equal(t, OpSensorInsert, op.Kind)
			assert.True(t, errors.IsTransient(op.Err))
		}
	}
}

func TestFailedActivityInsertIsIsolated(t *testing.T) {
	fake := newFakeStore()
	fake.failActivity = true
	coord := New(fake, Options{})

	result := coord.Persist(context.Background(), fullRecord())

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 4, result.Succeeded)

	var failed []OperationKind
	for _, op := range result.Operations {
		if op.Err != nil {
			failed = append(failed, op.Kind)
		}
	}
	assert.Equal(t, []OperationKind{OpActivityInsert}, failed)
}

func TestConfigFailureStillRunsRemainingWrites(t *testing.T) {
	fake := newFakeStore()
	fake.failConfig = true
	coord := New(fake, Options{})

	result := coord.Persist(context.Background(), fullRecord())

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 4, result.Succeeded)
	assert.Error(t, result.Operations[0].Err)
	assert.Equal(t, OpConfigUpsert, result.Operations[0].Kind)
}

func TestPersistActivityAndLocationOnly(t *testing.T) {
	fake := newFakeStore()
	coord := New(fake, Options{})

	rec := &wire.UplinkRecord{
		DeviceID:       "A1B2C3",
		UplinkSequence: 3,
		HasActivity:    true,
		Activity:       wire.Activity{Sleep: 10},
		WifiScans: []wire.WifiScan{
			{MAC: "aa:bb:cc:dd:ee:ff", RSSI: -70},
		},
	}
	result := coord.Persist(context.Background(), rec)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	for _, call := range fake.callList() {
		assert.NotContains(t, call, "config")
	}
}

func TestSensorDataPayloadKeys(t *testing.T) {
	fake := newFakeStore()
	coord := New(fake, Options{})

	coord.Persist(context.Background(), fullRecord())

	fake.mu.Lock()
	sensors := append([]store.SensorRecord(nil), fake.sensors...)
	fake.mu.Unlock()
	require.Len(t, sensors, 2)

	// Keys are part of the backend schema; queries over sensor_data.data
	// depend on them.
	for _, rec := range sensors {
		data, ok := rec.Data.(map[string]any)
		require.True(t, ok)
		switch rec.Kind {
		case store.SensorTemperature:
			assert.Equal(t, int32(-7), data["temperature"])
		case store.SensorLocation:
			scans, ok := data["wifi_scans"].([]map[string]any)
			require.True(t, ok)
			require.Len(t, scans, 1)
			assert.Equal(t, "aa:bb:cc:dd:ee:ff", scans[0]["mac"])
		default:
			t.Fatalf("unexpected sensor kind %q", rec.Kind)
		}
	}
}

func TestPersistEmptyRecord(t *testing.T) {
	fake := newFakeStore()
	coord := New(fake, Options{})

	result := coord.Persist(context.Background(), &wire.UplinkRecord{DeviceID: "A1B2C3", UplinkSequence: 1})

	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, result.Succeeded)
	assert.Empty(t, result.Operations)
	assert.Empty(t, fake.callList())
}

func TestPersistSkipsAnonymousRecord(t *testing.T) {
	fake := newFakeStore()
	coord := New(fake, Options{})

	rec := &wire.UplinkRecord{HasActivity: true, Activity: wire.Activity{Sleep: 5}}
	result := coord.Persist(context.Background(), rec)

	assert.Equal(t, 0, result.Total)
	assert.Empty(t, fake.callList())
}

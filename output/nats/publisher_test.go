package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/c360/telemetrygate/event"
)

func TestNilPublisherIsSafe(t *testing.T) {
	var p *Publisher
	assert.NotPanics(t, func() {
		p.Publish(event.LiveEvent{DeviceID: "A1B2C3", Type: event.TypeHeartbeat})
		p.PublishAll([]event.LiveEvent{{DeviceID: "A1B2C3"}})
	})
}

func TestDisconnectedPublisherIsSafe(t *testing.T) {
	p := New(nil, Options{})
	assert.NotPanics(t, func() {
		p.Publish(event.LiveEvent{DeviceID: "A1B2C3", Type: event.TypeHeartbeat})
	})
}

func TestNewDefaults(t *testing.T) {
	p := New(nil, Options{})
	assert.Equal(t, DefaultSubjectPrefix, p.prefix)

	p = New(nil, Options{SubjectPrefix: "custom"})
	assert.Equal(t, "custom", p.prefix)
}

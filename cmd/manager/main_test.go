package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/everest-core/manager/internal/bus"
	"github.com/everest-core/manager/internal/settings"
)

func TestToSetBuildsMembershipMap(t *testing.T) {
	set := toSet([]string{"pm_1", "evse_1"})
	assert.True(t, set["pm_1"])
	assert.True(t, set["evse_1"])
	assert.False(t, set["missing"])
}

func TestToSetEmptyInput(t *testing.T) {
	set := toSet(nil)
	assert.Empty(t, set)
}

func TestNewBusPrefersHostOverSocket(t *testing.T) {
	s := &settings.Settings{Bus: settings.BusEndpoint{Host: "127.0.0.1", Port: 4222, SocketPath: "/var/run/mqtt.sock"}}
	b := newBus(s)
	_, isNATS := b.(*bus.NATS)
	assert.True(t, isNATS)
}

func TestNewBusFallsBackToMemoryWithoutEndpoint(t *testing.T) {
	s := &settings.Settings{}
	b := newBus(s)
	_, isMemory := b.(*bus.Memory)
	assert.True(t, isMemory)
}

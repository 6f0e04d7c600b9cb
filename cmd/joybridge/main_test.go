package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBridgeCmdToSettingsParsesEmulatedMAC(t *testing.T) {
	b := &BridgeCmd{EmulatedMAC: "0a:0b:0c:0d:0e:0f"}
	s := b.toSettings()
	assert.Equal(t, [6]byte{0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f}, s.EmulatedMAC)
}

func TestBridgeCmdToSettingsFallsBackOnInvalidMAC(t *testing.T) {
	b := &BridgeCmd{EmulatedMAC: "not-a-mac"}
	s := b.toSettings()
	assert.Equal(t, [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01}, s.EmulatedMAC)
}

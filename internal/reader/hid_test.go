package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeRawTripletLittleEndian(t *testing.T) {
	b := []byte{
		0x01, 0x00, // AccelX = 1
		0xff, 0xff, // AccelY = -1
		0x00, 0x01, // AccelZ = 256
		0x02, 0x00, // GyroX = 2
		0xfe, 0xff, // GyroY = -2
		0x00, 0x02, // GyroZ = 512
	}
	got := decodeRawTriplet(b)
	assert.Equal(t, rawTriplet{
		AccelX: 1, AccelY: -1, AccelZ: 256,
		GyroX: 2, GyroY: -2, GyroZ: 512,
	}, got)
}

func TestParseSensorCalBlobRejectsShortInput(t *testing.T) {
	_, ok := parseSensorCalBlob(make([]byte, 10))
	assert.False(t, ok)
}

func TestParseSensorCalBlobDecodesOffsets(t *testing.T) {
	b := make([]byte, 24)
	b[0], b[1] = 0x10, 0x00 // AccelOffset[0] = 16
	b[12], b[13] = 0x20, 0x00 // GyroOffset[0] = 32

	cal, ok := parseSensorCalBlob(b)
	assert.True(t, ok)
	assert.Equal(t, int16(16), cal.AccelOffset[0])
	assert.Equal(t, int16(32), cal.GyroOffset[0])
}

func TestDecodeBatteryThresholds(t *testing.T) {
	assert.Equal(t, BatteryEmpty, decodeBattery(0x00))
	assert.Equal(t, BatteryCritical, decodeBattery(0x10))
	assert.Equal(t, BatteryLow, decodeBattery(0x20))
	assert.Equal(t, BatteryMedium, decodeBattery(0x30))
	assert.Equal(t, BatteryFull, decodeBattery(0x40))
	assert.Equal(t, BatteryFull, decodeBattery(0xf0))
}

func TestDesignForProduct(t *testing.T) {
	tests := []struct {
		product uint16
		want    Design
	}{
		{ProductJoyConL, DesignLeft},
		{ProductJoyConR, DesignRight},
		{ProductProCon, DesignPro},
		{ProductChargeGr, DesignPro},
	}
	for _, tt := range tests {
		got, ok := designForProduct(tt.product)
		assert.True(t, ok)
		assert.Equal(t, tt.want, got)
	}

	_, ok := designForProduct(0xdead)
	assert.False(t, ok)
}

func TestSubcommandLayout(t *testing.T) {
	out := subcommand(subEnableIMU, []byte{0x01})

	assert.Equal(t, outputRumbleSubcommand, out[0])
	assert.Equal(t, byte(0x00), out[1])
	assert.Len(t, out, 11+1)
	assert.Equal(t, subEnableIMU, out[10])
	assert.Equal(t, byte(0x01), out[11])
}

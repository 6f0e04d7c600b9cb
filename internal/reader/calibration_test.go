package reader

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToSampleAppliesOffsetAndScale(t *testing.T) {
	cal := calibration{AccelOffset: [3]int16{10, 0, 0}}
	raw := rawTriplet{AccelX: 10, AccelY: 1000, AccelZ: 0}
	s := toSample(raw, cal, DesignLeft, 1.0)
	assert.InDelta(t, 0.0, s.AccelX, 1e-9)
	// 1000 LSB * 16000/65535/1000 g per LSB
	assert.InDelta(t, 16000.0/65535.0, s.AccelY, 1e-9)
}

func TestToSampleNegatesRightYZ(t *testing.T) {
	cal := calibration{}
	raw := rawTriplet{AccelX: 100, AccelY: 100, AccelZ: 100, GyroX: 50, GyroY: 50, GyroZ: 50}

	left := toSample(raw, cal, DesignLeft, 1.0)
	right := toSample(raw, cal, DesignRight, 1.0)

	assert.Equal(t, left.AccelX, right.AccelX)
	assert.Equal(t, -left.AccelY, right.AccelY)
	assert.Equal(t, -left.AccelZ, right.AccelZ)
	assert.Equal(t, left.GyroX, right.GyroX)
	assert.Equal(t, -left.GyroY, right.GyroY)
	assert.Equal(t, -left.GyroZ, right.GyroZ)
}

func TestToSampleGyroScaleFactorMultiplies(t *testing.T) {
	cal := calibration{}
	raw := rawTriplet{GyroX: 1000}
	base := toSample(raw, cal, DesignLeft, 1.0)
	doubled := toSample(raw, cal, DesignLeft, 2.0)
	assert.InDelta(t, base.GyroX*2, doubled.GyroX, 1e-9)
}

package reader

import "github.com/slimevr-wrangler/joybridge/internal/fusion"

// rawTriplet is one decoded-but-unscaled accel/gyro reading, little-endian
// int16 components as they arrive on the wire.
type rawTriplet struct {
	AccelX, AccelY, AccelZ int16
	GyroX, GyroY, GyroZ    int16
}

// calibration holds the per-axis offsets applied before scaling. Zero value
// applies no offset (factory/user calibration unavailable).
type calibration struct {
	AccelOffset [3]int16
	GyroOffset  [3]int16
}

// Raw-HID scale constants from spec.md §4.3 / original_source integration.rs:
// accel in g = raw * 16000/65535/1000; gyro in deg/s = raw * 4588/65535,
// converted to rad/s and scaled by the configured gyro_scale_factor.
const (
	accelScaleRawHID = 16000.0 / 65535.0 / 1000.0
	gyroScaleRawHID  = 4588.0 / 65535.0 // degrees/s per LSB
	degToRad         = 3.14159265358979323846 / 180.0
)

// toSample applies offset subtraction, scaling, the gyro_scale_factor
// multiplier, and (for Right-variant devices) the axis negation described in
// spec.md §4.3 step 5.
func toSample(raw rawTriplet, cal calibration, design Design, gyroScaleFactor float64) fusion.Sample {
	ax := float64(raw.AccelX-cal.AccelOffset[0]) * accelScaleRawHID
	ay := float64(raw.AccelY-cal.AccelOffset[1]) * accelScaleRawHID
	az := float64(raw.AccelZ-cal.AccelOffset[2]) * accelScaleRawHID

	gx := float64(raw.GyroX-cal.GyroOffset[0]) * gyroScaleFactor * gyroScaleRawHID * degToRad
	gy := float64(raw.GyroY-cal.GyroOffset[1]) * gyroScaleFactor * gyroScaleRawHID * degToRad
	gz := float64(raw.GyroZ-cal.GyroOffset[2]) * gyroScaleFactor * gyroScaleRawHID * degToRad

	if design == DesignRight {
		ay, az = -ay, -az
		gy, gz = -gy, -gz
	}

	return fusion.Sample{
		AccelX: ax, AccelY: ay, AccelZ: az,
		GyroX: gx, GyroY: gy, GyroZ: gz,
	}
}

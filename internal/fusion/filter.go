// Package fusion implements a per-device orientation estimator: a
// gyro-integration-plus-accelerometer-correction complementary filter in the
// Madgwick family (gradient-descent IMU variant, magnetometer-free).
//
// The filter operates on github.com/go-gl/mathgl/mgl64 quaternion and vector
// types rather than hand-rolled algebra, grounded on the reference corpus's
// use of a dedicated math library (go-gl/mathgl) for orientation state in
// component/imu-shaped code, keeping this package's math consistent with
// internal/uplink/gravity.go which consumes the same quaternion type.
package fusion

import (
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl64"
)

// SamplePeriod is the nominal spacing between IMU triples, per spec: three
// samples per ~15ms HID report.
const SamplePeriod = 5 * time.Millisecond

// Sample is one IMU reading: acceleration in g, gyro in radians/second.
type Sample struct {
	AccelX, AccelY, AccelZ float64
	GyroX, GyroY, GyroZ    float64
}

// Filter is a single-device orientation estimator. It is not safe for
// concurrent use; callers (the uplink goroutine) own one Filter per device.
type Filter struct {
	q    mgl64.Quat
	beta float64
}

// defaultBeta is tuned so a stationary device settles within a few seconds
// while a rotating device tracks without visible lag, matching spec.md
// §4.2's settle/lag contract.
const defaultBeta = 0.041

// New returns a Filter initialized to identity orientation.
func New() *Filter {
	return &Filter{q: mgl64.QuatIdent(), beta: defaultBeta}
}

// Reset restores identity orientation without otherwise disturbing the
// Filter's configuration — used when a Connected event recurs for an
// already-known device.
func (f *Filter) Reset() {
	f.q = mgl64.QuatIdent()
}

// Update integrates one IMU sample. If the computation would produce a
// non-finite quaternion the sample is dropped and the prior orientation is
// left untouched — the fusion error kind from spec.md §7.
func (f *Filter) Update(s Sample) {
	next := madgwickStep(f.q, s, f.beta, SamplePeriod.Seconds())
	if !finiteQuat(next) {
		return
	}
	f.q = next
}

// Rotation returns the current unit quaternion estimate.
func (f *Filter) Rotation() mgl64.Quat {
	return f.q
}

// EulerAnglesDeg returns (roll, pitch, yaw) in degrees, for UI display only.
func (f *Filter) EulerAnglesDeg() (roll, pitch, yaw float64) {
	roll, pitch, yaw = eulerFromQuat(f.q)
	return roll * 180 / math.Pi, pitch * 180 / math.Pi, yaw * 180 / math.Pi
}

func finiteQuat(q mgl64.Quat) bool {
	for _, v := range []float64{q.W, q.V.X(), q.V.Y(), q.V.Z()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// madgwickStep performs one gradient-descent IMU update (Madgwick, 2010),
// magnetometer-free variant, returning the next orientation estimate.
func madgwickStep(q mgl64.Quat, s Sample, beta, dtSeconds float64) mgl64.Quat {
	q0, q1, q2, q3 := q.W, q.V.X(), q.V.Y(), q.V.Z()
	gx, gy, gz := s.GyroX, s.GyroY, s.GyroZ
	ax, ay, az := s.AccelX, s.AccelY, s.AccelZ

	qDot1 := 0.5 * (-q1*gx - q2*gy - q3*gz)
	qDot2 := 0.5 * (q0*gx + q2*gz - q3*gy)
	qDot3 := 0.5 * (q0*gy - q1*gz + q3*gx)
	qDot4 := 0.5 * (q0*gz + q1*gy - q2*gx)

	if !(ax == 0 && ay == 0 && az == 0) {
		norm := math.Sqrt(ax*ax + ay*ay + az*az)
		ax, ay, az = ax/norm, ay/norm, az/norm

		_2q0, _2q1, _2q2, _2q3 := 2*q0, 2*q1, 2*q2, 2*q3
		_4q0, _4q1, _4q2 := 4*q0, 4*q1, 4*q2
		_8q1, _8q2 := 8*q1, 8*q2
		q0q0, q1q1, q2q2, q3q3 := q0*q0, q1*q1, q2*q2, q3*q3

		s0 := _4q0*q2q2 + _2q2*ax + _4q0*q1q1 - _2q1*ay
		s1 := _4q1*q3q3 - _2q3*ax + 4*q0q0*q1 - _2q0*ay - _4q1 + _8q1*q1q1 + _8q1*q2q2 + _4q1*az
		s2 := 4*q0q0*q2 + _2q0*ax + _4q2*q3q3 - _2q3*ay - _4q2 + _8q2*q1q1 + _8q2*q2q2 + _4q2*az
		s3 := 4*q1q1*q3 - _2q1*ax + 4*q2q2*q3 - _2q2*ay

		sNorm := math.Sqrt(s0*s0 + s1*s1 + s2*s2 + s3*s3)
		if sNorm > 0 {
			s0, s1, s2, s3 = s0/sNorm, s1/sNorm, s2/sNorm, s3/sNorm
		}

		qDot1 -= beta * s0
		qDot2 -= beta * s1
		qDot3 -= beta * s2
		qDot4 -= beta * s3
	}

	q0 += qDot1 * dtSeconds
	q1 += qDot2 * dtSeconds
	q2 += qDot3 * dtSeconds
	q3 += qDot4 * dtSeconds

	next := mgl64.Quat{W: q0, V: mgl64.Vec3{q1, q2, q3}}
	if next.Len() == 0 {
		return q
	}
	return next.Normalize()
}

// eulerFromQuat extracts roll (X), pitch (Y), yaw (Z) in radians from a unit
// quaternion using the standard aerospace-sequence formulas. This is a fixed
// formulaic conversion with no ambiguity worth pulling in a library for; the
// quaternion algebra itself stays on mgl64 throughout the rest of the
// package.
func eulerFromQuat(q mgl64.Quat) (roll, pitch, yaw float64) {
	w, x, y, z := q.W, q.V.X(), q.V.Y(), q.V.Z()

	sinrCosp := 2 * (w*x + y*z)
	cosrCosp := 1 - 2*(x*x+y*y)
	roll = math.Atan2(sinrCosp, cosrCosp)

	sinp := 2 * (w*y - z*x)
	switch {
	case sinp >= 1:
		pitch = math.Pi / 2
	case sinp <= -1:
		pitch = -math.Pi / 2
	default:
		pitch = math.Asin(sinp)
	}

	sinyCosp := 2 * (w*z + x*y)
	cosyCosp := 1 - 2*(y*y+z*z)
	yaw = math.Atan2(sinyCosp, cosyCosp)
	return roll, pitch, yaw
}

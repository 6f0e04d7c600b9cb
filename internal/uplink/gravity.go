package uplink

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// gravityVector computes the gravity vector in the device frame from the
// filter's unit quaternion (x,y,z,w), per spec.md §4.5.
func gravityVector(q mgl64.Quat) (gx, gy, gz float64) {
	x, y, z, w := q.V.X(), q.V.Y(), q.V.Z(), q.W

	gx = 2 * ((-x)*(-z) - w*y)
	gy = -2 * (w*(-x) + y*(-z))
	gz = w*w - x*x - y*y + z*z
	return gx, gy, gz
}

// linearAcceleration subtracts the gravity projection from a raw accel
// sample, then rotates the result about the device's z-axis by -rotationDeg
// to land in the mount-adjusted frame, per spec.md §4.5.
func linearAcceleration(q mgl64.Quat, ax, ay, az float64, rotationDeg int) [3]float32 {
	gx, gy, gz := gravityVector(q)
	vx, vy, vz := ax-gx, ay-gy, az-gz

	if rotationDeg != 0 {
		theta := -float64(rotationDeg) * math.Pi / 180
		sin, cos := math.Sin(theta), math.Cos(theta)
		vx, vy = vx*cos-vy*sin, vx*sin+vy*cos
	}

	return [3]float32{float32(vx), float32(vy), float32(vz)}
}

// mountRotated right-multiplies q by a z-axis rotation of rotationDeg
// degrees, per spec.md §4.4 ("if rotation > 0, right-multiply the filter's
// quaternion by a z-axis rotation of rotation degrees").
func mountRotated(q mgl64.Quat, rotationDeg int) mgl64.Quat {
	if rotationDeg <= 0 {
		return q
	}
	theta := float64(rotationDeg) * math.Pi / 180
	rot := mgl64.QuatRotate(theta, mgl64.Vec3{0, 0, 1})
	return q.Mul(rot)
}

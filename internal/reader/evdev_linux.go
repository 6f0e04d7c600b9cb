//go:build linux

package reader

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/slimevr-wrangler/joybridge/internal/fusion"
)

// Linux kernel scale constants for evdev absolute axes, distinct from the
// raw-HID path in calibration.go (spec.md §9, "an implementer MUST pick the
// one matching their platform adapter"): 1/4096 g/LSB for accel, 14247
// LSB/(deg/s) for gyro.
const (
	evdevAccelScale          = 1.0 / 4096.0
	evdevGyroLSBPerDegPerSec = 14247.0
)

// evdev absolute-axis codes carrying the six IMU channels, per the kernel's
// input-event-codes.h ABS_RX/RY/RZ reuse for gyro on these controllers.
const (
	absX  = 0x00 // accel x
	absY  = 0x01 // accel y
	absZ  = 0x02 // accel z
	absRX = 0x03 // gyro x
	absRY = 0x04 // gyro y
	absRZ = 0x05 // gyro z
)

// EvdevReader implements Reader by reading raw input_event records from a
// Linux /dev/input/eventN node and a kernel-scaled six-axis IMU mapping,
// grounded on the reference corpus's evdev ioctl/struct conventions
// (andrieee44-mylib's evdev and linux/ioctl packages) but using
// golang.org/x/sys/unix's pre-declared InputEvent type and EVIOCGRAB
// constant instead of hand-rolled ioctl request codes.
type EvdevReader struct {
	Path            string
	Serial          string
	Design          Design
	GyroScaleFactor func() float64
	// PowerSupplyName is the leaf directory name under
	// /sys/class/power_supply reporting this device's charge, populated by
	// udev from the same HID device that exposes /dev/input/eventN. Empty
	// disables battery polling.
	PowerSupplyName string
	Logger          *slog.Logger
}

const batteryPollInterval = 30 * time.Second

// readPowerSupplyCapacity maps the kernel's 0-100 capacity percentage onto
// the coarse BatteryLevel gauge the HID path reports natively.
func readPowerSupplyCapacity(name string) (BatteryLevel, bool) {
	data, err := os.ReadFile("/sys/class/power_supply/" + name + "/capacity")
	if err != nil {
		return 0, false
	}
	var pct int
	if _, err := fmt.Sscanf(string(data), "%d", &pct); err != nil {
		return 0, false
	}
	switch {
	case pct <= 5:
		return BatteryEmpty, true
	case pct <= 20:
		return BatteryCritical, true
	case pct <= 50:
		return BatteryLow, true
	case pct <= 80:
		return BatteryMedium, true
	default:
		return BatteryFull, true
	}
}

// Run implements Reader.
func (r *EvdevReader) Run(out chan<- Event, stop <-chan struct{}) {
	f, err := os.OpenFile(r.Path, os.O_RDONLY, 0)
	if err != nil {
		r.logf("open %s failed: %v", r.Path, err)
		return
	}
	defer f.Close()

	// Exclusive grab per spec.md §4.3 step 2; log and proceed ungrabbed if
	// the kernel refuses (another process already holds it).
	if err := unix.IoctlSetInt(int(f.Fd()), unix.EVIOCGRAB, 1); err != nil {
		r.logf("grab %s failed, continuing ungrabbed: %v", r.Path, err)
	} else {
		defer func() { _ = unix.IoctlSetInt(int(f.Fd()), unix.EVIOCGRAB, 0) }()
	}

	serial := r.Serial
	out <- Event{Kind: EventConnected, Serial: serial, Connected: &DeviceInfo{
		Serial: serial, Design: r.Design, Colour: "#ffffff",
	}}

	var raw rawTriplet
	var gotAxis [6]bool
	var lastBatteryPoll time.Time

	eventSize := int(unsafe.Sizeof(unix.InputEvent{}))
	buf := make([]byte, eventSize)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if r.PowerSupplyName != "" && time.Since(lastBatteryPoll) >= batteryPollInterval {
			lastBatteryPoll = time.Now()
			if level, ok := readPowerSupplyCapacity(r.PowerSupplyName); ok {
				out <- Event{Kind: EventBattery, Serial: serial, Battery: level}
			}
		}

		if err := f.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			r.logf("set read deadline: %v", err)
		}
		n, err := f.Read(buf)
		if err != nil {
			if os.IsTimeout(err) {
				continue
			}
			out <- Event{Kind: EventDisconnected, Serial: serial}
			return
		}
		if n < eventSize {
			continue
		}

		ev := decodeInputEvent(buf)
		if ev.evType != unix.EV_ABS {
			continue
		}

		switch ev.code {
		case absX:
			raw.AccelX, gotAxis[0] = int16(ev.value), true
		case absY:
			raw.AccelY, gotAxis[1] = int16(ev.value), true
		case absZ:
			raw.AccelZ, gotAxis[2] = int16(ev.value), true
		case absRX:
			raw.GyroX, gotAxis[3] = int16(ev.value), true
		case absRY:
			raw.GyroY, gotAxis[4] = int16(ev.value), true
		case absRZ:
			raw.GyroZ, gotAxis[5] = int16(ev.value), true
		default:
			continue
		}

		if !allTrue(gotAxis[:]) {
			continue
		}
		gotAxis = [6]bool{}

		gyroScale := 1.0
		if r.GyroScaleFactor != nil {
			gyroScale = r.GyroScaleFactor()
		}
		sample := evdevToSample(raw, r.Design, gyroScale)
		samples := [3]fusion.Sample{sample, sample, sample}
		out <- Event{Kind: EventIMUData, Serial: serial, IMU: &samples}
	}
}

// evdevToSample applies the kernel-provided scale factors and the same
// Right-design axis negation used by the raw-HID path.
func evdevToSample(raw rawTriplet, design Design, gyroScaleFactor float64) fusion.Sample {
	ax := float64(raw.AccelX) * evdevAccelScale
	ay := float64(raw.AccelY) * evdevAccelScale
	az := float64(raw.AccelZ) * evdevAccelScale

	gx := float64(raw.GyroX) / evdevGyroLSBPerDegPerSec * gyroScaleFactor * math.Pi / 180
	gy := float64(raw.GyroY) / evdevGyroLSBPerDegPerSec * gyroScaleFactor * math.Pi / 180
	gz := float64(raw.GyroZ) / evdevGyroLSBPerDegPerSec * gyroScaleFactor * math.Pi / 180

	if design == DesignRight {
		ay, az = -ay, -az
		gy, gz = -gy, -gz
	}

	return fusion.Sample{AccelX: ax, AccelY: ay, AccelZ: az, GyroX: gx, GyroY: gy, GyroZ: gz}
}

type decodedEvent struct {
	evType uint16
	code   uint16
	value  int32
}

// decodeInputEvent reads the trailing {type, code, value} fields of a
// struct input_event, skipping the leading timeval (whose width is
// platform-dependent between 32/64-bit kernels).
func decodeInputEvent(buf []byte) decodedEvent {
	tail := buf[len(buf)-8:]
	return decodedEvent{
		evType: binary.LittleEndian.Uint16(tail[0:2]),
		code:   binary.LittleEndian.Uint16(tail[2:4]),
		value:  int32(binary.LittleEndian.Uint32(tail[4:8])),
	}
}

func allTrue(bs []bool) bool {
	for _, b := range bs {
		if !b {
			return false
		}
	}
	return true
}

func (r *EvdevReader) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Error(fmt.Sprintf(format, args...))
	}
}

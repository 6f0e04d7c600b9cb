package reader

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	hid "github.com/sstallion/go-hid"

	"github.com/slimevr-wrangler/joybridge/internal/fusion"
)

// Nintendo Switch controller identifiers, spec.md §4.3 / §6.
const (
	VendorNintendo  = 0x057E
	ProductJoyConL  = 0x2006
	ProductJoyConR  = 0x2007
	ProductProCon   = 0x2009
	ProductChargeGr = 0x200E
)

// HID report ids and subcommands, from community reverse-engineering of the
// Joy-Con/Pro Controller protocol (dekuNukem/Nintendo_Switch_Reverse_Engineering).
const (
	outputRumbleSubcommand byte = 0x01

	inputSubcommandReply byte = 0x21
	inputFullMode        byte = 0x30 // report id 48: standard input report carrying 3 IMU samples

	subSetInputReportMode byte = 0x03
	subSPIFlashRead       byte = 0x10
	subSetPlayerLights    byte = 0x30
	subEnableIMU          byte = 0x40

	fullReportMode byte = 0x30
)

// SPI flash addresses holding factory/user sensor calibration, per the same
// reverse-engineering notes.
const (
	spiFactorySensorCalAddr uint32 = 0x6020
	spiFactorySensorCalLen  byte   = 24
	spiUserSensorCalAddr    uint32 = 0x8028
	spiUserSensorCalLen     byte   = 26 // 2-byte magic + 24 bytes of data
	spiColourAddr           uint32 = 0x6050
	spiColourLen            byte   = 6
)

const (
	buttonByteRight = 3 // B is bit 2 here
	buttonByteLeft  = 5 // Up is bit 1 here
	maskB           = 0x04
	maskUp          = 0x02
)

// HIDReader implements Reader against a real controller over
// github.com/sstallion/go-hid, grounded on the reference corpus's
// device/device.go and device/light_ov580.go HID adapters (the only
// ecosystem HID library present there).
type HIDReader struct {
	Path            string
	Serial          string
	Design          Design
	GyroScaleFactor func() float64 // read live from the settings snapshot
	Logger          *slog.Logger
}

// Run implements Reader.
func (r *HIDReader) Run(out chan<- Event, stop <-chan struct{}) {
	dev, err := hid.OpenPath(r.Path)
	if err != nil {
		r.logf("open %s failed: %v", r.Path, err)
		return
	}
	defer dev.Close()

	if err := r.configure(dev); err != nil {
		r.logf("configure %s failed: %v", r.Path, err)
		return
	}

	cal := r.readCalibration(dev)
	colour := r.readColour(dev)

	serial := r.Serial
	out <- Event{Kind: EventConnected, Serial: serial, Connected: &DeviceInfo{
		Serial: serial, Design: r.Design, Colour: colour,
	}}

	var lastUp, lastB bool
	var lastBattery BatteryLevel = -1

	buf := make([]byte, 362)
	for {
		select {
		case <-stop:
			return
		default:
		}

		n, err := dev.ReadWithTimeout(buf, 100*time.Millisecond)
		if err != nil {
			out <- Event{Kind: EventDisconnected, Serial: serial}
			return
		}
		if n == 0 {
			// timed out waiting for a report; check stop and retry.
			continue
		}
		report := buf[:n]
		if report[0] != inputFullMode {
			continue
		}
		if len(report) < 13+36 {
			continue
		}

		battery := decodeBattery(report[2])
		if battery != lastBattery {
			lastBattery = battery
			out <- Event{Kind: EventBattery, Serial: serial, Battery: battery}
		}

		upPressed := report[buttonByteLeft]&maskUp != 0
		bPressed := report[buttonByteRight]&maskB != 0
		if (lastUp && !upPressed) || (lastB && !bPressed) {
			out <- Event{Kind: EventReset, Serial: serial}
		}
		lastUp, lastB = upPressed, bPressed

		gyroScale := 1.0
		if r.GyroScaleFactor != nil {
			gyroScale = r.GyroScaleFactor()
		}

		var samples [3]fusion.Sample
		for i := 0; i < 3; i++ {
			off := 13 + i*12
			raw := decodeRawTriplet(report[off : off+12])
			samples[i] = toSample(raw, cal, r.Design, gyroScale)
		}
		out <- Event{Kind: EventIMUData, Serial: serial, IMU: &samples}
	}
}

func (r *HIDReader) configure(dev *hid.Device) error {
	if _, err := dev.Write(subcommand(subSetInputReportMode, []byte{fullReportMode})); err != nil {
		return fmt.Errorf("set input report mode: %w", err)
	}
	if _, err := dev.Write(subcommand(subEnableIMU, []byte{0x01})); err != nil {
		return fmt.Errorf("enable imu: %w", err)
	}
	if _, err := dev.Write(subcommand(subSetPlayerLights, []byte{0x01})); err != nil {
		return fmt.Errorf("set player lights: %w", err)
	}
	return nil
}

func (r *HIDReader) readCalibration(dev *hid.Device) calibration {
	if data, ok := r.readSPI(dev, spiUserSensorCalAddr, spiUserSensorCalLen); ok {
		if data[0] == 0xB2 && data[1] == 0xA1 {
			if cal, ok := parseSensorCalBlob(data[2:]); ok {
				return cal
			}
		}
	}
	if data, ok := r.readSPI(dev, spiFactorySensorCalAddr, spiFactorySensorCalLen); ok {
		if cal, ok := parseSensorCalBlob(data); ok {
			return cal
		}
	}
	return calibration{}
}

func (r *HIDReader) readColour(dev *hid.Device) string {
	data, ok := r.readSPI(dev, spiColourAddr, spiColourLen)
	if !ok || len(data) < 3 {
		return "#ffffff"
	}
	return fmt.Sprintf("#%02x%02x%02x", data[0], data[1], data[2])
}

// readSPI performs a subcommand-0x10 SPI flash read and waits for the
// matching subcommand-reply input report.
func (r *HIDReader) readSPI(dev *hid.Device, addr uint32, length byte) ([]byte, bool) {
	data := make([]byte, 5)
	binary.LittleEndian.PutUint32(data[:4], addr)
	data[4] = length
	if _, err := dev.Write(subcommand(subSPIFlashRead, data)); err != nil {
		return nil, false
	}

	buf := make([]byte, 362)
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		n, err := dev.ReadWithTimeout(buf, 100*time.Millisecond)
		if err != nil {
			return nil, false
		}
		if n < 20 || buf[0] != inputSubcommandReply || buf[13] != subSPIFlashRead {
			continue
		}
		got := binary.LittleEndian.Uint32(buf[14:18])
		if got != addr {
			continue
		}
		gotLen := buf[18]
		if int(19+gotLen) > n {
			continue
		}
		return append([]byte(nil), buf[19:19+gotLen]...), true
	}
	return nil, false
}

func subcommand(id byte, data []byte) []byte {
	// neutral rumble bytes so vibration motors stay idle while issuing
	// commands, matching the known output-report-0x01 layout.
	neutralRumble := []byte{0x00, 0x01, 0x40, 0x40, 0x00, 0x01, 0x40, 0x40}
	out := make([]byte, 0, 11+len(data))
	out = append(out, outputRumbleSubcommand, 0x00)
	out = append(out, neutralRumble...)
	out = append(out, id)
	out = append(out, data...)
	return out
}

func decodeRawTriplet(b []byte) rawTriplet {
	return rawTriplet{
		AccelX: int16(binary.LittleEndian.Uint16(b[0:2])),
		AccelY: int16(binary.LittleEndian.Uint16(b[2:4])),
		AccelZ: int16(binary.LittleEndian.Uint16(b[4:6])),
		GyroX:  int16(binary.LittleEndian.Uint16(b[6:8])),
		GyroY:  int16(binary.LittleEndian.Uint16(b[8:10])),
		GyroZ:  int16(binary.LittleEndian.Uint16(b[10:12])),
	}
}

// parseSensorCalBlob decodes the 24-byte accel-origin/accel-unused/
// gyro-origin/gyro-unused layout documented by the community
// reverse-engineering of Joy-Con SPI flash calibration.
func parseSensorCalBlob(b []byte) (calibration, bool) {
	if len(b) < 24 {
		return calibration{}, false
	}
	var cal calibration
	for i := 0; i < 3; i++ {
		cal.AccelOffset[i] = int16(binary.LittleEndian.Uint16(b[i*2 : i*2+2]))
	}
	for i := 0; i < 3; i++ {
		cal.GyroOffset[i] = int16(binary.LittleEndian.Uint16(b[12+i*2 : 12+i*2+2]))
	}
	return cal, true
}

func decodeBattery(b byte) BatteryLevel {
	switch b >> 4 {
	case 0:
		return BatteryEmpty
	case 1:
		return BatteryCritical
	case 2:
		return BatteryLow
	case 3:
		return BatteryMedium
	default:
		return BatteryFull
	}
}

func (r *HIDReader) logf(format string, args ...any) {
	if r.Logger != nil {
		r.Logger.Error(fmt.Sprintf(format, args...))
	}
}

// designForProduct maps a USB product code to its Design, per spec.md §4.3.
func designForProduct(product uint16) (Design, bool) {
	switch product {
	case ProductJoyConL:
		return DesignLeft, true
	case ProductJoyConR:
		return DesignRight, true
	case ProductProCon, ProductChargeGr:
		return DesignPro, true
	default:
		return 0, false
	}
}

// Package reader implements the Device Reader activity: one goroutine per
// physical (or synthetic) controller that decodes raw IMU bursts into typed
// events for the fusion-and-uplink goroutine.
package reader

import (
	"time"

	"github.com/slimevr-wrangler/joybridge/internal/fusion"
)

// Design identifies the physical controller variant.
type Design int

const (
	DesignLeft Design = iota
	DesignRight
	DesignPro
)

func (d Design) String() string {
	switch d {
	case DesignLeft:
		return "left"
	case DesignRight:
		return "right"
	case DesignPro:
		return "pro"
	default:
		return "unknown"
	}
}

// BatteryLevel mirrors the Joy-Con/Pro Controller's reported battery gauge.
type BatteryLevel int

const (
	BatteryEmpty BatteryLevel = iota
	BatteryCritical
	BatteryLow
	BatteryMedium
	BatteryFull
)

// DeviceInfo is carried by a Connected event.
type DeviceInfo struct {
	Serial string
	Design Design
	Colour string // "#rrggbb"
}

// EventKind discriminates the Event variant, replacing a class hierarchy
// with an enum per spec.md §9 ("Variant enum").
type EventKind int

const (
	EventConnected EventKind = iota
	EventIMUData
	EventBattery
	EventReset
	EventDisconnected
)

// Event is the sum type emitted by a Reader on its output channel. Exactly
// one payload field is meaningful, selected by Kind.
type Event struct {
	Kind   EventKind
	Serial string

	Connected *DeviceInfo
	IMU       *[3]fusion.Sample
	Battery   BatteryLevel
}

// Reader is the contract both the real HID adapter and the synthetic
// six-device test adapter satisfy.
type Reader interface {
	// Run reads from the device until disconnect or stop is closed,
	// sending Events to out. Once it has sent EventConnected, it terminates
	// by sending a final EventDisconnected (unless stop fired first) and
	// returning; a device that cannot be opened or configured makes it
	// return without sending any event.
	Run(out chan<- Event, stop <-chan struct{})
}

// imuReportInterval is the nominal spacing between HID reports carrying
// three IMU samples each (spec.md §4.2/§4.3: ~15ms per report, 5ms per
// sample).
const imuReportInterval = 15 * time.Millisecond

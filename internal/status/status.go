// Package status carries the Fusion & Uplink activity's outbound status
// snapshots to the UI layer: a single-producer single-consumer, lossy feed
// (spec.md §5, "Status queue").
package status

import "github.com/slimevr-wrangler/joybridge/internal/reader"

// DeviceStatus is the four-way health classification from spec.md §4.4's
// status-update-cadence table.
type DeviceStatus int

const (
	StatusHealthy DeviceStatus = iota
	StatusLaggyIMU
	StatusNoIMU
	StatusDisconnected
)

func (s DeviceStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusLaggyIMU:
		return "laggy_imu"
	case StatusNoIMU:
		return "no_imu"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ServerStatus is the three-state SlimeVR connection state machine from
// spec.md §4.4.
type ServerStatus int

const (
	ServerDisconnected ServerStatus = iota
	ServerUnknown
	ServerConnected
)

func (s ServerStatus) String() string {
	switch s {
	case ServerDisconnected:
		return "disconnected"
	case ServerUnknown:
		return "unknown"
	case ServerConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Device is one row of the status vector published to the UI sink.
type Device struct {
	Serial           string
	ID               uint8
	Design           reader.Design
	Colour           string
	Battery          reader.BatteryLevel
	Status           DeviceStatus
	RotationEulerDeg [3]float64 // roll, pitch, yaw
}

// Snapshot is the full payload delivered on a Feed: every known device plus
// the current server connection state.
type Snapshot struct {
	Devices []Device
	Server  ServerStatus
}

// Feed is a depth-1, overwrite-on-send channel: the single producer
// (Fusion & Uplink) never blocks, and a slow or absent consumer only ever
// sees the most recent snapshot, matching spec.md §5's "lossy tolerated"
// status queue.
type Feed struct {
	ch chan Snapshot
}

// NewFeed creates a ready-to-use Feed.
func NewFeed() *Feed {
	return &Feed{ch: make(chan Snapshot, 1)}
}

// Publish overwrites any unread snapshot with snap. Never blocks.
func (f *Feed) Publish(snap Snapshot) {
	for {
		select {
		case f.ch <- snap:
			return
		default:
			select {
			case <-f.ch:
			default:
			}
		}
	}
}

// C exposes the receive-only channel for consumers.
func (f *Feed) C() <-chan Snapshot {
	return f.ch
}

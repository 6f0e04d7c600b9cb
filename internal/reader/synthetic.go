package reader

import (
	"fmt"
	"time"

	"github.com/slimevr-wrangler/joybridge/internal/fusion"
)

// syntheticColours gives each of the six fake controllers a distinct colour
// so a developer watching the status feed can tell them apart at a glance.
var syntheticColours = [6]string{
	"#ff3b30", "#34c759", "#007aff", "#ff9500", "#af52de", "#5ac8fa",
}

// syntheticDesigns cycles left/right/pro so a SyntheticReader fleet reports
// all three variants. Synthetic samples bypass toSample, so the Right-axis
// negation is not applied to them; Right devices only get the opposite
// yaw-rate sign (see Run).
var syntheticDesigns = [6]Design{
	DesignLeft, DesignRight, DesignPro, DesignLeft, DesignRight, DesignPro,
}

// syntheticYawRate is the small constant yaw rate (rad/s) given to every fake
// device, matching spec.md §4.3's "small constant yaw-rate" test fixture.
const syntheticYawRate = 0.05

// SyntheticReader drives one of six fake controllers with a stationary -1g
// accel on the y axis and a small constant yaw rate, so the pipeline can be
// exercised end to end without hardware attached (spec.md §4.3, "Test
// controllers").
type SyntheticReader struct {
	Index int // 0..5, selects colour/design
}

// Run implements Reader.
func (r *SyntheticReader) Run(out chan<- Event, stop <-chan struct{}) {
	idx := r.Index % len(syntheticDesigns)
	design := syntheticDesigns[idx]
	serial := fmt.Sprintf("synthetic-%d", idx)

	out <- Event{Kind: EventConnected, Serial: serial, Connected: &DeviceInfo{
		Serial: serial, Design: design, Colour: syntheticColours[idx],
	}}

	ticker := time.NewTicker(imuReportInterval)
	defer ticker.Stop()

	yaw := syntheticYawRate
	if design == DesignRight {
		yaw = -yaw
	}

	for {
		select {
		case <-stop:
			out <- Event{Kind: EventDisconnected, Serial: serial}
			return
		case <-ticker.C:
			samples := [3]fusion.Sample{
				{AccelX: 0, AccelY: -1, AccelZ: 0, GyroX: 0, GyroY: 0, GyroZ: yaw},
				{AccelX: 0, AccelY: -1, AccelZ: 0, GyroX: 0, GyroY: 0, GyroZ: yaw},
				{AccelX: 0, AccelY: -1, AccelZ: 0, GyroX: 0, GyroY: 0, GyroZ: yaw},
			}
			out <- Event{Kind: EventIMUData, Serial: serial, IMU: &samples}
		}
	}
}

// SpawnSynthetic starts all six fake controllers, each on its own goroutine,
// and returns a single stop channel that tears down all of them together.
func SpawnSynthetic(out chan<- Event) (stop chan struct{}) {
	stop = make(chan struct{})
	for i := 0; i < 6; i++ {
		r := &SyntheticReader{Index: i}
		go r.Run(out, stop)
	}
	return stop
}

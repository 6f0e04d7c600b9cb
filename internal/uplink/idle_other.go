//go:build !windows

package uplink

import "time"

// sleepIdle bounds CPU use during idle ticks. Non-Windows kernels already
// schedule sub-millisecond sleeps with enough precision that no timer-period
// adjustment is needed (spec.md §4.4, "idle policy").
func sleepIdle(d time.Duration) {
	time.Sleep(d)
}

//go:build windows

package uplink

import (
	"sync"
	"time"

	"golang.org/x/sys/windows"
)

// winmm exposes timeBeginPeriod/timeEndPeriod, which Windows requires to
// shrink the default ~15.6ms scheduler quantum to 1ms so the 2ms idle sleeps
// this loop relies on are not rounded up (spec.md §4.4, "lower the kernel timer resolution to
// 1 ms to avoid 15 ms quantization").
var (
	winmm            = windows.NewLazySystemDLL("winmm.dll")
	procTimeBeginPrd = winmm.NewProc("timeBeginPeriod")
	procTimeEndPrd   = winmm.NewProc("timeEndPeriod")

	periodOnce sync.Once
)

func ensureTimerResolution() {
	periodOnce.Do(func() {
		procTimeBeginPrd.Call(1)
	})
}

// sleepIdle bounds CPU use during idle ticks, raising the Windows timer
// resolution once per process so time.Sleep(idleSleep) does not round up to
// a 15ms quantum.
func sleepIdle(d time.Duration) {
	ensureTimerResolution()
	time.Sleep(d)
}

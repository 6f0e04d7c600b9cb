package reader

import (
	"log/slog"
	"sync"
	"time"

	hid "github.com/sstallion/go-hid"
)

// enumerateTick is the HID enumeration cadence from spec.md §5 ("Timeouts").
const enumerateTick = 1 * time.Second

// reconnectBackoff is how long the supervisor waits after a reader exits
// before re-enumerating, per spec.md §4.3 step 8.
const reconnectBackoff = 1 * time.Second

// Supervisor enumerates HID-attached controllers on a tick, spawns one
// reader goroutine per newly seen device, and restarts after disconnect.
// Grounded on the teacher's single-owner reader-lifecycle shape adapted from
// a per-connection model to a per-physical-device one.
type Supervisor struct {
	Out             chan<- Event
	GyroScaleFactor func(serial string) float64
	Logger          *slog.Logger

	mu     sync.Mutex
	active map[string]chan struct{} // serial -> stop channel
}

// Run blocks until stop is closed, enumerating and (re)spawning readers.
func (s *Supervisor) Run(stop <-chan struct{}) {
	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]chan struct{})
	}
	s.mu.Unlock()

	ticker := time.NewTicker(enumerateTick)
	defer ticker.Stop()

	for {
		s.enumerateOnce()
		select {
		case <-stop:
			s.mu.Lock()
			for _, ch := range s.active {
				close(ch)
			}
			s.mu.Unlock()
			return
		case <-ticker.C:
		}
	}
}

func (s *Supervisor) enumerateOnce() {
	seen := make(map[string]struct{})
	err := hid.Enumerate(VendorNintendo, 0, func(info *hid.DeviceInfo) error {
		design, ok := designForProduct(info.ProductID)
		if !ok {
			return nil
		}
		serial := info.SerialNbr
		if serial == "" {
			serial = info.Path
		}
		seen[serial] = struct{}{}

		s.mu.Lock()
		_, exists := s.active[serial]
		s.mu.Unlock()
		if exists {
			return nil
		}
		s.spawn(serial, info.Path, design)
		return nil
	})
	if err != nil && s.Logger != nil {
		s.Logger.Error("hid enumerate failed", "error", err)
	}
}

func (s *Supervisor) spawn(serial, path string, design Design) {
	stopCh := make(chan struct{})

	s.mu.Lock()
	if s.active == nil {
		s.active = make(map[string]chan struct{})
	}
	s.active[serial] = stopCh
	s.mu.Unlock()

	r := &HIDReader{
		Path:   path,
		Serial: serial,
		Design: design,
		Logger: s.Logger,
	}
	if s.GyroScaleFactor != nil {
		r.GyroScaleFactor = func() float64 { return s.GyroScaleFactor(serial) }
	}

	go func() {
		r.Run(s.Out, stopCh)
		// keep the serial marked active through the backoff so the next
		// enumeration pass does not respawn it early.
		time.Sleep(reconnectBackoff)
		s.mu.Lock()
		delete(s.active, serial)
		s.mu.Unlock()
	}()
}

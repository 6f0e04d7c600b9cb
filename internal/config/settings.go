// Package config holds the hot-reloadable settings snapshot shared between
// the control-API surface (the writer) and the fusion-and-uplink loop (the
// reader), plus the `config init`/`config show` Kong subcommands; the
// command that boots the bridge lives in cmd/joybridge.
package config

import (
	"net"
	"sync/atomic"
)

// DefaultAddress is the fallback SlimeVR server destination used whenever
// the configured address fails to parse (spec.md §3).
const DefaultAddress = "127.0.0.1:6969"

// JoyconOverride holds the per-serial tuning knobs from spec.md §3.
type JoyconOverride struct {
	RotationDeg     int     `json:"rotation" yaml:"rotation" toml:"rotation"`
	GyroScaleFactor float64 `json:"gyro_scale_factor" yaml:"gyro_scale_factor" toml:"gyro_scale_factor"`
}

// Settings is the immutable snapshot of all operator-tunable state. A new
// Settings value is never mutated after being published through a Store; the
// writer clones, edits the clone, then swaps it in.
type Settings struct {
	Address   string                    `json:"address" yaml:"address" toml:"address"`
	Joycon    map[string]JoyconOverride `json:"joycon" yaml:"joycon" toml:"joycon"`
	SendReset bool                      `json:"send_reset" yaml:"send_reset" toml:"send_reset"`
	// EmulatedMAC is set once from the --emulated-mac CLI flag (or
	// JOYBRIDGE_EMULATED_MAC) at startup, like Address; it is excluded from
	// the config-file formats because "xx:xx:xx:xx:xx:xx" has no canonical
	// JSON/YAML/TOML scalar representation here, not because it is fixed.
	EmulatedMAC [6]byte `json:"-" yaml:"-" toml:"-"`
	KeepIDs     bool    `json:"keep_ids" yaml:"keep_ids" toml:"keep_ids"`
}

// Default returns the zero-value settings snapshot used before any operator
// override is applied.
func Default() *Settings {
	return &Settings{
		Address:     DefaultAddress,
		Joycon:      map[string]JoyconOverride{},
		SendReset:   true,
		EmulatedMAC: [6]byte{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
	}
}

// Clone returns a deep copy so a writer can edit without racing readers that
// hold the previous snapshot.
func (s *Settings) Clone() *Settings {
	c := *s
	c.Joycon = make(map[string]JoyconOverride, len(s.Joycon))
	for k, v := range s.Joycon {
		c.Joycon[k] = v
	}
	return &c
}

// ResolvedAddress parses Address, falling back to DefaultAddress on any
// error (spec.md §3: "invalid strings fall back to 127.0.0.1:6969").
func (s *Settings) ResolvedAddress() *net.UDPAddr {
	if s.Address != "" {
		if addr, err := net.ResolveUDPAddr("udp", s.Address); err == nil {
			return addr
		}
	}
	addr, err := net.ResolveUDPAddr("udp", DefaultAddress)
	if err != nil {
		// DefaultAddress is a compile-time constant known to parse.
		panic("config: default address failed to resolve: " + err.Error())
	}
	return addr
}

// RotationDeg returns the configured mount-rotation for serial, or 0.
func (s *Settings) RotationDeg(serial string) int {
	return s.Joycon[serial].RotationDeg
}

// GyroScaleFactor returns the configured gyro multiplier for serial, or 1.0
// when unset (spec.md §3: "~0.8-1.2", default unity).
func (s *Settings) GyroScaleFactor(serial string) float64 {
	if v, ok := s.Joycon[serial]; ok && v.GyroScaleFactor != 0 {
		return v.GyroScaleFactor
	}
	return 1.0
}

// Store is an atomic-pointer-backed snapshot holder: readers take a cheap
// reference with Load, writers clone-modify-swap with Update. Mirrors the
// teacher's preference for lock-free shared state on hot paths
// (internal/server/usb bus registries use the same pattern).
type Store struct {
	p atomic.Pointer[Settings]
}

// NewStore creates a Store seeded with initial (or Default() if nil).
func NewStore(initial *Settings) *Store {
	st := &Store{}
	if initial == nil {
		initial = Default()
	}
	st.p.Store(initial)
	return st
}

// Load returns the current snapshot. Never blocks.
func (st *Store) Load() *Settings {
	return st.p.Load()
}

// Update atomically replaces the snapshot with the result of applying fn to
// a clone of the current one.
func (st *Store) Update(fn func(*Settings)) *Settings {
	next := st.Load().Clone()
	fn(next)
	st.p.Store(next)
	return next
}

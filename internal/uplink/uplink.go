// Package uplink implements the Fusion & Uplink activity: the single
// goroutine that owns the UDP socket to the SlimeVR server, the device map,
// the server connection state machine, and the periodic status broadcast
// (spec.md §2 activity 2 and §4.4).
package uplink

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/slimevr-wrangler/joybridge/internal/config"
	"github.com/slimevr-wrangler/joybridge/internal/log"
	"github.com/slimevr-wrangler/joybridge/internal/protocol"
	"github.com/slimevr-wrangler/joybridge/internal/reader"
	"github.com/slimevr-wrangler/joybridge/internal/status"
)

// errOverflow is returned by deviceMap.connect when a new serial arrives
// after all maxDeviceID+1 ids are in use and none can be reclaimed: always
// with keep_ids enabled, and with keep_ids disabled when no known device is
// Disconnected (spec.md §9, "treat overflow as a fatal configuration
// error").
var errOverflow = errors.New("uplink: device id space exhausted")

// Timeouts from spec.md §5.
const (
	handshakeRetryInterval = 3 * time.Second
	serverLivenessTimeout  = 3 * time.Second
	resetDebounce          = 2 * time.Second
	statusCadence          = 100 * time.Millisecond
	idleSleep              = 2 * time.Millisecond
)

// firmwareString is announced in every Handshake packet.
const firmwareString = "joybridge"

// clientListenAddr is the preferred local UDP port the client binds to
// (spec.md §6); if unavailable the OS assigns an ephemeral port instead.
const clientListenAddr = "0.0.0.0:47589"

// Loop runs the Fusion & Uplink activity until stop is closed. It never
// returns early on any single device or transient I/O failure (spec.md §7,
// "Nothing in the core is fatal").
type Loop struct {
	Settings *config.Store
	Events   <-chan reader.Event
	Status   *status.Feed
	Logger   *slog.Logger
	// RawLogger traces every SlimeVR packet sent/received, independent of
	// structured Logger output. Nil disables tracing.
	RawLogger log.RawLogger

	conn       *net.UDPConn
	serverAddr *net.UDPAddr

	devices *deviceMap

	serverStatus    status.ServerStatus
	lastInboundAt   time.Time
	lastHandshakeAt time.Time
	// lastResetSent debounces the reset UserAction packet across the whole
	// socket, not per device (spec.md §8: "for any 2-second interval at
	// most one UserAction packet leaves the socket").
	lastResetSent time.Time
	packetCounter uint64
}

// Run binds the outbound socket once (spec.md §3, "bound exactly once") and
// drains both the socket and the event channel until stop closes.
func (l *Loop) Run(stop <-chan struct{}) error {
	settings := l.Settings.Load()
	l.serverAddr = settings.ResolvedAddress()
	l.devices = newDeviceMap(settings.KeepIDs)
	l.serverStatus = status.ServerDisconnected

	localAddr, err := net.ResolveUDPAddr("udp", clientListenAddr)
	if err != nil {
		return fmt.Errorf("uplink: resolve local addr: %w", err)
	}
	conn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		// preferred port unavailable; fall back to an ephemeral one.
		conn, err = net.ListenUDP("udp", &net.UDPAddr{IP: localAddr.IP})
		if err != nil {
			return fmt.Errorf("uplink: bind socket: %w", err)
		}
	}
	l.conn = conn
	defer conn.Close()
	if err := conn.SetReadBuffer(64 * 1024); err != nil {
		l.logf("set read buffer: %v", err)
	}

	lastStatusPublish := time.Now()
	recvBuf := make([]byte, protocol.MaxPacketSize)

	for {
		select {
		case <-stop:
			return nil
		default:
		}

		didWork := false

		if l.drainSocket(recvBuf) {
			didWork = true
		}
		if l.drainEvents() {
			didWork = true
		}

		l.maybeHandshake()

		now := time.Now()
		if now.Sub(l.lastInboundAt) >= serverLivenessTimeout && l.serverStatus != status.ServerDisconnected {
			l.serverStatus = status.ServerDisconnected
			didWork = true
		}

		if now.Sub(lastStatusPublish) >= statusCadence {
			l.publishStatus(now)
			lastStatusPublish = now
		}

		if !didWork {
			sleepIdle(idleSleep)
		}
	}
}

// drainSocket reads every immediately-available inbound datagram
// non-blockingly. Returns true if any datagram was processed.
func (l *Loop) drainSocket(buf []byte) bool {
	processed := false
	for {
		if err := l.conn.SetReadDeadline(time.Now()); err != nil {
			l.logf("set read deadline: %v", err)
			return processed
		}
		n, src, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return processed
			}
			return processed
		}
		processed = true
		l.lastInboundAt = time.Now()
		if l.RawLogger != nil {
			l.RawLogger.Log(true, buf[:n])
		}
		if l.serverStatus == status.ServerDisconnected {
			l.serverStatus = status.ServerUnknown
		}

		p, err := protocol.Decode(buf[:n])
		if err != nil {
			// undecodable packets are discarded silently (protocol.ErrDecode).
			continue
		}

		switch p.Tag {
		case protocol.TagHandshakeResponse:
			l.serverStatus = status.ServerConnected
		case protocol.TagPing:
			l.echoPing(p, src)
		}
	}
}

func (l *Loop) echoPing(p protocol.Packet, src *net.UDPAddr) {
	encoded, err := protocol.Encode(p)
	if err != nil {
		l.logf("encode ping echo: %v", err)
		return
	}
	if l.RawLogger != nil {
		l.RawLogger.Log(false, encoded)
	}
	if _, err := l.conn.WriteToUDP(encoded, src); err != nil {
		l.logf("echo ping: %v", err)
	}
}

// drainEvents processes every immediately-available reader event. Returns
// true if any event was processed.
func (l *Loop) drainEvents() bool {
	processed := false
	for {
		select {
		case ev, ok := <-l.Events:
			if !ok {
				return processed
			}
			processed = true
			l.handleEvent(ev)
		default:
			return processed
		}
	}
}

func (l *Loop) handleEvent(ev reader.Event) {
	switch ev.Kind {
	case reader.EventConnected:
		l.handleConnected(ev)
	case reader.EventIMUData:
		l.handleIMU(ev)
	case reader.EventBattery:
		if d, ok := l.devices.get(ev.Serial); ok {
			d.battery = ev.Battery
		}
	case reader.EventReset:
		l.handleReset(ev)
	case reader.EventDisconnected:
		l.devices.disconnect(ev.Serial)
	}
}

func (l *Loop) handleConnected(ev reader.Event) {
	if ev.Connected == nil {
		return
	}
	d, isNew, err := l.devices.connect(*ev.Connected)
	if err != nil {
		l.logf("connect %s: %v", ev.Serial, err)
		return
	}
	if isNew {
		l.send(protocol.SensorInfo(l.nextPacketID(), d.id, 1, 0))
	}
}

func (l *Loop) handleIMU(ev reader.Event) {
	if ev.IMU == nil {
		return
	}
	d, ok := l.devices.get(ev.Serial)
	if !ok {
		return
	}
	now := time.Now()
	settings := l.Settings.Load()
	rotation := settings.RotationDeg(ev.Serial)

	for _, s := range ev.IMU {
		d.fusion.Update(s)
	}
	d.recordIMUBurst(now)

	q := mountRotated(d.fusion.Rotation(), rotation)
	l.send(protocol.RotationData(l.nextPacketID(), d.id, 1, protocol.Quaternion{
		I: float32(q.V.X()), J: float32(q.V.Y()), K: float32(q.V.Z()), W: float32(q.W),
	}, 0))

	last := ev.IMU[len(ev.IMU)-1]
	vec := linearAcceleration(d.fusion.Rotation(), last.AccelX, last.AccelY, last.AccelZ, rotation)
	l.send(protocol.Acceleration(l.nextPacketID(), vec, d.id, true))
}

func (l *Loop) handleReset(ev reader.Event) {
	settings := l.Settings.Load()
	if !settings.SendReset {
		return
	}
	if _, ok := l.devices.get(ev.Serial); !ok {
		return
	}
	now := time.Now()
	if now.Sub(l.lastResetSent) < resetDebounce {
		return
	}
	l.lastResetSent = now
	l.send(protocol.UserAction(l.nextPacketID(), 3))
}

// maybeHandshake re-sends the handshake (and a SensorInfo resend for every
// known device in ascending id order) every handshakeRetryInterval while
// not Connected, per spec.md §4.4.
func (l *Loop) maybeHandshake() {
	if l.serverStatus == status.ServerConnected {
		return
	}
	now := time.Now()
	if now.Sub(l.lastHandshakeAt) < handshakeRetryInterval {
		return
	}
	l.lastHandshakeAt = now

	settings := l.Settings.Load()
	l.send(protocol.Handshake(
		l.nextPacketID(), 0, 0, 0, [3]int32{0, 0, 0}, 0,
		firmwareString, settings.EmulatedMAC,
	))
	for _, d := range l.devices.ordered() {
		l.send(protocol.SensorInfo(l.nextPacketID(), d.id, 1, 0))
	}
}

func (l *Loop) publishStatus(now time.Time) {
	devices := l.devices.ordered()
	snap := status.Snapshot{Server: l.serverStatus, Devices: make([]status.Device, 0, len(devices))}
	for _, d := range devices {
		d.refreshStatus(now)
		roll, pitch, yaw := d.fusion.EulerAnglesDeg()
		snap.Devices = append(snap.Devices, status.Device{
			Serial: d.serial, ID: d.id, Design: d.design, Colour: d.colour,
			Battery: d.battery, Status: d.status,
			RotationEulerDeg: [3]float64{roll, pitch, yaw},
		})
	}
	l.Status.Publish(snap)
}

func (l *Loop) send(p protocol.Packet) {
	encoded, err := protocol.Encode(p)
	if err != nil {
		l.logf("encode outbound packet tag=%d: %v", p.Tag, err)
		return
	}
	if l.RawLogger != nil {
		l.RawLogger.Log(false, encoded)
	}
	if _, err := l.conn.WriteToUDP(encoded, l.serverAddr); err != nil {
		l.logf("send outbound packet tag=%d: %v", p.Tag, err)
	}
}

func (l *Loop) nextPacketID() uint64 {
	l.packetCounter++
	return l.packetCounter
}

func (l *Loop) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Error(fmt.Sprintf(format, args...))
	}
}

package uplink

import (
	"net"
	"testing"
	"time"

	"github.com/slimevr-wrangler/joybridge/internal/config"
	"github.com/slimevr-wrangler/joybridge/internal/protocol"
	"github.com/slimevr-wrangler/joybridge/internal/reader"
	"github.com/slimevr-wrangler/joybridge/internal/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLoop wires a Loop against a loopback server stub listening on an
// OS-assigned port, mirroring the teacher's server_test.go style of binding
// real sockets for integration-shaped tests rather than mocking net.Conn.
func newTestLoop(t *testing.T) (*Loop, *net.UDPConn, chan reader.Event) {
	t.Helper()
	serverConn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { serverConn.Close() })

	store := config.NewStore(config.Default())
	store.Update(func(s *config.Settings) { s.Address = serverConn.LocalAddr().String() })

	events := make(chan reader.Event, 256)
	loop := &Loop{
		Settings: store,
		Events:   events,
		Status:   status.NewFeed(),
	}
	return loop, serverConn, events
}

func runLoopFor(t *testing.T, l *Loop, d time.Duration) {
	t.Helper()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = l.Run(stop)
		close(done)
	}()
	time.Sleep(d)
	close(stop)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Loop.Run did not exit after stop was closed")
	}
}

func TestDeviceMapAssignsDenseAscendingIDs(t *testing.T) {
	m := newDeviceMap(false)
	d0, isNew0, err := m.connect(reader.DeviceInfo{Serial: "a"})
	require.NoError(t, err)
	assert.True(t, isNew0)
	assert.Equal(t, uint8(0), d0.id)

	d1, isNew1, err := m.connect(reader.DeviceInfo{Serial: "b"})
	require.NoError(t, err)
	assert.True(t, isNew1)
	assert.Equal(t, uint8(1), d1.id)

	again, isNewAgain, err := m.connect(reader.DeviceInfo{Serial: "a"})
	require.NoError(t, err)
	assert.False(t, isNewAgain)
	assert.Equal(t, uint8(0), again.id)
}

func TestDeviceMapOverflowIsFatal(t *testing.T) {
	m := newDeviceMap(true)
	for i := 0; i <= maxDeviceID; i++ {
		_, _, err := m.connect(reader.DeviceInfo{Serial: string(rune('a' + i%26)) + string(rune(i))})
		require.NoError(t, err)
	}
	_, _, err := m.connect(reader.DeviceInfo{Serial: "overflow"})
	assert.ErrorIs(t, err, errOverflow)
}

func TestDeviceMapOverflowIsFatalEvenWithoutKeepIDsWhenAllStillConnected(t *testing.T) {
	m := newDeviceMap(false)
	for i := 0; i <= maxDeviceID; i++ {
		_, _, err := m.connect(reader.DeviceInfo{Serial: string(rune('a' + i%26)) + string(rune(i))})
		require.NoError(t, err)
	}
	_, _, err := m.connect(reader.DeviceInfo{Serial: "overflow"})
	assert.ErrorIs(t, err, errOverflow)
}

func TestDeviceMapRecyclesDisconnectedIDWithoutKeepIDs(t *testing.T) {
	m := newDeviceMap(false)
	for i := 0; i <= maxDeviceID; i++ {
		_, _, err := m.connect(reader.DeviceInfo{Serial: string(rune('a' + i%26)) + string(rune(i))})
		require.NoError(t, err)
	}

	victim, ok := m.get(string(rune('a' + 3%26)) + string(rune(3)))
	require.True(t, ok)
	m.disconnect(victim.serial)

	d, isNew, err := m.connect(reader.DeviceInfo{Serial: "newcomer"})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, victim.id, d.id)

	_, stillThere := m.get(victim.serial)
	assert.False(t, stillThere)
}

func TestDeviceRefreshStatusThresholds(t *testing.T) {
	now := time.Now()

	d := &device{status: status.StatusNoIMU}
	for i := 0; i < 55; i++ {
		d.recordIMUBurst(now)
	}
	d.refreshStatus(now)
	assert.Equal(t, status.StatusHealthy, d.status)

	d2 := &device{status: status.StatusNoIMU}
	for i := 0; i < 10; i++ {
		d2.recordIMUBurst(now)
	}
	d2.refreshStatus(now)
	assert.Equal(t, status.StatusLaggyIMU, d2.status)

	d3 := &device{status: status.StatusNoIMU}
	d3.refreshStatus(now)
	assert.Equal(t, status.StatusNoIMU, d3.status)
}

func TestDeviceRefreshStatusDisconnectedIsSticky(t *testing.T) {
	now := time.Now()
	d := &device{status: status.StatusDisconnected}
	for i := 0; i < 100; i++ {
		d.recordIMUBurst(now)
	}
	d.refreshStatus(now)
	assert.Equal(t, status.StatusDisconnected, d.status)
}

func TestDeviceRefreshStatusPrunesOldTimestamps(t *testing.T) {
	now := time.Now()
	d := &device{status: status.StatusNoIMU}
	d.recordIMUBurst(now.Add(-2 * time.Second))
	d.refreshStatus(now)
	assert.Equal(t, status.StatusNoIMU, d.status)
	assert.Empty(t, d.recentIMU)
}

func TestLoopSendsSensorInfoOnFirstConnect(t *testing.T) {
	loop, serverConn, events := newTestLoop(t)
	events <- reader.Event{Kind: reader.EventConnected, Serial: "s1", Connected: &reader.DeviceInfo{Serial: "s1", Design: reader.DesignLeft}}

	runLoopFor(t, loop, 150*time.Millisecond)

	buf := make([]byte, protocol.MaxPacketSize)
	_ = serverConn.SetReadDeadline(time.Now().Add(1 * time.Second))
	var sawSensorInfo bool
	for {
		n, _, err := serverConn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		p, err := protocol.Decode(buf[:n])
		if err != nil {
			continue
		}
		if p.Tag == protocol.TagSensorInfo && p.SensorInfo.SensorID == 0 {
			sawSensorInfo = true
			break
		}
	}
	assert.True(t, sawSensorInfo)
}

func TestLoopEchoesPing(t *testing.T) {
	loop, serverConn, _ := newTestLoop(t)

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = loop.Run(stop)
		close(done)
	}()
	defer func() {
		close(stop)
		<-done
	}()

	// wait for the loop to bind and send its first handshake so we know its
	// client address, then target the ping at it.
	buf := make([]byte, protocol.MaxPacketSize)
	_ = serverConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, clientAddr, err := serverConn.ReadFromUDP(buf)
	require.NoError(t, err)
	_, err = protocol.Decode(buf[:n])
	require.NoError(t, err)

	pingEncoded, err := protocol.Encode(protocol.Ping(0xCAFEBABE))
	require.NoError(t, err)

	start := time.Now()
	_, err = serverConn.WriteToUDP(pingEncoded, clientAddr)
	require.NoError(t, err)

	_ = serverConn.SetReadDeadline(time.Now().Add(1 * time.Second))
	for {
		n, _, err := serverConn.ReadFromUDP(buf)
		require.NoError(t, err)
		p, err := protocol.Decode(buf[:n])
		if err != nil {
			continue
		}
		if p.Tag == protocol.TagPing {
			assert.Less(t, time.Since(start), 50*time.Millisecond)
			require.NotNil(t, p.Ping)
			assert.Equal(t, uint32(0xCAFEBABE), p.Ping.ID)
			return
		}
	}
}

// TestLoopResetDebounce asserts the wire-level property from spec.md §8
// directly: across two controllers both requesting reset inside the same
// 2-second debounce window, at most one UserAction packet leaves the
// socket — not one per device.
func TestLoopResetDebounce(t *testing.T) {
	loop, serverConn, events := newTestLoop(t)
	events <- reader.Event{Kind: reader.EventConnected, Serial: "s1", Connected: &reader.DeviceInfo{Serial: "s1"}}
	events <- reader.Event{Kind: reader.EventConnected, Serial: "s2", Connected: &reader.DeviceInfo{Serial: "s2"}}
	events <- reader.Event{Kind: reader.EventReset, Serial: "s1"}
	events <- reader.Event{Kind: reader.EventReset, Serial: "s2"}
	events <- reader.Event{Kind: reader.EventReset, Serial: "s1"}

	runLoopFor(t, loop, 150*time.Millisecond)

	buf := make([]byte, protocol.MaxPacketSize)
	_ = serverConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	var userActions int
	for {
		n, _, err := serverConn.ReadFromUDP(buf)
		if err != nil {
			break
		}
		p, err := protocol.Decode(buf[:n])
		if err != nil {
			continue
		}
		if p.Tag == protocol.TagUserAction {
			userActions++
		}
	}
	assert.LessOrEqual(t, userActions, 1)
}

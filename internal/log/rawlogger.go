package log

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/slimevr-wrangler/joybridge/internal/protocol"
)

// RawLogger handles raw tracker-wire packet tracing with optional file
// output. This is for the SlimeVR UDP wire protocol only — HID traffic is
// never logged or replayed here.
type RawLogger interface {
	Log(in bool, data []byte)
}

// rawLogger implements RawLogger with thread-safe log.
type rawLogger struct {
	w  io.Writer
	mu sync.Mutex
}

// NewRaw creates a new RawLogger. If writer is nil, returns a no-op logger.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

// Log emits a single-line raw packet trace with timestamp, a decoded
// description of the SlimeVR packet ("tag=N" for a decoded tag without its
// own annotation, "raw" on a decode failure), and a hex dump. in=true means the packet came from
// the tracker server, in=false means it was sent to it.
func (r *rawLogger) Log(in bool, data []byte) {
	if len(data) == 0 {
		return
	}
	if r.w == nil {
		return
	}

	dir := "server->bridge"
	if !in {
		dir = "bridge->server"
	}

	var hexbuf bytes.Buffer
	const hexdigits = "0123456789abcdef"
	for i, b := range data {
		if i > 0 {
			hexbuf.WriteByte(' ')
		}
		hexbuf.WriteByte(hexdigits[b>>4])
		hexbuf.WriteByte(hexdigits[b&0x0f])
	}

	line := fmt.Sprintf("%s %s %s chunk: %d bytes, hex: %s\n",
		time.Now().Format("2006/01/02 15:04:05"),
		dir,
		describePacket(data),
		len(data),
		hexbuf.String())

	r.mu.Lock()
	_, _ = r.w.Write([]byte(line))
	r.mu.Unlock()
}

// describePacket decodes data as a SlimeVR packet and annotates the trace
// line with its tag name and the handful of fields useful for spotting
// protocol regressions at a glance (sensor id, packet id), rather than
// leaving the reader to decode hex by hand. A packet this bridge itself
// cannot decode (malformed, or a tag the protocol codec does not model) is
// reported as "raw" instead of failing the trace.
func describePacket(data []byte) string {
	p, err := protocol.Decode(data)
	if err != nil {
		return "raw"
	}
	switch p.Tag {
	case protocol.TagHandshake:
		return "handshake"
	case protocol.TagHandshakeResponse:
		return "handshake-response"
	case protocol.TagPing:
		id := uint32(0)
		if p.Ping != nil {
			id = p.Ping.ID
		}
		return fmt.Sprintf("ping id=%d", id)
	case protocol.TagSensorInfo:
		id := uint8(0)
		if p.SensorInfo != nil {
			id = p.SensorInfo.SensorID
		}
		return fmt.Sprintf("sensor-info sensor=%d", id)
	case protocol.TagRotationData:
		id := uint8(0)
		if p.RotationData != nil {
			id = p.RotationData.SensorID
		}
		return fmt.Sprintf("rotation-data sensor=%d", id)
	case protocol.TagAcceleration:
		return "acceleration"
	case protocol.TagUserAction:
		return "user-action"
	default:
		return fmt.Sprintf("tag=%d", p.Tag)
	}
}

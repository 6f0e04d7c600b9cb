package log

import (
	"bytes"
	"strings"
	"testing"

	"github.com/slimevr-wrangler/joybridge/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRawLoggerAnnotatesDecodablePacket(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf)

	encoded, err := protocol.Encode(protocol.UserAction(7, 3))
	require.NoError(t, err)

	r.Log(false, encoded)

	line := buf.String()
	assert.Contains(t, line, "bridge->server")
	assert.Contains(t, line, "user-action")
}

func TestRawLoggerDescribesSensorID(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf)

	encoded, err := protocol.Encode(protocol.SensorInfo(1, 5, 1, 0))
	require.NoError(t, err)

	r.Log(true, encoded)

	line := buf.String()
	assert.Contains(t, line, "server->bridge")
	assert.Contains(t, line, "sensor-info sensor=5")
}

func TestRawLoggerFallsBackToRawOnUndecodableData(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf)

	r.Log(true, []byte{0xff, 0xff, 0xff})

	assert.True(t, strings.Contains(buf.String(), "raw"))
}

func TestRawLoggerNoOpWithoutWriter(t *testing.T) {
	r := NewRaw(nil)
	r.Log(true, []byte{0x01, 0x02, 0x03})
}

func TestRawLoggerIgnoresEmptyData(t *testing.T) {
	var buf bytes.Buffer
	r := NewRaw(&buf)
	r.Log(true, nil)
	assert.Empty(t, buf.String())
}

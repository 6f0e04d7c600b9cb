package protocol

import (
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fromHexWords(s string) []byte {
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		panic(err)
	}
	return b
}

func TestRoundTripAllVariants(t *testing.T) {
	packets := []Packet{
		Rotation(1, Quaternion{I: 0.1, J: 0.2, K: 0.3, W: 0.9}),
		Handshake(1, 2, 3, 4, [3]int32{5, 6, 7}, 8, "test", [6]byte{0x79, 0x22, 0xA4, 0xFA, 0xE7, 0xCC}),
		Acceleration(1, [3]float32{1, 2, 3}, 9, true),
		Acceleration(1, [3]float32{1, 2, 3}, 0, false),
		Ping(0x01020304),
		SensorInfo(1, 64, 3, 5),
		RotationData(1, 64, 1, Quaternion{I: 0, J: 0, K: 0, W: 1}, 2),
		UserAction(1, 3),
		HandshakeResponsePkt(),
	}

	for _, p := range packets {
		encoded, err := Encode(p)
		require.NoError(t, err)
		decoded, err := Decode(encoded)
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}
}

func TestHandshakeLiteralEncoding(t *testing.T) {
	p := Handshake(1, 2, 3, 4, [3]int32{5, 6, 7}, 8, "test", [6]byte{0x79, 0x22, 0xA4, 0xFA, 0xE7, 0xCC})
	want := fromHexWords("00 00 00 03 00 00 00 00 00 00 00 01 00 00 00 02 00 00 00 03 00 00 00 04 00 00 00 05 00 00 00 06 00 00 00 07 00 00 00 08 04 74 65 73 74 79 22 A4 FA E7 CC")

	got, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRotationLiteralEncoding(t *testing.T) {
	p := Rotation(1, Quaternion{I: 0, J: 0, K: 0, W: 1})
	want := fromHexWords("00 00 00 01 00 00 00 00 00 00 00 01 00 00 00 00 00 00 00 00 00 00 00 00 3F 80 00 00")

	got, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSensorInfoLiteralEncoding(t *testing.T) {
	p := SensorInfo(1, 64, 3, 5)
	want := fromHexWords("00 00 00 0F 00 00 00 00 00 00 00 01 40 03 05")

	got, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestUserActionLiteralEncoding(t *testing.T) {
	p := UserAction(1, 3)
	want := fromHexWords("00 00 00 15 00 00 00 00 00 00 00 01 03")

	got, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestHandshakeResponseLiteralEncoding(t *testing.T) {
	p := HandshakeResponsePkt()
	want := fromHexWords("03 48 65 79")

	got, err := Encode(p)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecodePingLiteral(t *testing.T) {
	data := fromHexWords("00 00 00 0A 01 02 03 04")
	p, err := Decode(data)
	require.NoError(t, err)
	require.NotNil(t, p.Ping)
	assert.Equal(t, uint32(0x01020304), p.Ping.ID)
}

func TestDecodeUnknownTagFails(t *testing.T) {
	data := fromHexWords("FF FF FF FF 00 00 00 00")
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeTruncatedFails(t *testing.T) {
	data := fromHexWords("00 00 00 01 00 00")
	_, err := Decode(data)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestDecodeEmptyFails(t *testing.T) {
	_, err := Decode(nil)
	assert.ErrorIs(t, err, ErrDecode)
}

func TestAccelerationWithoutSensorIDDecodesMissing(t *testing.T) {
	p := Acceleration(5, [3]float32{1, 2, 3}, 0, false)
	encoded, err := Encode(p)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.NotNil(t, decoded.Acceleration)
	assert.False(t, decoded.Acceleration.HasSensorID)
}

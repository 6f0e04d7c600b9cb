// Package protocol implements the SlimeVR tracker UDP wire protocol: a
// length-unframed datagram format with a 4-byte big-endian packet-type tag
// followed by a type-specific body.
//
// Encoding follows the teacher's manual-binary-encoding idiom for HID/USB
// wire reports (see device/mouse/inputstate.go and usbip/usbip.go in the
// reference corpus) rather than a reflection-based codec: every packet type
// has hand-written Encode/Decode logic operating directly on
// encoding/binary, which keeps the bit layout exact and auditable against
// the literal test vectors this protocol is pinned to.
package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Tag identifies a packet's wire type.
type Tag uint32

const (
	TagRotation          Tag = 1
	TagHandshake         Tag = 3
	TagAcceleration      Tag = 4
	TagPing              Tag = 10
	TagSensorInfo        Tag = 15
	TagRotationData      Tag = 17
	TagUserAction        Tag = 21
	TagHandshakeResponse Tag = 55076217 // big-endian encoding of 0x03 'H' 'e' 'y'
)

// MaxPacketSize bounds the encoded size of any packet this codec produces.
const MaxPacketSize = 512

// ErrDecode is wrapped by every decode failure: unrecognized tag,
// truncated body, or a malformed length-prefixed string. Callers are
// expected to silently discard packets that fail to decode.
var ErrDecode = errors.New("protocol: decode failed")

// Quaternion is the wire-order (i, j, k, w) quaternion used by Rotation and
// RotationData packets.
type Quaternion struct {
	I, J, K, W float32
}

// Packet is the sum type of every decodable/encodable wire packet. Exactly
// one of the typed fields is meaningful, selected by Tag.
type Packet struct {
	Tag Tag

	Rotation          *RotationPacket
	Handshake         *HandshakePacket
	Acceleration      *AccelerationPacket
	Ping              *PingPacket
	SensorInfo        *SensorInfoPacket
	RotationData      *RotationDataPacket
	UserAction        *UserActionPacket
	HandshakeResponse *HandshakeResponsePacket
}

type RotationPacket struct {
	PacketID uint64
	Quat     Quaternion
}

type HandshakePacket struct {
	PacketID uint64
	Board    int32
	IMU      int32
	MCU      int32
	IMUInfo  [3]int32
	Build    int32
	Firmware string
	MAC      [6]byte
}

type AccelerationPacket struct {
	PacketID uint64
	Vector   [3]float32
	// SensorID is emitted as a trailing byte when HasSensorID is true.
	SensorID    uint8
	HasSensorID bool
}

type PingPacket struct {
	ID uint32
}

type SensorInfoPacket struct {
	PacketID         uint64
	SensorID         uint8
	SensorStatus     uint8
	SensorType       uint8
}

type RotationDataPacket struct {
	PacketID         uint64
	SensorID         uint8
	DataType         uint8
	Quat             Quaternion
	CalibrationInfo  uint8
}

type UserActionPacket struct {
	PacketID uint64
	Type     uint8
}

// HandshakeResponsePacket has an empty body; its entire identity is the tag.
type HandshakeResponsePacket struct{}

func Rotation(packetID uint64, q Quaternion) Packet {
	return Packet{Tag: TagRotation, Rotation: &RotationPacket{PacketID: packetID, Quat: q}}
}

func Handshake(packetID uint64, board, imu, mcu int32, imuInfo [3]int32, build int32, firmware string, mac [6]byte) Packet {
	return Packet{Tag: TagHandshake, Handshake: &HandshakePacket{
		PacketID: packetID, Board: board, IMU: imu, MCU: mcu,
		IMUInfo: imuInfo, Build: build, Firmware: firmware, MAC: mac,
	}}
}

func Acceleration(packetID uint64, v [3]float32, sensorID uint8, hasSensorID bool) Packet {
	return Packet{Tag: TagAcceleration, Acceleration: &AccelerationPacket{
		PacketID: packetID, Vector: v, SensorID: sensorID, HasSensorID: hasSensorID,
	}}
}

func Ping(id uint32) Packet {
	return Packet{Tag: TagPing, Ping: &PingPacket{ID: id}}
}

func SensorInfo(packetID uint64, sensorID, status, sensorType uint8) Packet {
	return Packet{Tag: TagSensorInfo, SensorInfo: &SensorInfoPacket{
		PacketID: packetID, SensorID: sensorID, SensorStatus: status, SensorType: sensorType,
	}}
}

func RotationData(packetID uint64, sensorID, dataType uint8, q Quaternion, calibrationInfo uint8) Packet {
	return Packet{Tag: TagRotationData, RotationData: &RotationDataPacket{
		PacketID: packetID, SensorID: sensorID, DataType: dataType, Quat: q, CalibrationInfo: calibrationInfo,
	}}
}

func UserAction(packetID uint64, typ uint8) Packet {
	return Packet{Tag: TagUserAction, UserAction: &UserActionPacket{PacketID: packetID, Type: typ}}
}

func HandshakeResponsePkt() Packet {
	return Packet{Tag: TagHandshakeResponse, HandshakeResponse: &HandshakeResponsePacket{}}
}

// Encode serializes p to its big-endian wire form. The result is always
// <= MaxPacketSize bytes and re-decodes to an equal Packet.
func Encode(p Packet) ([]byte, error) {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, uint32(p.Tag)); err != nil {
		return nil, err
	}

	switch p.Tag {
	case TagRotation:
		if p.Rotation == nil {
			return nil, fmt.Errorf("protocol: encode Rotation: nil body")
		}
		if err := binary.Write(&buf, binary.BigEndian, p.Rotation.PacketID); err != nil {
			return nil, err
		}
		if err := writeQuat(&buf, p.Rotation.Quat); err != nil {
			return nil, err
		}
	case TagHandshake:
		h := p.Handshake
		if h == nil {
			return nil, fmt.Errorf("protocol: encode Handshake: nil body")
		}
		if err := binary.Write(&buf, binary.BigEndian, h.PacketID); err != nil {
			return nil, err
		}
		for _, v := range []int32{h.Board, h.IMU, h.MCU, h.IMUInfo[0], h.IMUInfo[1], h.IMUInfo[2], h.Build} {
			if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
				return nil, err
			}
		}
		if err := writeSlimeString(&buf, h.Firmware); err != nil {
			return nil, err
		}
		buf.Write(h.MAC[:])
	case TagAcceleration:
		a := p.Acceleration
		if a == nil {
			return nil, fmt.Errorf("protocol: encode Acceleration: nil body")
		}
		if err := binary.Write(&buf, binary.BigEndian, a.PacketID); err != nil {
			return nil, err
		}
		if err := binary.Write(&buf, binary.BigEndian, a.Vector); err != nil {
			return nil, err
		}
		if a.HasSensorID {
			buf.WriteByte(a.SensorID)
		}
	case TagPing:
		if p.Ping == nil {
			return nil, fmt.Errorf("protocol: encode Ping: nil body")
		}
		if err := binary.Write(&buf, binary.BigEndian, p.Ping.ID); err != nil {
			return nil, err
		}
	case TagSensorInfo:
		s := p.SensorInfo
		if s == nil {
			return nil, fmt.Errorf("protocol: encode SensorInfo: nil body")
		}
		if err := binary.Write(&buf, binary.BigEndian, s.PacketID); err != nil {
			return nil, err
		}
		buf.WriteByte(s.SensorID)
		buf.WriteByte(s.SensorStatus)
		buf.WriteByte(s.SensorType)
	case TagRotationData:
		r := p.RotationData
		if r == nil {
			return nil, fmt.Errorf("protocol: encode RotationData: nil body")
		}
		if err := binary.Write(&buf, binary.BigEndian, r.PacketID); err != nil {
			return nil, err
		}
		buf.WriteByte(r.SensorID)
		buf.WriteByte(r.DataType)
		if err := writeQuat(&buf, r.Quat); err != nil {
			return nil, err
		}
		buf.WriteByte(r.CalibrationInfo)
	case TagUserAction:
		u := p.UserAction
		if u == nil {
			return nil, fmt.Errorf("protocol: encode UserAction: nil body")
		}
		if err := binary.Write(&buf, binary.BigEndian, u.PacketID); err != nil {
			return nil, err
		}
		buf.WriteByte(u.Type)
	case TagHandshakeResponse:
		// empty body; the tag alone is the payload.
	default:
		return nil, fmt.Errorf("protocol: encode: unknown tag %d", p.Tag)
	}

	if buf.Len() > MaxPacketSize {
		return nil, fmt.Errorf("protocol: encoded packet exceeds %d bytes", MaxPacketSize)
	}
	return buf.Bytes(), nil
}

func writeQuat(buf *bytes.Buffer, q Quaternion) error {
	for _, v := range []float32{q.I, q.J, q.K, q.W} {
		if err := binary.Write(buf, binary.BigEndian, v); err != nil {
			return err
		}
	}
	return nil
}

func writeSlimeString(buf *bytes.Buffer, s string) error {
	if len(s) > 255 {
		return fmt.Errorf("protocol: string too long for 8-bit length prefix: %d bytes", len(s))
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
	return nil
}

// Decode parses the wire form of a single packet. Unrecognized tags,
// truncated bodies, and malformed string lengths all return an error
// wrapping ErrDecode; the caller should discard the packet and continue.
func Decode(data []byte) (Packet, error) {
	r := bytes.NewReader(data)
	var rawTag uint32
	if err := binary.Read(r, binary.BigEndian, &rawTag); err != nil {
		return Packet{}, fmt.Errorf("%w: missing tag: %v", ErrDecode, err)
	}
	tag := Tag(rawTag)

	switch tag {
	case TagRotation:
		var packetID uint64
		if err := binary.Read(r, binary.BigEndian, &packetID); err != nil {
			return Packet{}, fmt.Errorf("%w: Rotation.packet_id: %v", ErrDecode, err)
		}
		q, err := readQuat(r)
		if err != nil {
			return Packet{}, fmt.Errorf("%w: Rotation.quat: %v", ErrDecode, err)
		}
		return Rotation(packetID, q), nil

	case TagHandshake:
		var packetID uint64
		if err := binary.Read(r, binary.BigEndian, &packetID); err != nil {
			return Packet{}, fmt.Errorf("%w: Handshake.packet_id: %v", ErrDecode, err)
		}
		var vals [7]int32
		for i := range vals {
			if err := binary.Read(r, binary.BigEndian, &vals[i]); err != nil {
				return Packet{}, fmt.Errorf("%w: Handshake field %d: %v", ErrDecode, i, err)
			}
		}
		firmware, err := readSlimeString(r)
		if err != nil {
			return Packet{}, fmt.Errorf("%w: Handshake.firmware: %v", ErrDecode, err)
		}
		var mac [6]byte
		if _, err := readFull(r, mac[:]); err != nil {
			return Packet{}, fmt.Errorf("%w: Handshake.mac: %v", ErrDecode, err)
		}
		return Handshake(packetID, vals[0], vals[1], vals[2], [3]int32{vals[3], vals[4], vals[5]}, vals[6], firmware, mac), nil

	case TagAcceleration:
		var packetID uint64
		if err := binary.Read(r, binary.BigEndian, &packetID); err != nil {
			return Packet{}, fmt.Errorf("%w: Acceleration.packet_id: %v", ErrDecode, err)
		}
		var v [3]float32
		if err := binary.Read(r, binary.BigEndian, &v); err != nil {
			return Packet{}, fmt.Errorf("%w: Acceleration.vector: %v", ErrDecode, err)
		}
		sensorID := byte(0)
		hasSensorID := false
		if b, err := r.ReadByte(); err == nil {
			sensorID = b
			hasSensorID = true
		}
		return Acceleration(packetID, v, sensorID, hasSensorID), nil

	case TagPing:
		var id uint32
		if err := binary.Read(r, binary.BigEndian, &id); err != nil {
			return Packet{}, fmt.Errorf("%w: Ping.id: %v", ErrDecode, err)
		}
		return Ping(id), nil

	case TagSensorInfo:
		var packetID uint64
		if err := binary.Read(r, binary.BigEndian, &packetID); err != nil {
			return Packet{}, fmt.Errorf("%w: SensorInfo.packet_id: %v", ErrDecode, err)
		}
		var triplet [3]byte
		if _, err := readFull(r, triplet[:]); err != nil {
			return Packet{}, fmt.Errorf("%w: SensorInfo body: %v", ErrDecode, err)
		}
		return SensorInfo(packetID, triplet[0], triplet[1], triplet[2]), nil

	case TagRotationData:
		var packetID uint64
		if err := binary.Read(r, binary.BigEndian, &packetID); err != nil {
			return Packet{}, fmt.Errorf("%w: RotationData.packet_id: %v", ErrDecode, err)
		}
		var head [2]byte
		if _, err := readFull(r, head[:]); err != nil {
			return Packet{}, fmt.Errorf("%w: RotationData.sensor_id/data_type: %v", ErrDecode, err)
		}
		q, err := readQuat(r)
		if err != nil {
			return Packet{}, fmt.Errorf("%w: RotationData.quat: %v", ErrDecode, err)
		}
		calInfo, err := r.ReadByte()
		if err != nil {
			return Packet{}, fmt.Errorf("%w: RotationData.calibration_info: %v", ErrDecode, err)
		}
		return RotationData(packetID, head[0], head[1], q, calInfo), nil

	case TagUserAction:
		var packetID uint64
		if err := binary.Read(r, binary.BigEndian, &packetID); err != nil {
			return Packet{}, fmt.Errorf("%w: UserAction.packet_id: %v", ErrDecode, err)
		}
		typ, err := r.ReadByte()
		if err != nil {
			return Packet{}, fmt.Errorf("%w: UserAction.type: %v", ErrDecode, err)
		}
		return UserAction(packetID, typ), nil

	case TagHandshakeResponse:
		return HandshakeResponsePkt(), nil

	default:
		return Packet{}, fmt.Errorf("%w: unrecognized tag %d", ErrDecode, tag)
	}
}

func readQuat(r *bytes.Reader) (Quaternion, error) {
	var vals [4]float32
	if err := binary.Read(r, binary.BigEndian, &vals); err != nil {
		return Quaternion{}, err
	}
	return Quaternion{I: vals[0], J: vals[1], K: vals[2], W: vals[3]}, nil
}

func readSlimeString(r *bytes.Reader) (string, error) {
	count, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	data := make([]byte, count)
	if _, err := readFull(r, data); err != nil {
		return "", fmt.Errorf("length prefix %d exceeds remaining data: %w", count, err)
	}
	return string(data), nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n, err := r.Read(buf)
	if err != nil {
		return n, err
	}
	if n < len(buf) {
		return n, fmt.Errorf("short read: got %d of %d bytes", n, len(buf))
	}
	return n, nil
}

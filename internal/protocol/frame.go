// Package protocol implements the framed serial/socket wire format shared
// by the hardware front-end's ingest and transmit activities: frame
// layout, CRC, and the ACK-pairing UUID (§6 of the design).
package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// PayloadLength is SENSEI_PAYLOAD_LENGTH from the wire protocol.
const PayloadLength = 58

var startHeader = [3]byte{0x01, 0x02, 0x03}
var stopHeader = [3]byte{0x04, 0x05, 0x06}

// Cmd identifies the top-level wire command.
type Cmd uint8

const (
	CmdValue Cmd = iota
	CmdGetAllValues
	CmdConfigurePin
	CmdSetSamplingRate
	CmdSetDigitalOutput
	CmdEnableSendingPackets
	CmdAck
)

// SubCmd, for CmdValue, identifies which pin type the payload decodes as;
// for CmdConfigurePin it identifies which parameter the payload carries.
type SubCmd uint8

const (
	SubCmdDigital SubCmd = iota
	SubCmdAnalog
	SubCmdImu

	// SubCmdConfigurePin is the only CmdConfigurePin sub-command: the
	// payload always carries the pin's full configuration struct (§6),
	// not one field at a time.
	SubCmdConfigurePin
)

// Frame is the in-memory representation of one wire packet.
type Frame struct {
	Cmd          Cmd
	SubCmd       SubCmd
	Continuation bool
	Timestamp    uint32
	Payload      [PayloadLength]byte
	CRC          uint16
}

// frameWireLength is the number of bytes on the wire: 3 start + cmd +
// subcmd + continuation + reserved + 4 timestamp + payload + 2 crc + 3
// stop.
const frameWireLength = 3 + 1 + 1 + 1 + 1 + 4 + PayloadLength + 2 + 3

// UUID returns the composite ack-pairing identifier for a frame's
// (timestamp, cmd, sub_cmd) triple, per the glossary.
func UUID(cmd Cmd, sub SubCmd, timestamp uint32) uint64 {
	return uint64(timestamp) | uint64(cmd)<<32 | uint64(sub)<<48
}

func (f Frame) uuid() uint64 { return UUID(f.Cmd, f.SubCmd, f.Timestamp) }

// UUID returns this frame's ack-pairing identifier.
func (f Frame) UUID() uint64 { return f.uuid() }

// calculateCRC seeds the sum with cmd+sub_cmd, then adds the continuation
// byte, the 4 little-endian timestamp bytes and every payload byte, per
// original_source's calculate_crc.
func calculateCRC(f Frame) uint16 {
	sum := uint16(f.Cmd) + uint16(f.SubCmd)

	var cont uint8
	if f.Continuation {
		cont = 1
	}
	sum += uint16(cont)

	var tsBytes [4]byte
	binary.LittleEndian.PutUint32(tsBytes[:], f.Timestamp)
	for _, b := range tsBytes {
		sum += uint16(b)
	}

	for _, b := range f.Payload {
		sum += uint16(b)
	}
	return sum
}

// NewFrame builds a Frame with its CRC populated.
func NewFrame(cmd Cmd, sub SubCmd, continuation bool, timestamp uint32, payload [PayloadLength]byte) Frame {
	f := Frame{Cmd: cmd, SubCmd: sub, Continuation: continuation, Timestamp: timestamp, Payload: payload}
	f.CRC = calculateCRC(f)
	return f
}

// VerifyMessage reports whether frame's own CRC matches its content. The
// header bytes are checked separately by Decode, since Encode/Decode is
// the only path that ever sees a start/stop header explicitly.
func VerifyMessage(f Frame) bool {
	return f.CRC == calculateCRC(f)
}

// Encode serializes a Frame to its wire representation.
func Encode(f Frame) []byte {
	buf := make([]byte, 0, frameWireLength)
	buf = append(buf, startHeader[:]...)
	buf = append(buf, byte(f.Cmd), byte(f.SubCmd))
	if f.Continuation {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	buf = append(buf, 0) // reserved

	var tsBytes [4]byte
	binary.LittleEndian.PutUint32(tsBytes[:], f.Timestamp)
	buf = append(buf, tsBytes[:]...)
	buf = append(buf, f.Payload[:]...)

	var crcBytes [2]byte
	binary.LittleEndian.PutUint16(crcBytes[:], f.CRC)
	buf = append(buf, crcBytes[:]...)
	buf = append(buf, stopHeader[:]...)
	return buf
}

// ErrStartHeader and ErrStopHeader are returned by Decode when the
// respective framing signature does not match.
var (
	ErrStartHeader   = errors.New("start header not present")
	ErrStopHeader    = errors.New("stop header not present")
	ErrShortBuffer   = errors.New("buffer too short for a frame")
	ErrCRCMismatch   = errors.New("crc mismatch")
)

// Decode parses one wire frame from buf, which must be exactly
// frameWireLength bytes (the caller is responsible for framing on the
// transport, e.g. reading exactly that many bytes per iteration).
func Decode(buf []byte) (Frame, error) {
	var f Frame
	if len(buf) < frameWireLength {
		return f, errors.Wrapf(ErrShortBuffer, "got %d bytes, want %d", len(buf), frameWireLength)
	}
	if buf[0] != startHeader[0] || buf[1] != startHeader[1] || buf[2] != startHeader[2] {
		return f, ErrStartHeader
	}
	off := 3
	f.Cmd = Cmd(buf[off])
	f.SubCmd = SubCmd(buf[off+1])
	f.Continuation = buf[off+2] != 0
	// buf[off+3] is reserved.
	off += 4
	f.Timestamp = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	copy(f.Payload[:], buf[off:off+PayloadLength])
	off += PayloadLength
	f.CRC = binary.LittleEndian.Uint16(buf[off : off+2])
	off += 2
	if buf[off] != stopHeader[0] || buf[off+1] != stopHeader[1] || buf[off+2] != stopHeader[2] {
		return f, ErrStopHeader
	}
	if !VerifyMessage(f) {
		return f, ErrCRCMismatch
	}
	return f, nil
}

// FrameWireLength exposes frameWireLength to callers that must size read
// buffers (e.g. transports doing one fixed-size read per frame).
func FrameWireLength() int { return frameWireLength }

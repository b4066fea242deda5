package protocol

import (
	"encoding/binary"
	"math"

	"github.com/mindmusiclabs/sensei/internal/message"
)

// AckPayload is the {status_code, ack_cmd, ack_sub_cmd} payload carried by
// CmdAck frames.
type AckPayload struct {
	Status StatusCode
	AckCmd Cmd
	AckSub SubCmd
}

func DecodeAck(f Frame) AckPayload {
	return AckPayload{
		Status: StatusCode(f.Payload[0]),
		AckCmd: Cmd(f.Payload[1]),
		AckSub: SubCmd(f.Payload[2]),
	}
}

func EncodeAckPayload(p AckPayload) [PayloadLength]byte {
	var payload [PayloadLength]byte
	payload[0] = byte(p.Status)
	payload[1] = byte(p.AckCmd)
	payload[2] = byte(p.AckSub)
	return payload
}

// ConfigurePinPayload is the payload structure for CmdConfigurePin (§6).
type ConfigurePinPayload struct {
	PinIndex      uint16
	PinType       uint8
	SendingMode   uint8
	DeltaTicks    uint16
	ADCBits       uint8
	FilterOrder   uint8
	LowpassCutoff float32
	SliderThresh  uint16
}

func encodeConfigurePinPayload(p ConfigurePinPayload) [PayloadLength]byte {
	var payload [PayloadLength]byte
	binary.LittleEndian.PutUint16(payload[0:2], p.PinIndex)
	payload[2] = p.PinType
	payload[3] = p.SendingMode
	binary.LittleEndian.PutUint16(payload[4:6], p.DeltaTicks)
	payload[6] = p.ADCBits
	payload[7] = p.FilterOrder
	binary.LittleEndian.PutUint32(payload[8:12], math.Float32bits(p.LowpassCutoff))
	binary.LittleEndian.PutUint16(payload[12:14], p.SliderThresh)
	return payload
}

// DecodeConfigurePinPayload exposes the raw CONFIGURE_PIN payload fields,
// used by tests to assert on individual fields without reconstructing a
// specific message.Command variant.
func DecodeConfigurePinPayload(payload [PayloadLength]byte) ConfigurePinPayload {
	return decodeConfigurePinPayload(payload)
}

func decodeConfigurePinPayload(payload [PayloadLength]byte) ConfigurePinPayload {
	return ConfigurePinPayload{
		PinIndex:      binary.LittleEndian.Uint16(payload[0:2]),
		PinType:       payload[2],
		SendingMode:   payload[3],
		DeltaTicks:    binary.LittleEndian.Uint16(payload[4:6]),
		ADCBits:       payload[6],
		FilterOrder:   payload[7],
		LowpassCutoff: math.Float32frombits(binary.LittleEndian.Uint32(payload[8:12])),
		SliderThresh:  binary.LittleEndian.Uint16(payload[12:14]),
	}
}

func wirePinType(pt message.PinType) uint8 {
	switch pt {
	case message.DigitalInput:
		return 0
	case message.AnalogInput:
		return 1
	case message.ImuInput:
		return 2
	default:
		return 3 // DISABLED
	}
}

func fromWirePinType(v uint8) message.PinType {
	switch v {
	case 0:
		return message.DigitalInput
	case 1:
		return message.AnalogInput
	case 2:
		return message.ImuInput
	default:
		return message.Disabled
	}
}

func wireSendingMode(m message.SendingMode) uint8 { return uint8(m) }

func fromWireSendingMode(v uint8) message.SendingMode { return message.SendingMode(v) }

// BuildFrames serializes a Command into one or more wire frames, per
// §4.5's packet factory. Every command handled here fits in one
// SENSEI_PAYLOAD_LENGTH-byte frame, so BuildFrames returns a single-element
// slice (nil for host-only command kinds) and never sets the continuation
// flag; the slice return type keeps the multi-frame shape for symmetry with
// the ingest side's MessageConcatenator.
func BuildFrames(cmd message.Command, timestamp uint32) []Frame {
	switch cmd.CommandKind {
	case message.CmdSetPinType, message.CmdSetSendingMode, message.CmdSetSendingDeltaTicks,
		message.CmdSetADCBitResolution, message.CmdSetLowpassFilterOrder,
		message.CmdSetLowpassCutoff, message.CmdSetSliderThreshold:
		return []Frame{buildConfigurePinFrame(cmd, timestamp)}
	case message.CmdSendDigitalPinValue:
		var payload [PayloadLength]byte
		if cmd.DigitalOut {
			payload[0] = 1
		}
		binary.LittleEndian.PutUint16(payload[1:3], uint16(cmd.Index()))
		return []Frame{NewFrame(CmdSetDigitalOutput, 0, false, timestamp, payload)}
	case message.CmdSetSamplingRate:
		var payload [PayloadLength]byte
		binary.LittleEndian.PutUint32(payload[0:4], math.Float32bits(cmd.SampleRate))
		return []Frame{NewFrame(CmdSetSamplingRate, 0, false, timestamp, payload)}
	case message.CmdEnableSendingPackets:
		var payload [PayloadLength]byte
		if cmd.SendingOn {
			payload[0] = 1
		}
		return []Frame{NewFrame(CmdEnableSendingPackets, 0, false, timestamp, payload)}
	case message.CmdGetAllValues:
		var payload [PayloadLength]byte
		return []Frame{NewFrame(CmdGetAllValues, 0, false, timestamp, payload)}
	default:
		return nil
	}
}

// buildConfigurePinFrame merges a mapping-configuration command into a
// CONFIGURE_PIN frame. Since the wire protocol carries the pin's full
// configuration in one payload rather than one field at a time, the
// transmit worker is expected to accumulate a mapper's current
// configuration (via emit_config) before calling this, matching how a
// single CONFIGURE_PIN wire command in the original protocol always
// carries every field.
func buildConfigurePinFrame(cmd message.Command, timestamp uint32) Frame {
	payload := ConfigurePinPayload{PinIndex: uint16(cmd.Index())}
	switch cmd.CommandKind {
	case message.CmdSetPinType:
		payload.PinType = wirePinType(cmd.PinType)
	case message.CmdSetSendingMode:
		payload.SendingMode = wireSendingMode(cmd.SendingMode)
	case message.CmdSetSendingDeltaTicks:
		payload.DeltaTicks = cmd.DeltaTicks
	case message.CmdSetADCBitResolution:
		payload.ADCBits = cmd.ADCBits
	case message.CmdSetLowpassFilterOrder:
		payload.FilterOrder = cmd.FilterOrder
	case message.CmdSetLowpassCutoff:
		payload.LowpassCutoff = cmd.CutoffHz
	case message.CmdSetSliderThreshold:
		payload.SliderThresh = cmd.Threshold
	}
	return NewFrame(CmdConfigurePin, SubCmdConfigurePin, false, timestamp, encodeConfigurePinPayload(payload))
}

// DecodeValue turns a CmdValue frame into a Value message via the message
// factory, per ingest step 4.
func DecodeValue(f Frame) message.Value {
	pinIndex := int(binary.LittleEndian.Uint16(f.Payload[0:2]))
	switch f.SubCmd {
	case SubCmdDigital:
		return message.NewDigitalValue(pinIndex, f.Payload[2] != 0, uint64(f.Timestamp))
	case SubCmdAnalog:
		raw := int32(binary.LittleEndian.Uint16(f.Payload[2:4]))
		return message.NewAnalogValue(pinIndex, raw, uint64(f.Timestamp))
	default:
		return message.NewAnalogValue(pinIndex, 0, uint64(f.Timestamp))
	}
}

// QuaternionPayload decodes an IMU value frame's four floats.
type QuaternionPayload struct {
	PinIndex   int
	Qw, Qx, Qy, Qz float32
}

func DecodeQuaternion(f Frame) QuaternionPayload {
	pinIndex := int(binary.LittleEndian.Uint16(f.Payload[0:2]))
	return QuaternionPayload{
		PinIndex: pinIndex,
		Qw:       math.Float32frombits(binary.LittleEndian.Uint32(f.Payload[2:6])),
		Qx:       math.Float32frombits(binary.LittleEndian.Uint32(f.Payload[6:10])),
		Qy:       math.Float32frombits(binary.LittleEndian.Uint32(f.Payload[10:14])),
		Qz:       math.Float32frombits(binary.LittleEndian.Uint32(f.Payload[14:18])),
	}
}


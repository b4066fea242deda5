package mapping

import "github.com/mindmusiclabs/sensei/internal/message"

// DigitalSensorMapper implements Mapper for a DIGITAL_INPUT pin: edge and
// toggle detection over a boolean stream.
type DigitalSensorMapper struct {
	common
	last       bool
	haveLast   bool
	toggleOn   bool
}

func NewDigitalSensorMapper(index int) *DigitalSensorMapper {
	return &DigitalSensorMapper{common: newCommon(index)}
}

func (m *DigitalSensorMapper) PinType() message.PinType { return message.DigitalInput }

func (m *DigitalSensorMapper) ApplyCommand(cmd message.Command) CommandErrorCode {
	if code, handled := m.applyCommonCommand(cmd); handled {
		return code
	}
	switch cmd.CommandKind {
	case message.CmdSendDigitalPinValue:
		// Loopback/diagnostic: host-requested digital output value, no
		// mapper state to mutate; acknowledged for completeness only.
		return OK
	default:
		return UnhandledCommandForSensorType
	}
}

func (m *DigitalSensorMapper) Process(v message.Value, backend Backend) {
	if v.ValueKind != message.ValueDigital {
		return
	}
	raw := v.Digital
	if m.inverted {
		raw = !raw
	}

	pressEdge := m.haveLast && !m.last && raw
	releaseEdge := m.haveLast && m.last && !raw
	changed := !m.haveLast || m.last != raw

	if pressEdge {
		m.toggleOn = !m.toggleOn
	}

	m.last = raw
	m.haveLast = true

	var emitValue bool
	var accepted bool

	switch m.sendingMode {
	case message.SendingOff:
		accepted = false
	case message.SendingContinuous:
		accepted, emitValue = true, raw
	case message.SendingOnValueChanged:
		accepted, emitValue = changed, raw
	case message.SendingOnPress:
		accepted, emitValue = pressEdge, raw
	case message.SendingOnRelease:
		accepted, emitValue = releaseEdge, raw
	case message.SendingToggle:
		accepted, emitValue = pressEdge, m.toggleOn
	}

	if accepted && m.acceptTick() {
		backend.Send(message.NewDigitalValue(v.Index(), emitValue, v.Time()))
	}
}

func (m *DigitalSensorMapper) EmitConfig(sink Sink) {
	sink.Emit(message.NewSetPinTypeCommand(m.index, message.DigitalInput, 0))
	sink.Emit(message.NewSetSendingModeCommand(m.index, m.sendingMode, 0))
	sink.Emit(message.NewSetSendingDeltaTicksCommand(m.index, m.deltaTicks, 0))
	sink.Emit(message.NewSetInputInvertedCommand(m.index, m.inverted, 0))
	if m.name != "" {
		sink.Emit(message.NewSetPinNameCommand(m.index, m.name, 0))
	}
}

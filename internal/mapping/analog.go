package mapping

import "github.com/mindmusiclabs/sensei/internal/message"

// AnalogSensorMapper implements Mapper for an ANALOG_INPUT pin: clamp,
// invert, normalize, low-pass filter, scale.
type AnalogSensorMapper struct {
	common

	adcBits         uint8
	inputMin        int32
	inputMax        int32
	outputMin       float32
	outputMax       float32
	sliderThreshold uint16

	filterOrder uint8
	cutoffHz    float32
	sampleRate  float32 // effective sample rate = global_rate / delta_ticks
	globalRate  float32
	filter      *lowPassCascade

	lastEmittedRaw int32
	haveLastRaw    bool
}

func NewAnalogSensorMapper(index int) *AnalogSensorMapper {
	m := &AnalogSensorMapper{
		common:      newCommon(index),
		adcBits:     10,
		outputMin:   0.0,
		outputMax:   1.0,
		filterOrder: 1,
		cutoffHz:    0, // 0 disables filtering until configured
		globalRate:  1000,
	}
	m.inputMax = maxADCCode(m.adcBits)
	m.resetFilter()
	return m
}

func maxADCCode(bits uint8) int32 {
	if bits < 3 {
		bits = 3
	}
	if bits > 16 {
		bits = 16
	}
	return int32(1)<<bits - 1
}

func (m *AnalogSensorMapper) PinType() message.PinType { return message.AnalogInput }

func (m *AnalogSensorMapper) effectiveSampleRate() float32 {
	if m.deltaTicks == 0 {
		return m.globalRate
	}
	return m.globalRate / float32(m.deltaTicks)
}

func (m *AnalogSensorMapper) resetFilter() {
	m.sampleRate = m.effectiveSampleRate()
	m.filter = newLowPassCascade(int(m.filterOrder), m.cutoffHz, m.sampleRate)
}

func (m *AnalogSensorMapper) ApplyCommand(cmd message.Command) CommandErrorCode {
	if code, handled := m.applyCommonCommand(cmd); handled {
		if cmd.CommandKind == message.CmdSetSendingDeltaTicks && code == OK {
			m.resetFilter()
		}
		return code
	}
	switch cmd.CommandKind {
	case message.CmdSetADCBitResolution:
		if cmd.ADCBits < 3 || cmd.ADCBits > 16 {
			return InvalidValue
		}
		m.adcBits = cmd.ADCBits
		maxCode := maxADCCode(m.adcBits)
		if m.inputMax > maxCode {
			m.inputMax = maxCode
		}
		if m.inputMin < 0 {
			m.inputMin = 0
		}
		if m.inputMin > maxCode {
			m.inputMin = maxCode
		}
		m.resetFilter()
		return OK
	case message.CmdSetInputScaleRange:
		maxCode := maxADCCode(m.adcBits)
		min, max := int32(cmd.ScaleMin), int32(cmd.ScaleMax)
		if min < 0 {
			min = 0
		}
		if max > maxCode {
			max = maxCode
		}
		if max < min {
			return InvalidValue
		}
		m.inputMin, m.inputMax = min, max
		return OK
	case message.CmdSetOutputScaleRange:
		m.outputMin = cmd.ScaleMin
		m.outputMax = cmd.ScaleMax
		return OK
	case message.CmdSetSliderThreshold:
		m.sliderThreshold = cmd.Threshold
		return OK
	case message.CmdSetLowpassFilterOrder:
		if cmd.FilterOrder < 1 || cmd.FilterOrder > 8 {
			return InvalidValue
		}
		m.filterOrder = cmd.FilterOrder
		m.resetFilter()
		return OK
	case message.CmdSetLowpassCutoff:
		if cmd.CutoffHz < 0 {
			return InvalidValue
		}
		m.cutoffHz = cmd.CutoffHz
		m.resetFilter()
		return OK
	default:
		return UnhandledCommandForSensorType
	}
}

func (m *AnalogSensorMapper) Process(v message.Value, backend Backend) {
	if v.ValueKind != message.ValueAnalog {
		return
	}
	raw := v.Analog

	maxCode := maxADCCode(m.adcBits)
	if raw < 0 {
		raw = 0
	}
	if raw > maxCode {
		raw = maxCode
	}

	if m.inverted {
		raw = maxCode - raw
	}

	span := m.inputMax - m.inputMin
	var normalized float32
	if span != 0 {
		normalized = float32(raw-m.inputMin) / float32(span)
	}
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	filtered := m.filter.step(normalized)
	scaled := m.outputMin + filtered*(m.outputMax-m.outputMin)

	var accepted bool
	switch m.sendingMode {
	case message.SendingOff:
		accepted = false
	case message.SendingContinuous:
		accepted = true
	case message.SendingOnValueChanged:
		if !m.haveLastRaw {
			// First sample only seeds the baseline; there is nothing to
			// compare it against yet, so it never emits on its own.
			m.lastEmittedRaw = raw
			m.haveLastRaw = true
			accepted = false
		} else {
			// Compared in raw ADC units after inversion: inversion just
			// relabels which physical direction is "up", so the threshold
			// should mean the same distance in either orientation.
			diff := raw - m.lastEmittedRaw
			if diff < 0 {
				diff = -diff
			}
			accepted = uint16(diff) >= m.sliderThreshold
		}
	default:
		// ON_PRESS/ON_RELEASE/TOGGLE are digital-only sending modes; an
		// analog pin configured with one never emits.
		accepted = false
	}

	if accepted && m.acceptTick() {
		m.lastEmittedRaw = raw
		m.haveLastRaw = true
		backend.Send(message.NewContinuousValue(v.Index(), scaled, v.Time()))
	}
}

func (m *AnalogSensorMapper) EmitConfig(sink Sink) {
	sink.Emit(message.NewSetPinTypeCommand(m.index, message.AnalogInput, 0))
	sink.Emit(message.NewSetSendingModeCommand(m.index, m.sendingMode, 0))
	sink.Emit(message.NewSetSendingDeltaTicksCommand(m.index, m.deltaTicks, 0))
	sink.Emit(message.NewSetADCBitResolutionCommand(m.index, m.adcBits, 0))
	sink.Emit(message.NewSetInputScaleRangeCommand(m.index, float32(m.inputMin), float32(m.inputMax), 0))
	sink.Emit(message.NewSetOutputScaleRangeCommand(m.index, m.outputMin, m.outputMax, 0))
	sink.Emit(message.NewSetInputInvertedCommand(m.index, m.inverted, 0))
	sink.Emit(message.NewSetSliderThresholdCommand(m.index, m.sliderThreshold, 0))
	sink.Emit(message.NewSetLowpassFilterOrderCommand(m.index, m.filterOrder, 0))
	sink.Emit(message.NewSetLowpassCutoffCommand(m.index, m.cutoffHz, 0))
	if m.name != "" {
		sink.Emit(message.NewSetPinNameCommand(m.index, m.name, 0))
	}
}

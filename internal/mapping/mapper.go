// Package mapping implements the per-pin sensor-mapping state machines and
// the indexed registry (Processor) that dispatches commands and
// values to them.
package mapping

import "github.com/mindmusiclabs/sensei/internal/message"

// CommandErrorCode is returned synchronously by every ApplyCommand call.
type CommandErrorCode int

const (
	OK CommandErrorCode = iota
	InvalidPinIndex
	UninitializedPin
	InvalidValue
	UnhandledCommandForSensorType
)

// Backend is the narrow slice of the output-backend contract a mapper
// needs: somewhere to push a processed value.
type Backend interface {
	Send(v message.Value)
}

// Sink collects config commands re-emitted by EmitConfig, e.g. for
// bootstrap replay or hot-reload round-tripping.
type Sink interface {
	Emit(cmd message.Command)
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(message.Command)

func (f SinkFunc) Emit(cmd message.Command) { f(cmd) }

// Mapper is the shared contract implemented by DigitalSensorMapper,
// AnalogSensorMapper and ImuMapper. It replaces the source's class
// hierarchy with a plain interface; dispatch is exhaustive pattern
// matching in Processor, never a runtime type query.
type Mapper interface {
	// PinType reports which slot type this mapper occupies.
	PinType() message.PinType

	// ApplyCommand mutates configuration state. It never sees
	// SetPinType, which the processor handles by replacing the mapper.
	ApplyCommand(cmd message.Command) CommandErrorCode

	// Process consumes one incoming raw value, possibly emitting zero
	// or more mapped values to backend.
	Process(v message.Value, backend Backend)

	// EmitConfig re-emits the current configuration as commands.
	EmitConfig(sink Sink)
}

// common holds the parameters shared by every mapper implementation.
type common struct {
	index       int
	sendingMode message.SendingMode
	deltaTicks  uint16
	tickCount   uint16
	inverted    bool
	name        string
}

func newCommon(index int) common {
	return common{index: index, sendingMode: message.SendingOff, deltaTicks: 1}
}

// acceptTick advances the decimation counter and reports whether this
// sample should be processed further (every deltaTicks-th accepted
// sample, per the glossary's "delta ticks" definition).
func (c *common) acceptTick() bool {
	if c.deltaTicks == 0 {
		c.deltaTicks = 1
	}
	c.tickCount++
	if c.tickCount >= c.deltaTicks {
		c.tickCount = 0
		return true
	}
	return false
}

func (c *common) applyCommonCommand(cmd message.Command) (CommandErrorCode, bool) {
	switch cmd.CommandKind {
	case message.CmdSetSendingMode:
		c.sendingMode = cmd.SendingMode
		return OK, true
	case message.CmdSetSendingDeltaTicks:
		if cmd.DeltaTicks == 0 {
			return InvalidValue, true
		}
		c.deltaTicks = cmd.DeltaTicks
		c.tickCount = 0
		return OK, true
	case message.CmdSetInputInverted:
		c.inverted = cmd.Inverted
		return OK, true
	case message.CmdSetPinName:
		c.name = cmd.Name
		return OK, true
	}
	return OK, false
}

package message

// PinType selects which mapper (if any) occupies a slot in the mapping
// processor.
type PinType int

const (
	DigitalInput PinType = iota
	AnalogInput
	ImuInput
	Disabled
)

// SendingMode is the per-pin policy governing when a processed value is
// emitted downstream.
type SendingMode int

const (
	SendingOff SendingMode = iota
	SendingContinuous
	SendingOnValueChanged
	SendingOnPress
	SendingOnRelease
	SendingToggle
)

// ParsePinType maps the config file and control-surface string names for
// PinType onto the enum, so the YAML back-end and the WebSocket user
// front-end agree on one vocabulary.
func ParsePinType(v string) (PinType, bool) {
	switch v {
	case "digital":
		return DigitalInput, true
	case "analog":
		return AnalogInput, true
	case "imu":
		return ImuInput, true
	case "disabled":
		return Disabled, true
	default:
		return Disabled, false
	}
}

// ParseSendingMode maps the config file and control-surface string names
// for SendingMode onto the enum.
func ParseSendingMode(v string) (SendingMode, bool) {
	switch v {
	case "continuous":
		return SendingContinuous, true
	case "on_value_changed":
		return SendingOnValueChanged, true
	case "on_press":
		return SendingOnPress, true
	case "on_release":
		return SendingOnRelease, true
	case "toggle":
		return SendingToggle, true
	case "off":
		return SendingOff, true
	default:
		return SendingOff, false
	}
}

// CommandKind discriminates the payload carried by a Command message. The
// ordering mirrors the wire protocol's sub-command numbering closely enough
// to make the packet factory's switch easy to read, but is not required to
// match it exactly.
type CommandKind int

const (
	CmdSetPinType CommandKind = iota
	CmdSetPinName
	CmdSetSendingMode
	CmdSetSendingDeltaTicks
	CmdSetADCBitResolution
	CmdSetLowpassFilterOrder
	CmdSetLowpassCutoff
	CmdSetSliderThreshold
	CmdSetInputScaleRange
	CmdSetOutputScaleRange
	CmdSetInputInverted
	CmdSendDigitalPinValue
	CmdSetSamplingRate
	CmdEnableSendingPackets
	CmdGetAllValues

	// CmdRouteImuAxis is host-side-only, like CmdSetPinName: it tells an
	// ImuMapper which output index to emit one derived Euler axis at. The
	// controller has no notion of axis-to-pin routing, so this never
	// reaches the wire.
	CmdRouteImuAxis
)

// Command carries a typed payload; only the fields relevant to CommandKind
// are meaningful, the rest are zero. This mirrors the teacher's
// comm.Command, which carries every field a wire command might need and
// lets serializeCommand pick the ones it cares about.
type Command struct {
	Base
	CommandKind CommandKind

	PinType     PinType
	Name        string
	SendingMode SendingMode
	DeltaTicks  uint16
	ADCBits     uint8
	FilterOrder uint8
	CutoffHz    float32
	Threshold   uint16
	ScaleMin    float32
	ScaleMax    float32
	Inverted    bool
	DigitalOut  bool
	SampleRate  float32
	SendingOn   bool
	ImuAxis     int
	RouteIndex  int
}

func (Command) Kind() Kind { return KindCommand }

func base(index int, ts uint64) Base { return Base{SensorIndex: index, Timestamp: ts} }

func NewSetPinTypeCommand(index int, pt PinType, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetPinType, PinType: pt}
}

func NewSetPinNameCommand(index int, name string, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetPinName, Name: name}
}

func NewSetSendingModeCommand(index int, mode SendingMode, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetSendingMode, SendingMode: mode}
}

func NewSetSendingDeltaTicksCommand(index int, ticks uint16, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetSendingDeltaTicks, DeltaTicks: ticks}
}

func NewSetADCBitResolutionCommand(index int, bits uint8, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetADCBitResolution, ADCBits: bits}
}

func NewSetLowpassFilterOrderCommand(index int, order uint8, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetLowpassFilterOrder, FilterOrder: order}
}

func NewSetLowpassCutoffCommand(index int, hz float32, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetLowpassCutoff, CutoffHz: hz}
}

func NewSetSliderThresholdCommand(index int, threshold uint16, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetSliderThreshold, Threshold: threshold}
}

func NewSetInputScaleRangeCommand(index int, min, max float32, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetInputScaleRange, ScaleMin: min, ScaleMax: max}
}

// NewSetOutputScaleRangeCommand sets the semantic [min,max] range a mapper
// scales its normalized output into. Not part of the wire protocol's
// CONFIGURE_PIN payload (§6): purely a host-side mapping concern, supplied
// so config files can override the [0,1] default (spec.md's config file
// description names "scaling" and "output routing" as configurable).
func NewSetOutputScaleRangeCommand(index int, min, max float32, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetOutputScaleRange, ScaleMin: min, ScaleMax: max}
}

func NewSetInputInvertedCommand(index int, inverted bool, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSetInputInverted, Inverted: inverted}
}

func NewSendDigitalPinValueCommand(index int, v bool, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdSendDigitalPinValue, DigitalOut: v}
}

func NewSetSamplingRateCommand(hz float32, ts uint64) Command {
	return Command{Base: base(GlobalIndex, ts), CommandKind: CmdSetSamplingRate, SampleRate: hz}
}

func NewEnableSendingPacketsCommand(on bool, ts uint64) Command {
	return Command{Base: base(GlobalIndex, ts), CommandKind: CmdEnableSendingPackets, SendingOn: on}
}

func NewGetAllValuesCommand(ts uint64) Command {
	return Command{Base: base(GlobalIndex, ts), CommandKind: CmdGetAllValues}
}

// NewRouteImuAxisCommand registers which output index an IMU slot's axis
// (0=yaw, 1=pitch, 2=roll) emits its converted value at.
func NewRouteImuAxisCommand(index, axis, routeIndex int, ts uint64) Command {
	return Command{Base: base(index, ts), CommandKind: CmdRouteImuAxis, ImuAxis: axis, RouteIndex: routeIndex}
}

// AffectsHardware reports whether an accepted command must be re-serialized
// and queued for transmission to the controller (invariant 4).
func (c Command) AffectsHardware() bool {
	switch c.CommandKind {
	case CmdSetPinType, CmdSetSendingMode, CmdSetSendingDeltaTicks, CmdSetADCBitResolution,
		CmdSetLowpassFilterOrder, CmdSetLowpassCutoff, CmdSetSliderThreshold,
		CmdSendDigitalPinValue, CmdSetSamplingRate, CmdEnableSendingPackets, CmdGetAllValues:
		return true
	default:
		// SetInputScaleRange, SetInputInverted, SetPinName and
		// RouteImuAxis are host-side mapping concerns: the controller
		// streams raw ADC codes and quaternions and knows nothing about
		// output scaling, inversion, diagnostic labels or axis routing.
		return false
	}
}

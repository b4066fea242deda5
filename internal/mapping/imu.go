package mapping

import (
	"math"

	"github.com/mindmusiclabs/sensei/internal/message"
)

// quaternionSingularityLimit clamps a Euler-angle computation to
// approximately ±86° rather than ±90° to avoid domain errors in asin, per
// the reference implementation's QUATERNION_SINGULARITY_LIMIT.
const quaternionSingularityLimit = 0.4995

// EulerAngles holds a quaternion-to-Euler conversion result, in radians.
type EulerAngles struct {
	Yaw, Pitch, Roll float32
}

// QuatToEuler converts a unit quaternion (qw,qx,qy,qz) to yaw/pitch/roll,
// clamping at the poles to avoid an asin domain error.
func QuatToEuler(qw, qx, qy, qz float32) EulerAngles {
	sing := float64(qw*qx + qy*qz)
	switch {
	case sing > quaternionSingularityLimit:
		return EulerAngles{
			Yaw:   float32(2 * math.Atan2(float64(qx), float64(qw))),
			Pitch: math.Pi / 2,
			Roll:  0,
		}
	case sing < -quaternionSingularityLimit:
		return EulerAngles{
			Yaw:   float32(-2 * math.Atan2(float64(qx), float64(qw))),
			Pitch: -math.Pi / 2,
			Roll:  0,
		}
	default:
		w, x, y, z := float64(qw), float64(qx), float64(qy), float64(qz)
		return EulerAngles{
			Yaw:   float32(math.Atan2(2*y*w-2*x*z, 1-2*y*y-2*z*z)),
			Pitch: float32(math.Asin(2*x*y + 2*z*w)),
			Roll:  float32(math.Atan2(2*x*w-2*y*z, 1-2*x*x-2*z*z)),
		}
	}
}

// ImuAxis identifies one of the three Euler channels a quaternion decomposes
// into.
type ImuAxis int

const (
	AxisYaw ImuAxis = iota
	AxisPitch
	AxisRoll
	axisCount
)

// ImuMapper implements Mapper for an IMU_INPUT pin. A single slot covers
// one physical pin index carrying quaternion samples, but routes each of
// the three derived Euler angles to independently configurable output
// indices; an axis with no registered output index is suppressed.
type ImuMapper struct {
	common
	outputIndex [axisCount]int
	routed      [axisCount]bool
}

const imuUnrouted = -1

func NewImuMapper(index int) *ImuMapper {
	m := &ImuMapper{common: newCommon(index)}
	for i := range m.outputIndex {
		m.outputIndex[i] = imuUnrouted
	}
	return m
}

func (m *ImuMapper) PinType() message.PinType { return message.ImuInput }

// RouteAxis registers axis to be emitted at outputIndex. This is a
// configuration-file-only concern (IMU axis-to-pin mapping, §6): there is
// no wire command for it, since the controller has no notion of which
// host-side pin an axis lands on.
func (m *ImuMapper) RouteAxis(axis ImuAxis, outputIndex int) {
	m.outputIndex[axis] = outputIndex
	m.routed[axis] = true
}

func (m *ImuMapper) ApplyCommand(cmd message.Command) CommandErrorCode {
	if code, handled := m.applyCommonCommand(cmd); handled {
		return code
	}
	if cmd.CommandKind == message.CmdRouteImuAxis {
		axis := ImuAxis(cmd.ImuAxis)
		if axis < 0 || axis >= axisCount {
			return InvalidValue
		}
		m.RouteAxis(axis, cmd.RouteIndex)
		return OK
	}
	return UnhandledCommandForSensorType
}

// ProcessQuaternion is the IMU-specific conversion entry point, used
// directly by tests and by Process below.
func (m *ImuMapper) ProcessQuaternion(qw, qx, qy, qz float32, ts uint64, backend Backend) {
	if !m.acceptTick() {
		return
	}
	angles := QuatToEuler(qw, qx, qy, qz)
	values := [axisCount]float32{AxisYaw: angles.Yaw, AxisPitch: angles.Pitch, AxisRoll: angles.Roll}
	for axis := ImuAxis(0); axis < axisCount; axis++ {
		if !m.routed[axis] {
			continue
		}
		backend.Send(message.NewContinuousValue(m.outputIndex[axis], values[axis], ts))
	}
}

// Process accepts a ValueQuaternion carrying one raw IMU sample; any other
// ValueKind reaching an IMU slot is a routing mistake upstream and is
// dropped.
func (m *ImuMapper) Process(v message.Value, backend Backend) {
	if v.ValueKind != message.ValueQuaternion {
		return
	}
	m.ProcessQuaternion(v.Qw, v.Qx, v.Qy, v.Qz, v.Time(), backend)
}

func (m *ImuMapper) EmitConfig(sink Sink) {
	sink.Emit(message.NewSetPinTypeCommand(m.index, message.ImuInput, 0))
	sink.Emit(message.NewSetSendingModeCommand(m.index, m.sendingMode, 0))
	sink.Emit(message.NewSetSendingDeltaTicksCommand(m.index, m.deltaTicks, 0))
	for axis := ImuAxis(0); axis < axisCount; axis++ {
		if m.routed[axis] {
			sink.Emit(message.NewRouteImuAxisCommand(m.index, int(axis), m.outputIndex[axis], 0))
		}
	}
}

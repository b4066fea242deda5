package eventhandler

import (
	"testing"
	"time"

	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/mapping"
	"github.com/mindmusiclabs/sensei/internal/message"
	"github.com/mindmusiclabs/sensei/internal/queue"
)

type recordingOutput struct {
	values []message.Value
}

func (o *recordingOutput) Send(v message.Value) { o.values = append(o.values, v) }

type recordingUser struct {
	errors []message.Error
}

func (u *recordingUser) NotifyError(e message.Error) { u.errors = append(u.errors, e) }

func newTestHandler() (*EventHandler, *recordingOutput, *recordingUser, *queue.Synchronized[message.Command], *queue.Synchronized[message.Message], *queue.Synchronized[message.Command]) {
	processor := mapping.NewProcessor(8, logging.NoOp())
	events := queue.New[message.Message](32)
	commands := queue.New[message.Command](32)
	toHardware := queue.New[message.Command](32)
	output := &recordingOutput{}
	user := &recordingUser{}
	h := New(processor, nil, output, user, events, commands, toHardware, logging.NoOp())
	return h, output, user, commands, events, toHardware
}

func TestApplyCommandForwardsHardwareAffectingCommand(t *testing.T) {
	h, _, _, commands, _, toHardware := newTestHandler()
	commands.Push(message.NewSetPinTypeCommand(2, message.DigitalInput, 0))
	h.HandleEvents()

	cmd, ok := toHardware.Pop()
	if !ok {
		t.Fatalf("expected the pin type command to reach the hardware queue")
	}
	if cmd.CommandKind != message.CmdSetPinType || cmd.Index() != 2 {
		t.Fatalf("unexpected forwarded command: %+v", cmd)
	}
}

func TestApplyCommandDoesNotForwardHostOnlyCommand(t *testing.T) {
	h, _, _, commands, _, toHardware := newTestHandler()
	commands.Push(message.NewSetPinTypeCommand(2, message.DigitalInput, 0))
	h.HandleEvents()
	// Discard the forwarded pin type command; SetInputInverted is then
	// accepted by the digital mapper but must stay on the host.
	toHardware.Pop()
	commands.Push(message.NewSetInputInvertedCommand(2, true, 0))
	h.HandleEvents()

	if _, ok := toHardware.Pop(); ok {
		t.Fatalf("expected no command forwarded for a host-only command")
	}
}

func TestApplyCommandRejectionNotifiesUser(t *testing.T) {
	h, _, user, commands, _, _ := newTestHandler()
	commands.Push(message.NewSetSendingModeCommand(3, message.SendingContinuous, 0))
	h.HandleEvents()

	if len(user.errors) != 1 {
		t.Fatalf("expected 1 notified error, got %d", len(user.errors))
	}
	if user.errors[0].ErrorKind != message.ErrUninitializedPin {
		t.Fatalf("expected uninitialized pin error, got %v", user.errors[0].ErrorKind)
	}
}

func TestDrainEventsRoutesValueThroughProcessor(t *testing.T) {
	h, output, _, commands, events, _ := newTestHandler()
	commands.Push(message.NewSetPinTypeCommand(1, message.DigitalInput, 0))
	commands.Push(message.NewSetSendingModeCommand(1, message.SendingContinuous, 0))
	h.HandleEvents()

	events.Push(message.NewDigitalValue(1, true, 10))
	h.HandleEvents()

	if len(output.values) != 1 || !output.values[0].Digital {
		t.Fatalf("expected one digital emission, got %+v", output.values)
	}
}

func TestHandleHardwareErrorNotifiesAboveWarning(t *testing.T) {
	h, _, user, _, events, _ := newTestHandler()
	events.Push(message.NewError(message.GlobalIndex, message.ErrTransportDisconnected, message.SeverityCritical, "link lost", 5))
	h.HandleEvents()

	if len(user.errors) != 1 {
		t.Fatalf("expected the hardware error to be surfaced, got %d", len(user.errors))
	}
}

func TestHandleHardwareErrorDoesNotNotifyBelowWarning(t *testing.T) {
	h, _, user, _, events, _ := newTestHandler()
	events.Push(message.NewError(message.GlobalIndex, message.ErrTransportFraming, message.SeverityInfo, "one frame dropped", 5))
	h.HandleEvents()

	if len(user.errors) != 0 {
		t.Fatalf("expected info-severity error to stay unsurfaced, got %d", len(user.errors))
	}
}

func TestReloadConfigReemitsHardwareAffectingCommands(t *testing.T) {
	h, _, _, commands, _, toHardware := newTestHandler()
	commands.Push(message.NewSetPinTypeCommand(4, message.AnalogInput, 0))
	h.HandleEvents()
	toHardware.WaitForData(time.Millisecond)
	for {
		if _, ok := toHardware.Pop(); !ok {
			break
		}
	}

	h.ReloadConfig()

	var sawPinType bool
	for {
		cmd, ok := toHardware.Pop()
		if !ok {
			break
		}
		if cmd.CommandKind == message.CmdSetPinType && cmd.Index() == 4 {
			sawPinType = true
		}
	}
	if !sawPinType {
		t.Fatalf("expected reload to re-emit the pin's set-pin-type command")
	}
}

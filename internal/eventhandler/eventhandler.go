// Package eventhandler implements the central dispatcher tying the
// hardware front-end, mapping processor, output back-end, config back-end
// and user front-end together around the two shared queues.
package eventhandler

import (
	"time"

	"github.com/mindmusiclabs/sensei/internal/backend"
	"github.com/mindmusiclabs/sensei/internal/hwfrontend"
	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/mapping"
	"github.com/mindmusiclabs/sensei/internal/message"
	"github.com/mindmusiclabs/sensei/internal/queue"
	"github.com/mindmusiclabs/sensei/internal/userfrontend"
)

// waitPeriod bounds how long HandleEvents blocks on each queue per
// iteration when it finds nothing to do, so the caller's loop still gets a
// chance to check its own stop condition.
const waitPeriod = 100 * time.Millisecond

// EventHandler is the central dispatcher: it drains events (values and
// errors from the hardware front-end) and commands (from the config and
// user front-ends), applies commands to the mapping processor, forwards
// hardware-affecting commands to the front-end's outbound queue, routes
// processed values to the output back-end, and notifies the user front-end
// of errors worth surfacing.
type EventHandler struct {
	processor *mapping.Processor
	frontend  *hwfrontend.Frontend
	output    backend.OutputBackend
	user      userfrontend.UserFrontend
	logger    logging.Logger

	events     *queue.Synchronized[message.Message]
	commands   *queue.Synchronized[message.Command]
	toHardware *queue.Synchronized[message.Command]
}

func New(
	processor *mapping.Processor,
	frontend *hwfrontend.Frontend,
	output backend.OutputBackend,
	user userfrontend.UserFrontend,
	events *queue.Synchronized[message.Message],
	commands *queue.Synchronized[message.Command],
	toHardware *queue.Synchronized[message.Command],
	logger logging.Logger,
) *EventHandler {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &EventHandler{
		processor:  processor,
		frontend:   frontend,
		output:     output,
		user:       user,
		events:     events,
		commands:   commands,
		toHardware: toHardware,
		logger:     logger,
	}
}

// Init starts the hardware front-end. It does not block.
func (h *EventHandler) Init() {
	h.frontend.Start()
}

// Deinit stops the hardware front-end and waits for its goroutines to
// exit.
func (h *EventHandler) Deinit() {
	h.frontend.Stop()
}

// HandleEvents drains one batch of work from both queues, blocking up to
// waitPeriod on each if it finds nothing ready. Callers run this in a loop
// until told to stop; each call does bounded work so the loop can check a
// stop condition between calls (the suspension-point model from the
// concurrency design).
func (h *EventHandler) HandleEvents() {
	h.drainCommands()
	h.drainEvents()
}

func (h *EventHandler) drainCommands() {
	h.commands.WaitForData(waitPeriod)
	for {
		cmd, ok := h.commands.Pop()
		if !ok {
			return
		}
		h.applyCommand(cmd)
	}
}

func (h *EventHandler) applyCommand(cmd message.Command) {
	code := h.processor.ApplyCommand(cmd)
	if code != mapping.OK {
		h.logger.Warn("command rejected", "index", cmd.Index(), "kind", cmd.CommandKind, "code", code)
		h.notify(message.NewError(cmd.Index(), errorKindFor(code), message.SeverityWarning, "command rejected", cmd.Time()))
		return
	}
	if cmd.AffectsHardware() {
		h.toHardware.Push(cmd)
	}
}

func errorKindFor(code mapping.CommandErrorCode) message.ErrorKind {
	switch code {
	case mapping.InvalidPinIndex:
		return message.ErrInvalidPinIndex
	case mapping.UninitializedPin:
		return message.ErrUninitializedPin
	case mapping.InvalidValue:
		return message.ErrInvalidValue
	default:
		return message.ErrUnhandledCommandForSensorType
	}
}

func (h *EventHandler) drainEvents() {
	h.events.WaitForData(waitPeriod)
	for {
		msg, ok := h.events.Pop()
		if !ok {
			return
		}
		switch m := msg.(type) {
		case message.Value:
			h.processor.Process(m, h.output)
		case message.Error:
			h.handleHardwareError(m)
		}
	}
}

func (h *EventHandler) handleHardwareError(e message.Error) {
	h.logger.Warn("hardware front-end reported error", "kind", e.ErrorKind, "detail", e.Detail)
	if e.Severity >= message.SeverityWarning {
		h.notify(e)
	}
}

func (h *EventHandler) notify(e message.Error) {
	if h.user != nil {
		h.user.NotifyError(e)
	}
}

// ReloadConfig re-emits every mapper's current configuration as a Command
// burst onto the outbound hardware queue, for use after a hot reload has
// already mutated the processor via drainCommands.
func (h *EventHandler) ReloadConfig() {
	h.processor.EmitAllConfig(mapping.SinkFunc(func(cmd message.Command) {
		if cmd.AffectsHardware() {
			h.toHardware.Push(cmd)
		}
	}))
}

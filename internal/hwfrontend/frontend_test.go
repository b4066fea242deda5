package hwfrontend

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mindmusiclabs/sensei/internal/message"
	"github.com/mindmusiclabs/sensei/internal/protocol"
	"github.com/mindmusiclabs/sensei/internal/queue"
)

// fakeTransport is an in-memory Transport: writes are captured, and reads
// are served from a queue of pre-built frames (or, when none is queued,
// sleep briefly and return a timeout error). It lets ingest/transmit
// logic be exercised without a real serial port or socket.
type fakeTransport struct {
	mu       sync.Mutex
	open     bool
	openErr  error
	closed   bool
	writes   [][]byte
	writeErr error
	inbound  [][]byte
	timeout  time.Duration
}

type fakeTimeoutErr struct{}

func (fakeTimeoutErr) Error() string { return "i/o timeout" }
func (fakeTimeoutErr) Timeout() bool { return true }

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.openErr != nil {
		return t.openErr
	}
	t.open = true
	t.closed = false
	return nil
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.open = false
	t.closed = true
	return nil
}

func (t *fakeTransport) SetReadTimeout(d time.Duration) error {
	t.mu.Lock()
	t.timeout = d
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) Read(buf []byte) (int, error) {
	t.mu.Lock()
	if len(t.inbound) == 0 {
		t.mu.Unlock()
		time.Sleep(time.Millisecond)
		return 0, fakeTimeoutErr{}
	}
	next := t.inbound[0]
	t.inbound = t.inbound[1:]
	t.mu.Unlock()
	n := copy(buf, next)
	return n, nil
}

func (t *fakeTransport) Write(buf []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	t.writes = append(t.writes, cp)
	return len(buf), nil
}

func (t *fakeTransport) pushInbound(f protocol.Frame) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbound = append(t.inbound, protocol.Encode(f))
}

func (t *fakeTransport) writeCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}

func waitFor(t *testing.T, cond func() bool, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestIngestDecodesValueFrame(t *testing.T) {
	transport := newFakeTransport()
	toHW := queue.New[message.Command](8)
	events := queue.New[message.Message](8)
	fe := New(transport, toHW, events, nil, false)

	var payload [protocol.PayloadLength]byte
	payload[0], payload[1] = 5, 0 // pin index 5, little-endian
	payload[2] = 1                // digital high
	frame := protocol.NewFrame(protocol.CmdValue, protocol.SubCmdDigital, false, 42, payload)
	transport.pushInbound(frame)

	fe.Start()
	defer fe.Stop()

	waitFor(t, func() bool { return !events.Empty() }, time.Second)
	msg, ok := events.Pop()
	if !ok {
		t.Fatal("expected a decoded value message")
	}
	v, ok := msg.(message.Value)
	if !ok {
		t.Fatalf("expected message.Value, got %T", msg)
	}
	if v.Index() != 5 || !v.Digital {
		t.Fatalf("unexpected value %+v", v)
	}
}

func TestTransmitEncodesQueuedCommand(t *testing.T) {
	transport := newFakeTransport()
	toHW := queue.New[message.Command](8)
	events := queue.New[message.Message](8)
	fe := New(transport, toHW, events, nil, false)

	fe.Start()
	defer fe.Stop()

	waitFor(t, func() bool { return fe.State() == Connected }, time.Second)
	toHW.Push(message.NewSetSamplingRateCommand(200, 0))

	waitFor(t, func() bool { return transport.writeCount() > 0 }, time.Second)
	frame, err := protocol.Decode(transport.writes[0])
	if err != nil {
		t.Fatalf("decode written frame: %v", err)
	}
	if frame.Cmd != protocol.CmdSetSamplingRate {
		t.Fatalf("expected CmdSetSamplingRate, got %v", frame.Cmd)
	}
}

func TestAckClearsPendingWithoutRetry(t *testing.T) {
	transport := newFakeTransport()
	toHW := queue.New[message.Command](8)
	events := queue.New[message.Message](8)
	fe := New(transport, toHW, events, nil, true)

	fe.Start()
	defer fe.Stop()

	waitFor(t, func() bool { return fe.State() == Connected }, time.Second)
	toHW.Push(message.NewEnableSendingPacketsCommand(true, 0))

	waitFor(t, func() bool { return transport.writeCount() > 0 }, time.Second)
	sent, err := protocol.Decode(transport.writes[0])
	if err != nil {
		t.Fatalf("decode written frame: %v", err)
	}

	ackPayload := protocol.EncodeAckPayload(protocol.AckPayload{
		Status: protocol.StatusOK,
		AckCmd: sent.Cmd,
		AckSub: sent.SubCmd,
	})
	ack := protocol.NewFrame(protocol.CmdAck, 0, false, sent.Timestamp, ackPayload)
	transport.pushInbound(ack)

	// A well-behaved ack must satisfy the pending wait without a retransmit.
	time.Sleep(ackTimeout + 50*time.Millisecond)
	if got := transport.writeCount(); got != 1 {
		t.Fatalf("expected exactly one write after ack, got %d", got)
	}
}

func TestReconnectsAfterWriteFailure(t *testing.T) {
	transport := newFakeTransport()
	toHW := queue.New[message.Command](8)
	events := queue.New[message.Message](8)
	fe := New(transport, toHW, events, nil, false)

	fe.Start()
	defer fe.Stop()

	waitFor(t, func() bool { return fe.State() == Connected }, time.Second)

	transport.mu.Lock()
	transport.writeErr = fakeTimeoutErr{}
	transport.mu.Unlock()
	toHW.Push(message.NewEnableSendingPacketsCommand(true, 0))

	// The failed write tears the link down; clearing the fault lets the
	// reconnect loop bring it back up on its own.
	waitFor(t, func() bool { return fe.State() != Connected }, time.Second)

	transport.mu.Lock()
	transport.writeErr = nil
	transport.mu.Unlock()

	waitFor(t, func() bool { return fe.State() == Connected }, 3*time.Second)

	found := false
	for _, ev := range drainErrors(events) {
		if ev.ErrorKind == message.ErrTransportDisconnected {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a transport-disconnected error to have been emitted")
	}
}

func TestReconnectPassesThroughDisconnectedState(t *testing.T) {
	transport := newFakeTransport()
	toHW := queue.New[message.Command](8)
	events := queue.New[message.Message](8)
	fe := New(transport, toHW, events, nil, false)

	fe.Start()
	defer fe.Stop()

	waitFor(t, func() bool { return fe.State() == Connected }, time.Second)

	// Fail both the write and the reconnect's own Open() so the state
	// machine stays in Disconnected across the post-teardown backoff and
	// the failed reconnect attempt's backoff as well.
	transport.mu.Lock()
	transport.writeErr = fakeTimeoutErr{}
	transport.openErr = fakeTimeoutErr{}
	transport.mu.Unlock()
	toHW.Push(message.NewEnableSendingPacketsCommand(true, 0))

	waitFor(t, func() bool { return fe.State() == Disconnected }, time.Second)

	transport.mu.Lock()
	transport.writeErr = nil
	transport.openErr = nil
	transport.mu.Unlock()

	waitFor(t, func() bool { return fe.State() == Connected }, 3*time.Second)
}

func TestMutedIngestDropsValuesButKeepsDecoding(t *testing.T) {
	transport := newFakeTransport()
	toHW := queue.New[message.Command](8)
	events := queue.New[message.Message](8)
	fe := New(transport, toHW, events, nil, false)
	fe.SetMuted(true)

	var payload [protocol.PayloadLength]byte
	payload[0], payload[1] = 5, 0
	payload[2] = 1
	frame := protocol.NewFrame(protocol.CmdValue, protocol.SubCmdDigital, false, 42, payload)
	transport.pushInbound(frame)

	fe.Start()
	defer fe.Stop()

	waitFor(t, func() bool { return fe.State() == Connected }, time.Second)
	time.Sleep(50 * time.Millisecond)
	if !events.Empty() {
		t.Fatalf("expected muted ingest to drop the decoded value instead of pushing it")
	}

	fe.SetMuted(false)
	transport.pushInbound(frame)
	waitFor(t, func() bool { return !events.Empty() }, time.Second)
}

func drainErrors(events *queue.Synchronized[message.Message]) []message.Error {
	var errs []message.Error
	for {
		msg, ok := events.Pop()
		if !ok {
			return errs
		}
		if e, ok := msg.(message.Error); ok {
			errs = append(errs, e)
		}
	}
}

var _ io.Closer = (*fakeTransport)(nil)

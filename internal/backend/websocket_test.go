package backend

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/message"
)

func TestEncodeSelectsFieldByValueKind(t *testing.T) {
	d := encode(message.NewDigitalValue(1, true, 5))
	if d.Kind != "digital" || !d.Digital {
		t.Fatalf("unexpected digital envelope: %+v", d)
	}
	a := encode(message.NewAnalogValue(2, 1024, 5))
	if a.Kind != "analog" || a.Analog != 1024 {
		t.Fatalf("unexpected analog envelope: %+v", a)
	}
	c := encode(message.NewContinuousValue(3, 0.75, 5))
	if c.Kind != "continuous" || c.Value != 0.75 {
		t.Fatalf("unexpected continuous envelope: %+v", c)
	}
}

func TestServeHTTPBroadcastsToConnectedClient(t *testing.T) {
	b := NewWebsocketOutputBackend(logging.NoOp())
	srv := httptest.NewServer(b)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for b.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 registered client, got %d", b.ClientCount())
	}

	b.Send(message.NewContinuousValue(9, 0.5, 100))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env valueEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if env.Index != 9 || env.Kind != "continuous" || env.Value != 0.5 {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestSendDropsOldestWhenClientBufferFull(t *testing.T) {
	client := &wsClient{outbound: make(chan valueEnvelope, 2), done: make(chan struct{})}
	b := &WebsocketOutputBackend{logger: logging.NoOp(), clients: map[*wsClient]struct{}{client: {}}}

	for i := 0; i < 5; i++ {
		b.Send(message.NewContinuousValue(0, float32(i), uint64(i)))
	}
	if len(client.outbound) != 2 {
		t.Fatalf("expected buffer to stay at capacity 2, got %d", len(client.outbound))
	}
	first := <-client.outbound
	if first.Value != 3 {
		t.Fatalf("expected oldest surviving value to be 3 after drops, got %v", first.Value)
	}
}

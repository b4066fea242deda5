// Package backend defines the output back-end contract: the sink that
// receives processed values from the mapping processor and forwards them
// downstream, plus a WebSocket reference implementation.
package backend

import "github.com/mindmusiclabs/sensei/internal/message"

// OutputBackend receives one processed value at a time. Implementations
// must never block the caller for longer than it takes to enqueue the
// value locally: the mapping processor calls this synchronously from the
// event handler's dispatch loop.
type OutputBackend interface {
	Send(v message.Value)
}

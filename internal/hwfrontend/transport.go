// Package hwfrontend implements the hardware front-end protocol state
// machine: framed transport, CRC verification, ack tracking, and
// reconnection (§4.5).
package hwfrontend

import "time"

// Transport abstracts the duplex link to the controller, whether a serial
// port or a pair of Unix-domain sockets, so the protocol state machine in
// Frontend is transport-agnostic.
type Transport interface {
	// Open establishes the link. Called from the Connecting state.
	Open() error
	// Close tears the link down. Idempotent.
	Close() error
	// SetReadTimeout bounds the next Read call, per READ_WRITE_TIMEOUT_MS.
	SetReadTimeout(d time.Duration) error
	// Read fills buf with exactly one frame's worth of bytes, or returns
	// an error (including a timeout) if it cannot.
	Read(buf []byte) (int, error)
	// Write sends exactly one frame's worth of bytes.
	Write(buf []byte) (int, error)
}

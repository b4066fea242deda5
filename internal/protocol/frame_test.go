package protocol

import (
	"testing"

	"github.com/mindmusiclabs/sensei/internal/message"
)

func TestVerifyMessageRoundTrips(t *testing.T) {
	var payload [PayloadLength]byte
	payload[0] = 0xAB
	f := NewFrame(CmdValue, SubCmdAnalog, false, 12345, payload)
	if !VerifyMessage(f) {
		t.Fatalf("expected freshly built frame to verify")
	}

	encoded := Encode(f)
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != f {
		t.Fatalf("round-tripped frame differs: got %+v want %+v", decoded, f)
	}
}

func TestVerifyMessageFailsOnSingleByteFlips(t *testing.T) {
	var payload [PayloadLength]byte
	payload[10] = 0x55
	f := NewFrame(CmdConfigurePin, SubCmdConfigurePin, false, 999, payload)
	encoded := Encode(f)

	// Flip one payload byte.
	corruptPayload := append([]byte(nil), encoded...)
	corruptPayload[11+10] ^= 0xFF
	if _, err := Decode(corruptPayload); err == nil {
		t.Fatalf("expected CRC mismatch after payload byte flip")
	}

	// Flip the cmd byte.
	corruptCmd := append([]byte(nil), encoded...)
	corruptCmd[3] ^= 0xFF
	if _, err := Decode(corruptCmd); err == nil {
		t.Fatalf("expected CRC mismatch after cmd byte flip")
	}

	// Flip a timestamp byte.
	corruptTs := append([]byte(nil), encoded...)
	corruptTs[7] ^= 0xFF
	if _, err := Decode(corruptTs); err == nil {
		t.Fatalf("expected CRC mismatch after timestamp byte flip")
	}
}

func TestDecodeRejectsBadHeaders(t *testing.T) {
	var payload [PayloadLength]byte
	f := NewFrame(CmdValue, SubCmdDigital, false, 1, payload)
	encoded := Encode(f)

	badStart := append([]byte(nil), encoded...)
	badStart[0] = 0x00
	if _, err := Decode(badStart); err != ErrStartHeader {
		t.Fatalf("expected ErrStartHeader, got %v", err)
	}

	badStop := append([]byte(nil), encoded...)
	badStop[len(badStop)-1] = 0x00
	if _, err := Decode(badStop); err != ErrStopHeader {
		t.Fatalf("expected ErrStopHeader, got %v", err)
	}
}

func TestUUIDPairing(t *testing.T) {
	a := UUID(CmdConfigurePin, SubCmdConfigurePin, 42)
	b := UUID(CmdConfigurePin, SubCmdConfigurePin, 42)
	if a != b {
		t.Fatalf("expected identical uuids for identical (cmd,sub,timestamp)")
	}
	c := UUID(CmdValue, SubCmdConfigurePin, 42)
	if a == c {
		t.Fatalf("expected different uuids for different cmd")
	}
}

// S4 — Frame round-trip via the packet factory.
func TestPacketFactoryDeltaTicksRoundTrip(t *testing.T) {
	cmd := message.NewSetSendingDeltaTicksCommand(3, 100, 0)
	frames := BuildFrames(cmd, 0)
	if len(frames) != 1 {
		t.Fatalf("expected a single frame, got %d", len(frames))
	}
	f := frames[0]
	if !VerifyMessage(f) {
		t.Fatalf("expected built frame to verify")
	}
	if f.Cmd != CmdConfigurePin {
		t.Fatalf("expected CmdConfigurePin, got %v", f.Cmd)
	}
	payload := DecodeConfigurePinPayload(f.Payload)
	if payload.DeltaTicks != 100 {
		t.Fatalf("expected delta_ticks=100, got %d", payload.DeltaTicks)
	}
	if int(payload.PinIndex) != 3 {
		t.Fatalf("expected pin index 3, got %d", payload.PinIndex)
	}
}

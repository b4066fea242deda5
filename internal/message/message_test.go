package message

import "testing"

func TestValueConstructorsSetKindAndFields(t *testing.T) {
	v := NewDigitalValue(3, true, 42)
	if v.Kind() != KindValue {
		t.Fatalf("expected KindValue, got %v", v.Kind())
	}
	if v.Index() != 3 || v.Time() != 42 || v.ValueKind != ValueDigital || !v.Digital {
		t.Fatalf("unexpected digital value: %+v", v)
	}

	a := NewAnalogValue(1, 2048, 7)
	if a.ValueKind != ValueAnalog || a.Analog != 2048 {
		t.Fatalf("unexpected analog value: %+v", a)
	}

	c := NewContinuousValue(1, 0.5, 7)
	if c.ValueKind != ValueContinuous || c.Continuous != 0.5 {
		t.Fatalf("unexpected continuous value: %+v", c)
	}
}

func TestGlobalCommandsUseGlobalIndex(t *testing.T) {
	cmd := NewSetSamplingRateCommand(1000, 1)
	if cmd.Index() != GlobalIndex {
		t.Fatalf("expected global index, got %d", cmd.Index())
	}
	if !cmd.AffectsHardware() {
		t.Fatalf("expected sampling rate command to affect hardware")
	}
}

func TestScaleAndInvertedCommandsAreHostOnly(t *testing.T) {
	if NewSetInputScaleRangeCommand(0, 0, 1, 0).AffectsHardware() {
		t.Fatalf("input scale range should not be transmitted to hardware")
	}
	if NewSetInputInvertedCommand(0, true, 0).AffectsHardware() {
		t.Fatalf("input inverted should not be transmitted to hardware")
	}
}

func TestPinTypeCommandAffectsHardware(t *testing.T) {
	cmd := NewSetPinTypeCommand(2, AnalogInput, 5)
	if !cmd.AffectsHardware() {
		t.Fatalf("expected set pin type to affect hardware")
	}
	if cmd.Kind() != KindCommand {
		t.Fatalf("expected KindCommand")
	}
}

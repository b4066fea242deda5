package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/message"
	"github.com/mindmusiclabs/sensei/internal/queue"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "sensei.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoadEmitsPinTypeThenFieldsThenGetAllValues(t *testing.T) {
	path := writeConfig(t, `
sample_rate_hz: 500
pins:
  - index: 3
    type: analog
    sending_mode: continuous
    adc_bits: 12
    input_min: 0
    input_max: 4095
`)
	commands := queue.New[message.Command](32)
	backend := NewYamlConfigBackend(path, commands, logging.NoOp())
	if err := backend.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	var kinds []message.CommandKind
	for {
		cmd, ok := commands.Pop()
		if !ok {
			break
		}
		kinds = append(kinds, cmd.CommandKind)
	}
	if len(kinds) == 0 {
		t.Fatalf("expected commands, got none")
	}
	if kinds[0] != message.CmdSetSamplingRate {
		t.Fatalf("expected sampling rate first, got %v", kinds[0])
	}
	if kinds[1] != message.CmdSetPinType {
		t.Fatalf("expected set pin type second, got %v", kinds[1])
	}
	if kinds[len(kinds)-1] != message.CmdGetAllValues {
		t.Fatalf("expected trailing get-all-values, got %v", kinds[len(kinds)-1])
	}
}

func TestImuAxisRoutingEmitsRouteCommands(t *testing.T) {
	yaw, pitch := 10, 11
	path := writeConfig(t, `
pins:
  - index: 7
    type: imu
    yaw_output: 10
    pitch_output: 11
`)
	commands := queue.New[message.Command](32)
	backend := NewYamlConfigBackend(path, commands, logging.NoOp())
	if err := backend.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}

	var routes []message.Command
	for {
		cmd, ok := commands.Pop()
		if !ok {
			break
		}
		if cmd.CommandKind == message.CmdRouteImuAxis {
			routes = append(routes, cmd)
		}
	}
	if len(routes) != 2 {
		t.Fatalf("expected 2 route commands, got %d", len(routes))
	}
	if routes[0].ImuAxis != 0 || routes[0].RouteIndex != yaw {
		t.Fatalf("unexpected yaw route: %+v", routes[0])
	}
	if routes[1].ImuAxis != 1 || routes[1].RouteIndex != pitch {
		t.Fatalf("unexpected pitch route: %+v", routes[1])
	}
}

func TestLoadRejectsUnknownField(t *testing.T) {
	path := writeConfig(t, "not_a_real_field: true\n")
	commands := queue.New[message.Command](8)
	backend := NewYamlConfigBackend(path, commands, logging.NoOp())
	if err := backend.Load(); err == nil {
		t.Fatalf("expected strict unmarshal to reject unknown field")
	}
}

func TestWatchReloadNoopWithoutSSEURL(t *testing.T) {
	path := writeConfig(t, "pins: []\n")
	commands := queue.New[message.Command](8)
	backend := NewYamlConfigBackend(path, commands, logging.NoOp())
	if err := backend.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	// Should return immediately without starting a goroutine that blocks
	// on a real network subscription.
	backend.WatchReload(func() { t.Fatalf("reload should not fire") })
}

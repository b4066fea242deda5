// Package config implements the config back-end contract: turning a
// declarative pin configuration into a burst of Command messages, with
// support for hot reload triggered by a companion editor process.
package config

import (
	"os"
	"time"

	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/message"
	"github.com/mindmusiclabs/sensei/internal/queue"
	"github.com/pkg/errors"
	"github.com/thiefmaster/eventsource"
	"gopkg.in/yaml.v2"
)

// PinConfig is one pin's declarative configuration, as read from the YAML
// file. Fields irrelevant to PinType are simply left at their zero value.
type PinConfig struct {
	Index         int     `yaml:"index"`
	Type          string  `yaml:"type"` // "digital", "analog", "imu", "disabled"
	Name          string  `yaml:"name,omitempty"`
	SendingMode   string  `yaml:"sending_mode,omitempty"`
	DeltaTicks    uint16  `yaml:"delta_ticks,omitempty"`
	ADCBits       uint8   `yaml:"adc_bits,omitempty"`
	FilterOrder   uint8   `yaml:"filter_order,omitempty"`
	CutoffHz      float32 `yaml:"cutoff_hz,omitempty"`
	Threshold     uint16  `yaml:"slider_threshold,omitempty"`
	InputMin      float32 `yaml:"input_min,omitempty"`
	InputMax      float32 `yaml:"input_max,omitempty"`
	OutputMin     float32 `yaml:"output_min,omitempty"`
	OutputMax     float32 `yaml:"output_max,omitempty"`
	Inverted    bool    `yaml:"inverted,omitempty"`
	YawOutput   *int    `yaml:"yaw_output,omitempty"`
	PitchOutput *int    `yaml:"pitch_output,omitempty"`
	RollOutput  *int    `yaml:"roll_output,omitempty"`
}

// FileConfig is the top-level shape of the config file, mirroring the
// teacher's appConfig: one struct, unmarshalled strictly so a typo in the
// file surfaces immediately instead of silently keeping a zero value.
type FileConfig struct {
	SampleRateHz float32     `yaml:"sample_rate_hz"`
	Pins         []PinConfig `yaml:"pins"`

	SSE struct {
		URL string `yaml:"url"`
	} `yaml:"sse"`
}

func (c *FileConfig) load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "reading config file %s", path)
	}
	if err := yaml.UnmarshalStrict(data, c); err != nil {
		return errors.Wrapf(err, "parsing config file %s", path)
	}
	return nil
}

// YamlConfigBackend loads pin configuration from a YAML file, translating
// it into a Command burst, and optionally watches a companion editor
// process's Server-Sent-Events endpoint for out-of-band reload triggers.
type YamlConfigBackend struct {
	path     string
	sseURL   string
	logger   logging.Logger
	commands *queue.Synchronized[message.Command]
}

func NewYamlConfigBackend(path string, commands *queue.Synchronized[message.Command], logger logging.Logger) *YamlConfigBackend {
	if logger == nil {
		logger = logging.NoOp()
	}
	return &YamlConfigBackend{path: path, commands: commands, logger: logger}
}

// Load reads the config file and enqueues one Command per configured
// field, in the order the mapping processor needs to see them: SetPinType
// first (it allocates the mapper), then every per-pin field, mirroring
// Mapper.EmitConfig's own ordering so a fresh boot and a hot reload leave
// mappers in the same state.
func (b *YamlConfigBackend) Load() error {
	var cfg FileConfig
	if err := cfg.load(b.path); err != nil {
		return err
	}
	b.sseURL = cfg.SSE.URL

	now := uint64(time.Now().UnixMilli())
	if cfg.SampleRateHz > 0 {
		b.commands.Push(message.NewSetSamplingRateCommand(cfg.SampleRateHz, now))
	}
	for _, pin := range cfg.Pins {
		for _, cmd := range commandsForPin(pin, now) {
			b.commands.Push(cmd)
		}
	}
	b.commands.Push(message.NewGetAllValuesCommand(now))
	b.logger.Info("config loaded", "path", b.path, "pins", len(cfg.Pins))
	return nil
}

func commandsForPin(p PinConfig, ts uint64) []message.Command {
	pinType, ok := message.ParsePinType(p.Type)
	if !ok {
		return nil
	}
	cmds := []message.Command{message.NewSetPinTypeCommand(p.Index, pinType, ts)}
	if p.Name != "" {
		cmds = append(cmds, message.NewSetPinNameCommand(p.Index, p.Name, ts))
	}
	if pinType == message.Disabled {
		return cmds
	}
	if mode, ok := message.ParseSendingMode(p.SendingMode); ok {
		cmds = append(cmds, message.NewSetSendingModeCommand(p.Index, mode, ts))
	}
	if p.DeltaTicks > 0 {
		cmds = append(cmds, message.NewSetSendingDeltaTicksCommand(p.Index, p.DeltaTicks, ts))
	}
	if p.Inverted {
		cmds = append(cmds, message.NewSetInputInvertedCommand(p.Index, p.Inverted, ts))
	}
	switch pinType {
	case message.ImuInput:
		if p.YawOutput != nil {
			cmds = append(cmds, message.NewRouteImuAxisCommand(p.Index, 0, *p.YawOutput, ts))
		}
		if p.PitchOutput != nil {
			cmds = append(cmds, message.NewRouteImuAxisCommand(p.Index, 1, *p.PitchOutput, ts))
		}
		if p.RollOutput != nil {
			cmds = append(cmds, message.NewRouteImuAxisCommand(p.Index, 2, *p.RollOutput, ts))
		}
	case message.AnalogInput:
		if p.ADCBits > 0 {
			cmds = append(cmds, message.NewSetADCBitResolutionCommand(p.Index, p.ADCBits, ts))
		}
		if p.InputMax > 0 {
			cmds = append(cmds, message.NewSetInputScaleRangeCommand(p.Index, p.InputMin, p.InputMax, ts))
		}
		if p.OutputMax > 0 || p.OutputMin != 0 {
			cmds = append(cmds, message.NewSetOutputScaleRangeCommand(p.Index, p.OutputMin, p.OutputMax, ts))
		}
		if p.Threshold > 0 {
			cmds = append(cmds, message.NewSetSliderThresholdCommand(p.Index, p.Threshold, ts))
		}
		if p.FilterOrder > 0 {
			cmds = append(cmds, message.NewSetLowpassFilterOrderCommand(p.Index, p.FilterOrder, ts))
		}
		if p.CutoffHz > 0 {
			cmds = append(cmds, message.NewSetLowpassCutoffCommand(p.Index, p.CutoffHz, ts))
		}
	}
	return cmds
}

// WatchReload subscribes to the companion editor's SSE endpoint (populated
// from the file's own sse.url field by Load) and calls reload whenever a
// "config-changed" event arrives, matching apis.SubscribeNotHubState's
// background-channel-drives-callback shape. It returns immediately; the
// subscription runs until process exit, same as the teacher's.
func (b *YamlConfigBackend) WatchReload(reload func()) {
	if b.sseURL == "" {
		return
	}
	go b.watchLoop(reload)
}

func (b *YamlConfigBackend) watchLoop(reload func()) {
	stream, err := eventsource.Subscribe(b.sseURL, "")
	if err != nil {
		b.logger.Warn("config sse subscribe failed", "err", err)
		time.Sleep(time.Second)
		go b.watchLoop(reload)
		return
	}
	stream.InitialRetryDelay = 500 * time.Millisecond
	stream.MaxRetryDelay = 5 * time.Second

	for {
		select {
		case event := <-stream.Events:
			if event.Event() == "config-changed" {
				b.logger.Info("config change pushed via sse, reloading")
				if err := b.Load(); err != nil {
					b.logger.Error("config reload failed", "err", err)
				} else {
					reload()
				}
			}
		case err := <-stream.Errors:
			b.logger.Warn("config sse stream error", "err", err)
		}
	}
}

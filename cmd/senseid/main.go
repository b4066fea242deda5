// Command senseid runs the sensor-gateway daemon: it opens the hardware
// link, loads pin configuration, and dispatches values and commands
// between the hardware front-end, the mapping processor, the output
// back-end and the user front-end until interrupted.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mindmusiclabs/sensei/internal/backend"
	"github.com/mindmusiclabs/sensei/internal/config"
	"github.com/mindmusiclabs/sensei/internal/eventhandler"
	"github.com/mindmusiclabs/sensei/internal/hwfrontend"
	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/mapping"
	"github.com/mindmusiclabs/sensei/internal/message"
	"github.com/mindmusiclabs/sensei/internal/queue"
	"github.com/mindmusiclabs/sensei/internal/userfrontend"
)

func main() {
	var (
		configPath = flag.String("config", "sensei.yaml", "path to the pin configuration file")
		serialPort = flag.String("serial-port", "", "serial device path (mutually exclusive with -socket-in)")
		serialBaud = flag.Int("serial-baud", 115200, "serial baud rate")
		socketIn   = flag.String("socket-in", "", "inbound AF_UNIX SOCK_SEQPACKET path (mutually exclusive with -serial-port)")
		socketOut  = flag.String("socket-out", "", "outbound AF_UNIX SOCK_SEQPACKET path")
		httpAddr   = flag.String("http-addr", ":7770", "address to serve the output and user front-ends on")
		logFile    = flag.String("log-file", "", "rotate logs to this file instead of stderr")
		debugLog   = flag.Bool("debug", false, "enable debug logging")
		maxPins    = flag.Int("max-pins", 64, "number of pin slots the mapping processor manages")
		verifyAcks = flag.Bool("verify-acks", true, "require and retry on hardware acks")
		muted      = flag.Bool("muted", false, "start with ingest delivery muted (decoding still runs, values are dropped)")
		mmURL      = flag.String("mattermost-url", "", "mattermost server URL for hardware alerts (optional)")
		mmToken    = flag.String("mattermost-token", "", "mattermost access token")
		mmTeam     = flag.String("mattermost-team", "", "mattermost team name")
		mmChannel  = flag.String("mattermost-channel", "", "mattermost channel name")
	)
	flag.Parse()

	logger := logging.New(logging.Options{FilePath: *logFile, Debug: *debugLog})

	transport, err := buildTransport(*serialPort, *serialBaud, *socketIn, *socketOut)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	events := queue.New[message.Message](1024)
	commands := queue.New[message.Command](256)
	toHardware := queue.New[message.Command](256)

	processor := mapping.NewProcessor(*maxPins, logger)
	frontend := hwfrontend.New(transport, toHardware, events, logger, *verifyAcks)
	frontend.SetMuted(*muted)
	output := backend.NewWebsocketOutputBackend(logger)

	var mmConfig *userfrontend.MattermostConfig
	if *mmURL != "" {
		mmConfig = &userfrontend.MattermostConfig{
			ServerURL:   *mmURL,
			AccessToken: *mmToken,
			TeamName:    *mmTeam,
			ChannelName: *mmChannel,
		}
	}
	user := userfrontend.NewWebsocketUserFrontend(commands, logger, mmConfig)

	handler := eventhandler.New(processor, frontend, output, user, events, commands, toHardware, logger)

	cfgBackend := config.NewYamlConfigBackend(*configPath, commands, logger)
	if err := cfgBackend.Load(); err != nil {
		logger.Error("initial config load failed", "err", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/values", output.ServeHTTP)
	mux.HandleFunc("/control", user.ServeHTTP)
	httpServer := &http.Server{Addr: *httpAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "err", err)
		}
	}()

	handler.Init()
	cfgBackend.WatchReload(handler.ReloadConfig)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-quit:
				return
			default:
				handler.HandleEvents()
			}
		}
	}()

	<-stop
	logger.Info("shutting down")
	close(quit)
	<-done
	handler.Deinit()
	_ = httpServer.Close()
}

func buildTransport(serialPort string, serialBaud int, socketIn, socketOut string) (hwfrontend.Transport, error) {
	switch {
	case serialPort != "":
		return hwfrontend.NewSerialTransport(serialPort, serialBaud), nil
	case socketIn != "" && socketOut != "":
		return hwfrontend.NewUnixSocketTransport(socketIn, socketOut), nil
	default:
		return nil, fmt.Errorf("must specify either -serial-port or both -socket-in and -socket-out")
	}
}

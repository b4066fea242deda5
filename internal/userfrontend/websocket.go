package userfrontend

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	mm "github.com/mattermost/mattermost/server/public/model"
	"github.com/mindmusiclabs/sensei/internal/logging"
	"github.com/mindmusiclabs/sensei/internal/message"
	"github.com/mindmusiclabs/sensei/internal/queue"
)

// commandEnvelope is the JSON shape a control surface sends, one envelope
// per WebSocket message, to submit one command.
type commandEnvelope struct {
	Index       int     `json:"index"`
	Command     string  `json:"command"`
	PinType     string  `json:"pin_type,omitempty"`
	SendingMode string  `json:"sending_mode,omitempty"`
	Value       float32 `json:"value,omitempty"`
	Bool        bool    `json:"bool,omitempty"`
	Name        string  `json:"name,omitempty"`
}

// errorEnvelope is what NotifyError fans out to every connected session.
type errorEnvelope struct {
	Index     int    `json:"index"`
	Kind      string `json:"kind"`
	Severity  string `json:"severity"`
	Detail    string `json:"detail"`
	Timestamp uint64 `json:"timestamp"`
}

// MattermostConfig configures the optional ops-channel alert path,
// mirroring apis.MattermostSettings.
type MattermostConfig struct {
	ServerURL   string
	AccessToken string
	TeamName    string
	ChannelName string
}

// session is one connected control-surface client, identified by a
// google/uuid value used only for log correlation (never confused with the
// wire-protocol ack UUID, which is a plain uint64).
type session struct {
	id   uuid.UUID
	conn *websocket.Conn
}

// WebsocketUserFrontend runs a gorilla/websocket server accepting operator
// command submissions and implements NotifyError by fanning errors out to
// every connected session, plus an optional Mattermost alert post for
// severe hardware errors.
type WebsocketUserFrontend struct {
	logger   logging.Logger
	commands *queue.Synchronized[message.Command]
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	sessions map[*session]struct{}

	mattermost *MattermostConfig
	mmClient   *mm.Client4
	mmChannel  string
}

func NewWebsocketUserFrontend(commands *queue.Synchronized[message.Command], logger logging.Logger, mattermost *MattermostConfig) *WebsocketUserFrontend {
	if logger == nil {
		logger = logging.NoOp()
	}
	f := &WebsocketUserFrontend{
		logger:     logger,
		commands:   commands,
		upgrader:   websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		sessions:   make(map[*session]struct{}),
		mattermost: mattermost,
	}
	if mattermost != nil {
		f.connectMattermost()
	}
	return f
}

func (f *WebsocketUserFrontend) connectMattermost() {
	client := mm.NewAPIv4Client(f.mattermost.ServerURL)
	client.SetToken(f.mattermost.AccessToken)
	channel, _, err := client.GetChannelByNameForTeamName(context.Background(), f.mattermost.ChannelName, f.mattermost.TeamName, "")
	if err != nil {
		f.logger.Warn("could not resolve mattermost alert channel", "err", err)
		return
	}
	f.mmClient = client
	f.mmChannel = channel.Id
}

// ServeHTTP upgrades one connection to a session and starts reading
// command envelopes (one JSON envelope per message) from it until it
// disconnects.
func (f *WebsocketUserFrontend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.logger.Warn("user front-end upgrade failed", "err", err)
		return
	}
	sess := &session{id: uuid.New(), conn: conn}
	f.mu.Lock()
	f.sessions[sess] = struct{}{}
	f.mu.Unlock()
	f.logger.Info("user front-end session connected", "session", sess.id)

	go f.readLoop(sess)
}

func (f *WebsocketUserFrontend) readLoop(sess *session) {
	defer f.removeSession(sess)
	for {
		_, data, err := sess.conn.ReadMessage()
		if err != nil {
			return
		}
		var env commandEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			f.logger.Warn("malformed command envelope", "session", sess.id, "err", err)
			continue
		}
		cmd, ok := decodeCommand(env)
		if !ok {
			f.logger.Warn("unrecognized command envelope", "session", sess.id, "command", env.Command)
			continue
		}
		f.commands.Push(cmd)
	}
}

func (f *WebsocketUserFrontend) removeSession(sess *session) {
	f.mu.Lock()
	delete(f.sessions, sess)
	f.mu.Unlock()
	_ = sess.conn.Close()
	f.logger.Info("user front-end session disconnected", "session", sess.id)
}

func decodeCommand(env commandEnvelope) (message.Command, bool) {
	ts := uint64(time.Now().UnixMilli())
	switch env.Command {
	case "set_pin_type":
		pt, ok := message.ParsePinType(env.PinType)
		if !ok {
			return message.Command{}, false
		}
		return message.NewSetPinTypeCommand(env.Index, pt, ts), true
	case "set_pin_name":
		return message.NewSetPinNameCommand(env.Index, env.Name, ts), true
	case "set_sending_mode":
		mode, ok := message.ParseSendingMode(env.SendingMode)
		if !ok {
			return message.Command{}, false
		}
		return message.NewSetSendingModeCommand(env.Index, mode, ts), true
	case "set_input_inverted":
		return message.NewSetInputInvertedCommand(env.Index, env.Bool, ts), true
	case "send_digital_pin_value":
		return message.NewSendDigitalPinValueCommand(env.Index, env.Bool, ts), true
	case "set_sampling_rate":
		return message.NewSetSamplingRateCommand(env.Value, ts), true
	case "enable_sending_packets":
		return message.NewEnableSendingPacketsCommand(env.Bool, ts), true
	case "get_all_values":
		return message.NewGetAllValuesCommand(ts), true
	default:
		return message.Command{}, false
	}
}

// NotifyError fans an error out to every connected session and, for
// warning-or-above hardware errors, posts an alert to the configured
// Mattermost channel.
func (f *WebsocketUserFrontend) NotifyError(e message.Error) {
	env := errorEnvelope{
		Index:     e.Index(),
		Kind:      e.ErrorKind.String(),
		Severity:  severityString(e.Severity),
		Detail:    e.Detail,
		Timestamp: e.Time(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		f.logger.Error("could not marshal error envelope", "err", err)
		return
	}

	f.mu.RLock()
	sessions := make([]*session, 0, len(f.sessions))
	for s := range f.sessions {
		sessions = append(sessions, s)
	}
	f.mu.RUnlock()
	for _, s := range sessions {
		_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			f.removeSession(s)
		}
	}

	if e.Severity < message.SeverityWarning {
		return
	}
	switch e.ErrorKind {
	case message.ErrTransportFraming, message.ErrCrcMismatch, message.ErrAckTimeout,
		message.ErrTransportDisconnected, message.ErrHardwareReported:
		f.postMattermostAlert(env)
	}
}

func (f *WebsocketUserFrontend) postMattermostAlert(env errorEnvelope) {
	if f.mmClient == nil {
		return
	}
	post := &mm.Post{
		ChannelId: f.mmChannel,
		Message: strings.Join([]string{
			"sensei hardware alert:",
			env.Severity,
			env.Kind,
			env.Detail,
		}, " "),
	}
	if _, _, err := f.mmClient.CreatePost(context.Background(), post); err != nil {
		f.logger.Warn("could not post mattermost alert", "err", err)
	}
}

func severityString(s message.Severity) string {
	switch s {
	case message.SeverityWarning:
		return "warning"
	case message.SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// Package bridge exposes a shim player connection on the MQTT control
// plane. It owns the transport, routing, and session state for one
// player host and translates control commands into shim messages.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/internal/adapters/clock"
	"github.com/iwalton3/jellyfin-web-jmp/internal/adapters/idgen"
	"github.com/iwalton3/jellyfin-web-jmp/internal/adapters/mqttserver"
	"github.com/iwalton3/jellyfin-web-jmp/internal/bus"
	"github.com/iwalton3/jellyfin-web-jmp/internal/conn"
	"github.com/iwalton3/jellyfin-web-jmp/internal/jellyfin"
	"github.com/iwalton3/jellyfin-web-jmp/internal/mux"
	"github.com/iwalton3/jellyfin-web-jmp/internal/player"
	"github.com/iwalton3/jellyfin-web-jmp/internal/session"
	"github.com/iwalton3/jellyfin-web-jmp/internal/transport"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Subscribe(topic string, qos byte, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
}

// controller is the slice of the player surface the bridge drives.
type controller interface {
	Play(ctx context.Context, opts player.PlayOptions) error
	Stop(ctx context.Context) player.Outcome
	Pause(ctx context.Context) player.Outcome
	Unpause(ctx context.Context) player.Outcome
	PlayPause(ctx context.Context) player.Outcome
	NextTrack(ctx context.Context) player.Outcome
	PreviousTrack(ctx context.Context) player.Outcome
	Seek(ctx context.Context, positionTicks int64) player.Outcome
	SetVolume(ctx context.Context, volume int) player.Outcome
	SetMute(ctx context.Context, muted bool) player.Outcome
	SetAudioStreamIndex(ctx context.Context, index int) player.Outcome
	SetSubtitleStreamIndex(ctx context.Context, index int) player.Outcome
	SetRepeatMode(ctx context.Context, mode string) player.Outcome
	SetQueueShuffleMode(ctx context.Context, mode string) player.Outcome
	Command(ctx context.Context, name string, args map[string]any) player.Outcome
	Targets() []shim.Target
}

// Config configures the bridge module.
type Config struct {
	NodeID    string
	TopicBase string
	Name      string

	ShimBaseURL string
	ShimTimeout time.Duration

	Address     string
	AccessToken string
	UserID      string
	Username    string
	DeviceUUID  string

	Jellyfin *jellyfin.Config
}

// Module bridges one player connection onto the control plane.
type Module struct {
	log        *zap.Logger
	client     mqttClient
	config     Config
	cmdTopic   string
	controller controller
	player     *player.Player
	manager    *conn.Manager
	connection *conn.Connection
	state      *session.Normalizer
	events     *bus.Memory
	clock      clock.Clock
}

// NewModule builds the bridge and its full connection graph.
func NewModule(log *zap.Logger, client *mqttserver.Client, cfg Config) (*Module, error) {
	if strings.TrimSpace(cfg.NodeID) == "" {
		return nil, errors.New("node_id required")
	}
	if strings.TrimSpace(cfg.TopicBase) == "" {
		cfg.TopicBase = shim.BaseTopic
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "MPV Shim"
	}
	if strings.TrimSpace(cfg.ShimBaseURL) == "" {
		return nil, errors.New("shim base_url required")
	}

	sender, err := transport.NewClient(transport.Options{
		BaseURL: cfg.ShimBaseURL,
		Timeout: cfg.ShimTimeout,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	routes := mux.New(log)
	state := session.New(log)
	events := bus.NewMemory()

	connection := &conn.Connection{
		ID:          idgen.Generator{}.NewID(),
		Address:     cfg.Address,
		AccessToken: cfg.AccessToken,
		UserID:      cfg.UserID,
		Username:    cfg.Username,
		Name:        cfg.Name,
		UUID:        cfg.DeviceUUID,
	}

	m := &Module{
		log:        log,
		client:     client,
		config:     cfg,
		cmdTopic:   shim.TopicCommands(cfg.TopicBase, cfg.NodeID),
		connection: connection,
		state:      state,
		events:     events,
	}

	var resolver player.ItemResolver = passthroughResolver{}
	if cfg.Jellyfin != nil {
		jf, err := jellyfin.NewResolver(log, *cfg.Jellyfin)
		if err != nil {
			return nil, err
		}
		resolver = jf
	}

	p, err := player.New(player.Options{
		Source:   m,
		Resolver: resolver,
		Sender:   sender,
		State:    state,
		Mux:      routes,
		Events:   events.Publish,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	m.controller = p
	m.player = p

	manager, err := conn.NewManager(conn.Options{
		Mux:       routes,
		Transport: sender,
		State:     state,
		Bus:       events,
		Clock:     m.clock,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	m.manager = manager

	return m, nil
}

// Active reports the open connection for outbound command addressing.
func (m *Module) Active() (player.Binding, bool) {
	if m.manager == nil || !m.manager.IsOpen(m.connection) {
		return player.Binding{}, false
	}
	return player.Binding{ConnectionID: m.connection.ID, UserID: m.config.UserID}, true
}

// Run announces the bridge, opens the player connection, and serves
// control commands until the context is done.
func (m *Module) Run(ctx context.Context) error {
	if err := m.publishPresence(); err != nil {
		return err
	}

	m.events.Subscribe(m.handleBusEvent)
	m.player.BeginUpdates()
	m.manager.Open(ctx, m.connection)

	handler := func(_ paho.Client, msg paho.Message) {
		m.handleMessage(ctx, msg)
	}
	if err := m.client.Subscribe(m.cmdTopic, 1, handler); err != nil {
		return err
	}
	defer m.client.Unsubscribe(m.cmdTopic)

	<-ctx.Done()
	m.manager.Close(context.Background(), m.connection)
	m.player.EndUpdates()
	return nil
}

func (m *Module) publishPresence() error {
	targets := m.controller.Targets()
	var target *shim.Target
	if len(targets) > 0 {
		target = &targets[0]
	}
	presence := shim.Presence{
		NodeID: m.config.NodeID,
		Kind:   "bridge",
		Name:   m.config.Name,
		Target: target,
		TS:     m.clock.NowUnix(),
	}
	payload, err := json.Marshal(presence)
	if err != nil {
		return err
	}
	return m.client.Publish(shim.TopicPresence(m.config.TopicBase, m.config.NodeID), 1, true, payload)
}

func (m *Module) publishState() {
	state := shim.NodeState{ConnectionID: m.connection.ID, TS: m.clock.NowUnix()}
	if snap, ok := m.state.Latest(m.connection.ID); ok {
		state.Snapshot = &snap
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return
	}
	if err := m.client.Publish(shim.TopicState(m.config.TopicBase, m.config.NodeID), 1, true, payload); err != nil {
		m.log.Warn("state publish failed", zap.Error(err))
	}
}

func (m *Module) handleBusEvent(evt shim.BusEvent) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if err := m.client.Publish(shim.TopicEvents(m.config.TopicBase, m.config.NodeID), 1, false, payload); err != nil {
		m.log.Warn("event publish failed", zap.Error(err))
	}
	m.publishState()
}

func (m *Module) handleMessage(ctx context.Context, msg paho.Message) {
	var cmd shim.CommandEnvelope
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		m.log.Warn("invalid command", zap.Error(err))
		return
	}
	if err := shim.ValidateCommandEnvelope(cmd); err != nil {
		m.publishReply(cmd.ReplyTo, errorReply(cmd, shim.ErrCodeInvalid, err.Error()))
		return
	}

	reply := m.dispatch(ctx, cmd)
	m.publishReply(cmd.ReplyTo, reply)
}

func (m *Module) publishReply(replyTo string, reply shim.ReplyEnvelope) {
	if replyTo == "" {
		return
	}
	payload, err := json.Marshal(reply)
	if err != nil {
		return
	}
	_ = m.client.Publish(replyTo, 1, false, payload)
}

func (m *Module) dispatch(ctx context.Context, cmd shim.CommandEnvelope) shim.ReplyEnvelope {
	reply := shim.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: m.clock.NowUnix()}

	switch cmd.Type {
	case "playback.play":
		var body shim.PlayBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		if len(body.IDs) == 0 {
			return errorReply(cmd, shim.ErrCodeInvalid, "ids required")
		}
		err := m.controller.Play(ctx, player.PlayOptions{
			IDs:                 body.IDs,
			StartPositionTicks:  body.StartPositionTicks,
			MediaSourceID:       body.MediaSourceID,
			AudioStreamIndex:    body.AudioStreamIndex,
			SubtitleStreamIndex: body.SubtitleStreamIndex,
			StartIndex:          body.StartIndex,
		})
		return m.replyForError(cmd, reply, err)
	case "playback.pause":
		return m.replyForOutcome(cmd, reply, m.controller.Pause(ctx))
	case "playback.unpause":
		return m.replyForOutcome(cmd, reply, m.controller.Unpause(ctx))
	case "playback.toggle":
		return m.replyForOutcome(cmd, reply, m.controller.PlayPause(ctx))
	case "playback.stop":
		return m.replyForOutcome(cmd, reply, m.controller.Stop(ctx))
	case "playback.next":
		return m.replyForOutcome(cmd, reply, m.controller.NextTrack(ctx))
	case "playback.prev":
		return m.replyForOutcome(cmd, reply, m.controller.PreviousTrack(ctx))
	case "playback.seek":
		var body shim.SeekBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		return m.replyForOutcome(cmd, reply, m.controller.Seek(ctx, body.PositionTicks))
	case "playback.setVolume":
		var body shim.SetVolumeBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		if body.Volume < 0 || body.Volume > 100 {
			return errorReply(cmd, shim.ErrCodeInvalid, "volume must be 0..100")
		}
		return m.replyForOutcome(cmd, reply, m.controller.SetVolume(ctx, body.Volume))
	case "playback.setMute":
		var body shim.SetMuteBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		return m.replyForOutcome(cmd, reply, m.controller.SetMute(ctx, body.Mute))
	case "playback.setAudioStream":
		var body shim.SetStreamBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		return m.replyForOutcome(cmd, reply, m.controller.SetAudioStreamIndex(ctx, body.Index))
	case "playback.setSubtitleStream":
		var body shim.SetStreamBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		return m.replyForOutcome(cmd, reply, m.controller.SetSubtitleStreamIndex(ctx, body.Index))
	case "playback.setRepeat":
		var body shim.SetRepeatBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		return m.replyForOutcome(cmd, reply, m.controller.SetRepeatMode(ctx, body.Mode))
	case "playback.setShuffle":
		var body shim.SetShuffleBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		return m.replyForOutcome(cmd, reply, m.controller.SetQueueShuffleMode(ctx, body.Mode))
	case "playback.command":
		var body shim.RawCommandBody
		if err := json.Unmarshal(cmd.Body, &body); err != nil {
			return errorReply(cmd, shim.ErrCodeInvalid, "invalid body")
		}
		if strings.TrimSpace(body.Name) == "" {
			return errorReply(cmd, shim.ErrCodeInvalid, "name required")
		}
		return m.replyForOutcome(cmd, reply, m.controller.Command(ctx, body.Name, body.Args))
	default:
		return errorReply(cmd, shim.ErrCodeInvalid, "unsupported command")
	}
}

func (m *Module) replyForOutcome(cmd shim.CommandEnvelope, reply shim.ReplyEnvelope, outcome player.Outcome) shim.ReplyEnvelope {
	return m.replyForError(cmd, reply, outcome.Err)
}

func (m *Module) replyForError(cmd shim.CommandEnvelope, reply shim.ReplyEnvelope, err error) shim.ReplyEnvelope {
	if err == nil {
		return reply
	}
	if errors.Is(err, player.ErrNoActiveConnection) {
		return errorReply(cmd, shim.ErrCodeNoConnection, err.Error())
	}
	return errorReply(cmd, shim.ErrCodeUpstream, err.Error())
}

func errorReply(cmd shim.CommandEnvelope, code string, message string) shim.ReplyEnvelope {
	return shim.ReplyEnvelope{
		ID:   cmd.ID,
		Type: "error",
		OK:   false,
		TS:   time.Now().Unix(),
		Err:  &shim.ReplyError{Code: code, Message: message},
	}
}

// passthroughResolver hands requested ids straight back. Used when no
// media server is configured for container expansion.
type passthroughResolver struct{}

func (passthroughResolver) Resolve(_ context.Context, _ string, ids []string) ([]string, error) {
	return ids, nil
}

// Package conn presents the polling transport behind the observable
// surface of a real socket: open/close events, an "is open" predicate,
// and per-connection message delivery.
package conn

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/internal/bus"
	"github.com/iwalton3/jellyfin-web-jmp/internal/mux"
	"github.com/iwalton3/jellyfin-web-jmp/internal/ports"
	"github.com/iwalton3/jellyfin-web-jmp/internal/session"
	"github.com/iwalton3/jellyfin-web-jmp/internal/transport"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Lifecycle event names published on the bus. The websocket names are
// kept for subscribers that expect socket semantics.
const (
	EventOpen    = "websocketopen"
	EventClose   = "websocketclose"
	EventMessage = "message"
	EventAlert   = "alert"
)

// Transport is the slice of the shim transport the manager needs.
type Transport interface {
	Send(ctx context.Context, kind transport.Kind, payload any) (json.RawMessage, error)
	StartPollLoop(ctx context.Context, onEnvelope func(shim.Envelope)) bool
}

// Connection is one logical session to the player host.
type Connection struct {
	ID          string
	Address     string
	AccessToken string
	UserID      string
	Username    string
	Name        string
	UUID        string

	open atomic.Bool
}

// Manager opens and closes logical connections over the shim transport.
type Manager struct {
	mux       *mux.Mux
	transport Transport
	state     *session.Normalizer
	bus       bus.Bus
	clock     ports.Clock
	log       *zap.Logger
}

// Options configures a Manager.
type Options struct {
	Mux       *mux.Mux
	Transport Transport
	State     *session.Normalizer
	Bus       bus.Bus
	Clock     ports.Clock
	Logger    *zap.Logger
}

// NewManager creates a connection manager.
func NewManager(opts Options) (*Manager, error) {
	if opts.Mux == nil {
		return nil, fmt.Errorf("mux required")
	}
	if opts.Transport == nil {
		return nil, fmt.Errorf("transport required")
	}
	if opts.State == nil {
		return nil, fmt.Errorf("state normalizer required")
	}
	if opts.Bus == nil {
		return nil, fmt.Errorf("bus required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("clock required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Manager{
		mux:       opts.Mux,
		transport: opts.Transport,
		state:     opts.State,
		bus:       opts.Bus,
		clock:     opts.Clock,
		log:       opts.Logger,
	}, nil
}

// Open marks the connection open, binds its inbound message route,
// announces the session to the player host, and starts the poll loop.
// The loop starts at most once per process; later opens reuse it.
func (m *Manager) Open(ctx context.Context, c *Connection) {
	c.open.Store(true)

	m.mux.Bind(c.ID, func(payload json.RawMessage) {
		m.publish(shim.BusEvent{Type: EventMessage, ConnectionID: c.ID, Payload: payload})
	})

	// Announce failure is surfaced as an alert rather than retried; the
	// connection stays open.
	go m.announce(ctx, c)

	if m.transport.StartPollLoop(ctx, m.mux.Dispatch) {
		m.log.Info("event poll loop started")
	}

	m.publish(shim.BusEvent{Type: EventOpen, ConnectionID: c.ID})
}

func (m *Manager) announce(ctx context.Context, c *Connection) {
	req := shim.AnnounceRequest{
		Address:          c.Address,
		AccessToken:      c.AccessToken,
		UserID:           c.UserID,
		Name:             c.Name,
		ID:               c.ID,
		Username:         c.Username,
		DateLastAccessed: m.clock.NowUnix(),
		UUID:             c.UUID,
	}
	if _, err := m.transport.Send(ctx, transport.KindSessionStart, req); err != nil {
		m.log.Error("session announce failed", zap.String("connection_id", c.ID), zap.Error(err))
		payload, _ := json.Marshal(map[string]string{"message": err.Error()})
		m.publish(shim.BusEvent{Type: EventAlert, ConnectionID: c.ID, Payload: payload})
	}
}

// Close marks the connection closed, drops its inbound route and stored
// snapshot, and notifies the player host best-effort.
func (m *Manager) Close(ctx context.Context, c *Connection) {
	c.open.Store(false)
	m.mux.Unbind(c.ID)
	m.state.Clear(c.ID)

	go func() {
		if _, err := m.transport.Send(ctx, transport.KindTeardown, struct{}{}); err != nil {
			m.log.Warn("session teardown failed", zap.String("connection_id", c.ID), zap.Error(err))
		}
	}()

	m.publish(shim.BusEvent{Type: EventClose, ConnectionID: c.ID})
}

// IsOpen reports whether the connection is open.
func (m *Manager) IsOpen(c *Connection) bool {
	return c.open.Load()
}

// IsOpenOrConnecting is identical to IsOpen: the adapter tracks a single
// boolean and no distinct connecting state.
func (m *Manager) IsOpenOrConnecting(c *Connection) bool {
	return m.IsOpen(c)
}

// JoinSyncPlayGroup joins a shared-playback group, best-effort.
func (m *Manager) JoinSyncPlayGroup(ctx context.Context, options any) {
	if _, err := m.transport.Send(ctx, transport.KindSyncplayJoin, options); err != nil {
		m.log.Warn("syncplay join failed", zap.Error(err))
	}
}

func (m *Manager) publish(evt shim.BusEvent) {
	evt.TS = m.clock.NowUnix()
	m.bus.Publish(evt)
}

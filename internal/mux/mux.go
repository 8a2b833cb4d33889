package mux

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Callback receives the payload of a routed envelope.
type Callback func(payload json.RawMessage)

func noop(json.RawMessage) {}

// Mux routes inbound envelopes to either a per-connection callback or
// the single global player callback, keyed on the destination tag.
type Mux struct {
	mu     sync.Mutex
	conns  map[string]Callback
	player Callback
	log    *zap.Logger
}

// New creates an empty multiplexer.
func New(log *zap.Logger) *Mux {
	if log == nil {
		log = zap.NewNop()
	}
	return &Mux{
		conns:  make(map[string]Callback),
		player: noop,
		log:    log,
	}
}

// Bind installs the callback for a connection identifier, replacing any
// prior one. At most one subscriber exists per connection.
func (m *Mux) Bind(connectionID string, fn Callback) {
	if fn == nil {
		fn = noop
	}
	m.mu.Lock()
	m.conns[connectionID] = fn
	m.mu.Unlock()
}

// Unbind installs a no-op callback for the connection so late-arriving
// envelopes are dropped silently instead of faulting on a missing key.
func (m *Mux) Unbind(connectionID string) {
	m.Bind(connectionID, noop)
}

// SetPlayer replaces the global callback for player-destined envelopes.
// Last writer wins; nil restores the no-op.
func (m *Mux) SetPlayer(fn Callback) {
	if fn == nil {
		fn = noop
	}
	m.mu.Lock()
	m.player = fn
	m.mu.Unlock()
}

// Dispatch routes one envelope. Unknown destinations and unbound
// connections are dropped.
func (m *Mux) Dispatch(env shim.Envelope) {
	switch env.Dest {
	case shim.DestWS:
		m.mu.Lock()
		fn, ok := m.conns[env.ConnectionID]
		m.mu.Unlock()
		if !ok {
			m.log.Debug("dropping envelope for unbound connection",
				zap.String("connection_id", env.ConnectionID))
			return
		}
		fn(env.Payload)
	case shim.DestPlayer:
		m.mu.Lock()
		fn := m.player
		m.mu.Unlock()
		fn(env.Payload)
	default:
		m.log.Debug("dropping envelope with unknown destination",
			zap.String("dest", env.Dest))
	}
}

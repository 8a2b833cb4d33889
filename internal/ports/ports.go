package ports

import (
	"context"

	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Broker publishes control commands and reads retained state/presence.
type Broker interface {
	ReplyTopic() string
	PublishCommand(ctx context.Context, nodeID string, cmd shim.CommandEnvelope) (shim.ReplyEnvelope, error)
	ListPresence(ctx context.Context) ([]shim.Presence, error)
	GetNodeState(ctx context.Context, nodeID string) (shim.NodeState, error)
	Watch(ctx context.Context, nodeID string) (<-chan shim.NodeState, <-chan shim.BusEvent, <-chan error)
}

// Clock returns the current unix time in seconds.
type Clock interface {
	NowUnix() int64
}

// IDGen returns unique correlation IDs.
type IDGen interface {
	NewID() string
}

// Package session normalizes raw session snapshots pushed by the player
// host and retains the latest snapshot per connection.
package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Change event names raised for snapshot updates.
const (
	EventStateChange = "statechange"
	EventTimeUpdate  = "timeupdate"
	EventPause       = "pause"
)

// Normalizer turns raw snapshots into semantic change events. It owns
// the last-snapshot-per-connection map; only the immediately previous
// snapshot is kept, and updates replace rather than merge.
type Normalizer struct {
	mu   sync.Mutex
	last map[string]shim.SessionSnapshot
	log  *zap.Logger
}

// New creates a Normalizer.
func New(log *zap.Logger) *Normalizer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Normalizer{
		last: make(map[string]shim.SessionSnapshot),
		log:  log,
	}
}

// Process normalizes a snapshot, computes the change events against the
// previously stored snapshot for the connection, and stores the new
// snapshot as the latest. The returned event order is stable.
func (n *Normalizer) Process(connectionID string, snap shim.SessionSnapshot) (shim.SessionSnapshot, []string) {
	if snap.NowPlayingItem != nil {
		normalizeItem(snap.NowPlayingItem, connectionID)
	}

	n.mu.Lock()
	prev, ok := n.last[connectionID]
	n.last[connectionID] = snap
	n.mu.Unlock()

	var prevPtr *shim.SessionSnapshot
	if ok {
		prevPtr = &prev
	}
	return snap, changedEvents(prevPtr, snap)
}

// Latest returns the last stored snapshot for a connection.
func (n *Normalizer) Latest(connectionID string) (shim.SessionSnapshot, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	snap, ok := n.last[connectionID]
	return snap, ok
}

// Clear drops the stored snapshot for a connection. Called on teardown.
func (n *Normalizer) Clear(connectionID string) {
	n.mu.Lock()
	delete(n.last, connectionID)
	n.mu.Unlock()
}

// changedEvents computes the events to raise for an update. Every update
// currently raises all three events whether or not the fields changed;
// field-level diffing would go in the second branch.
func changedEvents(prev *shim.SessionSnapshot, next shim.SessionSnapshot) []string {
	if prev == nil {
		return []string{EventStateChange, EventTimeUpdate, EventPause}
	}
	_ = next
	return []string{EventStateChange, EventTimeUpdate, EventPause}
}

// normalizeItem lifts legacy single-tag image fields into the map-style
// fields and stamps the owning connection.
func normalizeItem(item *shim.NowPlayingItem, connectionID string) {
	if item.PrimaryImageTag != "" {
		if _, ok := item.ImageTags["Primary"]; !ok {
			if item.ImageTags == nil {
				item.ImageTags = make(map[string]string)
			}
			item.ImageTags["Primary"] = item.PrimaryImageTag
		}
	}
	if item.BackdropImageTag != "" {
		if item.BackdropItemID == item.ID {
			item.BackdropImageTags = []string{item.BackdropImageTag}
		} else {
			// The backdrop belongs to another item, typically the parent.
			item.ParentBackdropImageTags = []string{item.BackdropImageTag}
			item.ParentBackdropItemID = item.BackdropItemID
		}
	}
	if item.ServerID == "" {
		item.ServerID = connectionID
	}
}

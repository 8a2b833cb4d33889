package ctl

import "github.com/iwalton3/jellyfin-web-jmp/pkg/shim"

// NodesResult holds a list of presence records.
type NodesResult struct {
	Nodes []shim.Presence
}

// StatusResult holds node presence and its latest session state.
type StatusResult struct {
	Node  shim.Presence
	State shim.NodeState
}

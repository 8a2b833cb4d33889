package ctl

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/iwalton3/jellyfin-web-jmp/internal/ports"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Resolver resolves node selectors to presence records.
type Resolver struct {
	Presence ports.Broker
	Config   Config
}

// ResolveNode resolves a node selector, falling back to the configured
// default, then to the sole node when only one is announced.
func (r Resolver) ResolveNode(ctx context.Context, selector string) (shim.Presence, error) {
	if selector == "" {
		selector = r.Config.DefaultNode
	}

	nodes, err := r.Presence.ListPresence(ctx)
	if err != nil {
		return shim.Presence{}, WrapError(ExitRuntime, "list presence", err)
	}

	if selector == "" {
		if len(nodes) == 1 {
			return nodes[0], nil
		}
		return shim.Presence{}, &CLIError{Code: ExitUsage, Msg: "node selector required"}
	}
	return resolveSelector(selector, nodes, r.Config.Aliases)
}

func resolveSelector(selector string, nodes []shim.Presence, aliases map[string]string) (shim.Presence, error) {
	selector = strings.TrimSpace(selector)
	if selector == "" {
		return shim.Presence{}, &CLIError{Code: ExitUsage, Msg: "node selector required"}
	}

	if alias, ok := aliases[selector]; ok {
		selector = alias
	}

	var matches []shim.Presence
	for _, node := range nodes {
		if node.NodeID == selector {
			return node, nil
		}
		if strings.EqualFold(node.Name, selector) {
			matches = append(matches, node)
			continue
		}
		if strings.Contains(strings.ToLower(node.Name), strings.ToLower(selector)) ||
			strings.Contains(node.NodeID, selector) {
			matches = append(matches, node)
		}
	}

	switch len(matches) {
	case 1:
		return matches[0], nil
	case 0:
		return shim.Presence{}, &CLIError{Code: ExitNotFound, Msg: fmt.Sprintf("no node matches %q", selector)}
	default:
		ids := make([]string, 0, len(matches))
		for _, node := range matches {
			ids = append(ids, node.NodeID)
		}
		sort.Strings(ids)
		return shim.Presence{}, &CLIError{Code: ExitUsage, Msg: fmt.Sprintf("selector %q is ambiguous: %s", selector, strings.Join(ids, ", "))}
	}
}

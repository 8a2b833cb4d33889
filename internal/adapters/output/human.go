package output

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/iwalton3/jellyfin-web-jmp/internal/ctl"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct{}

// Print renders human output.
func (HumanPrinter) Print(v any) error {
	switch data := v.(type) {
	case ctl.NodesResult:
		return printNodes(data)
	case ctl.StatusResult:
		return printStatus(data)
	case shim.NodeState:
		return printState(data)
	case shim.BusEvent:
		return printEvent(data)
	default:
		_, err := fmt.Fprintln(os.Stdout, "ok")
		return err
	}
}

func printNodes(result ctl.NodesResult) error {
	tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "NAME\tKIND\tNODE_ID"); err != nil {
		return err
	}
	for _, node := range result.Nodes {
		_, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", node.Name, node.Kind, node.NodeID)
		if err != nil {
			return err
		}
	}
	return tw.Flush()
}

func printStatus(result ctl.StatusResult) error {
	line := fmt.Sprintf("%s  %s", result.Node.Name, stateLine(result.State))
	_, err := fmt.Fprintln(os.Stdout, strings.TrimSpace(line))
	return err
}

func printState(state shim.NodeState) error {
	_, err := fmt.Fprintln(os.Stdout, stateLine(state))
	return err
}

func printEvent(evt shim.BusEvent) error {
	_, err := fmt.Fprintf(os.Stdout, "event %s\n", evt.Type)
	return err
}

func stateLine(state shim.NodeState) string {
	if state.Snapshot == nil || state.Snapshot.NowPlayingItem == nil || state.Snapshot.PlayState == nil {
		return "[idle]"
	}
	snap := state.Snapshot

	status := "playing"
	if snap.PlayState.IsPaused {
		status = "paused"
	}

	item := snap.NowPlayingItem.Name
	if item == "" {
		item = snap.NowPlayingItem.ID
	}

	position := ""
	if snap.PlayState.PositionTicks != nil {
		position = formatTicks(*snap.PlayState.PositionTicks)
		if snap.NowPlayingItem.RunTimeTicks != nil {
			position += " / " + formatTicks(*snap.NowPlayingItem.RunTimeTicks)
		}
	}

	volume := ""
	if snap.PlayState.VolumeLevel != nil {
		volume = fmt.Sprintf("vol %d%%", *snap.PlayState.VolumeLevel)
	}
	if snap.PlayState.IsMuted {
		volume = "muted"
	}

	return strings.TrimSpace(fmt.Sprintf("[%s]  %s  %s  %s", status, item, position, volume))
}

func formatTicks(ticks int64) string {
	seconds := ticks / ctl.TicksPerSecond
	if seconds >= 3600 {
		return fmt.Sprintf("%d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}

package ctl

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/iwalton3/jellyfin-web-jmp/internal/ports"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// TicksPerSecond is the tick resolution of playback positions.
const TicksPerSecond = 10_000_000

// Service orchestrates shimctl use cases.
type Service struct {
	Broker   ports.Broker
	Resolver Resolver
	Clock    ports.Clock
	IDGen    ports.IDGen
	Config   Config
}

// ListNodes returns announced bridge nodes.
func (s Service) ListNodes(ctx context.Context) (NodesResult, error) {
	nodes, err := s.Broker.ListPresence(ctx)
	if err != nil {
		return NodesResult{}, WrapError(ExitRuntime, "list nodes", err)
	}
	return NodesResult{Nodes: nodes}, nil
}

// Status returns a node's latest session state.
func (s Service) Status(ctx context.Context, selector string) (StatusResult, error) {
	node, err := s.Resolver.ResolveNode(ctx, selector)
	if err != nil {
		return StatusResult{}, err
	}
	state, err := s.Broker.GetNodeState(ctx, node.NodeID)
	if err != nil {
		return StatusResult{}, WrapError(ExitRuntime, "get node state", err)
	}
	return StatusResult{Node: node, State: state}, nil
}

// WatchStatus streams state and events for a node.
func (s Service) WatchStatus(ctx context.Context, selector string) (<-chan shim.NodeState, <-chan shim.BusEvent, <-chan error, error) {
	node, err := s.Resolver.ResolveNode(ctx, selector)
	if err != nil {
		return nil, nil, nil, err
	}
	states, events, errs := s.Broker.Watch(ctx, node.NodeID)
	return states, events, errs, nil
}

// Play starts playback of the given item ids.
func (s Service) Play(ctx context.Context, selector string, ids []string, startTicks *int64) error {
	if len(ids) == 0 {
		return &CLIError{Code: ExitUsage, Msg: "at least one item id required"}
	}
	return s.sendPlayback(ctx, selector, "playback.play", shim.PlayBody{IDs: ids, StartPositionTicks: startTicks})
}

// Pause sends playback.pause.
func (s Service) Pause(ctx context.Context, selector string) error {
	return s.sendPlayback(ctx, selector, "playback.pause", struct{}{})
}

// Unpause sends playback.unpause.
func (s Service) Unpause(ctx context.Context, selector string) error {
	return s.sendPlayback(ctx, selector, "playback.unpause", struct{}{})
}

// Toggle sends playback.toggle.
func (s Service) Toggle(ctx context.Context, selector string) error {
	return s.sendPlayback(ctx, selector, "playback.toggle", struct{}{})
}

// Stop sends playback.stop.
func (s Service) Stop(ctx context.Context, selector string) error {
	return s.sendPlayback(ctx, selector, "playback.stop", struct{}{})
}

// Next sends playback.next.
func (s Service) Next(ctx context.Context, selector string) error {
	return s.sendPlayback(ctx, selector, "playback.next", struct{}{})
}

// Prev sends playback.prev.
func (s Service) Prev(ctx context.Context, selector string) error {
	return s.sendPlayback(ctx, selector, "playback.prev", struct{}{})
}

// Seek sends playback.seek with an absolute or relative position.
func (s Service) Seek(ctx context.Context, selector string, seekArg string) error {
	node, err := s.Resolver.ResolveNode(ctx, selector)
	if err != nil {
		return err
	}
	position, err := s.resolveSeekTicks(ctx, node.NodeID, seekArg)
	if err != nil {
		return err
	}
	return s.sendPlaybackToNode(ctx, node.NodeID, "playback.seek", shim.SeekBody{PositionTicks: position})
}

// Volume sets or adjusts volume, or toggles mute.
func (s Service) Volume(ctx context.Context, selector string, arg string, mute *bool) error {
	node, err := s.Resolver.ResolveNode(ctx, selector)
	if err != nil {
		return err
	}

	if mute != nil {
		return s.sendPlaybackToNode(ctx, node.NodeID, "playback.setMute", shim.SetMuteBody{Mute: *mute})
	}

	volume, err := s.resolveVolume(ctx, node.NodeID, arg)
	if err != nil {
		return err
	}
	return s.sendPlaybackToNode(ctx, node.NodeID, "playback.setVolume", shim.SetVolumeBody{Volume: volume})
}

// SetAudioStream selects the active audio stream by index.
func (s Service) SetAudioStream(ctx context.Context, selector string, index int) error {
	return s.sendPlayback(ctx, selector, "playback.setAudioStream", shim.SetStreamBody{Index: index})
}

// SetSubtitleStream selects the active subtitle stream by index.
func (s Service) SetSubtitleStream(ctx context.Context, selector string, index int) error {
	return s.sendPlayback(ctx, selector, "playback.setSubtitleStream", shim.SetStreamBody{Index: index})
}

// SetRepeat sets the repeat mode.
func (s Service) SetRepeat(ctx context.Context, selector string, mode string) error {
	switch mode {
	case "RepeatNone", "RepeatAll", "RepeatOne":
	default:
		return &CLIError{Code: ExitUsage, Msg: "repeat mode must be RepeatNone|RepeatAll|RepeatOne"}
	}
	return s.sendPlayback(ctx, selector, "playback.setRepeat", shim.SetRepeatBody{Mode: mode})
}

// SetShuffle sets the queue shuffle mode.
func (s Service) SetShuffle(ctx context.Context, selector string, mode string) error {
	switch mode {
	case "Sorted", "Shuffle":
	default:
		return &CLIError{Code: ExitUsage, Msg: "shuffle mode must be Sorted|Shuffle"}
	}
	return s.sendPlayback(ctx, selector, "playback.setShuffle", shim.SetShuffleBody{Mode: mode})
}

// RawCommand sends an arbitrary named command with arguments.
func (s Service) RawCommand(ctx context.Context, selector string, name string, args map[string]any) error {
	if strings.TrimSpace(name) == "" {
		return &CLIError{Code: ExitUsage, Msg: "command name required"}
	}
	return s.sendPlayback(ctx, selector, "playback.command", shim.RawCommandBody{Name: name, Args: args})
}

func (s Service) sendPlayback(ctx context.Context, selector string, cmdType string, body any) error {
	node, err := s.Resolver.ResolveNode(ctx, selector)
	if err != nil {
		return err
	}
	return s.sendPlaybackToNode(ctx, node.NodeID, cmdType, body)
}

func (s Service) sendPlaybackToNode(ctx context.Context, nodeID string, cmdType string, body any) error {
	cmd, err := shim.NewCommand(cmdType, body)
	if err != nil {
		return WrapError(ExitRuntime, "build command", err)
	}
	cmd = s.decorateCommand(cmd)

	reply, err := s.Broker.PublishCommand(ctx, nodeID, cmd)
	if err != nil {
		return WrapError(ExitRuntime, "publish command", err)
	}
	if reply.Err != nil {
		return ErrorForReplyCode(reply.Err.Code, reply.Err.Message)
	}
	return nil
}

func (s Service) decorateCommand(cmd shim.CommandEnvelope) shim.CommandEnvelope {
	cmd.ID = s.IDGen.NewID()
	cmd.TS = s.Clock.NowUnix()
	cmd.From = s.Config.Identity
	cmd.ReplyTo = s.Broker.ReplyTopic()
	return cmd
}

func (s Service) resolveSeekTicks(ctx context.Context, nodeID string, arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "seek position required"}
	}

	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		delta, err := parseDurationToTicks(arg)
		if err != nil {
			return 0, err
		}
		state, err := s.Broker.GetNodeState(ctx, nodeID)
		if err != nil {
			return 0, WrapError(ExitRuntime, "get node state", err)
		}
		current := int64(0)
		if state.Snapshot != nil && state.Snapshot.PlayState != nil && state.Snapshot.PlayState.PositionTicks != nil {
			current = *state.Snapshot.PlayState.PositionTicks
		}
		position := current + delta
		if position < 0 {
			position = 0
		}
		return position, nil
	}
	return parseDurationToTicks(arg)
}

func (s Service) resolveVolume(ctx context.Context, nodeID string, arg string) (int, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "volume argument required"}
	}

	if strings.HasPrefix(arg, "+") || strings.HasPrefix(arg, "-") {
		delta, err := strconv.Atoi(arg)
		if err != nil {
			return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume delta"}
		}
		state, err := s.Broker.GetNodeState(ctx, nodeID)
		if err != nil {
			return 0, WrapError(ExitRuntime, "get node state", err)
		}
		current := 100
		if state.Snapshot != nil && state.Snapshot.PlayState != nil && state.Snapshot.PlayState.VolumeLevel != nil {
			current = *state.Snapshot.PlayState.VolumeLevel
		}
		return clampVolume(current + delta), nil
	}

	value, err := strconv.Atoi(arg)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid volume"}
	}
	if value < 0 || value > 100 {
		return 0, &CLIError{Code: ExitUsage, Msg: "volume must be 0..100"}
	}
	return value, nil
}

func clampVolume(volume int) int {
	if volume < 0 {
		return 0
	}
	if volume > 100 {
		return 100
	}
	return volume
}

// parseDurationToTicks accepts either a Go duration string or a plain
// number of seconds and converts to ticks.
func parseDurationToTicks(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return 0, &CLIError{Code: ExitUsage, Msg: "duration required"}
	}
	sign := int64(1)
	if strings.HasPrefix(arg, "+") {
		arg = arg[1:]
	} else if strings.HasPrefix(arg, "-") {
		sign = -1
		arg = arg[1:]
	}
	if strings.HasSuffix(arg, "ms") || strings.HasSuffix(arg, "s") || strings.HasSuffix(arg, "m") || strings.HasSuffix(arg, "h") {
		dur, err := time.ParseDuration(arg)
		if err != nil {
			return 0, &CLIError{Code: ExitUsage, Msg: "invalid duration"}
		}
		return sign * int64(dur/time.Millisecond) * (TicksPerSecond / 1000), nil
	}
	seconds, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, &CLIError{Code: ExitUsage, Msg: "invalid duration"}
	}
	return sign * seconds * TicksPerSecond, nil
}

// Package player is the public surface for controlling playback on the
// player host. It encodes playback intents into shim messages addressed
// to the active connection; everything else in the system is
// observational.
package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/internal/mux"
	"github.com/iwalton3/jellyfin-web-jmp/internal/session"
	"github.com/iwalton3/jellyfin-web-jmp/internal/transport"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// ErrNoActiveConnection is returned when a command is issued and no
// connection can be resolved.
var ErrNoActiveConnection = errors.New("no active connection")

// Binding identifies the connection a command addresses and the user on
// whose behalf it is sent.
type Binding struct {
	ConnectionID string
	UserID       string
}

// ConnectionSource yields the currently preferred connection: an
// explicit target if one is set, otherwise the most recently used one.
type ConnectionSource interface {
	Active() (Binding, bool)
}

// ItemResolver expands requested item identifiers into the flat,
// playback-ordered list of leaf items.
type ItemResolver interface {
	Resolve(ctx context.Context, connectionID string, ids []string) ([]string, error)
}

// Sender issues one-shot outbound shim requests.
type Sender interface {
	Send(ctx context.Context, kind transport.Kind, payload any) (json.RawMessage, error)
}

// Outcome reports the fate of a best-effort command. Sent is false when
// no connection could be resolved and nothing went on the wire.
type Outcome struct {
	Sent bool
	Err  error
}

// Options configures a Player.
type Options struct {
	Source   ConnectionSource
	Resolver ItemResolver
	Sender   Sender
	State    *session.Normalizer
	Mux      *mux.Mux
	// Events receives change events produced while updates are active.
	Events func(evt shim.BusEvent)
	Logger *zap.Logger
}

// Player encodes playback intents into outbound shim messages.
type Player struct {
	source   ConnectionSource
	resolver ItemResolver
	sender   Sender
	state    *session.Normalizer
	mux      *mux.Mux
	events   func(evt shim.BusEvent)
	log      *zap.Logger
}

// New creates a Player.
func New(opts Options) (*Player, error) {
	if opts.Source == nil {
		return nil, errors.New("connection source required")
	}
	if opts.Sender == nil {
		return nil, errors.New("sender required")
	}
	if opts.State == nil {
		return nil, errors.New("state normalizer required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Events == nil {
		opts.Events = func(shim.BusEvent) {}
	}
	return &Player{
		source:   opts.Source,
		resolver: opts.Resolver,
		sender:   opts.Sender,
		state:    opts.State,
		mux:      opts.Mux,
		events:   opts.Events,
		log:      opts.Logger,
	}, nil
}

// PlayOptions describe a play request.
type PlayOptions struct {
	IDs                 []string
	Items               []shim.NowPlayingItem
	StartPositionTicks  *int64
	MediaSourceID       string
	AudioStreamIndex    *int
	SubtitleStreamIndex *int
	StartIndex          *int
}

func (o PlayOptions) ids() []string {
	if len(o.IDs) > 0 {
		return o.IDs
	}
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ID)
	}
	return ids
}

// Play resolves the requested items and starts playback on the host.
// Unlike the queueing variants, transport failures are returned.
func (p *Player) Play(ctx context.Context, opts PlayOptions) error {
	b, ok := p.source.Active()
	if !ok {
		return ErrNoActiveConnection
	}

	ids := opts.ids()
	if len(ids) == 0 {
		return errors.New("play requires item ids")
	}

	// The host expects a fully expanded queue; containers and playlists
	// are resolved to leaf items before the command goes out.
	if p.resolver != nil {
		resolved, err := p.resolver.Resolve(ctx, b.ConnectionID, ids)
		if err != nil {
			return fmt.Errorf("resolve items: %w", err)
		}
		ids = resolved
	}

	return p.sendPlay(ctx, b, ids, opts, shim.PlayCommandNow)
}

// Queue appends the items after the current queue.
func (p *Player) Queue(ctx context.Context, opts PlayOptions) Outcome {
	return p.firePlay(ctx, opts, shim.PlayCommandNext)
}

// QueueNext inserts the items at the end of the queue.
func (p *Player) QueueNext(ctx context.Context, opts PlayOptions) Outcome {
	return p.firePlay(ctx, opts, shim.PlayCommandLast)
}

// Shuffle starts shuffled playback of one item.
func (p *Player) Shuffle(ctx context.Context, itemID string) Outcome {
	return p.firePlay(ctx, PlayOptions{IDs: []string{itemID}}, shim.PlayCommandShuffle)
}

// InstantMix starts an instant mix seeded by one item.
func (p *Player) InstantMix(ctx context.Context, itemID string) Outcome {
	return p.firePlay(ctx, PlayOptions{IDs: []string{itemID}}, shim.PlayCommandInstantMix)
}

func (p *Player) firePlay(ctx context.Context, opts PlayOptions, playCommand string) Outcome {
	b, ok := p.source.Active()
	if !ok {
		return Outcome{Err: ErrNoActiveConnection}
	}
	ids := opts.ids()
	if len(ids) == 0 {
		return Outcome{Err: errors.New("play requires item ids")}
	}
	return p.outcome(playCommand, p.sendPlay(ctx, b, ids, opts, playCommand))
}

func (p *Player) sendPlay(ctx context.Context, b Binding, ids []string, opts PlayOptions, playCommand string) error {
	req := shim.PlayRequest{
		ItemIDs:             ids,
		PlayCommand:         playCommand,
		StartPositionTicks:  opts.StartPositionTicks,
		MediaSourceID:       opts.MediaSourceID,
		AudioStreamIndex:    opts.AudioStreamIndex,
		SubtitleStreamIndex: opts.SubtitleStreamIndex,
		StartIndex:          opts.StartIndex,
		ControllingUserID:   b.UserID,
		ServerID:            b.ConnectionID,
	}
	_, err := p.sender.Send(ctx, transport.KindMessage, shim.MessageRequest{Name: shim.MessagePlay, Payload: req})
	return err
}

// Playstate sends a generic play-state command. Seek is the only command
// carrying a position.
func (p *Player) Playstate(ctx context.Context, command string, seekTicks *int64) Outcome {
	b, ok := p.source.Active()
	if !ok {
		return Outcome{Err: ErrNoActiveConnection}
	}
	req := shim.PlaystateRequest{
		Command:           command,
		SeekPositionTicks: seekTicks,
		ControllingUserID: b.UserID,
		ServerID:          b.ConnectionID,
	}
	_, err := p.sender.Send(ctx, transport.KindMessage, shim.MessageRequest{Name: shim.MessagePlaystate, Payload: req})
	return p.outcome(command, err)
}

// Stop stops playback.
func (p *Player) Stop(ctx context.Context) Outcome {
	return p.Playstate(ctx, shim.PlaystateStop, nil)
}

// Pause pauses playback.
func (p *Player) Pause(ctx context.Context) Outcome {
	return p.Playstate(ctx, shim.PlaystatePause, nil)
}

// Unpause resumes playback.
func (p *Player) Unpause(ctx context.Context) Outcome {
	return p.Playstate(ctx, shim.PlaystateUnpause, nil)
}

// PlayPause toggles the pause state.
func (p *Player) PlayPause(ctx context.Context) Outcome {
	return p.Playstate(ctx, shim.PlaystatePlayPause, nil)
}

// NextTrack advances to the next queue entry.
func (p *Player) NextTrack(ctx context.Context) Outcome {
	return p.Playstate(ctx, shim.PlaystateNextTrack, nil)
}

// PreviousTrack returns to the previous queue entry.
func (p *Player) PreviousTrack(ctx context.Context) Outcome {
	return p.Playstate(ctx, shim.PlaystatePreviousTrack, nil)
}

// Seek jumps to a position given in 100-nanosecond ticks.
func (p *Player) Seek(ctx context.Context, positionTicks int64) Outcome {
	return p.Playstate(ctx, shim.PlaystateSeek, &positionTicks)
}

// Command sends a named general command, the catch-all for commands
// without a dedicated method.
func (p *Player) Command(ctx context.Context, name string, args map[string]any) Outcome {
	b, ok := p.source.Active()
	if !ok {
		return Outcome{Err: ErrNoActiveConnection}
	}
	req := shim.GeneralCommandRequest{
		Name:              name,
		Arguments:         args,
		ControllingUserID: b.UserID,
		ServerID:          b.ConnectionID,
	}
	_, err := p.sender.Send(ctx, transport.KindMessage, shim.MessageRequest{Name: shim.MessageGeneralCommand, Payload: req})
	return p.outcome(name, err)
}

// SetVolume sets the volume level (0-100).
func (p *Player) SetVolume(ctx context.Context, volume int) Outcome {
	return p.Command(ctx, shim.CommandSetVolume, map[string]any{"Volume": volume})
}

// VolumeUp raises the volume one step.
func (p *Player) VolumeUp(ctx context.Context) Outcome {
	return p.Command(ctx, shim.CommandVolumeUp, nil)
}

// VolumeDown lowers the volume one step.
func (p *Player) VolumeDown(ctx context.Context) Outcome {
	return p.Command(ctx, shim.CommandVolumeDown, nil)
}

// SetMute mutes or unmutes.
func (p *Player) SetMute(ctx context.Context, muted bool) Outcome {
	if muted {
		return p.Command(ctx, shim.CommandMute, nil)
	}
	return p.Command(ctx, shim.CommandUnmute, nil)
}

// ToggleMute toggles the mute state.
func (p *Player) ToggleMute(ctx context.Context) Outcome {
	return p.Command(ctx, shim.CommandToggleMute, nil)
}

// SetAudioStreamIndex selects the audio stream.
func (p *Player) SetAudioStreamIndex(ctx context.Context, index int) Outcome {
	return p.Command(ctx, shim.CommandSetAudioStreamIndex, map[string]any{"Index": index})
}

// SetSubtitleStreamIndex selects the subtitle stream.
func (p *Player) SetSubtitleStreamIndex(ctx context.Context, index int) Outcome {
	return p.Command(ctx, shim.CommandSetSubtitleStreamIndex, map[string]any{"Index": index})
}

// SetRepeatMode sets the repeat mode.
func (p *Player) SetRepeatMode(ctx context.Context, mode string) Outcome {
	return p.Command(ctx, shim.CommandSetRepeatMode, map[string]any{"RepeatMode": mode})
}

// SetQueueShuffleMode sets the queue shuffle mode.
func (p *Player) SetQueueShuffleMode(ctx context.Context, mode string) Outcome {
	return p.Command(ctx, shim.CommandSetShuffleQueue, map[string]any{"ShuffleMode": mode})
}

// ToggleFullscreen toggles fullscreen on the host.
func (p *Player) ToggleFullscreen(ctx context.Context) Outcome {
	return p.Command(ctx, shim.CommandToggleFullscreen, nil)
}

// DisplayContent asks the host to display an item.
func (p *Player) DisplayContent(ctx context.Context, args map[string]any) Outcome {
	return p.Command(ctx, shim.CommandDisplayContent, args)
}

// PlayTrailers plays the trailers of an item.
func (p *Player) PlayTrailers(ctx context.Context, itemID string) Outcome {
	return p.Command(ctx, shim.CommandPlayTrailers, map[string]any{"ItemId": itemID})
}

func (p *Player) outcome(name string, err error) Outcome {
	if err != nil {
		p.log.Warn("command send failed", zap.String("command", name), zap.Error(err))
		return Outcome{Sent: true, Err: err}
	}
	return Outcome{Sent: true}
}

package player

import (
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

// Static identity of the player host as a playback target.
const (
	TargetID   = "mpv"
	TargetName = "mpv"
)

// BeginUpdates installs the global player callback: inbound player
// envelopes are normalized, diffed, and forwarded as change events.
func (p *Player) BeginUpdates() {
	if p.mux == nil {
		return
	}
	p.mux.SetPlayer(func(payload json.RawMessage) {
		b, ok := p.source.Active()
		if !ok {
			return
		}
		var snap shim.SessionSnapshot
		if err := json.Unmarshal(payload, &snap); err != nil {
			p.log.Warn("invalid session payload", zap.Error(err))
			return
		}
		_, events := p.state.Process(b.ConnectionID, snap)
		for _, name := range events {
			p.events(shim.BusEvent{Type: name, ConnectionID: b.ConnectionID, Payload: payload})
		}
	})
}

// EndUpdates restores the no-op player callback.
func (p *Player) EndUpdates() {
	if p.mux == nil {
		return
	}
	p.mux.SetPlayer(nil)
}

// snapshot returns the latest stored snapshot for the active connection.
func (p *Player) snapshot() (shim.SessionSnapshot, bool) {
	b, ok := p.source.Active()
	if !ok {
		return shim.SessionSnapshot{}, false
	}
	return p.state.Latest(b.ConnectionID)
}

// State returns the latest snapshot, or the zero snapshot when none has
// arrived yet.
func (p *Player) State() shim.SessionSnapshot {
	snap, _ := p.snapshot()
	return snap
}

// Position returns the playback position in ticks.
func (p *Player) Position() (int64, bool) {
	snap, ok := p.snapshot()
	if !ok || snap.PlayState == nil || snap.PlayState.PositionTicks == nil {
		return 0, false
	}
	return *snap.PlayState.PositionTicks, true
}

// Duration returns the running time of the now-playing item in ticks.
func (p *Player) Duration() (int64, bool) {
	snap, ok := p.snapshot()
	if !ok || snap.NowPlayingItem == nil || snap.NowPlayingItem.RunTimeTicks == nil {
		return 0, false
	}
	return *snap.NowPlayingItem.RunTimeTicks, true
}

// Paused reports whether playback is paused. False when no snapshot
// exists yet.
func (p *Player) Paused() bool {
	snap, ok := p.snapshot()
	return ok && snap.PlayState != nil && snap.PlayState.IsPaused
}

// Muted reports whether the host is muted.
func (p *Player) Muted() bool {
	snap, ok := p.snapshot()
	return ok && snap.PlayState != nil && snap.PlayState.IsMuted
}

// Volume returns the reported volume level.
func (p *Player) Volume() (int, bool) {
	snap, ok := p.snapshot()
	if !ok || snap.PlayState == nil || snap.PlayState.VolumeLevel == nil {
		return 0, false
	}
	return *snap.PlayState.VolumeLevel, true
}

// AudioStreamIndex returns the selected audio stream index.
func (p *Player) AudioStreamIndex() (int, bool) {
	snap, ok := p.snapshot()
	if !ok || snap.PlayState == nil || snap.PlayState.AudioStreamIndex == nil {
		return 0, false
	}
	return *snap.PlayState.AudioStreamIndex, true
}

// SubtitleStreamIndex returns the selected subtitle stream index.
func (p *Player) SubtitleStreamIndex() (int, bool) {
	snap, ok := p.snapshot()
	if !ok || snap.PlayState == nil || snap.PlayState.SubtitleStreamIndex == nil {
		return 0, false
	}
	return *snap.PlayState.SubtitleStreamIndex, true
}

// AudioTracks lists the audio streams of the now-playing item.
func (p *Player) AudioTracks() []shim.MediaStream {
	return p.streams(shim.StreamTypeAudio)
}

// SubtitleTracks lists the subtitle streams of the now-playing item.
func (p *Player) SubtitleTracks() []shim.MediaStream {
	return p.streams(shim.StreamTypeSubtitle)
}

func (p *Player) streams(streamType string) []shim.MediaStream {
	snap, ok := p.snapshot()
	if !ok || snap.NowPlayingItem == nil {
		return nil
	}
	var out []shim.MediaStream
	for _, stream := range snap.NowPlayingItem.MediaStreams {
		if stream.Type == streamType {
			out = append(out, stream)
		}
	}
	return out
}

// IsPlaying reports whether an item of the given media type is loaded.
// An empty media type matches any item.
func (p *Player) IsPlaying(mediaType string) bool {
	snap, ok := p.snapshot()
	if !ok || snap.NowPlayingItem == nil {
		return false
	}
	return mediaType == "" || snap.NowPlayingItem.MediaType == mediaType
}

// IsPlayingVideo reports whether a video item is loaded.
func (p *Player) IsPlayingVideo() bool { return p.IsPlaying("Video") }

// IsPlayingAudio reports whether an audio item is loaded.
func (p *Player) IsPlayingAudio() bool { return p.IsPlaying("Audio") }

// CanPlayMediaType reports whether the host can play the media type.
func (p *Player) CanPlayMediaType(mediaType string) bool {
	switch strings.ToLower(mediaType) {
	case "video", "audio":
		return true
	}
	return false
}

// CanQueueMediaType reports whether the media type can be queued.
func (p *Player) CanQueueMediaType(mediaType string) bool {
	return p.CanPlayMediaType(mediaType)
}

// Targets returns the single static target descriptor for the host.
// There is one engine and no discovery protocol.
func (p *Player) Targets() []shim.Target {
	return []shim.Target{{
		Name:       TargetName,
		ID:         TargetID,
		PlayerName: TargetName,
		Playable:   true,
		SupportedCommands: []string{
			shim.CommandSetVolume,
			shim.CommandVolumeUp,
			shim.CommandVolumeDown,
			shim.CommandMute,
			shim.CommandUnmute,
			shim.CommandToggleMute,
			shim.CommandSetAudioStreamIndex,
			shim.CommandSetSubtitleStreamIndex,
			shim.CommandSetRepeatMode,
			shim.CommandSetShuffleQueue,
			shim.CommandToggleFullscreen,
			shim.CommandDisplayContent,
			shim.CommandPlayTrailers,
		},
		PlayableMediaTypes: []string{"Audio", "Video"},
	}}
}

package shim

// PlayBody is the payload for playback.play and its queueing variants.
type PlayBody struct {
	IDs                 []string `json:"ids"`
	StartPositionTicks  *int64   `json:"startPositionTicks,omitempty"`
	MediaSourceID       string   `json:"mediaSourceId,omitempty"`
	AudioStreamIndex    *int     `json:"audioStreamIndex,omitempty"`
	SubtitleStreamIndex *int     `json:"subtitleStreamIndex,omitempty"`
	StartIndex          *int     `json:"startIndex,omitempty"`
}

// SeekBody is the payload for playback.seek.
type SeekBody struct {
	PositionTicks int64 `json:"positionTicks"`
}

// SetVolumeBody is the payload for playback.setVolume.
type SetVolumeBody struct {
	Volume int `json:"volume"`
}

// SetMuteBody is the payload for playback.setMute.
type SetMuteBody struct {
	Mute bool `json:"mute"`
}

// SetStreamBody selects an audio or subtitle stream index.
type SetStreamBody struct {
	Index int `json:"index"`
}

// SetRepeatBody is the payload for playback.setRepeat.
type SetRepeatBody struct {
	Mode string `json:"mode"`
}

// SetShuffleBody is the payload for playback.setShuffle.
type SetShuffleBody struct {
	Mode string `json:"mode"`
}

// RawCommandBody is the payload for playback.command, the escape hatch
// for general commands without a dedicated type.
type RawCommandBody struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

package shim

// Message names accepted by the send-message endpoint.
const (
	MessagePlay           = "Play"
	MessagePlaystate      = "Playstate"
	MessageGeneralCommand = "GeneralCommand"
)

// MessageRequest is the body posted to the send-message endpoint. Name
// selects the remote command; Payload carries its arguments.
type MessageRequest struct {
	Name    string `json:"name"`
	Payload any    `json:"payload"`
}

// Play command variants understood by the player host.
const (
	PlayCommandNow        = "PlayNow"
	PlayCommandNext       = "PlayNext"
	PlayCommandLast       = "PlayLast"
	PlayCommandShuffle    = "PlayShuffle"
	PlayCommandInstantMix = "PlayInstantMix"
)

// PlayRequest is the payload of a "Play" message.
type PlayRequest struct {
	ItemIDs             []string `json:"ItemIds"`
	PlayCommand         string   `json:"PlayCommand"`
	StartPositionTicks  *int64   `json:"StartPositionTicks,omitempty"`
	MediaSourceID       string   `json:"MediaSourceId,omitempty"`
	AudioStreamIndex    *int     `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex *int     `json:"SubtitleStreamIndex,omitempty"`
	StartIndex          *int     `json:"StartIndex,omitempty"`
	ControllingUserID   string   `json:"ControllingUserId"`
	ServerID            string   `json:"ServerId"`
}

// Play-state commands understood by the player host.
const (
	PlaystateStop          = "Stop"
	PlaystatePause         = "Pause"
	PlaystateUnpause       = "Unpause"
	PlaystatePlayPause     = "PlayPause"
	PlaystateNextTrack     = "NextTrack"
	PlaystatePreviousTrack = "PreviousTrack"
	PlaystateSeek          = "Seek"
)

// PlaystateRequest is the payload of a "Playstate" message.
type PlaystateRequest struct {
	Command           string `json:"Command"`
	SeekPositionTicks *int64 `json:"SeekPositionTicks,omitempty"`
	ControllingUserID string `json:"ControllingUserId"`
	ServerID          string `json:"ServerId"`
}

// General command names with dedicated dispatcher methods.
const (
	CommandSetVolume              = "SetVolume"
	CommandVolumeUp               = "VolumeUp"
	CommandVolumeDown             = "VolumeDown"
	CommandMute                   = "Mute"
	CommandUnmute                 = "Unmute"
	CommandToggleMute             = "ToggleMute"
	CommandSetAudioStreamIndex    = "SetAudioStreamIndex"
	CommandSetSubtitleStreamIndex = "SetSubtitleStreamIndex"
	CommandSetRepeatMode          = "SetRepeatMode"
	CommandSetShuffleQueue        = "SetShuffleQueue"
	CommandToggleFullscreen       = "ToggleFullscreen"
	CommandDisplayContent         = "DisplayContent"
	CommandPlayTrailers           = "PlayTrailers"
)

// GeneralCommandRequest is the payload of a "GeneralCommand" message.
type GeneralCommandRequest struct {
	Name              string         `json:"Name"`
	Arguments         map[string]any `json:"Arguments,omitempty"`
	ControllingUserID string         `json:"ControllingUserId"`
	ServerID          string         `json:"ServerId"`
}

// AnnounceRequest announces a new connection to the player host.
type AnnounceRequest struct {
	Address          string `json:"address"`
	AccessToken      string `json:"accessToken"`
	UserID           string `json:"userId"`
	Name             string `json:"name"`
	ID               string `json:"id"`
	Username         string `json:"username"`
	DateLastAccessed int64  `json:"dateLastAccessed"`
	UUID             string `json:"uuid"`
}

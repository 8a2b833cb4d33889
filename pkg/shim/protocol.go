package shim

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// BaseTopic is the default MQTT topic prefix for the control plane.
const BaseTopic = "shim/v1"

// Envelope destinations. Every inbound message carries exactly one.
const (
	DestWS     = "ws"
	DestPlayer = "player"
)

// Envelope is one inbound unit from the player host. Dest selects the
// routing path: "ws" messages belong to a single connection, "player"
// messages go to the global player callback. Payload keeps the complete
// raw document so subscribers see every field the host sent.
type Envelope struct {
	Dest         string
	ConnectionID string
	Payload      json.RawMessage
}

type envelopeHeader struct {
	Dest         string `json:"dest"`
	ConnectionID string `json:"connectionId,omitempty"`
}

// DecodeEnvelope decodes a single inbound envelope. The destination tag
// and connection identifier are lifted out of the document; the document
// itself is retained verbatim as the payload.
func DecodeEnvelope(data []byte) (Envelope, error) {
	var header envelopeHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if strings.TrimSpace(header.Dest) == "" {
		return Envelope{}, errors.New("envelope missing dest")
	}
	payload := make(json.RawMessage, len(data))
	copy(payload, data)
	return Envelope{
		Dest:         header.Dest,
		ConnectionID: header.ConnectionID,
		Payload:      payload,
	}, nil
}

// SessionSnapshot is the full playback state document the player host
// reports for a connection. It is replaced wholesale on every update.
type SessionSnapshot struct {
	ID             string          `json:"Id,omitempty"`
	NowPlayingItem *NowPlayingItem `json:"NowPlayingItem,omitempty"`
	PlayState      *PlayState      `json:"PlayState,omitempty"`
}

// NowPlayingItem describes the item currently loaded in the player.
type NowPlayingItem struct {
	ID           string        `json:"Id,omitempty"`
	ServerID     string        `json:"ServerId,omitempty"`
	Name         string        `json:"Name,omitempty"`
	MediaType    string        `json:"MediaType,omitempty"`
	RunTimeTicks *int64        `json:"RunTimeTicks,omitempty"`
	MediaStreams []MediaStream `json:"MediaStreams,omitempty"`

	ImageTags       map[string]string `json:"ImageTags,omitempty"`
	PrimaryImageTag string            `json:"PrimaryImageTag,omitempty"`

	BackdropImageTag  string   `json:"BackdropImageTag,omitempty"`
	BackdropItemID    string   `json:"BackdropItemId,omitempty"`
	BackdropImageTags []string `json:"BackdropImageTags,omitempty"`

	ParentBackdropImageTags []string `json:"ParentBackdropImageTags,omitempty"`
	ParentBackdropItemID    string   `json:"ParentBackdropItemId,omitempty"`
}

// PlayState carries the mutable play-state fields of a snapshot.
type PlayState struct {
	PositionTicks       *int64 `json:"PositionTicks,omitempty"`
	IsPaused            bool   `json:"IsPaused,omitempty"`
	IsMuted             bool   `json:"IsMuted,omitempty"`
	VolumeLevel         *int   `json:"VolumeLevel,omitempty"`
	AudioStreamIndex    *int   `json:"AudioStreamIndex,omitempty"`
	SubtitleStreamIndex *int   `json:"SubtitleStreamIndex,omitempty"`
	MediaSourceID       string `json:"MediaSourceId,omitempty"`
	RepeatMode          string `json:"RepeatMode,omitempty"`
	CanSeek             bool   `json:"CanSeek,omitempty"`
}

// Stream types reported in MediaStreams.
const (
	StreamTypeAudio    = "Audio"
	StreamTypeSubtitle = "Subtitle"
)

// MediaStream is one selectable stream of the now-playing item.
type MediaStream struct {
	Index        int    `json:"Index"`
	Type         string `json:"Type"`
	Codec        string `json:"Codec,omitempty"`
	Language     string `json:"Language,omitempty"`
	DisplayTitle string `json:"DisplayTitle,omitempty"`
	IsDefault    bool   `json:"IsDefault,omitempty"`
}

// Target is the static descriptor of the player host as a playback
// destination. There is exactly one host, so discovery returns one target.
type Target struct {
	Name               string   `json:"name"`
	ID                 string   `json:"id"`
	PlayerName         string   `json:"playerName"`
	Playable           bool     `json:"playable"`
	SupportedCommands  []string `json:"supportedCommands"`
	PlayableMediaTypes []string `json:"playableMediaTypes"`
}

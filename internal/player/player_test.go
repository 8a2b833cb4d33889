package player

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/iwalton3/jellyfin-web-jmp/internal/mux"
	"github.com/iwalton3/jellyfin-web-jmp/internal/session"
	"github.com/iwalton3/jellyfin-web-jmp/internal/transport"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

type fakeSource struct {
	binding Binding
	bound   bool
}

func (s *fakeSource) Active() (Binding, bool) { return s.binding, s.bound }

type sentRequest struct {
	kind    transport.Kind
	payload any
}

type fakeSender struct {
	sent []sentRequest
	err  error
}

func (s *fakeSender) Send(_ context.Context, kind transport.Kind, payload any) (json.RawMessage, error) {
	s.sent = append(s.sent, sentRequest{kind: kind, payload: payload})
	return nil, s.err
}

func (s *fakeSender) lastMessage(t *testing.T) shim.MessageRequest {
	t.Helper()
	if len(s.sent) == 0 {
		t.Fatalf("nothing sent")
	}
	msg, ok := s.sent[len(s.sent)-1].payload.(shim.MessageRequest)
	if !ok {
		t.Fatalf("unexpected payload type %T", s.sent[len(s.sent)-1].payload)
	}
	return msg
}

type fakeResolver struct {
	resolved []string
	gotIDs   []string
	err      error
}

func (r *fakeResolver) Resolve(_ context.Context, _ string, ids []string) ([]string, error) {
	r.gotIDs = ids
	if r.err != nil {
		return nil, r.err
	}
	if r.resolved != nil {
		return r.resolved, nil
	}
	return ids, nil
}

func newTestPlayer(t *testing.T, source *fakeSource, sender *fakeSender, resolver ItemResolver) (*Player, *session.Normalizer) {
	t.Helper()
	state := session.New(nil)
	p, err := New(Options{
		Source:   source,
		Resolver: resolver,
		Sender:   sender,
		State:    state,
		Mux:      mux.New(nil),
	})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	return p, state
}

func boundSource() *fakeSource {
	return &fakeSource{binding: Binding{ConnectionID: "srv1", UserID: "user1"}, bound: true}
}

func TestPlaySendsPlayNow(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPlayer(t, boundSource(), sender, &fakeResolver{})

	if err := p.Play(context.Background(), PlayOptions{IDs: []string{"1", "2"}}); err != nil {
		t.Fatalf("play: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one send, got %d", len(sender.sent))
	}
	msg := sender.lastMessage(t)
	if msg.Name != shim.MessagePlay {
		t.Fatalf("unexpected message name %q", msg.Name)
	}
	req := msg.Payload.(shim.PlayRequest)
	if req.PlayCommand != shim.PlayCommandNow {
		t.Fatalf("expected PlayNow, got %q", req.PlayCommand)
	}
	if len(req.ItemIDs) != 2 || req.ItemIDs[0] != "1" || req.ItemIDs[1] != "2" {
		t.Fatalf("unexpected item ids %v", req.ItemIDs)
	}
	if req.ControllingUserID != "user1" || req.ServerID != "srv1" {
		t.Fatalf("request not addressed: %+v", req)
	}
}

func TestPlayResolvesItems(t *testing.T) {
	sender := &fakeSender{}
	resolver := &fakeResolver{resolved: []string{"a", "b", "c"}}
	p, _ := newTestPlayer(t, boundSource(), sender, resolver)

	opts := PlayOptions{Items: []shim.NowPlayingItem{{ID: "folder1"}}}
	if err := p.Play(context.Background(), opts); err != nil {
		t.Fatalf("play: %v", err)
	}

	if len(resolver.gotIDs) != 1 || resolver.gotIDs[0] != "folder1" {
		t.Fatalf("resolver saw %v", resolver.gotIDs)
	}
	req := sender.lastMessage(t).Payload.(shim.PlayRequest)
	if len(req.ItemIDs) != 3 {
		t.Fatalf("expected expanded ids, got %v", req.ItemIDs)
	}
}

func TestPlayResolverFailure(t *testing.T) {
	sender := &fakeSender{}
	resolver := &fakeResolver{err: errors.New("server down")}
	p, _ := newTestPlayer(t, boundSource(), sender, resolver)

	if err := p.Play(context.Background(), PlayOptions{IDs: []string{"1"}}); err == nil {
		t.Fatalf("expected resolve error")
	}
	if len(sender.sent) != 0 {
		t.Fatalf("no send expected after resolve failure")
	}
}

func TestPlayRequiresItems(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPlayer(t, boundSource(), sender, nil)

	if err := p.Play(context.Background(), PlayOptions{}); err == nil {
		t.Fatalf("expected error for empty play")
	}
}

func TestCommandsFailUnbound(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPlayer(t, &fakeSource{}, sender, nil)
	ctx := context.Background()

	if err := p.Play(ctx, PlayOptions{IDs: []string{"1"}}); !errors.Is(err, ErrNoActiveConnection) {
		t.Fatalf("expected ErrNoActiveConnection, got %v", err)
	}
	for _, outcome := range []Outcome{
		p.Pause(ctx),
		p.Seek(ctx, 100),
		p.SetVolume(ctx, 10),
		p.Queue(ctx, PlayOptions{IDs: []string{"1"}}),
	} {
		if !errors.Is(outcome.Err, ErrNoActiveConnection) {
			t.Fatalf("expected ErrNoActiveConnection, got %v", outcome.Err)
		}
		if outcome.Sent {
			t.Fatalf("nothing may reach the wire while unbound")
		}
	}
	if len(sender.sent) != 0 {
		t.Fatalf("expected zero network calls, got %d", len(sender.sent))
	}
}

func TestQueueVariants(t *testing.T) {
	cases := []struct {
		name    string
		fire    func(p *Player, ctx context.Context) Outcome
		command string
	}{
		{"queue", func(p *Player, ctx context.Context) Outcome {
			return p.Queue(ctx, PlayOptions{IDs: []string{"1"}})
		}, shim.PlayCommandNext},
		{"queueNext", func(p *Player, ctx context.Context) Outcome {
			return p.QueueNext(ctx, PlayOptions{IDs: []string{"1"}})
		}, shim.PlayCommandLast},
		{"shuffle", func(p *Player, ctx context.Context) Outcome {
			return p.Shuffle(ctx, "1")
		}, shim.PlayCommandShuffle},
		{"instantMix", func(p *Player, ctx context.Context) Outcome {
			return p.InstantMix(ctx, "1")
		}, shim.PlayCommandInstantMix},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := &fakeSender{}
			p, _ := newTestPlayer(t, boundSource(), sender, nil)

			outcome := tc.fire(p, context.Background())
			if outcome.Err != nil || !outcome.Sent {
				t.Fatalf("unexpected outcome %+v", outcome)
			}
			req := sender.lastMessage(t).Payload.(shim.PlayRequest)
			if req.PlayCommand != tc.command {
				t.Fatalf("expected %q, got %q", tc.command, req.PlayCommand)
			}
		})
	}
}

func TestSeekCarriesTicks(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPlayer(t, boundSource(), sender, nil)

	p.Seek(context.Background(), 123456789)

	msg := sender.lastMessage(t)
	if msg.Name != shim.MessagePlaystate {
		t.Fatalf("unexpected message name %q", msg.Name)
	}
	req := msg.Payload.(shim.PlaystateRequest)
	if req.Command != shim.PlaystateSeek {
		t.Fatalf("unexpected command %q", req.Command)
	}
	if req.SeekPositionTicks == nil || *req.SeekPositionTicks != 123456789 {
		t.Fatalf("missing seek position")
	}
}

func TestGeneralCommandNames(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPlayer(t, boundSource(), sender, nil)
	ctx := context.Background()

	p.SetMute(ctx, true)
	if req := sender.lastMessage(t).Payload.(shim.GeneralCommandRequest); req.Name != shim.CommandMute {
		t.Fatalf("expected Mute, got %q", req.Name)
	}
	p.SetMute(ctx, false)
	if req := sender.lastMessage(t).Payload.(shim.GeneralCommandRequest); req.Name != shim.CommandUnmute {
		t.Fatalf("expected Unmute, got %q", req.Name)
	}
	p.SetVolume(ctx, 42)
	req := sender.lastMessage(t).Payload.(shim.GeneralCommandRequest)
	if req.Name != shim.CommandSetVolume {
		t.Fatalf("expected SetVolume, got %q", req.Name)
	}
	if req.Arguments["Volume"] != 42 {
		t.Fatalf("expected volume argument, got %v", req.Arguments)
	}
	p.SetAudioStreamIndex(ctx, 2)
	if req := sender.lastMessage(t).Payload.(shim.GeneralCommandRequest); req.Name != shim.CommandSetAudioStreamIndex {
		t.Fatalf("expected SetAudioStreamIndex, got %q", req.Name)
	}
}

func TestFireAndForgetReportsFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("gateway timeout")}
	p, _ := newTestPlayer(t, boundSource(), sender, nil)

	outcome := p.Pause(context.Background())
	if !outcome.Sent {
		t.Fatalf("expected send attempt")
	}
	if outcome.Err == nil {
		t.Fatalf("expected best-effort error to be reported")
	}
}

func TestStateAccessorsRoundTrip(t *testing.T) {
	sender := &fakeSender{}
	p, state := newTestPlayer(t, boundSource(), sender, nil)

	p.SetVolume(context.Background(), 42)

	// The host confirms the change through the inbound channel.
	volume := 42
	position := int64(5000000)
	duration := int64(90000000)
	state.Process("srv1", shim.SessionSnapshot{
		NowPlayingItem: &shim.NowPlayingItem{
			ID:           "item1",
			MediaType:    "Video",
			RunTimeTicks: &duration,
			MediaStreams: []shim.MediaStream{
				{Index: 0, Type: shim.StreamTypeAudio},
				{Index: 1, Type: shim.StreamTypeSubtitle},
				{Index: 2, Type: shim.StreamTypeAudio},
			},
		},
		PlayState: &shim.PlayState{
			PositionTicks: &position,
			VolumeLevel:   &volume,
			IsPaused:      true,
		},
	})

	if got, ok := p.Volume(); !ok || got != 42 {
		t.Fatalf("expected volume 42, got %d (ok=%v)", got, ok)
	}
	if got, ok := p.Position(); !ok || got != 5000000 {
		t.Fatalf("expected position, got %d", got)
	}
	if got, ok := p.Duration(); !ok || got != 90000000 {
		t.Fatalf("expected duration, got %d", got)
	}
	if !p.Paused() {
		t.Fatalf("expected paused")
	}
	if tracks := p.AudioTracks(); len(tracks) != 2 {
		t.Fatalf("expected 2 audio tracks, got %d", len(tracks))
	}
	if tracks := p.SubtitleTracks(); len(tracks) != 1 {
		t.Fatalf("expected 1 subtitle track, got %d", len(tracks))
	}
	if !p.IsPlayingVideo() || p.IsPlayingAudio() {
		t.Fatalf("expected video playback")
	}
}

func TestStateAccessorDefaults(t *testing.T) {
	sender := &fakeSender{}
	p, _ := newTestPlayer(t, boundSource(), sender, nil)

	if _, ok := p.Volume(); ok {
		t.Fatalf("expected no volume before first snapshot")
	}
	if p.Paused() || p.Muted() || p.IsPlaying("") {
		t.Fatalf("expected zero-value reads before first snapshot")
	}
	if tracks := p.AudioTracks(); tracks != nil {
		t.Fatalf("expected nil tracks, got %v", tracks)
	}
}

func TestBeginUpdatesForwardsEvents(t *testing.T) {
	var events []string
	state := session.New(nil)
	m := mux.New(nil)
	p, err := New(Options{
		Source: boundSource(),
		Sender: &fakeSender{},
		State:  state,
		Mux:    m,
		Events: func(evt shim.BusEvent) { events = append(events, evt.Type) },
	})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}

	p.BeginUpdates()
	m.Dispatch(shim.Envelope{Dest: shim.DestPlayer, Payload: []byte(`{"PlayState":{"IsPaused":true}}`)})

	if len(events) != 3 {
		t.Fatalf("expected 3 change events, got %v", events)
	}
	if !p.Paused() {
		t.Fatalf("expected snapshot stored from update")
	}

	p.EndUpdates()
	events = nil
	m.Dispatch(shim.Envelope{Dest: shim.DestPlayer, Payload: []byte(`{}`)})
	if len(events) != 0 {
		t.Fatalf("expected no events after EndUpdates, got %v", events)
	}
}

func TestTargets(t *testing.T) {
	p, _ := newTestPlayer(t, boundSource(), &fakeSender{}, nil)

	targets := p.Targets()
	if len(targets) != 1 {
		t.Fatalf("expected a single static target")
	}
	if targets[0].ID != TargetID || !targets[0].Playable {
		t.Fatalf("unexpected target %+v", targets[0])
	}
	if !p.CanPlayMediaType("Video") || !p.CanQueueMediaType("audio") || p.CanPlayMediaType("Book") {
		t.Fatalf("unexpected media type support")
	}
}

package ctl

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

type stubClock struct{}

func (stubClock) NowUnix() int64 { return 100 }

type stubIDGen struct{}

func (stubIDGen) NewID() string { return "id-1" }

type stubBroker struct {
	presence   []shim.Presence
	replies    map[string]shim.ReplyEnvelope
	lastNode   string
	lastCmd    shim.CommandEnvelope
	replyTopic string
	state      shim.NodeState
}

func (s *stubBroker) ReplyTopic() string { return s.replyTopic }

func (s *stubBroker) PublishCommand(_ context.Context, nodeID string, cmd shim.CommandEnvelope) (shim.ReplyEnvelope, error) {
	s.lastNode = nodeID
	s.lastCmd = cmd
	if reply, ok := s.replies[cmd.Type]; ok {
		return reply, nil
	}
	return shim.ReplyEnvelope{ID: cmd.ID, Type: "ack", OK: true, TS: 101}, nil
}

func (s *stubBroker) ListPresence(context.Context) ([]shim.Presence, error) {
	return s.presence, nil
}

func (s *stubBroker) GetNodeState(context.Context, string) (shim.NodeState, error) {
	return s.state, nil
}

func (s *stubBroker) Watch(context.Context, string) (<-chan shim.NodeState, <-chan shim.BusEvent, <-chan error) {
	stateCh := make(chan shim.NodeState)
	eventCh := make(chan shim.BusEvent)
	errCh := make(chan error)
	close(stateCh)
	close(eventCh)
	close(errCh)
	return stateCh, eventCh, errCh
}

func newService(broker *stubBroker) Service {
	return Service{
		Broker:   broker,
		Resolver: Resolver{Presence: broker, Config: Config{}},
		Clock:    stubClock{},
		IDGen:    stubIDGen{},
		Config:   Config{Identity: "shimctl-test"},
	}
}

func singleNode() []shim.Presence {
	return []shim.Presence{{NodeID: "living-room", Kind: "bridge", Name: "Living Room", TS: 99}}
}

func TestPlayBuildsCommand(t *testing.T) {
	broker := &stubBroker{presence: singleNode(), replyTopic: "shim/v1/reply/shimctl-test"}
	svc := newService(broker)

	start := int64(TicksPerSecond * 30)
	if err := svc.Play(context.Background(), "", []string{"item1", "item2"}, &start); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if broker.lastNode != "living-room" {
		t.Fatalf("command sent to wrong node: %s", broker.lastNode)
	}
	if broker.lastCmd.Type != "playback.play" {
		t.Fatalf("unexpected command type: %s", broker.lastCmd.Type)
	}
	if broker.lastCmd.ID != "id-1" || broker.lastCmd.TS != 100 || broker.lastCmd.From != "shimctl-test" {
		t.Fatalf("command not decorated: %+v", broker.lastCmd)
	}
	if broker.lastCmd.ReplyTo != "shim/v1/reply/shimctl-test" {
		t.Fatalf("reply topic not set: %s", broker.lastCmd.ReplyTo)
	}

	var body shim.PlayBody
	if err := json.Unmarshal(broker.lastCmd.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if len(body.IDs) != 2 || body.StartPositionTicks == nil || *body.StartPositionTicks != start {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestPlayRequiresIDs(t *testing.T) {
	svc := newService(&stubBroker{presence: singleNode()})
	err := svc.Play(context.Background(), "", nil, nil)
	if ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestReplyErrorMapsToExitCode(t *testing.T) {
	broker := &stubBroker{
		presence: singleNode(),
		replies: map[string]shim.ReplyEnvelope{
			"playback.pause": {ID: "id-1", Type: "error", OK: false, Err: &shim.ReplyError{Code: "NO_CONNECTION", Message: "no active connection"}},
		},
	}
	svc := newService(broker)

	err := svc.Pause(context.Background(), "")
	if ExitCode(err) != ExitNotFound {
		t.Fatalf("expected not-found exit code, got %v", err)
	}
}

func TestSeekAbsoluteSeconds(t *testing.T) {
	broker := &stubBroker{presence: singleNode()}
	svc := newService(broker)

	if err := svc.Seek(context.Background(), "", "90"); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	var body shim.SeekBody
	if err := json.Unmarshal(broker.lastCmd.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.PositionTicks != 90*TicksPerSecond {
		t.Fatalf("unexpected position: %d", body.PositionTicks)
	}
}

func TestSeekRelativeUsesState(t *testing.T) {
	position := int64(60 * TicksPerSecond)
	broker := &stubBroker{
		presence: singleNode(),
		state: shim.NodeState{
			ConnectionID: "c1",
			Snapshot:     &shim.SessionSnapshot{PlayState: &shim.PlayState{PositionTicks: &position}},
		},
	}
	svc := newService(broker)

	if err := svc.Seek(context.Background(), "", "-30"); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	var body shim.SeekBody
	if err := json.Unmarshal(broker.lastCmd.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.PositionTicks != 30*TicksPerSecond {
		t.Fatalf("unexpected position: %d", body.PositionTicks)
	}
}

func TestSeekRelativeClampsAtZero(t *testing.T) {
	broker := &stubBroker{presence: singleNode()}
	svc := newService(broker)

	if err := svc.Seek(context.Background(), "", "-10"); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	var body shim.SeekBody
	if err := json.Unmarshal(broker.lastCmd.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.PositionTicks != 0 {
		t.Fatalf("expected clamp to zero, got %d", body.PositionTicks)
	}
}

func TestVolumeRelative(t *testing.T) {
	level := 40
	broker := &stubBroker{
		presence: singleNode(),
		state: shim.NodeState{
			Snapshot: &shim.SessionSnapshot{PlayState: &shim.PlayState{VolumeLevel: &level}},
		},
	}
	svc := newService(broker)

	if err := svc.Volume(context.Background(), "", "+15", nil); err != nil {
		t.Fatalf("Volume: %v", err)
	}
	var body shim.SetVolumeBody
	if err := json.Unmarshal(broker.lastCmd.Body, &body); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if body.Volume != 55 {
		t.Fatalf("unexpected volume: %d", body.Volume)
	}
}

func TestVolumeMute(t *testing.T) {
	broker := &stubBroker{presence: singleNode()}
	svc := newService(broker)

	mute := true
	if err := svc.Volume(context.Background(), "", "", &mute); err != nil {
		t.Fatalf("Volume: %v", err)
	}
	if broker.lastCmd.Type != "playback.setMute" {
		t.Fatalf("unexpected command: %s", broker.lastCmd.Type)
	}
}

func TestVolumeRejectsOutOfRange(t *testing.T) {
	svc := newService(&stubBroker{presence: singleNode()})
	err := svc.Volume(context.Background(), "", "125", nil)
	if ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestRepeatModeValidation(t *testing.T) {
	broker := &stubBroker{presence: singleNode()}
	svc := newService(broker)

	if err := svc.SetRepeat(context.Background(), "", "RepeatAll"); err != nil {
		t.Fatalf("SetRepeat: %v", err)
	}
	if err := svc.SetRepeat(context.Background(), "", "always"); ExitCode(err) != ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
}

func TestResolveNodeAmbiguous(t *testing.T) {
	broker := &stubBroker{presence: []shim.Presence{
		{NodeID: "room-a", Kind: "bridge", Name: "Room A"},
		{NodeID: "room-b", Kind: "bridge", Name: "Room B"},
	}}
	svc := newService(broker)

	err := svc.Pause(context.Background(), "room")
	var cliErr *CLIError
	if !errors.As(err, &cliErr) || cliErr.Code != ExitUsage {
		t.Fatalf("expected ambiguous selector error, got %v", err)
	}
}

func TestResolveNodeDefaultWhenSingle(t *testing.T) {
	broker := &stubBroker{presence: singleNode()}
	svc := newService(broker)

	if err := svc.Stop(context.Background(), ""); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if broker.lastNode != "living-room" {
		t.Fatalf("unexpected node: %s", broker.lastNode)
	}
}

func TestResolveNodeAlias(t *testing.T) {
	broker := &stubBroker{presence: []shim.Presence{
		{NodeID: "node-7f3a", Kind: "bridge", Name: "Den"},
		{NodeID: "node-22bc", Kind: "bridge", Name: "Kitchen"},
	}}
	svc := newService(broker)
	svc.Resolver.Config.Aliases = map[string]string{"den": "node-7f3a"}

	if err := svc.Next(context.Background(), "den"); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if broker.lastNode != "node-7f3a" {
		t.Fatalf("alias not resolved: %s", broker.lastNode)
	}
}

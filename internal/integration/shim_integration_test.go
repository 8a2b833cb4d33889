//go:build integration
// +build integration

package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/iwalton3/jellyfin-web-jmp/internal/adapters/clock"
	"github.com/iwalton3/jellyfin-web-jmp/internal/adapters/idgen"
	"github.com/iwalton3/jellyfin-web-jmp/internal/adapters/mqtt"
	"github.com/iwalton3/jellyfin-web-jmp/internal/adapters/mqttserver"
	"github.com/iwalton3/jellyfin-web-jmp/internal/ctl"
	"github.com/iwalton3/jellyfin-web-jmp/internal/modules/bridge"
	"github.com/iwalton3/jellyfin-web-jmp/internal/modules/broker"
	"github.com/iwalton3/jellyfin-web-jmp/pkg/shim"
)

var (
	ctlBinOnce sync.Once
	ctlBinPath string
	ctlBinErr  error
)

type integrationOptions struct {
	allowAnonymous bool
	username       string
	password       string
}

type integrationHarness struct {
	ctx       context.Context
	cancel    context.CancelFunc
	logger    *zap.Logger
	brokerURL string
	nodeID    string
	player    *fakePlayerHost
	client    *mqtt.Client
	service   ctl.Service
}

// fakePlayerHost stands in for the local player's shim HTTP surface:
// it records outbound messages and serves pushed envelopes on the
// long-poll event endpoint.
type fakePlayerHost struct {
	srv    *httptest.Server
	events chan []byte

	mu       sync.Mutex
	sessions int
	messages []recordedMessage
}

type recordedMessage struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func newFakePlayerHost(t *testing.T) *fakePlayerHost {
	t.Helper()
	f := &fakePlayerHost{events: make(chan []byte, 16)}
	mux := http.NewServeMux()
	mux.HandleFunc("/mpv_shim_session", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.sessions++
		f.mu.Unlock()
		fmt.Fprint(w, "{}")
	})
	mux.HandleFunc("/mpv_shim_teardown", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/mpv_shim_syncplay_join", func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc("/mpv_shim_message", func(w http.ResponseWriter, r *http.Request) {
		var msg recordedMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.messages = append(f.messages, msg)
		f.mu.Unlock()
	})
	mux.HandleFunc("/mpv_shim_event", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case env := <-f.events:
			_, _ = w.Write(env)
		}
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakePlayerHost) push(t *testing.T, envelope []byte) {
	t.Helper()
	select {
	case f.events <- envelope:
	case <-time.After(time.Second):
		t.Fatalf("event channel full")
	}
}

func (f *fakePlayerHost) messageNamed(name string) (recordedMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.messages {
		if msg.Name == name {
			return msg, true
		}
	}
	return recordedMessage{}, false
}

func TestBridgeControlIntegration(t *testing.T) {
	h := setupIntegration(t)
	ctx := h.ctx

	nodes, err := h.service.ListNodes(ctx)
	if err != nil {
		t.Fatalf("list nodes: %v", err)
	}
	if len(nodes.Nodes) != 1 || nodes.Nodes[0].NodeID != h.nodeID {
		t.Fatalf("expected bridge node %s, got %+v", h.nodeID, nodes.Nodes)
	}
	if nodes.Nodes[0].Target == nil || !nodes.Nodes[0].Target.Playable {
		t.Fatalf("expected playable target in presence, got %+v", nodes.Nodes[0].Target)
	}

	if err := h.service.Pause(ctx, ""); err != nil {
		t.Fatalf("pause: %v", err)
	}
	waitForMessage(t, h.player, shim.MessagePlaystate)
	msg, _ := h.player.messageNamed(shim.MessagePlaystate)
	var playstate shim.PlaystateRequest
	if err := json.Unmarshal(msg.Payload, &playstate); err != nil {
		t.Fatalf("decode playstate: %v", err)
	}
	if playstate.Command != shim.PlaystatePause {
		t.Fatalf("expected %s command, got %q", shim.PlaystatePause, playstate.Command)
	}

	h.player.push(t, []byte(`{
		"dest": "player",
		"Id": "local-session",
		"NowPlayingItem": {"Id": "item-1", "Name": "Some Film", "MediaType": "Video", "RunTimeTicks": 12000000000},
		"PlayState": {"PositionTicks": 300000000, "IsPaused": true, "VolumeLevel": 70}
	}`))

	status := waitForSnapshot(t, h)
	if status.State.Snapshot.NowPlayingItem == nil || status.State.Snapshot.NowPlayingItem.Name != "Some Film" {
		t.Fatalf("unexpected now playing item: %+v", status.State.Snapshot.NowPlayingItem)
	}
	if status.State.Snapshot.PlayState == nil || !status.State.Snapshot.PlayState.IsPaused {
		t.Fatalf("expected paused state, got %+v", status.State.Snapshot.PlayState)
	}
}

func TestPlayCommandReachesPlayerHost(t *testing.T) {
	h := setupIntegration(t)

	if err := h.service.Play(h.ctx, "", []string{"item-a", "item-b"}, nil); err != nil {
		t.Fatalf("play: %v", err)
	}
	waitForMessage(t, h.player, shim.MessagePlay)
	msg, _ := h.player.messageNamed(shim.MessagePlay)
	var play shim.PlayRequest
	if err := json.Unmarshal(msg.Payload, &play); err != nil {
		t.Fatalf("decode play request: %v", err)
	}
	if len(play.ItemIDs) != 2 || play.ItemIDs[0] != "item-a" {
		t.Fatalf("unexpected item ids: %+v", play.ItemIDs)
	}
	if play.ServerID == "" {
		t.Fatalf("expected connection id stamped on play request")
	}
}

func TestUnknownCommandReturnsInvalid(t *testing.T) {
	h := setupIntegration(t)

	cmd, err := shim.NewCommand("playback.unknown", struct{}{})
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	reply := publishCommand(t, h, decorateCommand(h, cmd))
	if reply.Err == nil || reply.Err.Code != "INVALID" {
		t.Fatalf("expected INVALID, got %+v", reply.Err)
	}
}

func TestVolumeOutOfRangeReturnsInvalid(t *testing.T) {
	h := setupIntegration(t)

	cmd, err := shim.NewCommand("playback.setVolume", shim.SetVolumeBody{Volume: 150})
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	reply := publishCommand(t, h, decorateCommand(h, cmd))
	if reply.Err == nil || reply.Err.Code != "INVALID" {
		t.Fatalf("expected INVALID, got %+v", reply.Err)
	}
}

func TestEmbeddedBrokerAuth(t *testing.T) {
	h := setupIntegrationWithOptions(t, integrationOptions{
		allowAnonymous: false,
		username:       "shimuser",
		password:       "shimpass",
	})

	_, err := mqtt.NewClient(mqtt.Options{
		BrokerURL: h.brokerURL,
		ClientID:  "shim-int-unauth-" + idgen.Generator{}.NewID(),
		TopicBase: shim.BaseTopic,
		Timeout:   500 * time.Millisecond,
	})
	if err == nil {
		t.Fatalf("expected unauthenticated connection to fail")
	}

	if _, err := h.service.ListNodes(h.ctx); err != nil {
		t.Fatalf("authenticated list nodes: %v", err)
	}
}

func TestShimctlCLIIntegration(t *testing.T) {
	h := setupIntegration(t)
	ctlPath := ctlBinary(t)
	env := cliEnv(t)
	baseArgs := []string{
		"--broker", h.brokerURL,
		"--topic-base", shim.BaseTopic,
		"--identity", "integration-cli",
		"--timeout", "3s",
	}

	out := runShimctl(t, ctlPath, env, append(baseArgs, "--json", "ls")...)
	var nodes ctl.NodesResult
	decodeJSON(t, out, &nodes)
	if len(nodes.Nodes) != 1 || nodes.Nodes[0].NodeID != h.nodeID {
		t.Fatalf("expected bridge node %s, got %+v", h.nodeID, nodes.Nodes)
	}

	runShimctl(t, ctlPath, env, append(baseArgs, "pause", "--node", h.nodeID)...)
	waitForMessage(t, h.player, shim.MessagePlaystate)

	runShimctl(t, ctlPath, env, append(baseArgs, "volume", "40", "--node", h.nodeID)...)
	waitForMessage(t, h.player, shim.MessageGeneralCommand)
	msg, _ := h.player.messageNamed(shim.MessageGeneralCommand)
	var general shim.GeneralCommandRequest
	if err := json.Unmarshal(msg.Payload, &general); err != nil {
		t.Fatalf("decode general command: %v", err)
	}
	if general.Name != shim.CommandSetVolume {
		t.Fatalf("expected %s, got %q", shim.CommandSetVolume, general.Name)
	}
}

func setupIntegration(t *testing.T) *integrationHarness {
	return setupIntegrationWithOptions(t, integrationOptions{allowAnonymous: true})
}

func setupIntegrationWithOptions(t *testing.T, opts integrationOptions) *integrationHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := testLogger()
	listen := freeListenAddr(t)
	brokerURL := broker.BrokerURL(listen, false)

	brokerModule, err := broker.NewModule(logger, broker.Config{
		Listen:         listen,
		AllowAnonymous: opts.allowAnonymous,
		Username:       opts.username,
		Password:       opts.password,
	})
	if err != nil {
		t.Fatalf("broker module: %v", err)
	}
	runModule(t, ctx, "broker", brokerModule.Run)
	waitForBrokerReady(t, listen)

	player := newFakePlayerHost(t)
	serverClient := waitForMQTTServerClient(t, logger, brokerURL, opts.username, opts.password)
	nodeID := "bridge-integration-" + idgen.Generator{}.NewID()
	bridgeModule, err := bridge.NewModule(logger, serverClient, bridge.Config{
		NodeID:      nodeID,
		TopicBase:   shim.BaseTopic,
		Name:        "Integration Shim",
		ShimBaseURL: player.srv.URL,
		ShimTimeout: 2 * time.Second,
		Address:     "http://jellyfin.local",
		UserID:      "integration-user",
		Username:    "integration",
	})
	if err != nil {
		t.Fatalf("bridge module: %v", err)
	}
	runModule(t, ctx, "bridge", bridgeModule.Run)

	client := waitForMQTTClient(t, brokerURL, opts.username, opts.password)
	cfg := ctl.Config{
		Identity:    "integration",
		TopicBase:   shim.BaseTopic,
		DefaultNode: nodeID,
	}
	service := ctl.Service{
		Broker:   client,
		Resolver: ctl.Resolver{Presence: client, Config: cfg},
		Clock:    clock.Clock{},
		IDGen:    idgen.Generator{},
		Config:   cfg,
	}

	waitForPresence(t, client, nodeID)
	return &integrationHarness{
		ctx:       ctx,
		cancel:    cancel,
		logger:    logger,
		brokerURL: brokerURL,
		nodeID:    nodeID,
		player:    player,
		client:    client,
		service:   service,
	}
}

func runModule(t *testing.T, ctx context.Context, name string, run func(context.Context) error) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx)
	}()
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("%s module failed: %v", name, err)
		}
	default:
	}
	t.Cleanup(func() {
		select {
		case err := <-errCh:
			if err != nil && !errors.Is(err, context.Canceled) {
				t.Fatalf("%s module failed: %v", name, err)
			}
		case <-time.After(200 * time.Millisecond):
		}
	})
}

func waitForMQTTClient(t *testing.T, brokerURL string, username string, password string) *mqtt.Client {
	t.Helper()
	gen := idgen.Generator{}
	var lastErr error
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		client, err := mqtt.NewClient(mqtt.Options{
			BrokerURL: brokerURL,
			ClientID:  "shim-int-" + gen.NewID(),
			TopicBase: shim.BaseTopic,
			Timeout:   2 * time.Second,
			Username:  username,
			Password:  password,
		})
		if err == nil {
			return client
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("connect control client: %v", lastErr)
	return nil
}

func waitForMQTTServerClient(t *testing.T, logger *zap.Logger, brokerURL string, username string, password string) *mqttserver.Client {
	t.Helper()
	gen := idgen.Generator{}
	var lastErr error
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		client, err := mqttserver.NewClient(mqttserver.Options{
			BrokerURL: brokerURL,
			ClientID:  "shimd-int-" + gen.NewID(),
			Timeout:   2 * time.Second,
			Username:  username,
			Password:  password,
			Logger:    logger,
		})
		if err == nil {
			return client
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("connect mqtt server client: %v", lastErr)
	return nil
}

func waitForPresence(t *testing.T, client *mqtt.Client, nodeID string) {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		presence, err := client.ListPresence(context.Background())
		if err == nil {
			for _, p := range presence {
				if p.NodeID == nodeID {
					return
				}
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for presence: %s", nodeID)
}

func waitForMessage(t *testing.T, player *fakePlayerHost, name string) {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := player.messageNamed(name); ok {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s message", name)
}

func waitForSnapshot(t *testing.T, h *integrationHarness) ctl.StatusResult {
	t.Helper()
	deadline := time.Now().Add(4 * time.Second)
	var last ctl.StatusResult
	for time.Now().Before(deadline) {
		status, err := h.service.Status(h.ctx, "")
		if err == nil && status.State.Snapshot != nil {
			return status
		}
		last = status
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for snapshot, last status: %+v", last)
	return last
}

func freeListenAddr(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		if errors.Is(err, syscall.EPERM) || strings.Contains(err.Error(), "operation not permitted") {
			t.Skip("network listen not permitted in this environment")
		}
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	if err := listener.Close(); err != nil {
		t.Fatalf("close listener: %v", err)
	}
	return addr
}

func waitForBrokerReady(t *testing.T, listen string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", listen, 200*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return
		}
		if errors.Is(err, syscall.EPERM) || strings.Contains(err.Error(), "operation not permitted") {
			t.Skip("network dial not permitted in this environment")
		}
		lastErr = err
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("broker not ready: %v", lastErr)
}

func publishCommand(t *testing.T, h *integrationHarness, cmd shim.CommandEnvelope) shim.ReplyEnvelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 3*time.Second)
	t.Cleanup(cancel)
	reply, err := h.client.PublishCommand(ctx, h.nodeID, cmd)
	if err != nil {
		t.Fatalf("publish command: %v", err)
	}
	return reply
}

func decorateCommand(h *integrationHarness, cmd shim.CommandEnvelope) shim.CommandEnvelope {
	cmd.ID = idgen.Generator{}.NewID()
	cmd.TS = time.Now().Unix()
	cmd.From = "integration"
	cmd.ReplyTo = h.client.ReplyTopic()
	return cmd
}

func testLogger() *zap.Logger {
	debug := os.Getenv("SHIM_INTEGRATION_DEBUG")
	if strings.EqualFold(debug, "1") || strings.EqualFold(debug, "true") {
		logger, err := zap.NewDevelopment()
		if err == nil {
			return logger
		}
	}
	return zap.NewNop()
}

func decodeJSON(t *testing.T, payload string, dest any) {
	t.Helper()
	if err := json.Unmarshal([]byte(payload), dest); err != nil {
		t.Fatalf("decode json: %v\npayload: %s", err, payload)
	}
}

func runShimctl(t *testing.T, ctlPath string, env []string, args ...string) string {
	t.Helper()
	cmd := exec.Command(ctlPath, args...)
	cmd.Env = env
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		t.Fatalf("shimctl %s failed: %v\nstderr: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String()
}

func cliEnv(t *testing.T) []string {
	t.Helper()
	cfgDir := t.TempDir()
	env := append([]string{}, os.Environ()...)
	env = append(env, "XDG_CONFIG_HOME="+cfgDir)
	return env
}

func ctlBinary(t *testing.T) string {
	t.Helper()
	ctlBinOnce.Do(func() {
		dir, err := os.MkdirTemp("", "shimctl-bin-*")
		if err != nil {
			ctlBinErr = err
			return
		}
		binPath := filepath.Join(dir, "shimctl")
		cmd := exec.Command("go", "build", "-o", binPath, "./cmd/shimctl")
		cmd.Dir = repoRoot(t)
		output, err := cmd.CombinedOutput()
		if err != nil {
			ctlBinErr = fmt.Errorf("build shimctl: %w: %s", err, strings.TrimSpace(string(output)))
			return
		}
		ctlBinPath = binPath
	})
	if ctlBinErr != nil {
		t.Fatalf("build shimctl binary: %v", ctlBinErr)
	}
	return ctlBinPath
}

func repoRoot(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("repo root not found from %s", dir)
		}
		dir = parent
	}
}

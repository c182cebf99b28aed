package assistant

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
	"github.com/voxhaus/voxhaus/pkg/backend/mock"
)

// ── fakes ─────────────────────────────────────────────────────────────────

// fakeInput feeds scripted wakeword frames and an unbuffered conversation
// stream, so a successful stream send proves the send loop consumed it.
type fakeInput struct {
	mu        sync.Mutex
	frames    chan []int16
	stream    chan []byte
	streaming bool
	muted     atomic.Bool
}

func newFakeInput() *fakeInput {
	return &fakeInput{frames: make(chan []int16, 8)}
}

func (f *fakeInput) ReadFrame(int) ([]int16, error) {
	frame, ok := <-f.frames
	if !ok {
		return nil, errors.New("capture closed")
	}
	return frame, nil
}

func (f *fakeInput) StartStream() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stream = make(chan []byte)
	f.streaming = true
	return nil
}

func (f *fakeInput) Stream() (<-chan []byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.streaming {
		return nil, errors.New("not streaming")
	}
	return f.stream, nil
}

func (f *fakeInput) StopStream() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.streaming {
		f.streaming = false
		close(f.stream)
	}
}

func (f *fakeInput) Mute()   { f.muted.Store(true) }
func (f *fakeInput) Unmute() { f.muted.Store(false) }

func (f *fakeInput) push(t *testing.T, chunk []byte) {
	t.Helper()
	f.mu.Lock()
	stream := f.stream
	f.mu.Unlock()
	select {
	case stream <- chunk:
	case <-time.After(2 * time.Second):
		t.Fatal("send loop never consumed the chunk")
	}
}

type fakeOutput struct {
	mu       sync.Mutex
	queued   [][]byte
	sounds   []string
	buffered int
	stopped  bool
}

func (f *fakeOutput) Start() error { return nil }

func (f *fakeOutput) QueueAudio(pcm []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(pcm))
	copy(cp, pcm)
	f.queued = append(f.queued, cp)
	f.buffered += len(pcm)
}

func (f *fakeOutput) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.buffered
}

func (f *fakeOutput) drain() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buffered = 0
}

func (f *fakeOutput) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.buffered = 0
}

func (f *fakeOutput) PlaySound(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sounds = append(f.sounds, path)
	return nil
}

func (f *fakeOutput) played() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sounds...)
}

func (f *fakeOutput) queuedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queued)
}

// fakeWake detects the keyword on the n-th processed frame.
type fakeWake struct {
	detectOn int
	seen     int
}

func (f *fakeWake) FrameLength() int { return 4 }

func (f *fakeWake) ProcessFrame([]int16) bool {
	f.seen++
	return f.seen == f.detectOn
}

func newTestOrchestrator(t *testing.T, client backend.Client, timeout time.Duration) (*Orchestrator, *fakeInput, *fakeOutput) {
	t.Helper()
	input := newFakeInput()
	output := &fakeOutput{}
	o, err := New(Config{
		Client:              client,
		Registry:            tools.NewRegistry(),
		Input:               input,
		Output:              output,
		Wakeword:            &fakeWake{detectOn: 1},
		Session:             backend.SessionConfig{Model: "test-model"},
		Keyword:             "computer",
		ConversationTimeout: timeout,
		WatchdogTick:        5 * time.Millisecond,
		ResumeDelay:         5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o, input, output
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

// ── tests ─────────────────────────────────────────────────────────────────

func TestNewRequiresAllDevices(t *testing.T) {
	_, err := New(Config{Registry: tools.NewRegistry()})
	if err == nil {
		t.Fatal("expected error for missing backend client")
	}
}

func TestNewRegistersEndConversationTool(t *testing.T) {
	reg := tools.NewRegistry()
	_, err := New(Config{
		Client:   mock.NewClient(),
		Registry: reg,
		Input:    newFakeInput(),
		Output:   &fakeOutput{},
		Wakeword: &fakeWake{},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	found := false
	for _, name := range reg.Names() {
		if name == "end_conversation" {
			found = true
		}
	}
	if !found {
		t.Errorf("end_conversation not registered; have %v", reg.Names())
	}
}

func TestInactivityTimeoutEndsConversation(t *testing.T) {
	sess := mock.NewSession()
	client := mock.NewClient(sess)
	o, _, output := newTestOrchestrator(t, client, 40*time.Millisecond)

	reason := o.runConversation(context.Background())

	if reason != reasonTimeout {
		t.Errorf("reason = %q, want %q", reason, reasonTimeout)
	}
	if !sess.Closed() {
		t.Error("session not closed after timeout")
	}
	sounds := output.played()
	if len(sounds) != 2 || !strings.HasSuffix(sounds[0], activateSound) || !strings.HasSuffix(sounds[1], deactivateSound) {
		t.Errorf("chimes = %v", sounds)
	}
	if len(client.Configs) != 1 || client.Configs[0].Model != "test-model" {
		t.Fatalf("configs = %+v", client.Configs)
	}
	defs := client.Configs[0].Tools
	if len(defs) == 0 || defs[len(defs)-1].Name != "end_conversation" {
		t.Errorf("tool definitions not sent at connect: %+v", defs)
	}
}

func TestEndConversationToolHangsUpWithFarewell(t *testing.T) {
	sess := mock.NewSession()
	o, _, _ := newTestOrchestrator(t, mock.NewClient(sess), time.Minute)

	sess.Emit(backend.Event{Kind: backend.EventToolCall, Calls: []backend.ToolCall{
		{ID: "end1", Name: "end_conversation"},
	}})

	reason := o.runConversation(context.Background())

	if reason != reasonFarewell {
		t.Errorf("reason = %q, want %q", reason, reasonFarewell)
	}
	if len(sess.ToolResponses) != 1 {
		t.Fatalf("tool responses = %+v", sess.ToolResponses)
	}
	resp := sess.ToolResponses[0]
	if resp.ID != "end1" {
		t.Errorf("response id = %q", resp.ID)
	}
	out, _ := resp.Response["output"].(string)
	if !strings.Contains(out, "Auf Wiedersehen") {
		t.Errorf("farewell response = %v", resp.Response)
	}
}

func TestFailingToolGetsSingleErrorResponse(t *testing.T) {
	sess := mock.NewSession()
	reg := tools.NewRegistry()
	if err := reg.Register(tools.Tool{
		Definition: backend.ToolDefinition{Name: "explode"},
		Handler: func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		},
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	o, err := New(Config{
		Client:              mock.NewClient(sess),
		Registry:            reg,
		Input:               newFakeInput(),
		Output:              &fakeOutput{},
		Wakeword:            &fakeWake{},
		ConversationTimeout: time.Minute,
		WatchdogTick:        5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sess.Emit(backend.Event{Kind: backend.EventToolCall, Calls: []backend.ToolCall{
		{ID: "abc123", Name: "explode", Args: map[string]any{"x": 1}},
	}})
	sess.Emit(backend.Event{Kind: backend.EventToolCall, Calls: []backend.ToolCall{
		{ID: "end1", Name: "end_conversation"},
	}})

	reason := o.runConversation(context.Background())
	if reason != reasonFarewell {
		t.Errorf("reason = %q, want %q", reason, reasonFarewell)
	}

	var forFailed []mock.ToolResponse
	for _, resp := range sess.ToolResponses {
		if resp.ID == "abc123" {
			forFailed = append(forFailed, resp)
		}
	}
	if len(forFailed) != 1 {
		t.Fatalf("responses for abc123 = %+v", forFailed)
	}
	if msg, _ := forFailed[0].Response["error"].(string); !strings.Contains(msg, "boom") {
		t.Errorf("error response = %v", forFailed[0].Response)
	}
}

func TestAssistantSpeechMutesCaptureUntilDrained(t *testing.T) {
	sess := mock.NewSession()
	o, input, output := newTestOrchestrator(t, mock.NewClient(sess), time.Minute)

	done := make(chan string, 1)
	go func() { done <- o.runConversation(context.Background()) }()

	sess.Emit(backend.Event{Kind: backend.EventAudio, Audio: []byte{1, 2, 3, 4}})
	waitFor(t, func() bool { return input.muted.Load() }, "capture never muted during speech")
	if output.queuedCount() == 0 {
		t.Error("speech not queued for playback")
	}

	sess.Emit(backend.Event{Kind: backend.EventTurnComplete})
	output.drain()
	waitFor(t, func() bool { return !input.muted.Load() }, "capture never unmuted after turn")

	sess.Close()
	if reason := <-done; reason != reasonBackend {
		t.Errorf("reason = %q, want %q", reason, reasonBackend)
	}
}

func TestCaptureAudioIsForwardedToBackend(t *testing.T) {
	sess := mock.NewSession()
	o, input, _ := newTestOrchestrator(t, mock.NewClient(sess), time.Minute)

	done := make(chan string, 1)
	go func() { done <- o.runConversation(context.Background()) }()

	waitFor(t, func() bool {
		input.mu.Lock()
		defer input.mu.Unlock()
		return input.streaming
	}, "capture stream never started")

	input.push(t, []byte{9, 9, 9})

	sess.Emit(backend.Event{Kind: backend.EventToolCall, Calls: []backend.ToolCall{
		{ID: "end1", Name: "end_conversation"},
	}})
	<-done

	if len(sess.SentAudio) != 1 || len(sess.SentAudio[0]) != 3 {
		t.Errorf("sent audio = %v", sess.SentAudio)
	}
}

func TestConnectFailureAbortsWithChime(t *testing.T) {
	client := mock.NewClient()
	client.Errs = []error{errors.New("no network")}
	o, _, output := newTestOrchestrator(t, client, time.Minute)

	reason := o.runConversation(context.Background())

	if reason != reasonError {
		t.Errorf("reason = %q, want %q", reason, reasonError)
	}
	sounds := output.played()
	if len(sounds) != 2 {
		t.Errorf("chimes = %v", sounds)
	}
}

func TestShutdownDuringConversation(t *testing.T) {
	sess := mock.NewSession()
	o, _, _ := newTestOrchestrator(t, mock.NewClient(sess), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan string, 1)
	go func() { done <- o.runConversation(ctx) }()
	cancel()

	if reason := <-done; reason != reasonShutdown {
		t.Errorf("reason = %q, want %q", reason, reasonShutdown)
	}
	if !sess.Closed() {
		t.Error("session not closed on shutdown")
	}
}

func TestRunDetectsWakewordThenResumesListening(t *testing.T) {
	sess := mock.NewSession()
	sess.Emit(backend.Event{Kind: backend.EventToolCall, Calls: []backend.ToolCall{
		{ID: "end1", Name: "end_conversation"},
	}})

	input := newFakeInput()
	output := &fakeOutput{}
	o, err := New(Config{
		Client:              mock.NewClient(sess),
		Registry:            tools.NewRegistry(),
		Input:               input,
		Output:              output,
		Wakeword:            &fakeWake{detectOn: 2},
		ConversationTimeout: time.Minute,
		WatchdogTick:        5 * time.Millisecond,
		ResumeDelay:         5 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Two frames before detection, then the feed dries up, ending Run after
	// one complete conversation.
	input.frames <- make([]int16, 4)
	input.frames <- make([]int16, 4)
	close(input.frames)

	err = o.Run(context.Background())
	if err == nil || errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v", err)
	}
	if !sess.Closed() {
		t.Error("conversation session never closed")
	}
	if sounds := output.played(); len(sounds) != 2 {
		t.Errorf("chimes = %v", sounds)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	o, input, _ := newTestOrchestrator(t, mock.NewClient(), time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	cancel()
	close(input.frames) // unblock the pending ReadFrame

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run error = %v", err)
	}
}

// ── source setup ──────────────────────────────────────────────────────────

type fakeSource struct {
	name    string
	initErr error
	closed  bool
	toolSet []tools.Tool
}

func (f *fakeSource) Name() string               { return f.name }
func (f *fakeSource) Tools() []tools.Tool        { return f.toolSet }
func (f *fakeSource) Init(context.Context) error { return f.initErr }
func (f *fakeSource) Close() error               { f.closed = true; return nil }

func namedTool(name string) tools.Tool {
	return tools.Tool{
		Definition: backend.ToolDefinition{Name: name},
		Handler:    func(context.Context, string) (string, error) { return "ok", nil },
	}
}

func TestSetupSourcesExcludesFailedInit(t *testing.T) {
	reg := tools.NewRegistry()
	good := &fakeSource{name: "good", toolSet: []tools.Tool{namedTool("ping")}}
	bad := &fakeSource{name: "bad", initErr: errors.New("no database"), toolSet: []tools.Tool{namedTool("pong")}}

	closeAll := SetupSources(context.Background(), reg, good, bad)

	if reg.Len() != 1 {
		t.Errorf("registered tools = %v", reg.Names())
	}
	if !bad.closed {
		t.Error("failed source not closed")
	}
	if good.closed {
		t.Error("good source closed prematurely")
	}

	closeAll()
	if !good.closed {
		t.Error("good source not closed by closeAll")
	}
}

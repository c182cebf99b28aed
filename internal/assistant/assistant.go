// Package assistant contains the orchestrator that ties wakeword detection,
// audio capture/playback, the conversational backend, and the tool registry
// into the main assistant loop: listen for the wakeword, hold one
// conversation, return to listening.
package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/audio"
	"github.com/voxhaus/voxhaus/pkg/backend"
	"github.com/voxhaus/voxhaus/pkg/wakeword"
)

// ── device contracts ──────────────────────────────────────────────────────

// AudioInput is the capture surface the orchestrator drives: frame reads
// while waiting for the wakeword, a chunk stream during conversations, and a
// mute gate so the assistant does not hear itself.
type AudioInput interface {
	ReadFrame(n int) ([]int16, error)
	StartStream() error
	Stream() (<-chan []byte, error)
	StopStream()
	Mute()
	Unmute()
}

// AudioOutput is the playback surface: a queue for synthesized speech and
// one-shot chime playback.
type AudioOutput interface {
	Start() error
	QueueAudio(pcm []byte)
	Buffered() int
	Stop()
	PlaySound(path string) error
}

// Wakeword spots the keyword in fixed-size capture frames.
type Wakeword interface {
	FrameLength() int
	ProcessFrame(frame []int16) bool
}

var _ AudioInput = (*audio.Capture)(nil)
var _ AudioOutput = (*audio.Playback)(nil)
var _ Wakeword = (*wakeword.Detector)(nil)

// ── orchestrator ──────────────────────────────────────────────────────────

// Chime file names looked up under the sounds directory. Playback falls back
// to a generated beep when a file is missing.
const (
	activateSound   = "activate.wav"
	deactivateSound = "deactivate.wav"
)

// Conversation end reasons as recorded in metrics.
const (
	reasonFarewell = "farewell"
	reasonTimeout  = "timeout"
	reasonShutdown = "shutdown"
	reasonBackend  = "backend"
	reasonError    = "error"
)

var (
	errEndRequested = errors.New("assistant: end of conversation requested")
	errInactivity   = errors.New("assistant: inactivity timeout")
	errSessionEnded = errors.New("assistant: session ended")
)

// Config assembles an [Orchestrator]. Client, Registry, Input, Output, and
// Wakeword are required; the rest defaults sensibly.
type Config struct {
	Client   backend.Client
	Registry *tools.Registry
	Input    AudioInput
	Output   AudioOutput
	Wakeword Wakeword
	Metrics  *observe.Metrics

	// Session carries the model, voice, and system prompt for every
	// conversation. Tool definitions are filled in at connect time.
	Session backend.SessionConfig

	// Keyword labels wakeword detections in logs and metrics.
	Keyword string

	// SoundsDir holds the activation/deactivation chime files.
	SoundsDir string

	// ConversationTimeout ends a conversation after this much inactivity.
	// Default 30s.
	ConversationTimeout time.Duration

	// WatchdogTick is the inactivity check interval. Default 1s.
	WatchdogTick time.Duration

	// ResumeDelay is the pause between a conversation ending and wakeword
	// listening resuming, so the deactivation chime is not treated as
	// speech. Default 500ms.
	ResumeDelay time.Duration
}

// Orchestrator runs the assistant state machine: wakeword listening, one
// conversation at a time, back to listening. A single Run call owns the
// devices for its whole lifetime; stopping happens via context cancellation.
type Orchestrator struct {
	client   backend.Client
	registry *tools.Registry
	input    AudioInput
	output   AudioOutput
	wake     Wakeword
	metrics  *observe.Metrics

	sessionCfg  backend.SessionConfig
	keyword     string
	soundsDir   string
	timeout     time.Duration
	tick        time.Duration
	resumeDelay time.Duration

	endRequested atomic.Bool
	lastActivity atomic.Int64 // unix nanoseconds
}

// New validates cfg, registers the built-in end_conversation tool, and
// returns a ready orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Client == nil:
		return nil, errors.New("assistant: no backend client")
	case cfg.Registry == nil:
		return nil, errors.New("assistant: no tool registry")
	case cfg.Input == nil:
		return nil, errors.New("assistant: no audio input")
	case cfg.Output == nil:
		return nil, errors.New("assistant: no audio output")
	case cfg.Wakeword == nil:
		return nil, errors.New("assistant: no wakeword detector")
	}

	if cfg.ConversationTimeout <= 0 {
		cfg.ConversationTimeout = 30 * time.Second
	}
	if cfg.WatchdogTick <= 0 {
		cfg.WatchdogTick = time.Second
	}
	if cfg.ResumeDelay <= 0 {
		cfg.ResumeDelay = 500 * time.Millisecond
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	o := &Orchestrator{
		client:      cfg.Client,
		registry:    cfg.Registry,
		input:       cfg.Input,
		output:      cfg.Output,
		wake:        cfg.Wakeword,
		metrics:     cfg.Metrics,
		sessionCfg:  cfg.Session,
		keyword:     cfg.Keyword,
		soundsDir:   cfg.SoundsDir,
		timeout:     cfg.ConversationTimeout,
		tick:        cfg.WatchdogTick,
		resumeDelay: cfg.ResumeDelay,
	}
	if err := cfg.Registry.Register(o.endConversationTool()); err != nil {
		return nil, err
	}
	return o, nil
}

// endConversationTool lets the model hang up when the user says goodbye. The
// handler only raises a flag; the watchdog performs the actual teardown so
// the tool response still reaches the backend first.
func (o *Orchestrator) endConversationTool() tools.Tool {
	return tools.Tool{
		Definition: backend.ToolDefinition{
			Name: "end_conversation",
			Description: "Beendet die aktuelle Konversation und kehrt in den Wartemodus zurück. " +
				"Benutze dieses Tool, wenn der Benutzer sich verabschiedet oder nichts mehr braucht.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		Handler: func(context.Context, string) (string, error) {
			o.endRequested.Store(true)
			return "Konversation wird beendet. Auf Wiedersehen!", nil
		},
	}
}

// ── main loop ─────────────────────────────────────────────────────────────

// Run executes the assistant loop until ctx is cancelled or the audio input
// fails. Capture must already be started by the caller.
func (o *Orchestrator) Run(ctx context.Context) error {
	slog.Info("Assistant ready, listening for wakeword", "keyword", o.keyword)

	for {
		if err := o.listenForWakeword(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		o.metrics.RecordWakeword(ctx, o.keyword)

		reason := o.runConversation(ctx)
		slog.Info("Conversation ended", "reason", reason)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(o.resumeDelay):
		}
	}
}

// listenForWakeword consumes capture frames until the keyword completes.
func (o *Orchestrator) listenForWakeword(ctx context.Context) error {
	n := o.wake.FrameLength()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		frame, err := o.input.ReadFrame(n)
		if err != nil {
			return fmt.Errorf("assistant: read frame: %w", err)
		}
		if o.wake.ProcessFrame(frame) {
			return nil
		}
	}
}

// runConversation holds one conversation from activation chime to
// deactivation chime and returns the end reason.
func (o *Orchestrator) runConversation(ctx context.Context) string {
	o.endRequested.Store(false)
	o.touch()
	start := time.Now()

	o.playChime(activateSound)

	cfg := o.sessionCfg
	cfg.Tools = o.registry.Definitions()
	sess, err := o.client.Connect(ctx, cfg)
	if err != nil {
		slog.Error("Backend connect failed", "err", err)
		o.playChime(deactivateSound)
		return reasonError
	}

	if err := o.input.StartStream(); err != nil {
		slog.Error("Capture stream failed", "err", err)
		sess.Close()
		o.playChime(deactivateSound)
		return reasonError
	}
	stream, err := o.input.Stream()
	if err != nil {
		slog.Error("Capture stream unavailable", "err", err)
		o.input.StopStream()
		sess.Close()
		o.playChime(deactivateSound)
		return reasonError
	}
	if err := o.output.Start(); err != nil {
		slog.Warn("Playback unavailable, continuing without audio output", "err", err)
	}

	o.metrics.ActiveConversations.Add(ctx, 1)

	// Tool handlers run off the receive path; pending responses are flushed
	// before the session closes.
	var pendingCalls sync.WaitGroup

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return o.sendLoop(gctx, sess, stream) })
	g.Go(func() error { return o.eventLoop(gctx, sess, &pendingCalls) })
	g.Go(func() error { return o.watchdog(gctx) })

	reason := endReason(g.Wait())

	o.input.StopStream()
	o.input.Unmute()
	pendingCalls.Wait()
	o.output.Stop()
	sess.Close()

	o.metrics.ActiveConversations.Add(ctx, -1)
	o.metrics.RecordConversation(ctx, reason, time.Since(start).Seconds())

	o.playChime(deactivateSound)
	return reason
}

// endReason maps the first loop error to a metrics label.
func endReason(err error) string {
	switch {
	case err == nil, errors.Is(err, errSessionEnded):
		return reasonBackend
	case errors.Is(err, errEndRequested):
		return reasonFarewell
	case errors.Is(err, errInactivity):
		return reasonTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return reasonShutdown
	default:
		slog.Warn("Conversation aborted", "err", err)
		return reasonError
	}
}

// ── conversation loops ────────────────────────────────────────────────────

// sendLoop forwards capture chunks to the backend until the stream closes or
// the conversation is over.
func (o *Orchestrator) sendLoop(ctx context.Context, sess backend.Session, stream <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-stream:
			if !ok {
				return nil
			}
			if err := sess.SendAudio(chunk); err != nil {
				return fmt.Errorf("assistant: send audio: %w", err)
			}
		}
	}
}

// eventLoop consumes backend events. It must never block on tool execution,
// so tool calls are handled on a separate goroutine tracked by pending.
func (o *Orchestrator) eventLoop(ctx context.Context, sess backend.Session, pending *sync.WaitGroup) error {
	events := sess.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if err := sess.Err(); err != nil {
					return fmt.Errorf("assistant: session terminated: %w", err)
				}
				return errSessionEnded
			}
			o.touch()

			switch ev.Kind {
			case backend.EventAudio:
				// Half-duplex: the microphone stays muted while the
				// assistant speaks.
				o.input.Mute()
				o.output.QueueAudio(ev.Audio)
			case backend.EventTurnComplete:
				go o.unmuteWhenDrained(ctx)
			case backend.EventInterrupted:
				o.input.Unmute()
			case backend.EventToolCall:
				pending.Add(1)
				go func(calls []backend.ToolCall) {
					defer pending.Done()
					o.handleToolCalls(ctx, sess, calls)
				}(ev.Calls)
			}
		}
	}
}

// unmuteWhenDrained reopens the microphone once queued speech has played out.
func (o *Orchestrator) unmuteWhenDrained(ctx context.Context) {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if o.output.Buffered() == 0 {
				o.input.Unmute()
				return
			}
		}
	}
}

// handleToolCalls answers every call in the batch exactly once, in order.
// Dispatch converts handler failures into error responses, so the
// conversation survives misbehaving tools.
func (o *Orchestrator) handleToolCalls(ctx context.Context, sess backend.Session, calls []backend.ToolCall) {
	for _, call := range calls {
		start := time.Now()

		args, err := json.Marshal(call.Args)
		if err != nil {
			args = []byte("{}")
		}
		resp := o.registry.Dispatch(ctx, call.Name, string(args))

		status := "ok"
		if _, failed := resp["error"]; failed {
			status = "error"
		}
		o.metrics.RecordToolCall(ctx, call.Name, status, time.Since(start).Seconds())

		if err := sess.SendToolResponse(call.ID, call.Name, resp); err != nil {
			slog.Warn("Tool response not delivered", "tool", call.Name, "id", call.ID, "err", err)
		}
		o.touch()
	}
}

// watchdog ends the conversation on an end_conversation request or after the
// inactivity timeout.
func (o *Orchestrator) watchdog(ctx context.Context) error {
	ticker := time.NewTicker(o.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if o.endRequested.Load() {
				return errEndRequested
			}
			if time.Since(o.last()) > o.timeout {
				slog.Info("Conversation inactive, hanging up", "timeout", o.timeout)
				return errInactivity
			}
		}
	}
}

func (o *Orchestrator) touch()          { o.lastActivity.Store(time.Now().UnixNano()) }
func (o *Orchestrator) last() time.Time { return time.Unix(0, o.lastActivity.Load()) }

func (o *Orchestrator) playChime(name string) {
	if err := o.output.PlaySound(filepath.Join(o.soundsDir, name)); err != nil {
		slog.Warn("Chime playback failed", "sound", name, "err", err)
	}
}

// ── tool source setup ─────────────────────────────────────────────────────

// SetupSources initialises each source and registers the tools of those that
// succeed. A failed Init excludes the source with a warning instead of
// aborting startup. The returned function closes all admitted sources in
// reverse order.
func SetupSources(ctx context.Context, reg *tools.Registry, sources ...tools.Source) func() {
	var closers []tools.Closer
	for _, src := range sources {
		if init, ok := src.(tools.Initializer); ok {
			if err := init.Init(ctx); err != nil {
				slog.Warn("Tool source unavailable", "source", src.Name(), "err", err)
				if c, ok := src.(tools.Closer); ok {
					c.Close()
				}
				continue
			}
		}
		ts := src.Tools()
		if err := reg.RegisterAll(ts); err != nil {
			slog.Warn("Tool source rejected", "source", src.Name(), "err", err)
			continue
		}
		if c, ok := src.(tools.Closer); ok {
			closers = append(closers, c)
		}
		slog.Info("Tool source ready", "source", src.Name(), "tools", len(ts))
	}
	return func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				slog.Warn("Tool source close failed", "err", err)
			}
		}
	}
}

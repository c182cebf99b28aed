// Command voxhaus is the always-on voice assistant daemon: wakeword
// detection, a realtime conversation backend, and a set of household tools.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/voxhaus/voxhaus/internal/assistant"
	"github.com/voxhaus/voxhaus/internal/config"
	"github.com/voxhaus/voxhaus/internal/mcpbridge"
	"github.com/voxhaus/voxhaus/internal/observe"
	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/internal/tools/calendartool"
	"github.com/voxhaus/voxhaus/internal/tools/homectl"
	"github.com/voxhaus/voxhaus/internal/tools/memorytool"
	"github.com/voxhaus/voxhaus/internal/tools/musictool"
	"github.com/voxhaus/voxhaus/internal/tools/newstool"
	"github.com/voxhaus/voxhaus/internal/tools/searchtool"
	"github.com/voxhaus/voxhaus/internal/tools/timertool"
	"github.com/voxhaus/voxhaus/internal/tools/weathertool"
	"github.com/voxhaus/voxhaus/pkg/audio"
	"github.com/voxhaus/voxhaus/pkg/backend"
	"github.com/voxhaus/voxhaus/pkg/backend/gemini"
	openaiembed "github.com/voxhaus/voxhaus/pkg/embeddings/openai"
	"github.com/voxhaus/voxhaus/pkg/memory/postgres"
	"github.com/voxhaus/voxhaus/pkg/wakeword"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	logLevel := flag.String("log-level", "", "override the configured log level")
	listDevices := flag.Bool("list-devices", false, "list audio devices and exit")
	testAudio := flag.Bool("test-audio", false, "play the activation chime and exit")
	testWakeword := flag.Bool("test-wakeword", false, "report wakeword detections without starting conversations")
	flag.Parse()

	if *listDevices {
		return listAudioDevices()
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxhaus: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxhaus: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		cfg.LogLevel = config.LogLevel(*logLevel)
		if !cfg.LogLevel.IsValid() {
			fmt.Fprintf(os.Stderr, "voxhaus: invalid -log-level %q\n", *logLevel)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	slog.SetDefault(newLogger(cfg.LogLevel))
	slog.Info("voxhaus starting", "config", *configPath, "log_level", cfg.LogLevel)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Audio devices ─────────────────────────────────────────────────────────
	mgr, err := audio.NewManager()
	if err != nil {
		slog.Error("Audio backend unavailable", "err", err)
		return 1
	}
	defer mgr.Close()

	playback := audio.NewPlayback(mgr, cfg.Audio.OutputDevice)
	if *testAudio {
		if err := playback.PlaySound(filepath.Join(cfg.Audio.SoundsDir, "activate.wav")); err != nil {
			slog.Error("Test sound failed", "err", err)
			return 1
		}
		return 0
	}

	capture := audio.NewCapture(mgr, cfg.Audio.InputDevice)
	if err := capture.Start(); err != nil {
		slog.Error("Microphone unavailable", "err", err)
		return 1
	}
	defer capture.Close()

	// ── Wakeword engine ───────────────────────────────────────────────────────
	engine, err := wakeword.NewPorcupine(cfg.Wakeword.AccessKey, cfg.Wakeword.Keyword, float32(cfg.Wakeword.Sensitivity))
	if err != nil {
		slog.Error("Wakeword engine failed", "err", err)
		return 1
	}
	detector := wakeword.NewDetector(engine)
	defer detector.Close()

	if *testWakeword {
		return runWakewordTest(ctx, capture, detector)
	}

	// ── Observability (optional) ──────────────────────────────────────────────
	var diagServer *observe.Server
	shutdownTel := func(context.Context) error { return nil }
	if cfg.MetricsAddr != "" {
		shutdownTel, err = observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "voxhaus"})
		if err != nil {
			slog.Error("Telemetry init failed", "err", err)
			return 1
		}
	}

	// ── Tool sources ──────────────────────────────────────────────────────────
	registry := tools.NewRegistry()
	sources, checkers := buildSources(ctx, cfg, playback)
	closeSources := assistant.SetupSources(ctx, registry, sources...)
	defer closeSources()

	if cfg.MetricsAddr != "" {
		diagServer = observe.NewServer(cfg.MetricsAddr, checkers...)
		diagServer.Start()
		slog.Info("Diagnostics server listening", "addr", cfg.MetricsAddr)
	}

	// ── Orchestrator ──────────────────────────────────────────────────────────
	client := gemini.New(cfg.Backend.APIKey)
	orch, err := assistant.New(assistant.Config{
		Client:   client,
		Registry: registry,
		Input:    capture,
		Output:   playback,
		Wakeword: detector,
		Session: backend.SessionConfig{
			Model:        cfg.Backend.Model,
			Voice:        cfg.Backend.Voice,
			SystemPrompt: systemPrompt(cfg),
		},
		Keyword:             cfg.Wakeword.Keyword,
		SoundsDir:           cfg.Audio.SoundsDir,
		ConversationTimeout: time.Duration(cfg.Assistant.ConversationTimeoutSeconds) * time.Second,
	})
	if err != nil {
		slog.Error("Assistant setup failed", "err", err)
		return 1
	}

	printStartupSummary(cfg, registry)

	runErr := orch.Run(ctx)

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("Shutting down…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if diagServer != nil {
		if err := diagServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("Diagnostics server shutdown error", "err", err)
		}
	}
	if err := shutdownTel(shutdownCtx); err != nil {
		slog.Warn("Telemetry shutdown error", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("Assistant stopped with error", "err", runErr)
		return 1
	}
	slog.Info("Goodbye")
	return 0
}

// ── Tool source wiring ────────────────────────────────────────────────────────

// buildSources constructs one tool source per configured integration plus the
// always-on timer tool, and a readiness checker per backing service. Sources
// whose construction fails are skipped with a warning; a later Init failure
// is handled the same way by SetupSources.
func buildSources(ctx context.Context, cfg *config.Config, playback *audio.Playback) ([]tools.Source, []observe.Checker) {
	var sources []tools.Source
	var checkers []observe.Checker

	alarmSound := filepath.Join(cfg.Audio.SoundsDir, "alarm.wav")
	sources = append(sources, timertool.New(func() {
		if err := playback.PlaySound(alarmSound); err != nil {
			slog.Warn("Alarm sound failed", "err", err)
		}
	}))

	if c := cfg.Tools.Calendar; c != nil && c.CredentialsFile != "" {
		sources = append(sources, calendartool.New(c.CredentialsFile, c.TokenFile))
	}
	if s := cfg.Tools.SmartHome; s != nil && s.Host != "" {
		sources = append(sources, homectl.New(s.Host, s.Port))
	}
	if m := cfg.Tools.Music; m != nil {
		sources = append(sources, musictool.New(m.Player, m.Volume))
	}
	if w := cfg.Tools.Weather; w != nil && w.APIKey != "" {
		sources = append(sources, weathertool.New(w.APIKey, w.DefaultCity))
	}
	if n := cfg.Tools.News; n != nil {
		sources = append(sources, newstool.New(n.DefaultSource))
	}
	if s := cfg.Tools.Search; s != nil && s.APIKey != "" {
		sources = append(sources, searchtool.New(s.APIKey))
	}
	if m := cfg.Tools.Memory; m != nil && m.PostgresDSN != "" && m.OpenAIAPIKey != "" {
		src, checker, err := buildMemorySource(ctx, m)
		if err != nil {
			slog.Warn("Memory tool unavailable", "err", err)
		} else {
			sources = append(sources, src)
			checkers = append(checkers, checker)
		}
	}
	if len(cfg.MCP.Servers) > 0 {
		bridgeCfgs := make([]mcpbridge.ServerConfig, 0, len(cfg.MCP.Servers))
		for _, srv := range cfg.MCP.Servers {
			bridgeCfgs = append(bridgeCfgs, srv.BridgeConfig())
		}
		sources = append(sources, mcpbridge.New(bridgeCfgs))
	}

	return sources, checkers
}

func buildMemorySource(ctx context.Context, mc *config.MemoryConfig) (tools.Source, observe.Checker, error) {
	store, err := postgres.NewStore(ctx, mc.PostgresDSN, mc.EmbeddingDimensions)
	if err != nil {
		return nil, observe.Checker{}, err
	}
	embed, err := openaiembed.New(mc.OpenAIAPIKey, mc.EmbeddingModel)
	if err != nil {
		store.Close()
		return nil, observe.Checker{}, err
	}
	checker := observe.Checker{Name: "memory", Check: func(ctx context.Context) error {
		_, err := store.Count(ctx)
		return err
	}}
	return memorytool.New(store, embed), checker, nil
}

// systemPrompt returns the configured persona, or the built-in one tailored
// to the assistant name and speech language.
func systemPrompt(cfg *config.Config) string {
	if cfg.Backend.SystemPrompt != "" {
		return cfg.Backend.SystemPrompt
	}
	return fmt.Sprintf(
		"Du bist %s, ein hilfreicher Sprachassistent für das Zuhause. "+
			"Sprich die Sprache %s. Antworte kurz und natürlich, wie in einem gesprochenen Gespräch, "+
			"ohne Aufzählungen oder Formatierung. Nutze die verfügbaren Tools, um Fragen zu beantworten "+
			"und Aufgaben zu erledigen. Wenn der Benutzer sich verabschiedet oder nichts mehr braucht, "+
			"beende die Konversation mit dem end_conversation Tool.",
		cfg.Assistant.Name, cfg.Backend.Language,
	)
}

// ── Diagnostics modes ─────────────────────────────────────────────────────────

func listAudioDevices() int {
	mgr, err := audio.NewManager()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxhaus: %v\n", err)
		return 1
	}
	defer mgr.Close()

	printDevices := func(kind string, infos []audio.DeviceInfo) {
		fmt.Printf("%s devices:\n", kind)
		for _, d := range infos {
			marker := " "
			if d.IsDefault {
				marker = "*"
			}
			fmt.Printf("  %s %s\n", marker, d.Name)
		}
	}

	inputs, err := mgr.InputDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxhaus: %v\n", err)
		return 1
	}
	printDevices("Input", inputs)

	outputs, err := mgr.OutputDevices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voxhaus: %v\n", err)
		return 1
	}
	printDevices("Output", outputs)
	return 0
}

// runWakewordTest reports detections until interrupted, without ever opening
// a backend session.
func runWakewordTest(ctx context.Context, capture *audio.Capture, detector *wakeword.Detector) int {
	slog.Info("Wakeword test mode — speak the keyword, Ctrl+C to stop")
	n := detector.FrameLength()
	for {
		if ctx.Err() != nil {
			return 0
		}
		frame, err := capture.ReadFrame(n)
		if err != nil {
			slog.Error("Capture failed", "err", err)
			return 1
		}
		if detector.ProcessFrame(frame) {
			fmt.Println("✓ wakeword detected")
		}
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config, registry *tools.Registry) {
	model := cfg.Backend.Model
	if model == "" {
		model = gemini.DefaultModel
	}

	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         voxhaus — startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Wakeword", cfg.Wakeword.Keyword)
	printRow("Model", model)
	printRow("Language", cfg.Backend.Language)
	printRow("Tools", fmt.Sprintf("%d registered", registry.Len()))
	printRow("MCP servers", fmt.Sprintf("%d", len(cfg.MCP.Servers)))
	if cfg.MetricsAddr != "" {
		printRow("Metrics", cfg.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
	for _, name := range registry.Names() {
		slog.Debug("Tool registered", "tool", name)
	}
}

func printRow(kind, value string) {
	if len([]rune(value)) > 19 {
		value = string([]rune(value)[:16]) + "…"
	}
	fmt.Printf("║  %-12s   : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// Package musictool provides YouTube music playback tools. Track resolution
// goes through the yt-dlp CLI; playback runs in an mpv (or ffplay) child
// process streaming the resolved audio URL. Playlists keep an ordered queue
// with an index cursor and auto-advance when a track finishes.
package musictool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

const (
	searchResults  = 5
	searchTimeout  = 30 * time.Second
	resolveTimeout = 20 * time.Second

	playlistMinSongs      = 3
	playlistMaxSongs      = 20
	playlistExtraResults  = 5
	playlistSearchTimeout = 60 * time.Second

	// Playlist candidates outside this duration window are skipped.
	playlistMinDuration = 90
	playlistMaxDuration = 600
)

// video is one flat-playlist search result from yt-dlp.
type video struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Channel   string  `json:"channel"`
	Duration  float64 `json:"duration"`
	ViewCount int64   `json:"view_count"`
}

// playerProc is a running media-player child process.
type playerProc interface {
	Wait() error
	Kill() error
}

type execPlayer struct{ cmd *exec.Cmd }

func (p *execPlayer) Wait() error { return p.cmd.Wait() }
func (p *execPlayer) Kill() error { return p.cmd.Process.Kill() }

type playlistEntry struct {
	ID    string
	Title string
}

// Source is the music tool source.
type Source struct {
	mu sync.Mutex

	player  string // "mpv" or "ffplay"
	volume  int
	playing bool
	current string
	proc    playerProc

	playlist      []playlistEntry
	playlistIndex int
	playlistName  string

	// playGen invalidates stale playback monitors: each new track or stop
	// bumps it, and a monitor only auto-advances when its generation is
	// still current.
	playGen uint64

	// Subprocess seams, replaced in tests.
	runOutput   func(ctx context.Context, name string, args ...string) (string, error)
	startPlayer func(name string, args ...string) (playerProc, error)
	killPlayers func() int
}

var _ tools.Source = (*Source)(nil)
var _ tools.Initializer = (*Source)(nil)
var _ tools.Closer = (*Source)(nil)

// New constructs the music source. player selects the media player binary;
// empty means autodetect in Init (mpv preferred, ffplay fallback).
func New(player string, volume int) *Source {
	return &Source{
		player: player,
		volume: clampVolume(volume),
		runOutput: func(ctx context.Context, name string, args ...string) (string, error) {
			out, err := exec.CommandContext(ctx, name, args...).Output()
			return string(out), err
		},
		startPlayer: func(name string, args ...string) (playerProc, error) {
			cmd := exec.Command(name, args...)
			if err := cmd.Start(); err != nil {
				return nil, err
			}
			return &execPlayer{cmd: cmd}, nil
		},
		killPlayers: killAllPlayers,
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "music" }

// Init verifies that yt-dlp and a media player are installed.
func (s *Source) Init(ctx context.Context) error {
	version, err := s.runOutput(ctx, "yt-dlp", "--version")
	if err != nil {
		return fmt.Errorf("music: yt-dlp not installed: %w", err)
	}
	slog.Info("yt-dlp available", "version", strings.TrimSpace(version))

	if s.player != "" {
		return nil
	}
	if _, err := s.runOutput(ctx, "mpv", "--version"); err == nil {
		s.player = "mpv"
	} else if _, err := s.runOutput(ctx, "ffplay", "-version"); err == nil {
		s.player = "ffplay"
	} else {
		return fmt.Errorf("music: no media player found, install mpv or ffmpeg")
	}
	slog.Info("Media player selected", "player", s.player)
	return nil
}

// Close stops playback and kills any orphaned player processes.
func (s *Source) Close() error {
	s.stopLocked()
	return nil
}

// killAllPlayers kills every mpv/ffplay process, not just the tracked one.
// Orphaned children from a previous run would otherwise keep playing over
// the new track.
func killAllPlayers() int {
	killed := 0
	for _, name := range []string{"mpv", "ffplay"} {
		if err := exec.Command("pkill", "-x", name).Run(); err == nil {
			killed++
		}
	}
	return killed
}

// ── search & ranking ─────────────────────────────────────────────────────────

// scoreTrack ranks a search result for a single-track query. Higher is
// better.
func scoreTrack(query string, v video) int {
	queryLower := strings.ToLower(query)
	title := strings.ToLower(v.Title)

	score := 0

	// Title word overlap.
	titleWords := make(map[string]bool)
	for _, w := range strings.Fields(title) {
		titleWords[w] = true
	}
	for _, w := range strings.Fields(queryLower) {
		if titleWords[w] {
			score += 20
		}
	}

	if strings.Contains(title, queryLower) {
		score += 50
	}

	// Prefer official uploads and plain audio versions.
	if strings.Contains(title, "official") {
		score += 15
	}
	if strings.Contains(title, "audio") {
		score += 10
	}
	if strings.Contains(title, "lyrics") {
		score += 5
	}
	if strings.Contains(title, "music video") {
		score += 5
	}

	// Penalize derivative versions unless the user asked for them.
	if strings.Contains(title, "cover") && !strings.Contains(queryLower, "cover") {
		score -= 30
	}
	if strings.Contains(title, "remix") && !strings.Contains(queryLower, "remix") {
		score -= 20
	}
	if strings.Contains(title, "live") && !strings.Contains(queryLower, "live") {
		score -= 10
	}
	if strings.Contains(title, "karaoke") {
		score -= 40
	}
	if strings.Contains(title, "8d audio") {
		score -= 20
	}
	if strings.Contains(title, "slowed") || strings.Contains(title, "reverb") {
		score -= 25
	}

	// Sane song length.
	switch {
	case v.Duration >= 120 && v.Duration <= 480:
		score += 10
	case v.Duration > 600:
		score -= 15
	}

	if v.ViewCount > 1_000_000 {
		score += 5
	}
	if v.ViewCount > 10_000_000 {
		score += 5
	}

	return score
}

// scorePlaylistTrack ranks a candidate for playlist inclusion; returns
// ok=false for non-music content that must be skipped outright.
func scorePlaylistTrack(query string, v video) (score int, ok bool) {
	queryLower := strings.ToLower(query)
	title := strings.ToLower(v.Title)

	if strings.Contains(title, "interview") || strings.Contains(title, "behind the scenes") {
		return 0, false
	}
	if strings.Contains(title, "karaoke") || strings.Contains(title, "instrumental") {
		return 0, false
	}
	if v.Duration < playlistMinDuration || v.Duration > playlistMaxDuration {
		return 0, false
	}

	if strings.Contains(title, queryLower) {
		score += 30
	}
	if strings.Contains(title, "official") {
		score += 10
	}
	if strings.Contains(title, "audio") || strings.Contains(title, "video") {
		score += 5
	}
	if strings.Contains(title, "cover") {
		score -= 20
	}
	if strings.Contains(title, "remix") {
		score -= 15
	}
	if strings.Contains(title, "live") {
		score -= 5
	}
	return score, true
}

func parseVideos(out string) []video {
	var videos []video
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var v video
		if err := json.Unmarshal([]byte(line), &v); err != nil {
			continue
		}
		videos = append(videos, v)
	}
	return videos
}

// searchTrack finds the best matching video for a query. The query is
// suffixed with "official audio" to bias results towards real tracks.
func (s *Source) searchTrack(ctx context.Context, query string) (video, bool) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	out, err := s.runOutput(ctx, "yt-dlp",
		fmt.Sprintf("ytsearch%d:%s official audio", searchResults, query),
		"--dump-json", "--flat-playlist", "--no-warnings", "--quiet")
	if err != nil {
		slog.Error("YouTube search failed", "query", query, "error", err)
		return video{}, false
	}

	videos := parseVideos(out)
	if len(videos) == 0 {
		return video{}, false
	}

	best, bestScore := videos[0], scoreTrack(query, videos[0])
	for _, v := range videos[1:] {
		if sc := scoreTrack(query, v); sc > bestScore {
			best, bestScore = v, sc
		}
	}
	slog.Info("Best track match", "title", best.Title, "score", bestScore)
	return best, true
}

// resolveAudioURL asks yt-dlp for the streamable audio URL of one video.
func (s *Source) resolveAudioURL(ctx context.Context, videoID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	out, err := s.runOutput(ctx, "yt-dlp",
		"https://www.youtube.com/watch?v="+videoID,
		"--get-url", "-f", "bestaudio/best", "--no-playlist", "--no-warnings")
	if err != nil {
		return "", fmt.Errorf("music: resolve audio url: %w", err)
	}
	url, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	if url == "" {
		return "", fmt.Errorf("music: yt-dlp returned no audio url")
	}
	return url, nil
}

// ── playback ─────────────────────────────────────────────────────────────────

// playURL kills any running player and starts a new one for the given audio
// URL. Caller holds s.mu.
func (s *Source) playURL(url, title string) bool {
	s.killPlayers()
	s.playGen++
	gen := s.playGen

	var args []string
	if s.player == "ffplay" {
		args = []string{"-nodisp", "-autoexit", "-loglevel", "quiet",
			"-volume", fmt.Sprint(s.volume), url}
	} else {
		args = []string{"--no-video", "--really-quiet",
			fmt.Sprintf("--volume=%d", s.volume), url}
	}

	proc, err := s.startPlayer(s.player, args...)
	if err != nil {
		slog.Error("Failed to start media player", "player", s.player, "error", err)
		return false
	}

	s.proc = proc
	s.playing = true
	s.current = title
	slog.Info("Playing", "title", title)

	go s.monitor(proc, gen)
	return true
}

// monitor waits for the player process to exit and auto-advances the
// playlist. A stale generation means the track was stopped or replaced and
// the monitor must not touch state.
func (s *Source) monitor(proc playerProc, gen uint64) {
	proc.Wait()

	s.mu.Lock()
	if s.playGen != gen {
		s.mu.Unlock()
		return
	}

	s.playing = false
	if len(s.playlist) > 0 && s.playlistIndex < len(s.playlist)-1 {
		s.playlistIndex++
		entry := s.playlist[s.playlistIndex]
		slog.Info("Playlist advancing",
			"position", fmt.Sprintf("%d/%d", s.playlistIndex+1, len(s.playlist)),
			"title", entry.Title)
		s.mu.Unlock()
		s.playEntry(entry, gen)
		return
	}
	s.current = ""
	s.mu.Unlock()
}

// playEntry resolves a playlist entry's audio URL without holding the lock,
// then starts playback if the session has not moved on meanwhile.
func (s *Source) playEntry(entry playlistEntry, gen uint64) bool {
	url, err := s.resolveAudioURL(context.Background(), entry.ID)
	if err != nil {
		slog.Error("Failed to resolve playlist entry", "title", entry.Title, "error", err)
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.playGen != gen {
		return false
	}
	return s.playURL(url, entry.Title)
}

// stopLocked stops playback, kills all players, and clears the playlist.
func (s *Source) stopLocked() (title, playlistName string, wasActive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.playGen++
	if s.proc != nil {
		s.proc.Kill()
		s.proc = nil
	}
	killed := s.killPlayers()

	wasActive = s.playing || killed > 0
	title, s.current = s.current, ""
	s.playing = false

	playlistName, s.playlistName = s.playlistName, ""
	s.playlist = nil
	s.playlistIndex = 0

	if wasActive {
		slog.Info("Music stopped", "killed", killed)
	}
	return title, playlistName, wasActive
}

func clampVolume(v int) int {
	return min(max(v, 0), 100)
}

// ── tool handlers ────────────────────────────────────────────────────────────

type playMusicArgs struct {
	Query string `json:"query"`
}

func (s *Source) playMusic(ctx context.Context, args string) (string, error) {
	var a playMusicArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("music: play_music: failed to parse arguments: %w", err)
	}

	slog.Info("Searching music", "query", a.Query)
	best, ok := s.searchTrack(ctx, a.Query)
	if !ok {
		return fmt.Sprintf("Konnte '%s' nicht auf YouTube finden.", a.Query), nil
	}
	url, err := s.resolveAudioURL(ctx, best.ID)
	if err != nil {
		slog.Error("Failed to resolve audio url", "error", err)
		return "Fehler beim Abspielen der Musik.", nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A single track replaces any active playlist.
	s.playlist = nil
	s.playlistIndex = 0
	s.playlistName = ""

	if !s.playURL(url, best.Title) {
		return "Fehler beim Abspielen der Musik.", nil
	}
	return "Spiele jetzt: " + best.Title, nil
}

type playPlaylistArgs struct {
	ArtistOrQuery string `json:"artist_or_query"`
	Count         int    `json:"count,omitempty"`
}

func (s *Source) playPlaylist(ctx context.Context, args string) (string, error) {
	var a playPlaylistArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("music: play_playlist: failed to parse arguments: %w", err)
	}

	count := a.Count
	if count == 0 {
		count = 10
	}
	count = min(max(count, playlistMinSongs), playlistMaxSongs)
	slog.Info("Building playlist", "query", a.ArtistOrQuery, "count", count)

	searchCtx, cancel := context.WithTimeout(ctx, playlistSearchTimeout)
	defer cancel()
	out, err := s.runOutput(searchCtx, "yt-dlp",
		fmt.Sprintf("ytsearch%d:%s songs", count+playlistExtraResults, a.ArtistOrQuery),
		"--dump-json", "--flat-playlist", "--no-warnings", "--quiet")
	if err != nil {
		return fmt.Sprintf("Konnte keine Songs für '%s' finden.", a.ArtistOrQuery), nil
	}

	videos := parseVideos(out)
	if len(videos) == 0 {
		return fmt.Sprintf("Keine Songs für '%s' gefunden.", a.ArtistOrQuery), nil
	}

	selected := selectPlaylist(a.ArtistOrQuery, videos, count)
	if len(selected) == 0 {
		return fmt.Sprintf("Keine passenden Songs für '%s' gefunden.", a.ArtistOrQuery), nil
	}

	s.mu.Lock()
	s.playlist = selected
	s.playlistIndex = 0
	s.playlistName = a.ArtistOrQuery
	gen := s.playGen
	s.mu.Unlock()
	slog.Info("Playlist created", "songs", len(selected))

	s.playEntry(selected[0], gen)
	return fmt.Sprintf("Playlist '%s' mit %d Songs erstellt. Spiele: %s",
		a.ArtistOrQuery, len(selected), selected[0].Title), nil
}

// selectPlaylist filters and ranks playlist candidates, keeping the best
// count entries in score order.
func selectPlaylist(query string, videos []video, count int) []playlistEntry {
	type scored struct {
		score int
		v     video
	}
	var candidates []scored
	for _, v := range videos {
		if score, ok := scorePlaylistTrack(query, v); ok {
			candidates = append(candidates, scored{score, v})
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > count {
		candidates = candidates[:count]
	}

	entries := make([]playlistEntry, len(candidates))
	for i, c := range candidates {
		entries[i] = playlistEntry{ID: c.v.ID, Title: c.v.Title}
	}
	return entries
}

func (s *Source) skipSong(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	if len(s.playlist) == 0 {
		s.mu.Unlock()
		return "Keine Playlist aktiv.", nil
	}
	if s.playlistIndex >= len(s.playlist)-1 {
		s.mu.Unlock()
		return "Das war der letzte Song in der Playlist.", nil
	}

	s.killPlayers()
	s.playlistIndex++
	entry := s.playlist[s.playlistIndex]
	gen := s.playGen
	s.mu.Unlock()

	if !s.playEntry(entry, gen) {
		return "Fehler beim Überspringen.", nil
	}
	return "Überspringe zu: " + entry.Title, nil
}

func (s *Source) previousSong(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	if len(s.playlist) == 0 {
		s.mu.Unlock()
		return "Keine Playlist aktiv.", nil
	}
	if s.playlistIndex <= 0 {
		s.mu.Unlock()
		return "Das ist bereits der erste Song.", nil
	}

	s.killPlayers()
	s.playlistIndex--
	entry := s.playlist[s.playlistIndex]
	gen := s.playGen
	s.mu.Unlock()

	if !s.playEntry(entry, gen) {
		return "Fehler beim Zurückspringen.", nil
	}
	return "Zurück zu: " + entry.Title, nil
}

func (s *Source) stopMusic(_ context.Context, _ string) (string, error) {
	title, playlistName, wasActive := s.stopLocked()
	if !wasActive {
		return "Es läuft gerade keine Musik.", nil
	}
	if playlistName != "" {
		return fmt.Sprintf("Playlist '%s' gestoppt.", playlistName), nil
	}
	if title != "" {
		return "Musik gestoppt: " + title, nil
	}
	return "Musik gestoppt.", nil
}

type volumeArgs struct {
	Volume int `json:"volume"`
}

func (s *Source) setVolume(_ context.Context, args string) (string, error) {
	var a volumeArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("music: music_volume: failed to parse arguments: %w", err)
	}

	s.mu.Lock()
	s.volume = clampVolume(a.Volume)
	volume := s.volume
	s.mu.Unlock()

	slog.Info("Music volume set", "volume", volume)
	return fmt.Sprintf("Lautstärke auf %d%% gesetzt. Gilt ab dem nächsten Lied.", volume), nil
}

func (s *Source) musicStatus(_ context.Context, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.playing || s.current == "" {
		return "Es läuft gerade keine Musik.", nil
	}
	if len(s.playlist) > 0 {
		return fmt.Sprintf("Spielt: %s (Song %d von %d in Playlist '%s')",
			s.current, s.playlistIndex+1, len(s.playlist), s.playlistName), nil
	}
	return "Spielt gerade: " + s.current, nil
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	noArgs := map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}

	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "play_music",
				Description: "Sucht und spielt Musik von YouTube ab. Beispiel: 'Spiele Bohemian Rhapsody' oder 'Spiele Musik von Mozart'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "Suchbegriff: Songname, Künstler oder beides",
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: s.playMusic,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "stop_music",
				Description: "Stoppt die aktuelle Musikwiedergabe. Beispiel: 'Stoppe die Musik'",
				Parameters:  noArgs,
			},
			Handler: s.stopMusic,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "music_volume",
				Description: "Setzt die Musiklautstärke (0-100). Beispiel: 'Mach die Musik leiser' oder 'Lautstärke auf 50%'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"volume": map[string]any{
							"type":        "integer",
							"description": "Lautstärke in Prozent (0-100)",
						},
					},
					"required": []string{"volume"},
				},
			},
			Handler: s.setVolume,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "music_status",
				Description: "Zeigt an was gerade gespielt wird. Beispiel: 'Was läuft gerade?'",
				Parameters:  noArgs,
			},
			Handler: s.musicStatus,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "play_playlist",
				Description: "Erstellt und spielt eine Playlist mit mehreren Songs eines Künstlers. Beispiel: 'Spiele Lieder von Larkin Poe' oder 'Mach eine Playlist mit 80er Rock'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"artist_or_query": map[string]any{
							"type":        "string",
							"description": "Künstlername oder Suchbegriff für die Playlist",
						},
						"count": map[string]any{
							"type":        "integer",
							"description": "Anzahl der Songs (Standard: 10, Maximum: 20)",
						},
					},
					"required": []string{"artist_or_query"},
				},
			},
			Handler: s.playPlaylist,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "skip_song",
				Description: "Springt zum nächsten Song in der Playlist. Beispiel: 'Nächster Song' oder 'Überspringe dieses Lied'",
				Parameters:  noArgs,
			},
			Handler: s.skipSong,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "previous_song",
				Description: "Springt zum vorherigen Song in der Playlist. Beispiel: 'Vorheriger Song' oder 'Zurück'",
				Parameters:  noArgs,
			},
			Handler: s.previousSong,
		},
	}
}

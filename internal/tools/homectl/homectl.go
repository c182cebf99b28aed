// Package homectl provides smart-home tools backed by the ioBroker Simple
// API. Devices are resolved by fuzzy name match against the gateway's object
// tree; state reads and writes go through the plain-text getPlainValue/set
// endpoints.
package homectl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/voxhaus/voxhaus/internal/tools"
	"github.com/voxhaus/voxhaus/pkg/backend"
)

const (
	requestTimeout = 5 * time.Second

	// directoryTTL bounds how long the fetched object tree is reused before
	// the gateway is asked again.
	directoryTTL = 30 * time.Second

	// maxListedDevices caps the list_devices output.
	maxListedDevices = 25

	// suggestionMaxDistance is the largest Levenshtein distance still offered
	// as a "did you mean" hint.
	suggestionMaxDistance = 3
)

// Adapters that never contain controllable devices.
var excludedPrefixes = []string{
	"alexa2.0.History",
	"system.",
	"admin.",
}

// Object-ID fragments that mark routines, commands, and history entries.
var excludedPatterns = []string{
	".Routines.",
	".Commands.",
	".History.",
}

// Adapters holding real devices, in priority order. Matches from earlier
// prefixes win over later ones within the same match tier.
var preferredPrefixes = []string{
	"alexa2.0.Smart-Home-Devices",
	"hue.",
	"shelly.",
	"zigbee.",
	"zigbee2mqtt.",
	"deconz.",
	"tradfri.",
	"mqtt.",
	"sonoff.",
	"homematic.",
	"iot.",
	"linkeddevices.",
	"alias.",
	"alexa2.0.",
}

// device is one entry from the gateway's object tree.
type device struct {
	ID       string
	Name     string
	Type     string
	Role     string
	priority int
}

// Source is the ioBroker-backed smart-home tool source.
type Source struct {
	baseURL string
	client  *http.Client

	mu        sync.Mutex
	directory []device
	fetchedAt time.Time
}

var _ tools.Source = (*Source)(nil)
var _ tools.Initializer = (*Source)(nil)

// New constructs the smart-home source for the ioBroker Simple API at
// host:port.
func New(host string, port int) *Source {
	return &Source{
		baseURL: fmt.Sprintf("http://%s:%d", host, port),
		client:  &http.Client{Timeout: requestTimeout},
	}
}

// Name implements [tools.Source].
func (s *Source) Name() string { return "smarthome" }

// Init verifies that the gateway is reachable by reading the admin adapter's
// alive flag.
func (s *Source) Init(ctx context.Context) error {
	resp, err := s.get(ctx, "/getPlainValue/system.adapter.admin.0.alive")
	if err != nil {
		return fmt.Errorf("smarthome: gateway unreachable at %s: %w", s.baseURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		slog.Warn("ioBroker responded with unexpected status", "status", resp.StatusCode)
		return nil
	}
	slog.Info("ioBroker connected", "url", s.baseURL)
	return nil
}

// ── gateway I/O ──────────────────────────────────────────────────────────────

func (s *Source) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return s.client.Do(req)
}

// getState reads one object's plain value. Returns "" when the object is
// missing or unreadable.
func (s *Source) getState(ctx context.Context, objectID string) string {
	resp, err := s.get(ctx, "/getPlainValue/"+url.PathEscape(objectID))
	if err != nil {
		slog.Error("Failed to read object state", "object", objectID, "error", err)
		return ""
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(body))
}

// setState writes one object's value and reports success.
func (s *Source) setState(ctx context.Context, objectID string, value any) bool {
	var valueStr string
	switch v := value.(type) {
	case bool:
		valueStr = strconv.FormatBool(v)
	case float64:
		valueStr = strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		valueStr = strconv.Itoa(v)
	default:
		valueStr = fmt.Sprint(v)
	}

	resp, err := s.get(ctx, "/set/"+url.PathEscape(objectID)+"?value="+url.QueryEscape(valueStr))
	if err != nil {
		slog.Error("Failed to set object state", "object", objectID, "error", err)
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	slog.Info("State set", "object", objectID, "value", valueStr)
	return true
}

// gatewayObject mirrors one entry of the /objects response.
type gatewayObject struct {
	Type   string `json:"type"`
	Common struct {
		Name json.RawMessage `json:"name"`
		Role string          `json:"role"`
	} `json:"common"`
}

// objectName decodes common.name, which the gateway serves either as a plain
// string or as a language map.
func objectName(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var langs map[string]string
	if err := json.Unmarshal(raw, &langs); err == nil {
		if de := langs["de"]; de != "" {
			return de
		}
		return langs["en"]
	}
	return ""
}

func adapterPriority(objectID string) int {
	for i, prefix := range preferredPrefixes {
		if strings.HasPrefix(objectID, prefix) {
			return i
		}
	}
	return len(preferredPrefixes)
}

func isExcluded(objectID string) bool {
	for _, prefix := range excludedPrefixes {
		if strings.HasPrefix(objectID, prefix) {
			return true
		}
	}
	for _, pattern := range excludedPatterns {
		if strings.Contains(objectID, pattern) {
			return true
		}
	}
	return false
}

// fetchDirectory returns the filtered device directory, refreshing it from
// the gateway when the cached copy is stale.
func (s *Source) fetchDirectory(ctx context.Context) ([]device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.directory != nil && time.Since(s.fetchedAt) < directoryTTL {
		return s.directory, nil
	}

	resp, err := s.get(ctx, "/objects")
	if err != nil {
		return nil, fmt.Errorf("smarthome: fetch objects: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("smarthome: fetch objects: status %d", resp.StatusCode)
	}

	var objects map[string]gatewayObject
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, fmt.Errorf("smarthome: decode objects: %w", err)
	}

	directory := make([]device, 0, len(objects))
	for id, obj := range objects {
		if isExcluded(id) {
			continue
		}
		name := objectName(obj.Common.Name)
		if name == "" {
			continue
		}
		directory = append(directory, device{
			ID:       id,
			Name:     name,
			Type:     obj.Type,
			Role:     obj.Common.Role,
			priority: adapterPriority(id),
		})
	}

	s.directory = directory
	s.fetchedAt = time.Now()
	return directory, nil
}

// ── device resolution ────────────────────────────────────────────────────────

// findDevices resolves a spoken device name against the directory in three
// tiers: exact name match, substring match, then all-words-present match.
// The first non-empty tier wins; within a tier, preferred adapters sort
// first.
func (s *Source) findDevices(ctx context.Context, query string) []device {
	directory, err := s.fetchDirectory(ctx)
	if err != nil {
		slog.Error("Device lookup failed", "error", err)
		return nil
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return nil
	}
	queryWords := strings.Fields(queryLower)

	var exact, substring, allWords []device
	for _, d := range directory {
		nameLower := strings.ToLower(d.Name)
		switch {
		case nameLower == queryLower:
			exact = append(exact, d)
		case strings.Contains(nameLower, queryLower):
			substring = append(substring, d)
		case containsAllWords(nameLower, queryWords):
			allWords = append(allWords, d)
		}
	}

	for _, tier := range [][]device{exact, substring, allWords} {
		if len(tier) > 0 {
			sort.SliceStable(tier, func(i, j int) bool {
				return tier[i].priority < tier[j].priority
			})
			return tier
		}
	}
	return nil
}

func containsAllWords(name string, words []string) bool {
	for _, w := range words {
		if !strings.Contains(name, w) {
			return false
		}
	}
	return true
}

// suggestName returns the directory name closest to the failed query, or ""
// when nothing is close enough to be worth offering.
func (s *Source) suggestName(ctx context.Context, query string) string {
	directory, err := s.fetchDirectory(ctx)
	if err != nil {
		return ""
	}

	queryLower := strings.ToLower(query)
	best, bestDist := "", suggestionMaxDistance+1
	for _, d := range directory {
		dist := matchr.Levenshtein(queryLower, strings.ToLower(d.Name))
		if dist < bestDist {
			best, bestDist = d.Name, dist
		}
	}
	return best
}

func (s *Source) notFound(ctx context.Context, kind, name string) string {
	if hint := s.suggestName(ctx, name); hint != "" {
		return fmt.Sprintf("%s '%s' nicht gefunden. Meintest du '%s'?", kind, name, hint)
	}
	return fmt.Sprintf("%s '%s' nicht gefunden. Bitte prüfe den Namen.", kind, name)
}

// ── tool handlers ────────────────────────────────────────────────────────────

type deviceArg struct {
	DeviceName string `json:"device_name"`
}

// Capability suffixes tried in order; the first writable state wins.
var (
	switchSuffixes     = []string{"", ".state", ".STATE", ".on", ".ON", ".switch", ".SWITCH"}
	brightnessSuffixes = []string{".brightness", ".BRIGHTNESS", ".level", ".LEVEL", ".dimmer", ".DIMMER"}
	colorSuffixes      = []string{".color", ".COLOR", ".rgb", ".RGB", ".hex"}
	setpointSuffixes   = []string{".setpoint", ".SETPOINT", ".target", ".TARGET", ".set_temperature"}
	readTempSuffixes   = []string{".temperature", ".TEMPERATURE", ".actual", ".ACTUAL", "", ".temp"}
	blindsSuffixes     = []string{".level", ".LEVEL", ".position", ".POSITION", ""}
)

var colorMap = map[string]string{
	"rot": "#FF0000", "red": "#FF0000",
	"grün": "#00FF00", "green": "#00FF00",
	"blau": "#0000FF", "blue": "#0000FF",
	"gelb": "#FFFF00", "yellow": "#FFFF00",
	"orange": "#FFA500",
	"lila":   "#800080", "purple": "#800080",
	"pink": "#FFC0CB", "rosa": "#FFC0CB",
	"weiß": "#FFFFFF", "white": "#FFFFFF",
	"warmweiß": "#FFE4B5", "warm white": "#FFE4B5",
	"kaltweiß": "#F0F8FF", "cool white": "#F0F8FF",
}

// trySetOnMatches walks matched devices and capability suffixes until one
// write succeeds; the first matching capability wins.
func (s *Source) trySetOnMatches(ctx context.Context, matches []device, suffixes []string, value any) (device, bool) {
	for _, match := range matches {
		for _, suffix := range suffixes {
			if s.setState(ctx, match.ID+suffix, value) {
				return match, true
			}
		}
	}
	return device{}, false
}

func (s *Source) turnOnDevice(ctx context.Context, args string) (string, error) {
	var a deviceArg
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: turn_on_device: failed to parse arguments: %w", err)
	}

	matches := s.findDevices(ctx, a.DeviceName)
	if len(matches) == 0 {
		return s.notFound(ctx, "Gerät", a.DeviceName), nil
	}
	if match, ok := s.trySetOnMatches(ctx, matches, switchSuffixes, true); ok {
		return fmt.Sprintf("'%s' wurde eingeschaltet.", match.Name), nil
	}
	return fmt.Sprintf("Konnte '%s' nicht einschalten. Gerät gefunden aber nicht schaltbar.", a.DeviceName), nil
}

func (s *Source) turnOffDevice(ctx context.Context, args string) (string, error) {
	var a deviceArg
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: turn_off_device: failed to parse arguments: %w", err)
	}

	matches := s.findDevices(ctx, a.DeviceName)
	if len(matches) == 0 {
		return s.notFound(ctx, "Gerät", a.DeviceName), nil
	}
	if match, ok := s.trySetOnMatches(ctx, matches, switchSuffixes, false); ok {
		return fmt.Sprintf("'%s' wurde ausgeschaltet.", match.Name), nil
	}
	return fmt.Sprintf("Konnte '%s' nicht ausschalten.", a.DeviceName), nil
}

type brightnessArgs struct {
	DeviceName string `json:"device_name"`
	Brightness int    `json:"brightness"`
}

func (s *Source) setBrightness(ctx context.Context, args string) (string, error) {
	var a brightnessArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: set_brightness: failed to parse arguments: %w", err)
	}

	brightness := clampInt(a.Brightness, 0, 100)
	matches := s.findDevices(ctx, a.DeviceName)
	if len(matches) == 0 {
		return s.notFound(ctx, "Gerät", a.DeviceName), nil
	}
	if match, ok := s.trySetOnMatches(ctx, matches, brightnessSuffixes, brightness); ok {
		return fmt.Sprintf("Helligkeit von '%s' auf %d%% gesetzt.", match.Name, brightness), nil
	}
	return fmt.Sprintf("Konnte Helligkeit von '%s' nicht setzen. Gerät nicht dimmbar?", a.DeviceName), nil
}

type colorArgs struct {
	DeviceName string `json:"device_name"`
	Color      string `json:"color"`
}

func (s *Source) setColor(ctx context.Context, args string) (string, error) {
	var a colorArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: set_color: failed to parse arguments: %w", err)
	}

	hexColor := a.Color
	if mapped, ok := colorMap[strings.ToLower(a.Color)]; ok {
		hexColor = mapped
	}

	matches := s.findDevices(ctx, a.DeviceName)
	if len(matches) == 0 {
		return s.notFound(ctx, "Gerät", a.DeviceName), nil
	}
	if match, ok := s.trySetOnMatches(ctx, matches, colorSuffixes, hexColor); ok {
		return fmt.Sprintf("Farbe von '%s' auf %s gesetzt.", match.Name, a.Color), nil
	}
	return fmt.Sprintf("Konnte Farbe von '%s' nicht setzen. Keine RGB-Lampe?", a.DeviceName), nil
}

type temperatureArgs struct {
	DeviceName  string  `json:"device_name"`
	Temperature float64 `json:"temperature"`
}

func (s *Source) setTemperature(ctx context.Context, args string) (string, error) {
	var a temperatureArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: set_temperature: failed to parse arguments: %w", err)
	}

	temp := clampFloat(a.Temperature, 5, 30)
	matches := s.findDevices(ctx, a.DeviceName)
	if len(matches) == 0 {
		return s.notFound(ctx, "Thermostat", a.DeviceName), nil
	}
	if match, ok := s.trySetOnMatches(ctx, matches, setpointSuffixes, temp); ok {
		return fmt.Sprintf("Temperatur von '%s' auf %g°C gesetzt.", match.Name, temp), nil
	}
	return fmt.Sprintf("Konnte Temperatur von '%s' nicht setzen.", a.DeviceName), nil
}

func (s *Source) getTemperature(ctx context.Context, args string) (string, error) {
	var a deviceArg
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: get_temperature: failed to parse arguments: %w", err)
	}

	matches := s.findDevices(ctx, a.DeviceName)
	if len(matches) == 0 {
		return s.notFound(ctx, "Temperatursensor", a.DeviceName), nil
	}

	for _, match := range matches {
		for _, suffix := range readTempSuffixes {
			raw := s.getState(ctx, match.ID+suffix)
			if raw == "" || raw == "null" || raw == "undefined" {
				continue
			}
			if temp, err := strconv.ParseFloat(raw, 64); err == nil {
				return fmt.Sprintf("Die Temperatur bei '%s' beträgt %.1f°C.", match.Name, temp), nil
			}
		}
	}
	return fmt.Sprintf("Konnte Temperatur von '%s' nicht lesen.", a.DeviceName), nil
}

type blindsArgs struct {
	DeviceName string `json:"device_name"`
	Position   int    `json:"position"`
}

func (s *Source) setBlinds(ctx context.Context, args string) (string, error) {
	var a blindsArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: set_blinds: failed to parse arguments: %w", err)
	}

	position := clampInt(a.Position, 0, 100)
	matches := s.findDevices(ctx, a.DeviceName)
	if len(matches) == 0 {
		return s.notFound(ctx, "Rollo", a.DeviceName), nil
	}
	if match, ok := s.trySetOnMatches(ctx, matches, blindsSuffixes, position); ok {
		var status string
		switch position {
		case 0:
			status = "geschlossen"
		case 100:
			status = "geöffnet"
		default:
			status = fmt.Sprintf("auf %d%%", position)
		}
		return fmt.Sprintf("Rollo '%s' %s.", match.Name, status), nil
	}
	return fmt.Sprintf("Konnte Rollo '%s' nicht steuern.", a.DeviceName), nil
}

// Object-ID fragments marking controllable device states for list_devices.
var deviceIndicators = []string{
	"Smart-Home-Devices",
	".on", ".ON",
	".state", ".STATE",
	".switch", ".SWITCH",
	".brightness", ".BRIGHTNESS",
	".level", ".LEVEL",
}

func (s *Source) listDevices(ctx context.Context, _ string) (string, error) {
	directory, err := s.fetchDirectory(ctx)
	if err != nil {
		slog.Error("Failed to list devices", "error", err)
		return "Konnte Geräteliste nicht abrufen.", nil
	}

	seen := make(map[string]struct{})
	for _, d := range directory {
		isDevice := d.Type == "device" || d.Type == "channel"
		hasIndicator := false
		for _, ind := range deviceIndicators {
			if strings.Contains(d.ID, ind) {
				hasIndicator = true
				break
			}
		}
		if (isDevice || hasIndicator) && len(d.Name) > 1 {
			seen[d.Name] = struct{}{}
		}
	}

	if len(seen) == 0 {
		return "Keine Geräte gefunden. Prüfe ob ioBroker Geräte hat.", nil
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > maxListedDevices {
		names = names[:maxListedDevices]
	}
	return "Verfügbare Geräte: " + strings.Join(names, ", "), nil
}

type sceneArgs struct {
	SceneName string `json:"scene_name"`
}

var scenePrefixes = []string{"scene.0.", "scenes.0.", "javascript.0."}

func (s *Source) executeScene(ctx context.Context, args string) (string, error) {
	var a sceneArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("smarthome: execute_scene: failed to parse arguments: %w", err)
	}

	for _, prefix := range scenePrefixes {
		if s.setState(ctx, prefix+a.SceneName, true) {
			return fmt.Sprintf("Szene '%s' wurde ausgeführt.", a.SceneName), nil
		}
	}

	// Fall back to a name lookup, restricted to scene/script objects.
	for _, match := range s.findDevices(ctx, a.SceneName) {
		idLower := strings.ToLower(match.ID)
		if strings.Contains(idLower, "scene") || strings.Contains(idLower, "script") {
			if s.setState(ctx, match.ID, true) {
				return fmt.Sprintf("Szene '%s' wurde ausgeführt.", match.Name), nil
			}
		}
	}
	return fmt.Sprintf("Szene '%s' nicht gefunden.", a.SceneName), nil
}

func clampInt(v, lo, hi int) int {
	return min(max(v, lo), hi)
}

func clampFloat(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// ── Tools ────────────────────────────────────────────────────────────────────

// Tools implements [tools.Source].
func (s *Source) Tools() []tools.Tool {
	deviceNameProp := func(desc string) map[string]any {
		return map[string]any{
			"type": "object",
			"properties": map[string]any{
				"device_name": map[string]any{
					"type":        "string",
					"description": desc,
				},
			},
			"required": []string{"device_name"},
		}
	}

	return []tools.Tool{
		{
			Definition: backend.ToolDefinition{
				Name:        "turn_on_device",
				Description: "Schaltet ein Smart Home Gerät ein (Licht, Steckdose, Schalter). Beispiel: 'Schalte das Wohnzimmerlicht ein'",
				Parameters:  deviceNameProp("Name des Geräts, z.B. 'Wohnzimmer Licht', 'Stehlampe', 'Kaffeemaschine'"),
			},
			Handler: s.turnOnDevice,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "turn_off_device",
				Description: "Schaltet ein Smart Home Gerät aus. Beispiel: 'Schalte die Stehlampe aus'",
				Parameters:  deviceNameProp("Name des Geräts"),
			},
			Handler: s.turnOffDevice,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "set_brightness",
				Description: "Stellt die Helligkeit einer dimmbaren Lampe ein. Beispiel: 'Dimme das Licht auf 50%'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"device_name": map[string]any{
							"type":        "string",
							"description": "Name der Lampe",
						},
						"brightness": map[string]any{
							"type":        "integer",
							"description": "Helligkeit in Prozent (0-100)",
						},
					},
					"required": []string{"device_name", "brightness"},
				},
			},
			Handler: s.setBrightness,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "set_color",
				Description: "Ändert die Farbe einer RGB-Lampe. Beispiel: 'Mach das Licht rot'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"device_name": map[string]any{
							"type":        "string",
							"description": "Name der Lampe",
						},
						"color": map[string]any{
							"type":        "string",
							"description": "Farbe als Name (rot, grün, blau, gelb, weiß, warmweiß, etc.) oder Hex-Code",
						},
					},
					"required": []string{"device_name", "color"},
				},
			},
			Handler: s.setColor,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "set_temperature",
				Description: "Stellt die Zieltemperatur eines Thermostats ein. Beispiel: 'Stelle die Heizung im Wohnzimmer auf 21 Grad'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"device_name": map[string]any{
							"type":        "string",
							"description": "Name des Thermostats oder Raums",
						},
						"temperature": map[string]any{
							"type":        "number",
							"description": "Zieltemperatur in Celsius (5-30)",
						},
					},
					"required": []string{"device_name", "temperature"},
				},
			},
			Handler: s.setTemperature,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "get_temperature",
				Description: "Liest die aktuelle Temperatur eines Sensors. Beispiel: 'Wie warm ist es im Schlafzimmer?'",
				Parameters:  deviceNameProp("Name des Sensors oder Raums"),
			},
			Handler: s.getTemperature,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "set_blinds",
				Description: "Steuert Rollos oder Jalousien. 0=geschlossen, 100=offen. Beispiel: 'Öffne die Rollos im Wohnzimmer'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"device_name": map[string]any{
							"type":        "string",
							"description": "Name des Rollos",
						},
						"position": map[string]any{
							"type":        "integer",
							"description": "Position in Prozent (0=zu, 100=auf)",
						},
					},
					"required": []string{"device_name", "position"},
				},
			},
			Handler: s.setBlinds,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "list_devices",
				Description: "Listet alle verfügbaren Smart Home Geräte auf. Beispiel: 'Welche Geräte habe ich?'",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			Handler: s.listDevices,
		},
		{
			Definition: backend.ToolDefinition{
				Name:        "execute_scene",
				Description: "Führt eine Szene oder ein Skript aus. Beispiel: 'Starte die Filmszene'",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"scene_name": map[string]any{
							"type":        "string",
							"description": "Name der Szene",
						},
					},
					"required": []string{"scene_name"},
				},
			},
			Handler: s.executeScene,
		},
	}
}

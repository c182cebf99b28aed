package audio

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/gen2brain/malgo"
)

// DeviceInfo describes one audio device for display and selection.
type DeviceInfo struct {
	Name      string
	IsDefault bool
}

// Manager owns the miniaudio context shared by all capture and playback
// devices. Create exactly one per process and Close it on shutdown.
type Manager struct {
	ctx *malgo.AllocatedContext
}

// NewManager initialises the miniaudio backend with real-time thread priority.
func NewManager() (*Manager, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{
		ThreadPriority: malgo.ThreadPriorityRealtime,
	}, func(msg string) {
		slog.Debug("miniaudio", "msg", strings.TrimSpace(msg))
	})
	if err != nil {
		return nil, fmt.Errorf("audio: init context: %w", err)
	}
	return &Manager{ctx: ctx}, nil
}

// InputDevices lists the available capture devices.
func (m *Manager) InputDevices() ([]DeviceInfo, error) {
	return m.devices(malgo.Capture)
}

// OutputDevices lists the available playback devices.
func (m *Manager) OutputDevices() ([]DeviceInfo, error) {
	return m.devices(malgo.Playback)
}

func (m *Manager) devices(kind malgo.DeviceType) ([]DeviceInfo, error) {
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("audio: enumerate devices: %w", err)
	}
	out := make([]DeviceInfo, len(infos))
	for i, d := range infos {
		out[i] = DeviceInfo{Name: d.Name(), IsDefault: d.IsDefault != 0}
	}
	return out, nil
}

// findDevice resolves a case-insensitive name substring to a concrete device
// ID. An empty name selects the system default (nil ID).
func (m *Manager) findDevice(kind malgo.DeviceType, name string) (*malgo.DeviceID, string, error) {
	if name == "" {
		return nil, "default", nil
	}
	infos, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, "", fmt.Errorf("audio: enumerate devices: %w", err)
	}
	needle := strings.ToLower(name)
	for _, d := range infos {
		if strings.Contains(strings.ToLower(d.Name()), needle) {
			id := d.ID
			return &id, d.Name(), nil
		}
	}
	return nil, "", fmt.Errorf("audio: no device matching %q", name)
}

// Close releases the miniaudio context. All devices must be closed first.
func (m *Manager) Close() {
	if m.ctx != nil {
		_ = m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}

// Package backend defines the contract between the assistant and the cloud
// conversational-audio model: an opaque bidirectional stream of audio, text,
// turn markers, and tool calls. Concrete transports live in subpackages.
package backend

import (
	"context"
	"errors"
)

// ErrSessionClosed is returned by session operations that require a live
// connection after the session has terminated.
var ErrSessionClosed = errors.New("backend: session closed")

// ToolDefinition is the model-facing schema of one callable tool. Parameters
// is a JSON-schema-shaped object.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// SessionConfig describes one conversation session at connect time. Tool
// definitions are sent once during setup and cannot change mid-session.
type SessionConfig struct {
	Model        string
	Voice        string
	SystemPrompt string
	Tools        []ToolDefinition
}

// ToolCall is a request from the model to execute a named local tool.
// Exactly one response per ID must be sent back, success or error.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// EventKind discriminates the values carried by an [Event].
type EventKind int

const (
	// EventAudio carries a chunk of synthesized speech (24 kHz s16le mono).
	EventAudio EventKind = iota + 1

	// EventText carries a text part or transcription from the model.
	EventText

	// EventTurnComplete marks the end of one model response cycle.
	EventTurnComplete

	// EventInterrupted signals that the model's turn was cut off.
	EventInterrupted

	// EventToolCall carries one or more tool invocations.
	EventToolCall
)

// Event is one inbound message from the conversational backend.
type Event struct {
	Kind  EventKind
	Audio []byte
	Text  string
	Calls []ToolCall
}

// Session is one live conversation. Events arrive on a single channel owned
// by the session; it closes when the connection ends for any reason, after
// which [Session.Err] reports the terminal error (nil on clean close).
type Session interface {
	// SendAudio delivers one chunk of 16 kHz s16le mono capture audio.
	// Audio sent to a closed session is silently dropped.
	SendAudio(chunk []byte) error

	// SendToolResponse answers the tool call with the given id. Every
	// received [ToolCall] must be answered exactly once.
	SendToolResponse(id, name string, response map[string]any) error

	// Events returns the inbound event channel.
	Events() <-chan Event

	// Err returns the first error that terminated the session, if any.
	Err() error

	// Close tears the session down. Idempotent.
	Close() error
}

// Client opens conversation sessions. Exactly one session may be active at a
// time; the orchestrator enforces this.
type Client interface {
	Connect(ctx context.Context, cfg SessionConfig) (Session, error)
}

// Package mock provides scripted backend implementations for tests.
package mock

import (
	"context"
	"sync"

	"github.com/voxhaus/voxhaus/pkg/backend"
)

// Compile-time interface checks.
var _ backend.Client = (*Client)(nil)
var _ backend.Session = (*Session)(nil)

// ToolResponse records one SendToolResponse call.
type ToolResponse struct {
	ID       string
	Name     string
	Response map[string]any
}

// Session is a scripted backend.Session. Events queued via [Session.Emit]
// are delivered to the consumer; everything sent by the code under test is
// recorded for assertions.
type Session struct {
	mu            sync.Mutex
	events        chan backend.Event
	closed        bool
	err           error
	SentAudio     [][]byte
	ToolResponses []ToolResponse
}

// NewSession creates an open scripted session.
func NewSession() *Session {
	return &Session{events: make(chan backend.Event, 64)}
}

// Emit queues an event for the consumer.
func (s *Session) Emit(ev backend.Event) {
	s.events <- ev
}

// Fail records a terminal error and closes the event channel.
func (s *Session) Fail(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !alreadyClosed {
		close(s.events)
	}
}

// SendAudio implements backend.Session. Audio after Close is dropped.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.SentAudio = append(s.SentAudio, cp)
	return nil
}

// SendToolResponse implements backend.Session.
func (s *Session) SendToolResponse(id, name string, response map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return backend.ErrSessionClosed
	}
	s.ToolResponses = append(s.ToolResponses, ToolResponse{ID: id, Name: name, Response: response})
	return nil
}

// Events implements backend.Session.
func (s *Session) Events() <-chan backend.Event { return s.events }

// Err implements backend.Session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close implements backend.Session. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.events)
	return nil
}

// Closed reports whether Close or Fail has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Client is a backend.Client that hands out pre-built sessions.
type Client struct {
	mu       sync.Mutex
	sessions []*Session
	Configs  []backend.SessionConfig
	Errs     []error
}

// NewClient creates a Client that returns the given sessions in order.
func NewClient(sessions ...*Session) *Client {
	return &Client{sessions: sessions}
}

// Connect implements backend.Client. It records cfg and pops the next
// scripted session (or error from Errs, which takes precedence).
func (c *Client) Connect(_ context.Context, cfg backend.SessionConfig) (backend.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Configs = append(c.Configs, cfg)
	if len(c.Errs) > 0 {
		err := c.Errs[0]
		c.Errs = c.Errs[1:]
		return nil, err
	}
	if len(c.sessions) == 0 {
		s := NewSession()
		return s, nil
	}
	s := c.sessions[0]
	c.sessions = c.sessions[1:]
	return s, nil
}

// Package mock provides an in-memory asr.Provider for tests, mirroring the
// shape of the teacher's pkg/provider/stt/mock package.
package mock

import (
	"context"
	"sync"

	"github.com/augmentos-org/cloud-core/internal/speech/asr"
	"github.com/augmentos-org/cloud-core/pkg/types"
)

// Provider is a test double that hands out Sessions the test can drive
// directly via PushPartial/PushFinal.
type Provider struct {
	mu       sync.Mutex
	sessions []*Session

	// StartErr, when set, is returned by every StartStream call.
	StartErr error
}

func New() *Provider { return &Provider{} }

func (p *Provider) Name() string { return "mock" }

func (p *Provider) StartStream(_ context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	if p.StartErr != nil {
		return nil, p.StartErr
	}
	s := &Session{
		cfg:      cfg,
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
	}
	p.mu.Lock()
	p.sessions = append(p.sessions, s)
	p.mu.Unlock()
	return s, nil
}

// Sessions returns every session started so far, for test assertions.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

// Session is the mock's SessionHandle implementation.
type Session struct {
	cfg asr.StreamConfig

	mu     sync.Mutex
	closed bool
	audio  [][]byte

	partials chan types.Transcript
	finals   chan types.Transcript
}

func (s *Session) Config() asr.StreamConfig { return s.cfg }

func (s *Session) SendAudio(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.audio = append(s.audio, cp)
	return nil
}

// AudioReceived returns every chunk passed to SendAudio so far.
func (s *Session) AudioReceived() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

func (s *Session) Partials() <-chan types.Transcript { return s.partials }
func (s *Session) Finals() <-chan types.Transcript   { return s.finals }

func (s *Session) SetKeywords(keywords []types.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg.Keywords = keywords
	return nil
}

// PushPartial delivers an interim result to the test's consumer.
func (s *Session) PushPartial(t types.Transcript) {
	t.IsFinal = false
	s.partials <- t
}

// PushFinal delivers a final result to the test's consumer.
func (s *Session) PushFinal(t types.Transcript) {
	t.IsFinal = true
	s.finals <- t
}

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
	return nil
}

// Package speech implements the cloud-side ASR stream multiplexer
// (spec.md §4.4): one recognizer per active language key in a session, fed
// by a single audio fan-out, emitting interim/final transcript events keyed
// for delivery by the router.
package speech

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/augmentos-org/cloud-core/internal/speech/asr"
	"github.com/augmentos-org/cloud-core/internal/subscription"
	"github.com/augmentos-org/cloud-core/pkg/types"
)

// TranscriptEvent is delivered to the Router for each interim or final
// recognizer result (spec.md §4.4).
type TranscriptEvent struct {
	Transcript types.Transcript
	// EffectiveKey is the subscription key this event should be delivered
	// under (spec.md §4.2).
	EffectiveKey subscription.Key
}

// EventSink receives every transcript event the multiplexer produces.
type EventSink func(TranscriptEvent)

const englishBaseLanguage = subscription.DefaultTranscribeLanguage

// Multiplexer owns every ASRStreamInstance for one session (spec.md §3).
// It is not safe for concurrent use across goroutines calling UpdateLanguages
// or PushAudio simultaneously; callers must serialize through the owning
// session's single-writer dispatcher (spec.md §5).
type Multiplexer struct {
	provider asr.Provider
	sink     EventSink
	buffer   *TranscriptBuffer

	mu      sync.Mutex
	streams map[string]*stream
}

type stream struct {
	key    subscription.Key
	handle asr.SessionHandle
	cancel context.CancelFunc
	done   chan struct{}
}

// NewMultiplexer returns a Multiplexer that creates recognizer sessions via
// provider and delivers every event to sink, appending English base
// transcription results to buffer.
func NewMultiplexer(provider asr.Provider, buffer *TranscriptBuffer, sink EventSink) *Multiplexer {
	return &Multiplexer{
		provider: provider,
		sink:     sink,
		buffer:   buffer,
		streams:  make(map[string]*stream),
	}
}

// UpdateLanguages reconciles the running streams against the minimal
// language projection L (spec.md §4.4): creates recognizers for added keys,
// tears down recognizers for removed keys. After it returns, the stream
// key-set equals L.
func (m *Multiplexer) UpdateLanguages(ctx context.Context, l []subscription.Key) error {
	want := make(map[string]subscription.Key, len(l))
	for _, k := range l {
		want[k.String()] = k
	}

	m.mu.Lock()
	var toRemove []*stream
	for raw, st := range m.streams {
		if _, keep := want[raw]; !keep {
			toRemove = append(toRemove, st)
			delete(m.streams, raw)
		}
	}
	var toAdd []subscription.Key
	for raw, k := range want {
		if _, exists := m.streams[raw]; !exists {
			toAdd = append(toAdd, k)
		}
	}
	m.mu.Unlock()

	for _, st := range toRemove {
		m.teardown(st)
	}

	var firstErr error
	for _, k := range toAdd {
		if err := m.create(ctx, k); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("asr stream %q: %w", k, err)
		}
	}
	return firstErr
}

func (m *Multiplexer) create(ctx context.Context, key subscription.Key) error {
	cfg := asr.StreamConfig{
		SampleRate:         16000,
		Channels:           1,
		TranscribeLanguage: key.TranscribeLanguage(),
		TranslateLanguage:  key.TranslateLanguage(),
	}
	streamCtx, cancel := context.WithCancel(ctx)
	handle, err := m.provider.StartStream(streamCtx, cfg)
	if err != nil {
		cancel()
		return err
	}

	st := &stream{key: key, handle: handle, cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.streams[key.String()] = st
	m.mu.Unlock()

	go m.pump(st)
	return nil
}

// pump forwards interim/final results from one recognizer session until both
// its channels close (spec.md §4.4: a recognizer canceled event tears down
// only that stream).
func (m *Multiplexer) pump(st *stream) {
	defer close(st.done)
	partials := st.handle.Partials()
	finals := st.handle.Finals()
	for partials != nil || finals != nil {
		select {
		case t, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			m.deliver(st.key, t)
		case t, ok := <-finals:
			if !ok {
				finals = nil
				continue
			}
			m.deliver(st.key, t)
		}
	}
	slog.Info("asr stream recognizer ended", "key", st.key.String())
}

func (m *Multiplexer) deliver(key subscription.Key, t types.Transcript) {
	if t.TranscribeLanguage == "" {
		t.TranscribeLanguage = key.TranscribeLanguage()
	}
	if t.TranslateLanguage == "" {
		t.TranslateLanguage = key.TranslateLanguage()
	}

	if m.buffer != nil && t.TranslateLanguage == "" && t.TranscribeLanguage == englishBaseLanguage {
		m.buffer.Insert(Segment{
			SpeakerID: t.SpeakerID,
			Text:      t.Text,
			IsFinal:   t.IsFinal,
			Timestamp: time.Now(),
			Language:  t.TranscribeLanguage,
		})
	}

	if m.sink != nil {
		m.sink(TranscriptEvent{Transcript: t, EffectiveKey: key})
	}
}

func (m *Multiplexer) teardown(st *stream) {
	st.cancel()
	_ = st.handle.Close()
	<-st.done
}

// PushAudio writes data to every running recognizer's sink. Audio bytes are
// opaque to this layer (spec.md §4.4).
func (m *Multiplexer) PushAudio(data []byte) {
	m.mu.Lock()
	streams := make([]*stream, 0, len(m.streams))
	for _, st := range m.streams {
		streams = append(streams, st)
	}
	m.mu.Unlock()

	for _, st := range streams {
		if err := st.handle.SendAudio(data); err != nil {
			slog.Warn("asr stream: send audio failed", "key", st.key.String(), "err", err)
		}
	}
}

// Keys returns the currently running stream keys.
func (m *Multiplexer) Keys() []subscription.Key {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]subscription.Key, 0, len(m.streams))
	for _, st := range m.streams {
		out = append(out, st.key)
	}
	return out
}

// Close tears down every running recognizer.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	streams := make([]*stream, 0, len(m.streams))
	for k, st := range m.streams {
		streams = append(streams, st)
		delete(m.streams, k)
	}
	m.mu.Unlock()

	for _, st := range streams {
		m.teardown(st)
	}
	return nil
}

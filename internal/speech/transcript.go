package speech

import (
	"sync"
	"time"
)

// Segment is one entry in a session's rolling transcript buffer
// (spec.md §3's TranscriptSegment).
type Segment struct {
	ResultID  string
	SpeakerID string
	Text      string
	IsFinal   bool
	Timestamp time.Time
	Language  string
}

// TranscriptBuffer retains English base-transcription segments for at most
// Retention (default 30 min), pruning on every insert (spec.md §4.4,
// §9 "exact pruning cadence... per-insert vs periodic" — resolved as
// per-insert here, the simpler and more precise of the two options since it
// bounds memory without a separate background sweep).
type TranscriptBuffer struct {
	retention time.Duration

	mu       sync.Mutex
	segments []Segment
	// interimIndex tracks the position of the current open interim segment,
	// if any, so a following interim replaces it and a final replaces then
	// seals it (spec.md §4.4).
	interimIndex int
}

// NewTranscriptBuffer returns a buffer retaining segments for retention.
func NewTranscriptBuffer(retention time.Duration) *TranscriptBuffer {
	if retention <= 0 {
		retention = 30 * time.Minute
	}
	return &TranscriptBuffer{retention: retention, interimIndex: -1}
}

// Insert appends or replaces a segment per spec.md §4.4: an interim result
// replaces the last open interim; a final result takes the open interim's
// slot if there is one, or is appended otherwise, and seals it. Every insert prunes
// segments older than Retention.
func (b *TranscriptBuffer) Insert(seg Segment) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !seg.IsFinal {
		if b.interimIndex >= 0 && b.interimIndex < len(b.segments) {
			b.segments[b.interimIndex] = seg
		} else {
			b.segments = append(b.segments, seg)
			b.interimIndex = len(b.segments) - 1
		}
	} else {
		if b.interimIndex >= 0 && b.interimIndex < len(b.segments) {
			b.segments[b.interimIndex] = seg
		} else {
			b.segments = append(b.segments, seg)
		}
		b.interimIndex = -1
	}

	b.pruneLocked(seg.Timestamp)
}

// pruneLocked drops segments older than retention relative to now. Caller
// holds b.mu.
func (b *TranscriptBuffer) pruneLocked(now time.Time) {
	cutoff := now.Add(-b.retention)
	i := 0
	for i < len(b.segments) && b.segments[i].Timestamp.Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	b.segments = append([]Segment(nil), b.segments[i:]...)
	b.interimIndex -= i
	if b.interimIndex < -1 {
		b.interimIndex = -1
	}
}

// Segments returns a copy of the current buffer contents, oldest first.
func (b *TranscriptBuffer) Segments() []Segment {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Segment, len(b.segments))
	copy(out, b.segments)
	return out
}

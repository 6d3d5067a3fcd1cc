// Package clientvad implements the glasses-side VAD gate (spec.md §4.4):
// a rolling PCM/LC3 buffer and a Silent/Speaking state machine that decides
// when audio is worth forwarding live versus merely buffered.
package clientvad

import (
	"sync"
	"time"

	"github.com/augmentos-org/cloud-core/pkg/types"
)

// Tuning constants from spec.md §4.4.
const (
	// VADFrameSamples is the frame size VAD classification runs on.
	VADFrameSamples = 512
	// VADSampleRateHz is the analysis sample rate VAD frames are built at.
	VADSampleRateHz = 16000
	// PCMRingWindow is how much raw PCM the gate keeps buffered at all times.
	PCMRingWindow = 1 * time.Second
	// LC3PrefixWindow is the rolling LC3 buffer flushed on Silent→Speaking.
	LC3PrefixWindow = 220 * time.Millisecond
	// PollInterval is the VAD analysis thread's polling granularity.
	PollInterval = 100 * time.Millisecond
)

// State is the gate's Silent/Speaking state (spec.md §4.4).
type State int

const (
	StateSilent State = iota
	StateSpeaking
)

// Classifier decides, per frame, whether speech is present. Implementations
// wrap a VAD engine (e.g. Silero via a provider.Engine adapter).
type Classifier interface {
	// IsSpeech classifies one VADFrameSamples-sized frame at VADSampleRateHz.
	IsSpeech(frame []byte) (bool, error)
}

// Sink receives the gate's output: control events and the audio frames that
// should actually be transmitted live.
type Sink interface {
	// SendVAD reports a vad:<speaking> control message.
	SendVAD(speaking bool) error
	// SendAudio forwards a frame that should be transmitted live.
	SendAudio(frame types.AudioFrame) error
}

// Gate runs the client-side VAD state machine over a stream of incoming
// audio chunks. It is driven by FeedPCM, called once per VAD frame, and
// FeedLC3, which fills the pre-speech prefix buffer. The gate runs no
// polling loop of its own; PollInterval is the pacing for a caller that
// drives FeedPCM from one.
type Gate struct {
	classifier Classifier
	sink       Sink

	// DebugBypass, when true, forwards every chunk live regardless of VAD
	// state (spec.md §4.4 "unless a debug bypass flag is set").
	DebugBypass bool

	mu       sync.Mutex
	state    State
	pcmRing  []byte
	lc3Ring  []byte
	maxPCM   int
	maxLC3   int
}

// New returns a Gate in the Silent state. pcmBytesPerSecond and
// lc3BytesPerSecond size the rolling buffers to PCMRingWindow and
// LC3PrefixWindow respectively.
func New(classifier Classifier, sink Sink, pcmBytesPerSecond, lc3BytesPerSecond int) *Gate {
	return &Gate{
		classifier: classifier,
		sink:       sink,
		state:      StateSilent,
		maxPCM:     int(float64(pcmBytesPerSecond) * PCMRingWindow.Seconds()),
		maxLC3:     int(float64(lc3BytesPerSecond) * LC3PrefixWindow.Seconds()),
	}
}

// State returns the gate's current Silent/Speaking state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// FeedPCM classifies raw PCM and applies the Silent/Speaking transition
// rules (spec.md §4.4). It is intended to be called once per VADFrameSamples
// worth of audio; callers driving a polling loop at PollInterval should
// batch firmware chunks into frames of this size before calling FeedPCM.
func (g *Gate) FeedPCM(frame []byte) error {
	if g.DebugBypass {
		return g.sink.SendAudio(types.AudioFrame{Data: frame, SampleRate: VADSampleRateHz, Channels: 1})
	}

	speaking, err := g.classifier.IsSpeech(frame)
	if err != nil {
		return err
	}

	g.mu.Lock()
	prev := g.state
	g.appendPCMLocked(frame)
	g.mu.Unlock()

	switch {
	case prev == StateSilent && speaking:
		return g.transitionToSpeaking(frame)
	case prev == StateSpeaking && !speaking:
		return g.transitionToSilent()
	case prev == StateSpeaking && speaking:
		return g.sink.SendAudio(types.AudioFrame{Data: frame, SampleRate: VADSampleRateHz, Channels: 1})
	default:
		// Silent and still silent: buffer only, nothing forwarded live.
		return nil
	}
}

func (g *Gate) transitionToSpeaking(latest []byte) error {
	g.mu.Lock()
	g.state = StateSpeaking
	prefix := make([]byte, len(g.lc3Ring))
	copy(prefix, g.lc3Ring)
	g.mu.Unlock()

	if err := g.sink.SendVAD(true); err != nil {
		return err
	}
	if len(prefix) > 0 {
		if err := g.sink.SendAudio(types.AudioFrame{Data: prefix, SampleRate: VADSampleRateHz, Channels: 1}); err != nil {
			return err
		}
	}
	return g.sink.SendAudio(types.AudioFrame{Data: latest, SampleRate: VADSampleRateHz, Channels: 1})
}

func (g *Gate) transitionToSilent() error {
	g.mu.Lock()
	g.state = StateSilent
	g.mu.Unlock()
	return g.sink.SendVAD(false)
}

// FeedLC3 appends LC3-encoded audio to the rolling prefix buffer, trimming
// to LC3PrefixWindow. It does not affect VAD classification; LC3 is the
// encoded form transmitted once speech begins, buffered so the flush in
// transitionToSpeaking captures the ~220ms immediately before speech onset.
func (g *Gate) FeedLC3(frame []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.lc3Ring = append(g.lc3Ring, frame...)
	if over := len(g.lc3Ring) - g.maxLC3; over > 0 && g.maxLC3 > 0 {
		g.lc3Ring = g.lc3Ring[over:]
	}
}

func (g *Gate) appendPCMLocked(frame []byte) {
	g.pcmRing = append(g.pcmRing, frame...)
	if over := len(g.pcmRing) - g.maxPCM; over > 0 && g.maxPCM > 0 {
		g.pcmRing = g.pcmRing[over:]
	}
}

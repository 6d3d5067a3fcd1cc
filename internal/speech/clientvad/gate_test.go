package clientvad_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/augmentos-org/cloud-core/internal/speech/clientvad"
	"github.com/augmentos-org/cloud-core/pkg/types"
)

type scriptedClassifier struct {
	speech []bool
	i      int
}

func (c *scriptedClassifier) IsSpeech(_ []byte) (bool, error) {
	v := c.speech[c.i]
	if c.i < len(c.speech)-1 {
		c.i++
	}
	return v, nil
}

type recordingSink struct {
	vadEvents []bool
	audio     [][]byte
}

func (s *recordingSink) SendVAD(speaking bool) error {
	s.vadEvents = append(s.vadEvents, speaking)
	return nil
}

func (s *recordingSink) SendAudio(frame types.AudioFrame) error {
	s.audio = append(s.audio, frame.Data)
	return nil
}

func TestGate_SilentStaysBuffered(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	g := clientvad.New(&scriptedClassifier{speech: []bool{false}}, sink, 32000, 6400)

	require.NoError(t, g.FeedPCM([]byte("frame1")))
	require.Equal(t, clientvad.StateSilent, g.State())
	require.Empty(t, sink.vadEvents)
	require.Empty(t, sink.audio)
}

func TestGate_SilentToSpeakingFlushesLC3Prefix(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	g := clientvad.New(&scriptedClassifier{speech: []bool{true}}, sink, 32000, 6400)

	g.FeedLC3([]byte("prefix"))
	require.NoError(t, g.FeedPCM([]byte("speech-frame")))

	require.Equal(t, clientvad.StateSpeaking, g.State())
	require.Equal(t, []bool{true}, sink.vadEvents)
	require.Equal(t, [][]byte{[]byte("prefix"), []byte("speech-frame")}, sink.audio)
}

func TestGate_SpeakingToSilentEmitsVADFalse(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	classifier := &scriptedClassifier{speech: []bool{true, true, false}}
	g := clientvad.New(classifier, sink, 32000, 6400)

	require.NoError(t, g.FeedPCM([]byte("f1")))
	require.NoError(t, g.FeedPCM([]byte("f2")))
	classifier.i = 2
	require.NoError(t, g.FeedPCM([]byte("f3")))

	require.Equal(t, clientvad.StateSilent, g.State())
	require.Equal(t, []bool{true, false}, sink.vadEvents)
}

func TestGate_DebugBypassAlwaysForwards(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	g := clientvad.New(&scriptedClassifier{speech: []bool{false}}, sink, 32000, 6400)
	g.DebugBypass = true

	require.NoError(t, g.FeedPCM([]byte("f1")))
	require.Len(t, sink.audio, 1)
	require.Equal(t, clientvad.StateSilent, g.State())
}

// Package subscription implements the per-(session, TPA) stream-key
// registry (spec.md §4.2): the authoritative index of what each TPA wants
// delivered, and the derived projections the speech pipeline and mic
// debouncer depend on.
package subscription

import (
	"fmt"
	"strings"
)

// Base stream tags, per spec.md §3.
const (
	KeyButtonPress        = "button_press"
	KeyHeadPosition       = "head_position"
	KeyPhoneNotification  = "phone_notification"
	KeyVAD                = "vad"
	KeyLocationUpdate     = "location_update"
	KeyCalendarEvent      = "calendar_event"
	KeyAudioChunk         = "audio_chunk"
	KeyGlassesBattery     = "glasses_battery"
	KeyPhoneBattery       = "phone_battery"
)

const (
	transcriptionPrefix = "transcription:"
	translationPrefix   = "translation:"
	translationSep      = "-to-"

	// DefaultTranscribeLanguage is used when a transcription event carries
	// no explicit language (spec.md §4.2).
	DefaultTranscribeLanguage = "en-US"
)

// Key is a stream key: either a base tag or a language-parameterized
// transcription/translation key. It has value semantics — two Keys with the
// same fields compare equal with ==, which subscription diffing relies on.
type Key struct {
	raw string
}

// ParseKey parses a raw wire string (e.g. "vad", "transcription:en-US",
// "translation:es-ES-to-en-US") into a [Key]. It does not validate BCP-47
// syntax; malformed language tags are preserved verbatim since the ASR
// provider is the authority on what it accepts.
func ParseKey(raw string) Key {
	return Key{raw: raw}
}

// TranscriptionKey builds a transcription:<lang> key.
func TranscriptionKey(lang string) Key {
	if lang == "" {
		lang = DefaultTranscribeLanguage
	}
	return Key{raw: transcriptionPrefix + lang}
}

// TranslationKey builds a translation:<src>-to-<tgt> key.
func TranslationKey(src, tgt string) Key {
	return Key{raw: fmt.Sprintf("%s%s%s%s", translationPrefix, src, translationSep, tgt)}
}

// String returns the wire representation.
func (k Key) String() string { return k.raw }

// IsTranscription reports whether k is a transcription:<lang> key.
func (k Key) IsTranscription() bool {
	return strings.HasPrefix(k.raw, transcriptionPrefix)
}

// IsTranslation reports whether k is a translation:<src>-to-<tgt> key.
func (k Key) IsTranslation() bool {
	return strings.HasPrefix(k.raw, translationPrefix)
}

// IsLanguageKey reports whether k carries language parameters (either
// transcription or translation).
func (k Key) IsLanguageKey() bool {
	return k.IsTranscription() || k.IsTranslation()
}

// TranscribeLanguage returns the language tag for a transcription key, or
// the source language for a translation key. Returns "" for base keys.
func (k Key) TranscribeLanguage() string {
	switch {
	case k.IsTranscription():
		return strings.TrimPrefix(k.raw, transcriptionPrefix)
	case k.IsTranslation():
		pair := strings.TrimPrefix(k.raw, translationPrefix)
		src, _, ok := strings.Cut(pair, translationSep)
		if !ok {
			return ""
		}
		return src
	default:
		return ""
	}
}

// TranslateLanguage returns the target language for a translation key, or
// "" for anything else.
func (k Key) TranslateLanguage() string {
	if !k.IsTranslation() {
		return ""
	}
	pair := strings.TrimPrefix(k.raw, translationPrefix)
	_, tgt, ok := strings.Cut(pair, translationSep)
	if !ok {
		return ""
	}
	return tgt
}

// requiresMicrophone reports whether k is one of the keys listed in
// spec.md §4.2 as requiring microphone capture.
func (k Key) requiresMicrophone() bool {
	if k.IsLanguageKey() {
		return true
	}
	return k.raw == KeyAudioChunk || k.raw == KeyVAD
}

// EffectiveKeyForTranscript derives the delivery key for a transcript event,
// per spec.md §4.2: transcription:<language> (defaulting to en-US), or
// translation:<src>-to-<tgt> when a translate language is present.
func EffectiveKeyForTranscript(transcribeLanguage, translateLanguage string) Key {
	if translateLanguage != "" {
		return TranslationKey(transcribeLanguage, translateLanguage)
	}
	return TranscriptionKey(transcribeLanguage)
}

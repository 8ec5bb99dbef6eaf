package synthesis

import "fmt"

// Options are the per-utterance voice parameters. Zero values fall back to
// the speaker defaults.
type Options struct {
	Language string  `json:"language,omitempty"`
	Rate     float64 `json:"rate,omitempty"`
	Pitch    float64 `json:"pitch,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
}

// DefaultOptions are the pt-BR voice defaults.
var DefaultOptions = Options{Language: "pt-BR", Rate: 0.9, Pitch: 1.0, Volume: 0.8}

// merge fills the zero fields of o from base.
func (o Options) merge(base Options) Options {
	if o.Language == "" {
		o.Language = base.Language
	}
	if o.Rate == 0 {
		o.Rate = base.Rate
	}
	if o.Pitch == 0 {
		o.Pitch = base.Pitch
	}
	if o.Volume == 0 {
		o.Volume = base.Volume
	}
	return o
}

// Utterance is one request handed to a Platform.
type Utterance struct {
	ID   string
	Text string
	Options
}

// UtteranceListener receives playback events for one utterance.
type UtteranceListener interface {
	HandleStart()
	HandleEnd()
	HandleError(code string)
}

// Platform abstracts a speech-synthesis capability. Speak queues the
// utterance and returns; progress is reported to the listener.
type Platform interface {
	Available() bool
	Speak(u Utterance, l UtteranceListener) error
	Cancel()
}

// Error codes reported by platforms.
const (
	CodeInterrupted        = "interrupted"
	CodeSynthesisFailed    = "synthesis-failed"
	CodeServiceUnavailable = "service-unavailable"
)

// SynthesisError is a playback failure reported by the platform.
type SynthesisError struct {
	Code string
}

func (e *SynthesisError) Error() string {
	return "speech synthesis error: " + e.Code
}

// UnsupportedCapabilityError means the host cannot synthesize speech.
type UnsupportedCapabilityError struct {
	Capability string
}

func (e *UnsupportedCapabilityError) Error() string {
	return fmt.Sprintf("%s is not supported", e.Capability)
}

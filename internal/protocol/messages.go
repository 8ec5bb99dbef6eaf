package protocol

import "time"

// Transcript represents STT output broadcast on the bus.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NavigateCommand asks the presentation shell to push a route.
type NavigateCommand struct {
	SessionID string    `json:"session_id,omitempty"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
}

// EffectCommand asks the presentation shell to run a local UI effect.
type EffectCommand struct {
	SessionID string    `json:"session_id,omitempty"`
	Effect    string    `json:"effect"`
	Timestamp time.Time `json:"timestamp"`
}

// NotificationMessage carries a transient user-facing notification.
type NotificationMessage struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     string    `json:"variant"`
	DurationMS  int64     `json:"duration_ms"`
	Dismissed   bool      `json:"dismissed,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// AudioChunk carries synthesized PCM towards the playback device.
type AudioChunk struct {
	UtteranceID string `json:"utterance_id"`
	Sequence    int    `json:"sequence"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	PCM         []byte `json:"pcm"`
	Final       bool   `json:"final"`
}

// TTSStatus is published once an utterance has been fully produced.
type TTSStatus struct {
	UtteranceID string    `json:"utterance_id"`
	Completed   bool      `json:"completed"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

const (
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
	SubjectNavigate          = "ui.navigate"
	SubjectEffect            = "ui.effect"
	SubjectNotification      = "ui.notification"
	SubjectState             = "ui.state"
	SubjectTTSAudio          = "tts.audio"
	SubjectTTSDone           = "tts.done"
)

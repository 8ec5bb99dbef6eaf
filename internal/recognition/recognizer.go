package recognition

import (
	"context"
	"errors"
	"fmt"
)

// State is the adapter lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateError      State = "error"
)

// Settings configures one recognition session on the platform.
type Settings struct {
	Language       string
	Continuous     bool
	InterimResults bool
}

// Segment is one platform hypothesis. Confidence is zero when unreported.
type Segment struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

// ResultEvent mirrors a platform result callback: every segment from
// ResultIndex onward changed since the previous event.
type ResultEvent struct {
	ResultIndex int
	Results     []Segment
}

// Result is a normalized recognition result.
type Result struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	IsFinal    bool    `json:"is_final"`
}

// Listener receives platform callbacks for one session.
type Listener interface {
	HandleStart()
	HandleResult(ResultEvent)
	HandleError(cause string)
	HandleEnd()
}

// Platform abstracts a speech-recognition capability.
type Platform interface {
	Available() bool
	Start(ctx context.Context, settings Settings, l Listener) error
	Stop() error
	Abort() error
}

// EndReason explains why a listening session finished.
type EndReason string

const (
	EndCompleted EndReason = "completed"
	EndStopped   EndReason = "stopped"
	EndTimeout   EndReason = "timeout"
	EndPlatform  EndReason = "platform-ended"
	EndError     EndReason = "error"
	EndAborted   EndReason = "aborted"
)

// Handler consumes normalized session events from the Adapter.
type Handler interface {
	SessionStarted(ctx context.Context, sessionID string)
	Interim(ctx context.Context, sessionID string, r Result)
	// Final runs on a worker goroutine while the session is Processing. At
	// most one Final call is made per session.
	Final(ctx context.Context, sessionID string, r Result)
	Failed(ctx context.Context, sessionID string, err *RecognitionError)
	SessionEnded(ctx context.Context, sessionID string, reason EndReason)
}

// Cause categorizes recognition failures.
type Cause string

const (
	CauseNoSpeech             Cause = "no-speech"
	CauseAudioCapture         Cause = "audio-capture"
	CauseNotAllowed           Cause = "not-allowed"
	CauseNetwork              Cause = "network"
	CauseLanguageNotSupported Cause = "language-not-supported"
	CauseServiceNotAllowed    Cause = "service-not-allowed"
	CauseAborted              Cause = "aborted"
	CauseBadGrammar           Cause = "bad-grammar"
)

// RecognitionError is a platform-reported failure of a session.
type RecognitionError struct {
	Cause Cause
}

func (e *RecognitionError) Error() string {
	return "speech recognition error: " + string(e.Cause)
}

// InitializationError means a session could not be started.
type InitializationError struct {
	Reason string
	Err    error
}

func (e *InitializationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("speech recognition init: %s: %v", e.Reason, e.Err)
	}
	return "speech recognition init: " + e.Reason
}

func (e *InitializationError) Unwrap() error { return e.Err }

var (
	ErrAlreadyActive = errors.New("recognition already active")
	ErrNotActive     = errors.New("recognition not active")
)

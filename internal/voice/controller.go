package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/loqalabs/voicenav/internal/command"
	"github.com/loqalabs/voicenav/internal/eventstore"
	"github.com/loqalabs/voicenav/internal/notify"
	"github.com/loqalabs/voicenav/internal/recognition"
	"github.com/loqalabs/voicenav/internal/synthesis"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Recognizer is the capture side; *recognition.Adapter implements it.
type Recognizer interface {
	StartListening(ctx context.Context) error
	StopListening()
	ToggleListening(ctx context.Context) error
	State() recognition.State
	SessionID() string
	Supported() bool
}

// Speaker is the feedback side; *synthesis.Speaker implements it.
type Speaker interface {
	Speak(ctx context.Context, text string, opts synthesis.Options) error
	Speaking() bool
	Supported() bool
}

type Notifier interface {
	Notify(n notify.Notification) notify.Notification
}

// Recorder keeps the session timeline; *eventstore.Store implements it.
type Recorder interface {
	StartSession(ctx context.Context, s eventstore.Session) error
	EndSession(ctx context.Context, sessionID, reason string) error
	Record(ctx context.Context, sessionID, eventType string, payload any) error
}

// StatePublisher mirrors state snapshots to the presentation shell.
type StatePublisher interface {
	PublishState(ctx context.Context, state any) error
}

// Options configures a Controller. Only Dispatcher and Notifier are
// required.
type Options struct {
	Dispatcher    *command.Dispatcher
	Speaker       Speaker
	Notifier      Notifier
	Recorder      Recorder
	Publisher     StatePublisher
	DispatchDelay time.Duration
	Platform      string
	Language      string
}

// State is the snapshot the presentation shell renders.
type State struct {
	Listening        bool     `json:"listening"`
	Processing       bool     `json:"processing"`
	Speaking         bool     `json:"speaking"`
	Supported        bool     `json:"supported"`
	SpeechSupported  bool     `json:"speech_supported"`
	SessionID        string   `json:"session_id,omitempty"`
	Interim          string   `json:"interim,omitempty"`
	LastCommand      string   `json:"last_command,omitempty"`
	Confidence       *float64 `json:"confidence,omitempty"`
	Error            string   `json:"error,omitempty"`
	ExamplePhrases   []string `json:"example_phrases"`
	RecognitionState string   `json:"recognition_state"`
}

// Controller ties recognition, dispatch, notifications and spoken feedback
// together. It implements recognition.Handler.
type Controller struct {
	opts       Options
	recognizer Recognizer
	logger     *slog.Logger
	tracer     trace.Tracer

	dispatches metric.Int64Counter
	failures   metric.Int64Counter
	sessions   metric.Int64Counter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	interim     string
	lastCommand string
	confidence  *float64
	lastErr     string
}

func NewController(parent context.Context, opts Options, logger *slog.Logger) (*Controller, error) {
	if opts.Dispatcher == nil {
		return nil, errors.New("voice controller requires a dispatcher")
	}
	if opts.Notifier == nil {
		return nil, errors.New("voice controller requires a notifier")
	}
	meter := otel.Meter("voicenav/voice")
	dispatches, err := meter.Int64Counter("voicenav.dispatch.total", metric.WithDescription("Command dispatch outcomes"))
	if err != nil {
		return nil, err
	}
	failures, err := meter.Int64Counter("voicenav.recognition.errors", metric.WithDescription("Recognition failures by cause"))
	if err != nil {
		return nil, err
	}
	sessions, err := meter.Int64Counter("voicenav.sessions.total", metric.WithDescription("Listening sessions by end reason"))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	return &Controller{
		opts:       opts,
		logger:     logger.With(slog.String("component", "voice")),
		tracer:     otel.Tracer("voicenav/voice"),
		dispatches: dispatches,
		failures:   failures,
		sessions:   sessions,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// Attach sets the recognizer driving the controller. It must be called
// before listening starts.
func (c *Controller) Attach(r Recognizer) {
	c.recognizer = r
}

// Close waits for spoken hints still in flight.
func (c *Controller) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Controller) StartListening(ctx context.Context) error {
	if c.recognizer == nil {
		return &recognition.InitializationError{Reason: "no recognizer attached"}
	}
	err := c.recognizer.StartListening(ctx)
	c.reportStartError(err)
	return err
}

func (c *Controller) StopListening() {
	if c.recognizer != nil {
		c.recognizer.StopListening()
	}
}

func (c *Controller) ToggleListening(ctx context.Context) error {
	if c.recognizer == nil {
		return &recognition.InitializationError{Reason: "no recognizer attached"}
	}
	err := c.recognizer.ToggleListening(ctx)
	c.reportStartError(err)
	return err
}

func (c *Controller) reportStartError(err error) {
	var initErr *recognition.InitializationError
	if !errors.As(err, &initErr) {
		return
	}
	c.mu.Lock()
	c.lastErr = initFailedMessage
	c.mu.Unlock()
	c.opts.Notifier.Notify(notify.Notification{
		Title:       titleVoiceProblem,
		Description: initFailedMessage,
		Variant:     notify.VariantDestructive,
	})
	c.publish()
}

// Speak forwards text to the speaker.
func (c *Controller) Speak(ctx context.Context, text string, opts synthesis.Options) error {
	if c.opts.Speaker == nil {
		return &synthesis.UnsupportedCapabilityError{Capability: "speech synthesis"}
	}
	return c.opts.Speaker.Speak(ctx, text, opts)
}

// State returns a snapshot of the voice subsystem.
func (c *Controller) State() State {
	st := State{ExamplePhrases: command.Examples(), RecognitionState: string(recognition.StateIdle)}
	if c.recognizer != nil {
		rs := c.recognizer.State()
		st.RecognitionState = string(rs)
		st.Listening = rs == recognition.StateListening
		st.Processing = rs == recognition.StateProcessing
		st.Supported = c.recognizer.Supported()
		st.SessionID = c.recognizer.SessionID()
	}
	if c.opts.Speaker != nil {
		st.Speaking = c.opts.Speaker.Speaking()
		st.SpeechSupported = c.opts.Speaker.Supported()
	}
	c.mu.Lock()
	st.Interim = c.interim
	st.LastCommand = c.lastCommand
	if c.confidence != nil {
		conf := *c.confidence
		st.Confidence = &conf
	}
	st.Error = c.lastErr
	c.mu.Unlock()
	return st
}

// SubmitText dispatches a typed command the same way as a spoken one,
// without the feedback delay.
func (c *Controller) SubmitText(ctx context.Context, text string) command.Outcome {
	sessionID := "text-" + uuid.NewString()
	c.record(func(r Recorder) error {
		return r.StartSession(ctx, eventstore.Session{ID: sessionID, Platform: "text", Language: c.opts.Language})
	})
	c.record(func(r Recorder) error {
		return r.Record(ctx, sessionID, eventstore.TypeTextSubmitted, map[string]string{"text": text})
	})
	out := c.dispatch(ctx, sessionID, recognition.Result{Transcript: command.Normalize(text), Confidence: 1, IsFinal: true})
	c.record(func(r Recorder) error { return r.EndSession(ctx, sessionID, string(recognition.EndCompleted)) })
	return out
}

func (c *Controller) SessionStarted(ctx context.Context, sessionID string) {
	c.mu.Lock()
	c.lastErr = ""
	c.interim = ""
	c.confidence = nil
	c.mu.Unlock()
	c.record(func(r Recorder) error {
		return r.StartSession(ctx, eventstore.Session{ID: sessionID, Platform: c.opts.Platform, Language: c.opts.Language})
	})
	c.publish()
}

func (c *Controller) Interim(_ context.Context, _ string, r recognition.Result) {
	c.mu.Lock()
	c.interim = r.Transcript
	conf := r.Confidence
	c.confidence = &conf
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) Final(ctx context.Context, sessionID string, r recognition.Result) {
	c.mu.Lock()
	c.interim = ""
	conf := r.Confidence
	c.confidence = &conf
	c.mu.Unlock()
	c.publish()

	if c.opts.DispatchDelay > 0 {
		timer := time.NewTimer(c.opts.DispatchDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
	c.record(func(rec Recorder) error {
		return rec.Record(ctx, sessionID, eventstore.TypeTranscriptFinal, r)
	})
	c.dispatch(ctx, sessionID, r)
}

func (c *Controller) dispatch(ctx context.Context, sessionID string, r recognition.Result) command.Outcome {
	ctx, span := c.tracer.Start(ctx, "voice.dispatch", trace.WithAttributes(
		attribute.String("voice.session_id", sessionID),
		attribute.String("voice.transcript", r.Transcript),
	))
	defer span.End()

	out := c.opts.Dispatcher.Resolve(ctx, r.Transcript)
	span.SetAttributes(attribute.Bool("voice.matched", out.Matched))

	if out.Matched {
		c.dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "matched"), attribute.Bool("exact", out.Exact)))
		c.mu.Lock()
		c.lastCommand = r.Transcript
		c.mu.Unlock()
		c.record(func(rec Recorder) error {
			return rec.Record(ctx, sessionID, eventstore.TypeDispatchMatched, map[string]any{
				"phrase": *out.MatchedPhrase,
				"action": out.Action.String(),
				"exact":  out.Exact,
			})
		})
		c.opts.Notifier.Notify(notify.Notification{
			Title:       titleMatched,
			Description: matchedDescription(r.Transcript),
			Variant:     notify.VariantSuccess,
		})
		c.publish()
		return out
	}

	c.dispatches.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", "unmatched")))
	c.record(func(rec Recorder) error {
		return rec.Record(ctx, sessionID, eventstore.TypeDispatchNoMatch, map[string]string{"transcript": r.Transcript})
	})
	examples := command.Examples()
	c.opts.Notifier.Notify(notify.Notification{
		Title:       titleNotUnderstood,
		Description: notUnderstoodDescription(examples),
		Variant:     notify.VariantWarning,
	})
	c.speakHint(SpokenHint(r.Transcript, examples))
	c.publish()
	return out
}

// speakHint speaks in the background so the session is not held in
// Processing while the hint plays.
func (c *Controller) speakHint(text string) {
	if c.opts.Speaker == nil || !c.opts.Speaker.Supported() {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.opts.Speaker.Speak(c.ctx, text, synthesis.Options{}); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("failed to speak hint", slog.String("error", err.Error()))
		}
	}()
}

func (c *Controller) Failed(ctx context.Context, sessionID string, err *recognition.RecognitionError) {
	message := ErrorMessage(err.Cause)
	c.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("cause", string(err.Cause))))

	c.mu.Lock()
	c.lastErr = message
	c.interim = ""
	c.mu.Unlock()

	c.record(func(r Recorder) error {
		return r.Record(ctx, sessionID, eventstore.TypeRecognitionError, map[string]string{"cause": string(err.Cause), "message": message})
	})
	c.opts.Notifier.Notify(notify.Notification{
		Title:       titleVoiceProblem,
		Description: message,
		Variant:     notify.VariantDestructive,
	})
	c.publish()
}

func (c *Controller) SessionEnded(ctx context.Context, sessionID string, reason recognition.EndReason) {
	c.sessions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(reason))))
	c.mu.Lock()
	c.interim = ""
	c.mu.Unlock()
	c.record(func(r Recorder) error {
		if err := r.Record(ctx, sessionID, eventstore.TypeSessionEnded, map[string]string{"reason": string(reason)}); err != nil {
			return err
		}
		return r.EndSession(ctx, sessionID, string(reason))
	})
	c.logger.Debug("session ended", slog.String("session_id", sessionID), slog.String("reason", string(reason)))
	c.publish()
}

func (c *Controller) record(fn func(Recorder) error) {
	if c.opts.Recorder == nil {
		return
	}
	if err := fn(c.opts.Recorder); err != nil {
		c.logger.Warn("failed to record voice event", slog.String("error", err.Error()))
	}
}

func (c *Controller) publish() {
	if c.opts.Publisher == nil {
		return
	}
	if err := c.opts.Publisher.PublishState(c.ctx, c.State()); err != nil {
		c.logger.Debug("failed to publish state", slog.String("error", err.Error()))
	}
}

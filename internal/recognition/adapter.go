package recognition

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTimeout    = 30 * time.Second
	interimConfidence = 0.5
)

// Adapter runs one listening session at a time against a Platform and turns
// raw callbacks into Handler events.
type Adapter struct {
	platform Platform
	handler  Handler
	settings Settings
	timeout  time.Duration
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	state   State
	session *session
	gen     uint64
}

// session holds the per-listening state. processing is the re-entrancy
// guard; dispatched makes the one-final-per-session rule explicit.
type session struct {
	id         string
	gen        uint64
	processing bool
	dispatched bool
	ended      bool
	timer      *time.Timer
}

func NewAdapter(parent context.Context, platform Platform, handler Handler, settings Settings, timeout time.Duration, logger *slog.Logger) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithCancel(parent)
	return &Adapter{
		platform: platform,
		handler:  handler,
		settings: settings,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "recognition")),
		ctx:      ctx,
		cancel:   cancel,
		state:    StateIdle,
	}
}

// State returns the current lifecycle state.
func (a *Adapter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// SessionID returns the active session id, or "" when idle.
func (a *Adapter) SessionID() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return ""
	}
	return a.session.id
}

// Supported reports whether the platform can recognize speech.
func (a *Adapter) Supported() bool {
	return a.platform != nil && a.platform.Available()
}

// StartListening opens a session. It is a no-op while a session is active.
func (a *Adapter) StartListening(ctx context.Context) error {
	if !a.Supported() {
		return &InitializationError{Reason: "speech recognition unavailable"}
	}

	a.mu.Lock()
	if a.session != nil {
		a.mu.Unlock()
		return nil
	}
	a.gen++
	s := &session{id: uuid.NewString(), gen: a.gen}
	s.timer = time.AfterFunc(a.timeout, func() { a.expire(s.gen) })
	a.session = s
	a.state = StateListening
	a.mu.Unlock()

	if err := a.platform.Start(ctx, a.settings, &sessionListener{a: a, gen: s.gen}); err != nil {
		a.mu.Lock()
		if a.session == s {
			s.timer.Stop()
			a.session = nil
			a.state = StateIdle
		}
		a.mu.Unlock()
		a.logger.Warn("failed to start recognition", slogError(err))
		return &InitializationError{Reason: "start failed", Err: err}
	}
	a.logger.Debug("listening", slog.String("session_id", s.id), slog.Duration("timeout", a.timeout))
	return nil
}

// StopListening ends capture for the current session. A dispatch already in
// flight completes before the adapter returns to Idle.
func (a *Adapter) StopListening() {
	a.mu.Lock()
	s := a.session
	if s == nil {
		a.mu.Unlock()
		return
	}
	stopPlatform := !s.ended
	s.ended = true
	finished := false
	if !s.processing {
		a.finishLocked(s)
		finished = true
	}
	a.mu.Unlock()

	if stopPlatform {
		a.stopPlatform()
	}
	if finished {
		a.handler.SessionEnded(a.ctx, s.id, EndStopped)
	}
}

// ToggleListening stops an active session or starts a new one.
func (a *Adapter) ToggleListening(ctx context.Context) error {
	a.mu.Lock()
	active := a.session != nil
	a.mu.Unlock()
	if active {
		a.StopListening()
		return nil
	}
	return a.StartListening(ctx)
}

// Close aborts any active session and waits for in-flight dispatches.
func (a *Adapter) Close() {
	a.mu.Lock()
	s := a.session
	if s != nil {
		a.finishLocked(s)
	}
	a.mu.Unlock()

	if s != nil {
		if err := a.platform.Abort(); err != nil {
			a.logger.Debug("abort failed", slogError(err))
		}
		a.handler.SessionEnded(a.ctx, s.id, EndAborted)
	}
	a.cancel()
	a.wg.Wait()
}

// Wait blocks until in-flight dispatches have returned.
func (a *Adapter) Wait() {
	a.wg.Wait()
}

func (a *Adapter) current(gen uint64) *session {
	if a.session == nil || a.session.gen != gen {
		return nil
	}
	return a.session
}

func (a *Adapter) finishLocked(s *session) {
	s.timer.Stop()
	if a.session == s {
		a.session = nil
		a.state = StateIdle
	}
}

func (a *Adapter) stopPlatform() {
	if err := a.platform.Stop(); err != nil {
		a.logger.Debug("platform stop failed", slogError(err))
	}
}

func (a *Adapter) onStart(gen uint64) {
	a.mu.Lock()
	s := a.current(gen)
	a.mu.Unlock()
	if s == nil {
		return
	}
	a.handler.SessionStarted(a.ctx, s.id)
}

func (a *Adapter) onResult(gen uint64, ev ResultEvent) {
	final, interim := collect(ev)

	a.mu.Lock()
	s := a.current(gen)
	if s == nil {
		a.mu.Unlock()
		return
	}
	dispatch := false
	if final.Transcript != "" {
		if s.processing || s.dispatched {
			a.logger.Debug("dropping final transcript", slog.String("session_id", s.id), slog.String("transcript", final.Transcript))
		} else {
			s.processing = true
			s.dispatched = true
			a.state = StateProcessing
			dispatch = true
			a.wg.Add(1)
		}
	}
	a.mu.Unlock()

	if interim.Transcript != "" {
		a.handler.Interim(a.ctx, s.id, interim)
	}
	if dispatch {
		go a.dispatch(s, final)
	}
}

func (a *Adapter) dispatch(s *session, r Result) {
	defer a.wg.Done()
	a.handler.Final(a.ctx, s.id, r)

	a.mu.Lock()
	s.processing = false
	stopPlatform := !s.ended
	s.ended = true
	owned := a.session == s
	if owned {
		a.finishLocked(s)
	}
	a.mu.Unlock()

	if !owned {
		return
	}
	if stopPlatform {
		a.stopPlatform()
	}
	a.handler.SessionEnded(a.ctx, s.id, EndCompleted)
}

func (a *Adapter) onError(gen uint64, cause string) {
	a.mu.Lock()
	s := a.current(gen)
	if s == nil {
		a.mu.Unlock()
		return
	}
	s.ended = true
	a.finishLocked(s)
	a.state = StateError
	a.mu.Unlock()

	err := &RecognitionError{Cause: Cause(cause)}
	a.logger.Warn("recognition failed", slog.String("session_id", s.id), slog.String("cause", cause))
	a.handler.Failed(a.ctx, s.id, err)

	a.mu.Lock()
	if a.state == StateError {
		a.state = StateIdle
	}
	a.mu.Unlock()
	a.handler.SessionEnded(a.ctx, s.id, EndError)
}

func (a *Adapter) onEnd(gen uint64) {
	a.mu.Lock()
	s := a.current(gen)
	if s == nil {
		a.mu.Unlock()
		return
	}
	s.ended = true
	if s.processing {
		a.mu.Unlock()
		return
	}
	a.finishLocked(s)
	a.mu.Unlock()
	a.handler.SessionEnded(a.ctx, s.id, EndPlatform)
}

func (a *Adapter) expire(gen uint64) {
	a.mu.Lock()
	s := a.current(gen)
	if s == nil {
		a.mu.Unlock()
		return
	}
	stopPlatform := !s.ended
	s.ended = true
	processing := s.processing
	if !processing {
		a.finishLocked(s)
	}
	a.mu.Unlock()

	a.logger.Info("listening timed out", slog.String("session_id", s.id), slog.Duration("timeout", a.timeout))
	if stopPlatform {
		a.stopPlatform()
	}
	if !processing {
		a.handler.SessionEnded(a.ctx, s.id, EndTimeout)
	}
}

// collect folds the changed segments of ev into one final and one interim
// result. Segments are lowercased and trimmed.
func collect(ev ResultEvent) (final Result, interim Result) {
	var finals, interims []string
	final.IsFinal = true
	interim.Confidence = interimConfidence
	start := ev.ResultIndex
	if start < 0 {
		start = 0
	}
	for i := start; i < len(ev.Results); i++ {
		seg := ev.Results[i]
		text := strings.TrimSpace(strings.ToLower(seg.Transcript))
		if text == "" {
			continue
		}
		if seg.IsFinal {
			finals = append(finals, text)
			final.Confidence = seg.Confidence
			continue
		}
		interims = append(interims, text)
		if seg.Confidence > 0 {
			interim.Confidence = seg.Confidence
		} else {
			interim.Confidence = interimConfidence
		}
	}
	final.Transcript = strings.Join(finals, " ")
	interim.Transcript = strings.Join(interims, " ")
	return final, interim
}

type sessionListener struct {
	a   *Adapter
	gen uint64
}

func (l *sessionListener) HandleStart()                { l.a.onStart(l.gen) }
func (l *sessionListener) HandleResult(ev ResultEvent) { l.a.onResult(l.gen, ev) }
func (l *sessionListener) HandleError(cause string)    { l.a.onError(l.gen, cause) }
func (l *sessionListener) HandleEnd()                  { l.a.onEnd(l.gen) }

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

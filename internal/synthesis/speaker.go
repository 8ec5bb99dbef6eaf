package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Speaker plays at most one utterance at a time. A new Speak cancels the
// one in progress; the superseded call returns nil.
type Speaker struct {
	platform Platform
	defaults Options
	logger   *slog.Logger

	// sendMu orders submissions so the platform sees Cancel and Speak in
	// the same order current is replaced.
	sendMu sync.Mutex

	mu      sync.Mutex
	current *utterance
}

type utterance struct {
	id   string
	done chan error
	once sync.Once
}

func (u *utterance) resolve(err error) {
	u.once.Do(func() { u.done <- err })
}

func NewSpeaker(platform Platform, defaults Options, logger *slog.Logger) *Speaker {
	return &Speaker{
		platform: platform,
		defaults: defaults.merge(DefaultOptions),
		logger:   logger.With(slog.String("component", "synthesis")),
	}
}

// Supported reports whether the platform can speak.
func (s *Speaker) Supported() bool {
	return s.platform != nil && s.platform.Available()
}

// Speaking reports whether an utterance is in progress.
func (s *Speaker) Speaking() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil
}

// Speak cancels any utterance in progress and blocks until text has been
// spoken, playback failed, the call was superseded or ctx is done.
func (s *Speaker) Speak(ctx context.Context, text string, opts Options) error {
	if !s.Supported() {
		return &UnsupportedCapabilityError{Capability: "speech synthesis"}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	u := &utterance{id: uuid.NewString(), done: make(chan error, 1)}
	if err := s.submit(u, Utterance{ID: u.id, Text: text, Options: opts.merge(s.defaults)}); err != nil {
		return err
	}

	select {
	case err := <-u.done:
		return err
	case <-ctx.Done():
		s.sendMu.Lock()
		if s.release(u) {
			s.platform.Cancel()
		}
		s.sendMu.Unlock()
		return ctx.Err()
	}
}

// submit makes u current, cancels its predecessor and hands req to the
// platform as one step with respect to other submissions.
func (s *Speaker) submit(u *utterance, req Utterance) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.mu.Lock()
	prev := s.current
	s.current = u
	s.mu.Unlock()

	if prev != nil {
		s.platform.Cancel()
		prev.resolve(nil)
		s.logger.Debug("utterance superseded", slog.String("utterance_id", prev.id))
	}

	if err := s.platform.Speak(req, &utteranceListener{s: s, u: u}); err != nil {
		s.release(u)
		return fmt.Errorf("speak: %w", err)
	}
	return nil
}

// Cancel stops the current utterance. Its Speak call returns nil.
func (s *Speaker) Cancel() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.mu.Lock()
	u := s.current
	s.current = nil
	s.mu.Unlock()
	if u == nil {
		return
	}
	s.platform.Cancel()
	u.resolve(nil)
}

// release clears u if it is still current.
func (s *Speaker) release(u *utterance) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != u {
		return false
	}
	s.current = nil
	return true
}

func (s *Speaker) onEnd(u *utterance) {
	if s.release(u) {
		u.resolve(nil)
	}
}

func (s *Speaker) onError(u *utterance, code string) {
	if !s.release(u) {
		return
	}
	s.logger.Warn("speech synthesis failed", slog.String("utterance_id", u.id), slog.String("code", code))
	u.resolve(&SynthesisError{Code: code})
}

type utteranceListener struct {
	s *Speaker
	u *utterance
}

func (l *utteranceListener) HandleStart() {
	l.s.logger.Debug("speaking", slog.String("utterance_id", l.u.id))
}

func (l *utteranceListener) HandleEnd() { l.s.onEnd(l.u) }

func (l *utteranceListener) HandleError(code string) { l.s.onError(l.u, code) }

package recognition

import (
	"context"
	"sync"
)

// MockPlatform is an in-process platform driven by explicit calls. It backs
// the mock mode of the daemon and the tests.
type MockPlatform struct {
	mu          sync.Mutex
	unavailable bool
	startErr    error
	active      bool
	listener    Listener
	settings    Settings
	starts      int
	stops       int
}

func NewMockPlatform() *MockPlatform {
	return &MockPlatform{}
}

func (m *MockPlatform) SetAvailable(ok bool) {
	m.mu.Lock()
	m.unavailable = !ok
	m.mu.Unlock()
}

// FailNextStart makes the next Start call return err.
func (m *MockPlatform) FailNextStart(err error) {
	m.mu.Lock()
	m.startErr = err
	m.mu.Unlock()
}

func (m *MockPlatform) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

func (m *MockPlatform) Start(_ context.Context, settings Settings, l Listener) error {
	m.mu.Lock()
	if err := m.startErr; err != nil {
		m.startErr = nil
		m.mu.Unlock()
		return err
	}
	if m.active {
		m.mu.Unlock()
		return ErrAlreadyActive
	}
	m.active = true
	m.listener = l
	m.settings = settings
	m.starts++
	m.mu.Unlock()

	l.HandleStart()
	return nil
}

func (m *MockPlatform) Stop() error {
	l := m.release(true)
	if l != nil {
		l.HandleEnd()
	}
	return nil
}

func (m *MockPlatform) Abort() error {
	l := m.release(false)
	if l != nil {
		l.HandleEnd()
	}
	return nil
}

func (m *MockPlatform) release(stop bool) Listener {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return nil
	}
	m.active = false
	if stop {
		m.stops++
	}
	l := m.listener
	m.listener = nil
	return l
}

// Active reports whether a session is capturing.
func (m *MockPlatform) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Settings returns the settings of the last Start call.
func (m *MockPlatform) Settings() Settings {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.settings
}

// Counts returns how many sessions were started and stopped.
func (m *MockPlatform) Counts() (starts, stops int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts, m.stops
}

func (m *MockPlatform) listenerIfActive() (Listener, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.active {
		return nil, ErrNotActive
	}
	return m.listener, nil
}

// Emit delivers a raw result event to the active session.
func (m *MockPlatform) Emit(ev ResultEvent) error {
	l, err := m.listenerIfActive()
	if err != nil {
		return err
	}
	l.HandleResult(ev)
	return nil
}

// Interim delivers an interim hypothesis.
func (m *MockPlatform) Interim(transcript string, confidence float64) error {
	return m.Emit(ResultEvent{Results: []Segment{{Transcript: transcript, Confidence: confidence}}})
}

// Say delivers a final transcript and ends capture, like a platform running
// in non-continuous mode.
func (m *MockPlatform) Say(transcript string, confidence float64) error {
	l, err := m.listenerIfActive()
	if err != nil {
		return err
	}
	l.HandleResult(ResultEvent{Results: []Segment{{Transcript: transcript, Confidence: confidence, IsFinal: true}}})
	if l := m.release(false); l != nil {
		l.HandleEnd()
	}
	return nil
}

// Fail reports a platform error followed by the end of the session.
func (m *MockPlatform) Fail(cause Cause) error {
	l, err := m.listenerIfActive()
	if err != nil {
		return err
	}
	l.HandleError(string(cause))
	if l := m.release(false); l != nil {
		l.HandleEnd()
	}
	return nil
}

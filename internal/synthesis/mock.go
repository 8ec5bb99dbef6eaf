package synthesis

import (
	"sync"
	"time"
)

// MockPlatform simulates playback with a timer.
type MockPlatform struct {
	delay time.Duration

	mu          sync.Mutex
	unavailable bool
	failNext    string
	spoken      []Utterance
	active      *mockPlayback
	seq         int
}

type mockPlayback struct {
	seq      int
	listener UtteranceListener
	timer    *time.Timer
}

// NewMockPlatform returns a platform where every utterance takes delay.
func NewMockPlatform(delay time.Duration) *MockPlatform {
	return &MockPlatform{delay: delay}
}

func (m *MockPlatform) SetAvailable(ok bool) {
	m.mu.Lock()
	m.unavailable = !ok
	m.mu.Unlock()
}

// FailNext makes the next utterance end with code.
func (m *MockPlatform) FailNext(code string) {
	m.mu.Lock()
	m.failNext = code
	m.mu.Unlock()
}

// Spoken returns every utterance submitted so far.
func (m *MockPlatform) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Utterance(nil), m.spoken...)
}

func (m *MockPlatform) Available() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.unavailable
}

func (m *MockPlatform) Speak(u Utterance, l UtteranceListener) error {
	m.mu.Lock()
	m.spoken = append(m.spoken, u)
	m.seq++
	p := &mockPlayback{seq: m.seq, listener: l}
	code := m.failNext
	m.failNext = ""
	m.active = p
	p.timer = time.AfterFunc(m.delay, func() { m.finish(p, code) })
	m.mu.Unlock()

	l.HandleStart()
	return nil
}

func (m *MockPlatform) finish(p *mockPlayback, code string) {
	m.mu.Lock()
	if m.active != p {
		m.mu.Unlock()
		return
	}
	m.active = nil
	m.mu.Unlock()

	if code != "" {
		p.listener.HandleError(code)
		return
	}
	p.listener.HandleEnd()
}

func (m *MockPlatform) Cancel() {
	m.mu.Lock()
	p := m.active
	m.active = nil
	m.mu.Unlock()
	if p == nil {
		return
	}
	p.timer.Stop()
	p.listener.HandleError(CodeInterrupted)
}

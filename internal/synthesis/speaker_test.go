package synthesis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/loqalabs/voicenav/internal/config"
	"github.com/loqalabs/voicenav/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSpeakAppliesDefaults(t *testing.T) {
	platform := NewMockPlatform(10 * time.Millisecond)
	speaker := NewSpeaker(platform, Options{}, newLogger())
	if err := speaker.Speak(context.Background(), "Comando executado", Options{Rate: 1.2}); err != nil {
		t.Fatalf("speak: %v", err)
	}
	spoken := platform.Spoken()
	if len(spoken) != 1 {
		t.Fatalf("expected one utterance, got %d", len(spoken))
	}
	got := spoken[0].Options
	want := Options{Language: "pt-BR", Rate: 1.2, Pitch: 1.0, Volume: 0.8}
	if got != want {
		t.Fatalf("options = %+v, want %+v", got, want)
	}
	if speaker.Speaking() {
		t.Fatal("expected speaker idle after end")
	}
}

func TestNewSpeakCancelsPrevious(t *testing.T) {
	platform := NewMockPlatform(200 * time.Millisecond)
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())

	first := make(chan error, 1)
	go func() { first <- speaker.Speak(context.Background(), "primeira", Options{}) }()
	waitFor(t, speaker.Speaking)

	if err := speaker.Speak(context.Background(), "segunda", Options{}); err != nil {
		t.Fatalf("second speak: %v", err)
	}
	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("superseded call should return nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("superseded call did not return")
	}
	if n := len(platform.Spoken()); n != 2 {
		t.Fatalf("expected two utterances, got %d", n)
	}
}

// interruptingPlatform interrupts the active utterance whenever a new one is
// submitted, like ExecPlatform. Submitting a text listed in latency blocks
// for that long first.
type interruptingPlatform struct {
	latency map[string]time.Duration

	mu     sync.Mutex
	active *interruptedPlayback
	ended  []string
}

type interruptedPlayback struct {
	text  string
	l     UtteranceListener
	timer *time.Timer
}

func (p *interruptingPlatform) Available() bool { return true }

func (p *interruptingPlatform) Speak(u Utterance, l UtteranceListener) error {
	time.Sleep(p.latency[u.Text])
	p.Cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	pb := &interruptedPlayback{text: u.Text, l: l}
	pb.timer = time.AfterFunc(20*time.Millisecond, func() {
		p.mu.Lock()
		if p.active != pb {
			p.mu.Unlock()
			return
		}
		p.active = nil
		p.ended = append(p.ended, pb.text)
		p.mu.Unlock()
		l.HandleEnd()
	})
	p.active = pb
	return nil
}

func (p *interruptingPlatform) Cancel() {
	p.mu.Lock()
	pb := p.active
	p.active = nil
	p.mu.Unlock()
	if pb != nil {
		pb.timer.Stop()
		pb.l.HandleError(CodeInterrupted)
	}
}

func (p *interruptingPlatform) endedTexts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ended...)
}

func TestNewestSpeakWinsWhenSubmissionIsSlow(t *testing.T) {
	platform := &interruptingPlatform{latency: map[string]time.Duration{"a": 50 * time.Millisecond}}
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())

	first := make(chan error, 1)
	go func() { first <- speaker.Speak(context.Background(), "a", Options{}) }()
	time.Sleep(10 * time.Millisecond)

	if err := speaker.Speak(context.Background(), "b", Options{}); err != nil {
		t.Fatalf("newest speak: %v", err)
	}
	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("superseded speak should return nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("superseded speak did not return")
	}
	if ended := platform.endedTexts(); len(ended) != 1 || ended[0] != "b" {
		t.Fatalf("utterances reaching end = %v, want [b]", ended)
	}
}

func TestSpeakReportsPlaybackError(t *testing.T) {
	platform := NewMockPlatform(time.Millisecond)
	platform.FailNext(CodeSynthesisFailed)
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())

	err := speaker.Speak(context.Background(), "olá", Options{})
	var synthErr *SynthesisError
	if !errors.As(err, &synthErr) || synthErr.Code != CodeSynthesisFailed {
		t.Fatalf("expected synthesis error, got %v", err)
	}
}

func TestSpeakUnsupported(t *testing.T) {
	platform := NewMockPlatform(time.Millisecond)
	platform.SetAvailable(false)
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())

	err := speaker.Speak(context.Background(), "olá", Options{})
	var unsupported *UnsupportedCapabilityError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected unsupported capability, got %v", err)
	}
	if len(platform.Spoken()) != 0 {
		t.Fatal("nothing should be submitted")
	}
}

func TestSpeakContextCancel(t *testing.T) {
	platform := NewMockPlatform(time.Second)
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := speaker.Speak(ctx, "demorado", Options{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if speaker.Speaking() {
		t.Fatal("utterance should be cancelled")
	}
}

func TestCancelReleasesSpeak(t *testing.T) {
	platform := NewMockPlatform(time.Second)
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())

	done := make(chan error, 1)
	go func() { done <- speaker.Speak(context.Background(), "longo", Options{}) }()
	waitFor(t, speaker.Speaking)
	speaker.Cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected nil after cancel, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("speak did not return after cancel")
	}
}

func TestEmptyTextIsNoop(t *testing.T) {
	platform := NewMockPlatform(time.Millisecond)
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())
	if err := speaker.Speak(context.Background(), "   ", Options{}); err != nil {
		t.Fatal(err)
	}
	if len(platform.Spoken()) != 0 {
		t.Fatal("empty text must not be submitted")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	chunks []protocol.AudioChunk
	done   []protocol.TTSStatus
}

func (r *recordingSink) Chunk(c protocol.AudioChunk) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunks = append(r.chunks, c)
	return nil
}

func (r *recordingSink) Done(s protocol.TTSStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.done = append(r.done, s)
	return nil
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestExecPlatformStreamsAudio(t *testing.T) {
	requireShell(t)
	sink := &recordingSink{}
	cfg := config.Default().Synthesis
	cfg.Command = `sh -c 'cat >/dev/null; echo "{\"pcm_base64\":\"AAE=\",\"final\":false}"; echo "{\"pcm_base64\":\"AgM=\",\"final\":true}"'`
	platform, err := NewExecPlatform(cfg, sink, newLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer platform.Close()
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())

	if err := speaker.Speak(context.Background(), "olá", Options{}); err != nil {
		t.Fatalf("speak: %v", err)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.chunks) != 2 || !sink.chunks[1].Final || sink.chunks[1].Sequence != 1 {
		t.Fatalf("unexpected chunks: %+v", sink.chunks)
	}
	if string(sink.chunks[0].PCM) != "\x00\x01" || sink.chunks[0].SampleRate != cfg.SampleRate {
		t.Fatalf("unexpected first chunk: %+v", sink.chunks[0])
	}
	if len(sink.done) != 1 || !sink.done[0].Completed || sink.done[0].UtteranceID != sink.chunks[0].UtteranceID {
		t.Fatalf("unexpected status: %+v", sink.done)
	}
}

func TestExecPlatformBreakerOpens(t *testing.T) {
	requireShell(t)
	cfg := config.Default().Synthesis
	cfg.Command = `sh -c 'exit 1'`
	cfg.BreakerFailures = 2
	cfg.BreakerTimeoutMS = 60000
	platform, err := NewExecPlatform(cfg, nil, newLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer platform.Close()
	speaker := NewSpeaker(platform, DefaultOptions, newLogger())

	codes := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		err := speaker.Speak(context.Background(), "olá", Options{})
		var synthErr *SynthesisError
		if !errors.As(err, &synthErr) {
			t.Fatalf("attempt %d: expected synthesis error, got %v", i, err)
		}
		codes = append(codes, synthErr.Code)
	}
	want := []string{CodeSynthesisFailed, CodeSynthesisFailed, CodeServiceUnavailable}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("codes = %v, want %v", codes, want)
		}
	}
}

func TestNewExecPlatformRejectsEmptyCommand(t *testing.T) {
	cfg := config.Default().Synthesis
	cfg.Command = "   "
	if _, err := NewExecPlatform(cfg, nil, newLogger()); err == nil {
		t.Fatal("expected error for empty command")
	}
}

package recognition

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

// writeRecognizer stores script next to the test and returns a command that
// runs it.
func writeRecognizer(t *testing.T, script string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "recognizer.sh")
	if err := os.WriteFile(path, []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	return "sh " + path, dir
}

type listenerLog struct {
	mu      sync.Mutex
	started int
	events  []ResultEvent
	errors  []string
	ended   chan struct{}
}

func newListenerLog() *listenerLog {
	return &listenerLog{ended: make(chan struct{}, 1)}
}

func (l *listenerLog) HandleStart() {
	l.mu.Lock()
	l.started++
	l.mu.Unlock()
}

func (l *listenerLog) HandleResult(ev ResultEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *listenerLog) HandleError(cause string) {
	l.mu.Lock()
	l.errors = append(l.errors, cause)
	l.mu.Unlock()
}

func (l *listenerLog) HandleEnd() {
	l.ended <- struct{}{}
}

func (l *listenerLog) snapshot() ([]ResultEvent, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]ResultEvent(nil), l.events...), append([]string(nil), l.errors...)
}

func (l *listenerLog) waitEnd(t *testing.T) {
	t.Helper()
	select {
	case <-l.ended:
	case <-time.After(3 * time.Second):
		t.Fatal("recognizer session did not end")
	}
}

func (l *listenerLog) waitResults(t *testing.T, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if events, _ := l.snapshot(); len(events) >= n {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d results", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newExecPlatform(t *testing.T, script string) (*ExecPlatform, string) {
	t.Helper()
	requireShell(t)
	command, dir := writeRecognizer(t, script)
	p, err := NewExecPlatform(command, newLogger())
	if err != nil {
		t.Fatalf("new exec platform: %v", err)
	}
	t.Cleanup(func() { _ = p.Abort() })
	return p, dir
}

func TestExecPlatformStreamsHypotheses(t *testing.T) {
	p, dir := newExecPlatform(t, `printf '%s\n' "$@" > "$(dirname "$0")/args"
printf '{"transcript":"vol","confidence":0.4}\n'
printf '{"transcript":"volta","confidence":0.5}\n'
printf '{"transcript":"voltar","confidence":0.9,"final":true}\n'
printf 'not json\n'
printf '{"transcript":"me","confidence":0.3}\n'
`)
	l := newListenerLog()
	if err := p.Start(context.Background(), Settings{Language: "pt-BR", InterimResults: true}, l); err != nil {
		t.Fatalf("start: %v", err)
	}
	l.waitEnd(t)

	events, errs := l.snapshot()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	wantIndex := []int{0, 0, 0, 1}
	if len(events) != len(wantIndex) {
		t.Fatalf("expected %d events, got %+v", len(wantIndex), events)
	}
	for i, ev := range events {
		if ev.ResultIndex != wantIndex[i] {
			t.Fatalf("event %d index = %d, want %d", i, ev.ResultIndex, wantIndex[i])
		}
	}
	last := events[3].Results
	want := []Segment{
		{Transcript: "voltar", Confidence: 0.9, IsFinal: true},
		{Transcript: "me", Confidence: 0.3},
	}
	if !reflect.DeepEqual(last, want) {
		t.Fatalf("last results = %+v, want %+v", last, want)
	}

	args, err := os.ReadFile(filepath.Join(dir, "args"))
	if err != nil {
		t.Fatalf("read args: %v", err)
	}
	if got := strings.Fields(string(args)); !reflect.DeepEqual(got, []string{"--language", "pt-BR", "--interim=true", "--continuous=false"}) {
		t.Fatalf("unexpected recognizer args %q", got)
	}
}

func TestExecPlatformReportsErrorLine(t *testing.T) {
	p, _ := newExecPlatform(t, `printf '{"error":"not-allowed"}\n'
exit 1
`)
	l := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, l); err != nil {
		t.Fatalf("start: %v", err)
	}
	l.waitEnd(t)
	if _, errs := l.snapshot(); !reflect.DeepEqual(errs, []string{"not-allowed"}) {
		t.Fatalf("errors = %v, want [not-allowed]", errs)
	}
}

func TestExecPlatformCrashIsServiceNotAllowed(t *testing.T) {
	p, _ := newExecPlatform(t, "exit 3\n")
	l := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, l); err != nil {
		t.Fatalf("start: %v", err)
	}
	l.waitEnd(t)
	if _, errs := l.snapshot(); !reflect.DeepEqual(errs, []string{string(CauseServiceNotAllowed)}) {
		t.Fatalf("errors = %v, want [service-not-allowed]", errs)
	}
}

func TestExecPlatformRejectsSecondStartWhileRunning(t *testing.T) {
	p, _ := newExecPlatform(t, "exec sleep 5\n")
	if err := p.Start(context.Background(), Settings{}, newListenerLog()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.Start(context.Background(), Settings{}, newListenerLog()); err != ErrAlreadyActive {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}
}

// The recognizer delivers its result and then takes a while to exit on
// interrupt. A new session must not wait for it.
const slowExitRecognizer = `trap 'sleep 0.3; exit 0' INT
printf '{"transcript":"voltar","confidence":0.9,"final":true}\n'
while :; do sleep 0.05; done
`

func TestExecPlatformStartsWhilePreviousRecognizerExits(t *testing.T) {
	p, _ := newExecPlatform(t, slowExitRecognizer)
	first := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, first); err != nil {
		t.Fatalf("first start: %v", err)
	}
	first.waitResults(t, 1)
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}

	second := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, second); err != nil {
		t.Fatalf("second start: %v", err)
	}
	second.waitResults(t, 1)

	first.waitEnd(t)
	if _, errs := first.snapshot(); len(errs) != 0 {
		t.Fatalf("replaced recognizer reported errors %v", errs)
	}
	if err := p.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	second.waitEnd(t)
	if _, errs := second.snapshot(); len(errs) != 0 {
		t.Fatalf("aborted recognizer reported errors %v", errs)
	}
}

func TestAdapterRelistensRightAfterExecSessionCompletes(t *testing.T) {
	p, _ := newExecPlatform(t, slowExitRecognizer)
	handler := newRecordingHandler()
	adapter := NewAdapter(context.Background(), p, handler, Settings{Language: "pt-BR"}, time.Minute, newLogger())
	defer adapter.Close()

	for i := 1; i <= 2; i++ {
		if err := adapter.StartListening(context.Background()); err != nil {
			t.Fatalf("start listening #%d: %v", i, err)
		}
		if reason := waitEnded(t, handler); reason != EndCompleted {
			t.Fatalf("session #%d ended with %s", i, reason)
		}
		if adapter.State() != StateIdle {
			t.Fatalf("expected idle after session #%d, got %s", i, adapter.State())
		}
	}
	handler.mu.Lock()
	defer handler.mu.Unlock()
	if len(handler.finals) != 2 || len(handler.failures) != 0 {
		t.Fatalf("finals=%+v failures=%v", handler.finals, handler.failures)
	}
}

func TestExecPlatformKillsRecognizerIgnoringInterrupt(t *testing.T) {
	p, _ := newExecPlatform(t, `trap '' INT
printf '{"transcript":"oi","confidence":0.5}\n'
exec sleep 5
`)
	p.grace = 100 * time.Millisecond
	l := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, l); err != nil {
		t.Fatalf("start: %v", err)
	}
	l.waitResults(t, 1)
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	l.waitEnd(t)
	if _, errs := l.snapshot(); len(errs) != 0 {
		t.Fatalf("stopped recognizer reported errors %v", errs)
	}
}

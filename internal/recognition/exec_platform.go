package recognition

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-shellwords"
)

// stopGrace is how long a recognizer may take to exit after an interrupt
// before it is killed.
const stopGrace = 2 * time.Second

// ExecPlatform drives an external recognizer process. The process captures
// audio itself and writes one JSON object per line to stdout:
//
//	{"transcript":"voltar","confidence":0.91,"final":true}
//	{"error":"not-allowed"}
//
// The session ends when the process exits. A process that is still exiting
// after Stop does not block the next Start; it is killed and replaced.
type ExecPlatform struct {
	cmd    []string
	grace  time.Duration
	logger *slog.Logger

	mu  sync.Mutex
	run *execRun
}

// execRun is one recognizer process. stopping is set once the session no
// longer wants results from it.
type execRun struct {
	cmd      *exec.Cmd
	cancel   context.CancelFunc
	stopping bool
	kill     *time.Timer
}

type execLine struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Final      bool    `json:"final"`
	Error      string  `json:"error"`
}

func NewExecPlatform(command string, logger *slog.Logger) (*ExecPlatform, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse recognition command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognition command is empty")
	}
	return &ExecPlatform{
		cmd:    args,
		grace:  stopGrace,
		logger: logger.With(slog.String("platform", "exec")),
	}, nil
}

func (p *ExecPlatform) Available() bool {
	_, err := exec.LookPath(p.cmd[0])
	return err == nil
}

func (p *ExecPlatform) Start(ctx context.Context, settings Settings, l Listener) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if prev := p.run; prev != nil {
		if !prev.stopping {
			return ErrAlreadyActive
		}
		p.logger.Debug("killing recognizer that is still exiting", slog.Int("pid", prev.cmd.Process.Pid))
		prev.abort()
		p.run = nil
	}

	args := append([]string{}, p.cmd[1:]...)
	if settings.Language != "" {
		args = append(args, "--language", settings.Language)
	}
	args = append(args,
		"--interim="+strconv.FormatBool(settings.InterimResults),
		"--continuous="+strconv.FormatBool(settings.Continuous),
	)

	// The process outlives the caller's request context.
	procCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	command := exec.CommandContext(procCtx, p.cmd[0], args...)
	command.Stderr = os.Stderr
	stdout, err := command.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("recognition stdout: %w", err)
	}
	if err := command.Start(); err != nil {
		cancel()
		return fmt.Errorf("start recognition command: %w", err)
	}
	run := &execRun{cmd: command, cancel: cancel}
	p.run = run

	l.HandleStart()
	go p.read(run, stdout, l)
	return nil
}

func (p *ExecPlatform) read(run *execRun, stdout io.Reader, l Listener) {
	scanner := bufio.NewScanner(stdout)
	var results []Segment
	failed := false
	for scanner.Scan() {
		var line execLine
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			p.logger.Debug("skipping malformed recognizer output", slog.String("error", err.Error()))
			continue
		}
		if line.Error != "" {
			if !failed {
				failed = true
				l.HandleError(line.Error)
				p.stop(run)
			}
			continue
		}
		// Interim hypotheses replace the tail; a final one closes it.
		idx := len(results)
		if idx > 0 && !results[idx-1].IsFinal {
			idx--
			results = results[:idx]
		}
		results = append(results, Segment{Transcript: line.Transcript, Confidence: line.Confidence, IsFinal: line.Final})
		l.HandleResult(ResultEvent{ResultIndex: idx, Results: append([]Segment(nil), results...)})
	}

	err := run.cmd.Wait()

	p.mu.Lock()
	if p.run == run {
		p.run = nil
	}
	if run.kill != nil {
		run.kill.Stop()
	}
	run.cancel()
	stopping := run.stopping
	p.mu.Unlock()

	if err != nil && !failed && !stopping && !isInterrupt(err) {
		p.logger.Warn("recognizer exited", slog.String("error", err.Error()))
		l.HandleError(string(CauseServiceNotAllowed))
	}
	l.HandleEnd()
}

// Stop asks the recognizer to finish; it may still deliver a last result.
// A recognizer that has not exited within the grace period is killed.
func (p *ExecPlatform) Stop() error {
	p.mu.Lock()
	run := p.run
	p.mu.Unlock()
	if run == nil {
		return nil
	}
	return p.stop(run)
}

func (p *ExecPlatform) stop(run *execRun) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if run.stopping {
		return nil
	}
	run.stopping = true
	run.kill = time.AfterFunc(p.grace, run.cancel)
	if err := run.cmd.Process.Signal(os.Interrupt); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("interrupt recognizer: %w", err)
	}
	return nil
}

// Abort kills the recognizer without waiting for results.
func (p *ExecPlatform) Abort() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run != nil {
		p.run.abort()
	}
	return nil
}

func (r *execRun) abort() {
	r.stopping = true
	r.cancel()
}

func isInterrupt(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	status := exitErr.ProcessState.String()
	return status == "signal: interrupt" || exitErr.ExitCode() == 130
}

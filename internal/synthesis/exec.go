package synthesis

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/loqalabs/voicenav/internal/bus"
	"github.com/loqalabs/voicenav/internal/config"
	"github.com/loqalabs/voicenav/internal/protocol"
	"github.com/mattn/go-shellwords"
	"github.com/sony/gobreaker"
)

// AudioSink receives synthesized PCM for playback.
type AudioSink interface {
	Chunk(protocol.AudioChunk) error
	Done(protocol.TTSStatus) error
}

// ExecPlatform runs an external TTS command per utterance. The command
// reads a JSON request on stdin and writes JSON lines carrying base64 PCM.
type ExecPlatform struct {
	cmd        []string
	sampleRate int
	channels   int
	sink       AudioSink
	breaker    *gobreaker.CircuitBreaker
	logger     *slog.Logger

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type execRequest struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Rate       float64 `json:"rate"`
	Pitch      float64 `json:"pitch"`
	Volume     float64 `json:"volume"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
}

func NewExecPlatform(cfg config.SynthesisConfig, sink AudioSink, logger *slog.Logger) (*ExecPlatform, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("tts command empty")
	}
	logger = logger.With(slog.String("platform", "exec"))

	failures := uint32(cfg.BreakerFailures)
	if failures == 0 {
		failures = 3
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "tts-exec",
		MaxRequests: 1,
		Timeout:     time.Duration(cfg.BreakerTimeoutMS) * time.Millisecond,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &ExecPlatform{
		cmd:        args,
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
		sink:       sink,
		breaker:    breaker,
		logger:     logger,
	}, nil
}

func (e *ExecPlatform) Available() bool {
	_, err := exec.LookPath(e.cmd[0])
	return err == nil
}

func (e *ExecPlatform) Speak(u Utterance, l UtteranceListener) error {
	ctx, cancel := context.WithCancel(context.Background())
	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	e.gen++
	gen := e.gen
	e.cancel = cancel
	e.mu.Unlock()

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer e.clear(gen, cancel)

		l.HandleStart()
		interrupted := false
		_, err := e.breaker.Execute(func() (interface{}, error) {
			err := e.run(ctx, u)
			if ctx.Err() != nil {
				// cancellation is not a command failure
				interrupted = true
				return nil, nil
			}
			return nil, err
		})
		switch {
		case interrupted:
			l.HandleError(CodeInterrupted)
		case err == nil:
			l.HandleEnd()
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			l.HandleError(CodeServiceUnavailable)
		default:
			e.logger.Warn("tts command failed", slog.String("utterance_id", u.ID), slog.String("error", err.Error()))
			l.HandleError(CodeSynthesisFailed)
		}
	}()
	return nil
}

func (e *ExecPlatform) clear(gen uint64, cancel context.CancelFunc) {
	cancel()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen == gen {
		e.cancel = nil
	}
}

func (e *ExecPlatform) Cancel() {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close cancels playback and waits for running commands.
func (e *ExecPlatform) Close() {
	e.Cancel()
	e.wg.Wait()
}

func (e *ExecPlatform) run(ctx context.Context, u Utterance) error {
	payload, err := json.Marshal(execRequest{
		Text:       u.Text,
		Language:   u.Language,
		Rate:       u.Rate,
		Pitch:      u.Pitch,
		Volume:     u.Volume,
		SampleRate: e.sampleRate,
		Channels:   e.channels,
	})
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.cmd[0], e.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return err
	}
	if _, err := stdin.Write(payload); err != nil {
		_ = cmd.Wait()
		return err
	}
	stdin.Close()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	sequence := 0
	final := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			_ = cmd.Wait()
			return fmt.Errorf("decode tts output: %w", err)
		}
		pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			_ = cmd.Wait()
			return fmt.Errorf("decode pcm: %w", err)
		}
		e.emit(protocol.AudioChunk{
			UtteranceID: u.ID,
			Sequence:    sequence,
			SampleRate:  e.sampleRate,
			Channels:    e.channels,
			PCM:         pcm,
			Final:       resp.Final,
		})
		sequence++
		final = final || resp.Final
	}
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("tts command: %w", err)
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	if !final {
		e.emit(protocol.AudioChunk{UtteranceID: u.ID, Sequence: sequence, SampleRate: e.sampleRate, Channels: e.channels, Final: true})
	}
	if e.sink != nil {
		if err := e.sink.Done(protocol.TTSStatus{UtteranceID: u.ID, Completed: true, Timestamp: time.Now().UTC()}); err != nil {
			e.logger.Warn("failed to publish tts status", slog.String("error", err.Error()))
		}
	}
	return nil
}

func (e *ExecPlatform) emit(chunk protocol.AudioChunk) {
	if e.sink == nil {
		return
	}
	if err := e.sink.Chunk(chunk); err != nil {
		e.logger.Warn("failed to publish tts chunk", slog.String("error", err.Error()))
	}
}

// BusSink publishes audio on tts.audio and completion on tts.done.
type BusSink struct {
	Client *bus.Client
}

func (b BusSink) Chunk(chunk protocol.AudioChunk) error {
	return b.Client.PublishJSON(protocol.SubjectTTSAudio, chunk)
}

func (b BusSink) Done(status protocol.TTSStatus) error {
	return b.Client.PublishJSON(protocol.SubjectTTSDone, status)
}

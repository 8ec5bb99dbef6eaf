package recognition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/loqalabs/voicenav/internal/protocol"
	"github.com/nats-io/nats.go"
)

// BusPlatform follows transcripts published by an external speech pipeline
// on stt.text.partial and stt.text.final. Each listening session subscribes
// for its own lifetime; a final transcript ends it.
type BusPlatform struct {
	conn   *nats.Conn
	source string
	logger *slog.Logger

	mu       sync.Mutex
	subs     []*nats.Subscription
	listener Listener
	results  []Segment
}

// NewBusPlatform creates a platform on conn. source, when set, restricts the
// platform to transcripts carrying that session id.
func NewBusPlatform(conn *nats.Conn, source string, logger *slog.Logger) *BusPlatform {
	return &BusPlatform{conn: conn, source: source, logger: logger.With(slog.String("platform", "bus"))}
}

func (p *BusPlatform) Available() bool {
	return p.conn != nil && p.conn.Status() == nats.CONNECTED
}

func (p *BusPlatform) Start(_ context.Context, _ Settings, l Listener) error {
	p.mu.Lock()
	if p.listener != nil {
		p.mu.Unlock()
		return ErrAlreadyActive
	}
	partial, err := p.conn.Subscribe(protocol.SubjectTranscriptPartial, p.handle)
	if err != nil {
		p.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectTranscriptPartial, err)
	}
	final, err := p.conn.Subscribe(protocol.SubjectTranscriptFinal, p.handle)
	if err != nil {
		_ = partial.Unsubscribe()
		p.mu.Unlock()
		return fmt.Errorf("subscribe %s: %w", protocol.SubjectTranscriptFinal, err)
	}
	p.subs = []*nats.Subscription{partial, final}
	p.listener = l
	p.results = nil
	p.mu.Unlock()

	l.HandleStart()
	return nil
}

func (p *BusPlatform) handle(msg *nats.Msg) {
	var tr protocol.Transcript
	if err := json.Unmarshal(msg.Data, &tr); err != nil {
		p.logger.Warn("invalid transcript payload", slog.String("error", err.Error()))
		return
	}
	if p.source != "" && tr.SessionID != p.source {
		return
	}

	p.mu.Lock()
	l := p.listener
	if l == nil {
		p.mu.Unlock()
		return
	}
	if tr.Error != "" {
		p.mu.Unlock()
		l.HandleError(tr.Error)
		p.end()
		return
	}
	idx := len(p.results)
	if idx > 0 && !p.results[idx-1].IsFinal {
		idx--
		p.results = p.results[:idx]
	}
	p.results = append(p.results, Segment{Transcript: tr.Text, Confidence: tr.Confidence, IsFinal: !tr.Partial})
	ev := ResultEvent{ResultIndex: idx, Results: append([]Segment(nil), p.results...)}
	p.mu.Unlock()

	l.HandleResult(ev)
	if !tr.Partial {
		p.end()
	}
}

// end drops the subscriptions and reports the end of the session once.
func (p *BusPlatform) end() {
	p.mu.Lock()
	l := p.listener
	subs := p.subs
	p.listener = nil
	p.subs = nil
	p.mu.Unlock()

	for _, sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			p.logger.Debug("unsubscribe failed", slog.String("error", err.Error()))
		}
	}
	if l != nil {
		l.HandleEnd()
	}
}

func (p *BusPlatform) Stop() error {
	p.end()
	return nil
}

func (p *BusPlatform) Abort() error {
	p.end()
	return nil
}

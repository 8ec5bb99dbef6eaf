package recognition

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/loqalabs/voicenav/internal/bus"
	"github.com/loqalabs/voicenav/internal/config"
	"github.com/loqalabs/voicenav/internal/natsserver"
	"github.com/loqalabs/voicenav/internal/protocol"
)

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	cfg := config.Default().Bus
	cfg.Enabled = true
	cfg.Embedded = true
	cfg.Port = -1
	cfg.StoreDir = ""
	srv, err := natsserver.Start(cfg, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)
	cfg.Servers = []string{srv.ClientURL()}

	client, err := bus.Connect(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func publish(t *testing.T, client *bus.Client, subject string, tr protocol.Transcript) {
	t.Helper()
	if err := client.PublishJSON(subject, tr); err != nil {
		t.Fatalf("publish %s: %v", subject, err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatal(err)
	}
}

func TestBusPlatformFollowsConfiguredSource(t *testing.T) {
	client := startBus(t)
	p := NewBusPlatform(client.Conn(), "kiosk-1", newLogger())
	if !p.Available() {
		t.Fatal("expected platform to be available on a live connection")
	}

	l := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, l); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatal(err)
	}
	if got := client.Conn().NumSubscriptions(); got != 2 {
		t.Fatalf("expected 2 subscriptions, got %d", got)
	}
	if err := p.Start(context.Background(), Settings{}, newListenerLog()); err != ErrAlreadyActive {
		t.Fatalf("expected ErrAlreadyActive, got %v", err)
	}

	// A final from another source would end the session if it were accepted.
	publish(t, client, protocol.SubjectTranscriptFinal, protocol.Transcript{SessionID: "kiosk-2", Text: "sair", Confidence: 0.9})
	publish(t, client, protocol.SubjectTranscriptPartial, protocol.Transcript{SessionID: "kiosk-1", Text: "vol", Confidence: 0.4, Partial: true})
	l.waitResults(t, 1)
	publish(t, client, protocol.SubjectTranscriptFinal, protocol.Transcript{SessionID: "kiosk-1", Text: "voltar", Confidence: 0.9})
	l.waitEnd(t)

	events, errs := l.snapshot()
	if len(errs) != 0 {
		t.Fatalf("unexpected errors %v", errs)
	}
	if len(events) != 2 || events[1].ResultIndex != 0 {
		t.Fatalf("unexpected events %+v", events)
	}
	if want := []Segment{{Transcript: "voltar", Confidence: 0.9, IsFinal: true}}; !reflect.DeepEqual(events[1].Results, want) {
		t.Fatalf("final results = %+v, want %+v", events[1].Results, want)
	}
	if got := client.Conn().NumSubscriptions(); got != 0 {
		t.Fatalf("expected subscriptions to be dropped after the final, got %d", got)
	}

	publish(t, client, protocol.SubjectTranscriptFinal, protocol.Transcript{SessionID: "kiosk-1", Text: "inicio", Confidence: 0.9})
	time.Sleep(50 * time.Millisecond)
	if events, _ := l.snapshot(); len(events) != 2 {
		t.Fatalf("transcript after the final was delivered: %+v", events)
	}
}

func TestBusPlatformErrorEndsSession(t *testing.T) {
	client := startBus(t)
	p := NewBusPlatform(client.Conn(), "", newLogger())

	l := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, l); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatal(err)
	}
	publish(t, client, protocol.SubjectTranscriptFinal, protocol.Transcript{SessionID: "any", Error: string(CauseNetwork)})
	l.waitEnd(t)
	if _, errs := l.snapshot(); !reflect.DeepEqual(errs, []string{"network"}) {
		t.Fatalf("errors = %v, want [network]", errs)
	}

	// The platform is reusable once the session has ended.
	next := newListenerLog()
	if err := p.Start(context.Background(), Settings{}, next); err != nil {
		t.Fatalf("restart: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	next.waitEnd(t)
	if got := client.Conn().NumSubscriptions(); got != 0 {
		t.Fatalf("expected no subscriptions after stop, got %d", got)
	}
}

package command

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recorder struct {
	paths   []string
	effects []EffectID
	err     error
}

func (r *recorder) Navigate(_ context.Context, path string) error {
	r.paths = append(r.paths, path)
	return r.err
}

func (r *recorder) RunEffect(_ context.Context, effect EffectID) error {
	r.effects = append(r.effects, effect)
	return r.err
}

func (r *recorder) calls() int { return len(r.paths) + len(r.effects) }

func newDispatcher(t *testing.T, table *Table) (*Dispatcher, *recorder) {
	t.Helper()
	rec := &recorder{}
	return NewDispatcher(table, rec, rec, newLogger()), rec
}

func TestEveryExactPhraseDispatchesOnce(t *testing.T) {
	table := DefaultTable()
	for _, entry := range table.Entries() {
		d, rec := newDispatcher(t, table)
		out := d.Resolve(context.Background(), entry.Phrase)
		if !out.Matched || !out.Exact {
			t.Fatalf("%q: expected exact match, got %+v", entry.Phrase, out)
		}
		if *out.MatchedPhrase != entry.Phrase {
			t.Fatalf("%q: matched phrase %q", entry.Phrase, *out.MatchedPhrase)
		}
		if rec.calls() != 1 {
			t.Fatalf("%q: expected one invocation, got %d", entry.Phrase, rec.calls())
		}
		switch entry.Action.Kind {
		case KindNavigate:
			if rec.paths[0] != entry.Action.Path {
				t.Fatalf("%q: navigated to %q, want %q", entry.Phrase, rec.paths[0], entry.Action.Path)
			}
		case KindEffect:
			if rec.effects[0] != entry.Action.Effect {
				t.Fatalf("%q: ran %q, want %q", entry.Phrase, rec.effects[0], entry.Action.Effect)
			}
		}
	}
}

func TestExactMatchNormalizesInput(t *testing.T) {
	d, rec := newDispatcher(t, DefaultTable())
	if !d.ProcessCommand(context.Background(), "  Melhorar Currículo \n") {
		t.Fatal("expected match")
	}
	if len(rec.paths) != 1 || rec.paths[0] != "/curriculo/analise" {
		t.Fatalf("unexpected navigation: %v", rec.paths)
	}
}

func TestFallbackPicksFirstEntryInTableOrder(t *testing.T) {
	d, rec := newDispatcher(t, DefaultTable())
	out := d.Resolve(context.Background(), "quero melhorar meu currículo agora")
	if !out.Matched || out.Exact {
		t.Fatalf("expected fallback match, got %+v", out)
	}
	if *out.MatchedPhrase != "currículo" {
		t.Fatalf("expected first overlapping phrase %q, got %q", "currículo", *out.MatchedPhrase)
	}
	if len(rec.paths) != 1 || rec.paths[0] != "/curriculo/analise" {
		t.Fatalf("unexpected navigation: %v", rec.paths)
	}
}

func TestFallbackCommandInsideKey(t *testing.T) {
	table, err := NewTable([]Entry{
		{Phrase: "treinar entrevista", Action: Navigate("/entrevista/simulacao")},
		{Phrase: "entrevista", Action: Navigate("/entrevista")},
	})
	if err != nil {
		t.Fatal(err)
	}
	d, rec := newDispatcher(t, table)

	// exact wins over the earlier overlapping entry
	if out := d.Resolve(context.Background(), "entrevista"); !out.Exact || rec.paths[0] != "/entrevista" {
		t.Fatalf("expected exact match on entrevista, got %+v %v", out, rec.paths)
	}
	// "treinar" is a substring of the first key
	out := d.Resolve(context.Background(), "treinar")
	if !out.Matched || *out.MatchedPhrase != "treinar entrevista" {
		t.Fatalf("expected command-inside-key match, got %+v", out)
	}
}

func TestTieBreakFollowsInsertionOrder(t *testing.T) {
	a, _ := NewTable([]Entry{
		{Phrase: "entrevista", Action: Navigate("/a")},
		{Phrase: "treinar entrevista", Action: Navigate("/b")},
	})
	b, _ := NewTable([]Entry{
		{Phrase: "treinar entrevista", Action: Navigate("/b")},
		{Phrase: "entrevista", Action: Navigate("/a")},
	})
	input := "eu quero treinar entrevista hoje"

	da, ra := newDispatcher(t, a)
	db, rb := newDispatcher(t, b)
	da.Resolve(context.Background(), input)
	db.Resolve(context.Background(), input)
	if ra.paths[0] != "/a" || rb.paths[0] != "/b" {
		t.Fatalf("tie-break should follow table order: %v %v", ra.paths, rb.paths)
	}
}

func TestNoMatchInvokesNothing(t *testing.T) {
	d, rec := newDispatcher(t, DefaultTable())
	for _, input := range []string{"xyz123", "", "   "} {
		if d.ProcessCommand(context.Background(), input) {
			t.Fatalf("%q: expected no match", input)
		}
	}
	if rec.calls() != 0 {
		t.Fatalf("expected no invocations, got %d", rec.calls())
	}
}

func TestCollaboratorFailureStillCountsAsExecuted(t *testing.T) {
	rec := &recorder{err: errors.New("dom gone")}
	d := NewDispatcher(DefaultTable(), rec, rec, newLogger())
	if !d.ProcessCommand(context.Background(), "modo escuro") {
		t.Fatal("expected match despite effect failure")
	}
	if len(rec.effects) != 1 || rec.effects[0] != EffectDarkModeOn {
		t.Fatalf("unexpected effects: %v", rec.effects)
	}
}

func TestNilCollaboratorsAreTolerated(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, newLogger())
	if !d.ProcessCommand(context.Background(), "voltar") {
		t.Fatal("expected match")
	}
}

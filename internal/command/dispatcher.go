package command

import (
	"context"
	"log/slog"
)

// Navigator pushes a route onto the presentation shell's history.
type Navigator interface {
	Navigate(ctx context.Context, path string) error
}

// EffectRunner executes a local UI effect in the presentation shell.
type EffectRunner interface {
	RunEffect(ctx context.Context, effect EffectID) error
}

// Dispatcher resolves commands against a Table and invokes the resolved
// action exactly once. It keeps no state between calls.
type Dispatcher struct {
	table   *Table
	nav     Navigator
	effects EffectRunner
	logger  *slog.Logger
}

func NewDispatcher(table *Table, nav Navigator, effects EffectRunner, logger *slog.Logger) *Dispatcher {
	if table == nil {
		table = DefaultTable()
	}
	return &Dispatcher{
		table:   table,
		nav:     nav,
		effects: effects,
		logger:  logger.With(slog.String("component", "dispatcher")),
	}
}

func (d *Dispatcher) Table() *Table { return d.table }

// Match resolves command without invoking anything: exact phrase first, then
// the first table entry overlapping the command as a substring either way.
func (d *Dispatcher) Match(command string) Outcome {
	clean := Normalize(command)
	if clean == "" {
		return Outcome{}
	}
	if action, ok := d.table.Lookup(clean); ok {
		return matched(clean, action, true)
	}
	if entry, ok := d.table.FirstOverlap(clean); ok {
		return matched(entry.Phrase, entry.Action, false)
	}
	return Outcome{}
}

// Resolve matches command and invokes the resolved action.
func (d *Dispatcher) Resolve(ctx context.Context, command string) Outcome {
	out := d.Match(command)
	if !out.Matched {
		d.logger.Debug("command not matched", slog.String("command", command))
		return out
	}
	d.invoke(ctx, *out.Action)
	d.logger.Info("command dispatched",
		slog.String("command", command),
		slog.String("phrase", *out.MatchedPhrase),
		slog.String("action", out.Action.String()),
		slog.Bool("exact", out.Exact))
	return out
}

// ProcessCommand reports whether command resolved to an action.
func (d *Dispatcher) ProcessCommand(ctx context.Context, command string) bool {
	return d.Resolve(ctx, command).Matched
}

func (d *Dispatcher) invoke(ctx context.Context, action Action) {
	var err error
	switch action.Kind {
	case KindNavigate:
		if d.nav != nil {
			err = d.nav.Navigate(ctx, action.Path)
		}
	case KindEffect:
		if d.effects != nil {
			err = d.effects.RunEffect(ctx, action.Effect)
		}
	}
	if err != nil {
		// the action counts as executed; failures are only logged
		d.logger.Warn("action delivery failed", slog.String("action", action.String()), slogError(err))
	}
}

func matched(phrase string, action Action, exact bool) Outcome {
	return Outcome{Matched: true, MatchedPhrase: &phrase, Action: &action, Exact: exact}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}

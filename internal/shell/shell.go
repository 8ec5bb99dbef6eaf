package shell

import (
	"context"
	"errors"
	"log/slog"

	"github.com/loqalabs/voicenav/internal/command"
	"github.com/loqalabs/voicenav/internal/notify"
)

// Shell is the presentation side: it moves between routes, runs local UI
// effects, shows notifications and mirrors the voice state.
type Shell interface {
	command.Navigator
	command.EffectRunner
	Notify(ctx context.Context, ev notify.Event) error
	PublishState(ctx context.Context, state any) error
}

// Multi fans every call out to several shells.
type Multi []Shell

func (m Multi) Navigate(ctx context.Context, path string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Navigate(ctx, path))
	}
	return errors.Join(errs...)
}

func (m Multi) RunEffect(ctx context.Context, effect command.EffectID) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RunEffect(ctx, effect))
	}
	return errors.Join(errs...)
}

func (m Multi) Notify(ctx context.Context, ev notify.Event) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Notify(ctx, ev))
	}
	return errors.Join(errs...)
}

func (m Multi) PublishState(ctx context.Context, state any) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.PublishState(ctx, state))
	}
	return errors.Join(errs...)
}

// Forward delivers notification events to s until events is closed or ctx
// is done.
func Forward(ctx context.Context, events <-chan notify.Event, s Shell, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := s.Notify(ctx, ev); err != nil {
				logger.Warn("failed to forward notification",
					slog.String("id", ev.Notification.ID),
					slog.String("error", err.Error()))
			}
		}
	}
}

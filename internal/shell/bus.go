package shell

import (
	"context"
	"time"

	"github.com/loqalabs/voicenav/internal/bus"
	"github.com/loqalabs/voicenav/internal/command"
	"github.com/loqalabs/voicenav/internal/notify"
	"github.com/loqalabs/voicenav/internal/protocol"
)

// BusPublisher mirrors shell commands on the ui.* subjects for shells
// attached to NATS.
type BusPublisher struct {
	client *bus.Client
}

func NewBusPublisher(client *bus.Client) *BusPublisher {
	return &BusPublisher{client: client}
}

func (b *BusPublisher) Navigate(_ context.Context, path string) error {
	return b.client.PublishJSON(protocol.SubjectNavigate, protocol.NavigateCommand{Path: path, Timestamp: time.Now().UTC()})
}

func (b *BusPublisher) RunEffect(_ context.Context, effect command.EffectID) error {
	return b.client.PublishJSON(protocol.SubjectEffect, protocol.EffectCommand{Effect: string(effect), Timestamp: time.Now().UTC()})
}

func (b *BusPublisher) Notify(_ context.Context, ev notify.Event) error {
	return b.client.PublishJSON(protocol.SubjectNotification, notificationMessage(ev))
}

func (b *BusPublisher) PublishState(_ context.Context, state any) error {
	return b.client.PublishJSON(protocol.SubjectState, state)
}

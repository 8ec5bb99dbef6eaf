package notify

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Variant selects how the shell renders a notification.
type Variant string

const (
	VariantDefault     Variant = "default"
	VariantSuccess     Variant = "success"
	VariantWarning     Variant = "warning"
	VariantDestructive Variant = "destructive"
	VariantInfo        Variant = "info"
)

const DefaultDuration = 5 * time.Second

// Notification is a transient message shown by the presentation shell.
type Notification struct {
	ID          string        `json:"id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Variant     Variant       `json:"variant"`
	Duration    time.Duration `json:"-"`
	CreatedAt   time.Time     `json:"created_at"`
}

type notificationJSON struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Variant     Variant   `json:"variant"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// MarshalJSON writes Duration as whole milliseconds in duration_ms, the unit
// every other surface uses.
func (n Notification) MarshalJSON() ([]byte, error) {
	return json.Marshal(notificationJSON{
		ID:          n.ID,
		Title:       n.Title,
		Description: n.Description,
		Variant:     n.Variant,
		DurationMS:  n.Duration.Milliseconds(),
		CreatedAt:   n.CreatedAt,
	})
}

func (n *Notification) UnmarshalJSON(data []byte) error {
	var v notificationJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = Notification{
		ID:          v.ID,
		Title:       v.Title,
		Description: v.Description,
		Variant:     v.Variant,
		Duration:    time.Duration(v.DurationMS) * time.Millisecond,
		CreatedAt:   v.CreatedAt,
	}
	return nil
}

// EventKind tells subscribers what happened to a notification.
type EventKind string

const (
	EventAdded     EventKind = "added"
	EventDismissed EventKind = "dismissed"
)

type Event struct {
	Kind         EventKind    `json:"kind"`
	Notification Notification `json:"notification"`
}

// Center keeps the active notifications and dismisses them when their
// duration elapses.
type Center struct {
	defaultDuration time.Duration
	maxRetained     int
	logger          *slog.Logger

	mu     sync.Mutex
	items  []Notification
	timers map[string]*time.Timer
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewCenter(defaultDuration time.Duration, maxRetained int, logger *slog.Logger) *Center {
	if defaultDuration <= 0 {
		defaultDuration = DefaultDuration
	}
	return &Center{
		defaultDuration: defaultDuration,
		maxRetained:     maxRetained,
		logger:          logger.With(slog.String("component", "notify")),
		timers:          make(map[string]*time.Timer),
		subs:            make(map[int]chan Event),
	}
}

// Notify registers n and returns it with its id, variant, duration and
// creation time filled in.
func (c *Center) Notify(n Notification) Notification {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Variant == "" {
		n.Variant = VariantDefault
	}
	if n.Duration <= 0 {
		n.Duration = c.defaultDuration
	}
	n.CreatedAt = time.Now().UTC()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return n
	}
	c.items = append(c.items, n)
	id := n.ID
	c.timers[id] = time.AfterFunc(n.Duration, func() { c.Dismiss(id) })
	var evicted []Notification
	if c.maxRetained > 0 && len(c.items) > c.maxRetained {
		over := len(c.items) - c.maxRetained
		evicted = append(evicted, c.items[:over]...)
		c.items = append([]Notification(nil), c.items[over:]...)
		for _, old := range evicted {
			c.stopTimerLocked(old.ID)
		}
	}
	c.broadcastLocked(Event{Kind: EventAdded, Notification: n})
	for _, old := range evicted {
		c.broadcastLocked(Event{Kind: EventDismissed, Notification: old})
	}
	c.mu.Unlock()

	c.logger.Debug("notification raised",
		slog.String("id", n.ID),
		slog.String("variant", string(n.Variant)),
		slog.String("title", n.Title))
	return n
}

// Dismiss removes the notification with id. It reports whether it existed.
func (c *Center) Dismiss(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, n := range c.items {
		if n.ID != id {
			continue
		}
		c.items = append(c.items[:i:i], c.items[i+1:]...)
		c.stopTimerLocked(id)
		c.broadcastLocked(Event{Kind: EventDismissed, Notification: n})
		return true
	}
	return false
}

// DismissAll clears every notification and returns how many were removed.
func (c *Center) DismissAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := c.items
	c.items = nil
	for _, n := range items {
		c.stopTimerLocked(n.ID)
		c.broadcastLocked(Event{Kind: EventDismissed, Notification: n})
	}
	return len(items)
}

// List returns the active notifications, oldest first.
func (c *Center) List() []Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notification(nil), c.items...)
}

// Subscribe returns a channel of notification events and a function that
// cancels the subscription. Slow subscribers miss events.
func (c *Center) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close stops every timer and closes all subscriptions.
func (c *Center) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for id := range c.timers {
		c.stopTimerLocked(id)
	}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

func (c *Center) stopTimerLocked(id string) {
	if t, ok := c.timers[id]; ok {
		t.Stop()
		delete(c.timers, id)
	}
}

func (c *Center) broadcastLocked(ev Event) {
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			c.logger.Debug("dropping notification event for slow subscriber", slog.String("id", ev.Notification.ID))
		}
	}
}

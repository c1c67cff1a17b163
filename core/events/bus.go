// Package events publishes document lifecycle events to in-process
// subscribers. The runtime emits "<slug>.created", "<slug>.updated" and
// "<slug>.deleted" for collections and "globals.<slug>.updated" for globals
// after each successful operation.
package events

import (
	"context"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/contentcore/core/schema"
)

// Event is one document change.
type Event struct {
	// Name is "<slug>.<verb>", e.g. "pages.created", or
	// "globals.<slug>.<verb>" for globals.
	Name string

	// Collection or Global is the slug of the changed document type.
	Collection string
	Global     string

	Operation schema.Operation

	// ID is empty for globals.
	ID string

	// Doc is the document after the change; PreviousDoc before it.
	Doc         map[string]any
	PreviousDoc map[string]any
}

// globalsPrefix keeps global events apart from collection events of the
// same slug.
const globalsPrefix = "globals."

// Name builds a collection event name from a slug and a verb.
func Name(slug, verb string) string {
	return slug + "." + verb
}

// GlobalName builds a global event name from a slug and a verb.
func GlobalName(slug, verb string) string {
	return globalsPrefix + slug + "." + verb
}

// Handler processes an event.
type Handler func(ctx context.Context, event Event) error

// Bus is a synchronous publish/subscribe bus.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	logger   zerolog.Logger
}

// NewBus creates a new event bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[string][]Handler),
		logger:   logger,
	}
}

// Subscribe registers a handler for an event name. Patterns:
//   - "pages.created" - exact match
//   - "pages.*" - all events of a collection
//   - "globals.header.*" - all events of a global
//   - "globals.*" - all global events
//   - "*" - all events
func (b *Bus) Subscribe(pattern string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[pattern] = append(b.handlers[pattern], handler)
}

// Publish calls every matching handler in order: exact, then wildcards
// from the most specific to "*". Handler errors are logged and do not stop delivery.
func (b *Bus) Publish(ctx context.Context, event Event) {
	matched := b.match(event.Name)

	b.logger.Debug().
		Str("event", event.Name).
		Str("id", event.ID).
		Int("handlers", len(matched)).
		Msg("event published")

	for _, handler := range matched {
		if err := handler(ctx, event); err != nil {
			b.logger.Error().
				Err(err).
				Str("event", event.Name).
				Msg("event handler error")
		}
	}
}

// PublishAsync publishes from a new goroutine.
func (b *Bus) PublishAsync(ctx context.Context, event Event) {
	go b.Publish(ctx, event)
}

// HasSubscribers reports whether any handler matches the event name.
func (b *Bus) HasSubscribers(name string) bool {
	return len(b.match(name)) > 0
}

func (b *Bus) match(name string) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var matched []Handler
	matched = append(matched, b.handlers[name]...)

	for prefix := name; ; {
		i := strings.LastIndex(prefix, ".")
		if i <= 0 {
			break
		}
		prefix = prefix[:i]
		matched = append(matched, b.handlers[prefix+".*"]...)
	}

	if name != "*" {
		matched = append(matched, b.handlers["*"]...)
	}
	return matched
}

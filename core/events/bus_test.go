package events

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestBus_PublishOrder(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var order []string
	record := func(name string) Handler {
		return func(ctx context.Context, event Event) error {
			order = append(order, name)
			return nil
		}
	}

	bus.Subscribe("*", record("all"))
	bus.Subscribe("pages.*", record("pages"))
	bus.Subscribe("pages.created", record("exact-1"))
	bus.Subscribe("pages.created", record("exact-2"))
	bus.Subscribe("posts.created", record("other"))

	bus.Publish(context.Background(), Event{Name: Name("pages", "created"), Collection: "pages", ID: "1"})

	want := []string{"exact-1", "exact-2", "pages", "all"}
	if len(order) != len(want) {
		t.Fatalf("handlers called = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %s, want %s", i, order[i], want[i])
		}
	}
}

func TestBus_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	called := false
	bus.Subscribe("pages.deleted", func(ctx context.Context, event Event) error {
		return errors.New("handler failed")
	})
	bus.Subscribe("pages.deleted", func(ctx context.Context, event Event) error {
		called = true
		return nil
	})

	bus.Publish(context.Background(), Event{Name: "pages.deleted"})

	if !called {
		t.Error("second handler should run after the first fails")
	}
}

func TestBus_EventPayload(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got Event
	bus.Subscribe("pages.updated", func(ctx context.Context, event Event) error {
		got = event
		return nil
	})

	bus.Publish(context.Background(), Event{
		Name:        "pages.updated",
		Collection:  "pages",
		ID:          "abc",
		Doc:         map[string]any{"title": "new"},
		PreviousDoc: map[string]any{"title": "old"},
	})

	if got.ID != "abc" || got.Doc["title"] != "new" || got.PreviousDoc["title"] != "old" {
		t.Errorf("event = %+v", got)
	}
}

func TestBus_HasSubscribers(t *testing.T) {
	tests := []struct {
		name      string
		subscribe string
		event     string
		want      bool
	}{
		{"exact", "pages.created", "pages.created", true},
		{"slug wildcard", "pages.*", "pages.updated", true},
		{"global wildcard", "*", "posts.deleted", true},
		{"other slug", "pages.*", "posts.created", false},
		{"global exact", "globals.header.updated", "globals.header.updated", true},
		{"global slug wildcard", "globals.header.*", "globals.header.updated", true},
		{"all globals", "globals.*", "globals.header.updated", true},
		{"collection wildcard skips global", "header.*", "globals.header.updated", false},
		{"global wildcard skips collection", "globals.*", "header.updated", false},
		{"none", "", "pages.created", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewBus(zerolog.Nop())
			if tt.subscribe != "" {
				bus.Subscribe(tt.subscribe, func(context.Context, Event) error { return nil })
			}
			if got := bus.HasSubscribers(tt.event); got != tt.want {
				t.Errorf("HasSubscribers(%q) = %v, want %v", tt.event, got, tt.want)
			}
		})
	}
}

func TestBus_PublishAsync(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var count atomic.Int32
	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe("pages.created", func(ctx context.Context, event Event) error {
		count.Add(1)
		wg.Done()
		return nil
	})

	bus.PublishAsync(context.Background(), Event{Name: "pages.created"})

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("async handler did not run")
	}
	if count.Load() != 1 {
		t.Errorf("count = %d, want 1", count.Load())
	}
}

func TestBus_ConcurrentSubscribeAndPublish(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var count atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			bus.Subscribe("*", func(context.Context, Event) error {
				count.Add(1)
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), Event{Name: "pages.created"})
		}()
	}
	wg.Wait()
}

package bootstrap

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/artpar/contentcore/core/events"
	"github.com/artpar/contentcore/core/runtime"
)

// RegisterHooks subscribes the application-level event handlers.
func RegisterHooks(rt *runtime.Runtime, logger zerolog.Logger) {
	rt.Events().Subscribe("*", changeLog(logger))
	logger.Debug().Msg("event hooks registered")
}

// changeLog records every document change.
func changeLog(logger zerolog.Logger) events.Handler {
	return func(_ context.Context, event events.Event) error {
		e := logger.Info().
			Str("event", event.Name).
			Str("operation", string(event.Operation))
		if event.Collection != "" {
			e = e.Str("collection", event.Collection).Str("id", event.ID)
		} else {
			e = e.Str("global", event.Global)
		}
		e.Msg("document changed")
		return nil
	}
}

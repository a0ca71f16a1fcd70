// Package tasks runs fire-and-forget work that must not block request
// handling but must still finish before the process exits.
package tasks

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/geosvc/arcproxy/internal/observability"
)

type Runner struct {
	log zerolog.Logger
	wg  sync.WaitGroup
}

func NewRunner(log zerolog.Logger) *Runner {
	return &Runner{log: log}
}

// Go schedules fn on its own goroutine with a context detached from the
// request, so the work survives the response being sent. A panic is logged
// and absorbed rather than taking the process down.
func (r *Runner) Go(name string, fn func(ctx context.Context)) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Error().Str("task", name).Interface("panic", rec).Msg("background task panicked")
				observability.IncBackgroundTask(name, "panic")
			}
		}()
		fn(context.Background())
		observability.IncBackgroundTask(name, "ok")
	}()
}

// Drain blocks until every scheduled task finishes or ctx expires. Called
// once during shutdown, after the listener has stopped accepting requests.
func (r *Runner) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

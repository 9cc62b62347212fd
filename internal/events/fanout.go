package events

import (
	"context"
	"errors"

	"github.com/nerrad567/gray-logic-enocean/internal/rocker"
)

// Fanout delivers each event to every sink in order. One failing sink does
// not stop delivery to the others; all failures are joined.
type Fanout []rocker.EventSink

// Publish implements rocker.EventSink.
func (f Fanout) Publish(ctx context.Context, e rocker.Event) error {
	var errs []error
	for _, sink := range f {
		if err := sink.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package notify

import (
	"context"
	"errors"

	"github.com/AntonStoeckl/library-circulation-go/circulation"
)

// Fanout delivers every event to all its notifiers in order.
// A failing notifier does not stop delivery to the others; all errors are joined.
type Fanout []circulation.Notifier

// Notify calls every notifier.
func (f Fanout) Notify(ctx context.Context, event circulation.Event) error {
	var errs []error

	for _, notifier := range f {
		if notifier == nil {
			continue
		}

		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

var _ circulation.Notifier = Fanout(nil)

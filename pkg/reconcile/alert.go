package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

// ErrInconsistentConfirmation is returned when a user entry was confirmed
// but no availability exists for its URL.
var ErrInconsistentConfirmation = errors.New("confirmed url has no availability")

type AlertStore interface {
	AvailabilityByURL(ctx context.Context, rawURL string) (*storage.Availability, error)
	ResolveUserEntry(ctx context.Context, entryID int64, counter int, a storage.Alert) (bool, error)
}

// Associator turns a confirmed user entry into an alert.
type Associator struct {
	store AlertStore
	log   sources.Logger
}

func NewAssociator(store AlertStore, log sources.Logger) *Associator {
	return &Associator{store: store, log: sources.OrNop(log)}
}

// Associate links the entry's user to the availability at the entry URL and
// marks the entry processed with counter, in one transaction. It reports
// whether a new alert row was written; a user already watching the
// availability gets no duplicate.
func (a *Associator) Associate(ctx context.Context, e storage.UserEntry, counter int) (bool, error) {
	av, err := a.store.AvailabilityByURL(ctx, e.URL)
	if errors.Is(err, storage.ErrNotFound) {
		a.log.Errorf("user entry %d confirmed but %s has no availability", e.ID, e.URL)
		return false, ErrInconsistentConfirmation
	}
	if err != nil {
		return false, fmt.Errorf("looking up %s: %w", e.URL, err)
	}

	created, err := a.store.ResolveUserEntry(ctx, e.ID, counter, storage.Alert{
		UserID:          e.UserID,
		AvailabilityID:  av.ID,
		MaxPrice:        e.MaxPrice,
		AlertByEmail:    e.AlertByEmail,
		AlertByTelegram: e.AlertByTelegram,
	})
	if err != nil {
		return false, err
	}
	if created {
		a.log.Infof("alert created for user %d on availability %d (max price %.2f)", e.UserID, av.ID, e.MaxPrice)
	} else {
		a.log.Debugf("user %d already watches availability %d", e.UserID, av.ID)
	}
	return created, nil
}

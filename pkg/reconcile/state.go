package reconcile

import (
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

func bump(counter int) int {
	if counter >= storage.MaxAttempts {
		return storage.MaxAttempts
	}
	return counter + 1
}

func channelSuccess(e storage.ChannelEntry) storage.ChannelTransition {
	return storage.ChannelTransition{Counter: bump(e.Counter), Processed: true}
}

// channelFailure records what the adapter saw. A hard reason invalidates
// the entry at once, otherwise only the last attempt does.
func channelFailure(e storage.ChannelEntry, reason sources.Reason, rec *sources.Record) storage.ChannelTransition {
	counter := bump(e.Counter)
	d := &storage.ChannelDiagnostics{ErrorMessage: string(reason)}
	if rec != nil {
		d.Name = rec.Name
		d.Code = rec.Code
		d.Category = rec.Category
		d.PartNumber = rec.PartNumber
		d.Manufacturer = rec.Manufacturer
	}
	return storage.ChannelTransition{
		Counter:     counter,
		Invalid:     reason.Hard() || counter >= storage.MaxAttempts,
		Diagnostics: d,
	}
}

func userSuccessCounter(e storage.UserEntry) int {
	return bump(e.Counter)
}

// userFailure ignores the reason: user entries only become invalid once
// their attempts run out.
func userFailure(e storage.UserEntry) storage.UserTransition {
	counter := bump(e.Counter)
	return storage.UserTransition{Counter: counter, Invalid: counter >= storage.MaxAttempts}
}

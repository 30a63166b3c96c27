// Package reconcile re-verifies queued product URLs against their source
// and turns confirmations into availabilities and alerts.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sw33tLie/stockfinder/internal/utils"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

// DefaultBatchLimit caps how many entries of one source are verified per tick.
const DefaultBatchLimit = 5

type Store interface {
	AlertStore
	PendingChannelEntries(ctx context.Context) ([]storage.ChannelEntry, error)
	PendingUserEntries(ctx context.Context) ([]storage.UserEntry, error)
	MarkChannelProcessed(ctx context.Context, id int64) error
	MarkUserProcessed(ctx context.Context, id int64) error
	UpdateChannelEntry(ctx context.Context, id int64, t storage.ChannelTransition) error
	UpdateUserEntry(ctx context.Context, id int64, t storage.UserTransition) error
}

// Materializer registers a confirmed record. *upsert.Engine implements it.
type Materializer interface {
	Materialize(ctx context.Context, src sources.Source, rec sources.Record) (bool, error)
}

type Config struct {
	BatchLimit   int
	MinDelay     time.Duration
	MaxDelay     time.Duration
	BatchTimeout time.Duration
	// Source restricts the tick to one source. Entries of other sources are
	// left untouched; entries no source claims are still marked processed.
	Source string
}

// Counts summarizes one queue within a tick.
type Counts struct {
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
	Invalid   int `json:"invalid"`
	Retried   int `json:"retried"`
	Deferred  int `json:"deferred"`
	Untouched int `json:"untouched"`
}

type TickResult struct {
	ID      string `json:"id"`
	Channel Counts `json:"channel"`
	User    Counts `json:"user"`
}

type Reconciler struct {
	store    Store
	registry *sources.Registry
	engine   Materializer
	assoc    *Associator
	cfg      Config
	log      sources.Logger

	sleep func(ctx context.Context, d time.Duration) error
	delay func(min, max time.Duration) time.Duration
}

func New(store Store, registry *sources.Registry, engine Materializer, cfg Config, log sources.Logger) *Reconciler {
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	log = sources.OrNop(log)
	return &Reconciler{
		store:    store,
		registry: registry,
		engine:   engine,
		assoc:    NewAssociator(store, log),
		cfg:      cfg,
		log:      log,
		sleep:    utils.Sleep,
		delay:    utils.RandomDelay,
	}
}

type outcome int

const (
	untouched outcome = iota
	processed
	invalid
	retried
)

func (c *Counts) add(o outcome) {
	switch o {
	case processed:
		c.Processed++
	case invalid:
		c.Invalid++
	case retried:
		c.Retried++
	default:
		c.Untouched++
	}
}

type ref struct {
	id      int64
	url     string
	counter int
}

// queue binds the shared tick flow to one of the two discovery queues.
type queue struct {
	name       string
	unresolved func(ctx context.Context, id int64) error
	existing   func(ctx context.Context, id int64) (outcome, error)
	success    func(ctx context.Context, id int64, src sources.Source, rec sources.Record) (outcome, error)
	failure    func(ctx context.Context, id int64, reason sources.Reason, rec *sources.Record) (outcome, error)
}

// Tick runs one reconciliation pass: channel entries first, then user
// entries. Per-entry failures are logged and never abort the tick.
func (r *Reconciler) Tick(ctx context.Context) (*TickResult, error) {
	res := &TickResult{ID: uuid.NewString()}
	var errs []error

	channel, err := r.store.PendingChannelEntries(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("loading channel entries: %w", err))
	} else {
		refs := make([]ref, len(channel))
		for i, e := range channel {
			refs[i] = ref{id: e.ID, url: e.URL, counter: e.Counter}
		}
		res.Channel = r.run(ctx, res.ID, r.channelQueue(channel), refs)
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	users, err := r.store.PendingUserEntries(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("loading user entries: %w", err))
	} else {
		refs := make([]ref, len(users))
		for i, e := range users {
			refs[i] = ref{id: e.ID, url: e.URL, counter: e.Counter}
		}
		res.User = r.run(ctx, res.ID, r.userQueue(users), refs)
	}

	r.log.Infof("[%s] tick done: channel %+v, user %+v", res.ID, res.Channel, res.User)
	return res, errors.Join(errs...)
}

func (r *Reconciler) run(ctx context.Context, tick string, q queue, entries []ref) Counts {
	c := Counts{Pending: len(entries)}
	batches := map[string][]ref{}
	adapters := map[string]sources.Adapter{}
	filter := strings.ToLower(strings.TrimSpace(r.cfg.Source))

	for _, e := range entries {
		if ctx.Err() != nil {
			c.Untouched++
			continue
		}
		a, ok := r.registry.Resolve(e.url)
		if !ok {
			r.log.Warnf("[%s] %s entry %d: no source for %s, marking processed", tick, q.name, e.id, e.url)
			c.add(r.persist(tick, q.name, e, func() (outcome, error) {
				return processed, q.unresolved(ctx, e.id)
			}))
			continue
		}
		name := strings.ToLower(a.Source().Name)
		if filter != "" && name != filter {
			c.Untouched++
			continue
		}

		_, err := r.store.AvailabilityByURL(ctx, e.url)
		if err == nil {
			r.log.Debugf("[%s] %s entry %d: %s already known", tick, q.name, e.id, e.url)
			c.add(r.persist(tick, q.name, e, func() (outcome, error) {
				return q.existing(ctx, e.id)
			}))
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			r.log.Errorf("[%s] %s entry %d: looking up %s: %v", tick, q.name, e.id, e.url, err)
			c.Untouched++
			continue
		}

		if len(batches[name]) >= r.cfg.BatchLimit {
			c.Deferred++
			continue
		}
		batches[name] = append(batches[name], e)
		adapters[name] = a
	}

	names := make([]string, 0, len(batches))
	for name := range batches {
		names = append(names, name)
	}
	sort.Strings(names)

	for i, name := range names {
		if i > 0 {
			if err := r.sleep(ctx, r.delay(r.cfg.MinDelay, r.cfg.MaxDelay)); err != nil {
				for _, rest := range names[i:] {
					c.Untouched += len(batches[rest])
				}
				break
			}
		}
		r.runBatch(ctx, tick, q, adapters[name], batches[name], &c)
	}
	return c
}

func (r *Reconciler) runBatch(ctx context.Context, tick string, q queue, a sources.Adapter, batch []ref, c *Counts) {
	src := a.Source()
	reqs := make([]sources.Request, len(batch))
	for i, e := range batch {
		reqs[i] = sources.Request{EntryID: e.id, URL: e.url}
	}

	bctx, cancel := ctx, context.CancelFunc(func() {})
	if r.cfg.BatchTimeout > 0 {
		bctx, cancel = context.WithTimeout(ctx, r.cfg.BatchTimeout)
	}
	results, err := a.ScrapeProducts(bctx, reqs)
	cancel()
	if err != nil {
		r.log.Warnf("[%s] %s batch of %d for %s failed, counters unchanged: %v", tick, q.name, len(batch), src.Name, err)
		c.Untouched += len(batch)
		return
	}

	byID := make(map[int64]sources.Result, len(results))
	for _, res := range results {
		byID[res.Request.EntryID] = res
	}

	for _, e := range batch {
		res, ok := byID[e.id]
		if !ok {
			r.log.Warnf("[%s] %s entry %d (%s): %s returned no result, counter unchanged", tick, q.name, e.id, e.url, src.Name)
			c.Untouched++
			continue
		}
		if res.OK() {
			rec := *res.Record
			rec.URL = e.url
			c.add(r.persist(tick, q.name, e, func() (outcome, error) {
				return q.success(ctx, e.id, src, rec)
			}))
			continue
		}
		reason := res.Reason
		if reason == sources.ReasonNone {
			reason = sources.ReasonProductDataNotFound
		}
		code := ""
		if res.Record != nil {
			code = res.Record.Code
		}
		r.log.Warnf("[%s] %s entry %d (%s, code %q, counter %d): %s", tick, q.name, e.id, e.url, code, e.counter, reason)
		c.add(r.persist(tick, q.name, e, func() (outcome, error) {
			return q.failure(ctx, e.id, reason, res.Record)
		}))
	}
}

// persist runs one transition, logging instead of propagating failures.
func (r *Reconciler) persist(tick, queue string, e ref, fn func() (outcome, error)) outcome {
	o, err := fn()
	switch {
	case err == nil:
		return o
	case errors.Is(err, storage.ErrNotPending):
		r.log.Debugf("[%s] %s entry %d no longer pending", tick, queue, e.id)
	default:
		r.log.Errorf("[%s] %s entry %d (%s, counter %d): %v", tick, queue, e.id, e.url, e.counter, err)
	}
	return untouched
}

func (r *Reconciler) channelQueue(entries []storage.ChannelEntry) queue {
	byID := make(map[int64]storage.ChannelEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	fail := func(ctx context.Context, id int64, reason sources.Reason, rec *sources.Record) (outcome, error) {
		t := channelFailure(byID[id], reason, rec)
		if err := r.store.UpdateChannelEntry(ctx, id, t); err != nil {
			return untouched, err
		}
		if t.Invalid {
			return invalid, nil
		}
		return retried, nil
	}

	return queue{
		name:       "channel",
		unresolved: r.store.MarkChannelProcessed,
		existing: func(ctx context.Context, id int64) (outcome, error) {
			return processed, r.store.MarkChannelProcessed(ctx, id)
		},
		success: func(ctx context.Context, id int64, src sources.Source, rec sources.Record) (outcome, error) {
			if _, err := r.engine.Materialize(ctx, src, rec); err != nil {
				r.log.Warnf("channel entry %d (%s, code %q): not added: %v", id, rec.URL, rec.Code, err)
				return fail(ctx, id, sources.ReasonProductNotAdded, &rec)
			}
			return processed, r.store.UpdateChannelEntry(ctx, id, channelSuccess(byID[id]))
		},
		failure: fail,
	}
}

func (r *Reconciler) userQueue(entries []storage.UserEntry) queue {
	byID := make(map[int64]storage.UserEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}

	fail := func(ctx context.Context, id int64, _ sources.Reason, _ *sources.Record) (outcome, error) {
		t := userFailure(byID[id])
		if err := r.store.UpdateUserEntry(ctx, id, t); err != nil {
			return untouched, err
		}
		if t.Invalid {
			return invalid, nil
		}
		return retried, nil
	}

	return queue{
		name:       "user",
		unresolved: r.store.MarkUserProcessed,
		existing: func(ctx context.Context, id int64) (outcome, error) {
			e := byID[id]
			if _, err := r.assoc.Associate(ctx, e, e.Counter); err != nil {
				return untouched, err
			}
			return processed, nil
		},
		success: func(ctx context.Context, id int64, src sources.Source, rec sources.Record) (outcome, error) {
			e := byID[id]
			if _, err := r.engine.Materialize(ctx, src, rec); err != nil {
				r.log.Warnf("user entry %d (%s, code %q): not added: %v", id, rec.URL, rec.Code, err)
				return fail(ctx, id, sources.ReasonProductNotAdded, &rec)
			}
			_, err := r.assoc.Associate(ctx, e, userSuccessCounter(e))
			if errors.Is(err, ErrInconsistentConfirmation) {
				return fail(ctx, id, sources.ReasonProductNotAdded, &rec)
			}
			if err != nil {
				return untouched, err
			}
			return processed, nil
		},
		failure: fail,
	}
}

// Package upsert decides what every scraped record does to the catalogue:
// update a known availability, register a new one, queue it for
// confirmation, or nothing at all.
package upsert

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/sw33tLie/stockfinder/pkg/catalog"
	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

// ErrInvalidCandidate wraps structural validation failures.
var ErrInvalidCandidate = errors.New("invalid candidate")

// Store is the part of storage.DB the engine writes to.
type Store interface {
	RegisterProduct(ctx context.Context, reg storage.ProductRegistration) (*storage.Availability, error)
	EnqueueChannelEntry(ctx context.Context, url, sourceName string) (bool, error)
}

type Kind int

const (
	Rejected Kind = iota
	Updated
	Registered
	Queued
)

func (k Kind) String() string {
	switch k {
	case Updated:
		return "updated"
	case Registered:
		return "registered"
	case Queued:
		return "queued"
	default:
		return "rejected"
	}
}

// Decision is the outcome for one record. Update is set for Updated,
// Availability for Registered and Reason for Rejected.
type Decision struct {
	Kind         Kind
	Update       *storage.StockUpdate
	Availability *storage.Availability
	Reason       string
}

// Snapshot is the set of codes already stored for one source, taken once
// per batch run.
type Snapshot map[string]bool

func (s Snapshot) Has(code string) bool { return s[code] }

func (s Snapshot) Add(code string) { s[code] = true }

type candidate struct {
	URL      string `validate:"required,url"`
	Code     string `validate:"required"`
	Name     string `validate:"required"`
	Category string `validate:"required,category"`
}

type Engine struct {
	store    Store
	validate *validator.Validate
	log      sources.Logger
}

func NewEngine(store Store, log sources.Logger) *Engine {
	v := validator.New()
	if err := v.RegisterValidation("category", validCategory); err != nil {
		panic(err)
	}
	return &Engine{store: store, validate: v, log: sources.OrNop(log)}
}

func validCategory(fl validator.FieldLevel) bool {
	_, ok := catalog.ResolveCategory(fl.Field().String())
	return ok
}

// Decide applies the first matching rule to rec. Exactly one side effect
// happens per call and none on rejection. Updated tuples are returned, not
// written, so callers can flush them in bulk.
func (e *Engine) Decide(ctx context.Context, src sources.Source, rec sources.Record, snap Snapshot) (Decision, error) {
	if snap.Has(rec.Code) {
		if rec.Price <= 0 {
			return Decision{Kind: Rejected, Reason: "known code without price"}, nil
		}
		return Decision{Kind: Updated, Update: &storage.StockUpdate{
			Price:    rec.Price,
			Stock:    rec.Stock,
			Code:     rec.Code,
			SourceID: src.ID,
		}}, nil
	}

	reg, err := e.candidate(src, rec)
	if err != nil {
		e.log.Debugf("[%s] rejecting %s: %v", src.Name, rec.URL, err)
		return Decision{Kind: Rejected, Reason: err.Error()}, nil
	}

	if rec.AddProduct && rec.PartNumber != "" {
		a, err := e.store.RegisterProduct(ctx, reg)
		switch {
		case err == nil:
			snap.Add(rec.Code)
			return Decision{Kind: Registered, Availability: a}, nil
		case errors.Is(err, storage.ErrAvailabilityExists):
			return Decision{Kind: Rejected, Reason: "availability already exists"}, nil
		case ctx.Err() != nil:
			return Decision{}, ctx.Err()
		default:
			e.log.Warnf("[%s] registering %s failed, queueing instead: %v", src.Name, reg.URL, err)
		}
	}

	inserted, err := e.store.EnqueueChannelEntry(ctx, reg.URL, src.Name)
	if err != nil {
		return Decision{}, fmt.Errorf("queueing %s: %w", reg.URL, err)
	}
	if !inserted {
		return Decision{Kind: Rejected, Reason: "already queued"}, nil
	}
	return Decision{Kind: Queued}, nil
}

// Materialize registers a record confirmed by a product page scrape. An
// availability that already exists counts as success, with created false.
func (e *Engine) Materialize(ctx context.Context, src sources.Source, rec sources.Record) (bool, error) {
	reg, err := e.candidate(src, rec)
	if err != nil {
		return false, err
	}
	if _, err := e.store.RegisterProduct(ctx, reg); err != nil {
		if errors.Is(err, storage.ErrAvailabilityExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (e *Engine) candidate(src sources.Source, rec sources.Record) (storage.ProductRegistration, error) {
	c := candidate{
		URL:      storage.NormalizeURL(rec.URL),
		Code:     rec.Code,
		Name:     rec.Name,
		Category: rec.Category,
	}
	if err := e.validate.Struct(c); err != nil {
		return storage.ProductRegistration{}, fmt.Errorf("%w: %v", ErrInvalidCandidate, err)
	}
	category, _ := catalog.ResolveCategory(rec.Category)
	return storage.ProductRegistration{
		SourceID:     src.ID,
		Code:         rec.Code,
		URL:          c.URL,
		Name:         rec.Name,
		Category:     category,
		PartNumber:   rec.PartNumber,
		Manufacturer: rec.Manufacturer,
		Price:        rec.Price,
		Stock:        rec.Stock,
		Refurbished:  rec.Refurbished,
	}, nil
}

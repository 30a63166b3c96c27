package upsert

import (
	"context"
	"errors"
	"testing"

	"github.com/sw33tLie/stockfinder/pkg/sources"
	"github.com/sw33tLie/stockfinder/pkg/storage"
)

type fakeStore struct {
	registered  []storage.ProductRegistration
	queued      []string
	registerErr error
	byURL       map[string]bool
	queuedURL   map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{byURL: map[string]bool{}, queuedURL: map[string]bool{}}
}

func (f *fakeStore) RegisterProduct(_ context.Context, reg storage.ProductRegistration) (*storage.Availability, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	if f.byURL[reg.URL] {
		return nil, storage.ErrAvailabilityExists
	}
	f.byURL[reg.URL] = true
	f.registered = append(f.registered, reg)
	return &storage.Availability{ID: int64(len(f.registered)), URL: reg.URL, Code: reg.Code}, nil
}

func (f *fakeStore) EnqueueChannelEntry(_ context.Context, url, _ string) (bool, error) {
	if f.queuedURL[url] {
		return false, nil
	}
	f.queuedURL[url] = true
	f.queued = append(f.queued, url)
	return true, nil
}

var shop = sources.Source{ID: 3, Name: "coolmod"}

func rec(code string) sources.Record {
	return sources.Record{
		Code:     code,
		Name:     "RTX 4070",
		URL:      "https://www.coolmod.com/p/" + code + "/",
		Category: "Tarjetas Gráficas",
		Price:    599.9,
		Stock:    true,
	}
}

func TestDecide(t *testing.T) {
	withPN := rec("N1")
	withPN.AddProduct = true
	withPN.PartNumber = "RTX4070"

	noPN := rec("N2")
	noPN.AddProduct = true

	noPrice := rec("K1")
	noPrice.Price = sources.UnknownPrice

	noName := rec("N3")
	noName.Name = ""

	badCategory := rec("N4")
	badCategory.Category = "Juguetes"

	tests := []struct {
		name string
		rec  sources.Record
		kind Kind
	}{
		{"known code updates", rec("K1"), Updated},
		{"known code without price", noPrice, Rejected},
		{"unknown with part number registers", withPN, Registered},
		{"unknown without part number queues", noPN, Queued},
		{"not authoritative queues", rec("N5"), Queued},
		{"missing name", noName, Rejected},
		{"unknown category", badCategory, Rejected},
	}

	for _, tt := range tests {
		store := newFakeStore()
		e := NewEngine(store, nil)
		snap := Snapshot{"K1": true}
		d, err := e.Decide(context.Background(), shop, tt.rec, snap)
		if err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if d.Kind != tt.kind {
			t.Fatalf("%s: got %s (%s), want %s", tt.name, d.Kind, d.Reason, tt.kind)
		}
		effects := len(store.registered) + len(store.queued)
		switch tt.kind {
		case Updated:
			if d.Update == nil || d.Update.SourceID != shop.ID || d.Update.Code != tt.rec.Code || effects != 0 {
				t.Fatalf("%s: unexpected update %+v, effects %d", tt.name, d.Update, effects)
			}
		case Rejected:
			if effects != 0 || d.Reason == "" {
				t.Fatalf("%s: rejection must have a reason and no side effect", tt.name)
			}
		default:
			if effects != 1 {
				t.Fatalf("%s: expected exactly one side effect, got %d", tt.name, effects)
			}
		}
	}
}

func TestDecideRegistrationJoinsSnapshot(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, nil)
	snap := Snapshot{}

	r := rec("N1")
	r.AddProduct = true
	r.PartNumber = "RTX4070"
	d, _ := e.Decide(context.Background(), shop, r, snap)
	if d.Kind != Registered {
		t.Fatalf("expected registered, got %s", d.Kind)
	}
	if store.registered[0].Category != "GPU" || store.registered[0].URL != "https://www.coolmod.com/p/N1" {
		t.Fatalf("candidate not normalized: %+v", store.registered[0])
	}

	// The same code later in the batch now updates in place.
	d, _ = e.Decide(context.Background(), shop, r, snap)
	if d.Kind != Updated {
		t.Fatalf("expected update on second sight, got %s", d.Kind)
	}
}

func TestDecideConflictsAndFallback(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, nil)

	r := rec("N1")
	r.AddProduct = true
	r.PartNumber = "RTX4070"
	store.byURL["https://www.coolmod.com/p/N1"] = true
	d, err := e.Decide(context.Background(), shop, r, Snapshot{})
	if err != nil || d.Kind != Rejected {
		t.Fatalf("existing availability should be rejected silently, got %s %v", d.Kind, err)
	}

	store.registerErr = errors.New("disk full")
	r.Code, r.URL = "N2", "https://www.coolmod.com/p/N2"
	d, err = e.Decide(context.Background(), shop, r, Snapshot{})
	if err != nil || d.Kind != Queued {
		t.Fatalf("registration failure should queue, got %s %v", d.Kind, err)
	}

	d, err = e.Decide(context.Background(), shop, r, Snapshot{})
	if err != nil || d.Kind != Rejected {
		t.Fatalf("already queued should be rejected, got %s %v", d.Kind, err)
	}
}

func TestMaterialize(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, nil)

	created, err := e.Materialize(context.Background(), shop, rec("M1"))
	if err != nil || !created {
		t.Fatalf("first materialize: created=%v err=%v", created, err)
	}
	created, err = e.Materialize(context.Background(), shop, rec("M1"))
	if err != nil || created {
		t.Fatalf("conflict must be success: created=%v err=%v", created, err)
	}

	bad := rec("M2")
	bad.Category = ""
	if _, err := e.Materialize(context.Background(), shop, bad); !errors.Is(err, ErrInvalidCandidate) {
		t.Fatalf("expected ErrInvalidCandidate, got %v", err)
	}
}

func TestNewEngineCategoryRule(t *testing.T) {
	e := NewEngine(newFakeStore(), nil)
	type row struct {
		Category string `validate:"category"`
	}
	if err := e.validate.Struct(row{Category: "Tarjetas Gráficas"}); err != nil {
		t.Fatalf("alias rejected: %v", err)
	}
	if err := e.validate.Struct(row{Category: "Juguetes"}); err == nil {
		t.Fatal("unknown category accepted")
	}
}

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gosimple/slug"
	"github.com/jmoiron/sqlx"
)

const availabilityColumns = "id, product_id, source_id, code, url, name, price, stock, category, part_number, manufacturer, refurbished"

// KnownCodes returns every code stored for a source. Callers fetch it once
// per batch run rather than per record.
func (d *DB) KnownCodes(ctx context.Context, sourceID int64) (map[string]bool, error) {
	var codes []string
	if err := d.sql.SelectContext(ctx, &codes, d.sql.Rebind("SELECT DISTINCT code FROM availabilities WHERE source_id = ?"), sourceID); err != nil {
		return nil, err
	}
	known := make(map[string]bool, len(codes))
	for _, c := range codes {
		known[c] = true
	}
	return known, nil
}

// AvailabilityByURL looks an availability up by its normalized URL.
func (d *DB) AvailabilityByURL(ctx context.Context, rawURL string) (*Availability, error) {
	var a Availability
	err := d.sql.GetContext(ctx, &a, d.sql.Rebind("SELECT "+availabilityColumns+" FROM availabilities WHERE url = ?"), NormalizeURL(rawURL))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// RegisterProduct inserts product, part number alias and availability in
// one transaction. The product is reused when the part number is already
// catalogued. A URL or (source, code) conflict rolls everything back and
// returns ErrAvailabilityExists.
func (d *DB) RegisterProduct(ctx context.Context, reg ProductRegistration) (*Availability, error) {
	reg.URL = NormalizeURL(reg.URL)
	if reg.URL == "" || reg.Code == "" || reg.Category == "" {
		return nil, errors.New("registration requires url, code and category")
	}

	tx, err := d.sql.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var productID *int64
	if reg.PartNumber != "" {
		var id int64
		id, err = d.productForPartNumber(ctx, tx, reg)
		if err != nil {
			return nil, fmt.Errorf("resolving product for part number %s: %w", reg.PartNumber, err)
		}
		productID = &id
	}

	a := &Availability{
		ProductID:    productID,
		SourceID:     reg.SourceID,
		Code:         reg.Code,
		URL:          reg.URL,
		Name:         reg.Name,
		Price:        reg.Price,
		Stock:        reg.Stock,
		Category:     reg.Category,
		PartNumber:   reg.PartNumber,
		Manufacturer: reg.Manufacturer,
		Refurbished:  reg.Refurbished,
	}
	err = tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO availabilities(product_id, source_id, code, url, name, price, stock, category, part_number, manufacturer, refurbished, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
ON CONFLICT DO NOTHING
RETURNING id`), productID, a.SourceID, a.Code, a.URL, a.Name, a.Price, boolToInt(a.Stock), a.Category, a.PartNumber, a.Manufacturer, boolToInt(a.Refurbished)).Scan(&a.ID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrAvailabilityExists
		return nil, err
	}
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return a, nil
}

func (d *DB) productForPartNumber(ctx context.Context, tx *sqlx.Tx, reg ProductRegistration) (int64, error) {
	var id int64
	err := tx.GetContext(ctx, &id, tx.Rebind("SELECT product_id FROM product_part_numbers WHERE part_number = ?"), reg.PartNumber)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	name := reg.Name
	if name == "" {
		name = reg.PartNumber
	}
	if err := tx.QueryRowxContext(ctx, tx.Rebind(`INSERT INTO products(name, slug, category, manufacturer, created_at) VALUES(?,?,?,?,CURRENT_TIMESTAMP) RETURNING id`),
		name, slug.Make(name), reg.Category, reg.Manufacturer).Scan(&id); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, tx.Rebind(`INSERT INTO product_part_numbers(product_id, part_number) VALUES(?,?)`), id, reg.PartNumber); err != nil {
		return 0, err
	}
	return id, nil
}

// ListOptions controls selection when listing availabilities.
type ListOptions struct {
	SourceID    int64
	InStockOnly bool
	Limit       int
}

// ListAvailabilities returns availabilities matching filters, newest first.
func (d *DB) ListAvailabilities(ctx context.Context, opts ListOptions) ([]Availability, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	if opts.SourceID != 0 {
		where += " AND source_id = ?"
		args = append(args, opts.SourceID)
	}
	if opts.InStockOnly {
		where += " AND stock = 1"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)

	out := []Availability{}
	q := "SELECT " + availabilityColumns + " FROM availabilities " + where + " ORDER BY id DESC LIMIT ?"
	if err := d.sql.SelectContext(ctx, &out, d.sql.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// UpdateMultipleRows applies many rows to availabilities in as few
// statements as possible. Each row holds one value per column, and
// keyColumns name the subset of columns used to match existing rows. The
// remaining columns are overwritten. All chunks run in one transaction so a
// failure leaves no partial update. An empty input is a no-op.
func (d *DB) UpdateMultipleRows(ctx context.Context, columns, keyColumns []string, rows [][]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	if len(columns) == 0 || len(keyColumns) == 0 {
		return fmt.Errorf("bulk update needs columns and key columns")
	}
	for _, c := range columns {
		if _, ok := d.dialect.bulkTypes[c]; !ok {
			return fmt.Errorf("column %q is not updatable in bulk", c)
		}
	}
	isKey := map[string]bool{}
	for _, k := range keyColumns {
		if !contains(columns, k) {
			return fmt.Errorf("key column %q missing from columns", k)
		}
		isKey[k] = true
	}
	var sets, matches []string
	for _, c := range columns {
		if isKey[c] {
			matches = append(matches, fmt.Sprintf("availabilities.%s = data.%s", c, c))
		} else {
			sets = append(sets, fmt.Sprintf("%s = data.%s", c, c))
		}
	}
	if len(sets) == 0 {
		return fmt.Errorf("bulk update has nothing to set")
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	casts := make([]string, len(columns))
	for i, c := range columns {
		casts[i] = fmt.Sprintf("CAST(? AS %s)", d.dialect.bulkTypes[c])
	}
	tuple := "(" + strings.Join(casts, ", ") + ")"

	tx, err := d.sql.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for start := 0; start < len(rows); start += d.batchSize {
		end := start + d.batchSize
		if end > len(rows) {
			end = len(rows)
		}
		chunk := rows[start:end]

		tuples := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)*len(columns))
		for i, row := range chunk {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d has %d values, want %d", start+i, len(row), len(columns))
			}
			tuples[i] = tuple
			args = append(args, row...)
		}

		q := fmt.Sprintf("WITH data(%s) AS (VALUES %s) UPDATE availabilities SET %s FROM data WHERE %s",
			strings.Join(columns, ", "),
			strings.Join(tuples, ", "),
			strings.Join(sets, ", "),
			strings.Join(matches, " AND "),
		)
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return fmt.Errorf("bulk update rows %d-%d: %w", start, end-1, err)
		}
	}
	return tx.Commit()
}

// SyncStock writes the price and stock of already-known codes. When the
// same (code, source) appears twice the last tuple wins.
func (d *DB) SyncStock(ctx context.Context, updates []StockUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	index := map[string]int{}
	var deduped []StockUpdate
	for _, u := range updates {
		k := stockKey(u.Code, u.SourceID)
		if i, ok := index[k]; ok {
			deduped[i] = u
			continue
		}
		index[k] = len(deduped)
		deduped = append(deduped, u)
	}

	rows := make([][]interface{}, len(deduped))
	for i, u := range deduped {
		rows[i] = []interface{}{u.Price, boolToInt(u.Stock), u.Code, u.SourceID}
	}
	return d.UpdateMultipleRows(ctx, []string{"price", "stock", "code", "source_id"}, []string{"code", "source_id"}, rows)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

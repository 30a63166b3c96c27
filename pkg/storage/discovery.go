package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

const pendingClause = "processed = 0 AND invalid = 0 AND counter < ?"

// EnqueueChannelEntry queues a URL for background discovery. The returned
// bool is false when the URL was already queued, in any state.
func (d *DB) EnqueueChannelEntry(ctx context.Context, rawURL, sourceName string) (bool, error) {
	u := NormalizeURL(rawURL)
	if u == "" {
		return false, errors.New("empty url")
	}
	res, err := d.sql.ExecContext(ctx, d.sql.Rebind(`INSERT INTO discovery_channel_entries(url, source_name, created_at, updated_at)
VALUES(?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP) ON CONFLICT(url) DO NOTHING`), u, strings.ToLower(sourceName))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// EnqueueUserEntry queues a user's watch request and returns its id.
func (d *DB) EnqueueUserEntry(ctx context.Context, e UserEntry) (int64, error) {
	u := NormalizeURL(e.URL)
	if u == "" {
		return 0, errors.New("empty url")
	}
	var id int64
	err := d.sql.QueryRowxContext(ctx, d.sql.Rebind(`INSERT INTO discovery_user_entries(url, user_id, max_price, alert_by_email, alert_by_telegram, created_at, updated_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP) RETURNING id`),
		u, e.UserID, e.MaxPrice, boolToInt(e.AlertByEmail), boolToInt(e.AlertByTelegram)).Scan(&id)
	return id, err
}

// PendingChannelEntries loads every channel entry that is neither
// processed nor invalid and still has attempts left, oldest first.
func (d *DB) PendingChannelEntries(ctx context.Context) ([]ChannelEntry, error) {
	var out []ChannelEntry
	err := d.sql.SelectContext(ctx, &out, d.sql.Rebind(`SELECT id, url, source_name, counter, processed, invalid, name, code, category, part_number, manufacturer, error_message
FROM discovery_channel_entries WHERE `+pendingClause+` ORDER BY id`), MaxAttempts)
	return out, err
}

// PendingUserEntries is PendingChannelEntries for the user queue.
func (d *DB) PendingUserEntries(ctx context.Context) ([]UserEntry, error) {
	var out []UserEntry
	err := d.sql.SelectContext(ctx, &out, d.sql.Rebind(`SELECT id, url, user_id, max_price, alert_by_email, alert_by_telegram, counter, processed, invalid
FROM discovery_user_entries WHERE `+pendingClause+` ORDER BY id`), MaxAttempts)
	return out, err
}

// MarkChannelProcessed sets processed without touching the counter.
func (d *DB) MarkChannelProcessed(ctx context.Context, id int64) error {
	return d.execPending(ctx, `UPDATE discovery_channel_entries SET processed = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND processed = 0 AND invalid = 0`, id)
}

// MarkUserProcessed sets processed without touching the counter.
func (d *DB) MarkUserProcessed(ctx context.Context, id int64) error {
	return d.execPending(ctx, `UPDATE discovery_user_entries SET processed = 1, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND processed = 0 AND invalid = 0`, id)
}

// UpdateChannelEntry persists a channel transition. Diagnostics, when
// present, overwrite the recorded extraction fields.
func (d *DB) UpdateChannelEntry(ctx context.Context, id int64, t ChannelTransition) error {
	if err := checkTransition(t.Counter, t.Processed, t.Invalid); err != nil {
		return err
	}
	if t.Diagnostics == nil {
		return d.execPending(ctx, `UPDATE discovery_channel_entries SET counter = ?, processed = ?, invalid = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND processed = 0 AND invalid = 0`, t.Counter, boolToInt(t.Processed), boolToInt(t.Invalid), id)
	}
	dg := t.Diagnostics
	return d.execPending(ctx, `UPDATE discovery_channel_entries SET counter = ?, processed = ?, invalid = ?,
name = ?, code = ?, category = ?, part_number = ?, manufacturer = ?, error_message = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND processed = 0 AND invalid = 0`,
		t.Counter, boolToInt(t.Processed), boolToInt(t.Invalid),
		dg.Name, dg.Code, dg.Category, dg.PartNumber, dg.Manufacturer, dg.ErrorMessage, id)
}

// UpdateUserEntry persists a user transition.
func (d *DB) UpdateUserEntry(ctx context.Context, id int64, t UserTransition) error {
	if err := checkTransition(t.Counter, t.Processed, t.Invalid); err != nil {
		return err
	}
	return d.execPending(ctx, `UPDATE discovery_user_entries SET counter = ?, processed = ?, invalid = ?, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND processed = 0 AND invalid = 0`, t.Counter, boolToInt(t.Processed), boolToInt(t.Invalid), id)
}

func checkTransition(counter int, processed, invalid bool) error {
	if counter < 0 || counter > MaxAttempts {
		return fmt.Errorf("counter %d out of range", counter)
	}
	if processed && invalid {
		return errors.New("entry cannot be both processed and invalid")
	}
	return nil
}

func (d *DB) execPending(ctx context.Context, q string, args ...interface{}) error {
	res, err := d.sql.ExecContext(ctx, d.sql.Rebind(q), args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotPending
	}
	return nil
}

// GetChannelEntry returns a channel entry in any state.
func (d *DB) GetChannelEntry(ctx context.Context, id int64) (*ChannelEntry, error) {
	var e ChannelEntry
	err := d.sql.GetContext(ctx, &e, d.sql.Rebind(`SELECT id, url, source_name, counter, processed, invalid, name, code, category, part_number, manufacturer, error_message
FROM discovery_channel_entries WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// GetUserEntry returns a user entry in any state.
func (d *DB) GetUserEntry(ctx context.Context, id int64) (*UserEntry, error) {
	var e UserEntry
	err := d.sql.GetContext(ctx, &e, d.sql.Rebind(`SELECT id, url, user_id, max_price, alert_by_email, alert_by_telegram, counter, processed, invalid
FROM discovery_user_entries WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

package storage

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
)

const insertAlertQuery = `INSERT INTO alerts(user_id, availability_id, max_price, alert_by_email, alert_by_telegram, created_at)
VALUES(?, ?, ?, ?, ?, CURRENT_TIMESTAMP) ON CONFLICT(user_id, availability_id) DO NOTHING`

// InsertAlert links a user to an availability. It reports false when the
// user already watches that availability.
func (d *DB) InsertAlert(ctx context.Context, a Alert) (bool, error) {
	return insertAlert(ctx, d.sql, a)
}

// ResolveUserEntry creates the alert for a user entry and marks the entry
// processed with the given counter in one transaction. An entry that is no
// longer pending rolls the alert back and returns ErrNotPending.
func (d *DB) ResolveUserEntry(ctx context.Context, entryID int64, counter int, a Alert) (bool, error) {
	if err := checkTransition(counter, true, false); err != nil {
		return false, err
	}
	tx, err := d.sql.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	created, err := insertAlert(ctx, tx, a)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE discovery_user_entries SET counter = ?, processed = 1, updated_at = CURRENT_TIMESTAMP
WHERE id = ? AND processed = 0 AND invalid = 0`), counter, entryID)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, err
	} else if n == 0 {
		return false, ErrNotPending
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return created, nil
}

func insertAlert(ctx context.Context, ex sqlx.ExtContext, a Alert) (bool, error) {
	res, err := ex.ExecContext(ctx, ex.Rebind(insertAlertQuery),
		a.UserID, a.AvailabilityID, a.MaxPrice, boolToInt(a.AlertByEmail), boolToInt(a.AlertByTelegram))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListAlerts returns the alerts of a user joined with their availability.
// A zero userID lists every alert.
func (d *DB) ListAlerts(ctx context.Context, userID int64) ([]AlertView, error) {
	q := `SELECT al.id, al.user_id, al.availability_id, al.max_price, al.alert_by_email, al.alert_by_telegram,
a.url, a.name, a.price, a.stock
FROM alerts al JOIN availabilities a ON a.id = al.availability_id`
	args := []interface{}{}
	if userID != 0 {
		q += " WHERE al.user_id = ?"
		args = append(args, userID)
	}
	q += " ORDER BY al.id"
	out := []AlertView{}
	if err := d.sql.SelectContext(ctx, &out, d.sql.Rebind(q), args...); err != nil {
		return nil, err
	}
	return out, nil
}

// Event log operations for the SQLite backend: idempotent batch append,
// cursor queries, and administrative truncation.
package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/meshline/syncd/pkg/types"
)

// Query limit bounds. Requests outside [1, maxQueryLimit] are clamped;
// a zero or negative limit uses defaultQueryLimit.
const (
	defaultQueryLimit = 500
	maxQueryLimit     = 1000
)

// AppendEvents inserts a batch of events atomically and returns copies with
// their server-assigned seq, in input order. The insert is idempotent per
// event id: an event whose id already exists is not reinserted and its
// original seq is returned, not an error. On a storage failure nothing is
// applied.
//
// owner records which credential appended each new event; it scopes
// non-privileged reads. Duplicates keep their original owner.
func (b *Backend) AppendEvents(events []*types.Event, owner string) ([]*types.Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureAttached(); err != nil {
		return nil, err
	}
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			return nil, err
		}
	}

	tx, err := b.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback()

	out := make([]*types.Event, 0, len(events))
	for _, ev := range events {
		payload, err := marshalPayload(ev)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(
			`INSERT INTO events (event_id, item_id, event_type, ts, client_id, owner, payload)
             VALUES (?, ?, ?, ?, ?, ?, ?)
             ON CONFLICT(event_id) DO NOTHING`,
			ev.ID, ev.ItemID, ev.Type, ev.Timestamp, ev.ClientID, owner, payload,
		); err != nil {
			return nil, fmt.Errorf("insert event %s: %w", ev.ID, err)
		}

		stored := ev.Clone()
		if err := tx.QueryRow(
			"SELECT seq FROM events WHERE event_id = ?", ev.ID,
		).Scan(&stored.Seq); err != nil {
			return nil, fmt.Errorf("read seq for event %s: %w", ev.ID, err)
		}
		out = append(out, stored)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return out, nil
}

// QueryEvents returns events with seq > sinceSeq in ascending seq order.
// The limit is clamped to [1, 1000]; zero or negative means the default of
// 500. A non-empty owner restricts the result to that owner's events; the
// empty owner is privileged and sees the full log.
func (b *Backend) QueryEvents(sinceSeq int64, limit int, owner string) ([]*types.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.ensureAttached(); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}

	var rows *sql.Rows
	var err error
	if owner == "" {
		rows, err = b.db.Query(
			`SELECT seq, event_id, item_id, event_type, ts, client_id, payload
             FROM events WHERE seq > ? ORDER BY seq ASC LIMIT ?`,
			sinceSeq, limit,
		)
	} else {
		rows, err = b.db.Query(
			`SELECT seq, event_id, item_id, event_type, ts, client_id, payload
             FROM events WHERE seq > ? AND owner = ? ORDER BY seq ASC LIMIT ?`,
			sinceSeq, owner, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// AllEvents returns the full log in seq order, without owner filtering.
// This backs the canonical state projection.
func (b *Backend) AllEvents() ([]*types.Event, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.ensureAttached(); err != nil {
		return nil, err
	}

	rows, err := b.db.Query(
		`SELECT seq, event_id, item_id, event_type, ts, client_id, payload
         FROM events ORDER BY seq ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []*types.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}

// PurgeEvents truncates the event log and resets the seq counter.
// Administrative use only (tests and resets).
func (b *Backend) PurgeEvents() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureAttached(); err != nil {
		return err
	}

	tx, err := b.db.Begin()
	if err != nil {
		return fmt.Errorf("begin purge: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM events"); err != nil {
		return fmt.Errorf("purge events: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM sqlite_sequence WHERE name = 'events'"); err != nil {
		return fmt.Errorf("reset seq counter: %w", err)
	}
	return tx.Commit()
}

// marshalPayload serializes the event's tagged payload to JSON, or NULL for
// item_deleted.
func marshalPayload(ev *types.Event) (any, error) {
	switch {
	case ev.Create != nil:
		data, err := json.Marshal(ev.Create)
		if err != nil {
			return nil, fmt.Errorf("marshal create payload: %w", err)
		}
		return string(data), nil
	case ev.Change != nil:
		data, err := json.Marshal(ev.Change)
		if err != nil {
			return nil, fmt.Errorf("marshal change payload: %w", err)
		}
		return string(data), nil
	default:
		return nil, nil
	}
}

// scanEvent hydrates one event row, decoding the payload into the union
// member matching the event type.
func scanEvent(rows *sql.Rows) (*types.Event, error) {
	var ev types.Event
	var payload sql.NullString
	if err := rows.Scan(&ev.Seq, &ev.ID, &ev.ItemID, &ev.Type, &ev.Timestamp, &ev.ClientID, &payload); err != nil {
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if payload.Valid && payload.String != "" {
		switch ev.Type {
		case types.EventItemCreated:
			ev.Create = &types.CreateAttrs{}
			if err := json.Unmarshal([]byte(payload.String), ev.Create); err != nil {
				return nil, fmt.Errorf("decode create payload for %s: %w", ev.ID, err)
			}
		case types.EventFieldChanged:
			ev.Change = &types.FieldChange{}
			if err := json.Unmarshal([]byte(payload.String), ev.Change); err != nil {
				return nil, fmt.Errorf("decode change payload for %s: %w", ev.ID, err)
			}
		}
	}
	return &ev, nil
}

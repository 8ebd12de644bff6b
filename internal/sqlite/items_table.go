// Legacy item rows for the field-merge sync protocol. These rows are held
// independently of the event log; each row carries the per-field shadow
// timestamps the one-shot merge compares against.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/meshline/syncd/pkg/types"
)

const itemColumns = `item_id, parent_id, item_type, text, important, completed_at,
    created_at, updated_at, position, level, indented, archived, archived_at,
    ts_text, ts_important, ts_completed, ts_position, ts_type, ts_level,
    ts_indented, ts_archived, ts_parent`

// GetItem retrieves a legacy item row by id.
// Returns ErrNotFound if no row exists.
func (b *Backend) GetItem(id string) (*types.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.ensureAttached(); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, types.ErrInvalidID
	}

	row := b.db.QueryRow(
		"SELECT "+itemColumns+" FROM items WHERE item_id = ?", id,
	)
	it, err := hydrateItem(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	return it, nil
}

// ListItems returns all legacy item rows ordered by position key.
func (b *Backend) ListItems() ([]*types.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if err := b.ensureAttached(); err != nil {
		return nil, err
	}

	rows, err := b.db.Query(
		"SELECT " + itemColumns + " FROM items ORDER BY position ASC, item_id ASC",
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var out []*types.Item
	for rows.Next() {
		it, err := hydrateItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return out, nil
}

// UpsertItem writes a legacy item row, replacing any existing row with the
// same id.
func (b *Backend) UpsertItem(it *types.Item) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureAttached(); err != nil {
		return err
	}
	if it == nil || it.ID == "" {
		return types.ErrInvalidID
	}

	_, err := b.db.Exec(
		`INSERT OR REPLACE INTO items (`+itemColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.ParentID, it.Type, it.Text, boolInt(it.Important), it.CompletedAt,
		it.CreatedAt, it.UpdatedAt, it.Position, it.Level, boolInt(it.Indented),
		boolInt(it.Archived), it.ArchivedAt,
		it.Stamps.Text, it.Stamps.Important, it.Stamps.Completed,
		it.Stamps.Position, it.Stamps.Type, it.Stamps.Level,
		it.Stamps.Indented, it.Stamps.Archived, it.Stamps.Parent,
	)
	if err != nil {
		return fmt.Errorf("upsert item %s: %w", it.ID, err)
	}
	return nil
}

// DeleteItem removes a legacy item row.
// Returns ErrNotFound if no row exists.
func (b *Backend) DeleteItem(id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureAttached(); err != nil {
		return err
	}
	if id == "" {
		return types.ErrInvalidID
	}

	res, err := b.db.Exec("DELETE FROM items WHERE item_id = ?", id)
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete item %s: %w", id, err)
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// hydrateItem scans one items row into a *types.Item.
func hydrateItem(row scanner) (*types.Item, error) {
	var it types.Item
	var important, indented, archived int
	if err := row.Scan(
		&it.ID, &it.ParentID, &it.Type, &it.Text, &important, &it.CompletedAt,
		&it.CreatedAt, &it.UpdatedAt, &it.Position, &it.Level, &indented,
		&archived, &it.ArchivedAt,
		&it.Stamps.Text, &it.Stamps.Important, &it.Stamps.Completed,
		&it.Stamps.Position, &it.Stamps.Type, &it.Stamps.Level,
		&it.Stamps.Indented, &it.Stamps.Archived, &it.Stamps.Parent,
	); err != nil {
		return nil, err
	}
	it.Important = important != 0
	it.Indented = indented != 0
	it.Archived = archived != 0
	return &it, nil
}

// boolInt converts a bool to the 0/1 integer stored in SQLite.
func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

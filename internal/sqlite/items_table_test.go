package sqlite

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshline/syncd/pkg/types"
)

func TestItemsRoundTrip(t *testing.T) {
	b := attachedBackend(t)

	in := &types.Item{
		ID:          "item-1",
		ParentID:    "sec-1",
		Type:        types.ItemTypeTodo,
		Text:        "water the plants",
		Important:   true,
		CompletedAt: 123,
		CreatedAt:   100,
		UpdatedAt:   150,
		Position:    "n",
		Level:       2,
		Indented:    true,
		Archived:    false,
		Stamps:      types.FieldStamps{Text: 150, Important: 140, Completed: 123},
	}
	require.NoError(t, b.UpsertItem(in))

	out, err := b.GetItem("item-1")
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestItemsUpsertReplaces(t *testing.T) {
	b := attachedBackend(t)

	require.NoError(t, b.UpsertItem(&types.Item{ID: "a", Text: "before", Position: "n"}))
	require.NoError(t, b.UpsertItem(&types.Item{ID: "a", Text: "after", Position: "n"}))

	out, err := b.GetItem("a")
	require.NoError(t, err)
	assert.Equal(t, "after", out.Text)

	items, err := b.ListItems()
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestItemsListOrderedByPosition(t *testing.T) {
	b := attachedBackend(t)

	require.NoError(t, b.UpsertItem(&types.Item{ID: "b", Position: "q"}))
	require.NoError(t, b.UpsertItem(&types.Item{ID: "a", Position: "f"}))
	require.NoError(t, b.UpsertItem(&types.Item{ID: "c", Position: "t"}))

	items, err := b.ListItems()
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "a", items[0].ID)
	assert.Equal(t, "b", items[1].ID)
	assert.Equal(t, "c", items[2].ID)
}

func TestItemsDelete(t *testing.T) {
	b := attachedBackend(t)

	require.NoError(t, b.UpsertItem(&types.Item{ID: "a", Position: "n"}))
	require.NoError(t, b.DeleteItem("a"))

	_, err := b.GetItem("a")
	assert.ErrorIs(t, err, types.ErrNotFound)
	assert.ErrorIs(t, b.DeleteItem("a"), types.ErrNotFound)
}

func TestItemsInvalidID(t *testing.T) {
	b := attachedBackend(t)

	_, err := b.GetItem("")
	assert.ErrorIs(t, err, types.ErrInvalidID)
	assert.ErrorIs(t, b.DeleteItem(""), types.ErrInvalidID)
	assert.ErrorIs(t, b.UpsertItem(nil), types.ErrInvalidID)
	assert.ErrorIs(t, b.UpsertItem(&types.Item{}), types.ErrInvalidID)
}

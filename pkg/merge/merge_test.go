package merge

import (
	"testing"

	"github.com/meshline/syncd/pkg/types"
)

func TestItems_ClientWinsNewerFields(t *testing.T) {
	client := &types.Item{
		ID:       "a",
		Text:     "client text",
		Position: "n",
		Stamps:   types.FieldStamps{Text: 200, Position: 100},
	}
	server := &types.Item{
		ID:        "a",
		Text:      "server text",
		Position:  "q",
		CreatedAt: 50,
		Stamps:    types.FieldStamps{Text: 100, Position: 300},
	}

	out := Items(client, server, 999)

	if out.Text != "client text" {
		t.Errorf("text = %q, expected client side (newer stamp)", out.Text)
	}
	if out.Position != "q" {
		t.Errorf("position = %q, expected server side (newer stamp)", out.Position)
	}
	if out.CreatedAt != 50 {
		t.Errorf("createdAt = %d, always from server", out.CreatedAt)
	}
	if out.UpdatedAt != 999 {
		t.Errorf("updatedAt = %d, expected now", out.UpdatedAt)
	}
	if out.Stamps.Text != 200 || out.Stamps.Position != 300 {
		t.Errorf("winner stamps not kept: %+v", out.Stamps)
	}
}

func TestItems_TieFavorsClient(t *testing.T) {
	client := &types.Item{ID: "a", Text: "client", Stamps: types.FieldStamps{Text: 100}}
	server := &types.Item{ID: "a", Text: "server", Stamps: types.FieldStamps{Text: 100}}

	out := Items(client, server, 1)
	if out.Text != "client" {
		t.Errorf("tie resolved to %q, expected client", out.Text)
	}
}

func TestItems_StructuralFieldsFromClient(t *testing.T) {
	client := &types.Item{
		ID:       "a",
		ParentID: "p-client",
		Type:     types.ItemTypeSection,
		Level:    2,
		Indented: true,
	}
	server := &types.Item{
		ID:       "a",
		ParentID: "p-server",
		Type:     types.ItemTypeTodo,
		Level:    1,
		Indented: false,
		Stamps:   types.FieldStamps{Type: 999, Level: 999, Parent: 999},
	}

	out := Items(client, server, 1)
	if out.ParentID != "p-client" || out.Type != types.ItemTypeSection || out.Level != 2 || !out.Indented {
		t.Errorf("structural fields must come from the client: %+v", out)
	}
}

func TestItems_CompletedMergesDerivedTimestamp(t *testing.T) {
	client := &types.Item{ID: "a", Stamps: types.FieldStamps{Completed: 100}}
	server := &types.Item{ID: "a", CompletedAt: 250, Stamps: types.FieldStamps{Completed: 250}}

	out := Items(client, server, 1)
	if out.CompletedAt != 250 {
		t.Errorf("completedAt = %d, expected server value with newer stamp", out.CompletedAt)
	}
}

func TestItems_NilServerMeansClientWins(t *testing.T) {
	client := &types.Item{ID: "a", Text: "new", CreatedAt: 42}
	out := Items(client, nil, 7)
	if out.Text != "new" || out.CreatedAt != 42 || out.UpdatedAt != 7 {
		t.Errorf("unexpected merge of fresh item: %+v", out)
	}
}

func TestItems_InputsNotMutated(t *testing.T) {
	client := &types.Item{ID: "a", Text: "c", Stamps: types.FieldStamps{Text: 1}}
	server := &types.Item{ID: "a", Text: "s", CreatedAt: 5, Stamps: types.FieldStamps{Text: 2}}

	_ = Items(client, server, 9)
	if client.Text != "c" || client.UpdatedAt != 0 {
		t.Errorf("client mutated: %+v", client)
	}
	if server.Text != "s" {
		t.Errorf("server mutated: %+v", server)
	}
}

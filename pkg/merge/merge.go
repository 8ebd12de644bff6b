// Package merge implements the legacy field-merge sync: a one-shot
// last-writer-wins merge of a client item against the server-held row.
// It resolves each independently-tracked field once per sync call instead of
// continuously over an event log, so it is equivalent to the log projection
// only when at most one concurrent edit per field exists between syncs.
package merge

import "github.com/meshline/syncd/pkg/types"

// Items merges a client item with the server-held row for the same id and
// returns the winning row. For each tracked field the side with the greater
// or equal shadow timestamp wins, ties favoring the client. Structural
// fields (id, parentId, type, level, indented) are taken from the client,
// createdAt always from the server, and updatedAt is set to now.
//
// A nil server row means the item is new to the server: the client row wins
// wholesale. Neither input is modified.
func Items(client, server *types.Item, now int64) *types.Item {
	if client == nil {
		out := server.Clone()
		out.UpdatedAt = now
		return out
	}

	out := client.Clone()
	out.UpdatedAt = now
	if server == nil {
		return out
	}
	out.CreatedAt = server.CreatedAt

	if server.Stamps.Text > client.Stamps.Text {
		out.Text = server.Text
		out.Stamps.Text = server.Stamps.Text
	}
	if server.Stamps.Important > client.Stamps.Important {
		out.Important = server.Important
		out.Stamps.Important = server.Stamps.Important
	}
	if server.Stamps.Completed > client.Stamps.Completed {
		out.CompletedAt = server.CompletedAt
		out.Stamps.Completed = server.Stamps.Completed
	}
	if server.Stamps.Position > client.Stamps.Position {
		out.Position = server.Position
		out.Stamps.Position = server.Stamps.Position
	}
	if server.Stamps.Archived > client.Stamps.Archived {
		out.Archived = server.Archived
		out.ArchivedAt = server.ArchivedAt
		out.Stamps.Archived = server.Stamps.Archived
	}

	return out
}

// Package project derives the materialized item list from the event log.
//
// The projection is a deterministic fold with per-field last-writer-wins:
// replaying the same events in any order that only permutes concurrent
// writes (distinct timestamps per field) converges to the same state. The
// fold is restartable from scratch at any time; incremental application is
// an optimization with no observable difference from a full replay.
package project

import (
	"sort"

	"github.com/meshline/syncd/pkg/types"
)

// State accumulates the fold. The zero value is not usable; call NewState.
type State struct {
	items map[string]*types.Item
	// arrival records the order in which live items first appeared, for
	// stable tie-breaking between equal position keys.
	arrival map[string]int
	next    int
}

// NewState returns an empty projection state.
func NewState() *State {
	return &State{
		items:   make(map[string]*types.Item),
		arrival: make(map[string]int),
	}
}

// Apply folds a single event into the state.
//
//   - item_created inserts the item with the given attributes; every shadow
//     timestamp starts at the event timestamp. A create for an id that is
//     already live is ignored.
//   - field_changed on an absent item is a no-op: the event may refer to an
//     item that was deleted or has not arrived yet. Otherwise the value is
//     applied iff the event timestamp is >= the field's shadow timestamp;
//     equal timestamps are accepted, so ties favor the event processed last.
//   - item_deleted removes the item unconditionally. Later field_changed
//     events for the id are ignored until a fresh item_created.
//
// Unknown event types and unknown fields are no-ops, never errors.
func (s *State) Apply(ev *types.Event) {
	switch ev.Type {
	case types.EventItemCreated:
		s.applyCreate(ev)
	case types.EventFieldChanged:
		s.applyChange(ev)
	case types.EventItemDeleted:
		delete(s.items, ev.ItemID)
		delete(s.arrival, ev.ItemID)
	}
}

func (s *State) applyCreate(ev *types.Event) {
	if _, ok := s.items[ev.ItemID]; ok {
		return
	}
	attrs := ev.Create
	if attrs == nil {
		attrs = &types.CreateAttrs{}
	}
	it := &types.Item{
		ID:        ev.ItemID,
		ParentID:  attrs.ParentID,
		Type:      attrs.Type,
		Text:      attrs.Text,
		Important: attrs.Important,
		CreatedAt: ev.Timestamp,
		Position:  attrs.Position,
		Level:     attrs.Level,
		Indented:  attrs.Indented,
		Archived:  attrs.Archived,
	}
	if it.Type == "" {
		it.Type = types.ItemTypeTodo
	}
	if attrs.Completed {
		it.CompletedAt = ev.Timestamp
	}
	if attrs.Archived {
		it.ArchivedAt = ev.Timestamp
	}
	it.Stamps.SetAll(ev.Timestamp)
	s.items[ev.ItemID] = it
	s.arrival[ev.ItemID] = s.next
	s.next++
}

func (s *State) applyChange(ev *types.Event) {
	it, ok := s.items[ev.ItemID]
	if !ok || ev.Change == nil {
		return
	}
	ch := ev.Change
	if !ch.Field.Valid() {
		return
	}
	if ev.Timestamp < it.Stamps.Get(ch.Field) {
		return
	}

	switch ch.Field {
	case types.FieldText:
		if ch.Str == nil {
			return
		}
		it.Text = *ch.Str
	case types.FieldImportant:
		if ch.Flag == nil {
			return
		}
		it.Important = *ch.Flag
	case types.FieldCompleted:
		if ch.Flag == nil {
			return
		}
		// CompletedAt is presentation only, derived from the boolean's
		// change, not independently resolved.
		if *ch.Flag {
			it.CompletedAt = ev.Timestamp
		} else {
			it.CompletedAt = 0
		}
	case types.FieldPosition:
		if ch.Str == nil {
			return
		}
		it.Position = *ch.Str
	case types.FieldType:
		if ch.Str == nil {
			return
		}
		it.Type = *ch.Str
	case types.FieldLevel:
		if ch.Number == nil {
			return
		}
		it.Level = *ch.Number
	case types.FieldIndented:
		if ch.Flag == nil {
			return
		}
		it.Indented = *ch.Flag
	case types.FieldArchived:
		if ch.Flag == nil {
			return
		}
		it.Archived = *ch.Flag
		if *ch.Flag {
			it.ArchivedAt = ev.Timestamp
		} else {
			it.ArchivedAt = 0
		}
	case types.FieldParent:
		if ch.Str == nil {
			return
		}
		it.ParentID = *ch.Str
	}
	it.Stamps.Set(ch.Field, ev.Timestamp)
}

// Items returns the live items ordered by position key, ties broken by the
// order in which the items first appeared. The returned items are copies.
func (s *State) Items() []*types.Item {
	out := make([]*types.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return s.arrival[out[i].ID] < s.arrival[out[j].ID]
	})
	return out
}

// Get returns the live item with the given id, or nil. The item is a copy.
func (s *State) Get(id string) *types.Item {
	it, ok := s.items[id]
	if !ok {
		return nil
	}
	return it.Clone()
}

// Len returns the number of live items.
func (s *State) Len() int {
	return len(s.items)
}

// Project folds the full event list from scratch and returns the
// materialized item list. This is the canonical read model.
func Project(events []*types.Event) []*types.Item {
	s := NewState()
	for _, ev := range events {
		s.Apply(ev)
	}
	return s.Items()
}

package types

// Item kinds.
const (
	ItemTypeTodo    = "todo"
	ItemTypeSection = "section"
)

// validItemTypes is the set of recognized item type values.
var validItemTypes = map[string]bool{
	ItemTypeTodo:    true,
	ItemTypeSection: true,
}

// ValidItemType reports whether t is a recognized item type.
func ValidItemType(t string) bool {
	return validItemTypes[t]
}

// Item is one entry of the shared ordered list. Items are not persisted
// directly by the event log; they are projected from it. The legacy item
// endpoints persist the same shape as server-held rows.
//
// All timestamps are client logical clocks in milliseconds. Nullable
// timestamps use zero for "unset".
type Item struct {
	ID          string `json:"id"`
	ParentID    string `json:"parentId,omitempty"` // empty = top level
	Type        string `json:"type"`
	Text        string `json:"text"`
	Important   bool   `json:"important"`
	CompletedAt int64  `json:"completedAt,omitempty"`
	CreatedAt   int64  `json:"createdAt"`
	UpdatedAt   int64  `json:"updatedAt,omitempty"`
	Position    string `json:"position"`
	Level       int    `json:"level,omitempty"` // sections only
	Indented    bool   `json:"indented"`
	Archived    bool   `json:"archived"`
	ArchivedAt  int64  `json:"archivedAt,omitempty"`

	// Stamps holds the per-field shadow timestamps used for last-writer-wins
	// conflict resolution.
	Stamps FieldStamps `json:"stamps"`
}

// FieldStamps records, per independently-mutable field, the logical timestamp
// of the last accepted write to that field.
type FieldStamps struct {
	Text      int64 `json:"text,omitempty"`
	Important int64 `json:"important,omitempty"`
	Completed int64 `json:"completed,omitempty"`
	Position  int64 `json:"position,omitempty"`
	Type      int64 `json:"type,omitempty"`
	Level     int64 `json:"level,omitempty"`
	Indented  int64 `json:"indented,omitempty"`
	Archived  int64 `json:"archived,omitempty"`
	Parent    int64 `json:"parent,omitempty"`
}

// Get returns the shadow timestamp for the given field.
// Unknown fields return zero.
func (s *FieldStamps) Get(f Field) int64 {
	switch f {
	case FieldText:
		return s.Text
	case FieldImportant:
		return s.Important
	case FieldCompleted:
		return s.Completed
	case FieldPosition:
		return s.Position
	case FieldType:
		return s.Type
	case FieldLevel:
		return s.Level
	case FieldIndented:
		return s.Indented
	case FieldArchived:
		return s.Archived
	case FieldParent:
		return s.Parent
	}
	return 0
}

// Set records the shadow timestamp for the given field.
// Unknown fields are ignored.
func (s *FieldStamps) Set(f Field, ts int64) {
	switch f {
	case FieldText:
		s.Text = ts
	case FieldImportant:
		s.Important = ts
	case FieldCompleted:
		s.Completed = ts
	case FieldPosition:
		s.Position = ts
	case FieldType:
		s.Type = ts
	case FieldLevel:
		s.Level = ts
	case FieldIndented:
		s.Indented = ts
	case FieldArchived:
		s.Archived = ts
	case FieldParent:
		s.Parent = ts
	}
}

// SetAll records ts as the shadow timestamp of every field.
// Used when an item is created: the creation event stamps all fields at once.
func (s *FieldStamps) SetAll(ts int64) {
	for _, f := range Fields {
		s.Set(f, ts)
	}
}

// Clone returns a deep copy of the item.
func (it *Item) Clone() *Item {
	cp := *it
	return &cp
}

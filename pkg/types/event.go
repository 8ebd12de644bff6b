package types

// Event types. Every change to the shared list is recorded as one of these.
const (
	EventItemCreated  = "item_created"
	EventFieldChanged = "field_changed"
	EventItemDeleted  = "item_deleted"
)

// validEventTypes is the set of recognized event type values.
var validEventTypes = map[string]bool{
	EventItemCreated:  true,
	EventFieldChanged: true,
	EventItemDeleted:  true,
}

// Field identifies one independently-mutable item field.
type Field string

// Fields that can be targeted by a field_changed event. Each carries its
// own shadow timestamp on the item.
const (
	FieldText      Field = "text"
	FieldImportant Field = "important"
	FieldCompleted Field = "completed"
	FieldPosition  Field = "position"
	FieldType      Field = "type"
	FieldLevel     Field = "level"
	FieldIndented  Field = "indented"
	FieldArchived  Field = "archived"
	FieldParent    Field = "parent"
)

// Fields lists every changeable field for enumeration.
var Fields = []Field{
	FieldText,
	FieldImportant,
	FieldCompleted,
	FieldPosition,
	FieldType,
	FieldLevel,
	FieldIndented,
	FieldArchived,
	FieldParent,
}

// FieldKind describes the value shape a field carries.
type FieldKind int

const (
	KindString FieldKind = iota // text, position, type, parent
	KindBool                    // important, completed, indented, archived
	KindInt                     // level
)

// fieldKinds maps each field to its value shape.
var fieldKinds = map[Field]FieldKind{
	FieldText:      KindString,
	FieldImportant: KindBool,
	FieldCompleted: KindBool,
	FieldPosition:  KindString,
	FieldType:      KindString,
	FieldLevel:     KindInt,
	FieldIndented:  KindBool,
	FieldArchived:  KindBool,
	FieldParent:    KindString,
}

// Valid reports whether f is a recognized field.
func (f Field) Valid() bool {
	_, ok := fieldKinds[f]
	return ok
}

// Kind returns the value shape of the field. Unknown fields report KindString.
func (f Field) Kind() FieldKind {
	return fieldKinds[f]
}

// Event is one immutable entry of the append-only log. The event ID is
// client-generated and globally unique; it is the idempotency key. Seq is
// assigned exactly once by the server and is a replication cursor only —
// conflict resolution uses Timestamp, never Seq.
//
// The payload is a tagged union: Create is set only for item_created,
// Change only for field_changed, and item_deleted carries no payload.
type Event struct {
	ID        string `json:"id"`
	ItemID    string `json:"itemId"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // client logical clock, ms
	ClientID  string `json:"clientId"`
	Seq       int64  `json:"seq,omitempty"` // zero until server-assigned

	Create *CreateAttrs `json:"create,omitempty"`
	Change *FieldChange `json:"change,omitempty"`
}

// CreateAttrs is the full attribute set carried by an item_created event.
// Omitted attributes take the item defaults.
type CreateAttrs struct {
	ParentID  string `json:"parentId,omitempty"`
	Type      string `json:"type,omitempty"`
	Text      string `json:"text,omitempty"`
	Important bool   `json:"important,omitempty"`
	Completed bool   `json:"completed,omitempty"`
	Position  string `json:"position,omitempty"`
	Level     int    `json:"level,omitempty"`
	Indented  bool   `json:"indented,omitempty"`
	Archived  bool   `json:"archived,omitempty"`
}

// FieldChange is the payload of a field_changed event: the target field and
// its new value. Exactly one of the value members is set, matching the
// field's kind.
type FieldChange struct {
	Field  Field   `json:"field"`
	Str    *string `json:"str,omitempty"`
	Flag   *bool   `json:"flag,omitempty"`
	Number *int    `json:"number,omitempty"`
}

// StringChange builds a FieldChange for a string-kinded field.
func StringChange(f Field, v string) *FieldChange {
	return &FieldChange{Field: f, Str: &v}
}

// FlagChange builds a FieldChange for a bool-kinded field.
func FlagChange(f Field, v bool) *FieldChange {
	return &FieldChange{Field: f, Flag: &v}
}

// NumberChange builds a FieldChange for an int-kinded field.
func NumberChange(f Field, v int) *FieldChange {
	return &FieldChange{Field: f, Number: &v}
}

// Validate checks the event shape: identifiers present, known type, and a
// payload matching the type. Unknown fields inside a well-formed
// field_changed event are accepted; the projector ignores them.
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrEventIDEmpty
	}
	if e.ItemID == "" {
		return ErrItemIDEmpty
	}
	if !validEventTypes[e.Type] {
		return ErrEventTypeUnknown
	}
	switch e.Type {
	case EventItemCreated:
		if e.Create == nil {
			return ErrPayloadMissing
		}
		if e.Change != nil {
			return ErrPayloadMismatch
		}
	case EventFieldChanged:
		if e.Change == nil {
			return ErrPayloadMissing
		}
		if e.Create != nil {
			return ErrPayloadMismatch
		}
		if e.Change.Str == nil && e.Change.Flag == nil && e.Change.Number == nil {
			return ErrPayloadMissing
		}
	case EventItemDeleted:
		if e.Create != nil || e.Change != nil {
			return ErrPayloadMismatch
		}
	}
	return nil
}

// Clone returns a deep copy of the event.
func (e *Event) Clone() *Event {
	cp := *e
	if e.Create != nil {
		c := *e.Create
		cp.Create = &c
	}
	if e.Change != nil {
		ch := *e.Change
		if e.Change.Str != nil {
			v := *e.Change.Str
			ch.Str = &v
		}
		if e.Change.Flag != nil {
			v := *e.Change.Flag
			ch.Flag = &v
		}
		if e.Change.Number != nil {
			v := *e.Change.Number
			ch.Number = &v
		}
		cp.Change = &ch
	}
	return &cp
}

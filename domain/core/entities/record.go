// Package entities holds the record types fetched from the backing stores.
// Records are immutable once cached: nothing in this package mutates a record
// after construction.
package entities

import "encoding/json"

// Type keys used by the catalog
const (
	TypeEdition  = "/type/edition"
	TypeWork     = "/type/work"
	TypeAuthor   = "/type/author"
	TypeRedirect = "/type/redirect"
	TypeDeleted  = "/type/delete"
)

// Reference is an embedded pointer to another record by key.
// It is a weak reference: the target may or may not be cached.
type Reference struct {
	Key string `json:"key"`
}

// AuthorReference covers both shapes an authors list takes: editions
// reference authors directly ({"key": ...}) while works nest the pointer one
// level deeper ({"author": {"key": ...}}).
type AuthorReference struct {
	Key    string     `json:"key,omitempty"`
	Author *Reference `json:"author,omitempty"`
}

// AuthorKey returns the referenced author key regardless of shape.
func (r AuthorReference) AuthorKey() string {
	if r.Author != nil {
		return r.Author.Key
	}
	return r.Key
}

// Record is a typed, keyed document. Fields that drive dependency expansion
// are typed; everything else the store returns is preserved in Extra so the
// document round-trips unchanged.
type Record struct {
	Key      string            `json:"key"`
	Type     Reference         `json:"type"`
	Works    []Reference       `json:"works,omitempty"`
	Authors  []AuthorReference `json:"authors,omitempty"`
	OCAID    string            `json:"ocaid,omitempty"`
	Location string            `json:"location,omitempty"`

	// Extra holds attributes not modeled above, keyed by attribute name.
	Extra map[string]json.RawMessage `json:"-"`
}

// NewTombstone builds the deleted-record placeholder returned for keys that
// cannot be resolved.
func NewTombstone(key string) *Record {
	return &Record{
		Key:  key,
		Type: Reference{Key: TypeDeleted},
	}
}

// IsEdition reports whether the record is an edition
func (r *Record) IsEdition() bool {
	return r != nil && r.Type.Key == TypeEdition
}

// IsWork reports whether the record is a work
func (r *Record) IsWork() bool {
	return r != nil && r.Type.Key == TypeWork
}

// IsAuthor reports whether the record is an author
func (r *Record) IsAuthor() bool {
	return r != nil && r.Type.Key == TypeAuthor
}

// IsDeleted reports whether the record is a tombstone
func (r *Record) IsDeleted() bool {
	return r != nil && r.Type.Key == TypeDeleted
}

// FirstWorkKey returns the key of the first referenced work, if any.
// Editions may reference several works; expansion follows only the first.
func (r *Record) FirstWorkKey() (string, bool) {
	if r == nil || len(r.Works) == 0 {
		return "", false
	}
	return r.Works[0].Key, true
}

// AuthorKeys returns the keys of all referenced authors, handling both the
// edition and the work reference shapes.
func (r *Record) AuthorKeys() []string {
	if r == nil || len(r.Authors) == 0 {
		return nil
	}
	keys := make([]string, 0, len(r.Authors))
	for _, ref := range r.Authors {
		if k := ref.AuthorKey(); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// recordAlias avoids UnmarshalJSON recursion
type recordAlias Record

// knownRecordFields are the attributes lifted into typed struct fields
var knownRecordFields = map[string]struct{}{
	"key": {}, "type": {}, "works": {}, "authors": {}, "ocaid": {}, "location": {},
}

// UnmarshalJSON decodes the typed fields and keeps every remaining attribute
// in Extra.
func (r *Record) UnmarshalJSON(data []byte) error {
	var alias recordAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name := range knownRecordFields {
		delete(raw, name)
	}
	if len(raw) > 0 {
		alias.Extra = raw
	}

	*r = Record(alias)
	return nil
}

// MarshalJSON re-emits the typed fields merged with the preserved attributes.
func (r *Record) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(recordAlias(*r))
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(base, &merged); err != nil {
		return nil, err
	}
	for name, value := range r.Extra {
		merged[name] = value
	}
	return json.Marshal(merged)
}

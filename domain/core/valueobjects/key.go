package valueobjects

import (
	"regexp"
	"strings"
)

// Kind is the closed set of record classes a key can refer to.
// Expansion logic switches on this enum instead of re-matching patterns.
type Kind int

const (
	KindOther Kind = iota
	KindEdition
	KindWork
	KindAuthor
)

// String returns a human-readable name for the kind
func (k Kind) String() string {
	switch k {
	case KindEdition:
		return "edition"
	case KindWork:
		return "work"
	case KindAuthor:
		return "author"
	default:
		return "other"
	}
}

// keyPattern is the recognized key shape. Keys that do not match
// (e.g. synthetic "/books/ia:..." pseudo-keys) are classified as KindOther.
var keyPattern = regexp.MustCompile(`^/(books|works|authors)/OL\d+[MWA]$`)

// Key is a value object wrapping a type-prefixed record key (ex: /books/OL1M).
type Key struct {
	raw  string
	kind Kind
}

// ParseKey classifies a raw key string. It never fails: keys outside the
// recognized shape come back with KindOther so callers can filter them.
func ParseKey(raw string) Key {
	if !keyPattern.MatchString(raw) {
		return Key{raw: raw, kind: KindOther}
	}
	switch {
	case strings.HasPrefix(raw, "/books/"):
		return Key{raw: raw, kind: KindEdition}
	case strings.HasPrefix(raw, "/works/"):
		return Key{raw: raw, kind: KindWork}
	default:
		return Key{raw: raw, kind: KindAuthor}
	}
}

// String returns the raw key
func (k Key) String() string {
	return k.raw
}

// Kind returns the record class this key refers to
func (k Key) Kind() Kind {
	return k.kind
}

// IsResolvable reports whether the key identifies a work, edition or author
// and may therefore be sent to the document store.
func (k Key) IsResolvable() bool {
	return k.kind != KindOther
}

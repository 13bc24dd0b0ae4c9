package entities

import "strings"

// multiValueSeparator joins multi-valued metadata fields in the backing store
const multiValueSeparator = ";"

// MetadataRow is the storage shape of an external metadata record: one row
// per identifier, multi-valued fields joined with semicolons.
type MetadataRow struct {
	Identifier  string `json:"identifier"`
	BoxID       string `json:"boxid"`
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Publisher   string `json:"publisher"`
	Creator     string `json:"creator"`
	Date        string `json:"date"`
	Collection  string `json:"collection"`
	RepubState  int    `json:"repub_state"`
	MediaType   string `json:"mediatype"`
	NoIndex     bool   `json:"noindex"`
}

// Metadata is the decoded read-side view of a MetadataRow. Multi-valued
// fields are ordered sequences; an empty stored value decodes to an empty
// slice, never an error.
type Metadata struct {
	Identifier  string
	BoxID       string
	Title       string
	Description string
	Date        string
	MediaType   string
	RepubState  int
	NoIndex     bool

	ISBN       []string
	Publisher  []string
	Creator    []string
	Collection []string
}

// Decode splits the multi-valued fields from the canonical stored encoding.
func (r *MetadataRow) Decode() *Metadata {
	return &Metadata{
		Identifier:  r.Identifier,
		BoxID:       r.BoxID,
		Title:       r.Title,
		Description: r.Description,
		Date:        r.Date,
		MediaType:   r.MediaType,
		RepubState:  r.RepubState,
		NoIndex:     r.NoIndex,
		ISBN:        splitMultiValue(r.ISBN),
		Publisher:   splitMultiValue(r.Publisher),
		Creator:     splitMultiValue(r.Creator),
		Collection:  splitMultiValue(r.Collection),
	}
}

func splitMultiValue(stored string) []string {
	if stored == "" {
		return []string{}
	}
	return strings.Split(stored, multiValueSeparator)
}

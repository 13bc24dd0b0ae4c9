package entities

// RedirectEdge is a directed edge stating that FromKey has been superseded
// by ToKey.
type RedirectEdge struct {
	FromKey string `json:"key"`
	ToKey   string `json:"location"`
}

// WorkEditionPair is one row of the work-edition join: EditionKey belongs to
// WorkKey. Pair order within a work is whatever order the join returns.
type WorkEditionPair struct {
	EditionKey string `json:"edition_key"`
	WorkKey    string `json:"work_key"`
}

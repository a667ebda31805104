package models

// Confidence levels attached to query results.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Query classification values produced by the rule-based classifier.
const (
	QueryTypeStructured = "structured"
	QueryTypeSemantic   = "semantic"
	QueryTypeHybrid     = "hybrid"
)

// Document type values carried in embedding metadata.
const (
	DocTypeProgram   = "program"
	DocTypeRisk      = "risk"
	DocTypeMilestone = "milestone"
)

// Source identifies a portfolio entity cited by an answer. Sources are
// derived from semantic search metadata and deduplicated by ID within a
// single query's result set.
type Source struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SearchResult is one row returned by semantic search. RelevanceScore is the
// store's similarity in [0,1]; results arrive ranked descending and are
// never re-sorted client-side.
type SearchResult struct {
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata"`
	RelevanceScore float64                `json:"relevance_score"`
}

// QueryResult is the unit returned to every query caller. It is always
// well-formed: generation failures are absorbed into Answer and Confidence
// rather than surfaced as errors.
type QueryResult struct {
	Answer     string   `json:"answer"`
	Sources    []Source `json:"sources"`
	Confidence string   `json:"confidence"`
}

// StreamEvent is one element of a streaming query response. Token events
// carry non-empty Token and nil Result; the single terminal event carries an
// empty Token and a populated Result. All token events precede the terminal
// event on the channel.
type StreamEvent struct {
	Token  string       `json:"token,omitempty"`
	Result *QueryResult `json:"result,omitempty"`
}

// IsFinal reports whether this is the terminal event of a stream.
func (e StreamEvent) IsFinal() bool {
	return e.Result != nil
}

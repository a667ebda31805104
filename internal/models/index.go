package models

// EmbeddingRecord is one row written to the vector store. Metadata always
// carries enough denormalized identity (type, ids, display name) to build a
// Source without a secondary lookup.
type EmbeddingRecord struct {
	OrganizationID string                 `json:"organization_id"`
	Content        string                 `json:"content"`
	Metadata       map[string]interface{} `json:"metadata"`
	Embedding      []float32              `json:"embedding"`
}

// Index status values reported by IndexStats.
const (
	IndexStatusReady          = "ready"
	IndexStatusEmpty          = "empty"
	IndexStatusNotInitialized = "not_initialized"
	IndexStatusError          = "error"
)

// IndexStats describes the state of the semantic index.
type IndexStats struct {
	IndexedDocuments int    `json:"indexed_documents"`
	Store            string `json:"store"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
}

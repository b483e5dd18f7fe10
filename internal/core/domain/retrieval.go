package domain

type StoreKind string

const (
	StoreVector  StoreKind = "vector"
	StoreKeyword StoreKind = "keyword"
	StoreGraph   StoreKind = "graph"
)

// Priority orders stores for merge tie-breaking; lower wins.
func (k StoreKind) Priority() int {
	switch k {
	case StoreVector:
		return 0
	case StoreKeyword:
		return 1
	case StoreGraph:
		return 2
	}
	return 3
}

type RetrievalItem struct {
	SourceID string            `json:"source_id"`
	Dataset  string            `json:"dataset"`
	Title    string            `json:"title"`
	Snippet  string            `json:"snippet"`
	Score    float64           `json:"score"`
	Store    StoreKind         `json:"store"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// MergedResult is the ranked union of all store responses. Partial marks
// that at least one store was excluded after a failure or timeout.
type MergedResult struct {
	Items    []RetrievalItem   `json:"items"`
	Partial  bool              `json:"partial"`
	Excluded []StoreKind       `json:"excluded,omitempty"`
	Hits     map[StoreKind]int `json:"hits,omitempty"`
}

// StoreStats carries corpus counts per store; -1 marks an unreachable store.
type StoreStats struct {
	VectorDocuments  int64 `json:"vector_documents"`
	KeywordDocuments int64 `json:"keyword_documents"`
	GraphEntities    int64 `json:"graph_entities"`
}

package search

// VersionRecord is the data we index for a workflow version.
type VersionRecord struct {
	ID            string `json:"id"`
	WorkflowID    string `json:"workflowId"`
	Version       int    `json:"version"`
	Name          string `json:"name"`
	Description   string `json:"description"`
	ChangeSummary string `json:"changeSummary"`
}

// Query describes a search request.
type Query struct {
	Text             string
	FilterWorkflowID string // empty = all workflows
	Limit            int
	Offset           int
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID         string `json:"id"`
	WorkflowID string `json:"workflowId"`
	Version    int    `json:"version"`
	Name       string `json:"name"`
	Snippet    string `json:"snippet"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over versions.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push version records into a search index.
type Indexer interface {
	IndexVersion(record VersionRecord) error
	IndexVersions(records []VersionRecord) error
	DeleteVersion(id string) error
}

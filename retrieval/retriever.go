// Package retrieval defines the grounding-retrieval contract the pipeline
// consumes and the citation postprocessing applied to retrieved nodes.
package retrieval

import "context"

// Node is one retrieved chunk with its relevance score. CitationID is blank
// until AttachCitationIDs runs.
type Node struct {
	ID         string         `json:"id"`
	CitationID string         `json:"citationId,omitempty"`
	Text       string         `json:"text"`
	Score      float64        `json:"score"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Retriever returns the topK most relevant nodes for a query, ordered by
// descending score.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Node, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query string, topK int) ([]Node, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query string, topK int) ([]Node, error) {
	if f == nil {
		return nil, nil
	}
	return f(ctx, query, topK)
}

// AttachCitationIDs assigns each node a citation id equal to its own node
// id. This must run before the nodes reach any summarization step, since
// narrative text references the citation ids embedded into the prompt
// context. Existing citation ids are left alone.
func AttachCitationIDs(nodes []Node) []Node {
	for i := range nodes {
		if nodes[i].CitationID == "" {
			nodes[i].CitationID = nodes[i].ID
		}
	}
	return nodes
}

package search

import (
	"context"
	"fmt"
	"strings"
)

// Query is a similarity request. Embedding is optional.
type Query struct {
	Text      string
	Embedding []float32
	TopK      int
}

// Match is one ranked search hit.
type Match struct {
	ID       string         `json:"id"`
	TicketID string         `json:"ticket_id"`
	Title    string         `json:"title"`
	Score    float64        `json:"score"`
	Fields   map[string]any `json:"fields,omitempty"`
}

// Searcher finds tickets similar to a query, best match first.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Match, error)
}

// ToMatches converts raw hits, dropping service annotations and vectors from Fields.
func ToMatches(docs []Document) []Match {
	out := make([]Match, 0, len(docs))
	for _, doc := range docs {
		m := Match{
			ID:       stringField(doc, KeyField),
			TicketID: stringField(doc, "ticket_id"),
			Title:    stringField(doc, "title"),
			Fields:   map[string]any{},
		}
		if score, ok := doc[scoreField].(float64); ok {
			m.Score = score
		}
		for k, v := range doc {
			if k == VectorField || strings.HasPrefix(k, "@search.") {
				continue
			}
			m.Fields[k] = v
		}
		out = append(out, m)
	}
	return out
}

// FilterByScore keeps matches scoring at least minScore, preserving order.
func FilterByScore(matches []Match, minScore float64) []Match {
	out := make([]Match, 0, len(matches))
	for _, m := range matches {
		if m.Score >= minScore {
			out = append(out, m)
		}
	}
	return out
}

// StripVectors removes the vector field in place.
func StripVectors(docs []Document) []Document {
	for _, doc := range docs {
		delete(doc, VectorField)
	}
	return docs
}

func stringField(doc Document, key string) string {
	switch v := doc[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

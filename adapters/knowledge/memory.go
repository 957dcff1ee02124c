// Package knowledge provides the product knowledge base behind the
// getProductInfo tool. The memory implementation scores passages from a
// JSON corpus by keyword overlap, good enough for self-contained
// deployments with a few hundred documents.
package knowledge

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sonora-voice/bridge/domain/entities"
	"github.com/sonora-voice/bridge/domain/repositories"
)

// maxResults matches the retrieval depth of the production vector search.
const maxResults = 5

// Document is one passage of the knowledge corpus.
type Document struct {
	Content  string            `json:"content"`
	Location string            `json:"location"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type corpus struct {
	Documents []Document `json:"documents"`
}

// MemoryBase answers queries from an in-memory document corpus.
type MemoryBase struct {
	mu   sync.RWMutex
	docs []Document
}

// NewMemoryBase builds a base from the given documents.
func NewMemoryBase(docs []Document) *MemoryBase {
	return &MemoryBase{docs: docs}
}

// NewMemoryBaseFromFile loads the JSON corpus at path. A missing or
// malformed file yields an empty base, logged but not fatal.
func NewMemoryBaseFromFile(path string, logger *zap.Logger) *MemoryBase {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("Knowledge corpus unavailable, starting empty",
			zap.String("path", path),
			zap.Error(err))
		return NewMemoryBase(nil)
	}

	var c corpus
	if err := json.Unmarshal(data, &c); err != nil {
		logger.Warn("Knowledge corpus unreadable, starting empty",
			zap.String("path", path),
			zap.Error(err))
		return NewMemoryBase(nil)
	}

	logger.Info("Knowledge corpus loaded",
		zap.String("path", path),
		zap.Int("documents", len(c.Documents)))
	return NewMemoryBase(c.Documents)
}

var _ repositories.KnowledgeBase = (*MemoryBase)(nil)

// Search implements repositories.KnowledgeBase. Passages are ranked by the
// fraction of query terms they contain; passages matching no term are
// excluded.
func (b *MemoryBase) Search(ctx context.Context, query string) (*entities.KnowledgeAnswer, error) {
	terms := tokenize(query)

	b.mu.RLock()
	defer b.mu.RUnlock()

	results := make([]entities.KnowledgeResult, 0, maxResults)
	if len(terms) > 0 {
		scored := make([]entities.KnowledgeResult, 0, len(b.docs))
		for _, doc := range b.docs {
			score := overlap(terms, doc.Content)
			if score == 0 {
				continue
			}
			scored = append(scored, entities.KnowledgeResult{
				Content:  doc.Content,
				Location: doc.Location,
				Score:    score,
				Metadata: doc.Metadata,
			})
		}
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Score > scored[j].Score
		})
		if len(scored) > maxResults {
			scored = scored[:maxResults]
		}
		results = scored
	}

	return &entities.KnowledgeAnswer{
		Query:       query,
		Results:     results,
		ResultCount: len(results),
	}, nil
}

// overlap scores a passage as the fraction of query terms present in it.
func overlap(terms []string, content string) float64 {
	lower := strings.ToLower(content)
	hits := 0
	for _, term := range terms {
		if strings.Contains(lower, term) {
			hits++
		}
	}
	return float64(hits) / float64(len(terms))
}

// tokenize lowercases and splits the query, dropping short stopword-like
// tokens.
func tokenize(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	})
	terms := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		terms = append(terms, f)
	}
	return terms
}

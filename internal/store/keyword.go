package store

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
)

// KeywordIndex is a bleve full-text index over code chunks, memories and
// document chunks.
// It backs the degraded search path used when no embedding is available.
// All writes are best-effort: a failed keyword update never fails the
// owning store operation.
type KeywordIndex struct {
	index bleve.Index
}

// keywordDoc is the indexed document shape.
type keywordDoc struct {
	Domain  string `json:"domain"` // "code" | "memory" | "docs"
	Content string `json:"content"`
	Symbols string `json:"symbols"`
	Path    string `json:"path"`
}

// KeywordHit is one keyword search result.
type KeywordHit struct {
	ID     string
	Domain string
	Score  float64
}

// OpenKeywordIndex opens or creates a bleve index at path.
func OpenKeywordIndex(path string) (*KeywordIndex, error) {
	idx, err := bleve.Open(path)
	if err != nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
		mapping := bleve.NewIndexMapping()
		idx, err = bleve.New(path, mapping)
		if err != nil {
			return nil, fmt.Errorf("failed to create keyword index: %w", err)
		}
	}
	return &KeywordIndex{index: idx}, nil
}

// Index adds or replaces a document.
func (k *KeywordIndex) Index(id, domain, content, symbols, path string) error {
	return k.index.Index(id, keywordDoc{
		Domain:  domain,
		Content: content,
		Symbols: symbols,
		Path:    path,
	})
}

// Delete removes a document by id.
func (k *KeywordIndex) Delete(id string) error {
	return k.index.Delete(id)
}

// Search runs a match query over content and symbols, optionally
// restricted to one domain.
func (k *KeywordIndex) Search(query string, domain string, limit int) ([]KeywordHit, error) {
	match := bleve.NewMatchQuery(query)

	var req *bleve.SearchRequest
	if domain != "" {
		domainQuery := bleve.NewTermQuery(domain)
		domainQuery.SetField("domain")
		req = bleve.NewSearchRequest(bleve.NewConjunctionQuery(match, domainQuery))
	} else {
		req = bleve.NewSearchRequest(match)
	}
	req.Size = limit
	req.Fields = []string{"domain"}

	res, err := k.index.Search(req)
	if err != nil {
		return nil, err
	}

	hits := make([]KeywordHit, 0, len(res.Hits))
	for _, h := range res.Hits {
		domain, _ := h.Fields["domain"].(string)
		hits = append(hits, KeywordHit{ID: h.ID, Domain: domain, Score: h.Score})
	}
	return hits, nil
}

// Close releases the index.
func (k *KeywordIndex) Close() error {
	return k.index.Close()
}

// SearchKeyword runs a keyword query through the store's bleve index.
// Returns an error when the keyword index failed to open.
func (s *Store) SearchKeyword(query, domain string, limit int) ([]KeywordHit, error) {
	if s.keyword == nil {
		return nil, fmt.Errorf("keyword index unavailable")
	}
	if limit <= 0 {
		limit = 10
	}
	return s.keyword.Search(query, domain, limit)
}

// Package retrieval is the unified search plane: vector search per
// domain with filters, cross-domain expansion from stored vectors,
// result ranking with a distance-derived quality signal, and
// query-expansion suggestions. When no embedding is available the
// engine degrades to keyword search.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ccengram/ccengram/internal/embed"
	engramerrors "github.com/ccengram/ccengram/internal/errors"
	"github.com/ccengram/ccengram/internal/store"
)

// lowConfidenceDistance is the best-distance threshold above which a
// result set is flagged low-confidence.
const lowConfidenceDistance = 0.7

// Scope selects which domains a search covers.
type Scope string

const (
	ScopeAll    Scope = "all"
	ScopeCode   Scope = "code"
	ScopeMemory Scope = "memory"
	ScopeDocs   Scope = "docs"
)

// ParseScope parses a scope case-insensitively; empty means all.
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeAll, "":
		return ScopeAll, nil
	case ScopeCode:
		return ScopeCode, nil
	case ScopeMemory:
		return ScopeMemory, nil
	case ScopeDocs:
		return ScopeDocs, nil
	default:
		return "", engramerrors.InvalidInput("unknown scope: " + s)
	}
}

// Request is one unified search.
type Request struct {
	Query          string
	Scope          Scope
	Limit          int
	MaxSuggestions int

	// Memory filters.
	Sector            store.Sector
	Tier              store.Tier
	MemoryType        store.MemoryType
	MinSalience       float64
	ScopePath         string
	ScopeModule       string
	SessionID         string
	IncludeSuperseded bool

	// Code filters.
	Language string
}

// Result is one ranked hit from any domain.
type Result struct {
	Domain     string         `json:"domain"` // code | memory | docs
	ID         string         `json:"id"`
	Similarity float64        `json:"similarity"`
	Distance   float64        `json:"distance"`
	Memory     *store.Memory  `json:"memory,omitempty"`
	Chunk      *store.CodeChunk `json:"chunk,omitempty"`
	Document   *store.DocumentChunk `json:"document,omitempty"`
}

// Quality is the search-quality signal derived from vector distance.
type Quality struct {
	BestDistance  float64 `json:"best_distance"`
	LowConfidence bool    `json:"low_confidence"`
}

// Response is the merged, ranked outcome.
type Response struct {
	Results     []Result       `json:"results"`
	Counts      map[string]int `json:"counts"`
	Quality     Quality        `json:"quality"`
	Suggestions []string       `json:"suggestions,omitempty"`
	Degraded    bool           `json:"degraded,omitempty"`
}

// Engine runs searches over one project's store.
type Engine struct {
	store    *store.Store
	embedder embed.Embedder
}

// NewEngine creates the retrieval engine.
func NewEngine(st *store.Store, embedder embed.Embedder) *Engine {
	return &Engine{store: st, embedder: embedder}
}

// Search embeds the query once in query mode, runs knn per requested
// scope with store-side filtering, converts distances to similarities,
// merges, and attaches counts, quality, and suggestions.
func (e *Engine) Search(ctx context.Context, req Request) (*Response, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, engramerrors.New(engramerrors.ErrCodeQueryEmpty, "query must not be empty", nil)
	}
	if req.Limit <= 0 {
		req.Limit = 10
	}
	if req.Scope == "" {
		req.Scope = ScopeAll
	}
	if req.MaxSuggestions < 0 {
		req.MaxSuggestions = 0
	}

	vector, err := e.embedder.Embed(ctx, query, embed.ModeQuery)
	if err != nil {
		slog.Warn("query embedding failed, degrading to keyword search", "error", err)
		return e.fallbackSearch(query, req)
	}

	resp := &Response{Counts: make(map[string]int)}

	if req.Scope == ScopeAll || req.Scope == ScopeMemory {
		filter := &store.MemoryFilter{
			Sector:            req.Sector,
			Tier:              req.Tier,
			MemoryType:        req.MemoryType,
			MinSalience:       req.MinSalience,
			ScopePath:         req.ScopePath,
			ScopeModule:       req.ScopeModule,
			SessionID:         req.SessionID,
			IncludeSuperseded: req.IncludeSuperseded,
		}
		mems, distances, err := e.store.KNNMemories(vector, req.Limit, filter)
		if err != nil {
			return nil, engramerrors.StoreError("memory search failed", err)
		}
		for i, m := range mems {
			resp.Results = append(resp.Results, Result{
				Domain:     "memory",
				ID:         m.ID.String(),
				Similarity: similarityFromDistance(distances[i]),
				Distance:   distances[i],
				Memory:     m,
			})
		}
		resp.Counts["memory"] = len(mems)
	}

	if req.Scope == ScopeAll || req.Scope == ScopeCode {
		var filter *store.CodeFilter
		if req.Language != "" {
			filter = &store.CodeFilter{Language: req.Language}
		}
		chunks, distances, err := e.store.KNNCodeChunks(vector, req.Limit, filter)
		if err != nil {
			return nil, engramerrors.StoreError("code search failed", err)
		}
		for i, c := range chunks {
			resp.Results = append(resp.Results, Result{
				Domain:     "code",
				ID:         c.ID.String(),
				Similarity: similarityFromDistance(distances[i]),
				Distance:   distances[i],
				Chunk:      c,
			})
		}
		resp.Counts["code"] = len(chunks)
	}

	if req.Scope == ScopeAll || req.Scope == ScopeDocs {
		docs, distances, err := e.store.KNNDocumentChunks(vector, req.Limit)
		if err != nil {
			return nil, engramerrors.StoreError("docs search failed", err)
		}
		for i, d := range docs {
			resp.Results = append(resp.Results, Result{
				Domain:     "docs",
				ID:         d.ID.String(),
				Similarity: similarityFromDistance(distances[i]),
				Distance:   distances[i],
				Document:   d,
			})
		}
		resp.Counts["docs"] = len(docs)
	}

	sort.SliceStable(resp.Results, func(i, j int) bool {
		return resp.Results[i].Similarity > resp.Results[j].Similarity
	})
	if len(resp.Results) > req.Limit {
		resp.Results = resp.Results[:req.Limit]
	}

	if len(resp.Results) > 0 {
		best := resp.Results[0].Distance
		resp.Quality = Quality{BestDistance: best, LowConfidence: best > lowConfidenceDistance}
	} else {
		resp.Quality = Quality{BestDistance: 1.0, LowConfidence: true}
	}

	if req.MaxSuggestions > 0 {
		resp.Suggestions = GenerateSuggestions(query, resp.Results, req.MaxSuggestions)
	}

	return resp, nil
}

// similarityFromDistance maps distance in [0, +inf) to [0, 1]:
// similarity = 1 - min(d, 1).
func similarityFromDistance(d float64) float64 {
	if d > 1.0 {
		d = 1.0
	}
	if d < 0 {
		d = 0
	}
	return 1.0 - d
}

// RelatedMemoriesForCode follows a chunk's stored embedding into the
// memories table. The chunk is never re-embedded. Deleted and
// superseded memories are excluded.
func (e *Engine) RelatedMemoriesForCode(chunkID uuid.UUID, k int) ([]*store.Memory, []float64, error) {
	c, err := e.store.GetCodeChunk(chunkID)
	if err != nil {
		return nil, nil, engramerrors.StoreError("chunk lookup failed", err)
	}
	if c == nil {
		return nil, nil, engramerrors.NotFound("chunk", chunkID.String())
	}
	if c.Vector == nil {
		return nil, nil, nil
	}
	if k <= 0 {
		k = 5
	}
	return e.store.KNNMemories(c.Vector, k, &store.MemoryFilter{})
}

// RelatedCodeForMemory follows a memory's stored embedding into the
// code chunks table.
func (e *Engine) RelatedCodeForMemory(memoryID uuid.UUID, k int) ([]*store.CodeChunk, []float64, error) {
	m, err := e.store.GetMemory(memoryID)
	if err != nil {
		return nil, nil, engramerrors.StoreError("memory lookup failed", err)
	}
	if m == nil {
		return nil, nil, engramerrors.NotFound("memory", memoryID.String())
	}
	if m.Vector == nil {
		return nil, nil, nil
	}
	if k <= 0 {
		k = 5
	}
	return e.store.KNNCodeChunks(m.Vector, k, nil)
}

// fallbackSearch degrades to keyword and substring matching over a
// bounded scan when no embedding is available.
func (e *Engine) fallbackSearch(query string, req Request) (*Response, error) {
	resp := &Response{
		Counts:   make(map[string]int),
		Degraded: true,
		Quality:  Quality{BestDistance: 1.0, LowConfidence: true},
	}

	domain := ""
	switch req.Scope {
	case ScopeCode:
		domain = "code"
	case ScopeMemory:
		domain = "memory"
	case ScopeDocs:
		domain = "docs"
	}

	hits, err := e.store.SearchKeyword(query, domain, req.Limit)
	if err != nil {
		slog.Debug("keyword search unavailable, scanning", "error", err)
		hits = nil
	}

	for _, h := range hits {
		id, parseErr := uuid.Parse(h.ID)
		if parseErr != nil {
			continue
		}
		switch h.Domain {
		case "memory":
			if m, err := e.store.GetMemory(id); err == nil && m != nil && !m.IsDeleted {
				resp.Results = append(resp.Results, Result{
					Domain: "memory", ID: h.ID, Similarity: h.Score, Memory: m,
				})
				resp.Counts["memory"]++
			}
		case "code":
			if c, err := e.store.GetCodeChunk(id); err == nil && c != nil {
				resp.Results = append(resp.Results, Result{
					Domain: "code", ID: h.ID, Similarity: h.Score, Chunk: c,
				})
				resp.Counts["code"]++
			}
		case "docs":
			if d, err := e.store.GetDocumentChunk(id); err == nil && d != nil {
				resp.Results = append(resp.Results, Result{
					Domain: "docs", ID: h.ID, Similarity: h.Score, Document: d,
				})
				resp.Counts["docs"]++
			}
		}
	}

	if len(resp.Results) > 0 {
		return resp, nil
	}

	// Last resort: substring and symbol-contains over a bounded scan.
	e.substringScan(strings.ToLower(query), req, resp)
	return resp, nil
}

// substringScan checks content and symbols of the top limit*10 rows.
func (e *Engine) substringScan(query string, req Request, resp *Response) {
	bound := req.Limit * 10

	if req.Scope == ScopeAll || req.Scope == ScopeCode {
		chunks, err := e.store.ListCodeChunks(bound)
		if err == nil {
			for _, c := range chunks {
				if len(resp.Results) >= req.Limit {
					break
				}
				if strings.Contains(strings.ToLower(c.Content), query) || symbolContains(c.Symbols, query) {
					resp.Results = append(resp.Results, Result{Domain: "code", ID: c.ID.String(), Similarity: 0.1, Chunk: c})
					resp.Counts["code"]++
				}
			}
		}
	}

	if req.Scope == ScopeAll || req.Scope == ScopeMemory {
		mems, err := e.store.ListMemories(&store.MemoryFilter{}, bound, 0)
		if err == nil {
			for _, m := range mems {
				if len(resp.Results) >= req.Limit {
					break
				}
				if strings.Contains(strings.ToLower(m.Content), query) {
					resp.Results = append(resp.Results, Result{Domain: "memory", ID: m.ID.String(), Similarity: 0.1, Memory: m})
					resp.Counts["memory"]++
				}
			}
		}
	}
}

func symbolContains(symbols []string, query string) bool {
	for _, s := range symbols {
		if strings.Contains(strings.ToLower(s), query) {
			return true
		}
	}
	return false
}

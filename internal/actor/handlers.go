package actor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ccengram/ccengram/internal/embed"
	engramerrors "github.com/ccengram/ccengram/internal/errors"
	"github.com/ccengram/ccengram/internal/index"
	"github.com/ccengram/ccengram/internal/memory"
	"github.com/ccengram/ccengram/internal/retrieval"
	"github.com/ccengram/ccengram/internal/store"
)

// handle maps RPC method names to operations. Unknown methods and
// malformed params surface as validation errors; domain errors keep
// their codes for the router to translate.
func (a *Actor) handle(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	// Code.
	case "code_search":
		return a.codeSearch(ctx, params)
	case "code_index":
		return a.codeIndex(ctx, params)
	case "code_list":
		return a.codeList(params)
	case "code_import_chunk":
		return a.codeImportChunk(ctx, params)
	case "code_context":
		return a.codeContext(params)

	// Docs.
	case "docs_index":
		return a.indexer.IndexDocs(ctx)

	// Memory.
	case "memory_add":
		return a.memoryAdd(ctx, params)
	case "memory_get":
		return a.memoryGet(params)
	case "memory_list":
		return a.memoryList(params)
	case "memory_search":
		return a.memorySearch(ctx, params)
	case "memory_reinforce":
		return a.memoryAdjust(params, true)
	case "memory_deemphasize":
		return a.memoryAdjust(params, false)
	case "memory_delete":
		return a.memoryDelete(params)
	case "memory_supersede":
		return a.memorySupersede(params)
	case "memory_timeline":
		return a.memoryTimeline(params)
	case "memory_related":
		return a.memoryRelated(params)
	case "memory_restore":
		return a.memoryRestore(params)
	case "memory_list_deleted":
		return a.memoryListDeleted(params)
	case "memory_apply_decay":
		return a.memoryApplyDecay(params)

	// Relationships.
	case "relationship_add":
		return a.relationshipAdd(params)
	case "relationship_list":
		return a.relationshipList(params)
	case "relationship_delete":
		return a.relationshipDelete(params)
	case "relationship_related":
		return a.memoryRelated(params)

	// Sessions.
	case "session_stats":
		return a.sessionStats(params)
	case "session_promote":
		return a.sessionPromote(params)
	case "session_record_activity":
		return a.sessionRecordActivity(params)
	case "session_end":
		return a.sessionEnd(params)

	// Watch.
	case "watch_start":
		return a.watchStart(ctx, params)
	case "watch_stop":
		return a.watchStop()
	case "watch_status":
		return a.watchStatus()

	// System.
	case "project_stats":
		return a.projectStats()

	// Explore.
	case "explore_search":
		return a.exploreSearch(ctx, params)
	case "explore_get_context":
		return a.exploreGetContext(params)

	default:
		return nil, engramerrors.InvalidInput("unknown method: " + method)
	}
}

func decode[T any](params json.RawMessage) (*T, error) {
	var p T
	if len(params) > 0 {
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, engramerrors.InvalidInput("malformed params: " + err.Error())
		}
	}
	return &p, nil
}

// --- code ---

type codeSearchParams struct {
	Query    string `json:"query"`
	Language string `json:"language,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func (a *Actor) codeSearch(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[codeSearchParams](params)
	if err != nil {
		return nil, err
	}
	return a.engine.Search(ctx, retrieval.Request{
		Query:    p.Query,
		Scope:    retrieval.ScopeCode,
		Limit:    p.Limit,
		Language: p.Language,
	})
}

type codeIndexParams struct {
	Force  bool  `json:"force,omitempty"`
	DryRun bool  `json:"dry_run,omitempty"`
	Resume *bool `json:"resume,omitempty"`
}

func (a *Actor) codeIndex(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[codeIndexParams](params)
	if err != nil {
		return nil, err
	}
	resume := true
	if p.Resume != nil {
		resume = *p.Resume
	}
	return a.indexer.IndexProject(ctx, index.Options{
		Force:  p.Force,
		DryRun: p.DryRun,
		Resume: resume,
	})
}

type limitParams struct {
	Limit int `json:"limit,omitempty"`
}

func (a *Actor) codeList(params json.RawMessage) (any, error) {
	p, err := decode[limitParams](params)
	if err != nil {
		return nil, err
	}
	return a.store.ListCodeChunks(p.Limit)
}

type codeImportChunkParams struct {
	Chunk *store.CodeChunk `json:"chunk"`
}

func (a *Actor) codeImportChunk(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[codeImportChunkParams](params)
	if err != nil {
		return nil, err
	}
	if p.Chunk == nil || p.Chunk.Content == "" {
		return nil, engramerrors.InvalidInput("chunk with content required")
	}

	c := p.Chunk
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.ProjectID = a.ProjectID

	if c.Vector == nil {
		text := c.EmbeddingText
		if text == "" {
			text = c.Content
		}
		vec, err := a.embedder.Embed(ctx, text, embed.ModeDocument)
		if err != nil {
			return nil, engramerrors.Wrap(engramerrors.ErrCodeEmbeddingFailed, err)
		}
		c.Vector = vec
	}

	if err := a.store.AddCodeChunks([]*store.CodeChunk{c}); err != nil {
		return nil, engramerrors.StoreError("chunk insert failed", err)
	}
	return map[string]string{"id": c.ID.String()}, nil
}

type codeContextParams struct {
	ChunkID     string `json:"chunk_id"`
	LinesBefore int    `json:"lines_before,omitempty"`
	LinesAfter  int    `json:"lines_after,omitempty"`
}

type codeContextResult struct {
	Chunk           *store.CodeChunk `json:"chunk"`
	Before          string           `json:"before,omitempty"`
	After           string           `json:"after,omitempty"`
	RelatedMemories []*store.Memory  `json:"related_memories,omitempty"`
}

func (a *Actor) codeContext(params json.RawMessage) (any, error) {
	p, err := decode[codeContextParams](params)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(p.ChunkID)
	if err != nil {
		return nil, engramerrors.InvalidInput("invalid chunk id")
	}

	c, err := a.store.GetCodeChunk(id)
	if err != nil {
		return nil, engramerrors.StoreError("chunk lookup failed", err)
	}
	if c == nil {
		return nil, engramerrors.NotFound("chunk", p.ChunkID)
	}

	if p.LinesBefore <= 0 {
		p.LinesBefore = 20
	}
	if p.LinesAfter <= 0 {
		p.LinesAfter = 20
	}

	result := &codeContextResult{Chunk: c}

	if content, readErr := os.ReadFile(filepath.Join(a.Root, filepath.FromSlash(c.FilePath))); readErr == nil {
		lines := strings.Split(string(content), "\n")
		beforeStart := c.StartLine - 1 - p.LinesBefore
		if beforeStart < 0 {
			beforeStart = 0
		}
		if c.StartLine-1 > beforeStart {
			result.Before = strings.Join(lines[beforeStart:c.StartLine-1], "\n")
		}
		afterEnd := c.EndLine + p.LinesAfter
		if afterEnd > len(lines) {
			afterEnd = len(lines)
		}
		if afterEnd > c.EndLine {
			result.After = strings.Join(lines[c.EndLine:afterEnd], "\n")
		}
	}

	if mems, _, relErr := a.engine.RelatedMemoriesForCode(id, 5); relErr == nil {
		result.RelatedMemories = mems
	}

	return result, nil
}

// --- memory ---

type memoryAddParams struct {
	Content     string   `json:"content"`
	Summary     string   `json:"summary,omitempty"`
	Sector      string   `json:"sector,omitempty"`
	Type        string   `json:"type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Categories  []string `json:"categories,omitempty"`
	Files       []string `json:"files,omitempty"`
	ScopePath   string   `json:"scope_path,omitempty"`
	ScopeModule string   `json:"scope_module,omitempty"`
	Importance  float64  `json:"importance,omitempty"`
	SessionID   string   `json:"session_id,omitempty"`
}

type memoryAddResult struct {
	MemoryID    string                   `json:"memory_id"`
	IsDuplicate bool                     `json:"is_duplicate"`
	Match       *memory.DuplicateMatch   `json:"match,omitempty"`
}

func (a *Actor) memoryAdd(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[memoryAddParams](params)
	if err != nil {
		return nil, err
	}

	var sector store.Sector
	if p.Sector != "" {
		if sector, err = store.ParseSector(p.Sector); err != nil {
			return nil, engramerrors.InvalidInput(err.Error())
		}
	}
	var memType store.MemoryType
	if p.Type != "" {
		if memType, err = store.ParseMemoryType(p.Type); err != nil {
			return nil, engramerrors.InvalidInput(err.Error())
		}
	}

	result, err := a.memories.Add(ctx, memory.AddParams{
		Content:     p.Content,
		Summary:     p.Summary,
		Sector:      sector,
		MemoryType:  memType,
		Importance:  p.Importance,
		Tags:        p.Tags,
		Categories:  p.Categories,
		Files:       p.Files,
		ScopePath:   p.ScopePath,
		ScopeModule: p.ScopeModule,
		SessionID:   p.SessionID,
	})
	if err != nil {
		return nil, err
	}
	return &memoryAddResult{
		MemoryID:    result.Memory.ID.String(),
		IsDuplicate: result.IsDuplicate,
		Match:       result.Match,
	}, nil
}

type memoryGetParams struct {
	MemoryID       string `json:"memory_id"`
	IncludeRelated bool   `json:"include_related,omitempty"`
}

type memoryContextResult struct {
	Memory      *store.Memory           `json:"memory"`
	Related     []*memory.RelatedMemory `json:"related,omitempty"`
	RelatedCode []*store.CodeChunk      `json:"related_code,omitempty"`
	Entities    []*store.Entity         `json:"entities,omitempty"`
}

func (a *Actor) memoryGet(params json.RawMessage) (any, error) {
	p, err := decode[memoryGetParams](params)
	if err != nil {
		return nil, err
	}
	id, err := a.memories.ResolveID(p.MemoryID)
	if err != nil {
		return nil, err
	}

	m, err := a.memories.Get(id)
	if err != nil {
		return nil, engramerrors.StoreError("lookup failed", err)
	}
	if m == nil {
		return nil, nil // not-found maps to null result
	}

	result := &memoryContextResult{Memory: m}
	if p.IncludeRelated {
		if related, relErr := a.memories.Related(id, 1, 10); relErr == nil {
			result.Related = related
		}
		if code, _, codeErr := a.engine.RelatedCodeForMemory(id, 5); codeErr == nil {
			result.RelatedCode = code
		}
		if entities, entErr := a.memories.Entities(id); entErr == nil {
			result.Entities = entities
		}
	}
	return result, nil
}

type memoryListParams struct {
	Sector string `json:"sector,omitempty"`
	Limit  int    `json:"limit,omitempty"`
	Offset int    `json:"offset,omitempty"`
}

func (a *Actor) memoryList(params json.RawMessage) (any, error) {
	p, err := decode[memoryListParams](params)
	if err != nil {
		return nil, err
	}
	filter := &store.MemoryFilter{}
	if p.Sector != "" {
		sector, err := store.ParseSector(p.Sector)
		if err != nil {
			return nil, engramerrors.InvalidInput(err.Error())
		}
		filter.Sector = sector
	}
	return a.memories.List(filter, p.Limit, p.Offset)
}

type memorySearchParams struct {
	Query             string  `json:"query"`
	Sector            string  `json:"sector,omitempty"`
	Tier              string  `json:"tier,omitempty"`
	Type              string  `json:"type,omitempty"`
	MinSalience       float64 `json:"min_salience,omitempty"`
	ScopePath         string  `json:"scope_path,omitempty"`
	ScopeModule       string  `json:"scope_module,omitempty"`
	SessionID         string  `json:"session_id,omitempty"`
	IncludeSuperseded bool    `json:"include_superseded,omitempty"`
	Limit             int     `json:"limit,omitempty"`
}

func (a *Actor) memorySearch(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[memorySearchParams](params)
	if err != nil {
		return nil, err
	}

	req := retrieval.Request{
		Query:             p.Query,
		Scope:             retrieval.ScopeMemory,
		Limit:             p.Limit,
		MinSalience:       p.MinSalience,
		ScopePath:         p.ScopePath,
		ScopeModule:       p.ScopeModule,
		SessionID:         p.SessionID,
		IncludeSuperseded: p.IncludeSuperseded,
	}
	if p.Sector != "" {
		if req.Sector, err = store.ParseSector(p.Sector); err != nil {
			return nil, engramerrors.InvalidInput(err.Error())
		}
	}
	if p.Tier != "" {
		if req.Tier, err = store.ParseTier(p.Tier); err != nil {
			return nil, engramerrors.InvalidInput(err.Error())
		}
	}
	if p.Type != "" {
		if req.MemoryType, err = store.ParseMemoryType(p.Type); err != nil {
			return nil, engramerrors.InvalidInput(err.Error())
		}
	}
	return a.engine.Search(ctx, req)
}

type memoryAdjustParams struct {
	MemoryID string  `json:"memory_id"`
	Amount   float64 `json:"amount,omitempty"`
}

func (a *Actor) memoryAdjust(params json.RawMessage, reinforce bool) (any, error) {
	p, err := decode[memoryAdjustParams](params)
	if err != nil {
		return nil, err
	}
	id, err := a.memories.ResolveID(p.MemoryID)
	if err != nil {
		return nil, err
	}
	amount := p.Amount
	if amount == 0 {
		amount = 0.1
	}
	if reinforce {
		return a.memories.Reinforce(id, amount)
	}
	return a.memories.Deemphasize(id, amount)
}

type memoryDeleteParams struct {
	MemoryID string `json:"memory_id"`
	Hard     bool   `json:"hard,omitempty"`
}

func (a *Actor) memoryDelete(params json.RawMessage) (any, error) {
	p, err := decode[memoryDeleteParams](params)
	if err != nil {
		return nil, err
	}
	id, err := a.memories.ResolveID(p.MemoryID)
	if err != nil {
		return nil, err
	}
	if err := a.memories.Delete(id, p.Hard); err != nil {
		return nil, err
	}
	return map[string]bool{"deleted": true}, nil
}

type memorySupersedeParams struct {
	OldMemoryID string `json:"old_memory_id"`
	NewMemoryID string `json:"new_memory_id"`
}

func (a *Actor) memorySupersede(params json.RawMessage) (any, error) {
	p, err := decode[memorySupersedeParams](params)
	if err != nil {
		return nil, err
	}
	oldID, err := a.memories.ResolveID(p.OldMemoryID)
	if err != nil {
		return nil, err
	}
	newID, err := a.memories.ResolveID(p.NewMemoryID)
	if err != nil {
		return nil, err
	}
	if err := a.memories.Supersede(oldID, newID); err != nil {
		return nil, err
	}
	return map[string]bool{"superseded": true}, nil
}

type memoryTimelineParams struct {
	AnchorID    string `json:"anchor_id"`
	DepthBefore int    `json:"depth_before,omitempty"`
	DepthAfter  int    `json:"depth_after,omitempty"`
}

func (a *Actor) memoryTimeline(params json.RawMessage) (any, error) {
	p, err := decode[memoryTimelineParams](params)
	if err != nil {
		return nil, err
	}
	id, err := a.memories.ResolveID(p.AnchorID)
	if err != nil {
		return nil, err
	}
	if p.DepthBefore <= 0 {
		p.DepthBefore = 5
	}
	if p.DepthAfter <= 0 {
		p.DepthAfter = 5
	}
	return a.memories.Timeline(id, p.DepthBefore, p.DepthAfter)
}

type memoryRelatedParams struct {
	MemoryID string `json:"memory_id"`
	Depth    int    `json:"depth,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

func (a *Actor) memoryRelated(params json.RawMessage) (any, error) {
	p, err := decode[memoryRelatedParams](params)
	if err != nil {
		return nil, err
	}
	id, err := a.memories.ResolveID(p.MemoryID)
	if err != nil {
		return nil, err
	}
	return a.memories.Related(id, p.Depth, p.Limit)
}

func (a *Actor) memoryRestore(params json.RawMessage) (any, error) {
	p, err := decode[memoryGetParams](params)
	if err != nil {
		return nil, err
	}
	id, err := a.memories.ResolveID(p.MemoryID)
	if err != nil {
		return nil, err
	}
	return a.memories.Restore(id)
}

func (a *Actor) memoryListDeleted(params json.RawMessage) (any, error) {
	p, err := decode[limitParams](params)
	if err != nil {
		return nil, err
	}
	return a.memories.ListDeleted(p.Limit)
}

type memoryDecayParams struct {
	ArchiveThreshold float64 `json:"archive_threshold,omitempty"`
	MaxIdleDays      int     `json:"max_idle_days,omitempty"`
}

func (a *Actor) memoryApplyDecay(params json.RawMessage) (any, error) {
	p, err := decode[memoryDecayParams](params)
	if err != nil {
		return nil, err
	}
	return a.memories.ApplyDecay(memory.DecayOptions{
		ArchiveThreshold: p.ArchiveThreshold,
		MaxIdleDays:      p.MaxIdleDays,
	})
}

// --- relationships ---

type relationshipAddParams struct {
	From       string  `json:"from"`
	To         string  `json:"to"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence,omitempty"`
}

func (a *Actor) relationshipAdd(params json.RawMessage) (any, error) {
	p, err := decode[relationshipAddParams](params)
	if err != nil {
		return nil, err
	}
	relType, err := store.ParseRelationshipType(p.Type)
	if err != nil {
		return nil, engramerrors.InvalidInput(err.Error())
	}
	from, err := a.memories.ResolveID(p.From)
	if err != nil {
		return nil, err
	}
	to, err := a.memories.ResolveID(p.To)
	if err != nil {
		return nil, err
	}
	confidence := p.Confidence
	if confidence == 0 {
		confidence = 0.5
	}
	return a.memories.AddRelationship(from, to, relType, confidence, "api")
}

type relationshipListParams struct {
	MemoryID         string `json:"memory_id"`
	RelationshipType string `json:"relationship_type,omitempty"`
}

func (a *Actor) relationshipList(params json.RawMessage) (any, error) {
	p, err := decode[relationshipListParams](params)
	if err != nil {
		return nil, err
	}
	id, err := a.memories.ResolveID(p.MemoryID)
	if err != nil {
		return nil, err
	}
	var relType store.RelationshipType
	if p.RelationshipType != "" {
		if relType, err = store.ParseRelationshipType(p.RelationshipType); err != nil {
			return nil, engramerrors.InvalidInput(err.Error())
		}
	}
	return a.memories.ListRelationships(id, relType)
}

type relationshipDeleteParams struct {
	ID string `json:"id"`
}

func (a *Actor) relationshipDelete(params json.RawMessage) (any, error) {
	p, err := decode[relationshipDeleteParams](params)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(p.ID)
	if err != nil {
		return nil, engramerrors.InvalidInput("invalid relationship id")
	}
	if err := a.memories.DeleteRelationship(id); err != nil {
		return nil, engramerrors.StoreError("delete failed", err)
	}
	return map[string]bool{"deleted": true}, nil
}

// --- sessions ---

type sessionParams struct {
	SessionID string `json:"session_id"`
}

func (a *Actor) sessionStats(params json.RawMessage) (any, error) {
	p, err := decode[sessionParams](params)
	if err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, engramerrors.InvalidInput("session_id required")
	}
	return a.memories.Stats(p.SessionID)
}

type sessionPromoteParams struct {
	SessionID         string  `json:"session_id"`
	MinUses           int     `json:"min_uses,omitempty"`
	SalienceThreshold float64 `json:"salience_threshold,omitempty"`
}

func (a *Actor) sessionPromote(params json.RawMessage) (any, error) {
	p, err := decode[sessionPromoteParams](params)
	if err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, engramerrors.InvalidInput("session_id required")
	}
	if p.SalienceThreshold > 0 {
		return a.memories.PromoteBySalience(p.SessionID, p.SalienceThreshold)
	}
	return a.memories.PromoteByUses(p.SessionID, p.MinUses)
}

type sessionActivityParams struct {
	SessionID string                   `json:"session_id"`
	Update    memory.AccumulatorUpdate `json:"update"`
}

func (a *Actor) sessionRecordActivity(params json.RawMessage) (any, error) {
	p, err := decode[sessionActivityParams](params)
	if err != nil {
		return nil, err
	}
	if p.SessionID == "" {
		return nil, engramerrors.InvalidInput("session_id required")
	}
	acc, err := a.memories.RecordActivity(p.SessionID, p.Update)
	if err != nil {
		return nil, engramerrors.StoreError("accumulator update failed", err)
	}
	return map[string]any{
		"segment_id":      acc.ID.String(),
		"should_extract":  memory.ShouldExtract(acc),
		"tool_call_count": acc.ToolCallCount,
	}, nil
}

func (a *Actor) sessionEnd(params json.RawMessage) (any, error) {
	p, err := decode[sessionParams](params)
	if err != nil {
		return nil, err
	}
	if err := a.memories.EndSession(p.SessionID); err != nil {
		return nil, engramerrors.StoreError("session end failed", err)
	}
	return map[string]bool{"ended": true}, nil
}

// --- watch ---

func (a *Actor) watchStart(ctx context.Context, _ json.RawMessage) (any, error) {
	acquired, err := a.watch.Start(context.WithoutCancel(ctx))
	if err != nil {
		return nil, engramerrors.Wrap(engramerrors.ErrCodeLockHeld, err)
	}

	if acquired && a.cfg.Index.StartupScan {
		opts := index.ScanOptions{
			Mode:    a.cfg.Index.StartupScanMode,
			Timeout: timeoutSecs(a.cfg.Index.StartupScanTimeoutSecs),
		}
		run := func(runCtx context.Context) {
			a.watch.SetScanning(true, 0)
			defer a.watch.SetScanning(false, 0)
			result, scanErr := a.scanner.Scan(runCtx, opts)
			if scanErr != nil {
				return
			}
			a.scanner.Apply(runCtx, result)
		}
		if a.cfg.Index.StartupScanBlocking {
			run(ctx)
		} else {
			go run(context.WithoutCancel(ctx))
		}
	}

	return map[string]bool{"watching": acquired}, nil
}

func (a *Actor) watchStop() (any, error) {
	a.watch.Stop()
	return map[string]bool{"stopped": true}, nil
}

func (a *Actor) watchStatus() (any, error) {
	status := a.watch.Status(nil)
	scan := a.scanner.State()
	return map[string]any{
		"running":         status.Running,
		"scanning":        scan.InProgress,
		"pending_changes": status.PendingChanges,
		"scan_state":      scan,
		"index_progress":  a.indexer.Progress(),
	}, nil
}

// --- system ---

func (a *Actor) projectStats() (any, error) {
	codeCount, _ := a.store.CountCodeChunks(nil)
	memoryCount, _ := a.store.CountMemories(&store.MemoryFilter{})
	docCount, _ := a.store.CountDocumentChunks()

	return map[string]any{
		"project_id":   a.ProjectID.String(),
		"root":         a.Root,
		"code_chunks":  codeCount,
		"memories":     memoryCount,
		"doc_chunks":   docCount,
		"started_at":   a.startedAt,
		"watch_status": a.watch.Status(nil),
	}, nil
}

// --- explore ---

type exploreSearchParams struct {
	Query          string `json:"query"`
	Scope          string `json:"scope,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	MaxSuggestions *int   `json:"max_suggestions,omitempty"`
	ExpandTop      int    `json:"expand_top,omitempty"`
}

type exploreSearchResult struct {
	*retrieval.Response
	Expansions []exploreExpansion `json:"expansions,omitempty"`
}

type exploreExpansion struct {
	ForID           string             `json:"for_id"`
	RelatedMemories []*store.Memory    `json:"related_memories,omitempty"`
	RelatedCode     []*store.CodeChunk `json:"related_code,omitempty"`
}

func (a *Actor) exploreSearch(ctx context.Context, params json.RawMessage) (any, error) {
	p, err := decode[exploreSearchParams](params)
	if err != nil {
		return nil, err
	}
	scope, err := retrieval.ParseScope(p.Scope)
	if err != nil {
		return nil, err
	}
	maxSuggestions := 3
	if p.MaxSuggestions != nil {
		maxSuggestions = *p.MaxSuggestions
	}

	resp, err := a.engine.Search(ctx, retrieval.Request{
		Query:          p.Query,
		Scope:          scope,
		Limit:          p.Limit,
		MaxSuggestions: maxSuggestions,
	})
	if err != nil {
		return nil, err
	}

	result := &exploreSearchResult{Response: resp}

	// Cross-domain expansion of the top results, one knn per result.
	for i := 0; i < p.ExpandTop && i < len(resp.Results); i++ {
		r := resp.Results[i]
		id, parseErr := uuid.Parse(r.ID)
		if parseErr != nil {
			continue
		}
		exp := exploreExpansion{ForID: r.ID}
		switch r.Domain {
		case "code":
			if mems, _, expErr := a.engine.RelatedMemoriesForCode(id, 3); expErr == nil {
				exp.RelatedMemories = mems
			}
		case "memory":
			if code, _, expErr := a.engine.RelatedCodeForMemory(id, 3); expErr == nil {
				exp.RelatedCode = code
			}
		}
		if len(exp.RelatedMemories) > 0 || len(exp.RelatedCode) > 0 {
			result.Expansions = append(result.Expansions, exp)
		}
	}

	return result, nil
}

type exploreContextParams struct {
	IDs   []string `json:"ids"`
	Limit int      `json:"limit,omitempty"`
}

func (a *Actor) exploreGetContext(params json.RawMessage) (any, error) {
	p, err := decode[exploreContextParams](params)
	if err != nil {
		return nil, err
	}
	if len(p.IDs) == 0 {
		return nil, engramerrors.InvalidInput("ids required")
	}
	if p.Limit <= 0 {
		p.Limit = 5
	}

	var contexts []any
	for _, raw := range p.IDs {
		id, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			id2, resolveErr := a.memories.ResolveID(raw)
			if resolveErr != nil {
				return nil, resolveErr
			}
			id = id2
		}

		if m, lookupErr := a.store.GetMemory(id); lookupErr == nil && m != nil {
			ctx := &memoryContextResult{Memory: m}
			if related, relErr := a.memories.Related(id, 1, p.Limit); relErr == nil {
				ctx.Related = related
			}
			if code, _, codeErr := a.engine.RelatedCodeForMemory(id, p.Limit); codeErr == nil {
				ctx.RelatedCode = code
			}
			contexts = append(contexts, ctx)
			continue
		}

		if c, lookupErr := a.store.GetCodeChunk(id); lookupErr == nil && c != nil {
			result := &codeContextResult{Chunk: c}
			if mems, _, relErr := a.engine.RelatedMemoriesForCode(id, p.Limit); relErr == nil {
				result.RelatedMemories = mems
			}
			contexts = append(contexts, result)
			continue
		}

		return nil, engramerrors.NotFound("entity", raw)
	}

	return map[string]any{"contexts": contexts}, nil
}

// --- helpers ---

func timeoutSecs(secs int) (d time.Duration) {
	if secs > 0 {
		d = time.Duration(secs) * time.Second
	}
	return
}


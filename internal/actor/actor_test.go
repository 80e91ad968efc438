package actor

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/config"
)

func newTestActor(t *testing.T) *Actor {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	root := t.TempDir()
	cfg := config.Default()
	cfg.Embedding.Provider = "static"
	cfg.Embedding.Dimensions = 64
	require.NoError(t, cfg.Save(root))

	a, err := Spawn(context.Background(), root)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func dispatch(t *testing.T, a *Actor, method string, params any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(params)
	require.NoError(t, err)

	result, err := a.Dispatch(context.Background(), method, raw)
	require.NoError(t, err)

	encoded, err := json.Marshal(result)
	require.NoError(t, err)
	return encoded
}

func TestActorMemoryLifecycle(t *testing.T) {
	a := newTestActor(t)

	var added struct {
		MemoryID    string `json:"memory_id"`
		IsDuplicate bool   `json:"is_duplicate"`
	}
	raw := dispatch(t, a, "memory_add", map[string]any{
		"content": "the repository uses trunk based development with feature flags",
		"sector":  "semantic",
	})
	require.NoError(t, json.Unmarshal(raw, &added))
	assert.False(t, added.IsDuplicate)
	require.NotEmpty(t, added.MemoryID)

	// Dedup on the second add.
	raw = dispatch(t, a, "memory_add", map[string]any{
		"content": "the repository uses trunk based development with feature flags",
	})
	var dup struct {
		MemoryID    string `json:"memory_id"`
		IsDuplicate bool   `json:"is_duplicate"`
	}
	require.NoError(t, json.Unmarshal(raw, &dup))
	assert.True(t, dup.IsDuplicate)
	assert.Equal(t, added.MemoryID, dup.MemoryID)

	// Search finds it.
	raw = dispatch(t, a, "memory_search", map[string]any{
		"query": "trunk based development",
	})
	var search struct {
		Results []struct {
			ID string `json:"id"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &search))
	require.NotEmpty(t, search.Results)
	assert.Equal(t, added.MemoryID, search.Results[0].ID)
}

func TestActorCodeIndexAndSearch(t *testing.T) {
	a := newTestActor(t)

	source := "package auth\n\nfunc ValidateCredentials(user, pass string) bool {\n\treturn checkHash(user, pass)\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(a.Root, "auth.go"), []byte(source), 0o644))

	raw := dispatch(t, a, "code_index", map[string]any{})
	var report struct {
		FilesIndexed int `json:"files_indexed"`
	}
	require.NoError(t, json.Unmarshal(raw, &report))
	assert.Equal(t, 1, report.FilesIndexed)

	raw = dispatch(t, a, "code_search", map[string]any{
		"query": "validate user credentials",
	})
	var search struct {
		Results []struct {
			Domain string `json:"domain"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(raw, &search))
	require.NotEmpty(t, search.Results)
	assert.Equal(t, "code", search.Results[0].Domain)
}

func TestActorRejectsUnknownMethod(t *testing.T) {
	a := newTestActor(t)

	_, err := a.Dispatch(context.Background(), "no_such_method", nil)
	require.Error(t, err)
}

func TestActorProjectStats(t *testing.T) {
	a := newTestActor(t)

	raw := dispatch(t, a, "project_stats", map[string]any{})
	var stats struct {
		ProjectID  string `json:"project_id"`
		CodeChunks int    `json:"code_chunks"`
	}
	require.NoError(t, json.Unmarshal(raw, &stats))
	assert.Equal(t, a.ProjectID.String(), stats.ProjectID)
}

func TestRegistryReusesActors(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	root := t.TempDir()
	cfg := config.Default()
	cfg.Embedding.Provider = "static"
	cfg.Embedding.Dimensions = 64
	require.NoError(t, cfg.Save(root))

	registry := NewRegistry(context.Background())
	defer registry.Shutdown()

	a1, err := registry.GetOrSpawn(root)
	require.NoError(t, err)
	a2, err := registry.GetOrSpawn(root)
	require.NoError(t, err)
	assert.Same(t, a1, a2)
}

package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/actor"
	"github.com/ccengram/ccengram/internal/config"
)

func startTestServer(t *testing.T) (*Client, string) {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	root := t.TempDir()
	cfg := config.Default()
	cfg.Embedding.Provider = "static"
	cfg.Embedding.Dimensions = 64
	require.NoError(t, cfg.Save(root))

	socketPath := filepath.Join(t.TempDir(), "test.sock")
	registry := actor.NewRegistry(context.Background())
	server := NewServer(socketPath, registry, root)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = server.ListenAndServe(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Log("server did not stop in time")
		}
	})

	client := NewClient(socketPath, 30*time.Second)
	require.Eventually(t, client.IsRunning, 3*time.Second, 10*time.Millisecond)
	return client, root
}

func TestHealthCheck(t *testing.T) {
	client, _ := startTestServer(t)

	var health struct {
		Status string `json:"status"`
	}
	require.NoError(t, client.Call(context.Background(), "health_check", "", nil, &health))
	assert.Equal(t, "ok", health.Status)
}

func TestRoundTripMemoryAdd(t *testing.T) {
	client, root := startTestServer(t)

	var added struct {
		MemoryID string `json:"memory_id"`
	}
	err := client.Call(context.Background(), "memory_add", root, map[string]any{
		"content": "the daemon speaks newline delimited json rpc over a unix socket",
	}, &added)
	require.NoError(t, err)
	assert.NotEmpty(t, added.MemoryID)
}

func TestInvalidParamsCode(t *testing.T) {
	client, root := startTestServer(t)

	err := client.Call(context.Background(), "memory_search", root, map[string]any{
		"query": "   ",
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "-32602")
}

func TestUnknownMethodIsError(t *testing.T) {
	client, root := startTestServer(t)

	err := client.Call(context.Background(), "definitely_not_a_method", root, nil, nil)
	require.Error(t, err)
}

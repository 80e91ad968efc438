package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccengram/ccengram/internal/store"
)

const goSample = `package widget

import (
	"fmt"
	"strings"
)

// Widget renders things.
type Widget struct {
	Name string
}

// Render draws the widget.
func (w *Widget) Render() string {
	return strings.ToUpper(w.Name)
}

func helper(input string) string {
	return fmt.Sprintf("[%s]", input)
}
`

func TestGoChunkerExtractsDefinitions(t *testing.T) {
	c := NewCodeChunker(NewParser())
	chunks := c.Chunk([]byte(goSample), "go")
	require.NotEmpty(t, chunks)

	names := make(map[string]store.ChunkType)
	for _, ch := range chunks {
		if ch.DefinitionName != "" {
			names[ch.DefinitionName] = ch.ChunkType
		}
		assert.LessOrEqual(t, ch.StartLine, ch.EndLine)
		assert.NotEmpty(t, ch.ContentHash)
	}

	assert.Equal(t, store.ChunkTypeClass, names["Widget"])
	assert.Equal(t, store.ChunkTypeFunction, names["Render"])
	assert.Equal(t, store.ChunkTypeFunction, names["helper"])
}

func TestImportsCollapseToOneChunk(t *testing.T) {
	c := NewCodeChunker(NewParser())
	chunks := c.Chunk([]byte(goSample), "go")

	importChunks := 0
	for _, ch := range chunks {
		if ch.ChunkType == store.ChunkTypeImport {
			importChunks++
			assert.Contains(t, ch.Imports, "fmt")
			assert.Contains(t, ch.Imports, "strings")
		}
	}
	assert.Equal(t, 1, importChunks)
}

func TestContentHashStableUnderShift(t *testing.T) {
	body := "func moved() int {\n\treturn 42\n}"
	shifted := "\n\n\n" + body

	assert.Equal(t, ContentHash(body), ContentHash(shifted))
	assert.Equal(t, ContentHash(body), ContentHash("func moved() int {  \n\treturn 42\n}"))
	assert.NotEqual(t, ContentHash(body), ContentHash("func moved() int {\n\treturn 43\n}"))
}

func TestUnknownLanguageProducesNoChunks(t *testing.T) {
	c := NewCodeChunker(NewParser())
	assert.Empty(t, c.Chunk([]byte("whatever"), ""))
	assert.Empty(t, DetectLanguage("mystery.xyz"))
}

func TestDetectLanguage(t *testing.T) {
	tests := map[string]string{
		"main.go":            "go",
		"app/index.tsx":      "tsx",
		"scripts/deploy.sh":  "shell",
		"src/lib.rs":         "rust",
		"deep/pkg/mod.py":    "python",
		"README.md":          "markdown",
		"Dockerfile":         "dockerfile",
		"config/app.yaml":    "yaml",
	}
	for path, want := range tests {
		assert.Equal(t, want, DetectLanguage(path), path)
	}
}

func TestHeuristicParserRust(t *testing.T) {
	src := `use std::collections::HashMap;

pub struct Registry {
    items: HashMap<String, u32>,
}

impl Registry {
    pub fn insert(&mut self, key: String) {
        self.items.insert(key, 0);
    }
}

pub fn standalone() -> u32 {
    compute_total()
}
`
	p := NewHeuristicParser()
	result, err := p.Parse([]byte(src), "rust")
	require.NoError(t, err)

	var names []string
	for _, d := range result.Definitions {
		names = append(names, d.Name)
	}
	assert.Contains(t, names, "Registry")
	assert.Contains(t, names, "insert")
	assert.Contains(t, names, "standalone")
	assert.Contains(t, result.Imports, "std::collections::HashMap")
	assert.Contains(t, result.Calls, "compute_total")
}

func TestParseFailureDegradesToLineWindows(t *testing.T) {
	// A language with neither grammar nor heuristic patterns still
	// chunks by line windows.
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "line of configuration data")
	}
	c := NewCodeChunker(NewParser())
	chunks := c.Chunk([]byte(strings.Join(lines, "\n")), "toml")
	require.NotEmpty(t, chunks)
	for _, ch := range chunks {
		assert.Equal(t, store.ChunkTypeBlock, ch.ChunkType)
		assert.LessOrEqual(t, ch.EndLine-ch.StartLine+1, WindowLines)
	}
}

func TestEmbeddingTextCarriesMetadata(t *testing.T) {
	c := NewCodeChunker(NewParser())
	chunks := c.Chunk([]byte(goSample), "go")

	for _, ch := range chunks {
		if ch.DefinitionName == "Render" {
			assert.Contains(t, ch.EmbeddingText, "name: Render")
			assert.Contains(t, ch.EmbeddingText, "kind: function")
			assert.Contains(t, ch.EmbeddingText, ch.Content)
			return
		}
	}
	t.Fatal("Render chunk not found")
}

func TestChunkDocumentSplitsOnHeadings(t *testing.T) {
	doc := "# Title\n\nIntro paragraph with enough text to stand alone as a chunk body here.\n\n" +
		"# Second Section\n\n" + strings.Repeat("More prose content in the second section. ", 60)

	chunks := ChunkDocument(doc)
	require.NotEmpty(t, chunks)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex)
		assert.NotEmpty(t, ch.Content)
	}
}

func TestChunkDocumentEmptyInput(t *testing.T) {
	assert.Empty(t, ChunkDocument("   \n\t  "))
}

package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ccengram/ccengram/internal/store"
)

// CodeChunker produces embeddable chunks from source files.
type CodeChunker struct {
	parser Parser
}

// NewCodeChunker creates a chunker over the given parser collaborator.
func NewCodeChunker(parser Parser) *CodeChunker {
	return &CodeChunker{parser: parser}
}

// Chunk splits a source file into chunks:
//
//  1. Each definition is one chunk; methods inside a container are
//     separate chunks with ParentDefinition set.
//  2. Imports collapse into at most one Import chunk per file.
//  3. Remaining module-level code forms Block chunks by line windows.
//
// On parse failure the whole file degrades to line windows.
func (c *CodeChunker) Chunk(content []byte, language string) []*Chunk {
	if language == "" {
		return nil
	}

	lines := strings.Split(string(content), "\n")

	result, err := c.parser.Parse(content, language)
	if err != nil || result == nil {
		return lineWindowChunks(lines, 1)
	}

	var chunks []*Chunk
	covered := make([]bool, len(lines)+1) // 1-indexed

	// Definition chunks.
	for _, def := range result.Definitions {
		start, end := clampSpan(def.StartLine, def.EndLine, len(lines))
		if start > end {
			continue
		}
		text := strings.Join(lines[start-1:end], "\n")

		chunk := &Chunk{
			Content:          text,
			ChunkType:        chunkTypeFor(def.Kind),
			Symbols:          []string{def.Name},
			Calls:            result.Calls,
			StartLine:        start,
			EndLine:          end,
			ContentHash:      ContentHash(text),
			DefinitionKind:   def.Kind,
			DefinitionName:   def.Name,
			Visibility:       def.Visibility,
			Signature:        def.Signature,
			Docstring:        def.Docstring,
			ParentDefinition: def.Parent,
		}
		chunk.EmbeddingText = buildEmbeddingText(chunk)
		chunks = append(chunks, chunk)

		// Only top-level definitions mark coverage; method spans are
		// inside their container's span anyway.
		if def.Parent == "" {
			for i := start; i <= end; i++ {
				covered[i] = true
			}
		}
	}

	// Import chunk: collapse all import lines into one chunk.
	if importChunk := buildImportChunk(lines, result.Imports, covered); importChunk != nil {
		chunks = append(chunks, importChunk)
	}

	// Block chunks over the uncovered remainder.
	chunks = append(chunks, blockChunks(lines, covered, result.Calls)...)

	return chunks
}

// chunkTypeFor maps a definition kind to a chunk type.
func chunkTypeFor(kind string) store.ChunkType {
	switch kind {
	case "function", "method":
		return store.ChunkTypeFunction
	case "class", "interface", "trait", "impl", "enum", "type":
		return store.ChunkTypeClass
	case "module":
		return store.ChunkTypeModule
	default:
		return store.ChunkTypeBlock
	}
}

// buildImportChunk collapses contiguous-or-not import lines into one chunk.
func buildImportChunk(lines []string, imports []string, covered []bool) *Chunk {
	if len(imports) == 0 {
		return nil
	}

	first, last := 0, 0
	var importLines []string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if isImportLine(trimmed) {
			if first == 0 {
				first = i + 1
			}
			last = i + 1
			importLines = append(importLines, line)
			covered[i+1] = true
		}
	}
	if len(importLines) == 0 {
		// Parser found imports but the line scan did not (multi-line
		// import blocks); no import chunk is produced.
		return nil
	}

	text := strings.Join(importLines, "\n")
	chunk := &Chunk{
		Content:     text,
		ChunkType:   store.ChunkTypeImport,
		Imports:     imports,
		StartLine:   first,
		EndLine:     last,
		ContentHash: ContentHash(text),
	}
	chunk.EmbeddingText = buildEmbeddingText(chunk)
	return chunk
}

func isImportLine(trimmed string) bool {
	for _, prefix := range []string{"import ", "import\t", "from ", "use ", "require ", "#include", "using ", "require(", "require_relative"} {
		if strings.HasPrefix(trimmed, prefix) {
			return true
		}
	}
	// Quoted members of Go-style import blocks; a bare closing paren is
	// not an import line.
	if trimmed == "import (" || trimmed == ")" {
		return trimmed == "import ("
	}
	return strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`)
}

// blockChunks windows the uncovered lines into Block chunks.
func blockChunks(lines []string, covered []bool, calls []string) []*Chunk {
	var chunks []*Chunk

	i := 1
	for i <= len(lines) {
		// Find the next uncovered stretch with content.
		for i <= len(lines) && (covered[i] || strings.TrimSpace(lines[i-1]) == "") {
			i++
		}
		if i > len(lines) {
			break
		}

		start := i
		for i <= len(lines) && !covered[i] {
			i++
		}
		end := i - 1

		for _, c := range windowSpan(lines, start, end, calls) {
			chunks = append(chunks, c)
		}
	}
	return chunks
}

// windowSpan splits [start, end] into overlapping windows.
func windowSpan(lines []string, start, end int, calls []string) []*Chunk {
	var chunks []*Chunk
	for s := start; s <= end; s += WindowStride {
		e := s + WindowLines - 1
		if e > end {
			e = end
		}
		text := strings.Join(lines[s-1:e], "\n")
		if strings.TrimSpace(text) == "" {
			if e == end {
				break
			}
			continue
		}
		chunk := &Chunk{
			Content:     text,
			ChunkType:   store.ChunkTypeBlock,
			Calls:       calls,
			StartLine:   s,
			EndLine:     e,
			ContentHash: ContentHash(text),
		}
		chunk.EmbeddingText = buildEmbeddingText(chunk)
		chunks = append(chunks, chunk)
		if e == end {
			break
		}
	}
	return chunks
}

// lineWindowChunks is the parse-failure fallback: plain windows over the
// whole file.
func lineWindowChunks(lines []string, startLine int) []*Chunk {
	if len(lines) == 0 {
		return nil
	}
	return windowSpan(lines, startLine, len(lines), nil)
}

// clampSpan bounds a 1-indexed span to the file.
func clampSpan(start, end, lineCount int) (int, int) {
	if start < 1 {
		start = 1
	}
	if end > lineCount {
		end = lineCount
	}
	return start, end
}

// ContentHash is the stable hash of a chunk's normalized content:
// trailing whitespace stripped per line so positional shifts and
// formatting noise don't force re-embedding.
func ContentHash(content string) string {
	lines := strings.Split(content, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	normalized := strings.TrimSpace(strings.Join(lines, "\n"))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// FileHash hashes a whole file's raw content.
func FileHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// buildEmbeddingText prefaces code with structured metadata so that
// metadata shapes the vector space.
func buildEmbeddingText(c *Chunk) string {
	var sb strings.Builder
	sb.WriteString("kind: ")
	sb.WriteString(string(c.ChunkType))
	sb.WriteString("\n")
	if c.DefinitionName != "" {
		fmt.Fprintf(&sb, "name: %s\n", c.DefinitionName)
	}
	if c.ParentDefinition != "" {
		fmt.Fprintf(&sb, "parent: %s\n", c.ParentDefinition)
	}
	if c.Signature != "" {
		fmt.Fprintf(&sb, "signature: %s\n", c.Signature)
	}
	if len(c.Imports) > 0 {
		fmt.Fprintf(&sb, "imports: %s\n", strings.Join(c.Imports, ", "))
	}
	sb.WriteString("\n")
	sb.WriteString(c.Content)
	return sb.String()
}

// TokensEstimate approximates the token count of content.
func TokensEstimate(content string) int {
	return len(content) / TokensPerChar
}

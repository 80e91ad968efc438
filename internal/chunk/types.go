// Package chunk turns source files into embeddable chunks. AST-aware
// chunking runs through tree-sitter for the languages with grammar
// bindings; everything else goes through a heuristic line parser, and
// parse failures degrade to plain line windows.
package chunk

import (
	"github.com/ccengram/ccengram/internal/store"
)

// Line-window parameters for block chunking and parse-failure fallback.
const (
	WindowLines  = 40
	WindowStride = 30 // 10 lines of overlap
)

// TokensPerChar approximates tokens from characters.
const TokensPerChar = 4

// Definition is one named declaration extracted by a parser.
type Definition struct {
	Kind      string // function, method, class, type, interface, trait, impl
	Name      string
	Parent    string // containing class/impl, empty for top-level
	StartLine int    // 1-indexed
	EndLine   int    // inclusive
	Signature string
	Docstring string
	Visibility string
}

// ParseResult is the parser collaborator's output.
type ParseResult struct {
	Imports     []string
	Calls       []string
	Definitions []Definition
}

// Parser extracts structure from source text.
type Parser interface {
	// Languages returns the language names this parser supports.
	Languages() []string

	// Parse extracts imports, calls, and definitions. Line spans are
	// byte-precise and 1-indexed.
	Parse(content []byte, language string) (*ParseResult, error)
}

// Chunk is the chunker's output before persistence. The indexer assigns
// ids and converts to store rows.
type Chunk struct {
	Content   string
	ChunkType store.ChunkType

	Symbols []string
	Imports []string
	Calls   []string

	StartLine int
	EndLine   int

	ContentHash string

	DefinitionKind   string
	DefinitionName   string
	Visibility       string
	Signature        string
	Docstring        string
	ParentDefinition string
	EmbeddingText    string
}

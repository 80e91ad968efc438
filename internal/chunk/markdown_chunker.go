package chunk

import (
	"strings"
)

// DocChunk is one segment of a prose document before persistence.
type DocChunk struct {
	Content    string
	Title      string
	ChunkIndex int
	CharOffset int
}

// Target size for document chunks, in characters.
const (
	docChunkTarget = 2000
	docChunkMin    = 200
)

// ChunkDocument splits markdown or plain text into chunks on heading
// boundaries, merging short sections and splitting oversize ones on
// paragraph breaks. Offsets index into the original content.
func ChunkDocument(content string) []*DocChunk {
	if strings.TrimSpace(content) == "" {
		return nil
	}

	sections := splitSections(content)

	// Merge short sections forward so chunks stay retrieval-sized.
	var merged []section
	for _, s := range sections {
		if n := len(merged); n > 0 && len(merged[n-1].text)+len(s.text) < docChunkTarget {
			merged[n-1].text += s.text
			continue
		}
		merged = append(merged, s)
	}

	var chunks []*DocChunk
	for _, s := range merged {
		for _, piece := range splitOversize(s.text) {
			text := strings.TrimSpace(piece.text)
			if len(text) < docChunkMin && len(chunks) > 0 {
				chunks[len(chunks)-1].Content += "\n\n" + text
				continue
			}
			if text == "" {
				continue
			}
			chunks = append(chunks, &DocChunk{
				Content:    text,
				Title:      s.title,
				CharOffset: s.offset + piece.offset,
			})
		}
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks
}

type section struct {
	title  string
	text   string
	offset int
}

// splitSections cuts content at markdown headings.
func splitSections(content string) []section {
	lines := strings.SplitAfter(content, "\n")

	var sections []section
	current := section{}
	offset := 0

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			if strings.TrimSpace(current.text) != "" {
				sections = append(sections, current)
			}
			current = section{
				title:  strings.TrimLeft(trimmed, "# "),
				offset: offset,
			}
		}
		current.text += line
		offset += len(line)
	}
	if strings.TrimSpace(current.text) != "" {
		sections = append(sections, current)
	}
	return sections
}

type piece struct {
	text   string
	offset int
}

// splitOversize cuts a section at paragraph breaks when it exceeds the
// target size.
func splitOversize(text string) []piece {
	if len(text) <= docChunkTarget*2 {
		return []piece{{text: text}}
	}

	paragraphs := strings.SplitAfter(text, "\n\n")
	var pieces []piece
	current := piece{}
	offset := 0

	for _, p := range paragraphs {
		if len(current.text)+len(p) > docChunkTarget*2 && current.text != "" {
			pieces = append(pieces, current)
			current = piece{offset: offset}
		}
		current.text += p
		offset += len(p)
	}
	if current.text != "" {
		pieces = append(pieces, current)
	}
	return pieces
}

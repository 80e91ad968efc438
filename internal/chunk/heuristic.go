package chunk

import (
	"regexp"
	"strings"
)

// HeuristicParser extracts structure with per-family regular
// expressions for languages without grammar bindings. Line spans for a
// definition run to the last line before the next non-blank line at the
// same or shallower indent (closing "}", ")" and "end" lines stay in the
// span), which is close enough for chunk boundaries.
type HeuristicParser struct{}

// NewHeuristicParser creates the regex-based parser.
func NewHeuristicParser() *HeuristicParser {
	return &HeuristicParser{}
}

// Languages lists the families with definition patterns.
func (p *HeuristicParser) Languages() []string {
	langs := make([]string, 0, len(definitionPatterns))
	for l := range definitionPatterns {
		langs = append(langs, l)
	}
	return langs
}

type defPattern struct {
	re   *regexp.Regexp
	kind string
}

var definitionPatterns = map[string][]defPattern{
	"rust": {
		{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?(?:async\s+)?fn\s+(\w+)`), "function"},
		{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?struct\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?enum\s+(\w+)`), "enum"},
		{regexp.MustCompile(`^\s*(?:pub(?:\([^)]*\))?\s+)?trait\s+(\w+)`), "trait"},
		{regexp.MustCompile(`^\s*impl(?:<[^>]*>)?\s+(?:\w+\s+for\s+)?(\w+)`), "impl"},
	},
	"java": {
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?(?:final\s+)?class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*interface\s+(\w+)`), "interface"},
		{regexp.MustCompile(`^\s*(?:public|private|protected)\s+(?:static\s+)?[\w<>\[\]]+\s+(\w+)\s*\(`), "method"},
	},
	"ruby": {
		{regexp.MustCompile(`^\s*def\s+(?:self\.)?(\w+[?!]?)`), "function"},
		{regexp.MustCompile(`^\s*class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*module\s+(\w+)`), "module"},
	},
	"c": {
		{regexp.MustCompile(`^[\w\*]+\s+\**(\w+)\s*\([^;]*$`), "function"},
		{regexp.MustCompile(`^\s*(?:typedef\s+)?struct\s+(\w+)`), "class"},
	},
	"cpp": {
		{regexp.MustCompile(`^[\w:<>\*&\s]+\s+\**(\w+)\s*\([^;]*$`), "function"},
		{regexp.MustCompile(`^\s*class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*(?:typedef\s+)?struct\s+(\w+)`), "class"},
	},
	"csharp": {
		{regexp.MustCompile(`^\s*(?:public|private|protected|internal)?\s*(?:static\s+)?(?:partial\s+)?class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*(?:public|private|protected|internal)\s+(?:static\s+|async\s+)*[\w<>\[\]]+\s+(\w+)\s*\(`), "method"},
	},
	"php": {
		{regexp.MustCompile(`^\s*(?:public|private|protected)?\s*(?:static\s+)?function\s+(\w+)`), "function"},
		{regexp.MustCompile(`^\s*(?:abstract\s+|final\s+)?class\s+(\w+)`), "class"},
	},
	"swift": {
		{regexp.MustCompile(`^\s*(?:public|private|internal|open)?\s*func\s+(\w+)`), "function"},
		{regexp.MustCompile(`^\s*(?:public|private|internal|open)?\s*(?:class|struct|enum|protocol)\s+(\w+)`), "class"},
	},
	"kotlin": {
		{regexp.MustCompile(`^\s*(?:suspend\s+)?fun\s+(?:[\w<>.]+\.)?(\w+)`), "function"},
		{regexp.MustCompile(`^\s*(?:data\s+|sealed\s+|abstract\s+)?class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*(?:object|interface)\s+(\w+)`), "class"},
	},
	"scala": {
		{regexp.MustCompile(`^\s*def\s+(\w+)`), "function"},
		{regexp.MustCompile(`^\s*(?:case\s+)?class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*(?:object|trait)\s+(\w+)`), "class"},
	},
	"elixir": {
		{regexp.MustCompile(`^\s*defp?\s+(\w+[?!]?)`), "function"},
		{regexp.MustCompile(`^\s*defmodule\s+([\w.]+)`), "module"},
	},
	"shell": {
		{regexp.MustCompile(`^\s*(?:function\s+)?(\w+)\s*\(\)\s*\{?`), "function"},
	},
	"lua": {
		{regexp.MustCompile(`^\s*(?:local\s+)?function\s+([\w.:]+)`), "function"},
	},
	"perl": {
		{regexp.MustCompile(`^\s*sub\s+(\w+)`), "function"},
	},
	"haskell": {
		{regexp.MustCompile(`^(\w+)\s*::`), "function"},
		{regexp.MustCompile(`^data\s+(\w+)`), "class"},
	},
	"erlang": {
		{regexp.MustCompile(`^(\w+)\s*\(.*\)\s*->`), "function"},
	},
	"ocaml": {
		{regexp.MustCompile(`^\s*let\s+(?:rec\s+)?(\w+)`), "function"},
		{regexp.MustCompile(`^\s*type\s+(\w+)`), "type"},
	},
	"r": {
		{regexp.MustCompile(`^\s*(\w[\w.]*)\s*(?:<-|=)\s*function`), "function"},
	},
	"julia": {
		{regexp.MustCompile(`^\s*function\s+([\w!.]+)`), "function"},
		{regexp.MustCompile(`^\s*struct\s+(\w+)`), "class"},
	},
	"dart": {
		{regexp.MustCompile(`^\s*class\s+(\w+)`), "class"},
		{regexp.MustCompile(`^\s*[\w<>\[\]]+\s+(\w+)\s*\([^;]*$`), "function"},
	},
	"zig": {
		{regexp.MustCompile(`^\s*(?:pub\s+)?fn\s+(\w+)`), "function"},
	},
	"nim": {
		{regexp.MustCompile(`^\s*(?:proc|func|method)\s+(\w+)`), "function"},
	},
}

var importPatterns = map[string]*regexp.Regexp{
	"rust":   regexp.MustCompile(`^\s*use\s+([\w:{},\s*]+);`),
	"java":   regexp.MustCompile(`^\s*import\s+(?:static\s+)?([\w.*]+);`),
	"ruby":   regexp.MustCompile(`^\s*require(?:_relative)?\s+['"]([^'"]+)['"]`),
	"c":      regexp.MustCompile(`^\s*#include\s+[<"]([^>"]+)[>"]`),
	"cpp":    regexp.MustCompile(`^\s*#include\s+[<"]([^>"]+)[>"]`),
	"csharp": regexp.MustCompile(`^\s*using\s+([\w.]+);`),
	"php":    regexp.MustCompile(`^\s*use\s+([\w\\]+);`),
	"swift":  regexp.MustCompile(`^\s*import\s+(\w+)`),
	"kotlin": regexp.MustCompile(`^\s*import\s+([\w.*]+)`),
	"scala":  regexp.MustCompile(`^\s*import\s+([\w.{},\s]+)`),
	"elixir": regexp.MustCompile(`^\s*(?:import|alias|use)\s+([\w.]+)`),
}

var callPattern = regexp.MustCompile(`\b([a-zA-Z_]\w*)\s*\(`)

// heuristicKeywords are call-shaped tokens that are not calls.
var heuristicKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "fn": true, "func": true, "function": true, "def": true,
	"new": true, "match": true, "sizeof": true, "typeof": true,
}

// Parse extracts structure line by line.
func (p *HeuristicParser) Parse(content []byte, language string) (*ParseResult, error) {
	lines := strings.Split(string(content), "\n")
	result := &ParseResult{}

	patterns := definitionPatterns[language]
	importRe := importPatterns[language]

	for i, line := range lines {
		if importRe != nil {
			if m := importRe.FindStringSubmatch(line); m != nil {
				result.Imports = append(result.Imports, strings.TrimSpace(m[1]))
			}
		}

		for _, dp := range patterns {
			m := dp.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			def := Definition{
				Kind:      dp.kind,
				Name:      m[1],
				StartLine: i + 1,
				EndLine:   endOfBlock(lines, i),
				Signature: strings.TrimSpace(line),
			}
			result.Definitions = append(result.Definitions, def)
			break
		}

		for _, m := range callPattern.FindAllStringSubmatch(line, -1) {
			if !heuristicKeywords[m[1]] {
				result.Calls = append(result.Calls, m[1])
			}
		}
	}

	dedupeStrings(&result.Calls)
	return result, nil
}

// endOfBlock finds the last line of a definition starting at start: the
// line before the next line with content at equal or shallower indent.
func endOfBlock(lines []string, start int) int {
	indent := indentOf(lines[start])
	end := start
	for i := start + 1; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			continue
		}
		if indentOf(lines[i]) <= indent && !strings.HasPrefix(trimmed, "}") &&
			!strings.HasPrefix(trimmed, "end") && !strings.HasPrefix(trimmed, ")") {
			return end + 1
		}
		end = i
	}
	return end + 1
}

func indentOf(line string) int {
	n := 0
	for _, r := range line {
		switch r {
		case ' ':
			n++
		case '\t':
			n += 4
		default:
			return n
		}
	}
	return n
}

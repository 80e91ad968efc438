package chunk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// TreeSitterParser parses the languages with grammar bindings and
// delegates the rest to the heuristic parser. Parsers are pooled per
// call because sitter.Parser is not safe for concurrent use.
type TreeSitterParser struct {
	pool sync.Pool

	heuristic *HeuristicParser
}

var _ Parser = (*TreeSitterParser)(nil)

// NewParser creates the default parser collaborator.
func NewParser() *TreeSitterParser {
	return &TreeSitterParser{
		pool: sync.Pool{
			New: func() any { return sitter.NewParser() },
		},
		heuristic: NewHeuristicParser(),
	}
}

// Languages returns all supported language names.
func (p *TreeSitterParser) Languages() []string {
	langs := make([]string, 0, len(treeSitterLanguages))
	for l := range treeSitterLanguages {
		langs = append(langs, l)
	}
	return append(langs, p.heuristic.Languages()...)
}

// Parse extracts structure from source. Languages without a grammar
// binding fall through to the heuristic parser; a failed tree-sitter
// parse degrades the same way.
func (p *TreeSitterParser) Parse(content []byte, language string) (*ParseResult, error) {
	lang, ok := treeSitterLanguages[language]
	if !ok {
		return p.heuristic.Parse(content, language)
	}

	parser := p.pool.Get().(*sitter.Parser)
	defer p.pool.Put(parser)
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil || tree == nil {
		return p.heuristic.Parse(content, language)
	}
	defer tree.Close()

	kinds := languageNodeKinds[language]
	result := &ParseResult{}
	collectDefinitions(tree.RootNode(), content, language, kinds, "", result)
	collectCalls(tree.RootNode(), content, kinds, result)
	dedupeStrings(&result.Calls)
	return result, nil
}

// collectDefinitions walks top-level and class-nested declarations.
func collectDefinitions(node *sitter.Node, source []byte, language string, kinds nodeKinds, parent string, out *ParseResult) {
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		nodeType := child.Type()

		switch {
		case kinds.imports[nodeType]:
			out.Imports = append(out.Imports, extractImports(child, source)...)

		case kinds.functions[nodeType]:
			if def, ok := makeDefinition(child, source, "function", parent); ok {
				if parent != "" {
					def.Kind = "method"
				}
				out.Definitions = append(out.Definitions, def)
			}

		case kinds.methods[nodeType]:
			if def, ok := makeDefinition(child, source, "method", parent); ok {
				out.Definitions = append(out.Definitions, def)
			}

		case kinds.classes[nodeType]:
			if def, ok := makeDefinition(child, source, classKind(nodeType), parent); ok {
				out.Definitions = append(out.Definitions, def)
				// Methods inside a class become separate definitions.
				if body := child.ChildByFieldName("body"); body != nil {
					collectDefinitions(body, source, language, kinds, def.Name, out)
				}
			}

		default:
			// Containers like source_file wrappers or export statements.
			if child.NamedChildCount() > 0 && (nodeType == "export_statement" || nodeType == "block") {
				collectDefinitions(child, source, language, kinds, parent, out)
			}
		}
	}
}

func classKind(nodeType string) string {
	switch {
	case strings.Contains(nodeType, "interface"):
		return "interface"
	case strings.Contains(nodeType, "type_alias"), strings.Contains(nodeType, "type_declaration"):
		return "type"
	case strings.Contains(nodeType, "enum"):
		return "enum"
	default:
		return "class"
	}
}

// makeDefinition builds a Definition from a declaration node.
func makeDefinition(node *sitter.Node, source []byte, kind, parent string) (Definition, bool) {
	name := nodeName(node, source)
	if name == "" {
		return Definition{}, false
	}

	def := Definition{
		Kind:      kind,
		Name:      name,
		Parent:    parent,
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Signature: firstLine(node.Content(source)),
	}
	if isExported(name) {
		def.Visibility = "public"
	} else {
		def.Visibility = "private"
	}
	return def, true
}

// nodeName finds a declaration's name, trying the name field then the
// first identifier child.
func nodeName(node *sitter.Node, source []byte) string {
	if name := node.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		t := child.Type()
		if t == "identifier" || t == "type_identifier" || t == "field_identifier" || t == "property_identifier" {
			return child.Content(source)
		}
		// Go type_declaration wraps a type_spec; lexical_declaration wraps
		// a variable_declarator.
		if t == "type_spec" || t == "variable_declarator" {
			return nodeName(child, source)
		}
	}
	return ""
}

// extractImports pulls module paths as written from an import node.
func extractImports(node *sitter.Node, source []byte) []string {
	var imports []string
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			t := child.Type()
			if t == "interpreted_string_literal" || t == "string" || t == "string_literal" ||
				t == "dotted_name" || t == "import_path" {
				imports = append(imports, strings.Trim(child.Content(source), `"'`))
				continue
			}
			walk(child)
		}
	}
	walk(node)
	return imports
}

// collectCalls records called symbol names across the whole tree.
func collectCalls(node *sitter.Node, source []byte, kinds nodeKinds, out *ParseResult) {
	if kinds.calls[node.Type()] {
		if fn := node.ChildByFieldName("function"); fn != nil {
			name := fn.Content(source)
			// Keep the final segment of selector expressions.
			if idx := strings.LastIndexAny(name, ".:"); idx >= 0 && idx+1 < len(name) {
				name = name[idx+1:]
			}
			if name != "" {
				out.Calls = append(out.Calls, name)
			}
		}
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectCalls(node.NamedChild(i), source, kinds, out)
	}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "{")
}

func isExported(name string) bool {
	if name == "" {
		return false
	}
	c := name[0]
	return c >= 'A' && c <= 'Z'
}

func dedupeStrings(list *[]string) {
	seen := make(map[string]bool, len(*list))
	out := (*list)[:0]
	for _, s := range *list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	*list = out
}

// ParseError reports a file the parser could not handle; callers degrade
// to line windows.
type ParseError struct {
	Language string
	Err      error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse failed for %s: %v", e.Language, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

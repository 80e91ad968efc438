package chunk

import (
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extensionLanguages maps file extensions to language names. Unknown
// extensions produce no chunks.
var extensionLanguages = map[string]string{
	".go":    "go",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".cjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "tsx",
	".py":    "python",
	".pyi":   "python",
	".rs":    "rust",
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".c":     "c",
	".h":     "c",
	".cc":    "cpp",
	".cpp":   "cpp",
	".cxx":   "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".rb":    "ruby",
	".php":   "php",
	".swift": "swift",
	".scala": "scala",
	".clj":   "clojure",
	".ex":    "elixir",
	".exs":   "elixir",
	".erl":   "erlang",
	".hs":    "haskell",
	".ml":    "ocaml",
	".lua":   "lua",
	".pl":    "perl",
	".r":     "r",
	".jl":    "julia",
	".dart":  "dart",
	".zig":   "zig",
	".nim":   "nim",
	".sh":    "shell",
	".bash":  "shell",
	".zsh":   "shell",
	".fish":  "shell",
	".sql":   "sql",
	".proto": "protobuf",
	".tf":    "terraform",
	".vue":   "vue",
	".svelte": "svelte",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".json":  "json",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".xml":   "xml",
	".ini":   "ini",
	".md":    "markdown",
	".mdx":   "markdown",
	".txt":   "text",
	".rst":   "rst",
}

// DetectLanguage maps a file path to its language name. Returns empty
// for unknown extensions.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := extensionLanguages[ext]; ok {
		return lang
	}
	// Dockerfiles and Makefiles have no extension.
	base := strings.ToLower(filepath.Base(path))
	switch base {
	case "dockerfile":
		return "dockerfile"
	case "makefile":
		return "makefile"
	}
	return ""
}

// IsDocLanguage reports whether a language is prose rather than code.
func IsDocLanguage(lang string) bool {
	switch lang {
	case "markdown", "text", "rst":
		return true
	}
	return false
}

// treeSitterLanguages are the grammars with compiled bindings. Other
// languages run through the heuristic parser.
var treeSitterLanguages = map[string]*sitter.Language{
	"go":         golang.GetLanguage(),
	"javascript": javascript.GetLanguage(),
	"typescript": typescript.GetLanguage(),
	"tsx":        tsx.GetLanguage(),
	"python":     python.GetLanguage(),
}

// nodeKinds describes the AST node types of interest per language.
type nodeKinds struct {
	functions map[string]bool
	classes   map[string]bool
	methods   map[string]bool
	imports   map[string]bool
	calls     map[string]bool
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

var languageNodeKinds = map[string]nodeKinds{
	"go": {
		functions: set("function_declaration"),
		methods:   set("method_declaration"),
		classes:   set("type_declaration"),
		imports:   set("import_declaration"),
		calls:     set("call_expression"),
	},
	"javascript": {
		functions: set("function_declaration", "generator_function_declaration", "lexical_declaration"),
		methods:   set("method_definition"),
		classes:   set("class_declaration"),
		imports:   set("import_statement"),
		calls:     set("call_expression"),
	},
	"typescript": {
		functions: set("function_declaration", "lexical_declaration"),
		methods:   set("method_definition"),
		classes:   set("class_declaration", "interface_declaration", "type_alias_declaration", "enum_declaration"),
		imports:   set("import_statement"),
		calls:     set("call_expression"),
	},
	"tsx": {
		functions: set("function_declaration", "lexical_declaration"),
		methods:   set("method_definition"),
		classes:   set("class_declaration", "interface_declaration", "type_alias_declaration"),
		imports:   set("import_statement"),
		calls:     set("call_expression"),
	},
	"python": {
		functions: set("function_definition", "decorated_definition"),
		methods:   set(), // methods are function_definitions nested in class bodies
		classes:   set("class_definition"),
		imports:   set("import_statement", "import_from_statement"),
		calls:     set("call"),
	},
}

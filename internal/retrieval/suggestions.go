package retrieval

import (
	"sort"
	"strings"
)

// expansionMap holds bidirectional query expansions for common
// programming concepts: searching "auth" suggests "authentication",
// and vice versa.
var expansionMap = map[string][]string{
	// Authentication & authorization
	"auth":           {"authentication", "authorization", "login", "session"},
	"authentication": {"auth", "login", "credentials", "oauth"},
	"authorization":  {"auth", "permissions", "roles", "access"},
	"login":          {"auth", "signin", "authentication", "session"},
	"session":        {"auth", "token", "jwt", "cookie"},
	"oauth":          {"authentication", "sso", "token", "openid"},
	"jwt":            {"token", "auth", "session", "bearer"},

	// Database
	"database":   {"db", "sql", "query", "orm", "repository"},
	"db":         {"database", "sql", "storage", "persistence"},
	"sql":        {"database", "query", "orm", "migration"},
	"orm":        {"database", "model", "entity", "repository"},
	"query":      {"database", "sql", "search", "filter"},
	"migration":  {"database", "schema", "sql", "upgrade"},
	"repository": {"database", "dao", "store", "persistence"},

	// API & HTTP
	"api":        {"endpoint", "rest", "http", "route", "handler"},
	"endpoint":   {"api", "route", "handler", "controller"},
	"rest":       {"api", "http", "endpoint", "crud"},
	"http":       {"api", "request", "response", "client"},
	"route":      {"api", "endpoint", "handler", "path"},
	"handler":    {"api", "controller", "endpoint", "route"},
	"middleware": {"api", "handler", "interceptor", "filter"},

	// Error handling
	"error":     {"exception", "failure", "result", "handling"},
	"exception": {"error", "throw", "catch", "try"},
	"result":    {"error", "option", "maybe", "either"},

	// Testing
	"test":        {"testing", "unit", "integration", "mock"},
	"testing":     {"test", "spec", "assertion", "fixture"},
	"mock":        {"test", "stub", "fake", "double"},
	"unit":        {"test", "testing", "isolated", "function"},
	"integration": {"test", "e2e", "end-to-end", "system"},

	// Configuration
	"config":        {"configuration", "settings", "options", "env"},
	"configuration": {"config", "settings", "setup", "options"},
	"settings":      {"config", "options", "preferences", "parameters"},
	"env":           {"config", "environment", "variables", "dotenv"},

	// Async & concurrency
	"async":      {"await", "future", "promise", "concurrent"},
	"concurrent": {"async", "parallel", "thread", "sync"},
	"thread":     {"concurrent", "parallel", "spawn", "worker"},
	"sync":       {"concurrent", "mutex", "lock", "atomic"},

	// Data structures
	"list": {"array", "vector", "collection", "slice"},
	"map":  {"dict", "hashmap", "object", "record"},
	"set":  {"hashset", "collection", "unique"},
	"tree": {"node", "graph", "hierarchy", "structure"},

	// Patterns
	"factory":   {"builder", "create", "construct", "pattern"},
	"builder":   {"factory", "construct", "fluent", "pattern"},
	"singleton": {"instance", "global", "pattern"},
	"observer":  {"event", "listener", "subscribe", "pattern"},
	"strategy":  {"policy", "behavior", "pattern"},

	// Frontend
	"component": {"widget", "view", "ui", "render"},
	"state":     {"store", "redux", "context", "management"},
	"render":    {"display", "draw", "view", "ui"},
	"style":     {"css", "styling", "theme", "layout"},

	// File operations
	"file":   {"io", "read", "write", "filesystem"},
	"io":     {"file", "stream", "read", "write"},
	"stream": {"io", "buffer", "read", "write"},

	// Network
	"network":   {"socket", "connection", "tcp", "http"},
	"socket":    {"network", "tcp", "connection", "websocket"},
	"websocket": {"socket", "realtime", "ws", "connection"},

	// Security
	"security":   {"encryption", "hash", "password", "auth"},
	"encryption": {"security", "crypto", "decrypt", "cipher"},
	"hash":       {"security", "digest", "sha", "md5"},
	"password":   {"security", "hash", "auth", "credential"},

	// Logging & monitoring
	"log":     {"logging", "trace", "debug", "monitor"},
	"logging": {"log", "logger", "trace", "output"},
	"trace":   {"log", "debug", "span", "telemetry"},
	"metric":  {"monitor", "measure", "stats", "telemetry"},
}

// programmingSuffixes mark content words likely to be useful query
// expansions.
var programmingSuffixes = []string{"er", "or", "ion"}

// curatedContentWords are programming-ish words without those suffixes.
var curatedContentWords = map[string]bool{
	"cache": true, "queue": true, "index": true, "batch": true,
	"retry": true, "token": true, "event": true, "client": true,
	"schema": true, "model": true, "worker": true, "daemon": true,
}

// GenerateSuggestions produces up to max query expansions from the
// synonym map, cleaned symbol roots of top results, and frequent
// programming-ish content words, de-duplicated against the query terms.
func GenerateSuggestions(query string, results []Result, max int) []string {
	if max <= 0 {
		return nil
	}

	queryTerms := make(map[string]bool)
	for _, t := range tokenizeQuery(query) {
		queryTerms[t] = true
	}

	type scored struct {
		text  string
		score float64
	}
	var candidates []scored
	seen := make(map[string]bool)

	add := func(text string, score float64) {
		text = strings.ToLower(strings.TrimSpace(text))
		if text == "" || len(text) < 2 || seen[text] {
			return
		}
		if tooSimilar(text, queryTerms) {
			return
		}
		seen[text] = true
		candidates = append(candidates, scored{text, score})
	}

	// Direct expansions: high priority.
	for term := range queryTerms {
		for _, exp := range expansionMap[term] {
			add(exp, 0.9)
		}
	}

	// Reverse expansions: keys whose values mention a query term.
	for key, values := range expansionMap {
		for _, v := range values {
			if queryTerms[v] {
				add(key, 0.85)
				break
			}
		}
	}

	// Symbol roots from top results: medium priority.
	for _, r := range results {
		if r.Chunk == nil {
			continue
		}
		for _, sym := range r.Chunk.Symbols {
			add(cleanSymbol(sym), 0.7)
		}
	}

	// Content words: lower priority.
	for _, r := range results {
		content := ""
		switch {
		case r.Memory != nil:
			content = r.Memory.Content
		case r.Chunk != nil:
			content = r.Chunk.Content
		}
		for _, word := range significantWords(content) {
			add(word, 0.5)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	out := make([]string, 0, max)
	for _, c := range candidates {
		out = append(out, c.text)
		if len(out) >= max {
			break
		}
	}
	return out
}

// tokenizeQuery lowercases and splits on non-alphanumerics, keeping
// terms of at least two characters.
func tokenizeQuery(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_')
	})
	var out []string
	for _, f := range fields {
		if len(f) >= 2 {
			out = append(out, f)
		}
	}
	return out
}

// tooSimilar filters suggestions that nearly repeat a query term.
func tooSimilar(suggestion string, queryTerms map[string]bool) bool {
	for term := range queryTerms {
		if stringSimilarity(suggestion, term) >= 0.7 {
			return true
		}
	}
	return false
}

// stringSimilarity is a cheap Levenshtein-like measure: exact match,
// containment, then common-prefix length.
func stringSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.8
	}

	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	commonPrefix := 0
	for i := 0; i < minLen; i++ {
		if a[i] != b[i] {
			break
		}
		commonPrefix++
	}
	if commonPrefix >= minLen/2 && minLen > 0 {
		return 0.6
	}
	return 0.0
}

// cleanSymbol reduces a symbol name to a suggestion-worthy root:
// lowercase the first camelCase word, strip get/set prefixes.
func cleanSymbol(symbol string) string {
	symbol = strings.TrimPrefix(symbol, "get")
	symbol = strings.TrimPrefix(symbol, "set")
	symbol = strings.TrimPrefix(symbol, "Get")
	symbol = strings.TrimPrefix(symbol, "Set")
	if symbol == "" {
		return ""
	}

	// Split camelCase and take the first word.
	var word strings.Builder
	for i, r := range symbol {
		if i > 0 && r >= 'A' && r <= 'Z' {
			break
		}
		word.WriteRune(r)
	}
	root := strings.ToLower(word.String())
	if len(root) < 3 {
		return ""
	}
	return root
}

// significantWords extracts programming-ish words of at least 4 chars:
// agentive/process suffixes or the curated list.
func significantWords(content string) []string {
	var out []string
	for _, w := range tokenizeQuery(content) {
		if len(w) < 4 {
			continue
		}
		if curatedContentWords[w] {
			out = append(out, w)
			continue
		}
		for _, suffix := range programmingSuffixes {
			if strings.HasSuffix(w, suffix) {
				out = append(out, w)
				break
			}
		}
	}
	return out
}

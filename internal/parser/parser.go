// Package parser defines the minimal pluggable parser contract
// (SPEC_FULL.md §4.3/§6.1) and a Registry that maps file extensions to
// Parser implementations, falling back to a generic single-node parser for
// anything unregistered.
package parser

import (
	"strings"

	"github.com/oxhq/treeedit/internal/model"
)

// Parser is the external collaborator contract: turn source text into a
// Tree, or report the extensions it claims.
type Parser interface {
	Parse(source string) (*model.Tree, error)
	SupportedExtensions() []string
}

// Registry maps file extensions (including the leading dot, e.g. ".go") to
// a registered Parser. A Fallback parser is consulted when no extension
// matches.
type Registry struct {
	byExt    map[string]Parser
	fallback Parser
}

// NewRegistry builds a registry seeded with fallback as the catch-all
// parser for unregistered extensions.
func NewRegistry(fallback Parser) *Registry {
	return &Registry{
		byExt:    make(map[string]Parser),
		fallback: fallback,
	}
}

// Register associates a Parser with every extension it reports via
// SupportedExtensions. Later registrations win on conflicting extensions.
func (r *Registry) Register(p Parser) {
	for _, ext := range p.SupportedExtensions() {
		r.byExt[normalizeExt(ext)] = p
	}
}

// For returns the parser registered for filePath's extension, or the
// fallback parser if none is registered.
func (r *Registry) For(filePath string) Parser {
	ext := normalizeExt(extensionOf(filePath))
	if p, ok := r.byExt[ext]; ok {
		return p
	}
	return r.fallback
}

// Parse is a convenience wrapper: resolve the parser for filePath, then
// parse source with it.
func (r *Registry) Parse(filePath, source string) (*model.Tree, error) {
	return r.For(filePath).Parse(source)
}

func extensionOf(filePath string) string {
	idx := strings.LastIndex(filePath, ".")
	slash := strings.LastIndexAny(filePath, "/\\")
	if idx < 0 || idx < slash {
		return ""
	}
	return filePath[idx:]
}

func normalizeExt(ext string) string {
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		return "." + ext
	}
	return ext
}

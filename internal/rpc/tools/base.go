// Package tools defines the JSON-RPC tool surface (SPEC_FULL.md §4.9):
// a Tool abstraction with a fluent builder, a handful of reusable input
// schema fragments, and the concrete handlers for analyze/list_nodes/
// search_nodes/read_node/edit_node/insert_node/ping. Grounded on the
// teacher's mcp/tools/base.go ToolBuilder/CommonSchemas idiom, adapted from
// its language/query/replacement domain to this module's node-path domain.
package tools

import (
	"context"
	"encoding/json"
)

// ToolHandler executes one tool call and returns its result payload (later
// marshaled into a JSON-RPC success response) or an error.
type ToolHandler func(ctx context.Context, params json.RawMessage) (any, error)

// Tool is the contract the "tools/list" and "tools/call" RPC methods
// operate against.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Handler() ToolHandler
}

// BaseTool is the concrete Tool implementation produced by ToolBuilder.
type BaseTool struct {
	name        string
	description string
	inputSchema map[string]any
	handler     ToolHandler
}

func (t *BaseTool) Name() string                { return t.name }
func (t *BaseTool) Description() string         { return t.description }
func (t *BaseTool) InputSchema() map[string]any { return t.inputSchema }
func (t *BaseTool) Handler() ToolHandler        { return t.handler }

// ToolBuilder constructs a Tool with a fluent interface.
type ToolBuilder struct {
	tool *BaseTool
}

// NewTool starts building a tool named name.
func NewTool(name string) *ToolBuilder {
	return &ToolBuilder{
		tool: &BaseTool{
			name:        name,
			inputSchema: make(map[string]any),
		},
	}
}

func (b *ToolBuilder) WithDescription(desc string) *ToolBuilder {
	b.tool.description = desc
	return b
}

func (b *ToolBuilder) WithInputSchema(schema map[string]any) *ToolBuilder {
	b.tool.inputSchema = schema
	return b
}

func (b *ToolBuilder) WithHandler(handler ToolHandler) *ToolBuilder {
	b.tool.handler = handler
	return b
}

// Build returns the constructed Tool.
func (b *ToolBuilder) Build() Tool {
	return b.tool
}

// CommonSchemas holds reusable JSON-Schema fragments for the parameters
// this module's tools actually take: a file path, a node path, replacement
// content, an insert position, and a search pattern.
var CommonSchemas = struct {
	FilePath map[string]any
	NodePath map[string]any
	Content  map[string]any
	Position map[string]any
	Pattern  map[string]any
}{
	FilePath: map[string]any{
		"type":        "string",
		"description": "Path to the source file, absolute or relative to the server's working directory",
	},
	NodePath: map[string]any{
		"type":        "string",
		"description": "Dotted positional path identifying a node, e.g. \"2.1.0\"",
	},
	Content: map[string]any{
		"type":        "string",
		"description": "Replacement or inserted source text",
	},
	Position: map[string]any{
		"type":        "integer",
		"description": "Insert position: 0=before, 1=after, 2=inside",
		"enum":        []int{0, 1, 2},
	},
	Pattern: map[string]any{
		"type":        "string",
		"description": "Case-insensitive substring to match against node content or type",
	},
}

// ParseParams unmarshals a JSON-RPC params payload into T.
func ParseParams[T any](params json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func isCancelled(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}

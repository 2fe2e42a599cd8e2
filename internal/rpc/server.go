package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/rpc/tools"
)

// toolListEntry is one entry in a "tools/list" response, mirroring the shape
// MCP-style clients expect: name, description, and a JSON-Schema input
// contract.
type toolListEntry struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// callToolParams is the payload of a "tools/call" request.
type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// BuildRouter registers "initialize", "tools/list", "tools/call" (against
// every tool in registry) and a bare "ping" convenience method, plus
// "notifications/initialized" (answered with an empty result when sent as a
// request) and a no-op "notifications/cancelled" handler.
func BuildRouter(registry []tools.Tool) *Router {
	byName := make(map[string]tools.Tool, len(registry))
	for _, t := range registry {
		byName[t.Name()] = t
	}

	router := NewRouter()

	router.RegisterRequest("initialize", func(ctx context.Context, req Request) Response {
		return SuccessResponse(req.ID, map[string]any{
			"protocolVersion": JSONRPCVersion,
			"serverInfo": map[string]any{
				"name":    "treeedit",
				"version": "0.1.0",
			},
			"capabilities": map[string]any{
				"tools": map[string]any{"listChanged": false},
			},
		})
	})

	router.RegisterNotification("notifications/initialized", func(ctx context.Context, note Notification) error {
		return nil
	})
	router.RegisterRequest("notifications/initialized", func(ctx context.Context, req Request) Response {
		return SuccessResponse(req.ID, map[string]any{})
	})

	router.RegisterRequest("tools/list", func(ctx context.Context, req Request) Response {
		entries := make([]toolListEntry, 0, len(registry))
		for _, t := range registry {
			entries = append(entries, toolListEntry{
				Name:        t.Name(),
				Description: t.Description(),
				InputSchema: t.InputSchema(),
			})
		}
		return SuccessResponse(req.ID, map[string]any{"tools": entries})
	})

	router.RegisterRequest("tools/call", func(ctx context.Context, req Request) Response {
		var call callToolParams
		if err := json.Unmarshal(req.Params, &call); err != nil {
			return ErrorResponse(req.ID, InvalidParams, "invalid tools/call params: "+err.Error())
		}
		t, ok := byName[call.Name]
		if !ok {
			return ErrorResponse(req.ID, MethodNotFound, fmt.Sprintf("unknown tool: %s", call.Name),
				map[string]any{"validTools": toolNames(registry)})
		}

		result, err := t.Handler()(ctx, call.Arguments)
		if err != nil {
			return ErrorResponse(req.ID, codeForError(err), err.Error())
		}
		return SuccessResponse(req.ID, result)
	})

	router.RegisterRequest("ping", func(ctx context.Context, req Request) Response {
		return SuccessResponse(req.ID, "pong")
	})

	router.RegisterNotification("notifications/cancelled", func(ctx context.Context, note Notification) error {
		return nil
	})

	return router
}

// toolNames lists every tool name in registry, in registration order, for
// inclusion in an "unknown tool" error's data field.
func toolNames(registry []tools.Tool) []string {
	names := make([]string, len(registry))
	for i, t := range registry {
		names[i] = t.Name()
	}
	return names
}

// codeForError maps a domain sentinel error to a JSON-RPC error code, falling
// back to InternalError for anything unrecognized.
func codeForError(err error) int {
	switch {
	case errors.Is(err, model.ErrNodeNotFound):
		return NodeNotFound
	case errors.Is(err, model.ErrInvalidPosition):
		return InvalidPosition
	case errors.Is(err, model.ErrParse):
		return SourceParseError
	case errors.Is(err, model.ErrValidationFailed):
		return ValidationFailed
	case errors.Is(err, model.ErrBatchAborted):
		return BatchAborted
	case errors.Is(err, model.ErrUnauthorized):
		return Unauthorized
	default:
		return InternalError
	}
}

package rpc

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxhq/treeedit/internal/model"
	"github.com/oxhq/treeedit/internal/rpc/tools"
)

func echoTool(name string) tools.Tool {
	return tools.NewTool(name).
		WithDescription("test tool").
		WithInputSchema(map[string]any{"type": "object"}).
		WithHandler(func(ctx context.Context, raw json.RawMessage) (any, error) {
			return map[string]any{"echo": string(raw)}, nil
		}).
		Build()
}

func TestBuildRouter_Initialize(t *testing.T) {
	router := BuildRouter(nil)
	resp := router.DispatchRequest(context.Background(), Request{JSONRPC: "2.0", Method: "initialize", ID: 1})
	assert.Nil(t, resp.Error)
	payload, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, JSONRPCVersion, payload["protocolVersion"])
}

func TestBuildRouter_ToolsList(t *testing.T) {
	router := BuildRouter([]tools.Tool{echoTool("one"), echoTool("two")})
	resp := router.DispatchRequest(context.Background(), Request{JSONRPC: "2.0", Method: "tools/list", ID: 1})
	assert.Nil(t, resp.Error)
	payload, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	entries, ok := payload["tools"].([]toolListEntry)
	require.True(t, ok)
	assert.Len(t, entries, 2)
}

func TestBuildRouter_ToolsCall_UnknownTool(t *testing.T) {
	router := BuildRouter([]tools.Tool{echoTool("one")})
	params, _ := json.Marshal(callToolParams{Name: "missing"})
	resp := router.DispatchRequest(context.Background(), Request{JSONRPC: "2.0", Method: "tools/call", Params: params, ID: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, MethodNotFound, resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "missing")
	data, ok := resp.Error.Data.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"one"}, data["validTools"])
}

func TestBuildRouter_ToolsCall_Success(t *testing.T) {
	router := BuildRouter([]tools.Tool{echoTool("one")})
	params, _ := json.Marshal(callToolParams{Name: "one", Arguments: json.RawMessage(`{"x":1}`)})
	resp := router.DispatchRequest(context.Background(), Request{JSONRPC: "2.0", Method: "tools/call", Params: params, ID: 1})
	assert.Nil(t, resp.Error)
}

func TestBuildRouter_Ping(t *testing.T) {
	router := BuildRouter(nil)
	resp := router.DispatchRequest(context.Background(), Request{JSONRPC: "2.0", Method: "ping", ID: 1})
	assert.Nil(t, resp.Error)
	assert.Equal(t, "pong", resp.Result)
}

func TestBuildRouter_InitializedNotificationIsNoOp(t *testing.T) {
	router := BuildRouter(nil)
	err := router.DispatchNotification(context.Background(), Notification{JSONRPC: "2.0", Method: "notifications/initialized"})
	require.NoError(t, err)
}

func TestCodeForError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{model.ErrNodeNotFound, NodeNotFound},
		{model.ErrInvalidPosition, InvalidPosition},
		{model.ErrParse, SourceParseError},
		{model.ErrValidationFailed, ValidationFailed},
		{model.ErrBatchAborted, BatchAborted},
		{model.ErrUnauthorized, Unauthorized},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.code, codeForError(tc.err))
	}
	assert.Equal(t, InternalError, codeForError(assert.AnError))
}

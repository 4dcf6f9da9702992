package rpcserver

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

type fakeHandler struct {
	tools    []ToolSchema
	callFunc func(ctx context.Context, clientID, apiKey, tool string, args json.RawMessage) (any, error)
}

func (f *fakeHandler) Tools() []ToolSchema { return f.tools }

func (f *fakeHandler) Call(ctx context.Context, clientID, apiKey, tool string, args json.RawMessage) (any, error) {
	return f.callFunc(ctx, clientID, apiKey, tool, args)
}

func TestDispatcherInitialize(t *testing.T) {
	d := New(DefaultConfig(), &fakeHandler{}, nil)
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "initialize"}
	resp, has := d.Handle(context.Background(), req)
	require.True(t, has)
	require.Nil(t, resp.Error)

	result, ok := resp.Result.(InitializeResult)
	require.True(t, ok)
	require.Equal(t, ProtocolVersion, result.ProtocolVersion)
}

func TestDispatcherInitializedNotificationHasNoResponse(t *testing.T) {
	d := New(DefaultConfig(), &fakeHandler{}, nil)
	req := Request{JSONRPC: "2.0", Method: "initialized"}
	_, has := d.Handle(context.Background(), req)
	require.False(t, has)
}

func TestDispatcherToolsListReturnsSchemas(t *testing.T) {
	handler := &fakeHandler{tools: []ToolSchema{{Name: "add_memory"}}}
	d := New(DefaultConfig(), handler, nil)
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`2`), Method: "tools/list"}
	resp, has := d.Handle(context.Background(), req)
	require.True(t, has)

	m, ok := resp.Result.(map[string]any)
	require.True(t, ok)
	tools, ok := m["tools"].([]ToolSchema)
	require.True(t, ok)
	require.Len(t, tools, 1)
}

func TestDispatcherToolsCallRoutesToHandler(t *testing.T) {
	var gotTool, gotClient string
	handler := &fakeHandler{callFunc: func(ctx context.Context, clientID, apiKey, tool string, args json.RawMessage) (any, error) {
		gotTool = tool
		gotClient = clientID
		return map[string]any{"ok": true}, nil
	}}
	d := New(DefaultConfig(), handler, nil)

	params, _ := json.Marshal(ToolsCallParams{Name: "search_memory", Arguments: json.RawMessage(`{}`)})
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`3`), Method: "tools/call", Params: params}
	resp, has := d.Handle(WithClientID(context.Background(), "client-1"), req)
	require.True(t, has)
	require.Nil(t, resp.Error)
	require.Equal(t, "search_memory", gotTool)
	require.Equal(t, "client-1", gotClient)
}

func TestDispatcherToolsCallErrorMapsToRPCErrorCode(t *testing.T) {
	handler := &fakeHandler{callFunc: func(ctx context.Context, clientID, apiKey, tool string, args json.RawMessage) (any, error) {
		return nil, graphtypes.New(graphtypes.KindNotFound, "no such node")
	}}
	d := New(DefaultConfig(), handler, nil)

	params, _ := json.Marshal(ToolsCallParams{Name: "manage_graph", Arguments: json.RawMessage(`{}`)})
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`4`), Method: "tools/call", Params: params}
	resp, has := d.Handle(context.Background(), req)
	require.True(t, has)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeForKind(graphtypes.KindNotFound), resp.Error.Code)
}

func TestDispatcherUnknownMethod(t *testing.T) {
	d := New(DefaultConfig(), &fakeHandler{}, nil)
	req := Request{JSONRPC: "2.0", ID: json.RawMessage(`5`), Method: "bogus"}
	resp, has := d.Handle(context.Background(), req)
	require.True(t, has)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestServeStdioRoundTrip(t *testing.T) {
	handler := &fakeHandler{callFunc: func(ctx context.Context, clientID, apiKey, tool string, args json.RawMessage) (any, error) {
		return "pong", nil
	}}
	d := New(DefaultConfig(), handler, nil)

	in := bytes.NewBufferString(`{"jsonrpc":"2.0","id":1,"method":"ping"}` + "\n")
	var out bytes.Buffer
	require.NoError(t, ServeStdio(context.Background(), d, in, &out, nil))
	require.Contains(t, out.String(), `"result"`)
}

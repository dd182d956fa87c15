package rpc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/registry"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/resilience"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

func testDispatcher(t *testing.T, regs []registry.Registration) *Dispatcher {
	t.Helper()
	reg, err := registry.NewRegistry(regs)
	require.NoError(t, err)
	policy := resilience.Policy{
		MaxRetries:       1,
		BaseBackoff:      time.Millisecond,
		MaxBackoff:       time.Millisecond,
		FailureThreshold: 3,
		SamplingDuration: 10 * time.Second,
		BreakDuration:    500 * time.Millisecond,
	}
	return NewDispatcher(reg, policy, 4, 50*time.Millisecond,
		ServerInfo{Name: "limbodancer-mcp", Version: "test"},
		zap.NewNop().Sugar(), nil)
}

func scopedCtx(t *testing.T) context.Context {
	t.Helper()
	sc, err := scope.New("acme", "crm", "prod")
	require.NoError(t, err)
	return scope.WithContext(context.Background(), sc)
}

func req(id int, method string, params any) *Request {
	raw, _ := json.Marshal(params)
	idRaw, _ := json.Marshal(id)
	return &Request{JSONRPC: "2.0", ID: idRaw, Method: method, Params: raw}
}

func echoTool() registry.Registration {
	return registry.Registration{
		Name:        "echo",
		Description: "echoes its arguments",
		Timeout:     time.Second,
		Retryable:   false,
		Handler: func(_ context.Context, args map[string]any) (any, error) {
			return args, nil
		},
		InputSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"text": map[string]any{"type": "string"}},
		},
	}
}

func TestDispatcher_InitializeIdempotent(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	first := d.Handle(scopedCtx(t), req(1, "initialize", map[string]any{}))
	second := d.Handle(scopedCtx(t), req(2, "initialize", map[string]any{}))

	require.NotNil(t, first)
	require.Nil(t, first.Error)
	assert.Equal(t, first.Result, second.Result)

	result := first.Result.(map[string]any)
	assert.Equal(t, "2024-11-01", result["protocolVersion"])
	info := result["serverInfo"].(map[string]any)
	assert.Equal(t, "limbodancer-mcp", info["name"])
}

func TestDispatcher_ToolsList(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), req(1, "tools/list", map[string]any{}))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	tools := resp.Result.(map[string]any)["tools"].([]map[string]any)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo", tools[0]["name"])
}

func TestDispatcher_MethodNotFound(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), req(1, "nonsense", map[string]any{}))
	require.NotNil(t, resp)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDispatcher_NotificationProducesNoResponse(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), &Request{JSONRPC: "2.0", Method: "tools/list"})
	assert.Nil(t, resp)
}

func TestDispatcher_ResponseEchoesRequestID(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	r := req(42, "tools/list", map[string]any{})
	resp := d.Handle(scopedCtx(t), r)
	require.NotNil(t, resp)
	assert.Equal(t, string(r.ID), string(resp.ID))
}

func TestDispatcher_CallSuccess(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), req(1, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": "hi"},
	}))
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)

	result := resp.Result.(map[string]any)
	assert.Equal(t, false, result["isError"])
	content := result["content"].([]map[string]any)
	require.Len(t, content, 1)
	assert.Equal(t, "text", content[0]["type"])
	assert.JSONEq(t, `{"text":"hi"}`, content[0]["text"].(string))
}

func TestDispatcher_CallUnknownToolIsMethodNotFound(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), req(1, "tools/call", map[string]any{
		"name": "missing", "arguments": map[string]any{},
	}))
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
}

func TestDispatcher_CallSchemaViolationIsToolError(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), req(1, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": 42},
	}))
	require.Nil(t, resp.Error, "schema failure rides inside result, not the envelope")

	result := resp.Result.(map[string]any)
	assert.Equal(t, true, result["isError"])
	text := result["content"].([]map[string]any)[0]["text"].(string)
	assert.Contains(t, text, string(apierr.KindSchemaInvalid))
}

func TestDispatcher_CallWithoutScopeFails(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(context.Background(), req(1, "tools/call", map[string]any{
		"name": "echo", "arguments": map[string]any{},
	}))
	result := resp.Result.(map[string]any)
	assert.Equal(t, true, result["isError"])
	text := result["content"].([]map[string]any)[0]["text"].(string)
	assert.Contains(t, text, string(apierr.KindTenantUnresolved))
}

func TestDispatcher_PermissionEnforcement(t *testing.T) {
	guarded := echoTool()
	guarded.Permissions = []string{"history:read"}
	d := testDispatcher(t, []registry.Registration{guarded})

	call := req(1, "tools/call", map[string]any{"name": "echo", "arguments": map[string]any{}})

	// A restricted principal without the grant is denied.
	denied := d.Handle(scope.WithPermissions(scopedCtx(t), []string{"graph:read"}), call)
	result := denied.Result.(map[string]any)
	assert.Equal(t, true, result["isError"])
	text := result["content"].([]map[string]any)[0]["text"].(string)
	assert.Contains(t, text, string(apierr.KindForbidden))

	// With the grant, the call proceeds.
	allowed := d.Handle(scope.WithPermissions(scopedCtx(t), []string{"history:read"}), call)
	assert.Equal(t, false, allowed.Result.(map[string]any)["isError"])

	// An unrestricted principal (no permission set attached) passes.
	open := d.Handle(scopedCtx(t), call)
	assert.Equal(t, false, open.Result.(map[string]any)["isError"])
}

func TestDispatcher_HandlerErrorIsToolError(t *testing.T) {
	failing := registry.Registration{
		Name:        "broken",
		Timeout:     time.Second,
		Handler: func(context.Context, map[string]any) (any, error) {
			return nil, apierr.New(apierr.KindNotFound, "nothing here")
		},
		InputSchema: map[string]any{"type": "object"},
	}
	d := testDispatcher(t, []registry.Registration{failing})

	resp := d.Handle(scopedCtx(t), req(1, "tools/call", map[string]any{
		"name": "broken", "arguments": map[string]any{},
	}))
	require.Nil(t, resp.Error)
	result := resp.Result.(map[string]any)
	assert.Equal(t, true, result["isError"])
	text := result["content"].([]map[string]any)[0]["text"].(string)
	assert.Contains(t, text, string(apierr.KindNotFound))
}

func TestDispatcher_ShutdownStopsNewCalls(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), &Request{JSONRPC: "2.0", Method: "shutdown"})
	assert.Nil(t, resp)

	select {
	case <-d.Done():
	default:
		t.Fatal("Done() should be closed after shutdown")
	}

	resp = d.Handle(scopedCtx(t), req(1, "tools/call", map[string]any{
		"name": "echo", "arguments": map[string]any{},
	}))
	result := resp.Result.(map[string]any)
	assert.Equal(t, true, result["isError"])
}

func TestDispatcher_InvalidVersionRejected(t *testing.T) {
	d := testDispatcher(t, []registry.Registration{echoTool()})

	resp := d.Handle(scopedCtx(t), &Request{JSONRPC: "1.0", ID: json.RawMessage("1"), Method: "initialize"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeInvalidRequest, resp.Error.Code)
}

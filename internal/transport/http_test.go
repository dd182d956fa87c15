package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/config"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/ontology"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/orchestrator"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/registry"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/resilience"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/rpc"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/tools"
)

const testSigningKey = "test-signing-key"

type emptyOntologyRepo struct{}

func (emptyOntologyRepo) ListEntities(context.Context, scope.Scope) ([]ontology.EntityDef, error) {
	return nil, nil
}
func (emptyOntologyRepo) ListProperties(context.Context, scope.Scope) ([]ontology.PropertyDef, error) {
	return nil, nil
}
func (emptyOntologyRepo) ListRelations(context.Context, scope.Scope) ([]ontology.RelationDef, error) {
	return nil, nil
}
func (emptyOntologyRepo) ListEnums(context.Context, scope.Scope) ([]ontology.EnumDef, error) {
	return nil, nil
}
func (emptyOntologyRepo) ListAliases(context.Context, scope.Scope) ([]ontology.AliasDef, error) {
	return nil, nil
}
func (emptyOntologyRepo) ListShapes(context.Context, scope.Scope) ([]ontology.ShapeDef, error) {
	return nil, nil
}
func (emptyOntologyRepo) UpsertEntity(context.Context, scope.Scope, ontology.EntityDef) error {
	return nil
}
func (emptyOntologyRepo) UpsertProperty(context.Context, scope.Scope, ontology.PropertyDef) error {
	return nil
}
func (emptyOntologyRepo) UpsertRelation(context.Context, scope.Scope, ontology.RelationDef) error {
	return nil
}
func (emptyOntologyRepo) UpsertEnum(context.Context, scope.Scope, ontology.EnumDef) error { return nil }
func (emptyOntologyRepo) UpsertAlias(context.Context, scope.Scope, ontology.AliasDef) error {
	return nil
}
func (emptyOntologyRepo) UpsertShape(context.Context, scope.Scope, ontology.ShapeDef) error {
	return nil
}
func (emptyOntologyRepo) DeleteEntity(context.Context, scope.Scope, string) error { return nil }

func httpFixture(t *testing.T) *httptest.Server {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Auth.JWTSigningKey = testSigningKey
	cfg.Tenancy.DefaultPackageID = "crm"
	cfg.Tenancy.DefaultChannelID = "prod"
	cfg.HTTP.SSEHeartbeat = 30 * time.Second

	history := tools.NewHistoryHandlers(stubHistoryStore{})
	memory := tools.NewMemoryHandlers(stubVectorIndex{})
	graph := tools.NewGraphHandlers(stubGraphStore{}, nil, nil)

	reg, err := registry.NewRegistry(tools.Registrations(history, memory, graph, tools.Defaults{Timeout: time.Second}))
	require.NoError(t, err)

	policy := resilience.Policy{FailureThreshold: 3, SamplingDuration: 10 * time.Second, BreakDuration: 500 * time.Millisecond}
	d := rpc.NewDispatcher(reg, policy, 4, 50*time.Millisecond,
		rpc.ServerInfo{Name: "limbodancer-mcp", Version: "test"}, zap.NewNop().Sugar(), nil)

	runtime := ontology.NewRuntime(emptyOntologyRepo{}, ontology.DefaultGovernanceConfig())
	orch := orchestrator.New(256, 15*time.Second, zap.NewNop().Sugar(), nil)
	resolver := scope.NewHTTPResolver(cfg)

	server := NewHTTPServer(cfg, d, orch, runtime, resolver, nil, zap.NewNop().Sugar())
	ts := httptest.NewServer(server.routes())
	t.Cleanup(ts.Close)
	return ts
}

func bearerToken(t *testing.T, tenant string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"tenant_id": tenant,
		"exp":       time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSigningKey))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, method, url, token, body string) (*http.Response, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func TestHTTP_Health(t *testing.T) {
	ts := httpFixture(t)
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestHTTP_InitializeIsAnonymous(t *testing.T) {
	ts := httpFixture(t)
	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/mcp/initialize", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2024-11-01", body["protocolVersion"])
}

func TestHTTP_ToolsRequiresBearer(t *testing.T) {
	ts := httpFixture(t)

	resp, _ := doRequest(t, http.MethodGet, ts.URL+"/api/mcp/tools", "", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/mcp/tools", bearerToken(t, "acme"), "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	toolList := body["tools"].([]any)
	assert.Len(t, toolList, 4)
}

func TestHTTP_InvalidTokenRejected(t *testing.T) {
	ts := httpFixture(t)
	resp, body := doRequest(t, http.MethodGet, ts.URL+"/api/mcp/tools", "garbage-token", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "forbidden", body["errorCode"])
}

func TestHTTP_ToolCall(t *testing.T) {
	ts := httpFixture(t)
	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/mcp/tools/history_get",
		bearerToken(t, "acme"), `{"sessionId":"s-1","limit":10}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, false, body["isError"])
	content := body["content"].([]any)
	require.Len(t, content, 1)
}

func TestHTTP_UnknownToolIs404(t *testing.T) {
	ts := httpFixture(t)
	resp, _ := doRequest(t, http.MethodPost, ts.URL+"/api/mcp/tools/bogus",
		bearerToken(t, "acme"), `{}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHTTP_OntologyValidate(t *testing.T) {
	ts := httpFixture(t)
	resp, body := doRequest(t, http.MethodGet,
		ts.URL+"/api/ontology/validate?tenant=acme&package=crm&channel=prod",
		bearerToken(t, "acme"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["isValid"])
	assert.Equal(t, "acme::crm::prod", body["scope"])
}

func TestHTTP_OntologyValidate_CrossTenantForbidden(t *testing.T) {
	ts := httpFixture(t)
	resp, body := doRequest(t, http.MethodGet,
		ts.URL+"/api/ontology/validate?tenant=globex&package=crm&channel=prod",
		bearerToken(t, "acme"), "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "scope-violation", body["errorCode"])
}

func TestHTTP_OntologyExport(t *testing.T) {
	ts := httpFixture(t)

	// The catalog must be loaded before export; validate loads it.
	resp, _ := doRequest(t, http.MethodGet,
		ts.URL+"/api/ontology/validate?tenant=acme&package=crm&channel=prod",
		bearerToken(t, "acme"), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet,
		ts.URL+"/api/ontology/export?tenant=acme&package=crm&channel=prod&format=jsonld", http.NoBody)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bearerToken(t, "acme"))
	got, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer got.Body.Close()

	assert.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "application/ld+json", got.Header.Get("Content-Type"))
}

func TestHTTP_ChatFlow(t *testing.T) {
	ts := httpFixture(t)
	token := bearerToken(t, "acme")

	resp, body := doRequest(t, http.MethodPost, ts.URL+"/api/chat/sessions", token, `{}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sessionID := body["sessionId"].(string)
	require.NotEmpty(t, sessionID)

	resp, body = doRequest(t, http.MethodPost,
		ts.URL+"/api/chat/sessions/"+sessionID+"/messages", token, `{"content":"hello"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.NotEmpty(t, body["correlationId"])

	resp, body = doRequest(t, http.MethodPost,
		ts.URL+"/api/chat/sessions/unknown/messages", token, `{"content":"hello"}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not-found", body["errorCode"])
}

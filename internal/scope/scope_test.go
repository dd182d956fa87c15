package scope_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/config"
	. "github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

func TestScope_CanonicalForm(t *testing.T) {
	s, err := New("acme", "crm", "prod")
	require.NoError(t, err)
	assert.Equal(t, "acme::crm::prod", s.String())
}

func TestScope_RequiresAllThreeFields(t *testing.T) {
	tests := []struct {
		name    string
		tenant  string
		pkg     string
		channel string
	}{
		{"missing tenant", "", "crm", "prod"},
		{"missing package", "acme", "", "prod"},
		{"missing channel", "acme", "crm", ""},
		{"all missing", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.tenant, tt.pkg, tt.channel)
			assert.Error(t, err)
		})
	}
}

func TestScope_Equality(t *testing.T) {
	a, _ := New("acme", "crm", "prod")
	b, _ := New("acme", "crm", "prod")
	c, _ := New("acme", "crm", "staging")

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.True(t, a.SameTenant(c))
}

func TestContext_RoundTrip(t *testing.T) {
	s, _ := New("acme", "crm", "prod")
	ctx := WithContext(t.Context(), s)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, s, got)

	_, ok = FromContext(t.Context())
	assert.False(t, ok)
}

func devConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tenancy.Environment = config.EnvDevelopment
	cfg.Tenancy.DefaultTenantID = "default-tenant"
	cfg.Tenancy.DefaultPackageID = "default-package"
	cfg.Tenancy.DefaultChannelID = "default-channel"
	return cfg
}

func TestHTTPResolver_ClaimWins(t *testing.T) {
	r := NewHTTPResolver(devConfig())
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderTenantID, "header-tenant")

	s, err := r.Resolve(req, &Claims{TenantID: "claim-tenant"})
	require.NoError(t, err)
	assert.Equal(t, "claim-tenant", s.TenantID)
}

func TestHTTPResolver_LegacyTIDClaimWarns(t *testing.T) {
	r := NewHTTPResolver(devConfig())
	var warned string
	r.Warn = func(msg string) { warned = msg }

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	s, err := r.Resolve(req, &Claims{TID: "legacy-tenant"})
	require.NoError(t, err)
	assert.Equal(t, "legacy-tenant", s.TenantID)
	assert.NotEmpty(t, warned)
}

func TestHTTPResolver_DevHeaderFallback(t *testing.T) {
	r := NewHTTPResolver(devConfig())
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderTenantID, "header-tenant")

	s, err := r.Resolve(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "header-tenant", s.TenantID)
}

func TestHTTPResolver_DevDefaultFallback(t *testing.T) {
	r := NewHTTPResolver(devConfig())
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)

	s, err := r.Resolve(req, nil)
	require.NoError(t, err)
	assert.Equal(t, "default-tenant", s.TenantID)
	assert.Equal(t, "default-package", s.PackageID)
	assert.Equal(t, "default-channel", s.ChannelID)
}

func TestHTTPResolver_ProductionIgnoresHeader(t *testing.T) {
	cfg := devConfig()
	cfg.Tenancy.Environment = config.EnvProduction
	r := NewHTTPResolver(cfg)

	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderTenantID, "header-tenant")

	_, err := r.Resolve(req, nil)
	require.Error(t, err)
	assert.True(t, apierr.As(err, apierr.KindTenantUnresolved))
}

func TestHTTPResolver_PackageChannelHeaderOverride(t *testing.T) {
	r := NewHTTPResolver(devConfig())
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.Header.Set(HeaderPackageID, "override-package")
	req.Header.Set(HeaderChannelID, "override-channel")

	s, err := r.Resolve(req, &Claims{TenantID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, "override-package", s.PackageID)
	assert.Equal(t, "override-channel", s.ChannelID)
}

func TestResolveStdio(t *testing.T) {
	cfg := devConfig()

	s, err := ResolveStdio(StdioParams{TenantID: "cli-tenant"}, cfg)
	require.NoError(t, err)
	assert.Equal(t, "cli-tenant", s.TenantID)
	assert.Equal(t, "default-package", s.PackageID)

	cfg.Tenancy.DefaultTenantID = ""
	_, err = ResolveStdio(StdioParams{}, cfg)
	assert.True(t, apierr.As(err, apierr.KindTenantUnresolved))
}

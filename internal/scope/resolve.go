package scope

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
)

// TenancyProvider supplies the tenancy defaults and environment gate
// that scope resolution needs from the server configuration. It is
// satisfied by *config.Config without internal/scope importing
// internal/config, which would otherwise create an import cycle
// (internal/config imports internal/ontology, which imports
// internal/scope).
type TenancyProvider interface {
	IsDevelopment() bool
	DefaultTenantID() string
	DefaultPackageID() string
	DefaultChannelID() string
}

// Headers used for the dev-only tenant overrides and the
// package/channel overrides.
const (
	HeaderTenantID  = "X-Tenant-Id"
	HeaderPackageID = "X-Tenant-Package"
	HeaderChannelID = "X-Tenant-Channel"
)

// Claims is the subset of JWT claims the resolver inspects.
type Claims struct {
	jwt.RegisteredClaims
	TenantID    string   `json:"tenant_id"`
	TID         string   `json:"tid"` // legacy claim, honored with a warning
	Permissions []string `json:"permissions,omitempty"`
}

// HTTPResolver resolves a TenantScope for an incoming HTTP request.
// Precedence: authenticated principal's tenant_id claim (falling back
// to legacy tid with a warning), then — development only — the
// X-Tenant-Id header or the configured default.
type HTTPResolver struct {
	cfg TenancyProvider
	// Warn is called when the legacy `tid` claim is used instead of
	// `tenant_id`. Optional; defaults to a no-op.
	Warn func(msg string)
}

// NewHTTPResolver builds a resolver bound to cfg.
func NewHTTPResolver(cfg TenancyProvider) *HTTPResolver {
	return &HTTPResolver{cfg: cfg}
}

func (r *HTTPResolver) warn(msg string) {
	if r.Warn != nil {
		r.Warn(msg)
	}
}

// Resolve determines the scope for req. claims may be nil when the
// request is unauthenticated (e.g. the anonymous initialize endpoint);
// in that case only the dev-header/default path can succeed.
func (r *HTTPResolver) Resolve(req *http.Request, claims *Claims) (Scope, error) {
	tenantID := ""
	if claims != nil {
		switch {
		case claims.TenantID != "":
			tenantID = claims.TenantID
		case claims.TID != "":
			r.warn("tenant resolved from legacy 'tid' claim")
			tenantID = claims.TID
		}
	}

	if tenantID == "" {
		if r.cfg.IsDevelopment() {
			if h := req.Header.Get(HeaderTenantID); h != "" {
				tenantID = h
			} else {
				tenantID = r.cfg.DefaultTenantID()
			}
		}
	}

	if tenantID == "" {
		return Empty, apierr.New(apierr.KindTenantUnresolved, "unable to resolve tenant")
	}

	if claims != nil {
		claimTenant := claims.TenantID
		if claimTenant == "" {
			claimTenant = claims.TID
		}
		if claimTenant != "" && claimTenant != tenantID {
			return Empty, apierr.New(apierr.KindScopeViolation, "tenant does not match authenticated principal")
		}
	}

	packageID := firstNonEmpty(req.Header.Get(HeaderPackageID), r.cfg.DefaultPackageID())
	channelID := firstNonEmpty(req.Header.Get(HeaderChannelID), r.cfg.DefaultChannelID())

	s, err := New(tenantID, packageID, channelID)
	if err != nil {
		return Empty, apierr.Wrap(apierr.KindTenantUnresolved, "incomplete tenant scope", err)
	}
	return s, nil
}

// StdioParams carries the process-start parameters (flags or
// environment) the stdio transport resolves its scope from.
type StdioParams struct {
	TenantID  string
	PackageID string
	ChannelID string
}

// ResolveStdio resolves a scope from stdio start parameters, falling back
// to configured defaults for package/channel.
func ResolveStdio(params StdioParams, cfg TenancyProvider) (Scope, error) {
	tenantID := firstNonEmpty(params.TenantID, cfg.DefaultTenantID())
	if tenantID == "" {
		return Empty, apierr.New(apierr.KindTenantUnresolved, "no tenant supplied for stdio transport")
	}
	packageID := firstNonEmpty(params.PackageID, cfg.DefaultPackageID())
	channelID := firstNonEmpty(params.ChannelID, cfg.DefaultChannelID())

	s, err := New(tenantID, packageID, channelID)
	if err != nil {
		return Empty, apierr.Wrap(apierr.KindTenantUnresolved, "incomplete tenant scope", err)
	}
	return s, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

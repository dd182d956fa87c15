package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/limbodancer-labs/limbodancer-mcp/internal/apierr"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/config"
	"github.com/limbodancer-labs/limbodancer-mcp/internal/scope"
)

type claimsCtxKey struct{}

// parseBearer verifies the Authorization header's JWT against the
// configured HMAC key and returns the claims, or nil when the header is
// absent.
func parseBearer(r *http.Request, cfg *config.Config) (*scope.Claims, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return nil, apierr.New(apierr.KindForbidden, "malformed authorization header")
	}

	claims := &scope.Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierr.New(apierr.KindForbidden, "unexpected signing method")
		}
		return []byte(cfg.Auth.JWTSigningKey), nil
	}, jwt.WithIssuer(cfg.Auth.JWTIssuer))
	if err != nil || !token.Valid {
		return nil, apierr.Wrap(apierr.KindForbidden, "invalid bearer token", err)
	}
	return claims, nil
}

// authMiddleware verifies the bearer token when one is sent (and, with
// required set, demands one), resolves the tenant scope, and attaches
// both to the request context. With required set, resolution failures
// surface the standard error shape with 401/403; without it, the request
// proceeds with no scope.
func (s *HTTPServer) authMiddleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := parseBearer(r, s.cfg)
			if err != nil {
				writeAPIError(w, err)
				return
			}
			if required && claims == nil {
				writeAPIError(w, apierr.New(apierr.KindForbidden, "bearer token required"))
				return
			}

			sc, err := s.resolver.Resolve(r, claims)
			if err != nil {
				if required {
					writeAPIError(w, err)
					return
				}
				// Anonymous endpoints proceed without a scope.
				next.ServeHTTP(w, r)
				return
			}

			ctx := scope.WithContext(r.Context(), sc)
			ctx = context.WithValue(ctx, claimsCtxKey{}, claims)
			if claims != nil && claims.Permissions != nil {
				ctx = scope.WithPermissions(ctx, claims.Permissions)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeAPIError(w http.ResponseWriter, err error) {
	apiErr := apierr.Of(err)
	status := statusFor(apiErr.Kind)
	writeJSON(w, status, apiErr)
}

func statusFor(kind apierr.Kind) int {
	switch kind {
	case apierr.KindSchemaInvalid:
		return http.StatusBadRequest
	case apierr.KindTenantUnresolved:
		return http.StatusUnauthorized
	case apierr.KindScopeViolation, apierr.KindForbidden:
		return http.StatusForbidden
	case apierr.KindNotFound:
		return http.StatusNotFound
	case apierr.KindOverloaded, apierr.KindCircuitOpen:
		return http.StatusTooManyRequests
	case apierr.KindTimeout:
		return http.StatusGatewayTimeout
	case apierr.KindUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

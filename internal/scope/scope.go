// Package scope implements the tenant scope primitive used everywhere in
// the server: an immutable (tenant, package, channel) triple attached to
// each request's context, never refetched from a global.
package scope

import (
	"fmt"
	"strings"
)

// Scope is the hierarchical partition key every externally facing
// operation carries. All three fields are required and non-empty; the
// zero value is invalid.
type Scope struct {
	TenantID  string
	PackageID string
	ChannelID string
}

// Empty is the invalid zero-value scope.
var Empty = Scope{}

// New validates and constructs a Scope.
func New(tenantID, packageID, channelID string) (Scope, error) {
	s := Scope{TenantID: tenantID, PackageID: packageID, ChannelID: channelID}
	if err := s.Validate(); err != nil {
		return Empty, err
	}
	return s, nil
}

// Validate reports whether every field is non-empty.
func (s Scope) Validate() error {
	if s.TenantID == "" || s.PackageID == "" || s.ChannelID == "" {
		return fmt.Errorf("tenant scope requires tenant, package, and channel")
	}
	return nil
}

// String renders the canonical "tenant::package::channel" form.
func (s Scope) String() string {
	return strings.Join([]string{s.TenantID, s.PackageID, s.ChannelID}, "::")
}

// Equal reports whether two scopes refer to the same partition.
func (s Scope) Equal(other Scope) bool {
	return s.TenantID == other.TenantID &&
		s.PackageID == other.PackageID &&
		s.ChannelID == other.ChannelID
}

// SameTenant reports whether two scopes share a tenant, regardless of
// package/channel — the granularity at which history/session access is
// checked.
func (s Scope) SameTenant(other Scope) bool {
	return s.TenantID == other.TenantID
}

// IsZero reports whether s is the empty scope.
func (s Scope) IsZero() bool {
	return s == Empty
}

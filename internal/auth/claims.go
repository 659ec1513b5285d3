package auth

import (
	"sort"
	"strings"
)

const (
	// RoleAuthorityPrefix marks authorities derived from IdP role names.
	RoleAuthorityPrefix = "ROLE_"
	// ScopeAuthorityPrefix marks authorities derived from token scopes.
	ScopeAuthorityPrefix = "SCOPE_"
)

// RoleClaim is the nested role-list shape Keycloak tokens use under
// realm_access and resource_access. A missing "roles" key decodes to an
// empty slice, so shallow-malformed claims never fail.
type RoleClaim struct {
	Roles []string `json:"roles"`
}

// TokenClaims is the verified-token payload the translator works from.
type TokenClaims struct {
	Subject           string               `json:"sub"`
	Email             string               `json:"email"`
	GivenName         string               `json:"given_name"`
	FamilyName        string               `json:"family_name"`
	PreferredUsername string               `json:"preferred_username"`
	Scope             string               `json:"scope"`
	RealmAccess       RoleClaim            `json:"realm_access"`
	ResourceAccess    map[string]RoleClaim `json:"resource_access"`
}

// Principal is the per-request authorization identity derived from a
// verified token. It is immutable after construction.
type Principal struct {
	Subject    string
	Name       string
	Email      string
	GivenName  string
	FamilyName string

	// RealmRoles keeps the raw realm role names in token order; the
	// provisioning role guess depends on that order.
	RealmRoles []string

	authorities map[string]struct{}
}

// Authority normalizes a raw role name into an authority token: upper-cased,
// spaces replaced by underscores, ROLE_ prefixed.
func Authority(role string) string {
	return RoleAuthorityPrefix + strings.ToUpper(strings.ReplaceAll(role, " ", "_"))
}

// NewPrincipal translates verified claims into a Principal. Authorities are
// the union of scope authorities, client-scoped roles under resourceID, and
// realm-scoped roles; duplicates collapse. The display name comes from
// principalClaim when present, else the subject.
func NewPrincipal(claims *TokenClaims, resourceID, principalClaim string) *Principal {
	authorities := make(map[string]struct{})

	for _, scope := range strings.Fields(claims.Scope) {
		authorities[ScopeAuthorityPrefix+scope] = struct{}{}
	}
	for _, role := range claims.ResourceAccess[resourceID].Roles {
		authorities[Authority(role)] = struct{}{}
	}
	for _, role := range claims.RealmAccess.Roles {
		authorities[Authority(role)] = struct{}{}
	}

	return &Principal{
		Subject:     claims.Subject,
		Name:        displayName(claims, principalClaim),
		Email:       claims.Email,
		GivenName:   claims.GivenName,
		FamilyName:  claims.FamilyName,
		RealmRoles:  claims.RealmAccess.Roles,
		authorities: authorities,
	}
}

func displayName(claims *TokenClaims, principalClaim string) string {
	var value string
	switch principalClaim {
	case "email":
		value = claims.Email
	case "sub":
		value = claims.Subject
	default:
		value = claims.PreferredUsername
	}
	if value == "" {
		return claims.Subject
	}
	return value
}

func (p *Principal) HasAuthority(authority string) bool {
	_, ok := p.authorities[authority]
	return ok
}

// Authorities returns the deduplicated authority set in sorted order.
func (p *Principal) Authorities() []string {
	out := make([]string, 0, len(p.authorities))
	for a := range p.authorities {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

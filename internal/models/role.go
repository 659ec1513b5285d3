package models

import "strings"

// Role is the closed set of business roles a user can hold. Exactly one role
// per user; the value stored locally is the enum form, while Keycloak carries
// the human-facing display name.
type Role string

const (
	RoleAdministrator     Role = "ADMINISTRATOR"
	RoleAuditor           Role = "AUDITOR"
	RoleWarehouseOperator Role = "WAREHOUSE_OPERATOR"
	RoleLogisticsManager  Role = "LOGISTICS_MANAGER"
)

// DefaultRole is assigned when provisioning sees no recognizable realm role,
// and restored when a role is revoked outright.
const DefaultRole = RoleWarehouseOperator

var roleDisplayNames = map[Role]string{
	RoleAdministrator:     "Administrateur",
	RoleAuditor:           "Auditeur",
	RoleWarehouseOperator: "Magasinier",
	RoleLogisticsManager:  "Responsable logistique",
}

// DisplayName returns the canonical name of the role in the Keycloak realm
// role catalog.
func (r Role) DisplayName() string {
	return roleDisplayNames[r]
}

func (r Role) IsValid() bool {
	_, ok := roleDisplayNames[r]
	return ok
}

// BusinessRoles lists every role in the closed set.
func BusinessRoles() []Role {
	return []Role{RoleAdministrator, RoleAuditor, RoleWarehouseOperator, RoleLogisticsManager}
}

// BusinessRoleDisplayNames is the fixed catalog of remote role names that the
// reconciliation flow is allowed to remove from a user.
func BusinessRoleDisplayNames() []string {
	names := make([]string, 0, len(roleDisplayNames))
	for _, r := range BusinessRoles() {
		names = append(names, r.DisplayName())
	}
	return names
}

// IsBusinessRoleName reports whether a remote role name belongs to the
// business role catalog.
func IsBusinessRoleName(name string) bool {
	_, ok := ParseRole(name)
	return ok
}

// NormalizeRoleName applies the shared canonicalization: trim, upper-case,
// spaces become underscores.
func NormalizeRoleName(name string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(name), " ", "_"))
}

// ParseRole resolves a role name to the enum. It accepts both the enum form
// and the Keycloak display name, in any casing or spacing.
func ParseRole(name string) (Role, bool) {
	switch NormalizeRoleName(name) {
	case "ADMINISTRATOR", "ADMINISTRATEUR":
		return RoleAdministrator, true
	case "AUDITOR", "AUDITEUR":
		return RoleAuditor, true
	case "WAREHOUSE_OPERATOR", "MAGASINIER":
		return RoleWarehouseOperator, true
	case "LOGISTICS_MANAGER", "RESPONSABLE_LOGISTIQUE":
		return RoleLogisticsManager, true
	}
	return "", false
}

// GuessRole scans realm role names in token order and returns the first one
// that maps into the closed set, falling back to DefaultRole.
func GuessRole(realmRoles []string) Role {
	for _, name := range realmRoles {
		if role, ok := ParseRole(name); ok {
			return role
		}
	}
	return DefaultRole
}

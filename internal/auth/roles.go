package auth

// Role is the reports API role carried in a token.
type Role string

const (
	// RoleViewer reads shift reports and the line status board.
	RoleViewer Role = "viewer"
	// RoleOperator may also download shift report files.
	RoleOperator Role = "operator"
	// RoleAdmin may also refresh the worksheet cache.
	RoleAdmin Role = "admin"
)

var roleRanks = map[Role]int{
	RoleViewer:   1,
	RoleOperator: 2,
	RoleAdmin:    3,
}

// NormalizeRole reports whether value names a known role.
func NormalizeRole(value string) (Role, bool) {
	role := Role(value)
	if _, ok := roleRanks[role]; !ok {
		return "", false
	}
	return role, true
}

// RoleAtLeast reports whether role grants everything required grants.
// Unknown roles grant nothing.
func RoleAtLeast(role Role, required Role) bool {
	return roleRanks[role] >= roleRanks[required]
}

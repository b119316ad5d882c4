package auth

// Role represents an authorisation tier in the system.
type Role string

const (
	// RoleUser is a regular workshop member: browses budgets and
	// service orders they are involved with.
	RoleUser Role = "user"

	// RoleManager runs a workshop: approves budgets, manages service
	// orders and licensing for their shop.
	RoleManager Role = "manager"

	// RoleAdmin administers the whole installation: user accounts,
	// settings, every shop.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of valid roles, lowest rank first.
var ValidRoles = []Role{RoleUser, RoleManager, RoleAdmin}

// roleRanks defines the fixed total order over roles.
// A zero rank means "unknown role" and never satisfies any check.
var roleRanks = map[Role]int{
	RoleUser:    1,
	RoleManager: 2,
	RoleAdmin:   3,
}

// Rank returns the hierarchy rank of a role, or 0 for unknown roles.
func (r Role) Rank() int {
	return roleRanks[r]
}

// IsValid returns true if the role is one of the known roles.
func (r Role) IsValid() bool {
	return roleRanks[r] != 0
}

// AtLeast returns true if r sits at or above target in the hierarchy.
// Unknown roles (including the empty role) never satisfy any target.
func (r Role) AtLeast(target Role) bool {
	rank := roleRanks[r]
	targetRank := roleRanks[target]
	if rank == 0 || targetRank == 0 {
		return false
	}
	return rank >= targetRank
}

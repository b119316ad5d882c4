package auth

// Permission represents a named capability in the system.
type Permission string

// Permission constants.
const (
	PermViewBudgets       Permission = "view_budgets"
	PermCreateBudgets     Permission = "create_budgets"
	PermViewOrders        Permission = "view_orders"
	PermViewNotifications Permission = "view_notifications"
	PermExportCSV         Permission = "export_csv"
	PermApproveBudgets    Permission = "approve_budgets"
	PermManageOrders      Permission = "manage_orders"
	PermManageLicenses    Permission = "manage_licenses"
	PermViewReports       Permission = "view_reports"
	PermManageUsers       Permission = "manage_users"
	PermManageSettings    Permission = "manage_settings"
)

// tierGrants maps each role to the permissions introduced at that tier.
// This is the single source of truth for the authorisation model.
// A role also holds every permission of the tiers below it; the
// cumulative view lives in rolePermissions, built at init.
var tierGrants = map[Role][]Permission{
	RoleUser: {
		PermViewBudgets,
		PermCreateBudgets,
		PermViewOrders,
		PermViewNotifications,
		PermExportCSV,
	},
	RoleManager: {
		PermApproveBudgets,
		PermManageOrders,
		PermManageLicenses,
		PermViewReports,
	},
	RoleAdmin: {
		PermManageUsers,
		PermManageSettings,
	},
}

// rolePermissions is the precomputed cumulative permission table:
// role -> set of every permission granted at or below its rank.
var rolePermissions map[Role]map[Permission]bool

func init() {
	rolePermissions = make(map[Role]map[Permission]bool, len(ValidRoles))
	for _, role := range ValidRoles {
		set := make(map[Permission]bool)
		for _, lower := range ValidRoles {
			if lower.Rank() > role.Rank() {
				break
			}
			for _, p := range tierGrants[lower] {
				set[p] = true
			}
		}
		rolePermissions[role] = set
	}
}

// HasPermission returns true if the given role has the specified
// permission, inheriting every grant from lower tiers. Unknown roles
// have no permissions.
func HasPermission(role Role, perm Permission) bool {
	return rolePermissions[role][perm]
}

// PermissionsForRole returns all permissions granted to a role,
// including inherited ones. Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	set, ok := rolePermissions[role]
	if !ok {
		return nil
	}
	result := make([]Permission, 0, len(set))
	// Walk tiers in rank order so the output is stable.
	for _, tier := range ValidRoles {
		if tier.Rank() > role.Rank() {
			break
		}
		for _, p := range tierGrants[tier] {
			result = append(result, p)
		}
	}
	return result
}

package auth

import "testing"

func fixedRole(role Role) RoleSource {
	return func() (Role, bool) { return role, true }
}

func noProfile() (Role, bool) {
	return "", false
}

func TestResolver_NoProfileLoaded(t *testing.T) {
	r := NewResolver(noProfile)

	if r.HasRole(RoleUser) {
		t.Error("HasRole should be false with no profile")
	}
	if r.HasPermission(PermViewBudgets) {
		t.Error("HasPermission should be false with no profile")
	}
	if perms := r.Permissions(); perms != nil {
		t.Errorf("Permissions should be nil with no profile, got %v", perms)
	}
}

func TestResolver_NilSafety(t *testing.T) {
	var r *Resolver

	// A nil resolver must answer false, never panic
	if r.HasRole(RoleAdmin) {
		t.Error("nil resolver HasRole should be false")
	}
	if r.HasPermission(PermManageUsers) {
		t.Error("nil resolver HasPermission should be false")
	}
}

func TestResolver_HierarchyMonotonicity(t *testing.T) {
	adminResolver := NewResolver(fixedRole(RoleAdmin))
	userResolver := NewResolver(fixedRole(RoleUser))

	if !adminResolver.HasRole(RoleManager) {
		t.Error("admin should satisfy manager role requirement")
	}
	if userResolver.HasRole(RoleManager) {
		t.Error("user should not satisfy manager role requirement")
	}
}

func TestResolver_ManageUsersAdminOnly(t *testing.T) {
	managerResolver := NewResolver(fixedRole(RoleManager))
	adminResolver := NewResolver(fixedRole(RoleAdmin))

	if managerResolver.HasPermission(PermManageUsers) {
		t.Error("manage_users should be false for manager")
	}
	if !adminResolver.HasPermission(PermManageUsers) {
		t.Error("manage_users should be true for admin")
	}
}

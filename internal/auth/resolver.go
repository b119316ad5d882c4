package auth

// RoleSource supplies the role of the currently loaded profile.
// The second return is false when no profile is loaded.
type RoleSource func() (Role, bool)

// Resolver answers role and permission queries for the current user.
//
// It is bound to a RoleSource at construction so that callers never
// handle the "no profile loaded" case themselves: both query methods
// return false (and never panic) when the source has nothing.
type Resolver struct {
	source RoleSource
}

// NewResolver creates a Resolver bound to the given role source.
func NewResolver(source RoleSource) *Resolver {
	return &Resolver{source: source}
}

// Role returns the current role. The second return is false when no
// profile is loaded.
func (r *Resolver) Role() (Role, bool) {
	if r == nil || r.source == nil {
		return "", false
	}
	return r.source()
}

// HasRole returns true if the current role sits at or above target in
// the hierarchy. False when no profile is loaded.
func (r *Resolver) HasRole(target Role) bool {
	if r == nil || r.source == nil {
		return false
	}
	role, ok := r.source()
	if !ok {
		return false
	}
	return role.AtLeast(target)
}

// HasPermission returns true if the current role grants the named
// permission, inherited grants included. False when no profile is loaded.
func (r *Resolver) HasPermission(perm Permission) bool {
	if r == nil || r.source == nil {
		return false
	}
	role, ok := r.source()
	if !ok {
		return false
	}
	return HasPermission(role, perm)
}

// Permissions returns every permission of the current role, or nil when
// no profile is loaded.
func (r *Resolver) Permissions() []Permission {
	if r == nil || r.source == nil {
		return nil
	}
	role, ok := r.source()
	if !ok {
		return nil
	}
	return PermissionsForRole(role)
}

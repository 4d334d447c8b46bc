package domain

// Permission is a single grantable capability. Permission checks are
// set-membership; role checks are list-membership.
type Permission string

const (
	PermissionChat           Permission = "chat"
	PermissionMemoryRead     Permission = "memory:read"
	PermissionMemoryWrite    Permission = "memory:write"
	PermissionPriorityQueue  Permission = "priority_queue"
	PermissionExpandedQuota  Permission = "expanded_quota"
	PermissionManageUsers    Permission = "manage_users"
	PermissionAdminFlush     Permission = "admin_flush"
	PermissionViewMetrics    Permission = "view_metrics"
	PermissionReadPublic     Permission = "read_public"
)

// rolePermissions lists the permissions a role adds on top of the role
// immediately below it in the admin > premium > user > guest hierarchy.
var rolePermissions = map[Role][]Permission{
	RoleGuest:   {PermissionReadPublic},
	RoleUser:    {PermissionChat, PermissionMemoryRead, PermissionMemoryWrite},
	RolePremium: {PermissionPriorityQueue, PermissionExpandedQuota},
	RoleAdmin:   {PermissionManageUsers, PermissionAdminFlush, PermissionViewMetrics},
}

var roleOrder = []Role{RoleGuest, RoleUser, RolePremium, RoleAdmin}

// EffectivePermissions returns the full permission set granted by role,
// inheriting every permission of the roles below it in the hierarchy.
func EffectivePermissions(role Role) map[Permission]struct{} {
	set := map[Permission]struct{}{}
	for _, r := range roleOrder {
		for _, p := range rolePermissions[r] {
			set[p] = struct{}{}
		}
		if r == role {
			break
		}
	}
	return set
}

// PermissionsForUser unions the effective permission sets of every role the
// user holds.
func PermissionsForUser(u User) map[Permission]struct{} {
	set := map[Permission]struct{}{}
	for _, role := range u.Roles {
		for p := range EffectivePermissions(role) {
			set[p] = struct{}{}
		}
	}
	return set
}

// HasPermission reports whether u holds permission p.
func HasPermission(u User, p Permission) bool {
	_, ok := PermissionsForUser(u)[p]
	return ok
}

// HasAnyPermission reports whether u holds at least one of perms.
func HasAnyPermission(u User, perms ...Permission) bool {
	granted := PermissionsForUser(u)
	for _, p := range perms {
		if _, ok := granted[p]; ok {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether u holds every permission in perms.
func HasAllPermissions(u User, perms ...Permission) bool {
	granted := PermissionsForUser(u)
	for _, p := range perms {
		if _, ok := granted[p]; !ok {
			return false
		}
	}
	return true
}

// RequirePermission returns ErrPermissionDenied if u lacks p.
func RequirePermission(u User, p Permission) error {
	if !HasPermission(u, p) {
		return ErrPermissionDenied
	}
	return nil
}

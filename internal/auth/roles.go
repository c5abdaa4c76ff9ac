package auth

import "slices"

// Role is the single role name carried in session tokens.
type Role string

const (
	RoleSuperAdmin Role = "SuperAdmin"
	RoleOrgAdmin   Role = "OrgAdmin"
	RoleOrgStaff   Role = "OrgStaff"
)

// RoleSet is the list of roles a route accepts.
type RoleSet []Role

var (
	RolesSuperAdmin = RoleSet{RoleSuperAdmin}
	RolesOrgAdmin   = RoleSet{RoleSuperAdmin, RoleOrgAdmin}
	RolesOrgStaff   = RoleSet{RoleSuperAdmin, RoleOrgAdmin, RoleOrgStaff}
	RolesCustom     = RoleSet{RoleSuperAdmin, RoleOrgStaff}
)

// Allows reports whether r is a member of the set.
func (s RoleSet) Allows(r Role) bool {
	return slices.Contains(s, r)
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return RolesOrgStaff.Allows(r)
}

// RoleOf derives the session role from the user's flags.
func RoleOf(u User) Role {
	switch {
	case u.SuperUser:
		return RoleSuperAdmin
	case u.StaffUser:
		return RoleOrgStaff
	default:
		return RoleOrgAdmin
	}
}

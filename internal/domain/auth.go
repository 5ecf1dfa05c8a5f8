package domain

import "slices"

// AuthRole is a named bundle of permissions. Roles are ordered: each one
// holds every permission of the roles below it.
type AuthRole string

const (
	AuthRoleViewer  AuthRole = "viewer"
	AuthRoleEditor  AuthRole = "editor"
	AuthRoleManager AuthRole = "manager"
)

// AllAuthRoles lists the roles from least to most privileged.
var AllAuthRoles = []AuthRole{AuthRoleViewer, AuthRoleEditor, AuthRoleManager}

// Resource types and actions tools are gated on.
const (
	ResourceDocument = "document"
	ResourceMovie    = "movie"

	ActionRead   = "read"
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

var (
	PermDocumentRead   = Permission{Action: ActionRead, Resource: ResourceDocument}
	PermDocumentCreate = Permission{Action: ActionCreate, Resource: ResourceDocument}
	PermDocumentUpdate = Permission{Action: ActionUpdate, Resource: ResourceDocument}
	PermDocumentDelete = Permission{Action: ActionDelete, Resource: ResourceDocument}
	PermMovieRead      = Permission{Action: ActionRead, Resource: ResourceMovie}
)

// RolePermissions is the full permission set of each role.
var RolePermissions = cumulative(map[AuthRole][]Permission{
	AuthRoleViewer:  {PermDocumentRead, PermMovieRead},
	AuthRoleEditor:  {PermDocumentCreate, PermDocumentUpdate},
	AuthRoleManager: {PermDocumentDelete},
})

// cumulative folds each role's own grants into every role above it.
func cumulative(own map[AuthRole][]Permission) map[AuthRole][]Permission {
	out := make(map[AuthRole][]Permission, len(own))
	var held []Permission
	for _, role := range AllAuthRoles {
		held = append(held, own[role]...)
		out[role] = slices.Clone(held)
	}
	return out
}

// Grants reports whether r holds p.
func (r AuthRole) Grants(p Permission) bool {
	return slices.Contains(RolePermissions[r], p)
}

func IsValidAuthRole(s string) bool {
	return slices.Contains(AllAuthRoles, AuthRole(s))
}

// StringsToAuthRoles keeps the recognised role names of ss, in order.
func StringsToAuthRoles(ss []string) []AuthRole {
	roles := make([]AuthRole, 0, len(ss))
	for _, s := range ss {
		if IsValidAuthRole(s) {
			roles = append(roles, AuthRole(s))
		}
	}
	return roles
}

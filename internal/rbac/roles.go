// Package rbac defines the portal's role hierarchy and the static tab
// permission matrix. Everything here is pure data and pure functions; no
// request or storage state is touched.
//
// Two kinds of check exist and they are deliberately separate:
//
//   - "at least" checks walk the total order of roles (HasAtLeastRole).
//   - tab checks are a direct lookup in the permission matrix (CanAccessTab)
//     and ignore the ordering entirely.
package rbac

// Role is an account's privilege level. The string value is what gets
// persisted in the users.role column and embedded in session credentials.
type Role string

// Roles from lowest to highest privilege. RoleUser is the baseline assigned
// at registration.
const (
	RoleUser      Role = "user"
	RoleVolunteer Role = "volunteer"
	RoleDoctor    Role = "doctor"
	RoleStaff     Role = "staff"
	RoleCoAdmin   Role = "co_admin"
	RoleAdmin     Role = "admin"
)

// ordered is the single canonical role list. Index is rank.
var ordered = []Role{
	RoleUser,
	RoleVolunteer,
	RoleDoctor,
	RoleStaff,
	RoleCoAdmin,
	RoleAdmin,
}

// Roles returns the canonical role list ordered from lowest to highest
// privilege. The returned slice is a copy.
func Roles() []Role {
	out := make([]Role, len(ordered))
	copy(out, ordered)
	return out
}

// DisplayRoles returns the role list ordered from highest to lowest
// privilege, the order admin screens show columns in.
func DisplayRoles() []Role {
	out := make([]Role, len(ordered))
	for i, r := range ordered {
		out[len(ordered)-1-i] = r
	}
	return out
}

// Rank returns the role's position in the hierarchy, or -1 if the role is
// not part of it.
func Rank(r Role) int {
	for i, known := range ordered {
		if known == r {
			return i
		}
	}
	return -1
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return Rank(r) >= 0
}

// String implements fmt.Stringer.
func (r Role) String() string {
	return string(r)
}

// ParseRole converts a raw string into a Role. The boolean is false when the
// string is not a known role.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// HasAtLeastRole reports whether role ranks at or above required. Unknown
// roles on either side never satisfy the check.
func HasAtLeastRole(role, required Role) bool {
	a, b := Rank(role), Rank(required)
	return a >= 0 && b >= 0 && a >= b
}

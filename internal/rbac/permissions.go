package rbac

import (
	"encoding/json"
)

// Tab is a named area of the admin portal gated by the permission matrix.
type Tab string

// Portal tabs, in the order they appear in navigation.
const (
	TabDashboard Tab = "Dashboard"
	TabUsers     Tab = "Users"
	TabHomepage  Tab = "Homepage"
	TabResources Tab = "Resources"
	TabChat      Tab = "Chat"
	TabSchedule  Tab = "Schedule"
	TabVolunteer Tab = "Volunteer"
	TabAbout     Tab = "About"
	TabYouth     Tab = "Youth"
)

var tabOrder = []Tab{
	TabDashboard,
	TabUsers,
	TabHomepage,
	TabResources,
	TabChat,
	TabSchedule,
	TabVolunteer,
	TabAbout,
	TabYouth,
}

// staffAndUp and coAdminAndUp are the two allow-sets the matrix uses today.
var (
	staffAndUp = map[Role]bool{
		RoleAdmin: true, RoleCoAdmin: true, RoleStaff: true,
		RoleDoctor: true, RoleVolunteer: true, RoleUser: false,
	}
	coAdminAndUp = map[Role]bool{
		RoleAdmin: true, RoleCoAdmin: true, RoleStaff: false,
		RoleDoctor: false, RoleVolunteer: false, RoleUser: false,
	}
)

// tabPermissions maps each tab to the roles allowed to open it. A role
// missing from a tab's entry is denied.
var tabPermissions = map[Tab]map[Role]bool{
	TabDashboard: staffAndUp,
	TabUsers:     coAdminAndUp,
	TabHomepage:  coAdminAndUp,
	TabResources: staffAndUp,
	TabChat:      staffAndUp,
	TabSchedule:  staffAndUp,
	TabVolunteer: coAdminAndUp,
	TabAbout:     coAdminAndUp,
	TabYouth:     coAdminAndUp,
}

// Tabs returns every tab in the matrix in navigation order.
func Tabs() []Tab {
	out := make([]Tab, len(tabOrder))
	copy(out, tabOrder)
	return out
}

// CanAccessTab reports whether role may open tab. Unknown tabs deny every
// role, including admin.
func CanAccessTab(role Role, tab Tab) bool {
	perms, ok := tabPermissions[tab]
	if !ok {
		return false
	}
	return perms[role]
}

// AllowedTabs lists the tabs role may open, in navigation order. The result
// is never nil so it encodes as an empty JSON array.
func AllowedTabs(role Role) []Tab {
	allowed := []Tab{}
	for _, tab := range tabOrder {
		if CanAccessTab(role, tab) {
			allowed = append(allowed, tab)
		}
	}
	return allowed
}

// PermissionRow is one tab's resolved access for every role column.
type PermissionRow struct {
	Tab    Tab
	Access map[Role]bool
}

// MarshalJSON flattens the row to {"tab": ..., "<role>": bool, ...}.
func (r PermissionRow) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Access)+1)
	for role, ok := range r.Access {
		flat[string(role)] = ok
	}
	flat["tab"] = r.Tab
	return json.Marshal(flat)
}

// PermissionsTable is the fully materialized matrix used by admin screens
// and audits.
type PermissionsTable struct {
	Roles []Role          `json:"roles"`
	Tabs  []Tab           `json:"tabs"`
	Table []PermissionRow `json:"table"`
}

// BuildPermissionsTable resolves every (tab, role) pair to a boolean. Tabs
// are rows; roles are columns ordered highest privilege first.
func BuildPermissionsTable() PermissionsTable {
	roles := DisplayRoles()
	tabs := Tabs()

	table := make([]PermissionRow, 0, len(tabs))
	for _, tab := range tabs {
		row := PermissionRow{Tab: tab, Access: make(map[Role]bool, len(roles))}
		for _, role := range roles {
			row.Access[role] = CanAccessTab(role, tab)
		}
		table = append(table, row)
	}

	return PermissionsTable{Roles: roles, Tabs: tabs, Table: table}
}

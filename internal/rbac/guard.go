package rbac

// Guard is the authorization requirement a protected route declares. A zero
// Guard admits any authenticated role.
type Guard struct {
	// AtLeast, when set, admits roles ranking at or above it.
	AtLeast Role

	// Allowed, when non-empty, admits exactly the listed roles.
	Allowed []Role
}

// AtLeast returns a Guard with a minimum-rank requirement.
func AtLeast(r Role) Guard {
	return Guard{AtLeast: r}
}

// AnyOf returns a Guard admitting exactly the given roles.
func AnyOf(roles ...Role) Guard {
	return Guard{Allowed: roles}
}

// Permits reports whether role satisfies the guard. The rank requirement is
// evaluated before the allow-list; satisfying either one admits the role.
func (g Guard) Permits(role Role) bool {
	if g.AtLeast == "" && len(g.Allowed) == 0 {
		return role.Valid()
	}
	if g.AtLeast != "" && HasAtLeastRole(role, g.AtLeast) {
		return true
	}
	for _, r := range g.Allowed {
		if r == role {
			return true
		}
	}
	return false
}

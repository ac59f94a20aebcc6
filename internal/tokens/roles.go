package tokens

// Role is the role claim carried by console tokens.
type Role string

const (
	RoleUser       Role = "user"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "superadmin"
)

// Level orders roles; unknown roles rank below user.
func (r Role) Level() int {
	switch r {
	case RoleUser:
		return 1
	case RoleAdmin:
		return 2
	case RoleSuperAdmin:
		return 3
	}
	return 0
}

// HasRole reports whether r is at least required.
func (r Role) HasRole(required Role) bool {
	if r == "" {
		return false
	}
	return r.Level() >= required.Level()
}

// IsAdmin reports whether r is admin or superadmin.
func (r Role) IsAdmin() bool { return r == RoleAdmin || r == RoleSuperAdmin }

// IsSuperAdmin reports whether r is superadmin.
func (r Role) IsSuperAdmin() bool { return r == RoleSuperAdmin }

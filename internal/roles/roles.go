package roles

import "fmt"

// Role is the closed set of access levels a profile can hold.
type Role string

const (
	SuperAdmin Role = "superadmin"
	Admin      Role = "admin"
	Staff      Role = "staff"
	User       Role = "user"
)

// Default is the role assigned to newly provisioned profiles.
const Default = User

// hierarchy maps each role to the set of roles allowed to act at that level.
// Access is decided by explicit set membership, never by numeric comparison.
var hierarchy = map[Role][]Role{
	SuperAdmin: {SuperAdmin},
	Admin:      {SuperAdmin, Admin},
	Staff:      {SuperAdmin, Admin, Staff},
	User:       {SuperAdmin, Admin, Staff, User},
}

// Route-level role sets, matching the hierarchy table.
var (
	SuperAdminRoles = hierarchy[SuperAdmin]
	AdminRoles      = hierarchy[Admin]
	StaffRoles      = hierarchy[Staff]
	UserRoles       = hierarchy[User]
)

// All lists every valid role, highest privilege first.
var All = []Role{SuperAdmin, Admin, Staff, User}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	_, ok := hierarchy[r]
	return ok
}

func (r Role) String() string {
	return string(r)
}

// AllowedFor returns the roles permitted to act at the given level,
// inclusive of the level itself.
func AllowedFor(level Role) []Role {
	return hierarchy[level]
}

// Contains reports whether role is an exact member of the set.
func Contains(set []Role, role Role) bool {
	for _, r := range set {
		if r == role {
			return true
		}
	}
	return false
}

// Parse converts a stored role string into a Role, rejecting unknown values.
func Parse(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

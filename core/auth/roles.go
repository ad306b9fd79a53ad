package auth

// Role tags
const (
	RoleSuperAdmin  = "super_admin" // global; not tenant-scoped
	RoleSchoolAdmin = "school_admin"
	RoleTeacher     = "teacher"
	RoleParent      = "parent"
)

var (
	AllRoles = []string{RoleSuperAdmin, RoleSchoolAdmin, RoleTeacher, RoleParent}

	rolePriorities = map[string]int{
		RoleSuperAdmin:  40,
		RoleSchoolAdmin: 30,
		RoleTeacher:     20,
		RoleParent:      10,
	}

	Roles = []Role{
		{Name: "Parent", Value: RoleParent},
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "School Admin", Value: RoleSchoolAdmin},
		{Name: "Super Admin", Value: RoleSuperAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// IsValidRole reports whether role is one of the known role tags.
func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

// HasRole reports whether roles contains role.
func HasRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

package auth

import (
	"reflect"
	"testing"
)

var mbr = Membership{UserID: "u1", SchoolID: "s1"}

func TestResolve_denyByDefault(t *testing.T) {
	tests := []struct {
		name  string
		roles []string
		m     Membership
	}{
		{name: "no roles no membership"},
		{name: "no roles with membership", m: mbr},
		{name: "unknown role tags only", roles: []string{"janitor", ""}, m: mbr},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(tt.roles, tt.m)
			if !p.IsEmpty() {
				t.Errorf("Resolve() = %+v; want empty", p)
			}
			if p.CanMutate() {
				t.Error("empty Permissions must deny every mutating action")
			}
			if p.SchoolID != "" {
				t.Errorf("deny-all surface leaked school id %q", p.SchoolID)
			}
		})
	}
}

func TestResolve_roleSurfaces(t *testing.T) {
	t.Run("teacher", func(t *testing.T) {
		p := Resolve([]string{RoleTeacher}, mbr)
		if !p.RecordAttendance || !p.RecordResults || !p.ViewStudents {
			t.Errorf("teacher surface incomplete: %+v", p)
		}
		if p.ViewBilling || p.ViewFees || p.ManagePlans || p.ManageStudents {
			t.Errorf("teacher must not see billing or plan data: %+v", p)
		}
	})

	t.Run("parent", func(t *testing.T) {
		p := Resolve([]string{RoleParent}, mbr)
		if !p.ViewAttendance || !p.ViewResults || !p.ViewFees {
			t.Errorf("parent read surface incomplete: %+v", p)
		}
		if !p.SendMessages || !p.InitiateFeePayment {
			t.Errorf("parent write surface incomplete: %+v", p)
		}
		if p.ManageStudents || p.RecordAttendance || p.ViewBilling {
			t.Errorf("parent surface too wide: %+v", p)
		}
	})

	t.Run("school admin", func(t *testing.T) {
		p := Resolve([]string{RoleSchoolAdmin}, mbr)
		if !p.ManageStudents || !p.ManageTeachers || !p.ManageFees || !p.ViewQuota {
			t.Errorf("school admin surface incomplete: %+v", p)
		}
		if p.Global || p.ManageSchools || p.ManagePlans {
			t.Errorf("school admin must not get global scope: %+v", p)
		}
		if p.SchoolID != mbr.SchoolID {
			t.Errorf("SchoolID = %q; want %q", p.SchoolID, mbr.SchoolID)
		}
	})

	t.Run("membership admin flag equals school_admin", func(t *testing.T) {
		byFlag := Resolve(nil, Membership{UserID: "u1", SchoolID: "s1", IsAdmin: true})
		byRole := Resolve([]string{RoleSchoolAdmin}, mbr)
		if !reflect.DeepEqual(byFlag, byRole) {
			t.Errorf("is_admin flag = %+v; school_admin role = %+v", byFlag, byRole)
		}
	})

	t.Run("super admin", func(t *testing.T) {
		p := Resolve([]string{RoleSuperAdmin}, Membership{UserID: "u1"})
		if !p.Global || !p.ManageSchools || !p.ManagePlans || !p.ViewCrossTenantAudit {
			t.Errorf("super admin surface incomplete: %+v", p)
		}
		if !p.AllowsSchool("any-school") {
			t.Error("super admin must reach any tenant")
		}
	})
}

// Adding super_admin to any role set must only ever widen the surface.
func TestResolve_superAdminSuperset(t *testing.T) {
	roleSets := [][]string{
		nil,
		{RoleParent},
		{RoleTeacher},
		{RoleSchoolAdmin},
		{RoleTeacher, RoleParent},
		{RoleSchoolAdmin, RoleTeacher, RoleParent},
	}
	for _, roles := range roleSets {
		base := Resolve(roles, mbr)
		wide := Resolve(append([]string{RoleSuperAdmin}, roles...), mbr)

		bv, wv := reflect.ValueOf(base), reflect.ValueOf(wide)
		for i := 0; i < bv.NumField(); i++ {
			if bv.Type().Field(i).Type.Kind() != reflect.Bool {
				continue
			}
			if bv.Field(i).Bool() && !wv.Field(i).Bool() {
				t.Errorf("roles %v: super_admin removed capability %s", roles, bv.Type().Field(i).Name)
			}
		}
	}
}

// A role never removes a capability granted by another held role.
func TestResolve_unionAcrossRoles(t *testing.T) {
	both := Resolve([]string{RoleTeacher, RoleParent}, mbr)
	if !both.RecordAttendance { // from teacher
		t.Error("union lost teacher capability")
	}
	if !both.InitiateFeePayment { // from parent
		t.Error("union lost parent capability")
	}
}

func TestPermissions_AllowsSchool(t *testing.T) {
	p := Resolve([]string{RoleTeacher}, mbr)
	if !p.AllowsSchool("s1") {
		t.Error("own school must be reachable")
	}
	if p.AllowsSchool("s2") {
		t.Error("cross-tenant read must be denied for tenant roles")
	}
	if (Permissions{}).AllowsSchool("s1") {
		t.Error("zero Permissions must deny every school")
	}
}

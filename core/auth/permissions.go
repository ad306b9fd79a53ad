package auth

import "errors"

// ErrPermissionDenied is returned by enforcement points when a resolved
// permission surface does not allow the attempted action. Callers are
// expected to check Permissions before attempting a mutation; server-side
// handlers re-validate defensively and surface this error.
var ErrPermissionDenied = errors.New("permission denied")

// Membership ties a user to exactly one school. IsAdmin grants school-scoped
// administrative rights independent of role tags.
type Membership struct {
	UserID   string `json:"user_id"`
	SchoolID string `json:"school_id"`
	IsAdmin  bool   `json:"is_admin"`
}

// Permissions is the permission surface resolved from a role set and a
// membership: which screens render and which mutations are permitted.
// The zero value denies everything.
type Permissions struct {
	// SchoolID scopes every tenant capability below; empty only for the
	// zero (deny-all) value and for purely global surfaces.
	SchoolID string `json:"school_id,omitempty"`
	// Global marks cross-tenant scope (super_admin only).
	Global bool `json:"global,omitempty"`

	// global capabilities
	ManageSchools        bool `json:"manage_schools,omitempty"`
	ManagePlans          bool `json:"manage_plans,omitempty"`
	ViewCrossTenantAudit bool `json:"view_cross_tenant_audit,omitempty"`

	// school-scoped management
	ManageStudents bool `json:"manage_students,omitempty"`
	ManageTeachers bool `json:"manage_teachers,omitempty"`
	ManageFees     bool `json:"manage_fees,omitempty"`
	ManageExams    bool `json:"manage_exams,omitempty"`
	ManageNotices  bool `json:"manage_notices,omitempty"`
	ManageUsers    bool `json:"manage_users,omitempty"`

	// school-scoped writes
	RecordAttendance bool `json:"record_attendance,omitempty"`
	RecordResults    bool `json:"record_results,omitempty"`

	// school-scoped reads
	ViewStudents   bool `json:"view_students,omitempty"`
	ViewAttendance bool `json:"view_attendance,omitempty"`
	ViewResults    bool `json:"view_results,omitempty"`
	ViewFees       bool `json:"view_fees,omitempty"`
	ViewBilling    bool `json:"view_billing,omitempty"`
	ViewQuota      bool `json:"view_quota,omitempty"`
	ViewAuditLog   bool `json:"view_audit_log,omitempty"`

	// parent/self-service
	SendMessages       bool `json:"send_messages,omitempty"`
	InitiateFeePayment bool `json:"initiate_fee_payment,omitempty"`
}

// Resolve maps a role set and a membership to a Permissions value.
// Capabilities are unioned across all held roles (widest wins); no role ever
// removes a capability granted by another. An empty role set with no
// membership admin flag resolves to the zero value: deny-by-default.
// Resolve is a pure function and must be re-run whenever role assignment
// changes; its result must not be cached across role changes.
func Resolve(roles []string, m Membership) Permissions {
	var p Permissions
	p.SchoolID = m.SchoolID

	if m.IsAdmin {
		grantSchoolAdmin(&p)
	}
	for _, role := range roles {
		switch role {
		case RoleSuperAdmin:
			grantSuperAdmin(&p)
		case RoleSchoolAdmin:
			grantSchoolAdmin(&p)
		case RoleTeacher:
			grantTeacher(&p)
		case RoleParent:
			grantParent(&p)
		}
	}

	if p.IsEmpty() {
		// do not leak the school id on a deny-all surface
		return Permissions{}
	}
	return p
}

func grantSuperAdmin(p *Permissions) {
	p.Global = true
	p.ManageSchools = true
	p.ManagePlans = true
	p.ViewCrossTenantAudit = true
	grantSchoolAdmin(p)
}

func grantSchoolAdmin(p *Permissions) {
	p.ManageStudents = true
	p.ManageTeachers = true
	p.ManageFees = true
	p.ManageExams = true
	p.ManageNotices = true
	p.ManageUsers = true
	p.RecordAttendance = true
	p.RecordResults = true
	p.ViewStudents = true
	p.ViewAttendance = true
	p.ViewResults = true
	p.ViewFees = true
	p.ViewBilling = true
	p.ViewQuota = true
	p.ViewAuditLog = true
	p.SendMessages = true
	p.InitiateFeePayment = true
}

func grantTeacher(p *Permissions) {
	p.RecordAttendance = true
	p.RecordResults = true
	p.ViewStudents = true
	p.ViewAttendance = true
	p.ViewResults = true
	p.SendMessages = true
}

func grantParent(p *Permissions) {
	p.ViewAttendance = true
	p.ViewResults = true
	p.ViewFees = true
	p.SendMessages = true
	p.InitiateFeePayment = true
}

// IsEmpty reports whether no capability at all is granted.
// An empty Permissions must be treated as "hide and block".
func (p Permissions) IsEmpty() bool {
	q := p
	q.SchoolID = ""
	return q == Permissions{}
}

// AllowsSchool reports whether the surface may touch data of schoolID.
// Cross-tenant access requires Global scope.
func (p Permissions) AllowsSchool(schoolID string) bool {
	if p.Global {
		return true
	}
	return p.SchoolID != "" && p.SchoolID == schoolID
}

// CanMutate reports whether any mutating capability is granted.
func (p Permissions) CanMutate() bool {
	return p.ManageSchools || p.ManagePlans ||
		p.ManageStudents || p.ManageTeachers || p.ManageFees ||
		p.ManageExams || p.ManageNotices || p.ManageUsers ||
		p.RecordAttendance || p.RecordResults ||
		p.SendMessages || p.InitiateFeePayment
}

package school

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shuleapp/shule/core"
)

// Unlimited marks a plan ceiling with no cap.
const Unlimited = -1

// ResourceKind is a countable resource gated by a subscription plan.
type ResourceKind string

const (
	ResourceStudent ResourceKind = "student"
	ResourceTeacher ResourceKind = "teacher"
	ResourceStorage ResourceKind = "storage" // measured in MB
)

var AllResourceKinds = []ResourceKind{ResourceStudent, ResourceTeacher, ResourceStorage}

func (k ResourceKind) IsValid() bool {
	switch k {
	case ResourceStudent, ResourceTeacher, ResourceStorage:
		return true
	}
	return false
}

// Feature is one of the closed set of plan feature flags.
// Free-form flag names parse to FeatureUnknown, which is never enabled;
// a typo can only ever disable functionality, not enable it.
type Feature string

const (
	FeatureMessaging Feature = "messaging"
	FeatureExports   Feature = "exports"
	FeatureReports   Feature = "reports"
	FeatureAPI       Feature = "api"
	FeatureUnknown   Feature = "unknown"
)

var AllFeatures = []Feature{FeatureMessaging, FeatureExports, FeatureReports, FeatureAPI}

func ParseFeature(name string) Feature {
	switch Feature(core.CleanString(name, true /* lower */)) {
	case FeatureMessaging:
		return FeatureMessaging
	case FeatureExports:
		return FeatureExports
	case FeatureReports:
		return FeatureReports
	case FeatureAPI:
		return FeatureAPI
	}
	return FeatureUnknown
}

// FeatureSet maps known features to their enabled state.
type FeatureSet map[Feature]bool

// Enabled reports whether f is known and switched on; unknown or absent
// flags are disabled.
func (fs FeatureSet) Enabled(f Feature) bool {
	if f == FeatureUnknown {
		return false
	}
	return fs[f]
}

// Copy returns an independent copy so callers cannot mutate plan data.
func (fs FeatureSet) Copy() FeatureSet {
	cp := make(FeatureSet, len(fs))
	for f, on := range fs {
		cp[f] = on
	}
	return cp
}

// SubscriptionPlan is read-mostly reference data edited only by a super admin.
type SubscriptionPlan struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	MaxStudents  int        `json:"max_students"`
	MaxTeachers  int        `json:"max_teachers"`
	MaxStorageMB int        `json:"max_storage_mb"`
	Features     FeatureSet `json:"features"`
	MonthlyPrice float64    `json:"monthly_price"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"` // UTC
	UpdatedAt    time.Time  `json:"updated_at"` // UTC
}

// Ceiling returns the plan's ceiling for kind; Unlimited means no cap.
func (p SubscriptionPlan) Ceiling(kind ResourceKind) int {
	switch kind {
	case ResourceStudent:
		return p.MaxStudents
	case ResourceTeacher:
		return p.MaxTeachers
	case ResourceStorage:
		return p.MaxStorageMB
	}
	return 0
}

// School is a tenant. Never hard-deleted while related resources exist.
type School struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	PlanID           string    `json:"plan_id"`
	ContactEmail     string    `json:"contact_email"`
	IsActive         bool      `json:"is_active"`
	IsSuspended      bool      `json:"is_suspended"`
	SuspensionReason string    `json:"suspension_reason,omitempty"`
	CreatedAt        time.Time `json:"created_at"` // UTC
	UpdatedAt        time.Time `json:"updated_at"` // UTC
}

// AcceptsMutations reports whether the tenant may mutate at all.
// A suspended school's mutations are rejected regardless of quota.
func (s School) AcceptsMutations() bool {
	return s.IsActive && !s.IsSuspended
}

// NewSchool contains information needed to onboard a tenant.
type NewSchool struct {
	Name         string `json:"name" validate:"required"`
	PlanID       string `json:"plan_id" validate:"required"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
}

func (ns *NewSchool) Validate(validate *validator.Validate) error {
	ns.Name = core.CleanString(ns.Name)
	ns.ContactEmail = core.CleanString(ns.ContactEmail, true /* lower */)
	return validate.Struct(ns)
}

// UpdateSchool defines what a super admin may modify on an existing School.
type UpdateSchool struct {
	Name         string `json:"name"`
	PlanID       string `json:"plan_id"`
	ContactEmail string `json:"contact_email" validate:"omitempty,email"`
	IsActive     *bool  `json:"is_active"`
}

func (us *UpdateSchool) Validate(orig School, validate *validator.Validate) error {
	if name := core.CleanString(us.Name); name != "" {
		us.Name = name
	} else {
		us.Name = orig.Name
	}
	if us.PlanID == "" {
		us.PlanID = orig.PlanID
	}
	if email := core.CleanString(us.ContactEmail, true /* lower */); email != "" {
		us.ContactEmail = email
	} else {
		us.ContactEmail = orig.ContactEmail
	}
	return validate.Struct(us)
}

// NewPlan contains information needed to create a SubscriptionPlan.
// Ceilings default to 0 (nothing allowed); -1 means unlimited.
type NewPlan struct {
	Name         string          `json:"name" validate:"required"`
	MaxStudents  int             `json:"max_students" validate:"min=-1"`
	MaxTeachers  int             `json:"max_teachers" validate:"min=-1"`
	MaxStorageMB int             `json:"max_storage_mb" validate:"min=-1"`
	Features     map[string]bool `json:"features"`
	MonthlyPrice float64         `json:"monthly_price" validate:"min=0"`
}

func (np *NewPlan) Validate(validate *validator.Validate) error {
	np.Name = core.CleanString(np.Name)
	if err := validate.Struct(np); err != nil {
		return err
	}
	for name := range np.Features {
		if ParseFeature(name) == FeatureUnknown {
			return core.NewValidationError(nil, core.FieldError{Field: "features", Error: "unknown feature flag: " + name})
		}
	}
	return nil
}

// FeatureSet converts the validated free-form mapping to the closed set.
func (np NewPlan) FeatureSet() FeatureSet {
	fs := make(FeatureSet, len(AllFeatures))
	for _, f := range AllFeatures {
		fs[f] = false
	}
	for name, on := range np.Features {
		if f := ParseFeature(name); f != FeatureUnknown {
			fs[f] = on
		}
	}
	return fs
}

// QueryFilter applies AND semantics on available fields.
// Search does a case-insensitive match on School.Name.
type QueryFilter struct {
	Search      string `query:"search"`
	PlanID      string `query:"plan"`
	IsActive    *bool  `query:"is_active"`
	IsSuspended *bool  `query:"is_suspended"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.PlanID == "" && qf.IsActive == nil && qf.IsSuspended == nil
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

package school

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
)

var (
	// errors
	ErrNotFound            = errors.New("school not found")
	ErrPlanNotFound        = errors.New("subscription plan not found")
	ErrPlanConfiguration   = errors.New("subscription plan misconfigured") // fail closed
	ErrSchoolSuspended     = errors.New("school is suspended")
	ErrInvalidResourceKind = errors.New("invalid resource kind")
	ErrNameExists          = errors.New("a school with this name already exists")
)

type (
	Repository interface {
		CheckNameUniqueness(ctx context.Context, name string, excluded []School, exec ...core.DBExecutor) error
		CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error)
		GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (School, error)
		// FilterSchools applies AND operation on available QueryFilter fields.
		FilterSchools(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]School, error)
		UpdateSchool(ctx context.Context, sch School, isActive, isSuspended *bool, exec ...core.DBExecutor) (School, error)

		CreatePlan(ctx context.Context, plan SubscriptionPlan, exec ...core.DBExecutor) (SubscriptionPlan, error)
		GetPlan(ctx context.Context, id string, exec ...core.DBExecutor) (SubscriptionPlan, error)
		QueryAllPlans(ctx context.Context, exec ...core.DBExecutor) ([]SubscriptionPlan, error)
		UpdatePlan(ctx context.Context, plan SubscriptionPlan, exec ...core.DBExecutor) (SubscriptionPlan, error)

		// CountResource returns the live usage of kind scoped to schoolID:
		// active row count for students/teachers, used MB for storage.
		// Computed on demand, never cached beyond a single governance check.
		CountResource(ctx context.Context, schoolID string, kind ResourceKind, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		repo     Repository
		recorder *audit.Recorder
	}
)

func NewService(repo Repository, recorder *audit.Recorder) *Service {
	return &Service{repo: repo, recorder: recorder}
}

func (svc *Service) record(actorID string, action audit.Action, entityType, entityID, schoolID string, before, after interface{}) {
	svc.recorder.Record(audit.Entry{
		ActorID:    actorID,
		SchoolID:   schoolID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(after),
	})
}

// Schools (Tenant Directory)

func (svc *Service) Create(ctx context.Context, actorID string, ns NewSchool) (School, error) {
	if err := svc.repo.CheckNameUniqueness(ctx, ns.Name, nil); err != nil {
		if err == ErrNameExists {
			return School{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
		}
		return School{}, err
	}

	now := time.Now().UTC()
	sch := School{
		ID:           uuid.New().String(),
		Name:         ns.Name,
		PlanID:       ns.PlanID,
		ContactEmail: ns.ContactEmail,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sch, err := svc.repo.CreateSchool(ctx, sch)
	if err != nil {
		return School{}, err
	}
	svc.record(actorID, audit.ActionCreate, "school", sch.ID, sch.ID, nil, sch)
	return sch, nil
}

func (svc *Service) GetByID(ctx context.Context, id string) (School, error) {
	return svc.repo.GetSchool(ctx, id)
}

func (svc *Service) Filter(ctx context.Context, filter *QueryFilter, ordering ...core.DBOrdering) ([]School, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.FilterSchools(ctx, filter, ordering)
}

func (svc *Service) Update(ctx context.Context, actorID, id string, us UpdateSchool) (School, error) {
	orig, err := svc.repo.GetSchool(ctx, id)
	if err != nil {
		return School{}, err
	}

	sch := School{
		ID:           id,
		Name:         us.Name,
		PlanID:       us.PlanID,
		ContactEmail: us.ContactEmail,
		UpdatedAt:    time.Now().UTC(),
	}
	sch, err = svc.repo.UpdateSchool(ctx, sch, us.IsActive, nil)
	if err != nil {
		return School{}, err
	}
	svc.record(actorID, audit.ActionUpdate, "school", sch.ID, sch.ID, orig, sch)
	return sch, nil
}

// Suspend blocks all of the tenant's mutations regardless of quota.
func (svc *Service) Suspend(ctx context.Context, actorID, id, reason string) (School, error) {
	orig, err := svc.repo.GetSchool(ctx, id)
	if err != nil {
		return School{}, err
	}

	suspended := true
	sch := School{ID: id, SuspensionReason: reason, UpdatedAt: time.Now().UTC()}
	sch, err = svc.repo.UpdateSchool(ctx, sch, nil, &suspended)
	if err != nil {
		return School{}, err
	}
	svc.record(actorID, audit.ActionUpdate, "school", sch.ID, sch.ID, orig, sch)
	return sch, nil
}

func (svc *Service) Reinstate(ctx context.Context, actorID, id string) (School, error) {
	orig, err := svc.repo.GetSchool(ctx, id)
	if err != nil {
		return School{}, err
	}

	suspended := false
	sch := School{ID: id, UpdatedAt: time.Now().UTC()}
	sch, err = svc.repo.UpdateSchool(ctx, sch, nil, &suspended)
	if err != nil {
		return School{}, err
	}
	svc.record(actorID, audit.ActionUpdate, "school", sch.ID, sch.ID, orig, sch)
	return sch, nil
}

// Plans (Plan Catalog)

func (svc *Service) CreatePlan(ctx context.Context, actorID string, np NewPlan) (SubscriptionPlan, error) {
	now := time.Now().UTC()
	plan := SubscriptionPlan{
		ID:           uuid.New().String(),
		Name:         np.Name,
		MaxStudents:  np.MaxStudents,
		MaxTeachers:  np.MaxTeachers,
		MaxStorageMB: np.MaxStorageMB,
		Features:     np.FeatureSet(),
		MonthlyPrice: np.MonthlyPrice,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	plan, err := svc.repo.CreatePlan(ctx, plan)
	if err != nil {
		return SubscriptionPlan{}, err
	}
	svc.record(actorID, audit.ActionCreate, "plan", plan.ID, "", nil, plan)
	return plan, nil
}

func (svc *Service) GetPlan(ctx context.Context, id string) (SubscriptionPlan, error) {
	return svc.repo.GetPlan(ctx, id)
}

func (svc *Service) QueryPlans(ctx context.Context) ([]SubscriptionPlan, error) {
	return svc.repo.QueryAllPlans(ctx)
}

func (svc *Service) UpdatePlan(ctx context.Context, actorID, id string, np NewPlan) (SubscriptionPlan, error) {
	orig, err := svc.repo.GetPlan(ctx, id)
	if err != nil {
		return SubscriptionPlan{}, err
	}

	plan := orig
	plan.Name = np.Name
	plan.MaxStudents = np.MaxStudents
	plan.MaxTeachers = np.MaxTeachers
	plan.MaxStorageMB = np.MaxStorageMB
	plan.Features = np.FeatureSet()
	plan.MonthlyPrice = np.MonthlyPrice
	plan.UpdatedAt = time.Now().UTC()

	plan, err = svc.repo.UpdatePlan(ctx, plan)
	if err != nil {
		return SubscriptionPlan{}, err
	}
	svc.record(actorID, audit.ActionUpdate, "plan", plan.ID, "", orig, plan)
	return plan, nil
}

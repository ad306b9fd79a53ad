package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/school"
)

type schoolRepository struct {
	db *DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) querySchools() []school.School {
	schools := make([]school.School, 0, len(repo.db.school.table))
	for _, s := range repo.db.school.table {
		schools = append(schools, *s)
	}
	sort.Slice(schools, func(i, j int) bool { return schools[i].Name < schools[j].Name })
	return schools
}

func (repo *schoolRepository) CheckNameUniqueness(ctx context.Context, name string, excluded []school.School, exec ...core.DBExecutor) error {
	repo.db.school.RLock()
	defer repo.db.school.RUnlock()

outer:
	for _, sch := range repo.db.school.table {
		for _, excl := range excluded {
			if sch.ID == excl.ID {
				continue outer
			}
		}
		if strings.EqualFold(sch.Name, name) {
			return school.ErrNameExists
		}
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	repo.db.school.Lock()
	defer repo.db.school.Unlock()
	repo.db.school.table[sch.ID] = &sch
	return sch, nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	repo.db.school.RLock()
	defer repo.db.school.RUnlock()

	if sch, ok := repo.db.school.table[id]; ok {
		return *sch, nil
	}
	return school.School{}, school.ErrNotFound
}

func (repo *schoolRepository) FilterSchools(ctx context.Context, filter *school.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.School, error) {
	repo.db.school.RLock()
	defer repo.db.school.RUnlock()

	all := repo.querySchools()
	if filter == nil || filter.IsEmpty() {
		return all, nil
	}

	res := make([]school.School, 0, len(all))
	for _, sch := range all {
		if filter.Search != "" && !strings.Contains(strings.ToLower(sch.Name), strings.ToLower(filter.Search)) {
			continue
		}
		if filter.PlanID != "" && sch.PlanID != filter.PlanID {
			continue
		}
		if filter.IsActive != nil && sch.IsActive != *filter.IsActive {
			continue
		}
		if filter.IsSuspended != nil && sch.IsSuspended != *filter.IsSuspended {
			continue
		}
		res = append(res, sch)
	}
	return res, nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School, isActive, isSuspended *bool, exec ...core.DBExecutor) (school.School, error) {
	repo.db.school.Lock()
	defer repo.db.school.Unlock()

	// only save set fields
	orig, ok := repo.db.school.table[sch.ID]
	if !ok {
		return school.School{}, school.ErrNotFound
	}
	if sch.Name != "" {
		orig.Name = sch.Name
	}
	if sch.PlanID != "" {
		orig.PlanID = sch.PlanID
	}
	if sch.ContactEmail != "" {
		orig.ContactEmail = sch.ContactEmail
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	if isSuspended != nil {
		orig.IsSuspended = *isSuspended
		if !*isSuspended {
			orig.SuspensionReason = ""
		}
	}
	if sch.SuspensionReason != "" {
		orig.SuspensionReason = sch.SuspensionReason
	}
	orig.UpdatedAt = sch.UpdatedAt

	repo.db.school.table[orig.ID] = orig
	return *orig, nil
}

func (repo *schoolRepository) CreatePlan(ctx context.Context, plan school.SubscriptionPlan, exec ...core.DBExecutor) (school.SubscriptionPlan, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()
	repo.db.plan.table[plan.ID] = &plan
	return plan, nil
}

func (repo *schoolRepository) GetPlan(ctx context.Context, id string, exec ...core.DBExecutor) (school.SubscriptionPlan, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	if plan, ok := repo.db.plan.table[id]; ok {
		return *plan, nil
	}
	return school.SubscriptionPlan{}, school.ErrPlanNotFound
}

func (repo *schoolRepository) QueryAllPlans(ctx context.Context, exec ...core.DBExecutor) ([]school.SubscriptionPlan, error) {
	repo.db.plan.RLock()
	defer repo.db.plan.RUnlock()

	plans := make([]school.SubscriptionPlan, 0, len(repo.db.plan.table))
	for _, plan := range repo.db.plan.table {
		plans = append(plans, *plan)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Name < plans[j].Name })
	return plans, nil
}

func (repo *schoolRepository) UpdatePlan(ctx context.Context, plan school.SubscriptionPlan, exec ...core.DBExecutor) (school.SubscriptionPlan, error) {
	repo.db.plan.Lock()
	defer repo.db.plan.Unlock()

	if _, ok := repo.db.plan.table[plan.ID]; !ok {
		return school.SubscriptionPlan{}, school.ErrPlanNotFound
	}
	repo.db.plan.table[plan.ID] = &plan
	return plan, nil
}

func (repo *schoolRepository) CountResource(ctx context.Context, schoolID string, kind school.ResourceKind, exec ...core.DBExecutor) (int, error) {
	switch kind {
	case school.ResourceStudent:
		repo.db.student.RLock()
		defer repo.db.student.RUnlock()
		var n int
		for _, s := range repo.db.student.table {
			if s.SchoolID == schoolID && s.IsActive {
				n++
			}
		}
		return n, nil
	case school.ResourceTeacher:
		repo.db.teacher.RLock()
		defer repo.db.teacher.RUnlock()
		var n int
		for _, t := range repo.db.teacher.table {
			if t.SchoolID == schoolID && t.IsActive {
				n++
			}
		}
		return n, nil
	case school.ResourceStorage:
		repo.db.storage.RLock()
		defer repo.db.storage.RUnlock()
		return repo.db.storage.usedMB[schoolID], nil
	}
	return 0, school.ErrInvalidResourceKind
}

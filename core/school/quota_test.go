package school

import (
	"context"
	"io/ioutil"
	"log"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
)

// repoMock is an in-memory Repository; counts holds live usage per school/kind.
type repoMock struct {
	mu      sync.Mutex
	schools map[string]School
	plans   map[string]SubscriptionPlan
	counts  map[string]map[ResourceKind]int
}

func newRepoMock() *repoMock {
	return &repoMock{
		schools: make(map[string]School),
		plans:   make(map[string]SubscriptionPlan),
		counts:  make(map[string]map[ResourceKind]int),
	}
}

func (r *repoMock) CheckNameUniqueness(ctx context.Context, name string, excluded []School, exec ...core.DBExecutor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
outer:
	for _, sch := range r.schools {
		for _, excl := range excluded {
			if sch.ID == excl.ID {
				continue outer
			}
		}
		if sch.Name == name {
			return ErrNameExists
		}
	}
	return nil
}

func (r *repoMock) CreateSchool(ctx context.Context, sch School, exec ...core.DBExecutor) (School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schools[sch.ID] = sch
	return sch, nil
}

func (r *repoMock) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sch, ok := r.schools[id]
	if !ok {
		return School{}, ErrNotFound
	}
	return sch, nil
}

func (r *repoMock) FilterSchools(ctx context.Context, filter *QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]School, 0, len(r.schools))
	for _, sch := range r.schools {
		if filter != nil && !filter.IsEmpty() {
			if filter.PlanID != "" && sch.PlanID != filter.PlanID {
				continue
			}
			if filter.IsActive != nil && sch.IsActive != *filter.IsActive {
				continue
			}
			if filter.IsSuspended != nil && sch.IsSuspended != *filter.IsSuspended {
				continue
			}
		}
		res = append(res, sch)
	}
	return res, nil
}

func (r *repoMock) UpdateSchool(ctx context.Context, sch School, isActive, isSuspended *bool, exec ...core.DBExecutor) (School, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	orig, ok := r.schools[sch.ID]
	if !ok {
		return School{}, ErrNotFound
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
	r.schools[orig.ID] = orig
	return orig, nil
}

func (r *repoMock) CreatePlan(ctx context.Context, plan SubscriptionPlan, exec ...core.DBExecutor) (SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans[plan.ID] = plan
	return plan, nil
}

func (r *repoMock) GetPlan(ctx context.Context, id string, exec ...core.DBExecutor) (SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	plan, ok := r.plans[id]
	if !ok {
		return SubscriptionPlan{}, ErrPlanNotFound
	}
	return plan, nil
}

func (r *repoMock) QueryAllPlans(ctx context.Context, exec ...core.DBExecutor) ([]SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]SubscriptionPlan, 0, len(r.plans))
	for _, plan := range r.plans {
		res = append(res, plan)
	}
	return res, nil
}

func (r *repoMock) UpdatePlan(ctx context.Context, plan SubscriptionPlan, exec ...core.DBExecutor) (SubscriptionPlan, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plans[plan.ID]; !ok {
		return SubscriptionPlan{}, ErrPlanNotFound
	}
	r.plans[plan.ID] = plan
	return plan, nil
}

func (r *repoMock) CountResource(ctx context.Context, schoolID string, kind ResourceKind, exec ...core.DBExecutor) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[schoolID][kind], nil
}

func (r *repoMock) setCount(schoolID string, kind ResourceKind, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts[schoolID] == nil {
		r.counts[schoolID] = make(map[ResourceKind]int)
	}
	r.counts[schoolID][kind] = n
}

func (r *repoMock) incCount(schoolID string, kind ResourceKind, delta int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts[schoolID] == nil {
		r.counts[schoolID] = make(map[ResourceKind]int)
	}
	r.counts[schoolID][kind] += delta
}

// auditRepoMock collects entries appended by the Recorder.
type auditRepoMock struct {
	mu      sync.Mutex
	entries []audit.Entry
	failing bool
}

func (r *auditRepoMock) AppendEntry(ctx context.Context, e audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return audit.Entry{}, errors.New("audit store down")
	}
	r.entries = append(r.entries, e)
	return e, nil
}

func (r *auditRepoMock) QueryEntries(ctx context.Context, filter audit.QueryFilter, exec ...core.DBExecutor) ([]audit.Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]audit.Entry, len(r.entries))
	copy(res, r.entries)
	return res, nil
}

func (r *auditRepoMock) all() []audit.Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]audit.Entry, len(r.entries))
	copy(res, r.entries)
	return res
}

func newTestService(t *testing.T) (*Service, *repoMock, *auditRepoMock, *audit.Recorder) {
	t.Helper()
	repo := newRepoMock()
	auditRepo := &auditRepoMock{}
	logger := core.NewStdLogger(log.New(ioutil.Discard, "", 0))
	recorder := audit.NewRecorder(auditRepo, logger)
	return NewService(repo, recorder), repo, auditRepo, recorder
}

func seedTenant(repo *repoMock, plan SubscriptionPlan, sch School) {
	repo.plans[plan.ID] = plan
	repo.schools[sch.ID] = sch
}

func starterPlan() SubscriptionPlan {
	return SubscriptionPlan{
		ID:           "plan-starter",
		Name:         "Starter",
		MaxStudents:  50,
		MaxTeachers:  5,
		MaxStorageMB: 512,
		Features:     FeatureSet{FeatureMessaging: true, FeatureExports: false, FeatureReports: false, FeatureAPI: false},
		MonthlyPrice: 25,
		IsActive:     true,
	}
}

func TestServiceCheckLimit(t *testing.T) {
	ctx := context.Background()

	plan := starterPlan()
	sch := School{ID: "sch1", Name: "Hilltop Primary", PlanID: plan.ID, ContactEmail: "admin@hilltop.test", IsActive: true}

	t.Run("under limit is allowed", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, plan, sch)
		repo.setCount(sch.ID, ResourceStudent, 49)

		dec, err := svc.CheckLimit(ctx, sch.ID, ResourceStudent)
		assert.NoError(t, err)
		assert.True(t, dec.Allowed)
		assert.Equal(t, 49, dec.Current)
		assert.Equal(t, 50, dec.Max)
		assert.Equal(t, "Starter", dec.Plan)
		assert.True(t, dec.Features.Enabled(FeatureMessaging))
		assert.False(t, dec.Features.Enabled(FeatureExports))
	})

	t.Run("at limit is denied", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, plan, sch)
		repo.setCount(sch.ID, ResourceStudent, 50)

		dec, err := svc.CheckLimit(ctx, sch.ID, ResourceStudent)
		assert.NoError(t, err)
		assert.False(t, dec.Allowed)
		assert.Equal(t, 50, dec.Current)
		assert.Equal(t, 50, dec.Max)
	})

	t.Run("soft limit under concurrent creation", func(t *testing.T) {
		// Two admissions race with one seat left. The limit is advisory:
		// both reads see current < max and both are allowed, the count
		// transiently overshoots the ceiling, and the next check denies.
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, plan, sch)
		repo.setCount(sch.ID, ResourceStudent, 49)

		var (
			wg   sync.WaitGroup
			decs [2]QuotaDecision
			errs [2]error
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				decs[i], errs[i] = svc.CheckLimit(ctx, sch.ID, ResourceStudent)
			}(i)
		}
		wg.Wait()

		for i := range decs {
			assert.NoError(t, errs[i])
			assert.True(t, decs[i].Allowed)
			assert.Equal(t, 49, decs[i].Current)
		}

		// both creations commit
		repo.incCount(sch.ID, ResourceStudent, 2)

		dec, err := svc.CheckLimit(ctx, sch.ID, ResourceStudent)
		assert.NoError(t, err)
		assert.False(t, dec.Allowed)
		assert.Equal(t, 51, dec.Current)
		assert.Equal(t, 50, dec.Max)
	})

	t.Run("unlimited ceiling always allows", func(t *testing.T) {
		unlimited := starterPlan()
		unlimited.ID = "plan-church"
		unlimited.MaxStudents = Unlimited
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, unlimited, School{ID: "sch2", Name: "Lakeside", PlanID: unlimited.ID, IsActive: true})
		repo.setCount("sch2", ResourceStudent, 100000)

		dec, err := svc.CheckLimit(ctx, "sch2", ResourceStudent)
		assert.NoError(t, err)
		assert.True(t, dec.Allowed)
		assert.Equal(t, Unlimited, dec.Max)
	})

	t.Run("check is a pure read", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, plan, sch)
		repo.setCount(sch.ID, ResourceTeacher, 3)

		first, err := svc.CheckLimit(ctx, sch.ID, ResourceTeacher)
		assert.NoError(t, err)
		second, err := svc.CheckLimit(ctx, sch.ID, ResourceTeacher)
		assert.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("storage is measured in MB", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, plan, sch)
		repo.setCount(sch.ID, ResourceStorage, 600)

		dec, err := svc.CheckLimit(ctx, sch.ID, ResourceStorage)
		assert.NoError(t, err)
		assert.False(t, dec.Allowed)
		assert.Equal(t, 600, dec.Current)
		assert.Equal(t, 512, dec.Max)
	})

	t.Run("suspension dominates quota", func(t *testing.T) {
		suspended := sch
		suspended.IsSuspended = true
		suspended.SuspensionReason = "non-payment"
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, plan, suspended)
		repo.setCount(sch.ID, ResourceStudent, 10) // well under quota

		dec, err := svc.CheckLimit(ctx, sch.ID, ResourceStudent)
		assert.Equal(t, ErrSchoolSuspended, err)
		assert.False(t, dec.Allowed)
		// usage numbers stay available for display
		assert.Equal(t, 10, dec.Current)
		assert.Equal(t, 50, dec.Max)
	})

	t.Run("unknown school fails closed", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.CheckLimit(ctx, "nope", ResourceStudent)
		assert.Equal(t, ErrNotFound, err)
	})

	t.Run("missing plan fails closed", func(t *testing.T) {
		svc, repo, _, _ := newTestService(t)
		repo.schools[sch.ID] = sch // plan not seeded
		_, err := svc.CheckLimit(ctx, sch.ID, ResourceStudent)
		assert.Equal(t, ErrPlanConfiguration, err)
	})

	t.Run("inactive plan fails closed", func(t *testing.T) {
		retired := starterPlan()
		retired.IsActive = false
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, retired, sch)
		_, err := svc.CheckLimit(ctx, sch.ID, ResourceStudent)
		assert.Equal(t, ErrPlanConfiguration, err)
	})

	t.Run("plan without feature set fails closed", func(t *testing.T) {
		broken := starterPlan()
		broken.Features = nil
		svc, repo, _, _ := newTestService(t)
		seedTenant(repo, broken, sch)
		_, err := svc.CheckLimit(ctx, sch.ID, ResourceStudent)
		assert.Equal(t, ErrPlanConfiguration, err)
	})

	t.Run("invalid resource kind", func(t *testing.T) {
		svc, _, _, _ := newTestService(t)
		_, err := svc.CheckLimit(ctx, sch.ID, ResourceKind("classrooms"))
		assert.Equal(t, ErrInvalidResourceKind, errors.Cause(err))
	})
}

func TestQuotaError(t *testing.T) {
	qerr := &QuotaError{
		Kind:     ResourceStudent,
		Decision: QuotaDecision{Current: 50, Max: 50, Plan: "Starter"},
	}
	assert.Equal(t, `student limit reached (50/50): contact your administrator to upgrade the "Starter" plan`, qerr.Error())
	assert.True(t, IsQuotaExceeded(qerr))
	assert.True(t, IsQuotaExceeded(errors.Wrap(qerr, "adding student")))
	assert.False(t, IsQuotaExceeded(ErrNotFound))
	assert.False(t, IsQuotaExceeded(nil))
}

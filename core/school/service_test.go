package school

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
)

func TestServiceSchoolLifecycle(t *testing.T) {
	ctx := context.Background()
	actorID := "root-admin"

	svc, repo, auditRepo, recorder := newTestService(t)
	repo.plans["plan-starter"] = starterPlan()

	sch, err := svc.Create(ctx, actorID, NewSchool{Name: "Hilltop Primary", PlanID: "plan-starter", ContactEmail: "admin@hilltop.test"})
	assert.NoError(t, err)
	assert.NotEmpty(t, sch.ID)
	assert.True(t, sch.IsActive)
	assert.False(t, sch.IsSuspended)

	t.Run("duplicate name is a field error", func(t *testing.T) {
		_, err := svc.Create(ctx, actorID, NewSchool{Name: "Hilltop Primary", PlanID: "plan-starter"})
		vErr, ok := err.(*core.ValidationError)
		if assert.True(t, ok, "expected a validation error, got %v", err) {
			assert.Equal(t, "name", vErr.Fields[0].Field)
		}
	})

	t.Run("suspend blocks mutations", func(t *testing.T) {
		got, err := svc.Suspend(ctx, actorID, sch.ID, "non-payment")
		assert.NoError(t, err)
		assert.True(t, got.IsSuspended)
		assert.Equal(t, "non-payment", got.SuspensionReason)
		assert.False(t, got.AcceptsMutations())
	})

	t.Run("reinstate clears suspension", func(t *testing.T) {
		got, err := svc.Reinstate(ctx, actorID, sch.ID)
		assert.NoError(t, err)
		assert.False(t, got.IsSuspended)
		assert.Empty(t, got.SuspensionReason)
		assert.True(t, got.AcceptsMutations())
	})

	t.Run("mutations are audited", func(t *testing.T) {
		recorder.Flush()
		entries := auditRepo.all()
		assert.Len(t, entries, 3) // create, suspend, reinstate
		for _, e := range entries {
			assert.Equal(t, actorID, e.ActorID)
			assert.Equal(t, "school", e.EntityType)
			assert.Equal(t, sch.ID, e.SchoolID)
			assert.False(t, e.Time.IsZero())
		}
	})
}

func TestServicePlans(t *testing.T) {
	ctx := context.Background()
	actorID := "root-admin"

	svc, _, auditRepo, recorder := newTestService(t)

	np := NewPlan{
		Name:         "Growth",
		MaxStudents:  500,
		MaxTeachers:  50,
		MaxStorageMB: 4096,
		Features:     map[string]bool{"messaging": true, "exports": true},
		MonthlyPrice: 99,
	}
	plan, err := svc.CreatePlan(ctx, actorID, np)
	assert.NoError(t, err)
	assert.True(t, plan.IsActive)
	assert.True(t, plan.Features.Enabled(FeatureMessaging))
	assert.True(t, plan.Features.Enabled(FeatureExports))
	// absent flags materialize as disabled
	assert.False(t, plan.Features.Enabled(FeatureReports))
	assert.False(t, plan.Features.Enabled(FeatureAPI))

	t.Run("update keeps identity and is audited", func(t *testing.T) {
		np.MaxStudents = 600
		updated, err := svc.UpdatePlan(ctx, actorID, plan.ID, np)
		assert.NoError(t, err)
		assert.Equal(t, plan.ID, updated.ID)
		assert.Equal(t, 600, updated.MaxStudents)

		recorder.Flush()
		entries := auditRepo.all()
		assert.Len(t, entries, 2)
		assert.Equal(t, audit.ActionCreate, entries[0].Action)
		assert.Equal(t, audit.ActionUpdate, entries[1].Action)
		assert.Equal(t, "plan", entries[1].EntityType)
		// plans are cross-tenant reference data
		assert.Empty(t, entries[1].SchoolID)
	})

	t.Run("plans list", func(t *testing.T) {
		plans, err := svc.QueryPlans(ctx)
		assert.NoError(t, err)
		assert.Len(t, plans, 1)
	})
}

func TestNewPlanValidate(t *testing.T) {
	validate, _ := core.NewValidator()

	t.Run("unknown feature flag rejected", func(t *testing.T) {
		np := NewPlan{Name: "Typo", Features: map[string]bool{"mesaging": true}}
		err := np.Validate(validate)
		vErr, ok := err.(*core.ValidationError)
		if assert.True(t, ok, "expected a validation error, got %v", err) {
			assert.Equal(t, "features", vErr.Fields[0].Field)
		}
	})

	t.Run("negative ceilings below -1 rejected", func(t *testing.T) {
		np := NewPlan{Name: "Broken", MaxStudents: -2}
		assert.Error(t, np.Validate(validate))
	})

	t.Run("unlimited ceilings accepted", func(t *testing.T) {
		np := NewPlan{Name: "Everything", MaxStudents: Unlimited, MaxTeachers: Unlimited, MaxStorageMB: Unlimited}
		assert.NoError(t, np.Validate(validate))
	})
}

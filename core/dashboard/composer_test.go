package dashboard

import (
	"context"
	"io/ioutil"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
	"github.com/shuleapp/shule/core/auth"
	"github.com/shuleapp/shule/core/roster"
	"github.com/shuleapp/shule/core/school"
	emailsvc "github.com/shuleapp/shule/services/email"
	inmemdb "github.com/shuleapp/shule/storage/database/inmem"
)

type testEnv struct {
	db       *inmemdb.DB
	schools  *school.Service
	roster   *roster.Service
	recorder *audit.Recorder
	composer *Composer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	conf := &core.Config{AppName: "shule", TestMode: true}
	logger := core.NewStdLogger(log.New(ioutil.Discard, "", 0))
	recorder := audit.NewRecorder(inmemdb.NewAuditRepository(db), logger)
	schools := school.NewService(inmemdb.NewSchoolRepository(db), recorder)
	composer := NewComposer(schools, recorder)
	rosterSvc := roster.NewService(
		inmemdb.NewRosterRepository(db), schools, recorder,
		emailsvc.NewConsoleServiceMock(conf), conf, composer.Invalidate,
	)
	return &testEnv{db: db, schools: schools, roster: rosterSvc, recorder: recorder, composer: composer}
}

func seedTenant(t *testing.T, env *testEnv) school.School {
	t.Helper()
	ctx := context.Background()

	plan, err := env.schools.CreatePlan(ctx, "root-admin", school.NewPlan{
		Name:        "Starter",
		MaxStudents: 10, MaxTeachers: 5, MaxStorageMB: 512,
		Features: map[string]bool{"messaging": true},
	})
	if err != nil {
		t.Fatalf("creating plan: %v", err)
	}
	sch, err := env.schools.Create(ctx, "root-admin", school.NewSchool{Name: "Hilltop Primary", PlanID: plan.ID})
	if err != nil {
		t.Fatalf("creating school: %v", err)
	}
	return sch
}

func TestComposerCompose(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sch := seedTenant(t, env)

	_, err := env.roster.AddStudent(ctx, "admin-1", sch.ID, roster.NewStudent{Name: "Asha"})
	assert.NoError(t, err)
	env.recorder.Flush()

	adminPerms := auth.Resolve([]string{auth.RoleSchoolAdmin}, auth.Membership{UserID: "admin-1", SchoolID: sch.ID})

	t.Run("school admin sees quotas and activity", func(t *testing.T) {
		sum, err := env.composer.Compose(ctx, adminPerms, sch.ID)
		assert.NoError(t, err)
		assert.Equal(t, "Hilltop Primary", sum.SchoolName)
		assert.Equal(t, "Starter", sum.Plan)
		assert.False(t, sum.Suspended)
		assert.Equal(t, Usage{Current: 1, Max: 10}, sum.Quotas[school.ResourceStudent])
		assert.Equal(t, Usage{Current: 0, Max: 5}, sum.Quotas[school.ResourceTeacher])
		assert.True(t, sum.Features.Enabled(school.FeatureMessaging))
		if assert.NotEmpty(t, sum.Activity) {
			assert.Equal(t, "student", sum.Activity[0].EntityType)
		}
	})

	t.Run("teacher sees neither quotas nor audit", func(t *testing.T) {
		perms := auth.Resolve([]string{auth.RoleTeacher}, auth.Membership{UserID: "t-1", SchoolID: sch.ID})
		sum, err := env.composer.Compose(ctx, perms, sch.ID)
		assert.NoError(t, err)
		assert.Nil(t, sum.Quotas)
		assert.Nil(t, sum.Features)
		assert.Empty(t, sum.Activity)
		assert.Equal(t, "Hilltop Primary", sum.SchoolName)
	})

	t.Run("no grants is denied", func(t *testing.T) {
		perms := auth.Resolve(nil, auth.Membership{UserID: "u-1", SchoolID: sch.ID})
		_, err := env.composer.Compose(ctx, perms, sch.ID)
		assert.Equal(t, auth.ErrPermissionDenied, err)
	})

	t.Run("cross-tenant access is denied", func(t *testing.T) {
		perms := auth.Resolve([]string{auth.RoleSchoolAdmin}, auth.Membership{UserID: "admin-2", SchoolID: "other-school"})
		_, err := env.composer.Compose(ctx, perms, sch.ID)
		assert.Equal(t, auth.ErrPermissionDenied, err)
	})

	t.Run("super admin crosses tenants", func(t *testing.T) {
		perms := auth.Resolve([]string{auth.RoleSuperAdmin}, auth.Membership{UserID: "root"})
		sum, err := env.composer.Compose(ctx, perms, sch.ID)
		assert.NoError(t, err)
		assert.Equal(t, sch.ID, sum.SchoolID)
	})
}

func TestComposerCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sch := seedTenant(t, env)
	perms := auth.Resolve([]string{auth.RoleSchoolAdmin}, auth.Membership{UserID: "admin-1", SchoolID: sch.ID})

	sum, err := env.composer.Compose(ctx, perms, sch.ID)
	assert.NoError(t, err)
	assert.Equal(t, 0, sum.Quotas[school.ResourceStudent].Current)

	// a roster mutation invalidates the cached aggregates
	_, err = env.roster.AddStudent(ctx, "admin-1", sch.ID, roster.NewStudent{Name: "Asha"})
	assert.NoError(t, err)

	sum, err = env.composer.Compose(ctx, perms, sch.ID)
	assert.NoError(t, err)
	assert.Equal(t, 1, sum.Quotas[school.ResourceStudent].Current)
}

func TestComposerCacheTTL(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sch := seedTenant(t, env)
	perms := auth.Resolve([]string{auth.RoleSchoolAdmin}, auth.Membership{UserID: "admin-1", SchoolID: sch.ID})

	now := time.Now()
	nowFunc = func() time.Time { return now }
	defer func() { nowFunc = time.Now }()

	sum, err := env.composer.Compose(ctx, perms, sch.ID)
	assert.NoError(t, err)
	assert.False(t, sum.Suspended)

	// suspension does not invalidate the cache; the TTL bounds how long the
	// dashboard can show the stale state
	_, err = env.schools.Suspend(ctx, "root-admin", sch.ID, "non-payment")
	assert.NoError(t, err)

	sum, err = env.composer.Compose(ctx, perms, sch.ID)
	assert.NoError(t, err)
	assert.False(t, sum.Suspended) // still cached

	nowFunc = func() time.Time { return now.Add(cacheTTL + time.Second) }
	sum, err = env.composer.Compose(ctx, perms, sch.ID)
	assert.NoError(t, err)
	assert.True(t, sum.Suspended)
}

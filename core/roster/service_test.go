package roster_test

import (
	"context"
	"io/ioutil"
	"log"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
	"github.com/shuleapp/shule/core/roster"
	"github.com/shuleapp/shule/core/school"
	emailsvc "github.com/shuleapp/shule/services/email"
	inmemdb "github.com/shuleapp/shule/storage/database/inmem"
)

type testEnv struct {
	db          *inmemdb.DB
	schools     *school.Service
	roster      *roster.Service
	recorder    *audit.Recorder
	mu          sync.Mutex
	invalidated []string
}

func (env *testEnv) invalidations() []string {
	env.mu.Lock()
	defer env.mu.Unlock()
	res := make([]string, len(env.invalidated))
	copy(res, env.invalidated)
	return res
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("opening db: %v", err)
	}
	conf := &core.Config{AppName: "shule", TestMode: true, DefaultFromName: "Shule", DefaultFromAddr: "noreply@shule.test"}
	logger := core.NewStdLogger(log.New(ioutil.Discard, "", 0))
	recorder := audit.NewRecorder(inmemdb.NewAuditRepository(db), logger)
	schools := school.NewService(inmemdb.NewSchoolRepository(db), recorder)

	env := &testEnv{db: db, schools: schools, recorder: recorder}
	env.roster = roster.NewService(
		inmemdb.NewRosterRepository(db),
		schools,
		recorder,
		emailsvc.NewConsoleServiceMock(conf),
		conf,
		func(schoolID string) {
			env.mu.Lock()
			env.invalidated = append(env.invalidated, schoolID)
			env.mu.Unlock()
		},
	)
	return env
}

func seedSchool(t *testing.T, env *testEnv, np school.NewPlan, ns school.NewSchool) school.School {
	t.Helper()
	ctx := context.Background()

	plan, err := env.schools.CreatePlan(ctx, "root-admin", np)
	if err != nil {
		t.Fatalf("creating plan: %v", err)
	}
	ns.PlanID = plan.ID
	sch, err := env.schools.Create(ctx, "root-admin", ns)
	if err != nil {
		t.Fatalf("creating school: %v", err)
	}
	return sch
}

func TestServiceAddStudent(t *testing.T) {
	ctx := context.Background()
	actorID := "admin-1"
	emailsvc.ClearSentMessages()

	env := newTestEnv(t)
	sch := seedSchool(t, env,
		school.NewPlan{Name: "Tiny", MaxStudents: 2, MaxTeachers: 1, MaxStorageMB: 100, Features: map[string]bool{"messaging": true}},
		school.NewSchool{Name: "Hilltop Primary", ContactEmail: "admin@hilltop.test"},
	)

	s1, err := env.roster.AddStudent(ctx, actorID, sch.ID, roster.NewStudent{Name: "Asha"})
	assert.NoError(t, err)
	assert.True(t, s1.IsActive)
	assert.Equal(t, sch.ID, s1.SchoolID)
	assert.Empty(t, emailsvc.SentMessages)

	// this create lands exactly on the ceiling: contact gets notified
	_, err = env.roster.AddStudent(ctx, actorID, sch.ID, roster.NewStudent{Name: "Badru"})
	assert.NoError(t, err)
	if assert.Len(t, emailsvc.SentMessages, 1) {
		msg := emailsvc.SentMessages[0]
		assert.Equal(t, "admin@hilltop.test", msg.To[0].Address)
		assert.Contains(t, msg.Subject, "student limit reached")
	}

	t.Run("over quota is denied with usage numbers", func(t *testing.T) {
		_, err := env.roster.AddStudent(ctx, actorID, sch.ID, roster.NewStudent{Name: "Chausiku"})
		assert.True(t, school.IsQuotaExceeded(err))
		qerr := err.(*school.QuotaError)
		assert.Equal(t, school.ResourceStudent, qerr.Kind)
		assert.Equal(t, 2, qerr.Decision.Current)
		assert.Equal(t, 2, qerr.Decision.Max)
		assert.Contains(t, qerr.Error(), "student limit reached (2/2)")
	})

	t.Run("deactivation frees a seat", func(t *testing.T) {
		_, err := env.roster.DeactivateStudent(ctx, actorID, sch.ID, s1.ID)
		assert.NoError(t, err)

		_, err = env.roster.AddStudent(ctx, actorID, sch.ID, roster.NewStudent{Name: "Chausiku"})
		assert.NoError(t, err)
	})

	t.Run("mutations audit and invalidate dashboards", func(t *testing.T) {
		env.recorder.Flush()
		entries, err := env.recorder.Query(ctx, audit.QueryFilter{SchoolID: sch.ID, EntityType: "student"})
		assert.NoError(t, err)
		assert.Len(t, entries, 4) // 3 creates, 1 deactivation
		assert.ElementsMatch(t, []string{sch.ID, sch.ID, sch.ID, sch.ID}, env.invalidations())
	})
}

func TestServiceAddStudentSuspendedSchool(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sch := seedSchool(t, env,
		school.NewPlan{Name: "Roomy", MaxStudents: 100, Features: map[string]bool{}},
		school.NewSchool{Name: "Lakeside"},
	)

	_, err := env.schools.Suspend(ctx, "root-admin", sch.ID, "non-payment")
	assert.NoError(t, err)

	// plenty of quota left, still blocked
	_, err = env.roster.AddStudent(ctx, "admin-1", sch.ID, roster.NewStudent{Name: "Asha"})
	assert.Equal(t, school.ErrSchoolSuspended, err)

	_, err = env.schools.Reinstate(ctx, "root-admin", sch.ID)
	assert.NoError(t, err)
	_, err = env.roster.AddStudent(ctx, "admin-1", sch.ID, roster.NewStudent{Name: "Asha"})
	assert.NoError(t, err)
}

func TestServiceAddTeacher(t *testing.T) {
	ctx := context.Background()
	actorID := "admin-1"
	emailsvc.ClearSentMessages()

	env := newTestEnv(t)
	sch := seedSchool(t, env,
		// messaging disabled: no limit alert even when the ceiling is hit
		school.NewPlan{Name: "Quiet", MaxStudents: 10, MaxTeachers: 1, Features: map[string]bool{"messaging": false}},
		school.NewSchool{Name: "Riverbend", ContactEmail: "admin@riverbend.test"},
	)

	tch, err := env.roster.AddTeacher(ctx, actorID, sch.ID, roster.NewTeacher{Name: "Mr. Okello", Email: "okello@riverbend.test", Subject: "Maths"})
	assert.NoError(t, err)
	assert.True(t, tch.IsActive)
	assert.Empty(t, emailsvc.SentMessages)

	_, err = env.roster.AddTeacher(ctx, actorID, sch.ID, roster.NewTeacher{Name: "Ms. Achieng"})
	assert.True(t, school.IsQuotaExceeded(err))
}

func TestServiceRosterScoping(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	sch1 := seedSchool(t, env,
		school.NewPlan{Name: "A", MaxStudents: 10, Features: map[string]bool{}},
		school.NewSchool{Name: "Hilltop Primary"},
	)
	sch2 := seedSchool(t, env,
		school.NewPlan{Name: "B", MaxStudents: 10, Features: map[string]bool{}},
		school.NewSchool{Name: "Lakeside"},
	)

	s1, err := env.roster.AddStudent(ctx, "admin-1", sch1.ID, roster.NewStudent{Name: "Asha"})
	assert.NoError(t, err)
	_, err = env.roster.AddStudent(ctx, "admin-2", sch2.ID, roster.NewStudent{Name: "Badru"})
	assert.NoError(t, err)

	// students are only visible within their own tenant
	students, err := env.roster.FilterStudents(ctx, sch1.ID, nil)
	assert.NoError(t, err)
	if assert.Len(t, students, 1) {
		assert.Equal(t, "Asha", students[0].Name)
	}

	_, err = env.roster.GetStudent(ctx, sch2.ID, s1.ID)
	assert.Equal(t, roster.ErrNotFound, err)
}

package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/roster"
	"github.com/shuleapp/shule/core/school"
	"github.com/shuleapp/shule/core/user"
)

// NewConfig returns a config suitable for tests; nothing external is reached.
func NewConfig() *core.Config {
	return &core.Config{
		Env:      "TEST",
		TestMode: true,

		AppName:         "Shule",
		SecretKey:       "secret~test~key",
		FrontendBaseURL: "http://localhost:3000",
		DefaultFromName: "Shule",
		DefaultFromAddr: "noreply@test.shule.app",

		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,

		Server: core.ServerConfig{
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
}

func CreatePlan(
	t *testing.T,
	repo school.Repository,
	name string,
	maxStudents, maxTeachers, maxStorageMB int,
	features school.FeatureSet,
) school.SubscriptionPlan {
	t.Helper()
	if features == nil {
		features = school.FeatureSet{}
	}
	now := time.Now().UTC()
	plan := school.SubscriptionPlan{
		ID:           uuid.New().String(),
		Name:         name,
		MaxStudents:  maxStudents,
		MaxTeachers:  maxTeachers,
		MaxStorageMB: maxStorageMB,
		Features:     features,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	plan, err := repo.CreatePlan(context.Background(), plan)
	if err != nil {
		t.Fatalf("CreatePlan(): %v", err)
	}
	return plan
}

func CreateSchool(t *testing.T, repo school.Repository, name, planID, contactEmail string) school.School {
	t.Helper()
	now := time.Now().UTC()
	sch := school.School{
		ID:           uuid.New().String(),
		Name:         name,
		PlanID:       planID,
		ContactEmail: contactEmail,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	sch, err := repo.CreateSchool(context.Background(), sch)
	if err != nil {
		t.Fatalf("CreateSchool(): %v", err)
	}
	return sch
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd, schoolID string,
	isAdmin bool,
	roles []string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	t.Helper()
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		ID:        uuid.New().String(),
		Name:      name,
		Username:  uname,
		Email:     email,
		SchoolID:  schoolID,
		IsAdmin:   isAdmin,
		Roles:     roles,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	usr.SetActive(isActive)
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser(): %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser(): %v", err)
	}
	return usr
}

func CreateStudent(t *testing.T, repo roster.Repository, schoolID, name string, isActive bool) roster.Student {
	t.Helper()
	now := time.Now().UTC()
	s := roster.Student{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		Name:      name,
		IsActive:  isActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s, err := repo.CreateStudent(context.Background(), s)
	if err != nil {
		t.Fatalf("CreateStudent(): %v", err)
	}
	return s
}

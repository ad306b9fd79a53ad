package roster

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
	"github.com/shuleapp/shule/core/school"
)

var ErrNotFound = errors.New("roster entry not found")

type (
	Repository interface {
		CreateStudent(ctx context.Context, s Student, exec ...core.DBExecutor) (Student, error)
		GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Student, error)
		FilterStudents(ctx context.Context, schoolID string, filter *QueryFilter, exec ...core.DBExecutor) ([]Student, error)
		UpdateStudent(ctx context.Context, s Student, isActive *bool, exec ...core.DBExecutor) (Student, error)

		CreateTeacher(ctx context.Context, t Teacher, exec ...core.DBExecutor) (Teacher, error)
		GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Teacher, error)
		FilterTeachers(ctx context.Context, schoolID string, filter *QueryFilter, exec ...core.DBExecutor) ([]Teacher, error)
		UpdateTeacher(ctx context.Context, t Teacher, isActive *bool, exec ...core.DBExecutor) (Teacher, error)
	}

	// Service performs the governed roster mutations: every create asks the
	// Quota Engine first, then mutates, then records an audit entry and
	// invalidates the dashboard aggregates for the tenant.
	Service struct {
		repo       Repository
		schools    *school.Service
		recorder   *audit.Recorder
		mailSvc    core.EmailService
		conf       *core.Config
		invalidate func(schoolID string) // dashboard cache hook; may be nil
	}
)

func NewService(
	repo Repository,
	schools *school.Service,
	recorder *audit.Recorder,
	mailSvc core.EmailService,
	conf *core.Config,
	invalidate func(schoolID string),
) *Service {
	return &Service{
		repo:       repo,
		schools:    schools,
		recorder:   recorder,
		mailSvc:    mailSvc,
		conf:       conf,
		invalidate: invalidate,
	}
}

func (svc *Service) afterMutation(actorID string, action audit.Action, entityType, entityID, schoolID string, before, after interface{}) {
	svc.recorder.Record(audit.Entry{
		ActorID:    actorID,
		SchoolID:   schoolID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     audit.Snapshot(before),
		After:      audit.Snapshot(after),
	})
	if svc.invalidate != nil {
		svc.invalidate(schoolID)
	}
}

// notifyLimitReached mails the school contact when a create lands exactly on
// the plan ceiling. Gated by the plan's messaging feature; failures are the
// mail service's to log, never the caller's.
func (svc *Service) notifyLimitReached(ctx context.Context, schoolID string, kind school.ResourceKind, decision school.QuotaDecision) {
	if decision.Max == school.Unlimited || decision.Current+1 < decision.Max {
		return
	}
	if !decision.Features.Enabled(school.FeatureMessaging) {
		return
	}
	sch, err := svc.schools.GetByID(ctx, schoolID)
	if err != nil || sch.ContactEmail == "" {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:      []mail.Address{{Name: sch.Name, Address: sch.ContactEmail}},
		Subject: fmt.Sprintf("%s limit reached on plan %q", kind, decision.Plan),
		BodyStr: fmt.Sprintf(
			"Your school has reached its %s limit (%d of %d). "+
				"Contact your administrator to upgrade your subscription plan.",
			kind, decision.Max, decision.Max),
	})
}

// Students

// AddStudent is a governed creation: quota first, then mutate, then audit.
func (svc *Service) AddStudent(ctx context.Context, actorID, schoolID string, ns NewStudent) (Student, error) {
	decision, err := svc.schools.CheckLimit(ctx, schoolID, school.ResourceStudent)
	if err != nil {
		return Student{}, err
	}
	if !decision.Allowed {
		return Student{}, &school.QuotaError{Kind: school.ResourceStudent, Decision: decision}
	}

	now := time.Now().UTC()
	s := Student{
		ID:            uuid.New().String(),
		SchoolID:      schoolID,
		Name:          ns.Name,
		GuardianEmail: ns.GuardianEmail,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s, err = svc.repo.CreateStudent(ctx, s)
	if err != nil {
		return Student{}, pkgerrors.Wrap(err, "creating student")
	}

	svc.afterMutation(actorID, audit.ActionCreate, "student", s.ID, schoolID, nil, s)
	svc.notifyLimitReached(ctx, schoolID, school.ResourceStudent, decision)
	return s, nil
}

func (svc *Service) GetStudent(ctx context.Context, schoolID, id string) (Student, error) {
	return svc.repo.GetStudent(ctx, schoolID, id)
}

func (svc *Service) FilterStudents(ctx context.Context, schoolID string, filter *QueryFilter) ([]Student, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.FilterStudents(ctx, schoolID, filter)
}

// DeactivateStudent frees one unit of the student quota (soft lifecycle).
func (svc *Service) DeactivateStudent(ctx context.Context, actorID, schoolID, id string) (Student, error) {
	orig, err := svc.repo.GetStudent(ctx, schoolID, id)
	if err != nil {
		return Student{}, err
	}

	inactive := false
	s := Student{ID: id, SchoolID: schoolID, UpdatedAt: time.Now().UTC()}
	s, err = svc.repo.UpdateStudent(ctx, s, &inactive)
	if err != nil {
		return Student{}, pkgerrors.Wrap(err, "deactivating student")
	}

	svc.afterMutation(actorID, audit.ActionDelete, "student", id, schoolID, orig, s)
	return s, nil
}

// Teachers

// AddTeacher is a governed creation: quota first, then mutate, then audit.
func (svc *Service) AddTeacher(ctx context.Context, actorID, schoolID string, nt NewTeacher) (Teacher, error) {
	decision, err := svc.schools.CheckLimit(ctx, schoolID, school.ResourceTeacher)
	if err != nil {
		return Teacher{}, err
	}
	if !decision.Allowed {
		return Teacher{}, &school.QuotaError{Kind: school.ResourceTeacher, Decision: decision}
	}

	now := time.Now().UTC()
	t := Teacher{
		ID:        uuid.New().String(),
		SchoolID:  schoolID,
		Name:      nt.Name,
		Email:     nt.Email,
		Subject:   nt.Subject,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t, err = svc.repo.CreateTeacher(ctx, t)
	if err != nil {
		return Teacher{}, pkgerrors.Wrap(err, "creating teacher")
	}

	svc.afterMutation(actorID, audit.ActionCreate, "teacher", t.ID, schoolID, nil, t)
	svc.notifyLimitReached(ctx, schoolID, school.ResourceTeacher, decision)
	return t, nil
}

func (svc *Service) GetTeacher(ctx context.Context, schoolID, id string) (Teacher, error) {
	return svc.repo.GetTeacher(ctx, schoolID, id)
}

func (svc *Service) FilterTeachers(ctx context.Context, schoolID string, filter *QueryFilter) ([]Teacher, error) {
	if filter != nil {
		filter.Clean()
	}
	return svc.repo.FilterTeachers(ctx, schoolID, filter)
}

// DeactivateTeacher frees one unit of the teacher quota (soft lifecycle).
func (svc *Service) DeactivateTeacher(ctx context.Context, actorID, schoolID, id string) (Teacher, error) {
	orig, err := svc.repo.GetTeacher(ctx, schoolID, id)
	if err != nil {
		return Teacher{}, err
	}

	inactive := false
	t := Teacher{ID: id, SchoolID: schoolID, UpdatedAt: time.Now().UTC()}
	t, err = svc.repo.UpdateTeacher(ctx, t, &inactive)
	if err != nil {
		return Teacher{}, pkgerrors.Wrap(err, "deactivating teacher")
	}

	svc.afterMutation(actorID, audit.ActionDelete, "teacher", id, schoolID, orig, t)
	return t, nil
}

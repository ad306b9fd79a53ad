package sqlxrepos

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/school"
)

type schoolRepository struct {
	db *sqlx.DB
}

var _ school.Repository = (*schoolRepository)(nil) // interface compliance check

func NewSchoolRepository(db *sqlx.DB) school.Repository {
	return &schoolRepository{db: db}
}

func (repo *schoolRepository) executor(exec ...core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

type schoolRow struct {
	ID               string    `db:"id"`
	Name             string    `db:"name"`
	PlanID           string    `db:"plan_id"`
	ContactEmail     string    `db:"contact_email"`
	IsActive         bool      `db:"is_active"`
	IsSuspended      bool      `db:"is_suspended"`
	SuspensionReason string    `db:"suspension_reason"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (row schoolRow) school() school.School {
	return school.School{
		ID:               row.ID,
		Name:             row.Name,
		PlanID:           row.PlanID,
		ContactEmail:     row.ContactEmail,
		IsActive:         row.IsActive,
		IsSuspended:      row.IsSuspended,
		SuspensionReason: row.SuspensionReason,
		CreatedAt:        row.CreatedAt,
		UpdatedAt:        row.UpdatedAt,
	}
}

type planRow struct {
	ID           string    `db:"id"`
	Name         string    `db:"name"`
	MaxStudents  int       `db:"max_students"`
	MaxTeachers  int       `db:"max_teachers"`
	MaxStorageMB int       `db:"max_storage_mb"`
	Features     []byte    `db:"features"`
	MonthlyPrice float64   `db:"monthly_price"`
	IsActive     bool      `db:"is_active"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (row planRow) plan() (school.SubscriptionPlan, error) {
	plan := school.SubscriptionPlan{
		ID:           row.ID,
		Name:         row.Name,
		MaxStudents:  row.MaxStudents,
		MaxTeachers:  row.MaxTeachers,
		MaxStorageMB: row.MaxStorageMB,
		MonthlyPrice: row.MonthlyPrice,
		IsActive:     row.IsActive,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
	if len(row.Features) > 0 {
		if err := json.Unmarshal(row.Features, &plan.Features); err != nil {
			return school.SubscriptionPlan{}, errors.Wrap(err, "decoding plan features")
		}
	}
	return plan, nil
}

const selectSchool = `
SELECT id, name, plan_id, contact_email, is_active, is_suspended, suspension_reason, created_at, updated_at
FROM school`

func (repo *schoolRepository) CheckNameUniqueness(ctx context.Context, name string, excluded []school.School, exec ...core.DBExecutor) error {
	ids := make([]string, 0, len(excluded))
	for _, sch := range excluded {
		ids = append(ids, sch.ID)
	}

	var exists bool
	err := repo.executor(exec...).QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM school WHERE lower(name) = lower($1) AND id <> ALL($2))`,
		name, pq.Array(ids),
	).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "checking school name")
	}
	if exists {
		return school.ErrNameExists
	}
	return nil
}

func (repo *schoolRepository) CreateSchool(ctx context.Context, sch school.School, exec ...core.DBExecutor) (school.School, error) {
	_, err := repo.executor(exec...).ExecContext(ctx,
		`INSERT INTO school (id, name, plan_id, contact_email, is_active, is_suspended, suspension_reason, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		sch.ID, sch.Name, sch.PlanID, sch.ContactEmail, sch.IsActive, sch.IsSuspended, sch.SuspensionReason, sch.CreatedAt, sch.UpdatedAt,
	)
	if err != nil {
		return school.School{}, errors.Wrap(err, "inserting school")
	}
	return sch, nil
}

func (repo *schoolRepository) GetSchool(ctx context.Context, id string, exec ...core.DBExecutor) (school.School, error) {
	rows, err := repo.executor(exec...).QueryContext(ctx, selectSchool+` WHERE id = $1`, id)
	if err != nil {
		return school.School{}, errors.Wrap(err, "getting school")
	}
	defer func() { _ = rows.Close() }()

	var res []schoolRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return school.School{}, errors.Wrap(err, "scanning school")
	}
	if len(res) == 0 {
		return school.School{}, school.ErrNotFound
	}
	return res[0].school(), nil
}

func (repo *schoolRepository) FilterSchools(ctx context.Context, filter *school.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]school.School, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter != nil {
		if filter.Search != "" {
			where = append(where, "name ILIKE "+arg("%"+filter.Search+"%"))
		}
		if filter.PlanID != "" {
			where = append(where, "plan_id = "+arg(filter.PlanID))
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if filter.IsSuspended != nil {
			where = append(where, "is_suspended = "+arg(*filter.IsSuspended))
		}
	}

	query := selectSchool
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderBy(ordering, "name ASC")

	rows, err := repo.executor(exec...).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "filtering schools")
	}
	defer func() { _ = rows.Close() }()

	var res []schoolRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return nil, errors.Wrap(err, "scanning schools")
	}
	schools := make([]school.School, 0, len(res))
	for _, row := range res {
		schools = append(schools, row.school())
	}
	return schools, nil
}

func (repo *schoolRepository) UpdateSchool(ctx context.Context, sch school.School, isActive, isSuspended *bool, exec ...core.DBExecutor) (school.School, error) {
	var (
		set  []string
		args []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	// only save set fields
	if sch.Name != "" {
		set = append(set, "name = "+arg(sch.Name))
	}
	if sch.PlanID != "" {
		set = append(set, "plan_id = "+arg(sch.PlanID))
	}
	if sch.ContactEmail != "" {
		set = append(set, "contact_email = "+arg(sch.ContactEmail))
	}
	if isActive != nil {
		set = append(set, "is_active = "+arg(*isActive))
	}
	if isSuspended != nil {
		set = append(set, "is_suspended = "+arg(*isSuspended))
		if !*isSuspended {
			set = append(set, "suspension_reason = ''")
		}
	}
	if sch.SuspensionReason != "" {
		set = append(set, "suspension_reason = "+arg(sch.SuspensionReason))
	}
	set = append(set, "updated_at = "+arg(sch.UpdatedAt))

	query := "UPDATE school SET " + strings.Join(set, ", ") + " WHERE id = " + arg(sch.ID)
	res, err := repo.executor(exec...).ExecContext(ctx, query, args...)
	if err != nil {
		return school.School{}, errors.Wrap(err, "updating school")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.School{}, school.ErrNotFound
	}
	return repo.GetSchool(ctx, sch.ID, exec...)
}

const selectPlan = `
SELECT id, name, max_students, max_teachers, max_storage_mb, features, monthly_price, is_active, created_at, updated_at
FROM subscription_plan`

func (repo *schoolRepository) CreatePlan(ctx context.Context, plan school.SubscriptionPlan, exec ...core.DBExecutor) (school.SubscriptionPlan, error) {
	features, err := json.Marshal(plan.Features)
	if err != nil {
		return school.SubscriptionPlan{}, errors.Wrap(err, "encoding plan features")
	}
	_, err = repo.executor(exec...).ExecContext(ctx,
		`INSERT INTO subscription_plan (id, name, max_students, max_teachers, max_storage_mb, features, monthly_price, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		plan.ID, plan.Name, plan.MaxStudents, plan.MaxTeachers, plan.MaxStorageMB, features, plan.MonthlyPrice, plan.IsActive, plan.CreatedAt, plan.UpdatedAt,
	)
	if err != nil {
		return school.SubscriptionPlan{}, errors.Wrap(err, "inserting plan")
	}
	return plan, nil
}

func (repo *schoolRepository) GetPlan(ctx context.Context, id string, exec ...core.DBExecutor) (school.SubscriptionPlan, error) {
	rows, err := repo.executor(exec...).QueryContext(ctx, selectPlan+` WHERE id = $1`, id)
	if err != nil {
		return school.SubscriptionPlan{}, errors.Wrap(err, "getting plan")
	}
	defer func() { _ = rows.Close() }()

	var res []planRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return school.SubscriptionPlan{}, errors.Wrap(err, "scanning plan")
	}
	if len(res) == 0 {
		return school.SubscriptionPlan{}, school.ErrPlanNotFound
	}
	return res[0].plan()
}

func (repo *schoolRepository) QueryAllPlans(ctx context.Context, exec ...core.DBExecutor) ([]school.SubscriptionPlan, error) {
	rows, err := repo.executor(exec...).QueryContext(ctx, selectPlan+` ORDER BY name ASC`)
	if err != nil {
		return nil, errors.Wrap(err, "querying plans")
	}
	defer func() { _ = rows.Close() }()

	var res []planRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return nil, errors.Wrap(err, "scanning plans")
	}
	plans := make([]school.SubscriptionPlan, 0, len(res))
	for _, row := range res {
		plan, err := row.plan()
		if err != nil {
			return nil, err
		}
		plans = append(plans, plan)
	}
	return plans, nil
}

func (repo *schoolRepository) UpdatePlan(ctx context.Context, plan school.SubscriptionPlan, exec ...core.DBExecutor) (school.SubscriptionPlan, error) {
	features, err := json.Marshal(plan.Features)
	if err != nil {
		return school.SubscriptionPlan{}, errors.Wrap(err, "encoding plan features")
	}
	res, err := repo.executor(exec...).ExecContext(ctx,
		`UPDATE subscription_plan
		 SET name = $2, max_students = $3, max_teachers = $4, max_storage_mb = $5, features = $6, monthly_price = $7, is_active = $8, updated_at = $9
		 WHERE id = $1`,
		plan.ID, plan.Name, plan.MaxStudents, plan.MaxTeachers, plan.MaxStorageMB, features, plan.MonthlyPrice, plan.IsActive, plan.UpdatedAt,
	)
	if err != nil {
		return school.SubscriptionPlan{}, errors.Wrap(err, "updating plan")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return school.SubscriptionPlan{}, school.ErrPlanNotFound
	}
	return plan, nil
}

func (repo *schoolRepository) CountResource(ctx context.Context, schoolID string, kind school.ResourceKind, exec ...core.DBExecutor) (int, error) {
	var (
		query string
		count int
	)
	switch kind {
	case school.ResourceStudent:
		query = `SELECT COUNT(*) FROM student WHERE school_id = $1 AND is_active`
	case school.ResourceTeacher:
		query = `SELECT COUNT(*) FROM teacher WHERE school_id = $1 AND is_active`
	case school.ResourceStorage:
		query = `SELECT COALESCE(SUM(used_mb), 0) FROM storage_usage WHERE school_id = $1`
	default:
		return 0, school.ErrInvalidResourceKind
	}

	if err := repo.executor(exec...).QueryRowContext(ctx, query, schoolID).Scan(&count); err != nil {
		return 0, errors.Wrapf(err, "counting %s usage", kind)
	}
	return count, nil
}

// orderBy renders ordering or falls back to a stable default.
func orderBy(ordering []core.DBOrdering, fallback string) string {
	if len(ordering) == 0 {
		return " ORDER BY " + fallback
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

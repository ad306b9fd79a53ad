package sqlxrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/roster"
)

type rosterRepository struct {
	db *sqlx.DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *sqlx.DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) executor(exec ...core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

type studentRow struct {
	ID            string    `db:"id"`
	SchoolID      string    `db:"school_id"`
	Name          string    `db:"name"`
	GuardianEmail string    `db:"guardian_email"`
	IsActive      bool      `db:"is_active"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func (row studentRow) student() roster.Student {
	return roster.Student(row)
}

type teacherRow struct {
	ID        string    `db:"id"`
	SchoolID  string    `db:"school_id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	Subject   string    `db:"subject"`
	IsActive  bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row teacherRow) teacher() roster.Teacher {
	return roster.Teacher(row)
}

const (
	selectStudent = `
SELECT id, school_id, name, guardian_email, is_active, created_at, updated_at
FROM student`
	selectTeacher = `
SELECT id, school_id, name, email, subject, is_active, created_at, updated_at
FROM teacher`
)

func (repo *rosterRepository) CreateStudent(ctx context.Context, s roster.Student, exec ...core.DBExecutor) (roster.Student, error) {
	_, err := repo.executor(exec...).ExecContext(ctx,
		`INSERT INTO student (id, school_id, name, guardian_email, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.SchoolID, s.Name, s.GuardianEmail, s.IsActive, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

func (repo *rosterRepository) GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (roster.Student, error) {
	rows, err := repo.executor(exec...).QueryContext(ctx, selectStudent+` WHERE school_id = $1 AND id = $2`, schoolID, id)
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "getting student")
	}
	defer func() { _ = rows.Close() }()

	var res []studentRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return roster.Student{}, errors.Wrap(err, "scanning student")
	}
	if len(res) == 0 {
		return roster.Student{}, roster.ErrNotFound
	}
	return res[0].student(), nil
}

func (repo *rosterRepository) FilterStudents(ctx context.Context, schoolID string, filter *roster.QueryFilter, exec ...core.DBExecutor) ([]roster.Student, error) {
	args := []interface{}{schoolID}
	query := selectStudent + ` WHERE school_id = $1`
	query, args = applyRosterFilter(query, args, filter)
	query += ` ORDER BY name ASC`

	rows, err := repo.executor(exec...).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "filtering students")
	}
	defer func() { _ = rows.Close() }()

	var res []studentRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return nil, errors.Wrap(err, "scanning students")
	}
	students := make([]roster.Student, 0, len(res))
	for _, row := range res {
		students = append(students, row.student())
	}
	return students, nil
}

func (repo *rosterRepository) UpdateStudent(ctx context.Context, s roster.Student, isActive *bool, exec ...core.DBExecutor) (roster.Student, error) {
	var (
		set  []string
		args []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	// only save set fields
	if s.Name != "" {
		set = append(set, "name = "+arg(s.Name))
	}
	if s.GuardianEmail != "" {
		set = append(set, "guardian_email = "+arg(s.GuardianEmail))
	}
	if isActive != nil {
		set = append(set, "is_active = "+arg(*isActive))
	}
	set = append(set, "updated_at = "+arg(s.UpdatedAt))

	query := "UPDATE student SET " + strings.Join(set, ", ") + " WHERE id = " + arg(s.ID)
	res, err := repo.executor(exec...).ExecContext(ctx, query, args...)
	if err != nil {
		return roster.Student{}, errors.Wrap(err, "updating student")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.Student{}, roster.ErrNotFound
	}
	return repo.GetStudent(ctx, s.SchoolID, s.ID, exec...)
}

func (repo *rosterRepository) CreateTeacher(ctx context.Context, t roster.Teacher, exec ...core.DBExecutor) (roster.Teacher, error) {
	_, err := repo.executor(exec...).ExecContext(ctx,
		`INSERT INTO teacher (id, school_id, name, email, subject, is_active, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		t.ID, t.SchoolID, t.Name, t.Email, t.Subject, t.IsActive, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return roster.Teacher{}, errors.Wrap(err, "inserting teacher")
	}
	return t, nil
}

func (repo *rosterRepository) GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (roster.Teacher, error) {
	rows, err := repo.executor(exec...).QueryContext(ctx, selectTeacher+` WHERE school_id = $1 AND id = $2`, schoolID, id)
	if err != nil {
		return roster.Teacher{}, errors.Wrap(err, "getting teacher")
	}
	defer func() { _ = rows.Close() }()

	var res []teacherRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return roster.Teacher{}, errors.Wrap(err, "scanning teacher")
	}
	if len(res) == 0 {
		return roster.Teacher{}, roster.ErrNotFound
	}
	return res[0].teacher(), nil
}

func (repo *rosterRepository) FilterTeachers(ctx context.Context, schoolID string, filter *roster.QueryFilter, exec ...core.DBExecutor) ([]roster.Teacher, error) {
	args := []interface{}{schoolID}
	query := selectTeacher + ` WHERE school_id = $1`
	query, args = applyRosterFilter(query, args, filter)
	query += ` ORDER BY name ASC`

	rows, err := repo.executor(exec...).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "filtering teachers")
	}
	defer func() { _ = rows.Close() }()

	var res []teacherRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return nil, errors.Wrap(err, "scanning teachers")
	}
	teachers := make([]roster.Teacher, 0, len(res))
	for _, row := range res {
		teachers = append(teachers, row.teacher())
	}
	return teachers, nil
}

func (repo *rosterRepository) UpdateTeacher(ctx context.Context, t roster.Teacher, isActive *bool, exec ...core.DBExecutor) (roster.Teacher, error) {
	var (
		set  []string
		args []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	// only save set fields
	if t.Name != "" {
		set = append(set, "name = "+arg(t.Name))
	}
	if t.Email != "" {
		set = append(set, "email = "+arg(t.Email))
	}
	if t.Subject != "" {
		set = append(set, "subject = "+arg(t.Subject))
	}
	if isActive != nil {
		set = append(set, "is_active = "+arg(*isActive))
	}
	set = append(set, "updated_at = "+arg(t.UpdatedAt))

	query := "UPDATE teacher SET " + strings.Join(set, ", ") + " WHERE id = " + arg(t.ID)
	res, err := repo.executor(exec...).ExecContext(ctx, query, args...)
	if err != nil {
		return roster.Teacher{}, errors.Wrap(err, "updating teacher")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return roster.Teacher{}, roster.ErrNotFound
	}
	return repo.GetTeacher(ctx, t.SchoolID, t.ID, exec...)
}

func applyRosterFilter(query string, args []interface{}, filter *roster.QueryFilter) (string, []interface{}) {
	if filter == nil {
		return query, args
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += " AND name ILIKE $" + strconv.Itoa(len(args))
	}
	if filter.IsActive != nil {
		args = append(args, *filter.IsActive)
		query += " AND is_active = $" + strconv.Itoa(len(args))
	}
	return query, args
}

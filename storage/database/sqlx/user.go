package sqlxrepos

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/user"
)

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) user.Repository {
	return &userRepository{db: db}
}

func (repo *userRepository) executor(exec ...core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

type userRow struct {
	ID           string         `db:"id"`
	Name         string         `db:"name"`
	Username     string         `db:"username"`
	Email        string         `db:"email"`
	SchoolID     null.String    `db:"school_id"`
	IsAdmin      bool           `db:"is_admin"`
	IsActive     bool           `db:"is_active"`
	Roles        pq.StringArray `db:"roles"`
	PasswordHash null.Bytes     `db:"password_hash"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	LastLogin    null.Time      `db:"last_login"`
}

func (row userRow) user() user.User {
	usr := user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email,
		SchoolID:     row.SchoolID.String,
		IsAdmin:      row.IsAdmin,
		Roles:        row.Roles,
		PasswordHash: row.PasswordHash.Bytes,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
		LastLogin:    row.LastLogin.Time,
	}
	usr.SetActive(row.IsActive)
	return usr
}

const selectUser = `
SELECT id, name, username, email, school_id, is_admin, is_active, roles, password_hash, created_at, updated_at, last_login
FROM app_user`

func (repo *userRepository) CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []user.User, exec ...core.DBExecutor) error {
	ids := make([]string, 0, len(excludedUsers))
	for _, usr := range excludedUsers {
		ids = append(ids, usr.ID)
	}

	var existingUname, existingEmail bool
	err := repo.executor(exec...).QueryRowContext(ctx,
		`SELECT
		    EXISTS(SELECT 1 FROM app_user WHERE username = $1 AND $1 <> '' AND id <> ALL($3)),
		    EXISTS(SELECT 1 FROM app_user WHERE email = $2 AND $2 <> '' AND id <> ALL($3))`,
		username, email, pq.Array(ids),
	).Scan(&existingUname, &existingEmail)
	if err != nil {
		return errors.Wrap(err, "checking username uniqueness")
	}
	if existingUname {
		return user.ErrUsernameExists
	}
	if existingEmail {
		return user.ErrEmailExists
	}
	return nil
}

func (repo *userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	_, err := repo.executor(exec...).ExecContext(ctx,
		`INSERT INTO app_user (id, name, username, email, school_id, is_admin, is_active, roles, password_hash, created_at, updated_at, last_login)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		usr.ID, usr.Name, usr.Username, usr.Email,
		null.NewString(usr.SchoolID, usr.SchoolID != ""),
		usr.IsAdmin, usr.Active(), pq.Array(usr.Roles), usr.PasswordHash,
		usr.CreatedAt, usr.UpdatedAt,
		null.NewTime(usr.LastLogin, !usr.LastLogin.IsZero()),
	)
	if err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return usr, nil
}

func (repo *userRepository) GetUser(ctx context.Context, filter user.GetFilter, exec ...core.DBExecutor) (user.User, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.ID != "" {
		where = append(where, "id = "+arg(filter.ID))
	}
	if filter.UsernameOrEmail != "" {
		ph := arg(filter.UsernameOrEmail)
		where = append(where, "(username = "+ph+" OR email = "+ph+")")
	}
	if len(where) == 0 {
		return user.User{}, user.ErrNotFound
	}

	rows, err := repo.executor(exec...).QueryContext(ctx, selectUser+" WHERE "+strings.Join(where, " OR "), args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "getting user")
	}
	defer func() { _ = rows.Close() }()

	var res []userRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return user.User{}, errors.Wrap(err, "scanning user")
	}
	if len(res) == 0 {
		return user.User{}, user.ErrNotFound
	}
	return res[0].user(), nil
}

func (repo *userRepository) FilterUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]user.User, error) {
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
			ph := arg("%" + filter.Search + "%")
			where = append(where, "(name ILIKE "+ph+" OR username ILIKE "+ph+" OR email ILIKE "+ph+")")
		}
		if len(filter.Roles) > 0 {
			where = append(where, "roles && "+arg(pq.Array(filter.Roles)))
		}
		if filter.SchoolID != "" {
			where = append(where, "school_id = "+arg(filter.SchoolID))
		}
		if filter.IsActive != nil {
			where = append(where, "is_active = "+arg(*filter.IsActive))
		}
		if !filter.CreatedFrom.IsZero() {
			where = append(where, "created_at >= "+arg(filter.CreatedFrom))
		}
		if !filter.CreatedTo.IsZero() {
			where = append(where, "created_at <= "+arg(filter.CreatedTo))
		}
	}

	query := selectUser
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += orderBy(ordering, "created_at ASC")

	rows, err := repo.executor(exec...).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "filtering users")
	}
	defer func() { _ = rows.Close() }()

	var res []userRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return nil, errors.Wrap(err, "scanning users")
	}
	users := make([]user.User, 0, len(res))
	for _, row := range res {
		users = append(users, row.user())
	}
	return users, nil
}

func (repo *userRepository) UpdateUser(ctx context.Context, usr user.User, isActive *bool, exec ...core.DBExecutor) (user.User, error) {
	var (
		set  []string
		args []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	// only save set fields
	if usr.Name != "" {
		set = append(set, "name = "+arg(usr.Name))
	}
	if usr.Username != "" {
		set = append(set, "username = "+arg(usr.Username))
	}
	if usr.Email != "" {
		set = append(set, "email = "+arg(usr.Email))
	}
	if usr.SchoolID != "" {
		set = append(set, "school_id = "+arg(usr.SchoolID))
	}
	if usr.Roles != nil {
		set = append(set, "roles = "+arg(pq.Array(usr.Roles)))
	}
	if usr.PasswordHash != nil {
		set = append(set, "password_hash = "+arg(usr.PasswordHash))
	}
	if isActive != nil {
		set = append(set, "is_active = "+arg(*isActive))
	}
	if !usr.LastLogin.IsZero() {
		set = append(set, "last_login = "+arg(usr.LastLogin))
	}
	set = append(set, "updated_at = "+arg(usr.UpdatedAt))

	query := "UPDATE app_user SET " + strings.Join(set, ", ") + " WHERE id = " + arg(usr.ID)
	res, err := repo.executor(exec...).ExecContext(ctx, query, args...)
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exec...)
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	if _, err := repo.GetUser(ctx, user.GetFilter{ID: usr.ID}, exec...); err != nil {
		if err == user.ErrNotFound {
			return repo.CreateUser(ctx, usr, exec...)
		}
		return user.User{}, err
	}
	return repo.UpdateUser(ctx, usr, usr.IsActive, exec...)
}

func (repo *userRepository) DeleteUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := repo.executor(exec...).ExecContext(ctx, `DELETE FROM app_user WHERE id = ANY($1)`, pq.Array(ids))
	return errors.Wrap(err, "deleting users")
}

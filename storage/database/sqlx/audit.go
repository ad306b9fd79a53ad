package sqlxrepos

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
)

type auditRepository struct {
	db *sqlx.DB
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *sqlx.DB) audit.Repository {
	return &auditRepository{db: db}
}

func (repo *auditRepository) executor(exec ...core.DBExecutor) core.DBExecutor {
	if len(exec) > 0 {
		return exec[0]
	}
	return repo.db
}

type auditRow struct {
	ID         string      `db:"id"`
	Time       time.Time   `db:"time"`
	ActorID    string      `db:"actor_id"`
	SchoolID   null.String `db:"school_id"`
	Action     string      `db:"action"`
	EntityType string      `db:"entity_type"`
	EntityID   string      `db:"entity_id"`
	Before     null.Bytes  `db:"before"`
	After      null.Bytes  `db:"after"`
	IP         string      `db:"ip"`
	UserAgent  string      `db:"user_agent"`
}

func (row auditRow) entry() audit.Entry {
	return audit.Entry{
		ID:         row.ID,
		Time:       row.Time,
		ActorID:    row.ActorID,
		SchoolID:   row.SchoolID.String,
		Action:     audit.Action(row.Action),
		EntityType: row.EntityType,
		EntityID:   row.EntityID,
		Before:     json.RawMessage(row.Before.Bytes),
		After:      json.RawMessage(row.After.Bytes),
		IP:         row.IP,
		UserAgent:  row.UserAgent,
	}
}

const selectEntry = `
SELECT id, time, actor_id, school_id, action, entity_type, entity_id, before, after, ip, user_agent
FROM audit_log`

func (repo *auditRepository) AppendEntry(ctx context.Context, e audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	_, err := repo.executor(exec...).ExecContext(ctx,
		`INSERT INTO audit_log (id, time, actor_id, school_id, action, entity_type, entity_id, before, after, ip, user_agent)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.Time, e.ActorID,
		null.NewString(e.SchoolID, e.SchoolID != ""),
		string(e.Action), e.EntityType, e.EntityID,
		null.NewBytes(e.Before, e.Before != nil),
		null.NewBytes(e.After, e.After != nil),
		e.IP, e.UserAgent,
	)
	if err != nil {
		return audit.Entry{}, errors.Wrap(err, "inserting audit entry")
	}
	return e, nil
}

func (repo *auditRepository) QueryEntries(ctx context.Context, filter audit.QueryFilter, exec ...core.DBExecutor) ([]audit.Entry, error) {
	var (
		where []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.SchoolID != "" {
		where = append(where, "school_id = "+arg(filter.SchoolID))
	}
	if filter.ActorID != "" {
		where = append(where, "actor_id = "+arg(filter.ActorID))
	}
	if filter.Action != "" {
		where = append(where, "action = "+arg(string(filter.Action)))
	}
	if filter.EntityType != "" {
		where = append(where, "entity_type = "+arg(filter.EntityType))
	}
	if !filter.DateFrom.IsZero() {
		where = append(where, "time >= "+arg(filter.DateFrom))
	}
	if !filter.DateTo.IsZero() {
		where = append(where, "time <= "+arg(filter.DateTo))
	}

	query := selectEntry
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY time DESC`
	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}

	rows, err := repo.executor(exec...).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying audit entries")
	}
	defer func() { _ = rows.Close() }()

	var res []auditRow
	if err = sqlx.StructScan(rows, &res); err != nil {
		return nil, errors.Wrap(err, "scanning audit entries")
	}
	entries := make([]audit.Entry, 0, len(res))
	for _, row := range res {
		entries = append(entries, row.entry())
	}
	return entries, nil
}

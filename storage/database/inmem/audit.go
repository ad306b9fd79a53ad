package inmemdb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/audit"
)

type auditRepository struct {
	db *auditTable
}

var _ audit.Repository = (*auditRepository)(nil) // interface compliance check

func NewAuditRepository(db *DB) audit.Repository {
	return &auditRepository{db: db.audit}
}

func (repo *auditRepository) AppendEntry(ctx context.Context, e audit.Entry, exec ...core.DBExecutor) (audit.Entry, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	// append-only: entries are never updated or deleted
	repo.db.table = append(repo.db.table, e)
	return e, nil
}

func (repo *auditRepository) QueryEntries(ctx context.Context, filter audit.QueryFilter, exec ...core.DBExecutor) ([]audit.Entry, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	res := make([]audit.Entry, 0, len(repo.db.table))
	for _, e := range repo.db.table {
		if filter.SchoolID != "" && e.SchoolID != filter.SchoolID {
			continue
		}
		if filter.ActorID != "" && e.ActorID != filter.ActorID {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && e.EntityType != filter.EntityType {
			continue
		}
		if !filter.DateFrom.IsZero() && e.Time.Before(filter.DateFrom) {
			continue
		}
		if !filter.DateTo.IsZero() && e.Time.After(filter.DateTo) {
			continue
		}
		res = append(res, e)
	}

	// most recent first
	sort.SliceStable(res, func(i, j int) bool { return res[i].Time.After(res[j].Time) })

	if filter.Offset > 0 {
		if filter.Offset >= len(res) {
			return []audit.Entry{}, nil
		}
		res = res[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(res) {
		res = res[:filter.Limit]
	}
	return res, nil
}

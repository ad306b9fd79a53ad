package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/roster"
)

type rosterRepository struct {
	db *DB
}

var _ roster.Repository = (*rosterRepository)(nil) // interface compliance check

func NewRosterRepository(db *DB) roster.Repository {
	return &rosterRepository{db: db}
}

func (repo *rosterRepository) CreateStudent(ctx context.Context, s roster.Student, exec ...core.DBExecutor) (roster.Student, error) {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()
	repo.db.student.table[s.ID] = &s
	return s, nil
}

func (repo *rosterRepository) GetStudent(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (roster.Student, error) {
	repo.db.student.RLock()
	defer repo.db.student.RUnlock()

	if s, ok := repo.db.student.table[id]; ok && s.SchoolID == schoolID {
		return *s, nil
	}
	return roster.Student{}, roster.ErrNotFound
}

func (repo *rosterRepository) FilterStudents(ctx context.Context, schoolID string, filter *roster.QueryFilter, exec ...core.DBExecutor) ([]roster.Student, error) {
	repo.db.student.RLock()
	defer repo.db.student.RUnlock()

	res := make([]roster.Student, 0, len(repo.db.student.table))
	for _, s := range repo.db.student.table {
		if s.SchoolID != schoolID {
			continue
		}
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.IsActive != nil && s.IsActive != *filter.IsActive {
				continue
			}
		}
		res = append(res, *s)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (repo *rosterRepository) UpdateStudent(ctx context.Context, s roster.Student, isActive *bool, exec ...core.DBExecutor) (roster.Student, error) {
	repo.db.student.Lock()
	defer repo.db.student.Unlock()

	orig, ok := repo.db.student.table[s.ID]
	if !ok {
		return roster.Student{}, roster.ErrNotFound
	}
	if s.Name != "" {
		orig.Name = s.Name
	}
	if s.GuardianEmail != "" {
		orig.GuardianEmail = s.GuardianEmail
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = s.UpdatedAt

	repo.db.student.table[orig.ID] = orig
	return *orig, nil
}

func (repo *rosterRepository) CreateTeacher(ctx context.Context, t roster.Teacher, exec ...core.DBExecutor) (roster.Teacher, error) {
	repo.db.teacher.Lock()
	defer repo.db.teacher.Unlock()
	repo.db.teacher.table[t.ID] = &t
	return t, nil
}

func (repo *rosterRepository) GetTeacher(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (roster.Teacher, error) {
	repo.db.teacher.RLock()
	defer repo.db.teacher.RUnlock()

	if t, ok := repo.db.teacher.table[id]; ok && t.SchoolID == schoolID {
		return *t, nil
	}
	return roster.Teacher{}, roster.ErrNotFound
}

func (repo *rosterRepository) FilterTeachers(ctx context.Context, schoolID string, filter *roster.QueryFilter, exec ...core.DBExecutor) ([]roster.Teacher, error) {
	repo.db.teacher.RLock()
	defer repo.db.teacher.RUnlock()

	res := make([]roster.Teacher, 0, len(repo.db.teacher.table))
	for _, t := range repo.db.teacher.table {
		if t.SchoolID != schoolID {
			continue
		}
		if filter != nil {
			if filter.Search != "" && !strings.Contains(strings.ToLower(t.Name), strings.ToLower(filter.Search)) {
				continue
			}
			if filter.IsActive != nil && t.IsActive != *filter.IsActive {
				continue
			}
		}
		res = append(res, *t)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

func (repo *rosterRepository) UpdateTeacher(ctx context.Context, t roster.Teacher, isActive *bool, exec ...core.DBExecutor) (roster.Teacher, error) {
	repo.db.teacher.Lock()
	defer repo.db.teacher.Unlock()

	orig, ok := repo.db.teacher.table[t.ID]
	if !ok {
		return roster.Teacher{}, roster.ErrNotFound
	}
	if t.Name != "" {
		orig.Name = t.Name
	}
	if t.Email != "" {
		orig.Email = t.Email
	}
	if t.Subject != "" {
		orig.Subject = t.Subject
	}
	if isActive != nil {
		orig.IsActive = *isActive
	}
	orig.UpdatedAt = t.UpdatedAt

	repo.db.teacher.table[orig.ID] = orig
	return *orig, nil
}

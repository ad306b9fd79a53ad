// Package inmemdb provides in-memory repositories backing the core services
// in tests and local development, with the same semantics as the SQL store.
package inmemdb

import (
	"sync"

	"github.com/shuleapp/shule/core/audit"
	"github.com/shuleapp/shule/core/roster"
	"github.com/shuleapp/shule/core/school"
	"github.com/shuleapp/shule/core/user"
)

type (
	DB struct {
		school  *schoolTable
		plan    *planTable
		user    *userTable
		student *studentTable
		teacher *teacherTable
		audit   *auditTable
		storage *storageTable
	}

	schoolTable struct {
		sync.RWMutex
		table map[string]*school.School
	}

	planTable struct {
		sync.RWMutex
		table map[string]*school.SubscriptionPlan
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*roster.Student
	}

	teacherTable struct {
		sync.RWMutex
		table map[string]*roster.Teacher
	}

	auditTable struct {
		sync.RWMutex
		table []audit.Entry
	}

	// storageTable tracks used MB per school; files themselves live elsewhere.
	storageTable struct {
		sync.RWMutex
		usedMB map[string]int
	}
)

func Open() (*DB, error) {
	db := &DB{
		school:  &schoolTable{table: make(map[string]*school.School)},
		plan:    &planTable{table: make(map[string]*school.SubscriptionPlan)},
		user:    &userTable{table: make(map[string]*user.User)},
		student: &studentTable{table: make(map[string]*roster.Student)},
		teacher: &teacherTable{table: make(map[string]*roster.Teacher)},
		audit:   &auditTable{},
		storage: &storageTable{usedMB: make(map[string]int)},
	}
	return db, nil
}

// SetStorageUsage records a tenant's used storage in MB.
func (db *DB) SetStorageUsage(schoolID string, usedMB int) {
	db.storage.Lock()
	defer db.storage.Unlock()
	db.storage.usedMB[schoolID] = usedMB
}

package audit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core"
)

type (
	Repository interface {
		// AppendEntry durably appends e; entries are never updated or deleted.
		AppendEntry(ctx context.Context, e Entry, exec ...core.DBExecutor) (Entry, error)
		// QueryEntries returns entries matching filter, newest first (Time desc).
		QueryEntries(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Entry, error)
	}

	// Recorder appends one immutable Entry per governed mutation or
	// authentication event. Record is fire-and-forget relative to the
	// primary mutation: a failed audit write is logged as an operational
	// warning and never propagated to the triggering action.
	Recorder struct {
		repo   Repository
		logger core.Logger

		wg sync.WaitGroup
	}
)

var nowFunc = time.Now // mockable

func NewRecorder(repo Repository, logger core.Logger) *Recorder {
	return &Recorder{repo: repo, logger: logger}
}

// Record appends e asynchronously. The append uses a fresh context: the
// caller's request context may be cancelled as soon as its response is sent,
// and an audit write must still be attempted for every permitted mutation.
func (rec *Recorder) Record(e Entry) {
	if e.Time.IsZero() {
		e.Time = nowFunc().UTC()
	}
	rec.wg.Add(1)
	go func() {
		defer rec.wg.Done()
		if _, err := rec.repo.AppendEntry(context.Background(), e); err != nil {
			rec.logger.Warn("audit write dropped", errors.Wrap(err, "appending audit entry"), e)
		}
	}()
}

// Flush blocks until all pending appends have been attempted.
// Called on graceful shutdown and by tests.
func (rec *Recorder) Flush() {
	rec.wg.Wait()
}

// Query returns a reverse-chronological page of entries for reporting
// screens. Never used for authorization decisions.
func (rec *Recorder) Query(ctx context.Context, filter QueryFilter) ([]Entry, error) {
	return rec.repo.QueryEntries(ctx, filter)
}

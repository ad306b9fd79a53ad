package dashboard

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/audit"
	"github.com/shuleapp/shule/core/auth"
	"github.com/shuleapp/shule/core/school"
)

// recentActivityLimit caps the audit tail attached to a summary.
const recentActivityLimit = 20

// cacheTTL bounds staleness for aggregates that changed outside the
// invalidation hooks (plan edits, suspension toggles).
const cacheTTL = time.Minute

var nowFunc = time.Now // mockable

type (
	// Usage is one resource gauge on the school dashboard.
	Usage struct {
		Current int `json:"current"`
		Max     int `json:"max"` // -1 = unlimited
	}

	// Summary is the per-tenant dashboard payload. Fields gated by a
	// permission the caller lacks are left zero.
	Summary struct {
		SchoolID    string                        `json:"school_id"`
		SchoolName  string                        `json:"school_name"`
		Plan        string                        `json:"plan"`
		Suspended   bool                          `json:"suspended"`
		Quotas      map[school.ResourceKind]Usage `json:"quotas,omitempty"`
		Features    school.FeatureSet             `json:"features,omitempty"`
		Activity    []audit.Entry                 `json:"activity,omitempty"`
		GeneratedAt time.Time                     `json:"generated_at"`
	}

	cached struct {
		summary Summary
		at      time.Time
	}

	// Composer assembles dashboard summaries from the school and audit
	// services. Quota aggregates are cached per tenant and invalidated on
	// every roster mutation; the audit tail is always fetched fresh since
	// it is cheap and caller-dependent.
	Composer struct {
		schools  *school.Service
		recorder *audit.Recorder

		mu    sync.RWMutex
		cache map[string]cached
	}
)

func NewComposer(schools *school.Service, recorder *audit.Recorder) *Composer {
	return &Composer{
		schools:  schools,
		recorder: recorder,
		cache:    make(map[string]cached),
	}
}

// Invalidate drops the cached aggregates for schoolID. Wired as the roster
// service's after-mutation hook.
func (c *Composer) Invalidate(schoolID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, schoolID)
}

// Compose returns the dashboard summary for schoolID, shaped by what perms
// allows the caller to see. Callers with no grants at all are rejected, as
// are callers scoped to a different tenant.
func (c *Composer) Compose(ctx context.Context, perms auth.Permissions, schoolID string) (Summary, error) {
	if perms.IsEmpty() {
		return Summary{}, auth.ErrPermissionDenied
	}
	if !perms.AllowsSchool(schoolID) {
		return Summary{}, auth.ErrPermissionDenied
	}

	summary, err := c.summarize(ctx, schoolID)
	if err != nil {
		return Summary{}, err
	}

	if !perms.ViewQuota {
		summary.Quotas = nil
		summary.Features = nil
	}
	if perms.ViewAuditLog {
		activity, err := c.recorder.Query(ctx, audit.QueryFilter{SchoolID: schoolID, Limit: recentActivityLimit})
		if err != nil {
			return Summary{}, errors.Wrap(err, "querying recent activity")
		}
		summary.Activity = activity
	}
	return summary, nil
}

func (c *Composer) summarize(ctx context.Context, schoolID string) (Summary, error) {
	c.mu.RLock()
	entry, ok := c.cache[schoolID]
	c.mu.RUnlock()
	if ok && nowFunc().Sub(entry.at) < cacheTTL {
		return entry.summary, nil
	}

	sch, err := c.schools.GetByID(ctx, schoolID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{
		SchoolID:    sch.ID,
		SchoolName:  sch.Name,
		Suspended:   sch.IsSuspended,
		Quotas:      make(map[school.ResourceKind]Usage, len(school.AllResourceKinds)),
		GeneratedAt: nowFunc().UTC(),
	}
	for _, kind := range school.AllResourceKinds {
		decision, err := c.schools.CheckLimit(ctx, schoolID, kind)
		if err != nil && err != school.ErrSchoolSuspended {
			return Summary{}, errors.Wrapf(err, "checking %s quota", kind)
		}
		summary.Quotas[kind] = Usage{Current: decision.Current, Max: decision.Max}
		summary.Plan = decision.Plan
		summary.Features = decision.Features
	}

	c.mu.Lock()
	c.cache[schoolID] = cached{summary: summary, at: nowFunc()}
	c.mu.Unlock()
	return summary, nil
}

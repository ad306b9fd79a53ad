package school

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// QuotaDecision answers "may this tenant create one more unit of a resource
// kind?" and carries the usage numbers screens display. Features is copied
// verbatim from the plan so callers can gate optional functionality without
// a second lookup.
type QuotaDecision struct {
	Allowed  bool       `json:"allowed"`
	Current  int        `json:"current"`
	Max      int        `json:"max"`
	Plan     string     `json:"plan"`
	Features FeatureSet `json:"features"`
}

// QuotaError is the explicit, user-facing decision surfaced when a creation
// attempt is over quota; it carries current/max so the caller can render an
// actionable message.
type QuotaError struct {
	Kind     ResourceKind
	Decision QuotaDecision
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%s limit reached (%d/%d): contact your administrator to upgrade the %q plan",
		e.Kind, e.Decision.Current, e.Decision.Max, e.Decision.Plan)
}

// IsQuotaExceeded reports whether err (or its cause) is a QuotaError.
func IsQuotaExceeded(err error) bool {
	_, ok := errors.Cause(err).(*QuotaError)
	return ok
}

// CheckLimit resolves schoolID's plan and compares the live count of kind
// against the plan ceiling. It is a pure read with no side effects: safe to
// call before every creation attempt, including repeatedly in quick
// succession.
//
// Fail-closed behavior: an unknown school returns ErrNotFound, a missing or
// inactive plan returns ErrPlanConfiguration, and a suspended or deactivated
// school returns ErrSchoolSuspended; in every such case the returned
// decision has Allowed=false so UI flows degrade to "blocked" rather than
// crashing.
//
// Concurrency: usage is computed by counting existing rows, not by a
// reserved counter, so two concurrent creations that both pass the check
// before either commits can together exceed the ceiling by one. This is a
// soft limit with eventual correction: the next check reports
// Allowed=false and blocks further creation. A hard ceiling would require
// an atomic reserve-then-commit against the resource table (conditional
// insert guarded by a tenant-scoped row or advisory lock).
func (svc *Service) CheckLimit(ctx context.Context, schoolID string, kind ResourceKind) (QuotaDecision, error) {
	if !kind.IsValid() {
		return QuotaDecision{}, errors.Wrapf(ErrInvalidResourceKind, "%q", kind)
	}

	sch, err := svc.repo.GetSchool(ctx, schoolID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return QuotaDecision{}, ErrNotFound
		}
		return QuotaDecision{}, errors.Wrap(err, "getting school")
	}

	plan, err := svc.repo.GetPlan(ctx, sch.PlanID)
	if err != nil {
		if errors.Cause(err) == ErrPlanNotFound {
			return QuotaDecision{}, ErrPlanConfiguration
		}
		return QuotaDecision{}, errors.Wrap(err, "getting plan")
	}
	if !plan.IsActive || plan.Features == nil {
		return QuotaDecision{}, ErrPlanConfiguration
	}

	current, err := svc.repo.CountResource(ctx, schoolID, kind)
	if err != nil {
		return QuotaDecision{}, errors.Wrap(err, "counting resource usage")
	}

	max := plan.Ceiling(kind)
	decision := QuotaDecision{
		Allowed:  max == Unlimited || current < max,
		Current:  current,
		Max:      max,
		Plan:     plan.Name,
		Features: plan.Features.Copy(),
	}

	// suspension dominates quota: usage numbers stay available for display
	// but no mutation may proceed
	if !sch.AcceptsMutations() {
		decision.Allowed = false
		return decision, ErrSchoolSuspended
	}
	return decision, nil
}

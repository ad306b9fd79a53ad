package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/audit"
)

type auditApi struct {
	recorder *audit.Recorder
}

func registerAuditAPI(g *echo.Group, jwt echo.MiddlewareFunc, recorder *audit.Recorder) {
	api := auditApi{recorder: recorder}

	ag := g.Group("/audit", jwt)
	ag.GET("", api.query)
}

// query returns a reverse-chronological page of audit entries. Super admins
// may query across tenants; everyone else is clamped to their own school and
// needs the audit-log read grant.
func (api *auditApi) query(ctx echo.Context) error {
	filter := new(audit.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []audit.Entry{})
	}

	perms := getContextPermissions(ctx)
	if !perms.ViewCrossTenantAudit {
		if !perms.ViewAuditLog || perms.SchoolID == "" {
			return errHttpForbidden
		}
		filter.SchoolID = perms.SchoolID
	}

	entries, err := api.recorder.Query(ctx.Request().Context(), *filter)
	if err != nil {
		return errors.Wrap(err, "querying audit entries")
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	return ctx.JSON(http.StatusOK, entries)
}

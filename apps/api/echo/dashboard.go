package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/dashboard"
)

type dashboardApi struct {
	composer *dashboard.Composer
}

func registerDashboardAPI(g *echo.Group, jwt echo.MiddlewareFunc, composer *dashboard.Composer) {
	api := dashboardApi{composer: composer}

	dg := g.Group("/schools/:id/dashboard", jwt)
	dg.GET("", api.retrieve)
}

// retrieve returns the tenant dashboard shaped by the caller's permission
// surface; the composer itself rejects callers without any grant.
func (api *dashboardApi) retrieve(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}

	summary, err := api.composer.Compose(ctx.Request().Context(), claims.Permissions(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "composing dashboard")
	}
	return ctx.JSON(http.StatusOK, summary)
}

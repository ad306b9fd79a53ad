package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/auth"
	"github.com/shuleapp/shule/core/school"
)

type schoolApi struct {
	svc      *school.Service
	validate *validator.Validate
}

func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *school.Service, validate *validator.Validate) {
	api := schoolApi{svc: svc, validate: validate}

	// tenant management is a super admin surface
	sg := g.Group("/schools", jwt)
	ag := sg.Group("", superAdminMiddleware())
	ag.POST("", api.create)
	ag.GET("", api.query)
	ag.PUT("/:id", api.update)
	ag.POST("/:id/suspend", api.suspend)
	ag.POST("/:id/reinstate", api.reinstate)

	// school admins may read their own tenant
	sg.GET("/:id", api.retrieve, schoolPermissionMiddleware(func(p auth.Permissions) bool {
		return p.ViewBilling || p.Global
	}))
	sg.GET("/:id/quota/:kind", api.checkQuota, schoolPermissionMiddleware(func(p auth.Permissions) bool {
		return p.ViewQuota
	}))

	// plan catalog
	pg := g.Group("/plans", jwt)
	pa := pg.Group("", superAdminMiddleware())
	pa.POST("", api.createPlan)
	pa.GET("/:id", api.retrievePlan)
	pa.PUT("/:id", api.updatePlan)
	// the list must be registered after the sub-group: creating a group with
	// middleware adds catch-all routes that would otherwise shadow it.
	// Plan pricing is billing data; only admins shopping for an upgrade and
	// super admins may read the catalog.
	pg.GET("", api.queryPlans, permissionMiddleware(func(p auth.Permissions) bool {
		return p.ViewBilling || p.Global
	}))
}

// Handlers

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchool")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sch, err := api.svc.Create(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) query(ctx echo.Context) error {
	filter := new(school.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []school.School{})
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	schools, err := api.svc.Filter(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	if schools == nil {
		schools = []school.School{}
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) retrieve(ctx echo.Context) error {
	sch, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) update(ctx echo.Context) error {
	orig, err := api.svc.GetByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding school by ID")
	}

	var data school.UpdateSchool
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchool")
	}
	if err := data.Validate(orig, api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sch, err := api.svc.Update(ctx.Request().Context(), claims.Subject, orig.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) suspend(ctx echo.Context) error {
	var data SuspendRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SuspendRequest")
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sch, err := api.svc.Suspend(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data.Reason)
	if err != nil {
		return errors.Wrap(err, "suspending school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) reinstate(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	sch, err := api.svc.Reinstate(ctx.Request().Context(), claims.Subject, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "reinstating school")
	}
	return ctx.JSON(http.StatusOK, sch)
}

// checkQuota answers "may one more :kind be created?" without creating one.
// A suspended school still gets its usage numbers, flagged as blocked.
func (api *schoolApi) checkQuota(ctx echo.Context) error {
	kind := school.ResourceKind(ctx.Param("kind"))
	if !kind.IsValid() {
		return errHttpNotFound
	}

	decision, err := api.svc.CheckLimit(ctx.Request().Context(), ctx.Param("id"), kind)
	if err != nil {
		if errors.Cause(err) == school.ErrSchoolSuspended {
			return ctx.JSON(http.StatusOK, QuotaResponse{
				QuotaDecision: decision,
				Suspended:     true,
			})
		}
		return errors.Wrap(err, "checking quota")
	}
	return ctx.JSON(http.StatusOK, QuotaResponse{QuotaDecision: decision})
}

// Plan handlers

func (api *schoolApi) createPlan(ctx echo.Context) error {
	var data school.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	plan, err := api.svc.CreatePlan(ctx.Request().Context(), claims.Subject, data)
	if err != nil {
		return errors.Wrap(err, "creating plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *schoolApi) queryPlans(ctx echo.Context) error {
	plans, err := api.svc.QueryPlans(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying plans")
	}
	if plans == nil {
		plans = []school.SubscriptionPlan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *schoolApi) retrievePlan(ctx echo.Context) error {
	plan, err := api.svc.GetPlan(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding plan by ID")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *schoolApi) updatePlan(ctx echo.Context) error {
	var data school.NewPlan
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlan")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	plan, err := api.svc.UpdatePlan(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating plan")
	}
	return ctx.JSON(http.StatusOK, plan)
}

type (
	SuspendRequest struct {
		Reason string `json:"reason"`
	}

	QuotaResponse struct {
		school.QuotaDecision
		Suspended bool `json:"suspended,omitempty"`
	}
)

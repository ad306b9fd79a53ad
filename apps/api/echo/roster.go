package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/shuleapp/shule/core/auth"
	"github.com/shuleapp/shule/core/roster"
)

type rosterApi struct {
	svc      *roster.Service
	validate *validator.Validate
}

func registerRosterAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *roster.Service, validate *validator.Validate) {
	api := rosterApi{svc: svc, validate: validate}

	manageStudents := schoolPermissionMiddleware(func(p auth.Permissions) bool { return p.ManageStudents })
	manageTeachers := schoolPermissionMiddleware(func(p auth.Permissions) bool { return p.ManageTeachers })
	viewRoster := schoolPermissionMiddleware(func(p auth.Permissions) bool { return p.ViewStudents })

	sg := g.Group("/schools/:id/students", jwt)
	sg.POST("", api.createStudent, manageStudents)
	sg.GET("", api.queryStudents, viewRoster)
	sg.GET("/:studentID", api.retrieveStudent, viewRoster)
	sg.DELETE("/:studentID", api.deactivateStudent, manageStudents)

	tg := g.Group("/schools/:id/teachers", jwt)
	tg.POST("", api.createTeacher, manageTeachers)
	tg.GET("", api.queryTeachers, viewRoster)
	tg.GET("/:teacherID", api.retrieveTeacher, viewRoster)
	tg.DELETE("/:teacherID", api.deactivateTeacher, manageTeachers)
}

// Student handlers

func (api *rosterApi) createStudent(ctx echo.Context) error {
	var data roster.NewStudent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewStudent")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	s, err := api.svc.AddStudent(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding student")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *rosterApi) queryStudents(ctx echo.Context) error {
	filter := new(roster.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []roster.Student{})
	}

	students, err := api.svc.FilterStudents(ctx.Request().Context(), ctx.Param("id"), filter)
	if err != nil {
		return errors.Wrap(err, "querying students")
	}
	if students == nil {
		students = []roster.Student{}
	}
	return ctx.JSON(http.StatusOK, students)
}

func (api *rosterApi) retrieveStudent(ctx echo.Context) error {
	s, err := api.svc.GetStudent(ctx.Request().Context(), ctx.Param("id"), ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "finding student by ID")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *rosterApi) deactivateStudent(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	s, err := api.svc.DeactivateStudent(ctx.Request().Context(), claims.Subject, ctx.Param("id"), ctx.Param("studentID"))
	if err != nil {
		return errors.Wrap(err, "deactivating student")
	}
	return ctx.JSON(http.StatusOK, s)
}

// Teacher handlers

func (api *rosterApi) createTeacher(ctx echo.Context) error {
	var data roster.NewTeacher
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeacher")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	t, err := api.svc.AddTeacher(ctx.Request().Context(), claims.Subject, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "adding teacher")
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *rosterApi) queryTeachers(ctx echo.Context) error {
	filter := new(roster.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, []roster.Teacher{})
	}

	teachers, err := api.svc.FilterTeachers(ctx.Request().Context(), ctx.Param("id"), filter)
	if err != nil {
		return errors.Wrap(err, "querying teachers")
	}
	if teachers == nil {
		teachers = []roster.Teacher{}
	}
	return ctx.JSON(http.StatusOK, teachers)
}

func (api *rosterApi) retrieveTeacher(ctx echo.Context) error {
	t, err := api.svc.GetTeacher(ctx.Request().Context(), ctx.Param("id"), ctx.Param("teacherID"))
	if err != nil {
		return errors.Wrap(err, "finding teacher by ID")
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *rosterApi) deactivateTeacher(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	t, err := api.svc.DeactivateTeacher(ctx.Request().Context(), claims.Subject, ctx.Param("id"), ctx.Param("teacherID"))
	if err != nil {
		return errors.Wrap(err, "deactivating teacher")
	}
	return ctx.JSON(http.StatusOK, t)
}

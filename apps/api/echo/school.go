package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core/dashboard"
	"github.com/educarcms/educar/core/school"
)

type schoolApi struct {
	svc          *school.Service
	dashboardSvc *dashboard.Service
	validate     *validator.Validate
}

// registerSchoolAPI registers the platform level school endpoints, reserved to superusers.
func registerSchoolAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := schoolApi{svc: deps.SchoolSvc, validate: deps.Validate}

	sg := g.Group("/schools", jwt, superuserMiddleware(deps.UserSvc))
	sg.GET("", api.query)
	sg.POST("", api.create)
}

// registerDashboardAPI registers the dashboard and the school settings.
func registerDashboardAPI(g *echo.Group, deps ServerDeps) {
	api := schoolApi{svc: deps.SchoolSvc, dashboardSvc: deps.DashboardSvc, validate: deps.Validate}

	g.GET("/dashboard", api.dashboard)
	g.GET("/settings", api.settings, adminOnly)
	g.PUT("/settings", api.updateSettings, adminOnly)
	g.PUT("/appearance", api.updateAppearance, adminOnly)
}

func (api *schoolApi) query(ctx echo.Context) error {
	schools, err := api.svc.Query(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying schools")
	}
	return ctx.JSON(http.StatusOK, schools)
}

func (api *schoolApi) create(ctx echo.Context) error {
	var data school.NewSchool
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	sch, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating school")
	}
	return ctx.JSON(http.StatusCreated, sch)
}

func (api *schoolApi) dashboard(ctx echo.Context) error {
	stats, err := api.dashboardSvc.SchoolStats(ctx.Request().Context(), getAccess(ctx).School)
	if err != nil {
		return errors.Wrap(err, "computing school stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *schoolApi) settings(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, getAccess(ctx).School)
}

func (api *schoolApi) updateSettings(ctx echo.Context) error {
	var data school.UpdateSettings
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	sch, err := api.svc.UpdateSettings(ctx.Request().Context(), getAccess(ctx).School, data)
	if err != nil {
		return errors.Wrap(err, "updating school settings")
	}
	return ctx.JSON(http.StatusOK, sch)
}

func (api *schoolApi) updateAppearance(ctx echo.Context) error {
	var data school.UpdateAppearance
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	sch, err := api.svc.UpdateAppearance(ctx.Request().Context(), getAccess(ctx).School, data)
	if err != nil {
		return errors.Wrap(err, "updating school appearance")
	}
	return ctx.JSON(http.StatusOK, sch)
}

package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/school"
)

type memberApi struct {
	svc      *school.Service
	validate *validator.Validate
}

// registerMemberAPI registers the management of the school users, reserved to admins.
func registerMemberAPI(g *echo.Group, deps ServerDeps) {
	api := memberApi{svc: deps.SchoolSvc, validate: deps.Validate}

	ug := g.Group("/users", adminOnly)
	ug.GET("", api.query)
	ug.POST("", api.create)
	ug.GET("/roles", api.queryRoles)
	ug.PUT("/:id", api.update)
	ug.DELETE("/:id", api.destroy)
}

type MembersResponse struct {
	Results []school.MemberDetail `json:"results"`
	Page    core.PageInfo         `json:"page"`
	Filter  string                `json:"filter"`
	Counts  map[string]int        `json:"counts"`
}

func (api *memberApi) query(ctx echo.Context) error {
	var filter school.MemberFilter
	if err := ctx.Bind(&filter); err != nil {
		filter = school.MemberFilter{}
	}
	filter.Clean()

	rctx := ctx.Request().Context()
	schoolID := getAccess(ctx).School.ID
	members, page, err := api.svc.QueryMembers(rctx, schoolID, filter, bindPage(ctx))
	if err != nil {
		return err
	}
	if members == nil {
		members = []school.MemberDetail{}
	}

	counts := make(map[string]int, 4)
	for _, kind := range []string{school.FilterAll, school.FilterStudents, school.FilterTeachers, school.FilterAdmins} {
		if counts[kind], err = api.svc.CountMembers(rctx, schoolID, school.MemberFilter{Kind: kind}); err != nil {
			return errors.Wrap(err, "counting members")
		}
	}
	return ctx.JSON(http.StatusOK, MembersResponse{Results: members, Page: page, Filter: filter.Kind, Counts: counts})
}

func (api *memberApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, school.Roles)
}

func (api *memberApi) create(ctx echo.Context) error {
	var data school.NewSchoolUser
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	md, err := api.svc.CreateUser(ctx.Request().Context(), getAccess(ctx).School, data)
	if err != nil {
		return errors.Wrap(err, "creating school user")
	}
	return ctx.JSON(http.StatusCreated, md)
}

func (api *memberApi) update(ctx echo.Context) error {
	m, err := api.getMember(ctx)
	if err != nil {
		return err
	}
	var data school.UpdateSchoolUser
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	md, err := api.svc.UpdateUser(ctx.Request().Context(), m, data)
	if err != nil {
		return errors.Wrap(err, "updating school user")
	}
	return ctx.JSON(http.StatusOK, md)
}

func (api *memberApi) destroy(ctx echo.Context) error {
	m, err := api.getMember(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteMember(ctx.Request().Context(), getAccess(ctx).Member, m); err != nil {
		return errors.Wrap(err, "deleting school user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// getMember finds the :id membership within the current school.
func (api *memberApi) getMember(ctx echo.Context) (school.Member, error) {
	m, err := api.svc.GetMemberByID(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return school.Member{}, errors.Wrap(err, "finding member")
	}
	if m.SchoolID != getAccess(ctx).School.ID {
		return school.Member{}, errHttpNotFound
	}
	return m, nil
}

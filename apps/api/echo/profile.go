package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core/learning"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
)

type profileApi struct {
	svc         *profile.Service
	usrSvc      *user.Service
	learningSvc *learning.Service
	validate    *validator.Validate
}

func registerProfileAPI(g *echo.Group, deps ServerDeps) {
	api := profileApi{
		svc:         deps.ProfileSvc,
		usrSvc:      deps.UserSvc,
		learningSvc: deps.LearningSvc,
		validate:    deps.Validate,
	}

	pg := g.Group("/profile")
	pg.GET("", api.retrieve)
	pg.PUT("", api.update)
	pg.PUT("/preferences", api.updatePreferences)
	pg.PUT("/notifications", api.updateNotifications)
	pg.POST("/password", api.changePassword)
}

// ProfileResponse is the profile page: the account, its settings and the learning summary
// of the member in the current school.
type ProfileResponse struct {
	User             user.User                 `json:"user"`
	Member           school.Member             `json:"member"`
	Profile          profile.Profile           `json:"profile"`
	EnrolledCourses  []learning.EnrolledCourse `json:"enrolled_courses"`
	CompletedCourses int                       `json:"completed_courses"`
	Certificates     []learning.Certificate    `json:"certificates"`
}

func (api *profileApi) retrieve(ctx echo.Context) error {
	ac := getAccess(ctx)
	rctx := ctx.Request().Context()

	p, err := api.svc.GetOrCreate(rctx, ac.User.ID)
	if err != nil {
		return errors.Wrap(err, "getting profile")
	}
	resp := ProfileResponse{
		User:            ac.User,
		Member:          ac.Member,
		Profile:         p,
		EnrolledCourses: []learning.EnrolledCourse{},
		Certificates:    []learning.Certificate{},
	}
	if ac.IsStudent() {
		if resp.EnrolledCourses, err = api.learningSvc.MyCourses(rctx, ac.School.ID, ac.Member.ID); err != nil {
			return errors.Wrap(err, "querying enrolled courses")
		}
		for _, ec := range resp.EnrolledCourses {
			if ec.Enrollment.Status == learning.EnrollmentCompleted {
				resp.CompletedCourses++
			}
		}
		if resp.Certificates, err = api.learningSvc.Certificates(rctx, ac.Member.ID); err != nil {
			return errors.Wrap(err, "querying certificates")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *profileApi) update(ctx echo.Context) error {
	var data profile.UpdateProfile
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	p, err := api.svc.Update(ctx.Request().Context(), getAccess(ctx).User.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating profile")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *profileApi) updatePreferences(ctx echo.Context) error {
	var data profile.UpdatePreferences
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	p, err := api.svc.UpdatePreferences(ctx.Request().Context(), getAccess(ctx).User.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating preferences")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *profileApi) updateNotifications(ctx echo.Context) error {
	var data profile.UpdateNotifications
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateNotifications")
	}
	p, err := api.svc.UpdateNotifications(ctx.Request().Context(), getAccess(ctx).User.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating notifications")
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *profileApi) changePassword(ctx echo.Context) error {
	usr := getAccess(ctx).User
	var data user.ChangePassword
	if err := bindInput(ctx, &data, func() error { return data.Validate(usr, api.validate) }); err != nil {
		return err
	}
	if _, err := api.usrSvc.ChangePassword(ctx.Request().Context(), usr, data); err != nil {
		return errors.Wrap(err, "changing password")
	}
	return ctx.JSON(http.StatusOK, SuccessResponse{Success: "Your password was changed."})
}

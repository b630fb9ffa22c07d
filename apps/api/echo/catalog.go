package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/learning"
	filesvc "github.com/educarcms/educar/services/files"
)

// catalogApi serves categories, courses and their content.
type catalogApi struct {
	svc         *catalog.Service
	learningSvc *learning.Service
	files       *filesvc.LocalStorage
	validate    *validator.Validate
}

func newCatalogApi(deps ServerDeps) *catalogApi {
	return &catalogApi{
		svc:         deps.CatalogSvc,
		learningSvc: deps.LearningSvc,
		files:       deps.Files,
		validate:    deps.Validate,
	}
}

func registerCatalogAPI(g *echo.Group, deps ServerDeps) {
	api := newCatalogApi(deps)

	cg := g.Group("/category")
	cg.GET("", api.queryCategories, staffOnly)
	cg.POST("", api.createCategory, staffOnly)
	cg.PUT("/:id", api.updateCategory, adminOnly)
	cg.DELETE("/:id", api.deleteCategory, adminOnly)

	crs := g.Group("/courses")
	crs.GET("", api.queryCourses)
	crs.GET("/my", api.myCourses)
	crs.POST("", api.createCourse, staffOnly)
	crs.GET("/:id", api.retrieveCourse)
	crs.PUT("/:id", api.updateCourse, staffOnly)
	crs.DELETE("/:id", api.deleteCourse, staffOnly)
	crs.POST("/:id/duplicate", api.duplicateCourse, staffOnly)
	crs.GET("/:id/analytics", api.analytics, staffOnly)
	crs.POST("/:id/enroll", api.enroll)
	crs.POST("/:id/reviews", api.review)
}

// Categories

func (api *catalogApi) queryCategories(ctx echo.Context) error {
	cats, err := api.svc.QueryCategories(ctx.Request().Context(), getAccess(ctx).School.ID)
	if err != nil {
		return errors.Wrap(err, "querying categories")
	}
	if cats == nil {
		cats = []catalog.Category{}
	}
	return ctx.JSON(http.StatusOK, cats)
}

func (api *catalogApi) createCategory(ctx echo.Context) error {
	var data catalog.NewCategory
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	cat, err := api.svc.CreateCategory(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating category")
	}
	return ctx.JSON(http.StatusCreated, cat)
}

func (api *catalogApi) updateCategory(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	cat, err := api.svc.GetCategory(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding category")
	}
	var data catalog.NewCategory
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	if cat, err = api.svc.UpdateCategory(rctx, cat, data); err != nil {
		return errors.Wrap(err, "updating category")
	}
	return ctx.JSON(http.StatusOK, cat)
}

func (api *catalogApi) deleteCategory(ctx echo.Context) error {
	rctx := ctx.Request().Context()
	cat, err := api.svc.GetCategory(rctx, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding category")
	}
	err = api.svc.DeleteCategory(rctx, getAccess(ctx).School.ID, cat)
	var inUse catalog.ErrCategoryInUse
	if errors.As(err, &inUse) {
		return core.NewValidationError(inUse)
	}
	if err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Courses

// getCourse finds the :id course of the current school.
func (api *catalogApi) getCourse(ctx echo.Context) (catalog.Course, error) {
	c, err := api.svc.GetCourse(ctx.Request().Context(), getAccess(ctx).School.ID, ctx.Param("id"))
	if err != nil {
		return catalog.Course{}, errors.Wrap(err, "finding course")
	}
	return c, nil
}

// getEditableCourse finds the :id course and checks the requester may change it.
func (api *catalogApi) getEditableCourse(ctx echo.Context) (catalog.Course, error) {
	c, err := api.getCourse(ctx)
	if err != nil {
		return c, err
	}
	if d := catalog.CanEdit(getAccess(ctx), c); !d.Allowed {
		return c, deny(d, coursePath(ctx, c.ID))
	}
	return c, nil
}

func coursePath(ctx echo.Context, courseID string) string {
	return schoolPath(ctx.Param("slug"), "courses", courseID)
}

func (api *catalogApi) queryCourses(ctx echo.Context) error {
	var filter catalog.CourseFilter
	if err := ctx.Bind(&filter); err != nil {
		filter = catalog.CourseFilter{}
	}
	filter.Clean()
	ac := getAccess(ctx)
	filter.SchoolID = ac.School.ID
	filter.IDs = nil
	if !ac.IsStaff() {
		filter.Status = catalog.CourseActive
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	courses, err := api.svc.QueryCourses(ctx.Request().Context(), filter, ordering.First(core.DBOrdering{}))
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if courses == nil {
		courses = []catalog.Course{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *catalogApi) myCourses(ctx echo.Context) error {
	ac := getAccess(ctx)
	courses, err := api.learningSvc.MyCourses(ctx.Request().Context(), ac.School.ID, ac.Member.ID)
	if err != nil {
		return errors.Wrap(err, "querying enrolled courses")
	}
	if courses == nil {
		courses = []learning.EnrolledCourse{}
	}
	return ctx.JSON(http.StatusOK, courses)
}

func (api *catalogApi) createCourse(ctx echo.Context) error {
	var data catalog.CourseInput
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	c, err := api.svc.CreateCourse(ctx.Request().Context(), getAccess(ctx), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, c)
}

// CourseResponse is the course page.
type CourseResponse struct {
	Course     catalog.Course    `json:"course"`
	Subjects   []catalog.Subject `json:"subjects"`
	Duration   catalog.Duration  `json:"duration"`
	Reviews    []catalog.Review  `json:"reviews"`
	IsEnrolled bool              `json:"is_enrolled"`
	Progress   float64           `json:"progress"`
	CanEdit    bool              `json:"can_edit"`
}

func (api *catalogApi) retrieveCourse(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	ac := getAccess(ctx)
	rctx := ctx.Request().Context()

	resp := CourseResponse{Course: c, CanEdit: catalog.CanEdit(ac, c).Allowed}
	if !ac.IsStaff() {
		if resp.IsEnrolled, err = api.learningSvc.IsEnrolled(rctx, c.ID, ac.Member.ID); err != nil {
			return err
		}
		if !c.IsPublished() && !resp.IsEnrolled {
			return deny(access.Deny(access.DraftContent), schoolPath(ctx.Param("slug"), "courses"))
		}
	}

	if err = api.svc.IncrementViews(rctx, c); err != nil {
		return errors.Wrap(err, "incrementing views")
	}
	resp.Course.ViewsCount++

	subjects, err := api.svc.QuerySubjects(rctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	resp.Subjects = visibleSubjects(ac, subjects)
	if resp.Duration, err = api.svc.CourseDuration(rctx, c, !ac.IsStaff()); err != nil {
		return errors.Wrap(err, "computing duration")
	}
	if resp.Reviews, err = api.svc.QueryReviews(rctx, c.ID); err != nil {
		return errors.Wrap(err, "querying reviews")
	}
	if resp.Reviews == nil {
		resp.Reviews = []catalog.Review{}
	}
	if resp.IsEnrolled {
		if resp.Progress, err = api.learningSvc.CourseProgress(rctx, ac.Member.ID, c.ID); err != nil {
			return errors.Wrap(err, "computing progress")
		}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// visibleSubjects hides draft subjects from non staff members.
func visibleSubjects(ac access.Context, subjects []catalog.Subject) []catalog.Subject {
	visible := make([]catalog.Subject, 0, len(subjects))
	for _, s := range subjects {
		if s.IsPublished() || ac.IsStaff() {
			visible = append(visible, s)
		}
	}
	return visible
}

func (api *catalogApi) updateCourse(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	var data catalog.CourseInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	if c, err = api.svc.UpdateCourse(ctx.Request().Context(), c, data); err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *catalogApi) deleteCourse(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteCourse(ctx.Request().Context(), c); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) duplicateCourse(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	dup, err := api.svc.DuplicateCourse(ctx.Request().Context(), getAccess(ctx), c)
	if err != nil {
		return errors.Wrap(err, "duplicating course")
	}
	return ctx.JSON(http.StatusCreated, dup)
}

type AnalyticsResponse struct {
	Course    catalog.Course             `json:"course"`
	Analytics learning.CourseAnalytics   `json:"analytics"`
	Students  []learning.StudentProgress `json:"students"`
}

func (api *catalogApi) analytics(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	resp := AnalyticsResponse{Course: c}
	if resp.Analytics, err = api.learningSvc.CourseAnalytics(rctx, c); err != nil {
		return errors.Wrap(err, "computing course analytics")
	}
	if resp.Students, err = api.learningSvc.StudentsProgress(rctx, c); err != nil {
		return errors.Wrap(err, "computing students progress")
	}
	if resp.Students == nil {
		resp.Students = []learning.StudentProgress{}
	}
	return ctx.JSON(http.StatusOK, resp)
}

// Enrollment & reviews

func (api *catalogApi) enroll(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	ac := getAccess(ctx)
	if d := access.RequireStudent(ac); !d.Allowed {
		return deny(d, coursePath(ctx, c.ID))
	}
	rctx := ctx.Request().Context()
	d, err := api.learningSvc.CanEnroll(rctx, ac, c)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !d.Allowed {
		return deny(d, coursePath(ctx, c.ID))
	}

	e, created, err := api.learningSvc.Enroll(rctx, ac, c)
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	return ctx.JSON(code, e)
}

func (api *catalogApi) review(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	ac := getAccess(ctx)
	if d := access.RequireStudent(ac); !d.Allowed {
		return deny(d, coursePath(ctx, c.ID))
	}
	rctx := ctx.Request().Context()
	d, err := api.learningSvc.RequireEnrollment(rctx, ac, c.ID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !d.Allowed {
		return deny(d, coursePath(ctx, c.ID))
	}

	var data catalog.ReviewInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	r, err := api.svc.SaveReview(rctx, c, ac.Member.ID, data)
	if err != nil {
		return errors.Wrap(err, "saving review")
	}
	return ctx.JSON(http.StatusOK, r)
}

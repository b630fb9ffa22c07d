package echoapi

import (
	"net/http"
	"path"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/learning"
)

// lessonUploadField is the multipart field of a lesson file.
const lessonUploadField = "file"

// registerLessonAPI registers the subjects and lessons of a course.
func registerLessonAPI(g *echo.Group, deps ServerDeps) {
	api := newCatalogApi(deps)

	sg := g.Group("/courses/:id/subject")
	sg.GET("", api.querySubjects)
	sg.POST("", api.createSubject, staffOnly)
	sg.PUT("/:subject_id", api.updateSubject, staffOnly)
	sg.DELETE("/:subject_id", api.deleteSubject, staffOnly)
	sg.POST("/:subject_id/lessons", api.createLesson, staffOnly)
	sg.PUT("/:subject_id/lessons/:lesson_id", api.updateLesson, staffOnly)
	sg.DELETE("/:subject_id/lessons/:lesson_id", api.unlinkLesson, staffOnly)

	lg := g.Group("/courses/:id/lessons")
	lg.GET("/:lesson_id", api.viewLesson)
	lg.DELETE("/:lesson_id", api.deleteLesson, staffOnly)
	lg.POST("/:lesson_id/videos", api.addVideo, staffOnly)
	lg.POST("/:lesson_id/quiz", api.answerQuiz)
	lg.POST("/:lesson_id/progress", api.setProgress)
}

// Subjects

func (api *catalogApi) getSubject(ctx echo.Context, c catalog.Course) (catalog.Subject, error) {
	s, err := api.svc.GetSubject(ctx.Request().Context(), c.ID, ctx.Param("subject_id"))
	if err != nil {
		return catalog.Subject{}, errors.Wrap(err, "finding subject")
	}
	return s, nil
}

func (api *catalogApi) querySubjects(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	subjects, err := api.svc.QuerySubjects(ctx.Request().Context(), c.ID)
	if err != nil {
		return errors.Wrap(err, "querying subjects")
	}
	return ctx.JSON(http.StatusOK, visibleSubjects(getAccess(ctx), subjects))
}

func (api *catalogApi) createSubject(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	var data catalog.SubjectInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	s, err := api.svc.CreateSubject(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "creating subject")
	}
	return ctx.JSON(http.StatusCreated, s)
}

func (api *catalogApi) updateSubject(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	s, err := api.getSubject(ctx, c)
	if err != nil {
		return err
	}
	var data catalog.SubjectInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	if s, err = api.svc.UpdateSubject(ctx.Request().Context(), s, data); err != nil {
		return errors.Wrap(err, "updating subject")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *catalogApi) deleteSubject(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	s, err := api.getSubject(ctx, c)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSubject(ctx.Request().Context(), c, s); err != nil {
		return errors.Wrap(err, "deleting subject")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Lessons

// getLesson finds the :lesson_id lesson of the school, provided a subject of c links it.
func (api *catalogApi) getLesson(ctx echo.Context, c catalog.Course) (catalog.Lesson, error) {
	rctx := ctx.Request().Context()
	l, err := api.svc.GetLesson(rctx, c.SchoolID, ctx.Param("lesson_id"))
	if err != nil {
		return catalog.Lesson{}, errors.Wrap(err, "finding lesson")
	}
	if _, err = api.svc.LessonSubject(rctx, c, l); err != nil {
		return catalog.Lesson{}, errors.Wrap(err, "finding lesson subject")
	}
	return l, nil
}

// bindLesson binds a lesson form, storing its uploaded file under the course directory.
func (api *catalogApi) bindLesson(ctx echo.Context, c catalog.Course) (catalog.LessonInput, error) {
	var data catalog.LessonInput
	if err := bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return data, err
	}
	rel, err := saveUpload(ctx, api.files, lessonUploadField, path.Join("lessons", c.ID))
	if err != nil {
		return data, err
	}
	data.FilePath = rel
	return data, nil
}

func (api *catalogApi) createLesson(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	s, err := api.getSubject(ctx, c)
	if err != nil {
		return err
	}
	data, err := api.bindLesson(ctx, c)
	if err != nil {
		return err
	}
	l, err := api.svc.CreateLesson(ctx.Request().Context(), getAccess(ctx), c, s, data)
	if err != nil {
		_ = api.files.Delete(data.FilePath)
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, l)
}

func (api *catalogApi) updateLesson(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	if _, err = api.getSubject(ctx, c); err != nil {
		return err
	}
	l, err := api.getLesson(ctx, c)
	if err != nil {
		return err
	}
	data, err := api.bindLesson(ctx, c)
	if err != nil {
		return err
	}

	prevFile := l.FilePath
	if l, err = api.svc.UpdateLesson(ctx.Request().Context(), c, l, data); err != nil {
		_ = api.files.Delete(data.FilePath)
		return errors.Wrap(err, "updating lesson")
	}
	if data.FilePath != "" && prevFile != "" {
		if err = api.files.Delete(prevFile); err != nil {
			ctx.Logger().Errorf("%+v", errors.Wrap(err, "deleting replaced lesson file"))
		}
	}
	return ctx.JSON(http.StatusOK, l)
}

func (api *catalogApi) unlinkLesson(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	s, err := api.getSubject(ctx, c)
	if err != nil {
		return err
	}
	l, err := api.getLesson(ctx, c)
	if err != nil {
		return err
	}
	if err = api.svc.UnlinkLesson(ctx.Request().Context(), c, s, l); err != nil {
		return errors.Wrap(err, "unlinking lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) deleteLesson(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	l, err := api.getLesson(ctx, c)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteLessonPermanently(ctx.Request().Context(), c, l); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	if err = api.files.Delete(l.FilePath); err != nil {
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "deleting lesson file"))
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *catalogApi) addVideo(ctx echo.Context) error {
	c, err := api.getEditableCourse(ctx)
	if err != nil {
		return err
	}
	l, err := api.getLesson(ctx, c)
	if err != nil {
		return err
	}
	var data catalog.VideoInput
	if err = bindInput(ctx, &data, func() error { return api.validate.Struct(data) }); err != nil {
		return err
	}
	v, err := api.svc.AddLessonVideo(ctx.Request().Context(), c, l, data)
	if err != nil {
		return errors.Wrap(err, "adding lesson video")
	}
	return ctx.JSON(http.StatusCreated, v)
}

func (api *catalogApi) viewLesson(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	l, err := api.svc.GetLesson(ctx.Request().Context(), c.SchoolID, ctx.Param("lesson_id"))
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	lv, d, err := api.learningSvc.ViewLesson(ctx.Request().Context(), getAccess(ctx), c, l)
	if err != nil {
		return errors.Wrap(err, "viewing lesson")
	}
	if !d.Allowed {
		return deny(d, coursePath(ctx, c.ID))
	}
	return ctx.JSON(http.StatusOK, lv)
}

type (
	QuizAnswerRequest struct {
		Answer string `json:"answer" form:"answer" validate:"required"`
	}

	QuizAnswerResponse struct {
		Correct       bool   `json:"correct"`
		CorrectAnswer string `json:"correct_answer"`
	}

	ProgressRequest struct {
		IsCompleted bool `json:"is_completed" form:"is_completed"`
	}
)

// getEnrolledLesson finds the :lesson_id lesson of the course, denying members not enrolled in it.
func (api *catalogApi) getEnrolledLesson(ctx echo.Context) (catalog.Course, catalog.Lesson, error) {
	c, err := api.getCourse(ctx)
	if err != nil {
		return c, catalog.Lesson{}, err
	}
	l, err := api.getLesson(ctx, c)
	if err != nil {
		return c, l, err
	}
	d, err := api.learningSvc.RequireEnrollment(ctx.Request().Context(), getAccess(ctx), c.ID)
	if err != nil {
		return c, l, errors.Wrap(err, "checking enrollment")
	}
	if !d.Allowed {
		return c, l, deny(d, coursePath(ctx, c.ID))
	}
	if !l.IsPublished() && !getAccess(ctx).IsStaff() {
		return c, l, deny(access.Deny(access.DraftContent), coursePath(ctx, c.ID))
	}
	return c, l, nil
}

func (api *catalogApi) answerQuiz(ctx echo.Context) error {
	_, l, err := api.getEnrolledLesson(ctx)
	if err != nil {
		return err
	}
	var data QuizAnswerRequest
	if err = bindInput(ctx, &data, func() error { return api.validate.Struct(data) }); err != nil {
		return err
	}
	correct, answer := learning.AnswerQuizLesson(l, data.Answer)
	return ctx.JSON(http.StatusOK, QuizAnswerResponse{Correct: correct, CorrectAnswer: answer})
}

func (api *catalogApi) setProgress(ctx echo.Context) error {
	ac := getAccess(ctx)
	if d := access.RequireStudent(ac); !d.Allowed {
		return deny(d, coursePath(ctx, ctx.Param("id")))
	}
	c, l, err := api.getEnrolledLesson(ctx)
	if err != nil {
		return err
	}
	var data ProgressRequest
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ProgressRequest")
	}
	res, err := api.learningSvc.SetLessonCompletion(ctx.Request().Context(), ac, c, l, data.IsCompleted)
	if err != nil {
		return errors.Wrap(err, "setting lesson completion")
	}
	return ctx.JSON(http.StatusOK, res)
}

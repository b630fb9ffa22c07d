package echoapi

import (
	"net/http"
	"path"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/assessment"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/learning"
	filesvc "github.com/educarcms/educar/services/files"
)

// form field prefixes of the answers of an attempt and of their grades
const (
	answerFieldPrefix = "question_"
	gradeFieldPrefix  = "grade_"
)

type assessmentApi struct {
	svc         *assessment.Service
	catalogSvc  *catalog.Service
	learningSvc *learning.Service
	files       *filesvc.LocalStorage
	validate    *validator.Validate
}

func registerAssessmentAPI(g *echo.Group, deps ServerDeps) {
	api := assessmentApi{
		svc:         deps.AssessmentSvc,
		catalogSvc:  deps.CatalogSvc,
		learningSvc: deps.LearningSvc,
		files:       deps.Files,
		validate:    deps.Validate,
	}

	g.GET("/course/:id/assessments", api.query)
	g.POST("/course/:id/assessments", api.create, staffOnly)

	ag := g.Group("/assessments/:id")
	ag.GET("", api.retrieve)
	ag.PUT("", api.update, staffOnly)
	ag.DELETE("", api.destroy, staffOnly)

	qg := ag.Group("/questions", staffOnly)
	qg.GET("", api.queryQuestions)
	qg.POST("", api.createQuestion)
	qg.PUT("/:question_id", api.updateQuestion)
	qg.DELETE("/:question_id", api.deleteQuestion)
	qg.POST("/:question_id/choices", api.createChoice)
	qg.PUT("/:question_id/choices/:choice_id", api.updateChoice)
	qg.DELETE("/:question_id/choices/:choice_id", api.deleteChoice)

	ag.POST("/start", api.start)
	ag.GET("/attempt/:attempt_id", api.take)
	ag.POST("/attempt/:attempt_id", api.submit)
	ag.GET("/attempt/:attempt_id/result", api.result)
	ag.GET("/submissions", api.submissions, staffOnly)
	ag.GET("/attempt/:attempt_id/grade", api.gradeView, staffOnly)
	ag.POST("/attempt/:attempt_id/grade", api.grade, staffOnly)
	ag.GET("/stats", api.stats, staffOnly)
}

func assessmentPath(ctx echo.Context, id string, parts ...string) string {
	return schoolPath(ctx.Param("slug"), append([]string{"assessments", id}, parts...)...)
}

// Assessments

func (api *assessmentApi) getCourse(ctx echo.Context) (catalog.Course, error) {
	c, err := api.catalogSvc.GetCourse(ctx.Request().Context(), getAccess(ctx).School.ID, ctx.Param("id"))
	if err != nil {
		return catalog.Course{}, errors.Wrap(err, "finding course")
	}
	return c, nil
}

func (api *assessmentApi) getAssessment(ctx echo.Context) (assessment.Assessment, error) {
	a, err := api.svc.GetAssessment(ctx.Request().Context(), getAccess(ctx).School.ID, ctx.Param("id"))
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "finding assessment")
	}
	return a, nil
}

func (api *assessmentApi) query(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	rctx := ctx.Request().Context()
	d, err := api.learningSvc.RequireEnrollment(rctx, getAccess(ctx), c.ID)
	if err != nil {
		return errors.Wrap(err, "checking enrollment")
	}
	if !d.Allowed {
		return deny(d, coursePath(ctx, c.ID))
	}
	groups, err := api.svc.QueryAssessments(rctx, c)
	if err != nil {
		return errors.Wrap(err, "querying assessments")
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *assessmentApi) create(ctx echo.Context) error {
	c, err := api.getCourse(ctx)
	if err != nil {
		return err
	}
	var data assessment.AssessmentInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	a, err := api.svc.CreateAssessment(ctx.Request().Context(), c, data)
	if err != nil {
		return errors.Wrap(err, "creating assessment")
	}
	return ctx.JSON(http.StatusCreated, a)
}

func (api *assessmentApi) retrieve(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	detail, err := api.svc.GetDetail(ctx.Request().Context(), getAccess(ctx), a)
	if err != nil {
		return errors.Wrap(err, "describing assessment")
	}
	return ctx.JSON(http.StatusOK, detail)
}

func (api *assessmentApi) update(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	var data assessment.AssessmentInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	if a, err = api.svc.UpdateAssessment(ctx.Request().Context(), a, data); err != nil {
		return errors.Wrap(err, "updating assessment")
	}
	return ctx.JSON(http.StatusOK, a)
}

func (api *assessmentApi) destroy(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAssessment(ctx.Request().Context(), a); err != nil {
		return errors.Wrap(err, "deleting assessment")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Questions & Choices

func (api *assessmentApi) getQuestion(ctx echo.Context) (assessment.Assessment, assessment.Question, error) {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return a, assessment.Question{}, err
	}
	q, err := api.svc.GetQuestion(ctx.Request().Context(), a, ctx.Param("question_id"))
	if err != nil {
		return a, q, errors.Wrap(err, "finding question")
	}
	return a, q, nil
}

func (api *assessmentApi) getChoice(ctx echo.Context) (assessment.Choice, error) {
	_, q, err := api.getQuestion(ctx)
	if err != nil {
		return assessment.Choice{}, err
	}
	c, err := api.svc.GetChoice(ctx.Request().Context(), q, ctx.Param("choice_id"))
	if err != nil {
		return c, errors.Wrap(err, "finding choice")
	}
	return c, nil
}

func (api *assessmentApi) queryQuestions(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	questions, err := api.svc.Questions(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "querying questions")
	}
	if questions == nil {
		questions = []assessment.QuestionDetail{}
	}
	return ctx.JSON(http.StatusOK, questions)
}

func (api *assessmentApi) createQuestion(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	var data assessment.QuestionInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	q, err := api.svc.CreateQuestion(ctx.Request().Context(), a, data)
	if err != nil {
		return errors.Wrap(err, "creating question")
	}
	return ctx.JSON(http.StatusCreated, q)
}

func (api *assessmentApi) updateQuestion(ctx echo.Context) error {
	_, q, err := api.getQuestion(ctx)
	if err != nil {
		return err
	}
	var data assessment.QuestionInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	if q, err = api.svc.UpdateQuestion(ctx.Request().Context(), q, data); err != nil {
		return errors.Wrap(err, "updating question")
	}
	return ctx.JSON(http.StatusOK, q)
}

func (api *assessmentApi) deleteQuestion(ctx echo.Context) error {
	_, q, err := api.getQuestion(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteQuestion(ctx.Request().Context(), q); err != nil {
		return errors.Wrap(err, "deleting question")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *assessmentApi) createChoice(ctx echo.Context) error {
	_, q, err := api.getQuestion(ctx)
	if err != nil {
		return err
	}
	var data assessment.ChoiceInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	c, err := api.svc.CreateChoice(ctx.Request().Context(), q, data)
	if err != nil {
		return errors.Wrap(err, "creating choice")
	}
	return ctx.JSON(http.StatusCreated, c)
}

func (api *assessmentApi) updateChoice(ctx echo.Context) error {
	c, err := api.getChoice(ctx)
	if err != nil {
		return err
	}
	var data assessment.ChoiceInput
	if err = bindInput(ctx, &data, func() error { return data.Validate(api.validate) }); err != nil {
		return err
	}
	if c, err = api.svc.UpdateChoice(ctx.Request().Context(), c, data); err != nil {
		return errors.Wrap(err, "updating choice")
	}
	return ctx.JSON(http.StatusOK, c)
}

func (api *assessmentApi) deleteChoice(ctx echo.Context) error {
	c, err := api.getChoice(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteChoice(ctx.Request().Context(), c); err != nil {
		return errors.Wrap(err, "deleting choice")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Attempts

func (api *assessmentApi) start(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	att, d, err := api.svc.Start(ctx.Request().Context(), getAccess(ctx), a)
	if err != nil {
		return errors.Wrap(err, "starting attempt")
	}
	if !d.Allowed {
		return deny(d, assessmentPath(ctx, a.ID))
	}
	ctx.Response().Header().Set(echo.HeaderLocation, assessmentPath(ctx, a.ID, "attempt", att.ID))
	return ctx.JSON(http.StatusCreated, att)
}

func (api *assessmentApi) getAttempt(ctx echo.Context) (assessment.Assessment, assessment.Attempt, error) {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return a, assessment.Attempt{}, err
	}
	att, err := api.svc.GetAttempt(ctx.Request().Context(), getAccess(ctx), a, ctx.Param("attempt_id"))
	if err != nil {
		return a, att, errors.Wrap(err, "finding attempt")
	}
	return a, att, nil
}

func (api *assessmentApi) take(ctx echo.Context) error {
	a, att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	tv, finished, err := api.svc.Take(ctx.Request().Context(), a, att)
	if err != nil {
		return errors.Wrap(err, "taking attempt")
	}
	if finished {
		return ctx.Redirect(http.StatusSeeOther, assessmentPath(ctx, a.ID, "attempt", att.ID, "result"))
	}
	return ctx.JSON(http.StatusOK, tv)
}

// bindSubmission reads the question_{id} form fields of an attempt. File questions take
// their answer from the multipart file of the same name.
func (api *assessmentApi) bindSubmission(ctx echo.Context, a assessment.Assessment, att assessment.Attempt) (assessment.Submission, error) {
	form, err := ctx.FormParams()
	if err != nil {
		return nil, errors.Wrap(err, "parsing form")
	}
	questions, err := api.svc.Questions(ctx.Request().Context(), a)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}

	sub := make(assessment.Submission, len(questions))
	for _, qd := range questions {
		field := answerFieldPrefix + qd.ID
		answer := assessment.SubmittedAnswer{Value: form.Get(field)}
		if qd.Type == assessment.QuestionFile {
			dir := path.Join("answers", "attempt-"+att.ID)
			if answer.FilePath, err = saveUpload(ctx, api.files, field, dir); err != nil {
				return nil, err
			}
		}
		sub[qd.ID] = answer
	}
	return sub, nil
}

func (api *assessmentApi) submit(ctx echo.Context) error {
	a, att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	resultPath := assessmentPath(ctx, a.ID, "attempt", att.ID, "result")
	if att.IsSubmitted {
		return deny(access.Deny(access.AlreadySent), resultPath)
	}
	if att.StudentID != getAccess(ctx).Member.ID {
		return deny(access.Deny(access.NotOwner), resultPath)
	}

	sub, err := api.bindSubmission(ctx, a, att)
	if err != nil {
		return err
	}
	att, err = api.svc.Submit(ctx.Request().Context(), a, att, sub)
	switch errors.Cause(err) {
	case nil:
	case assessment.ErrAttemptSubmitted:
		api.removeUploads(ctx, sub)
		return deny(access.Deny(access.AlreadySent), resultPath)
	case assessment.ErrTimeOver:
		api.removeUploads(ctx, sub)
		return deny(access.Deny(access.TimeOver), resultPath)
	default:
		api.removeUploads(ctx, sub)
		return errors.Wrap(err, "submitting attempt")
	}

	res, err := api.svc.Result(ctx.Request().Context(), a, att)
	if err != nil {
		return errors.Wrap(err, "computing result")
	}
	return ctx.JSON(http.StatusOK, res)
}

// removeUploads deletes the files of a rejected submission.
func (api *assessmentApi) removeUploads(ctx echo.Context, sub assessment.Submission) {
	for _, answer := range sub {
		if err := api.files.Delete(answer.FilePath); err != nil {
			ctx.Logger().Errorf("%+v", errors.Wrap(err, "deleting answer file"))
		}
	}
}

func (api *assessmentApi) result(ctx echo.Context) error {
	a, att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	if !att.IsSubmitted {
		return ctx.Redirect(http.StatusSeeOther, assessmentPath(ctx, a.ID, "attempt", att.ID))
	}
	res, err := api.svc.Result(ctx.Request().Context(), a, att)
	if err != nil {
		return errors.Wrap(err, "computing result")
	}
	return ctx.JSON(http.StatusOK, res)
}

// Grading

func (api *assessmentApi) submissions(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	subs, err := api.svc.Submissions(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "querying submissions")
	}
	return ctx.JSON(http.StatusOK, subs)
}

func (api *assessmentApi) gradeView(ctx echo.Context) error {
	a, att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	gv, err := api.svc.GradeView(ctx.Request().Context(), a, att)
	if err != nil {
		return errors.Wrap(err, "building grade view")
	}
	return ctx.JSON(http.StatusOK, gv)
}

func (api *assessmentApi) grade(ctx echo.Context) error {
	a, att, err := api.getAttempt(ctx)
	if err != nil {
		return err
	}
	form, err := ctx.FormParams()
	if err != nil {
		return errors.Wrap(err, "parsing form")
	}
	grades := make(assessment.Grades)
	for field, values := range form {
		if strings.HasPrefix(field, gradeFieldPrefix) && len(values) > 0 {
			grades[strings.TrimPrefix(field, gradeFieldPrefix)] = values[0]
		}
	}
	if att, err = api.svc.Grade(ctx.Request().Context(), a, att, grades); err != nil {
		return errors.Wrap(err, "grading attempt")
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *assessmentApi) stats(ctx echo.Context) error {
	a, err := api.getAssessment(ctx)
	if err != nil {
		return err
	}
	st, err := api.svc.Stats(ctx.Request().Context(), a)
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, st)
}

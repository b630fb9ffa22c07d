package tests

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/assessment"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
	emailsvc "github.com/educarcms/educar/services/email"
	"github.com/educarcms/educar/tests"
)

type assessmentFixture struct {
	slug          string
	course        catalog.Course
	teacherToken  string
	studentToken  string
	student2Token string
	outsiderToken string
}

func newAssessmentFixture(t *testing.T, svcs *testutil.Services) assessmentFixture {
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, _ := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)
	student2, _ := testutil.AddMember(t, svcs, sch, "student2", school.RoleStudent)
	outsider, _ := testutil.AddMember(t, svcs, sch, "outsider", school.RoleStudent)
	cat := testutil.CreateCategory(t, svcs.Catalog, "Programação")
	c := testutil.CreateCourse(t, svcs.Catalog, testutil.Access(t, svcs, sch, teacher), "Go", cat.ID, catalog.CourseActive)

	for _, usr := range []user.User{student, student2} {
		_, _, err := svcs.Learning.Enroll(context.Background(), testutil.Access(t, svcs, sch, usr), c)
		require.NoError(t, err)
	}

	return assessmentFixture{
		slug:          sch.Slug,
		course:        c,
		teacherToken:  getToken(t, svcs, teacher),
		studentToken:  getToken(t, svcs, student),
		student2Token: getToken(t, svcs, student2),
		outsiderToken: getToken(t, svcs, outsider),
	}
}

func (f assessmentFixture) path(parts ...string) string {
	p := "/v1/school/" + f.slug
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// postJSON sends body to path and decodes the wantCode response into v.
func postJSON(t *testing.T, app http.Handler, path, token, body string, wantCode int, v interface{}) {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, path, token, []byte(body))
	app.ServeHTTP(rec, req)
	require.Equal(t, wantCode, rec.Code, rec.Body.String())
	if v != nil {
		unmarshal(t, rec, v)
	}
}

func Test_assessmentApi_attemptFlow(t *testing.T) {
	app, svcs := setup(t)
	f := newAssessmentFixture(t, svcs)

	var a assessment.Assessment
	postJSON(t, app, f.path("course", f.course.ID, "assessments"), f.teacherToken,
		`{"title":"Teste 1","attempts_allowed":"1","time_limit":"30","type":"QUIZ"}`, http.StatusCreated, &a)
	assert.Equal(t, assessment.TypeQuiz, a.Type)
	assert.Equal(t, 1, a.AttemptsAllowed)
	assert.Equal(t, 30, a.TimeLimit.Int)

	var mcq, essay assessment.Question
	var right, wrong assessment.Choice
	questionsPath := f.path("assessments", a.ID, "questions")
	postJSON(t, app, questionsPath, f.teacherToken, `{"text":"2 + 2?","points":"2"}`, http.StatusCreated, &mcq)
	postJSON(t, app, questionsPath+"/"+mcq.ID+"/choices", f.teacherToken, `{"text":"4","is_correct":true}`, http.StatusCreated, &right)
	postJSON(t, app, questionsPath+"/"+mcq.ID+"/choices", f.teacherToken, `{"text":"5"}`, http.StatusCreated, &wrong)
	postJSON(t, app, questionsPath, f.teacherToken, `{"text":"Explique goroutines","type":"essay","points":"3"}`, http.StatusCreated, &essay)
	assert.Equal(t, assessment.QuestionMultipleChoice, mcq.Type)
	assert.Equal(t, 1, mcq.Order)
	assert.Equal(t, 2, essay.Order)

	detailPath := f.path("assessments", a.ID)
	startPath := f.path("assessments", a.ID, "start")

	t.Run("students do not manage questions", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, questionsPath, f.studentToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, f.path("dashboard"), string(access.StaffRequired))
	})

	t.Run("teachers cannot start", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, startPath, f.teacherToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, detailPath, string(access.StudentRequired))
	})

	t.Run("students must be enrolled", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, startPath, f.outsiderToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, detailPath, string(access.NotEnrolled))

		req, rec = newAuthRequest(http.MethodGet, f.path("course", f.course.ID, "assessments"), f.outsiderToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, f.path("courses", f.course.ID), string(access.NotEnrolled))
	})

	t.Run("query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, f.path("course", f.course.ID, "assessments"), f.studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var groups assessment.Groups
		unmarshal(t, rec, &groups)
		require.Len(t, groups.Course, 1)
		assert.Equal(t, a.ID, groups.Course[0].ID)
		assert.Empty(t, groups.Subjects)
	})

	t.Run("detail", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, detailPath, f.studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var d assessment.Detail
		unmarshal(t, rec, &d)
		assert.Equal(t, assessment.StatusActive, d.Status)
		assert.True(t, d.IsEnrolled)
		assert.True(t, d.CanStart)
		assert.Empty(t, d.Attempts)
	})

	var att assessment.Attempt
	t.Run("start", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, startPath, f.studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &att)
		assert.Equal(t, 1, att.AttemptNumber)
		assert.False(t, att.IsSubmitted)
		assert.Equal(t, f.path("assessments", a.ID, "attempt", att.ID), rec.Header().Get("Location"))
	})
	attemptPath := f.path("assessments", a.ID, "attempt", att.ID)
	resultPath := attemptPath + "/result"

	t.Run("result before submitting", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, resultPath, f.studentToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, attemptPath, rec.Header().Get("Location"))
	})

	t.Run("grading before submitting", func(t *testing.T) {
		req, rec := newFormRequest(t, http.MethodPost, attemptPath+"/grade", f.teacherToken, nil, nil)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: assessment.ErrNotSubmitted.Error()}),
		}, rec)
	})

	t.Run("take", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, attemptPath, f.studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "is_correct")

		var tv assessment.TakeView
		unmarshal(t, rec, &tv)
		require.Len(t, tv.Questions, 2)
		assert.Equal(t, mcq.ID, tv.Questions[0].ID)
		assert.Len(t, tv.Questions[0].Choices, 2)
		require.NotNil(t, tv.RemainingSeconds)
		assert.InDelta(t, 30*60, *tv.RemainingSeconds, 5)
	})

	t.Run("other students cannot see the attempt", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, attemptPath, f.student2Token)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("staff cannot submit for a student", func(t *testing.T) {
		req, rec := newFormRequest(t, http.MethodPost, attemptPath, f.teacherToken, map[string]string{"question_" + mcq.ID: wrong.ID}, nil)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, resultPath, string(access.NotOwner))
	})

	t.Run("submit", func(t *testing.T) {
		fields := map[string]string{
			"question_" + mcq.ID:   right.ID,
			"question_" + essay.ID: "Funções concorrentes",
		}
		req, rec := newFormRequest(t, http.MethodPost, attemptPath, f.studentToken, fields, nil)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res assessment.Result
		unmarshal(t, rec, &res)
		assert.True(t, res.Attempt.IsSubmitted)
		assert.Equal(t, 2.0, res.Attempt.Score.Float64)
		assert.Equal(t, 5.0, res.TotalPoints)
		assert.Equal(t, 1, res.CorrectObjective)
		assert.Equal(t, 1, res.TotalObjective)
		assert.Equal(t, 100.0, res.PercentCorrect)
		require.Len(t, res.Answers, 2)
		assert.Equal(t, "Funções concorrentes", res.Answers[1].TextAnswer)
	})

	t.Run("submit twice", func(t *testing.T) {
		req, rec := newFormRequest(t, http.MethodPost, attemptPath, f.studentToken, map[string]string{"question_" + mcq.ID: wrong.ID}, nil)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, resultPath, string(access.AlreadySent))
	})

	t.Run("take a submitted attempt", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, attemptPath, f.studentToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusSeeOther, rec.Code)
		assert.Equal(t, resultPath, rec.Header().Get("Location"))
	})

	t.Run("attempt limit", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, startPath, f.studentToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, detailPath, string(access.AttemptLimit))
	})

	t.Run("grade", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, attemptPath+"/grade", f.teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var gv assessment.GradeView
		unmarshal(t, rec, &gv)
		assert.Equal(t, "student", gv.Attempt.Student.Username)
		require.Len(t, gv.Answers, 2)
		essayAnswer := gv.Answers[1]
		require.Equal(t, essay.ID, essayAnswer.QuestionID)

		emailsvc.ResetSentMessages()
		req, rec = newFormRequest(t, http.MethodPost, attemptPath+"/grade", f.teacherToken, map[string]string{"grade_" + essayAnswer.ID: "2.5"}, nil)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var graded assessment.Attempt
		unmarshal(t, rec, &graded)
		assert.Equal(t, 4.5, graded.Score.Float64)
		assert.True(t, graded.IsSubmitted)

		msgs := emailsvc.LastSentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "student@test.ao", msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].TextContent, "4.50")

		// a missing grade keeps the previous one
		req, rec = newFormRequest(t, http.MethodPost, attemptPath+"/grade", f.teacherToken, map[string]string{"grade_" + essayAnswer.ID: "abc"}, nil)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		unmarshal(t, rec, &graded)
		assert.Equal(t, 4.5, graded.Score.Float64)
	})

	t.Run("submissions and stats", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, detailPath+"/submissions", f.teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var subs []assessment.AttemptDetail
		unmarshal(t, rec, &subs)
		require.Len(t, subs, 1)
		assert.Equal(t, att.ID, subs[0].ID)

		req, rec = newAuthRequest(http.MethodGet, detailPath+"/stats", f.teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st assessment.Stats
		unmarshal(t, rec, &st)
		assert.Equal(t, 1, st.TotalAttempts)
		assert.Equal(t, 4.5, st.AverageScore)
		require.Len(t, st.Questions, 2)
	})
}

func Test_assessmentApi_fileAnswer(t *testing.T) {
	app, svcs := setup(t)
	f := newAssessmentFixture(t, svcs)

	var a assessment.Assessment
	postJSON(t, app, f.path("course", f.course.ID, "assessments"), f.teacherToken,
		`{"title":"Trabalho","type":"file_upload","attempts_allowed":"2"}`, http.StatusCreated, &a)
	var q assessment.Question
	postJSON(t, app, f.path("assessments", a.ID, "questions"), f.teacherToken,
		`{"text":"Envie o relatório","type":"file","points":"10"}`, http.StatusCreated, &q)

	var att assessment.Attempt
	postJSON(t, app, f.path("assessments", a.ID, "start"), f.studentToken, ``, http.StatusCreated, &att)
	attemptPath := f.path("assessments", a.ID, "attempt", att.ID)

	t.Run("upload too large", func(t *testing.T) {
		big := make([]byte, svcs.Conf.MaxUploadSize+1)
		files := map[string]map[string]string{"question_" + q.ID: {"big.pdf": string(big)}}
		req, rec := newFormRequest(t, http.MethodPost, attemptPath, f.studentToken, nil, files)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("submit a file", func(t *testing.T) {
		files := map[string]map[string]string{"question_" + q.ID: {"Relatório Final.PDF": "%PDF-1.4"}}
		req, rec := newFormRequest(t, http.MethodPost, attemptPath, f.studentToken, nil, files)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var res assessment.Result
		unmarshal(t, rec, &res)
		require.Len(t, res.Answers, 1)
		stored := res.Answers[0].FileAnswer
		assert.Contains(t, stored, "answers/attempt-"+att.ID+"/")
		assert.Contains(t, stored, "relatorio-final.pdf")

		data, err := os.ReadFile(filepath.Join(svcs.Conf.MediaDir, filepath.FromSlash(stored)))
		require.NoError(t, err)
		assert.Equal(t, "%PDF-1.4", string(data))
		assert.Equal(t, 0.0, res.Attempt.Score.Float64)
		assert.Equal(t, 0, res.TotalObjective)
	})
}

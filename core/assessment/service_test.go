package assessment_test

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/assessment"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/school"
	emailsvc "github.com/educarcms/educar/services/email"
	inmemdb "github.com/educarcms/educar/storage/database/inmem"
	"github.com/educarcms/educar/tests"
)

func TestAssessment_Status(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		openAt  null.Time
		closeAt null.Time
		want    string
	}{
		{name: "no window", want: assessment.StatusActive},
		{name: "not open yet", openAt: null.TimeFrom(now.Add(time.Hour)), want: assessment.StatusPending},
		{name: "open", openAt: null.TimeFrom(now.Add(-time.Hour)), closeAt: null.TimeFrom(now.Add(time.Hour)), want: assessment.StatusActive},
		{name: "closed", closeAt: null.TimeFrom(now.Add(-time.Minute)), want: assessment.StatusClosed},
		{name: "closing now", closeAt: null.TimeFrom(now), want: assessment.StatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assessment.Assessment{OpenAt: tt.openAt, CloseAt: tt.closeAt}
			assert.Equal(t, tt.want, a.Status(now))
		})
	}
}

func TestAssessment_TimeOver(t *testing.T) {
	started := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name      string
		timeLimit null.Int
		elapsed   time.Duration
		want      bool
	}{
		{name: "no limit", elapsed: 24 * time.Hour},
		{name: "zero limit", timeLimit: null.IntFrom(0), elapsed: time.Hour},
		{name: "within limit", timeLimit: null.IntFrom(30), elapsed: 29 * time.Minute},
		{name: "exactly at limit", timeLimit: null.IntFrom(30), elapsed: 30 * time.Minute},
		{name: "over limit", timeLimit: null.IntFrom(30), elapsed: 30*time.Minute + time.Second, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := assessment.Assessment{TimeLimit: tt.timeLimit}
			assert.Equal(t, tt.want, a.TimeOver(started, started.Add(tt.elapsed)))
		})
	}
}

func TestAssessmentInput_Validate(t *testing.T) {
	svcs := testutil.NewServices(t)

	ai := assessment.AssessmentInput{Title: " Prova 1 ", Type: " "}
	require.NoError(t, ai.Validate(svcs.Validate))
	assert.Equal(t, "Prova 1", ai.Title)
	assert.Equal(t, assessment.TypeQuiz, ai.Type)

	ai = assessment.AssessmentInput{Title: "Prova 1", OpenAt: "2024-03-10T10:00", CloseAt: "2024-03-09"}
	err := ai.Validate(svcs.Validate)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), err)
	assert.Equal(t, []core.FieldError{{Field: "close_at", Error: "must be after open_at"}}, vErr.Fields)

	ai = assessment.AssessmentInput{Title: "Prova 1", Type: "oral"}
	assert.Error(t, ai.Validate(svcs.Validate))
}

type fixture struct {
	svcs     *testutil.Services
	course   catalog.Course
	student  access.Context
	teacher  access.Context
	quiz     assessment.Assessment
	mcq      assessment.Question
	right    assessment.Choice
	wrong    assessment.Choice
	essay    assessment.Question
	fileQ    assessment.Question
	startsAt time.Time
}

func newFixture(t *testing.T, ai assessment.AssessmentInput) fixture {
	ctx := context.Background()
	svcs := testutil.NewServices(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, _ := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)

	f := fixture{
		svcs:     svcs,
		teacher:  testutil.Access(t, svcs, sch, teacher),
		student:  testutil.Access(t, svcs, sch, student),
		startsAt: time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	cat := testutil.CreateCategory(t, svcs.Catalog, "Matemática")
	f.course = testutil.CreateCourse(t, svcs.Catalog, f.teacher, "Álgebra", cat.ID, catalog.CourseActive)
	_, _, err := svcs.Learning.Enroll(ctx, f.student, f.course)
	require.NoError(t, err)

	require.NoError(t, ai.Validate(svcs.Validate))
	f.quiz, err = svcs.Assessment.CreateAssessment(ctx, f.course, ai)
	require.NoError(t, err)

	f.mcq, err = svcs.Assessment.CreateQuestion(ctx, f.quiz, assessment.QuestionInput{Text: "2 + 2?", Type: assessment.QuestionMultipleChoice, Points: "2"})
	require.NoError(t, err)
	f.right, err = svcs.Assessment.CreateChoice(ctx, f.mcq, assessment.ChoiceInput{Text: "4", IsCorrect: true})
	require.NoError(t, err)
	f.wrong, err = svcs.Assessment.CreateChoice(ctx, f.mcq, assessment.ChoiceInput{Text: "5"})
	require.NoError(t, err)
	f.essay, err = svcs.Assessment.CreateQuestion(ctx, f.quiz, assessment.QuestionInput{Text: "Explique.", Type: assessment.QuestionEssay, Points: "3"})
	require.NoError(t, err)
	f.fileQ, err = svcs.Assessment.CreateQuestion(ctx, f.quiz, assessment.QuestionInput{Text: "Envie o relatório.", Type: assessment.QuestionFile})
	require.NoError(t, err)
	return f
}

func (f fixture) start(t *testing.T) assessment.Attempt {
	att, decision, err := f.svcs.Assessment.Start(context.Background(), f.student, f.quiz)
	require.NoError(t, err)
	require.True(t, decision.Allowed, decision.Reason)
	return att
}

func TestService_CreateDefaults(t *testing.T) {
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", Weight: "abc", AttemptsAllowed: "0", TimeLimit: "-5"})

	assert.Equal(t, 10.0, f.quiz.Weight)
	assert.Equal(t, 1, f.quiz.AttemptsAllowed)
	assert.False(t, f.quiz.TimeLimit.Valid)
	assert.False(t, f.quiz.SubjectID.Valid)

	assert.Equal(t, 1, f.mcq.Order)
	assert.Equal(t, 2, f.essay.Order)
	assert.Equal(t, 3, f.fileQ.Order)
	assert.Equal(t, 1.0, f.fileQ.Points)
	assert.Equal(t, 1, f.right.Order)
	assert.Equal(t, 2, f.wrong.Order)

	updated, err := f.svcs.Assessment.UpdateAssessment(context.Background(), f.quiz, assessment.AssessmentInput{
		Title: "Prova 2", Type: assessment.TypeFinalExam, Weight: "25,5", AttemptsAllowed: "3", TimeLimit: "45",
	})
	require.NoError(t, err)
	assert.Equal(t, 25.5, updated.Weight)
	assert.Equal(t, 3, updated.AttemptsAllowed)
	assert.Equal(t, null.IntFrom(45), updated.TimeLimit)
}

func TestService_CanStart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", OpenAt: "2024-03-10T10:00", CloseAt: "2024-03-10T14:00"})

	tests := []struct {
		name string
		ac   access.Context
		now  time.Time
		want access.Decision
	}{
		{name: "teacher", ac: f.teacher, now: f.startsAt, want: access.Deny(access.StudentRequired)},
		{name: "before open", ac: f.student, now: f.startsAt.Add(-3 * time.Hour), want: access.Deny(access.NotOpen)},
		{name: "after close", ac: f.student, now: f.startsAt.Add(3 * time.Hour), want: access.Deny(access.Closed)},
		{name: "open", ac: f.student, now: f.startsAt, want: access.Allow()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer assessment.SetNow(tt.now)()
			got, err := f.svcs.Assessment.CanStart(ctx, tt.ac, f.quiz)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	defer assessment.SetNow(f.startsAt)()
	att := f.start(t)
	assert.Equal(t, 1, att.AttemptNumber)
	assert.Equal(t, f.startsAt, att.StartedAt)

	got, err := f.svcs.Assessment.CanStart(ctx, f.student, f.quiz)
	require.NoError(t, err)
	assert.Equal(t, access.Deny(access.AttemptLimit), got)
}

func TestService_SubmitAndGrade(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", AttemptsAllowed: "2"})
	att := f.start(t)

	att, err := f.svcs.Assessment.Submit(ctx, f.quiz, att, assessment.Submission{
		f.mcq.ID:   {Value: f.right.ID},
		f.essay.ID: {Value: "Porque sim."},
		f.fileQ.ID: {FilePath: "answers/attempt-1/abcd1234-relatorio.pdf"},
	})
	require.NoError(t, err)
	assert.True(t, att.IsSubmitted)
	assert.True(t, att.FinishedAt.Valid)
	assert.Equal(t, null.Float64From(2), att.Score)

	_, err = f.svcs.Assessment.Submit(ctx, f.quiz, att, nil)
	assert.Equal(t, assessment.ErrAttemptSubmitted, err)

	result, err := f.svcs.Assessment.Result(ctx, f.quiz, att)
	require.NoError(t, err)
	assert.Equal(t, 6.0, result.TotalPoints)
	assert.Equal(t, 1, result.TotalObjective)
	assert.Equal(t, 1, result.CorrectObjective)
	assert.Equal(t, 100.0, result.PercentCorrect)
	require.Len(t, result.Answers, 3)

	grades := assessment.Grades{}
	for _, ad := range result.Answers {
		switch ad.Question.ID {
		case f.essay.ID:
			assert.Equal(t, "Porque sim.", ad.TextAnswer)
			grades[ad.ID] = "2.5"
		case f.fileQ.ID:
			assert.Equal(t, "answers/attempt-1/abcd1234-relatorio.pdf", ad.FileAnswer)
			grades[ad.ID] = "1"
		}
	}
	graded, err := f.svcs.Assessment.Grade(ctx, f.quiz, att, grades)
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(5.5), graded.Score)

	for id := range grades {
		grades[id] = "not a number"
	}
	graded, err = f.svcs.Assessment.Grade(ctx, f.quiz, graded, grades)
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(5.5), graded.Score)

	// a second attempt answering wrong
	att2 := f.start(t)
	assert.Equal(t, 2, att2.AttemptNumber)
	att2, err = f.svcs.Assessment.Submit(ctx, f.quiz, att2, assessment.Submission{f.mcq.ID: {Value: f.wrong.ID}})
	require.NoError(t, err)
	assert.Equal(t, null.Float64From(0), att2.Score)

	_, err = f.svcs.Assessment.Grade(ctx, f.quiz, att2, nil)
	require.NoError(t, err)

	stats, err := f.svcs.Assessment.Stats(ctx, f.quiz)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAttempts)
	assert.Equal(t, 2.75, stats.AverageScore)
	require.Len(t, stats.Questions, 3)
	assert.Equal(t, f.essay.ID, stats.Questions[0].Question.ID)
	assert.Equal(t, f.fileQ.ID, stats.Questions[1].Question.ID)
	assert.Equal(t, f.mcq.ID, stats.Questions[2].Question.ID)
	assert.Equal(t, 2, stats.Questions[2].TotalAnswers)
	assert.Equal(t, 1, stats.Questions[2].CorrectAnswers)
	assert.Equal(t, 50.0, stats.Questions[2].CorrectRate)
}

func TestService_GradeNotSubmitted(t *testing.T) {
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova"})
	att := f.start(t)

	_, err := f.svcs.Assessment.Grade(context.Background(), f.quiz, att, nil)
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), err)
	assert.Equal(t, assessment.ErrNotSubmitted, vErr.Err)
}

func TestService_TimeOver(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", TimeLimit: "30"})

	restore := assessment.SetNow(f.startsAt)
	att := f.start(t)
	restore()

	t.Run("remaining seconds", func(t *testing.T) {
		defer assessment.SetNow(f.startsAt.Add(10 * time.Minute))()
		tv, finished, err := f.svcs.Assessment.Take(ctx, f.quiz, att)
		require.NoError(t, err)
		assert.False(t, finished)
		require.NotNil(t, tv.RemainingSeconds)
		assert.Equal(t, 20*60, *tv.RemainingSeconds)
		require.Len(t, tv.Questions, 3)
		assert.Len(t, tv.Questions[0].Choices, 2)
	})

	t.Run("submit after the limit", func(t *testing.T) {
		defer assessment.SetNow(f.startsAt.Add(31 * time.Minute))()
		_, err := f.svcs.Assessment.Submit(ctx, f.quiz, att, assessment.Submission{f.mcq.ID: {Value: f.right.ID}})
		assert.Equal(t, assessment.ErrTimeOver, err)

		stored, err := f.svcs.Assessment.GetAttempt(ctx, f.student, f.quiz, att.ID)
		require.NoError(t, err)
		assert.True(t, stored.IsSubmitted)
		assert.Equal(t, null.Float64From(0), stored.Score)

		_, finished, err := f.svcs.Assessment.Take(ctx, f.quiz, stored)
		require.NoError(t, err)
		assert.True(t, finished)
	})
}

func TestService_TakeAfterLimitFinalizes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", TimeLimit: "5"})

	restore := assessment.SetNow(f.startsAt)
	att := f.start(t)
	restore()

	defer assessment.SetNow(f.startsAt.Add(time.Hour))()
	_, finished, err := f.svcs.Assessment.Take(ctx, f.quiz, att)
	require.NoError(t, err)
	assert.True(t, finished)

	stored, err := f.svcs.Assessment.GetAttempt(ctx, f.student, f.quiz, att.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsSubmitted)
}

func TestService_ConcurrentSubmit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova"})
	att := f.start(t)

	stale := att
	_, err := f.svcs.Assessment.Submit(ctx, f.quiz, att, assessment.Submission{f.mcq.ID: {Value: f.right.ID}})
	require.NoError(t, err)

	_, err = f.svcs.Assessment.Submit(ctx, f.quiz, stale, assessment.Submission{f.mcq.ID: {Value: f.wrong.ID}})
	assert.Equal(t, assessment.ErrAttemptSubmitted, err)

	result, err := f.svcs.Assessment.Result(ctx, f.quiz, att)
	require.NoError(t, err)
	assert.Equal(t, 1, result.CorrectObjective)
}

func TestService_StatsCorrectRate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", AttemptsAllowed: "4"})

	for _, choice := range []assessment.Choice{f.right, f.right, f.wrong, f.right} {
		att := f.start(t)
		_, err := f.svcs.Assessment.Submit(ctx, f.quiz, att, assessment.Submission{f.mcq.ID: {Value: choice.ID}})
		require.NoError(t, err)
	}

	stats, err := f.svcs.Assessment.Stats(ctx, f.quiz)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalAttempts)
	assert.Equal(t, 1.5, stats.AverageScore)

	var mcqStats *assessment.QuestionStats
	for i := range stats.Questions {
		if stats.Questions[i].Question.ID == f.mcq.ID {
			mcqStats = &stats.Questions[i]
		}
	}
	require.NotNil(t, mcqStats)
	assert.Equal(t, 4, mcqStats.TotalAnswers)
	assert.Equal(t, 3, mcqStats.CorrectAnswers)
	assert.Equal(t, 75.0, mcqStats.CorrectRate)
}

func TestService_StartAttemptLimit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", AttemptsAllowed: "2"})
	f.start(t)
	f.start(t)

	_, d, err := f.svcs.Assessment.Start(ctx, f.student, f.quiz)
	require.NoError(t, err)
	assert.Equal(t, access.Deny(access.AttemptLimit), d)

	attempts, err := f.svcs.DB.QueryAttempts(ctx, f.quiz.ID, f.student.Member.ID, false)
	require.NoError(t, err)
	assert.Len(t, attempts, 2)
}

// staleCounter reports no attempts, like a Start racing with another one.
type staleCounter struct {
	*inmemdb.DB
}

func (staleCounter) CountAttempts(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (int, error) {
	return 0, nil
}

func TestService_StartRace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, assessment.AssessmentInput{Title: "Prova", AttemptsAllowed: "2"})
	first := f.start(t)
	assert.Equal(t, 1, first.AttemptNumber)

	svcs := f.svcs
	racing := assessment.NewService(
		svcs.DB, staleCounter{svcs.DB}, svcs.Catalog, svcs.Learning, svcs.School, svcs.Profile,
		emailsvc.NewConsoleServiceMock(svcs.Conf, svcs.Logger), svcs.Logger,
	)
	att, d, err := racing.Start(ctx, f.student, f.quiz)
	require.NoError(t, err)
	assert.Equal(t, access.Deny(access.AttemptLimit), d)
	assert.Empty(t, att.ID)

	attempts, err := svcs.DB.QueryAttempts(ctx, f.quiz.ID, f.student.Member.ID, false)
	require.NoError(t, err)
	assert.Len(t, attempts, 1)
}

package sqlxrepos

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/assessment"
)

const (
	assessmentColumns = `a.id, a.course_id, a.subject_id, a.title, a.description, a.type, a.weight, a.attempts_allowed,
		a.time_limit, a.open_at, a.close_at, a.created_at`
	questionColumns = `id, assessment_id, text, type, sort_order AS "order", points`
	choiceColumns   = `id, question_id, text, is_correct, sort_order AS "order"`
	attemptColumns  = `id, assessment_id, student_id, attempt_number, started_at, finished_at, score, is_submitted`
	answerColumns   = `id, attempt_id, question_id, choice_id, text_answer, file_answer, is_correct, points_awarded`
)

type assessmentRepository struct {
	repository
}

var _ assessment.Repository = (*assessmentRepository)(nil) // interface compliance check

func NewAssessmentRepository(exec core.DBExecutor) *assessmentRepository {
	return &assessmentRepository{repository{exec: exec}}
}

// Assessments

func (repo assessmentRepository) CreateAssessment(ctx context.Context, a assessment.Assessment, exec ...core.DBExecutor) (assessment.Assessment, error) {
	a.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO assessments (id, course_id, subject_id, title, description, type, weight, attempts_allowed,
		                         time_limit, open_at, close_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.CourseID, a.SubjectID, a.Title, a.Description, a.Type, a.Weight, a.AttemptsAllowed,
		a.TimeLimit, a.OpenAt, a.CloseAt, a.CreatedAt.UTC(),
	)
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "inserting assessment")
	}
	return a, nil
}

func (repo assessmentRepository) GetAssessment(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (assessment.Assessment, error) {
	if !validID(schoolID) || !validID(id) {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	var a assessment.Assessment
	err := sqlx.GetContext(ctx, repo.getExec(exec), &a, `
		SELECT `+assessmentColumns+`
		FROM assessments a JOIN courses c ON c.id = a.course_id
		WHERE c.school_id = $1 AND a.id = $2`, schoolID, id)
	if err != nil {
		return assessment.Assessment{}, trapNoRowsErr(err, assessment.ErrNotFound, "finding assessment")
	}
	return a, nil
}

func (repo assessmentRepository) QueryAssessments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]assessment.Assessment, error) {
	assessments := []assessment.Assessment{}
	if !validID(courseID) {
		return assessments, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &assessments,
		`SELECT `+assessmentColumns+` FROM assessments a WHERE a.course_id = $1 ORDER BY a.created_at DESC, a.id`, courseID)
	return assessments, errors.Wrap(err, "querying assessments")
}

func (repo assessmentRepository) UpdateAssessment(ctx context.Context, a assessment.Assessment, exec ...core.DBExecutor) (assessment.Assessment, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx, `
		UPDATE assessments
		SET subject_id = $2, title = $3, description = $4, type = $5, weight = $6, attempts_allowed = $7,
		    time_limit = $8, open_at = $9, close_at = $10
		WHERE id = $1`,
		a.ID, a.SubjectID, a.Title, a.Description, a.Type, a.Weight, a.AttemptsAllowed,
		a.TimeLimit, a.OpenAt, a.CloseAt,
	))
	if err != nil {
		return assessment.Assessment{}, errors.Wrap(err, "updating assessment")
	}
	if n == 0 {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	return a, nil
}

func (repo assessmentRepository) DeleteAssessment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return assessment.ErrNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM assessments WHERE id = $1`, id)
	return errors.Wrap(err, "deleting assessment")
}

// Questions

func (repo assessmentRepository) CreateQuestion(ctx context.Context, q assessment.Question, exec ...core.DBExecutor) (assessment.Question, error) {
	q.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO questions (id, assessment_id, text, type, sort_order, points)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		q.ID, q.AssessmentID, q.Text, q.Type, q.Order, q.Points,
	)
	if err != nil {
		return assessment.Question{}, errors.Wrap(err, "inserting question")
	}
	return q, nil
}

func (repo assessmentRepository) GetQuestion(ctx context.Context, assessmentID, id string, exec ...core.DBExecutor) (assessment.Question, error) {
	if !validID(assessmentID) || !validID(id) {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	var q assessment.Question
	err := sqlx.GetContext(ctx, repo.getExec(exec), &q,
		`SELECT `+questionColumns+` FROM questions WHERE assessment_id = $1 AND id = $2`, assessmentID, id)
	if err != nil {
		return assessment.Question{}, trapNoRowsErr(err, assessment.ErrQuestionNotFound, "finding question")
	}
	return q, nil
}

func (repo assessmentRepository) QueryQuestions(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.Question, error) {
	questions := []assessment.Question{}
	if !validID(assessmentID) {
		return questions, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &questions,
		`SELECT `+questionColumns+` FROM questions WHERE assessment_id = $1 ORDER BY sort_order, id`, assessmentID)
	return questions, errors.Wrap(err, "querying questions")
}

func (repo assessmentRepository) UpdateQuestion(ctx context.Context, q assessment.Question, exec ...core.DBExecutor) (assessment.Question, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx,
		`UPDATE questions SET text = $2, type = $3, sort_order = $4, points = $5 WHERE id = $1`,
		q.ID, q.Text, q.Type, q.Order, q.Points,
	))
	if err != nil {
		return assessment.Question{}, errors.Wrap(err, "updating question")
	}
	if n == 0 {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	return q, nil
}

func (repo assessmentRepository) DeleteQuestion(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return assessment.ErrQuestionNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM questions WHERE id = $1`, id)
	return errors.Wrap(err, "deleting question")
}

// Choices

func (repo assessmentRepository) CreateChoice(ctx context.Context, c assessment.Choice, exec ...core.DBExecutor) (assessment.Choice, error) {
	c.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO choices (id, question_id, text, is_correct, sort_order)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.QuestionID, c.Text, c.IsCorrect, c.Order,
	)
	if err != nil {
		return assessment.Choice{}, errors.Wrap(err, "inserting choice")
	}
	return c, nil
}

func (repo assessmentRepository) GetChoice(ctx context.Context, questionID, id string, exec ...core.DBExecutor) (assessment.Choice, error) {
	if !validID(questionID) || !validID(id) {
		return assessment.Choice{}, assessment.ErrChoiceNotFound
	}
	var c assessment.Choice
	err := sqlx.GetContext(ctx, repo.getExec(exec), &c,
		`SELECT `+choiceColumns+` FROM choices WHERE question_id = $1 AND id = $2`, questionID, id)
	if err != nil {
		return assessment.Choice{}, trapNoRowsErr(err, assessment.ErrChoiceNotFound, "finding choice")
	}
	return c, nil
}

func (repo assessmentRepository) QueryChoices(ctx context.Context, questionIDs []string, exec ...core.DBExecutor) ([]assessment.Choice, error) {
	choices := []assessment.Choice{}
	if len(questionIDs) == 0 {
		return choices, nil
	}
	exe := repo.getExec(exec)
	q, args, err := in(exe, `SELECT `+choiceColumns+` FROM choices WHERE question_id IN (?) ORDER BY sort_order, id`, questionIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building choices query")
	}
	err = sqlx.SelectContext(ctx, exe, &choices, q, args...)
	return choices, errors.Wrap(err, "querying choices")
}

func (repo assessmentRepository) UpdateChoice(ctx context.Context, c assessment.Choice, exec ...core.DBExecutor) (assessment.Choice, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx,
		`UPDATE choices SET text = $2, is_correct = $3, sort_order = $4 WHERE id = $1`,
		c.ID, c.Text, c.IsCorrect, c.Order,
	))
	if err != nil {
		return assessment.Choice{}, errors.Wrap(err, "updating choice")
	}
	if n == 0 {
		return assessment.Choice{}, assessment.ErrChoiceNotFound
	}
	return c, nil
}

func (repo assessmentRepository) DeleteChoice(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return assessment.ErrChoiceNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM choices WHERE id = $1`, id)
	return errors.Wrap(err, "deleting choice")
}

// Attempts

func (repo assessmentRepository) CreateAttempt(ctx context.Context, a assessment.Attempt, exec ...core.DBExecutor) (assessment.Attempt, error) {
	a.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO attempts (`+attemptColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.AssessmentID, a.StudentID, a.AttemptNumber, a.StartedAt.UTC(), a.FinishedAt, a.Score, a.IsSubmitted,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return assessment.Attempt{}, assessment.ErrAttemptExists
		}
		return assessment.Attempt{}, errors.Wrap(err, "inserting attempt")
	}
	return a, nil
}

func (repo assessmentRepository) GetAttempt(ctx context.Context, assessmentID, id string, exec ...core.DBExecutor) (assessment.Attempt, error) {
	if !validID(assessmentID) || !validID(id) {
		return assessment.Attempt{}, assessment.ErrAttemptNotFound
	}
	var a assessment.Attempt
	err := sqlx.GetContext(ctx, repo.getExec(exec), &a,
		`SELECT `+attemptColumns+` FROM attempts WHERE assessment_id = $1 AND id = $2`, assessmentID, id)
	if err != nil {
		return assessment.Attempt{}, trapNoRowsErr(err, assessment.ErrAttemptNotFound, "finding attempt")
	}
	return a, nil
}

func (repo assessmentRepository) QueryAttempts(ctx context.Context, assessmentID, studentID string, submittedOnly bool, exec ...core.DBExecutor) ([]assessment.Attempt, error) {
	attempts := []assessment.Attempt{}
	if !validID(assessmentID) || (studentID != "" && !validID(studentID)) {
		return attempts, nil
	}
	q := `SELECT ` + attemptColumns + ` FROM attempts WHERE assessment_id = ?`
	args := []interface{}{assessmentID}
	if studentID != "" {
		q += ` AND student_id = ?`
		args = append(args, studentID)
	}
	if submittedOnly {
		q += ` AND is_submitted = true`
	}
	q += ` ORDER BY started_at DESC, attempt_number DESC`

	exe := repo.getExec(exec)
	err := sqlx.SelectContext(ctx, exe, &attempts, exe.Rebind(q), args...)
	return attempts, errors.Wrap(err, "querying attempts")
}

func (repo assessmentRepository) CountAttempts(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (int, error) {
	if !validID(assessmentID) || !validID(studentID) {
		return 0, nil
	}
	var n int
	err := sqlx.GetContext(ctx, repo.getExec(exec), &n,
		`SELECT COUNT(*) FROM attempts WHERE assessment_id = $1 AND student_id = $2`, assessmentID, studentID)
	return n, errors.Wrap(err, "counting attempts")
}

func (repo assessmentRepository) FinalizeAttempt(ctx context.Context, a assessment.Attempt, exec ...core.DBExecutor) (bool, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx, `
		UPDATE attempts SET is_submitted = true, finished_at = $2, score = $3
		WHERE id = $1 AND is_submitted = false`,
		a.ID, a.FinishedAt, a.Score,
	))
	if err != nil {
		return false, errors.Wrap(err, "finalizing attempt")
	}
	return n > 0, nil
}

func (repo assessmentRepository) SetAttemptScore(ctx context.Context, a assessment.Attempt, exec ...core.DBExecutor) (assessment.Attempt, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx,
		`UPDATE attempts SET is_submitted = $2, finished_at = $3, score = $4 WHERE id = $1`,
		a.ID, a.IsSubmitted, a.FinishedAt, a.Score,
	))
	if err != nil {
		return assessment.Attempt{}, errors.Wrap(err, "setting attempt score")
	}
	if n == 0 {
		return assessment.Attempt{}, assessment.ErrAttemptNotFound
	}
	return a, nil
}

// Answers

func (repo assessmentRepository) UpsertAnswer(ctx context.Context, a assessment.Answer, exec ...core.DBExecutor) (assessment.Answer, error) {
	var saved assessment.Answer
	err := sqlx.GetContext(ctx, repo.getExec(exec), &saved, `
		INSERT INTO answers (`+answerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (attempt_id, question_id)
		DO UPDATE SET choice_id = EXCLUDED.choice_id, text_answer = EXCLUDED.text_answer,
		              file_answer = EXCLUDED.file_answer, is_correct = EXCLUDED.is_correct,
		              points_awarded = EXCLUDED.points_awarded
		RETURNING `+answerColumns,
		newID(), a.AttemptID, a.QuestionID, a.ChoiceID, a.TextAnswer, a.FileAnswer, a.IsCorrect, a.PointsAwarded,
	)
	return saved, errors.Wrap(err, "upserting answer")
}

func (repo assessmentRepository) QueryAnswers(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]assessment.Answer, error) {
	answers := []assessment.Answer{}
	if !validID(attemptID) {
		return answers, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &answers,
		`SELECT `+answerColumns+` FROM answers WHERE attempt_id = $1`, attemptID)
	return answers, errors.Wrap(err, "querying answers")
}

func (repo assessmentRepository) SetAnswerPoints(ctx context.Context, id string, points null.Float64, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `UPDATE answers SET points_awarded = $2 WHERE id = $1`, id, points)
	return errors.Wrap(err, "setting answer points")
}

func (repo assessmentRepository) CountQuestionAnswers(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.QuestionAnswerCount, error) {
	counts := []assessment.QuestionAnswerCount{}
	if !validID(assessmentID) {
		return counts, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &counts, `
		SELECT an.question_id, COUNT(*) AS total, COUNT(*) FILTER (WHERE an.is_correct) AS correct
		FROM answers an JOIN questions q ON q.id = an.question_id
		WHERE q.assessment_id = $1
		GROUP BY an.question_id`, assessmentID)
	return counts, errors.Wrap(err, "counting answers")
}

package inmemdb

import (
	"context"
	"sort"

	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/assessment"
)

// Assessments

func (db *DB) CreateAssessment(ctx context.Context, a assessment.Assessment, exec ...core.DBExecutor) (assessment.Assessment, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	a.ID = newID()
	db.assessments[a.ID] = a
	return a, nil
}

func (db *DB) GetAssessment(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (assessment.Assessment, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if a, ok := db.assessments[id]; ok && db.courses[a.CourseID].SchoolID == schoolID {
		return a, nil
	}
	return assessment.Assessment{}, assessment.ErrNotFound
}

func (db *DB) QueryAssessments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]assessment.Assessment, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	assessments := make([]assessment.Assessment, 0)
	for _, a := range db.assessments {
		if a.CourseID == courseID {
			assessments = append(assessments, a)
		}
	}
	sort.Slice(assessments, func(i, j int) bool {
		a, b := assessments[i], assessments[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return assessments, nil
}

func (db *DB) UpdateAssessment(ctx context.Context, a assessment.Assessment, exec ...core.DBExecutor) (assessment.Assessment, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.assessments[a.ID]
	if !ok {
		return assessment.Assessment{}, assessment.ErrNotFound
	}
	a.CourseID, a.CreatedAt = orig.CourseID, orig.CreatedAt
	db.assessments[a.ID] = a
	return a, nil
}

func (db *DB) DeleteAssessment(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.assessments[id]; !ok {
		return assessment.ErrNotFound
	}
	db.deleteAssessment(id)
	return nil
}

// Questions

func (db *DB) CreateQuestion(ctx context.Context, q assessment.Question, exec ...core.DBExecutor) (assessment.Question, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	q.ID = newID()
	db.questions[q.ID] = q
	return q, nil
}

func (db *DB) GetQuestion(ctx context.Context, assessmentID, id string, exec ...core.DBExecutor) (assessment.Question, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if q, ok := db.questions[id]; ok && q.AssessmentID == assessmentID {
		return q, nil
	}
	return assessment.Question{}, assessment.ErrQuestionNotFound
}

func (db *DB) QueryQuestions(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.Question, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	questions := make([]assessment.Question, 0)
	for _, q := range db.questions {
		if q.AssessmentID == assessmentID {
			questions = append(questions, q)
		}
	}
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].Order != questions[j].Order {
			return questions[i].Order < questions[j].Order
		}
		return questions[i].ID < questions[j].ID
	})
	return questions, nil
}

func (db *DB) UpdateQuestion(ctx context.Context, q assessment.Question, exec ...core.DBExecutor) (assessment.Question, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.questions[q.ID]
	if !ok {
		return assessment.Question{}, assessment.ErrQuestionNotFound
	}
	q.AssessmentID = orig.AssessmentID
	db.questions[q.ID] = q
	return q, nil
}

func (db *DB) DeleteQuestion(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.questions[id]; !ok {
		return assessment.ErrQuestionNotFound
	}
	db.deleteQuestion(id)
	return nil
}

// Choices

func (db *DB) CreateChoice(ctx context.Context, c assessment.Choice, exec ...core.DBExecutor) (assessment.Choice, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	c.ID = newID()
	db.choices[c.ID] = c
	return c, nil
}

func (db *DB) GetChoice(ctx context.Context, questionID, id string, exec ...core.DBExecutor) (assessment.Choice, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if c, ok := db.choices[id]; ok && c.QuestionID == questionID {
		return c, nil
	}
	return assessment.Choice{}, assessment.ErrChoiceNotFound
}

func (db *DB) QueryChoices(ctx context.Context, questionIDs []string, exec ...core.DBExecutor) ([]assessment.Choice, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	wanted := make(map[string]bool, len(questionIDs))
	for _, id := range questionIDs {
		wanted[id] = true
	}
	choices := make([]assessment.Choice, 0)
	for _, c := range db.choices {
		if wanted[c.QuestionID] {
			choices = append(choices, c)
		}
	}
	sort.Slice(choices, func(i, j int) bool {
		if choices[i].Order != choices[j].Order {
			return choices[i].Order < choices[j].Order
		}
		return choices[i].ID < choices[j].ID
	})
	return choices, nil
}

func (db *DB) UpdateChoice(ctx context.Context, c assessment.Choice, exec ...core.DBExecutor) (assessment.Choice, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.choices[c.ID]
	if !ok {
		return assessment.Choice{}, assessment.ErrChoiceNotFound
	}
	c.QuestionID = orig.QuestionID
	db.choices[c.ID] = c
	return c, nil
}

func (db *DB) DeleteChoice(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.choices[id]; !ok {
		return assessment.ErrChoiceNotFound
	}
	db.deleteChoice(id)
	return nil
}

// Attempts

func (db *DB) CreateAttempt(ctx context.Context, a assessment.Attempt, exec ...core.DBExecutor) (assessment.Attempt, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, other := range db.attempts {
		if other.AssessmentID == a.AssessmentID && other.StudentID == a.StudentID && other.AttemptNumber == a.AttemptNumber {
			return assessment.Attempt{}, assessment.ErrAttemptExists
		}
	}
	a.ID = newID()
	db.attempts[a.ID] = a
	return a, nil
}

func (db *DB) GetAttempt(ctx context.Context, assessmentID, id string, exec ...core.DBExecutor) (assessment.Attempt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if a, ok := db.attempts[id]; ok && a.AssessmentID == assessmentID {
		return a, nil
	}
	return assessment.Attempt{}, assessment.ErrAttemptNotFound
}

func (db *DB) QueryAttempts(ctx context.Context, assessmentID, studentID string, submittedOnly bool, exec ...core.DBExecutor) ([]assessment.Attempt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	attempts := make([]assessment.Attempt, 0)
	for _, a := range db.attempts {
		switch {
		case a.AssessmentID != assessmentID:
		case studentID != "" && a.StudentID != studentID:
		case submittedOnly && !a.IsSubmitted:
		default:
			attempts = append(attempts, a)
		}
	}
	sort.Slice(attempts, func(i, j int) bool {
		a, b := attempts[i], attempts[j]
		if !a.StartedAt.Equal(b.StartedAt) {
			return a.StartedAt.After(b.StartedAt)
		}
		return a.AttemptNumber > b.AttemptNumber
	})
	return attempts, nil
}

func (db *DB) CountAttempts(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var n int
	for _, a := range db.attempts {
		if a.AssessmentID == assessmentID && a.StudentID == studentID {
			n++
		}
	}
	return n, nil
}

func (db *DB) FinalizeAttempt(ctx context.Context, a assessment.Attempt, exec ...core.DBExecutor) (bool, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.attempts[a.ID]
	if !ok || orig.IsSubmitted {
		return false, nil
	}
	orig.IsSubmitted, orig.FinishedAt, orig.Score = true, a.FinishedAt, a.Score
	db.attempts[a.ID] = orig
	return true, nil
}

func (db *DB) SetAttemptScore(ctx context.Context, a assessment.Attempt, exec ...core.DBExecutor) (assessment.Attempt, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.attempts[a.ID]
	if !ok {
		return assessment.Attempt{}, assessment.ErrAttemptNotFound
	}
	orig.IsSubmitted, orig.FinishedAt, orig.Score = a.IsSubmitted, a.FinishedAt, a.Score
	db.attempts[a.ID] = orig
	return orig, nil
}

// Answers

func (db *DB) UpsertAnswer(ctx context.Context, a assessment.Answer, exec ...core.DBExecutor) (assessment.Answer, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for id, other := range db.answers {
		if other.AttemptID == a.AttemptID && other.QuestionID == a.QuestionID {
			a.ID = id
			db.answers[id] = a
			return a, nil
		}
	}
	a.ID = newID()
	db.answers[a.ID] = a
	return a, nil
}

func (db *DB) QueryAnswers(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]assessment.Answer, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	answers := make([]assessment.Answer, 0)
	for _, a := range db.answers {
		if a.AttemptID == attemptID {
			answers = append(answers, a)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
	return answers, nil
}

func (db *DB) SetAnswerPoints(ctx context.Context, id string, points null.Float64, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if a, ok := db.answers[id]; ok {
		a.PointsAwarded = points
		db.answers[id] = a
	}
	return nil
}

func (db *DB) CountQuestionAnswers(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]assessment.QuestionAnswerCount, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	byQuestion := make(map[string]*assessment.QuestionAnswerCount)
	for _, a := range db.answers {
		if db.questions[a.QuestionID].AssessmentID != assessmentID {
			continue
		}
		qc, ok := byQuestion[a.QuestionID]
		if !ok {
			qc = &assessment.QuestionAnswerCount{QuestionID: a.QuestionID}
			byQuestion[a.QuestionID] = qc
		}
		qc.Total++
		if a.IsCorrect {
			qc.Correct++
		}
	}
	counts := make([]assessment.QuestionAnswerCount, 0, len(byQuestion))
	for _, qc := range byQuestion {
		counts = append(counts, *qc)
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].QuestionID < counts[j].QuestionID })
	return counts, nil
}

package assessment

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/school"
)

// Assessment statuses
const (
	StatusPending = "pending"
	StatusActive  = "active"
	StatusClosed  = "closed"
)

// Assessment types
const (
	TypeQuiz       = "quiz"
	TypeApol       = "apol"
	TypeEssay      = "essay"
	TypeFileUpload = "file_upload"
	TypePractice   = "practice"
	TypeFinalExam  = "final_exam"
)

// Question types
const (
	QuestionMultipleChoice = "multiple_choice"
	QuestionTrueFalse      = "true_false"
	QuestionEssay          = "essay"
	QuestionFile           = "file"
)

// accepted formats of open_at / close_at
var dateTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02 15:04", "2006-01-02"}

type Assessment struct {
	ID              string      `json:"id"`
	CourseID        string      `json:"course_id"`
	SubjectID       null.String `json:"subject_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Type            string      `json:"type"`
	Weight          float64     `json:"weight"`
	AttemptsAllowed int         `json:"attempts_allowed"`
	TimeLimit       null.Int    `json:"time_limit"` // minutes
	OpenAt          null.Time   `json:"open_at"`
	CloseAt         null.Time   `json:"close_at"`
	CreatedAt       time.Time   `json:"created_at"`
}

// Status is pending before open_at, closed after close_at and active otherwise.
func (a Assessment) Status(now time.Time) string {
	switch {
	case a.OpenAt.Valid && now.Before(a.OpenAt.Time):
		return StatusPending
	case a.CloseAt.Valid && now.After(a.CloseAt.Time):
		return StatusClosed
	default:
		return StatusActive
	}
}

// TimeOver reports whether the time limit of a elapsed since startedAt.
func (a Assessment) TimeOver(startedAt, now time.Time) bool {
	if !a.TimeLimit.Valid || a.TimeLimit.Int <= 0 {
		return false
	}
	return now.Sub(startedAt).Minutes() > float64(a.TimeLimit.Int)
}

type Question struct {
	ID           string  `json:"id"`
	AssessmentID string  `json:"assessment_id"`
	Text         string  `json:"text"`
	Type         string  `json:"type"`
	Order        int     `json:"order"`
	Points       float64 `json:"points"`
}

// IsObjective reports whether q is graded automatically from its choices.
func (q Question) IsObjective() bool {
	return q.Type == QuestionMultipleChoice || q.Type == QuestionTrueFalse
}

type Choice struct {
	ID         string `json:"id"`
	QuestionID string `json:"question_id"`
	Text       string `json:"text"`
	IsCorrect  bool   `json:"is_correct"`
	Order      int    `json:"order"`
}

type Attempt struct {
	ID            string       `json:"id"`
	AssessmentID  string       `json:"assessment_id"`
	StudentID     string       `json:"student_id"`
	AttemptNumber int          `json:"attempt_number"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    null.Time    `json:"finished_at"`
	Score         null.Float64 `json:"score"`
	IsSubmitted   bool         `json:"is_submitted"`
}

type Answer struct {
	ID            string       `json:"id"`
	AttemptID     string       `json:"attempt_id"`
	QuestionID    string       `json:"question_id"`
	ChoiceID      null.String  `json:"choice_id"`
	TextAnswer    string       `json:"text_answer"`
	FileAnswer    string       `json:"file_answer"`
	IsCorrect     bool         `json:"is_correct"`
	PointsAwarded null.Float64 `json:"points_awarded"` // teacher grade of essay & file answers
}

// Views

// TakeChoice is a Choice as shown to the student taking an attempt.
type TakeChoice struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

type TakeQuestion struct {
	Question
	Choices []TakeChoice `json:"choices"`
}

type TakeView struct {
	Assessment       Assessment     `json:"assessment"`
	Attempt          Attempt        `json:"attempt"`
	Questions        []TakeQuestion `json:"questions"`
	RemainingSeconds *int           `json:"remaining_seconds"`
}

type QuestionDetail struct {
	Question
	Choices []Choice `json:"choices"`
}

type AnswerDetail struct {
	Answer
	Question Question `json:"question"`
	Choice   *Choice  `json:"choice"`
}

type Result struct {
	Assessment       Assessment     `json:"assessment"`
	Attempt          Attempt        `json:"attempt"`
	Answers          []AnswerDetail `json:"answers"`
	TotalPoints      float64        `json:"total_points"`
	CorrectObjective int            `json:"correct_objective"`
	TotalObjective   int            `json:"total_objective"`
	PercentCorrect   float64        `json:"percent_correct"`
}

type AttemptDetail struct {
	Attempt
	Student school.MemberDetail `json:"student"`
}

type GradeView struct {
	Attempt AttemptDetail  `json:"attempt"`
	Answers []AnswerDetail `json:"answers"`
}

type Detail struct {
	Assessment Assessment `json:"assessment"`
	Status     string     `json:"status"`
	IsEnrolled bool       `json:"is_enrolled"`
	Attempts   []Attempt  `json:"attempts"`
	CanStart   bool       `json:"can_start"`
	Reason     string     `json:"reason,omitempty"`
}

type SubjectAssessments struct {
	Subject     catalog.Subject `json:"subject"`
	Assessments []Assessment    `json:"assessments"`
}

// Groups splits the assessments of a course into course level ones and per subject ones.
type Groups struct {
	Course   []Assessment         `json:"course_assessments"`
	Subjects []SubjectAssessments `json:"subjects_with_assessments"`
}

// QuestionAnswerCount holds the number of answers, and correct ones, to a question.
type QuestionAnswerCount struct {
	QuestionID string `json:"question_id"`
	Total      int    `json:"total"`
	Correct    int    `json:"correct"`
}

type QuestionStats struct {
	Question       Question `json:"question"`
	TotalAnswers   int      `json:"total_answers"`
	CorrectAnswers int      `json:"correct_answers"`
	CorrectRate    float64  `json:"correct_rate"`
}

type Stats struct {
	Assessment    Assessment      `json:"assessment"`
	TotalAttempts int             `json:"total"`
	AverageScore  float64         `json:"avg_score"`
	Questions     []QuestionStats `json:"difficult_questions"`
}

// Inputs. Numeric and date fields are strings: malformed values fall back to defaults.

type AssessmentInput struct {
	Title           string `json:"title" form:"title" validate:"required"`
	Description     string `json:"description" form:"description"`
	Type            string `json:"type" form:"type" validate:"omitempty,oneof=quiz apol essay file_upload practice final_exam"`
	SubjectID       string `json:"subject" form:"subject"`
	Weight          string `json:"weight" form:"weight"`
	AttemptsAllowed string `json:"attempts_allowed" form:"attempts_allowed"`
	TimeLimit       string `json:"time_limit" form:"time_limit"`
	OpenAt          string `json:"open_at" form:"open_at"`
	CloseAt         string `json:"close_at" form:"close_at"`
}

func (ai *AssessmentInput) Validate(validate *validator.Validate) error {
	ai.Title = core.CleanString(ai.Title)
	ai.Description = core.CleanString(ai.Description)
	ai.Type = core.CleanString(ai.Type, true /* lower */)
	if ai.Type == "" {
		ai.Type = TypeQuiz
	}
	ai.SubjectID = core.CleanString(ai.SubjectID)
	if err := validate.Struct(ai); err != nil {
		return err
	}
	openAt, closeAt := parseDateTime(ai.OpenAt), parseDateTime(ai.CloseAt)
	if openAt.Valid && closeAt.Valid && closeAt.Time.Before(openAt.Time) {
		return core.NewValidationError(nil, core.FieldError{Field: "close_at", Error: "must be after open_at"})
	}
	return nil
}

type QuestionInput struct {
	Text   string `json:"text" form:"text" validate:"required"`
	Type   string `json:"type" form:"type" validate:"omitempty,oneof=multiple_choice true_false essay file"`
	Order  string `json:"order" form:"order"`
	Points string `json:"points" form:"points"`
}

func (qi *QuestionInput) Validate(validate *validator.Validate) error {
	qi.Text = core.CleanString(qi.Text)
	qi.Type = core.CleanString(qi.Type, true /* lower */)
	if qi.Type == "" {
		qi.Type = QuestionMultipleChoice
	}
	return validate.Struct(qi)
}

type ChoiceInput struct {
	Text      string `json:"text" form:"text" validate:"required"`
	IsCorrect bool   `json:"is_correct" form:"is_correct"`
	Order     string `json:"order" form:"order"`
}

func (ci *ChoiceInput) Validate(validate *validator.Validate) error {
	ci.Text = core.CleanString(ci.Text)
	return validate.Struct(ci)
}

// SubmittedAnswer is the raw answer to one question: a choice id or a text for
// objective and essay questions, an uploaded file path for file questions.
type SubmittedAnswer struct {
	Value    string
	FilePath string
}

// Submission maps question ids to their answers.
type Submission map[string]SubmittedAnswer

// Grades maps answer ids to the raw points a teacher gave them.
type Grades map[string]string

func parseDateTime(s string) null.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return null.Time{}
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return null.TimeFrom(t.UTC())
		}
	}
	return null.Time{}
}

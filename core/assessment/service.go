// Package assessment runs quizzes and exams: their questions and choices, the attempts of
// students, automatic scoring of objective questions, teacher grading and statistics.
package assessment

import (
	"context"
	"fmt"
	"net/mail"
	"sort"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/learning"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
)

var (
	// errors
	ErrNotFound         = core.NewNotFoundError("assessment")
	ErrQuestionNotFound = core.NewNotFoundError("question")
	ErrChoiceNotFound   = core.NewNotFoundError("choice")
	ErrAttemptNotFound  = core.NewNotFoundError("attempt")
	ErrAttemptSubmitted = errors.New("attempt already submitted")
	ErrTimeOver         = errors.New("attempt time limit exceeded")
	ErrNotSubmitted     = errors.New("attempt not submitted yet")
	ErrAttemptExists    = errors.New("attempt number already taken")

	nowFunc = time.Now
)

type (
	Repository interface {
		CreateAssessment(ctx context.Context, a Assessment, exec ...core.DBExecutor) (Assessment, error)
		// GetAssessment returns the assessment id of a course of schoolID.
		GetAssessment(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Assessment, error)
		// QueryAssessments returns the assessments of a course, newest first.
		QueryAssessments(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Assessment, error)
		UpdateAssessment(ctx context.Context, a Assessment, exec ...core.DBExecutor) (Assessment, error)
		DeleteAssessment(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		GetQuestion(ctx context.Context, assessmentID, id string, exec ...core.DBExecutor) (Question, error)
		// QueryQuestions returns the questions of an assessment ordered by order, then id.
		QueryQuestions(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]Question, error)
		UpdateQuestion(ctx context.Context, q Question, exec ...core.DBExecutor) (Question, error)
		DeleteQuestion(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateChoice(ctx context.Context, c Choice, exec ...core.DBExecutor) (Choice, error)
		GetChoice(ctx context.Context, questionID, id string, exec ...core.DBExecutor) (Choice, error)
		QueryChoices(ctx context.Context, questionIDs []string, exec ...core.DBExecutor) ([]Choice, error)
		UpdateChoice(ctx context.Context, c Choice, exec ...core.DBExecutor) (Choice, error)
		DeleteChoice(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)
		GetAttempt(ctx context.Context, assessmentID, id string, exec ...core.DBExecutor) (Attempt, error)
		// QueryAttempts returns the attempts of an assessment, of one student when studentID is not empty,
		// most recent first.
		QueryAttempts(ctx context.Context, assessmentID, studentID string, submittedOnly bool, exec ...core.DBExecutor) ([]Attempt, error)
		CountAttempts(ctx context.Context, assessmentID, studentID string, exec ...core.DBExecutor) (int, error)
		// FinalizeAttempt submits a if it is not submitted yet, reporting whether it did.
		FinalizeAttempt(ctx context.Context, a Attempt, exec ...core.DBExecutor) (bool, error)
		// SetAttemptScore overwrites the score of a submitted or graded attempt.
		SetAttemptScore(ctx context.Context, a Attempt, exec ...core.DBExecutor) (Attempt, error)

		UpsertAnswer(ctx context.Context, a Answer, exec ...core.DBExecutor) (Answer, error)
		QueryAnswers(ctx context.Context, attemptID string, exec ...core.DBExecutor) ([]Answer, error)
		SetAnswerPoints(ctx context.Context, id string, points null.Float64, exec ...core.DBExecutor) error
		CountQuestionAnswers(ctx context.Context, assessmentID string, exec ...core.DBExecutor) ([]QuestionAnswerCount, error)
	}

	Service struct {
		db          core.DBTransactor
		repo        Repository
		catalogSvc  *catalog.Service
		learningSvc *learning.Service
		schoolSvc   *school.Service
		profileSvc  *profile.Service
		mailSvc     core.EmailService
		logger      core.Logger
	}
)

func NewService(
	db core.DBTransactor,
	repo Repository,
	catalogSvc *catalog.Service,
	learningSvc *learning.Service,
	schoolSvc *school.Service,
	profileSvc *profile.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		db:          db,
		repo:        repo,
		catalogSvc:  catalogSvc,
		learningSvc: learningSvc,
		schoolSvc:   schoolSvc,
		profileSvc:  profileSvc,
		mailSvc:     mailSvc,
		logger:      logger,
	}
}

// Assessments

// applyInput copies ai into a. Malformed numbers and dates keep the current values of a.
func (svc *Service) applyInput(ctx context.Context, a *Assessment, ai AssessmentInput) error {
	a.Title = ai.Title
	a.Description = ai.Description
	a.Type = ai.Type

	a.SubjectID = null.String{}
	if ai.SubjectID != "" {
		if _, err := svc.catalogSvc.GetSubject(ctx, a.CourseID, ai.SubjectID); err == nil {
			a.SubjectID = null.StringFrom(ai.SubjectID)
		} else if !core.IsNotFound(err) {
			return errors.Wrap(err, "finding subject")
		}
	}

	if w := core.ParseFloat(ai.Weight, a.Weight); w >= 0 {
		a.Weight = core.Round(w, 2)
	}
	if n := core.ParseInt(ai.AttemptsAllowed, a.AttemptsAllowed); n >= 1 {
		a.AttemptsAllowed = n
	}
	switch n := core.ParseInt(ai.TimeLimit, -1); {
	case core.CleanString(ai.TimeLimit) == "":
		a.TimeLimit = null.Int{}
	case n > 0:
		a.TimeLimit = null.IntFrom(n)
	case n == 0:
		a.TimeLimit = null.Int{}
	}
	if core.CleanString(ai.OpenAt) == "" {
		a.OpenAt = null.Time{}
	} else if t := parseDateTime(ai.OpenAt); t.Valid {
		a.OpenAt = t
	}
	if core.CleanString(ai.CloseAt) == "" {
		a.CloseAt = null.Time{}
	} else if t := parseDateTime(ai.CloseAt); t.Valid {
		a.CloseAt = t
	}
	return nil
}

// CreateAssessment adds an assessment to c. ai must have been validated.
func (svc *Service) CreateAssessment(ctx context.Context, c catalog.Course, ai AssessmentInput) (Assessment, error) {
	a := Assessment{
		CourseID:        c.ID,
		Weight:          10,
		AttemptsAllowed: 1,
		CreatedAt:       nowFunc().UTC(),
	}
	if err := svc.applyInput(ctx, &a, ai); err != nil {
		return Assessment{}, err
	}
	return svc.repo.CreateAssessment(ctx, a)
}

func (svc *Service) GetAssessment(ctx context.Context, schoolID, id string) (Assessment, error) {
	return svc.repo.GetAssessment(ctx, schoolID, id)
}

func (svc *Service) UpdateAssessment(ctx context.Context, a Assessment, ai AssessmentInput) (Assessment, error) {
	if err := svc.applyInput(ctx, &a, ai); err != nil {
		return Assessment{}, err
	}
	return svc.repo.UpdateAssessment(ctx, a)
}

// DeleteAssessment deletes a with its questions and attempts.
func (svc *Service) DeleteAssessment(ctx context.Context, a Assessment) error {
	return svc.repo.DeleteAssessment(ctx, a.ID)
}

// QueryAssessments returns the assessments of c grouped by subject, newest first.
func (svc *Service) QueryAssessments(ctx context.Context, c catalog.Course) (Groups, error) {
	assessments, err := svc.repo.QueryAssessments(ctx, c.ID)
	if err != nil {
		return Groups{}, errors.Wrap(err, "querying assessments")
	}
	subjects, err := svc.catalogSvc.QuerySubjects(ctx, c.ID)
	if err != nil {
		return Groups{}, errors.Wrap(err, "querying subjects")
	}

	groups := Groups{Course: []Assessment{}, Subjects: []SubjectAssessments{}}
	bySubject := make(map[string][]Assessment)
	for _, a := range assessments {
		if !a.SubjectID.Valid {
			groups.Course = append(groups.Course, a)
			continue
		}
		bySubject[a.SubjectID.String] = append(bySubject[a.SubjectID.String], a)
	}
	for _, s := range subjects {
		if as, ok := bySubject[s.ID]; ok {
			groups.Subjects = append(groups.Subjects, SubjectAssessments{Subject: s, Assessments: as})
		}
	}
	return groups, nil
}

// GetDetail describes a for the requester, with their own attempts when they are a student.
func (svc *Service) GetDetail(ctx context.Context, ac access.Context, a Assessment) (Detail, error) {
	d := Detail{Assessment: a, Status: a.Status(nowFunc()), Attempts: []Attempt{}}
	var err error
	if d.IsEnrolled, err = svc.learningSvc.IsEnrolled(ctx, a.CourseID, ac.Member.ID); err != nil {
		return Detail{}, err
	}
	if ac.IsStudent() {
		if d.Attempts, err = svc.repo.QueryAttempts(ctx, a.ID, ac.Member.ID, false); err != nil {
			return Detail{}, errors.Wrap(err, "querying attempts")
		}
	}
	decision, err := svc.CanStart(ctx, ac, a)
	if err != nil {
		return Detail{}, err
	}
	d.CanStart, d.Reason = decision.Allowed, string(decision.Reason)
	return d, nil
}

// Questions & Choices

func (svc *Service) GetQuestion(ctx context.Context, a Assessment, id string) (Question, error) {
	return svc.repo.GetQuestion(ctx, a.ID, id)
}

// Questions returns the questions of a with their choices, ordered by order.
func (svc *Service) Questions(ctx context.Context, a Assessment, exec ...core.DBExecutor) ([]QuestionDetail, error) {
	questions, err := svc.repo.QueryQuestions(ctx, a.ID, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying questions")
	}
	ids := make([]string, len(questions))
	for i, q := range questions {
		ids[i] = q.ID
	}
	var choices []Choice
	if len(ids) > 0 {
		if choices, err = svc.repo.QueryChoices(ctx, ids, exec...); err != nil {
			return nil, errors.Wrap(err, "querying choices")
		}
	}
	byQuestion := make(map[string][]Choice)
	for _, c := range choices {
		byQuestion[c.QuestionID] = append(byQuestion[c.QuestionID], c)
	}
	details := make([]QuestionDetail, len(questions))
	for i, q := range questions {
		details[i] = QuestionDetail{Question: q, Choices: byQuestion[q.ID]}
		if details[i].Choices == nil {
			details[i].Choices = []Choice{}
		}
	}
	return details, nil
}

// CreateQuestion adds a question to a; a missing order puts it last and missing points are 1.
func (svc *Service) CreateQuestion(ctx context.Context, a Assessment, qi QuestionInput) (Question, error) {
	questions, err := svc.repo.QueryQuestions(ctx, a.ID)
	if err != nil {
		return Question{}, errors.Wrap(err, "querying questions")
	}
	points := core.ParseFloat(qi.Points, 1)
	if points < 0 {
		points = 1
	}
	return svc.repo.CreateQuestion(ctx, Question{
		AssessmentID: a.ID,
		Text:         qi.Text,
		Type:         qi.Type,
		Order:        core.ParseInt(qi.Order, len(questions)+1),
		Points:       core.Round(points, 2),
	})
}

// UpdateQuestion edits q; malformed order or points keep their previous values.
func (svc *Service) UpdateQuestion(ctx context.Context, q Question, qi QuestionInput) (Question, error) {
	q.Text = qi.Text
	q.Type = qi.Type
	q.Order = core.ParseInt(qi.Order, q.Order)
	if points := core.ParseFloat(qi.Points, q.Points); points >= 0 {
		q.Points = core.Round(points, 2)
	}
	return svc.repo.UpdateQuestion(ctx, q)
}

func (svc *Service) DeleteQuestion(ctx context.Context, q Question) error {
	return svc.repo.DeleteQuestion(ctx, q.ID)
}

func (svc *Service) GetChoice(ctx context.Context, q Question, id string) (Choice, error) {
	return svc.repo.GetChoice(ctx, q.ID, id)
}

func (svc *Service) CreateChoice(ctx context.Context, q Question, ci ChoiceInput) (Choice, error) {
	choices, err := svc.repo.QueryChoices(ctx, []string{q.ID})
	if err != nil {
		return Choice{}, errors.Wrap(err, "querying choices")
	}
	return svc.repo.CreateChoice(ctx, Choice{
		QuestionID: q.ID,
		Text:       ci.Text,
		IsCorrect:  ci.IsCorrect,
		Order:      core.ParseInt(ci.Order, len(choices)+1),
	})
}

func (svc *Service) UpdateChoice(ctx context.Context, c Choice, ci ChoiceInput) (Choice, error) {
	c.Text = ci.Text
	c.IsCorrect = ci.IsCorrect
	c.Order = core.ParseInt(ci.Order, c.Order)
	return svc.repo.UpdateChoice(ctx, c)
}

func (svc *Service) DeleteChoice(ctx context.Context, c Choice) error {
	return svc.repo.DeleteChoice(ctx, c.ID)
}

// Attempts

// CanStart applies, in order: the requester is a student, is enrolled in the course, has
// attempts left, and the assessment window is open.
func (svc *Service) CanStart(ctx context.Context, ac access.Context, a Assessment, exec ...core.DBExecutor) (access.Decision, error) {
	if d := access.RequireStudent(ac); !d.Allowed {
		return d, nil
	}
	enrolled, err := svc.learningSvc.IsEnrolled(ctx, a.CourseID, ac.Member.ID)
	if err != nil {
		return access.Decision{}, err
	}
	if !enrolled {
		return access.Deny(access.NotEnrolled), nil
	}
	count, err := svc.repo.CountAttempts(ctx, a.ID, ac.Member.ID, exec...)
	if err != nil {
		return access.Decision{}, errors.Wrap(err, "counting attempts")
	}
	if count >= a.AttemptsAllowed {
		return access.Deny(access.AttemptLimit), nil
	}
	switch a.Status(nowFunc()) {
	case StatusPending:
		return access.Deny(access.NotOpen), nil
	case StatusClosed:
		return access.Deny(access.Closed), nil
	}
	return access.Allow(), nil
}

// Start creates the next attempt of the requester when CanStart allows it.
func (svc *Service) Start(ctx context.Context, ac access.Context, a Assessment) (Attempt, access.Decision, error) {
	var (
		att      Attempt
		decision access.Decision
	)
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		if decision, err = svc.CanStart(ctx, ac, a, exec); err != nil || !decision.Allowed {
			return err
		}
		count, err := svc.repo.CountAttempts(ctx, a.ID, ac.Member.ID, exec)
		if err != nil {
			return errors.Wrap(err, "counting attempts")
		}
		att, err = svc.repo.CreateAttempt(ctx, Attempt{
			AssessmentID:  a.ID,
			StudentID:     ac.Member.ID,
			AttemptNumber: count + 1,
			StartedAt:     nowFunc().UTC(),
		}, exec)
		return errors.Wrap(err, "creating attempt")
	})
	if errors.Cause(err) == ErrAttemptExists {
		// a concurrent Start took the same attempt number
		return Attempt{}, access.Deny(access.AttemptLimit), nil
	}
	if err != nil {
		return Attempt{}, access.Decision{}, err
	}
	return att, decision, nil
}

// GetAttempt returns the attempt id of a. Students only see their own attempts.
func (svc *Service) GetAttempt(ctx context.Context, ac access.Context, a Assessment, id string) (Attempt, error) {
	att, err := svc.repo.GetAttempt(ctx, a.ID, id)
	if err != nil {
		return Attempt{}, err
	}
	if !ac.IsStaff() && att.StudentID != ac.Member.ID {
		return Attempt{}, ErrAttemptNotFound
	}
	return att, nil
}

// autoFinalize submits att with the answers it already has. A missing score becomes 0.
func (svc *Service) autoFinalize(ctx context.Context, att Attempt) (Attempt, error) {
	att.IsSubmitted = true
	att.FinishedAt = null.TimeFrom(nowFunc().UTC())
	if !att.Score.Valid {
		att.Score = null.Float64From(0)
	}
	if _, err := svc.repo.FinalizeAttempt(ctx, att); err != nil {
		return Attempt{}, errors.Wrap(err, "finalizing attempt")
	}
	return att, nil
}

// Take returns the questions of an in progress attempt. Submitted attempts, and attempts
// whose time limit elapsed, are reported as finished: the caller goes to the result.
func (svc *Service) Take(ctx context.Context, a Assessment, att Attempt) (tv TakeView, finished bool, err error) {
	if att.IsSubmitted {
		return TakeView{}, true, nil
	}
	now := nowFunc()
	if a.TimeOver(att.StartedAt, now) {
		_, err = svc.autoFinalize(ctx, att)
		return TakeView{}, err == nil, err
	}

	details, err := svc.Questions(ctx, a)
	if err != nil {
		return TakeView{}, false, err
	}
	tv = TakeView{Assessment: a, Attempt: att, Questions: make([]TakeQuestion, len(details))}
	for i, qd := range details {
		choices := make([]TakeChoice, len(qd.Choices))
		for j, c := range qd.Choices {
			choices[j] = TakeChoice{ID: c.ID, Text: c.Text}
		}
		tv.Questions[i] = TakeQuestion{Question: qd.Question, Choices: choices}
	}
	if a.TimeLimit.Valid && a.TimeLimit.Int > 0 {
		deadline := att.StartedAt.Add(time.Duration(a.TimeLimit.Int) * time.Minute)
		remaining := int(deadline.Sub(now).Seconds())
		tv.RemainingSeconds = &remaining
	}
	return tv, false, nil
}

// gradeAnswer builds the answer to q from sub and returns the points it earns.
func gradeAnswer(att Attempt, qd QuestionDetail, sub SubmittedAnswer) (Answer, float64) {
	ans := Answer{AttemptID: att.ID, QuestionID: qd.ID}
	switch qd.Type {
	case QuestionMultipleChoice, QuestionTrueFalse:
		value := core.CleanString(sub.Value)
		for _, c := range qd.Choices {
			if c.ID != value {
				continue
			}
			ans.ChoiceID = null.StringFrom(c.ID)
			ans.IsCorrect = c.IsCorrect
			if c.IsCorrect {
				return ans, qd.Points
			}
		}
	case QuestionEssay:
		ans.TextAnswer = sub.Value
	case QuestionFile:
		ans.FileAnswer = sub.FilePath
	}
	return ans, 0
}

// Submit stores one answer per question of a and submits att with the sum of the points of the
// correct objective answers. A concurrent submission of the same attempt gets ErrAttemptSubmitted.
func (svc *Service) Submit(ctx context.Context, a Assessment, att Attempt, sub Submission) (Attempt, error) {
	if att.IsSubmitted {
		return att, ErrAttemptSubmitted
	}
	if a.TimeOver(att.StartedAt, nowFunc()) {
		if _, err := svc.autoFinalize(ctx, att); err != nil {
			return Attempt{}, err
		}
		return att, ErrTimeOver
	}

	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		details, err := svc.Questions(ctx, a, exec)
		if err != nil {
			return err
		}
		var score float64
		for _, qd := range details {
			ans, points := gradeAnswer(att, qd, sub[qd.ID])
			if _, err = svc.repo.UpsertAnswer(ctx, ans, exec); err != nil {
				return errors.Wrap(err, "saving answer")
			}
			score += points
		}

		att.IsSubmitted = true
		att.FinishedAt = null.TimeFrom(nowFunc().UTC())
		att.Score = null.Float64From(core.Round(score, 2))
		ok, err := svc.repo.FinalizeAttempt(ctx, att, exec)
		if err != nil {
			return errors.Wrap(err, "finalizing attempt")
		}
		if !ok {
			return ErrAttemptSubmitted
		}
		return nil
	})
	if err != nil {
		return Attempt{}, err
	}
	return att, nil
}

func (svc *Service) answerDetails(ctx context.Context, a Assessment, att Attempt, exec ...core.DBExecutor) ([]QuestionDetail, []AnswerDetail, error) {
	details, err := svc.Questions(ctx, a, exec...)
	if err != nil {
		return nil, nil, err
	}
	answers, err := svc.repo.QueryAnswers(ctx, att.ID, exec...)
	if err != nil {
		return nil, nil, errors.Wrap(err, "querying answers")
	}
	questions := make(map[string]QuestionDetail, len(details))
	for _, qd := range details {
		questions[qd.ID] = qd
	}
	ads := make([]AnswerDetail, 0, len(answers))
	for _, ans := range answers {
		qd, ok := questions[ans.QuestionID]
		if !ok {
			continue
		}
		ad := AnswerDetail{Answer: ans, Question: qd.Question}
		for _, c := range qd.Choices {
			if ans.ChoiceID.Valid && c.ID == ans.ChoiceID.String {
				c := c
				ad.Choice = &c
			}
		}
		ads = append(ads, ad)
	}
	sort.SliceStable(ads, func(i, j int) bool { return ads[i].Question.Order < ads[j].Question.Order })
	return details, ads, nil
}

// Result reports the answers of att. PercentCorrect only counts objective questions.
func (svc *Service) Result(ctx context.Context, a Assessment, att Attempt) (Result, error) {
	details, answers, err := svc.answerDetails(ctx, a, att)
	if err != nil {
		return Result{}, err
	}
	r := Result{Assessment: a, Attempt: att, Answers: answers}
	for _, qd := range details {
		r.TotalPoints += qd.Points
		if qd.IsObjective() {
			r.TotalObjective++
		}
	}
	for _, ad := range answers {
		if ad.Question.IsObjective() && ad.IsCorrect {
			r.CorrectObjective++
		}
	}
	r.TotalPoints = core.Round(r.TotalPoints, 2)
	r.PercentCorrect = core.Percent(r.CorrectObjective, r.TotalObjective, 2)
	return r, nil
}

func (svc *Service) attemptDetail(ctx context.Context, att Attempt) (AttemptDetail, error) {
	md, err := svc.schoolSvc.GetMemberDetail(ctx, att.StudentID)
	if err != nil {
		return AttemptDetail{}, errors.Wrap(err, "finding student")
	}
	return AttemptDetail{Attempt: att, Student: md}, nil
}

// Submissions lists every attempt of a, most recent first.
func (svc *Service) Submissions(ctx context.Context, a Assessment) ([]AttemptDetail, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, a.ID, "", false)
	if err != nil {
		return nil, errors.Wrap(err, "querying attempts")
	}
	details := make([]AttemptDetail, len(attempts))
	for i, att := range attempts {
		if details[i], err = svc.attemptDetail(ctx, att); err != nil {
			return nil, err
		}
	}
	return details, nil
}

func (svc *Service) GradeView(ctx context.Context, a Assessment, att Attempt) (GradeView, error) {
	ad, err := svc.attemptDetail(ctx, att)
	if err != nil {
		return GradeView{}, err
	}
	_, answers, err := svc.answerDetails(ctx, a, att)
	if err != nil {
		return GradeView{}, err
	}
	return GradeView{Attempt: ad, Answers: answers}, nil
}

// Grade recomputes the score of att: the points of its correct objective answers plus the
// teacher grades of its essay and file answers. A missing or malformed grade keeps the
// previous one. Grading can be repeated; the attempt stays submitted.
func (svc *Service) Grade(ctx context.Context, a Assessment, att Attempt, grades Grades) (Attempt, error) {
	if !att.IsSubmitted {
		return Attempt{}, core.NewValidationError(ErrNotSubmitted)
	}
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		_, answers, err := svc.answerDetails(ctx, a, att, exec)
		if err != nil {
			return err
		}
		var score float64
		for _, ad := range answers {
			if ad.Question.IsObjective() {
				if ad.IsCorrect {
					score += ad.Question.Points
				}
				continue
			}
			prev := 0.0
			if ad.PointsAwarded.Valid {
				prev = ad.PointsAwarded.Float64
			}
			points := core.Round(core.ParseFloat(grades[ad.ID], prev), 2)
			if !ad.PointsAwarded.Valid || points != prev {
				if err = svc.repo.SetAnswerPoints(ctx, ad.ID, null.Float64From(points), exec); err != nil {
					return errors.Wrap(err, "saving grade")
				}
			}
			score += points
		}

		att.Score = null.Float64From(core.Round(score, 2))
		att.IsSubmitted = true
		if !att.FinishedAt.Valid {
			att.FinishedAt = null.TimeFrom(nowFunc().UTC())
		}
		att, err = svc.repo.SetAttemptScore(ctx, att, exec)
		return errors.Wrap(err, "saving score")
	})
	if err != nil {
		return Attempt{}, err
	}
	svc.notifyGraded(ctx, a, att)
	return att, nil
}

// notifyGraded emails the student of att when their profile accepts course updates.
func (svc *Service) notifyGraded(ctx context.Context, a Assessment, att Attempt) {
	md, err := svc.schoolSvc.GetMemberDetail(ctx, att.StudentID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("finding graded student: %v", err), err)
		return
	}
	if md.Email == "" || !svc.profileSvc.WantsCourseUpdates(ctx, md.UserID) {
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: md.Name, Address: md.Email}},
		Subject:      "Your attempt at " + a.Title + " was graded",
		TemplateName: "attempt_graded",
		TemplateData: map[string]interface{}{
			"Name":            md.Name,
			"AssessmentTitle": a.Title,
			"AttemptNumber":   att.AttemptNumber,
			"Score":           fmt.Sprintf("%.2f", att.Score.Float64),
		},
	})
}

// Stats averages the scores of the submitted attempts of a and ranks its questions from the
// lowest correct rate, ties broken by question order then id.
func (svc *Service) Stats(ctx context.Context, a Assessment) (Stats, error) {
	attempts, err := svc.repo.QueryAttempts(ctx, a.ID, "", true)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying attempts")
	}
	st := Stats{Assessment: a, TotalAttempts: len(attempts), Questions: []QuestionStats{}}
	var (
		sum    float64
		scored int
	)
	for _, att := range attempts {
		if att.Score.Valid {
			sum += att.Score.Float64
			scored++
		}
	}
	if scored > 0 {
		st.AverageScore = core.Round(sum/float64(scored), 2)
	}

	questions, err := svc.repo.QueryQuestions(ctx, a.ID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "querying questions")
	}
	counts, err := svc.repo.CountQuestionAnswers(ctx, a.ID)
	if err != nil {
		return Stats{}, errors.Wrap(err, "counting answers")
	}
	byQuestion := make(map[string]QuestionAnswerCount, len(counts))
	for _, c := range counts {
		byQuestion[c.QuestionID] = c
	}
	for _, q := range questions {
		c := byQuestion[q.ID]
		st.Questions = append(st.Questions, QuestionStats{
			Question:       q,
			TotalAnswers:   c.Total,
			CorrectAnswers: c.Correct,
			CorrectRate:    core.Percent(c.Correct, c.Total, 2),
		})
	}
	sort.SliceStable(st.Questions, func(i, j int) bool {
		qi, qj := st.Questions[i], st.Questions[j]
		if qi.CorrectRate != qj.CorrectRate {
			return qi.CorrectRate < qj.CorrectRate
		}
		if qi.Question.Order != qj.Question.Order {
			return qi.Question.Order < qj.Question.Order
		}
		return qi.Question.ID < qj.Question.ID
	})
	return st, nil
}

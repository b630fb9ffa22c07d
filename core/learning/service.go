// Package learning tracks enrollments and lesson progress. Course and subject progress are
// never stored: they are derived from the Progress rows of published lessons on every read.
package learning

import (
	"context"
	"fmt"
	"math/rand"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
)

var (
	// errors
	ErrEnrollmentNotFound  = core.NewNotFoundError("enrollment")
	ErrProgressNotFound    = core.NewNotFoundError("progress")
	ErrCertificateNotFound = core.NewNotFoundError("certificate")
)

type (
	Repository interface {
		CreateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)
		GetEnrollment(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (Enrollment, error)
		QueryEnrollments(ctx context.Context, filter EnrollmentFilter, exec ...core.DBExecutor) ([]Enrollment, error)
		CountEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)
		CountSchoolEnrollments(ctx context.Context, schoolID, status string, exec ...core.DBExecutor) (int, error)
		UpdateEnrollment(ctx context.Context, e Enrollment, exec ...core.DBExecutor) (Enrollment, error)

		// UpsertProgress inserts p or, when the (student, lesson) row exists, overwrites its completion
		// and access fields. started_at is kept.
		UpsertProgress(ctx context.Context, p Progress, exec ...core.DBExecutor) (Progress, error)
		GetProgress(ctx context.Context, studentID, lessonID string, exec ...core.DBExecutor) (Progress, error)
		// CountCompleted counts the completed lessons of studentID among lessonIDs.
		CountCompleted(ctx context.Context, studentID string, lessonIDs []string, exec ...core.DBExecutor) (int, error)
		// AverageProgress is the mean percentage of the Progress rows of a course, of one student
		// when studentID is not empty.
		AverageProgress(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (float64, error)
		MostCompletedLesson(ctx context.Context, courseID string, exec ...core.DBExecutor) (*LessonCompletions, error)

		CreateCertificate(ctx context.Context, c Certificate, exec ...core.DBExecutor) (Certificate, error)
		GetCertificate(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (Certificate, error)
		QueryCertificates(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]Certificate, error)
	}

	Service struct {
		repo       Repository
		catalogSvc *catalog.Service
		schoolSvc  *school.Service
		profileSvc *profile.Service
		mailSvc    core.EmailService
		logger     core.Logger
	}
)

func NewService(
	repo Repository,
	catalogSvc *catalog.Service,
	schoolSvc *school.Service,
	profileSvc *profile.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		repo:       repo,
		catalogSvc: catalogSvc,
		schoolSvc:  schoolSvc,
		profileSvc: profileSvc,
		mailSvc:    mailSvc,
		logger:     logger,
	}
}

// Enrollments

// CanEnroll denies inactive courses and full ones. Already enrolled members are always allowed.
func (svc *Service) CanEnroll(ctx context.Context, ac access.Context, c catalog.Course) (access.Decision, error) {
	if _, err := svc.repo.GetEnrollment(ctx, c.ID, ac.Member.ID); err == nil {
		return access.Allow(), nil
	} else if !core.IsNotFound(err) {
		return access.Decision{}, errors.Wrap(err, "finding enrollment")
	}
	if c.Status != catalog.CourseActive {
		return access.Deny(access.CourseInactive), nil
	}
	if c.MaxStudents.Valid {
		count, err := svc.repo.CountEnrollments(ctx, c.ID)
		if err != nil {
			return access.Decision{}, errors.Wrap(err, "counting enrollments")
		}
		if count >= c.MaxStudents.Int {
			return access.Deny(access.CourseFull), nil
		}
	}
	return access.Allow(), nil
}

// Enroll returns the enrollment of the member in c, creating it when missing.
// Callers check CanEnroll first.
func (svc *Service) Enroll(ctx context.Context, ac access.Context, c catalog.Course) (e Enrollment, created bool, err error) {
	e, err = svc.repo.GetEnrollment(ctx, c.ID, ac.Member.ID)
	if err == nil {
		return e, false, nil
	}
	if !core.IsNotFound(err) {
		return Enrollment{}, false, errors.Wrap(err, "finding enrollment")
	}
	e, err = svc.repo.CreateEnrollment(ctx, Enrollment{
		CourseID:   c.ID,
		StudentID:  ac.Member.ID,
		Status:     EnrollmentActive,
		EnrolledAt: time.Now().UTC(),
	})
	if err != nil {
		return Enrollment{}, false, errors.Wrap(err, "creating enrollment")
	}
	return e, true, nil
}

// IsEnrolled reports whether studentID is enrolled in courseID.
func (svc *Service) IsEnrolled(ctx context.Context, courseID, studentID string) (bool, error) {
	_, err := svc.repo.GetEnrollment(ctx, courseID, studentID)
	if err == nil {
		return true, nil
	}
	if core.IsNotFound(err) {
		return false, nil
	}
	return false, errors.Wrap(err, "finding enrollment")
}

// RequireEnrollment allows staff and the students enrolled in courseID.
func (svc *Service) RequireEnrollment(ctx context.Context, ac access.Context, courseID string) (access.Decision, error) {
	if ac.IsStaff() {
		return access.Allow(), nil
	}
	enrolled, err := svc.IsEnrolled(ctx, courseID, ac.Member.ID)
	if err != nil {
		return access.Decision{}, err
	}
	if !enrolled {
		return access.Deny(access.NotEnrolled), nil
	}
	return access.Allow(), nil
}

func (svc *Service) CountSchoolEnrollments(ctx context.Context, schoolID, status string) (int, error) {
	return svc.repo.CountSchoolEnrollments(ctx, schoolID, status)
}

// MyCourses returns the courses studentID is enrolled in, with their progress.
func (svc *Service) MyCourses(ctx context.Context, schoolID, studentID string) ([]EnrolledCourse, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, EnrollmentFilter{SchoolID: schoolID, StudentID: studentID})
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	courses := make([]EnrolledCourse, 0, len(enrollments))
	for _, e := range enrollments {
		c, err := svc.catalogSvc.GetCourse(ctx, schoolID, e.CourseID)
		if err != nil {
			return nil, errors.Wrap(err, "finding course")
		}
		p, err := svc.CourseProgress(ctx, studentID, c.ID)
		if err != nil {
			return nil, err
		}
		courses = append(courses, EnrolledCourse{Course: c, Enrollment: e, Progress: p})
	}
	return courses, nil
}

// Progress

// MarkLessonComplete upserts the (student, lesson) progress row as completed. Calling it
// again refreshes last_accessed only.
func (svc *Service) MarkLessonComplete(ctx context.Context, studentID, courseID, lessonID string) (Progress, error) {
	now := time.Now().UTC()
	p, err := svc.repo.GetProgress(ctx, studentID, lessonID)
	switch {
	case core.IsNotFound(err):
		p = Progress{StudentID: studentID, CourseID: courseID, LessonID: lessonID, StartedAt: now}
	case err != nil:
		return Progress{}, errors.Wrap(err, "finding progress")
	}
	if !p.IsCompleted || !p.CompletedAt.Valid {
		p.CompletedAt = null.TimeFrom(now)
	}
	p.IsCompleted = true
	p.Percentage = 100
	p.LastAccessed = now
	return svc.repo.UpsertProgress(ctx, p)
}

// setLessonIncomplete resets the (student, lesson) progress row, creating it if needed.
func (svc *Service) setLessonIncomplete(ctx context.Context, studentID, courseID, lessonID string) (Progress, error) {
	now := time.Now().UTC()
	p, err := svc.repo.GetProgress(ctx, studentID, lessonID)
	switch {
	case core.IsNotFound(err):
		p = Progress{StudentID: studentID, CourseID: courseID, LessonID: lessonID, StartedAt: now}
	case err != nil:
		return Progress{}, errors.Wrap(err, "finding progress")
	}
	p.IsCompleted = false
	p.Percentage = 0
	p.CompletedAt = null.Time{}
	p.LastAccessed = now
	return svc.repo.UpsertProgress(ctx, p)
}

// SetLessonCompletion toggles the completion of a lesson for the requester.
func (svc *Service) SetLessonCompletion(ctx context.Context, ac access.Context, c catalog.Course, l catalog.Lesson, isCompleted bool) (CompletionResult, error) {
	var err error
	if isCompleted {
		_, err = svc.MarkLessonComplete(ctx, ac.Member.ID, c.ID, l.ID)
	} else {
		_, err = svc.setLessonIncomplete(ctx, ac.Member.ID, c.ID, l.ID)
	}
	if err != nil {
		return CompletionResult{}, err
	}
	p, err := svc.CourseProgress(ctx, ac.Member.ID, c.ID)
	if err != nil {
		return CompletionResult{}, err
	}
	if isCompleted {
		svc.completionFollowUp(ctx, ac, c, p)
	}
	return CompletionResult{Success: true, IsCompleted: isCompleted, CourseProgress: p}, nil
}

func (svc *Service) progress(ctx context.Context, studentID string, lessonIDs []string) (float64, error) {
	if len(lessonIDs) == 0 {
		return 0, nil
	}
	completed, err := svc.repo.CountCompleted(ctx, studentID, lessonIDs)
	if err != nil {
		return 0, errors.Wrap(err, "counting completed lessons")
	}
	return core.Percent(completed, len(lessonIDs), 1), nil
}

// CourseProgress is the share of the distinct published lessons of the course completed by studentID.
func (svc *Service) CourseProgress(ctx context.Context, studentID, courseID string) (float64, error) {
	ids, err := svc.catalogSvc.PublishedLessonIDs(ctx, courseID, "")
	if err != nil {
		return 0, err
	}
	return svc.progress(ctx, studentID, ids)
}

// SubjectProgress is the share of the published lessons of the subject completed by studentID.
func (svc *Service) SubjectProgress(ctx context.Context, studentID, subjectID string) (float64, error) {
	ids, err := svc.catalogSvc.PublishedLessonIDs(ctx, "", subjectID)
	if err != nil {
		return 0, err
	}
	return svc.progress(ctx, studentID, ids)
}

// AverageProgress is the mean percentage of every Progress row of the course.
func (svc *Service) AverageProgress(ctx context.Context, courseID string) (float64, error) {
	avg, err := svc.repo.AverageProgress(ctx, courseID, "")
	if err != nil {
		return 0, errors.Wrap(err, "computing average progress")
	}
	return core.Round(avg, 1), nil
}

// StudentsProgress lists the enrolled students of c with their average lesson progress.
func (svc *Service) StudentsProgress(ctx context.Context, c catalog.Course) ([]StudentProgress, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, EnrollmentFilter{CourseID: c.ID})
	if err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	students := make([]StudentProgress, 0, len(enrollments))
	for _, e := range enrollments {
		md, err := svc.schoolSvc.GetMemberDetail(ctx, e.StudentID)
		if err != nil {
			return nil, errors.Wrap(err, "finding student")
		}
		avg, err := svc.repo.AverageProgress(ctx, c.ID, e.StudentID)
		if err != nil {
			return nil, errors.Wrap(err, "computing student progress")
		}
		students = append(students, StudentProgress{Student: md, Progress: core.Round(avg, 1)})
	}
	return students, nil
}

// ViewLesson guards and builds a lesson page. Draft lessons are hidden from non staff members,
// students must be enrolled and viewing a lesson completes it for them.
func (svc *Service) ViewLesson(ctx context.Context, ac access.Context, c catalog.Course, l catalog.Lesson) (LessonView, access.Decision, error) {
	if !l.IsPublished() && !ac.IsStaff() {
		return LessonView{}, access.Deny(access.DraftContent), nil
	}
	subject, err := svc.catalogSvc.LessonSubject(ctx, c, l)
	if err != nil {
		return LessonView{}, access.Decision{}, err
	}
	if d, err := svc.RequireEnrollment(ctx, ac, c.ID); err != nil || !d.Allowed {
		return LessonView{}, d, err
	}

	if ac.IsStudent() {
		if _, err = svc.MarkLessonComplete(ctx, ac.Member.ID, c.ID, l.ID); err != nil {
			return LessonView{}, access.Decision{}, err
		}
	}

	lv := LessonView{Lesson: l, Subject: subject}
	if lv.Videos, err = svc.catalogSvc.LessonVideos(ctx, l.ID); err != nil {
		return LessonView{}, access.Decision{}, err
	}
	if options, _ := l.QuizOptions(); len(options) > 0 {
		rand.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
		lv.QuizOptions = options
	}
	lv.SubjectLessons, err = svc.catalogSvc.QueryLessons(ctx, catalog.LessonFilter{SubjectID: subject.ID, PublishedOnly: !ac.IsStaff()})
	if err != nil {
		return LessonView{}, access.Decision{}, err
	}
	for i, sl := range lv.SubjectLessons {
		if sl.ID != l.ID {
			continue
		}
		if i > 0 {
			lv.PreviousID = lv.SubjectLessons[i-1].ID
		}
		if i < len(lv.SubjectLessons)-1 {
			lv.NextID = lv.SubjectLessons[i+1].ID
		}
	}
	if lv.CourseDuration, err = svc.catalogSvc.CourseDuration(ctx, c, !ac.IsStaff()); err != nil {
		return LessonView{}, access.Decision{}, err
	}
	if lv.CourseProgress, err = svc.CourseProgress(ctx, ac.Member.ID, c.ID); err != nil {
		return LessonView{}, access.Decision{}, err
	}
	if lv.SubjectProgress, err = svc.SubjectProgress(ctx, ac.Member.ID, subject.ID); err != nil {
		return LessonView{}, access.Decision{}, err
	}
	if lv.AverageProgress, err = svc.AverageProgress(ctx, c.ID); err != nil {
		return LessonView{}, access.Decision{}, err
	}
	if ac.IsStudent() {
		svc.completionFollowUp(ctx, ac, c, lv.CourseProgress)
	}
	return lv, access.Allow(), nil
}

// AnswerQuizLesson checks answer against the correct option of a quiz lesson.
func AnswerQuizLesson(l catalog.Lesson, answer string) (correct bool, correctAnswer string) {
	_, correctAnswer = l.QuizOptions()
	return correctAnswer != "" && strings.TrimSpace(answer) == correctAnswer, correctAnswer
}

// Completion

// completionFollowUp completes the enrollment of a student reaching 100% and issues the
// course certificate. Failures are logged: the triggering operation already succeeded.
func (svc *Service) completionFollowUp(ctx context.Context, ac access.Context, c catalog.Course, progress float64) {
	if progress < 100 {
		return
	}
	e, err := svc.repo.GetEnrollment(ctx, c.ID, ac.Member.ID)
	if err != nil {
		if !core.IsNotFound(err) {
			svc.logger.Error(fmt.Sprintf("finding enrollment: %v", err), err)
		}
		return
	}
	if e.Status != EnrollmentCompleted {
		e.Status = EnrollmentCompleted
		e.CompletedAt = null.TimeFrom(time.Now().UTC())
		if _, err = svc.repo.UpdateEnrollment(ctx, e); err != nil {
			svc.logger.Error(fmt.Sprintf("completing enrollment: %v", err), err)
			return
		}
	}
	if !c.CertificateAvailable {
		return
	}
	if _, err = svc.IssueCertificate(ctx, ac, c); err != nil {
		svc.logger.Error(fmt.Sprintf("issuing certificate: %v", err), err)
	}
}

// NewCertificateCode returns "CERT-" followed by 12 uppercase hex digits.
func NewCertificateCode() string {
	hex := strings.ReplaceAll(uuid.New().String(), "-", "")
	return "CERT-" + strings.ToUpper(hex[:12])
}

// IssueCertificate returns the certificate of the member for c, issuing and emailing it once.
func (svc *Service) IssueCertificate(ctx context.Context, ac access.Context, c catalog.Course) (Certificate, error) {
	cert, err := svc.repo.GetCertificate(ctx, ac.Member.ID, c.ID)
	if err == nil {
		return cert, nil
	}
	if !core.IsNotFound(err) {
		return Certificate{}, errors.Wrap(err, "finding certificate")
	}

	var instructorName string
	if c.InstructorID.Valid {
		if md, err := svc.schoolSvc.GetMemberDetail(ctx, c.InstructorID.String); err == nil {
			instructorName = md.Name
		}
	}
	now := time.Now().UTC()
	cert, err = svc.repo.CreateCertificate(ctx, Certificate{
		Code:           NewCertificateCode(),
		StudentID:      ac.Member.ID,
		CourseID:       c.ID,
		StudentName:    ac.User.DisplayName(),
		CourseTitle:    c.Title,
		InstructorName: instructorName,
		CompletionDate: now.Truncate(24 * time.Hour),
		IssuedAt:       now,
	})
	if err != nil {
		return Certificate{}, errors.Wrap(err, "creating certificate")
	}

	if ac.User.Email != "" && svc.profileSvc.WantsCourseUpdates(ctx, ac.User.ID) {
		svc.mailSvc.SendMessages(&core.EmailMessage{
			To:           []mail.Address{{Name: ac.User.DisplayName(), Address: ac.User.Email}},
			Subject:      "Your certificate for " + c.Title,
			TemplateName: "certificate_issued",
			TemplateData: map[string]interface{}{
				"Name":        ac.User.DisplayName(),
				"CourseTitle": c.Title,
				"Code":        cert.Code,
				"SchoolName":  ac.School.Name,
			},
		})
	}
	return cert, nil
}

func (svc *Service) Certificates(ctx context.Context, studentID string) ([]Certificate, error) {
	return svc.repo.QueryCertificates(ctx, studentID)
}

// Analytics

func (svc *Service) CourseAnalytics(ctx context.Context, c catalog.Course) (CourseAnalytics, error) {
	enrollments, err := svc.repo.QueryEnrollments(ctx, EnrollmentFilter{CourseID: c.ID})
	if err != nil {
		return CourseAnalytics{}, errors.Wrap(err, "querying enrollments")
	}
	ca := CourseAnalytics{TotalStudents: len(enrollments)}
	for _, e := range enrollments {
		if e.Status == EnrollmentCompleted {
			ca.CompletedStudents++
		}
	}
	ca.CompletionRate = core.Percent(ca.CompletedStudents, ca.TotalStudents, 1)
	if ca.AverageProgress, err = svc.AverageProgress(ctx, c.ID); err != nil {
		return CourseAnalytics{}, err
	}

	subjects, err := svc.catalogSvc.QuerySubjects(ctx, c.ID)
	if err != nil {
		return CourseAnalytics{}, errors.Wrap(err, "querying subjects")
	}
	ca.TotalSubjects = len(subjects)
	if ca.TotalDuration, err = svc.catalogSvc.CourseDuration(ctx, c, false); err != nil {
		return CourseAnalytics{}, err
	}
	ca.TotalLessons = ca.TotalDuration.Lessons
	if ca.MostViewedLesson, err = svc.repo.MostCompletedLesson(ctx, c.ID); err != nil {
		return CourseAnalytics{}, errors.Wrap(err, "finding most viewed lesson")
	}
	return ca, nil
}

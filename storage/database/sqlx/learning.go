package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/learning"
)

const (
	enrollmentColumns  = `e.id, e.course_id, e.student_id, e.status, e.enrolled_at, e.completed_at`
	progressColumns    = `id, student_id, course_id, lesson_id, is_completed, percentage, started_at, completed_at, last_accessed`
	certificateColumns = `id, code, student_id, course_id, student_name, course_title, instructor_name, completion_date, issued_at`
)

type learningRepository struct {
	repository
}

var _ learning.Repository = (*learningRepository)(nil) // interface compliance check

func NewLearningRepository(exec core.DBExecutor) *learningRepository {
	return &learningRepository{repository{exec: exec}}
}

// Enrollments

func (repo learningRepository) CreateEnrollment(ctx context.Context, e learning.Enrollment, exec ...core.DBExecutor) (learning.Enrollment, error) {
	e.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO enrollments (id, course_id, student_id, status, enrolled_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.CourseID, e.StudentID, e.Status, e.EnrolledAt.UTC(), e.CompletedAt,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			// enrolled concurrently
			return repo.GetEnrollment(ctx, e.CourseID, e.StudentID, exec...)
		}
		return learning.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return e, nil
}

func (repo learningRepository) GetEnrollment(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (learning.Enrollment, error) {
	if !validID(courseID) || !validID(studentID) {
		return learning.Enrollment{}, learning.ErrEnrollmentNotFound
	}
	var e learning.Enrollment
	err := sqlx.GetContext(ctx, repo.getExec(exec), &e,
		`SELECT `+enrollmentColumns+` FROM enrollments e WHERE e.course_id = $1 AND e.student_id = $2`, courseID, studentID)
	if err != nil {
		return learning.Enrollment{}, trapNoRowsErr(err, learning.ErrEnrollmentNotFound, "finding enrollment")
	}
	return e, nil
}

func (repo learningRepository) QueryEnrollments(ctx context.Context, filter learning.EnrollmentFilter, exec ...core.DBExecutor) ([]learning.Enrollment, error) {
	enrollments := []learning.Enrollment{}
	var (
		where []string
		args  []interface{}
	)
	for _, f := range []struct {
		clause, id string
	}{
		{"c.school_id = ?", filter.SchoolID},
		{"e.course_id = ?", filter.CourseID},
		{"e.student_id = ?", filter.StudentID},
	} {
		if f.id == "" {
			continue
		}
		if !validID(f.id) {
			return enrollments, nil
		}
		where = append(where, f.clause)
		args = append(args, f.id)
	}
	if filter.Status != "" {
		where = append(where, "e.status = ?")
		args = append(args, filter.Status)
	}

	q := `SELECT ` + enrollmentColumns + ` FROM enrollments e JOIN courses c ON c.id = e.course_id`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY e.enrolled_at DESC, e.id"

	exe := repo.getExec(exec)
	err := sqlx.SelectContext(ctx, exe, &enrollments, exe.Rebind(q), args...)
	return enrollments, errors.Wrap(err, "querying enrollments")
}

func (repo learningRepository) CountEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	if !validID(courseID) {
		return 0, nil
	}
	var n int
	err := sqlx.GetContext(ctx, repo.getExec(exec), &n, `SELECT COUNT(*) FROM enrollments WHERE course_id = $1`, courseID)
	return n, errors.Wrap(err, "counting enrollments")
}

func (repo learningRepository) CountSchoolEnrollments(ctx context.Context, schoolID, status string, exec ...core.DBExecutor) (int, error) {
	if !validID(schoolID) {
		return 0, nil
	}
	q := `SELECT COUNT(*) FROM enrollments e JOIN courses c ON c.id = e.course_id WHERE c.school_id = $1`
	args := []interface{}{schoolID}
	if status != "" {
		q += ` AND e.status = $2`
		args = append(args, status)
	}
	var n int
	err := sqlx.GetContext(ctx, repo.getExec(exec), &n, q, args...)
	return n, errors.Wrap(err, "counting school enrollments")
}

func (repo learningRepository) UpdateEnrollment(ctx context.Context, e learning.Enrollment, exec ...core.DBExecutor) (learning.Enrollment, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx,
		`UPDATE enrollments SET status = $2, completed_at = $3 WHERE id = $1`, e.ID, e.Status, e.CompletedAt))
	if err != nil {
		return learning.Enrollment{}, errors.Wrap(err, "updating enrollment")
	}
	if n == 0 {
		return learning.Enrollment{}, learning.ErrEnrollmentNotFound
	}
	return e, nil
}

// Progress

func (repo learningRepository) UpsertProgress(ctx context.Context, p learning.Progress, exec ...core.DBExecutor) (learning.Progress, error) {
	var saved learning.Progress
	err := sqlx.GetContext(ctx, repo.getExec(exec), &saved, `
		INSERT INTO progress (`+progressColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (student_id, lesson_id)
		DO UPDATE SET is_completed = EXCLUDED.is_completed, percentage = EXCLUDED.percentage,
		              completed_at = EXCLUDED.completed_at, last_accessed = EXCLUDED.last_accessed
		RETURNING `+progressColumns,
		newID(), p.StudentID, p.CourseID, p.LessonID, p.IsCompleted, p.Percentage, p.StartedAt.UTC(),
		p.CompletedAt, p.LastAccessed.UTC(),
	)
	return saved, errors.Wrap(err, "upserting progress")
}

func (repo learningRepository) GetProgress(ctx context.Context, studentID, lessonID string, exec ...core.DBExecutor) (learning.Progress, error) {
	if !validID(studentID) || !validID(lessonID) {
		return learning.Progress{}, learning.ErrProgressNotFound
	}
	var p learning.Progress
	err := sqlx.GetContext(ctx, repo.getExec(exec), &p,
		`SELECT `+progressColumns+` FROM progress WHERE student_id = $1 AND lesson_id = $2`, studentID, lessonID)
	if err != nil {
		return learning.Progress{}, trapNoRowsErr(err, learning.ErrProgressNotFound, "finding progress")
	}
	return p, nil
}

func (repo learningRepository) CountCompleted(ctx context.Context, studentID string, lessonIDs []string, exec ...core.DBExecutor) (int, error) {
	if !validID(studentID) || len(lessonIDs) == 0 {
		return 0, nil
	}
	exe := repo.getExec(exec)
	q, args, err := in(exe,
		`SELECT COUNT(*) FROM progress WHERE student_id = ? AND is_completed = true AND lesson_id IN (?)`,
		studentID, lessonIDs)
	if err != nil {
		return 0, errors.Wrap(err, "building completed query")
	}
	var n int
	err = sqlx.GetContext(ctx, exe, &n, q, args...)
	return n, errors.Wrap(err, "counting completed lessons")
}

func (repo learningRepository) AverageProgress(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (float64, error) {
	if !validID(courseID) || (studentID != "" && !validID(studentID)) {
		return 0, nil
	}
	q := `SELECT COALESCE(AVG(percentage), 0) FROM progress WHERE course_id = $1`
	args := []interface{}{courseID}
	if studentID != "" {
		q += ` AND student_id = $2`
		args = append(args, studentID)
	}
	var avg float64
	err := sqlx.GetContext(ctx, repo.getExec(exec), &avg, q, args...)
	return avg, errors.Wrap(err, "averaging progress")
}

func (repo learningRepository) MostCompletedLesson(ctx context.Context, courseID string, exec ...core.DBExecutor) (*learning.LessonCompletions, error) {
	if !validID(courseID) {
		return nil, nil
	}
	var lc learning.LessonCompletions
	err := sqlx.GetContext(ctx, repo.getExec(exec), &lc, `
		SELECT p.lesson_id, l.title, COUNT(*) AS total
		FROM progress p JOIN lessons l ON l.id = p.lesson_id
		WHERE p.course_id = $1 AND p.is_completed = true
		GROUP BY p.lesson_id, l.title
		ORDER BY total DESC, l.title
		LIMIT 1`, courseID)
	if err != nil {
		if err = trapNoRowsErr(err, nil, "finding most completed lesson"); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return &lc, nil
}

// Certificates

func (repo learningRepository) CreateCertificate(ctx context.Context, c learning.Certificate, exec ...core.DBExecutor) (learning.Certificate, error) {
	c.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO certificates (`+certificateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.Code, c.StudentID, c.CourseID, c.StudentName, c.CourseTitle, c.InstructorName,
		c.CompletionDate.UTC(), c.IssuedAt.UTC(),
	)
	if err != nil {
		if constraint, ok := uniqueViolation(err); ok && !strings.Contains(constraint, "code") {
			// issued concurrently
			return repo.GetCertificate(ctx, c.StudentID, c.CourseID, exec...)
		}
		return learning.Certificate{}, errors.Wrap(err, "inserting certificate")
	}
	return c, nil
}

func (repo learningRepository) GetCertificate(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (learning.Certificate, error) {
	if !validID(studentID) || !validID(courseID) {
		return learning.Certificate{}, learning.ErrCertificateNotFound
	}
	var c learning.Certificate
	err := sqlx.GetContext(ctx, repo.getExec(exec), &c,
		`SELECT `+certificateColumns+` FROM certificates WHERE student_id = $1 AND course_id = $2`, studentID, courseID)
	if err != nil {
		return learning.Certificate{}, trapNoRowsErr(err, learning.ErrCertificateNotFound, "finding certificate")
	}
	return c, nil
}

func (repo learningRepository) QueryCertificates(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]learning.Certificate, error) {
	certificates := []learning.Certificate{}
	if !validID(studentID) {
		return certificates, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &certificates,
		`SELECT `+certificateColumns+` FROM certificates WHERE student_id = $1 ORDER BY issued_at DESC`, studentID)
	return certificates, errors.Wrap(err, "querying certificates")
}

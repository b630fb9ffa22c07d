package inmemdb

import (
	"context"
	"sort"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/learning"
)

// Enrollments

func (db *DB) CreateEnrollment(ctx context.Context, e learning.Enrollment, exec ...core.DBExecutor) (learning.Enrollment, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, other := range db.enrollments {
		if other.CourseID == e.CourseID && other.StudentID == e.StudentID {
			return other, nil
		}
	}
	e.ID = newID()
	db.enrollments[e.ID] = e
	return e, nil
}

func (db *DB) GetEnrollment(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (learning.Enrollment, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, e := range db.enrollments {
		if e.CourseID == courseID && e.StudentID == studentID {
			return e, nil
		}
	}
	return learning.Enrollment{}, learning.ErrEnrollmentNotFound
}

func (db *DB) QueryEnrollments(ctx context.Context, filter learning.EnrollmentFilter, exec ...core.DBExecutor) ([]learning.Enrollment, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	enrollments := make([]learning.Enrollment, 0)
	for _, e := range db.enrollments {
		switch {
		case filter.SchoolID != "" && db.courses[e.CourseID].SchoolID != filter.SchoolID:
		case filter.CourseID != "" && e.CourseID != filter.CourseID:
		case filter.StudentID != "" && e.StudentID != filter.StudentID:
		case filter.Status != "" && e.Status != filter.Status:
		default:
			enrollments = append(enrollments, e)
		}
	}
	sort.Slice(enrollments, func(i, j int) bool {
		a, b := enrollments[i], enrollments[j]
		if !a.EnrolledAt.Equal(b.EnrolledAt) {
			return a.EnrolledAt.After(b.EnrolledAt)
		}
		return a.ID < b.ID
	})
	return enrollments, nil
}

// CountEnrollments also serves catalog.EnrollmentCounter.
func (db *DB) CountEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var n int
	for _, e := range db.enrollments {
		if e.CourseID == courseID {
			n++
		}
	}
	return n, nil
}

func (db *DB) CountSchoolEnrollments(ctx context.Context, schoolID, status string, exec ...core.DBExecutor) (int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var n int
	for _, e := range db.enrollments {
		if db.courses[e.CourseID].SchoolID == schoolID && (status == "" || e.Status == status) {
			n++
		}
	}
	return n, nil
}

func (db *DB) UpdateEnrollment(ctx context.Context, e learning.Enrollment, exec ...core.DBExecutor) (learning.Enrollment, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.enrollments[e.ID]
	if !ok {
		return learning.Enrollment{}, learning.ErrEnrollmentNotFound
	}
	orig.Status, orig.CompletedAt = e.Status, e.CompletedAt
	db.enrollments[e.ID] = orig
	return orig, nil
}

// Progress

func (db *DB) UpsertProgress(ctx context.Context, p learning.Progress, exec ...core.DBExecutor) (learning.Progress, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for id, other := range db.progress {
		if other.StudentID == p.StudentID && other.LessonID == p.LessonID {
			other.IsCompleted, other.Percentage = p.IsCompleted, p.Percentage
			other.CompletedAt, other.LastAccessed = p.CompletedAt, p.LastAccessed
			db.progress[id] = other
			return other, nil
		}
	}
	p.ID = newID()
	db.progress[p.ID] = p
	return p, nil
}

func (db *DB) GetProgress(ctx context.Context, studentID, lessonID string, exec ...core.DBExecutor) (learning.Progress, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, p := range db.progress {
		if p.StudentID == studentID && p.LessonID == lessonID {
			return p, nil
		}
	}
	return learning.Progress{}, learning.ErrProgressNotFound
}

func (db *DB) CountCompleted(ctx context.Context, studentID string, lessonIDs []string, exec ...core.DBExecutor) (int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	wanted := make(map[string]bool, len(lessonIDs))
	for _, id := range lessonIDs {
		wanted[id] = true
	}
	var n int
	for _, p := range db.progress {
		if p.StudentID == studentID && p.IsCompleted && wanted[p.LessonID] {
			n++
		}
	}
	return n, nil
}

func (db *DB) AverageProgress(ctx context.Context, courseID, studentID string, exec ...core.DBExecutor) (float64, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var sum, n int
	for _, p := range db.progress {
		if p.CourseID == courseID && (studentID == "" || p.StudentID == studentID) {
			sum += p.Percentage
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

func (db *DB) MostCompletedLesson(ctx context.Context, courseID string, exec ...core.DBExecutor) (*learning.LessonCompletions, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	counts := make(map[string]int)
	for _, p := range db.progress {
		if p.CourseID == courseID && p.IsCompleted {
			counts[p.LessonID]++
		}
	}
	var best *learning.LessonCompletions
	for lessonID, total := range counts {
		title := db.lessons[lessonID].Title
		if best == nil || total > best.Total || (total == best.Total && title < best.Title) {
			best = &learning.LessonCompletions{LessonID: lessonID, Title: title, Total: total}
		}
	}
	return best, nil
}

// Certificates

func (db *DB) CreateCertificate(ctx context.Context, c learning.Certificate, exec ...core.DBExecutor) (learning.Certificate, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, other := range db.certificates {
		if other.StudentID == c.StudentID && other.CourseID == c.CourseID {
			return other, nil
		}
	}
	c.ID = newID()
	db.certificates[c.ID] = c
	return c, nil
}

func (db *DB) GetCertificate(ctx context.Context, studentID, courseID string, exec ...core.DBExecutor) (learning.Certificate, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, c := range db.certificates {
		if c.StudentID == studentID && c.CourseID == courseID {
			return c, nil
		}
	}
	return learning.Certificate{}, learning.ErrCertificateNotFound
}

func (db *DB) QueryCertificates(ctx context.Context, studentID string, exec ...core.DBExecutor) ([]learning.Certificate, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	certificates := make([]learning.Certificate, 0)
	for _, c := range db.certificates {
		if c.StudentID == studentID {
			certificates = append(certificates, c)
		}
	}
	sort.Slice(certificates, func(i, j int) bool { return certificates[i].IssuedAt.After(certificates[j].IssuedAt) })
	return certificates, nil
}

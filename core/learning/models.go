package learning

import (
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/school"
)

// Enrollment statuses
const (
	EnrollmentActive    = "active"
	EnrollmentCompleted = "completed"
)

type Enrollment struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	StudentID   string    `json:"student_id"`
	Status      string    `json:"status"`
	EnrolledAt  time.Time `json:"enrolled_at"`
	CompletedAt null.Time `json:"completed_at"`
}

// Progress is the completion record of one student against one lesson.
type Progress struct {
	ID           string    `json:"id"`
	StudentID    string    `json:"student_id"`
	CourseID     string    `json:"course_id"`
	LessonID     string    `json:"lesson_id"`
	IsCompleted  bool      `json:"is_completed"`
	Percentage   int       `json:"percentage"`
	StartedAt    time.Time `json:"started_at"`
	CompletedAt  null.Time `json:"completed_at"`
	LastAccessed time.Time `json:"last_accessed"`
}

type Certificate struct {
	ID             string    `json:"id"`
	Code           string    `json:"code"`
	StudentID      string    `json:"student_id"`
	CourseID       string    `json:"course_id"`
	StudentName    string    `json:"student_name"`
	CourseTitle    string    `json:"course_title"`
	InstructorName string    `json:"instructor_name"`
	CompletionDate time.Time `json:"completion_date"`
	IssuedAt       time.Time `json:"issued_at"`
}

// CompletionResult answers a lesson completion toggle.
type CompletionResult struct {
	Success        bool    `json:"success"`
	IsCompleted    bool    `json:"is_completed"`
	CourseProgress float64 `json:"course_progress"`
}

// EnrolledCourse is a course of the student with their progress in it.
type EnrolledCourse struct {
	Course     catalog.Course `json:"course"`
	Enrollment Enrollment     `json:"enrollment"`
	Progress   float64        `json:"progress"`
}

// LessonView is everything a lesson page shows.
type LessonView struct {
	Lesson          catalog.Lesson        `json:"lesson"`
	Subject         catalog.Subject       `json:"subject"`
	Videos          []catalog.LessonVideo `json:"videos"`
	QuizOptions     []string              `json:"quiz_options,omitempty"`
	SubjectLessons  []catalog.Lesson      `json:"subject_lessons"`
	PreviousID      string                `json:"previous_lesson_id,omitempty"`
	NextID          string                `json:"next_lesson_id,omitempty"`
	CourseDuration  catalog.Duration      `json:"course_duration"`
	CourseProgress  float64               `json:"course_progress"`
	SubjectProgress float64               `json:"subject_progress"`
	AverageProgress float64               `json:"average_progress"`
}

// LessonCompletions is the number of students who completed a lesson.
type LessonCompletions struct {
	LessonID string `json:"lesson_id"`
	Title    string `json:"title"`
	Total    int    `json:"total"`
}

type CourseAnalytics struct {
	TotalStudents     int                `json:"total_students"`
	CompletedStudents int                `json:"completed_students"`
	AverageProgress   float64            `json:"avg_progress"`
	CompletionRate    float64            `json:"completion_rate"`
	TotalSubjects     int                `json:"total_subjects"`
	TotalLessons      int                `json:"total_lessons"`
	TotalDuration     catalog.Duration   `json:"total_duration"`
	MostViewedLesson  *LessonCompletions `json:"most_viewed_lesson"`
}

// StudentProgress is the average lesson progress of one enrolled student.
type StudentProgress struct {
	Student  school.MemberDetail `json:"student"`
	Progress float64             `json:"progress"`
}

type EnrollmentFilter struct {
	SchoolID  string
	CourseID  string
	StudentID string
	Status    string
}

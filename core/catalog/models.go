package catalog

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
)

// Course statuses
const (
	CourseDraft    = "draft"
	CourseActive   = "active"
	CourseArchived = "archived"
)

// Course levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

// Subject & Lesson statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Lesson content types
const (
	ContentVideo = "video"
	ContentText  = "text"
	ContentFile  = "file"
	ContentQuiz  = "quiz"
)

// default lesson durations (minutes) by content type
var defaultDurations = map[string]float64{
	ContentVideo: 30,
	ContentText:  5,
	ContentQuiz:  3,
	ContentFile:  2,
}

type Category struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Slug         string    `json:"slug"`
	Description  string    `json:"description"`
	Icon         string    `json:"icon"`
	Color        string    `json:"color"`
	CreatedAt    time.Time `json:"created_at"`
	CoursesCount int       `json:"courses_count"` // courses of the current school, set on listing
}

type Course struct {
	ID                   string      `json:"id"`
	SchoolID             string      `json:"school_id"`
	Title                string      `json:"title"`
	Slug                 string      `json:"slug"`
	Description          string      `json:"description"`
	ShortDescription     string      `json:"short_description"`
	InstructorID         null.String `json:"instructor_id"`
	CategoryID           null.String `json:"category_id"`
	Status               string      `json:"status"`
	Level                string      `json:"level"`
	DurationHours        float64     `json:"duration_hours"`
	Price                float64     `json:"price"`
	MaxStudents          null.Int    `json:"max_students"`
	VideoIntro           string      `json:"video_intro"`
	Requirements         string      `json:"requirements"`
	Objectives           string      `json:"objectives"`
	IsFeatured           bool        `json:"is_featured"`
	CertificateAvailable bool        `json:"certificate_available"`
	ViewsCount           int         `json:"views_count"`
	AverageRating        float64     `json:"average_rating"`
	PublishedAt          null.Time   `json:"published_at"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

func (c Course) IsFree() bool      { return c.Price == 0 }
func (c Course) IsPublished() bool { return c.Status == CourseActive }

func (c Course) MarshalJSON() ([]byte, error) {
	type course Course
	return json.Marshal(struct {
		course
		IsFree      bool `json:"is_free"`
		IsPublished bool `json:"is_published"`
	}{course(c), c.IsFree(), c.IsPublished()})
}

type Subject struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"course_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Order       int       `json:"order"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s Subject) IsPublished() bool { return s.Status == StatusPublished }

type Lesson struct {
	ID          string    `json:"id"`
	SchoolID    string    `json:"school_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	ContentType string    `json:"content_type"`
	Content     string    `json:"content"`
	VideoURL    string    `json:"video_url"`
	FilePath    string    `json:"file_path"`
	Duration    float64   `json:"duration"` // minutes
	Order       int       `json:"order"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (l Lesson) IsPublished() bool { return l.Status == StatusPublished }

// EffectiveDuration is the sum of the lesson videos for video lessons having any,
// the stored duration otherwise.
func (l Lesson) EffectiveDuration(videos []LessonVideo) float64 {
	if l.ContentType != ContentVideo || len(videos) == 0 {
		return l.Duration
	}
	var total float64
	for _, v := range videos {
		if v.LessonID == l.ID {
			total += v.Duration
		}
	}
	return total
}

// QuizOptions splits the content of a quiz lesson into its comma separated options,
// the first one being the correct answer.
func (l Lesson) QuizOptions() (options []string, correct string) {
	if l.ContentType != ContentQuiz {
		return nil, ""
	}
	for _, opt := range strings.Split(l.Content, ",") {
		if opt = strings.TrimSpace(opt); opt != "" {
			options = append(options, opt)
		}
	}
	if len(options) > 0 {
		correct = options[0]
	}
	return options, correct
}

type LessonVideo struct {
	ID       string  `json:"id"`
	LessonID string  `json:"lesson_id"`
	Title    string  `json:"title"`
	URL      string  `json:"url"`
	Duration float64 `json:"duration"` // minutes
	Order    int     `json:"order"`
}

type Review struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	StudentID string    `json:"student_id"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Duration is a total amount of lesson minutes.
type Duration struct {
	Minutes   float64 `json:"minutes"`
	Hours     int     `json:"hours"`
	Remaining int     `json:"remaining"`
	Formatted string  `json:"formatted"`
	Lessons   int     `json:"lessons"`
}

func NewDuration(minutes float64, lessons int) Duration {
	h := int(minutes) / 60
	m := int(minutes) % 60
	formatted := fmt.Sprintf("%dmin", m)
	if h > 0 {
		formatted = fmt.Sprintf("%dh %dmin", h, m)
	}
	return Duration{Minutes: minutes, Hours: h, Remaining: m, Formatted: formatted, Lessons: lessons}
}

// EstimateDuration returns the submitted duration when it is a positive number,
// the default duration of contentType otherwise.
func EstimateDuration(contentType, duration string) float64 {
	if d := core.ParseFloat(duration, 0); d > 0 {
		return d
	}
	return defaultDurations[contentType]
}

// Inputs. Numeric fields are strings: malformed values fall back to defaults.

type NewCategory struct {
	Name        string `json:"name" form:"name" validate:"required"`
	Description string `json:"description" form:"description"`
	Icon        string `json:"icon" form:"icon"`
	Color       string `json:"color" form:"color" validate:"omitempty,hexcolor_"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Description = core.CleanString(nc.Description)
	nc.Icon = core.CleanString(nc.Icon)
	nc.Color = core.CleanString(nc.Color)
	return validate.Struct(nc)
}

type CourseInput struct {
	Title                string `json:"title" form:"title" validate:"required"`
	Description          string `json:"description" form:"description" validate:"required"`
	ShortDescription     string `json:"short_description" form:"short_description"`
	CategoryID           string `json:"category_id" form:"category_id" validate:"required"`
	Status               string `json:"status" form:"status" validate:"omitempty,oneof=draft active archived"`
	Level                string `json:"level" form:"level" validate:"omitempty,oneof=beginner intermediate advanced"`
	Price                string `json:"price" form:"price"`
	DurationHours        string `json:"duration_hours" form:"duration_hours"`
	MaxStudents          string `json:"max_students" form:"max_students"`
	VideoIntro           string `json:"video_intro" form:"video_intro"`
	Requirements         string `json:"requirements" form:"requirements"`
	Objectives           string `json:"objectives" form:"objectives"`
	IsFeatured           bool   `json:"is_featured" form:"is_featured"`
	CertificateAvailable *bool  `json:"certificate_available" form:"certificate_available"`
}

func (ci *CourseInput) Validate(validate *validator.Validate) error {
	ci.Title = core.CleanString(ci.Title)
	ci.Description = core.CleanString(ci.Description)
	ci.ShortDescription = core.CleanString(ci.ShortDescription)
	ci.CategoryID = core.CleanString(ci.CategoryID)
	ci.Status = core.CleanString(ci.Status, true /* lower */)
	ci.Level = core.CleanString(ci.Level, true /* lower */)
	return validate.Struct(ci)
}

type SubjectInput struct {
	Title       string `json:"title" form:"title" validate:"required"`
	Description string `json:"description" form:"description"`
	Order       string `json:"order" form:"order"`
	Status      string `json:"status" form:"status" validate:"omitempty,oneof=draft published"`
}

func (si *SubjectInput) Validate(validate *validator.Validate) error {
	si.Title = core.CleanString(si.Title)
	si.Description = core.CleanString(si.Description)
	si.Status = core.CleanString(si.Status, true /* lower */)
	return validate.Struct(si)
}

type LessonInput struct {
	Title       string       `json:"title" form:"title" validate:"required"`
	Description string       `json:"description" form:"description"`
	ContentType string       `json:"content_type" form:"content_type" validate:"omitempty,oneof=video text file quiz"`
	Content     string       `json:"content" form:"content"`
	VideoURL    string       `json:"video_url" form:"video_url" validate:"omitempty,url"`
	FilePath    string       `json:"-" form:"-"`
	Duration    string       `json:"duration" form:"duration"`
	Order       string       `json:"order" form:"order"`
	Status      string       `json:"status" form:"status" validate:"omitempty,oneof=draft published"`
	Videos      []VideoInput `json:"videos" form:"-" validate:"dive"`
}

func (li *LessonInput) Validate(validate *validator.Validate) error {
	li.Title = core.CleanString(li.Title)
	li.Description = core.CleanString(li.Description)
	li.ContentType = core.CleanString(li.ContentType, true /* lower */)
	if li.ContentType == "" {
		li.ContentType = ContentVideo
	}
	li.VideoURL = core.CleanString(li.VideoURL)
	li.Status = core.CleanString(li.Status, true /* lower */)
	return validate.Struct(li)
}

type VideoInput struct {
	Title    string `json:"title" form:"title"`
	URL      string `json:"url" form:"url" validate:"omitempty,url"`
	Duration string `json:"duration" form:"duration"`
	Order    string `json:"order" form:"order"`
}

type ReviewInput struct {
	Rating  int    `json:"rating" form:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" form:"comment"`
}

func (ri *ReviewInput) Validate(validate *validator.Validate) error {
	ri.Comment = core.CleanString(ri.Comment)
	return validate.Struct(ri)
}

type CourseFilter struct {
	SchoolID     string `query:"-"`
	Status       string `query:"status"`
	CategoryID   string `query:"category"`
	InstructorID string `query:"instructor"`
	Search       string `query:"search"`
	IDs          []string
}

func (cf *CourseFilter) Clean() {
	cf.Status = core.CleanString(cf.Status, true /* lower */)
	cf.CategoryID = core.CleanString(cf.CategoryID)
	cf.InstructorID = core.CleanString(cf.InstructorID)
	cf.Search = core.CleanString(cf.Search)
}

// LessonFilter selects distinct lessons. SubjectID wins over CourseID, CourseID over SchoolID.
type LessonFilter struct {
	SchoolID      string
	CourseID      string
	SubjectID     string
	PublishedOnly bool
}

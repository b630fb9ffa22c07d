package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
)

var (
	// errors
	ErrCategoryNotFound  = core.NewNotFoundError("category")
	ErrCourseNotFound    = core.NewNotFoundError("course")
	ErrSubjectNotFound   = core.NewNotFoundError("subject")
	ErrLessonNotFound    = core.NewNotFoundError("lesson")
	ErrCategoryExists    = errors.New("a category with this name already exists")
	ErrCourseHasStudents = errors.New("this course has enrolled students and cannot be deleted")
)

// ErrCategoryInUse is returned when deleting a category still linked to courses of the school.
type ErrCategoryInUse struct {
	Count int
}

func (err ErrCategoryInUse) Error() string {
	return fmt.Sprintf("this category is used by %d course(s) and cannot be deleted", err.Count)
}

// DuplicateSuffix is appended to the title of a duplicated course.
const DuplicateSuffix = " (Cópia)"

type (
	Repository interface {
		CreateCategory(ctx context.Context, c Category, exec ...core.DBExecutor) (Category, error)
		GetCategory(ctx context.Context, id string, exec ...core.DBExecutor) (Category, error)
		CategoryNameExists(ctx context.Context, name, excludeID string, exec ...core.DBExecutor) (bool, error)
		CategorySlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error)
		// QueryCategories returns every category, CoursesCount being the number of courses of schoolID.
		QueryCategories(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]Category, error)
		UpdateCategory(ctx context.Context, c Category, exec ...core.DBExecutor) (Category, error)
		DeleteCategory(ctx context.Context, id string, exec ...core.DBExecutor) error
		CountCategoryCourses(ctx context.Context, schoolID, categoryID string, exec ...core.DBExecutor) (int, error)

		CreateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		GetCourse(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Course, error)
		CourseSlugExists(ctx context.Context, schoolID, slug string, exec ...core.DBExecutor) (bool, error)
		QueryCourses(ctx context.Context, filter CourseFilter, ord core.DBOrdering, exec ...core.DBExecutor) ([]Course, error)
		CountCoursesByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error)
		UpdateCourse(ctx context.Context, c Course, exec ...core.DBExecutor) (Course, error)
		DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error
		IncrementCourseViews(ctx context.Context, id string, exec ...core.DBExecutor) error
		SetCourseDuration(ctx context.Context, id string, hours float64, exec ...core.DBExecutor) error
		SetCourseRating(ctx context.Context, id string, rating float64, exec ...core.DBExecutor) error

		CreateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) (Subject, error)
		GetSubject(ctx context.Context, courseID, id string, exec ...core.DBExecutor) (Subject, error)
		QuerySubjects(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Subject, error)
		QueryLessonSubjects(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]Subject, error)
		UpdateSubject(ctx context.Context, s Subject, exec ...core.DBExecutor) (Subject, error)
		DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error

		CreateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		GetLesson(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (Lesson, error)
		// QueryLessons returns distinct lessons ordered by order, then creation.
		QueryLessons(ctx context.Context, filter LessonFilter, exec ...core.DBExecutor) ([]Lesson, error)
		UpdateLesson(ctx context.Context, l Lesson, exec ...core.DBExecutor) (Lesson, error)
		DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error
		LinkLesson(ctx context.Context, subjectID, lessonID string, exec ...core.DBExecutor) error
		UnlinkLesson(ctx context.Context, subjectID, lessonID string, exec ...core.DBExecutor) error

		CreateLessonVideo(ctx context.Context, v LessonVideo, exec ...core.DBExecutor) (LessonVideo, error)
		QueryLessonVideos(ctx context.Context, lessonIDs []string, exec ...core.DBExecutor) ([]LessonVideo, error)

		UpsertReview(ctx context.Context, r Review, exec ...core.DBExecutor) (Review, error)
		QueryReviews(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]Review, error)
		AverageRating(ctx context.Context, courseID string, exec ...core.DBExecutor) (float64, error)
	}

	// EnrollmentCounter counts the enrollments of a course.
	EnrollmentCounter interface {
		CountEnrollments(ctx context.Context, courseID string, exec ...core.DBExecutor) (int, error)
	}

	Service struct {
		db          core.DBTransactor
		repo        Repository
		enrollments EnrollmentCounter
	}
)

func NewService(db core.DBTransactor, repo Repository, enrollments EnrollmentCounter) *Service {
	return &Service{
		db:          db,
		repo:        repo,
		enrollments: enrollments,
	}
}

// uniqueSlug slugifies name, appending a random 4 chars suffix while exists reports a collision.
func uniqueSlug(name, fallback string, exists func(slug string) (bool, error)) (string, error) {
	base := core.Slugify(name)
	if base == "" {
		base = fallback
	}
	slug := base
	for {
		taken, err := exists(slug)
		if err != nil {
			return "", errors.Wrap(err, "checking slug")
		}
		if !taken {
			return slug, nil
		}
		slug = base + "-" + core.RandomString(4)
	}
}

// CanEdit allows school admins and the course instructor.
func CanEdit(ac access.Context, c Course) access.Decision {
	if ac.IsAdmin() || (c.InstructorID.Valid && c.InstructorID.String == ac.Member.ID) {
		return access.Allow()
	}
	return access.Deny(access.NotOwner)
}

// Categories

func (svc *Service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	exists, err := svc.repo.CategoryNameExists(ctx, nc.Name, "")
	if err != nil {
		return Category{}, errors.Wrap(err, "checking category name")
	}
	if exists {
		return Category{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: ErrCategoryExists.Error()})
	}
	slug, err := uniqueSlug(nc.Name, "category", func(slug string) (bool, error) {
		return svc.repo.CategorySlugExists(ctx, slug)
	})
	if err != nil {
		return Category{}, err
	}
	color := nc.Color
	if color == "" {
		color = "#007bff"
	}
	return svc.repo.CreateCategory(ctx, Category{
		Name:        nc.Name,
		Slug:        slug,
		Description: nc.Description,
		Icon:        nc.Icon,
		Color:       color,
		CreatedAt:   time.Now().UTC(),
	})
}

func (svc *Service) GetCategory(ctx context.Context, id string) (Category, error) {
	return svc.repo.GetCategory(ctx, id)
}

func (svc *Service) QueryCategories(ctx context.Context, schoolID string) ([]Category, error) {
	return svc.repo.QueryCategories(ctx, schoolID)
}

func (svc *Service) UpdateCategory(ctx context.Context, cat Category, nc NewCategory) (Category, error) {
	exists, err := svc.repo.CategoryNameExists(ctx, nc.Name, cat.ID)
	if err != nil {
		return Category{}, errors.Wrap(err, "checking category name")
	}
	if exists {
		return Category{}, core.NewValidationError(nil, core.FieldError{Field: "name", Error: ErrCategoryExists.Error()})
	}
	cat.Name = nc.Name
	cat.Description = nc.Description
	cat.Icon = nc.Icon
	if nc.Color != "" {
		cat.Color = nc.Color
	}
	return svc.repo.UpdateCategory(ctx, cat)
}

// DeleteCategory deletes cat unless a course of schoolID still links it.
func (svc *Service) DeleteCategory(ctx context.Context, schoolID string, cat Category) error {
	count, err := svc.repo.CountCategoryCourses(ctx, schoolID, cat.ID)
	if err != nil {
		return errors.Wrap(err, "counting category courses")
	}
	if count > 0 {
		return ErrCategoryInUse{Count: count}
	}
	return svc.repo.DeleteCategory(ctx, cat.ID)
}

// Courses

func (svc *Service) validateCategory(ctx context.Context, id string) error {
	if _, err := svc.repo.GetCategory(ctx, id); err != nil {
		if core.IsNotFound(err) {
			return core.NewValidationError(nil, core.FieldError{Field: "category_id", Error: err.Error()})
		}
		return errors.Wrap(err, "finding category")
	}
	return nil
}

// applyCourseInput copies ci into c. Malformed numbers keep the current values of c.
func applyCourseInput(c *Course, ci CourseInput, now time.Time) {
	c.Title = ci.Title
	c.Description = ci.Description
	c.ShortDescription = ci.ShortDescription
	c.CategoryID = null.StringFrom(ci.CategoryID)
	if ci.Level != "" {
		c.Level = ci.Level
	}
	if ci.Status != "" {
		c.Status = ci.Status
	}
	if c.Status == CourseActive && !c.PublishedAt.Valid {
		c.PublishedAt = null.TimeFrom(now)
	}
	if price := core.ParseFloat(ci.Price, c.Price); price >= 0 {
		c.Price = core.Round(price, 2)
	}
	if hours := core.ParseFloat(ci.DurationHours, c.DurationHours); hours >= 0 {
		c.DurationHours = core.Round(hours, 1)
	}
	switch n := core.ParseInt(ci.MaxStudents, -1); {
	case core.CleanString(ci.MaxStudents) == "":
		c.MaxStudents = null.Int{}
	case n > 0:
		c.MaxStudents = null.IntFrom(n)
	}
	c.VideoIntro = core.CleanString(ci.VideoIntro)
	c.Requirements = core.CleanString(ci.Requirements)
	c.Objectives = core.CleanString(ci.Objectives)
	c.IsFeatured = ci.IsFeatured
	if ci.CertificateAvailable != nil {
		c.CertificateAvailable = *ci.CertificateAvailable
	}
	c.UpdatedAt = now
}

func (svc *Service) courseSlug(ctx context.Context, schoolID, title string) (string, error) {
	return uniqueSlug(title, "course", func(slug string) (bool, error) {
		return svc.repo.CourseSlugExists(ctx, schoolID, slug)
	})
}

// CreateCourse creates a course of the school with the requester as instructor. ci must have been validated.
func (svc *Service) CreateCourse(ctx context.Context, ac access.Context, ci CourseInput) (Course, error) {
	if err := svc.validateCategory(ctx, ci.CategoryID); err != nil {
		return Course{}, err
	}
	now := time.Now().UTC()
	c := Course{
		SchoolID:             ac.School.ID,
		InstructorID:         null.StringFrom(ac.Member.ID),
		Status:               CourseDraft,
		Level:                LevelBeginner,
		CertificateAvailable: true,
		CreatedAt:            now,
	}
	applyCourseInput(&c, ci, now)
	slug, err := svc.courseSlug(ctx, ac.School.ID, c.Title)
	if err != nil {
		return Course{}, err
	}
	c.Slug = slug
	return svc.repo.CreateCourse(ctx, c)
}

func (svc *Service) GetCourse(ctx context.Context, schoolID, id string) (Course, error) {
	return svc.repo.GetCourse(ctx, schoolID, id)
}

func (svc *Service) QueryCourses(ctx context.Context, filter CourseFilter, ord core.DBOrdering) ([]Course, error) {
	filter.Clean()
	return svc.repo.QueryCourses(ctx, filter, ord)
}

func (svc *Service) CountCoursesByStatus(ctx context.Context, schoolID string) (map[string]int, error) {
	return svc.repo.CountCoursesByStatus(ctx, schoolID)
}

// UpdateCourse edits c. ci must have been validated; permission is checked with CanEdit.
func (svc *Service) UpdateCourse(ctx context.Context, c Course, ci CourseInput) (Course, error) {
	if err := svc.validateCategory(ctx, ci.CategoryID); err != nil {
		return Course{}, err
	}
	applyCourseInput(&c, ci, time.Now().UTC())
	return svc.repo.UpdateCourse(ctx, c)
}

// DeleteCourse deletes c unless students are enrolled in it.
func (svc *Service) DeleteCourse(ctx context.Context, c Course) error {
	count, err := svc.enrollments.CountEnrollments(ctx, c.ID)
	if err != nil {
		return errors.Wrap(err, "counting enrollments")
	}
	if count > 0 {
		return core.NewValidationError(ErrCourseHasStudents)
	}
	return svc.repo.DeleteCourse(ctx, c.ID)
}

// DuplicateCourse copies the settings of c into a new draft course owned by the requester.
// Subjects, lessons and enrollments are not copied.
func (svc *Service) DuplicateCourse(ctx context.Context, ac access.Context, c Course) (Course, error) {
	now := time.Now().UTC()
	dup := c
	dup.ID = ""
	dup.Title = c.Title + DuplicateSuffix
	dup.Status = CourseDraft
	dup.InstructorID = null.StringFrom(ac.Member.ID)
	dup.IsFeatured = false
	dup.ViewsCount = 0
	dup.AverageRating = 0
	dup.PublishedAt = null.Time{}
	dup.CreatedAt = now
	dup.UpdatedAt = now
	slug, err := svc.courseSlug(ctx, c.SchoolID, dup.Title)
	if err != nil {
		return Course{}, err
	}
	dup.Slug = slug
	return svc.repo.CreateCourse(ctx, dup)
}

func (svc *Service) IncrementViews(ctx context.Context, c Course) error {
	return svc.repo.IncrementCourseViews(ctx, c.ID)
}

// Subjects

func (svc *Service) QuerySubjects(ctx context.Context, courseID string) ([]Subject, error) {
	return svc.repo.QuerySubjects(ctx, courseID)
}

func (svc *Service) GetSubject(ctx context.Context, courseID, id string) (Subject, error) {
	return svc.repo.GetSubject(ctx, courseID, id)
}

// CreateSubject adds a subject to c; a missing or malformed order puts it last.
func (svc *Service) CreateSubject(ctx context.Context, c Course, si SubjectInput) (Subject, error) {
	subjects, err := svc.repo.QuerySubjects(ctx, c.ID)
	if err != nil {
		return Subject{}, errors.Wrap(err, "querying subjects")
	}
	status := si.Status
	if status == "" {
		status = StatusDraft
	}
	return svc.repo.CreateSubject(ctx, Subject{
		CourseID:    c.ID,
		Title:       si.Title,
		Description: si.Description,
		Order:       core.ParseInt(si.Order, len(subjects)+1),
		Status:      status,
		CreatedAt:   time.Now().UTC(),
	})
}

func (svc *Service) UpdateSubject(ctx context.Context, s Subject, si SubjectInput) (Subject, error) {
	s.Title = si.Title
	s.Description = si.Description
	s.Order = core.ParseInt(si.Order, s.Order)
	if si.Status != "" {
		s.Status = si.Status
	}
	return svc.repo.UpdateSubject(ctx, s)
}

// DeleteSubject deletes s and its lesson links. Lessons are kept.
func (svc *Service) DeleteSubject(ctx context.Context, c Course, s Subject) error {
	if err := svc.repo.DeleteSubject(ctx, s.ID); err != nil {
		return err
	}
	return svc.refreshCourseDuration(ctx, c)
}

// Lessons

func (svc *Service) GetLesson(ctx context.Context, schoolID, id string) (Lesson, error) {
	return svc.repo.GetLesson(ctx, schoolID, id)
}

func (svc *Service) QueryLessons(ctx context.Context, filter LessonFilter) ([]Lesson, error) {
	return svc.repo.QueryLessons(ctx, filter)
}

func (svc *Service) LessonVideos(ctx context.Context, lessonIDs ...string) ([]LessonVideo, error) {
	if len(lessonIDs) == 0 {
		return nil, nil
	}
	return svc.repo.QueryLessonVideos(ctx, lessonIDs)
}

// LessonSubject returns the first subject of c linking lesson.
func (svc *Service) LessonSubject(ctx context.Context, c Course, lesson Lesson) (Subject, error) {
	subjects, err := svc.repo.QueryLessonSubjects(ctx, lesson.ID)
	if err != nil {
		return Subject{}, errors.Wrap(err, "querying lesson subjects")
	}
	for _, s := range subjects {
		if s.CourseID == c.ID {
			return s, nil
		}
	}
	return Subject{}, ErrLessonNotFound
}

// PublishedLessonIDs returns the distinct published lessons of the course, or of the
// subject when subjectID is not empty.
func (svc *Service) PublishedLessonIDs(ctx context.Context, courseID, subjectID string, exec ...core.DBExecutor) ([]string, error) {
	lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{CourseID: courseID, SubjectID: subjectID, PublishedOnly: true}, exec...)
	if err != nil {
		return nil, errors.Wrap(err, "querying published lessons")
	}
	ids := make([]string, len(lessons))
	for i, l := range lessons {
		ids[i] = l.ID
	}
	return ids, nil
}

func (svc *Service) createVideos(ctx context.Context, lessonID string, vis []VideoInput, exec core.DBExecutor) (float64, error) {
	var total float64
	for i, vi := range vis {
		url := core.CleanString(vi.URL)
		if url == "" {
			continue
		}
		v, err := svc.repo.CreateLessonVideo(ctx, LessonVideo{
			LessonID: lessonID,
			Title:    core.CleanString(vi.Title),
			URL:      url,
			Duration: core.Round(core.ParseFloat(vi.Duration, 0), 2),
			Order:    core.ParseInt(vi.Order, i+1),
		}, exec)
		if err != nil {
			return 0, errors.Wrap(err, "creating lesson video")
		}
		total += v.Duration
	}
	return total, nil
}

// CreateLesson creates a lesson of the school and links it to s. li must have been validated.
func (svc *Service) CreateLesson(ctx context.Context, ac access.Context, c Course, s Subject, li LessonInput) (Lesson, error) {
	linked, err := svc.repo.QueryLessons(ctx, LessonFilter{SubjectID: s.ID})
	if err != nil {
		return Lesson{}, errors.Wrap(err, "querying subject lessons")
	}
	status := li.Status
	if status == "" {
		status = StatusDraft
	}
	now := time.Now().UTC()
	l := Lesson{
		SchoolID:    ac.School.ID,
		Title:       li.Title,
		Description: li.Description,
		ContentType: li.ContentType,
		Content:     li.Content,
		VideoURL:    li.VideoURL,
		FilePath:    li.FilePath,
		Duration:    EstimateDuration(li.ContentType, li.Duration),
		Order:       core.ParseInt(li.Order, len(linked)+1),
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		if l, err = svc.repo.CreateLesson(ctx, l, exec); err != nil {
			return errors.Wrap(err, "creating lesson")
		}
		if err = svc.repo.LinkLesson(ctx, s.ID, l.ID, exec); err != nil {
			return errors.Wrap(err, "linking lesson")
		}
		if l.ContentType != ContentVideo || len(li.Videos) == 0 {
			return nil
		}
		total, err := svc.createVideos(ctx, l.ID, li.Videos, exec)
		if err != nil || total <= 0 {
			return err
		}
		l.Duration = total
		l, err = svc.repo.UpdateLesson(ctx, l, exec)
		return errors.Wrap(err, "updating lesson duration")
	})
	if err != nil {
		return Lesson{}, err
	}
	return l, svc.refreshCourseDuration(ctx, c)
}

// UpdateLesson edits l. A malformed duration keeps the previous one.
func (svc *Service) UpdateLesson(ctx context.Context, c Course, l Lesson, li LessonInput) (Lesson, error) {
	l.Title = li.Title
	l.Description = li.Description
	l.ContentType = li.ContentType
	l.Content = li.Content
	l.VideoURL = li.VideoURL
	if li.FilePath != "" {
		l.FilePath = li.FilePath
	}
	if d := core.ParseFloat(li.Duration, l.Duration); d > 0 {
		l.Duration = d
	} else {
		l.Duration = defaultDurations[l.ContentType]
	}
	l.Order = core.ParseInt(li.Order, l.Order)
	if li.Status != "" {
		l.Status = li.Status
	}
	l.UpdatedAt = time.Now().UTC()

	l, err := svc.repo.UpdateLesson(ctx, l)
	if err != nil {
		return Lesson{}, err
	}
	return l, svc.refreshCourseDuration(ctx, c)
}

// AddLessonVideo adds a video to l; l.Duration becomes the sum of its videos.
func (svc *Service) AddLessonVideo(ctx context.Context, c Course, l Lesson, vi VideoInput) (LessonVideo, error) {
	videos, err := svc.repo.QueryLessonVideos(ctx, []string{l.ID})
	if err != nil {
		return LessonVideo{}, errors.Wrap(err, "querying lesson videos")
	}
	var v LessonVideo
	err = svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		v, err = svc.repo.CreateLessonVideo(ctx, LessonVideo{
			LessonID: l.ID,
			Title:    core.CleanString(vi.Title),
			URL:      core.CleanString(vi.URL),
			Duration: core.Round(core.ParseFloat(vi.Duration, 0), 2),
			Order:    core.ParseInt(vi.Order, len(videos)+1),
		}, exec)
		if err != nil {
			return errors.Wrap(err, "creating lesson video")
		}
		if l.ContentType != ContentVideo {
			return nil
		}
		l.Duration = l.EffectiveDuration(append(videos, v))
		l.UpdatedAt = time.Now().UTC()
		_, err = svc.repo.UpdateLesson(ctx, l, exec)
		return errors.Wrap(err, "updating lesson duration")
	})
	if err != nil {
		return LessonVideo{}, err
	}
	return v, svc.refreshCourseDuration(ctx, c)
}

// UnlinkLesson removes l from s; the lesson itself is kept.
func (svc *Service) UnlinkLesson(ctx context.Context, c Course, s Subject, l Lesson) error {
	if err := svc.repo.UnlinkLesson(ctx, s.ID, l.ID); err != nil {
		return err
	}
	return svc.refreshCourseDuration(ctx, c)
}

// DeleteLessonPermanently deletes l from every subject linking it.
func (svc *Service) DeleteLessonPermanently(ctx context.Context, c Course, l Lesson) error {
	if err := svc.repo.DeleteLesson(ctx, l.ID); err != nil {
		return err
	}
	return svc.refreshCourseDuration(ctx, c)
}

// Durations

func (svc *Service) sumDurations(ctx context.Context, lessons []Lesson) (Duration, error) {
	ids := make([]string, len(lessons))
	for i, l := range lessons {
		ids[i] = l.ID
	}
	videos, err := svc.LessonVideos(ctx, ids...)
	if err != nil {
		return Duration{}, errors.Wrap(err, "querying lesson videos")
	}
	byLesson := make(map[string][]LessonVideo)
	for _, v := range videos {
		byLesson[v.LessonID] = append(byLesson[v.LessonID], v)
	}
	var minutes float64
	for _, l := range lessons {
		minutes += l.EffectiveDuration(byLesson[l.ID])
	}
	return NewDuration(minutes, len(lessons)), nil
}

// CourseDuration sums the distinct lessons of c.
func (svc *Service) CourseDuration(ctx context.Context, c Course, publishedOnly bool) (Duration, error) {
	lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{CourseID: c.ID, PublishedOnly: publishedOnly})
	if err != nil {
		return Duration{}, errors.Wrap(err, "querying course lessons")
	}
	return svc.sumDurations(ctx, lessons)
}

// SchoolDuration sums every lesson of the school.
func (svc *Service) SchoolDuration(ctx context.Context, schoolID string, publishedOnly bool) (Duration, error) {
	lessons, err := svc.repo.QueryLessons(ctx, LessonFilter{SchoolID: schoolID, PublishedOnly: publishedOnly})
	if err != nil {
		return Duration{}, errors.Wrap(err, "querying school lessons")
	}
	return svc.sumDurations(ctx, lessons)
}

// refreshCourseDuration stores the total lesson hours of c.
func (svc *Service) refreshCourseDuration(ctx context.Context, c Course) error {
	d, err := svc.CourseDuration(ctx, c, false)
	if err != nil {
		return err
	}
	return errors.Wrap(svc.repo.SetCourseDuration(ctx, c.ID, core.Round(d.Minutes/60, 1)), "updating course duration")
}

// Reviews

// SaveReview creates or replaces the review of the student and recomputes the course rating.
func (svc *Service) SaveReview(ctx context.Context, c Course, studentID string, ri ReviewInput) (Review, error) {
	var r Review
	err := svc.db.InTx(ctx, func(exec core.DBExecutor) error {
		var err error
		now := time.Now().UTC()
		r, err = svc.repo.UpsertReview(ctx, Review{
			CourseID:  c.ID,
			StudentID: studentID,
			Rating:    ri.Rating,
			Comment:   ri.Comment,
			CreatedAt: now,
			UpdatedAt: now,
		}, exec)
		if err != nil {
			return errors.Wrap(err, "saving review")
		}
		avg, err := svc.repo.AverageRating(ctx, c.ID, exec)
		if err != nil {
			return errors.Wrap(err, "computing average rating")
		}
		return errors.Wrap(svc.repo.SetCourseRating(ctx, c.ID, core.Round(avg, 2), exec), "updating course rating")
	})
	return r, err
}

func (svc *Service) QueryReviews(ctx context.Context, courseID string) ([]Review, error) {
	return svc.repo.QueryReviews(ctx, courseID)
}

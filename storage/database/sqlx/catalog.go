package sqlxrepos

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/catalog"
)

const (
	categoryColumns = `c.id, c.name, c.slug, c.description, c.icon, c.color, c.created_at`
	courseColumns   = `id, school_id, title, slug, description, short_description, instructor_id, category_id,
		status, level, duration_hours, price, max_students, video_intro, requirements, objectives, is_featured,
		certificate_available, views_count, average_rating, published_at, created_at, updated_at`
	subjectColumns = `s.id, s.course_id, s.title, s.description, s.sort_order AS "order", s.status, s.created_at`
	lessonColumns  = `l.id, l.school_id, l.title, l.description, l.content_type, l.content, l.video_url, l.file_path,
		l.duration, l.sort_order AS "order", l.status, l.created_at, l.updated_at`
	videoColumns  = `id, lesson_id, title, url, duration, sort_order AS "order"`
	reviewColumns = `id, course_id, student_id, rating, comment, created_at, updated_at`
)

// sortable course columns
var courseOrderings = map[string]bool{
	"title": true, "created_at": true, "updated_at": true, "price": true, "views_count": true,
	"average_rating": true, "published_at": true, "status": true,
}

type catalogRepository struct {
	repository
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(exec core.DBExecutor) *catalogRepository {
	return &catalogRepository{repository{exec: exec}}
}

func (repo catalogRepository) exists(ctx context.Context, exec []core.DBExecutor, msg, q string, args ...interface{}) (bool, error) {
	var found bool
	err := sqlx.GetContext(ctx, repo.getExec(exec), &found, `SELECT EXISTS(`+q+`)`, args...)
	return found, errors.Wrap(err, msg)
}

// Categories

func (repo catalogRepository) CreateCategory(ctx context.Context, c catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	c.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO categories (id, name, slug, description, icon, color, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.Name, c.Slug, c.Description, c.Icon, c.Color, c.CreatedAt.UTC(),
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return catalog.Category{}, catalog.ErrCategoryExists
		}
		return catalog.Category{}, errors.Wrap(err, "inserting category")
	}
	return c, nil
}

func (repo catalogRepository) GetCategory(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Category, error) {
	if !validID(id) {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	var c catalog.Category
	err := sqlx.GetContext(ctx, repo.getExec(exec), &c, `SELECT `+categoryColumns+` FROM categories c WHERE c.id = $1`, id)
	if err != nil {
		return catalog.Category{}, trapNoRowsErr(err, catalog.ErrCategoryNotFound, "finding category")
	}
	return c, nil
}

func (repo catalogRepository) CategoryNameExists(ctx context.Context, name, excludeID string, exec ...core.DBExecutor) (bool, error) {
	if validID(excludeID) {
		return repo.exists(ctx, exec, "checking category name",
			`SELECT 1 FROM categories WHERE LOWER(name) = LOWER($1) AND id <> $2`, name, excludeID)
	}
	return repo.exists(ctx, exec, "checking category name", `SELECT 1 FROM categories WHERE LOWER(name) = LOWER($1)`, name)
}

func (repo catalogRepository) CategorySlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	return repo.exists(ctx, exec, "checking category slug", `SELECT 1 FROM categories WHERE slug = $1`, slug)
}

func (repo catalogRepository) QueryCategories(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]catalog.Category, error) {
	categories := []catalog.Category{}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &categories, `
		SELECT `+categoryColumns+`, COUNT(co.id) AS courses_count
		FROM categories c
		LEFT JOIN courses co ON co.category_id = c.id AND co.school_id::text = $1
		GROUP BY c.id
		ORDER BY c.name`, schoolID)
	return categories, errors.Wrap(err, "querying categories")
}

func (repo catalogRepository) UpdateCategory(ctx context.Context, c catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx,
		`UPDATE categories SET name = $2, description = $3, icon = $4, color = $5 WHERE id = $1`,
		c.ID, c.Name, c.Description, c.Icon, c.Color,
	))
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return catalog.Category{}, catalog.ErrCategoryExists
		}
		return catalog.Category{}, errors.Wrap(err, "updating category")
	}
	if n == 0 {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	return c, nil
}

func (repo catalogRepository) DeleteCategory(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return catalog.ErrCategoryNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM categories WHERE id = $1`, id)
	return errors.Wrap(err, "deleting category")
}

func (repo catalogRepository) CountCategoryCourses(ctx context.Context, schoolID, categoryID string, exec ...core.DBExecutor) (int, error) {
	if !validID(schoolID) || !validID(categoryID) {
		return 0, nil
	}
	var n int
	err := sqlx.GetContext(ctx, repo.getExec(exec), &n,
		`SELECT COUNT(*) FROM courses WHERE school_id = $1 AND category_id = $2`, schoolID, categoryID)
	return n, errors.Wrap(err, "counting category courses")
}

// Courses

func (repo catalogRepository) CreateCourse(ctx context.Context, c catalog.Course, exec ...core.DBExecutor) (catalog.Course, error) {
	c.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO courses (id, school_id, title, slug, description, short_description, instructor_id, category_id,
		                     status, level, duration_hours, price, max_students, video_intro, requirements,
		                     objectives, is_featured, certificate_available, views_count, average_rating,
		                     published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)`,
		c.ID, c.SchoolID, c.Title, c.Slug, c.Description, c.ShortDescription, c.InstructorID, c.CategoryID,
		c.Status, c.Level, c.DurationHours, c.Price, c.MaxStudents, c.VideoIntro, c.Requirements,
		c.Objectives, c.IsFeatured, c.CertificateAvailable, c.ViewsCount, c.AverageRating,
		c.PublishedAt, c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	if err != nil {
		return catalog.Course{}, errors.Wrap(err, "inserting course")
	}
	return c, nil
}

func (repo catalogRepository) GetCourse(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (catalog.Course, error) {
	if !validID(schoolID) || !validID(id) {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	var c catalog.Course
	err := sqlx.GetContext(ctx, repo.getExec(exec), &c,
		`SELECT `+courseColumns+` FROM courses WHERE school_id = $1 AND id = $2`, schoolID, id)
	if err != nil {
		return catalog.Course{}, trapNoRowsErr(err, catalog.ErrCourseNotFound, "finding course")
	}
	return c, nil
}

func (repo catalogRepository) CourseSlugExists(ctx context.Context, schoolID, slug string, exec ...core.DBExecutor) (bool, error) {
	return repo.exists(ctx, exec, "checking course slug",
		`SELECT 1 FROM courses WHERE school_id = $1 AND slug = $2`, schoolID, slug)
}

func (repo catalogRepository) QueryCourses(ctx context.Context, filter catalog.CourseFilter, ord core.DBOrdering, exec ...core.DBExecutor) ([]catalog.Course, error) {
	courses := []catalog.Course{}
	if !validID(filter.SchoolID) {
		return courses, nil
	}
	where := []string{"school_id = ?"}
	args := []interface{}{filter.SchoolID}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.CategoryID != "" {
		if !validID(filter.CategoryID) {
			return courses, nil
		}
		where = append(where, "category_id = ?")
		args = append(args, filter.CategoryID)
	}
	if filter.InstructorID != "" {
		if !validID(filter.InstructorID) {
			return courses, nil
		}
		where = append(where, "instructor_id = ?")
		args = append(args, filter.InstructorID)
	}
	if filter.Search != "" {
		val := "%" + filter.Search + "%"
		where = append(where, "(title ILIKE ? OR description ILIKE ?)")
		args = append(args, val, val)
	}
	if filter.IDs != nil {
		if len(filter.IDs) == 0 {
			return courses, nil
		}
		where = append(where, "id IN (?)")
		args = append(args, filter.IDs)
	}

	var ordering []core.DBOrdering
	if ord.Field != "" {
		ordering = append(ordering, ord)
	}
	exe := repo.getExec(exec)
	q, args, err := in(exe, `SELECT `+courseColumns+` FROM courses WHERE `+strings.Join(where, " AND ")+
		orderBy(ordering, courseOrderings, "created_at DESC"), args...)
	if err != nil {
		return nil, errors.Wrap(err, "building courses query")
	}
	err = sqlx.SelectContext(ctx, exe, &courses, q, args...)
	return courses, errors.Wrap(err, "querying courses")
}

func (repo catalogRepository) CountCoursesByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error) {
	counts := make(map[string]int)
	if !validID(schoolID) {
		return counts, nil
	}
	var rows []struct {
		Status string `json:"status"`
		Total  int    `json:"total"`
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows,
		`SELECT status, COUNT(*) AS total FROM courses WHERE school_id = $1 GROUP BY status`, schoolID)
	if err != nil {
		return nil, errors.Wrap(err, "counting courses")
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}
	return counts, nil
}

func (repo catalogRepository) UpdateCourse(ctx context.Context, c catalog.Course, exec ...core.DBExecutor) (catalog.Course, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx, `
		UPDATE courses
		SET title = $2, slug = $3, description = $4, short_description = $5, instructor_id = $6, category_id = $7,
		    status = $8, level = $9, duration_hours = $10, price = $11, max_students = $12, video_intro = $13,
		    requirements = $14, objectives = $15, is_featured = $16, certificate_available = $17,
		    published_at = $18, updated_at = $19
		WHERE id = $1`,
		c.ID, c.Title, c.Slug, c.Description, c.ShortDescription, c.InstructorID, c.CategoryID,
		c.Status, c.Level, c.DurationHours, c.Price, c.MaxStudents, c.VideoIntro,
		c.Requirements, c.Objectives, c.IsFeatured, c.CertificateAvailable,
		c.PublishedAt, c.UpdatedAt.UTC(),
	))
	if err != nil {
		return catalog.Course{}, errors.Wrap(err, "updating course")
	}
	if n == 0 {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	return c, nil
}

func (repo catalogRepository) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return catalog.ErrCourseNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM courses WHERE id = $1`, id)
	return errors.Wrap(err, "deleting course")
}

func (repo catalogRepository) IncrementCourseViews(ctx context.Context, id string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `UPDATE courses SET views_count = views_count + 1 WHERE id = $1`, id)
	return errors.Wrap(err, "incrementing course views")
}

func (repo catalogRepository) SetCourseDuration(ctx context.Context, id string, hours float64, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `UPDATE courses SET duration_hours = $2 WHERE id = $1`, id, hours)
	return errors.Wrap(err, "setting course duration")
}

func (repo catalogRepository) SetCourseRating(ctx context.Context, id string, rating float64, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `UPDATE courses SET average_rating = $2 WHERE id = $1`, id, rating)
	return errors.Wrap(err, "setting course rating")
}

// Subjects

func (repo catalogRepository) CreateSubject(ctx context.Context, s catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error) {
	s.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO subjects (id, course_id, title, description, sort_order, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.CourseID, s.Title, s.Description, s.Order, s.Status, s.CreatedAt.UTC(),
	)
	if err != nil {
		return catalog.Subject{}, errors.Wrap(err, "inserting subject")
	}
	return s, nil
}

func (repo catalogRepository) GetSubject(ctx context.Context, courseID, id string, exec ...core.DBExecutor) (catalog.Subject, error) {
	if !validID(courseID) || !validID(id) {
		return catalog.Subject{}, catalog.ErrSubjectNotFound
	}
	var s catalog.Subject
	err := sqlx.GetContext(ctx, repo.getExec(exec), &s,
		`SELECT `+subjectColumns+` FROM subjects s WHERE s.course_id = $1 AND s.id = $2`, courseID, id)
	if err != nil {
		return catalog.Subject{}, trapNoRowsErr(err, catalog.ErrSubjectNotFound, "finding subject")
	}
	return s, nil
}

func (repo catalogRepository) QuerySubjects(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]catalog.Subject, error) {
	subjects := []catalog.Subject{}
	if !validID(courseID) {
		return subjects, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &subjects,
		`SELECT `+subjectColumns+` FROM subjects s WHERE s.course_id = $1 ORDER BY s.sort_order, s.created_at`, courseID)
	return subjects, errors.Wrap(err, "querying subjects")
}

func (repo catalogRepository) QueryLessonSubjects(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]catalog.Subject, error) {
	subjects := []catalog.Subject{}
	if !validID(lessonID) {
		return subjects, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &subjects, `
		SELECT `+subjectColumns+`
		FROM subjects s JOIN subject_lessons sl ON sl.subject_id = s.id
		WHERE sl.lesson_id = $1
		ORDER BY s.sort_order, s.created_at`, lessonID)
	return subjects, errors.Wrap(err, "querying lesson subjects")
}

func (repo catalogRepository) UpdateSubject(ctx context.Context, s catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx,
		`UPDATE subjects SET title = $2, description = $3, sort_order = $4, status = $5 WHERE id = $1`,
		s.ID, s.Title, s.Description, s.Order, s.Status,
	))
	if err != nil {
		return catalog.Subject{}, errors.Wrap(err, "updating subject")
	}
	if n == 0 {
		return catalog.Subject{}, catalog.ErrSubjectNotFound
	}
	return s, nil
}

func (repo catalogRepository) DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return catalog.ErrSubjectNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	return errors.Wrap(err, "deleting subject")
}

// Lessons

func (repo catalogRepository) CreateLesson(ctx context.Context, l catalog.Lesson, exec ...core.DBExecutor) (catalog.Lesson, error) {
	l.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO lessons (id, school_id, title, description, content_type, content, video_url, file_path,
		                     duration, sort_order, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		l.ID, l.SchoolID, l.Title, l.Description, l.ContentType, l.Content, l.VideoURL, l.FilePath,
		l.Duration, l.Order, l.Status, l.CreatedAt.UTC(), l.UpdatedAt.UTC(),
	)
	if err != nil {
		return catalog.Lesson{}, errors.Wrap(err, "inserting lesson")
	}
	return l, nil
}

func (repo catalogRepository) GetLesson(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (catalog.Lesson, error) {
	if !validID(schoolID) || !validID(id) {
		return catalog.Lesson{}, catalog.ErrLessonNotFound
	}
	var l catalog.Lesson
	err := sqlx.GetContext(ctx, repo.getExec(exec), &l,
		`SELECT `+lessonColumns+` FROM lessons l WHERE l.school_id = $1 AND l.id = $2`, schoolID, id)
	if err != nil {
		return catalog.Lesson{}, trapNoRowsErr(err, catalog.ErrLessonNotFound, "finding lesson")
	}
	return l, nil
}

func (repo catalogRepository) QueryLessons(ctx context.Context, filter catalog.LessonFilter, exec ...core.DBExecutor) ([]catalog.Lesson, error) {
	lessons := []catalog.Lesson{}
	var (
		q   string
		arg string
	)
	switch {
	case filter.SubjectID != "":
		q = `FROM lessons l WHERE l.id IN (SELECT lesson_id FROM subject_lessons WHERE subject_id = $1)`
		arg = filter.SubjectID
	case filter.CourseID != "":
		q = `FROM lessons l WHERE l.id IN (
			SELECT sl.lesson_id FROM subject_lessons sl JOIN subjects s ON s.id = sl.subject_id WHERE s.course_id = $1)`
		arg = filter.CourseID
	case filter.SchoolID != "":
		q = `FROM lessons l WHERE l.school_id = $1`
		arg = filter.SchoolID
	default:
		return lessons, nil
	}
	if !validID(arg) {
		return lessons, nil
	}
	if filter.PublishedOnly {
		q += ` AND l.status = '` + catalog.StatusPublished + `'`
	}

	err := sqlx.SelectContext(ctx, repo.getExec(exec), &lessons,
		`SELECT `+lessonColumns+` `+q+` ORDER BY l.sort_order, l.created_at, l.id`, arg)
	return lessons, errors.Wrap(err, "querying lessons")
}

func (repo catalogRepository) UpdateLesson(ctx context.Context, l catalog.Lesson, exec ...core.DBExecutor) (catalog.Lesson, error) {
	n, err := affected(repo.getExec(exec).ExecContext(ctx, `
		UPDATE lessons
		SET title = $2, description = $3, content_type = $4, content = $5, video_url = $6, file_path = $7,
		    duration = $8, sort_order = $9, status = $10, updated_at = $11
		WHERE id = $1`,
		l.ID, l.Title, l.Description, l.ContentType, l.Content, l.VideoURL, l.FilePath,
		l.Duration, l.Order, l.Status, l.UpdatedAt.UTC(),
	))
	if err != nil {
		return catalog.Lesson{}, errors.Wrap(err, "updating lesson")
	}
	if n == 0 {
		return catalog.Lesson{}, catalog.ErrLessonNotFound
	}
	return l, nil
}

func (repo catalogRepository) DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error {
	if !validID(id) {
		return catalog.ErrLessonNotFound
	}
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM lessons WHERE id = $1`, id)
	return errors.Wrap(err, "deleting lesson")
}

func (repo catalogRepository) LinkLesson(ctx context.Context, subjectID, lessonID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		`INSERT INTO subject_lessons (subject_id, lesson_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`, subjectID, lessonID)
	return errors.Wrap(err, "linking lesson")
}

func (repo catalogRepository) UnlinkLesson(ctx context.Context, subjectID, lessonID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx,
		`DELETE FROM subject_lessons WHERE subject_id = $1 AND lesson_id = $2`, subjectID, lessonID)
	return errors.Wrap(err, "unlinking lesson")
}

func (repo catalogRepository) CreateLessonVideo(ctx context.Context, v catalog.LessonVideo, exec ...core.DBExecutor) (catalog.LessonVideo, error) {
	v.ID = newID()
	_, err := repo.getExec(exec).ExecContext(ctx, `
		INSERT INTO lesson_videos (id, lesson_id, title, url, duration, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		v.ID, v.LessonID, v.Title, v.URL, v.Duration, v.Order,
	)
	if err != nil {
		return catalog.LessonVideo{}, errors.Wrap(err, "inserting lesson video")
	}
	return v, nil
}

func (repo catalogRepository) QueryLessonVideos(ctx context.Context, lessonIDs []string, exec ...core.DBExecutor) ([]catalog.LessonVideo, error) {
	videos := []catalog.LessonVideo{}
	if len(lessonIDs) == 0 {
		return videos, nil
	}
	exe := repo.getExec(exec)
	q, args, err := in(exe, `SELECT `+videoColumns+` FROM lesson_videos WHERE lesson_id IN (?) ORDER BY sort_order, id`, lessonIDs)
	if err != nil {
		return nil, errors.Wrap(err, "building lesson videos query")
	}
	err = sqlx.SelectContext(ctx, exe, &videos, q, args...)
	return videos, errors.Wrap(err, "querying lesson videos")
}

// Reviews

func (repo catalogRepository) UpsertReview(ctx context.Context, r catalog.Review, exec ...core.DBExecutor) (catalog.Review, error) {
	var saved catalog.Review
	err := sqlx.GetContext(ctx, repo.getExec(exec), &saved, `
		INSERT INTO reviews (id, course_id, student_id, rating, comment, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (course_id, student_id)
		DO UPDATE SET rating = EXCLUDED.rating, comment = EXCLUDED.comment, updated_at = EXCLUDED.updated_at
		RETURNING `+reviewColumns,
		newID(), r.CourseID, r.StudentID, r.Rating, r.Comment, r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
	)
	return saved, errors.Wrap(err, "upserting review")
}

func (repo catalogRepository) QueryReviews(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]catalog.Review, error) {
	reviews := []catalog.Review{}
	if !validID(courseID) {
		return reviews, nil
	}
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &reviews,
		`SELECT `+reviewColumns+` FROM reviews WHERE course_id = $1 ORDER BY created_at DESC`, courseID)
	return reviews, errors.Wrap(err, "querying reviews")
}

func (repo catalogRepository) AverageRating(ctx context.Context, courseID string, exec ...core.DBExecutor) (float64, error) {
	var avg float64
	err := sqlx.GetContext(ctx, repo.getExec(exec), &avg,
		`SELECT COALESCE(AVG(rating), 0) FROM reviews WHERE course_id = $1`, courseID)
	return avg, errors.Wrap(err, "averaging ratings")
}

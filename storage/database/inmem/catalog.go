package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/catalog"
)

// Categories

func (db *DB) CreateCategory(ctx context.Context, c catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for _, other := range db.categories {
		if strings.EqualFold(other.Name, c.Name) || other.Slug == c.Slug {
			return catalog.Category{}, catalog.ErrCategoryExists
		}
	}
	c.ID = newID()
	c.CoursesCount = 0
	db.categories[c.ID] = c
	return c, nil
}

func (db *DB) GetCategory(ctx context.Context, id string, exec ...core.DBExecutor) (catalog.Category, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if c, ok := db.categories[id]; ok {
		return c, nil
	}
	return catalog.Category{}, catalog.ErrCategoryNotFound
}

func (db *DB) CategoryNameExists(ctx context.Context, name, excludeID string, exec ...core.DBExecutor) (bool, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, c := range db.categories {
		if c.ID != excludeID && strings.EqualFold(c.Name, name) {
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) CategorySlugExists(ctx context.Context, slug string, exec ...core.DBExecutor) (bool, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, c := range db.categories {
		if c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) QueryCategories(ctx context.Context, schoolID string, exec ...core.DBExecutor) ([]catalog.Category, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	categories := make([]catalog.Category, 0, len(db.categories))
	for _, c := range db.categories {
		c.CoursesCount = db.countCategoryCourses(schoolID, c.ID)
		categories = append(categories, c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].Name < categories[j].Name })
	return categories, nil
}

func (db *DB) UpdateCategory(ctx context.Context, c catalog.Category, exec ...core.DBExecutor) (catalog.Category, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.categories[c.ID]
	if !ok {
		return catalog.Category{}, catalog.ErrCategoryNotFound
	}
	orig.Name, orig.Description, orig.Icon, orig.Color = c.Name, c.Description, c.Icon, c.Color
	db.categories[c.ID] = orig
	return orig, nil
}

func (db *DB) DeleteCategory(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.categories[id]; !ok {
		return catalog.ErrCategoryNotFound
	}
	delete(db.categories, id)
	for cid, c := range db.courses {
		if c.CategoryID.Valid && c.CategoryID.String == id {
			c.CategoryID.Valid, c.CategoryID.String = false, ""
			db.courses[cid] = c
		}
	}
	return nil
}

func (db *DB) countCategoryCourses(schoolID, categoryID string) int {
	var n int
	for _, c := range db.courses {
		if c.SchoolID == schoolID && c.CategoryID.Valid && c.CategoryID.String == categoryID {
			n++
		}
	}
	return n
}

func (db *DB) CountCategoryCourses(ctx context.Context, schoolID, categoryID string, exec ...core.DBExecutor) (int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	return db.countCategoryCourses(schoolID, categoryID), nil
}

// Courses

func (db *DB) CreateCourse(ctx context.Context, c catalog.Course, exec ...core.DBExecutor) (catalog.Course, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	c.ID = newID()
	db.courses[c.ID] = c
	return c, nil
}

func (db *DB) GetCourse(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (catalog.Course, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if c, ok := db.courses[id]; ok && c.SchoolID == schoolID {
		return c, nil
	}
	return catalog.Course{}, catalog.ErrCourseNotFound
}

func (db *DB) CourseSlugExists(ctx context.Context, schoolID, slug string, exec ...core.DBExecutor) (bool, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	for _, c := range db.courses {
		if c.SchoolID == schoolID && c.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func courseMatches(c catalog.Course, filter catalog.CourseFilter, ids map[string]bool) bool {
	switch {
	case c.SchoolID != filter.SchoolID:
		return false
	case filter.Status != "" && c.Status != filter.Status:
		return false
	case filter.CategoryID != "" && c.CategoryID.String != filter.CategoryID:
		return false
	case filter.InstructorID != "" && c.InstructorID.String != filter.InstructorID:
		return false
	case filter.Search != "" && !containsFold(c.Title, filter.Search) && !containsFold(c.Description, filter.Search):
		return false
	case ids != nil && !ids[c.ID]:
		return false
	}
	return true
}

func (db *DB) QueryCourses(ctx context.Context, filter catalog.CourseFilter, ord core.DBOrdering, exec ...core.DBExecutor) ([]catalog.Course, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	var ids map[string]bool
	if filter.IDs != nil {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}
	courses := make([]catalog.Course, 0)
	for _, c := range db.courses {
		if courseMatches(c, filter, ids) {
			courses = append(courses, c)
		}
	}

	if ord.Field == "" {
		ord = core.DBOrdering{Field: "created_at"}
	}
	sort.SliceStable(courses, func(i, j int) bool {
		a, b := courses[i], courses[j]
		var less bool
		switch ord.Field {
		case "title":
			less = a.Title < b.Title
		case "price":
			less = a.Price < b.Price
		case "views_count":
			less = a.ViewsCount < b.ViewsCount
		case "average_rating":
			less = a.AverageRating < b.AverageRating
		case "updated_at":
			less = a.UpdatedAt.Before(b.UpdatedAt)
		default:
			less = a.CreatedAt.Before(b.CreatedAt)
		}
		if !ord.Ascending {
			return !less
		}
		return less
	})
	return courses, nil
}

func (db *DB) CountCoursesByStatus(ctx context.Context, schoolID string, exec ...core.DBExecutor) (map[string]int, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	counts := make(map[string]int)
	for _, c := range db.courses {
		if c.SchoolID == schoolID {
			counts[c.Status]++
		}
	}
	return counts, nil
}

func (db *DB) UpdateCourse(ctx context.Context, c catalog.Course, exec ...core.DBExecutor) (catalog.Course, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.courses[c.ID]
	if !ok {
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	// counters are maintained by their own methods
	c.SchoolID, c.ViewsCount, c.AverageRating, c.CreatedAt = orig.SchoolID, orig.ViewsCount, orig.AverageRating, orig.CreatedAt
	db.courses[c.ID] = c
	return c, nil
}

func (db *DB) DeleteCourse(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.courses[id]; !ok {
		return catalog.ErrCourseNotFound
	}
	db.deleteCourse(id)
	return nil
}

func (db *DB) updateCourse(id string, fn func(c *catalog.Course)) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if c, ok := db.courses[id]; ok {
		fn(&c)
		db.courses[id] = c
	}
}

func (db *DB) IncrementCourseViews(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.updateCourse(id, func(c *catalog.Course) { c.ViewsCount++ })
	return nil
}

func (db *DB) SetCourseDuration(ctx context.Context, id string, hours float64, exec ...core.DBExecutor) error {
	db.updateCourse(id, func(c *catalog.Course) { c.DurationHours = hours })
	return nil
}

func (db *DB) SetCourseRating(ctx context.Context, id string, rating float64, exec ...core.DBExecutor) error {
	db.updateCourse(id, func(c *catalog.Course) { c.AverageRating = rating })
	return nil
}

// Subjects

func sortSubjects(subjects []catalog.Subject) {
	sort.Slice(subjects, func(i, j int) bool {
		a, b := subjects[i], subjects[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (db *DB) CreateSubject(ctx context.Context, s catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	s.ID = newID()
	db.subjects[s.ID] = s
	return s, nil
}

func (db *DB) GetSubject(ctx context.Context, courseID, id string, exec ...core.DBExecutor) (catalog.Subject, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if s, ok := db.subjects[id]; ok && s.CourseID == courseID {
		return s, nil
	}
	return catalog.Subject{}, catalog.ErrSubjectNotFound
}

func (db *DB) QuerySubjects(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]catalog.Subject, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	subjects := make([]catalog.Subject, 0)
	for _, s := range db.subjects {
		if s.CourseID == courseID {
			subjects = append(subjects, s)
		}
	}
	sortSubjects(subjects)
	return subjects, nil
}

func (db *DB) QueryLessonSubjects(ctx context.Context, lessonID string, exec ...core.DBExecutor) ([]catalog.Subject, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	subjects := make([]catalog.Subject, 0)
	for link := range db.subjectLessons {
		if link[1] != lessonID {
			continue
		}
		if s, ok := db.subjects[link[0]]; ok {
			subjects = append(subjects, s)
		}
	}
	sortSubjects(subjects)
	return subjects, nil
}

func (db *DB) UpdateSubject(ctx context.Context, s catalog.Subject, exec ...core.DBExecutor) (catalog.Subject, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.subjects[s.ID]
	if !ok {
		return catalog.Subject{}, catalog.ErrSubjectNotFound
	}
	orig.Title, orig.Description, orig.Order, orig.Status = s.Title, s.Description, s.Order, s.Status
	db.subjects[s.ID] = orig
	return orig, nil
}

func (db *DB) DeleteSubject(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.subjects[id]; !ok {
		return catalog.ErrSubjectNotFound
	}
	db.deleteSubject(id)
	return nil
}

// Lessons

func (db *DB) CreateLesson(ctx context.Context, l catalog.Lesson, exec ...core.DBExecutor) (catalog.Lesson, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	l.ID = newID()
	db.lessons[l.ID] = l
	return l, nil
}

func (db *DB) GetLesson(ctx context.Context, schoolID, id string, exec ...core.DBExecutor) (catalog.Lesson, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	if l, ok := db.lessons[id]; ok && l.SchoolID == schoolID {
		return l, nil
	}
	return catalog.Lesson{}, catalog.ErrLessonNotFound
}

func (db *DB) QueryLessons(ctx context.Context, filter catalog.LessonFilter, exec ...core.DBExecutor) ([]catalog.Lesson, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	var ids map[string]bool
	switch {
	case filter.SubjectID != "":
		ids = make(map[string]bool)
		for link := range db.subjectLessons {
			if link[0] == filter.SubjectID {
				ids[link[1]] = true
			}
		}
	case filter.CourseID != "":
		ids = make(map[string]bool)
		for link := range db.subjectLessons {
			if s, ok := db.subjects[link[0]]; ok && s.CourseID == filter.CourseID {
				ids[link[1]] = true
			}
		}
	case filter.SchoolID == "":
		return []catalog.Lesson{}, nil
	}

	lessons := make([]catalog.Lesson, 0)
	for _, l := range db.lessons {
		if ids != nil && !ids[l.ID] {
			continue
		}
		if ids == nil && l.SchoolID != filter.SchoolID {
			continue
		}
		if filter.PublishedOnly && !l.IsPublished() {
			continue
		}
		lessons = append(lessons, l)
	}
	sort.Slice(lessons, func(i, j int) bool {
		a, b := lessons[i], lessons[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return lessons, nil
}

func (db *DB) UpdateLesson(ctx context.Context, l catalog.Lesson, exec ...core.DBExecutor) (catalog.Lesson, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	orig, ok := db.lessons[l.ID]
	if !ok {
		return catalog.Lesson{}, catalog.ErrLessonNotFound
	}
	l.SchoolID, l.CreatedAt = orig.SchoolID, orig.CreatedAt
	db.lessons[l.ID] = l
	return l, nil
}

func (db *DB) DeleteLesson(ctx context.Context, id string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	if _, ok := db.lessons[id]; !ok {
		return catalog.ErrLessonNotFound
	}
	db.deleteLesson(id)
	return nil
}

func (db *DB) LinkLesson(ctx context.Context, subjectID, lessonID string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.subjectLessons[[2]string{subjectID, lessonID}] = true
	return nil
}

func (db *DB) UnlinkLesson(ctx context.Context, subjectID, lessonID string, exec ...core.DBExecutor) error {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	delete(db.subjectLessons, [2]string{subjectID, lessonID})
	return nil
}

func (db *DB) CreateLessonVideo(ctx context.Context, v catalog.LessonVideo, exec ...core.DBExecutor) (catalog.LessonVideo, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	v.ID = newID()
	db.videos[v.ID] = v
	return v, nil
}

func (db *DB) QueryLessonVideos(ctx context.Context, lessonIDs []string, exec ...core.DBExecutor) ([]catalog.LessonVideo, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	wanted := make(map[string]bool, len(lessonIDs))
	for _, id := range lessonIDs {
		wanted[id] = true
	}
	videos := make([]catalog.LessonVideo, 0)
	for _, v := range db.videos {
		if wanted[v.LessonID] {
			videos = append(videos, v)
		}
	}
	sort.Slice(videos, func(i, j int) bool {
		if videos[i].Order != videos[j].Order {
			return videos[i].Order < videos[j].Order
		}
		return videos[i].ID < videos[j].ID
	})
	return videos, nil
}

// Reviews

func (db *DB) UpsertReview(ctx context.Context, r catalog.Review, exec ...core.DBExecutor) (catalog.Review, error) {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	for id, other := range db.reviews {
		if other.CourseID == r.CourseID && other.StudentID == r.StudentID {
			other.Rating, other.Comment, other.UpdatedAt = r.Rating, r.Comment, r.UpdatedAt
			db.reviews[id] = other
			return other, nil
		}
	}
	r.ID = newID()
	db.reviews[r.ID] = r
	return r, nil
}

func (db *DB) QueryReviews(ctx context.Context, courseID string, exec ...core.DBExecutor) ([]catalog.Review, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	reviews := make([]catalog.Review, 0)
	for _, r := range db.reviews {
		if r.CourseID == courseID {
			reviews = append(reviews, r)
		}
	}
	sort.Slice(reviews, func(i, j int) bool { return reviews[i].CreatedAt.After(reviews[j].CreatedAt) })
	return reviews, nil
}

func (db *DB) AverageRating(ctx context.Context, courseID string, exec ...core.DBExecutor) (float64, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()
	var sum, n int
	for _, r := range db.reviews {
		if r.CourseID == courseID {
			sum += r.Rating
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

package catalog_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/tests"
)

func TestNewDuration(t *testing.T) {
	tests := []struct {
		minutes float64
		want    string
	}{
		{0, "0min"},
		{45, "45min"},
		{60, "1h 0min"},
		{135.5, "2h 15min"},
	}
	for _, tt := range tests {
		d := catalog.NewDuration(tt.minutes, 3)
		assert.Equal(t, tt.want, d.Formatted)
		assert.Equal(t, 3, d.Lessons)
		assert.Equal(t, int(tt.minutes)/60, d.Hours)
	}
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 30.0, catalog.EstimateDuration(catalog.ContentVideo, ""))
	assert.Equal(t, 5.0, catalog.EstimateDuration(catalog.ContentText, "abc"))
	assert.Equal(t, 3.0, catalog.EstimateDuration(catalog.ContentQuiz, "-2"))
	assert.Equal(t, 2.0, catalog.EstimateDuration(catalog.ContentFile, "0"))
	assert.Equal(t, 12.5, catalog.EstimateDuration(catalog.ContentVideo, "12,5"))
}

func TestLesson_QuizOptions(t *testing.T) {
	l := catalog.Lesson{ContentType: catalog.ContentQuiz, Content: " 4, 5 ,, 6 "}
	options, correct := l.QuizOptions()
	assert.Equal(t, []string{"4", "5", "6"}, options)
	assert.Equal(t, "4", correct)

	l.ContentType = catalog.ContentText
	options, correct = l.QuizOptions()
	assert.Nil(t, options)
	assert.Empty(t, correct)
}

func TestLesson_EffectiveDuration(t *testing.T) {
	l := catalog.Lesson{ID: "l1", ContentType: catalog.ContentVideo, Duration: 30}
	assert.Equal(t, 30.0, l.EffectiveDuration(nil))

	videos := []catalog.LessonVideo{
		{LessonID: "l1", Duration: 12},
		{LessonID: "l1", Duration: 8.5},
		{LessonID: "l2", Duration: 100},
	}
	assert.Equal(t, 20.5, l.EffectiveDuration(videos))

	l.ContentType = catalog.ContentText
	assert.Equal(t, 30.0, l.EffectiveDuration(videos))
}

func TestCanEdit(t *testing.T) {
	c := catalog.Course{InstructorID: null.StringFrom("m-teacher")}
	instructor := access.Context{Member: school.Member{ID: "m-teacher", Role: school.RoleTeacher}}
	other := access.Context{Member: school.Member{ID: "m-other", Role: school.RoleTeacher}}
	admin := access.Context{Member: school.Member{ID: "m-admin", Role: school.RoleAdmin}}

	assert.Equal(t, access.Allow(), catalog.CanEdit(instructor, c))
	assert.Equal(t, access.Allow(), catalog.CanEdit(admin, c))
	assert.Equal(t, access.Deny(access.NotOwner), catalog.CanEdit(other, c))
	assert.Equal(t, access.Deny(access.NotOwner), catalog.CanEdit(other, catalog.Course{}))
}

type fixture struct {
	svcs    *testutil.Services
	ac      access.Context
	student school.Member
	cat     catalog.Category
}

func newFixture(t *testing.T) fixture {
	svcs := testutil.NewServices(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	_, student := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)
	return fixture{
		svcs:    svcs,
		ac:      testutil.Access(t, svcs, sch, teacher),
		student: student,
		cat:     testutil.CreateCategory(t, svcs.Catalog, "Programação"),
	}
}

func TestService_Courses(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.svcs.Catalog

	ci := catalog.CourseInput{
		Title: "Go Avançado", Description: "Concorrência", CategoryID: f.cat.ID,
		Status: catalog.CourseActive, Price: "1500,50", MaxStudents: "abc", DurationHours: "-1",
	}
	require.NoError(t, ci.Validate(f.svcs.Validate))
	c, err := svc.CreateCourse(ctx, f.ac, ci)
	require.NoError(t, err)
	assert.Equal(t, "go-avancado", c.Slug)
	assert.Equal(t, 1500.5, c.Price)
	assert.False(t, c.MaxStudents.Valid)
	assert.Equal(t, catalog.LevelBeginner, c.Level)
	assert.True(t, c.PublishedAt.Valid)
	assert.Equal(t, null.StringFrom(f.ac.Member.ID), c.InstructorID)

	t.Run("slug collision", func(t *testing.T) {
		c2, err := svc.CreateCourse(ctx, f.ac, ci)
		require.NoError(t, err)
		assert.Regexp(t, `^go-avancado-[a-z0-9]{4}$`, c2.Slug)
		require.NoError(t, svc.DeleteCourse(ctx, c2))
	})

	t.Run("unknown category", func(t *testing.T) {
		bad := ci
		bad.CategoryID = "nope"
		_, err := svc.CreateCourse(ctx, f.ac, bad)
		var vErr *core.ValidationError
		assert.True(t, errors.As(err, &vErr), err)
	})

	t.Run("update keeps slug and clears max students", func(t *testing.T) {
		up := ci
		up.Title = "Go para Todos"
		up.MaxStudents = "30"
		updated, err := svc.UpdateCourse(ctx, c, up)
		require.NoError(t, err)
		assert.Equal(t, "go-avancado", updated.Slug)
		assert.Equal(t, null.IntFrom(30), updated.MaxStudents)

		up.MaxStudents = ""
		updated, err = svc.UpdateCourse(ctx, updated, up)
		require.NoError(t, err)
		assert.False(t, updated.MaxStudents.Valid)
		c = updated
	})

	t.Run("duplicate", func(t *testing.T) {
		dup, err := svc.DuplicateCourse(ctx, f.ac, c)
		require.NoError(t, err)
		assert.NotEqual(t, c.ID, dup.ID)
		assert.Equal(t, "Go para Todos (Cópia)", dup.Title)
		assert.Equal(t, "go-para-todos-copia", dup.Slug)
		assert.Equal(t, catalog.CourseDraft, dup.Status)
		assert.False(t, dup.PublishedAt.Valid)
		assert.Equal(t, c.Price, dup.Price)
	})

	t.Run("search", func(t *testing.T) {
		courses, err := svc.QueryCourses(ctx, catalog.CourseFilter{SchoolID: f.ac.School.ID, Search: " todos "}, core.DBOrdering{})
		require.NoError(t, err)
		assert.Len(t, courses, 2)

		courses, err = svc.QueryCourses(ctx, catalog.CourseFilter{SchoolID: f.ac.School.ID, Status: "ACTIVE"}, core.DBOrdering{})
		require.NoError(t, err)
		require.Len(t, courses, 1)
		assert.Equal(t, c.ID, courses[0].ID)

		counts, err := svc.CountCoursesByStatus(ctx, f.ac.School.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, counts[catalog.CourseActive])
		assert.Equal(t, 1, counts[catalog.CourseDraft])
	})
}

func TestService_LessonDurations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.svcs.Catalog
	c := testutil.CreateCourse(t, svc, f.ac, "Go", f.cat.ID, catalog.CourseActive)
	s1 := testutil.CreateSubject(t, svc, c, "Introdução")
	s2 := testutil.CreateSubject(t, svc, c, "Concorrência")
	assert.Equal(t, 1, s1.Order)
	assert.Equal(t, 2, s2.Order)

	video := testutil.CreateLesson(t, svc, f.ac, c, s1, catalog.LessonInput{
		Title:       "Instalação",
		ContentType: catalog.ContentVideo,
		Videos: []catalog.VideoInput{
			{Title: "Parte 1", URL: "https://videos.example.ao/1", Duration: "20"},
			{Title: "sem url"},
			{Title: "Parte 2", URL: "https://videos.example.ao/2", Duration: "25"},
		},
	})
	assert.Equal(t, 45.0, video.Duration)
	videos, err := svc.LessonVideos(ctx, video.ID)
	require.NoError(t, err)
	assert.Len(t, videos, 2)

	text := testutil.CreateLesson(t, svc, f.ac, c, s2, catalog.LessonInput{Title: "Goroutines"})
	assert.Equal(t, 5.0, text.Duration)
	draft := testutil.CreateLesson(t, svc, f.ac, c, s2, catalog.LessonInput{Title: "Canais", Status: catalog.StatusDraft, Duration: "10"})
	assert.Equal(t, 2, draft.Order)

	d, err := svc.CourseDuration(ctx, c, false)
	require.NoError(t, err)
	assert.Equal(t, 60.0, d.Minutes)
	assert.Equal(t, "1h 0min", d.Formatted)
	assert.Equal(t, 3, d.Lessons)

	d, err = svc.CourseDuration(ctx, c, true)
	require.NoError(t, err)
	assert.Equal(t, 50.0, d.Minutes)

	stored, err := svc.GetCourse(ctx, c.SchoolID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.0, stored.DurationHours)

	t.Run("add video", func(t *testing.T) {
		v, err := svc.AddLessonVideo(ctx, c, video, catalog.VideoInput{URL: "https://videos.example.ao/3", Duration: "15"})
		require.NoError(t, err)
		assert.Equal(t, 3, v.Order)

		d, err := svc.CourseDuration(ctx, c, false)
		require.NoError(t, err)
		assert.Equal(t, 75.0, d.Minutes)
	})

	t.Run("published lessons", func(t *testing.T) {
		ids, err := svc.PublishedLessonIDs(ctx, c.ID, "")
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{video.ID, text.ID}, ids)

		ids, err = svc.PublishedLessonIDs(ctx, c.ID, s2.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{text.ID}, ids)

		subject, err := svc.LessonSubject(ctx, c, text)
		require.NoError(t, err)
		assert.Equal(t, s2.ID, subject.ID)
	})

	t.Run("delete subject keeps lessons", func(t *testing.T) {
		require.NoError(t, svc.DeleteSubject(ctx, c, s2))

		_, err := svc.GetLesson(ctx, c.SchoolID, text.ID)
		require.NoError(t, err)
		_, err = svc.LessonSubject(ctx, c, text)
		assert.True(t, core.IsNotFound(err))

		stored, err := svc.GetCourse(ctx, c.SchoolID, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 1.0, stored.DurationHours)
	})
}

func TestService_Categories(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.svcs.Catalog

	_, err := svc.CreateCategory(ctx, catalog.NewCategory{Name: "programação"})
	var vErr *core.ValidationError
	require.True(t, errors.As(err, &vErr), err)
	assert.Equal(t, []core.FieldError{{Field: "name", Error: catalog.ErrCategoryExists.Error()}}, vErr.Fields)

	design, err := svc.CreateCategory(ctx, catalog.NewCategory{Name: "Design Gráfico", Color: "#FF0000"})
	require.NoError(t, err)
	assert.Equal(t, "design-grafico", design.Slug)

	renamed, err := svc.UpdateCategory(ctx, design, catalog.NewCategory{Name: "Design"})
	require.NoError(t, err)
	assert.Equal(t, "Design", renamed.Name)

	_, err = svc.UpdateCategory(ctx, renamed, catalog.NewCategory{Name: "Programação"})
	assert.Error(t, err)

	c := testutil.CreateCourse(t, svc, f.ac, "Go", f.cat.ID, catalog.CourseActive)
	err = svc.DeleteCategory(ctx, f.ac.School.ID, f.cat)
	assert.Equal(t, catalog.ErrCategoryInUse{Count: 1}, err)

	require.NoError(t, svc.DeleteCourse(ctx, c))
	require.NoError(t, svc.DeleteCategory(ctx, f.ac.School.ID, f.cat))
	_, err = svc.GetCategory(ctx, f.cat.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestService_SaveReview(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	svc := f.svcs.Catalog
	c := testutil.CreateCourse(t, svc, f.ac, "Go", f.cat.ID, catalog.CourseActive)

	_, err := svc.SaveReview(ctx, c, f.student.ID, catalog.ReviewInput{Rating: 5})
	require.NoError(t, err)
	_, err = svc.SaveReview(ctx, c, "another-student", catalog.ReviewInput{Rating: 2})
	require.NoError(t, err)

	stored, err := svc.GetCourse(ctx, c.SchoolID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3.5, stored.AverageRating)

	// replacing a review keeps one per student
	r, err := svc.SaveReview(ctx, c, f.student.ID, catalog.ReviewInput{Rating: 3, Comment: "Bom"})
	require.NoError(t, err)
	assert.Equal(t, "Bom", r.Comment)

	reviews, err := svc.QueryReviews(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, reviews, 2)

	stored, err = svc.GetCourse(ctx, c.SchoolID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2.5, stored.AverageRating)
}

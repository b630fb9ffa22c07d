package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/educarcms/educar/apps/api/echo"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/learning"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/tests"
)

func Test_catalogApi_categories(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, _ := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)
	used := testutil.CreateCategory(t, svcs.Catalog, "Programação")
	unused := testutil.CreateCategory(t, svcs.Catalog, "Música")
	testutil.CreateCourse(t, svcs.Catalog, testutil.Access(t, svcs, sch, teacher), "Go", used.ID, catalog.CourseActive)

	ownerToken := getToken(t, svcs, owner)
	teacherToken := getToken(t, svcs, teacher)
	catPath := "/v1/school/" + sch.Slug + "/category"
	dashboardPath := "/v1/school/" + sch.Slug + "/dashboard"

	t.Run("students are redirected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, catPath, getToken(t, svcs, student))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, dashboardPath, string(access.StaffRequired))
	})

	t.Run("teachers cannot delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, catPath+"/"+unused.ID, teacherToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, dashboardPath, string(access.AdminRequired))
	})

	t.Run("query counts the school courses", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, catPath, teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var cats []catalog.Category
		unmarshal(t, rec, &cats)
		require.Len(t, cats, 2)
		counts := map[string]int{}
		for _, c := range cats {
			counts[c.ID] = c.CoursesCount
		}
		assert.Equal(t, 1, counts[used.ID])
		assert.Equal(t, 0, counts[unused.ID])
	})

	tests := []httpTest{
		{
			name: "create requires a name", method: http.MethodPost, path: catPath, token: teacherToken,
			body:     []byte(`{"description":"no name"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"this field is required"}`),
		},
		{
			name: "create duplicated", method: http.MethodPost, path: catPath, token: teacherToken,
			body:     []byte(`{"name":"Música"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"a category with this name already exists"}`),
		},
		{
			name: "delete in use", method: http.MethodDelete, path: catPath + "/" + used.ID, token: ownerToken,
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"error":"this category is used by 1 course(s) and cannot be deleted"}`),
		},
		{
			name: "delete unused", method: http.MethodDelete, path: catPath + "/" + unused.ID, token: ownerToken,
			wantCode: http.StatusNoContent,
		},
		{
			name: "delete unknown", method: http.MethodDelete, path: catPath + "/" + unused.ID, token: ownerToken,
			wantCode: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, catPath, teacherToken, []byte(`{"name":"Artes Visuais","color":"#aa00cc"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var cat catalog.Category
		unmarshal(t, rec, &cat)
		assert.NotEmpty(t, cat.ID)
		assert.Equal(t, "artes-visuais", cat.Slug)
		assert.Equal(t, "#aa00cc", cat.Color)
	})
}

func Test_catalogApi_courses(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	otherTeacher, _ := testutil.AddMember(t, svcs, sch, "other", school.RoleTeacher)
	student, _ := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)
	cat := testutil.CreateCategory(t, svcs.Catalog, "Programação")

	ac := testutil.Access(t, svcs, sch, teacher)
	active := testutil.CreateCourse(t, svcs.Catalog, ac, "Go", cat.ID, catalog.CourseActive)
	draft := testutil.CreateCourse(t, svcs.Catalog, ac, "Rust", cat.ID, catalog.CourseDraft)
	subject := testutil.CreateSubject(t, svcs.Catalog, active, "Introdução")
	testutil.CreateLesson(t, svcs.Catalog, ac, active, subject, catalog.LessonInput{Title: "Olá", Duration: "10"})
	hidden, err := svcs.Catalog.CreateSubject(context.Background(), active, catalog.SubjectInput{Title: "Rascunho", Status: catalog.StatusDraft})
	require.NoError(t, err)

	teacherToken := getToken(t, svcs, teacher)
	studentToken := getToken(t, svcs, student)
	coursesPath := "/v1/school/" + sch.Slug + "/courses"

	t.Run("students only list active courses", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+"?status=draft", studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var courses []catalog.Course
		unmarshal(t, rec, &courses)
		require.Len(t, courses, 1)
		assert.Equal(t, active.ID, courses[0].ID)
	})

	t.Run("staff filter by status", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+"?status=draft", teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var courses []catalog.Course
		unmarshal(t, rec, &courses)
		require.Len(t, courses, 1)
		assert.Equal(t, draft.ID, courses[0].ID)
	})

	t.Run("draft course is hidden from students", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+"/"+draft.ID, studentToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, coursesPath, string(access.DraftContent))
	})

	t.Run("retrieve as student", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+"/"+active.ID, studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp CourseResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, active.ID, resp.Course.ID)
		assert.Equal(t, 1, resp.Course.ViewsCount)
		assert.False(t, resp.CanEdit)
		assert.False(t, resp.IsEnrolled)
		require.Len(t, resp.Subjects, 1)
		assert.Equal(t, subject.ID, resp.Subjects[0].ID)
		assert.Equal(t, 1, resp.Duration.Lessons)
		assert.Equal(t, float64(10), resp.Duration.Minutes)
		assert.Equal(t, "10min", resp.Duration.Formatted)
	})

	t.Run("retrieve as instructor", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+"/"+active.ID, teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp CourseResponse
		unmarshal(t, rec, &resp)
		assert.True(t, resp.CanEdit)
		assert.Len(t, resp.Subjects, 2)
		ids := []string{resp.Subjects[0].ID, resp.Subjects[1].ID}
		assert.Contains(t, ids, hidden.ID)
	})

	t.Run("create", func(t *testing.T) {
		body := []byte(`{"title":"Python","description":"Curso de Python","category_id":"` + cat.ID + `","price":"abc","max_students":"20"}`)
		req, rec := newAuthRequest(http.MethodPost, coursesPath, teacherToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c catalog.Course
		unmarshal(t, rec, &c)
		assert.Equal(t, "python", c.Slug)
		assert.Equal(t, catalog.CourseDraft, c.Status)
		assert.Equal(t, float64(0), c.Price)
		assert.True(t, c.MaxStudents.Valid)
		assert.Equal(t, 20, c.MaxStudents.Int)
		assert.True(t, c.CertificateAvailable)
	})

	t.Run("create requires fields", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, coursesPath, teacherToken, []byte(`{"level":"expert"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var errs map[string]string
		unmarshal(t, rec, &errs)
		for _, fld := range []string{"title", "description", "category_id", "level"} {
			assert.Contains(t, errs, fld)
		}
	})

	t.Run("students cannot create", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, coursesPath, studentToken, []byte(`{}`))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, "/v1/school/"+sch.Slug+"/dashboard", string(access.StaffRequired))
	})

	t.Run("other teachers cannot edit", func(t *testing.T) {
		body := []byte(`{"title":"Go!","description":"Go","category_id":"` + cat.ID + `"}`)
		req, rec := newAuthRequest(http.MethodPut, coursesPath+"/"+active.ID, getToken(t, svcs, otherTeacher), body)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, coursesPath+"/"+active.ID, string(access.NotOwner))
	})

	t.Run("admins can edit", func(t *testing.T) {
		body := []byte(`{"title":"Go Avançado","description":"Go","category_id":"` + cat.ID + `","status":"active"}`)
		req, rec := newAuthRequest(http.MethodPut, coursesPath+"/"+active.ID, getToken(t, svcs, owner), body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var c catalog.Course
		unmarshal(t, rec, &c)
		assert.Equal(t, "Go Avançado", c.Title)
		assert.Equal(t, active.Slug, c.Slug)
	})

	t.Run("duplicate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, coursesPath+"/"+active.ID+"/duplicate", teacherToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var c catalog.Course
		unmarshal(t, rec, &c)
		assert.NotEqual(t, active.ID, c.ID)
		assert.Equal(t, "Go Avançado"+catalog.DuplicateSuffix, c.Title)
		assert.Equal(t, catalog.CourseDraft, c.Status)
		assert.Equal(t, 0, c.ViewsCount)
	})

	t.Run("unknown course", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+"/unknown", teacherToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func Test_catalogApi_enroll(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, _ := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)
	student2, _ := testutil.AddMember(t, svcs, sch, "student2", school.RoleStudent)
	cat := testutil.CreateCategory(t, svcs.Catalog, "Programação")

	ac := testutil.Access(t, svcs, sch, teacher)
	limited := testutil.CreateCourse(t, svcs.Catalog, ac, "Go", cat.ID, catalog.CourseActive, 1)
	archived := testutil.CreateCourse(t, svcs.Catalog, ac, "Cobol", cat.ID, catalog.CourseArchived)

	studentToken := getToken(t, svcs, student)
	coursesPath := "/v1/school/" + sch.Slug + "/courses/"
	enrollPath := func(c catalog.Course) string { return coursesPath + c.ID + "/enroll" }

	t.Run("teachers cannot enroll", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, enrollPath(limited), getToken(t, svcs, teacher))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, coursesPath+limited.ID, string(access.StudentRequired))
	})

	t.Run("inactive course", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, enrollPath(archived), studentToken)
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, coursesPath+archived.ID, string(access.CourseInactive))
	})

	t.Run("review before enrolling", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, coursesPath+limited.ID+"/reviews", studentToken, []byte(`{"rating":5}`))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, coursesPath+limited.ID, string(access.NotEnrolled))
	})

	var enrollment learning.Enrollment
	t.Run("enroll", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, enrollPath(limited), studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		unmarshal(t, rec, &enrollment)
		assert.Equal(t, limited.ID, enrollment.CourseID)
		assert.Equal(t, learning.EnrollmentActive, enrollment.Status)
	})

	t.Run("enroll twice", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, enrollPath(limited), studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var e learning.Enrollment
		unmarshal(t, rec, &e)
		assert.Equal(t, enrollment.ID, e.ID)
	})

	t.Run("course full", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, enrollPath(limited), getToken(t, svcs, student2))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, coursesPath+limited.ID, string(access.CourseFull))
	})

	t.Run("my courses", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+"my", studentToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var courses []learning.EnrolledCourse
		unmarshal(t, rec, &courses)
		require.Len(t, courses, 1)
		assert.Equal(t, limited.ID, courses[0].Course.ID)
	})

	t.Run("review", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, coursesPath+limited.ID+"/reviews", studentToken, []byte(`{"rating":6}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		req, rec = newAuthRequest(http.MethodPost, coursesPath+limited.ID+"/reviews", studentToken, []byte(`{"rating":4,"comment":" Bom "}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var r catalog.Review
		unmarshal(t, rec, &r)
		assert.Equal(t, 4, r.Rating)
		assert.Equal(t, "Bom", r.Comment)

		c, err := svcs.Catalog.GetCourse(context.Background(), sch.ID, limited.ID)
		require.NoError(t, err)
		assert.Equal(t, float64(4), c.AverageRating)
	})

	t.Run("delete course with students", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, coursesPath+limited.ID, getToken(t, svcs, teacher))
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: catalog.ErrCourseHasStudents.Error()}),
		}, rec)
	})

	t.Run("analytics", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, coursesPath+limited.ID+"/analytics", getToken(t, svcs, teacher))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp AnalyticsResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, limited.ID, resp.Course.ID)
		require.Len(t, resp.Students, 1)
	})
}

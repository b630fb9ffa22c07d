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
	"github.com/educarcms/educar/core/dashboard"
	"github.com/educarcms/educar/core/school"
	emailsvc "github.com/educarcms/educar/services/email"
	"github.com/educarcms/educar/tests"
)

func Test_tenantMiddleware(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	other := testutil.CreateSchool(t, svcs.School, "Escola Huambo", owner)
	stranger, _ := testutil.AddMember(t, svcs, other, "stranger", school.RoleStudent)

	t.Run("missing token", func(t *testing.T) {
		req, rec := newRequest(http.MethodGet, "/v1/school/"+sch.Slug+"/dashboard")
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)}, rec)
	})

	t.Run("unknown school", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/school/nowhere/dashboard", getToken(t, svcs, owner))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("member of another school", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/school/"+sch.Slug+"/dashboard", getToken(t, svcs, stranger))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, "/", string(access.NotMember))
	})
}

func Test_schoolApi_dashboard(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, _ := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)

	cat := testutil.CreateCategory(t, svcs.Catalog, "Programação")
	ac := testutil.Access(t, svcs, sch, teacher)
	testutil.CreateCourse(t, svcs.Catalog, ac, "Go", cat.ID, catalog.CourseActive)
	testutil.CreateCourse(t, svcs.Catalog, ac, "Rust", cat.ID, catalog.CourseDraft)

	for _, usr := range []struct {
		name  string
		token string
	}{
		{"owner", getToken(t, svcs, owner)},
		{"student", getToken(t, svcs, student)},
	} {
		t.Run(usr.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/school/"+sch.Slug+"/dashboard", usr.token)
			app.ServeHTTP(rec, req)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

			var stats dashboard.Stats
			unmarshal(t, rec, &stats)
			assert.Equal(t, sch.ID, stats.School.ID)
			assert.Equal(t, 2, stats.TotalCourses)
			assert.Equal(t, 1, stats.ActiveCourses)
			assert.Equal(t, 1, stats.DraftCourses)
			assert.Equal(t, 3, stats.TotalMembers)
			assert.Equal(t, 1, stats.TotalStudents)
			assert.Equal(t, 1, stats.TotalTeachers)
			assert.Equal(t, 1, stats.TotalAdmins)
			assert.Equal(t, 0, stats.ActiveEnrollments)
		})
	}
}

func Test_schoolApi_settings(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	ownerToken := getToken(t, svcs, owner)
	settingsPath := "/v1/school/" + sch.Slug + "/settings"
	appearancePath := "/v1/school/" + sch.Slug + "/appearance"

	t.Run("teacher is redirected to the dashboard", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, settingsPath, getToken(t, svcs, teacher))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, "/v1/school/"+sch.Slug+"/dashboard", string(access.AdminRequired))
	})

	tests := []httpTest{
		{
			name: "name is required", method: http.MethodPut, path: settingsPath, token: ownerToken,
			body:     []byte(`{"name":"  ","email":"info@kwanza.ao"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"name":"this field is required"}`),
		},
		{
			name: "invalid email", method: http.MethodPut, path: settingsPath, token: ownerToken,
			body:     []byte(`{"name":"Kwanza","email":"kwanza"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid color", method: http.MethodPut, path: appearancePath, token: ownerToken,
			body:     []byte(`{"primary_color":"blue"}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name: "invalid theme mode", method: http.MethodPut, path: appearancePath, token: ownerToken,
			body:     []byte(`{"theme_mode":"sepia"}`),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	t.Run("update settings", func(t *testing.T) {
		body := []byte(`{"name":" Escola Kwanza Sul ","email":"INFO@kwanza.ao","slogan":"Aprender"}`)
		req, rec := newAuthRequest(http.MethodPut, settingsPath, ownerToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got school.School
		unmarshal(t, rec, &got)
		assert.Equal(t, "Escola Kwanza Sul", got.Name)
		assert.Equal(t, "info@kwanza.ao", got.Email)
		assert.Equal(t, "Aprender", got.Slogan)
		assert.Equal(t, sch.Slug, got.Slug)
	})

	t.Run("update appearance keeps empty fields", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, appearancePath, ownerToken, []byte(`{"primary_color":"#112233","theme_mode":"DARK"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		req, rec = newAuthRequest(http.MethodPut, appearancePath, ownerToken, []byte(`{"secondary_color":"#445566"}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got school.School
		unmarshal(t, rec, &got)
		assert.Equal(t, "#112233", got.PrimaryColor)
		assert.Equal(t, "#445566", got.SecondaryColor)
		assert.Equal(t, "dark", got.ThemeMode)
	})
}

func Test_memberApi(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	ownerMember, err := svcs.School.GetMember(context.Background(), sch.ID, owner.ID)
	require.NoError(t, err)
	_, _ = testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, studentMember := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)
	ownerToken := getToken(t, svcs, owner)
	usersPath := "/v1/school/" + sch.Slug + "/users"

	t.Run("students are redirected to the dashboard", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, usersPath, getToken(t, svcs, student))
		app.ServeHTTP(rec, req)
		checkDenied(t, rec, "/v1/school/"+sch.Slug+"/dashboard", string(access.AdminRequired))
	})

	t.Run("query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, usersPath+"?filter=students", ownerToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp MembersResponse
		unmarshal(t, rec, &resp)
		require.Len(t, resp.Results, 1)
		assert.Equal(t, student.Username, resp.Results[0].Username)
		assert.Equal(t, school.FilterStudents, resp.Filter)
		assert.Equal(t, 3, resp.Counts[school.FilterAll])
		assert.Equal(t, 1, resp.Counts[school.FilterTeachers])
		assert.Equal(t, 1, resp.Counts[school.FilterAdmins])
	})

	t.Run("roles", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, usersPath+"/roles", ownerToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, school.Roles)}, rec)
	})

	t.Run("create requires fields", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, usersPath, ownerToken, []byte(`{"role":"janitor"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var errs map[string]string
		unmarshal(t, rec, &errs)
		for _, fld := range []string{"full_name", "username", "email", "phone", "role"} {
			assert.Contains(t, errs, fld)
		}
	})

	t.Run("create", func(t *testing.T) {
		svcs.Conf.DefaultUserPassword = "Kwanza#2022"
		emailsvc.ResetSentMessages()
		body := []byte(`{"full_name":"Nova Aluna","username":"2024001","email":"NOVA@test.ao","phone":"923000000","role":"Student"}`)
		req, rec := newAuthRequest(http.MethodPost, usersPath, ownerToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var md school.MemberDetail
		unmarshal(t, rec, &md)
		assert.Equal(t, "2024001", md.Username)
		assert.Equal(t, "nova@test.ao", md.Email)
		assert.Equal(t, school.RoleStudent, md.Role)
		assert.Equal(t, sch.ID, md.SchoolID)
		assert.True(t, md.IsActive)

		usr, err := svcs.User.GetByUsernameOrEmail(context.Background(), "2024001")
		require.NoError(t, err)
		assert.NoError(t, usr.CheckPassword("Kwanza#2022"))

		msgs := emailsvc.LastSentMessages()
		require.Len(t, msgs, 1)
		assert.Equal(t, "nova@test.ao", msgs[0].To[0].Address)
		assert.Contains(t, msgs[0].TextContent, sch.Name)
	})

	t.Run("create duplicated username", func(t *testing.T) {
		body := []byte(`{"full_name":"Outro","username":"2024001","email":"outro@test.ao","phone":"923000001","role":"student"}`)
		req, rec := newAuthRequest(http.MethodPost, usersPath, ownerToken, body)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"username":"a user with this username already exists"}`),
		}, rec)
	})

	t.Run("update", func(t *testing.T) {
		body := []byte(`{"role":"teacher","credits":12.5,"is_active":false}`)
		req, rec := newAuthRequest(http.MethodPut, usersPath+"/"+studentMember.ID, ownerToken, body)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var md school.MemberDetail
		unmarshal(t, rec, &md)
		assert.Equal(t, school.RoleTeacher, md.Role)
		assert.Equal(t, 12.5, md.Credits)
		assert.False(t, md.IsActive)
		assert.Equal(t, student.Email, md.Email)
	})

	t.Run("update member of another school", func(t *testing.T) {
		other := testutil.CreateSchool(t, svcs.School, "Escola Huambo", owner)
		_, m := testutil.AddMember(t, svcs, other, "foreigner", school.RoleStudent)
		req, rec := newAuthRequest(http.MethodPut, usersPath+"/"+m.ID, ownerToken, []byte(`{"role":"admin"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("delete self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, usersPath+"/"+ownerMember.ID, ownerToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: school.ErrSelfDelete.Error()}),
		}, rec)
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, usersPath+"/"+studentMember.ID, ownerToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

		_, err := svcs.School.GetMember(context.Background(), sch.ID, student.ID)
		assert.Error(t, err)
		_, err = svcs.User.GetByID(context.Background(), student.ID)
		assert.NoError(t, err)
	})
}

package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/educarcms/educar/apps/api/echo"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/tests"
)

func Test_profileApi(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, member := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)

	cat := testutil.CreateCategory(t, svcs.Catalog, "Programação")
	course := testutil.CreateCourse(t, svcs.Catalog, testutil.Access(t, svcs, sch, teacher), "Go", cat.ID, catalog.CourseActive)
	_, _, err := svcs.Learning.Enroll(context.Background(), testutil.Access(t, svcs, sch, student), course)
	require.NoError(t, err)

	base := "/v1/school/" + sch.Slug + "/profile"
	token := getToken(t, svcs, student)

	t.Run("retrieve creates default profile", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ProfileResponse
		unmarshal(t, rec, &resp)
		assert.Equal(t, student.ID, resp.User.ID)
		assert.Equal(t, member.ID, resp.Member.ID)
		assert.Equal(t, "light", resp.Profile.Theme)
		assert.Equal(t, "pt-BR", resp.Profile.Language)
		assert.True(t, resp.Profile.EmailCourseUpdates)
		require.Len(t, resp.EnrolledCourses, 1)
		assert.Equal(t, course.ID, resp.EnrolledCourses[0].Course.ID)
		assert.Equal(t, 0, resp.CompletedCourses)
		assert.Empty(t, resp.Certificates)
	})

	t.Run("teacher has no learning summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base, getToken(t, svcs, teacher))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp ProfileResponse
		unmarshal(t, rec, &resp)
		assert.Empty(t, resp.EnrolledCourses)
	})

	t.Run("update validation", func(t *testing.T) {
		for _, body := range []string{
			`{"gender":"robot"}`,
			`{"website":"not a url"}`,
			`{"birth_date":"12/05/2001"}`,
		} {
			req, rec := newAuthRequest(http.MethodPut, base, token, []byte(body))
			app.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		}
	})

	t.Run("update", func(t *testing.T) {
		body := `{"bio":" Estudante de Go ","gender":"FEMALE","birth_date":"2001-05-12","website":"https://example.ao"}`
		req, rec := newAuthRequest(http.MethodPut, base, token, []byte(body))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var p profile.Profile
		unmarshal(t, rec, &p)
		assert.Equal(t, "Estudante de Go", p.Bio)
		assert.Equal(t, "female", p.Gender)
		assert.Equal(t, "https://example.ao", p.Website)
		require.True(t, p.BirthDate.Valid)
		assert.Equal(t, "2001-05-12", p.BirthDate.Time.Format("2006-01-02"))
	})

	t.Run("preferences", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, base+"/preferences", token, []byte(`{"theme":"purple"}`))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		req, rec = newAuthRequest(http.MethodPut, base+"/preferences", token, []byte(`{"theme":"DARK","public_profile":false}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var p profile.Profile
		unmarshal(t, rec, &p)
		assert.Equal(t, "dark", p.Theme)
		assert.Equal(t, "pt-BR", p.Language)
		assert.False(t, p.PublicProfile)
		assert.True(t, p.ShowProgress)
	})

	t.Run("notifications", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, base+"/notifications", token, []byte(`{"email_messages":true}`))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var p profile.Profile
		unmarshal(t, rec, &p)
		assert.True(t, p.EmailMessages)
		assert.False(t, p.EmailCourseUpdates)
		assert.False(t, svcs.Profile.WantsCourseUpdates(context.Background(), student.ID))
	})
}

func Test_profileApi_changePassword(t *testing.T) {
	app, svcs := setup(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "Kwanza#2022", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	path := "/v1/school/" + sch.Slug + "/profile/password"
	token := getToken(t, svcs, owner)

	tests := []httpTest{
		{
			name:     "required fields",
			body:     []byte(`{}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"current_password":"this field is required","new_password":"this field is required","confirm_password":"this field is required"}`),
		},
		{
			name:     "wrong current password",
			body:     []byte(`{"current_password":"wrong","new_password":"Huambo#2023","confirm_password":"Huambo#2023"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"current_password":"current password is incorrect"}`),
		},
		{
			name:     "success",
			body:     []byte(`{"current_password":"Kwanza#2022","new_password":"Huambo#2023","confirm_password":"Huambo#2023"}`),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, SuccessResponse{Success: "Your password was changed."}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, path, token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}

	usr, err := svcs.User.GetByID(context.Background(), owner.ID)
	require.NoError(t, err)
	assert.NoError(t, usr.CheckPassword("Huambo#2023"))
	assert.Error(t, usr.CheckPassword("Kwanza#2022"))
}

package dashboard_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/tests"
)

func TestService_SchoolStats(t *testing.T) {
	ctx := context.Background()
	svcs := testutil.NewServices(t)
	owner := testutil.CreateUser(t, svcs.DB, "Owner", "owner", "owner@test.ao", "", true)
	sch := testutil.CreateSchool(t, svcs.School, "Escola Kwanza", owner)
	teacher, _ := testutil.AddMember(t, svcs, sch, "teacher", school.RoleTeacher)
	student, _ := testutil.AddMember(t, svcs, sch, "student", school.RoleStudent)
	testutil.AddMember(t, svcs, sch, "student2", school.RoleStudent)
	tac := testutil.Access(t, svcs, sch, teacher)

	cat := testutil.CreateCategory(t, svcs.Catalog, "Programação")
	active := testutil.CreateCourse(t, svcs.Catalog, tac, "Go", cat.ID, catalog.CourseActive)
	testutil.CreateCourse(t, svcs.Catalog, tac, "Rust", cat.ID, catalog.CourseDraft)
	testutil.CreateCourse(t, svcs.Catalog, tac, "Perl", cat.ID, catalog.CourseArchived)
	s := testutil.CreateSubject(t, svcs.Catalog, active, "Introdução")
	testutil.CreateLesson(t, svcs.Catalog, tac, active, s, catalog.LessonInput{Title: "Olá", ContentType: catalog.ContentVideo, Duration: "55"})
	testutil.CreateLesson(t, svcs.Catalog, tac, active, s, catalog.LessonInput{Title: "Tipos", Status: catalog.StatusDraft})

	_, _, err := svcs.Learning.Enroll(ctx, testutil.Access(t, svcs, sch, student), active)
	require.NoError(t, err)

	// another school does not leak into the counters
	other := testutil.CreateSchool(t, svcs.School, "Escola Zenza", owner)
	testutil.AddMember(t, svcs, other, "outsider", school.RoleStudent)

	st, err := svcs.Dashboard.SchoolStats(ctx, sch)
	require.NoError(t, err)
	assert.Equal(t, sch.ID, st.School.ID)
	assert.Equal(t, 3, st.TotalCourses)
	assert.Equal(t, 1, st.ActiveCourses)
	assert.Equal(t, 1, st.DraftCourses)
	assert.Equal(t, 1, st.ArchivedCourses)
	assert.Equal(t, 4, st.TotalMembers)
	assert.Equal(t, 2, st.TotalStudents)
	assert.Equal(t, 1, st.TotalTeachers)
	assert.Equal(t, 1, st.TotalAdmins)
	assert.Equal(t, 1, st.ActiveEnrollments)
	assert.Equal(t, 2, st.TotalDuration.Lessons)
	assert.Equal(t, "1h 0min", st.TotalDuration.Formatted)
}

// Package dashboard computes the counters of a school dashboard.
package dashboard

import (
	"context"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/learning"
	"github.com/educarcms/educar/core/school"
)

type Stats struct {
	School            school.School    `json:"school"`
	TotalCourses      int              `json:"total_courses"`
	ActiveCourses     int              `json:"active_courses"`
	DraftCourses      int              `json:"draft_courses"`
	ArchivedCourses   int              `json:"archived_courses"`
	TotalMembers      int              `json:"total_members"`
	TotalStudents     int              `json:"total_students"`
	TotalTeachers     int              `json:"total_teachers"`
	TotalAdmins       int              `json:"total_admins"`
	ActiveEnrollments int              `json:"active_enrollments"`
	TotalDuration     catalog.Duration `json:"total_duration"`
}

type Service struct {
	schoolSvc   *school.Service
	catalogSvc  *catalog.Service
	learningSvc *learning.Service
}

func NewService(schoolSvc *school.Service, catalogSvc *catalog.Service, learningSvc *learning.Service) *Service {
	return &Service{schoolSvc: schoolSvc, catalogSvc: catalogSvc, learningSvc: learningSvc}
}

// SchoolStats gathers the counters of sch concurrently.
func (svc *Service) SchoolStats(ctx context.Context, sch school.School) (Stats, error) {
	st := Stats{School: sch}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		counts, err := svc.catalogSvc.CountCoursesByStatus(gctx, sch.ID)
		if err != nil {
			return errors.Wrap(err, "counting courses")
		}
		st.ActiveCourses = counts[catalog.CourseActive]
		st.DraftCourses = counts[catalog.CourseDraft]
		st.ArchivedCourses = counts[catalog.CourseArchived]
		st.TotalCourses = st.ActiveCourses + st.DraftCourses + st.ArchivedCourses
		return nil
	})

	members := []struct {
		kind string
		dst  *int
	}{
		{school.FilterAll, &st.TotalMembers},
		{school.FilterStudents, &st.TotalStudents},
		{school.FilterTeachers, &st.TotalTeachers},
		{school.FilterAdmins, &st.TotalAdmins},
	}
	for _, m := range members {
		m := m
		g.Go(func() error {
			n, err := svc.schoolSvc.CountMembers(gctx, sch.ID, school.MemberFilter{Kind: m.kind})
			if err != nil {
				return errors.Wrapf(err, "counting %s members", m.kind)
			}
			*m.dst = n
			return nil
		})
	}

	g.Go(func() error {
		n, err := svc.learningSvc.CountSchoolEnrollments(gctx, sch.ID, learning.EnrollmentActive)
		if err != nil {
			return errors.Wrap(err, "counting enrollments")
		}
		st.ActiveEnrollments = n
		return nil
	})

	g.Go(func() error {
		d, err := svc.catalogSvc.SchoolDuration(gctx, sch.ID, false)
		if err != nil {
			return errors.Wrap(err, "computing duration")
		}
		st.TotalDuration = d
		return nil
	})

	if err := g.Wait(); err != nil {
		return Stats{}, err
	}
	return st, nil
}

// Package testutil wires the services over an in-memory database and seeds test data.
package testutil

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/access"
	"github.com/educarcms/educar/core/assessment"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/dashboard"
	"github.com/educarcms/educar/core/learning"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
	appfs "github.com/educarcms/educar/fs"
	emailsvc "github.com/educarcms/educar/services/email"
	logsvc "github.com/educarcms/educar/services/logger"
	inmemdb "github.com/educarcms/educar/storage/database/inmem"
)

// Services holds every service, backed by DB.
type Services struct {
	Conf       *core.Config
	Logger     core.Logger
	DB         *inmemdb.DB
	Validate   *validator.Validate
	Translator ut.Translator

	User       *user.Service
	Profile    *profile.Service
	School     *school.Service
	Catalog    *catalog.Service
	Learning   *learning.Service
	Assessment *assessment.Service
	Dashboard  *dashboard.Service
}

// NewConfig returns a test configuration storing media under a temporary dir.
func NewConfig(t *testing.T) *core.Config {
	conf := core.NewConfig()
	conf.Env = "TEST"
	conf.TestMode = true
	conf.Debug = false
	conf.MediaDir = t.TempDir()
	conf.MaxUploadSize = 1 << 20
	return conf
}

// NewServices wires the services over a fresh in-memory database. Emails are recorded,
// see emailsvc.LastSentMessages.
func NewServices(t *testing.T) *Services {
	conf := NewConfig(t)
	logger := logsvc.NewRollbarLoggerMock(conf)
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	db := inmemdb.New()
	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	translator, _ := ut.New(en.New()).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	s := &Services{Conf: conf, Logger: logger, DB: db, Validate: validate, Translator: translator}
	s.User = user.NewService(db, mailSvc, conf)
	s.Profile = profile.NewService(db)
	s.School = school.NewService(db, db, s.User, db, s.Profile, mailSvc, conf)
	s.Catalog = catalog.NewService(db, db, db)
	s.Learning = learning.NewService(db, s.Catalog, s.School, s.Profile, mailSvc, logger)
	s.Assessment = assessment.NewService(db, db, s.Catalog, s.Learning, s.School, s.Profile, mailSvc, logger)
	s.Dashboard = dashboard.NewService(s.School, s.Catalog, s.Learning)
	return s
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Username:  uname,
		Email:     email,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("CreateUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("CreateUser() failed: %v", err)
	}
	return usr
}

// CreateSchool creates a school owned by owner, who becomes an admin member.
func CreateSchool(t *testing.T, svc *school.Service, name string, owner user.User) school.School {
	sch, err := svc.Create(context.Background(), school.NewSchool{Name: name, OwnerID: owner.ID})
	if err != nil {
		t.Fatalf("CreateSchool() failed: %v", err)
	}
	return sch
}

// AddMember creates a user and makes it a member of sch with role.
func AddMember(t *testing.T, s *Services, sch school.School, uname, role string) (user.User, school.Member) {
	usr := CreateUser(t, s.DB, uname, uname, uname+"@test.ao", "", true)
	m, err := s.School.AddMember(context.Background(), sch.ID, usr.ID, role)
	if err != nil {
		t.Fatalf("AddMember() failed: %v", err)
	}
	return usr, m
}

// CreateCategory creates a category named name.
func CreateCategory(t *testing.T, svc *catalog.Service, name string) catalog.Category {
	cat, err := svc.CreateCategory(context.Background(), catalog.NewCategory{Name: name})
	if err != nil {
		t.Fatalf("CreateCategory() failed: %v", err)
	}
	return cat
}

// CreateCourse creates a course of the school of ac, taught by ac.Member.
func CreateCourse(t *testing.T, svc *catalog.Service, ac access.Context, title, categoryID, status string, maxStudents ...int) catalog.Course {
	ci := catalog.CourseInput{Title: title, Description: title, CategoryID: categoryID, Status: status}
	if len(maxStudents) > 0 {
		ci.MaxStudents = strconv.Itoa(maxStudents[0])
	}
	c, err := svc.CreateCourse(context.Background(), ac, ci)
	if err != nil {
		t.Fatalf("CreateCourse() failed: %v", err)
	}
	return c
}

// CreateSubject adds a published subject to c.
func CreateSubject(t *testing.T, svc *catalog.Service, c catalog.Course, title string) catalog.Subject {
	s, err := svc.CreateSubject(context.Background(), c, catalog.SubjectInput{Title: title, Status: catalog.StatusPublished})
	if err != nil {
		t.Fatalf("CreateSubject() failed: %v", err)
	}
	return s
}

// CreateLesson adds a lesson to s.
func CreateLesson(t *testing.T, svc *catalog.Service, ac access.Context, c catalog.Course, s catalog.Subject, li catalog.LessonInput) catalog.Lesson {
	if li.ContentType == "" {
		li.ContentType = catalog.ContentText
	}
	if li.Status == "" {
		li.Status = catalog.StatusPublished
	}
	l, err := svc.CreateLesson(context.Background(), ac, c, s, li)
	if err != nil {
		t.Fatalf("CreateLesson() failed: %v", err)
	}
	return l
}

// Access returns the access context of usr in sch.
func Access(t *testing.T, s *Services, sch school.School, usr user.User) access.Context {
	m, err := s.School.GetMember(context.Background(), sch.ID, usr.ID)
	if err != nil {
		t.Fatalf("Access() failed: %v", err)
	}
	return access.Context{User: usr, School: sch, Member: m}
}

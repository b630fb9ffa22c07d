// Package inmemdb is a map backed implementation of every repository, used by tests and
// by the API when no database is configured.
package inmemdb

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/assessment"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/learning"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
)

// interface compliance checks
var (
	_ core.DBTransactor     = (*DB)(nil)
	_ user.Repository       = (*DB)(nil)
	_ profile.Repository    = (*DB)(nil)
	_ school.Repository     = (*DB)(nil)
	_ catalog.Repository    = (*DB)(nil)
	_ learning.Repository   = (*DB)(nil)
	_ assessment.Repository = (*DB)(nil)
)

type tables struct {
	users          map[string]user.User
	profiles       map[string]profile.Profile
	schools        map[string]school.School
	members        map[string]school.Member
	categories     map[string]catalog.Category
	courses        map[string]catalog.Course
	subjects       map[string]catalog.Subject
	lessons        map[string]catalog.Lesson
	subjectLessons map[[2]string]bool // [subject id, lesson id]
	videos         map[string]catalog.LessonVideo
	reviews        map[string]catalog.Review
	enrollments    map[string]learning.Enrollment
	progress       map[string]learning.Progress
	certificates   map[string]learning.Certificate
	assessments    map[string]assessment.Assessment
	questions      map[string]assessment.Question
	choices        map[string]assessment.Choice
	attempts       map[string]assessment.Attempt
	answers        map[string]assessment.Answer
}

func newTables() tables {
	return tables{
		users:          make(map[string]user.User),
		profiles:       make(map[string]profile.Profile),
		schools:        make(map[string]school.School),
		members:        make(map[string]school.Member),
		categories:     make(map[string]catalog.Category),
		courses:        make(map[string]catalog.Course),
		subjects:       make(map[string]catalog.Subject),
		lessons:        make(map[string]catalog.Lesson),
		subjectLessons: make(map[[2]string]bool),
		videos:         make(map[string]catalog.LessonVideo),
		reviews:        make(map[string]catalog.Review),
		enrollments:    make(map[string]learning.Enrollment),
		progress:       make(map[string]learning.Progress),
		certificates:   make(map[string]learning.Certificate),
		assessments:    make(map[string]assessment.Assessment),
		questions:      make(map[string]assessment.Question),
		choices:        make(map[string]assessment.Choice),
		attempts:       make(map[string]assessment.Attempt),
		answers:        make(map[string]assessment.Answer),
	}
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func (t tables) clone() tables {
	return tables{
		users:          copyMap(t.users),
		profiles:       copyMap(t.profiles),
		schools:        copyMap(t.schools),
		members:        copyMap(t.members),
		categories:     copyMap(t.categories),
		courses:        copyMap(t.courses),
		subjects:       copyMap(t.subjects),
		lessons:        copyMap(t.lessons),
		subjectLessons: copyMap(t.subjectLessons),
		videos:         copyMap(t.videos),
		reviews:        copyMap(t.reviews),
		enrollments:    copyMap(t.enrollments),
		progress:       copyMap(t.progress),
		certificates:   copyMap(t.certificates),
		assessments:    copyMap(t.assessments),
		questions:      copyMap(t.questions),
		choices:        copyMap(t.choices),
		attempts:       copyMap(t.attempts),
		answers:        copyMap(t.answers),
	}
}

// DB holds every table. Repository methods ignore their exec argument.
type DB struct {
	mutex   sync.RWMutex
	txMutex sync.Mutex // one transaction at a time
	tables
}

func New() *DB {
	return &DB{tables: newTables()}
}

// InTx runs fn and restores the tables as they were if it fails.
func (db *DB) InTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	db.txMutex.Lock()
	defer db.txMutex.Unlock()

	db.mutex.RLock()
	snapshot := db.tables.clone()
	db.mutex.RUnlock()

	defer func() {
		if p := recover(); p != nil {
			db.restore(snapshot)
			panic(p)
		}
		if err != nil {
			db.restore(snapshot)
		}
	}()
	return fn(nil)
}

func (db *DB) restore(t tables) {
	db.mutex.Lock()
	db.tables = t
	db.mutex.Unlock()
}

func newID() string {
	return uuid.New().String()
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

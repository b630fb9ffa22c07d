package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	echoapi "github.com/educarcms/educar/apps/api/echo"
	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/assessment"
	"github.com/educarcms/educar/core/catalog"
	"github.com/educarcms/educar/core/dashboard"
	"github.com/educarcms/educar/core/learning"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
	appfs "github.com/educarcms/educar/fs"
	emailsvc "github.com/educarcms/educar/services/email"
	filesvc "github.com/educarcms/educar/services/files"
	logsvc "github.com/educarcms/educar/services/logger"
	"github.com/educarcms/educar/storage/database"
	inmemdb "github.com/educarcms/educar/storage/database/inmem"
	sqlxrepos "github.com/educarcms/educar/storage/database/sqlx"
)

// engineMemory serves the API from the in-memory repositories, for local demos.
const engineMemory = "memory"

type repositories struct {
	tx         core.DBTransactor
	user       user.Repository
	profile    profile.Repository
	school     school.Repository
	catalog    catalog.Repository
	learning   learning.Repository
	assessment assessment.Repository
	close      func() error
}

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug && conf.RollbarToken != "")

	// set up DB
	repos, err := setUpRepositories(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = repos.close(); err != nil {
			dbLogger.Fatal("Failed to close", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrSvc := user.NewService(repos.user, mailSvc, conf)
	profileSvc := profile.NewService(repos.profile)
	schoolSvc := school.NewService(repos.tx, repos.school, usrSvc, repos.user, profileSvc, mailSvc, conf)
	catalogSvc := catalog.NewService(repos.tx, repos.catalog, repos.learning)
	learningSvc := learning.NewService(repos.learning, catalogSvc, schoolSvc, profileSvc, mailSvc, logger)
	assessmentSvc := assessment.NewService(repos.tx, repos.assessment, catalogSvc, learningSvc, schoolSvc, profileSvc, mailSvc, logger)
	dashboardSvc := dashboard.NewService(schoolSvc, catalogSvc, learningSvc)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, conf, logger)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("database").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			Validate:      validate,
			Translator:    translator,
			Files:         filesvc.NewLocalStorage(conf),
			UserSvc:       usrSvc,
			SchoolSvc:     schoolSvc,
			ProfileSvc:    profileSvc,
			CatalogSvc:    catalogSvc,
			LearningSvc:   learningSvc,
			AssessmentSvc: assessmentSvc,
			DashboardSvc:  dashboardSvc,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		// asking listener to shutdown and shed load
		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func setUpRepositories(conf *core.Config) (repositories, error) {
	if conf.Database.Engine == engineMemory {
		db := inmemdb.New()
		return repositories{
			tx:         db,
			user:       db,
			profile:    db,
			school:     db,
			catalog:    db,
			learning:   db,
			assessment: db,
			close:      func() error { return nil },
		}, nil
	}

	db, err := setUpDB(conf)
	if err != nil {
		return repositories{}, err
	}
	return repositories{
		tx:         database.NewTransactor(db),
		user:       sqlxrepos.NewUserRepository(db),
		profile:    sqlxrepos.NewProfileRepository(db),
		school:     sqlxrepos.NewSchoolRepository(db),
		catalog:    sqlxrepos.NewCatalogRepository(db),
		learning:   sqlxrepos.NewLearningRepository(db),
		assessment: sqlxrepos.NewAssessmentRepository(db),
		close:      db.Close,
	}, nil
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

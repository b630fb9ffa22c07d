package main

import (
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/educarcms/educar/core"
	"github.com/educarcms/educar/core/profile"
	"github.com/educarcms/educar/core/school"
	"github.com/educarcms/educar/core/user"
	emailsvc "github.com/educarcms/educar/services/email"
	logsvc "github.com/educarcms/educar/services/logger"
	"github.com/educarcms/educar/storage/database"
	sqlxrepos "github.com/educarcms/educar/storage/database/sqlx"
)

var logger *logsvc.RollbarLogger

func main() {
	defer os.Exit(0)

	conf := core.NewConfig()
	logger = logsvc.NewRollbarLogger(
		log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(false)

	// set up DB
	errAndDie(database.CreateIfNotExist(conf))
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()

	translator, _ := ut.New(en.New()).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)

	// set up services
	mailSvc := emailsvc.NewConsoleService(conf, logger)
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	profileSvc := profile.NewService(sqlxrepos.NewProfileRepository(db))

	// start CLI
	cli := commandLine{
		db:       db.DB,
		validate: validate,
		usrRepo:  usrRepo,
		schoolSvc: school.NewService(
			database.NewTransactor(db),
			sqlxrepos.NewSchoolRepository(db),
			usrSvc,
			usrRepo,
			profileSvc,
			mailSvc,
			conf,
		),
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err.Error(), err)
	}
}

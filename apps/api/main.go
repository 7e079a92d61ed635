package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/gopiashokan/Educational-Management-System/apps/api/echo"
	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/answersheet"
	"github.com/gopiashokan/Educational-Management-System/core/exam"
	"github.com/gopiashokan/Educational-Management-System/core/handwriting"
	"github.com/gopiashokan/Educational-Management-System/core/user"
	emailsvc "github.com/gopiashokan/Educational-Management-System/services/email"
	logsvc "github.com/gopiashokan/Educational-Management-System/services/logger"
	"github.com/gopiashokan/Educational-Management-System/storage/database"
	sqlxrepos "github.com/gopiashokan/Educational-Management-System/storage/database/sqlx"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig(build)
	if err != nil {
		log.Fatalf("loading configuration: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	usrSvc := user.NewService(conf, sqlxrepos.NewUserRepository(db), mailSvc)
	hwSvc := handwriting.NewService(conf, handwriting.NewFileModelStore(conf.Handwriting.ModelPath), logger)
	sheetSvc := answersheet.NewService(conf, hwSvc, mailSvc, logger)
	examSvc := exam.NewService(sqlxrepos.NewExamRepository(db), logger)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(
		&echoapi.Options{
			Addr:           fmt.Sprintf("%s:%d", conf.Server.Host, conf.Server.Port),
			Conf:           conf,
			Logger:         logger,
			UserSvc:        usrSvc,
			HandwritingSvc: hwSvc,
			SheetSvc:       sheetSvc,
			ExamSvc:        examSvc,
		},
	)
	if err = server.Start(); err != nil {
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}

	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}

	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

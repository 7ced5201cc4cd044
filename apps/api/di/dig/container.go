package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/alyxedu/alyx/apps/api/echo"
	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/grading"
	"github.com/alyxedu/alyx/core/lessonplan"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
	emailsvc "github.com/alyxedu/alyx/services/email"
	llmsvc "github.com/alyxedu/alyx/services/llm"
	logsvc "github.com/alyxedu/alyx/services/logger"
	"github.com/alyxedu/alyx/storage/database"
	sqlxrepos "github.com/alyxedu/alyx/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newRollbarLogger(name string, conf *core.Config) *logsvc.RollbarLogger {
	logger, err := logsvc.NewRollbarLogger(name, conf)
	if err != nil {
		log.Fatal(errors.Wrap(err, "building logger").Error())
	}
	logger.Enable(!conf.Debug)
	return logger
}

func newLogger(conf *core.Config) core.Logger {
	return newRollbarLogger("API", conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return newRollbarLogger("DB", conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, *sqlx.DB) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
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

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, sqlx.NewDb(db, conf.Database.Engine)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(sqlxrepos.NewTxRunner))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(newTranslator))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewAssignmentRepository, dig.As(new(assignment.Repository))))
	must(c.Provide(sqlxrepos.NewSubmissionRepository, dig.As(new(submission.Repository))))
	must(c.Provide(sqlxrepos.NewLessonPlanRepository, dig.As(new(lessonplan.Repository))))

	// language model
	must(c.Provide(llmsvc.NewClient, dig.As(new(grading.Grader), new(lessonplan.QuizGenerator))))

	// services
	must(c.Provide(grading.NewPolicy))
	must(c.Provide(user.NewService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(assignment.NewService, dig.As(new(assignment.ServiceInterface))))
	must(c.Provide(submission.NewService, dig.As(new(submission.ServiceInterface))))
	must(c.Provide(grading.NewService, dig.As(new(grading.ServiceInterface))))
	must(c.Provide(lessonplan.NewService, dig.As(new(lessonplan.ServiceInterface))))

	must(c.Provide(echoapi.NewServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

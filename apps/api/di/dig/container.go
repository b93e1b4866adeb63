package dig_container

import (
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/chekos/pedagogical-engine/apps/api/echo"
	"github.com/chekos/pedagogical-engine/core"
	"github.com/chekos/pedagogical-engine/core/agent"
	"github.com/chekos/pedagogical-engine/core/curriculum"
	"github.com/chekos/pedagogical-engine/core/group"
	"github.com/chekos/pedagogical-engine/core/learner"
	"github.com/chekos/pedagogical-engine/core/lesson"
	"github.com/chekos/pedagogical-engine/core/portal"
	"github.com/chekos/pedagogical-engine/core/session"
	"github.com/chekos/pedagogical-engine/core/skill"
	"github.com/chekos/pedagogical-engine/core/user"
	anthropicsvc "github.com/chekos/pedagogical-engine/services/agent/anthropic"
	remotesvc "github.com/chekos/pedagogical-engine/services/agent/remote"
	emailsvc "github.com/chekos/pedagogical-engine/services/email"
	logsvc "github.com/chekos/pedagogical-engine/services/logger"
	"github.com/chekos/pedagogical-engine/storage/database"
	inmemdb "github.com/chekos/pedagogical-engine/storage/database/inmem"
	sqlxrepos "github.com/chekos/pedagogical-engine/storage/database/sqlx"
	"github.com/chekos/pedagogical-engine/storage/files"
	"github.com/chekos/pedagogical-engine/storage/search"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newDB returns nil with the memory engine.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Database.Engine == "memory" {
		return nil
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db.DB, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newUserRepository(db *sqlx.DB) user.Repository {
	if db == nil {
		return inmemdb.NewUserRepository(inmemdb.NewDB())
	}
	return sqlxrepos.NewUserRepository(db)
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newCatalog(conf *core.Config) (*agent.Catalog, error) {
	return agent.LoadCatalog(conf.Agent.RolesFile)
}

type ToolsParam struct {
	dig.In
	Validate      *validator.Validate
	Translator    ut.Translator
	SkillRepo     skill.Repository
	LearnerSvc    learner.Service
	GroupSvc      group.Service
	LessonSvc     lesson.Service
	CurriculumSvc curriculum.Service
}

func newToolRegistry(p ToolsParam) *agent.Registry {
	return agent.NewBuiltinRegistry(agent.Services{
		Validate:      p.Validate,
		Translator:    p.Translator,
		SkillRepo:     p.SkillRepo,
		LearnerSvc:    p.LearnerSvc,
		GroupSvc:      p.GroupSvc,
		LessonSvc:     p.LessonSvc,
		CurriculumSvc: p.CurriculumSvc,
	})
}

func newRuntime(conf *core.Config, logger core.Logger) agent.Runtime {
	if conf.Agent.Runtime == "remote" {
		return remotesvc.NewRuntimeFromConfig(conf, logger)
	}
	return anthropicsvc.NewRuntime(anthropicsvc.ConfigFrom(conf), logger)
}

type ServerParam struct {
	dig.In
	Conf          *core.Config
	Logger        core.Logger
	Validate      *validator.Validate
	Translator    ut.Translator
	UserSvc       user.Service
	SkillRepo     skill.Repository
	LearnerSvc    learner.Service
	GroupSvc      group.Service
	LessonSvc     lesson.Service
	CurriculumSvc curriculum.Service
	PortalSvc     portal.Service
	SessionSvc    session.Service
	Catalog       *agent.Catalog
}

func newServer(p ServerParam) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		SkillRepo:     p.SkillRepo,
		LearnerSvc:    p.LearnerSvc,
		GroupSvc:      p.GroupSvc,
		LessonSvc:     p.LessonSvc,
		CurriculumSvc: p.CurriculumSvc,
		PortalSvc:     p.PortalSvc,
		SessionSvc:    p.SessionSvc,
		Catalog:       p.Catalog,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newEmailService))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	// storage
	must(c.Provide(newUserRepository))
	must(c.Provide(files.NewStoreFromConfig))
	must(c.Provide(files.NewSkillRepository))
	must(c.Provide(files.NewLearnerRepository))
	must(c.Provide(files.NewGroupRepository))
	must(c.Provide(files.NewLessonRepository))
	must(c.Provide(files.NewCurriculumRepository))
	must(c.Provide(files.NewSessionRepository))
	must(c.Provide(search.NewIndexFromConfig))
	must(c.Provide(func(idx *search.Index) lesson.Index { return idx }))

	// services
	must(c.Provide(user.NewService))
	must(c.Provide(learner.NewService))
	must(c.Provide(group.NewService))
	must(c.Provide(lesson.NewService))
	must(c.Provide(curriculum.NewService))
	must(c.Provide(portal.NewService))
	must(c.Provide(newCatalog))
	must(c.Provide(newToolRegistry))
	must(c.Provide(newRuntime))
	must(c.Provide(session.NewService))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

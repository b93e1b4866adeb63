package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
)

type ServerDeps struct {
	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

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

type Server struct {
	*http.Server
	app      *echo.Echo
	deps     ServerDeps
	shutdown chan os.Signal
	errors   chan error
}

func NewServer(deps ServerDeps) *Server {
	app := echo.New()
	s := &Server{
		Server: &http.Server{
			Addr:    deps.Conf.Server.Address,
			Handler: app,
		},
		app:      app,
		deps:     deps,
		shutdown: make(chan os.Signal, 1),
		errors:   make(chan error, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.Server.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{conf.FrontendBaseURL},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)
	registerPortalAPI(s.app, s.deps.PortalSvc)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(jwtConfig(conf, "header:"+echo.HeaderAuthorization))
	wsJWT := middleware.JWTWithConfig(jwtConfig(conf, "query:token"))

	registerUserAPI(v1, jwt, conf, s.deps.UserSvc, s.deps.GroupSvc, s.deps.SessionSvc, s.deps.Validate)
	registerDomainAPI(v1, jwt, s.deps.SkillRepo, s.deps.Validate)
	registerLearnerAPI(v1, jwt, s.deps.LearnerSvc, s.deps.PortalSvc, s.deps.UserSvc, s.deps.Validate)
	registerGroupAPI(v1, jwt, s.deps.GroupSvc, s.deps.Validate)
	registerLessonAPI(v1, jwt, s.deps.LessonSvc, s.deps.Validate)
	registerCurriculumAPI(v1, jwt, s.deps.CurriculumSvc, s.deps.Validate)
	registerAgentAPI(v1, jwt, s.deps.Catalog)
	registerSessionAPI(v1, jwt, wsJWT, conf, s.deps.SessionSvc, s.deps.Validate, s.deps.Translator, s.deps.Logger)
}

// Start serves until the server is shut down. Listen errors are sent to Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.deps.Logger.Info("API listening on " + s.Addr)
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

// SignalShutdown asks the app to shut down gracefully.
func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	signal.Stop(s.shutdown)
	return s.Server.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.deps.Conf.AppName+" API!")
}

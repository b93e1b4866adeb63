package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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
	emailsvc "github.com/chekos/pedagogical-engine/services/email"
	"github.com/chekos/pedagogical-engine/storage/database/inmem"
	"github.com/chekos/pedagogical-engine/storage/files"
	"github.com/chekos/pedagogical-engine/storage/search"
	"github.com/chekos/pedagogical-engine/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type fixture struct {
	conf       *core.Config
	app        *echoapi.Server
	usrRepo    user.Repository
	mailSvc    *emailsvc.ConsoleServiceMock
	runtime    *agent.MockRuntime
	skillRepo  skill.Repository
	learnerSvc learner.Service
	groupSvc   group.Service
	lessonSvc  lesson.Service
	portalSvc  portal.Service
	sessionSvc session.Service

	admin     user.User
	educator  user.User
	assistant user.User
}

func mathGraph() *skill.Graph {
	return &skill.Graph{
		Domain: "math",
		Skills: []skill.Skill{
			{ID: "counting", Label: "Counting", Assessable: true},
			{ID: "compare-numbers", Label: "Compare numbers", Assessable: true},
			{ID: "fractions", Label: "Fractions", Assessable: true},
		},
		Edges: []skill.Edge{
			{Source: "counting", Target: "compare-numbers", Confidence: 0.9},
			{Source: "compare-numbers", Target: "fractions", Confidence: 0.8},
		},
	}
}

func setup(t *testing.T, opts ...func(conf *core.Config)) *fixture {
	t.Helper()
	ctx := context.Background()

	conf := testutil.NewConfig(t)
	conf.Server.DisableReqLogs = true
	for _, opt := range opts {
		opt(conf)
	}
	logger := testutil.NewLogger(conf)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	skill.InitValidators(validate, translator)
	core.ParseEmailTemplates(conf, logger)
	user.LoadCommonPasswords(conf, logger)

	// set up repos
	usrRepo := inmemdb.NewUserRepository(inmemdb.NewDB())
	store, err := files.NewStoreFromConfig(conf)
	require.NoError(t, err)
	skillRepo := files.NewSkillRepository(store)
	require.NoError(t, skillRepo.SaveGraph(ctx, mathGraph()))
	learnerRepo := files.NewLearnerRepository(store)
	groupRepo := files.NewGroupRepository(store)
	lessonRepo := files.NewLessonRepository(store)
	idx, err := search.NewMemIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	usrSvc := user.NewService(usrRepo, mailSvc, conf)
	learnerSvc := learner.NewService(learnerRepo, skillRepo)
	groupSvc := group.NewService(groupRepo, learnerRepo, skillRepo)
	lessonSvc := lesson.NewService(lessonRepo, idx, skillRepo, learnerRepo)
	curriculumSvc := curriculum.NewService(files.NewCurriculumRepository(store), groupSvc, skillRepo, lessonRepo)
	portalSvc := portal.NewService(learnerRepo, skillRepo, mailSvc, conf)

	catalog := agent.NewCatalog(agent.DefaultRoles()...)
	tools := agent.NewBuiltinRegistry(agent.Services{
		Validate:      validate,
		Translator:    translator,
		SkillRepo:     skillRepo,
		LearnerSvc:    learnerSvc,
		GroupSvc:      groupSvc,
		LessonSvc:     lessonSvc,
		CurriculumSvc: curriculumSvc,
	})
	rt := &agent.MockRuntime{}
	sessionSvc := session.NewService(files.NewSessionRepository(store), groupRepo, catalog, tools, rt)

	// set up server
	app := echoapi.NewServer(echoapi.ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		SkillRepo:     skillRepo,
		LearnerSvc:    learnerSvc,
		GroupSvc:      groupSvc,
		LessonSvc:     lessonSvc,
		CurriculumSvc: curriculumSvc,
		PortalSvc:     portalSvc,
		SessionSvc:    sessionSvc,
		Catalog:       catalog,
	})

	return &fixture{
		conf:       conf,
		app:        app,
		usrRepo:    usrRepo,
		mailSvc:    mailSvc,
		runtime:    rt,
		skillRepo:  skillRepo,
		learnerSvc: learnerSvc,
		groupSvc:   groupSvc,
		lessonSvc:  lessonSvc,
		portalSvc:  portalSvc,
		sessionSvc: sessionSvc,

		admin:     testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@school.test", "", []string{user.RoleAdmin}, true),
		educator:  testutil.CreateUser(t, usrRepo, "Ada Educator", "ada", "ada@school.test", "", []string{user.RoleEducator}, true),
		assistant: testutil.CreateUser(t, usrRepo, "Bo Assistant", "bo", "bo@school.test", "", []string{user.RoleAssistant}, true),
	}
}

func (f *fixture) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := echoapi.GenerateToken(f.conf, echoapi.GetUserClaims(f.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// run executes tt and checks its code, and its data when wantData is set.
func (f *fixture) run(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	if tt.wantCode == 0 {
		tt.wantCode = http.StatusOK
	}
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	f.app.ServeHTTP(rec, req)
	if tt.wantData != nil {
		checkCodeAndData(t, tt, rec)
	} else {
		assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
	}
	return rec
}

// decode runs tt and unmarshals its body into out.
func (f *fixture) decode(t *testing.T, tt httpTest, out interface{}) {
	t.Helper()
	rec := f.run(t, tt)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func marchallList(t *testing.T, objs ...interface{}) []byte {
	if objs == nil {
		objs = []interface{}{}
	}
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

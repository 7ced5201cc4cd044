package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/alyxedu/alyx/apps/api/echo"
	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/grading"
	"github.com/alyxedu/alyx/core/lessonplan"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
	emailsvc "github.com/alyxedu/alyx/services/email"
	dummydb "github.com/alyxedu/alyx/storage/database/dummy"
	"github.com/alyxedu/alyx/testutil"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type env struct {
	app        *Server
	conf       *core.Config
	usrRepo    user.Repository
	assignRepo assignment.Repository
	subRepo    submission.Repository
	lpRepo     lessonplan.Repository
	grader     *testutil.Grader
	generator  *testutil.QuizGenerator
	mailSvc    *emailsvc.ConsoleServiceMock
}

func setup(t *testing.T) env {
	testutil.LoadAssets(t)
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(t)
	validate, translator := testutil.NewValidator()

	// set up DB & repos
	db := dummydb.Open()
	e := env{
		conf:       conf,
		usrRepo:    dummydb.NewUserRepository(db),
		assignRepo: dummydb.NewAssignmentRepository(db),
		subRepo:    dummydb.NewSubmissionRepository(db),
		lpRepo:     dummydb.NewLessonPlanRepository(db),
		grader:     &testutil.Grader{},
		generator:  &testutil.QuizGenerator{},
		mailSvc:    emailsvc.NewConsoleServiceMock(conf, logger),
	}

	// set up services
	usrSvc := user.NewService(e.usrRepo, validate)
	assignSvc := assignment.NewService(e.assignRepo, validate)

	// set up server
	e.app = NewServer(ServerDeps{
		Conf:          conf,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
		UserSvc:       usrSvc,
		AssignmentSvc: assignSvc,
		SubmissionSvc: submission.NewService(e.subRepo, e.assignRepo, e.usrRepo, validate),
		GradingSvc: grading.NewService(
			e.subRepo, e.assignRepo, e.usrRepo, e.grader, e.mailSvc, grading.NewPolicy(conf), logger,
		),
		LessonPlanSvc: lessonplan.NewService(
			e.lpRepo, assignSvc, e.generator, dummydb.NewTxRunner(db), validate, logger,
		),
	})
	return e
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

func (e env) getToken(t *testing.T, usr user.User) string {
	token, err := GenerateToken(e.conf, GetUserClaims(e.conf, usr))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

// do serves tt and returns the recorded response.
func (e env) do(tt httpTest) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	e.app.ServeHTTP(rec, req)
	return rec
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

func unmarshal(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("json.Unmarshal() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	l1, ok1 := j1.([]interface{})
	l2, ok2 := j2.([]interface{})
	if !(ok1 && ok2) {
		return false, nil
	}
	return assert.ElementsMatch(t, l1, l2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

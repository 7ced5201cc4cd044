// Package testutil holds the fixtures shared by the package test suites.
package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap/zaptest"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/grading"
	"github.com/alyxedu/alyx/core/lessonplan"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
	logsvc "github.com/alyxedu/alyx/services/logger"
)

// Password satisfies the password policy.
const Password = "Xq9#vLm2$Tz"

var assetsOnce sync.Once

// NewLogger returns a core.Logger writing to the test log.
func NewLogger(t *testing.T) core.Logger {
	return logsvc.NewZapLogger(zaptest.NewLogger(t).Sugar())
}

// NewValidator returns a validator with every application validator & translation registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")

	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	assignment.InitValidators(validate, translator)
	submission.InitValidators(validate, translator)
	return validate, translator
}

// LoadAssets loads the embedded common passwords & email templates, once per test binary.
func LoadAssets(t *testing.T) {
	assetsOnce.Do(func() {
		logger := NewLogger(t)
		user.LoadCommonPasswords(logger)
		core.ParseEmailTemplates(logger)
	})
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, uname, email, pwd string,
	role user.Role,
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
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if role == user.RoleTeacher {
		usr.Subjects = append([]core.Subject(nil), core.AllSubjects...)
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

// CreateAssignment stores an assignment of teacher made of questions.
func CreateAssignment(
	t *testing.T,
	repo assignment.Repository,
	teacher user.User,
	title string,
	published bool,
	questions ...assignment.Question,
) assignment.Assignment {
	now := time.Now().UTC()
	typ := assignment.TypeMultipleChoice
	for _, q := range questions {
		if q.Type == assignment.QuestionOpenEnded {
			typ = assignment.TypeOpenEnded
			break
		}
	}
	a, err := repo.CreateAssignment(context.Background(), assignment.Assignment{
		Title:       title,
		Subject:     core.SubjectStatistics,
		Type:        typ,
		TeacherID:   teacher.ID,
		Questions:   questions,
		TotalPoints: assignment.TotalPoints(questions),
		IsPublished: published,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		t.Fatalf("CreateAssignment() failed: %v", err)
	}
	return a
}

// CreateSubmission stores an ungraded submission of student to a.
func CreateSubmission(
	t *testing.T,
	repo submission.Repository,
	a assignment.Assignment,
	student user.User,
	answers ...submission.Answer,
) submission.Submission {
	s, err := repo.CreateSubmission(context.Background(), submission.Submission{
		AssignmentID: a.ID,
		StudentID:    student.ID,
		Answers:      answers,
		MaxScore:     a.TotalPoints,
		SubmittedAt:  time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("CreateSubmission() failed: %v", err)
	}
	return s
}

func MultipleChoice(id, text, correct string, points float64, options ...string) assignment.Question {
	return assignment.Question{
		ID:            id,
		Text:          text,
		Type:          assignment.QuestionMultipleChoice,
		Options:       options,
		CorrectAnswer: correct,
		Points:        points,
	}
}

func OpenEnded(id, text, expected string, points float64) assignment.Question {
	return assignment.Question{
		ID:            id,
		Text:          text,
		Type:          assignment.QuestionOpenEnded,
		CorrectAnswer: expected,
		Points:        points,
	}
}

// Grader is a grading.Grader returning a fixed outcome or error.
type Grader struct {
	mu       sync.Mutex
	Outcome  grading.Outcome
	Err      error
	Requests []grading.OpenEndedRequest
}

var _ grading.Grader = (*Grader)(nil)

func (g *Grader) GradeOpenEnded(_ context.Context, req grading.OpenEndedRequest) (grading.Outcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Requests = append(g.Requests, req)
	if g.Err != nil {
		return grading.Outcome{}, g.Err
	}
	return g.Outcome, nil
}

// Calls returns how many answers were sent to the grader.
func (g *Grader) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Requests)
}

// QuizGenerator is a lessonplan.QuizGenerator returning fixed questions or error.
type QuizGenerator struct {
	Questions []assignment.Question
	Err       error
	Calls     int
}

var _ lessonplan.QuizGenerator = (*QuizGenerator)(nil)

func (g *QuizGenerator) GenerateQuiz(_ context.Context, _ string, _ core.Subject) ([]assignment.Question, error) {
	g.Calls++
	if g.Err != nil {
		return nil, g.Err
	}
	return append([]assignment.Question(nil), g.Questions...), nil
}

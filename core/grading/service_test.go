package grading_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/grading"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
	emailsvc "github.com/alyxedu/alyx/services/email"
	dummydb "github.com/alyxedu/alyx/storage/database/dummy"
	"github.com/alyxedu/alyx/testutil"
)

type fixtures struct {
	svc        *grading.Service
	grader     *testutil.Grader
	mailSvc    *emailsvc.ConsoleServiceMock
	subRepo    submission.Repository
	assignRepo assignment.Repository
	usrRepo    user.Repository
	teacher    user.User
	teacher2   user.User
	student    user.User
	admin      user.User
}

func setup(t *testing.T) fixtures {
	testutil.LoadAssets(t)
	conf := core.NewTestConfig()
	logger := testutil.NewLogger(t)

	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	assignRepo := dummydb.NewAssignmentRepository(db)
	subRepo := dummydb.NewSubmissionRepository(db)
	grader := &testutil.Grader{}
	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)

	return fixtures{
		svc:        grading.NewService(subRepo, assignRepo, usrRepo, grader, mailSvc, grading.NewPolicy(conf), logger),
		grader:     grader,
		mailSvc:    mailSvc,
		subRepo:    subRepo,
		assignRepo: assignRepo,
		usrRepo:    usrRepo,
		teacher:    testutil.CreateUser(t, usrRepo, "Ms. Johnson", "johnson", "teacher@test.cd", "", user.RoleTeacher, true),
		teacher2:   testutil.CreateUser(t, usrRepo, "Mr. Brown", "brown", "brown@test.cd", "", user.RoleTeacher, true),
		student:    testutil.CreateUser(t, usrRepo, "Alex Smith", "alex", "student@test.cd", "", user.RoleStudent, true),
		admin:      testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", user.RoleAdmin, true),
	}
}

func (f fixtures) mixedAssignment(t *testing.T) assignment.Assignment {
	return testutil.CreateAssignment(t, f.assignRepo, f.teacher, "Stats 101", true,
		testutil.OpenEnded("q1", "Define variance.", "Average squared deviation from the mean", 10),
		testutil.MultipleChoice("q2", "P(heads) for a fair coin?", "0.5", 20, "0.25", "0.5", "1"),
	)
}

func TestService_GradeSubmission(t *testing.T) {
	nowFunc := core.NowFunc
	defer func() { core.NowFunc = nowFunc }()
	gradedAt := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	core.NowFunc = func() time.Time { return gradedAt }

	f := setup(t)
	ctx := context.Background()
	a := f.mixedAssignment(t)
	s := testutil.CreateSubmission(t, f.subRepo, a, f.student,
		submission.Answer{QuestionID: "q1", Answer: "How spread out values are"},
		submission.Answer{QuestionID: "q2", Answer: " 0.5 "},
	)
	f.grader.Outcome = grading.Outcome{Score: 8, Feedback: "Good, but mention the mean."}

	res, err := f.svc.GradeSubmission(ctx, f.teacher, s.ID)
	if !assert.NoError(t, err) {
		return
	}
	assert.Equal(t, 28.0, res.TotalScore)
	assert.Equal(t, 30.0, res.MaxScore)
	assert.False(t, res.NeedsReview)
	if assert.Len(t, res.Answers, 2) {
		q1, q2 := res.Answers[0], res.Answers[1]
		assert.Equal(t, 8.0, *q1.Points)
		assert.True(t, *q1.IsCorrect)
		assert.Equal(t, "Good, but mention the mean.", q1.Feedback)
		assert.Equal(t, submission.GradedByModel, q1.GradedBy)
		assert.Equal(t, 20.0, *q2.Points)
		assert.True(t, *q2.IsCorrect)
		assert.Equal(t, grading.CorrectFeedback, q2.Feedback)
		assert.Equal(t, submission.GradedByKey, q2.GradedBy)
	}

	if assert.Len(t, f.grader.Requests, 1) {
		req := f.grader.Requests[0]
		assert.Equal(t, "Define variance.", req.Question)
		assert.Equal(t, "How spread out values are", req.StudentAnswer)
		assert.Equal(t, 10.0, req.MaxPoints)
	}

	stored, err := f.subRepo.GetSubmission(ctx, s.ID)
	if !assert.NoError(t, err) {
		return
	}
	assert.True(t, stored.IsGraded)
	if assert.NotNil(t, stored.GradedAt) {
		assert.Equal(t, gradedAt, *stored.GradedAt)
	}
	assert.Equal(t, 28.0, *stored.TotalScore)

	sent := f.mailSvc.SentMessages()
	if assert.Len(t, sent, 1) {
		assert.Equal(t, f.student.Email, sent[0].To[0].Address)
		assert.True(t, strings.Contains(sent[0].TextContent, "28.00 / 30.00"), "email body = %q", sent[0].TextContent)
	}

	// grading is done once
	core.NowFunc = func() time.Time { return gradedAt.Add(time.Hour) }
	f.grader.Outcome = grading.Outcome{Score: 2, Feedback: "Weak."}
	_, err = f.svc.GradeSubmission(ctx, f.teacher, s.ID)
	assert.True(t, errors.Is(err, submission.ErrAlreadyGraded), "GradeSubmission() again: error = %v", err)
	assert.Equal(t, 1, f.grader.Calls())
	assert.Len(t, f.mailSvc.SentMessages(), 1)

	again, err := f.subRepo.GetSubmission(ctx, s.ID)
	if assert.NoError(t, err) {
		if assert.NotNil(t, again.GradedAt) {
			assert.Equal(t, gradedAt, *again.GradedAt)
		}
		assert.Equal(t, 28.0, *again.TotalScore)
		assert.Equal(t, res.Answers, again.Answers)
		assert.Equal(t, stored, again)
	}
}

func TestService_GradeSubmission_Precision(t *testing.T) {
	tests := []struct {
		name        string
		maxPoints   float64
		outcome     grading.Outcome
		graderErr   error
		wantPoints  float64
		wantCorrect bool
	}{
		{
			name: "score just below threshold stays incorrect", maxPoints: 20,
			outcome: grading.Outcome{Score: 13.996, Feedback: "Close"}, wantPoints: 13.996,
		},
		{
			name: "score at threshold", maxPoints: 20,
			outcome: grading.Outcome{Score: 14, Feedback: "Good"}, wantPoints: 14, wantCorrect: true,
		},
		{
			name: "fallback credit is exactly half", maxPoints: 0.25,
			graderErr: errors.New("timeout"), wantPoints: 0.125,
		},
		{
			name: "sub-cent score is kept", maxPoints: 1,
			outcome: grading.Outcome{Score: 0.004, Feedback: "Barely"}, wantPoints: 0.004,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			a := testutil.CreateAssignment(t, f.assignRepo, f.teacher, "Essay", true,
				testutil.OpenEnded("q1", "Why?", "Because", tt.maxPoints),
			)
			s := testutil.CreateSubmission(t, f.subRepo, a, f.student, submission.Answer{QuestionID: "q1", Answer: "Hmm"})
			f.grader.Outcome = tt.outcome
			f.grader.Err = tt.graderErr

			res, err := f.svc.GradeSubmission(context.Background(), f.teacher, s.ID)
			if !assert.NoError(t, err) {
				return
			}
			assert.Equal(t, tt.wantPoints, *res.Answers[0].Points)
			assert.Equal(t, tt.wantCorrect, *res.Answers[0].IsCorrect)
			assert.Equal(t, tt.wantPoints, res.TotalScore)
			assert.Equal(t, tt.maxPoints, res.MaxScore)
		})
	}
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		credit    float64
		want      grading.Policy
	}{
		{name: "defaults", threshold: 0.7, credit: 0.5, want: grading.Policy{CorrectThreshold: 0.7, FallbackCredit: 0.5}},
		{name: "above one", threshold: 1.4, credit: 2, want: grading.Policy{CorrectThreshold: 1, FallbackCredit: 1}},
		{name: "negative", threshold: -0.1, credit: -1, want: grading.Policy{CorrectThreshold: 0, FallbackCredit: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf := core.NewTestConfig()
			conf.Grading.CorrectThreshold = tt.threshold
			conf.Grading.FallbackCredit = tt.credit
			assert.Equal(t, tt.want, grading.NewPolicy(conf))
		})
	}
}

func TestService_GradeSubmission_FallbackNeverExceedsMax(t *testing.T) {
	f := setup(t)
	conf := core.NewTestConfig()
	conf.Grading.FallbackCredit = 3
	svc := grading.NewService(f.subRepo, f.assignRepo, f.usrRepo, f.grader, nil, grading.NewPolicy(conf), testutil.NewLogger(t))
	a := testutil.CreateAssignment(t, f.assignRepo, f.teacher, "Essay", true, testutil.OpenEnded("q1", "Why?", "Because", 10))
	s := testutil.CreateSubmission(t, f.subRepo, a, f.student, submission.Answer{QuestionID: "q1", Answer: "Hmm"})
	f.grader.Err = errors.New("unavailable")

	res, err := svc.GradeSubmission(context.Background(), f.teacher, s.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, 10.0, res.TotalScore)
		assert.LessOrEqual(t, res.TotalScore, res.MaxScore)
	}
}

func TestService_GradeSubmission_Outcomes(t *testing.T) {
	tests := []struct {
		name          string
		outcome       grading.Outcome
		graderErr     error
		wantPoints    float64
		wantCorrect   bool
		wantFeedback  string
		wantGradedBy  submission.GradedBy
		wantNeedsRevw bool
	}{
		{
			name: "score above max is clamped", outcome: grading.Outcome{Score: 14, Feedback: "Great"},
			wantPoints: 10, wantCorrect: true, wantFeedback: "Great", wantGradedBy: submission.GradedByModel,
		},
		{
			name: "negative score is clamped", outcome: grading.Outcome{Score: -3, Feedback: "Off topic"},
			wantPoints: 0, wantCorrect: false, wantFeedback: "Off topic", wantGradedBy: submission.GradedByModel,
		},
		{
			name: "below threshold", outcome: grading.Outcome{Score: 6.9, Feedback: "Partly"},
			wantPoints: 6.9, wantCorrect: false, wantFeedback: "Partly", wantGradedBy: submission.GradedByModel,
		},
		{
			name: "at threshold", outcome: grading.Outcome{Score: 7, Feedback: " "},
			wantPoints: 7, wantCorrect: true, wantFeedback: grading.NoFeedback, wantGradedBy: submission.GradedByModel,
		},
		{
			name: "grader failure gives partial credit", graderErr: core.NewExternalServiceError("llm", errors.New("boom")),
			wantPoints: 5, wantCorrect: false, wantFeedback: grading.FallbackFeedback,
			wantGradedBy: submission.GradedByFallback, wantNeedsRevw: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			a := testutil.CreateAssignment(t, f.assignRepo, f.teacher, "Essay", true,
				testutil.OpenEnded("q1", "Why?", "Because", 10),
			)
			s := testutil.CreateSubmission(t, f.subRepo, a, f.student, submission.Answer{QuestionID: "q1", Answer: "Hmm"})
			f.grader.Outcome = tt.outcome
			f.grader.Err = tt.graderErr

			res, err := f.svc.GradeSubmission(context.Background(), f.admin, s.ID)
			if !assert.NoError(t, err) {
				return
			}
			ans := res.Answers[0]
			assert.Equal(t, tt.wantPoints, *ans.Points)
			assert.Equal(t, tt.wantCorrect, *ans.IsCorrect)
			assert.Equal(t, tt.wantFeedback, ans.Feedback)
			assert.Equal(t, tt.wantGradedBy, ans.GradedBy)
			assert.Equal(t, tt.wantNeedsRevw, res.NeedsReview)
			assert.Equal(t, tt.wantPoints, res.TotalScore)
		})
	}
}

func TestService_GradeSubmission_MultipleChoice(t *testing.T) {
	tests := []struct {
		name        string
		answer      string
		wantPoints  float64
		wantCorrect bool
	}{
		{name: "exact", answer: "Paris", wantPoints: 5, wantCorrect: true},
		{name: "case and spaces ignored", answer: "  pARIS ", wantPoints: 5, wantCorrect: true},
		{name: "wrong", answer: "Lyon", wantPoints: 0},
		{name: "blank", answer: "", wantPoints: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setup(t)
			a := testutil.CreateAssignment(t, f.assignRepo, f.teacher, "Geo", true,
				testutil.MultipleChoice("q1", "Capital of France?", "Paris", 5, "Paris", "Lyon"),
			)
			s := testutil.CreateSubmission(t, f.subRepo, a, f.student, submission.Answer{QuestionID: "q1", Answer: tt.answer})

			res, err := f.svc.GradeSubmission(context.Background(), f.teacher, s.ID)
			if !assert.NoError(t, err) {
				return
			}
			ans := res.Answers[0]
			assert.Equal(t, tt.wantPoints, *ans.Points)
			assert.Equal(t, tt.wantCorrect, *ans.IsCorrect)
			if !tt.wantCorrect {
				assert.Equal(t, grading.IncorrectFeedbackPrefix+"Paris", ans.Feedback)
			}
			assert.Zero(t, f.grader.Calls(), "multiple choice answers must not reach the grader")
		})
	}
}

func TestService_GradeSubmission_MissingQuestion(t *testing.T) {
	f := setup(t)
	a := testutil.CreateAssignment(t, f.assignRepo, f.teacher, "Geo", true,
		testutil.MultipleChoice("q1", "Capital of France?", "Paris", 5, "Paris", "Lyon"),
	)
	s := testutil.CreateSubmission(t, f.subRepo, a, f.student,
		submission.Answer{QuestionID: "q1", Answer: "Paris"},
		submission.Answer{QuestionID: "q9", Answer: "??"},
	)

	res, err := f.svc.GradeSubmission(context.Background(), f.teacher, s.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, 5.0, res.TotalScore)
		missing := res.Answers[1]
		assert.Equal(t, 0.0, *missing.Points)
		assert.Equal(t, grading.MissingQuestionFeedback, missing.Feedback)
		assert.Equal(t, submission.GradedByMissingQuestion, missing.GradedBy)
	}
}

func TestService_GradeSubmission_Authorization(t *testing.T) {
	f := setup(t)
	a := f.mixedAssignment(t)
	s := testutil.CreateSubmission(t, f.subRepo, a, f.student, submission.Answer{QuestionID: "q2", Answer: "0.5"})

	tests := []struct {
		name    string
		actor   user.User
		id      string
		wantErr error
	}{
		{name: "student forbidden", actor: f.student, id: s.ID, wantErr: grading.ErrForbidden},
		{name: "other teacher", actor: f.teacher2, id: s.ID, wantErr: submission.ErrNotFound},
		{name: "unknown submission", actor: f.teacher, id: "unknown", wantErr: submission.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.GradeSubmission(context.Background(), tt.actor, tt.id)
			assert.True(t, errors.Is(err, tt.wantErr), "GradeSubmission() error = %v, wantErr %v", err, tt.wantErr)
		})
	}

	stored, err := f.subRepo.GetSubmission(context.Background(), s.ID)
	if assert.NoError(t, err) {
		assert.False(t, stored.IsGraded)
	}
}

func TestService_GradeAssignment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.mixedAssignment(t)
	f.grader.Outcome = grading.Outcome{Score: 10, Feedback: "Perfect"}

	s1 := testutil.CreateSubmission(t, f.subRepo, a, f.student,
		submission.Answer{QuestionID: "q1", Answer: "spread"},
		submission.Answer{QuestionID: "q2", Answer: "1"},
	)
	s2 := testutil.CreateSubmission(t, f.subRepo, a, f.admin, submission.Answer{QuestionID: "q2", Answer: "0.5"})

	_, err := f.svc.GradeAssignment(ctx, f.teacher2, a.ID)
	assert.True(t, errors.Is(err, assignment.ErrNotFound), "GradeAssignment() by other teacher: error = %v", err)

	res, err := f.svc.GradeAssignment(ctx, f.teacher, a.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, grading.BulkResult{Graded: 2}, res)
	}

	g1, _ := f.subRepo.GetSubmission(ctx, s1.ID)
	g2, _ := f.subRepo.GetSubmission(ctx, s2.ID)
	assert.Equal(t, 10.0, *g1.TotalScore)
	assert.Equal(t, 20.0, *g2.TotalScore)

	// nothing left to grade
	res, err = f.svc.GradeAssignment(ctx, f.teacher, a.ID)
	if assert.NoError(t, err) {
		assert.Equal(t, grading.BulkResult{}, res)
	}

	t.Run("cancelled", func(t *testing.T) {
		testutil.CreateSubmission(t, f.subRepo, a, f.teacher2, submission.Answer{QuestionID: "q2", Answer: "0.5"})
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := f.svc.GradeAssignment(cctx, f.teacher, a.ID)
		assert.True(t, errors.Is(err, context.Canceled), "GradeAssignment() error = %v", err)
	})
}

package assignment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/user"
	dummydb "github.com/alyxedu/alyx/storage/database/dummy"
	"github.com/alyxedu/alyx/testutil"
)

type fixtures struct {
	svc      *assignment.Service
	repo     assignment.Repository
	teacher  user.User
	teacher2 user.User
	student  user.User
	admin    user.User
}

func setup(t *testing.T) fixtures {
	validate, _ := testutil.NewValidator()
	db := dummydb.Open()
	usrRepo := dummydb.NewUserRepository(db)
	repo := dummydb.NewAssignmentRepository(db)

	return fixtures{
		svc:      assignment.NewService(repo, validate),
		repo:     repo,
		teacher:  testutil.CreateUser(t, usrRepo, "Ms. Johnson", "johnson", "teacher@test.cd", "", user.RoleTeacher, true),
		teacher2: testutil.CreateUser(t, usrRepo, "Mr. Brown", "brown", "brown@test.cd", "", user.RoleTeacher, true),
		student:  testutil.CreateUser(t, usrRepo, "Alex Smith", "alex", "student@test.cd", "", user.RoleStudent, true),
		admin:    testutil.CreateUser(t, usrRepo, "Admin", "admin", "admin@test.cd", "", user.RoleAdmin, true),
	}
}

func TestTotalPoints(t *testing.T) {
	tests := []struct {
		name      string
		questions []assignment.Question
		want      float64
	}{
		{name: "no questions", want: 0},
		{name: "one", questions: []assignment.Question{{Points: 10}}, want: 10},
		{name: "decimals", questions: []assignment.Question{{Points: 0.1}, {Points: 0.2}, {Points: 2.5}}, want: 2.8},
		{name: "sub-cent", questions: []assignment.Question{{Points: 0.001}}, want: 0.001},
		{name: "mixed precision", questions: []assignment.Question{{Points: 0.125}, {Points: 0.004}, {Points: 3}}, want: 3.129},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, assignment.TotalPoints(tt.questions), 1e-9)
		})
	}
}

func TestAssignment_Redacted(t *testing.T) {
	a := assignment.Assignment{Questions: []assignment.Question{
		testutil.MultipleChoice("q1", "2+2?", "4", 5, "3", "4"),
		testutil.OpenEnded("q2", "Why?", "Because", 5),
	}}
	red := a.Redacted()
	for _, q := range red.Questions {
		assert.Empty(t, q.CorrectAnswer)
	}
	assert.Equal(t, "4", a.Questions[0].CorrectAnswer, "Redacted() must not modify the original")
}

func TestNormalizeQuestions(t *testing.T) {
	got := assignment.NormalizeQuestions([]assignment.Question{
		{ID: "", Text: " A ", Type: "Multiple_Choice", Options: []string{" x ", "", "y"}, CorrectAnswer: "x", Points: 1},
		{ID: "dup", Text: "B", Type: "open_ended", Options: []string{"z"}, CorrectAnswer: "b", Points: 1},
		{ID: "dup", Text: "C", Type: "open_ended", CorrectAnswer: "c", Points: 1},
	})
	if assert.Len(t, got, 3) {
		assert.Equal(t, "q1", got[0].ID)
		assert.Equal(t, "A", got[0].Text)
		assert.Equal(t, assignment.QuestionMultipleChoice, got[0].Type)
		assert.Equal(t, []string{"x", "y"}, got[0].Options)
		assert.Equal(t, "dup", got[1].ID)
		assert.Nil(t, got[1].Options)
		assert.Equal(t, "dup-2", got[2].ID)
	}
}

func TestService_Create(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	valid := func() assignment.NewAssignment {
		return assignment.NewAssignment{
			Title:   " Probability basics ",
			Subject: core.SubjectStatistics,
			Type:    assignment.TypeOpenEnded,
			Questions: []assignment.Question{
				testutil.OpenEnded("", "Define variance.", "Spread around the mean", 10),
				testutil.MultipleChoice("", "P(heads)?", "0.5", 20, "0.25", "0.5"),
			},
		}
	}

	tests := []struct {
		name       string
		actor      user.User
		na         func() assignment.NewAssignment
		wantErr    error
		wantValErr bool
	}{
		{name: "student forbidden", actor: f.student, na: valid, wantErr: assignment.ErrForbidden},
		{name: "admin forbidden", actor: f.admin, na: valid, wantErr: assignment.ErrForbidden},
		{
			name: "no questions", actor: f.teacher, wantValErr: true,
			na: func() assignment.NewAssignment { na := valid(); na.Questions = nil; return na },
		},
		{
			name: "unknown subject", actor: f.teacher, wantValErr: true,
			na: func() assignment.NewAssignment { na := valid(); na.Subject = "Alchemy"; return na },
		},
		{
			name: "multiple choice without options", actor: f.teacher, wantValErr: true,
			na: func() assignment.NewAssignment { na := valid(); na.Questions[1].Options = nil; return na },
		},
		{
			name: "duplicate question ids", actor: f.teacher, wantValErr: true,
			na: func() assignment.NewAssignment {
				na := valid()
				na.Questions[0].ID, na.Questions[1].ID = "q", "q"
				return na
			},
		},
		{
			name: "zero points", actor: f.teacher, wantValErr: true,
			na: func() assignment.NewAssignment { na := valid(); na.Questions[0].Points = 0; return na },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.actor, tt.na())
			if tt.wantValErr {
				var verrs validator.ValidationErrors
				assert.True(t, errors.As(err, &verrs), "Create() error = %v, want validation errors", err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "Create() error = %v, wantErr %v", err, tt.wantErr)
		})
	}

	t.Run("success", func(t *testing.T) {
		a, err := f.svc.Create(ctx, f.teacher, valid())
		if !assert.NoError(t, err) {
			return
		}
		assert.NotEmpty(t, a.ID)
		assert.Equal(t, "Probability basics", a.Title)
		assert.Equal(t, f.teacher.ID, a.TeacherID)
		assert.Equal(t, 30.0, a.TotalPoints)
		assert.False(t, a.IsPublished)
		assert.Equal(t, "q1", a.Questions[0].ID)
		assert.Equal(t, "q2", a.Questions[1].ID)
	})
}

func TestService_Publish(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	a := testutil.CreateAssignment(t, f.repo, f.teacher, "Draft", false, testutil.OpenEnded("q1", "Why?", "Because", 10))

	_, err := f.svc.Publish(ctx, f.teacher2, a.ID)
	assert.True(t, errors.Is(err, assignment.ErrNotFound), "Publish() by another teacher: error = %v", err)

	_, err = f.svc.Publish(ctx, f.teacher, "unknown")
	assert.True(t, errors.Is(err, assignment.ErrNotFound), "Publish() unknown: error = %v", err)

	published, err := f.svc.Publish(ctx, f.teacher, a.ID)
	if assert.NoError(t, err) {
		assert.True(t, published.IsPublished)
	}

	// publishing again changes nothing
	core.NowFunc = func() time.Time { return time.Now().UTC().Add(time.Hour) }
	defer func() { core.NowFunc = func() time.Time { return time.Now().UTC() } }()

	again, err := f.svc.Publish(ctx, f.teacher, a.ID)
	if assert.NoError(t, err) {
		assert.True(t, again.IsPublished)
		assert.Equal(t, published.UpdatedAt, again.UpdatedAt)
	}
}

func TestService_Visibility(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	q := testutil.OpenEnded("q1", "Why?", "Because", 10)

	draft := testutil.CreateAssignment(t, f.repo, f.teacher, "Draft", false, q)
	live := testutil.CreateAssignment(t, f.repo, f.teacher, "Live", true, q)
	other := testutil.CreateAssignment(t, f.repo, f.teacher2, "Other", true, q)

	tests := []struct {
		name    string
		actor   user.User
		id      string
		wantErr error
	}{
		{name: "owner sees draft", actor: f.teacher, id: draft.ID},
		{name: "admin sees draft", actor: f.admin, id: draft.ID},
		{name: "student cannot see draft", actor: f.student, id: draft.ID, wantErr: assignment.ErrNotFound},
		{name: "student sees published", actor: f.student, id: live.ID},
		{name: "teacher cannot see others", actor: f.teacher, id: other.ID, wantErr: assignment.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Get(ctx, tt.actor, tt.id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "Get() error = %v, wantErr %v", err, tt.wantErr)
		})
	}

	t.Run("query by teacher", func(t *testing.T) {
		got, err := f.svc.QueryByTeacher(ctx, f.teacher, assignment.QueryFilter{}, nil)
		if assert.NoError(t, err) {
			ids := make([]string, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ID)
			}
			assert.ElementsMatch(t, []string{draft.ID, live.ID}, ids)
		}

		got, err = f.svc.QueryByTeacher(ctx, f.student, assignment.QueryFilter{}, nil)
		assert.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("query published", func(t *testing.T) {
		got, err := f.svc.QueryPublished(ctx, []core.DBOrdering{{Field: "title", Ascending: true}})
		if assert.NoError(t, err) && assert.Len(t, got, 2) {
			assert.Equal(t, live.ID, got[0].ID)
			assert.Equal(t, other.ID, got[1].ID)
		}
	})
}

func TestService_CreateQuiz(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.CreateQuiz(ctx, f.teacher.ID, "Quiz: Empty", core.SubjectStatistics, nil)
	assert.True(t, errors.Is(err, assignment.ErrNoQuestion), "CreateQuiz() error = %v", err)

	quiz, err := f.svc.CreateQuiz(ctx, f.teacher.ID, "Quiz: Means", core.SubjectStatistics, []assignment.Question{
		testutil.OpenEnded("q1", "Define mean.", "Average", 15),
		testutil.MultipleChoice("q2", "Mean of 1,3?", "2", 10, "1", "2"),
	})
	if assert.NoError(t, err) {
		assert.Equal(t, assignment.TypeQuiz, quiz.Type)
		assert.Equal(t, assignment.QuizDescription, quiz.Description)
		assert.True(t, quiz.IsPublished)
		assert.Equal(t, 25.0, quiz.TotalPoints)
	}
}

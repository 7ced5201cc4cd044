package lessonplan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/user"
)

const generatorService = "quiz generator"

var (
	// errors
	ErrNotFound             = core.NewNotFoundError(errors.New("lesson plan not found"))
	ErrForbidden            = core.NewPermissionError(errors.New("only teachers can create lesson plans"))
	ErrQuizAlreadyGenerated = core.NewConflictError(errors.New("a quiz was already generated from this lesson plan"))
	ErrNoValidQuestion      = errors.New("no valid question generated")
)

type (
	Repository interface {
		CreateLessonPlan(ctx context.Context, lp LessonPlan, exec ...core.DBExecutor) (LessonPlan, error)
		GetLessonPlan(ctx context.Context, id string, exec ...core.DBExecutor) (LessonPlan, error)
		QueryLessonPlans(ctx context.Context, teacherID string, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]LessonPlan, error)
		// LinkQuiz sets GeneratedQuizID only while it is unset; it returns ErrQuizAlreadyGenerated otherwise.
		LinkQuiz(ctx context.Context, id, quizID string, updatedAt time.Time, exec ...core.DBExecutor) (LessonPlan, error)
	}

	// QuizGenerator writes quiz questions from lesson plan content, typically through a language model.
	QuizGenerator interface {
		GenerateQuiz(ctx context.Context, content string, subject core.Subject) ([]assignment.Question, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor user.User, nl NewLessonPlan) (LessonPlan, error)
		QueryByTeacher(ctx context.Context, actor user.User, ordering []core.DBOrdering) ([]LessonPlan, error)
		Get(ctx context.Context, actor user.User, id string) (LessonPlan, error)
		GenerateQuiz(ctx context.Context, actor user.User, id string) (assignment.Assignment, error)
	}

	Service struct {
		repo      Repository
		assignSvc assignment.ServiceInterface
		generator QuizGenerator
		tx        core.TxRunner
		validate  *validator.Validate
		logger    core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

// OrderingFields maps the `ordering` query fields accepted when listing lesson plans to their columns.
var OrderingFields = map[string]string{
	"title":      "title",
	"subject":    "subject",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

func NewService(
	repo Repository,
	assignSvc assignment.ServiceInterface,
	generator QuizGenerator,
	tx core.TxRunner,
	validate *validator.Validate,
	logger core.Logger,
) *Service {
	return &Service{
		repo:      repo,
		assignSvc: assignSvc,
		generator: generator,
		tx:        tx,
		validate:  validate,
		logger:    logger,
	}
}

func (svc *Service) Create(ctx context.Context, actor user.User, nl NewLessonPlan) (LessonPlan, error) {
	switch actor.Role {
	case user.RoleTeacher:
	case user.RoleAdmin, user.RoleStudent, user.RoleNone:
		return LessonPlan{}, ErrForbidden
	default:
		return LessonPlan{}, ErrForbidden
	}

	nl.Clean()
	if err := svc.validate.Struct(nl); err != nil {
		return LessonPlan{}, err
	}

	now := core.NowFunc()
	lp := LessonPlan{
		Title:     nl.Title,
		Subject:   nl.Subject,
		TeacherID: actor.ID,
		Content:   nl.Content,
		FileID:    nl.FileID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return svc.repo.CreateLessonPlan(ctx, lp)
}

// QueryByTeacher lists the actor's lesson plans. Non-teachers get an empty list.
func (svc *Service) QueryByTeacher(ctx context.Context, actor user.User, ordering []core.DBOrdering) ([]LessonPlan, error) {
	switch actor.Role {
	case user.RoleTeacher:
	case user.RoleAdmin, user.RoleStudent, user.RoleNone:
		return []LessonPlan{}, nil
	default:
		return []LessonPlan{}, nil
	}
	return svc.repo.QueryLessonPlans(ctx, actor.ID, ordering)
}

func (svc *Service) Get(ctx context.Context, actor user.User, id string) (LessonPlan, error) {
	lp, err := svc.repo.GetLessonPlan(ctx, id)
	if err != nil {
		return LessonPlan{}, err
	}
	if !canAccess(actor, lp) {
		return LessonPlan{}, ErrNotFound
	}
	return lp, nil
}

// GenerateQuiz asks the generator for questions about the plan, then stores them as a published quiz
// linked to the plan. A plan yields at most one quiz; nothing is written when generation fails.
func (svc *Service) GenerateQuiz(ctx context.Context, actor user.User, id string) (assignment.Assignment, error) {
	lp, err := svc.Get(ctx, actor, id)
	if err != nil {
		return assignment.Assignment{}, err
	}
	if lp.HasQuiz() {
		return assignment.Assignment{}, ErrQuizAlreadyGenerated
	}

	generated, err := svc.generator.GenerateQuiz(ctx, lp.Content, lp.Subject)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("generating quiz for lesson plan %s: %v", lp.ID, err), err, actor)
		var extErr *core.ExternalServiceError
		if errors.As(err, &extErr) {
			return assignment.Assignment{}, extErr
		}
		return assignment.Assignment{}, core.NewExternalServiceError(generatorService, err)
	}

	questions := svc.validQuestions(lp, assignment.NormalizeQuestions(generated))
	if len(questions) == 0 {
		svc.logger.Error(fmt.Sprintf("generating quiz for lesson plan %s: %v", lp.ID, ErrNoValidQuestion), ErrNoValidQuestion, actor)
		return assignment.Assignment{}, core.NewExternalServiceError(generatorService, ErrNoValidQuestion)
	}

	var quiz assignment.Assignment
	err = svc.tx.RunInTx(ctx, func(exec core.DBExecutor) error {
		var err error
		quiz, err = svc.assignSvc.CreateQuiz(ctx, lp.TeacherID, QuizTitlePrefix+lp.Title, lp.Subject, questions, exec)
		if err != nil {
			return pkgerrors.Wrap(err, "creating quiz")
		}
		if _, err = svc.repo.LinkQuiz(ctx, lp.ID, quiz.ID, core.NowFunc(), exec); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrQuizAlreadyGenerated) {
			return assignment.Assignment{}, ErrQuizAlreadyGenerated
		}
		return assignment.Assignment{}, pkgerrors.Wrap(err, "saving generated quiz")
	}
	return quiz, nil
}

// validQuestions drops generated questions that would not pass assignment validation.
func (svc *Service) validQuestions(lp LessonPlan, questions []assignment.Question) []assignment.Question {
	valid := make([]assignment.Question, 0, len(questions))
	for _, q := range questions {
		if err := svc.validate.Struct(q); err != nil {
			svc.logger.Warn(
				fmt.Sprintf("dropping generated question %q of lesson plan %s: %v", q.ID, lp.ID, err), err,
			)
			continue
		}
		valid = append(valid, q)
	}
	return valid
}

func canAccess(actor user.User, lp LessonPlan) bool {
	switch actor.Role {
	case user.RoleAdmin:
		return true
	case user.RoleTeacher:
		return lp.TeacherID == actor.ID
	case user.RoleStudent, user.RoleNone:
		return false
	}
	return false
}

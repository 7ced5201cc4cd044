package assignment

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/user"
)

var (
	// errors
	ErrNotFound   = core.NewNotFoundError(errors.New("assignment not found"))
	ErrForbidden  = core.NewPermissionError(errors.New("only teachers can create assignments"))
	ErrNoQuestion = core.NewValidationError(errors.New("a quiz needs at least one question"))
)

// OrderingFields maps the `ordering` query fields accepted when listing assignments to their columns.
var OrderingFields = map[string]string{
	"title":        "title",
	"subject":      "subject",
	"due_date":     "due_date",
	"total_points": "total_points",
	"created_at":   "created_at",
	"updated_at":   "updated_at",
}

type (
	Repository interface {
		CreateAssignment(ctx context.Context, a Assignment, exec ...core.DBExecutor) (Assignment, error)
		GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (Assignment, error)
		QueryAssignments(ctx context.Context, filter QueryFilter, ordering []core.DBOrdering, exec ...core.DBExecutor) ([]Assignment, error)
		// PublishAssignment sets IsPublished only when it is still false; it reports whether a row changed.
		PublishAssignment(ctx context.Context, id string, updatedAt time.Time, exec ...core.DBExecutor) (bool, error)
	}

	ServiceInterface interface {
		Create(ctx context.Context, actor user.User, na NewAssignment) (Assignment, error)
		Publish(ctx context.Context, actor user.User, id string) (Assignment, error)
		QueryByTeacher(ctx context.Context, actor user.User, filter QueryFilter, ordering []core.DBOrdering) ([]Assignment, error)
		QueryPublished(ctx context.Context, ordering []core.DBOrdering) ([]Assignment, error)
		Get(ctx context.Context, actor user.User, id string) (Assignment, error)
		CreateQuiz(ctx context.Context, teacherID, title string, subject core.Subject, questions []Question, exec ...core.DBExecutor) (Assignment, error)
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// Create stores a draft assignment authored by a teacher.
func (svc *Service) Create(ctx context.Context, actor user.User, na NewAssignment) (Assignment, error) {
	switch actor.Role {
	case user.RoleTeacher:
	case user.RoleAdmin, user.RoleStudent, user.RoleNone:
		return Assignment{}, ErrForbidden
	default:
		return Assignment{}, ErrForbidden
	}

	na.Clean()
	if err := svc.validate.Struct(na); err != nil {
		return Assignment{}, err
	}

	now := core.NowFunc()
	a := Assignment{
		Title:       na.Title,
		Description: na.Description,
		Subject:     na.Subject,
		Type:        na.Type,
		TeacherID:   actor.ID,
		Questions:   na.Questions,
		TotalPoints: TotalPoints(na.Questions),
		DueDate:     na.DueDate,
		IsPublished: false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateAssignment(ctx, a)
}

// Publish exposes an assignment to students. Publishing twice changes nothing.
func (svc *Service) Publish(ctx context.Context, actor user.User, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if !(actor.IsTeacher() && a.TeacherID == actor.ID) {
		return Assignment{}, ErrNotFound
	}
	if a.IsPublished {
		return a, nil
	}

	if _, err = svc.repo.PublishAssignment(ctx, id, core.NowFunc()); err != nil {
		return Assignment{}, err
	}
	return svc.repo.GetAssignment(ctx, id)
}

// QueryByTeacher lists the actor's own assignments, optionally for one subject.
// Non-teachers get an empty list.
func (svc *Service) QueryByTeacher(ctx context.Context, actor user.User, filter QueryFilter, ordering []core.DBOrdering) ([]Assignment, error) {
	switch actor.Role {
	case user.RoleTeacher:
	case user.RoleAdmin, user.RoleStudent, user.RoleNone:
		return []Assignment{}, nil
	default:
		return []Assignment{}, nil
	}

	filter.Clean()
	filter.TeacherID = actor.ID
	filter.IsPublished = nil
	return svc.repo.QueryAssignments(ctx, filter, ordering)
}

func (svc *Service) QueryPublished(ctx context.Context, ordering []core.DBOrdering) ([]Assignment, error) {
	published := true
	return svc.repo.QueryAssignments(ctx, QueryFilter{IsPublished: &published}, ordering)
}

// Get returns an assignment visible to the actor: teachers see their own, students published ones, admins any.
func (svc *Service) Get(ctx context.Context, actor user.User, id string) (Assignment, error) {
	a, err := svc.repo.GetAssignment(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if !CanView(actor, a) {
		return Assignment{}, ErrNotFound
	}
	return a, nil
}

// CreateQuiz stores a published quiz owned by teacherID.
func (svc *Service) CreateQuiz(
	ctx context.Context,
	teacherID, title string,
	subject core.Subject,
	questions []Question,
	exec ...core.DBExecutor,
) (Assignment, error) {
	if len(questions) == 0 {
		return Assignment{}, ErrNoQuestion
	}
	now := core.NowFunc()
	quiz := Assignment{
		Title:       core.CleanString(title),
		Description: QuizDescription,
		Subject:     subject,
		Type:        TypeQuiz,
		TeacherID:   teacherID,
		Questions:   questions,
		TotalPoints: TotalPoints(questions),
		IsPublished: true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return svc.repo.CreateAssignment(ctx, quiz, exec...)
}

// CanView reports whether actor may read a.
func CanView(actor user.User, a Assignment) bool {
	switch actor.Role {
	case user.RoleAdmin:
		return true
	case user.RoleTeacher:
		return a.TeacherID == actor.ID
	case user.RoleStudent:
		return a.IsPublished
	case user.RoleNone:
		return false
	}
	return false
}

// IsOwner reports whether actor owns a, or administers the platform.
func IsOwner(actor user.User, a Assignment) bool {
	switch actor.Role {
	case user.RoleAdmin:
		return true
	case user.RoleTeacher:
		return a.TeacherID == actor.ID
	case user.RoleStudent, user.RoleNone:
		return false
	}
	return false
}

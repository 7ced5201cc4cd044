package submission

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/user"
)

var (
	// errors
	ErrNotFound           = core.NewNotFoundError(errors.New("submission not found"))
	ErrAssignmentNotFound = core.NewNotFoundError(errors.New("assignment not found or not published"))
	ErrForbidden          = core.NewPermissionError(errors.New("only students can submit assignments"))
	ErrUnauthorized       = core.NewPermissionError(errors.New("unauthorized"))
	ErrAlreadySubmitted   = core.NewConflictError(errors.New("assignment already submitted"))
	ErrAlreadyGraded      = core.NewConflictError(errors.New("submission already graded"))
	ErrStudentIDRequired  = core.NewValidationError(
		errors.New("student_id is required"),
		core.FieldError{Field: "student_id", Error: "this field is required"},
	)
)

type (
	Repository interface {
		// CreateSubmission returns ErrAlreadySubmitted when the (assignment, student) pair already exists.
		CreateSubmission(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
		GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (Submission, error)
		GetSubmissionByPair(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) (Submission, error)
		QuerySubmissions(ctx context.Context, filter QueryFilter, exec ...core.DBExecutor) ([]Submission, error)
		// SaveGrades writes the grading fields of an ungraded submission in one statement.
		// It returns ErrAlreadyGraded when the submission has been graded meanwhile.
		SaveGrades(ctx context.Context, s Submission, exec ...core.DBExecutor) (Submission, error)
	}

	ServiceInterface interface {
		Submit(ctx context.Context, actor user.User, assignmentID string, ns NewSubmission) (Submission, error)
		Get(ctx context.Context, actor user.User, assignmentID, studentID string) (Submission, error)
		QueryByStudent(ctx context.Context, actor user.User) ([]WithAssignment, error)
		QueryByAssignment(ctx context.Context, actor user.User, assignmentID string) ([]WithStudent, error)
	}

	Service struct {
		repo       Repository
		assignRepo assignment.Repository
		usrRepo    user.Repository
		validate   *validator.Validate
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(repo Repository, assignRepo assignment.Repository, usrRepo user.Repository, validate *validator.Validate) *Service {
	return &Service{
		repo:       repo,
		assignRepo: assignRepo,
		usrRepo:    usrRepo,
		validate:   validate,
	}
}

// Submit stores a student's answers to a published assignment, once.
func (svc *Service) Submit(ctx context.Context, actor user.User, assignmentID string, ns NewSubmission) (Submission, error) {
	switch actor.Role {
	case user.RoleStudent:
	case user.RoleAdmin, user.RoleTeacher, user.RoleNone:
		return Submission{}, ErrForbidden
	default:
		return Submission{}, ErrForbidden
	}

	ns.Clean()
	if err := svc.validate.Struct(ns); err != nil {
		return Submission{}, err
	}

	a, err := svc.assignRepo.GetAssignment(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, assignment.ErrNotFound) {
			return Submission{}, ErrAssignmentNotFound
		}
		return Submission{}, pkgerrors.Wrap(err, "getting assignment")
	}
	if !a.IsPublished {
		return Submission{}, ErrAssignmentNotFound
	}

	if _, err = svc.repo.GetSubmissionByPair(ctx, a.ID, actor.ID); err == nil {
		return Submission{}, ErrAlreadySubmitted
	} else if !errors.Is(err, ErrNotFound) {
		return Submission{}, pkgerrors.Wrap(err, "checking existing submission")
	}

	s := Submission{
		AssignmentID: a.ID,
		StudentID:    actor.ID,
		Answers:      ns.Answers,
		MaxScore:     a.TotalPoints,
		IsGraded:     false,
		SubmittedAt:  core.NowFunc(),
	}
	return svc.repo.CreateSubmission(ctx, s)
}

// Get returns the submission of studentID for an assignment.
// Students may only read their own; teachers read those of their assignments.
func (svc *Service) Get(ctx context.Context, actor user.User, assignmentID, studentID string) (Submission, error) {
	studentID = core.CleanString(studentID)

	switch actor.Role {
	case user.RoleStudent:
		if studentID == "" {
			studentID = actor.ID
		} else if studentID != actor.ID {
			return Submission{}, ErrUnauthorized
		}
	case user.RoleTeacher, user.RoleAdmin:
		if studentID == "" {
			return Submission{}, ErrStudentIDRequired
		}
		a, err := svc.assignRepo.GetAssignment(ctx, assignmentID)
		if err != nil {
			return Submission{}, err
		}
		if !assignment.IsOwner(actor, a) {
			return Submission{}, assignment.ErrNotFound
		}
	case user.RoleNone:
		return Submission{}, ErrUnauthorized
	default:
		return Submission{}, ErrUnauthorized
	}

	return svc.repo.GetSubmissionByPair(ctx, assignmentID, studentID)
}

// QueryByStudent lists the actor's submissions with their assignments. Non-students get an empty list.
func (svc *Service) QueryByStudent(ctx context.Context, actor user.User) ([]WithAssignment, error) {
	switch actor.Role {
	case user.RoleStudent:
	case user.RoleAdmin, user.RoleTeacher, user.RoleNone:
		return []WithAssignment{}, nil
	default:
		return []WithAssignment{}, nil
	}

	subs, err := svc.repo.QuerySubmissions(ctx, QueryFilter{StudentID: actor.ID})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying submissions")
	}

	result := make([]WithAssignment, 0, len(subs))
	for _, s := range subs {
		item := WithAssignment{Submission: s}
		a, err := svc.assignRepo.GetAssignment(ctx, s.AssignmentID)
		if err == nil {
			a = a.Redacted()
			item.Assignment = &a
		} else if !errors.Is(err, assignment.ErrNotFound) {
			return nil, pkgerrors.Wrap(err, "getting assignment")
		}
		result = append(result, item)
	}
	return result, nil
}

// QueryByAssignment lists the submissions of an assignment owned by the actor, with their students.
func (svc *Service) QueryByAssignment(ctx context.Context, actor user.User, assignmentID string) ([]WithStudent, error) {
	a, err := svc.assignRepo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if !assignment.IsOwner(actor, a) {
		return nil, assignment.ErrNotFound
	}

	subs, err := svc.repo.QuerySubmissions(ctx, QueryFilter{AssignmentID: a.ID})
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying submissions")
	}

	ids := make([]string, 0, len(subs))
	for _, s := range subs {
		ids = append(ids, s.StudentID)
	}
	students := make(map[string]user.User, len(ids))
	if len(ids) > 0 {
		users, err := svc.usrRepo.QueryUsersByID(ctx, ids)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "querying students")
		}
		for _, u := range users {
			students[u.ID] = u
		}
	}

	result := make([]WithStudent, 0, len(subs))
	for _, s := range subs {
		item := WithStudent{Submission: s}
		if usr, ok := students[s.StudentID]; ok {
			info := NewStudentInfo(usr)
			item.Student = &info
		}
		result = append(result, item)
	}
	return result, nil
}

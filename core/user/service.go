package user

import (
	"context"
	"errors"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/alyxedu/alyx/core"
)

var (
	// errors
	ErrNotFound       = core.NewNotFoundError(errors.New("user not found"))
	ErrEmailExists    = errors.New("a user with this email already exists")
	ErrUsernameExists = errors.New("a user with this username already exists")
	ErrRoleAlreadySet = core.NewConflictError(errors.New("role already set"))
)

type (
	Repository interface {
		CheckUsernameUniqueness(ctx context.Context, username, email string, excludedUsers []User, exec ...core.DBExecutor) error
		CreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		GetUser(ctx context.Context, filter GetFilter, exec ...core.DBExecutor) (User, error)
		QueryUsersByID(ctx context.Context, ids []string, exec ...core.DBExecutor) ([]User, error)
		UpdateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
		UpdateOrCreateUser(ctx context.Context, usr User, exec ...core.DBExecutor) (User, error)
	}

	ServiceInterface interface {
		Register(ctx context.Context, nu NewUser) (User, error)
		GetByID(ctx context.Context, id string) (User, error)
		GetByUsernameOrEmail(ctx context.Context, uname string) (User, error)
		QueryByIDs(ctx context.Context, ids []string) ([]User, error)
		SetLastLogin(ctx context.Context, usr User) (User, error)
		SetProfile(ctx context.Context, actor User, p Profile) (User, error)
		CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error
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

func (svc *Service) CheckUniqueness(ctx context.Context, uname, email string, exclUsers ...User) error {
	if err := svc.repo.CheckUsernameUniqueness(ctx, uname, email, exclUsers); err != nil {
		var field string
		switch err {
		case ErrUsernameExists:
			field = "username"
		case ErrEmailExists:
			field = "email"
		default:
			return err
		}
		return core.NewValidationError(err, core.FieldError{Field: field, Error: err.Error()})
	}
	return nil
}

// Register signs a user up. The role is left unset until SetProfile.
func (svc *Service) Register(ctx context.Context, nu NewUser) (User, error) {
	nu.Clean()
	if err := svc.validate.Struct(nu); err != nil {
		return User{}, err
	}
	if err := svc.CheckUniqueness(ctx, nu.Username, nu.Email); err != nil {
		return User{}, err
	}

	now := core.NowFunc()
	usr := User{
		Name:      nu.Name,
		Username:  nu.Username,
		Email:     nu.Email,
		IsActive:  true,
		Role:      RoleNone,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := usr.SetPassword(nu.Password); err != nil {
		return User{}, pkgerrors.Wrap(err, "hashing password")
	}
	return svc.repo.CreateUser(ctx, usr)
}

func (svc *Service) GetByID(ctx context.Context, id string) (User, error) {
	return svc.repo.GetUser(ctx, GetFilter{ID: id})
}

func (svc *Service) GetByUsernameOrEmail(ctx context.Context, uname string) (User, error) {
	uname = core.CleanString(uname, true /* lower */)
	return svc.repo.GetUser(ctx, GetFilter{UsernameOrEmail: []string{uname}})
}

func (svc *Service) QueryByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	return svc.repo.QueryUsersByID(ctx, ids)
}

func (svc *Service) SetLastLogin(ctx context.Context, usr User) (User, error) {
	usr.LastLogin = core.NowFunc()
	return svc.repo.UpdateUser(ctx, usr)
}

// SetProfile sets the actor's role, name and subjects.
// The role may only be picked once; repeating the same role updates name and subjects.
func (svc *Service) SetProfile(ctx context.Context, actor User, p Profile) (User, error) {
	p.Clean()
	if err := svc.validate.Struct(p); err != nil {
		return User{}, err
	}

	switch actor.Role {
	case RoleNone, p.Role:
	default:
		return User{}, ErrRoleAlreadySet
	}

	usr := actor
	usr.Role = p.Role
	if p.Name != "" {
		usr.Name = p.Name
	}

	switch p.Role {
	case RoleTeacher:
		usr.Subjects = uniqueSubjects(p.Subjects)
		if len(usr.Subjects) == 0 {
			usr.Subjects = append([]core.Subject(nil), core.AllSubjects...)
		}
	case RoleStudent:
		usr.Subjects = nil
	case RoleAdmin, RoleNone:
		return User{}, core.NewValidationError(
			errors.New("invalid role"),
			core.FieldError{Field: "role", Error: profileRoleText},
		)
	}
	usr.UpdatedAt = core.NowFunc()

	return svc.repo.UpdateUser(ctx, usr)
}

func uniqueSubjects(subjects []core.Subject) []core.Subject {
	if len(subjects) == 0 {
		return nil
	}
	seen := make(map[core.Subject]bool, len(subjects))
	out := make([]core.Subject, 0, len(subjects))
	for _, s := range subjects {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

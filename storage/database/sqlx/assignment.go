package sqlxrepos

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
)

const assignmentColumns = `id, title, description, subject, type, teacher_id, questions, total_points, due_date, is_published, created_at, updated_at`

type assignmentRow struct {
	ID          string         `db:"id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Subject     string         `db:"subject"`
	Type        string         `db:"type"`
	TeacherID   string         `db:"teacher_id"`
	Questions   types.JSONText `db:"questions"`
	TotalPoints float64        `db:"total_points"`
	DueDate     null.Time      `db:"due_date"`
	IsPublished bool           `db:"is_published"`
	CreatedAt   time.Time      `db:"created_at"`
	UpdatedAt   time.Time      `db:"updated_at"`
}

func toAssignmentRow(a assignment.Assignment) (assignmentRow, error) {
	questions := a.Questions
	if questions == nil {
		questions = []assignment.Question{}
	}
	raw, err := json.Marshal(questions)
	if err != nil {
		return assignmentRow{}, pkgerrors.Wrap(err, "encoding questions")
	}
	var due null.Time
	if a.DueDate != nil {
		due = null.TimeFrom(a.DueDate.UTC())
	}
	return assignmentRow{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Subject:     string(a.Subject),
		Type:        string(a.Type),
		TeacherID:   a.TeacherID,
		Questions:   raw,
		TotalPoints: a.TotalPoints,
		DueDate:     due,
		IsPublished: a.IsPublished,
		CreatedAt:   a.CreatedAt.UTC(),
		UpdatedAt:   a.UpdatedAt.UTC(),
	}, nil
}

func (r assignmentRow) assignment() (assignment.Assignment, error) {
	var questions []assignment.Question
	if err := r.Questions.Unmarshal(&questions); err != nil {
		return assignment.Assignment{}, pkgerrors.Wrap(err, "decoding questions")
	}
	if questions == nil {
		questions = []assignment.Question{}
	}
	a := assignment.Assignment{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Subject:     core.Subject(r.Subject),
		Type:        assignment.Type(r.Type),
		TeacherID:   r.TeacherID,
		Questions:   questions,
		TotalPoints: r.TotalPoints,
		IsPublished: r.IsPublished,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	if r.DueDate.Valid {
		due := r.DueDate.Time.UTC()
		a.DueDate = &due
	}
	return a, nil
}

type assignmentRepository struct {
	repository
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *sqlx.DB) *assignmentRepository {
	return &assignmentRepository{repository{db: db}}
}

func (repo assignmentRepository) CreateAssignment(ctx context.Context, a assignment.Assignment, exec ...core.DBExecutor) (assignment.Assignment, error) {
	a.ID = uuid.New().String()
	row, err := toAssignmentRow(a)
	if err != nil {
		return assignment.Assignment{}, err
	}
	_, err = sqlx.NamedExecContext(ctx, repo.getExec(exec),
		`INSERT INTO assignment (`+assignmentColumns+`)
		VALUES (:id, :title, :description, :subject, :type, :teacher_id, :questions, :total_points, :due_date, :is_published, :created_at, :updated_at)`,
		row,
	)
	if err != nil {
		return assignment.Assignment{}, pkgerrors.Wrap(err, "inserting assignment")
	}
	return a, nil
}

func (repo assignmentRepository) GetAssignment(ctx context.Context, id string, exec ...core.DBExecutor) (assignment.Assignment, error) {
	if !isUUID(id) {
		return assignment.Assignment{}, assignment.ErrNotFound
	}
	var row assignmentRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT `+assignmentColumns+` FROM assignment WHERE id = $1`, id)
	if err != nil {
		return assignment.Assignment{}, trapNoRowsErr(err, assignment.ErrNotFound, "finding assignment")
	}
	return row.assignment()
}

func (repo assignmentRepository) QueryAssignments(
	ctx context.Context,
	filter assignment.QueryFilter,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]assignment.Assignment, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.TeacherID != "" {
		if !isUUID(filter.TeacherID) {
			return []assignment.Assignment{}, nil
		}
		args = append(args, filter.TeacherID)
		conds = append(conds, fmt.Sprintf("teacher_id = $%d", len(args)))
	}
	if filter.Subject != "" {
		args = append(args, string(filter.Subject))
		conds = append(conds, fmt.Sprintf("subject = $%d", len(args)))
	}
	if filter.IsPublished != nil {
		args = append(args, *filter.IsPublished)
		conds = append(conds, fmt.Sprintf("is_published = $%d", len(args)))
	}

	q := `SELECT ` + assignmentColumns + ` FROM assignment`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY ` + core.OrderByClause(ordering, assignment.OrderingFields, "created_at DESC")

	var rows []assignmentRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, pkgerrors.Wrap(err, "querying assignments")
	}
	result := make([]assignment.Assignment, 0, len(rows))
	for _, r := range rows {
		a, err := r.assignment()
		if err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, nil
}

func (repo assignmentRepository) PublishAssignment(ctx context.Context, id string, updatedAt time.Time, exec ...core.DBExecutor) (bool, error) {
	if !isUUID(id) {
		return false, assignment.ErrNotFound
	}
	res, err := repo.getExec(exec).ExecContext(ctx,
		`UPDATE assignment SET is_published = TRUE, updated_at = $2 WHERE id = $1 AND is_published = FALSE`,
		id, updatedAt.UTC(),
	)
	if err != nil {
		return false, pkgerrors.Wrap(err, "publishing assignment")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, pkgerrors.Wrap(err, "publishing assignment")
	}
	return n > 0, nil
}

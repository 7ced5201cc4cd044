package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/submission"
)

const submissionColumns = `id, assignment_id, student_id, answers, total_score, max_score, is_graded, needs_review, submitted_at, graded_at`

type submissionRow struct {
	ID           string         `db:"id"`
	AssignmentID string         `db:"assignment_id"`
	StudentID    string         `db:"student_id"`
	Answers      types.JSONText `db:"answers"`
	TotalScore   null.Float64   `db:"total_score"`
	MaxScore     float64        `db:"max_score"`
	IsGraded     bool           `db:"is_graded"`
	NeedsReview  bool           `db:"needs_review"`
	SubmittedAt  time.Time      `db:"submitted_at"`
	GradedAt     null.Time      `db:"graded_at"`
}

func toSubmissionRow(s submission.Submission) (submissionRow, error) {
	answers := s.Answers
	if answers == nil {
		answers = []submission.Answer{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return submissionRow{}, pkgerrors.Wrap(err, "encoding answers")
	}
	var gradedAt null.Time
	if s.GradedAt != nil {
		gradedAt = null.TimeFrom(s.GradedAt.UTC())
	}
	return submissionRow{
		ID:           s.ID,
		AssignmentID: s.AssignmentID,
		StudentID:    s.StudentID,
		Answers:      raw,
		TotalScore:   null.Float64FromPtr(s.TotalScore),
		MaxScore:     s.MaxScore,
		IsGraded:     s.IsGraded,
		NeedsReview:  s.NeedsReview,
		SubmittedAt:  s.SubmittedAt.UTC(),
		GradedAt:     gradedAt,
	}, nil
}

func (r submissionRow) submission() (submission.Submission, error) {
	var answers []submission.Answer
	if err := r.Answers.Unmarshal(&answers); err != nil {
		return submission.Submission{}, pkgerrors.Wrap(err, "decoding answers")
	}
	if answers == nil {
		answers = []submission.Answer{}
	}
	s := submission.Submission{
		ID:           r.ID,
		AssignmentID: r.AssignmentID,
		StudentID:    r.StudentID,
		Answers:      answers,
		TotalScore:   r.TotalScore.Ptr(),
		MaxScore:     r.MaxScore,
		IsGraded:     r.IsGraded,
		NeedsReview:  r.NeedsReview,
		SubmittedAt:  r.SubmittedAt.UTC(),
	}
	if r.GradedAt.Valid {
		gradedAt := r.GradedAt.Time.UTC()
		s.GradedAt = &gradedAt
	}
	return s, nil
}

type submissionRepository struct {
	repository
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *sqlx.DB) *submissionRepository {
	return &submissionRepository{repository{db: db}}
}

func (repo submissionRepository) CreateSubmission(ctx context.Context, s submission.Submission, exec ...core.DBExecutor) (submission.Submission, error) {
	s.ID = uuid.New().String()
	row, err := toSubmissionRow(s)
	if err != nil {
		return submission.Submission{}, err
	}
	_, err = sqlx.NamedExecContext(ctx, repo.getExec(exec),
		`INSERT INTO submission (`+submissionColumns+`)
		VALUES (:id, :assignment_id, :student_id, :answers, :total_score, :max_score, :is_graded, :needs_review, :submitted_at, :graded_at)`,
		row,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return submission.Submission{}, submission.ErrAlreadySubmitted
		}
		return submission.Submission{}, pkgerrors.Wrap(err, "inserting submission")
	}
	return s, nil
}

func (repo submissionRepository) getOne(ctx context.Context, exec sqlx.ExtContext, where string, args ...interface{}) (submission.Submission, error) {
	var row submissionRow
	err := sqlx.GetContext(ctx, exec, &row, `SELECT `+submissionColumns+` FROM submission WHERE `+where, args...)
	if err != nil {
		return submission.Submission{}, trapNoRowsErr(err, submission.ErrNotFound, "finding submission")
	}
	return row.submission()
}

func (repo submissionRepository) GetSubmission(ctx context.Context, id string, exec ...core.DBExecutor) (submission.Submission, error) {
	if !isUUID(id) {
		return submission.Submission{}, submission.ErrNotFound
	}
	return repo.getOne(ctx, repo.getExec(exec), "id = $1", id)
}

func (repo submissionRepository) GetSubmissionByPair(ctx context.Context, assignmentID, studentID string, exec ...core.DBExecutor) (submission.Submission, error) {
	if !isUUID(assignmentID) || !isUUID(studentID) {
		return submission.Submission{}, submission.ErrNotFound
	}
	return repo.getOne(ctx, repo.getExec(exec), "assignment_id = $1 AND student_id = $2", assignmentID, studentID)
}

func (repo submissionRepository) QuerySubmissions(ctx context.Context, filter submission.QueryFilter, exec ...core.DBExecutor) ([]submission.Submission, error) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.AssignmentID != "" {
		if !isUUID(filter.AssignmentID) {
			return []submission.Submission{}, nil
		}
		args = append(args, filter.AssignmentID)
		conds = append(conds, fmt.Sprintf("assignment_id = $%d", len(args)))
	}
	if filter.StudentID != "" {
		if !isUUID(filter.StudentID) {
			return []submission.Submission{}, nil
		}
		args = append(args, filter.StudentID)
		conds = append(conds, fmt.Sprintf("student_id = $%d", len(args)))
	}
	if filter.IsGraded != nil {
		args = append(args, *filter.IsGraded)
		conds = append(conds, fmt.Sprintf("is_graded = $%d", len(args)))
	}

	q := `SELECT ` + submissionColumns + ` FROM submission`
	if len(conds) > 0 {
		q += ` WHERE ` + strings.Join(conds, " AND ")
	}
	q += ` ORDER BY submitted_at DESC`

	var rows []submissionRow
	if err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows, q, args...); err != nil {
		return nil, pkgerrors.Wrap(err, "querying submissions")
	}
	result := make([]submission.Submission, 0, len(rows))
	for _, r := range rows {
		s, err := r.submission()
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, nil
}

func (repo submissionRepository) SaveGrades(ctx context.Context, s submission.Submission, exec ...core.DBExecutor) (submission.Submission, error) {
	if !isUUID(s.ID) {
		return submission.Submission{}, submission.ErrNotFound
	}
	row, err := toSubmissionRow(s)
	if err != nil {
		return submission.Submission{}, err
	}

	exe := repo.getExec(exec)
	var saved submissionRow
	err = sqlx.GetContext(ctx, exe, &saved,
		`UPDATE submission SET answers = $2, total_score = $3, needs_review = $4, is_graded = TRUE, graded_at = $5
		WHERE id = $1 AND is_graded = FALSE
		RETURNING `+submissionColumns,
		row.ID, row.Answers, row.TotalScore, row.NeedsReview, row.GradedAt,
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return submission.Submission{}, pkgerrors.Wrap(err, "saving grades")
		}
		// either missing or graded meanwhile
		if _, err = repo.getOne(ctx, exe, "id = $1", s.ID); err != nil {
			return submission.Submission{}, err
		}
		return submission.Submission{}, submission.ErrAlreadyGraded
	}
	return saved.submission()
}

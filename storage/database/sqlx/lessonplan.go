package sqlxrepos

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	pkgerrors "github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/lessonplan"
)

const lessonPlanColumns = `id, title, subject, teacher_id, content, file_id, generated_quiz_id, created_at, updated_at`

type lessonPlanRow struct {
	ID              string      `db:"id"`
	Title           string      `db:"title"`
	Subject         string      `db:"subject"`
	TeacherID       string      `db:"teacher_id"`
	Content         string      `db:"content"`
	FileID          null.String `db:"file_id"`
	GeneratedQuizID null.String `db:"generated_quiz_id"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`
}

func toLessonPlanRow(lp lessonplan.LessonPlan) lessonPlanRow {
	return lessonPlanRow{
		ID:              lp.ID,
		Title:           lp.Title,
		Subject:         string(lp.Subject),
		TeacherID:       lp.TeacherID,
		Content:         lp.Content,
		FileID:          null.NewString(lp.FileID, lp.FileID != ""),
		GeneratedQuizID: null.StringFromPtr(lp.GeneratedQuizID),
		CreatedAt:       lp.CreatedAt.UTC(),
		UpdatedAt:       lp.UpdatedAt.UTC(),
	}
}

func (r lessonPlanRow) lessonPlan() lessonplan.LessonPlan {
	return lessonplan.LessonPlan{
		ID:              r.ID,
		Title:           r.Title,
		Subject:         core.Subject(r.Subject),
		TeacherID:       r.TeacherID,
		Content:         r.Content,
		FileID:          r.FileID.String,
		GeneratedQuizID: r.GeneratedQuizID.Ptr(),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type lessonPlanRepository struct {
	repository
}

var _ lessonplan.Repository = (*lessonPlanRepository)(nil) // interface compliance check

func NewLessonPlanRepository(db *sqlx.DB) *lessonPlanRepository {
	return &lessonPlanRepository{repository{db: db}}
}

func (repo lessonPlanRepository) CreateLessonPlan(ctx context.Context, lp lessonplan.LessonPlan, exec ...core.DBExecutor) (lessonplan.LessonPlan, error) {
	lp.ID = uuid.New().String()
	_, err := sqlx.NamedExecContext(ctx, repo.getExec(exec),
		`INSERT INTO lesson_plan (`+lessonPlanColumns+`)
		VALUES (:id, :title, :subject, :teacher_id, :content, :file_id, :generated_quiz_id, :created_at, :updated_at)`,
		toLessonPlanRow(lp),
	)
	if err != nil {
		return lessonplan.LessonPlan{}, pkgerrors.Wrap(err, "inserting lesson plan")
	}
	return lp, nil
}

func (repo lessonPlanRepository) GetLessonPlan(ctx context.Context, id string, exec ...core.DBExecutor) (lessonplan.LessonPlan, error) {
	if !isUUID(id) {
		return lessonplan.LessonPlan{}, lessonplan.ErrNotFound
	}
	var row lessonPlanRow
	err := sqlx.GetContext(ctx, repo.getExec(exec), &row, `SELECT `+lessonPlanColumns+` FROM lesson_plan WHERE id = $1`, id)
	if err != nil {
		return lessonplan.LessonPlan{}, trapNoRowsErr(err, lessonplan.ErrNotFound, "finding lesson plan")
	}
	return row.lessonPlan(), nil
}

func (repo lessonPlanRepository) QueryLessonPlans(
	ctx context.Context,
	teacherID string,
	ordering []core.DBOrdering,
	exec ...core.DBExecutor,
) ([]lessonplan.LessonPlan, error) {
	if !isUUID(teacherID) {
		return []lessonplan.LessonPlan{}, nil
	}
	var rows []lessonPlanRow
	err := sqlx.SelectContext(ctx, repo.getExec(exec), &rows,
		`SELECT `+lessonPlanColumns+` FROM lesson_plan WHERE teacher_id = $1
		ORDER BY `+core.OrderByClause(ordering, lessonplan.OrderingFields, "created_at DESC"),
		teacherID,
	)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "querying lesson plans")
	}
	plans := make([]lessonplan.LessonPlan, 0, len(rows))
	for _, r := range rows {
		plans = append(plans, r.lessonPlan())
	}
	return plans, nil
}

func (repo lessonPlanRepository) LinkQuiz(ctx context.Context, id, quizID string, updatedAt time.Time, exec ...core.DBExecutor) (lessonplan.LessonPlan, error) {
	if !isUUID(id) {
		return lessonplan.LessonPlan{}, lessonplan.ErrNotFound
	}
	exe := repo.getExec(exec)
	var row lessonPlanRow
	err := sqlx.GetContext(ctx, exe, &row,
		`UPDATE lesson_plan SET generated_quiz_id = $2, updated_at = $3
		WHERE id = $1 AND generated_quiz_id IS NULL
		RETURNING `+lessonPlanColumns,
		id, quizID, updatedAt.UTC(),
	)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return lessonplan.LessonPlan{}, pkgerrors.Wrap(err, "linking quiz")
		}
		if _, err = repo.GetLessonPlan(ctx, id, exec...); err != nil {
			return lessonplan.LessonPlan{}, err
		}
		return lessonplan.LessonPlan{}, lessonplan.ErrQuizAlreadyGenerated
	}
	return row.lessonPlan(), nil
}

package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/lessonplan"
)

type lessonPlanRepository struct {
	db *lessonPlanTable
}

var _ lessonplan.Repository = (*lessonPlanRepository)(nil) // interface compliance check

func NewLessonPlanRepository(db *DB) lessonplan.Repository {
	return &lessonPlanRepository{db: db.lessonPlan}
}

func cloneLessonPlan(lp lessonplan.LessonPlan) lessonplan.LessonPlan {
	if lp.GeneratedQuizID != nil {
		id := *lp.GeneratedQuizID
		lp.GeneratedQuizID = &id
	}
	return lp
}

func (repo *lessonPlanRepository) CreateLessonPlan(_ context.Context, lp lessonplan.LessonPlan, _ ...core.DBExecutor) (lessonplan.LessonPlan, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	lp.ID = uuid.New().String()
	stored := cloneLessonPlan(lp)
	repo.db.table[lp.ID] = &stored
	return cloneLessonPlan(lp), nil
}

func (repo *lessonPlanRepository) GetLessonPlan(_ context.Context, id string, _ ...core.DBExecutor) (lessonplan.LessonPlan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if lp, ok := repo.db.table[id]; ok {
		return cloneLessonPlan(*lp), nil
	}
	return lessonplan.LessonPlan{}, lessonplan.ErrNotFound
}

func (repo *lessonPlanRepository) QueryLessonPlans(
	_ context.Context,
	teacherID string,
	ordering []core.DBOrdering,
	_ ...core.DBExecutor,
) ([]lessonplan.LessonPlan, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	result := make([]lessonplan.LessonPlan, 0)
	for _, lp := range repo.db.table {
		if lp.TeacherID == teacherID {
			result = append(result, cloneLessonPlan(*lp))
		}
	}

	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	sort.SliceStable(result, func(i, j int) bool {
		for _, ord := range ordering {
			var c int
			switch ord.Field {
			case "title":
				c = strings.Compare(result[i].Title, result[j].Title)
			case "subject":
				c = strings.Compare(string(result[i].Subject), string(result[j].Subject))
			case "created_at":
				c = compareTimes(result[i].CreatedAt, result[j].CreatedAt)
			case "updated_at":
				c = compareTimes(result[i].UpdatedAt, result[j].UpdatedAt)
			}
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return result, nil
}

func (repo *lessonPlanRepository) LinkQuiz(_ context.Context, id, quizID string, updatedAt time.Time, _ ...core.DBExecutor) (lessonplan.LessonPlan, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	lp, ok := repo.db.table[id]
	if !ok {
		return lessonplan.LessonPlan{}, lessonplan.ErrNotFound
	}
	if lp.HasQuiz() {
		return lessonplan.LessonPlan{}, lessonplan.ErrQuizAlreadyGenerated
	}
	lp.GeneratedQuizID = &quizID
	lp.UpdatedAt = updatedAt
	return cloneLessonPlan(*lp), nil
}

package dummydb

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
)

type assignmentRepository struct {
	db *assignmentTable
}

var _ assignment.Repository = (*assignmentRepository)(nil) // interface compliance check

func NewAssignmentRepository(db *DB) assignment.Repository {
	return &assignmentRepository{db: db.assignment}
}

func cloneAssignment(a assignment.Assignment) assignment.Assignment {
	questions := make([]assignment.Question, len(a.Questions))
	for i, q := range a.Questions {
		if q.Options != nil {
			q.Options = append([]string(nil), q.Options...)
		}
		questions[i] = q
	}
	a.Questions = questions
	if a.DueDate != nil {
		d := *a.DueDate
		a.DueDate = &d
	}
	return a
}

func (repo *assignmentRepository) CreateAssignment(_ context.Context, a assignment.Assignment, _ ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a.ID = uuid.New().String()
	stored := cloneAssignment(a)
	repo.db.table[a.ID] = &stored
	return cloneAssignment(a), nil
}

func (repo *assignmentRepository) GetAssignment(_ context.Context, id string, _ ...core.DBExecutor) (assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if a, ok := repo.db.table[id]; ok {
		return cloneAssignment(*a), nil
	}
	return assignment.Assignment{}, assignment.ErrNotFound
}

func (repo *assignmentRepository) QueryAssignments(
	_ context.Context,
	filter assignment.QueryFilter,
	ordering []core.DBOrdering,
	_ ...core.DBExecutor,
) ([]assignment.Assignment, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	result := make([]assignment.Assignment, 0)
	for _, a := range repo.db.table {
		if filter.TeacherID != "" && a.TeacherID != filter.TeacherID {
			continue
		}
		if filter.Subject != "" && a.Subject != filter.Subject {
			continue
		}
		if filter.IsPublished != nil && a.IsPublished != *filter.IsPublished {
			continue
		}
		result = append(result, cloneAssignment(*a))
	}
	sortAssignments(result, ordering)
	return result, nil
}

func (repo *assignmentRepository) PublishAssignment(_ context.Context, id string, updatedAt time.Time, _ ...core.DBExecutor) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	a, ok := repo.db.table[id]
	if !ok {
		return false, assignment.ErrNotFound
	}
	if a.IsPublished {
		return false, nil
	}
	a.IsPublished = true
	a.UpdatedAt = updatedAt
	return true, nil
}

// sortAssignments orders by the known ordering fields, newest first by default.
func sortAssignments(list []assignment.Assignment, ordering []core.DBOrdering) {
	less := func(a, b assignment.Assignment, field string) int {
		switch field {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "subject":
			return strings.Compare(string(a.Subject), string(b.Subject))
		case "total_points":
			return compareFloats(a.TotalPoints, b.TotalPoints)
		case "due_date":
			return compareTimePtrs(a.DueDate, b.DueDate)
		case "updated_at":
			return compareTimes(a.UpdatedAt, b.UpdatedAt)
		case "created_at":
			return compareTimes(a.CreatedAt, b.CreatedAt)
		}
		return 0
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	sort.SliceStable(list, func(i, j int) bool {
		for _, ord := range ordering {
			c := less(list[i], list[j], ord.Field)
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
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func compareTimes(a, b time.Time) int {
	switch {
	case a.Before(b):
		return -1
	case a.After(b):
		return 1
	}
	return 0
}

// compareTimePtrs sorts nil last, like Postgres NULLs in ascending order.
func compareTimePtrs(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	return compareTimes(*a, *b)
}

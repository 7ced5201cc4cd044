package dummydb

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/submission"
)

type submissionRepository struct {
	db *submissionTable
}

var _ submission.Repository = (*submissionRepository)(nil) // interface compliance check

func NewSubmissionRepository(db *DB) submission.Repository {
	return &submissionRepository{db: db.submission}
}

func cloneSubmission(s submission.Submission) submission.Submission {
	answers := make([]submission.Answer, len(s.Answers))
	for i, a := range s.Answers {
		if a.IsCorrect != nil {
			v := *a.IsCorrect
			a.IsCorrect = &v
		}
		if a.Points != nil {
			v := *a.Points
			a.Points = &v
		}
		answers[i] = a
	}
	s.Answers = answers
	if s.TotalScore != nil {
		v := *s.TotalScore
		s.TotalScore = &v
	}
	if s.GradedAt != nil {
		v := *s.GradedAt
		s.GradedAt = &v
	}
	return s
}

func (repo *submissionRepository) CreateSubmission(_ context.Context, s submission.Submission, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, existing := range repo.db.table {
		if existing.AssignmentID == s.AssignmentID && existing.StudentID == s.StudentID {
			return submission.Submission{}, submission.ErrAlreadySubmitted
		}
	}
	s.ID = uuid.New().String()
	stored := cloneSubmission(s)
	repo.db.table[s.ID] = &stored
	return cloneSubmission(s), nil
}

func (repo *submissionRepository) GetSubmission(_ context.Context, id string, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if s, ok := repo.db.table[id]; ok {
		return cloneSubmission(*s), nil
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *submissionRepository) GetSubmissionByPair(_ context.Context, assignmentID, studentID string, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	for _, s := range repo.db.table {
		if s.AssignmentID == assignmentID && s.StudentID == studentID {
			return cloneSubmission(*s), nil
		}
	}
	return submission.Submission{}, submission.ErrNotFound
}

func (repo *submissionRepository) QuerySubmissions(_ context.Context, filter submission.QueryFilter, _ ...core.DBExecutor) ([]submission.Submission, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	result := make([]submission.Submission, 0)
	for _, s := range repo.db.table {
		if filter.AssignmentID != "" && s.AssignmentID != filter.AssignmentID {
			continue
		}
		if filter.StudentID != "" && s.StudentID != filter.StudentID {
			continue
		}
		if filter.IsGraded != nil && s.IsGraded != *filter.IsGraded {
			continue
		}
		result = append(result, cloneSubmission(*s))
	}
	// newest first
	sort.SliceStable(result, func(i, j int) bool { return result[i].SubmittedAt.After(result[j].SubmittedAt) })
	return result, nil
}

func (repo *submissionRepository) SaveGrades(_ context.Context, s submission.Submission, _ ...core.DBExecutor) (submission.Submission, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.table[s.ID]
	if !ok {
		return submission.Submission{}, submission.ErrNotFound
	}
	if stored.IsGraded {
		return submission.Submission{}, submission.ErrAlreadyGraded
	}

	graded := cloneSubmission(s)
	stored.Answers = graded.Answers
	stored.TotalScore = graded.TotalScore
	stored.NeedsReview = graded.NeedsReview
	stored.IsGraded = true
	stored.GradedAt = graded.GradedAt
	return cloneSubmission(*stored), nil
}

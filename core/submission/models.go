package submission

import (
	"time"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/user"
)

// GradedBy tells how an answer was graded.
type GradedBy string

const (
	GradedByNone            GradedBy = ""
	GradedByKey             GradedBy = "key"      // multiple choice answer key
	GradedByModel           GradedBy = "model"    // language model
	GradedByFallback        GradedBy = "fallback" // partial credit, the model was unavailable
	GradedByMissingQuestion GradedBy = "missing_question"
)

type Answer struct {
	QuestionID string   `json:"question_id" validate:"required,notblank"`
	Answer     string   `json:"answer"`
	IsCorrect  *bool    `json:"is_correct,omitempty"`
	Points     *float64 `json:"points,omitempty"`
	Feedback   string   `json:"feedback,omitempty"`
	GradedBy   GradedBy `json:"graded_by,omitempty"`
}

type Submission struct {
	ID           string     `json:"id"`
	AssignmentID string     `json:"assignment_id"`
	StudentID    string     `json:"student_id"`
	Answers      []Answer   `json:"answers"`
	TotalScore   *float64   `json:"total_score"`
	MaxScore     float64    `json:"max_score"`
	IsGraded     bool       `json:"is_graded"`
	NeedsReview  bool       `json:"needs_review"`
	SubmittedAt  time.Time  `json:"submitted_at"` // UTC
	GradedAt     *time.Time `json:"graded_at"`    // UTC
}

// NewSubmission contains the answers a student submits.
type NewSubmission struct {
	Answers []Answer `json:"answers" validate:"required,min=1,dive"`
}

func (ns *NewSubmission) Clean() {
	answers := make([]Answer, 0, len(ns.Answers))
	for _, a := range ns.Answers {
		answers = append(answers, Answer{
			QuestionID: core.CleanString(a.QuestionID),
			Answer:     a.Answer, // stored verbatim
		})
	}
	ns.Answers = answers
}

type QueryFilter struct {
	AssignmentID string
	StudentID    string
	IsGraded     *bool
}

// WithAssignment is a student's submission with its assignment.
type WithAssignment struct {
	Submission
	Assignment *assignment.Assignment `json:"assignment"`
}

// StudentInfo is the part of a user shown to teachers next to a submission.
type StudentInfo struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

func NewStudentInfo(usr user.User) StudentInfo {
	return StudentInfo{ID: usr.ID, Name: usr.Name, Email: usr.Email}
}

// WithStudent is a submission with its student.
type WithStudent struct {
	Submission
	Student *StudentInfo `json:"student"`
}

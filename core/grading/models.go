package grading

import (
	"context"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/submission"
)

const (
	CorrectFeedback         = "Correct!"
	IncorrectFeedbackPrefix = "Incorrect. The correct answer is: "
	FallbackFeedback        = "Auto-grading unavailable. Partial credit given. Teacher review needed."
	MissingQuestionFeedback = "Question not found."
	NoFeedback              = "No feedback provided"
)

// OpenEndedRequest is what the grader needs to score one open-ended answer.
type OpenEndedRequest struct {
	Question       string
	ExpectedAnswer string
	StudentAnswer  string
	MaxPoints      float64
}

// Outcome is a grader's verdict. Score may be out of range; callers clamp it.
type Outcome struct {
	Score    float64
	Feedback string
}

// Grader scores open-ended answers, typically through a language model.
type Grader interface {
	GradeOpenEnded(ctx context.Context, req OpenEndedRequest) (Outcome, error)
}

// Policy holds the open-ended grading thresholds.
type Policy struct {
	CorrectThreshold float64 // fraction of max points at or above which an answer is correct
	FallbackCredit   float64 // fraction of max points awarded when the grader fails
}

// NewPolicy reads the policy from conf. Both fractions are bounded to [0, 1].
func NewPolicy(conf *core.Config) Policy {
	return Policy{
		CorrectThreshold: core.ClampPoints(conf.Grading.CorrectThreshold, 1),
		FallbackCredit:   core.ClampPoints(conf.Grading.FallbackCredit, 1),
	}
}

// DefaultPolicy awards correctness from 70% and 50% credit on grader failure.
var DefaultPolicy = Policy{CorrectThreshold: 0.7, FallbackCredit: 0.5}

func (p Policy) isCorrect(points, max float64) bool {
	return points >= p.CorrectThreshold*max
}

// Result summarises one graded submission.
type Result struct {
	SubmissionID string              `json:"submission_id"`
	TotalScore   float64             `json:"total_score"`
	MaxScore     float64             `json:"max_score"`
	NeedsReview  bool                `json:"needs_review"`
	Answers      []submission.Answer `json:"answers"`
}

// BulkResult counts the outcome of grading every ungraded submission of an assignment.
type BulkResult struct {
	Graded  int `json:"graded"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

type gradedEmailData struct {
	StudentName     string
	AssignmentTitle string
	SubmissionID    string
	TotalScore      float64
	MaxScore        float64
	NeedsReview     bool
}

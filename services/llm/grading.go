package llmsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/grading"
)

const gradingPrompt = `You are an AI grading assistant. Grade the following student answer:

Question: %s

Correct/Expected Answer: %s

Student Answer: %s

Maximum Points: %s

Please provide:
1. A score out of %s points (can be decimal)
2. Brief constructive feedback

Respond in JSON format:
{
  "score": <number>,
  "feedback": "<string>"
}`

var errMissingGradeField = errors.New("grading response must contain score and feedback")

var _ grading.Grader = (*Client)(nil)

type gradeResponse struct {
	Score    *float64 `json:"score"`
	Feedback *string  `json:"feedback"`
}

// GradeOpenEnded asks the model to score one answer. The returned score is not clamped.
func (c *Client) GradeOpenEnded(ctx context.Context, req grading.OpenEndedRequest) (grading.Outcome, error) {
	maxPoints := formatPoints(req.MaxPoints)
	prompt := fmt.Sprintf(gradingPrompt, req.Question, req.ExpectedAnswer, req.StudentAnswer, maxPoints, maxPoints)

	content, err := c.Complete(ctx, prompt, c.gradingTemperature)
	if err != nil {
		return grading.Outcome{}, err
	}

	var resp gradeResponse
	if err = json.Unmarshal([]byte(stripFence(content)), &resp); err != nil {
		return grading.Outcome{}, core.NewExternalServiceError(serviceName, fmt.Errorf("parsing grade: %w", err))
	}
	if resp.Score == nil || resp.Feedback == nil {
		return grading.Outcome{}, core.NewExternalServiceError(serviceName, errMissingGradeField)
	}

	feedback := strings.TrimSpace(*resp.Feedback)
	if feedback == "" {
		feedback = grading.NoFeedback
	}
	c.logger.Debug(fmt.Sprintf("graded open-ended answer: %s/%s", formatPoints(*resp.Score), maxPoints))
	return grading.Outcome{Score: *resp.Score, Feedback: feedback}, nil
}

func formatPoints(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

package llmsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/lessonplan"
)

const quizPrompt = `Create a quiz based on this lesson plan content for %s:

%s

Generate 5-8 questions that test understanding of the key concepts. Include a mix of multiple choice and short answer questions.

Respond in JSON format:
{
  "questions": [
    {
      "id": "q1",
      "question": "Question text",
      "type": "multiple_choice",
      "options": ["A", "B", "C", "D"],
      "correctAnswer": "A",
      "points": 10
    },
    {
      "id": "q2",
      "question": "Question text",
      "type": "open_ended",
      "correctAnswer": "Expected answer or key points",
      "points": 15
    }
  ]
}`

var errNoQuestions = errors.New("quiz response has no questions")

var _ lessonplan.QuizGenerator = (*Client)(nil)

type (
	quizQuestion struct {
		ID            string   `json:"id"`
		Question      string   `json:"question"`
		Type          string   `json:"type"`
		Options       []string `json:"options"`
		CorrectAnswer string   `json:"correctAnswer"`
		Points        float64  `json:"points"`
	}

	quizResponse struct {
		Questions []quizQuestion `json:"questions"`
	}
)

// GenerateQuiz asks the model for 5-8 questions about content. The questions are returned as parsed;
// callers validate them.
func (c *Client) GenerateQuiz(ctx context.Context, content string, subject core.Subject) ([]assignment.Question, error) {
	prompt := fmt.Sprintf(quizPrompt, subject, content)

	raw, err := c.Complete(ctx, prompt, c.quizTemperature)
	if err != nil {
		return nil, err
	}

	var resp quizResponse
	if err = json.Unmarshal([]byte(stripFence(raw)), &resp); err != nil {
		return nil, core.NewExternalServiceError(serviceName, fmt.Errorf("parsing quiz: %w", err))
	}
	if len(resp.Questions) == 0 {
		return nil, core.NewExternalServiceError(serviceName, errNoQuestions)
	}

	questions := make([]assignment.Question, 0, len(resp.Questions))
	for _, q := range resp.Questions {
		questions = append(questions, assignment.Question{
			ID:            q.ID,
			Text:          q.Question,
			Type:          assignment.QuestionType(q.Type),
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Points:        q.Points,
		})
	}
	c.logger.Debug(fmt.Sprintf("generated %d quiz questions for %s", len(questions), subject))
	return questions, nil
}

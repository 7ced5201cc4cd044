package assignment

import (
	"fmt"
	"strings"
	"time"

	"github.com/alyxedu/alyx/core"
)

type Type string

const (
	TypeMultipleChoice Type = "multiple_choice"
	TypeOpenEnded      Type = "open_ended"
	TypeQuiz           Type = "quiz"
)

var AllTypes = []Type{TypeMultipleChoice, TypeOpenEnded, TypeQuiz}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionOpenEnded      QuestionType = "open_ended"
)

var AllQuestionTypes = []QuestionType{QuestionMultipleChoice, QuestionOpenEnded}

// QuizDescription is the description of every quiz generated from a lesson plan.
const QuizDescription = "Auto-generated quiz from lesson plan"

type Question struct {
	ID            string       `json:"id"`
	Text          string       `json:"question" validate:"required,notblank"`
	Type          QuestionType `json:"type" validate:"required,question_type"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correct_answer" validate:"required,notblank"`
	Points        float64      `json:"points" validate:"gt=0"`
}

type Assignment struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Subject     core.Subject `json:"subject"`
	Type        Type         `json:"type"`
	TeacherID   string       `json:"teacher_id"`
	Questions   []Question   `json:"questions"`
	TotalPoints float64      `json:"total_points"`
	DueDate     *time.Time   `json:"due_date"`
	IsPublished bool         `json:"is_published"`
	CreatedAt   time.Time    `json:"created_at"` // UTC
	UpdatedAt   time.Time    `json:"updated_at"` // UTC
}

// Question returns the question with the given id.
func (a Assignment) Question(id string) (Question, bool) {
	for _, q := range a.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// Redacted returns a copy of the assignment without correct answers, for students.
func (a Assignment) Redacted() Assignment {
	questions := make([]Question, len(a.Questions))
	for i, q := range a.Questions {
		q.CorrectAnswer = ""
		questions[i] = q
	}
	a.Questions = questions
	return a
}

// TotalPoints sums the points of questions.
func TotalPoints(questions []Question) float64 {
	var total float64
	for _, q := range questions {
		total += q.Points
	}
	return total
}

// NewAssignment contains information needed to create an Assignment.
type NewAssignment struct {
	Title       string       `json:"title" validate:"required,notblank,max=200"`
	Description string       `json:"description" validate:"max=5000"`
	Subject     core.Subject `json:"subject" validate:"required,subject"`
	Type        Type         `json:"type" validate:"required,assignment_type"`
	Questions   []Question   `json:"questions" validate:"required,min=1,dive"`
	DueDate     *time.Time   `json:"due_date"`
}

func (na *NewAssignment) Clean() {
	na.Title = core.CleanString(na.Title)
	na.Description = core.CleanString(na.Description)
	na.Subject = core.Subject(core.CleanString(string(na.Subject)))
	for i := range na.Questions {
		q := &na.Questions[i]
		q.ID = core.CleanString(q.ID)
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		cleanQuestion(q)
	}
}

type QueryFilter struct {
	TeacherID   string       `query:"-"`
	Subject     core.Subject `query:"subject"`
	IsPublished *bool        `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Subject = core.Subject(core.CleanString(string(qf.Subject)))
}

// NormalizeQuestions cleans questions produced outside user input (e.g. by a model):
// blank ids are filled, duplicate ids get a numeric suffix and options are dropped on open-ended questions.
func NormalizeQuestions(questions []Question) []Question {
	out := make([]Question, 0, len(questions))
	seen := make(map[string]bool, len(questions))
	for i, q := range questions {
		q.ID = core.CleanString(q.ID)
		if q.ID == "" {
			q.ID = fmt.Sprintf("q%d", i+1)
		}
		id := q.ID
		for n := 2; seen[id]; n++ {
			id = fmt.Sprintf("%s-%d", q.ID, n)
		}
		q.ID = id
		seen[id] = true
		cleanQuestion(&q)
		out = append(out, q)
	}
	return out
}

func cleanQuestion(q *Question) {
	q.Text = core.CleanString(q.Text)
	q.CorrectAnswer = core.CleanString(q.CorrectAnswer)
	q.Type = QuestionType(core.CleanString(string(q.Type), true /* lower */))
	switch q.Type {
	case QuestionOpenEnded:
		q.Options = nil
	case QuestionMultipleChoice:
		opts := make([]string, 0, len(q.Options))
		for _, o := range q.Options {
			if o = strings.TrimSpace(o); o != "" {
				opts = append(opts, o)
			}
		}
		q.Options = opts
	}
}

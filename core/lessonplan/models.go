package lessonplan

import (
	"time"

	"github.com/alyxedu/alyx/core"
)

// QuizTitlePrefix prefixes the title of quizzes generated from a lesson plan.
const QuizTitlePrefix = "Quiz: "

type LessonPlan struct {
	ID              string       `json:"id"`
	Title           string       `json:"title"`
	Subject         core.Subject `json:"subject"`
	TeacherID       string       `json:"teacher_id"`
	Content         string       `json:"content"`
	FileID          string       `json:"file_id,omitempty"`
	GeneratedQuizID *string      `json:"generated_quiz_id"`
	CreatedAt       time.Time    `json:"created_at"` // UTC
	UpdatedAt       time.Time    `json:"updated_at"` // UTC
}

// HasQuiz reports whether a quiz was already generated from the plan.
func (lp LessonPlan) HasQuiz() bool {
	return lp.GeneratedQuizID != nil && *lp.GeneratedQuizID != ""
}

// NewLessonPlan contains information needed to create a LessonPlan.
type NewLessonPlan struct {
	Title   string       `json:"title" validate:"required,notblank,max=200"`
	Subject core.Subject `json:"subject" validate:"required,subject"`
	Content string       `json:"content" validate:"required,notblank,max=50000"`
	FileID  string       `json:"file_id" validate:"max=255"`
}

func (nl *NewLessonPlan) Clean() {
	nl.Title = core.CleanString(nl.Title)
	nl.Subject = core.Subject(core.CleanString(string(nl.Subject)))
	nl.Content = core.CleanString(nl.Content)
	nl.FileID = core.CleanString(nl.FileID)
}

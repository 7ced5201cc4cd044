package assignment

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/alyxedu/alyx/core"
)

var (
	assignmentTypeTag  = "assignment_type"
	assignmentTypeText = "type must be one of: multiple_choice, open_ended, quiz"

	questionTypeTag  = "question_type"
	questionTypeText = "type must be one of: multiple_choice, open_ended"

	optionsTag  = "mcoptions"
	optionsText = "multiple choice questions need at least 2 options"

	noOptionsTag  = "nooptions"
	noOptionsText = "only multiple choice questions may have options"

	uniqueIDsTag  = "uniqueids"
	uniqueIDsText = "question ids must be unique"
)

// InitValidators registers the assignment validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(assignmentTypeTag, assignmentTypeValidation)
	core.RegisterCustomTranslation(validate, translator, assignmentTypeTag, assignmentTypeText)

	_ = validate.RegisterValidation(questionTypeTag, questionTypeValidation)
	core.RegisterCustomTranslation(validate, translator, questionTypeTag, questionTypeText)

	validate.RegisterStructValidation(questionStructValidation, Question{})
	core.RegisterCustomTranslation(validate, translator, optionsTag, optionsText)
	core.RegisterCustomTranslation(validate, translator, noOptionsTag, noOptionsText)

	validate.RegisterStructValidation(assignmentStructValidation, NewAssignment{})
	core.RegisterCustomTranslation(validate, translator, uniqueIDsTag, uniqueIDsText)
}

func assignmentTypeValidation(fl validator.FieldLevel) bool {
	t := Type(fl.Field().String())
	for _, at := range AllTypes {
		if t == at {
			return true
		}
	}
	return false
}

func questionTypeValidation(fl validator.FieldLevel) bool {
	t := QuestionType(fl.Field().String())
	for _, qt := range AllQuestionTypes {
		if t == qt {
			return true
		}
	}
	return false
}

// questionStructValidation checks that options are present iff the question is multiple choice.
func questionStructValidation(sl validator.StructLevel) {
	q, ok := sl.Current().Interface().(Question)
	if !ok {
		return
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) < 2 {
			sl.ReportError(q.Options, "options", "Options", optionsTag, "")
		}
	case QuestionOpenEnded:
		if len(q.Options) > 0 {
			sl.ReportError(q.Options, "options", "Options", noOptionsTag, "")
		}
	}
}

// assignmentStructValidation checks that question ids are unique within the assignment.
func assignmentStructValidation(sl validator.StructLevel) {
	na, ok := sl.Current().Interface().(NewAssignment)
	if !ok {
		return
	}
	seen := make(map[string]bool, len(na.Questions))
	for _, q := range na.Questions {
		if seen[q.ID] {
			sl.ReportError(na.Questions, "questions", "Questions", uniqueIDsTag, "")
			return
		}
		seen[q.ID] = true
	}
}

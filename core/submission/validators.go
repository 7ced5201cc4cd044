package submission

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/alyxedu/alyx/core"
)

var (
	uniqueAnswersTag  = "uniqueanswers"
	uniqueAnswersText = "only one answer per question is allowed"
)

// InitValidators registers the submission validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	validate.RegisterStructValidation(submissionStructValidation, NewSubmission{})
	core.RegisterCustomTranslation(validate, translator, uniqueAnswersTag, uniqueAnswersText)
}

// submissionStructValidation checks that each question is answered at most once.
func submissionStructValidation(sl validator.StructLevel) {
	ns, ok := sl.Current().Interface().(NewSubmission)
	if !ok {
		return
	}
	seen := make(map[string]bool, len(ns.Answers))
	for _, a := range ns.Answers {
		if seen[a.QuestionID] {
			sl.ReportError(ns.Answers, "answers", "Answers", uniqueAnswersTag, "")
			return
		}
		seen[a.QuestionID] = true
	}
}

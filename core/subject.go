package core

// Subject is one of the fixed school subjects assignments and lesson plans belong to.
type Subject string

const (
	SubjectStatistics      Subject = "Statistics"
	SubjectComputerScience Subject = "Computer Science"
	SubjectAPEnglish       Subject = "AP English"
	SubjectSocialStudies   Subject = "Social Studies"
)

var AllSubjects = []Subject{SubjectStatistics, SubjectComputerScience, SubjectAPEnglish, SubjectSocialStudies}

func (s Subject) IsValid() bool {
	for _, sub := range AllSubjects {
		if s == sub {
			return true
		}
	}
	return false
}

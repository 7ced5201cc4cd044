package grading

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	pkgerrors "github.com/pkg/errors"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
)

var (
	// errors
	ErrForbidden = core.NewPermissionError(errors.New("only teachers can grade submissions"))
)

const gradedEmailTemplate = "submission_graded"

type (
	ServiceInterface interface {
		GradeSubmission(ctx context.Context, actor user.User, submissionID string) (Result, error)
		GradeAssignment(ctx context.Context, actor user.User, assignmentID string) (BulkResult, error)
	}

	Service struct {
		subRepo    submission.Repository
		assignRepo assignment.Repository
		usrRepo    user.Repository
		grader     Grader
		mailSvc    core.EmailService
		policy     Policy
		logger     core.Logger
	}
)

var _ ServiceInterface = (*Service)(nil)

func NewService(
	subRepo submission.Repository,
	assignRepo assignment.Repository,
	usrRepo user.Repository,
	grader Grader,
	mailSvc core.EmailService,
	policy Policy,
	logger core.Logger,
) *Service {
	return &Service{
		subRepo:    subRepo,
		assignRepo: assignRepo,
		usrRepo:    usrRepo,
		grader:     grader,
		mailSvc:    mailSvc,
		policy:     policy,
		logger:     logger,
	}
}

// GradeSubmission grades an ungraded submission once. Grader failures degrade to partial credit
// and are never returned.
func (svc *Service) GradeSubmission(ctx context.Context, actor user.User, submissionID string) (Result, error) {
	s, err := svc.subRepo.GetSubmission(ctx, submissionID)
	if err != nil {
		return Result{}, err
	}
	a, err := svc.assignRepo.GetAssignment(ctx, s.AssignmentID)
	if err != nil {
		if errors.Is(err, assignment.ErrNotFound) {
			return Result{}, submission.ErrNotFound
		}
		return Result{}, pkgerrors.Wrap(err, "getting assignment")
	}
	if err = svc.authorize(actor, a, submission.ErrNotFound); err != nil {
		return Result{}, err
	}
	if s.IsGraded {
		return Result{}, submission.ErrAlreadyGraded
	}
	return svc.grade(ctx, a, s)
}

// GradeAssignment grades every ungraded submission of an assignment, one after the other.
// It stops early when ctx is done.
func (svc *Service) GradeAssignment(ctx context.Context, actor user.User, assignmentID string) (BulkResult, error) {
	var res BulkResult

	a, err := svc.assignRepo.GetAssignment(ctx, assignmentID)
	if err != nil {
		return res, err
	}
	if err = svc.authorize(actor, a, assignment.ErrNotFound); err != nil {
		return res, err
	}

	ungraded := false
	subs, err := svc.subRepo.QuerySubmissions(ctx, submission.QueryFilter{AssignmentID: a.ID, IsGraded: &ungraded})
	if err != nil {
		return res, pkgerrors.Wrap(err, "querying ungraded submissions")
	}

	for _, s := range subs {
		if err := ctx.Err(); err != nil {
			return res, pkgerrors.Wrap(err, "grading assignment")
		}
		if s.IsGraded {
			res.Skipped++
			continue
		}
		if _, err := svc.grade(ctx, a, s); err != nil {
			if errors.Is(err, submission.ErrAlreadyGraded) {
				res.Skipped++
				continue
			}
			res.Failed++
			svc.logger.Error(
				fmt.Sprintf("grading submission %s: %v", s.ID, err), err, actor,
				map[string]interface{}{"assignment_id": a.ID, "submission_id": s.ID},
			)
			continue
		}
		res.Graded++
	}
	return res, nil
}

// authorize lets owning teachers and admins grade. Foreign teachers get notFound.
func (svc *Service) authorize(actor user.User, a assignment.Assignment, notFound error) error {
	switch actor.Role {
	case user.RoleAdmin:
		return nil
	case user.RoleTeacher:
		if a.TeacherID != actor.ID {
			return notFound
		}
		return nil
	case user.RoleStudent, user.RoleNone:
		return ErrForbidden
	}
	return ErrForbidden
}

func (svc *Service) grade(ctx context.Context, a assignment.Assignment, s submission.Submission) (Result, error) {
	answers := make([]submission.Answer, 0, len(s.Answers))
	var total float64
	var needsReview bool

	for _, ans := range s.Answers {
		graded := svc.gradeAnswer(ctx, a, s, ans)
		if graded.GradedBy == submission.GradedByFallback {
			needsReview = true
		}
		if graded.Points != nil {
			total += *graded.Points
		}
		answers = append(answers, graded)
	}

	now := core.NowFunc()
	s.Answers = answers
	s.TotalScore = &total
	s.NeedsReview = needsReview
	s.IsGraded = true
	s.GradedAt = &now

	saved, err := svc.subRepo.SaveGrades(ctx, s)
	if err != nil {
		if errors.Is(err, submission.ErrAlreadyGraded) {
			return Result{}, err
		}
		return Result{}, pkgerrors.Wrap(err, "saving grades")
	}

	svc.notifyStudent(ctx, a, saved)

	return Result{
		SubmissionID: saved.ID,
		TotalScore:   total,
		MaxScore:     saved.MaxScore,
		NeedsReview:  saved.NeedsReview,
		Answers:      saved.Answers,
	}, nil
}

func (svc *Service) gradeAnswer(ctx context.Context, a assignment.Assignment, s submission.Submission, ans submission.Answer) submission.Answer {
	graded := submission.Answer{QuestionID: ans.QuestionID, Answer: ans.Answer}

	q, ok := a.Question(ans.QuestionID)
	if !ok {
		return withGrade(graded, 0, false, MissingQuestionFeedback, submission.GradedByMissingQuestion)
	}

	switch q.Type {
	case assignment.QuestionMultipleChoice:
		if strings.ToLower(strings.TrimSpace(ans.Answer)) == strings.ToLower(strings.TrimSpace(q.CorrectAnswer)) {
			return withGrade(graded, q.Points, true, CorrectFeedback, submission.GradedByKey)
		}
		return withGrade(graded, 0, false, IncorrectFeedbackPrefix+q.CorrectAnswer, submission.GradedByKey)

	case assignment.QuestionOpenEnded:
		out, err := svc.grader.GradeOpenEnded(ctx, OpenEndedRequest{
			Question:       q.Text,
			ExpectedAnswer: q.CorrectAnswer,
			StudentAnswer:  ans.Answer,
			MaxPoints:      q.Points,
		})
		if err != nil {
			svc.logger.Warn(
				fmt.Sprintf("auto-grading unavailable for submission %s, question %s: %v", s.ID, q.ID, err), err,
				map[string]interface{}{"assignment_id": a.ID, "submission_id": s.ID, "question_id": q.ID},
			)
			points := svc.policy.FallbackCredit * q.Points
			return withGrade(graded, points, svc.policy.isCorrect(points, q.Points), FallbackFeedback, submission.GradedByFallback)
		}

		points := core.ClampPoints(out.Score, q.Points)
		feedback := strings.TrimSpace(out.Feedback)
		if feedback == "" {
			feedback = NoFeedback
		}
		return withGrade(graded, points, svc.policy.isCorrect(points, q.Points), feedback, submission.GradedByModel)
	}

	return withGrade(graded, 0, false, MissingQuestionFeedback, submission.GradedByMissingQuestion)
}

func withGrade(ans submission.Answer, points float64, correct bool, feedback string, by submission.GradedBy) submission.Answer {
	ans.Points = &points
	ans.IsCorrect = &correct
	ans.Feedback = feedback
	ans.GradedBy = by
	return ans
}

// notifyStudent emails the student their score. Failures are logged only.
func (svc *Service) notifyStudent(ctx context.Context, a assignment.Assignment, s submission.Submission) {
	if svc.mailSvc == nil {
		return
	}
	student, err := svc.usrRepo.GetUser(ctx, user.GetFilter{ID: s.StudentID})
	if err != nil {
		svc.logger.Error(fmt.Sprintf("getting student %s for grade notification: %v", s.StudentID, err), err)
		return
	}
	if student.Email == "" {
		return
	}

	var total float64
	if s.TotalScore != nil {
		total = *s.TotalScore
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: student.Name, Address: student.Email}},
		Subject:      "Your submission has been graded",
		TemplateName: gradedEmailTemplate,
		TemplateData: gradedEmailData{
			StudentName:     student.Name,
			AssignmentTitle: a.Title,
			SubmissionID:    s.ID,
			TotalScore:      total,
			MaxScore:        s.MaxScore,
			NeedsReview:     s.NeedsReview,
		},
	})
}

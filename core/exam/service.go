package exam

import (
	"context"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core"
)

var (
	ErrTestNotFound     = errors.New("test not found")
	ErrMarkExists       = errors.New("a mark for this question by this evaluator already exists")
	ErrAlreadyPublished = errors.New("exam marks have already been published")
	ErrPortalClosed     = errors.New("the student portal is closed")
)

// Flag keys. Publication state is one flag per exam, holding the strategy
// it was published with.
const (
	portalFlag      = "student_portal"
	publishedPrefix = "published:"
)

type (
	Repository interface {
		// ReplaceQuestions swaps the whole bank of a test atomically.
		ReplaceQuestions(ctx context.Context, testID string, qs []Question) error
		QueryQuestions(ctx context.Context, testID string) ([]Question, error)
		SaveTestAnswers(ctx context.Context, answers []TestAnswer) error
		QueryTestScores(ctx context.Context, studentID string) ([]TestScore, error)
		// CreateExamMark fails with ErrMarkExists when the evaluator has
		// already marked this question for this student.
		CreateExamMark(ctx context.Context, m ExamMark) error
		QueryExamMarks(ctx context.Context, examID string) ([]ExamMark, error)
		ReplacePublishedMarks(ctx context.Context, examID string, marks []PublishedMark) error
		QueryPublishedMarks(ctx context.Context, studentID string) ([]PublishedMark, error)
		// GetFlag returns "" for unset flags.
		GetFlag(ctx context.Context, key string) (string, error)
		SetFlag(ctx context.Context, key, value string) error
	}

	Service struct {
		repo   Repository
		logger core.Logger
	}
)

func NewService(repo Repository, logger core.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// ReplaceBank replaces every question of a test with the given set.
func (svc *Service) ReplaceBank(ctx context.Context, testID string, qs []Question) error {
	testID = core.CleanString(testID, true /* lower */)
	for i := range qs {
		qs[i].TestID = testID
		if err := qs[i].Validate(); err != nil {
			return err
		}
	}
	if err := svc.repo.ReplaceQuestions(ctx, testID, qs); err != nil {
		return err
	}
	svc.logger.Info("test bank replaced", "test", testID, "questions", len(qs))
	return nil
}

// Questions returns a test's questions with the answers stripped.
func (svc *Service) Questions(ctx context.Context, testID string) ([]Question, error) {
	qs, err := svc.repo.QueryQuestions(ctx, core.CleanString(testID, true /* lower */))
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, ErrTestNotFound
	}
	for i := range qs {
		qs[i] = qs[i].Redacted()
	}
	return qs, nil
}

// SubmitTest marks a student's answers against the bank and stores them.
// Unanswered questions count as wrong; answers to unknown question numbers
// are ignored.
func (svc *Service) SubmitTest(ctx context.Context, studentID string, sub TestSubmission) (TestScore, error) {
	if err := svc.requirePortalOpen(ctx); err != nil {
		return TestScore{}, err
	}
	if err := sub.Validate(); err != nil {
		return TestScore{}, err
	}

	qs, err := svc.repo.QueryQuestions(ctx, sub.TestID)
	if err != nil {
		return TestScore{}, err
	}
	if len(qs) == 0 {
		return TestScore{}, ErrTestNotFound
	}

	score := TestScore{StudentID: studentID, TestID: sub.TestID, Concept: qs[0].Concept, Questions: len(qs)}
	answers := make([]TestAnswer, 0, len(qs))
	for _, q := range qs {
		given := strings.ToLower(core.CleanString(sub.Answers[q.Number]))
		var mark int
		if given != "" && given == q.Answer {
			mark = 1
		}
		score.Total += mark
		answers = append(answers, TestAnswer{
			StudentID: studentID,
			TestID:    q.TestID,
			Concept:   q.Concept,
			Number:    q.Number,
			Answer:    given,
			Mark:      mark,
		})
	}

	if err = svc.repo.SaveTestAnswers(ctx, answers); err != nil {
		return TestScore{}, err
	}
	svc.logger.Info("test submitted", "student", studentID, "test", sub.TestID, "score", score.Total)
	return score, nil
}

// TestScores lists a student's totals across all submitted tests.
func (svc *Service) TestScores(ctx context.Context, studentID string) ([]TestScore, error) {
	if err := svc.requirePortalOpen(ctx); err != nil {
		return nil, err
	}
	return svc.repo.QueryTestScores(ctx, studentID)
}

// RecordExamMark stores one evaluator's mark. Once an exam is published, no
// further marks are accepted.
func (svc *Service) RecordExamMark(ctx context.Context, m ExamMark) error {
	if err := m.Validate(); err != nil {
		return err
	}
	published, err := svc.publishedStrategy(ctx, m.ExamID)
	if err != nil {
		return err
	}
	if published != "" {
		return ErrAlreadyPublished
	}
	if err = svc.repo.CreateExamMark(ctx, m); err != nil {
		return err
	}
	svc.logger.Info("exam mark recorded",
		"evaluator", m.EvaluatorID, "student", m.StudentID, "exam", m.ExamID, "question", m.Number)
	return nil
}

// ExamMarks lists every evaluator mark of an exam.
func (svc *Service) ExamMarks(ctx context.Context, examID string) ([]ExamMark, error) {
	return svc.repo.QueryExamMarks(ctx, core.CleanString(examID, true /* lower */))
}

// Publish collapses evaluator marks into final per-question marks using the
// given strategy and freezes the exam. Publishing twice fails.
func (svc *Service) Publish(ctx context.Context, examID string, strategy PublishStrategy) ([]PublishedMark, error) {
	examID = core.CleanString(examID, true /* lower */)
	if !strategy.Valid() {
		return nil, errors.Errorf("unknown publish strategy %q", strategy)
	}

	published, err := svc.publishedStrategy(ctx, examID)
	if err != nil {
		return nil, err
	}
	if published != "" {
		return nil, ErrAlreadyPublished
	}

	marks, err := svc.repo.QueryExamMarks(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(marks) == 0 {
		return nil, errors.Errorf("no marks recorded for exam %s", examID)
	}

	final := collapse(marks, strategy)
	if err = svc.repo.ReplacePublishedMarks(ctx, examID, final); err != nil {
		return nil, err
	}
	if err = svc.repo.SetFlag(ctx, publishedPrefix+examID, string(strategy)); err != nil {
		return nil, err
	}

	svc.logger.Info("exam published", "exam", examID, "strategy", strategy, "marks", len(final))
	return final, nil
}

// StudentMarks lists a student's published marks, portal permitting.
func (svc *Service) StudentMarks(ctx context.Context, studentID string) ([]PublishedMark, error) {
	if err := svc.requirePortalOpen(ctx); err != nil {
		return nil, err
	}
	return svc.repo.QueryPublishedMarks(ctx, studentID)
}

func (svc *Service) OpenPortal(ctx context.Context) error {
	return svc.repo.SetFlag(ctx, portalFlag, "open")
}

func (svc *Service) ClosePortal(ctx context.Context) error {
	return svc.repo.SetFlag(ctx, portalFlag, "closed")
}

func (svc *Service) PortalOpen(ctx context.Context) (bool, error) {
	v, err := svc.repo.GetFlag(ctx, portalFlag)
	return v == "open", err
}

func (svc *Service) requirePortalOpen(ctx context.Context) error {
	open, err := svc.PortalOpen(ctx)
	if err != nil {
		return err
	}
	if !open {
		return ErrPortalClosed
	}
	return nil
}

func (svc *Service) publishedStrategy(ctx context.Context, examID string) (string, error) {
	return svc.repo.GetFlag(ctx, publishedPrefix+examID)
}

type markKey struct {
	studentID string
	concept   string
	number    int
}

// collapse reduces per-evaluator marks to one PublishedMark per student and
// question, sorted by student, concept and question number.
func collapse(marks []ExamMark, strategy PublishStrategy) []PublishedMark {
	sums := map[markKey]float64{}
	counts := map[markKey]int{}
	maxima := map[markKey]float64{}
	for _, m := range marks {
		key := markKey{m.StudentID, m.Concept, m.Number}
		sums[key] += m.Mark
		counts[key]++
		if m.Mark > maxima[key] || counts[key] == 1 {
			maxima[key] = m.Mark
		}
	}

	examID := marks[0].ExamID
	final := make([]PublishedMark, 0, len(sums))
	for key := range sums {
		mark := maxima[key]
		if strategy == PublishAverage {
			mark = sums[key] / float64(counts[key])
		}
		final = append(final, PublishedMark{
			StudentID: key.studentID,
			ExamID:    examID,
			Concept:   key.concept,
			Number:    key.number,
			Mark:      mark,
		})
	}
	sort.Slice(final, func(i, j int) bool {
		a, b := final[i], final[j]
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		if a.Concept != b.Concept {
			return a.Concept < b.Concept
		}
		return a.Number < b.Number
	})
	return final
}

// Package exam covers the assessment side of the system: the MCQ test bank,
// auto-marked student tests, evaluator-entered exam marks and their
// publication to the student portal.
package exam

import (
	"strings"

	"github.com/gopiashokan/Educational-Management-System/core"
)

// Question is one multiple-choice question of a test.
type Question struct {
	TestID  string `json:"test_id" db:"test_id" validate:"required"`
	Concept string `json:"concept" db:"concept" validate:"required"`
	Number  int    `json:"number" db:"question_no" validate:"min=1"`
	Text    string `json:"text" db:"question" validate:"required"`
	OptionA string `json:"option_a" db:"option_a" validate:"required"`
	OptionB string `json:"option_b" db:"option_b" validate:"required"`
	OptionC string `json:"option_c" db:"option_c" validate:"required"`
	OptionD string `json:"option_d" db:"option_d" validate:"required"`
	Answer  string `json:"answer,omitempty" db:"answer" validate:"oneof=a b c d"`
}

func (q *Question) Clean() {
	q.TestID = core.CleanString(q.TestID, true /* lower */)
	q.Concept = core.CleanString(q.Concept, true /* lower */)
	q.Answer = strings.ToLower(core.CleanString(q.Answer))
}

func (q *Question) Validate() error {
	q.Clean()
	return core.Validate.Struct(q)
}

// Redacted strips the correct answer for delivery to students.
func (q Question) Redacted() Question {
	q.Answer = ""
	return q
}

// TestAnswer is one auto-marked answer a student gave to a test question.
type TestAnswer struct {
	StudentID string `json:"student_id" db:"student_id"`
	TestID    string `json:"test_id" db:"test_id"`
	Concept   string `json:"concept" db:"concept"`
	Number    int    `json:"number" db:"question_no"`
	Answer    string `json:"answer" db:"answer"`
	Mark      int    `json:"mark" db:"mark"`
}

// TestSubmission is a student's full answer set for one test, keyed by
// question number.
type TestSubmission struct {
	TestID  string         `json:"test_id" validate:"required"`
	Answers map[int]string `json:"answers" validate:"required,min=1"`
}

func (ts *TestSubmission) Validate() error {
	ts.TestID = core.CleanString(ts.TestID, true /* lower */)
	return core.Validate.Struct(ts)
}

// TestScore is a student's total on one test.
type TestScore struct {
	StudentID string `json:"student_id" db:"student_id"`
	TestID    string `json:"test_id" db:"test_id"`
	Concept   string `json:"concept" db:"concept"`
	Total     int    `json:"total" db:"total"`
	Questions int    `json:"questions" db:"questions"`
}

// ExamMark is one evaluator's mark for one exam question of one student.
type ExamMark struct {
	StudentID   string  `json:"student_id" db:"student_id" validate:"required"`
	ExamID      string  `json:"exam_id" db:"exam_id" validate:"required"`
	Concept     string  `json:"concept" db:"concept" validate:"required"`
	Number      int     `json:"number" db:"question_no" validate:"min=1"`
	Mark        float64 `json:"mark" db:"mark" validate:"min=0,max=100"`
	EvaluatorID string  `json:"evaluator_id" db:"evaluator_id" validate:"required"`
}

func (m *ExamMark) Validate() error {
	m.ExamID = core.CleanString(m.ExamID, true /* lower */)
	m.Concept = core.CleanString(m.Concept, true /* lower */)
	return core.Validate.Struct(m)
}

// PublishedMark is the final mark a student sees on the portal, computed
// from the evaluator marks by the chosen publish strategy.
type PublishedMark struct {
	StudentID string  `json:"student_id" db:"student_id"`
	ExamID    string  `json:"exam_id" db:"exam_id"`
	Concept   string  `json:"concept" db:"concept"`
	Number    int     `json:"number" db:"question_no"`
	Mark      float64 `json:"mark" db:"mark"`
}

// PublishStrategy decides how multiple evaluator marks for the same
// question collapse into one published mark.
type PublishStrategy string

const (
	PublishAverage PublishStrategy = "average"
	PublishMaximum PublishStrategy = "maximum"
)

func (s PublishStrategy) Valid() bool {
	return s == PublishAverage || s == PublishMaximum
}

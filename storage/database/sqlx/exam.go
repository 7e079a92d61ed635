package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core/exam"
)

// pq unique_violation
const uniqueViolation = "23505"

type examRepository struct {
	db *sqlx.DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *sqlx.DB) *examRepository {
	return &examRepository{db: db}
}

func (repo examRepository) ReplaceQuestions(ctx context.Context, testID string, qs []exam.Question) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, "DELETE FROM test_questions WHERE test_id = $1", testID); err != nil {
		return errors.Wrap(err, "clearing test bank")
	}
	if len(qs) > 0 {
		const q = `
INSERT INTO test_questions (test_id, concept, question_no, question, option_a, option_b, option_c, option_d, answer)
VALUES (:test_id, :concept, :question_no, :question, :option_a, :option_b, :option_c, :option_d, :answer)`
		if _, err = tx.NamedExecContext(ctx, q, qs); err != nil {
			return errors.Wrap(err, "inserting questions")
		}
	}
	return errors.Wrap(tx.Commit(), "committing test bank")
}

func (repo examRepository) QueryQuestions(ctx context.Context, testID string) ([]exam.Question, error) {
	qs := []exam.Question{}
	err := repo.db.SelectContext(ctx, &qs,
		"SELECT * FROM test_questions WHERE test_id = $1 ORDER BY question_no", testID)
	return qs, errors.Wrap(err, "querying questions")
}

func (repo examRepository) SaveTestAnswers(ctx context.Context, answers []exam.TestAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	// resubmitting a test overwrites the previous attempt
	const q = `
INSERT INTO student_test_answers (student_id, test_id, concept, question_no, answer, mark)
VALUES (:student_id, :test_id, :concept, :question_no, :answer, :mark)
ON CONFLICT (student_id, test_id, question_no) DO UPDATE SET
    answer = EXCLUDED.answer,
    mark = EXCLUDED.mark`
	_, err := repo.db.NamedExecContext(ctx, q, answers)
	return errors.Wrap(err, "saving test answers")
}

func (repo examRepository) QueryTestScores(ctx context.Context, studentID string) ([]exam.TestScore, error) {
	scores := []exam.TestScore{}
	const q = `
SELECT student_id, test_id, concept, SUM(mark) AS total, COUNT(*) AS questions
FROM student_test_answers
WHERE student_id = $1
GROUP BY student_id, test_id, concept
ORDER BY test_id`
	err := repo.db.SelectContext(ctx, &scores, q, studentID)
	return scores, errors.Wrap(err, "querying test scores")
}

func (repo examRepository) CreateExamMark(ctx context.Context, m exam.ExamMark) error {
	const q = `
INSERT INTO exam_marks (student_id, exam_id, concept, question_no, mark, evaluator_id)
VALUES (:student_id, :exam_id, :concept, :question_no, :mark, :evaluator_id)`
	if _, err := repo.db.NamedExecContext(ctx, q, m); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return exam.ErrMarkExists
		}
		return errors.Wrap(err, "inserting exam mark")
	}
	return nil
}

func (repo examRepository) QueryExamMarks(ctx context.Context, examID string) ([]exam.ExamMark, error) {
	marks := []exam.ExamMark{}
	const q = `
SELECT * FROM exam_marks
WHERE exam_id = $1
ORDER BY student_id, concept, question_no, evaluator_id`
	err := repo.db.SelectContext(ctx, &marks, q, examID)
	return marks, errors.Wrap(err, "querying exam marks")
}

func (repo examRepository) ReplacePublishedMarks(ctx context.Context, examID string, marks []exam.PublishedMark) error {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "starting transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err = tx.ExecContext(ctx, "DELETE FROM published_marks WHERE exam_id = $1", examID); err != nil {
		return errors.Wrap(err, "clearing published marks")
	}
	if len(marks) > 0 {
		const q = `
INSERT INTO published_marks (student_id, exam_id, concept, question_no, mark)
VALUES (:student_id, :exam_id, :concept, :question_no, :mark)`
		if _, err = tx.NamedExecContext(ctx, q, marks); err != nil {
			return errors.Wrap(err, "inserting published marks")
		}
	}
	return errors.Wrap(tx.Commit(), "committing published marks")
}

func (repo examRepository) QueryPublishedMarks(ctx context.Context, studentID string) ([]exam.PublishedMark, error) {
	marks := []exam.PublishedMark{}
	const q = `
SELECT * FROM published_marks
WHERE student_id = $1
ORDER BY exam_id, concept, question_no`
	err := repo.db.SelectContext(ctx, &marks, q, studentID)
	return marks, errors.Wrap(err, "querying published marks")
}

func (repo examRepository) GetFlag(ctx context.Context, key string) (string, error) {
	var value string
	err := repo.db.GetContext(ctx, &value, "SELECT value FROM flags WHERE key = $1", key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, errors.Wrap(err, "getting flag")
}

func (repo examRepository) SetFlag(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO flags (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	_, err := repo.db.ExecContext(ctx, q, key, value)
	return errors.Wrap(err, "setting flag")
}

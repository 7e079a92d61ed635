package inmemdb

import (
	"context"
	"fmt"
	"sort"

	"github.com/gopiashokan/Educational-Management-System/core/exam"
)

type examRepository struct {
	db *DB
}

var _ exam.Repository = (*examRepository)(nil) // interface compliance check

func NewExamRepository(db *DB) *examRepository {
	return &examRepository{db: db}
}

func answerKey(a exam.TestAnswer) string {
	return fmt.Sprintf("%s|%s|%d", a.StudentID, a.TestID, a.Number)
}

func (repo *examRepository) ReplaceQuestions(ctx context.Context, testID string, qs []exam.Question) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.questions[testID] = append([]exam.Question(nil), qs...)
	return nil
}

func (repo *examRepository) QueryQuestions(ctx context.Context, testID string) ([]exam.Question, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	qs := append([]exam.Question(nil), repo.db.questions[testID]...)
	sort.Slice(qs, func(i, j int) bool { return qs[i].Number < qs[j].Number })
	return qs, nil
}

func (repo *examRepository) SaveTestAnswers(ctx context.Context, answers []exam.TestAnswer) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	for _, a := range answers {
		repo.db.testAnswers[answerKey(a)] = a
	}
	return nil
}

func (repo *examRepository) QueryTestScores(ctx context.Context, studentID string) ([]exam.TestScore, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	totals := map[string]*exam.TestScore{}
	for _, a := range repo.db.testAnswers {
		if a.StudentID != studentID {
			continue
		}
		score, ok := totals[a.TestID]
		if !ok {
			score = &exam.TestScore{StudentID: studentID, TestID: a.TestID, Concept: a.Concept}
			totals[a.TestID] = score
		}
		score.Total += a.Mark
		score.Questions++
	}

	scores := make([]exam.TestScore, 0, len(totals))
	for _, score := range totals {
		scores = append(scores, *score)
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].TestID < scores[j].TestID })
	return scores, nil
}

func (repo *examRepository) CreateExamMark(ctx context.Context, m exam.ExamMark) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for _, existing := range repo.db.examMarks {
		if existing.StudentID == m.StudentID && existing.ExamID == m.ExamID &&
			existing.Concept == m.Concept && existing.Number == m.Number &&
			existing.EvaluatorID == m.EvaluatorID {
			return exam.ErrMarkExists
		}
	}
	repo.db.examMarks = append(repo.db.examMarks, m)
	return nil
}

func (repo *examRepository) QueryExamMarks(ctx context.Context, examID string) ([]exam.ExamMark, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var marks []exam.ExamMark
	for _, m := range repo.db.examMarks {
		if m.ExamID == examID {
			marks = append(marks, m)
		}
	}
	sort.Slice(marks, func(i, j int) bool {
		a, b := marks[i], marks[j]
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		if a.Concept != b.Concept {
			return a.Concept < b.Concept
		}
		if a.Number != b.Number {
			return a.Number < b.Number
		}
		return a.EvaluatorID < b.EvaluatorID
	})
	return marks, nil
}

func (repo *examRepository) ReplacePublishedMarks(ctx context.Context, examID string, marks []exam.PublishedMark) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.publishedMarks[examID] = append([]exam.PublishedMark(nil), marks...)
	return nil
}

func (repo *examRepository) QueryPublishedMarks(ctx context.Context, studentID string) ([]exam.PublishedMark, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var marks []exam.PublishedMark
	for _, published := range repo.db.publishedMarks {
		for _, m := range published {
			if m.StudentID == studentID {
				marks = append(marks, m)
			}
		}
	}
	sort.Slice(marks, func(i, j int) bool {
		a, b := marks[i], marks[j]
		if a.ExamID != b.ExamID {
			return a.ExamID < b.ExamID
		}
		if a.Concept != b.Concept {
			return a.Concept < b.Concept
		}
		return a.Number < b.Number
	})
	return marks, nil
}

func (repo *examRepository) GetFlag(ctx context.Context, key string) (string, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()
	return repo.db.flags[key], nil
}

func (repo *examRepository) SetFlag(ctx context.Context, key, value string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()
	repo.db.flags[key] = value
	return nil
}

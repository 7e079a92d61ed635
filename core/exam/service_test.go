package exam_test

import (
	"context"
	"reflect"
	"testing"

	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/exam"
	inmemdb "github.com/gopiashokan/Educational-Management-System/storage/database/inmem"
)

func testService(t *testing.T) *exam.Service {
	t.Helper()
	return exam.NewService(inmemdb.NewExamRepository(inmemdb.NewDB()), core.NopLogger)
}

func mathsBank() []exam.Question {
	return []exam.Question{
		{Concept: "maths", Number: 1, Text: "2+2?", OptionA: "3", OptionB: "4", OptionC: "5", OptionD: "6", Answer: "b"},
		{Concept: "maths", Number: 2, Text: "3*3?", OptionA: "9", OptionB: "6", OptionC: "8", OptionD: "7", Answer: "a"},
		{Concept: "maths", Number: 3, Text: "10/2?", OptionA: "4", OptionB: "6", OptionC: "5", OptionD: "2", Answer: "c"},
	}
}

func TestReplaceBankAndQuestions(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	if err := svc.ReplaceBank(ctx, "T1", mathsBank()); err != nil {
		t.Fatalf("expected no error; got %v", err)
	}

	t.Run("invalid question rejected", func(t *testing.T) {
		bad := []exam.Question{{Concept: "maths", Number: 1, Text: "?", OptionA: "a", OptionB: "b", OptionC: "c", OptionD: "d", Answer: "x"}}
		if err := svc.ReplaceBank(ctx, "t2", bad); err == nil {
			t.Error("expected validation error for answer outside a-d")
		}
	})

	t.Run("answers are stripped for students", func(t *testing.T) {
		qs, err := svc.Questions(ctx, "T1") // test IDs are case-insensitive
		if err != nil {
			t.Fatalf("expected no error; got %v", err)
		}
		if len(qs) != 3 {
			t.Fatalf("expected 3 questions; got %d", len(qs))
		}
		for _, q := range qs {
			if q.Answer != "" {
				t.Errorf("question %d: expected redacted answer; got %q", q.Number, q.Answer)
			}
		}
	})

	t.Run("unknown test", func(t *testing.T) {
		if _, err := svc.Questions(ctx, "nope"); err != exam.ErrTestNotFound {
			t.Errorf("expected ErrTestNotFound; got %v", err)
		}
	})
}

func TestSubmitTest(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)
	if err := svc.ReplaceBank(ctx, "t1", mathsBank()); err != nil {
		t.Fatal(err)
	}

	sub := exam.TestSubmission{TestID: "t1", Answers: map[int]string{1: "B", 2: "d", 3: "c", 99: "a"}}

	t.Run("portal closed", func(t *testing.T) {
		if _, err := svc.SubmitTest(ctx, "alice", sub); err != exam.ErrPortalClosed {
			t.Errorf("expected ErrPortalClosed; got %v", err)
		}
	})

	if err := svc.OpenPortal(ctx); err != nil {
		t.Fatal(err)
	}

	score, err := svc.SubmitTest(ctx, "alice", sub)
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	// Q1 right (case-insensitive), Q2 wrong, Q3 right; Q99 ignored
	if score.Total != 2 || score.Questions != 3 {
		t.Errorf("expected 2/3; got %d/%d", score.Total, score.Questions)
	}

	scores, err := svc.TestScores(ctx, "alice")
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	expected := []exam.TestScore{{StudentID: "alice", TestID: "t1", Concept: "maths", Total: 2, Questions: 3}}
	if !reflect.DeepEqual(scores, expected) {
		t.Errorf("expected %v; got %v", expected, scores)
	}

	// resubmission overwrites the previous attempt
	score, err = svc.SubmitTest(ctx, "alice", exam.TestSubmission{TestID: "t1", Answers: map[int]string{1: "b", 2: "a", 3: "c"}})
	if err != nil {
		t.Fatal(err)
	}
	if score.Total != 3 {
		t.Errorf("expected perfect resubmission score; got %d", score.Total)
	}
}

func TestRecordExamMark(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	mark := exam.ExamMark{StudentID: "alice", ExamID: "e1", Concept: "maths", Number: 1, Mark: 8, EvaluatorID: "eval-1"}
	if err := svc.RecordExamMark(ctx, mark); err != nil {
		t.Fatalf("expected no error; got %v", err)
	}

	t.Run("duplicate by same evaluator", func(t *testing.T) {
		if err := svc.RecordExamMark(ctx, mark); err != exam.ErrMarkExists {
			t.Errorf("expected ErrMarkExists; got %v", err)
		}
	})

	t.Run("second evaluator may mark the same question", func(t *testing.T) {
		mark2 := mark
		mark2.EvaluatorID = "eval-2"
		mark2.Mark = 6
		if err := svc.RecordExamMark(ctx, mark2); err != nil {
			t.Errorf("expected no error; got %v", err)
		}
	})

	t.Run("invalid mark", func(t *testing.T) {
		bad := mark
		bad.Mark = -1
		if err := svc.RecordExamMark(ctx, bad); err == nil {
			t.Error("expected validation error for negative mark")
		}
	})
}

func TestPublish(t *testing.T) {
	ctx := context.Background()

	seed := func(t *testing.T) *exam.Service {
		svc := testService(t)
		marks := []exam.ExamMark{
			{StudentID: "alice", ExamID: "e1", Concept: "maths", Number: 1, Mark: 8, EvaluatorID: "eval-1"},
			{StudentID: "alice", ExamID: "e1", Concept: "maths", Number: 1, Mark: 6, EvaluatorID: "eval-2"},
			{StudentID: "bob", ExamID: "e1", Concept: "maths", Number: 1, Mark: 4, EvaluatorID: "eval-1"},
		}
		for _, m := range marks {
			if err := svc.RecordExamMark(ctx, m); err != nil {
				t.Fatal(err)
			}
		}
		return svc
	}

	t.Run("average", func(t *testing.T) {
		svc := seed(t)
		final, err := svc.Publish(ctx, "e1", exam.PublishAverage)
		if err != nil {
			t.Fatalf("expected no error; got %v", err)
		}
		expected := []exam.PublishedMark{
			{StudentID: "alice", ExamID: "e1", Concept: "maths", Number: 1, Mark: 7},
			{StudentID: "bob", ExamID: "e1", Concept: "maths", Number: 1, Mark: 4},
		}
		if !reflect.DeepEqual(final, expected) {
			t.Errorf("expected %v; got %v", expected, final)
		}
	})

	t.Run("maximum", func(t *testing.T) {
		svc := seed(t)
		final, err := svc.Publish(ctx, "e1", exam.PublishMaximum)
		if err != nil {
			t.Fatal(err)
		}
		if final[0].Mark != 8 {
			t.Errorf("expected max mark 8; got %v", final[0].Mark)
		}
	})

	t.Run("publication freezes the exam", func(t *testing.T) {
		svc := seed(t)
		if _, err := svc.Publish(ctx, "e1", exam.PublishAverage); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Publish(ctx, "e1", exam.PublishMaximum); err != exam.ErrAlreadyPublished {
			t.Errorf("expected ErrAlreadyPublished; got %v", err)
		}
		late := exam.ExamMark{StudentID: "carol", ExamID: "e1", Concept: "maths", Number: 1, Mark: 9, EvaluatorID: "eval-1"}
		if err := svc.RecordExamMark(ctx, late); err != exam.ErrAlreadyPublished {
			t.Errorf("expected ErrAlreadyPublished for late mark; got %v", err)
		}
	})

	t.Run("unknown strategy", func(t *testing.T) {
		svc := seed(t)
		if _, err := svc.Publish(ctx, "e1", "median"); err == nil {
			t.Error("expected error for unknown strategy")
		}
	})

	t.Run("no marks", func(t *testing.T) {
		svc := testService(t)
		if _, err := svc.Publish(ctx, "empty", exam.PublishAverage); err == nil {
			t.Error("expected error publishing an exam without marks")
		}
	})
}

func TestStudentMarksAndPortal(t *testing.T) {
	ctx := context.Background()
	svc := testService(t)

	if err := svc.RecordExamMark(ctx, exam.ExamMark{
		StudentID: "alice", ExamID: "e1", Concept: "maths", Number: 1, Mark: 8, EvaluatorID: "eval-1",
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Publish(ctx, "e1", exam.PublishAverage); err != nil {
		t.Fatal(err)
	}

	if _, err := svc.StudentMarks(ctx, "alice"); err != exam.ErrPortalClosed {
		t.Errorf("expected ErrPortalClosed; got %v", err)
	}

	if err := svc.OpenPortal(ctx); err != nil {
		t.Fatal(err)
	}
	marks, err := svc.StudentMarks(ctx, "alice")
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if len(marks) != 1 || marks[0].Mark != 8 {
		t.Errorf("expected alice's published mark; got %v", marks)
	}

	if err = svc.ClosePortal(ctx); err != nil {
		t.Fatal(err)
	}
	open, err := svc.PortalOpen(ctx)
	if err != nil || open {
		t.Errorf("expected closed portal; got open=%v err=%v", open, err)
	}
}

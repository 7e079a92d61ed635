package answersheet

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/handwriting"
	"github.com/gopiashokan/Educational-Management-System/core/user"
)

// stubClassifier resolves writers from the image bytes themselves, so router
// behavior can be tested without a trained model.
type stubClassifier struct {
	writers map[string]string // image contents -> writer
	err     error
}

func (s stubClassifier) Predict(ctx context.Context, data []byte) (handwriting.Prediction, error) {
	if s.err != nil {
		return handwriting.Prediction{}, s.err
	}
	writer, ok := s.writers[string(data)]
	if !ok {
		return handwriting.Prediction{}, handwriting.ErrDecode
	}
	return handwriting.Prediction{Writer: writer, Confidence: 0.9}, nil
}

type mailRecorder struct {
	messages []*core.EmailMessage
}

func (m *mailRecorder) SendMessages(messages ...*core.EmailMessage) {
	m.messages = append(m.messages, messages...)
}

func testRouter(t *testing.T, clf WriterClassifier) (*Service, *mailRecorder, string) {
	t.Helper()
	resultDir := t.TempDir()
	conf := &core.Config{TeacherReportsTo: "teacher@school.test"}
	conf.Handwriting.ResultDir = resultDir
	mails := &mailRecorder{}
	return NewService(conf, clf, mails, core.NopLogger), mails, resultDir
}

func TestRoute(t *testing.T) {
	ctx := context.Background()
	clf := stubClassifier{writers: map[string]string{
		"alice-ink": "alice",
		"bob-ink":   "bob",
	}}
	svc, mails, resultDir := testRouter(t, clf)

	batch := []Sheet{
		{Filename: "alice_maths_Q1.png", Data: []byte("alice-ink")},
		{Filename: "alice_maths_Q2.png", Data: []byte("bob-ink")}, // forged
		{Filename: "nonsense.png", Data: []byte("alice-ink")},
		{Filename: "bob_maths_Q1.png", Data: []byte("???")}, // undecodable
	}

	outcomes, report, err := svc.Route(ctx, batch, "evaluator-1")
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if len(outcomes) != 4 {
		t.Fatalf("expected 4 outcomes; got %d", len(outcomes))
	}

	if outcomes[0].Status != StatusMatched {
		t.Errorf("expected matched; got %s (%s)", outcomes[0].Status, outcomes[0].Error)
	}
	expectedDests := []string{
		filepath.Join("matched/concepts", "maths", "alice_maths_Q1.png"),
		filepath.Join("matched/students", "alice", "alice_maths_Q1.png"),
	}
	if !reflect.DeepEqual(outcomes[0].Destinations, expectedDests) {
		t.Errorf("expected destinations %v; got %v", expectedDests, outcomes[0].Destinations)
	}
	for _, dest := range outcomes[0].Destinations {
		if _, err := os.Stat(filepath.Join(resultDir, dest)); err != nil {
			t.Errorf("expected %s on disk: %v", dest, err)
		}
	}

	if outcomes[1].Status != StatusMismatched {
		t.Errorf("expected mismatched; got %s", outcomes[1].Status)
	}
	if outcomes[1].PredictedWriter != "bob" {
		t.Errorf("expected predicted writer bob; got %q", outcomes[1].PredictedWriter)
	}
	if _, err := os.Stat(filepath.Join(resultDir, "mismatched", "alice_maths_Q2.png")); err != nil {
		t.Errorf("expected quarantined sheet on disk: %v", err)
	}

	// malformed names and undecodable images reject only their own sheet
	for _, i := range []int{2, 3} {
		if outcomes[i].Status != StatusRejected || outcomes[i].Error == "" {
			t.Errorf("outcome %d: expected rejection with reason; got %+v", i, outcomes[i])
		}
	}

	expected := MismatchReport{{StudentID: "alice", Concept: "maths", Question: "Q2"}}
	if !reflect.DeepEqual(report, expected) {
		t.Errorf("expected report %v; got %v", expected, report)
	}

	// the mismatch report is mailed to the supervising teacher
	if len(mails.messages) != 1 {
		t.Fatalf("expected 1 mail; got %d", len(mails.messages))
	}
	if msg := mails.messages[0]; !msg.HasAttachments() || msg.Attachments[0].Filename != "mismatch_report.csv" {
		t.Errorf("expected csv attachment; got %+v", msg.Attachments)
	}
}

func TestRouteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := testRouter(t, stubClassifier{writers: map[string]string{"ink": "alice"}})

	batch := []Sheet{{Filename: "alice_maths_Q1.png", Data: []byte("ink")}}
	for i := 0; i < 2; i++ {
		if _, _, err := svc.Route(ctx, batch, "evaluator-1"); err != nil {
			t.Fatalf("run %d: expected no error; got %v", i, err)
		}
	}
}

func TestRouteAbortsWithoutModel(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := testRouter(t, stubClassifier{err: handwriting.ErrModelNotFound})

	batch := []Sheet{{Filename: "alice_maths_Q1.png", Data: []byte("ink")}}
	if _, _, err := svc.Route(ctx, batch, "evaluator-1"); err != handwriting.ErrModelNotFound {
		t.Errorf("expected ErrModelNotFound; got %v", err)
	}
}

func TestMismatchReportRescansQuarantine(t *testing.T) {
	ctx := context.Background()
	svc, _, resultDir := testRouter(t, stubClassifier{})

	report, err := svc.MismatchReport(ctx)
	if err != nil || len(report) != 0 {
		t.Fatalf("expected empty report; got %v, %v", report, err)
	}

	// files dropped into quarantine out of band still show up
	dir := filepath.Join(resultDir, "mismatched")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"bob_physics_Q3.png", "not-parsable.png"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	report, err = svc.MismatchReport(ctx)
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	expected := MismatchReport{{StudentID: "bob", Concept: "physics", Question: "Q3"}}
	if !reflect.DeepEqual(report, expected) {
		t.Errorf("expected %v; got %v", expected, report)
	}
}

func TestStagingLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, resultDir := testRouter(t, stubClassifier{writers: map[string]string{
		"alice-ink": "alice",
	}})

	name, err := svc.StageUpload(ctx, NewUpload{
		StudentID: "alice", Concept: "Maths", Question: 1,
		Filename: "photo.png", Data: []byte("alice-ink"),
	}, "evaluator-1")
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if name != "alice_maths_Q1.png" {
		t.Errorf("expected canonical staged name; got %s", name)
	}

	if _, err = svc.StageUpload(ctx, NewUpload{Concept: "maths"}, "evaluator-1"); err == nil {
		t.Error("expected validation error for incomplete upload")
	}

	// an undecodable sheet stays staged after routing, routed ones leave
	if _, err = svc.StageUpload(ctx, NewUpload{
		StudentID: "bob", Concept: "maths", Question: 2,
		Filename: "photo.png", Data: []byte("garbage"),
	}, "evaluator-1"); err != nil {
		t.Fatal(err)
	}

	outcomes, _, err := svc.RouteStaged(ctx, "teacher-1")
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes; got %d", len(outcomes))
	}

	if _, err = os.Stat(filepath.Join(resultDir, "incoming", "alice_maths_Q1.png")); !os.IsNotExist(err) {
		t.Error("expected routed sheet to leave staging")
	}
	if _, err = os.Stat(filepath.Join(resultDir, "incoming", "bob_maths_Q2.png")); err != nil {
		t.Error("expected rejected sheet to stay staged")
	}
}

func TestEvaluationQueue(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := testRouter(t, stubClassifier{writers: map[string]string{
		"alice-ink": "alice",
		"bob-ink":   "bob",
	}})

	batch := []Sheet{
		{Filename: "alice_maths_Q1.png", Data: []byte("alice-ink")},
		{Filename: "bob_maths_Q1.png", Data: []byte("bob-ink")},
		{Filename: "alice_physics_Q1.png", Data: []byte("alice-ink")},
	}
	if _, _, err := svc.Route(ctx, batch, "teacher-1"); err != nil {
		t.Fatal(err)
	}

	er := user.EvaluatorRole{Concept: "maths"}

	pending, err := svc.PendingEvaluations(ctx, er, "eval-1")
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	// only maths sheets, in filename order
	if expected := []string{"alice_maths_Q1.png", "bob_maths_Q1.png"}; !reflect.DeepEqual(pending, expected) {
		t.Fatalf("expected %v; got %v", expected, pending)
	}

	if err = svc.ClaimSheet(ctx, er, "eval-1", "alice_maths_Q1.png"); err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	// claiming outside the evaluator's concept is refused
	if err = svc.ClaimSheet(ctx, er, "eval-1", "alice_physics_Q1.png"); err == nil {
		t.Error("expected error claiming another concept's sheet")
	}
	if err = svc.ClaimSheet(ctx, er, "eval-1", "carol_maths_Q9.png"); err == nil {
		t.Error("expected error claiming a missing sheet")
	}

	pending, err = svc.PendingEvaluations(ctx, er, "eval-1")
	if err != nil {
		t.Fatal(err)
	}
	if expected := []string{"bob_maths_Q1.png"}; !reflect.DeepEqual(pending, expected) {
		t.Errorf("expected %v; got %v", expected, pending)
	}

	// another evaluator still sees the full queue
	pending, err = svc.PendingEvaluations(ctx, er, "eval-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 2 {
		t.Errorf("expected 2 pending for a fresh evaluator; got %d", len(pending))
	}
}

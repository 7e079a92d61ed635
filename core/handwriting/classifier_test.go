package handwriting

import (
	"context"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"

	"github.com/gopiashokan/Educational-Management-System/core"
)

func testService(t *testing.T, datasetDir string) *Service {
	t.Helper()
	conf := &core.Config{}
	conf.Handwriting.DatasetDir = datasetDir
	conf.Handwriting.ModelPath = filepath.Join(t.TempDir(), "model.gob")
	store := NewFileModelStore(conf.Handwriting.ModelPath)
	return NewService(conf, store, core.NopLogger)
}

func TestModelStoreRoundTrip(t *testing.T) {
	store := NewFileModelStore(filepath.Join(t.TempDir(), "model.gob"))

	if _, err := store.Load(); errors.Cause(err) != ErrModelNotFound {
		t.Fatalf("expected ErrModelNotFound; got %v", err)
	}

	net := newNetwork(3, rand.New(rand.NewSource(initSeed)))
	model := &Model{net: net, Writers: []string{"amy", "ben", "zoe"}}
	if err := store.Save(model); err != nil {
		t.Fatalf("expected no error; got %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if len(loaded.Writers) != 3 || loaded.Writers[1] != "ben" {
		t.Errorf("expected writer table to survive the round trip; got %v", loaded.Writers)
	}

	// loaded weights must predict identically
	s, err := DecodeSample(stripePNG(t, 50, 50, 3, true))
	if err != nil {
		t.Fatal(err)
	}
	l1, w1, c1 := model.PredictSample(s)
	l2, w2, c2 := loaded.PredictSample(s)
	if l1 != l2 || w1 != w2 || c1 != c2 {
		t.Errorf("expected identical predictions; got (%d %s %v) vs (%d %s %v)", l1, w1, c1, l2, w2, c2)
	}
}

func TestServicePredictGuards(t *testing.T) {
	ctx := context.Background()
	svc := testService(t, t.TempDir())

	t.Run("undecodable input", func(t *testing.T) {
		if _, err := svc.Predict(ctx, []byte("junk")); errors.Cause(err) != ErrDecode {
			t.Errorf("expected ErrDecode; got %v", err)
		}
	})

	t.Run("no trained model", func(t *testing.T) {
		if _, err := svc.Predict(ctx, stripePNG(t, 40, 40, 2, true)); errors.Cause(err) != ErrModelNotFound {
			t.Errorf("expected ErrModelNotFound; got %v", err)
		}
	})
}

func TestServiceTrainGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("empty dataset", func(t *testing.T) {
		svc := testService(t, t.TempDir())
		if _, err := svc.Train(ctx); errors.Cause(err) != ErrEmptyDataset {
			t.Errorf("expected ErrEmptyDataset; got %v", err)
		}
	})

	t.Run("single writer", func(t *testing.T) {
		root := t.TempDir()
		writerDir(t, root, "amy", 3, 2, true)
		svc := testService(t, root)
		if _, err := svc.Train(ctx); errors.Cause(err) != ErrInsufficientData {
			t.Errorf("expected ErrInsufficientData; got %v", err)
		}
	})
}

func TestServiceTrainAndPredict(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping training run in short mode")
	}
	ctx := context.Background()

	// two writers with clearly separable stroke patterns
	root := t.TempDir()
	writerDir(t, root, "amy", 8, 3, true)
	writerDir(t, root, "zoe", 8, 3, false)
	svc := testService(t, root)

	metrics, err := svc.Train(ctx)
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if metrics.Classes != 2 {
		t.Errorf("expected 2 classes; got %d", metrics.Classes)
	}
	if metrics.TrainSamples+metrics.TestSamples != 16 {
		t.Errorf("expected 16 samples in total; got %d", metrics.TrainSamples+metrics.TestSamples)
	}
	if metrics.ValAccuracy < 0.5 {
		t.Errorf("expected separable writers to validate above chance; got %v", metrics.ValAccuracy)
	}

	pred, err := svc.Predict(ctx, stripePNG(t, 60, 44, 3, true))
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if pred.Writer != "amy" && pred.Writer != "zoe" {
		t.Errorf("expected a known writer; got %q", pred.Writer)
	}

	writers, err := svc.Writers(ctx)
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if len(writers) != 2 || writers[0] != "amy" || writers[1] != "zoe" {
		t.Errorf("expected ordered writer table [amy zoe]; got %v", writers)
	}
}

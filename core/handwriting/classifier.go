package handwriting

import (
	"context"
	"math/rand"

	"github.com/gopiashokan/Educational-Management-System/core"
)

// TrainingMetrics summarizes one training run.
type TrainingMetrics struct {
	Classes      int     `json:"classes"`
	TrainSamples int     `json:"train_samples"`
	TestSamples  int     `json:"test_samples"`
	Epochs       int     `json:"epochs"`
	ValLoss      float64 `json:"val_loss"`
	ValAccuracy  float64 `json:"val_accuracy"`
}

// Prediction is the classifier's answer for one image.
type Prediction struct {
	Label      int     `json:"label"`
	Writer     string  `json:"writer"`
	Confidence float64 `json:"confidence"`
}

// Service trains the writer classifier from the dataset directory and serves
// predictions from the persisted model slot.
type Service struct {
	conf   *core.Config
	store  ModelStore
	logger core.Logger
}

func NewService(conf *core.Config, store ModelStore, logger core.Logger) *Service {
	return &Service{conf: conf, store: store, logger: logger}
}

// Train rebuilds the dataset from disk, trains a fresh network and replaces
// the model slot. The write lock is held for the whole run, so concurrent
// trainings serialize and predictions wait for the new model.
func (svc *Service) Train(ctx context.Context) (TrainingMetrics, error) {
	ds, err := BuildDataset(svc.conf.Handwriting.DatasetDir)
	if err != nil {
		return TrainingMetrics{}, err
	}
	if len(ds.Writers) < 2 {
		return TrainingMetrics{}, ErrInsufficientData
	}

	sp := ds.Split()
	svc.logger.Info("training writer classifier",
		"writers", len(sp.Writers), "train", len(sp.TrainImages), "test", len(sp.TestImages))

	var metrics TrainingMetrics
	err = svc.store.WithWriteLock(func() error {
		rng := rand.New(rand.NewSource(initSeed))
		net := newNetwork(sp.NumClasses(), rng)
		m, err := newTrainer(net, rng).fit(ctx, sp)
		if err != nil {
			return err
		}
		metrics = m
		return svc.store.Save(&Model{net: net, Writers: sp.Writers})
	})
	if err != nil {
		return TrainingMetrics{}, err
	}

	svc.logger.Info("writer classifier trained",
		"val_accuracy", metrics.ValAccuracy, "val_loss", metrics.ValLoss)
	return metrics, nil
}

// Predict identifies the writer of a single raw image. It returns ErrDecode
// for undecodable input and ErrModelNotFound when no model has been trained.
func (svc *Service) Predict(ctx context.Context, data []byte) (Prediction, error) {
	sample, err := DecodeSample(data)
	if err != nil {
		return Prediction{}, err
	}

	var pred Prediction
	err = svc.store.WithReadLock(func() error {
		model, err := svc.store.Load()
		if err != nil {
			return err
		}
		label, writer, conf := model.PredictSample(sample)
		pred = Prediction{Label: label, Writer: writer, Confidence: conf}
		return nil
	})
	return pred, err
}

// Writers returns the ordered writer table of the current model.
func (svc *Service) Writers(ctx context.Context) ([]string, error) {
	var writers []string
	err := svc.store.WithReadLock(func() error {
		model, err := svc.store.Load()
		if err != nil {
			return err
		}
		writers = model.Writers
		return nil
	})
	return writers, err
}

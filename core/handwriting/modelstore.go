package handwriting

import (
	"encoding/gob"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var ErrModelNotFound = errors.New("no trained model available")

// Model is a trained writer classifier together with the ordered writer
// names its class labels index into. The names are captured at training time
// and persisted with the weights, so predictions resolve to the same writers
// the model was trained on even if the dataset folders change afterwards.
type Model struct {
	net     *network
	Writers []string
}

// PredictSample returns the label index, writer name and confidence for a
// decoded sample.
func (m *Model) PredictSample(s Sample) (int, string, float64) {
	label, conf := m.net.predict(s)
	return label, m.Writers[label], conf
}

const artifactVersion = 1

// modelArtifact is the on-disk form of a Model.
type modelArtifact struct {
	Version int
	Classes int
	Writers []string

	Conv1W, Conv1B []float64
	Conv2W, Conv2B []float64
	FC1W, FC1B     []float64
	FC2W, FC2B     []float64
}

func (m *Model) encode(w io.Writer) error {
	a := modelArtifact{
		Version: artifactVersion,
		Classes: m.net.classes,
		Writers: m.Writers,
		Conv1W:  m.net.conv1.w.RawMatrix().Data,
		Conv1B:  m.net.conv1.b,
		Conv2W:  m.net.conv2.w.RawMatrix().Data,
		Conv2B:  m.net.conv2.b,
		FC1W:    m.net.fc1.w.RawMatrix().Data,
		FC1B:    m.net.fc1.b,
		FC2W:    m.net.fc2.w.RawMatrix().Data,
		FC2B:    m.net.fc2.b,
	}
	return errors.Wrap(gob.NewEncoder(w).Encode(a), "encoding model")
}

func decodeModel(r io.Reader) (*Model, error) {
	var a modelArtifact
	if err := gob.NewDecoder(r).Decode(&a); err != nil {
		return nil, errors.Wrap(err, "decoding model")
	}
	if a.Version != artifactVersion {
		return nil, errors.Errorf("unsupported model version %d", a.Version)
	}
	if a.Classes != len(a.Writers) || a.Classes == 0 {
		return nil, errors.New("model artifact is corrupt: class count does not match writer table")
	}

	net := &network{
		classes: a.Classes,
		conv1: &convLayer{
			inC: 1, outC: conv1Filters,
			w: mat.NewDense(conv1Filters, kernel*kernel, a.Conv1W),
			b: a.Conv1B,
		},
		conv2: &convLayer{
			inC: conv1Filters, outC: conv2Filters,
			w: mat.NewDense(conv2Filters, conv1Filters*kernel*kernel, a.Conv2W),
			b: a.Conv2B,
		},
		fc1: &denseLayer{
			in: flatLen, out: hiddenUnits,
			w: mat.NewDense(hiddenUnits, flatLen, a.FC1W),
			b: a.FC1B,
		},
		fc2: &denseLayer{
			in: hiddenUnits, out: a.Classes,
			w: mat.NewDense(a.Classes, hiddenUnits, a.FC2W),
			b: a.FC2B,
		},
	}
	return &Model{net: net, Writers: a.Writers}, nil
}

// ModelStore is the single persistent model slot. Callers must wrap slot
// access in the matching lock: WithWriteLock around train-and-save,
// WithReadLock around load-and-predict, so a training run never races an
// in-flight prediction.
type ModelStore interface {
	Load() (*Model, error)
	Save(*Model) error
	WithReadLock(fn func() error) error
	WithWriteLock(fn func() error) error
}

// FileModelStore keeps the model slot in a single file. Saving silently
// overwrites any previous model.
type FileModelStore struct {
	path string
	mu   sync.RWMutex
}

var _ ModelStore = (*FileModelStore)(nil)

func NewFileModelStore(path string) *FileModelStore {
	return &FileModelStore{path: path}
}

func (fs *FileModelStore) Load() (*Model, error) {
	f, err := os.Open(fs.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrModelNotFound
		}
		return nil, errors.Wrap(err, "opening model file")
	}
	defer f.Close()
	return decodeModel(f)
}

// Save writes to a temp file in the target directory and renames it over the
// slot, so a crashed save never leaves a torn artifact behind.
func (fs *FileModelStore) Save(m *Model) error {
	dir := filepath.Dir(fs.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating model dir")
	}
	tmp, err := os.CreateTemp(dir, ".model-*")
	if err != nil {
		return errors.Wrap(err, "creating temp model file")
	}
	defer os.Remove(tmp.Name())

	if err = m.encode(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "closing temp model file")
	}
	return errors.Wrap(os.Rename(tmp.Name(), fs.path), "replacing model file")
}

func (fs *FileModelStore) WithReadLock(fn func() error) error {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fn()
}

func (fs *FileModelStore) WithWriteLock(fn func() error) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fn()
}

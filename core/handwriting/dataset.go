package handwriting

import (
	"math"
	"math/rand"
	"os"

	"github.com/pkg/errors"
)

var (
	ErrEmptyDataset     = errors.New("dataset root contains no writer samples")
	ErrInsufficientData = errors.New("at least two writers are required to train")
)

// splitSeed fixes the train/test shuffle so repeated runs over the same
// dataset produce the same split.
const (
	splitSeed    = 42
	testFraction = 0.2
)

// Dataset is a labeled collection of handwriting samples. Labels index into
// Writers, which carries the label-to-writer mapping in a stable order.
type Dataset struct {
	Images  []Sample
	Labels  []int
	Writers []string
}

// BuildDataset walks root, treating each immediate subdirectory as one
// writer. Writers are ordered lexicographically so the label assigned to a
// writer never depends on filesystem enumeration quirks; the mapping travels
// with the dataset and is persisted into the trained model.
func BuildDataset(root string) (*Dataset, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.Wrapf(err, "reading dataset root %s", root)
	}

	ds := &Dataset{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		samples, err := LoadSamples(root + string(os.PathSeparator) + entry.Name())
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			continue
		}
		label := len(ds.Writers)
		ds.Writers = append(ds.Writers, entry.Name())
		for _, s := range samples {
			ds.Images = append(ds.Images, s)
			ds.Labels = append(ds.Labels, label)
		}
	}

	if len(ds.Images) == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// Split holds a deterministic train/test partition of a Dataset.
type Split struct {
	TrainImages []Sample
	TrainLabels []int
	TestImages  []Sample
	TestLabels  []int
	Writers     []string
}

func (sp *Split) NumClasses() int { return len(sp.Writers) }

// Split shuffles the dataset with a fixed seed and holds out testFraction
// of the samples for evaluation. With two or more samples at least one
// always lands in the test set.
func (ds *Dataset) Split() *Split {
	n := len(ds.Images)
	perm := rand.New(rand.NewSource(splitSeed)).Perm(n)

	testN := int(math.Ceil(float64(n) * testFraction))
	if testN >= n && n > 1 {
		testN = n - 1
	}

	sp := &Split{Writers: ds.Writers}
	for i, idx := range perm {
		if i < testN {
			sp.TestImages = append(sp.TestImages, ds.Images[idx])
			sp.TestLabels = append(sp.TestLabels, ds.Labels[idx])
		} else {
			sp.TrainImages = append(sp.TrainImages, ds.Images[idx])
			sp.TrainLabels = append(sp.TrainLabels, ds.Labels[idx])
		}
	}
	return sp
}

package handwriting

import (
	"context"
	"math"
	"math/rand"
)

// gradSet accumulates per-parameter gradients across a minibatch.
type gradSet struct {
	conv1W, conv1B []float64
	conv2W, conv2B []float64
	fc1W, fc1B     []float64
	fc2W, fc2B     []float64
}

// paramRef ties a live weight slice to its gradient accumulator and Adam
// moment estimates.
type paramRef struct {
	w, g, m, v []float64
}

type trainer struct {
	net    *network
	grads  *gradSet
	params []paramRef
	rng    *rand.Rand
	step   int
}

func newTrainer(net *network, rng *rand.Rand) *trainer {
	g := &gradSet{
		conv1W: make([]float64, len(net.conv1.w.RawMatrix().Data)),
		conv1B: make([]float64, len(net.conv1.b)),
		conv2W: make([]float64, len(net.conv2.w.RawMatrix().Data)),
		conv2B: make([]float64, len(net.conv2.b)),
		fc1W:   make([]float64, len(net.fc1.w.RawMatrix().Data)),
		fc1B:   make([]float64, len(net.fc1.b)),
		fc2W:   make([]float64, len(net.fc2.w.RawMatrix().Data)),
		fc2B:   make([]float64, len(net.fc2.b)),
	}

	t := &trainer{net: net, grads: g, rng: rng}
	bind := func(w, grad []float64) {
		t.params = append(t.params, paramRef{
			w: w, g: grad,
			m: make([]float64, len(w)),
			v: make([]float64, len(w)),
		})
	}
	bind(net.conv1.w.RawMatrix().Data, g.conv1W)
	bind(net.conv1.b, g.conv1B)
	bind(net.conv2.w.RawMatrix().Data, g.conv2W)
	bind(net.conv2.b, g.conv2B)
	bind(net.fc1.w.RawMatrix().Data, g.fc1W)
	bind(net.fc1.b, g.fc1B)
	bind(net.fc2.w.RawMatrix().Data, g.fc2W)
	bind(net.fc2.b, g.fc2B)
	return t
}

// fit runs the fixed number of epochs over the training set, updating with
// Adam after every minibatch, and returns the final held-out metrics.
// Cancelling ctx aborts between minibatches.
func (t *trainer) fit(ctx context.Context, sp *Split) (TrainingMetrics, error) {
	n := len(sp.TrainImages)
	for epoch := 0; epoch < epochs; epoch++ {
		order := t.rng.Perm(n)
		for start := 0; start < n; start += batchSize {
			if err := ctx.Err(); err != nil {
				return TrainingMetrics{}, err
			}
			end := start + batchSize
			if end > n {
				end = n
			}
			for _, i := range order[start:end] {
				probs, tr := t.net.forward(sp.TrainImages[i])
				t.net.backward(probs, tr, sp.TrainLabels[i], t.grads)
			}
			t.applyAdam(1 / float64(end-start))
		}
	}

	m := TrainingMetrics{
		Classes:      sp.NumClasses(),
		TrainSamples: n,
		TestSamples:  len(sp.TestImages),
		Epochs:       epochs,
	}
	for i, x := range sp.TestImages {
		probs, _ := t.net.forward(x)
		m.ValLoss += -math.Log(probs[sp.TestLabels[i]] + 1e-12)
		if argmax(probs) == sp.TestLabels[i] {
			m.ValAccuracy++
		}
	}
	if m.TestSamples > 0 {
		m.ValLoss /= float64(m.TestSamples)
		m.ValAccuracy /= float64(m.TestSamples)
	}
	return m, nil
}

// applyAdam performs one bias-corrected Adam update over every parameter,
// scaling accumulated gradients by scale (1/batch), then clears them.
func (t *trainer) applyAdam(scale float64) {
	t.step++
	c1 := 1 - math.Pow(adamBeta1, float64(t.step))
	c2 := 1 - math.Pow(adamBeta2, float64(t.step))

	for _, p := range t.params {
		for i := range p.w {
			g := p.g[i] * scale
			p.m[i] = adamBeta1*p.m[i] + (1-adamBeta1)*g
			p.v[i] = adamBeta2*p.v[i] + (1-adamBeta2)*g*g
			p.w[i] -= learningRate * (p.m[i] / c1) / (math.Sqrt(p.v[i]/c2) + adamEpsilon)
			p.g[i] = 0
		}
	}
}

func argmax(x []float64) int {
	best := 0
	for i, v := range x {
		if v > x[best] {
			best = i
		}
	}
	return best
}

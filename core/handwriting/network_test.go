package handwriting

import (
	"math"
	"math/rand"
	"reflect"
	"testing"
)

func TestIm2col(t *testing.T) {
	// 1×4×4 input, values 0..15
	x := make([]float64, 16)
	for i := range x {
		x[i] = float64(i)
	}

	cols := im2col(x, 1, 4, 4)
	if r, c := cols.Dims(); r != 9 || c != 4 {
		t.Fatalf("expected 9×4; got %d×%d", r, c)
	}

	tests := []struct {
		row, col int
		expected float64
	}{
		{0, 0, 0},  // kernel (0,0) over patch (0,0)
		{0, 3, 5},  // kernel (0,0) over patch (1,1)
		{8, 0, 10}, // kernel (2,2) over patch (0,0)
		{8, 3, 15}, // kernel (2,2) over patch (1,1)
		{5, 2, 10}, // kernel (1,2) over patch (1,0)
	}
	for _, tt := range tests {
		if got := cols.At(tt.row, tt.col); got != tt.expected {
			t.Errorf("cols[%d][%d]: expected %v; got %v", tt.row, tt.col, tt.expected, got)
		}
	}
}

func TestCol2imReversesIm2col(t *testing.T) {
	x := make([]float64, 2*5*5)
	for i := range x {
		x[i] = float64(i % 7)
	}
	cols := im2col(x, 2, 5, 5)

	// scatter-adding ones counts how many patches cover each pixel
	back := col2im(cols, 2, 5, 5)
	for i, v := range back {
		if v == 0 && x[i] != 0 {
			t.Fatalf("pixel %d lost by col2im round trip", i)
		}
	}
}

func TestMaxPool(t *testing.T) {
	// 1×4×4
	x := []float64{
		1, 5, 2, 0,
		3, 4, 1, 9,
		0, 0, 7, 1,
		2, 6, 3, 3,
	}
	out, idx := maxPool(x, 1, 4, 4)

	if expected := []float64{5, 9, 6, 7}; !reflect.DeepEqual(out, expected) {
		t.Errorf("expected %v; got %v", expected, out)
	}
	if expected := []int{1, 7, 13, 10}; !reflect.DeepEqual(idx, expected) {
		t.Errorf("expected argmax offsets %v; got %v", expected, idx)
	}

	// gradients flow back only to the argmax positions
	dx := poolBackward([]float64{1, 2, 3, 4}, idx, len(x))
	if dx[1] != 1 || dx[7] != 2 || dx[13] != 3 || dx[10] != 4 {
		t.Errorf("unexpected pool gradient %v", dx)
	}
	var total float64
	for _, v := range dx {
		total += v
	}
	if total != 10 {
		t.Errorf("expected gradient mass 10; got %v", total)
	}
}

func TestSoftmax(t *testing.T) {
	probs := softmax([]float64{1, 2, 3})
	var sum float64
	for _, p := range probs {
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Errorf("expected probabilities summing to 1; got %v", sum)
	}
	if argmax(probs) != 2 {
		t.Errorf("expected argmax 2; got %d", argmax(probs))
	}
	if probs[0] >= probs[1] || probs[1] >= probs[2] {
		t.Errorf("expected monotone probabilities; got %v", probs)
	}

	// large logits must not overflow
	probs = softmax([]float64{1000, 1001})
	if math.IsNaN(probs[0]) || math.IsNaN(probs[1]) {
		t.Errorf("expected finite probabilities; got %v", probs)
	}
}

func TestDenseLayerGradient(t *testing.T) {
	// finite-difference check on a tiny layer
	rng := rand.New(rand.NewSource(1))
	l := newDenseLayer(3, 2, rng)
	x := []float64{0.5, -0.2, 0.8}

	loss := func() float64 {
		probs := softmax(l.forward(x))
		return -math.Log(probs[0])
	}

	probs := softmax(l.forward(x))
	dLogits := []float64{probs[0] - 1, probs[1]}
	gw := make([]float64, 6)
	gb := make([]float64, 2)
	l.backward(x, dLogits, gw, gb)

	const eps = 1e-6
	w := l.w.RawMatrix().Data
	for i := range w {
		orig := w[i]
		w[i] = orig + eps
		up := loss()
		w[i] = orig - eps
		down := loss()
		w[i] = orig

		numeric := (up - down) / (2 * eps)
		if math.Abs(numeric-gw[i]) > 1e-4 {
			t.Errorf("weight %d: analytic %v vs numeric %v", i, gw[i], numeric)
		}
	}
}

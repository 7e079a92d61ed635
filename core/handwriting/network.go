package handwriting

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// Network geometry. Convolutions are 3×3 valid, pooling is 2×2 max with
// stride 2, so each stage shrinks the plane deterministically:
// 128 -> 126 -> 63 -> 61 -> 30.
const (
	kernel       = 3
	conv1Filters = 32
	conv2Filters = 64

	conv1Out = SampleSize - kernel + 1
	pool1Out = conv1Out / 2
	conv2Out = pool1Out - kernel + 1
	pool2Out = conv2Out / 2

	flatLen     = conv2Filters * pool2Out * pool2Out
	hiddenUnits = 64
)

// Training hyperparameters.
const (
	epochs       = 10
	batchSize    = 32
	learningRate = 1e-3
	adamBeta1    = 0.9
	adamBeta2    = 0.999
	adamEpsilon  = 1e-7

	initSeed = 7
)

type convLayer struct {
	inC, outC int
	w         *mat.Dense // outC × inC*kernel*kernel
	b         []float64
}

type denseLayer struct {
	in, out int
	w       *mat.Dense // out × in
	b       []float64
}

type network struct {
	conv1, conv2 *convLayer
	fc1, fc2     *denseLayer
	classes      int
}

// newNetwork builds an untrained network with Glorot-uniform weights drawn
// from rng so training runs are reproducible.
func newNetwork(classes int, rng *rand.Rand) *network {
	return &network{
		conv1:   newConvLayer(1, conv1Filters, rng),
		conv2:   newConvLayer(conv1Filters, conv2Filters, rng),
		fc1:     newDenseLayer(flatLen, hiddenUnits, rng),
		fc2:     newDenseLayer(hiddenUnits, classes, rng),
		classes: classes,
	}
}

func newConvLayer(inC, outC int, rng *rand.Rand) *convLayer {
	fanIn := inC * kernel * kernel
	return &convLayer{
		inC:  inC,
		outC: outC,
		w:    mat.NewDense(outC, fanIn, glorot(outC*fanIn, fanIn, outC, rng)),
		b:    make([]float64, outC),
	}
}

func newDenseLayer(in, out int, rng *rand.Rand) *denseLayer {
	return &denseLayer{
		in:  in,
		out: out,
		w:   mat.NewDense(out, in, glorot(out*in, in, out, rng)),
		b:   make([]float64, out),
	}
}

func glorot(n, fanIn, fanOut int, rng *rand.Rand) []float64 {
	limit := math.Sqrt(6 / float64(fanIn+fanOut))
	w := make([]float64, n)
	for i := range w {
		w[i] = (rng.Float64()*2 - 1) * limit
	}
	return w
}

// trace caches forward-pass activations needed by the backward pass.
type trace struct {
	cols1, cols2       *mat.Dense // im2col views consumed by each convolution
	act1, act2         []float64  // post-ReLU conv outputs
	pool1Idx, pool2Idx []int      // argmax source offsets per pooled element
	flat               []float64  // flattened pool2 output, input to fc1
	hidden             []float64  // post-ReLU fc1 output
}

// forward runs one sample through the network and returns class
// probabilities alongside the activation trace.
func (n *network) forward(x Sample) ([]float64, *trace) {
	tr := &trace{}

	tr.cols1 = im2col(x, 1, SampleSize, SampleSize)
	tr.act1 = n.conv1.forward(tr.cols1)
	var p1 []float64
	p1, tr.pool1Idx = maxPool(tr.act1, conv1Filters, conv1Out, conv1Out)

	tr.cols2 = im2col(p1, conv1Filters, pool1Out, pool1Out)
	tr.act2 = n.conv2.forward(tr.cols2)
	tr.flat, tr.pool2Idx = maxPool(tr.act2, conv2Filters, conv2Out, conv2Out)

	tr.hidden = n.fc1.forward(tr.flat)
	relu(tr.hidden)

	return softmax(n.fc2.forward(tr.hidden)), tr
}

// backward accumulates gradients for one sample into g and returns the
// cross-entropy loss.
func (n *network) backward(probs []float64, tr *trace, label int, g *gradSet) float64 {
	loss := -math.Log(probs[label] + 1e-12)

	// softmax + cross-entropy collapse to probs minus the one-hot target
	dLogits := make([]float64, n.classes)
	copy(dLogits, probs)
	dLogits[label]--

	dHidden := n.fc2.backward(tr.hidden, dLogits, g.fc2W, g.fc2B)
	reluMask(dHidden, tr.hidden)

	dFlat := n.fc1.backward(tr.flat, dHidden, g.fc1W, g.fc1B)

	dAct2 := poolBackward(dFlat, tr.pool2Idx, len(tr.act2))
	reluMask(dAct2, tr.act2)
	dPool1 := n.conv2.backward(tr.cols2, dAct2, g.conv2W, g.conv2B, pool1Out)

	dAct1 := poolBackward(dPool1, tr.pool1Idx, len(tr.act1))
	reluMask(dAct1, tr.act1)
	n.conv1.backward(tr.cols1, dAct1, g.conv1W, g.conv1B, 0)

	return loss
}

func (n *network) predict(x Sample) (int, float64) {
	probs, _ := n.forward(x)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, probs[best]
}

// forward computes the convolution as a single matrix product over the
// im2col view, then applies bias and ReLU in place.
func (l *convLayer) forward(cols *mat.Dense) []float64 {
	_, outHW := cols.Dims()
	out := mat.NewDense(l.outC, outHW, nil)
	out.Mul(l.w, cols)

	data := out.RawMatrix().Data
	for ch := 0; ch < l.outC; ch++ {
		row := data[ch*outHW : (ch+1)*outHW]
		for i := range row {
			v := row[i] + l.b[ch]
			if v < 0 {
				v = 0
			}
			row[i] = v
		}
	}
	return data
}

// backward accumulates weight and bias gradients. When inEdge > 0 it also
// propagates the gradient to the layer input, reshaped to inC×inEdge×inEdge.
func (l *convLayer) backward(cols *mat.Dense, dOut []float64, gw, gb []float64, inEdge int) []float64 {
	outHW := len(dOut) / l.outC
	dOutM := mat.NewDense(l.outC, outHW, dOut)

	var dW mat.Dense
	dW.Mul(dOutM, cols.T())
	addTo(gw, dW.RawMatrix().Data)

	for ch := 0; ch < l.outC; ch++ {
		var sum float64
		for _, v := range dOut[ch*outHW : (ch+1)*outHW] {
			sum += v
		}
		gb[ch] += sum
	}

	if inEdge == 0 {
		return nil
	}
	var dCols mat.Dense
	dCols.Mul(l.w.T(), dOutM)
	return col2im(&dCols, l.inC, inEdge, inEdge)
}

func (l *denseLayer) forward(x []float64) []float64 {
	y := mat.NewVecDense(l.out, nil)
	y.MulVec(l.w, mat.NewVecDense(l.in, x))
	out := y.RawVector().Data
	for i := range out {
		out[i] += l.b[i]
	}
	return out
}

func (l *denseLayer) backward(x, dy []float64, gw, gb []float64) []float64 {
	var dW mat.Dense
	dW.Outer(1, mat.NewVecDense(l.out, dy), mat.NewVecDense(l.in, x))
	addTo(gw, dW.RawMatrix().Data)
	addTo(gb, dy)

	dx := mat.NewVecDense(l.in, nil)
	dx.MulVec(l.w.T(), mat.NewVecDense(l.out, dy))
	return dx.RawVector().Data
}

// im2col lowers a c×h×w volume into a matrix whose columns are the
// flattened kernel patches, so convolution becomes one dense product.
func im2col(x []float64, c, h, w int) *mat.Dense {
	outH, outW := h-kernel+1, w-kernel+1
	cols := mat.NewDense(c*kernel*kernel, outH*outW, nil)
	data := cols.RawMatrix().Data
	stride := outH * outW

	for ci := 0; ci < c; ci++ {
		plane := x[ci*h*w:]
		for ky := 0; ky < kernel; ky++ {
			for kx := 0; kx < kernel; kx++ {
				row := data[(ci*kernel*kernel+ky*kernel+kx)*stride:]
				for oy := 0; oy < outH; oy++ {
					src := plane[(oy+ky)*w+kx:]
					copy(row[oy*outW:oy*outW+outW], src[:outW])
				}
			}
		}
	}
	return cols
}

// col2im scatter-adds a patch-gradient matrix back into volume form,
// reversing im2col.
func col2im(cols *mat.Dense, c, h, w int) []float64 {
	outH, outW := h-kernel+1, w-kernel+1
	stride := outH * outW
	data := cols.RawMatrix().Data

	x := make([]float64, c*h*w)
	for ci := 0; ci < c; ci++ {
		plane := x[ci*h*w:]
		for ky := 0; ky < kernel; ky++ {
			for kx := 0; kx < kernel; kx++ {
				row := data[(ci*kernel*kernel+ky*kernel+kx)*stride:]
				for oy := 0; oy < outH; oy++ {
					dst := plane[(oy+ky)*w+kx:]
					src := row[oy*outW : oy*outW+outW]
					for i, v := range src {
						dst[i] += v
					}
				}
			}
		}
	}
	return x
}

// maxPool applies 2×2 stride-2 max pooling per channel and records the
// source offset of every retained element for the backward pass. A trailing
// odd row or column is dropped.
func maxPool(x []float64, c, h, w int) ([]float64, []int) {
	outH, outW := h/2, w/2
	out := make([]float64, c*outH*outW)
	idx := make([]int, len(out))

	for ci := 0; ci < c; ci++ {
		base := ci * h * w
		for oy := 0; oy < outH; oy++ {
			for ox := 0; ox < outW; ox++ {
				corner := base + 2*oy*w + 2*ox
				best := corner
				for _, off := range [3]int{1, w, w + 1} {
					if x[corner+off] > x[best] {
						best = corner + off
					}
				}
				o := ci*outH*outW + oy*outW + ox
				out[o] = x[best]
				idx[o] = best
			}
		}
	}
	return out, idx
}

func poolBackward(dOut []float64, idx []int, size int) []float64 {
	dx := make([]float64, size)
	for i, src := range idx {
		dx[src] += dOut[i]
	}
	return dx
}

func relu(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// reluMask zeroes gradient entries wherever the forward activation was
// clamped.
func reluMask(dx, act []float64) {
	for i := range dx {
		if act[i] <= 0 {
			dx[i] = 0
		}
	}
}

func softmax(z []float64) []float64 {
	max := z[0]
	for _, v := range z[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	out := make([]float64, len(z))
	for i, v := range z {
		out[i] = math.Exp(v - max)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

func addTo(dst, src []float64) {
	for i, v := range src {
		dst[i] += v
	}
}

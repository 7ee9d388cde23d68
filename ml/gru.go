package ml

import (
	"math"
	"math/rand"
)

// gruNetwork is a single gated-recurrent layer feeding only its final
// time-step hidden state into a linear projection. Weights are plain
// float64 matrices trained by backpropagation through time with Adam.
type gruNetwork struct {
	inputSize  int
	hiddenSize int
	outputSize int

	// update gate, reset gate, candidate: input weights [hidden][input],
	// recurrent weights [hidden][hidden], biases [hidden]
	wz, wr, wh [][]float64
	uz, ur, uh [][]float64
	bz, br, bh []float64

	// output projection [output][hidden] and bias [output]
	wy [][]float64
	by []float64

	opt *adamOptimizer
}

func newGRUNetwork(inputSize, hiddenSize, outputSize int, learningRate float64, rng *rand.Rand) *gruNetwork {
	n := &gruNetwork{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		outputSize: outputSize,

		wz: glorotMatrix(hiddenSize, inputSize, rng),
		wr: glorotMatrix(hiddenSize, inputSize, rng),
		wh: glorotMatrix(hiddenSize, inputSize, rng),
		uz: glorotMatrix(hiddenSize, hiddenSize, rng),
		ur: glorotMatrix(hiddenSize, hiddenSize, rng),
		uh: glorotMatrix(hiddenSize, hiddenSize, rng),
		bz: make([]float64, hiddenSize),
		br: make([]float64, hiddenSize),
		bh: make([]float64, hiddenSize),

		wy: glorotMatrix(outputSize, hiddenSize, rng),
		by: make([]float64, outputSize),

		opt: newAdamOptimizer(learningRate),
	}
	return n
}

// glorotMatrix initializes a [rows][cols] matrix with glorot-uniform values.
func glorotMatrix(rows, cols int, rng *rand.Rand) [][]float64 {
	limit := math.Sqrt(6.0 / float64(rows+cols))
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
		for j := range m[i] {
			m[i][j] = (rng.Float64()*2 - 1) * limit
		}
	}
	return m
}

// gruCache holds per-timestep activations needed for the backward pass.
type gruCache struct {
	xs [][]float64 // inputs per timestep
	z  [][]float64 // update gate
	r  [][]float64 // reset gate
	hc [][]float64 // candidate state
	h  [][]float64 // hidden state
}

// forward runs one sequence through the layer and returns the cached
// activations and the projected output.
func (n *gruNetwork) forward(input [][]float64) (*gruCache, []float64) {
	steps := len(input)
	cache := &gruCache{
		xs: input,
		z:  make([][]float64, steps),
		r:  make([][]float64, steps),
		hc: make([][]float64, steps),
		h:  make([][]float64, steps),
	}

	hPrev := make([]float64, n.hiddenSize)
	for t := 0; t < steps; t++ {
		x := input[t]
		z := make([]float64, n.hiddenSize)
		r := make([]float64, n.hiddenSize)
		hc := make([]float64, n.hiddenSize)
		h := make([]float64, n.hiddenSize)

		for j := 0; j < n.hiddenSize; j++ {
			zSum := n.bz[j]
			rSum := n.br[j]
			for i := 0; i < n.inputSize; i++ {
				zSum += n.wz[j][i] * x[i]
				rSum += n.wr[j][i] * x[i]
			}
			for k := 0; k < n.hiddenSize; k++ {
				zSum += n.uz[j][k] * hPrev[k]
				rSum += n.ur[j][k] * hPrev[k]
			}
			z[j] = sigmoid(zSum)
			r[j] = sigmoid(rSum)
		}
		for j := 0; j < n.hiddenSize; j++ {
			hSum := n.bh[j]
			for i := 0; i < n.inputSize; i++ {
				hSum += n.wh[j][i] * x[i]
			}
			for k := 0; k < n.hiddenSize; k++ {
				hSum += n.uh[j][k] * r[k] * hPrev[k]
			}
			hc[j] = math.Tanh(hSum)
			h[j] = z[j]*hPrev[j] + (1-z[j])*hc[j]
		}

		cache.z[t] = z
		cache.r[t] = r
		cache.hc[t] = hc
		cache.h[t] = h
		hPrev = h
	}

	out := make([]float64, n.outputSize)
	hLast := hPrev
	for k := 0; k < n.outputSize; k++ {
		sum := n.by[k]
		for j := 0; j < n.hiddenSize; j++ {
			sum += n.wy[k][j] * hLast[j]
		}
		out[k] = sum
	}
	return cache, out
}

// predict runs a forward pass only.
func (n *gruNetwork) predict(input [][]float64) []float64 {
	_, out := n.forward(input)
	return out
}

// gruGradients mirrors the weight tensors.
type gruGradients struct {
	wz, wr, wh [][]float64
	uz, ur, uh [][]float64
	bz, br, bh []float64
	wy         [][]float64
	by         []float64
}

func (n *gruNetwork) newGradients() *gruGradients {
	return &gruGradients{
		wz: zeroMatrix(n.hiddenSize, n.inputSize),
		wr: zeroMatrix(n.hiddenSize, n.inputSize),
		wh: zeroMatrix(n.hiddenSize, n.inputSize),
		uz: zeroMatrix(n.hiddenSize, n.hiddenSize),
		ur: zeroMatrix(n.hiddenSize, n.hiddenSize),
		uh: zeroMatrix(n.hiddenSize, n.hiddenSize),
		bz: make([]float64, n.hiddenSize),
		br: make([]float64, n.hiddenSize),
		bh: make([]float64, n.hiddenSize),
		wy: zeroMatrix(n.outputSize, n.hiddenSize),
		by: make([]float64, n.outputSize),
	}
}

func zeroMatrix(rows, cols int) [][]float64 {
	m := make([][]float64, rows)
	for i := range m {
		m[i] = make([]float64, cols)
	}
	return m
}

// backward accumulates gradients for one sequence given dLoss/dOutput.
func (n *gruNetwork) backward(cache *gruCache, dOut []float64, g *gruGradients) {
	steps := len(cache.xs)
	hLast := cache.h[steps-1]

	dh := make([]float64, n.hiddenSize)
	for k := 0; k < n.outputSize; k++ {
		g.by[k] += dOut[k]
		for j := 0; j < n.hiddenSize; j++ {
			g.wy[k][j] += dOut[k] * hLast[j]
			dh[j] += n.wy[k][j] * dOut[k]
		}
	}

	for t := steps - 1; t >= 0; t-- {
		x := cache.xs[t]
		z := cache.z[t]
		r := cache.r[t]
		hc := cache.hc[t]

		hPrev := make([]float64, n.hiddenSize)
		if t > 0 {
			copy(hPrev, cache.h[t-1])
		}

		dhPrev := make([]float64, n.hiddenSize)
		dhcPre := make([]float64, n.hiddenSize)
		dzPre := make([]float64, n.hiddenSize)

		for j := 0; j < n.hiddenSize; j++ {
			// h = z*hPrev + (1-z)*hc
			dz := dh[j] * (hPrev[j] - hc[j])
			dhc := dh[j] * (1 - z[j])
			dhPrev[j] += dh[j] * z[j]

			dhcPre[j] = dhc * (1 - hc[j]*hc[j])
			dzPre[j] = dz * z[j] * (1 - z[j])
		}

		// candidate gradients and the reset-gate path
		drh := make([]float64, n.hiddenSize)
		for j := 0; j < n.hiddenSize; j++ {
			for i := 0; i < n.inputSize; i++ {
				g.wh[j][i] += dhcPre[j] * x[i]
			}
			for k := 0; k < n.hiddenSize; k++ {
				g.uh[j][k] += dhcPre[j] * r[k] * hPrev[k]
				drh[k] += n.uh[j][k] * dhcPre[j]
			}
			g.bh[j] += dhcPre[j]
		}

		drPre := make([]float64, n.hiddenSize)
		for k := 0; k < n.hiddenSize; k++ {
			dr := drh[k] * hPrev[k]
			dhPrev[k] += drh[k] * r[k]
			drPre[k] = dr * r[k] * (1 - r[k])
		}

		for j := 0; j < n.hiddenSize; j++ {
			for i := 0; i < n.inputSize; i++ {
				g.wz[j][i] += dzPre[j] * x[i]
				g.wr[j][i] += drPre[j] * x[i]
			}
			for k := 0; k < n.hiddenSize; k++ {
				g.uz[j][k] += dzPre[j] * hPrev[k]
				g.ur[j][k] += drPre[j] * hPrev[k]
				dhPrev[k] += n.uz[j][k]*dzPre[j] + n.ur[j][k]*drPre[j]
			}
			g.bz[j] += dzPre[j]
			g.br[j] += drPre[j]
		}

		dh = dhPrev
	}
}

// trainBatch runs forward+backward over a batch and applies one Adam step
// on the averaged gradients. Returns the mean MSE over the batch.
func (n *gruNetwork) trainBatch(inputs [][][]float64, targets [][]float64) float64 {
	g := n.newGradients()
	totalLoss := 0.0

	for s := range inputs {
		cache, out := n.forward(inputs[s])

		dOut := make([]float64, n.outputSize)
		sampleLoss := 0.0
		for k := 0; k < n.outputSize; k++ {
			diff := out[k] - targets[s][k]
			sampleLoss += diff * diff
			dOut[k] = 2 * diff / float64(n.outputSize)
		}
		totalLoss += sampleLoss / float64(n.outputSize)

		n.backward(cache, dOut, g)
	}

	scale := 1.0 / float64(len(inputs))
	scaleGradients(g, scale)
	clipGradients(g, 5.0)
	n.applyGradients(g)

	return totalLoss / float64(len(inputs))
}

// evaluateLoss computes the mean MSE over a set without updating weights.
func (n *gruNetwork) evaluateLoss(inputs [][][]float64, targets [][]float64) float64 {
	if len(inputs) == 0 {
		return 0
	}
	total := 0.0
	for s := range inputs {
		out := n.predict(inputs[s])
		sampleLoss := 0.0
		for k := 0; k < n.outputSize; k++ {
			diff := out[k] - targets[s][k]
			sampleLoss += diff * diff
		}
		total += sampleLoss / float64(n.outputSize)
	}
	return total / float64(len(inputs))
}

func (n *gruNetwork) applyGradients(g *gruGradients) {
	o := n.opt
	o.beginStep()
	o.updateMatrix("wz", n.wz, g.wz)
	o.updateMatrix("wr", n.wr, g.wr)
	o.updateMatrix("wh", n.wh, g.wh)
	o.updateMatrix("uz", n.uz, g.uz)
	o.updateMatrix("ur", n.ur, g.ur)
	o.updateMatrix("uh", n.uh, g.uh)
	o.updateVector("bz", n.bz, g.bz)
	o.updateVector("br", n.br, g.br)
	o.updateVector("bh", n.bh, g.bh)
	o.updateMatrix("wy", n.wy, g.wy)
	o.updateVector("by", n.by, g.by)
}

func scaleGradients(g *gruGradients, scale float64) {
	for _, m := range [][][]float64{g.wz, g.wr, g.wh, g.uz, g.ur, g.uh, g.wy} {
		for i := range m {
			for j := range m[i] {
				m[i][j] *= scale
			}
		}
	}
	for _, v := range [][]float64{g.bz, g.br, g.bh, g.by} {
		for i := range v {
			v[i] *= scale
		}
	}
}

// clipGradients rescales all gradients when their global L2 norm exceeds
// maxNorm, keeping long-sequence BPTT numerically stable.
func clipGradients(g *gruGradients, maxNorm float64) {
	sumSq := 0.0
	for _, m := range [][][]float64{g.wz, g.wr, g.wh, g.uz, g.ur, g.uh, g.wy} {
		for i := range m {
			for j := range m[i] {
				sumSq += m[i][j] * m[i][j]
			}
		}
	}
	for _, v := range [][]float64{g.bz, g.br, g.bh, g.by} {
		for i := range v {
			sumSq += v[i] * v[i]
		}
	}

	norm := math.Sqrt(sumSq)
	if norm <= maxNorm || norm == 0 {
		return
	}
	scaleGradients(g, maxNorm/norm)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// adamOptimizer is a first-order adaptive optimizer with per-tensor moment
// estimates, keyed by tensor name.
type adamOptimizer struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64
	step  int

	mMat map[string][][]float64
	vMat map[string][][]float64
	mVec map[string][]float64
	vVec map[string][]float64
}

func newAdamOptimizer(lr float64) *adamOptimizer {
	return &adamOptimizer{
		lr:    lr,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
		mMat:  make(map[string][][]float64),
		vMat:  make(map[string][][]float64),
		mVec:  make(map[string][]float64),
		vVec:  make(map[string][]float64),
	}
}

func (o *adamOptimizer) beginStep() {
	o.step++
}

func (o *adamOptimizer) updateMatrix(key string, w, g [][]float64) {
	if len(w) == 0 {
		return
	}
	m, ok := o.mMat[key]
	if !ok {
		m = zeroMatrix(len(w), len(w[0]))
		o.mMat[key] = m
	}
	v, ok := o.vMat[key]
	if !ok {
		v = zeroMatrix(len(w), len(w[0]))
		o.vMat[key] = v
	}

	c1 := 1 - math.Pow(o.beta1, float64(o.step))
	c2 := 1 - math.Pow(o.beta2, float64(o.step))
	for i := range w {
		for j := range w[i] {
			m[i][j] = o.beta1*m[i][j] + (1-o.beta1)*g[i][j]
			v[i][j] = o.beta2*v[i][j] + (1-o.beta2)*g[i][j]*g[i][j]
			w[i][j] -= o.lr * (m[i][j] / c1) / (math.Sqrt(v[i][j]/c2) + o.eps)
		}
	}
}

func (o *adamOptimizer) updateVector(key string, w, g []float64) {
	m, ok := o.mVec[key]
	if !ok {
		m = make([]float64, len(w))
		o.mVec[key] = m
	}
	v, ok := o.vVec[key]
	if !ok {
		v = make([]float64, len(w))
		o.vVec[key] = v
	}

	c1 := 1 - math.Pow(o.beta1, float64(o.step))
	c2 := 1 - math.Pow(o.beta2, float64(o.step))
	for i := range w {
		m[i] = o.beta1*m[i] + (1-o.beta1)*g[i]
		v[i] = o.beta2*v[i] + (1-o.beta2)*g[i]*g[i]
		w[i] -= o.lr * (m[i] / c1) / (math.Sqrt(v[i]/c2) + o.eps)
	}
}

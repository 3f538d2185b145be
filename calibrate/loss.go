package calibrate

import "math"

const bceClamp = 1e-7

// bceLoss computes the binary cross-entropy loss: -[y*ln(p) + (1-y)*ln(1-p)].
// p is clamped to [bceClamp, 1-bceClamp] to avoid log(0).
func bceLoss(p, y float64) float64 {
	p = math.Max(bceClamp, math.Min(p, 1-bceClamp))
	return -(y*math.Log(p) + (1-y)*math.Log(1-p))
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	z := math.Exp(x)
	return z / (1 + z)
}

// objective is the training loss: mean BCE over a batch plus an L2 pull of
// every parameter toward center.
type objective struct {
	data   *dataset
	center float64
	lambda float64
}

func (o objective) predict(params []float64, s sample) float64 {
	return sigmoid(params[s.learner] - params[o.data.itemParam(s.item)])
}

// loss returns the objective over samples. Returns 0 for an empty batch.
func (o objective) loss(params []float64, samples []sample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var total float64
	for _, s := range samples {
		total += bceLoss(o.predict(params, s), s.label)
	}
	total /= float64(len(samples))

	if o.lambda > 0 {
		var reg float64
		for _, w := range params {
			reg += (w - o.center) * (w - o.center)
		}
		total += o.lambda / 2 * reg / float64(len(params))
	}
	return total
}

// gradient returns dLoss/dw. For the logistic model the BCE derivative is
// (p − y) with respect to the ability and (y − p) with respect to the
// difficulty.
func (o objective) gradient(params []float64, samples []sample) []float64 {
	grad := make([]float64, len(params))
	if len(samples) == 0 {
		return grad
	}
	n := float64(len(samples))
	for _, s := range samples {
		e := (o.predict(params, s) - s.label) / n
		grad[s.learner] += e
		grad[o.data.itemParam(s.item)] -= e
	}
	if o.lambda > 0 {
		scale := o.lambda / float64(len(params))
		for i, w := range params {
			grad[i] += scale * (w - o.center)
		}
	}
	return grad
}

package sgmodel

import (
	"github.com/chewxy/math32"
)

// Linear is a dense layer with PyTorch weight layout [Out, In].
type Linear struct {
	In     int
	Out    int
	Weight []float32
	Bias   []float32
}

func (l *Linear) Forward(x []float32) []float32 {
	out := make([]float32, l.Out)
	for o := 0; o < l.Out; o++ {
		row := l.Weight[o*l.In : (o+1)*l.In]
		var sum float32
		for i, v := range x {
			sum += row[i] * v
		}
		if l.Bias != nil {
			sum += l.Bias[o]
		}
		out[o] = sum
	}
	return out
}

// Embedding is a lookup table of Rows vectors of length Dim.
type Embedding struct {
	Rows    int
	Dim     int
	Weights []float32
}

// Lookup returns row id, falling back to row 0 for ids outside the table.
func (e *Embedding) Lookup(id int) []float32 {
	if id < 0 || id >= e.Rows {
		id = 0
	}
	return e.Weights[id*e.Dim : (id+1)*e.Dim]
}

func relu(x []float32) []float32 {
	for i, v := range x {
		x[i] = math32.Max(v, 0)
	}
	return x
}

// Softmax returns the normalized exponentials of logits.
func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := logits[0]
	for _, v := range logits[1:] {
		maxLogit = math32.Max(maxLogit, v)
	}
	probs := make([]float32, len(logits))
	var sum float32
	for i, v := range logits {
		probs[i] = math32.Exp(v - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Argmax returns the index of the largest value, the first one on ties.
func Argmax(values []float32) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

package features

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
)

// Normalization describes how an image is turned into backbone input.
type Normalization struct {
	Size int
	Mean [3]float32
	Std  [3]float32
}

// ImageNet statistics at the resolution the heads were trained with.
var DefaultNormalization = Normalization{
	Size: 512,
	Mean: [3]float32{0.485, 0.456, 0.406},
	Std:  [3]float32{0.229, 0.224, 0.225},
}

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int
	Data  []float32
}

// Preprocess resizes img to Size x Size and returns a [1, 3, Size, Size]
// tensor with every channel scaled to [0,1] and standardized.
func Preprocess(img image.Image, norm Normalization) (*Tensor, error) {
	if norm.Size <= 0 {
		return nil, errors.Errorf("invalid input size %d", norm.Size)
	}
	for c := 0; c < 3; c++ {
		if norm.Std[c] == 0 {
			return nil, errors.Errorf("std of channel %d is zero", c)
		}
	}
	if img.Bounds().Empty() {
		return nil, errors.New("empty image")
	}

	resized := imaging.Resize(img, norm.Size, norm.Size, imaging.Linear)

	size := norm.Size
	plane := size * size
	data := make([]float32, 3*plane)
	for y := 0; y < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < size; x++ {
			px := row[x*4 : x*4+3]
			for c := 0; c < 3; c++ {
				data[c*plane+y*size+x] = (float32(px[c])/255 - norm.Mean[c]) / norm.Std[c]
			}
		}
	}
	return &Tensor{Shape: []int{1, 3, size, size}, Data: data}, nil
}

// NHWC returns a copy of a [1, C, H, W] tensor laid out as [1, H, W, C].
func (t *Tensor) NHWC() *Tensor {
	c, h, w := t.Shape[1], t.Shape[2], t.Shape[3]
	out := make([]float32, len(t.Data))
	for ch := 0; ch < c; ch++ {
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out[(y*w+x)*c+ch] = t.Data[ch*h*w+y*w+x]
			}
		}
	}
	return &Tensor{Shape: []int{1, h, w, c}, Data: out}
}

package features

import (
	"image"

	"github.com/pkg/errors"
)

// FeatureMap is the backbone output for one image, channel-major.
type FeatureMap struct {
	Channels int
	Height   int
	Width    int
	Data     []float32
}

func (fm *FeatureMap) At(c, y, x int) float32 {
	return fm.Data[(c*fm.Height+y)*fm.Width+x]
}

func (fm *FeatureMap) validate() error {
	if fm.Channels <= 0 || fm.Height <= 0 || fm.Width <= 0 {
		return errors.Errorf("invalid feature map geometry %dx%dx%d", fm.Channels, fm.Height, fm.Width)
	}
	if len(fm.Data) != fm.Channels*fm.Height*fm.Width {
		return errors.Errorf("feature map holds %d values, expected %d", len(fm.Data), fm.Channels*fm.Height*fm.Width)
	}
	return nil
}

// FromHWC converts a [H, W, C] buffer, as produced by channels-last
// backbones, into a FeatureMap.
func FromHWC(data []float32, height, width, channels int) (*FeatureMap, error) {
	if len(data) != height*width*channels {
		return nil, errors.Errorf("backbone output holds %d values, expected %d", len(data), height*width*channels)
	}
	out := make([]float32, len(data))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			for c := 0; c < channels; c++ {
				out[(c*height+y)*width+x] = data[(y*width+x)*channels+c]
			}
		}
	}
	return &FeatureMap{Channels: channels, Height: height, Width: width, Data: out}, nil
}

// Backbone computes a feature map for a preprocessed image. Implementations
// wrap native sessions and are owned by a single goroutine.
type Backbone interface {
	ExtractGlobal(input *Tensor) (*FeatureMap, error)
	Close()
}

// Extractor runs preprocessing and a backbone, then pools regions.
type Extractor struct {
	Backbone      Backbone
	Normalization Normalization
	RoISize       int
}

func NewExtractor(backbone Backbone, norm Normalization, roiSize int) *Extractor {
	return &Extractor{Backbone: backbone, Normalization: norm, RoISize: roiSize}
}

func (e *Extractor) ExtractGlobal(img image.Image) (*FeatureMap, error) {
	input, err := Preprocess(img, e.Normalization)
	if err != nil {
		return nil, err
	}
	fm, err := e.Backbone.ExtractGlobal(input)
	if err != nil {
		return nil, errors.Wrap(err, "backbone failed")
	}
	if err := fm.validate(); err != nil {
		return nil, err
	}
	return fm, nil
}

// FeatureLength is the size of every pooled region vector.
func (e *Extractor) FeatureLength(fm *FeatureMap) int {
	return fm.Channels * e.RoISize * e.RoISize
}

func (e *Extractor) Close() {
	e.Backbone.Close()
}

package features

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// rampMap returns a map whose value at (c, y, x) is c*1000 + y*W + x.
func rampMap(channels, height, width int) *FeatureMap {
	data := make([]float32, channels*height*width)
	for c := 0; c < channels; c++ {
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				data[(c*height+y)*width+x] = float32(c*1000 + y*width + x)
			}
		}
	}
	return &FeatureMap{Channels: channels, Height: height, Width: width, Data: data}
}

func TestPoolRegionsCountAndOrder(t *testing.T) {
	fm := rampMap(2, 16, 16)
	boxes := []datastructures.DetectedBox{
		{CX: 0.5, CY: 0.5, W: 1, H: 1},
		{CX: 0.25, CY: 0.25, W: 0.5, H: 0.5},
		{CX: 0.75, CY: 0.75, W: 0.5, H: 0.5},
	}
	vecs := PoolRegions(fm, boxes, DefaultRoISize)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		assert.Len(t, v, 2*7*7)
	}
	// Later boxes sit further down/right on the ramp.
	assert.Less(t, vecs[1][0], vecs[2][0])
	// Second channel is offset by 1000.
	assert.InDelta(t, vecs[1][0]+1000, vecs[1][49], 1e-3)
}

func TestPoolRegionsDegenerate(t *testing.T) {
	fm := rampMap(3, 8, 8)
	boxes := []datastructures.DetectedBox{
		{CX: 0.5, CY: 0.5, W: 0, H: 0},
		{CX: 0.55, CY: 0.5, W: 0.01, H: 0.5},
		{CX: 1.5, CY: 1.5, W: 0.2, H: 0.2},
	}
	vecs := PoolRegions(fm, boxes, 7)
	require.Len(t, vecs, 3)
	for _, v := range vecs {
		require.Len(t, v, 3*49)
		for _, x := range v {
			assert.Zero(t, x)
		}
	}
}

func TestPoolRegionsAdaptiveBins(t *testing.T) {
	// Full box on a 1x4x4 map pooled to 2x2: corners clamp to 3, so the
	// region is the top-left 3x3 block split into overlapping bins
	// [0,2) and [1,3).
	fm := rampMap(1, 4, 4)
	vec := PoolRegions(fm, []datastructures.DetectedBox{{CX: 0.5, CY: 0.5, W: 1, H: 1}}, 2)[0]
	require.Len(t, vec, 4)
	assert.InDelta(t, (0+1+4+5)/4.0, vec[0], 1e-5)
	assert.InDelta(t, (1+2+5+6)/4.0, vec[1], 1e-5)
	assert.InDelta(t, (4+5+8+9)/4.0, vec[2], 1e-5)
	assert.InDelta(t, (5+6+9+10)/4.0, vec[3], 1e-5)
}

func TestPoolRegionsEmpty(t *testing.T) {
	assert.Empty(t, PoolRegions(rampMap(1, 4, 4), nil, 7))
}

func TestPreprocess(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.NRGBA{R: 255, G: 0, B: 128, A: 255})
		}
	}
	tensor, err := Preprocess(img, DefaultNormalization)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 512, 512}, tensor.Shape)
	require.Len(t, tensor.Data, 3*512*512)

	plane := 512 * 512
	assert.InDelta(t, (1-0.485)/0.229, tensor.Data[0], 1e-4)
	assert.InDelta(t, (0-0.456)/0.224, tensor.Data[plane+100], 1e-4)
	assert.InDelta(t, (128.0/255-0.406)/0.225, tensor.Data[2*plane+plane-1], 1e-4)
}

func TestPreprocessRejectsBadInput(t *testing.T) {
	_, err := Preprocess(image.NewNRGBA(image.Rect(0, 0, 4, 4)), Normalization{Size: 0})
	assert.Error(t, err)
	_, err = Preprocess(image.NewNRGBA(image.Rect(0, 0, 0, 0)), DefaultNormalization)
	assert.Error(t, err)
}

func TestNHWC(t *testing.T) {
	tensor := &Tensor{Shape: []int{1, 2, 1, 2}, Data: []float32{1, 2, 3, 4}}
	out := tensor.NHWC()
	assert.Equal(t, []int{1, 1, 2, 2}, out.Shape)
	assert.Equal(t, []float32{1, 3, 2, 4}, out.Data)
}

func TestFromHWC(t *testing.T) {
	fm, err := FromHWC([]float32{1, 3, 2, 4}, 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, fm.Data)
	assert.Equal(t, float32(4), fm.At(1, 0, 1))

	_, err = FromHWC([]float32{1}, 1, 2, 2)
	assert.Error(t, err)
}

type fakeBackbone struct {
	fm  *FeatureMap
	err error
}

func (f *fakeBackbone) ExtractGlobal(input *Tensor) (*FeatureMap, error) {
	return f.fm, f.err
}

func (f *fakeBackbone) Close() {}

func TestExtractor(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	e := NewExtractor(&fakeBackbone{fm: rampMap(4, 8, 8)}, Normalization{Size: 16, Mean: [3]float32{}, Std: [3]float32{1, 1, 1}}, 7)
	fm, err := e.ExtractGlobal(img)
	require.NoError(t, err)
	assert.Equal(t, 4*49, e.FeatureLength(fm))

	e = NewExtractor(&fakeBackbone{fm: &FeatureMap{Channels: 2, Height: 2, Width: 2, Data: []float32{1}}}, DefaultNormalization, 7)
	_, err = e.ExtractGlobal(img)
	assert.Error(t, err)

	boom := errors.New("boom")
	e = NewExtractor(&fakeBackbone{err: boom}, DefaultNormalization, 7)
	_, err = e.ExtractGlobal(img)
	assert.Equal(t, boom, errors.Cause(err))
}

func TestLoadImage(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 5, 3))))
	path := filepath.Join(dir, "a.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	img, err := LoadImage(path)
	require.NoError(t, err)
	assert.Equal(t, 5, img.Bounds().Dx())

	_, err = LoadImage(filepath.Join(dir, "missing.png"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = DecodeImage([]byte("not an image"))
	assert.Error(t, err)
}

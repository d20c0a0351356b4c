package features

import (
	"github.com/bbernhard/scenegraph-playground/src/datastructures"
)

const DefaultRoISize = 7

// PoolRegions returns one vector of length Channels*roiSize*roiSize per box,
// in box order. Boxes are projected onto the feature map grid, clamped and
// truncated; a box that collapses to nothing yields a zero vector.
func PoolRegions(fm *FeatureMap, boxes []datastructures.DetectedBox, roiSize int) [][]float32 {
	out := make([][]float32, len(boxes))
	for i, box := range boxes {
		out[i] = poolRegion(fm, box, roiSize)
	}
	return out
}

func poolRegion(fm *FeatureMap, box datastructures.DetectedBox, roiSize int) []float32 {
	vec := make([]float32, fm.Channels*roiSize*roiSize)

	w := float32(fm.Width)
	h := float32(fm.Height)
	nx1, ny1, nx2, ny2 := box.Corners()
	x1 := int(clamp(nx1*w, 0, w-1))
	y1 := int(clamp(ny1*h, 0, h-1))
	x2 := int(clamp(nx2*w, 0, w-1))
	y2 := int(clamp(ny2*h, 0, h-1))
	if x2 <= x1 || y2 <= y1 {
		return vec
	}

	regionH := y2 - y1
	regionW := x2 - x1
	for c := 0; c < fm.Channels; c++ {
		for i := 0; i < roiSize; i++ {
			ys, ye := binStart(i, regionH, roiSize), binEnd(i, regionH, roiSize)
			for j := 0; j < roiSize; j++ {
				xs, xe := binStart(j, regionW, roiSize), binEnd(j, regionW, roiSize)
				var sum float32
				for y := ys; y < ye; y++ {
					for x := xs; x < xe; x++ {
						sum += fm.At(c, y1+y, x1+x)
					}
				}
				vec[c*roiSize*roiSize+i*roiSize+j] = sum / float32((ye-ys)*(xe-xs))
			}
		}
	}
	return vec
}

// Adaptive average pooling bins: [floor(i*L/n), ceil((i+1)*L/n)).
func binStart(i, length, n int) int {
	return i * length / n
}

func binEnd(i, length, n int) int {
	return ((i+1)*length + n - 1) / n
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

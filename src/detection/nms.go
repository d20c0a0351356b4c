package detection

import (
	"math"
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// NonMaxSuppression keeps the most confident detection of every group of
// boxes that overlap by more than iouThreshold. With classAware set only
// boxes of the same class suppress each other. The result is sorted by
// descending confidence.
func NonMaxSuppression(dets []RawDetection, iouThreshold float32, classAware bool) []RawDetection {
	if len(dets) == 0 {
		return []RawDetection{}
	}

	sorted := make([]RawDetection, len(dets))
	copy(sorted, dets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	// Spatial index over the integer hull of every box, so only
	// intersecting candidates get an exact IoU check.
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(sorted))
	for _, d := range sorted {
		fb.Add(floor32(d.Box.X1), floor32(d.Box.Y1), ceil32(d.Box.X2), ceil32(d.Box.Y2))
	}
	fb.Finish()

	suppressed := make([]bool, len(sorted))
	keep := make([]RawDetection, 0, len(sorted))
	for i, d := range sorted {
		if suppressed[i] {
			continue
		}
		keep = append(keep, d)
		for _, j := range fb.Search(floor32(d.Box.X1), floor32(d.Box.Y1), ceil32(d.Box.X2), ceil32(d.Box.Y2)) {
			if j <= i || suppressed[j] {
				continue
			}
			if classAware && sorted[j].Class != d.Class {
				continue
			}
			if d.Box.IOU(sorted[j].Box) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}

func floor32(v float32) int32 {
	return int32(math.Floor(float64(v)))
}

func ceil32(v float32) int32 {
	return int32(math.Ceil(float64(v)))
}

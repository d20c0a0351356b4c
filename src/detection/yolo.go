package detection

import (
	"github.com/pkg/errors"
)

const (
	DefaultInputSize       = 640
	DefaultConfidenceFloor = 0.25
	DefaultNMSIoU          = 0.45
)

// DecodeYOLOv8 decodes the raw [1, 4+numClasses, numAnchors] output of an
// ultralytics YOLOv8 export. Rows 0-3 hold center x, center y, width and
// height in network input pixels; lb maps them back to the original image.
// Boxes are not clipped, NMS runs first. Anchors whose best class score is
// below minConfidence are skipped.
func DecodeYOLOv8(output []float32, numClasses int, numAnchors int, lb Letterbox, minConfidence float32) ([]RawDetection, error) {
	if numClasses <= 0 || numAnchors <= 0 {
		return nil, errors.Errorf("invalid output geometry: %d classes, %d anchors", numClasses, numAnchors)
	}
	if lb.Gain <= 0 {
		return nil, errors.New("invalid letterbox")
	}
	if len(output) != (4+numClasses)*numAnchors {
		return nil, errors.Errorf("invalid output size: got %d, expected %d", len(output), (4+numClasses)*numAnchors)
	}

	dets := []RawDetection{}
	for i := 0; i < numAnchors; i++ {
		class, prob := 0, float32(0)
		for c := 0; c < numClasses; c++ {
			if v := output[(4+c)*numAnchors+i]; v > prob {
				prob = v
				class = c
			}
		}
		if prob < minConfidence {
			continue
		}

		xc := output[i]
		yc := output[numAnchors+i]
		w := output[2*numAnchors+i]
		h := output[3*numAnchors+i]

		dets = append(dets, RawDetection{
			Box: lb.ToImage(Box{
				X1: xc - w/2,
				Y1: yc - h/2,
				X2: xc + w/2,
				Y2: yc + h/2,
			}),
			Confidence: prob,
			Class:      class,
		})
	}
	return dets, nil
}

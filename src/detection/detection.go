// Package detection runs a general purpose object detector and turns its
// output into normalized boxes labelled with vocabulary object ids.
package detection

import (
	"bufio"
	"image"
	"os"
	"strings"

	"github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/vocabulary"
	"github.com/pkg/errors"
)

// Box is a pixel space rectangle given by its corners.
type Box struct {
	X1 float32
	Y1 float32
	X2 float32
	Y2 float32
}

func (b Box) Width() float32 {
	return b.X2 - b.X1
}

func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

func (b Box) Area() float32 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

func (b Box) Intersection(o Box) Box {
	return Box{
		X1: max(b.X1, o.X1),
		Y1: max(b.Y1, o.Y1),
		X2: min(b.X2, o.X2),
		Y2: min(b.Y2, o.Y2),
	}
}

func (b Box) IOU(o Box) float32 {
	inter := b.Intersection(o).Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// RawDetection is what a detector engine reports for one object.
type RawDetection struct {
	Box        Box
	Confidence float32
	Class      int
}

// Engine is a native object detector. Implementations hold pre-allocated
// session tensors and must not be shared between goroutines.
type Engine interface {
	Detect(img image.Image) ([]RawDetection, error)
	// Classes are the detector's own class names, indexed by RawDetection.Class.
	Classes() []string
	Close()
}

// Adapter wraps an Engine and translates its detections into the
// vocabulary's object ids.
type Adapter struct {
	engine  Engine
	classes []int
}

// NewAdapter precomputes the detector class to vocabulary id table using
// the given strategies in order. Without strategies DefaultStrategies is used.
func NewAdapter(engine Engine, vocab *vocabulary.Vocabulary, strategies ...MatchStrategy) *Adapter {
	if len(strategies) == 0 {
		strategies = DefaultStrategies
	}
	return &Adapter{
		engine:  engine,
		classes: BuildClassMap(engine.Classes(), vocab, strategies),
	}
}

// ClassID is the vocabulary object id a detector class index maps to.
func (a *Adapter) ClassID(detectorClass int) int {
	if detectorClass < 0 || detectorClass >= len(a.classes) {
		return 0
	}
	return a.classes[detectorClass]
}

// Detect runs the engine on img and returns the detections whose confidence
// reaches confidenceFloor, in engine order, clipped to the image. An empty
// result is not an error.
func (a *Adapter) Detect(img image.Image, confidenceFloor float32) ([]datastructures.DetectedBox, error) {
	raw, err := a.engine.Detect(img)
	if err != nil {
		return nil, errors.Wrap(err, "detector failed")
	}

	bounds := img.Bounds()
	width := float32(bounds.Dx())
	height := float32(bounds.Dy())
	if width <= 0 || height <= 0 {
		return nil, errors.Errorf("invalid image size %dx%d", bounds.Dx(), bounds.Dy())
	}

	boxes := make([]datastructures.DetectedBox, 0, len(raw))
	for _, d := range raw {
		if d.Confidence < confidenceFloor {
			continue
		}
		b := d.Box.Clip(width, height)
		boxes = append(boxes, datastructures.DetectedBox{
			CX:      (b.X1 + b.X2) / 2 / width,
			CY:      (b.Y1 + b.Y2) / 2 / height,
			W:       max(b.Width(), 0) / width,
			H:       max(b.Height(), 0) / height,
			ClassID: a.ClassID(d.Class),
		})
	}
	return boxes, nil
}

func (a *Adapter) Close() {
	a.engine.Close()
}

// LoadClassFile reads one class name per line, skipping blank lines.
func LoadClassFile(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	classes := []string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			classes = append(classes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "couldn't read class file %s", filename)
	}
	return classes, nil
}

// Package scenegraph runs detection, feature extraction and the scene
// graph heads on one image and turns the logits into a scene graph.
package scenegraph

import (
	"image"

	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/detection"
	"github.com/bbernhard/scenegraph-playground/src/features"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Detector finds objects in an image. *detection.Adapter implements it.
type Detector interface {
	Detect(img image.Image, confidenceFloor float32) ([]datastructures.DetectedBox, error)
}

// FeatureExtractor computes the global feature map of an image.
// *features.Extractor implements it.
type FeatureExtractor interface {
	ExtractGlobal(img image.Image) (*features.FeatureMap, error)
}

// Pipeline owns one detector and one feature extractor; it must not be
// used from more than one goroutine. Resources may be shared.
type Pipeline struct {
	Resources       *Resources
	Detector        Detector
	Extractor       FeatureExtractor
	ConfidenceFloor float32
	RoISize         int

	logger *log.Entry
}

func NewPipeline(resources *Resources, detector Detector, extractor FeatureExtractor, roiSize int) *Pipeline {
	return &Pipeline{
		Resources:       resources,
		Detector:        detector,
		Extractor:       extractor,
		ConfidenceFloor: detection.DefaultConfidenceFloor,
		RoISize:         roiSize,
		logger:          log.NewEntry(log.StandardLogger()),
	}
}

// WithJob returns a copy of the pipeline whose log lines carry jobID.
func (p *Pipeline) WithJob(jobID string) *Pipeline {
	c := *p
	c.logger = p.log().WithField("job", jobID)
	return &c
}

func (p *Pipeline) log() *log.Entry {
	if p.logger == nil {
		return log.NewEntry(log.StandardLogger())
	}
	return p.logger
}

func (p *Pipeline) enter(state State) {
	p.log().WithField("state", state.String()).Debug("[Pipeline] State transition")
}

func (p *Pipeline) failed(f *Failure) *Failure {
	p.log().WithFields(log.Fields{
		"state":  Failed.String(),
		"during": f.State.String(),
	}).Debug("[Pipeline] ", f.Error())
	return f
}

// ProcessFile decodes the image at path and runs Process on it.
func (p *Pipeline) ProcessFile(path string, threshold float32) (*datastructures.SceneGraph, error) {
	p.enter(LoadingInputs)
	img, err := features.LoadImage(path)
	if err != nil {
		return nil, p.failed(loadFailure(LoadingInputs, err))
	}
	return p.process(img, threshold)
}

// Process builds the scene graph of img, keeping relationships whose score
// is strictly greater than threshold.
func (p *Pipeline) Process(img image.Image, threshold float32) (*datastructures.SceneGraph, error) {
	p.enter(LoadingInputs)
	if img == nil {
		return nil, p.failed(fail(LoadingInputs, ErrResourceNotFound, errors.New("no image")))
	}
	return p.process(img, threshold)
}

func (p *Pipeline) process(img image.Image, threshold float32) (*datastructures.SceneGraph, error) {
	if p.Resources == nil || p.Detector == nil || p.Extractor == nil {
		return nil, p.failed(fail(LoadingInputs, ErrResourceNotFound, errors.New("pipeline is not fully initialized")))
	}

	p.enter(Detecting)
	boxes, err := p.Detector.Detect(img, p.ConfidenceFloor)
	if err != nil {
		return nil, p.failed(fail(Detecting, ErrLoad, err))
	}
	if len(boxes) == 0 {
		return nil, p.failed(fail(Detecting, ErrNoObjectsDetected, nil))
	}

	p.enter(ExtractingFeatures)
	fm, err := p.Extractor.ExtractGlobal(img)
	if err != nil {
		return nil, p.failed(fail(ExtractingFeatures, ErrLoad, err))
	}
	if want := p.Resources.Model.FeatureLength(); fm.Channels*p.RoISize*p.RoISize != want {
		return nil, p.failed(fail(ExtractingFeatures, ErrLoad,
			errors.Errorf("region features of length %d, model expects %d", fm.Channels*p.RoISize*p.RoISize, want)))
	}
	regions := features.PoolRegions(fm, boxes, p.RoISize)

	p.enter(Classifying)
	out := p.Resources.Model.Predict(regions, boxes)
	objects := ClassifyObjects(p.Resources.Vocabulary, out)
	if len(objects) != len(boxes) {
		panic("scenegraph: object count differs from box count")
	}

	p.enter(FilteringRelationships)
	rels := FilterRelationships(p.Resources.Vocabulary, out, objects, threshold)

	p.enter(Done)
	p.log().WithFields(log.Fields{
		"objects":       len(objects),
		"relationships": len(rels),
	}).Info("[Pipeline] Scene graph generated")

	return &datastructures.SceneGraph{Objects: objects, Relationships: rels}, nil
}

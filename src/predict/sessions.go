package main

import (
	"image"

	"github.com/bbernhard/scenegraph-playground/src/backend/onnx"
	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/detection"
	"github.com/bbernhard/scenegraph-playground/src/features"
	"github.com/bbernhard/scenegraph-playground/src/scenegraph"
)

// pipelineSession is the Predictor of a worker: a pipeline plus the native
// sessions it runs on.
type pipelineSession struct {
	pipeline  *scenegraph.Pipeline
	detector  *detection.Adapter
	extractor *features.Extractor
}

func (s *pipelineSession) Process(jobID string, img image.Image, threshold float32) (*datastructures.SceneGraph, error) {
	return s.pipeline.WithJob(jobID).Process(img, threshold)
}

func (s *pipelineSession) Close() {
	s.detector.Close()
	s.extractor.Close()
}

func newBackbone(config *commons.ModelConfig, threads int) (features.Backbone, error) {
	channelsLast := config.Backbone.Layout == commons.LayoutNHWC
	if config.Backbone.Format == commons.BackboneFormatTensorflow {
		return newTensorflowBackbone(config, channelsLast)
	}
	return onnx.NewBackbone(onnx.BackboneOptions{
		ModelPath:    config.Backbone.Path,
		InputName:    config.Backbone.InputName,
		OutputName:   config.Backbone.OutputName,
		InputSize:    config.ImageSize,
		Channels:     config.Backbone.Channels,
		Grid:         config.Backbone.Grid,
		ChannelsLast: channelsLast,
		Threads:      threads,
	})
}

// newPipelineFactory returns a factory creating one detector and one
// backbone session per call. resources are shared by all of them.
func newPipelineFactory(config *commons.ModelConfig, resources *scenegraph.Resources, classes []string, threads int) PredictorFactory {
	return func() (Predictor, error) {
		detector, err := onnx.NewDetector(onnx.DetectorOptions{
			ModelPath:     config.Detector.Path,
			InputName:     config.Detector.InputName,
			OutputName:    config.Detector.OutputName,
			InputSize:     config.Detector.InputSize,
			Classes:       classes,
			MinConfidence: config.Detector.ConfidenceFloor,
			NMSIoU:        config.Detector.NMSIoU,
			Threads:       threads,
		})
		if err != nil {
			return nil, err
		}

		backbone, err := newBackbone(config, threads)
		if err != nil {
			detector.Close()
			return nil, err
		}

		adapter := detection.NewAdapter(detector, resources.Vocabulary)
		extractor := features.NewExtractor(backbone, features.Normalization{
			Size: config.ImageSize,
			Mean: config.Mean,
			Std:  config.Std,
		}, config.RoISize)

		pipeline := scenegraph.NewPipeline(resources, adapter, extractor, config.RoISize)
		pipeline.ConfidenceFloor = config.Detector.ConfidenceFloor

		return &pipelineSession{pipeline: pipeline, detector: adapter, extractor: extractor}, nil
	}
}

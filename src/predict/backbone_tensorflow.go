//go:build tensorflow

package main

import (
	"github.com/bbernhard/scenegraph-playground/src/backend/tensorflow"
	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	"github.com/bbernhard/scenegraph-playground/src/features"
)

func newTensorflowBackbone(config *commons.ModelConfig, channelsLast bool) (features.Backbone, error) {
	backbone, err := tensorflow.NewBackbone(tensorflow.BackboneOptions{
		GraphPath:    config.Backbone.Path,
		InputName:    config.Backbone.InputName,
		OutputName:   config.Backbone.OutputName,
		ChannelsLast: channelsLast,
	})
	if err != nil {
		return nil, err
	}
	return backbone, nil
}

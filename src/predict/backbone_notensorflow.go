//go:build !tensorflow

package main

import (
	commons "github.com/bbernhard/scenegraph-playground/src/commons"
	"github.com/bbernhard/scenegraph-playground/src/features"
	"github.com/pkg/errors"
)

func newTensorflowBackbone(config *commons.ModelConfig, channelsLast bool) (features.Backbone, error) {
	return nil, errors.Errorf("can't load %s: worker was built without tensorflow support (-tags tensorflow)", config.Backbone.Path)
}

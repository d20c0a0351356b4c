package scenegraph

import (
	"os"

	"github.com/bbernhard/scenegraph-playground/src/checkpoint"
	"github.com/bbernhard/scenegraph-playground/src/sgmodel"
	"github.com/bbernhard/scenegraph-playground/src/vocabulary"
)

// Resources are the immutable artifacts every pipeline shares: the
// vocabulary and the head weights.
type Resources struct {
	Vocabulary *vocabulary.Vocabulary
	Model      *sgmodel.Model
}

// LoadResources reads the vocabulary and the head checkpoint and checks
// that the head sizes match the vocabulary.
func LoadResources(vocabularyPath string, checkpointPath string) (*Resources, error) {
	vocab, err := vocabulary.LoadFile(vocabularyPath)
	if err != nil {
		return nil, loadFailure(LoadingInputs, err)
	}

	if _, err := os.Stat(checkpointPath); err != nil {
		return nil, loadFailure(LoadingInputs, err)
	}
	sd, err := checkpoint.Load(checkpointPath, sgmodel.ParameterNames())
	if err != nil {
		return nil, loadFailure(LoadingInputs, err)
	}

	return NewResources(vocab, sd)
}

// NewResources builds the model from an already loaded state dict.
func NewResources(vocab *vocabulary.Vocabulary, sd sgmodel.StateDict) (*Resources, error) {
	model, err := sgmodel.FromStateDict(sd, sgmodel.Sizes{
		Objects:       vocab.Len(vocabulary.Objects),
		Attributes:    vocab.Len(vocabulary.Attributes),
		Relationships: vocab.Len(vocabulary.Relationships),
	})
	if err != nil {
		return nil, fail(LoadingInputs, ErrLoad, err)
	}
	return &Resources{Vocabulary: vocab, Model: model}, nil
}

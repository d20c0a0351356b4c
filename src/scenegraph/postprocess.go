package scenegraph

import (
	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/sgmodel"
	"github.com/bbernhard/scenegraph-playground/src/vocabulary"
)

// ClassifyObjects picks the most probable class of every object. The box
// is the regression head output, not the detector box.
func ClassifyObjects(vocab *vocabulary.Vocabulary, out sgmodel.Output) []datastructures.ObjectPrediction {
	objects := make([]datastructures.ObjectPrediction, len(out.ObjectLogits))
	for i, logits := range out.ObjectLogits {
		probs := sgmodel.Softmax(logits)
		id := sgmodel.Argmax(probs)
		objects[i] = datastructures.ObjectPrediction{
			Label:   vocab.IDToName(vocabulary.Objects, id),
			LabelID: id,
			Score:   probs[id],
			BBox:    out.BoxDeltas[i],
		}
	}
	return objects
}

// FilterRelationships keeps the pairs whose best predicate scores strictly
// above threshold. Subject and object ids index objects.
func FilterRelationships(vocab *vocabulary.Vocabulary, out sgmodel.Output, objects []datastructures.ObjectPrediction, threshold float32) []datastructures.RelationshipPrediction {
	rels := []datastructures.RelationshipPrediction{}
	for k, pair := range out.Pairs {
		probs := sgmodel.Softmax(out.RelationLogits[k])
		if len(probs) == 0 {
			continue
		}
		id := sgmodel.Argmax(probs)
		if probs[id] <= threshold {
			continue
		}
		rels = append(rels, datastructures.RelationshipPrediction{
			SubjectID:   pair.Subject,
			ObjectID:    pair.Object,
			Predicate:   vocab.IDToName(vocabulary.Relationships, id),
			PredicateID: id,
			Score:       probs[id],
			Subject:     objects[pair.Subject].Label,
			Object:      objects[pair.Object].Label,
		})
	}
	return rels
}

// Package sgmodel holds the classification heads that turn pooled region
// features into object, attribute, box and relationship logits.
package sgmodel

import (
	"github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/bbernhard/scenegraph-playground/src/relationships"
)

const spatialFeatures = 10

// Model is immutable after construction; Predict may be called from many
// goroutines at once.
type Model struct {
	ObjectEmbedding *Linear
	ObjectHead      *Linear
	AttributeHead   *Linear
	BoxHead         *Linear

	ClassEmbedding *Embedding
	Spatial1       *Linear
	Spatial2       *Linear
	Fusion1        *Linear
	Fusion2        *Linear
	RelationHead   *Linear
}

// Output holds the raw logits of one image. Per-object slices are indexed
// like the input boxes; RelationLogits is parallel to Pairs.
type Output struct {
	ObjectLogits    [][]float32
	AttributeLogits [][]float32
	BoxDeltas       [][4]float32
	Pairs           []relationships.Pair
	RelationLogits  [][]float32
}

// FeatureLength is the region feature size the embedding expects.
func (m *Model) FeatureLength() int {
	return m.ObjectEmbedding.In
}

func (m *Model) Predict(regionFeatures [][]float32, boxes []datastructures.DetectedBox) Output {
	n := len(boxes)
	out := Output{
		ObjectLogits:    make([][]float32, n),
		AttributeLogits: make([][]float32, n),
		BoxDeltas:       make([][4]float32, n),
	}

	for i := 0; i < n; i++ {
		embedded := relu(m.ObjectEmbedding.Forward(regionFeatures[i]))
		out.ObjectLogits[i] = m.ObjectHead.Forward(embedded)
		out.AttributeLogits[i] = m.AttributeHead.Forward(embedded)
		copy(out.BoxDeltas[i][:], m.BoxHead.Forward(embedded))
	}

	out.Pairs = relationships.EnumeratePairs(n)
	out.RelationLogits = make([][]float32, len(out.Pairs))
	for k, p := range out.Pairs {
		out.RelationLogits[k] = m.predictRelation(boxes[p.Subject], boxes[p.Object])
	}
	return out
}

func (m *Model) predictRelation(subj, obj datastructures.DetectedBox) []float32 {
	spatial := []float32{
		subj.CX, subj.CY, subj.W, subj.H,
		obj.CX, obj.CY, obj.W, obj.H,
		subj.CX - obj.CX, subj.CY - obj.CY,
	}
	spatial = relu(m.Spatial2.Forward(relu(m.Spatial1.Forward(spatial))))

	dim := m.ClassEmbedding.Dim
	fused := make([]float32, 0, 2*dim+len(spatial))
	fused = append(fused, m.ClassEmbedding.Lookup(subj.ClassID)...)
	fused = append(fused, m.ClassEmbedding.Lookup(obj.ClassID)...)
	fused = append(fused, spatial...)

	hidden := relu(m.Fusion2.Forward(relu(m.Fusion1.Forward(fused))))
	return m.RelationHead.Forward(hidden)
}

package sgmodel

import (
	"github.com/pkg/errors"
)

var ErrShape = errors.New("sgmodel: parameter shape mismatch")

// Param is one named tensor of a state dict.
type Param struct {
	Shape []int
	Data  []float32
}

type StateDict map[string]Param

// Sizes are the vocabulary sizes the classifier heads must produce.
type Sizes struct {
	Objects       int
	Attributes    int
	Relationships int
}

const (
	keyObjectEmbedding = "obj_feature_embedding.0"
	keyObjectHead      = "obj_classifier"
	keyAttributeHead   = "attr_classifier"
	keyBoxHead         = "bbox_regressor"
	keyClassEmbedding  = "relationship_predictor.obj_embedding"
	keySpatial1        = "relationship_predictor.spatial_fc.0"
	keySpatial2        = "relationship_predictor.spatial_fc.3"
	keyFusion1         = "relationship_predictor.visual_fusion.0"
	keyFusion2         = "relationship_predictor.visual_fusion.3"
	keyRelationHead    = "relationship_predictor.rel_classifier"
)

// ParameterNames lists every tensor name FromStateDict reads.
func ParameterNames() []string {
	names := []string{keyClassEmbedding + ".weight"}
	for _, layer := range []string{
		keyObjectEmbedding, keyObjectHead, keyAttributeHead, keyBoxHead,
		keySpatial1, keySpatial2, keyFusion1, keyFusion2, keyRelationHead,
	} {
		names = append(names, layer+".weight", layer+".bias")
	}
	return names
}

// FromStateDict assembles a Model from PyTorch parameter names and checks
// every shape, including the head sizes against sizes.
func FromStateDict(sd StateDict, sizes Sizes) (*Model, error) {
	b := builder{sd: sd}

	m := &Model{
		ObjectEmbedding: b.linear(keyObjectEmbedding, -1, -1),
	}
	embedDim := m.ObjectEmbedding.Out
	m.ObjectHead = b.linear(keyObjectHead, embedDim, sizes.Objects)
	m.AttributeHead = b.linear(keyAttributeHead, embedDim, sizes.Attributes)
	m.BoxHead = b.linear(keyBoxHead, embedDim, 4)

	m.ClassEmbedding = b.embedding(keyClassEmbedding, sizes.Objects)
	m.Spatial1 = b.linear(keySpatial1, spatialFeatures, -1)
	m.Spatial2 = b.linear(keySpatial2, m.Spatial1.Out, -1)
	m.Fusion1 = b.linear(keyFusion1, 2*m.ClassEmbedding.Dim+m.Spatial2.Out, -1)
	m.Fusion2 = b.linear(keyFusion2, m.Fusion1.Out, m.Fusion1.Out)
	m.RelationHead = b.linear(keyRelationHead, m.Fusion2.Out, sizes.Relationships)

	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder records the first failure so FromStateDict reads top to bottom.
type builder struct {
	sd  StateDict
	err error
}

func (b *builder) param(name string, dims int) Param {
	if b.err != nil {
		return Param{}
	}
	p, ok := b.sd[name]
	if !ok {
		b.err = errors.Wrapf(ErrShape, "missing parameter %s", name)
		return Param{}
	}
	if len(p.Shape) != dims {
		b.err = errors.Wrapf(ErrShape, "%s: expected %d dimensions, got %v", name, dims, p.Shape)
		return Param{}
	}
	n := 1
	for _, d := range p.Shape {
		n *= d
	}
	if n != len(p.Data) {
		b.err = errors.Wrapf(ErrShape, "%s: shape %v does not match %d values", name, p.Shape, len(p.Data))
		return Param{}
	}
	return p
}

// linear loads name.weight and name.bias. A negative in or out accepts any
// size.
func (b *builder) linear(name string, in int, out int) *Linear {
	w := b.param(name+".weight", 2)
	bias := b.param(name+".bias", 1)
	if b.err != nil {
		return &Linear{}
	}
	if (out >= 0 && w.Shape[0] != out) || (in >= 0 && w.Shape[1] != in) {
		b.err = errors.Wrapf(ErrShape, "%s.weight: expected [%d %d], got %v", name, out, in, w.Shape)
		return &Linear{}
	}
	if bias.Shape[0] != w.Shape[0] {
		b.err = errors.Wrapf(ErrShape, "%s.bias: expected [%d], got %v", name, w.Shape[0], bias.Shape)
		return &Linear{}
	}
	return &Linear{In: w.Shape[1], Out: w.Shape[0], Weight: w.Data, Bias: bias.Data}
}

func (b *builder) embedding(name string, rows int) *Embedding {
	w := b.param(name+".weight", 2)
	if b.err != nil {
		return &Embedding{}
	}
	if w.Shape[0] != rows {
		b.err = errors.Wrapf(ErrShape, "%s.weight: expected %d rows, got %v", name, rows, w.Shape)
		return &Embedding{}
	}
	return &Embedding{Rows: w.Shape[0], Dim: w.Shape[1], Weights: w.Data}
}

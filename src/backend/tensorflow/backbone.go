//go:build tensorflow

package tensorflow

import (
	"os"
	"path/filepath"

	"github.com/bbernhard/scenegraph-playground/src/features"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	tf "github.com/tensorflow/tensorflow/tensorflow/go"
)

type BackboneOptions struct {
	GraphPath  string
	InputName  string
	OutputName string
	// ChannelsLast selects [1, H, W, C] tensors instead of [1, C, H, W].
	ChannelsLast bool
}

type Backbone struct {
	opts    BackboneOptions
	graph   *tf.Graph
	session *tf.Session
	input   tf.Output
	output  tf.Output
}

func NewBackbone(opts BackboneOptions) (*Backbone, error) {
	// Load the serialized GraphDef from a file.
	model, err := os.ReadFile(opts.GraphPath)
	if err != nil {
		log.Debug("[Main] Couldn't read model: ", err.Error())
		return nil, errors.Wrapf(err, "couldn't read %s", filepath.Base(opts.GraphPath))
	}

	// Construct an in-memory graph from the serialized form.
	graph := tf.NewGraph()
	if err := graph.Import(model, ""); err != nil {
		log.Debug("[Main] Couldn't construct graph: ", err.Error())
		return nil, errors.Wrap(err, "couldn't construct graph")
	}

	in := graph.Operation(opts.InputName)
	out := graph.Operation(opts.OutputName)
	if in == nil || out == nil {
		return nil, errors.Errorf("graph has no operation %q or %q", opts.InputName, opts.OutputName)
	}

	session, err := tf.NewSession(graph, nil)
	if err != nil {
		log.Debug("[Main] Couldn't start session: ", err.Error())
		return nil, errors.Wrap(err, "couldn't start session")
	}

	return &Backbone{
		opts:    opts,
		graph:   graph,
		session: session,
		input:   in.Output(0),
		output:  out.Output(0),
	}, nil
}

func (b *Backbone) ExtractGlobal(input *features.Tensor) (*features.FeatureMap, error) {
	if b.opts.ChannelsLast {
		input = input.NHWC()
	}
	tensor, err := tf.NewTensor(nested(input))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't create tensor from image")
	}

	output, err := b.session.Run(
		map[tf.Output]*tf.Tensor{
			b.input: tensor,
		},
		[]tf.Output{
			b.output,
		},
		nil)
	if err != nil {
		return nil, errors.Wrap(err, "couldn't run backbone")
	}

	// The batch size is 1.
	value, ok := output[0].Value().([][][][]float32)
	if !ok || len(value) != 1 {
		return nil, errors.Errorf("unexpected backbone output %v", output[0].Shape())
	}
	a, bb, c := len(value[0]), len(value[0][0]), len(value[0][0][0])
	flat := make([]float32, 0, a*bb*c)
	for _, plane := range value[0] {
		for _, row := range plane {
			flat = append(flat, row...)
		}
	}

	if b.opts.ChannelsLast {
		return features.FromHWC(flat, a, bb, c)
	}
	return &features.FeatureMap{Channels: a, Height: bb, Width: c, Data: flat}, nil
}

// nested turns a 4-d tensor into the slice form tf.NewTensor accepts.
func nested(t *features.Tensor) [][][][]float32 {
	d0, d1, d2, d3 := t.Shape[0], t.Shape[1], t.Shape[2], t.Shape[3]
	out := make([][][][]float32, d0)
	i := 0
	for a := range out {
		out[a] = make([][][]float32, d1)
		for b := range out[a] {
			out[a][b] = make([][]float32, d2)
			for c := range out[a][b] {
				out[a][b][c] = t.Data[i : i+d3]
				i += d3
			}
		}
	}
	return out
}

func (b *Backbone) Close() {
	if b.session != nil {
		b.session.Close()
	}
}

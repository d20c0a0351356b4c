package onnx

import (
	"github.com/bbernhard/scenegraph-playground/src/features"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

type BackboneOptions struct {
	ModelPath  string
	InputName  string
	OutputName string
	InputSize  int
	Channels   int
	Grid       int
	// ChannelsLast selects [1, H, W, C] tensors instead of [1, C, H, W].
	ChannelsLast bool
	Threads      int
}

// Backbone is a truncated classification network exported to ONNX that
// maps one image to a feature map.
type Backbone struct {
	opts         BackboneOptions
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func NewBackbone(opts BackboneOptions) (*Backbone, error) {
	s := int64(opts.InputSize)
	c := int64(opts.Channels)
	g := int64(opts.Grid)
	inputShape := ort.NewShape(1, 3, s, s)
	outputShape := ort.NewShape(1, c, g, g)
	if opts.ChannelsLast {
		inputShape = ort.NewShape(1, s, s, 3)
		outputShape = ort.NewShape(1, g, g, c)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](inputShape)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](outputShape)
	if err != nil {
		inputTensor.Destroy()
		return nil, errors.Wrap(err, "failed to create output tensor")
	}

	options, err := sessionOptions(opts.Threads)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, err
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(opts.ModelPath,
		[]string{opts.InputName}, []string{opts.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, errors.Wrapf(err, "failed to create backbone session for %s", opts.ModelPath)
	}

	return &Backbone{
		opts:         opts,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (b *Backbone) ExtractGlobal(input *features.Tensor) (*features.FeatureMap, error) {
	if b.opts.ChannelsLast {
		input = input.NHWC()
	}
	dst := b.inputTensor.GetData()
	if len(input.Data) != len(dst) {
		return nil, errors.Errorf("input holds %d values, session expects %d", len(input.Data), len(dst))
	}
	copy(dst, input.Data)

	if err := b.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	out := b.outputTensor.GetData()
	if b.opts.ChannelsLast {
		return features.FromHWC(out, b.opts.Grid, b.opts.Grid, b.opts.Channels)
	}
	data := make([]float32, len(out))
	copy(data, out)
	return &features.FeatureMap{Channels: b.opts.Channels, Height: b.opts.Grid, Width: b.opts.Grid, Data: data}, nil
}

func (b *Backbone) Close() {
	if b.inputTensor != nil {
		b.inputTensor.Destroy()
	}
	if b.outputTensor != nil {
		b.outputTensor.Destroy()
	}
	if b.session != nil {
		b.session.Destroy()
	}
}

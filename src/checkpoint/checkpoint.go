// Package checkpoint reads the head weights from a PyTorch checkpoint.
package checkpoint

import (
	"reflect"

	"github.com/bbernhard/scenegraph-playground/src/sgmodel"
	"github.com/nlpodyssey/gopickle/pytorch"
	"github.com/pkg/errors"
)

var ErrFormat = errors.New("checkpoint: unsupported format")

// Load reads a .pth file saved either as a bare state dict or as a dict
// with a "model_state_dict" entry, and returns the named tensors. Names
// absent from the checkpoint are left out of the result.
func Load(path string, names []string) (sgmodel.StateDict, error) {
	obj, err := pytorch.Load(path)
	if err != nil {
		return nil, errors.Wrapf(err, "couldn't unpickle %s", path)
	}
	return FromObject(obj, names)
}

// FromObject extracts the named tensors from an unpickled checkpoint.
func FromObject(obj interface{}, names []string) (sgmodel.StateDict, error) {
	if !isDict(obj) {
		return nil, errors.Wrapf(ErrFormat, "top level object is %T", obj)
	}
	if nested, ok := lookup(obj, "model_state_dict"); ok {
		if !isDict(nested) {
			return nil, errors.Wrapf(ErrFormat, "model_state_dict is %T", nested)
		}
		obj = nested
	}

	sd := sgmodel.StateDict{}
	for _, name := range names {
		v, ok := lookup(obj, name)
		if !ok {
			continue
		}
		p, err := toParam(v)
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
		sd[name] = p
	}
	return sd, nil
}

type getter interface {
	Get(key interface{}) (interface{}, bool)
}

func isDict(obj interface{}) bool {
	if _, ok := obj.(getter); ok {
		return true
	}
	return obj != nil && reflect.ValueOf(obj).Kind() == reflect.Map
}

func lookup(obj interface{}, key string) (interface{}, bool) {
	if g, ok := obj.(getter); ok {
		return g.Get(key)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Map {
		return nil, false
	}
	k := reflect.ValueOf(key)
	if !k.Type().AssignableTo(rv.Type().Key()) {
		return nil, false
	}
	v := rv.MapIndex(k)
	if !v.IsValid() {
		return nil, false
	}
	return v.Interface(), true
}

func toParam(v interface{}) (sgmodel.Param, error) {
	t, ok := v.(*pytorch.Tensor)
	if !ok {
		return sgmodel.Param{}, errors.Wrapf(ErrFormat, "expected a tensor, got %T", v)
	}

	var storage []float32
	switch s := t.Source.(type) {
	case *pytorch.FloatStorage:
		storage = s.Data
	case *pytorch.HalfStorage:
		storage = s.Data
	case *pytorch.DoubleStorage:
		storage = make([]float32, len(s.Data))
		for i, d := range s.Data {
			storage[i] = float32(d)
		}
	default:
		return sgmodel.Param{}, errors.Wrapf(ErrFormat, "unsupported storage %T", t.Source)
	}

	shape := append([]int(nil), t.Size...)
	data, err := gather(storage, t.StorageOffset, shape, t.Stride)
	if err != nil {
		return sgmodel.Param{}, err
	}
	return sgmodel.Param{Shape: shape, Data: data}, nil
}

// gather copies a strided view out of storage into a contiguous slice.
func gather(storage []float32, offset int, shape []int, stride []int) ([]float32, error) {
	if len(shape) != len(stride) {
		return nil, errors.Wrapf(ErrFormat, "shape %v and stride %v differ in rank", shape, stride)
	}
	n := 1
	for _, d := range shape {
		n *= d
	}
	out := make([]float32, n)
	if n == 0 {
		return out, nil
	}

	idx := make([]int, len(shape))
	for i := 0; i < n; i++ {
		pos := offset
		for d := range idx {
			pos += idx[d] * stride[d]
		}
		if pos < 0 || pos >= len(storage) {
			return nil, errors.Wrapf(ErrFormat, "tensor view exceeds storage of %d values", len(storage))
		}
		out[i] = storage[pos]

		for d := len(idx) - 1; d >= 0; d-- {
			idx[d]++
			if idx[d] < shape[d] {
				break
			}
			idx[d] = 0
		}
	}
	return out, nil
}

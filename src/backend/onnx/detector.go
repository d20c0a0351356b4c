package onnx

import (
	"image"

	"github.com/bbernhard/scenegraph-playground/src/detection"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
)

type DetectorOptions struct {
	ModelPath     string
	InputName     string
	OutputName    string
	InputSize     int
	Classes       []string
	MinConfidence float32
	NMSIoU        float32
	Threads       int
}

// Detector runs an ultralytics YOLOv8 export.
type Detector struct {
	opts         DetectorOptions
	anchors      int
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

// numAnchors is the prediction count of the three YOLOv8 heads at
// strides 8, 16 and 32.
func numAnchors(inputSize int) int {
	n := 0
	for _, stride := range []int{8, 16, 32} {
		n += (inputSize / stride) * (inputSize / stride)
	}
	return n
}

func NewDetector(opts DetectorOptions) (*Detector, error) {
	if len(opts.Classes) == 0 {
		return nil, errors.New("detector has no classes")
	}
	if opts.InputSize <= 0 {
		opts.InputSize = detection.DefaultInputSize
	}
	anchors := numAnchors(opts.InputSize)

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(opts.InputSize), int64(opts.InputSize)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create input tensor")
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(4+len(opts.Classes)), int64(anchors)))
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
		return nil, errors.Wrapf(err, "failed to create detector session for %s", opts.ModelPath)
	}

	return &Detector{
		opts:         opts,
		anchors:      anchors,
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (d *Detector) Classes() []string {
	return d.opts.Classes
}

// Detect letterboxes img into the network input, runs the model and
// returns NMS filtered detections in original image pixels, clipped to the
// image.
func (d *Detector) Detect(img image.Image) ([]detection.RawDetection, error) {
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, errors.New("empty image")
	}
	lb := detection.NewLetterbox(bounds.Dx(), bounds.Dy(), d.opts.InputSize)
	fillLetterbox(d.inputTensor.GetData(), img, lb)

	if err := d.session.Run(); err != nil {
		return nil, errors.Wrap(err, "inference failed")
	}

	dets, err := detection.DecodeYOLOv8(d.outputTensor.GetData(), len(d.opts.Classes), d.anchors, lb, d.opts.MinConfidence)
	if err != nil {
		return nil, err
	}
	dets = detection.NonMaxSuppression(dets, d.opts.NMSIoU, true)
	for i := range dets {
		dets[i].Box = lb.Clip(dets[i].Box)
	}
	return dets, nil
}

// fillLetterbox writes img into a [1, 3, size, size] input scaled to [0,1],
// padding the borders with gray.
func fillLetterbox(input []float32, img image.Image, lb detection.Letterbox) {
	size := lb.Size
	plane := size * size
	fill := float32(detection.LetterboxFill) / 255
	for i := range input[:3*plane] {
		input[i] = fill
	}

	resized := imaging.Resize(img, lb.ScaledWidth, lb.ScaledHeight, imaging.Linear)
	for y := 0; y < lb.ScaledHeight && y+lb.PadY < size; y++ {
		row := resized.Pix[y*resized.Stride:]
		for x := 0; x < lb.ScaledWidth && x+lb.PadX < size; x++ {
			px := row[x*4 : x*4+3]
			offset := (y+lb.PadY)*size + x + lb.PadX
			input[offset] = float32(px[0]) / 255
			input[plane+offset] = float32(px[1]) / 255
			input[2*plane+offset] = float32(px[2]) / 255
		}
	}
}

func (d *Detector) Close() {
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	if d.outputTensor != nil {
		d.outputTensor.Destroy()
	}
	if d.session != nil {
		d.session.Destroy()
	}
}

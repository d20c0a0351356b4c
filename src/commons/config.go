package commons

import (
	"encoding/json"
	"os"
	"path/filepath"

	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/pkg/errors"
)

const ModelInfoFile = "model_info.json"

// ModelConfig describes every artifact a worker needs. It is read from
// model_info.json in the models directory.
type ModelConfig struct {
	datastructures.ModelInfo

	ImageSize  int        `json:"img_size"`
	Mean       [3]float32 `json:"mean"`
	Std        [3]float32 `json:"std"`
	RoISize    int        `json:"roi_size"`
	Checkpoint string     `json:"checkpoint"`
	Vocabulary string     `json:"vocabulary"`

	Detector DetectorConfig `json:"detector"`
	Backbone BackboneConfig `json:"backbone"`
}

type DetectorConfig struct {
	Path            string  `json:"path"`
	InputSize       int     `json:"input_size"`
	ConfidenceFloor float32 `json:"confidence_floor"`
	NMSIoU          float32 `json:"nms_iou"`
	Classes         string  `json:"classes"`
	InputName       string  `json:"input_name"`
	OutputName      string  `json:"output_name"`
}

const (
	BackboneFormatONNX       = "onnx"
	BackboneFormatTensorflow = "tensorflow"

	LayoutNCHW = "nchw"
	LayoutNHWC = "nhwc"
)

type BackboneConfig struct {
	Format     string `json:"format"`
	Path       string `json:"path"`
	InputName  string `json:"input_name"`
	OutputName string `json:"output_name"`
	// Layout is the memory order of both the input and the output tensor.
	Layout   string `json:"layout"`
	Channels int    `json:"channels"`
	// Grid is the spatial size of the feature map, 16 for a ResNet-50 at 512px.
	Grid int `json:"grid"`
}

// Default returns the configuration of the ResNet-50 / YOLOv8 setup.
func Default() *ModelConfig {
	return &ModelConfig{
		ModelInfo: datastructures.ModelInfo{
			Build:   1,
			BasedOn: "resnet50",
		},
		ImageSize:  512,
		Mean:       [3]float32{0.485, 0.456, 0.406},
		Std:        [3]float32{0.229, 0.224, 0.225},
		RoISize:    7,
		Checkpoint: "model.pth",
		Vocabulary: "vocabulary.json",
		Detector: DetectorConfig{
			Path:            "yolov8n.onnx",
			InputSize:       640,
			ConfidenceFloor: 0.25,
			NMSIoU:          0.45,
			Classes:         "coco.names",
			InputName:       "images",
			OutputName:      "output0",
		},
		Backbone: BackboneConfig{
			Format:     BackboneFormatONNX,
			Path:       "backbone.onnx",
			InputName:  "input",
			OutputName: "features",
			Layout:     LayoutNCHW,
			Channels:   2048,
			Grid:       16,
		},
	}
}

// LoadModelInfo reads model_info.json from dir on top of Default and
// resolves relative artifact paths against dir.
func LoadModelInfo(dir string) (*ModelConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, ModelInfoFile))
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read model info")
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(err, "couldn't parse model info")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	config.Checkpoint = resolve(dir, config.Checkpoint)
	config.Vocabulary = resolve(dir, config.Vocabulary)
	config.Detector.Path = resolve(dir, config.Detector.Path)
	config.Detector.Classes = resolve(dir, config.Detector.Classes)
	config.Backbone.Path = resolve(dir, config.Backbone.Path)
	return config, nil
}

func resolve(dir string, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

func (c *ModelConfig) Validate() error {
	if c.ImageSize <= 0 {
		return errors.New("img_size must be positive")
	}
	for i, s := range c.Std {
		if s <= 0 {
			return errors.Errorf("std[%d] must be positive", i)
		}
	}
	if c.RoISize <= 0 {
		return errors.New("roi_size must be positive")
	}
	if c.Checkpoint == "" || c.Vocabulary == "" {
		return errors.New("checkpoint and vocabulary are required")
	}
	if c.Detector.Path == "" || c.Detector.Classes == "" {
		return errors.New("detector.path and detector.classes are required")
	}
	if c.Detector.InputSize <= 0 {
		return errors.New("detector.input_size must be positive")
	}
	if c.Detector.ConfidenceFloor < 0 || c.Detector.ConfidenceFloor > 1 {
		return errors.New("detector.confidence_floor must be between 0 and 1")
	}
	if c.Detector.NMSIoU <= 0 || c.Detector.NMSIoU > 1 {
		return errors.New("detector.nms_iou must be between 0 and 1")
	}
	switch c.Backbone.Format {
	case BackboneFormatONNX, BackboneFormatTensorflow:
	default:
		return errors.Errorf("unknown backbone format %q", c.Backbone.Format)
	}
	switch c.Backbone.Layout {
	case LayoutNCHW, LayoutNHWC:
	default:
		return errors.Errorf("unknown backbone layout %q", c.Backbone.Layout)
	}
	if c.Backbone.Path == "" || c.Backbone.Channels <= 0 || c.Backbone.Grid <= 0 {
		return errors.New("backbone.path, backbone.channels and backbone.grid are required")
	}
	return nil
}

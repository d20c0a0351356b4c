// Package onnx runs the detector and the feature backbone with
// onnxruntime. Sessions hold pre-allocated tensors; every worker creates
// its own.
package onnx

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// Initialize loads the onnxruntime shared library. Only the first call has
// an effect; later calls return its result.
func Initialize(sharedLibraryPath string) error {
	initOnce.Do(func() {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			initErr = errors.Wrap(err, "failed to initialize ONNX environment")
			return
		}
		log.Debug("[Main] ONNX runtime initialized")
	})
	return initErr
}

// Shutdown releases the onnxruntime environment once all sessions are
// destroyed.
func Shutdown() {
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Error("[Main] Couldn't destroy ONNX environment: ", err.Error())
		}
	}
}

func sessionOptions(threads int) (*ort.SessionOptions, error) {
	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create session options")
	}
	if threads > 0 {
		if err := options.SetIntraOpNumThreads(threads); err != nil {
			options.Destroy()
			return nil, errors.Wrap(err, "failed to set thread count")
		}
	}
	return options, nil
}

package scenegraph

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
)

var (
	ErrResourceNotFound  = errors.New("resource not found")
	ErrLoad              = errors.New("couldn't load resource")
	ErrNoObjectsDetected = errors.New("no objects detected")
)

// Failure is returned by every failed pipeline run. errors.Is matches it
// against its Kind, errors.Unwrap yields the underlying cause.
type Failure struct {
	State State
	Kind  error
	Err   error
}

func (f *Failure) Error() string {
	if f.Err == nil {
		return fmt.Sprintf("%s: %s", f.State, f.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", f.State, f.Kind, f.Err)
}

func (f *Failure) Is(target error) bool {
	return target == f.Kind
}

func (f *Failure) Unwrap() error {
	return f.Err
}

func fail(state State, kind error, err error) *Failure {
	return &Failure{State: state, Kind: kind, Err: err}
}

// loadFailure sorts an artifact error into ErrResourceNotFound or ErrLoad.
func loadFailure(state State, err error) *Failure {
	if errors.Is(err, os.ErrNotExist) {
		return fail(state, ErrResourceNotFound, err)
	}
	return fail(state, ErrLoad, err)
}

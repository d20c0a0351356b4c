package commons

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	datastructures "github.com/bbernhard/scenegraph-playground/src/datastructures"
	"github.com/pkg/errors"
)

const ResultsFile = "results.json"

// ShortID is the first segment of a job uuid, used to name files.
func ShortID(jobID string) string {
	if i := strings.IndexByte(jobID, '-'); i > 0 {
		return jobID[:i]
	}
	return jobID
}

// Layout knows where uploads and rendered outputs of a job live.
type Layout struct {
	UploadsDir string
	OutputsDir string
}

func (l Layout) UploadDir(jobID string) string {
	return filepath.Join(l.UploadsDir, jobID)
}

// UploadPath is where the uploaded image of a job is stored; ext keeps the
// original file extension, including the dot.
func (l Layout) UploadPath(jobID string, ext string) string {
	return filepath.Join(l.UploadDir(jobID), ShortID(jobID)+strings.ToLower(ext))
}

func (l Layout) OutputDir(jobID string) string {
	return filepath.Join(l.OutputsDir, jobID)
}

func (l Layout) AnnotatedImageName(jobID string) string {
	return ShortID(jobID) + "_annotated.png"
}

func (l Layout) GraphImageName(jobID string) string {
	return ShortID(jobID) + "_graph.png"
}

// URL is the path under which a rendered output is served.
func (l Layout) URL(jobID string, name string) string {
	return "/outputs/" + jobID + "/" + name
}

func (l Layout) WriteResult(result datastructures.PredictionResult) error {
	dir := l.OutputDir(result.JobID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "couldn't create output directory")
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return errors.Wrap(err, "couldn't marshal result")
	}
	return errors.Wrap(os.WriteFile(filepath.Join(dir, ResultsFile), data, 0644), "couldn't write result")
}

// ReadResult loads a result written by WriteResult. It returns nil when
// there is no result on disk.
func (l Layout) ReadResult(jobID string) (*datastructures.PredictionResult, error) {
	data, err := os.ReadFile(filepath.Join(l.OutputDir(jobID), ResultsFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "couldn't read result")
	}
	var result datastructures.PredictionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, errors.Wrap(err, "couldn't parse result")
	}
	return &result, nil
}

// RemoveUpload deletes the uploaded image of a job together with its
// directory.
func (l Layout) RemoveUpload(jobID string) error {
	return os.RemoveAll(l.UploadDir(jobID))
}

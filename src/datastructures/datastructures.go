package datastructures

// DetectedBox is a detector box normalized to the image size, center/size
// form. ClassID is an object id of the vocabulary.
type DetectedBox struct {
	CX      float32 `json:"cx"`
	CY      float32 `json:"cy"`
	W       float32 `json:"w"`
	H       float32 `json:"h"`
	ClassID int     `json:"class_id"`
}

// Corners returns the box as x1, y1, x2, y2 in normalized coordinates.
func (b DetectedBox) Corners() (float32, float32, float32, float32) {
	return b.CX - b.W/2, b.CY - b.H/2, b.CX + b.W/2, b.CY + b.H/2
}

// ObjectPrediction is one classified object. BBox is the refined
// [center x, center y, width, height] from the regression head.
type ObjectPrediction struct {
	Label   string     `json:"label"`
	LabelID int        `json:"label_id"`
	Score   float32    `json:"score"`
	BBox    [4]float32 `json:"bbox"`
}

// RelationshipPrediction is a directed edge between two entries of
// SceneGraph.Objects.
type RelationshipPrediction struct {
	SubjectID   int     `json:"subject_id"`
	ObjectID    int     `json:"object_id"`
	Predicate   string  `json:"predicate"`
	PredicateID int     `json:"predicate_id"`
	Score       float32 `json:"score"`
	Subject     string  `json:"subject"`
	Object      string  `json:"object"`
}

type SceneGraph struct {
	Objects       []ObjectPrediction       `json:"objects"`
	Relationships []RelationshipPrediction `json:"relationships"`
}

type ModelInfo struct {
	Build     int32    `json:"build"`
	Created   string   `json:"created"`
	TrainedOn []string `json:"trained_on"`
	BasedOn   string   `json:"based_on"`
}

type PredictionRequest struct {
	Uuid                string  `json:"uuid"`
	Filename            string  `json:"filename"`
	Created             int64   `json:"created"`
	ConfidenceThreshold float32 `json:"confidence_threshold"`
}

const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Failure reasons reported to clients.
const (
	ReasonNoObjectsDetected = "no_objects_detected"
	ReasonInternal          = "internal_error"
)

type PredictionResult struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
	Error  string `json:"error,omitempty"`
	SceneGraph
	AnnotatedImageURL string     `json:"annotated_image_url,omitempty"`
	GraphURL          string     `json:"graph_url,omitempty"`
	ModelInfo         *ModelInfo `json:"model_info,omitempty"`
	Created           int64      `json:"created"`
}

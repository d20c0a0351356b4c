package scenegraph

type State int

const (
	LoadingInputs State = iota
	Detecting
	ExtractingFeatures
	Classifying
	FilteringRelationships
	Done
	Failed
)

var stateNames = [...]string{
	LoadingInputs:          "LOADING_INPUTS",
	Detecting:              "DETECTING",
	ExtractingFeatures:     "EXTRACTING_FEATURES",
	Classifying:            "CLASSIFYING",
	FilteringRelationships: "FILTERING_RELATIONSHIPS",
	Done:                   "DONE",
	Failed:                 "FAILED",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

package classify

import (
	"errors"

	"github.com/Brownie44l1/plantid/internal/model"
	"github.com/Brownie44l1/plantid/internal/preprocess"
	"github.com/Brownie44l1/plantid/internal/rank"
	"github.com/Brownie44l1/plantid/internal/remote"
)

// ErrNotReady is returned when Classify is called before the model is loaded
// or while another classification is still running.
var ErrNotReady = errors.New("classifier is not ready")

// Phase is the tag of a State.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLoadingModel
	PhaseReady
	PhaseClassifying
	PhaseSuccess
	PhaseFailed
)

var phaseNames = map[Phase]string{
	PhaseIdle:         "idle",
	PhaseLoadingModel: "loading-model",
	PhaseReady:        "ready",
	PhaseClassifying:  "classifying",
	PhaseSuccess:      "success",
	PhaseFailed:       "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// MarshalText renders the phase by name in JSON payloads.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Kind classifies a failure for the presentation layer.
type Kind int

const (
	KindNone Kind = iota
	KindModelLoad
	KindPreprocess
	KindShapeMismatch
	KindEmptyVector
	KindNotReady
	KindInference
	KindRemoteInference
)

var kindNames = map[Kind]string{
	KindNone:            "",
	KindModelLoad:       "model_load",
	KindPreprocess:      "preprocess",
	KindShapeMismatch:   "shape_mismatch",
	KindEmptyVector:     "empty_vector",
	KindNotReady:        "not_ready",
	KindInference:       "inference",
	KindRemoteInference: "remote_inference",
}

var kindMessages = map[Kind]string{
	KindModelLoad:       "The plant classifier could not be loaded. Reload the page to try again.",
	KindPreprocess:      "That file could not be read as an image. Please upload a JPEG or PNG photo.",
	KindShapeMismatch:   "The image could not be prepared for the classifier.",
	KindEmptyVector:     "The classifier returned no usable result.",
	KindNotReady:        "The classifier is busy or still loading. Please wait and try again.",
	KindInference:       "The classifier failed on this image. Please try another photo.",
	KindRemoteInference: "An error occurred while predicting the species. Please try again.",
}

func (k Kind) String() string { return kindNames[k] }

// MarshalText renders the kind by name in JSON payloads.
func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Message is a short user-facing description of the failure.
func (k Kind) Message() string {
	if msg, ok := kindMessages[k]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

// KindOf maps a pipeline error to its Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, model.ErrModelLoad):
		return KindModelLoad
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, preprocess.ErrPreprocess):
		return KindPreprocess
	case errors.Is(err, model.ErrShapeMismatch):
		return KindShapeMismatch
	case errors.Is(err, rank.ErrEmptyVector):
		return KindEmptyVector
	case errors.Is(err, remote.ErrRemoteInference):
		return KindRemoteInference
	default:
		return KindInference
	}
}

// State is a snapshot of the controller. Prediction is set only in
// PhaseSuccess; Kind and Err only in PhaseFailed.
type State struct {
	Phase      Phase            `json:"phase"`
	Prediction *rank.Prediction `json:"prediction,omitempty"`
	Kind       Kind             `json:"error_kind,omitempty"`
	Err        error            `json:"-"`
}

// Message returns the user-facing error text for a failed state.
func (s State) Message() string {
	if s.Phase != PhaseFailed {
		return ""
	}
	return s.Kind.Message()
}

func failed(err error) State {
	return State{Phase: PhaseFailed, Kind: KindOf(err), Err: err}
}

func succeeded(p rank.Prediction) State {
	return State{Phase: PhaseSuccess, Prediction: &p}
}

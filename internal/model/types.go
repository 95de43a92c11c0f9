package model

import (
	"errors"
	"fmt"
	"slices"
)

var (
	// ErrModelLoad is returned when the model artifact is unreachable or malformed.
	ErrModelLoad = errors.New("model load failed")

	// ErrShapeMismatch is returned when a tensor does not match the model input contract.
	ErrShapeMismatch = errors.New("tensor shape does not match model input")

	// ErrInference is returned when the forward pass itself fails.
	ErrInference = errors.New("inference failed")
)

// DefaultLabels is the flower label set the bundled classifier was trained on.
// The order matches the model output and must not change.
var DefaultLabels = []string{"Daisy", "Dandelion", "Rose", "Sunflower", "Tulip"}

// DefaultImageSize is the square input edge of the bundled classifier.
const DefaultImageSize = 150

// Metadata is the sidecar that ships next to model.onnx.
type Metadata struct {
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
}

// normalize fills missing fields from the defaults and checks that the
// shapes and labels agree with each other.
func (m *Metadata) normalize(defaultLabels []string, defaultSize int) error {
	if len(m.Classes) == 0 {
		m.Classes = slices.Clone(defaultLabels)
	}
	if len(m.Classes) == 0 {
		return errors.New("metadata has no classes and no default labels are configured")
	}
	if m.ImageSize <= 0 {
		m.ImageSize = defaultSize
	}
	if len(m.InputShape) == 0 {
		if m.ImageSize <= 0 {
			return errors.New("metadata has neither input_shape nor image_size")
		}
		size := int64(m.ImageSize)
		m.InputShape = []int64{1, size, size, 3}
	}
	if len(m.OutputShape) == 0 {
		m.OutputShape = []int64{1, int64(len(m.Classes))}
	}
	if m.InputName == "" {
		m.InputName = "input"
	}
	if m.OutputName == "" {
		m.OutputName = "output"
	}

	if len(m.InputShape) != 4 {
		return fmt.Errorf("input_shape %v: expected 4 dimensions (batch, height, width, channels)", m.InputShape)
	}
	if m.InputShape[0] != 1 {
		return fmt.Errorf("input_shape %v: batch dimension must be 1", m.InputShape)
	}
	for _, d := range m.InputShape[1:] {
		if d <= 0 {
			return fmt.Errorf("input_shape %v: dimensions must be positive", m.InputShape)
		}
	}
	if m.InputShape[3] != 3 {
		return fmt.Errorf("input_shape %v: expected 3 colour channels", m.InputShape)
	}
	if n := m.OutputShape[len(m.OutputShape)-1]; n != int64(len(m.Classes)) {
		return fmt.Errorf("output_shape %v has %d classes, metadata lists %d labels", m.OutputShape, n, len(m.Classes))
	}
	return nil
}

// Runner executes one forward pass over a flattened NHWC input.
type Runner interface {
	Run(input []float32) ([]float32, error)
	Destroy() error
}

// Handle is a loaded classifier. It is immutable once created.
type Handle struct {
	inputShape []int
	labels     []string
	runner     Runner
}

// NewHandle builds a handle for a model taking inputs of shape H×W×C and
// producing one score per label.
func NewHandle(inputShape []int, labels []string, runner Runner) *Handle {
	return &Handle{
		inputShape: slices.Clone(inputShape),
		labels:     slices.Clone(labels),
		runner:     runner,
	}
}

// InputShape returns H, W, C.
func (h *Handle) InputShape() []int { return slices.Clone(h.inputShape) }

// BatchShape returns the full tensor shape the model accepts: [1, H, W, C].
func (h *Handle) BatchShape() []int { return append([]int{1}, h.inputShape...) }

// Labels returns the class labels, index-aligned with the model output.
func (h *Handle) Labels() []string { return slices.Clone(h.labels) }

// Close releases the underlying runtime session.
func (h *Handle) Close() error {
	if h == nil || h.runner == nil {
		return nil
	}
	return h.runner.Destroy()
}

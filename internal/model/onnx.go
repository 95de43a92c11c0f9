package model

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/phuslu/log"
	"github.com/viant/afs"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	modelFilename    = "model.onnx"
	metadataFilename = "metadata.json"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ortInit guards the process-wide onnxruntime environment.
var ortInit sync.Mutex

// ONNXLoader fetches a model bundle (model.onnx + metadata.json) from a local
// path or any URL afs understands and builds an onnxruntime session from it.
type ONNXLoader struct {
	URL              string
	SharedLibrary    string
	DefaultLabels    []string
	DefaultImageSize int

	fs afs.Service
}

// NewONNXLoader returns a loader for the bundle at url.
func NewONNXLoader(url, sharedLibrary string, labels []string, imageSize int) *ONNXLoader {
	return &ONNXLoader{
		URL:              url,
		SharedLibrary:    sharedLibrary,
		DefaultLabels:    slices.Clone(labels),
		DefaultImageSize: imageSize,
		fs:               afs.New(),
	}
}

// Load implements Loader.
func (l *ONNXLoader) Load(ctx context.Context) (*Handle, error) {
	meta, err := l.LoadMetadata(ctx)
	if err != nil {
		return nil, err
	}

	modelData, err := l.readFile(ctx, modelFilename)
	if err != nil {
		return nil, err
	}
	log.Info().Str("url", l.URL).Int("bytes", len(modelData)).Msg("model artifact fetched")

	session, err := newONNXSession(modelData, meta, l.SharedLibrary)
	if err != nil {
		return nil, err
	}

	shape := make([]int, 0, 3)
	for _, d := range meta.InputShape[1:] {
		shape = append(shape, int(d))
	}
	return NewHandle(shape, meta.Classes, session), nil
}

// LoadMetadata reads and validates metadata.json from the bundle.
func (l *ONNXLoader) LoadMetadata(ctx context.Context) (Metadata, error) {
	var meta Metadata
	data, err := l.readFile(ctx, metadataFilename)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("failed to parse metadata: %w", err)
	}
	if err := meta.normalize(l.DefaultLabels, l.DefaultImageSize); err != nil {
		return meta, fmt.Errorf("invalid metadata: %w", err)
	}
	return meta, nil
}

func (l *ONNXLoader) readFile(ctx context.Context, name string) ([]byte, error) {
	if l.fs == nil {
		l.fs = afs.New()
	}
	location := strings.TrimSuffix(l.URL, "/") + "/" + name
	file, err := l.fs.OpenURL(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", location, err)
	}
	data, err := io.ReadAll(file)
	return data, errors.Join(err, file.Close())
}

type onnxSession struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
}

func newONNXSession(modelData []byte, meta Metadata, sharedLibrary string) (*onnxSession, error) {
	ortInit.Lock()
	defer ortInit.Unlock()
	if !ort.IsInitialized() {
		if sharedLibrary != "" {
			ort.SetSharedLibraryPath(sharedLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.InputShape...))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(meta.OutputShape...))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create output tensor: %w", err), inputTensor.Destroy())
	}

	session, err := ort.NewAdvancedSessionWithONNXData(modelData,
		[]string{meta.InputName}, []string{meta.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor},
		nil)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("failed to create ONNX session: %w", err),
			inputTensor.Destroy(), outputTensor.Destroy())
	}

	return &onnxSession{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
	}, nil
}

func (s *onnxSession) Run(input []float32) ([]float32, error) {
	dst := s.inputTensor.GetData()
	if len(input) != len(dst) {
		return nil, fmt.Errorf("input has %d values, session expects %d", len(input), len(dst))
	}
	copy(dst, input)

	if err := s.session.Run(); err != nil {
		return nil, err
	}

	out := s.outputTensor.GetData()
	return slices.Clone(out), nil
}

func (s *onnxSession) Destroy() error {
	var errs []error
	if s.session != nil {
		errs = append(errs, s.session.Destroy())
	}
	if s.inputTensor != nil {
		errs = append(errs, s.inputTensor.Destroy())
	}
	if s.outputTensor != nil {
		errs = append(errs, s.outputTensor.Destroy())
	}
	ortInit.Lock()
	errs = append(errs, ort.DestroyEnvironment())
	ortInit.Unlock()
	return errors.Join(errs...)
}

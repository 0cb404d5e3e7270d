package model

import (
	"fmt"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/ducminhle1904/tradecore/internal/errors"
	"github.com/ducminhle1904/tradecore/pkg/types"
)

// ONNXConfig locates the runtime library and the exported classifier
type ONNXConfig struct {
	ModelPath    string `json:"model_path"`
	LibraryPath  string `json:"library_path"`
	WindowLength int    `json:"window_length"`
	InputName    string `json:"input_name"`
	OutputName   string `json:"output_name"`
}

// DefaultONNXConfig matches a (1, 60, 6) -> (1, 3) classifier
func DefaultONNXConfig(modelPath string) ONNXConfig {
	return ONNXConfig{
		ModelPath:    modelPath,
		WindowLength: 60,
		InputName:    "input",
		OutputName:   "output",
	}
}

var ortInit struct {
	once sync.Once
	err  error
}

// InitializeRuntime loads the onnxruntime shared library once per process
func InitializeRuntime(libPath string) error {
	ortInit.once.Do(func() {
		if libPath == "" {
			libPath = "/usr/lib/libonnxruntime.so"
			if runtime.GOOS == "windows" {
				libPath = "onnxruntime.dll"
			} else if runtime.GOOS == "darwin" {
				libPath = "libonnxruntime.dylib"
			}
		}
		ort.SetSharedLibraryPath(libPath)
		ortInit.err = ort.InitializeEnvironment()
	})
	return ortInit.err
}

// ONNXPredictor runs a three-class (sell, hold, buy) classifier. The session
// reuses bound tensors, so Predict calls are serialized.
type ONNXPredictor struct {
	cfg     ONNXConfig
	mu      sync.Mutex
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
}

// NewONNXPredictor loads the model and allocates its tensors
func NewONNXPredictor(cfg ONNXConfig) (*ONNXPredictor, error) {
	if cfg.ModelPath == "" || cfg.WindowLength < 1 {
		return nil, errors.NewConfigError("model", "NewONNXPredictor", "model_path and window_length are required")
	}
	if err := InitializeRuntime(cfg.LibraryPath); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCategoryConfiguration, "model", "InitializeRuntime")
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(1, int64(cfg.WindowLength), FeaturesPerBar),
		make([]float32, cfg.WindowLength*FeaturesPerBar))
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(cfg.ModelPath,
		[]string{cfg.InputName}, []string{cfg.OutputName},
		[]ort.Value{inputTensor}, []ort.Value{outputTensor}, nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return &ONNXPredictor{cfg: cfg, session: session, input: inputTensor, output: outputTensor}, nil
}

func (p *ONNXPredictor) Name() string      { return "onnx" }
func (p *ONNXPredictor) WindowLength() int { return p.cfg.WindowLength }

// Predict runs one inference over a flattened feature matrix
func (p *ONNXPredictor) Predict(symbol string, features []float32) (types.RuleVote, error) {
	want := p.cfg.WindowLength * FeaturesPerBar
	if len(features) != want {
		return types.RuleVote{}, errors.NewDataError("model", "Predict",
			fmt.Sprintf("expected %d features, got %d", want, len(features))).WithContext("symbol", symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session == nil {
		return types.RuleVote{}, fmt.Errorf("model closed")
	}
	copy(p.input.GetData(), features)
	if err := p.session.Run(); err != nil {
		return types.RuleVote{}, fmt.Errorf("inference failed: %w", err)
	}
	scores := append([]float32(nil), p.output.GetData()...)
	return voteFromClasses(p.Name(), scores)
}

// Close releases the session and tensors
func (p *ONNXPredictor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		p.session.Destroy()
		p.session = nil
	}
	if p.input != nil {
		p.input.Destroy()
		p.input = nil
	}
	if p.output != nil {
		p.output.Destroy()
		p.output = nil
	}
}

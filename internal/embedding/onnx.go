//go:build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/Khandelwalgov/AskPro/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

var onnxInputNames = []string{"input_ids", "attention_mask", "token_type_ids"}

// ONNXEmbedder runs a sentence-embedding model (all-MiniLM-L6-v2 and similar)
// through ONNX Runtime. The onnxruntime shared library must be loadable.
// One session is shared; Embed calls are serialized.
type ONNXEmbedder struct {
	mu         sync.Mutex
	session    *ort.AdvancedSession
	inputs     [3]*ort.Tensor[int64] // ids, mask, token types
	output     *ort.Tensor[float32]
	tokenizer  Tokenizer
	dimensions int
	maxTokens  int
}

// NewONNXEmbedder loads the model at modelPath, initializing the runtime
// environment on first use.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int) (*ONNXEmbedder, error) {
	switch {
	case modelPath == "":
		return nil, fmt.Errorf("onnx model path is required")
	case dimensions <= 0:
		return nil, fmt.Errorf("dimensions must be positive, got %d", dimensions)
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	e := &ONNXEmbedder{tokenizer: HashTokenizer{}, dimensions: dimensions, maxTokens: maxTokens}
	shape := ort.NewShape(1, int64(maxTokens))
	inputs := make([]ort.ArbitraryTensor, len(e.inputs))
	for i, name := range onnxInputNames {
		t, err := ort.NewTensor(shape, make([]int64, maxTokens))
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		e.inputs[i] = t
		inputs[i] = t
	}
	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, int64(dimensions)))
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}
	e.output = out

	e.session, err = ort.NewAdvancedSession(modelPath, onnxInputNames, []string{"output"},
		inputs, []ort.ArbitraryTensor{out}, nil)
	if err != nil {
		_ = e.Close()
		return nil, fmt.Errorf("create onnx session for %s: %w", modelPath, err)
	}
	return e, nil
}

func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("%w: onnx embedder is closed", ErrEmbeddingFailed)
	}

	ids, mask, types := e.tokenizer.Tokenize(text, e.maxTokens)
	for i, src := range [][]int64{ids, mask, types} {
		copy(e.inputs[i].GetData(), src)
	}
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("%w: onnx inference: %w", ErrEmbeddingFailed, err)
	}
	vec := make([]float32, e.dimensions)
	copy(vec, e.output.GetData())
	utils.NormalizeL2(vec)
	return vec, nil
}

// EmbedBatch runs the model once per text; the session has a fixed batch of one.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (e *ONNXEmbedder) Dimensions() int { return e.dimensions }

// Close destroys the session and its tensors. It is safe to call twice.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	if e.session != nil {
		err = e.session.Destroy()
		e.session = nil
	}
	for i, t := range e.inputs {
		if t != nil {
			_ = t.Destroy()
			e.inputs[i] = nil
		}
	}
	if e.output != nil {
		_ = e.output.Destroy()
		e.output = nil
	}
	return err
}

//go:build !cgo

package embedding

import "errors"

// ONNXEmbedder is unavailable without cgo.
type ONNXEmbedder struct {
	Embedder
}

func NewONNXEmbedder(string, int, int) (*ONNXEmbedder, error) {
	return nil, errors.New("onnx embedder requires cgo and the onnxruntime library")
}

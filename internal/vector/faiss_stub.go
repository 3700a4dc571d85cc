//go:build !faiss || !cgo

package vector

import (
	"context"
	"errors"
)

var errFAISSUnavailable = errors.New("faiss is not compiled in: build with -tags=faiss and the faiss_c library")

// FAISSIndex is a placeholder when the faiss build tag or cgo is missing.
// NewFAISSIndex always fails, so the methods are never reached in practice.
type FAISSIndex struct{}

func NewFAISSIndex(int) (*FAISSIndex, error) { return nil, errFAISSUnavailable }

func (*FAISSIndex) Type() string { return string(IndexTypeFAISS) }

func (*FAISSIndex) Add(context.Context, []string, [][]float32) error { return errFAISSUnavailable }

func (*FAISSIndex) Search(context.Context, []float32, int) ([]*VectorResult, error) {
	return nil, errFAISSUnavailable
}

func (*FAISSIndex) Remove(context.Context, []string) error { return errFAISSUnavailable }

func (*FAISSIndex) Dimensions() int { return 0 }

func (*FAISSIndex) Size() int { return 0 }

func (*FAISSIndex) Close() error { return nil }

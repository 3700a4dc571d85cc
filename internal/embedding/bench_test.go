package embedding

import (
	"context"
	"fmt"
	"testing"
)

func BenchmarkMockEmbedder_Embed(b *testing.B) {
	e := NewMockEmbedder(384)
	ctx := context.Background()
	for i := 0; i < b.N; i++ {
		_, _ = e.Embed(ctx, "how long do refunds take to arrive")
	}
}

// BenchmarkCachedEmbedder_EmbedBatch compares a batch served from the cache
// with one that misses on every text.
func BenchmarkCachedEmbedder_EmbedBatch(b *testing.B) {
	ctx := context.Background()
	texts := []string{"alpha", "beta", "gamma", "delta"}

	b.Run("hit", func(b *testing.B) {
		e := NewCachedEmbedder(NewMockEmbedder(384), 1000)
		_, _ = e.EmbedBatch(ctx, texts)
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			_, _ = e.EmbedBatch(ctx, texts)
		}
	})
	b.Run("miss", func(b *testing.B) {
		e := NewCachedEmbedder(NewMockEmbedder(384), 1000)
		batch := make([]string, len(texts))
		for i := 0; i < b.N; i++ {
			for j, t := range texts {
				batch[j] = fmt.Sprintf("%s-%d", t, i)
			}
			_, _ = e.EmbedBatch(ctx, batch)
		}
	})
}

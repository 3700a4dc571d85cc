package indexstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/Khandelwalgov/AskPro/internal/embedding"
	"github.com/Khandelwalgov/AskPro/internal/fileid"
	"github.com/Khandelwalgov/AskPro/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func testChunks(filename string, texts ...string) []models.Chunk {
	chunks := make([]models.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = models.Chunk{
			ID:       fmt.Sprintf("%s-%d", filename, i),
			Filename: filename,
			Position: i,
			Text:     text,
		}
	}
	return chunks
}

type failingEmbedder struct{ *embedding.MockEmbedder }

func (failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("model unavailable")
}

type shortEmbedder struct{ *embedding.MockEmbedder }

func (shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1}
	}
	return out, nil
}

func TestStore_CreateLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	emb := embedding.NewMockEmbedder(16)
	ctx := context.Background()
	texts := []string{"cats purr", "dogs bark", "birds sing", "fish swim"}

	created, err := s.Create(ctx, "alice", "pets.txt", testChunks("pets.txt", texts...), emb)
	if err != nil {
		t.Fatal(err)
	}
	if created.Size() != 4 || created.Dimensions() != 16 {
		t.Errorf("created Size=%d Dimensions=%d", created.Size(), created.Dimensions())
	}
	_ = created.Close()

	idx, err := s.Load(ctx, "alice", "pets.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if idx.Filename != "pets.txt" || idx.UserID != "alice" {
		t.Errorf("identity = %q/%q", idx.UserID, idx.Filename)
	}
	for i, text := range texts {
		q, _ := emb.Embed(ctx, text)
		results, err := idx.Search(ctx, q, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) == 0 || results[0].Text != text {
			t.Fatalf("query %q: top result %v", text, results)
		}
		if results[0].Score > 1e-6 {
			t.Errorf("self retrieval score = %g, want ~0", results[0].Score)
		}
		if results[0].Position != i || results[0].Filename != "pets.txt" {
			t.Errorf("result metadata %+v", results[0])
		}
	}
}

func TestStore_LoadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background(), "alice", "missing.txt")
	if !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound, got %v", err)
	}
}

func TestStore_LoadCorrupt(t *testing.T) {
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)

	corruptions := map[string]func([]byte) []byte{
		"garbage":   func([]byte) []byte { return []byte("not an index at all") },
		"empty":     func([]byte) []byte { return nil },
		"truncated": func(b []byte) []byte { return b[:len(b)/2] },
		"bit flip": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			out[len(out)-3] ^= 0xff
			return out
		},
		"bad version": func(b []byte) []byte {
			out := append([]byte(nil), b...)
			out[8] = 99
			return out
		},
		"trailing bytes": func(b []byte) []byte { return append(append([]byte(nil), b...), 0, 1, 2) },
	}
	for name, corrupt := range corruptions {
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t)
			idx, err := s.Create(ctx, "u", "f.txt", testChunks("f.txt", "one", "two"), emb)
			if err != nil {
				t.Fatal(err)
			}
			_ = idx.Close()
			_, path, _ := s.path("u", "f.txt")
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if err := os.WriteFile(path, corrupt(data), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := s.Load(ctx, "u", "f.txt"); !errors.Is(err, ErrIndexCorrupt) {
				t.Errorf("expected ErrIndexCorrupt, got %v", err)
			}
		})
	}
}

func TestStore_LoadRenamedArtifact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	idx, _ := s.Create(ctx, "u", "a.txt", testChunks("a.txt", "x"), embedding.NewMockEmbedder(4))
	_ = idx.Close()
	_, src, _ := s.path("u", "a.txt")
	_, dst, _ := s.path("u", "b.txt")
	if err := os.Rename(src, dst); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Load(ctx, "u", "b.txt"); !errors.Is(err, ErrIndexCorrupt) {
		t.Errorf("artifact under the wrong name should be corrupt, got %v", err)
	}
}

func TestStore_ListAll(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(4)

	empty, err := s.ListAll(ctx, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("unknown user: %v, %v", empty, err)
	}

	for _, name := range []string{"zeta.txt", "alpha.txt", "Mid file.md"} {
		idx, err := s.Create(ctx, "alice", name, testChunks(name, "text of "+name), emb)
		if err != nil {
			t.Fatal(err)
		}
		_ = idx.Close()
	}
	idx, _ := s.Create(ctx, "bob", "secret.txt", testChunks("secret.txt", "bob only"), emb)
	_ = idx.Close()

	dir, _ := s.userDir("alice")
	_ = os.WriteFile(filepath.Join(dir, tempPrefix+"leftover"), []byte("partial"), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "README"), []byte("x"), 0o644)

	names, err := s.ListAll(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Mid file.md", "alpha.txt", "zeta.txt"}
	if strings.Join(names, "|") != strings.Join(want, "|") {
		t.Errorf("ListAll = %v, want %v", names, want)
	}

	bobNames, _ := s.ListAll(ctx, "bob")
	if len(bobNames) != 1 || bobNames[0] != "secret.txt" {
		t.Errorf("bob sees %v", bobNames)
	}
}

func TestStore_UserIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(4)
	idx, _ := s.Create(ctx, "alice", "notes.txt", testChunks("notes.txt", "alice's notes"), emb)
	_ = idx.Close()

	if _, err := s.Load(ctx, "bob", "notes.txt"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("bob must not load alice's index, got %v", err)
	}
	if err := s.Delete(ctx, "bob", "notes.txt"); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("alice", "notes.txt"); !ok {
		t.Error("bob's delete removed alice's index")
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	idx, _ := s.Create(ctx, "u", "f.txt", testChunks("f.txt", "hello"), embedding.NewMockEmbedder(4))
	_ = idx.Close()

	for i := 0; i < 2; i++ {
		if err := s.Delete(ctx, "u", "f.txt"); err != nil {
			t.Fatalf("delete #%d: %v", i+1, err)
		}
	}
	if _, err := s.Load(ctx, "u", "f.txt"); !errors.Is(err, ErrIndexNotFound) {
		t.Errorf("expected ErrIndexNotFound after delete, got %v", err)
	}
	names, _ := s.ListAll(ctx, "u")
	if len(names) != 0 {
		t.Errorf("ListAll after delete = %v", names)
	}
}

func TestStore_CreateReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(4)
	idx, _ := s.Create(ctx, "u", "f.txt", testChunks("f.txt", "old"), emb)
	_ = idx.Close()
	idx, _ = s.Create(ctx, "u", "f.txt", testChunks("f.txt", "new one", "new two"), emb)
	_ = idx.Close()

	err := s.WithIndex(ctx, "u", "f.txt", func(idx *Index) error {
		if idx.Size() != 2 || idx.Chunks()[0].Text != "new one" {
			t.Errorf("expected replaced index, got %d chunks", idx.Size())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	names, _ := s.ListAll(ctx, "u")
	if len(names) != 1 {
		t.Errorf("re-create should not duplicate, got %v", names)
	}
}

func TestStore_CreateFailureKeepsPrevious(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	good := embedding.NewMockEmbedder(4)
	idx, _ := s.Create(ctx, "u", "f.txt", testChunks("f.txt", "original"), good)
	_ = idx.Close()

	_, err := s.Create(ctx, "u", "f.txt", testChunks("f.txt", "replacement"), failingEmbedder{good})
	if !errors.Is(err, embedding.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
	_, err = s.Create(ctx, "u", "f.txt", testChunks("f.txt", "replacement"), shortEmbedder{good})
	if !errors.Is(err, embedding.ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed for wrong dimensions, got %v", err)
	}

	err = s.WithIndex(ctx, "u", "f.txt", func(idx *Index) error {
		if idx.Chunks()[0].Text != "original" {
			t.Errorf("previous index was replaced: %q", idx.Chunks()[0].Text)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	dir, _ := s.userDir("u")
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("expected only the artifact in the user dir, got %d entries", len(entries))
	}
}

func TestStore_CreateRejects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(4)
	if _, err := s.Create(ctx, "u", "f.txt", nil, emb); !errors.Is(err, ErrNoChunks) {
		t.Errorf("expected ErrNoChunks, got %v", err)
	}
	if _, err := s.Create(ctx, "", "f.txt", testChunks("f.txt", "x"), emb); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty user, got %v", err)
	}
	if _, err := s.Create(ctx, "u", "", testChunks("", "x"), emb); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("expected ErrInvalidKey for empty filename, got %v", err)
	}
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := s.Create(cancelled, "u", "f.txt", testChunks("f.txt", "x"), emb); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if ok, _ := s.Exists("u", "f.txt"); ok {
		t.Error("cancelled create must not persist")
	}
}

func TestStore_BatchedEmbedding(t *testing.T) {
	s, err := New(t.TempDir(), WithBatchSize(3))
	if err != nil {
		t.Fatal(err)
	}
	emb := embedding.NewMockEmbedder(8)
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = fmt.Sprintf("passage number %d", i)
	}
	idx, err := s.Create(context.Background(), "u", "f.txt", testChunks("f.txt", texts...), emb)
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	q, _ := emb.Embed(context.Background(), texts[7])
	results, _ := idx.Search(context.Background(), q, 1)
	if len(results) != 1 || results[0].Text != texts[7] {
		t.Errorf("batched vectors misaligned: %v", results)
	}
}

func TestStore_ConcurrentCreateDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	emb := embedding.NewMockEmbedder(8)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for w := 0; w < 4; w++ {
		wg.Add(3)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 15; i++ {
				idx, err := s.Create(ctx, "u", "shared.txt", testChunks("shared.txt", fmt.Sprintf("v%d-%d", w, i), "tail"), emb)
				if err != nil {
					errs <- err
					return
				}
				_ = idx.Close()
			}
		}(w)
		go func() {
			defer wg.Done()
			for i := 0; i < 15; i++ {
				if err := s.Delete(ctx, "u", "shared.txt"); err != nil {
					errs <- err
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 30; i++ {
				idx, err := s.Load(ctx, "u", "shared.txt")
				if errors.Is(err, ErrIndexNotFound) {
					continue
				}
				if err != nil {
					errs <- err
					return
				}
				if idx.Size() != 2 {
					errs <- fmt.Errorf("partial index with %d chunks", idx.Size())
				}
				_ = idx.Close()
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	if n := s.locks.Len(); n != 0 {
		t.Errorf("lock table not drained: %d", n)
	}
}

func TestStore_CleanupTemp(t *testing.T) {
	s := newTestStore(t)
	dir, _ := s.userDir("u")
	_ = os.MkdirAll(dir, 0o755)
	_ = os.WriteFile(filepath.Join(dir, tempPrefix+"a"), nil, 0o644)
	_ = os.WriteFile(filepath.Join(dir, tempPrefix+"b"), nil, 0o644)
	name, _ := fileid.FileName("keep.txt")
	_ = os.WriteFile(filepath.Join(dir, name), nil, 0o644)

	n, err := s.CleanupTemp()
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("removed %d, want 2", n)
	}
	if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
		t.Error("artifact should be kept")
	}
}

func TestIndex_CloseIdempotent(t *testing.T) {
	s := newTestStore(t)
	idx, err := s.Create(context.Background(), "u", "f.txt", testChunks("f.txt", "x"), embedding.NewMockEmbedder(4))
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Fatal(err)
	}
	if err := idx.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestStore_SnapshotRestore(t *testing.T) {
	s := newTestStore(t)
	emb := embedding.NewMockEmbedder(4)
	ctx := context.Background()

	missing, err := s.Snapshot("u", "new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if missing.Existed() {
		t.Error("snapshot of a missing index should report Existed() == false")
	}
	if _, err := s.Create(ctx, "u", "new.txt", testChunks("new.txt", "fresh"), emb); err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(ctx, missing); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Exists("u", "new.txt"); ok {
		t.Error("restoring a missing snapshot should remove the index")
	}

	if _, err := s.Create(ctx, "u", "doc.txt", testChunks("doc.txt", "old"), emb); err != nil {
		t.Fatal(err)
	}
	prev, err := s.Snapshot("u", "doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, "u", "doc.txt", testChunks("doc.txt", "new", "newer"), emb); err != nil {
		t.Fatal(err)
	}
	if err := s.Restore(ctx, prev); err != nil {
		t.Fatal(err)
	}
	idx, err := s.Load(ctx, "u", "doc.txt")
	if err != nil {
		t.Fatal(err)
	}
	defer idx.Close()
	if chunks := idx.Chunks(); len(chunks) != 1 || chunks[0].Text != "old" {
		t.Errorf("chunks after restore = %+v, want the old index", chunks)
	}
}

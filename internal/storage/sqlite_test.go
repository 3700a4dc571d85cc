package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/Khandelwalgov/AskPro/internal/models"
)

func newTestCatalog(t *testing.T) *SQLiteCatalog {
	t.Helper()
	cat, err := NewSQLiteCatalog(filepath.Join(t.TempDir(), "nested", "catalog.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = cat.Close() })
	return cat
}

func TestSQLiteCatalog_CRUD(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	rec := &models.FileRecord{
		UserID:   "alice",
		Filename: "notes.txt",
		Status:   models.FileStatusPending,
	}
	if err := cat.UpsertFile(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
		t.Error("timestamps should be set")
	}
	created := rec.CreatedAt

	got, err := cat.GetFile(ctx, "alice", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.FileStatusPending {
		t.Errorf("status = %q, want pending", got.Status)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v, want %v", got.CreatedAt, created)
	}

	time.Sleep(2 * time.Millisecond)
	update := &models.FileRecord{
		UserID:      "alice",
		Filename:    "notes.txt",
		Status:      models.FileStatusIndexed,
		ChunkCount:  7,
		Dimensions:  384,
		SourceSize:  1234,
		SourceMtime: 42,
	}
	if err := cat.UpsertFile(ctx, update); err != nil {
		t.Fatal(err)
	}
	got, err = cat.GetFile(ctx, "alice", "notes.txt")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.FileStatusIndexed || got.ChunkCount != 7 || got.Dimensions != 384 {
		t.Errorf("got %+v", got)
	}
	if got.SourceSize != 1234 || got.SourceMtime != 42 {
		t.Errorf("source fields not stored: %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("created_at changed on update: %v -> %v", created, got.CreatedAt)
	}
	if !got.UpdatedAt.After(created) {
		t.Errorf("updated_at %v should be after %v", got.UpdatedAt, created)
	}

	if err := cat.DeleteFile(ctx, "alice", "notes.txt"); err != nil {
		t.Fatal(err)
	}
	_, err = cat.GetFile(ctx, "alice", "notes.txt")
	if !errors.Is(err, ErrFileNotFound) {
		t.Errorf("expected ErrFileNotFound after delete, got %v", err)
	}
	if err := cat.DeleteFile(ctx, "alice", "notes.txt"); err != nil {
		t.Errorf("second delete: %v", err)
	}
}

func TestSQLiteCatalog_ListIsPerUser(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	for _, rec := range []*models.FileRecord{
		{UserID: "alice", Filename: "b.md", Status: models.FileStatusIndexed},
		{UserID: "alice", Filename: "a.txt", Status: models.FileStatusFailed, Error: "boom"},
		{UserID: "bob", Filename: "a.txt", Status: models.FileStatusIndexed},
	} {
		if err := cat.UpsertFile(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	list, err := cat.ListFiles(ctx, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 files for alice, got %d", len(list))
	}
	if list[0].Filename != "a.txt" || list[1].Filename != "b.md" {
		t.Errorf("unexpected order: %s, %s", list[0].Filename, list[1].Filename)
	}
	if list[0].Error != "boom" {
		t.Errorf("error not stored: %+v", list[0])
	}

	list, err = cat.ListFiles(ctx, "carol")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 0 {
		t.Errorf("expected no files for carol, got %d", len(list))
	}
}

func TestSQLiteCatalog_Counts(t *testing.T) {
	cat := newTestCatalog(t)
	ctx := context.Background()

	n, err := cat.CountFiles(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountFiles: %v, %d", err, n)
	}
	n, err = cat.CountChunks(ctx)
	if err != nil || n != 0 {
		t.Errorf("CountChunks on empty catalog: %v, %d", err, n)
	}

	_ = cat.UpsertFile(ctx, &models.FileRecord{UserID: "u", Filename: "a", Status: models.FileStatusIndexed, ChunkCount: 3})
	_ = cat.UpsertFile(ctx, &models.FileRecord{UserID: "u", Filename: "b", Status: models.FileStatusIndexed, ChunkCount: 4})
	_ = cat.UpsertFile(ctx, &models.FileRecord{UserID: "u", Filename: "c", Status: models.FileStatusFailed, ChunkCount: 9})

	n, _ = cat.CountFiles(ctx)
	if n != 3 {
		t.Errorf("expected 3 files, got %d", n)
	}
	n, _ = cat.CountChunks(ctx)
	if n != 7 {
		t.Errorf("expected 7 indexed chunks, got %d", n)
	}
}

func TestSQLiteCatalog_RequiresKey(t *testing.T) {
	cat := newTestCatalog(t)
	if err := cat.UpsertFile(context.Background(), &models.FileRecord{UserID: "u"}); err == nil {
		t.Error("expected error for missing filename")
	}
}

func TestSQLiteCatalog_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.db")
	ctx := context.Background()

	cat, err := NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := cat.UpsertFile(ctx, &models.FileRecord{UserID: "u", Filename: "f", Status: models.FileStatusIndexed}); err != nil {
		t.Fatal(err)
	}
	if err := cat.Close(); err != nil {
		t.Fatal(err)
	}

	cat, err = NewSQLiteCatalog(path)
	if err != nil {
		t.Fatal(err)
	}
	defer cat.Close()
	if _, err := cat.GetFile(ctx, "u", "f"); err != nil {
		t.Errorf("record lost after reopen: %v", err)
	}
}

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/haasonsaas/easel/internal/history"
	"github.com/haasonsaas/easel/pkg/models"
)

func testDoc(id, name string) *models.Document {
	return &models.Document{
		ID:   id,
		Name: name,
		Items: []models.Item{
			{ID: "a", Kind: models.ItemText, X: 1, Y: 2, Width: 100, Height: 40, Text: "hello"},
		},
	}
}

func testStack(t *testing.T) *history.Stack {
	t.Helper()
	stack := history.NewStack()
	stack.Push(history.AddObject{Item: models.Item{ID: "a", Kind: models.ItemText, Text: "hello"}})
	stack.Push(history.UpdateText{ID: "a", OldText: "hello", NewText: "edited"})
	return stack
}

// runStoreConformance exercises the Store contract shared by every backend.
func runStoreConformance(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("probe missing", func(t *testing.T) {
		if _, err := s.ModifiedAt(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("create get", func(t *testing.T) {
		doc := testDoc("doc-1", "first")
		if err := s.Create(ctx, doc); err != nil {
			t.Fatalf("Create: %v", err)
		}
		if doc.CreatedAt.IsZero() || doc.ModifiedAt.IsZero() {
			t.Fatalf("Create did not assign timestamps: %+v", doc)
		}

		if err := s.Create(ctx, testDoc("doc-1", "again")); !errors.Is(err, ErrAlreadyExists) {
			t.Fatalf("expected ErrAlreadyExists, got %v", err)
		}

		got, err := s.Get(ctx, "doc-1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Name != "first" || len(got.Items) != 1 || got.Items[0].Text != "hello" {
			t.Fatalf("unexpected document: %+v", got)
		}
	})

	t.Run("put preserves modified at", func(t *testing.T) {
		at := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
		doc := testDoc("doc-2", "second")
		doc.ModifiedAt = at
		saved, err := s.Put(ctx, doc)
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if !saved.Equal(at) {
			t.Fatalf("expected Put to keep client modifiedAt %v, got %v", at, saved)
		}
		probe, err := s.ModifiedAt(ctx, "doc-2")
		if err != nil {
			t.Fatalf("ModifiedAt: %v", err)
		}
		if !probe.Equal(at) {
			t.Fatalf("expected probe %v, got %v", at, probe)
		}
	})

	t.Run("put assigns modified at when zero", func(t *testing.T) {
		before := time.Now().Add(-time.Second)
		saved, err := s.Put(ctx, testDoc("doc-3", "third"))
		if err != nil {
			t.Fatalf("Put: %v", err)
		}
		if saved.Before(before) {
			t.Fatalf("expected fresh modifiedAt, got %v", saved)
		}
	})

	t.Run("list order", func(t *testing.T) {
		older := testDoc("doc-old", "older")
		older.ModifiedAt = time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
		if _, err := s.Put(ctx, older); err != nil {
			t.Fatalf("Put older: %v", err)
		}

		infos, err := s.List(ctx)
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(infos) < 2 {
			t.Fatalf("expected several documents, got %d", len(infos))
		}
		if infos[len(infos)-1].ID != "doc-old" {
			t.Fatalf("expected oldest last, got %v", infos)
		}
		for i := 1; i < len(infos); i++ {
			if infos[i].ModifiedAt.After(infos[i-1].ModifiedAt) {
				t.Fatalf("list not sorted newest first: %v", infos)
			}
		}
	})

	t.Run("history round trip", func(t *testing.T) {
		if _, err := s.GetHistory(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound before first save, got %v", err)
		}

		stack := testStack(t)
		if err := s.PutHistory(ctx, "doc-1", stack); err != nil {
			t.Fatalf("PutHistory: %v", err)
		}
		got, err := s.GetHistory(ctx, "doc-1")
		if err != nil {
			t.Fatalf("GetHistory: %v", err)
		}
		if got.Len() != stack.Len() || got.Index() != stack.Index() {
			t.Fatalf("history shape mismatch: len=%d/%d index=%d/%d",
				got.Len(), stack.Len(), got.Index(), stack.Index())
		}
	})

	t.Run("history requires document", func(t *testing.T) {
		if err := s.PutHistory(ctx, "ghost", testStack(t)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := s.Delete(ctx, "doc-1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, err := s.Get(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
		if _, err := s.GetHistory(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected history deleted with document, got %v", err)
		}
		if err := s.Delete(ctx, "doc-1"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on double delete, got %v", err)
		}
	})
}

func TestMemoryStoreConformance(t *testing.T) {
	runStoreConformance(t, NewMemoryStore())
}

func TestSQLiteStoreConformance(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "easel.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	runStoreConformance(t, s)
}

func TestMemoryStoreCorruptHistory(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Create(ctx, testDoc("doc-1", "x")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	s.mu.Lock()
	s.histories["doc-1"] = []byte(`{"records":[{"type":"warp"}],"currentIndex":0}`)
	s.mu.Unlock()

	if _, err := s.GetHistory(ctx, "doc-1"); !errors.Is(err, ErrCorruptHistory) {
		t.Fatalf("expected ErrCorruptHistory, got %v", err)
	}
}

func TestSQLiteStoreCorruptHistory(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "easel.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Create(ctx, testDoc("doc-1", "x")); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO histories (document_id, payload) VALUES (?, ?)`,
		"doc-1", `not json`); err != nil {
		t.Fatalf("inject corrupt payload: %v", err)
	}

	if _, err := s.GetHistory(ctx, "doc-1"); !errors.Is(err, ErrCorruptHistory) {
		t.Fatalf("expected ErrCorruptHistory, got %v", err)
	}
}

func TestSQLiteStoreReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "easel.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	doc := testDoc("doc-1", "persisted")
	doc.ModifiedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.Put(ctx, doc); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.PutHistory(ctx, "doc-1", testStack(t)); err != nil {
		t.Fatalf("PutHistory: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	got, err := reopened.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Name != "persisted" || !got.ModifiedAt.Equal(doc.ModifiedAt) {
		t.Fatalf("unexpected document after reopen: %+v", got)
	}
	stack, err := reopened.GetHistory(ctx, "doc-1")
	if err != nil {
		t.Fatalf("GetHistory after reopen: %v", err)
	}
	if stack.Len() != 2 {
		t.Fatalf("expected 2 history records, got %d", stack.Len())
	}
}

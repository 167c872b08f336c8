// Package storetest is a conformance suite for store.Repository drivers.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dankoteck/extremely-simple-todo-app/internal/store"
	"github.com/dankoteck/extremely-simple-todo-app/internal/todo"
)

// Factory returns an empty repository. The suite closes it.
type Factory func(t *testing.T) store.Repository

// Run exercises every Repository operation against repos built by newRepo.
func Run(t *testing.T, newRepo Factory) {
	t.Helper()

	t.Run("ListByUserFiltersAndOrders", func(t *testing.T) {
		repo := open(t, newRepo)
		ctx := context.Background()

		base := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		mustCreate(t, repo, todo.Todo{ID: "b", Title: "second", UserID: "alice", CreatedAt: base.Add(time.Minute)})
		mustCreate(t, repo, todo.Todo{ID: "a", Title: "first", UserID: "alice", CreatedAt: base})
		mustCreate(t, repo, todo.Todo{ID: "c", Title: "other", UserID: "bob", CreatedAt: base})

		got, err := repo.ListByUser(ctx, "alice")
		if err != nil {
			t.Fatalf("ListByUser: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("ListByUser: got %d todos, want 2", len(got))
		}
		for _, td := range got {
			if td.UserID != "alice" {
				t.Errorf("ListByUser leaked todo %q of %q", td.ID, td.UserID)
			}
		}
		if got[0].ID != "a" || got[1].ID != "b" {
			t.Errorf("ListByUser order: got %q,%q want a,b", got[0].ID, got[1].ID)
		}
		if got[0].Title != "first" || got[0].Completed {
			t.Errorf("ListByUser: unexpected row %+v", got[0])
		}
		if !got[0].CreatedAt.Equal(base) {
			t.Errorf("CreatedAt: got %v, want %v", got[0].CreatedAt, base)
		}

		empty, err := repo.ListByUser(ctx, "nobody")
		if err != nil {
			t.Fatalf("ListByUser(nobody): %v", err)
		}
		if empty == nil || len(empty) != 0 {
			t.Errorf("ListByUser(nobody): got %#v, want empty slice", empty)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		repo := open(t, newRepo)
		mustCreate(t, repo, todo.Todo{ID: "dup", Title: "x", UserID: "alice", CreatedAt: time.Now().UTC()})
		err := repo.Create(context.Background(), todo.Todo{ID: "dup", Title: "y", UserID: "alice", CreatedAt: time.Now().UTC()})
		if !errors.Is(err, store.ErrConflict) {
			t.Errorf("Create duplicate: got %v, want ErrConflict", err)
		}
	})

	t.Run("SetCompleted", func(t *testing.T) {
		repo := open(t, newRepo)
		ctx := context.Background()
		mustCreate(t, repo, todo.Todo{ID: "t1", Title: "milk", UserID: "alice", CreatedAt: time.Now().UTC()})

		if err := repo.SetCompleted(ctx, "alice", "t1", true); err != nil {
			t.Fatalf("SetCompleted: %v", err)
		}
		got := list(t, repo, "alice")
		if !got[0].Completed {
			t.Error("SetCompleted(true) not persisted")
		}

		if err := repo.SetCompleted(ctx, "", "t1", false); err != nil {
			t.Fatalf("SetCompleted without owner: %v", err)
		}
		if list(t, repo, "alice")[0].Completed {
			t.Error("SetCompleted(false) not persisted")
		}

		if err := repo.SetCompleted(ctx, "bob", "t1", true); !errors.Is(err, store.ErrForbidden) {
			t.Errorf("SetCompleted by non-owner: got %v, want ErrForbidden", err)
		}
		if list(t, repo, "alice")[0].Completed {
			t.Error("SetCompleted by non-owner changed the row")
		}

		if err := repo.SetCompleted(ctx, "alice", "missing", true); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("SetCompleted missing: got %v, want ErrNotFound", err)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		repo := open(t, newRepo)
		ctx := context.Background()
		mustCreate(t, repo, todo.Todo{ID: "t1", Title: "milk", UserID: "alice", CreatedAt: time.Now().UTC()})
		mustCreate(t, repo, todo.Todo{ID: "t2", Title: "eggs", UserID: "alice", CreatedAt: time.Now().UTC()})

		if err := repo.Delete(ctx, "bob", "t1"); !errors.Is(err, store.ErrForbidden) {
			t.Errorf("Delete by non-owner: got %v, want ErrForbidden", err)
		}
		if err := repo.Delete(ctx, "alice", "t1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if err := repo.Delete(ctx, "alice", "t1"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("Delete twice: got %v, want ErrNotFound", err)
		}
		if err := repo.Delete(ctx, "", "t2"); err != nil {
			t.Fatalf("Delete without owner: %v", err)
		}
		if got := list(t, repo, "alice"); len(got) != 0 {
			t.Errorf("after deletes: got %d todos, want 0", len(got))
		}
	})
}

func open(t *testing.T, newRepo Factory) store.Repository {
	t.Helper()
	repo := newRepo(t)
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return repo
}

func mustCreate(t *testing.T, repo store.Repository, td todo.Todo) {
	t.Helper()
	if err := repo.Create(context.Background(), td); err != nil {
		t.Fatalf("Create %q: %v", td.ID, err)
	}
}

func list(t *testing.T, repo store.Repository, user string) []todo.Todo {
	t.Helper()
	got, err := repo.ListByUser(context.Background(), user)
	if err != nil {
		t.Fatalf("ListByUser: %v", err)
	}
	return got
}

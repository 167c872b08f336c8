package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/dankoteck/extremely-simple-todo-app/internal/store"
	"github.com/dankoteck/extremely-simple-todo-app/internal/store/storetest"
)

// Set TODO_TEST_POSTGRES_DSN to run these against a scratch database.
// The todos table is truncated before every case.
func TestConformance(t *testing.T) {
	dsn := os.Getenv("TODO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TODO_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) store.Repository {
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		if err != nil {
			t.Fatalf("Open: %v", err)
		}
		if _, err := s.pool.Exec(ctx, "truncate public.todos"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestOpenInvalidDSN(t *testing.T) {
	if _, err := Open(context.Background(), "postgres://%zz"); err == nil {
		t.Fatal("expected an error for a malformed dsn")
	}
}

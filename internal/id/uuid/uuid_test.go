// Package uuid includes tests for the session id generator.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestGeneratorNewID ensures generated IDs are unique and valid UUIDs.
func TestGeneratorNewID(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	id2, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected unique IDs, got %s and %s", id1, id2)
	}
	if _, err := goUUID.Parse(id1); err != nil {
		t.Fatalf("id1 not valid UUID: %v", err)
	}
	if _, err := goUUID.Parse(id2); err != nil {
		t.Fatalf("id2 not valid UUID: %v", err)
	}
}

func TestGeneratorTimeOrdered(t *testing.T) {
	t.Parallel()

	gen := New()
	id1, _ := gen.NewID()
	id2, _ := gen.NewID()
	u1 := goUUID.MustParse(id1)
	if u1.Version() != 7 {
		t.Fatalf("expected version 7, got %d", u1.Version())
	}
	if id1 >= id2 {
		t.Fatalf("expected %s < %s", id1, id2)
	}
}

func TestValid(t *testing.T) {
	t.Parallel()

	id, _ := New().NewID()
	if !Valid(id) {
		t.Fatalf("expected %s to be valid", id)
	}
	if Valid("not-a-session") {
		t.Fatal("expected invalid id to be rejected")
	}
}

package store

import (
	"fmt"
	"math"
	"testing"
)

func TestAssociationStore(t *testing.T) {
	db := setupTestDB(t)
	as := NewAssociationStore(db, 20)

	t.Run("Canonical pair symmetry", func(t *testing.T) {
		if err := as.Upsert("vm", "backup", 1.0, "related"); err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		if err := as.Upsert("backup", "vm", 1.0, ""); err != nil {
			t.Fatalf("reversed upsert failed: %v", err)
		}

		count, _ := as.Count()
		if count != 1 {
			t.Fatalf("expected a single edge for both orders, got %d", count)
		}

		a, _ := as.Get("vm", "backup")
		b, _ := as.Get("backup", "vm")
		if a == nil || b == nil || a.ID != b.ID {
			t.Fatal("expected both orders to address the same edge")
		}
		if a.RelationshipType != "related" {
			t.Fatalf("relationship type lost on re-assert: %q", a.RelationshipType)
		}
	})

	t.Run("Blend converges toward incoming and stays in bounds", func(t *testing.T) {
		as.Upsert("node", "update", 0.2, "")
		for i := 0; i < 20; i++ {
			if err := as.Upsert("node", "update", 1.0, ""); err != nil {
				t.Fatalf("re-assert failed: %v", err)
			}
			edge, _ := as.Get("node", "update")
			if edge.Strength < 0.0 || edge.Strength > 1.0 {
				t.Fatalf("strength left [0,1]: %f", edge.Strength)
			}
		}
		edge, _ := as.Get("node", "update")
		if math.Abs(edge.Strength-1.0) > 0.01 {
			t.Fatalf("expected convergence toward 1.0, got %f", edge.Strength)
		}
	})

	t.Run("Graph bounded to cap with weakest evicted", func(t *testing.T) {
		db2 := setupTestDB(t)
		as2 := NewAssociationStore(db2, 20)

		for i := 0; i < 30; i++ {
			strength := float64(i+1) / 30.0
			if err := as2.Upsert(fmt.Sprintf("t%d", i), fmt.Sprintf("u%d", i), strength, ""); err != nil {
				t.Fatalf("upsert %d failed: %v", i, err)
			}
		}

		count, _ := as2.Count()
		if count != 20 {
			t.Fatalf("expected graph capped at 20, got %d", count)
		}

		// The weakest edges must be gone.
		gone, _ := as2.Get("t0", "u0")
		if gone != nil {
			t.Fatal("expected weakest edge evicted")
		}
		kept, _ := as2.Get("t29", "u29")
		if kept == nil {
			t.Fatal("expected strongest edge retained")
		}
	})

	t.Run("Related ordered by strength", func(t *testing.T) {
		db3 := setupTestDB(t)
		as3 := NewAssociationStore(db3, 20)
		as3.Upsert("vm", "backup", 0.9, "")
		as3.Upsert("vm", "storage", 0.5, "")
		as3.Upsert("vm", "update", 0.7, "")

		related, err := as3.Related("vm", 3)
		if err != nil {
			t.Fatalf("related failed: %v", err)
		}
		if len(related) != 3 {
			t.Fatalf("expected 3 neighbors, got %d", len(related))
		}
		if related[0].Topic != "backup" || related[1].Topic != "update" || related[2].Topic != "storage" {
			t.Fatalf("wrong order: %+v", related)
		}
	})

	t.Run("Strength clamped on insert", func(t *testing.T) {
		as.Upsert("a", "b", 3.5, "")
		edge, _ := as.Get("a", "b")
		if edge.Strength != 1.0 {
			t.Fatalf("expected clamp to 1.0, got %f", edge.Strength)
		}
	})
}

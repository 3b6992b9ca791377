package store

import (
	"fmt"
	"testing"

	"github.com/virtadmin/convomem/internal/models"
)

func TestMemoryStore(t *testing.T) {
	db := setupTestDB(t)
	ms := NewMemoryStore(db, 10)

	t.Run("Upsert identity increments access count", func(t *testing.T) {
		id1, err := ms.Upsert("alice", "vm", "vm-100 is running", nil, 1.0)
		if err != nil {
			t.Fatalf("upsert failed: %v", err)
		}
		id2, err := ms.Upsert("alice", "vm", "vm-100 is running", nil, 1.0)
		if err != nil {
			t.Fatalf("second upsert failed: %v", err)
		}
		if id1 != id2 {
			t.Fatalf("expected same row, got %d and %d", id1, id2)
		}

		count, err := ms.CountByTopic("alice", "vm")
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 1 {
			t.Fatalf("expected 1 row, got %d", count)
		}

		items, _ := ms.ByTopic("alice", "vm", 10)
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if items[0].AccessCount != 1 {
			t.Fatalf("expected access count 1 after re-upsert, got %d", items[0].AccessCount)
		}
	})

	t.Run("Upsert refreshes importance and entities", func(t *testing.T) {
		ms.Upsert("bob", "backup", "nightly backups enabled", nil, 0.5)
		ms.Upsert("bob", "backup", "nightly backups enabled", models.Entities{"vm_name": "vm-7"}, 0.9)

		items, _ := ms.ByTopic("bob", "backup", 10)
		if len(items) != 1 {
			t.Fatalf("expected 1 item, got %d", len(items))
		}
		if items[0].Importance != 0.9 {
			t.Fatalf("expected importance refreshed to 0.9, got %f", items[0].Importance)
		}
		if items[0].Entities.String("vm_name") != "vm-7" {
			t.Fatalf("expected entities refreshed, got %+v", items[0].Entities)
		}
	})

	t.Run("Bucket bounded to cap with weakest evicted", func(t *testing.T) {
		for i := 0; i < 15; i++ {
			imp := float64(i+1) / 15.0
			if _, err := ms.Upsert("carol", "storage", fmt.Sprintf("fact %d", i), nil, imp); err != nil {
				t.Fatalf("upsert %d failed: %v", i, err)
			}
		}

		count, _ := ms.CountByTopic("carol", "storage")
		if count != 10 {
			t.Fatalf("expected bucket capped at 10, got %d", count)
		}

		// The retained set must be the top 10 by importance, i.e. facts 5..14.
		items, _ := ms.ByTopic("carol", "storage", 10)
		for _, it := range items {
			if it.Importance < float64(6)/15.0 {
				t.Fatalf("low-importance item survived eviction: %+v", it)
			}
		}
	})

	t.Run("ByTopic orders by importance then access", func(t *testing.T) {
		ms.Upsert("dave", "node", "low", nil, 0.2)
		ms.Upsert("dave", "node", "high", nil, 0.9)
		ms.Upsert("dave", "node", "mid", nil, 0.5)

		items, err := ms.ByTopic("dave", "node", 10)
		if err != nil {
			t.Fatalf("by topic failed: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("expected 3 items, got %d", len(items))
		}
		if items[0].Content != "high" || items[1].Content != "mid" || items[2].Content != "low" {
			t.Fatalf("wrong order: %s, %s, %s", items[0].Content, items[1].Content, items[2].Content)
		}
	})

	t.Run("ByTopic bumps access bookkeeping", func(t *testing.T) {
		ms.Upsert("erin", "update", "kernel patched", nil, 1.0)

		first, _ := ms.ByTopic("erin", "update", 10)
		second, _ := ms.ByTopic("erin", "update", 10)
		if second[0].AccessCount != first[0].AccessCount+1 {
			t.Fatalf("expected access count bump, got %d then %d", first[0].AccessCount, second[0].AccessCount)
		}
	})

	t.Run("Buckets are isolated per user and topic", func(t *testing.T) {
		ms.Upsert("u1", "vm", "shared content", nil, 1.0)
		ms.Upsert("u2", "vm", "shared content", nil, 1.0)

		c1, _ := ms.CountByTopic("u1", "vm")
		c2, _ := ms.CountByTopic("u2", "vm")
		if c1 != 1 || c2 != 1 {
			t.Fatalf("expected separate rows per user, got %d and %d", c1, c2)
		}
	})
}

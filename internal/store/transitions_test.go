package store

import "testing"

func TestTransitionStore(t *testing.T) {
	db := setupTestDB(t)
	ts := NewTransitionStore(db)

	t.Run("Miss returns empty", func(t *testing.T) {
		text, err := ts.TakeLeastUsed("vm", "backup")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if text != "" {
			t.Fatalf("expected empty on miss, got %q", text)
		}
	})

	t.Run("TakeLeastUsed rotates phrasings", func(t *testing.T) {
		if _, err := ts.Save("vm", "backup", "first phrasing"); err != nil {
			t.Fatalf("save failed: %v", err)
		}
		if _, err := ts.Save("vm", "backup", "second phrasing"); err != nil {
			t.Fatalf("save failed: %v", err)
		}

		// Both rows start with use_count 1, so two takes must cover both
		// phrasings before either repeats.
		a, _ := ts.TakeLeastUsed("vm", "backup")
		b, _ := ts.TakeLeastUsed("vm", "backup")
		if a == "" || b == "" {
			t.Fatal("expected non-empty phrases")
		}
		if a == b {
			t.Fatalf("expected rotation across phrasings, got %q twice", a)
		}
	})

	t.Run("CountForPair", func(t *testing.T) {
		count, err := ts.CountForPair("vm", "backup")
		if err != nil {
			t.Fatalf("count failed: %v", err)
		}
		if count != 2 {
			t.Fatalf("expected 2 cached phrasings, got %d", count)
		}
	})
}

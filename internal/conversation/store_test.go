package conversation

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/virtadmin/convomem/internal/models"
	"github.com/virtadmin/convomem/internal/phrase"
	"github.com/virtadmin/convomem/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewStore(store.NewConversationStore(db), &phrase.Sequential{}, logger)
}

func TestAddMessageValidation(t *testing.T) {
	s := newTestStore(t)

	if got := s.AddMessage(0, models.MessageUser, "x", "", nil); got != FailedID {
		t.Fatalf("expected FailedID for bad conversation, got %d", got)
	}
	if got := s.AddMessage(1, models.MessageType("bogus"), "x", "", nil); got != FailedID {
		t.Fatalf("expected FailedID for bad type, got %d", got)
	}
}

func TestUserMessageTagsTopics(t *testing.T) {
	s := newTestStore(t)
	id := s.StartConversation("alice", "s1")
	if id <= 0 {
		t.Fatalf("start failed: %d", id)
	}

	s.AddMessage(id, models.MessageUser, "backup the vm to storage", "", nil)

	tags := s.ConversationTopics(id)
	if len(tags) != 3 {
		t.Fatalf("expected 3 extracted tags, got %v", tags)
	}
	// First keyword is the primary subject.
	if tags[0].Name != "vm" || tags[0].Relevance != 1.0 {
		t.Fatalf("unexpected primary tag: %+v", tags[0])
	}
	for _, tag := range tags[1:] {
		if tag.Relevance != 0.7 {
			t.Fatalf("unexpected secondary relevance: %+v", tag)
		}
	}
}

func TestSystemMessagesAreNotTagged(t *testing.T) {
	s := newTestStore(t)
	id := s.StartConversation("bob", "s1")

	s.AddMessage(id, models.MessageSystem, "The vm backup is done.", "", nil)

	if tags := s.ConversationTopics(id); len(tags) != 0 {
		t.Fatalf("system messages must not tag topics, got %v", tags)
	}
}

func TestGetConversationTransition(t *testing.T) {
	t.Run("Grounded transition preferred", func(t *testing.T) {
		s := newTestStore(t)
		id := s.StartConversation("carol", "s1")
		s.AddMessage(id, models.MessageUser, "backup the vm", "", nil)
		s.AddMessage(id, models.MessageSystem, "Backups keep your VMs safe.", "", nil)

		got := s.GetConversationTransition("carol", "vm", "backup")
		if got != "Backups keep your VMs safe." {
			t.Fatalf("expected grounded transition, got %q", got)
		}
	})

	t.Run("Fallback template on no grounding", func(t *testing.T) {
		s := newTestStore(t)
		got := s.GetConversationTransition("nobody", "vm", "backup")
		if got == "" {
			t.Fatal("expected a fallback phrase")
		}
		if !strings.Contains(got, "vm") || !strings.Contains(got, "backup") {
			t.Fatalf("placeholders not substituted: %q", got)
		}
	})
}

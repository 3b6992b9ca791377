package bridge

import (
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/virtadmin/convomem/internal/conversation"
	"github.com/virtadmin/convomem/internal/memory"
	"github.com/virtadmin/convomem/internal/models"
	"github.com/virtadmin/convomem/internal/phrase"
	"github.com/virtadmin/convomem/internal/store"
)

func newTestBridge(t *testing.T) *Bridge {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	picker := &phrase.Sequential{}
	convs := conversation.NewStore(store.NewConversationStore(db), picker, logger)
	eng := memory.NewEngine(
		store.NewMemoryStore(db, store.DefaultMemoryCap),
		store.NewAssociationStore(db, store.DefaultAssociationCap),
		store.NewTransitionStore(db),
		convs,
		picker,
		logger,
	)
	return New(convs, eng, logger)
}

func TestStartSession(t *testing.T) {
	b := newTestBridge(t)

	t.Run("Fresh session", func(t *testing.T) {
		resp := b.StartSession("alice", "s1")
		require.NotNil(t, resp)
		assert.Greater(t, resp.ConversationID, int64(0))
		assert.Equal(t, "s1", resp.SessionID)
		assert.False(t, resp.Resumed)
	})

	t.Run("Repeat start resumes", func(t *testing.T) {
		resp := b.StartSession("alice", "s1")
		assert.True(t, resp.Resumed)
	})

	t.Run("Empty session id gets generated", func(t *testing.T) {
		resp := b.StartSession("bob", "")
		assert.NotEmpty(t, resp.SessionID)
	})
}

func TestProcessTurnFlow(t *testing.T) {
	b := newTestBridge(t)

	// Turn 1: explicit vm, topic derived from the intent.
	turn1 := b.ProcessTurn(&models.TurnRequest{
		UserID:    "alice",
		SessionID: "s1",
		Utterance: "start vm-100",
		Intent:    "start_vm",
		Entities:  models.Entities{"vm_name": "vm-100"},
		Response:  "Starting vm-100 now.",
	})
	require.NotNil(t, turn1)
	assert.Equal(t, "start vm", turn1.Topic)
	assert.Equal(t, "Starting vm-100 now.", turn1.EnhancedResponse)
	assert.Equal(t, "vm-100", turn1.ResolvedEntities.String("vm_name"))

	// Turn 2: "it" resolves against the active vm pointer, and the topic
	// change gets a transition woven into the reply.
	turn2 := b.ProcessTurn(&models.TurnRequest{
		UserID:    "alice",
		SessionID: "s1",
		Utterance: "stop it",
		Intent:    "stop_vm",
		Response:  "Stopping vm-100.",
	})
	assert.Equal(t, "vm-100", turn2.ResolvedEntities.String("vm_name"))
	assert.Equal(t, "stop vm", turn2.Topic)
	assert.Equal(t, "start vm", turn2.PreviousTopic)
	assert.NotEqual(t, "Stopping vm-100.", turn2.EnhancedResponse)
	assert.True(t, strings.HasSuffix(turn2.EnhancedResponse, "Stopping vm-100."))

	// Turn 3: another topic change.
	turn3 := b.ProcessTurn(&models.TurnRequest{
		UserID:    "alice",
		SessionID: "s1",
		Utterance: "create a backup",
		Intent:    "create_backup",
		Response:  "Backup created.",
	})
	assert.Equal(t, "create backup", turn3.Topic)
	assert.NotEqual(t, "Backup created.", turn3.EnhancedResponse)

	// Turn 4: back to the first topic. The pointer fills the vm and the
	// query context surfaces the memory written on turn 1.
	turn4 := b.ProcessTurn(&models.TurnRequest{
		UserID:    "alice",
		SessionID: "s1",
		Utterance: "start the vm again",
		Intent:    "start_vm",
		Response:  "Starting it.",
	})
	assert.Equal(t, "vm-100", turn4.ResolvedEntities.String("vm_name"))
	assert.Equal(t, "start vm", turn4.Topic)

	ctx := b.GetContextForQuery("", "alice")
	assert.Equal(t, "vm-100", ctx["currentVm"])
	assert.Equal(t, "start vm", ctx["currentTopic"])
	assert.Equal(t, "start_vm", ctx["lastIntent"])
	memories, ok := ctx["relatedMemories"].([]string)
	require.True(t, ok, "expected related memories, got %+v", ctx)
	assert.Contains(t, memories, "Starting vm-100 now.")
}

func TestSameTopicFollowUpGetsRecallNotTransition(t *testing.T) {
	b := newTestBridge(t)

	b.ProcessTurn(&models.TurnRequest{
		UserID:    "gina",
		SessionID: "s1",
		Utterance: "start vm-100",
		Intent:    "start_vm",
		Entities:  models.Entities{"vm_name": "vm-100"},
		Response:  "Starting vm-100 now.",
	})

	// Topic change: a transition is woven in exactly here.
	changed := b.ProcessTurn(&models.TurnRequest{
		UserID:    "gina",
		SessionID: "s1",
		Utterance: "create a backup",
		Intent:    "create_backup",
		Response:  "Backup created.",
	})
	require.NotEqual(t, "Backup created.", changed.EnhancedResponse)

	// Follow-up on the unchanged topic: no transition, and the memory
	// stored from the previous turn is the raw backend reply, so the
	// recall carries no transition text either.
	followUp := b.ProcessTurn(&models.TurnRequest{
		UserID:    "gina",
		SessionID: "s1",
		Utterance: "is the backup ok",
		Intent:    "create_backup",
		Response:  "Backups look healthy.",
	})
	assert.Equal(t, "create backup", followUp.Topic)
	assert.Equal(t, "Backups look healthy. I recall that Backup created.", followUp.EnhancedResponse)

	// Further same-topic turns stay transition-free too.
	again := b.ProcessTurn(&models.TurnRequest{
		UserID:    "gina",
		SessionID: "s1",
		Utterance: "thanks",
		Intent:    "create_backup",
		Response:  "Anytime.",
	})
	assert.True(t, strings.HasPrefix(again.EnhancedResponse, "Anytime."), "got %q", again.EnhancedResponse)
}

func TestTurnSurvivesConcurrentSessionEnd(t *testing.T) {
	b := newTestBridge(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			turn := b.ProcessTurn(&models.TurnRequest{
				UserID:    "hal",
				SessionID: "s1",
				Utterance: "check the vm",
				Intent:    "status_vm",
				Response:  "Running.",
			})
			if turn == nil {
				t.Error("turn must never fail")
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			b.EndSession("hal", "s1")
		}
	}()
	wg.Wait()
}

func TestExcludedIntentsWriteNoMemory(t *testing.T) {
	b := newTestBridge(t)

	b.ProcessTurn(&models.TurnRequest{
		UserID:    "carol",
		SessionID: "s1",
		Utterance: "what do you mean",
		Intent:    "unknown",
		Response:  "Sorry, I did not catch that.",
	})

	ctx := b.GetContextForQuery("", "carol")
	_, ok := ctx["relatedMemories"]
	assert.False(t, ok, "excluded intent must not produce memories")
}

func TestEndSession(t *testing.T) {
	b := newTestBridge(t)

	b.ProcessTurn(&models.TurnRequest{
		UserID:    "dave",
		SessionID: "s1",
		Utterance: "check the backup status",
		Intent:    "status_backup",
		Response:  "Last backup finished at 02:00.",
	})

	extracted := b.EndSession("dave", "s1")
	assert.Greater(t, extracted, 0)

	// The worker is gone; ending again is a no-op.
	assert.Equal(t, 0, b.EndSession("dave", "s1"))
}

func TestSessionsAreIsolated(t *testing.T) {
	b := newTestBridge(t)

	b.ProcessTurn(&models.TurnRequest{
		UserID:    "erin",
		SessionID: "s1",
		Utterance: "start vm-7",
		Intent:    "start_vm",
		Entities:  models.Entities{"vm_name": "vm-7"},
		Response:  "Starting vm-7.",
	})

	turn := b.ProcessTurn(&models.TurnRequest{
		UserID:    "frank",
		SessionID: "s1",
		Utterance: "stop it",
		Intent:    "stop_vm",
		Response:  "Nothing to stop.",
	})
	assert.False(t, turn.ResolvedEntities.Has("vm_name"), "pointer must not leak across users")
}

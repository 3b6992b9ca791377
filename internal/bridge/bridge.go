// Package bridge coordinates the per-turn flow: reference resolution
// through the session context, topic detection through the tracker, and
// recall/extraction through the associative memory engine. It is the single
// API the command layer calls.
package bridge

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/virtadmin/convomem/internal/conversation"
	"github.com/virtadmin/convomem/internal/memory"
	"github.com/virtadmin/convomem/internal/models"
	"github.com/virtadmin/convomem/internal/session"
	"github.com/virtadmin/convomem/internal/tracker"
)

// turnImportance weights memories written from live turns.
const turnImportance = 0.8

// continuationStrength is the association weight recorded on an observed
// in-session topic change.
const continuationStrength = 0.8

// excludedIntents never produce memory writes.
var excludedIntents = map[string]bool{
	"unknown": true,
	"error":   true,
	"help":    true,
}

// workerSession pairs a session's working memory with its tracker. Turns
// for one session are serialized on mu; distinct sessions run in parallel.
type workerSession struct {
	mu      sync.Mutex
	ctx     *session.Context
	tracker *tracker.Tracker
	convID  int64
}

// Bridge wires SessionContext, TopicTracker and the memory engine together.
type Bridge struct {
	convs  *conversation.Store
	mem    *memory.Engine
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*workerSession
}

func New(convs *conversation.Store, mem *memory.Engine, logger *slog.Logger) *Bridge {
	return &Bridge{
		convs:    convs,
		mem:      mem,
		logger:   logger,
		sessions: make(map[string]*workerSession),
	}
}

func sessionKey(userID, sessionID string) string {
	return userID + "\x00" + sessionID
}

// StartSession initializes (or resumes) the session worker for a
// (user, session) pair. An empty sessionID gets a generated one.
func (b *Bridge) StartSession(userID, sessionID string) *models.StartSessionResponse {
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.sessions[sessionKey(userID, sessionID)]; ok {
		return &models.StartSessionResponse{
			ConversationID: existing.convID,
			SessionID:      sessionID,
			Topic:          existing.tracker.CurrentTopic(),
			Resumed:        true,
		}
	}

	sess, resumed := b.startWorker(userID, sessionID)
	b.logger.Info("session started", "user", userID, "session", sessionID, "conversation", sess.convID, "resumed", resumed)
	return &models.StartSessionResponse{
		ConversationID: sess.convID,
		SessionID:      sessionID,
		Topic:          sess.tracker.CurrentTopic(),
		Resumed:        resumed,
	}
}

// startWorker creates and registers a session worker. Caller holds b.mu.
func (b *Bridge) startWorker(userID, sessionID string) (*workerSession, bool) {
	sess := &workerSession{
		ctx:     session.New(userID, sessionID),
		tracker: tracker.New(b.convs, b.logger),
	}
	convID, resumed := sess.tracker.StartSession(userID, sessionID)
	sess.convID = convID
	b.syncContext(sess)
	b.sessions[sessionKey(userID, sessionID)] = sess
	return sess, resumed
}

// EndSession tears down the session worker and distills its conversation
// into long-term memory. Returns the number of memories extracted.
func (b *Bridge) EndSession(userID, sessionID string) int {
	b.mu.Lock()
	sess, ok := b.sessions[sessionKey(userID, sessionID)]
	delete(b.sessions, sessionKey(userID, sessionID))
	b.mu.Unlock()

	if !ok || sess.convID <= 0 {
		return 0
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	extracted := b.mem.ExtractFromConversation(sess.convID, userID)
	b.logger.Info("session ended", "user", userID, "session", sessionID, "extracted", extracted)
	return extracted
}

// ProcessTurn runs one full turn: resolve references, track the topic,
// enhance the backend response and store the turn's context. Enhancement
// strictly precedes extraction so a turn never sees its own memory.
func (b *Bridge) ProcessTurn(req *models.TurnRequest) *models.TurnResponse {
	sess := b.getOrStart(req.UserID, req.SessionID)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	resolved := sess.ctx.ResolveReferences(req.Utterance, req.Intent, req.Entities)

	topicBefore := sess.tracker.CurrentTopic()
	sess.tracker.OnUserTurn(req.Utterance, req.Intent, resolved)
	topicChanged := sess.tracker.CurrentTopic() != topicBefore

	b.syncContext(sess)
	sess.ctx.UpdateContext(req.Intent, resolved)

	enhanced := b.enhanceResponse(sess, req.Response, topicChanged)

	sess.tracker.OnSystemTurn(enhanced)
	b.extractAndStore(sess, req.Intent, resolved, req.Response, topicChanged)

	return &models.TurnResponse{
		EnhancedResponse: enhanced,
		Topic:            sess.tracker.CurrentTopic(),
		PreviousTopic:    sess.tracker.PreviousTopic(),
		ResolvedEntities: resolved,
	}
}

// GetContextForQuery merges up to two related memories for the user's
// current topic with the non-transient fields of the active session
// context, for consumption by the enhancer and the NLU layer.
func (b *Bridge) GetContextForQuery(query, userID string) map[string]any {
	out := make(map[string]any)

	sess := b.latestSessionFor(userID)
	topicName := ""
	if sess != nil {
		sess.mu.Lock()
		topicName = sess.tracker.CurrentTopic()
		active := sess.ctx.Active()
		if active.VM != "" {
			out["currentVm"] = active.VM
		}
		if active.Node != "" {
			out["currentNode"] = active.Node
		}
		if active.Container != "" {
			out["currentContainer"] = active.Container
		}
		if active.Service != "" {
			out["currentService"] = active.Service
		}
		if li := sess.ctx.LastIntent(); li != "" {
			out["lastIntent"] = li
		}
		if topicName != "" {
			out["currentTopic"] = topicName
		}
		if prev := sess.tracker.PreviousTopic(); prev != "" {
			out["previousTopic"] = prev
		}
		sess.mu.Unlock()
	}

	if topicName != "" {
		items := b.mem.GetMemoriesByTopic(userID, topicName, 2)
		if len(items) > 0 {
			contents := make([]string, len(items))
			for i, it := range items {
				contents[i] = it.Content
			}
			out["relatedMemories"] = contents
		}
	}

	return out
}

// enhanceResponse prefers the memory engine's enhancement; when that leaves
// the response untouched on a topic change, fall back to the tracker's
// grounded transition. The previous topic is only passed on the turn the
// change happened, so same-topic follow-ups take the memory-recall path.
func (b *Bridge) enhanceResponse(sess *workerSession, response string, topicChanged bool) string {
	previous := ""
	if topicChanged {
		previous = sess.tracker.PreviousTopic()
	}

	enhanced := b.mem.EnhanceResponse(
		response,
		sess.tracker.CurrentTopic(),
		previous,
		sess.ctx.UserID,
	)
	if enhanced != response {
		return enhanced
	}
	if topicChanged {
		if t := sess.tracker.Transition(); t != "" {
			return t + " " + response
		}
	}
	return response
}

// extractAndStore writes the turn's memory item and, on a topic change, a
// continuation association between the old and new topic. Excluded intents
// write nothing.
func (b *Bridge) extractAndStore(sess *workerSession, intent string, entities models.Entities, response string, topicChanged bool) {
	if excludedIntents[intent] {
		return
	}

	current := sess.tracker.CurrentTopic()
	if current == "" || response == "" {
		return
	}

	b.mem.AddMemory(sess.ctx.UserID, current, response, entities, turnImportance)

	if topicChanged {
		if prev := sess.tracker.PreviousTopic(); prev != "" && prev != current {
			b.mem.AddAssociation(prev, current, continuationStrength, "continuation")
		}
	}
}

// syncContext copies the tracker's topic state into the session context and
// warms the per-topic cross-session entity cache from long-term memory.
func (b *Bridge) syncContext(sess *workerSession) {
	sess.ctx.CurrentTopic = sess.tracker.CurrentTopic()
	sess.ctx.PreviousTopic = sess.tracker.PreviousTopic()
	for i := len(sess.tracker.History()) - 1; i >= 0; i-- {
		sess.ctx.PushTopic(sess.tracker.History()[i])
	}

	current := sess.ctx.CurrentTopic
	if current == "" {
		return
	}
	for _, item := range b.mem.GetMemoriesByTopic(sess.ctx.UserID, current, session.TopicCacheSize) {
		if len(item.Entities) > 0 {
			sess.ctx.CacheTopicEntities(current, item.Entities)
		}
	}
}

// getOrStart returns the session worker, creating it under b.mu in one
// critical section so a concurrent EndSession can never leave the caller
// without a worker.
func (b *Bridge) getOrStart(userID, sessionID string) *workerSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sess, ok := b.sessions[sessionKey(userID, sessionID)]; ok {
		return sess
	}
	sess, _ := b.startWorker(userID, sessionID)
	return sess
}

// latestSessionFor returns the user's session with the newest conversation,
// or nil.
func (b *Bridge) latestSessionFor(userID string) *workerSession {
	b.mu.Lock()
	defer b.mu.Unlock()

	var best *workerSession
	prefix := userID + "\x00"
	for key, sess := range b.sessions {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			if best == nil || sess.convID > best.convID {
				best = sess
			}
		}
	}
	return best
}

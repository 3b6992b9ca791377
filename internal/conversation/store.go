// Package conversation exposes the durable conversation log with
// best-effort semantics: storage failures are logged and converted to safe
// default returns so a turn never fails on a persistence problem.
package conversation

import (
	"log/slog"

	"github.com/virtadmin/convomem/internal/models"
	"github.com/virtadmin/convomem/internal/phrase"
	"github.com/virtadmin/convomem/internal/store"
	"github.com/virtadmin/convomem/internal/topic"
)

// FailedID is returned in place of a row ID when persistence fails.
const FailedID int64 = -1

// Relevance weights for topics auto-extracted from a user message. The
// first keyword is the message's main subject; the rest are secondary.
const (
	primaryTagRelevance   = 1.0
	secondaryTagRelevance = 0.7
)

// fallbackTransitions is used when no past conversation grounds the topic
// change.
var fallbackTransitions = []string{
	"Speaking of {to}, that reminds me of our earlier discussion about {from}.",
	"Now that we've covered {from}, let's look at {to}.",
	"Moving on from {from} to {to}.",
	"That wraps up {from} for now. On to {to}.",
	"Shifting gears from {from} to {to}.",
}

// Store is the conversation persistence facade. Every method catches
// storage errors, logs them with operation context, and returns a safe
// default instead of propagating.
type Store struct {
	convs  *store.ConversationStore
	picker phrase.Picker
	logger *slog.Logger
}

func NewStore(convs *store.ConversationStore, picker phrase.Picker, logger *slog.Logger) *Store {
	return &Store{convs: convs, picker: picker, logger: logger}
}

// StartConversation opens a new conversation for a (user, session) pair.
// Returns FailedID when storage is unavailable.
func (s *Store) StartConversation(userID, sessionID string) int64 {
	id, err := retryID(func() (int64, error) { return s.convs.Insert(userID, sessionID) })
	if err != nil {
		s.logger.Error("start conversation failed", "user", userID, "session", sessionID, "error", err)
		return FailedID
	}
	return id
}

// AddMessage persists one message. User messages additionally get their
// domain topics extracted and tagged onto the conversation, atomically with
// the insert. Returns the message ID or FailedID.
func (s *Store) AddMessage(conversationID int64, msgType models.MessageType, content, intent string, entities models.Entities) int64 {
	if conversationID <= 0 || !msgType.IsValid() {
		return FailedID
	}

	var tags []models.TopicTag
	if msgType == models.MessageUser {
		for i, kw := range topic.ExtractKeywords(content) {
			relevance := secondaryTagRelevance
			if i == 0 {
				relevance = primaryTagRelevance
			}
			tags = append(tags, models.TopicTag{Name: kw, Relevance: relevance})
		}
	}

	id, err := retryID(func() (int64, error) {
		return s.convs.AddMessage(conversationID, msgType, content, intent, entities, tags)
	})
	if err != nil {
		s.logger.Error("add message failed", "conversation", conversationID, "type", msgType, "error", err)
		return FailedID
	}
	return id
}

// UpdateTopic records the conversation's current topic.
func (s *Store) UpdateTopic(conversationID int64, topicName string) bool {
	if conversationID <= 0 || topicName == "" {
		return false
	}
	if err := retry(func() error { return s.convs.UpdateTopic(conversationID, topicName) }); err != nil {
		s.logger.Error("update topic failed", "conversation", conversationID, "topic", topicName, "error", err)
		return false
	}
	return true
}

// GetConversation returns a conversation with messages and topic tags, or
// nil when missing or on storage failure.
func (s *Store) GetConversation(id int64) *models.Conversation {
	conv, err := s.convs.GetByID(id)
	if err != nil {
		s.logger.Error("get conversation failed", "conversation", id, "error", err)
		return nil
	}
	return conv
}

// GetActiveConversation returns the most recently updated conversation for
// the (user, session) pair, or nil when there is none.
func (s *Store) GetActiveConversation(userID, sessionID string) *models.Conversation {
	conv, err := s.convs.Active(userID, sessionID)
	if err != nil {
		s.logger.Error("get active conversation failed", "user", userID, "session", sessionID, "error", err)
		return nil
	}
	return conv
}

// GetRecentConversations lists a user's conversations newest-first.
func (s *Store) GetRecentConversations(userID string, limit int) []*models.Conversation {
	convs, err := s.convs.Recent(userID, limit)
	if err != nil {
		s.logger.Error("recent conversations failed", "user", userID, "error", err)
		return nil
	}
	return convs
}

// FindConversationsByTopic matches by exact topic name first, then by
// substring when the exact match comes up empty.
func (s *Store) FindConversationsByTopic(userID, topicName string, limit int) []*models.Conversation {
	convs, err := s.convs.FindByTopic(userID, topicName, limit)
	if err != nil {
		s.logger.Error("find by topic failed", "user", userID, "topic", topicName, "error", err)
		return nil
	}
	return convs
}

// GetTopicHistory returns the user's topic tag counts, descending.
func (s *Store) GetTopicHistory(userID string) []models.TopicCount {
	counts, err := s.convs.TopicHistory(userID)
	if err != nil {
		s.logger.Error("topic history failed", "user", userID, "error", err)
		return nil
	}
	return counts
}

// SystemMessages returns a conversation's system-side messages, oldest
// first.
func (s *Store) SystemMessages(conversationID int64) []*models.Message {
	msgs, err := s.convs.SystemMessages(conversationID)
	if err != nil {
		s.logger.Error("system messages failed", "conversation", conversationID, "error", err)
		return nil
	}
	return msgs
}

// ConversationTopics returns a conversation's topic tags.
func (s *Store) ConversationTopics(conversationID int64) []models.TopicTag {
	tags, err := s.convs.Topics(conversationID)
	if err != nil {
		s.logger.Error("conversation topics failed", "conversation", conversationID, "error", err)
		return nil
	}
	return tags
}

// GetConversationTransition bridges a topic change. It prefers a grounded
// transition — the latest system message of the most recent conversation
// tagged with both topics — and falls back to a templated phrase.
func (s *Store) GetConversationTransition(userID, fromTopic, toTopic string) string {
	grounded, err := s.convs.GroundedTransition(userID, fromTopic, toTopic)
	if err != nil {
		s.logger.Error("grounded transition failed", "user", userID, "from", fromTopic, "to", toTopic, "error", err)
	}
	if grounded != "" {
		return grounded
	}
	return phrase.Choose(s.picker, fallbackTransitions, map[string]string{
		"from": fromTopic,
		"to":   toTopic,
	})
}

// retry runs fn, retrying once when SQLite reports lock contention.
func retry(fn func() error) error {
	err := fn()
	if err != nil && store.IsBusy(err) {
		return fn()
	}
	return err
}

func retryID(fn func() (int64, error)) (int64, error) {
	id, err := fn()
	if err != nil && store.IsBusy(err) {
		return fn()
	}
	return id, err
}

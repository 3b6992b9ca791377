// Package memory implements the cross-session associative memory engine:
// bounded per-(user,topic) memory items, a weighted topic-association
// graph, and transition-phrase synthesis with caching. Like the
// conversation store, every public method converts storage failures into
// safe default returns.
package memory

import (
	"log/slog"
	"time"

	"github.com/virtadmin/convomem/internal/conversation"
	"github.com/virtadmin/convomem/internal/models"
	"github.com/virtadmin/convomem/internal/phrase"
	"github.com/virtadmin/convomem/internal/store"
)

const (
	// DefaultImportance applies when the caller passes no weight.
	DefaultImportance = 1.0
	// extractedImportance is assigned to memories distilled from persisted
	// conversations, below live-turn memories so they evict first.
	extractedImportance = 0.5

	// maxEnhanceableResponse: longer responses are left untouched.
	maxEnhanceableResponse = 500
	// maxEnhancedLength bounds response + recalled memory.
	maxEnhancedLength = 1000

	recallPrefix = " I recall that "
)

// Engine is the associative memory facade.
type Engine struct {
	memories    *store.MemoryStore
	assocs      *store.AssociationStore
	transitions *store.TransitionStore
	convs       *conversation.Store
	picker      phrase.Picker
	logger      *slog.Logger
	now         func() time.Time
}

func NewEngine(
	memories *store.MemoryStore,
	assocs *store.AssociationStore,
	transitions *store.TransitionStore,
	convs *conversation.Store,
	picker phrase.Picker,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		memories:    memories,
		assocs:      assocs,
		transitions: transitions,
		convs:       convs,
		picker:      picker,
		logger:      logger,
		now:         time.Now,
	}
}

// AddMemory upserts a memory item by (user, topic, content) identity and
// prunes the bucket to its cap. Importance <= 0 means the default. Returns
// the row ID or -1 on storage failure.
func (e *Engine) AddMemory(userID, topic, content string, entities models.Entities, importance float64) int64 {
	if userID == "" || topic == "" || content == "" {
		return conversation.FailedID
	}
	if importance <= 0 {
		importance = DefaultImportance
	}
	id, err := e.memories.Upsert(userID, topic, content, entities, importance)
	if err != nil {
		e.logger.Error("add memory failed", "user", userID, "topic", topic, "error", err)
		return conversation.FailedID
	}
	return id
}

// AddAssociation records or strengthens an undirected edge between two
// topics, then prunes the graph to its global cap.
func (e *Engine) AddAssociation(topicA, topicB string, strength float64, relationshipType string) bool {
	if topicA == "" || topicB == "" || topicA == topicB {
		return false
	}
	if err := e.assocs.Upsert(topicA, topicB, strength, relationshipType); err != nil {
		e.logger.Error("add association failed", "a", topicA, "b", topicB, "error", err)
		return false
	}
	return true
}

// GetMemoriesByTopic returns a user's memories for a topic, strongest first.
// Retrieval bumps each item's access bookkeeping.
func (e *Engine) GetMemoriesByTopic(userID, topic string, limit int) []*models.MemoryItem {
	items, err := e.memories.ByTopic(userID, topic, limit)
	if err != nil {
		e.logger.Error("get memories failed", "user", userID, "topic", topic, "error", err)
		return nil
	}
	return items
}

// GetRelatedTopics returns the topics most strongly associated with the
// given one.
func (e *Engine) GetRelatedTopics(topic string, limit int) []models.RelatedTopic {
	related, err := e.assocs.Related(topic, limit)
	if err != nil {
		e.logger.Error("get related topics failed", "topic", topic, "error", err)
		return nil
	}
	return related
}

// GetTopicTransition returns a bridging phrase for a topic change. Cached
// phrasings are reused least-used-first; on a miss a new phrase is rendered
// from the pair's relationship family and cached for next time.
func (e *Engine) GetTopicTransition(fromTopic, toTopic string) string {
	if fromTopic == "" || toTopic == "" || fromTopic == toTopic {
		return ""
	}

	cached, err := e.transitions.TakeLeastUsed(fromTopic, toTopic)
	if err != nil {
		e.logger.Error("transition cache lookup failed", "from", fromTopic, "to", toTopic, "error", err)
	}
	if cached != "" {
		return cached
	}

	relType := defaultRelationship
	lastAccessed := int64(0)
	assoc, err := e.assocs.Get(fromTopic, toTopic)
	if err != nil {
		e.logger.Error("association lookup failed", "from", fromTopic, "to", toTopic, "error", err)
	}
	if assoc != nil {
		if assoc.RelationshipType != "" {
			relType = assoc.RelationshipType
		}
		lastAccessed = assoc.LastAccessed
	}

	templates, ok := transitionTemplates[relType]
	if !ok {
		templates = transitionTemplates[defaultRelationship]
	}

	text := phrase.Choose(e.picker, templates, map[string]string{
		"topic":        toTopic,
		"relatedTopic": fromTopic,
		"detail":       "our earlier discussion about " + fromTopic,
		"timeAgo":      timeAgo(lastAccessed, e.now()),
	})
	if text == "" {
		return ""
	}

	if _, err := e.transitions.Save(fromTopic, toTopic, text); err != nil {
		e.logger.Error("transition cache save failed", "from", fromTopic, "to", toTopic, "error", err)
	}
	return text
}

// EnhanceResponse weaves context into a reply. Responses over the length
// bound pass through untouched. A topic change gets the transition phrase
// prepended; otherwise the most relevant memory for the current topic is
// appended, unless it restates the response (token Jaccard above the
// suppression threshold) or would push the reply past the combined bound.
func (e *Engine) EnhanceResponse(response, currentTopic, previousTopic, userID string) string {
	if len(response) > maxEnhanceableResponse {
		return response
	}

	if previousTopic != "" && previousTopic != currentTopic {
		if t := e.GetTopicTransition(previousTopic, currentTopic); t != "" {
			return t + " " + response
		}
		return response
	}

	if currentTopic == "" {
		return response
	}

	items := e.GetMemoriesByTopic(userID, currentTopic, 1)
	if len(items) == 0 {
		return response
	}
	top := items[0]

	if jaccard(top.Content, response) > similarityThreshold {
		return response
	}
	if len(response)+len(recallPrefix)+len(top.Content) >= maxEnhancedLength {
		return response
	}
	return response + recallPrefix + top.Content
}

// ExtractFromConversation distills a persisted conversation into long-term
// memory: each system message becomes a memory item under the
// conversation's topic, and conversations tagged with two or more topics
// get pairwise associations weighted by the weaker tag. Returns the number
// of memory items written.
func (e *Engine) ExtractFromConversation(conversationID int64, userID string) int {
	conv := e.convs.GetConversation(conversationID)
	if conv == nil {
		return 0
	}

	topicName := conv.Topic
	if topicName == "" && len(conv.Topics) > 0 {
		topicName = conv.Topics[0].Name
	}

	extracted := 0
	if topicName != "" {
		for _, msg := range conv.Messages {
			if msg.Type != models.MessageSystem || msg.Content == "" {
				continue
			}
			if e.AddMemory(userID, topicName, msg.Content, msg.Entities, extractedImportance) != conversation.FailedID {
				extracted++
			}
		}
	}

	if len(conv.Topics) >= 2 {
		for i := 0; i < len(conv.Topics); i++ {
			for j := i + 1; j < len(conv.Topics); j++ {
				a, b := conv.Topics[i], conv.Topics[j]
				strength := a.Relevance
				if b.Relevance < strength {
					strength = b.Relevance
				}
				e.AddAssociation(a.Name, b.Name, strength, defaultRelationship)
			}
		}
	}

	return extracted
}

package models

// MessageType distinguishes who produced a message.
type MessageType string

const (
	MessageUser   MessageType = "user"
	MessageSystem MessageType = "system"
)

func (t MessageType) IsValid() bool {
	return t == MessageUser || t == MessageSystem
}

// Conversation is one dialogue between a user and the assistant, scoped to a
// session. Conversations are never hard-deleted.
type Conversation struct {
	ID            int64  `json:"id"`
	UserID        string `json:"userId"`
	SessionID     string `json:"sessionId"`
	StartedAt     int64  `json:"startedAt"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
	Topic         string `json:"topic,omitempty"`

	// Populated by GetConversation only.
	Messages []*Message `json:"messages,omitempty"`
	Topics   []TopicTag `json:"topics,omitempty"`
}

// Message is one half of a turn. Immutable once written.
type Message struct {
	ID             int64       `json:"id"`
	ConversationID int64       `json:"conversationId"`
	Type           MessageType `json:"type"`
	Content        string      `json:"content"`
	Intent         string      `json:"intent,omitempty"`
	Entities       Entities    `json:"entities,omitempty"`
	Timestamp      int64       `json:"timestamp"`
}

// TopicTag is a topic attached to a conversation with a relevance weight.
type TopicTag struct {
	Name      string  `json:"name"`
	Relevance float64 `json:"relevance"`
}

// MemoryItem is a stored snippet of a past system response, scoped to a user
// and topic. Identity for upserts is (UserID, Topic, Content).
type MemoryItem struct {
	ID           int64    `json:"id"`
	UserID       string   `json:"userId"`
	Topic        string   `json:"topic"`
	Content      string   `json:"content"`
	Entities     Entities `json:"entities,omitempty"`
	Importance   float64  `json:"importance"`
	CreatedAt    int64    `json:"createdAt"`
	LastAccessed int64    `json:"lastAccessed"`
	AccessCount  int      `json:"accessCount"`
}

// TopicAssociation is a weighted undirected edge between two topics. The pair
// is stored canonically so (a,b) and (b,a) address the same row.
type TopicAssociation struct {
	ID               int64   `json:"id"`
	TopicA           string  `json:"topicA"`
	TopicB           string  `json:"topicB"`
	Strength         float64 `json:"strength"`
	RelationshipType string  `json:"relationshipType,omitempty"`
	CreatedAt        int64   `json:"createdAt"`
	LastAccessed     int64   `json:"lastAccessed"`
}

// RelatedTopic is the neighbor view of an association from one side.
type RelatedTopic struct {
	Topic            string  `json:"topic"`
	Strength         float64 `json:"strength"`
	RelationshipType string  `json:"relationshipType,omitempty"`
}

// --- HTTP API payloads ---

// StartSessionRequest is the payload for POST /sessions/start.
type StartSessionRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// StartSessionResponse is returned from POST /sessions/start.
type StartSessionResponse struct {
	ConversationID int64  `json:"conversationId"`
	SessionID      string `json:"sessionId"`
	Topic          string `json:"topic,omitempty"`
	Resumed        bool   `json:"resumed"`
}

// EndSessionRequest is the payload for POST /sessions/end.
type EndSessionRequest struct {
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId"`
}

// EndSessionResponse is returned from POST /sessions/end.
type EndSessionResponse struct {
	Extracted int `json:"extracted"`
}

// TurnRequest is the payload for POST /turns. The NLU layer supplies the
// parsed intent and entities alongside the raw utterance; Response is the
// backend's unenhanced reply text.
type TurnRequest struct {
	UserID    string   `json:"userId"`
	SessionID string   `json:"sessionId"`
	Utterance string   `json:"utterance"`
	Intent    string   `json:"intent"`
	Entities  Entities `json:"entities"`
	Response  string   `json:"response"`
}

// TurnResponse is returned from POST /turns.
type TurnResponse struct {
	EnhancedResponse string   `json:"enhancedResponse"`
	Topic            string   `json:"topic,omitempty"`
	PreviousTopic    string   `json:"previousTopic,omitempty"`
	ResolvedEntities Entities `json:"resolvedEntities,omitempty"`
}

// TopicCount is one entry of a user's topic history, descending by count.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// HealthResponse is returned from GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	DB            string `json:"db"`
	Conversations int    `json:"conversations"`
	Memories      int    `json:"memories"`
	Associations  int    `json:"associations"`
}

package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/virtadmin/convomem/internal/models"
)

// ConversationStore handles conversation, message and topic-tag CRUD on
// SQLite. All write paths that touch multiple tables run in a single
// transaction so concurrent session workers never observe partial turns.
type ConversationStore struct {
	db *DB
}

func NewConversationStore(db *DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// Insert creates a new conversation for a (user, session) pair.
func (s *ConversationStore) Insert(userID, sessionID string) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO conversations (user_id, session_id, started_at, last_updated_at)
		VALUES (?, ?, ?, ?)
	`, userID, sessionID, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert conversation: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("conversation id: %w", err)
	}
	return id, nil
}

// GetByID fetches a conversation with its messages and topic tags.
func (s *ConversationStore) GetByID(id int64) (*models.Conversation, error) {
	conv, err := s.scanOne(s.db.QueryRow(`
		SELECT id, user_id, session_id, started_at, last_updated_at, topic
		FROM conversations WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}

	msgs, err := s.Messages(id)
	if err != nil {
		return nil, err
	}
	conv.Messages = msgs

	tags, err := s.Topics(id)
	if err != nil {
		return nil, err
	}
	conv.Topics = tags
	return conv, nil
}

// Active returns the most recently updated conversation for a
// (user, session) pair, or nil when none exists.
func (s *ConversationStore) Active(userID, sessionID string) (*models.Conversation, error) {
	conv, err := s.scanOne(s.db.QueryRow(`
		SELECT id, user_id, session_id, started_at, last_updated_at, topic
		FROM conversations
		WHERE user_id = ? AND session_id = ?
		ORDER BY last_updated_at DESC
		LIMIT 1
	`, userID, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active conversation: %w", err)
	}
	return conv, nil
}

// Recent returns a user's conversations ordered by last update, newest first.
func (s *ConversationStore) Recent(userID string, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(`
		SELECT id, user_id, session_id, started_at, last_updated_at, topic
		FROM conversations
		WHERE user_id = ?
		ORDER BY last_updated_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent conversations: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// FindByTopic returns a user's conversations tagged with the topic, exact
// name match first, falling back to a substring match when nothing is found.
func (s *ConversationStore) FindByTopic(userID, topic string, limit int) ([]*models.Conversation, error) {
	if limit <= 0 {
		limit = 10
	}
	convs, err := s.findByTopicWhere(userID, "t.name = ?", topic, limit)
	if err != nil {
		return nil, err
	}
	if len(convs) > 0 {
		return convs, nil
	}
	return s.findByTopicWhere(userID, "t.name LIKE ?", "%"+topic+"%", limit)
}

func (s *ConversationStore) findByTopicWhere(userID, cond, arg string, limit int) ([]*models.Conversation, error) {
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT DISTINCT c.id, c.user_id, c.session_id, c.started_at, c.last_updated_at, c.topic
		FROM conversations c
		JOIN conversation_topic_mapping m ON m.conversation_id = c.id
		JOIN topics t ON t.id = m.topic_id
		WHERE c.user_id = ? AND %s
		ORDER BY c.last_updated_at DESC
		LIMIT ?
	`, cond), userID, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("find by topic: %w", err)
	}
	defer rows.Close()
	return s.scanMany(rows)
}

// AddMessage inserts a message, bumps the conversation timestamp and
// overwrites the relevance of the given topic tags, all in one transaction.
func (s *ConversationStore) AddMessage(conversationID int64, msgType models.MessageType, content, intent string, entities models.Entities, tags []models.TopicTag) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin add message: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.Exec(`
		INSERT INTO messages (conversation_id, type, content, intent, entities, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, conversationID, string(msgType), content, nullable(intent), nullable(models.EncodeEntities(entities)), now)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	msgID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("message id: %w", err)
	}

	if _, err := tx.Exec(`UPDATE conversations SET last_updated_at = ? WHERE id = ?`, now, conversationID); err != nil {
		return 0, fmt.Errorf("touch conversation: %w", err)
	}

	for _, tag := range tags {
		if err := tagConversation(tx, conversationID, tag.Name, tag.Relevance, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit add message: %w", err)
	}
	return msgID, nil
}

// UpdateTopic sets the conversation's current topic and tags it with full
// relevance.
func (s *ConversationStore) UpdateTopic(conversationID int64, topic string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update topic: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	if _, err := tx.Exec(`
		UPDATE conversations SET topic = ?, last_updated_at = ? WHERE id = ?
	`, topic, now, conversationID); err != nil {
		return fmt.Errorf("update topic: %w", err)
	}
	if err := tagConversation(tx, conversationID, topic, 1.0, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit update topic: %w", err)
	}
	return nil
}

// tagConversation upserts a topic row and overwrites (not accumulates) the
// mapping relevance.
func tagConversation(tx *sql.Tx, conversationID int64, name string, relevance float64, now int64) error {
	if name == "" {
		return nil
	}
	if _, err := tx.Exec(`
		INSERT INTO topics (name, created_at) VALUES (?, ?)
		ON CONFLICT(name) DO NOTHING
	`, name, now); err != nil {
		return fmt.Errorf("upsert topic %q: %w", name, err)
	}

	var topicID int64
	if err := tx.QueryRow(`SELECT id FROM topics WHERE name = ?`, name).Scan(&topicID); err != nil {
		return fmt.Errorf("topic id %q: %w", name, err)
	}

	if _, err := tx.Exec(`
		INSERT INTO conversation_topic_mapping (conversation_id, topic_id, relevance)
		VALUES (?, ?, ?)
		ON CONFLICT(conversation_id, topic_id) DO UPDATE SET relevance = excluded.relevance
	`, conversationID, topicID, relevance); err != nil {
		return fmt.Errorf("tag conversation: %w", err)
	}
	return nil
}

// Messages returns a conversation's messages in chronological order.
func (s *ConversationStore) Messages(conversationID int64) ([]*models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, type, content, intent, entities, timestamp
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// SystemMessages returns only the system-side messages of a conversation.
func (s *ConversationStore) SystemMessages(conversationID int64) ([]*models.Message, error) {
	rows, err := s.db.Query(`
		SELECT id, conversation_id, type, content, intent, entities, timestamp
		FROM messages
		WHERE conversation_id = ? AND type = 'system'
		ORDER BY timestamp ASC, id ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get system messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Topics returns a conversation's topic tags with their relevance.
func (s *ConversationStore) Topics(conversationID int64) ([]models.TopicTag, error) {
	rows, err := s.db.Query(`
		SELECT t.name, m.relevance
		FROM conversation_topic_mapping m
		JOIN topics t ON t.id = m.topic_id
		WHERE m.conversation_id = ?
		ORDER BY m.relevance DESC, t.name ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation topics: %w", err)
	}
	defer rows.Close()

	var tags []models.TopicTag
	for rows.Next() {
		var tag models.TopicTag
		if err := rows.Scan(&tag.Name, &tag.Relevance); err != nil {
			return nil, fmt.Errorf("scan topic tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// TopicHistory returns how often each topic was tagged on a user's
// conversations, descending by count.
func (s *ConversationStore) TopicHistory(userID string) ([]models.TopicCount, error) {
	rows, err := s.db.Query(`
		SELECT t.name, COUNT(*) AS cnt
		FROM conversation_topic_mapping m
		JOIN topics t ON t.id = m.topic_id
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.user_id = ?
		GROUP BY t.name
		ORDER BY cnt DESC, t.name ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("topic history: %w", err)
	}
	defer rows.Close()

	var out []models.TopicCount
	for rows.Next() {
		var tc models.TopicCount
		if err := rows.Scan(&tc.Topic, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan topic count: %w", err)
		}
		out = append(out, tc)
	}
	return out, rows.Err()
}

// GroundedTransition looks for the most recent conversation of the user
// tagged with both topics and returns its latest system message, which reads
// as a natural bridge between the two. Returns "" when no such conversation
// or message exists.
func (s *ConversationStore) GroundedTransition(userID, fromTopic, toTopic string) (string, error) {
	var convID int64
	err := s.db.QueryRow(`
		SELECT c.id
		FROM conversations c
		JOIN conversation_topic_mapping ma ON ma.conversation_id = c.id
		JOIN topics ta ON ta.id = ma.topic_id AND ta.name = ?
		JOIN conversation_topic_mapping mb ON mb.conversation_id = c.id
		JOIN topics tb ON tb.id = mb.topic_id AND tb.name = ?
		WHERE c.user_id = ?
		ORDER BY c.last_updated_at DESC
		LIMIT 1
	`, fromTopic, toTopic, userID).Scan(&convID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("grounded transition lookup: %w", err)
	}

	var content string
	err = s.db.QueryRow(`
		SELECT content FROM messages
		WHERE conversation_id = ? AND type = 'system'
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, convID).Scan(&content)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("grounded transition message: %w", err)
	}
	return content, nil
}

func (s *ConversationStore) scanOne(row *sql.Row) (*models.Conversation, error) {
	var c models.Conversation
	var topic sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.SessionID, &c.StartedAt, &c.LastUpdatedAt, &topic)
	if err != nil {
		return nil, err
	}
	if topic.Valid {
		c.Topic = topic.String
	}
	return &c, nil
}

func (s *ConversationStore) scanMany(rows *sql.Rows) ([]*models.Conversation, error) {
	var out []*models.Conversation
	for rows.Next() {
		var c models.Conversation
		var topic sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.SessionID, &c.StartedAt, &c.LastUpdatedAt, &topic); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if topic.Valid {
			c.Topic = topic.String
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	var out []*models.Message
	for rows.Next() {
		var m models.Message
		var typ string
		var intent, entities sql.NullString
		if err := rows.Scan(&m.ID, &m.ConversationID, &typ, &m.Content, &intent, &entities, &m.Timestamp); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Type = models.MessageType(typ)
		if intent.Valid {
			m.Intent = intent.String
		}
		if entities.Valid {
			m.Entities = models.DecodeEntities(entities.String)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

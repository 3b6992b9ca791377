package store

import (
	"database/sql"
	"fmt"
	"time"
)

// TransitionStore caches rendered transition phrases per (from, to) topic
// pair. Several phrasings may be cached for the same pair; TakeLeastUsed
// rotates through them to keep the assistant from repeating itself.
type TransitionStore struct {
	db *DB
}

func NewTransitionStore(db *DB) *TransitionStore {
	return &TransitionStore{db: db}
}

// Save caches a rendered phrase for a topic pair.
func (s *TransitionStore) Save(fromTopic, toTopic, text string) (int64, error) {
	now := time.Now().Unix()
	res, err := s.db.Exec(`
		INSERT INTO topic_transitions (from_topic, to_topic, transition_text, created_at, last_used, use_count)
		VALUES (?, ?, ?, ?, ?, 1)
	`, fromTopic, toTopic, text, now, now)
	if err != nil {
		return 0, fmt.Errorf("save transition: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("transition id: %w", err)
	}
	return id, nil
}

// TakeLeastUsed returns the least-used cached phrase for a pair and bumps
// its use bookkeeping in the same transaction. Returns "" on a cache miss.
func (s *TransitionStore) TakeLeastUsed(fromTopic, toTopic string) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("begin take transition: %w", err)
	}
	defer tx.Rollback()

	var id int64
	var text string
	err = tx.QueryRow(`
		SELECT id, transition_text FROM topic_transitions
		WHERE from_topic = ? AND to_topic = ?
		ORDER BY use_count ASC, last_used ASC
		LIMIT 1
	`, fromTopic, toTopic).Scan(&id, &text)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("take transition: %w", err)
	}

	now := time.Now().Unix()
	if _, err := tx.Exec(`
		UPDATE topic_transitions SET use_count = use_count + 1, last_used = ? WHERE id = ?
	`, now, id); err != nil {
		return "", fmt.Errorf("bump transition use: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit take transition: %w", err)
	}
	return text, nil
}

// CountForPair returns how many phrasings are cached for a pair.
func (s *TransitionStore) CountForPair(fromTopic, toTopic string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM topic_transitions WHERE from_topic = ? AND to_topic = ?
	`, fromTopic, toTopic).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count transitions: %w", err)
	}
	return count, nil
}

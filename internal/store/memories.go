package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/virtadmin/convomem/internal/models"
)

// DefaultMemoryCap is the retention bound per (user, topic).
const DefaultMemoryCap = 10

// MemoryStore handles long-term memory item CRUD on SQLite. Each (user,
// topic) bucket is bounded: the upsert and the eviction it may trigger run
// in one transaction so the cap holds under concurrent writers.
type MemoryStore struct {
	db  *DB
	cap int
}

func NewMemoryStore(db *DB, capPerTopic int) *MemoryStore {
	if capPerTopic <= 0 {
		capPerTopic = DefaultMemoryCap
	}
	return &MemoryStore{db: db, cap: capPerTopic}
}

// Upsert stores a memory item keyed by (userID, topic, content). An existing
// row gets its access count incremented and lastAccessed/importance/entities
// refreshed; otherwise a new row is inserted and the bucket pruned to the
// cap. Returns the row ID.
func (s *MemoryStore) Upsert(userID, topic, content string, entities models.Entities, importance float64) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin upsert memory: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	var id int64
	err = tx.QueryRow(`
		SELECT id FROM memories WHERE user_id = ? AND topic = ? AND content = ?
	`, userID, topic, content).Scan(&id)
	switch {
	case err == sql.ErrNoRows:
		res, err := tx.Exec(`
			INSERT INTO memories (user_id, topic, content, entities, importance, created_at, last_accessed, access_count)
			VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		`, userID, topic, content, nullable(models.EncodeEntities(entities)), importance, now, now)
		if err != nil {
			return 0, fmt.Errorf("insert memory: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("memory id: %w", err)
		}
		if err := pruneMemories(tx, userID, topic, s.cap); err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("find memory: %w", err)
	default:
		if _, err := tx.Exec(`
			UPDATE memories
			SET access_count = access_count + 1, last_accessed = ?, importance = ?, entities = ?
			WHERE id = ?
		`, now, importance, nullable(models.EncodeEntities(entities)), id); err != nil {
			return 0, fmt.Errorf("refresh memory: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit upsert memory: %w", err)
	}
	return id, nil
}

// pruneMemories deletes the weakest rows of a (user, topic) bucket beyond
// the cap. Victims are the lowest (importance, access count, last accessed)
// tuples, oldest first on ties.
func pruneMemories(tx *sql.Tx, userID, topic string, cap int) error {
	var count int
	if err := tx.QueryRow(`
		SELECT COUNT(*) FROM memories WHERE user_id = ? AND topic = ?
	`, userID, topic).Scan(&count); err != nil {
		return fmt.Errorf("count memories: %w", err)
	}
	if count <= cap {
		return nil
	}

	if _, err := tx.Exec(`
		DELETE FROM memories WHERE id IN (
			SELECT id FROM memories
			WHERE user_id = ? AND topic = ?
			ORDER BY importance ASC, access_count ASC, last_accessed ASC, created_at ASC, id ASC
			LIMIT ?
		)
	`, userID, topic, count-cap); err != nil {
		return fmt.Errorf("prune memories: %w", err)
	}
	return nil
}

// ByTopic returns a user's memories for a topic ordered by (importance desc,
// access count desc, last accessed desc). Retrieval is a read-modify-write:
// each returned row gets its access bookkeeping bumped in the same
// transaction.
func (s *MemoryStore) ByTopic(userID, topic string, limit int) ([]*models.MemoryItem, error) {
	if limit <= 0 {
		limit = s.cap
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin memories by topic: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(`
		SELECT id, user_id, topic, content, entities, importance, created_at, last_accessed, access_count
		FROM memories
		WHERE user_id = ? AND topic = ?
		ORDER BY importance DESC, access_count DESC, last_accessed DESC
		LIMIT ?
	`, userID, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("memories by topic: %w", err)
	}
	items, err := scanMemories(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	now := time.Now().Unix()
	for _, it := range items {
		if _, err := tx.Exec(`
			UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?
		`, now, it.ID); err != nil {
			return nil, fmt.Errorf("bump memory access: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit memories by topic: %w", err)
	}
	return items, nil
}

// CountByTopic returns the size of a (user, topic) bucket.
func (s *MemoryStore) CountByTopic(userID, topic string) (int, error) {
	var count int
	err := s.db.QueryRow(`
		SELECT COUNT(*) FROM memories WHERE user_id = ? AND topic = ?
	`, userID, topic).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count by topic: %w", err)
	}
	return count, nil
}

func scanMemories(rows *sql.Rows) ([]*models.MemoryItem, error) {
	var out []*models.MemoryItem
	for rows.Next() {
		var m models.MemoryItem
		var entities sql.NullString
		if err := rows.Scan(&m.ID, &m.UserID, &m.Topic, &m.Content, &entities, &m.Importance, &m.CreatedAt, &m.LastAccessed, &m.AccessCount); err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		if entities.Valid {
			m.Entities = models.DecodeEntities(entities.String)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

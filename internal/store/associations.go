package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/virtadmin/convomem/internal/models"
)

// DefaultAssociationCap is the global bound on topic-association edges.
const DefaultAssociationCap = 20

// blendWeight is how much of the existing strength survives a re-assertion:
// strength' = blendWeight*old + (1-blendWeight)*incoming.
const blendWeight = 0.7

// AssociationStore handles the weighted topic-association graph on SQLite.
// Edges are undirected: the pair is canonicalized before storage so (a,b)
// and (b,a) address the same row.
type AssociationStore struct {
	db  *DB
	cap int
}

func NewAssociationStore(db *DB, maxEdges int) *AssociationStore {
	if maxEdges <= 0 {
		maxEdges = DefaultAssociationCap
	}
	return &AssociationStore{db: db, cap: maxEdges}
}

// canonicalPair orders an unordered topic pair deterministically.
func canonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// Upsert inserts or blend-updates an edge and prunes the graph to its cap
// in one transaction. Re-asserting an edge converges its strength toward
// the incoming value without ever leaving [0,1].
func (s *AssociationStore) Upsert(topicA, topicB string, strength float64, relationshipType string) error {
	a, b := canonicalPair(topicA, topicB)
	strength = clamp01(strength)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin upsert association: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()

	var id int64
	var existing float64
	err = tx.QueryRow(`
		SELECT id, strength FROM topic_associations WHERE topic_a = ? AND topic_b = ?
	`, a, b).Scan(&id, &existing)
	switch {
	case err == sql.ErrNoRows:
		if _, err := tx.Exec(`
			INSERT INTO topic_associations (topic_a, topic_b, strength, relationship_type, created_at, last_accessed)
			VALUES (?, ?, ?, ?, ?, ?)
		`, a, b, strength, nullable(relationshipType), now, now); err != nil {
			return fmt.Errorf("insert association: %w", err)
		}
		if err := pruneAssociations(tx, s.cap); err != nil {
			return err
		}
	case err != nil:
		return fmt.Errorf("find association: %w", err)
	default:
		blended := clamp01(blendWeight*existing + (1-blendWeight)*strength)
		if _, err := tx.Exec(`
			UPDATE topic_associations
			SET strength = ?, relationship_type = COALESCE(?, relationship_type), last_accessed = ?
			WHERE id = ?
		`, blended, nullable(relationshipType), now, id); err != nil {
			return fmt.Errorf("blend association: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert association: %w", err)
	}
	return nil
}

// pruneAssociations deletes the weakest edges beyond the global cap:
// lowest (strength, last accessed) first.
func pruneAssociations(tx *sql.Tx, cap int) error {
	var count int
	if err := tx.QueryRow(`SELECT COUNT(*) FROM topic_associations`).Scan(&count); err != nil {
		return fmt.Errorf("count associations: %w", err)
	}
	if count <= cap {
		return nil
	}

	if _, err := tx.Exec(`
		DELETE FROM topic_associations WHERE id IN (
			SELECT id FROM topic_associations
			ORDER BY strength ASC, last_accessed ASC, id ASC
			LIMIT ?
		)
	`, count-cap); err != nil {
		return fmt.Errorf("prune associations: %w", err)
	}
	return nil
}

// Get returns the edge for an unordered pair, or nil when absent.
func (s *AssociationStore) Get(topicA, topicB string) (*models.TopicAssociation, error) {
	a, b := canonicalPair(topicA, topicB)
	var assoc models.TopicAssociation
	var relType sql.NullString
	err := s.db.QueryRow(`
		SELECT id, topic_a, topic_b, strength, relationship_type, created_at, last_accessed
		FROM topic_associations
		WHERE topic_a = ? AND topic_b = ?
	`, a, b).Scan(&assoc.ID, &assoc.TopicA, &assoc.TopicB, &assoc.Strength, &relType, &assoc.CreatedAt, &assoc.LastAccessed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get association: %w", err)
	}
	if relType.Valid {
		assoc.RelationshipType = relType.String
	}
	return &assoc, nil
}

// Related returns the topics linked to the given one, strongest and most
// recently touched first.
func (s *AssociationStore) Related(topic string, limit int) ([]models.RelatedTopic, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.Query(`
		SELECT CASE WHEN topic_a = ? THEN topic_b ELSE topic_a END AS other,
		       strength, relationship_type
		FROM topic_associations
		WHERE topic_a = ? OR topic_b = ?
		ORDER BY strength DESC, last_accessed DESC
		LIMIT ?
	`, topic, topic, topic, limit)
	if err != nil {
		return nil, fmt.Errorf("related topics: %w", err)
	}
	defer rows.Close()

	var out []models.RelatedTopic
	for rows.Next() {
		var rt models.RelatedTopic
		var relType sql.NullString
		if err := rows.Scan(&rt.Topic, &rt.Strength, &relType); err != nil {
			return nil, fmt.Errorf("scan related topic: %w", err)
		}
		if relType.Valid {
			rt.RelationshipType = relType.String
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

// Count returns the number of edges in the graph.
func (s *AssociationStore) Count() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM topic_associations`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count associations: %w", err)
	}
	return count, nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

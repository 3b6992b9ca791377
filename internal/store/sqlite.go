package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite connection with initialization logic.
type DB struct {
	*sql.DB
}

// Open creates or opens the SQLite database at the given path, runs schema
// initialization, and configures WAL mode for concurrent reads. Schema
// creation is idempotent and safe to run on every process start.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &DB{db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS conversations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  session_id TEXT NOT NULL,
  started_at INTEGER NOT NULL,
  last_updated_at INTEGER NOT NULL,
  topic TEXT
);

CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id);
CREATE INDEX IF NOT EXISTS idx_conversations_user_session ON conversations(user_id, session_id);
CREATE INDEX IF NOT EXISTS idx_conversations_last_updated ON conversations(last_updated_at);

CREATE TABLE IF NOT EXISTS messages (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  conversation_id INTEGER NOT NULL,
  type TEXT NOT NULL CHECK (type IN ('user','system')),
  content TEXT NOT NULL,
  intent TEXT,
  entities TEXT,
  timestamp INTEGER NOT NULL,
  FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id);
CREATE INDEX IF NOT EXISTS idx_messages_timestamp ON messages(timestamp);

CREATE TABLE IF NOT EXISTS topics (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL UNIQUE,
  created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS conversation_topic_mapping (
  conversation_id INTEGER NOT NULL,
  topic_id INTEGER NOT NULL,
  relevance REAL NOT NULL DEFAULT 1.0,
  PRIMARY KEY (conversation_id, topic_id),
  FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
  FOREIGN KEY (topic_id) REFERENCES topics(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_ctm_topic ON conversation_topic_mapping(topic_id);

CREATE TABLE IF NOT EXISTS memories (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id TEXT NOT NULL,
  topic TEXT NOT NULL,
  content TEXT NOT NULL,
  entities TEXT,
  importance REAL NOT NULL DEFAULT 1.0,
  created_at INTEGER NOT NULL,
  last_accessed INTEGER NOT NULL,
  access_count INTEGER NOT NULL DEFAULT 0,
  UNIQUE (user_id, topic, content)
);

CREATE INDEX IF NOT EXISTS idx_memories_user_topic ON memories(user_id, topic);

CREATE TABLE IF NOT EXISTS topic_associations (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  topic_a TEXT NOT NULL,
  topic_b TEXT NOT NULL,
  strength REAL NOT NULL DEFAULT 1.0,
  relationship_type TEXT,
  created_at INTEGER NOT NULL,
  last_accessed INTEGER NOT NULL,
  UNIQUE (topic_a, topic_b)
);

CREATE INDEX IF NOT EXISTS idx_associations_a ON topic_associations(topic_a);
CREATE INDEX IF NOT EXISTS idx_associations_b ON topic_associations(topic_b);

CREATE TABLE IF NOT EXISTS topic_transitions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  from_topic TEXT NOT NULL,
  to_topic TEXT NOT NULL,
  transition_text TEXT NOT NULL,
  created_at INTEGER NOT NULL,
  last_used INTEGER NOT NULL,
  use_count INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_transitions_pair ON topic_transitions(from_topic, to_topic);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	return nil
}

// IsBusy reports whether err is a transient SQLite lock contention error,
// the only case worth a single local retry.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// Counts returns row totals for the health endpoint.
func (db *DB) Counts() (conversations, memories, associations int, err error) {
	if err = db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&conversations); err != nil {
		return
	}
	if err = db.QueryRow("SELECT COUNT(*) FROM memories").Scan(&memories); err != nil {
		return
	}
	err = db.QueryRow("SELECT COUNT(*) FROM topic_associations").Scan(&associations)
	return
}

// Package session holds per-session working memory. A Context is owned
// exclusively by its session worker: no locking, no sharing across
// sessions.
package session

import (
	"sort"
	"time"

	"github.com/virtadmin/convomem/internal/models"
)

const (
	// HistorySize bounds the rolling turn history.
	HistorySize = 10
	// TopicHistorySize bounds the MRU topic history.
	TopicHistorySize = 10
	// TopicCacheSize bounds cached cross-session entity sets per topic.
	TopicCacheSize = 5
)

// EntityKeys are the entity types the engine tracks, in resolution order.
var EntityKeys = []string{"vm_name", "node", "container_name", "service_name"}

// Snapshot captures the active entity pointers at a point in time.
type Snapshot struct {
	VM        string
	Node      string
	Container string
	Service   string
}

func (s Snapshot) get(key string) string {
	switch key {
	case "vm_name":
		return s.VM
	case "node":
		return s.Node
	case "container_name":
		return s.Container
	case "service_name":
		return s.Service
	}
	return ""
}

// Turn is one entry of the rolling history.
type Turn struct {
	Timestamp time.Time
	Intent    string
	Entities  models.Entities
	Snapshot  Snapshot
}

type favorite struct {
	name  string
	count int
}

// Context is the ephemeral working memory of one session.
type Context struct {
	UserID    string
	SessionID string

	current      Snapshot
	lastIntent   string
	lastEntities models.Entities

	history *ring[Turn]

	// favorites per entity key, usage-count-sorted. Only vm_name is fed by
	// UpdateContext; the map shape keeps resolution uniform across keys.
	favorites map[string][]favorite

	CurrentTopic  string
	PreviousTopic string
	TopicHistory  []string

	// topicCache holds recently recalled cross-session entity sets per
	// topic, FIFO-bounded.
	topicCache map[string][]models.Entities
}

// New initializes the working memory for a session.
func New(userID, sessionID string) *Context {
	return &Context{
		UserID:     userID,
		SessionID:  sessionID,
		history:    newRing[Turn](HistorySize),
		favorites:  make(map[string][]favorite),
		topicCache: make(map[string][]models.Entities),
	}
}

// UpdateContext merges a turn's entities into the active pointers, appends
// to the rolling history and updates the vm favorites ranking.
func (c *Context) UpdateContext(intent string, entities models.Entities) {
	if v := entities.String("vm_name"); v != "" {
		c.current.VM = v
		c.bumpFavorite("vm_name", v)
	}
	if v := entities.String("node"); v != "" {
		c.current.Node = v
	}
	if v := entities.String("container_name"); v != "" {
		c.current.Container = v
	}
	if v := entities.String("service_name"); v != "" {
		c.current.Service = v
	}

	c.lastIntent = intent
	c.lastEntities = entities.Clone()

	c.history.push(Turn{
		Timestamp: time.Now(),
		Intent:    intent,
		Entities:  entities.Clone(),
		Snapshot:  c.current,
	})
}

// Active returns the current entity pointers.
func (c *Context) Active() Snapshot {
	return c.current
}

// LastIntent returns the intent of the previous turn.
func (c *Context) LastIntent() string {
	return c.lastIntent
}

// History returns the rolling history, oldest first.
func (c *Context) History() []Turn {
	return c.history.items()
}

// PushTopic records a topic change: move-to-front in the MRU history,
// evicting the tail beyond the bound.
func (c *Context) PushTopic(topic string) {
	if topic == "" {
		return
	}
	out := make([]string, 0, len(c.TopicHistory)+1)
	out = append(out, topic)
	for _, t := range c.TopicHistory {
		if t != topic {
			out = append(out, t)
		}
	}
	if len(out) > TopicHistorySize {
		out = out[:TopicHistorySize]
	}
	c.TopicHistory = out
}

// CacheTopicEntities stores a recalled cross-session entity set for a
// topic, FIFO-evicting the oldest beyond the per-topic bound.
func (c *Context) CacheTopicEntities(topic string, entities models.Entities) {
	if topic == "" || len(entities) == 0 {
		return
	}
	entry := append(c.topicCache[topic], entities.Clone())
	if len(entry) > TopicCacheSize {
		entry = entry[len(entry)-TopicCacheSize:]
	}
	c.topicCache[topic] = entry
}

// CachedEntities returns the most recently cached entity set for a topic.
func (c *Context) CachedEntities(topic string) models.Entities {
	entry := c.topicCache[topic]
	if len(entry) == 0 {
		return nil
	}
	return entry[len(entry)-1]
}

// Favorites returns the usage-ranked favorite names for an entity key.
func (c *Context) Favorites(key string) []string {
	favs := c.favorites[key]
	out := make([]string, len(favs))
	for i, f := range favs {
		out[i] = f.name
	}
	return out
}

func (c *Context) bumpFavorite(key, name string) {
	favs := c.favorites[key]
	found := false
	for i := range favs {
		if favs[i].name == name {
			favs[i].count++
			found = true
			break
		}
	}
	if !found {
		favs = append(favs, favorite{name: name, count: 1})
	}
	sort.SliceStable(favs, func(i, j int) bool { return favs[i].count > favs[j].count })
	c.favorites[key] = favs
}

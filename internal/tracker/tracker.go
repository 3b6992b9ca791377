// Package tracker follows what a session is talking about: the current and
// previous topic plus a bounded MRU topic history, persisted through the
// conversation store.
package tracker

import (
	"log/slog"

	"github.com/virtadmin/convomem/internal/conversation"
	"github.com/virtadmin/convomem/internal/models"
	"github.com/virtadmin/convomem/internal/topic"
)

// HistorySize bounds the MRU topic history.
const HistorySize = 10

// Tracker is per-session state, owned by the session's worker.
type Tracker struct {
	convs  *conversation.Store
	logger *slog.Logger

	userID         string
	sessionID      string
	conversationID int64

	current  string
	previous string
	history  []string
}

func New(convs *conversation.Store, logger *slog.Logger) *Tracker {
	return &Tracker{convs: convs, logger: logger}
}

// StartSession binds the tracker to a (user, session) pair: the active
// conversation is resumed with its topic and tag history restored, or a new
// one is opened. The conversation ID may be the failed sentinel when
// storage is down; the session then runs stateless.
func (t *Tracker) StartSession(userID, sessionID string) (conversationID int64, resumed bool) {
	t.userID = userID
	t.sessionID = sessionID
	t.current = ""
	t.previous = ""
	t.history = nil

	if conv := t.convs.GetActiveConversation(userID, sessionID); conv != nil {
		t.conversationID = conv.ID
		t.current = conv.Topic
		for _, tag := range t.convs.ConversationTopics(conv.ID) {
			t.pushHistory(tag.Name)
		}
		if t.current != "" {
			t.pushHistory(t.current)
		}
		return conv.ID, true
	}

	t.conversationID = t.convs.StartConversation(userID, sessionID)
	return t.conversationID, false
}

// OnUserTurn persists the user message and re-derives the session topic.
// Candidate priority: intent, then a priority entity, then domain keywords
// in the utterance. A changed candidate shifts previous<-current and is
// persisted and moved to the front of the history.
func (t *Tracker) OnUserTurn(utterance, intent string, entities models.Entities) {
	if t.conversationID > 0 {
		t.convs.AddMessage(t.conversationID, models.MessageUser, utterance, intent, entities)
	}

	candidate := topic.Derive(utterance, intent, entities)
	if candidate == "" || candidate == t.current {
		return
	}

	t.previous = t.current
	t.current = candidate
	t.pushHistory(candidate)

	if t.conversationID > 0 {
		t.convs.UpdateTopic(t.conversationID, candidate)
	}
}

// OnSystemTurn only persists the system message.
func (t *Tracker) OnSystemTurn(message string) {
	if t.conversationID > 0 {
		t.convs.AddMessage(t.conversationID, models.MessageSystem, message, "", nil)
	}
}

// Transition returns a bridging phrase for the latest topic change, or ""
// when the topic is unchanged or not yet established.
func (t *Tracker) Transition() string {
	if t.previous == "" || t.current == "" || t.previous == t.current {
		return ""
	}
	return t.convs.GetConversationTransition(t.userID, t.previous, t.current)
}

// CurrentTopic returns the session's current topic.
func (t *Tracker) CurrentTopic() string { return t.current }

// PreviousTopic returns the topic before the last change.
func (t *Tracker) PreviousTopic() string { return t.previous }

// History returns the MRU topic history, most recent first.
func (t *Tracker) History() []string {
	out := make([]string, len(t.history))
	copy(out, t.history)
	return out
}

// ConversationID returns the bound conversation.
func (t *Tracker) ConversationID() int64 { return t.conversationID }

// pushHistory moves a topic to the front without duplicating it, evicting
// the tail beyond the bound.
func (t *Tracker) pushHistory(name string) {
	if name == "" {
		return
	}
	out := make([]string, 0, len(t.history)+1)
	out = append(out, name)
	for _, h := range t.history {
		if h != name {
			out = append(out, h)
		}
	}
	if len(out) > HistorySize {
		out = out[:HistorySize]
	}
	t.history = out
}

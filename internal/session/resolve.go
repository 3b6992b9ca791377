package session

import (
	"strings"

	"github.com/virtadmin/convomem/internal/models"
)

// referencePhrases are the anaphora cues that pull a missing entity from
// the matching active pointer.
var referencePhrases = map[string][]string{
	"vm_name":        {"it", "that vm", "this vm", "the vm", "this one", "that one"},
	"node":           {"that node", "this node", "the node", "that server", "this server", "the server"},
	"container_name": {"that container", "this container", "the container"},
	"service_name":   {"that service", "this service", "the service"},
}

// genericKeywords trigger the sole-favorite fallback: when the utterance
// mentions the entity type generically and exactly one favorite exists,
// assume the favorite. Known over-eager heuristic, kept for compatibility.
var genericKeywords = map[string][]string{
	"vm_name":        {"vm", "virtual machine"},
	"node":           {"node", "server", "host"},
	"container_name": {"container"},
	"service_name":   {"service"},
}

// continuationCues signal the user is carrying on the previous action.
var continuationCues = []string{"again", "also", "as well", "too", "one more time", "same"}

// historyCues signal the user is reaching back to an earlier topic.
var historyCues = []string{"previous", "previously", "earlier", "we discussed", "we talked about", "last time", "before"}

// intentPairs maps an action prefix to its counterpart. "stop_vm" after
// "start_vm" carries the previous turn's entities.
var intentPairs = map[string]string{
	"start":  "stop",
	"stop":   "start",
	"create": "delete",
	"delete": "create",
	"deploy": "remove",
	"remove": "deploy",
	"show":   "hide",
	"hide":   "show",
}

// ResolveReferences fills missing entities from session context. Resolution
// order per entity key: explicit value > active pointer via reference
// phrase > favorites (exact name, then sole favorite) > continuation
// carryover > cross-session lookup. Earlier matches short-circuit later
// stages for the same key.
func (c *Context) ResolveReferences(utterance, intent string, entities models.Entities) models.Entities {
	resolved := entities.Clone()
	lower := strings.ToLower(utterance)

	for _, key := range EntityKeys {
		if resolved.Has(key) {
			continue
		}
		if v := c.resolveFromPointer(lower, key); v != "" {
			resolved[key] = v
			continue
		}
		if v := c.resolveFromFavorites(lower, key); v != "" {
			resolved[key] = v
		}
	}

	if c.isContinuation(lower, intent) {
		c.carryOverPrevious(resolved)
	}

	if topicName := c.referencedHistoryTopic(lower); topicName != "" {
		c.fillFromTopicCache(resolved, topicName)
	}

	return resolved
}

// resolveFromPointer matches a reference phrase for the key and returns the
// active pointer value.
func (c *Context) resolveFromPointer(lower, key string) string {
	pointer := c.current.get(key)
	if pointer == "" {
		return ""
	}
	for _, p := range referencePhrases[key] {
		if containsPhrase(lower, p) {
			return pointer
		}
	}
	return ""
}

// resolveFromFavorites tries an exact favorite-name mention first, then the
// sole-favorite fallback on a generic keyword.
func (c *Context) resolveFromFavorites(lower, key string) string {
	favs := c.favorites[key]
	for _, f := range favs {
		if strings.Contains(lower, strings.ToLower(f.name)) {
			return f.name
		}
	}
	if len(favs) == 1 {
		for _, kw := range genericKeywords[key] {
			if containsPhrase(lower, kw) {
				return favs[0].name
			}
		}
	}
	return ""
}

// isContinuation reports whether the turn continues the previous one:
// either an explicit cue or a paired counterpart intent (start_/stop_,
// create_/delete_, deploy_/remove_, show_/hide_).
func (c *Context) isContinuation(lower, intent string) bool {
	for _, cue := range continuationCues {
		if containsPhrase(lower, cue) {
			return true
		}
	}
	if intent == "" || c.lastIntent == "" {
		return false
	}
	prefix, rest, ok := strings.Cut(intent, "_")
	if !ok {
		return false
	}
	prevPrefix, prevRest, ok := strings.Cut(c.lastIntent, "_")
	if !ok {
		return false
	}
	return intentPairs[prefix] == prevPrefix && rest == prevRest
}

// carryOverPrevious copies missing entities from the immediately preceding
// turn.
func (c *Context) carryOverPrevious(resolved models.Entities) {
	prev, ok := c.history.last()
	if !ok {
		return
	}
	for _, key := range EntityKeys {
		if !resolved.Has(key) {
			if v := prev.Entities.String(key); v != "" {
				resolved[key] = v
			}
		}
	}
}

// referencedHistoryTopic returns a topic-history entry referenced by the
// utterance: a history cue must be present and an utterance token must
// match the topic.
func (c *Context) referencedHistoryTopic(lower string) string {
	cued := false
	for _, cue := range historyCues {
		if strings.Contains(lower, cue) {
			cued = true
			break
		}
	}
	if !cued {
		return ""
	}

	for _, tok := range strings.Fields(lower) {
		tok = strings.Trim(tok, ".,!?\"'")
		if len(tok) < 3 {
			continue
		}
		for _, t := range c.TopicHistory {
			if strings.Contains(strings.ToLower(t), tok) {
				return t
			}
		}
	}
	return ""
}

// fillFromTopicCache pulls missing entities from the most recent cached
// cross-session entity set for the topic.
func (c *Context) fillFromTopicCache(resolved models.Entities, topicName string) {
	cached := c.CachedEntities(topicName)
	if cached == nil {
		return
	}
	for _, key := range EntityKeys {
		if !resolved.Has(key) {
			if v := cached.String(key); v != "" {
				resolved[key] = v
			}
		}
	}
}

// containsPhrase matches a phrase on word boundaries so "it" does not match
// "monitor".
func containsPhrase(lower, p string) bool {
	idx := 0
	for {
		i := strings.Index(lower[idx:], p)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(p)
		startOK := start == 0 || !isWordChar(lower[start-1])
		endOK := end == len(lower) || !isWordChar(lower[end])
		if startOK && endOK {
			return true
		}
		idx = start + 1
		if idx >= len(lower) {
			return false
		}
	}
}

func isWordChar(b byte) bool {
	return b == '_' || b == '-' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}

// Package topic derives short topic labels from turns. It has no storage
// dependencies so both the tracker and the conversation store can share it.
package topic

import (
	"regexp"
	"strings"

	"github.com/virtadmin/convomem/internal/models"
)

// priorityEntities are checked in order when no intent is available. The
// label is "<entity type> <value>", e.g. "vm vm-100".
var priorityEntities = []struct {
	key   string
	label string
}{
	{"vm_name", "vm"},
	{"service_name", "service"},
	{"node", "node"},
	{"container_name", "container"},
}

// vocabulary maps domain keyword patterns to topic labels. First match wins;
// ExtractKeywords preserves pattern order and de-duplicates.
var vocabulary = []struct {
	re    *regexp.Regexp
	label string
}{
	{regexp.MustCompile(`(?i)\b(vm|vms|virtual machines?)\b`), "vm"},
	{regexp.MustCompile(`(?i)\b(services?|daemons?)\b`), "service"},
	{regexp.MustCompile(`(?i)\b(nodes?|servers?|hosts?)\b`), "node"},
	{regexp.MustCompile(`(?i)\b(containers?|docker|lxc)\b`), "container"},
	{regexp.MustCompile(`(?i)\b(backups?|restores?|snapshots?)\b`), "backup"},
	{regexp.MustCompile(`(?i)\b(updates?|upgrades?|patch(es|ing)?)\b`), "update"},
	{regexp.MustCompile(`(?i)\b(storage|disks?|volumes?)\b`), "storage"},
}

// Derive produces a candidate topic for a user turn. Priority: the supplied
// intent in human-readable form, then a priority entity, then the first
// keyword match in the utterance. Returns "" when nothing matches.
func Derive(utterance, intent string, entities models.Entities) string {
	if intent != "" {
		return Humanize(intent)
	}
	for _, pe := range priorityEntities {
		if v := entities.String(pe.key); v != "" {
			return pe.label + " " + v
		}
	}
	if kws := ExtractKeywords(utterance); len(kws) > 0 {
		return kws[0]
	}
	return ""
}

// Humanize turns a snake_case intent into a readable topic label.
func Humanize(intent string) string {
	return strings.TrimSpace(strings.ToLower(strings.ReplaceAll(intent, "_", " ")))
}

// ExtractKeywords returns the domain topics mentioned in the utterance,
// de-duplicated, in vocabulary order.
func ExtractKeywords(utterance string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, v := range vocabulary {
		if v.re.MatchString(utterance) && !seen[v.label] {
			seen[v.label] = true
			out = append(out, v.label)
		}
	}
	return out
}

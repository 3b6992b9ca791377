package memory

import "time"

// defaultRelationship is assumed when a topic pair has no stored
// association.
const defaultRelationship = "related"

// transitionTemplates holds one phrase family per relationship type, four
// candidates each. Placeholders: {topic} is the new topic, {relatedTopic}
// the one being left, {detail} a short reference to the earlier discussion,
// {timeAgo} a rough recency phrase.
var transitionTemplates = map[string][]string{
	"continuation": {
		"Continuing from {relatedTopic}, let's get into {topic}.",
		"Building on {relatedTopic}, here's {topic}.",
		"Following up on {relatedTopic}: now, {topic}.",
		"Since we were just on {relatedTopic}, {topic} is the natural next step.",
	},
	"related": {
		"On a related note to {relatedTopic}, let's talk about {topic}.",
		"{topic} ties in closely with {relatedTopic}.",
		"This connects with {detail}; now about {topic}.",
		"Like {relatedTopic}, {topic} is worth a look here.",
	},
	"contrast": {
		"Unlike {relatedTopic}, {topic} works a bit differently.",
		"Switching tracks from {relatedTopic} to {topic}.",
		"In contrast to {relatedTopic}, here's {topic}.",
		"{topic} takes a different approach than {relatedTopic}.",
	},
	"time_based": {
		"We looked at {relatedTopic} {timeAgo}; time for {topic}.",
		"{relatedTopic} came up {timeAgo}. Now, {topic}.",
		"Picking {topic} back up after {relatedTopic} {timeAgo}.",
		"It was {relatedTopic} {timeAgo}; today it's {topic}.",
	},
}

// timeAgo renders a rough recency phrase for a past Unix timestamp.
func timeAgo(unix int64, now time.Time) string {
	if unix <= 0 {
		return "a while back"
	}
	d := now.Sub(time.Unix(unix, 0))
	switch {
	case d < time.Hour:
		return "a moment ago"
	case d < 24*time.Hour:
		return "earlier today"
	case d < 7*24*time.Hour:
		return "a few days ago"
	default:
		return "a while back"
	}
}

package session

import (
	"fmt"
	"strings"
)

// DefaultRelatednessThreshold is the lexical-overlap score above which two
// user messages are considered part of the same topic. The value has no
// documented derivation; it is kept configurable on the Manager.
const DefaultRelatednessThreshold = 0.3

// stopWords are excluded before computing lexical overlap between messages.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "have": {}, "has": {}, "had": {}, "do": {},
	"does": {}, "did": {}, "will": {}, "would": {}, "could": {}, "should": {},
	"may": {}, "might": {}, "must": {}, "shall": {}, "can": {}, "need": {},
	"dare": {}, "ought": {}, "used": {}, "to": {}, "of": {}, "in": {},
	"for": {}, "on": {}, "with": {}, "at": {}, "by": {}, "from": {},
	"as": {}, "into": {}, "through": {}, "during": {}, "before": {},
	"after": {}, "above": {}, "below": {}, "between": {}, "under": {},
	"and": {}, "but": {}, "or": {}, "yet": {}, "so": {}, "if": {},
	"because": {}, "although": {}, "though": {}, "while": {}, "where": {},
	"when": {}, "that": {}, "which": {}, "who": {}, "whom": {}, "whose": {},
	"what": {}, "this": {}, "these": {}, "those": {}, "i": {}, "me": {},
	"my": {}, "mine": {}, "myself": {}, "you": {}, "your": {}, "yours": {},
	"yourself": {}, "he": {}, "him": {}, "his": {}, "himself": {}, "she": {},
	"her": {}, "hers": {}, "herself": {}, "it": {}, "its": {}, "itself": {},
	"we": {}, "us": {}, "our": {}, "ours": {}, "ourselves": {}, "they": {},
	"them": {}, "their": {}, "theirs": {}, "themselves": {}, "am": {},
	"being": {},
}

// exchange is one user message paired with the assistant reply that
// followed it, if any.
type exchange struct {
	user      string
	assistant string
}

// pairExchanges reduces a turn list to ordered (user, assistant) pairs.
// Each user turn opens a pair; the next assistant turn completes it. A user
// turn arriving while a pair is open flushes that pair first, so a question
// without an answer keeps an empty assistant half. System turns (including
// trim markers) are ignored.
func pairExchanges(turns []Turn) []exchange {
	var pairs []exchange
	var cur *exchange
	for _, t := range turns {
		switch t.Role {
		case RoleUser:
			if cur != nil {
				pairs = append(pairs, *cur)
			}
			cur = &exchange{user: t.Text}
		case RoleAssistant:
			if cur != nil {
				cur.assistant = t.Text
			}
		}
	}
	if cur != nil {
		pairs = append(pairs, *cur)
	}
	return pairs
}

// keywordSet lowercases, splits on whitespace and drops stop words.
func keywordSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if _, stop := stopWords[w]; stop {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

// related reports whether two user messages share enough keywords to count
// as one topic: |intersection| / max(|a|,|b|) > threshold. A message left
// with no keywords after stop-word removal is never related to anything.
func related(a, b string, threshold float64) bool {
	ka := keywordSet(a)
	kb := keywordSet(b)
	if len(ka) == 0 || len(kb) == 0 {
		return false
	}
	overlap := 0
	for w := range ka {
		if _, ok := kb[w]; ok {
			overlap++
		}
	}
	denom := len(ka)
	if len(kb) > denom {
		denom = len(kb)
	}
	return float64(overlap)/float64(denom) > threshold
}

// groupByTopic greedily partitions pairs into contiguous topic groups: a pair
// joins the open group when its user text is related to the previous pair's.
func groupByTopic(pairs []exchange, threshold float64) [][]exchange {
	var groups [][]exchange
	var cur []exchange
	for _, p := range pairs {
		if len(cur) > 0 && related(cur[len(cur)-1].user, p.user, threshold) {
			cur = append(cur, p)
			continue
		}
		if len(cur) > 0 {
			groups = append(groups, cur)
		}
		cur = []exchange{p}
	}
	if len(cur) > 0 {
		groups = append(groups, cur)
	}
	return groups
}

// theme condenses a user message to its first five words, capped at 50 chars.
func theme(userText string) string {
	words := strings.Fields(userText)
	if len(words) > 5 {
		words = words[:5]
	}
	t := strings.Join(words, " ")
	if len(t) > 50 {
		t = t[:50] + "..."
	}
	return t
}

func summarizeGroup(group []exchange) string {
	if len(group) == 0 {
		return ""
	}

	var themes []string
	seen := make(map[string]struct{})
	for _, p := range group {
		th := theme(p.user)
		if _, dup := seen[th]; dup {
			continue
		}
		seen[th] = struct{}{}
		themes = append(themes, th)
	}

	if len(group) == 1 {
		return fmt.Sprintf("- Discussed: %s", themes[0])
	}
	if len(themes) > 3 {
		themes = themes[:3]
	}
	return fmt.Sprintf("- Discussed %d related topics including: %s", len(group), strings.Join(themes, ", "))
}

// BuildSummary renders a session's turns into a topic-grouped summary
// string, one line per topic group under a header naming the session.
// It returns "" when the session holds no user messages worth summarizing.
func BuildSummary(sessionID string, turns []Turn, threshold float64) string {
	pairs := pairExchanges(turns)
	if len(pairs) == 0 {
		return ""
	}

	groups := groupByTopic(pairs, threshold)
	lines := make([]string, 0, len(groups))
	for _, g := range groups {
		lines = append(lines, summarizeGroup(g))
	}

	return fmt.Sprintf("Session %s Summary:\n%s", sessionID, strings.Join(lines, "\n"))
}

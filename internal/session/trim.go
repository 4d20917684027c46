package session

import (
	"fmt"
	"time"
)

// trimTurns enforces the dual context budget on a turn list, oldest first.
//
// Pass 1 evicts oldest turns until the count fits maxTurns, then prepends a
// single system marker recording how many were removed. Pass 2 evicts the
// oldest non-marker turns until the summed text length fits maxChars, but
// stops rather than reduce the list below one turn. Both passes are
// best-effort: the result may stay over budget when trimming further would
// empty the conversation.
func trimTurns(turns []Turn, maxTurns, maxChars int) []Turn {
	if maxTurns <= 0 || maxChars <= 0 {
		return turns
	}

	removed := 0
	for len(turns) > maxTurns {
		turns = turns[1:]
		removed++
	}
	if removed > 0 {
		marker := Turn{
			Role:      RoleSystem,
			Text:      fmt.Sprintf("[Context trimmed: %d older messages removed]", removed),
			Timestamp: time.Now().UTC(),
			Metadata:  map[string]any{"type": markerType, "removed": removed},
		}
		turns = append([]Turn{marker}, turns...)
	}

	for totalChars(turns) > maxChars && len(turns) > 1 {
		idx := -1
		for i, t := range turns {
			if !isMarker(t) {
				idx = i
				break
			}
		}
		if idx < 0 {
			break
		}
		turns = append(turns[:idx], turns[idx+1:]...)
	}

	return turns
}

func totalChars(turns []Turn) int {
	total := 0
	for _, t := range turns {
		total += len(t.Text)
	}
	return total
}

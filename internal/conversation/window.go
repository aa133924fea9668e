// Package conversation selects the prior chat turns that are passed to answer synthesis.
package conversation

import (
	"strings"

	"github.com/hyperjump/blueprint/internal/models"
)

// DefaultTurns is how many recent turns are kept when no limit is given.
const DefaultTurns = 10

// placeholders are transient UI messages a client may send back as history.
var placeholders = map[string]struct{}{
	"processing":         {},
	"processing...":      {},
	"thinking":           {},
	"thinking...":        {},
	"uploading files":    {},
	"uploading files...": {},
	"loading...":         {},
	"typing...":          {},
}

// Window returns the most recent n usable turns of history, oldest first.
// Only user and assistant turns with real content survive; roles are lower-cased,
// content is trimmed, and attachments are dropped. n <= 0 means DefaultTurns.
// history is not modified.
func Window(history []models.ConversationTurn, n int) []models.ConversationTurn {
	if n <= 0 {
		n = DefaultTurns
	}
	kept := make([]models.ConversationTurn, 0, min(len(history), n))
	for _, turn := range history {
		role := models.Role(strings.ToLower(strings.TrimSpace(string(turn.Role))))
		if role != models.RoleUser && role != models.RoleAssistant {
			continue
		}
		content := strings.TrimSpace(turn.Content)
		if content == "" || isPlaceholder(content) {
			continue
		}
		kept = append(kept, models.ConversationTurn{Role: role, Content: content})
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return kept
}

func isPlaceholder(content string) bool {
	_, ok := placeholders[strings.ToLower(content)]
	return ok
}

// Format renders turns as "User: ..." / "Assistant: ..." lines for a prompt.
func Format(turns []models.ConversationTurn) string {
	var b strings.Builder
	for _, turn := range turns {
		if turn.Role == models.RoleUser {
			b.WriteString("User: ")
		} else {
			b.WriteString("Assistant: ")
		}
		b.WriteString(turn.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

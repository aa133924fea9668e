package synth

import (
	"fmt"
	"strings"

	"github.com/hyperjump/blueprint/internal/conversation"
	"github.com/hyperjump/blueprint/internal/models"
)

const systemPrompt = `You are a helpful assistant specialized in architectural drawings.
Answer only from the numbered passages taken from technical drawings, notes, legends, and specifications.
When giving measurements, keep the original units and scales exactly as written.
If the passages do not contain the answer, say you are unsure and suggest how to verify it on the drawings.
Never cite a drawing that does not appear in the passages.`

const responseSchema = `Respond with a single JSON object and nothing else:
{"answer": string, "confidence": "high" | "medium" | "low", "drawings_referenced": [string]}
"drawings_referenced" lists the drawing names you used, spelled exactly as in the passages.`

// buildPrompt renders the passages, the conversation window, and the question as one user message.
func buildPrompt(query string, hits []models.RetrievalHit, window []models.ConversationTurn) string {
	var b strings.Builder
	b.WriteString("Passages:\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] Drawing: %s | Page: %d | Score: %.3f\n%s\n\n", i+1, h.DrawingName, h.Page, h.Score, strings.TrimSpace(h.Text))
	}
	if len(window) > 0 {
		b.WriteString("Conversation so far:\n")
		b.WriteString(conversation.Format(window))
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Question: %s\n\n", strings.TrimSpace(query))
	b.WriteString(responseSchema)
	return b.String()
}

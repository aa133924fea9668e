package models

// Confidence is the coarse reliability label attached to an answer.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

var confidenceRank = map[Confidence]int{
	ConfidenceLow:    0,
	ConfidenceMedium: 1,
	ConfidenceHigh:   2,
}

// ParseConfidence maps a free-form label to a Confidence. Unknown labels map to low.
func ParseConfidence(s string) (Confidence, bool) {
	switch c := Confidence(normalizeLabel(s)); c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return c, true
	default:
		return ConfidenceLow, false
	}
}

// Min returns the lower of two confidence levels.
func (c Confidence) Min(other Confidence) Confidence {
	if confidenceRank[other] < confidenceRank[c] {
		return other
	}
	return c
}

func normalizeLabel(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b >= 'A' && b <= 'Z':
			out = append(out, b+('a'-'A'))
		case b == ' ' || b == '\t' || b == '\n' || b == '"':
		default:
			out = append(out, b)
		}
	}
	return string(out)
}

// RetrievalHit is one ranked chunk returned by similarity search.
type RetrievalHit struct {
	ChunkID     string  `json:"chunk_id"`
	DocumentID  string  `json:"document_id"`
	DrawingName string  `json:"drawing_name"`
	Page        int     `json:"page"`
	Text        string  `json:"text"`
	Score       float64 `json:"score"`
}

// Role is the speaker of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn is one prior message in a chat.
type ConversationTurn struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment is client-side file metadata that may ride along with a turn.
type Attachment struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
	Size int64  `json:"size,omitempty"`
}

// Source is a citation derived from a retrieval hit.
type Source struct {
	DrawingName string  `json:"drawing_name"`
	Page        int     `json:"page"`
	Score       float64 `json:"score"`
}

// AnswerResult is the synthesized response to a query.
type AnswerResult struct {
	Answer             string     `json:"answer"`
	Confidence         Confidence `json:"confidence"`
	DrawingsReferenced []string   `json:"drawings_referenced"`
	Sources            []Source   `json:"sources"`
	MoreSources        int        `json:"more_sources,omitempty"`
	Warnings           []string   `json:"warnings,omitempty"`
}

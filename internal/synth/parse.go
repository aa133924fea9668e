package synth

import (
	"encoding/json"
	"strings"
)

// modelAnswer is the JSON object the model is asked to return.
type modelAnswer struct {
	Answer             string   `json:"answer"`
	Confidence         string   `json:"confidence"`
	DrawingsReferenced []string `json:"drawings_referenced"`
}

// parseModelAnswer extracts the first JSON object from raw, tolerating code fences and
// surrounding prose. ok is false when no object with a non-empty answer can be decoded.
func parseModelAnswer(raw string) (modelAnswer, bool) {
	text := stripCodeFence(strings.TrimSpace(raw))
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return modelAnswer{}, false
	}
	var m modelAnswer
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	if err := dec.Decode(&m); err != nil {
		return modelAnswer{}, false
	}
	m.Answer = strings.TrimSpace(m.Answer)
	if m.Answer == "" {
		return modelAnswer{}, false
	}
	return m, true
}

func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		// drop the language tag line, e.g. ```json
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

package synth

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hyperjump/blueprint/internal/models"
)

func TestParseModelAnswer(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		ok     bool
		answer string
	}{
		{"plain", `{"answer":"A","confidence":"high"}`, true, "A"},
		{"fenced", "```json\n{\"answer\":\"B\"}\n```", true, "B"},
		{"prose around", "Here you go: {\"answer\":\"C\"} hope it helps", true, "C"},
		{"empty answer", `{"answer":"  "}`, false, ""},
		{"no object", "just text", false, ""},
		{"broken", `{"answer": "D"`, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := parseModelAnswer(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.answer, m.Answer)
		})
	}
}

func TestCitedDrawings(t *testing.T) {
	hits := []models.RetrievalHit{{DrawingName: "A-101.pdf"}, {DrawingName: "S-201.pdf"}}
	got := citedDrawings([]string{" s-201 ", "A-101.pdf", "S-201.pdf", "X-1.pdf"}, hits)
	assert.Equal(t, []string{"S-201.pdf", "A-101.pdf"}, got)
	assert.NotNil(t, citedDrawings(nil, hits))
}

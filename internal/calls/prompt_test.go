package calls

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"recruitflow/internal/models"
)

func TestRenderTemplate(t *testing.T) {
	vars := map[string]string{
		"candidate_name": "Maria Ionescu",
		"position_title": "Store Manager",
	}

	out := RenderTemplate("Hi {candidate_name}, about the {position_title} role.", vars)
	assert.Equal(t, "Hi Maria Ionescu, about the Store Manager role.", out)
}

func TestRenderTemplate_UnknownPlaceholderLeftIntact(t *testing.T) {
	out := RenderTemplate("Hello {candidate_nmae}", map[string]string{"candidate_name": "Maria"})
	assert.Equal(t, "Hello {candidate_nmae}", out)
}

func TestFormAnswersBlock(t *testing.T) {
	cand := &models.Candidate{
		FormAnswers: map[string]string{
			"experience_years":    "4",
			"available_full_time": "yes",
		},
	}

	block := FormAnswersBlock(cand)
	assert.Equal(t, "Q: available full time\nA: yes\nQ: experience years\nA: 4", block)
}

func TestFormAnswersBlock_Empty(t *testing.T) {
	assert.Equal(t, "", FormAnswersBlock(&models.Candidate{}))
}

func TestFormatTranscript(t *testing.T) {
	turns := []Turn{
		{Role: "agent", Message: "Hello, am I speaking with Maria?"},
		{Role: "user", Text: "Yes, speaking."},
		{Role: "agent", Content: "Great, a few quick questions."},
		{Role: "agent"}, // tool event, no text
	}

	got := FormatTranscript(turns)
	want := "Agent: Hello, am I speaking with Maria?\n" +
		"User: Yes, speaking.\n" +
		"Agent: Great, a few quick questions."
	assert.Equal(t, want, got)
}

func TestFormatTranscript_MissingRole(t *testing.T) {
	got := FormatTranscript([]Turn{{Text: "hello?"}})
	assert.Equal(t, "Unknown: hello?", got)
}

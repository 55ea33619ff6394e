package calls

import (
	"fmt"
	"sort"
	"strings"

	"recruitflow/internal/models"
)

// RenderTemplate substitutes {placeholder} tokens in a prompt template.
// Unknown placeholders are left intact so a typo in a template is visible in
// the rendered output instead of silently vanishing.
func RenderTemplate(template string, vars map[string]string) string {
	out := template
	for key, value := range vars {
		out = strings.ReplaceAll(out, "{"+key+"}", value)
	}
	return out
}

// PromptVars builds the standard placeholder set for one candidate/position
// pair.
func PromptVars(cand *models.Candidate, pos *models.Position) map[string]string {
	return map[string]string{
		"candidate_name": cand.FullName,
		"first_name":     cand.FirstName,
		"position_title": pos.Title,
		"questions":      pos.CampaignQuestions,
		"form_answers":   FormAnswersBlock(cand),
	}
}

// FormAnswersBlock renders the candidate's intake answers as a Q/A block.
// Keys are underscored column headers; they read fine as question labels once
// the underscores become spaces.
func FormAnswersBlock(cand *models.Candidate) string {
	if len(cand.FormAnswers) == 0 {
		return ""
	}
	keys := make([]string, 0, len(cand.FormAnswers))
	for k := range cand.FormAnswers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		label := strings.ReplaceAll(k, "_", " ")
		fmt.Fprintf(&b, "Q: %s\nA: %s\n", label, cand.FormAnswers[k])
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatTranscript renders provider transcript turns as a dialogue block.
// Turns with no text (tool events, silence markers) are dropped.
func FormatTranscript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		line := strings.TrimSpace(t.Line())
		if line == "" {
			continue
		}
		role := t.Role
		if role == "" {
			role = "unknown"
		}
		fmt.Fprintf(&b, "%s: %s\n", capitalize(role), line)
	}
	return strings.TrimRight(b.String(), "\n")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

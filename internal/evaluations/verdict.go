package evaluations

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	apperrors "recruitflow/internal/common/errors"
	"recruitflow/internal/models"
)

// Verdict is the scoring provider's structured decision, after parsing and
// schema validation.
type Verdict struct {
	Outcome   string `json:"outcome"`
	Qualified bool   `json:"qualified"`
	Score     int    `json:"score"`
	Reasoning string `json:"reasoning"`

	CallbackRequested bool   `json:"callback_requested"`
	CallbackNotes     string `json:"callback_notes"`
	CallbackAt        string `json:"callback_at"`

	NeedsHuman      bool   `json:"needs_human"`
	NeedsHumanNotes string `json:"needs_human_notes"`
}

const verdictSchema = `{
	"type": "object",
	"required": ["outcome", "qualified", "score"],
	"properties": {
		"outcome": {"type": "string", "enum": ["qualified", "not_qualified", "callback_requested", "needs_human"]},
		"qualified": {"type": "boolean"},
		"score": {"type": "integer", "minimum": 0, "maximum": 100},
		"reasoning": {"type": "string"},
		"callback_requested": {"type": "boolean"},
		"callback_notes": {"type": "string"},
		"callback_at": {"type": ["string", "null"]},
		"needs_human": {"type": "boolean"},
		"needs_human_notes": {"type": "string"}
	}
}`

var verdictSchemaLoader = gojsonschema.NewStringLoader(verdictSchema)

// ParseVerdict decodes a raw model response into a Verdict. Strict decode
// first; one lenient repair pass on failure; a schema check on whatever
// decoded. After the repair pass the error is fatal for this evaluation
// attempt — no guessed outcome.
func ParseVerdict(raw string) (*Verdict, error) {
	candidate := strings.TrimSpace(raw)

	verdict, err := decodeAndValidate(candidate)
	if err == nil {
		return verdict, nil
	}

	repaired := repairJSON(candidate)
	verdict, repairErr := decodeAndValidate(repaired)
	if repairErr == nil {
		return verdict, nil
	}

	return nil, fmt.Errorf("%w: %v (after repair: %v)",
		apperrors.ErrVerdictParse, err, repairErr)
}

func decodeAndValidate(s string) (*Verdict, error) {
	result, err := gojsonschema.Validate(verdictSchemaLoader, gojsonschema.NewStringLoader(s))
	if err != nil {
		return nil, err
	}
	if !result.Valid() {
		issues := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			issues = append(issues, e.String())
		}
		return nil, fmt.Errorf("schema violations: %s", strings.Join(issues, "; "))
	}

	var v Verdict
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, err
	}
	if !models.ValidOutcome(v.Outcome) {
		return nil, fmt.Errorf("unknown outcome %q", v.Outcome)
	}
	return &v, nil
}

// repairJSON handles the common near-JSON defects models produce: markdown
// fencing, prose around the object, trailing commas, literal newlines inside
// strings.
func repairJSON(s string) string {
	// Strip markdown fences.
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		if idx := strings.LastIndex(s, "```"); idx >= 0 {
			s = s[:idx]
		}
	}

	// Cut to the outermost object.
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}

	// Escape literal control characters inside string values.
	var b strings.Builder
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			b.WriteRune(r)
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
			b.WriteRune(r)
		case '\n':
			if inString {
				b.WriteString(`\n`)
			} else {
				b.WriteRune(r)
			}
		case '\t':
			if inString {
				b.WriteString(`\t`)
			} else {
				b.WriteRune(r)
			}
		default:
			b.WriteRune(r)
		}
	}
	s = b.String()

	// Trailing commas before a closing brace/bracket.
	s = strings.ReplaceAll(s, ",\n}", "\n}")
	s = strings.ReplaceAll(s, ",}", "}")
	s = strings.ReplaceAll(s, ",]", "]")

	return strings.TrimSpace(s)
}

// CallbackTime parses the verdict's callback_at field. A missing or
// unparseable value defaults to the next business day.
func (v *Verdict) CallbackTime(now time.Time) time.Time {
	if v.CallbackAt != "" {
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"} {
			if t, err := time.Parse(layout, v.CallbackAt); err == nil {
				return t
			}
		}
	}
	next := now.Add(24 * time.Hour)
	if next.Weekday() == time.Saturday {
		next = next.Add(48 * time.Hour)
	} else if next.Weekday() == time.Sunday {
		next = next.Add(24 * time.Hour)
	}
	return next
}

package cvs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRatio(t *testing.T) {
	assert.Equal(t, 1.0, Ratio("maria ionescu", "maria ionescu"))
	assert.Equal(t, 1.0, Ratio("", ""))
	assert.Equal(t, 0.0, Ratio("abc", ""))
	assert.Equal(t, 0.0, Ratio("abc", "xyz"))

	// One transposed pair still scores high.
	assert.Greater(t, Ratio("maria ionescu", "maria ioncesu"), 0.8)
	// Unrelated names score low.
	assert.Less(t, Ratio("maria ionescu", "john smith"), 0.4)
}

func TestNameRatio_OrderInsensitive(t *testing.T) {
	assert.Equal(t, 1.0, NameRatio("Ionescu Maria", "Maria Ionescu"))
	assert.Equal(t, 1.0, NameRatio("  MARIA   ionescu ", "Maria Ionescu"))
}

func TestNameRatio_TypoStillClearsThreshold(t *testing.T) {
	assert.GreaterOrEqual(t, NameRatio("Maria Ionesci", "Maria Ionescu"), fuzzyThreshold)
}

func TestNameRatio_EmptyNames(t *testing.T) {
	assert.Equal(t, 0.0, NameRatio("", "Maria Ionescu"))
	assert.Equal(t, 0.0, NameRatio("Maria", ""))
}

func TestExtractReferenceToken(t *testing.T) {
	tests := []struct {
		text   string
		wantID int64
		wantOK bool
	}{
		{"App #42", 42, true},
		{"Application ID: 123", 123, true},
		{"my application id 123 attached", 123, true},
		{"Ref 456", 456, true},
		{"reference: 456", 456, true},
		{"#789", 789, true},
		{"CV for the store manager role", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			id, ok := extractReferenceToken(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantID, id)
			}
		})
	}
}

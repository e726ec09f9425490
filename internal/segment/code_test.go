package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCode_Segment_SplitsCamelCaseAndSnakeCase(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "camelCase",
			text: "getUserById",
			want: []string{"get", "user", "by", "id"},
		},
		{
			name: "snake_case",
			text: "fetch_user_profile",
			want: []string{"fetch", "user", "profile"},
		},
		{
			name: "acronym",
			text: "parseHTTPRequest",
			want: []string{"parse", "http", "request"},
		},
	}

	c := NewCode()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Segment(tt.text))
		})
	}
}

func TestCode_Segment_DropsStopWordsAndShortTokens(t *testing.T) {
	c := NewCode()
	got := c.Segment("func if a return value")
	assert.Empty(t, got)
}

func TestCode_Segment_EmptyInputReturnsNonNilEmptySlice(t *testing.T) {
	c := NewCode()
	got := c.Segment("")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSplitIdentifier_MixedSnakeAndCamel(t *testing.T) {
	assert.Equal(t, []string{"parse", "HTTP", "request"}, SplitIdentifier("parseHTTP_request"))
}

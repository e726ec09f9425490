package segment

import (
	"regexp"
	"strings"
	"unicode"
)

// tokenRegex matches alphanumeric runs, the unit SplitIdentifier further
// splits on casing and underscores.
var tokenRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// DefaultStopWords are filtered out of every Code segmentation. They are
// the programming keywords and placeholder identifiers that occur so often
// they carry no discriminating signal for BM25.
var DefaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// Code is the default Segmenter: a code-aware tokenizer that splits
// camelCase, PascalCase and snake_case identifiers into sub-words, lowercases
// everything, drops tokens shorter than MinLength, and filters StopWords.
type Code struct {
	// StopWords is the set of lowercase tokens to drop. Nil means
	// DefaultStopWords.
	StopWords map[string]struct{}

	// MinLength is the minimum token length kept. Zero means 2.
	MinLength int
}

// NewCode builds a Code segmenter with DefaultStopWords and MinLength 2.
func NewCode() *Code {
	return &Code{
		StopWords: BuildStopWordMap(DefaultStopWords),
		MinLength: 2,
	}
}

func (c *Code) Segment(text string) []string {
	minLen := c.MinLength
	if minLen == 0 {
		minLen = 2
	}
	stop := c.StopWords
	if stop == nil {
		stop = BuildStopWordMap(DefaultStopWords)
	}

	tokens := make([]string, 0, 16)
	for _, word := range tokenRegex.FindAllString(text, -1) {
		for _, t := range SplitIdentifier(word) {
			lower := strings.ToLower(t)
			if len(lower) < minLen {
				continue
			}
			if _, isStop := stop[lower]; isStop {
				continue
			}
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// SplitIdentifier splits a snake_case and/or camelCase/PascalCase identifier
// into its constituent sub-words, e.g. "parseHTTP_request" -> ["parse",
// "HTTP", "request"].
func SplitIdentifier(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, splitCamelCase(part)...)
			}
		}
		return result
	}
	return splitCamelCase(token)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevIsLower || nextIsLower {
				if current.Len() > 0 {
					result = append(result, current.String())
					current.Reset()
				}
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// BuildStopWordMap converts a stop word slice into a lowercased lookup set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, w := range stopWords {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

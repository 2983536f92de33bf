// Package text normalizes dialogue lines before they are sent for speech synthesis.
package text

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Regex patterns for text preprocessing.
const (
	abbreviationRegexPattern = `\b(?:Mrs|Mr|Ms|Dr|Prof|St|etc|vs|e\.g|i\.e)\.`
	referenceRegexPattern    = `\[\d+(?:[,\-–]\s*\d+)*\]|[¹²³⁴⁵⁶⁷⁸⁹⁰]+`
	whitespaceRegexPattern   = `\s+`
	spaceBeforePunctPatten   = `\s+([,.;:!?])`
)

// Punctuation and formatting constants.
const (
	emDash       = "—"
	enDash       = "–"
	figureDash   = "‒"
	ellipsis     = "..."
	ellipsisChar = "…"
)

// abbreviations are expanded only when they start a word.
var abbreviations = map[string]string{
	"Mr.":   "Mister",
	"Mrs.":  "Misses",
	"Ms.":   "Miss",
	"Dr.":   "Doctor",
	"Prof.": "Professor",
	"St.":   "Saint",
	"e.g.":  "for example",
	"i.e.":  "that is",
	"etc.":  "et cetera",
	"vs.":   "versus",
}

// Preprocessor normalizes text for speech synthesis.
type Preprocessor struct {
	abbreviationPattern    *regexp.Regexp
	referencePattern       *regexp.Regexp
	whitespacePattern      *regexp.Regexp
	spaceBeforePunctuation *regexp.Regexp
	symbolReplacer         *strings.Replacer
}

// NewPreprocessor creates a new text preprocessor with compiled patterns and replacers.
func NewPreprocessor() *Preprocessor {
	symbols := []string{
		emDash, ", ",
		enDash, "-",
		figureDash, "-",
		ellipsisChar, ellipsis,
		"“", `"`, "”", `"`,
		"‘", "'", "’", "'",
		"&", " and ",
	}

	return &Preprocessor{
		abbreviationPattern:    regexp.MustCompile(abbreviationRegexPattern),
		referencePattern:       regexp.MustCompile(referenceRegexPattern),
		whitespacePattern:      regexp.MustCompile(whitespaceRegexPattern),
		spaceBeforePunctuation: regexp.MustCompile(spaceBeforePunctPatten),
		symbolReplacer:         strings.NewReplacer(symbols...),
	}
}

// PreprocessText expands abbreviations, drops citation markers, normalizes quotes and dashes,
// collapses whitespace and repeated punctuation, and terminates the sentence.
func (p *Preprocessor) PreprocessText(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}

	normalizedText := p.abbreviationPattern.ReplaceAllStringFunc(text, expandAbbreviation)
	normalizedText = p.referencePattern.ReplaceAllString(normalizedText, "")
	normalizedText = p.symbolReplacer.Replace(normalizedText)
	normalizedText = p.whitespacePattern.ReplaceAllString(normalizedText, " ")
	normalizedText = p.spaceBeforePunctuation.ReplaceAllString(normalizedText, "$1")
	normalizedText = collapseRepeatedPunctuation(normalizedText)

	return ensureProperSentenceEnding(normalizedText)
}

func expandAbbreviation(match string) string {
	if expansion, ok := abbreviations[match]; ok {
		return expansion
	}

	return match
}

// collapseRepeatedPunctuation reduces runs of the same mark to one. Periods are left alone
// so ellipses survive.
func collapseRepeatedPunctuation(text string) string {
	var (
		builder strings.Builder
		last    rune
	)

	builder.Grow(len(text))

	for _, char := range text {
		if char == last && strings.ContainsRune("!?,;:", char) {
			continue
		}

		builder.WriteRune(char)

		last = char
	}

	return builder.String()
}

// ensureProperSentenceEnding appends a period when the text does not already end a sentence.
func ensureProperSentenceEnding(text string) string {
	trimmedText := strings.TrimSpace(text)
	if trimmedText == "" {
		return ""
	}

	lastChar, _ := utf8.DecodeLastRuneInString(trimmedText)

	switch lastChar {
	case '.', '!', '?', '"', '\'', ')':
		return trimmedText
	}

	if unicode.IsPunct(lastChar) {
		return strings.TrimRightFunc(trimmedText, unicode.IsPunct) + "."
	}

	return trimmedText + "."
}

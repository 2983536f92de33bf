package dialogue

import (
	"errors"
	"fmt"
	"strings"
)

const (
	transcriptSeparator = "\n\n"
	speakerDelimiter    = ": "
)

// ErrMalformedTranscript is returned when a transcript entry lacks a speaker prefix.
var ErrMalformedTranscript = errors.New("malformed transcript")

// FormatLine renders a single transcript entry.
func FormatLine(line Line) string {
	return string(line.Speaker) + speakerDelimiter + line.Text
}

// Transcript renders lines as speaker-prefixed entries separated by a blank line.
func Transcript(lines []Line) string {
	entries := make([]string, 0, len(lines))
	for _, line := range lines {
		entries = append(entries, FormatLine(line))
	}

	return strings.Join(entries, transcriptSeparator)
}

// ParseTranscript reverses Transcript. A blank-line-separated block that does not start
// with a speaker prefix belongs to the previous entry's text.
func ParseTranscript(transcript string) ([]Line, error) {
	if strings.TrimSpace(transcript) == "" {
		return nil, nil
	}

	var lines []Line

	for _, block := range strings.Split(transcript, transcriptSeparator) {
		speaker, text, found := strings.Cut(block, speakerDelimiter)
		if found && Speaker(speaker).Valid() {
			lines = append(lines, Line{Text: text, Speaker: Speaker(speaker)})

			continue
		}

		if len(lines) == 0 {
			return nil, fmt.Errorf("%w: entry %q has no speaker prefix", ErrMalformedTranscript, block)
		}

		last := &lines[len(lines)-1]
		last.Text += transcriptSeparator + block
	}

	return lines, nil
}

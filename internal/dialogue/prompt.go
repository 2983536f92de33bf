package dialogue

import (
	"strings"

	"github.com/book-expert/podcast-service/internal/profile"
)

// SystemPrompt pins the model to the dialogue JSON shape.
const SystemPrompt = `You write two-speaker audio scripts and respond with JSON only.
The response must be a single JSON object of the form:
{"scratchpad": "<your planning notes>", "dialogue": [{"speaker": "speaker-1", "text": "<spoken text>"}, ...]}
"speaker" must be exactly "speaker-1" or "speaker-2". "text" must be non-empty.
Do not wrap the JSON in code fences and do not add any other keys.`

const improvementInstruction = "Based on the original text, please generate an improved version of the dialogue " +
	"by incorporating the edits, comments and feedback."

// BuildPrompt assembles the user prompt for one generation request. The requested
// improvements section is included only when priorTranscript or feedback is non-empty.
func BuildPrompt(sourceText string, bundle profile.Bundle, priorTranscript, feedback string) string {
	var builder strings.Builder

	builder.WriteString(bundle.Intro)
	builder.WriteString("\n\nHere is the original input text:\n\n<input_text>\n")
	builder.WriteString(sourceText)
	builder.WriteString("\n</input_text>\n\n")
	builder.WriteString(bundle.TextInstructions)
	builder.WriteString("\n\n<scratchpad>\n")
	builder.WriteString(bundle.ScratchPad)
	builder.WriteString("\n</scratchpad>\n\n")
	builder.WriteString(bundle.Prelude)
	builder.WriteString("\n\n<podcast_dialogue>\n")
	builder.WriteString(bundle.Dialog)
	builder.WriteString("\n</podcast_dialogue>\n")
	builder.WriteString(improvementSection(priorTranscript, feedback))

	return builder.String()
}

func improvementSection(priorTranscript, feedback string) string {
	hasTranscript := strings.TrimSpace(priorTranscript) != ""
	hasFeedback := strings.TrimSpace(feedback) != ""

	if !hasTranscript && !hasFeedback {
		return ""
	}

	var builder strings.Builder

	builder.WriteString("<requested_improvements>")

	if hasTranscript {
		builder.WriteString("\nPreviously generated edited transcript, with specific edits and comments ")
		builder.WriteString("that I want you to carefully address:\n<edited_transcript>\n")
		builder.WriteString(priorTranscript)
		builder.WriteString("\n</edited_transcript>")
	}

	if hasFeedback {
		builder.WriteString("\nOverall user feedback:\n\n")
		builder.WriteString(feedback)
	}

	builder.WriteString("\n\n")
	builder.WriteString(improvementInstruction)
	builder.WriteString("</requested_improvements>")

	return builder.String()
}

// Prompt templates are stored as text files under prompts/ and embedded at
// compile time.

package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

//go:embed prompts/gemini-edit.txt
var geminiEditTemplate string

var geminiEditTmpl = template.Must(template.New("gemini-edit").Parse(geminiEditTemplate))

// EditPromptData holds the dynamic data injected into the Gemini editing
// instruction.
type EditPromptData struct {
	// Prompt is the composed region prompt.
	Prompt string
	// Faithful asks the model to stay close to the sketch. It is set for
	// low strengths, which have no direct Gemini equivalent.
	Faithful bool
}

// RenderGeminiEditPrompt renders the instruction sent with a sketch to a
// Gemini image model.
func RenderGeminiEditPrompt(data EditPromptData) string {
	var buf bytes.Buffer
	// The template has no failure modes for this data; keep whatever rendered.
	_ = geminiEditTmpl.Execute(&buf, data)
	return strings.TrimSpace(buf.String())
}

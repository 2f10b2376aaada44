package main

import "fmt"

// promptBase is the fixed parser instruction prepended to every prompt.
const promptBase = "You are a voice command parser for a personal assistant app. " +
	"Parse the user's voice input into structured JSON. Be creative and helpful. " +
	"Fill in reasonable defaults for anything not mentioned."

// promptSchemas maps each parse mode to the JSON shape the model must return.
// The mode set is closed; buildPrompt falls back to the alarm shape for
// anything else.
var promptSchemas = map[string]string{
	"alarm":    `Return JSON: {"label":"alarm name","time":"HH:mm","icon":"SF Symbol","routine":[{"title":"step","duration":"e.g. 5 min","icon":"SF Symbol"}]}`,
	"meeting":  `Return JSON: {"title":"name","date":"day","time":"h:mm a","icon":"SF Symbol","checklist":[{"title":"step","duration":"time","icon":"SF Symbol"}],"notes":"context"}`,
	"mood":     `Return JSON: {"mood":"one word","level":0.0to1.0,"trigger":"cause","suggestion":"action"}`,
	"inbox":    `Return JSON: {"source":"Email/Slack/etc","sourceIcon":"SF Symbol","priority":"High/Medium/Low","actionItems":[{"title":"task","duration":"time","icon":"SF Symbol"}]}`,
	"schedule": `Return JSON: {"blocks":[{"title":"activity","startTime":"h:mm a","endTime":"h:mm a","duration":"e.g. 1h","icon":"SF Symbol","colorName":"blue/green/purple/orange/teal/red"}]}`,
}

// buildPrompt concatenates the base instruction, the mode's JSON shape, and
// the literal user text. The text is interpolated verbatim.
func buildPrompt(mode, text string) string {
	schema, ok := promptSchemas[mode]
	if !ok {
		schema = promptSchemas["alarm"]
	}
	return fmt.Sprintf("%s\n\n%s\n\nVoice input: \"%s\"", promptBase, schema, text)
}

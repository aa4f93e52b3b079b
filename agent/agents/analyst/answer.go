package analyst

import (
	"regexp"
	"strings"
)

// DefaultAnswer is used when nothing is left of the model's text after
// cleanup; the formatted data carries the result.
const DefaultAnswer = "I found the data for you. Check the visual card below! 📉"

var (
	leakedToolJSON  = regexp.MustCompile(`(?s)\{.*"name":.*\}`)
	jsonFence       = regexp.MustCompile("(?s)```json.*?```")
	apologyLine     = regexp.MustCompile(`(?im)^(I apologize|I'm sorry|I am sorry).+?(\n|$)`)
	jsonExplanation = regexp.MustCompile(`(?im)^(This is a JSON|Here is the JSON|The JSON object|The output contains|Based on the JSON).+?(\n|$)`)
	jsParseSnippet  = regexp.MustCompile(`(?s)const data = JSON\.parse.*`)
	fieldBullet     = regexp.MustCompile(`(?m)^\s*-\s*\*\*\w+\*\*:\s*.*$`)
)

// CleanAnswer strips what models tend to leak into the final answer: raw tool
// JSON, apology filler and walkthroughs of the JSON payload.
func CleanAnswer(content string) string {
	if strings.Contains(content, "{") && strings.Contains(content, "}") &&
		(strings.Contains(content, "name") || strings.Contains(content, "parameters")) {
		content = leakedToolJSON.ReplaceAllString(content, "")
		content = jsonFence.ReplaceAllString(content, "")
	}
	content = apologyLine.ReplaceAllString(content, "")
	content = jsonExplanation.ReplaceAllString(content, "")
	content = jsParseSnippet.ReplaceAllString(content, "")
	content = fieldBullet.ReplaceAllString(content, "")

	content = strings.TrimSpace(content)
	if content == "" {
		return DefaultAnswer
	}
	return content
}

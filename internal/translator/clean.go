package translator

import (
	"regexp"
	"strings"
)

// reasoningRe matches reasoning blocks some models emit before the answer,
// including one left open when the model was cut off.
var reasoningRe = regexp.MustCompile(`(?is)<(think|thinking|reasoning)>.*?(</(think|thinking|reasoning)>|$)`)

// preambleRe matches "Here is the translation:" style lead-ins.
var preambleRe = regexp.MustCompile(`(?i)^(?:(?:sure|certainly|of course)[,.!]?\s+)?(?:here(?:'s| is)\s+)?(?:the\s+)?(?:translation|translated text)\s*:\s*`)

var quotePairs = map[rune]rune{'"': '"', '\'': '\'', '«': '»', '“': '”'}

// clean trims model output down to the translated text.
func clean(text string) string {
	text = strings.TrimSpace(reasoningRe.ReplaceAllString(text, ""))
	text = strings.TrimSpace(preambleRe.ReplaceAllString(text, ""))

	runes := []rune(text)
	if n := len(runes); n >= 2 {
		if closing, ok := quotePairs[runes[0]]; ok && runes[n-1] == closing {
			text = strings.TrimSpace(string(runes[1 : n-1]))
		}
	}
	return text
}

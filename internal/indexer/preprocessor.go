package indexer

import (
	"strings"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n", "\x00", "")

// Preprocess normalizes text before chunking: line endings become "\n",
// NUL bytes are dropped and invalid UTF-8 is replaced. Whitespace is otherwise
// kept so paragraph and line separators survive.
func Preprocess(text string) string {
	text = strings.ToValidUTF8(text, "�")
	return lineEndings.Replace(text)
}

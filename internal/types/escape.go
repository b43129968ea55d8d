package types

import "strings"

var pathEscaper = strings.NewReplacer(
	"\t", "\\t",
	"\n", "\\n",
	"\r", "\\r",
)

// EscapePath escapes control characters in paths for safe terminal output.
func EscapePath(path string) string {
	return pathEscaper.Replace(path)
}

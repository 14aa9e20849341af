package messaging

import "regexp"

// An @ only starts a mention at the start of the text or after a
// character that cannot be part of a handle, so "ops@lowlands.nl" is
// not a mention of "lowlands".
var mentionPattern = regexp.MustCompile(`(?:^|[^A-Za-z0-9_-])@([A-Za-z0-9_-]+)`)

// ExtractMentions returns the handles mentioned in text, in order of
// appearance. Duplicates are kept. The result is never nil.
func ExtractMentions(text string) []string {
	matches := mentionPattern.FindAllStringSubmatch(text, -1)
	handles := make([]string, 0, len(matches))
	for _, m := range matches {
		handles = append(handles, m[1])
	}
	return handles
}

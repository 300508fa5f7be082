// Package urlscan extracts HTTP(S) URLs from chat message bodies.
package urlscan

import (
	"regexp"
	"strings"
)

// urlPattern matches http/https URLs. The $-_ range covers digits, uppercase
// letters and the common path/query punctuation; percent-encoded octets are
// allowed, anything else terminates the match.
var urlPattern = regexp.MustCompile(`http[s]?://(?:[a-zA-Z]|[0-9]|[$-_@.&+]|[!*(),]|%[0-9a-fA-F]{2})+`)

// Extract returns the unique URLs found in body, in first-seen order.
// Lines starting with the quote marker ">" are reply context and skipped
// entirely. The same URL appearing twice is returned once.
func Extract(body string) []string {
	var found []string
	seen := make(map[string]struct{})
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, ">") {
			continue
		}
		for _, url := range urlPattern.FindAllString(line, -1) {
			if _, ok := seen[url]; ok {
				continue
			}
			seen[url] = struct{}{}
			found = append(found, url)
		}
	}
	return found
}

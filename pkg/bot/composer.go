package bot

import (
	"strings"

	"maunium.net/go/mautrix/id"
)

// Quote prefixes every line of body with "> ", preceded by the sender's
// display name, for use as reply context.
func Quote(displayName, body string) string {
	quoted := "> " + strings.Join(strings.Split(body, "\n"), "\n> ")
	if displayName == "" {
		return quoted
	}
	return displayName + "\n" + quoted
}

// buildReply produces a protocol-level reply when a source event ID is
// available and degrades to a plain message with the quote embedded in the
// body when it is not.
func buildReply(roomID id.RoomID, body, quote string, inReplyTo id.EventID) Outbound {
	if inReplyTo != "" {
		return Outbound{RoomID: roomID, Body: body, InReplyTo: inReplyTo}
	}
	if quote != "" {
		body = quote + "\n\n" + body
	}
	return Outbound{RoomID: roomID, Body: body}
}

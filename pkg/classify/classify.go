// Package classify tags inbound room messages by how the bot should react.
package classify

import "strings"

// Kind is the reaction a message body asks for.
type Kind int

const (
	// KindPassive means the body neither mentions the bot nor triggers
	// image generation. Passive bodies still go through the URL scan.
	KindPassive Kind = iota
	// KindMention means the body addresses the bot and wants a
	// conversational reply.
	KindMention
	// KindCommand means the body addresses the bot with a recognized
	// command keyword.
	KindCommand
	// KindImageGen means the body starts with the image trigger keyword.
	KindImageGen
)

// Command is the recognized chat-surface command, when Kind is KindCommand.
type Command int

const (
	CommandNone Command = iota
	CommandForget
	CommandHelp
)

// Message is the classification result. Exactly one Kind applies per body.
type Message struct {
	Kind    Kind
	Command Command

	// KeyBody is the remainder after the bot nick and separator, used for
	// command detection only. Replies always use the original body.
	KeyBody string

	// Prompt is the image generation prompt, when Kind is KindImageGen.
	Prompt string
}

// Classify tags body. Nick matching is case-insensitive; the trigger keyword
// is matched literally. Bodies shorter than the nick plus the two separator
// characters classify as a mention with an empty key body.
func Classify(body, botNick, imageTrigger string) Message {
	if botNick != "" && hasPrefixFold(body, botNick) {
		keyBody := ""
		if len(body) > len(botNick)+2 {
			keyBody = body[len(botNick)+2:]
		}
		switch {
		case strings.HasPrefix(keyBody, "forget"):
			return Message{Kind: KindCommand, Command: CommandForget, KeyBody: keyBody}
		case strings.HasPrefix(keyBody, "help"):
			return Message{Kind: KindCommand, Command: CommandHelp, KeyBody: keyBody}
		default:
			return Message{Kind: KindMention, KeyBody: keyBody}
		}
	}

	if imageTrigger != "" && strings.HasPrefix(body, imageTrigger) {
		prompt := ""
		if len(body) > len(imageTrigger)+1 {
			prompt = body[len(imageTrigger)+1:]
		}
		return Message{Kind: KindImageGen, Prompt: prompt}
	}

	return Message{Kind: KindPassive}
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

package relay

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/memohai/omnirelay/internal/channel"
	"github.com/memohai/omnirelay/internal/channel/adapters/common"
)

// CommandPrefix starts every staff command posted in the group's general thread.
const CommandPrefix = "#"

// CommandUsage is posted back when a command cannot be parsed.
const CommandUsage = "Usage: #[channel:]<phone or chat id>/<label>, e.g. #whatsapp:79990000001/Ivan Petrov"

var addressPattern = regexp.MustCompile(`^\+?[0-9][0-9 ()\-]*$`)

// Command is the result of ParseCommand: OpenConversation or Malformed.
type Command interface {
	command()
}

// OpenConversation opens or re-claims the conversation with Address.
// Channel is empty when the command did not name one.
type OpenConversation struct {
	Channel channel.ChannelType
	Address string
	Label   string
}

// Malformed is a command that starts with the prefix but does not parse.
type Malformed struct {
	Reason string
}

func (OpenConversation) command() {}
func (Malformed) command()        {}

// IsCommand reports whether text should be treated as a staff command.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), CommandPrefix)
}

// ParseCommand parses `#[<channel>:]<address>/<label>`.
func ParseCommand(text string) Command {
	raw := strings.TrimSpace(text)
	if !strings.HasPrefix(raw, CommandPrefix) {
		return Malformed{Reason: "command must start with " + CommandPrefix}
	}
	raw = strings.TrimPrefix(raw, CommandPrefix)
	target, label, ok := strings.Cut(raw, "/")
	if !ok {
		return Malformed{Reason: "missing /<label>"}
	}
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return Malformed{Reason: "label is empty"}
	}

	var ct channel.ChannelType
	if prefix, rest, found := strings.Cut(target, ":"); found {
		parsed, err := channel.ParseChannelType(prefix)
		if err != nil {
			return Malformed{Reason: fmt.Sprintf("unknown channel %q", strings.TrimSpace(prefix))}
		}
		ct = parsed
		target = rest
	}

	target = strings.TrimSpace(target)
	if target == "" {
		return Malformed{Reason: "address is empty"}
	}
	if !addressPattern.MatchString(target) {
		return Malformed{Reason: fmt.Sprintf("address %q is not a phone number or chat id", target)}
	}
	return OpenConversation{
		Channel: ct,
		Address: common.DigitsOnly(target),
		Label:   label,
	}
}

package activity

import (
	"context"
	"strings"

	"github.com/finos/symphony-bdk-go/event"
)

// CommandContext is handed to command activities for MESSAGESENT events.
type CommandContext struct {
	SourceEvent *event.V4Event
	Message     *event.V4Message
	BotInfo     event.BotInfo

	// TextContent is the plain-text extraction of the PresentationML body.
	TextContent string
	// Tokens is the typed tokenization of the message.
	Tokens []Token
	// Arguments is populated by a matching slash command pattern.
	Arguments *Arguments

	StreamID  string
	MessageID string
}

// IsIM reports whether the message arrived in a 1:1 instant-message stream.
func (c *CommandContext) IsIM() bool {
	return c.Message != nil && c.Message.Stream != nil &&
		strings.EqualFold(c.Message.Stream.StreamType, "IM")
}

// FormReplyContext is handed to form activities for Symphony Elements
// submissions.
type FormReplyContext struct {
	SourceEvent *event.V4Event
	BotInfo     event.BotInfo

	FormID        string
	FormMessageID string
	FormValues    map[string]any
	StreamID      string
}

// UserJoinedRoomContext is handed to join activities.
type UserJoinedRoomContext struct {
	SourceEvent *event.V4Event
	BotInfo     event.BotInfo

	StreamID     string
	AffectedUser *event.V4User
}

// CommandActivity matches parsed message commands.
type CommandActivity interface {
	BeforeMatcher(c *CommandContext)
	Matches(c *CommandContext) bool
	OnActivity(ctx context.Context, c *CommandContext) error
}

// FormReplyActivity matches Symphony Elements form submissions.
type FormReplyActivity interface {
	BeforeMatcher(c *FormReplyContext)
	Matches(c *FormReplyContext) bool
	OnActivity(ctx context.Context, c *FormReplyContext) error
}

// UserJoinedRoomActivity matches room-join events.
type UserJoinedRoomActivity interface {
	BeforeMatcher(c *UserJoinedRoomContext)
	Matches(c *UserJoinedRoomContext) bool
	OnActivity(ctx context.Context, c *UserJoinedRoomContext) error
}

// SlashCommand is a CommandActivity built from a SlashCommandPattern and a
// user handler.
type SlashCommand struct {
	pattern        *SlashCommandPattern
	requireMention bool
	description    string
	handler        func(ctx context.Context, c *CommandContext) error
}

// NewSlashCommand parses the pattern and, when requireMention is set,
// prepends the implicit bot-mention token.
func NewSlashCommand(pattern string, requireMention bool, description string, handler func(ctx context.Context, c *CommandContext) error) (*SlashCommand, error) {
	parsed, err := NewSlashCommandPattern(pattern)
	if err != nil {
		return nil, err
	}
	if requireMention {
		parsed.prependBotMention()
	}
	return &SlashCommand{
		pattern:        parsed,
		requireMention: requireMention,
		description:    description,
		handler:        handler,
	}, nil
}

// Description returns the human-readable command description.
func (s *SlashCommand) Description() string {
	return s.description
}

// Pattern returns the original pattern string.
func (s *SlashCommand) Pattern() string {
	return s.pattern.String()
}

func (s *SlashCommand) BeforeMatcher(*CommandContext) {}

// Matches tests the tokenized message. A command without the mention
// requirement only applies in a 1:1 IM or when the message does not open
// with a mention of the bot.
func (s *SlashCommand) Matches(c *CommandContext) bool {
	if !s.requireMention && !c.IsIM() && opensWithBotMention(c) {
		return false
	}
	result := s.pattern.Match(c.Tokens, c.BotInfo.UserID)
	if result.Matched {
		c.Arguments = result.Arguments
	}
	return result.Matched
}

func (s *SlashCommand) OnActivity(ctx context.Context, c *CommandContext) error {
	return s.handler(ctx, c)
}

func opensWithBotMention(c *CommandContext) bool {
	if len(c.Tokens) == 0 {
		return false
	}
	mention, ok := c.Tokens[0].(Mention)
	return ok && mention.UserID == c.BotInfo.UserID
}

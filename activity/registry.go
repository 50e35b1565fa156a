package activity

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/finos/symphony-bdk-go/event"
)

// BotInfoSource supplies the bot identity; the registry fetches it lazily on
// the first dispatch and caches it for the process lifetime.
type BotInfoSource interface {
	BotInfo(ctx context.Context) (event.BotInfo, error)
}

// Registry owns the ordered list of registered activities and is the
// dispatch target the datafeed loop feeds message, form, and join events
// into.
type Registry struct {
	sessions BotInfoSource
	logger   *zap.Logger

	mu       sync.Mutex
	commands []CommandActivity
	forms    []FormReplyActivity
	joins    []UserJoinedRoomActivity

	botMu   sync.Mutex
	bot     event.BotInfo
	botInit bool
}

// NewRegistry builds an empty registry.
func NewRegistry(sessions BotInfoSource, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{sessions: sessions, logger: logger.Named("activity")}
}

// Register appends an activity. The concrete type selects the dispatch
// entry point it participates in.
func (r *Registry) Register(activity any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch a := activity.(type) {
	case CommandActivity:
		r.commands = append(r.commands, a)
	case FormReplyActivity:
		r.forms = append(r.forms, a)
	case UserJoinedRoomActivity:
		r.joins = append(r.joins, a)
	default:
		return fmt.Errorf("unsupported activity type %T", activity)
	}
	return nil
}

// Slash registers a slash command built from the given pattern.
func (r *Registry) Slash(pattern string, requireMention bool, description string, handler func(ctx context.Context, c *CommandContext) error) error {
	command, err := NewSlashCommand(pattern, requireMention, description, handler)
	if err != nil {
		return err
	}
	return r.Register(command)
}

// Listener wires the registry's three dispatch entry points into a datafeed
// listener.
func (r *Registry) Listener() *event.Listener {
	return &event.Listener{
		OnMessageSent:            r.OnMessageSent,
		OnSymphonyElementsAction: r.OnSymphonyElementsAction,
		OnUserJoinedRoom:         r.OnUserJoinedRoom,
	}
}

// OnMessageSent builds a CommandContext and runs it through every command
// activity. A message whose PresentationML cannot be parsed is skipped with
// a warning; other activities and events are unaffected.
func (r *Registry) OnMessageSent(ctx context.Context, ev *event.V4Event, payload *event.V4MessageSent) error {
	if payload.Message == nil {
		return nil
	}
	bot, err := r.botInfo(ctx)
	if err != nil {
		return err
	}

	message := payload.Message
	textContent, err := TextContent(message.Message)
	if err != nil {
		r.logger.Warn("skipping malformed message", zap.String("message_id", message.MessageID), zap.Error(err))
		return nil
	}
	tokens, err := Tokenize(message)
	if err != nil {
		r.logger.Warn("skipping malformed message", zap.String("message_id", message.MessageID), zap.Error(err))
		return nil
	}

	commandContext := &CommandContext{
		SourceEvent: ev,
		Message:     message,
		BotInfo:     bot,
		TextContent: textContent,
		Tokens:      tokens,
		MessageID:   message.MessageID,
	}
	if message.Stream != nil {
		commandContext.StreamID = message.Stream.StreamID
	}

	var requeue bool
	for _, command := range r.snapshotCommands() {
		command.BeforeMatcher(commandContext)
		if !command.Matches(commandContext) {
			continue
		}
		if err := command.OnActivity(ctx, commandContext); err != nil {
			if errors.Is(err, event.ErrRequeue) {
				requeue = true
				continue
			}
			r.logger.Warn("command activity failed", zap.String("message_id", message.MessageID), zap.Error(err))
		}
	}
	if requeue {
		return event.ErrRequeue
	}
	return nil
}

// OnSymphonyElementsAction runs a form submission through every form
// activity.
func (r *Registry) OnSymphonyElementsAction(ctx context.Context, ev *event.V4Event, payload *event.V4SymphonyElementsAction) error {
	bot, err := r.botInfo(ctx)
	if err != nil {
		return err
	}
	formContext := &FormReplyContext{
		SourceEvent:   ev,
		BotInfo:       bot,
		FormID:        payload.FormID,
		FormMessageID: payload.FormMessageID,
		FormValues:    payload.FormValues,
	}
	if payload.Stream != nil {
		formContext.StreamID = payload.Stream.StreamID
	}

	var requeue bool
	for _, form := range r.snapshotForms() {
		form.BeforeMatcher(formContext)
		if !form.Matches(formContext) {
			continue
		}
		if err := form.OnActivity(ctx, formContext); err != nil {
			if errors.Is(err, event.ErrRequeue) {
				requeue = true
				continue
			}
			r.logger.Warn("form activity failed", zap.String("form_id", payload.FormID), zap.Error(err))
		}
	}
	if requeue {
		return event.ErrRequeue
	}
	return nil
}

// OnUserJoinedRoom runs a join event through every join activity.
func (r *Registry) OnUserJoinedRoom(ctx context.Context, ev *event.V4Event, payload *event.V4UserJoinedRoom) error {
	bot, err := r.botInfo(ctx)
	if err != nil {
		return err
	}
	joinContext := &UserJoinedRoomContext{
		SourceEvent:  ev,
		BotInfo:      bot,
		AffectedUser: payload.AffectedUser,
	}
	if payload.Stream != nil {
		joinContext.StreamID = payload.Stream.StreamID
	}

	var requeue bool
	for _, join := range r.snapshotJoins() {
		join.BeforeMatcher(joinContext)
		if !join.Matches(joinContext) {
			continue
		}
		if err := join.OnActivity(ctx, joinContext); err != nil {
			if errors.Is(err, event.ErrRequeue) {
				requeue = true
				continue
			}
			r.logger.Warn("join activity failed", zap.String("stream_id", joinContext.StreamID), zap.Error(err))
		}
	}
	if requeue {
		return event.ErrRequeue
	}
	return nil
}

func (r *Registry) botInfo(ctx context.Context) (event.BotInfo, error) {
	r.botMu.Lock()
	defer r.botMu.Unlock()
	if r.botInit {
		return r.bot, nil
	}
	bot, err := r.sessions.BotInfo(ctx)
	if err != nil {
		return event.BotInfo{}, fmt.Errorf("fetch bot session info: %w", err)
	}
	r.bot = bot
	r.botInit = true
	return bot, nil
}

func (r *Registry) snapshotCommands() []CommandActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	commands := make([]CommandActivity, len(r.commands))
	copy(commands, r.commands)
	return commands
}

func (r *Registry) snapshotForms() []FormReplyActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	forms := make([]FormReplyActivity, len(r.forms))
	copy(forms, r.forms)
	return forms
}

func (r *Registry) snapshotJoins() []UserJoinedRoomActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	joins := make([]UserJoinedRoomActivity, len(r.joins))
	copy(joins, r.joins)
	return joins
}

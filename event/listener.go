package event

import (
	"context"
	"errors"
	"strings"
)

// ErrRequeue is the sentinel a listener returns to signal "please
// re-deliver": the loop will not advance the ack cursor for the batch.
var ErrRequeue = errors.New("event listener requested redelivery")

// BotInfo is the bot identity events are matched against.
type BotInfo struct {
	UserID      int64
	Username    string
	DisplayName string
}

// Listener is a capability record: set only the callbacks you care about.
// Callbacks run concurrently with each other and with the next poll; return
// ErrRequeue to hold back the ack cursor for the whole batch.
type Listener struct {
	// AcceptEvent overrides the default event filter. The default rejects
	// events the bot initiated itself.
	AcceptEvent func(event *V4Event, bot BotInfo) bool

	OnMessageSent                func(ctx context.Context, event *V4Event, payload *V4MessageSent) error
	OnSharedPost                 func(ctx context.Context, event *V4Event, payload *V4SharedPost) error
	OnInstantMessageCreated      func(ctx context.Context, event *V4Event, payload *V4InstantMessageCreated) error
	OnRoomCreated                func(ctx context.Context, event *V4Event, payload *V4RoomCreated) error
	OnRoomUpdated                func(ctx context.Context, event *V4Event, payload *V4RoomUpdated) error
	OnRoomDeactivated            func(ctx context.Context, event *V4Event, payload *V4RoomDeactivated) error
	OnRoomReactivated            func(ctx context.Context, event *V4Event, payload *V4RoomReactivated) error
	OnUserRequestedToJoinRoom    func(ctx context.Context, event *V4Event, payload *V4UserRequestedToJoinRoom) error
	OnUserJoinedRoom             func(ctx context.Context, event *V4Event, payload *V4UserJoinedRoom) error
	OnUserLeftRoom               func(ctx context.Context, event *V4Event, payload *V4UserLeftRoom) error
	OnRoomMemberPromotedToOwner  func(ctx context.Context, event *V4Event, payload *V4RoomMemberPromotedToOwner) error
	OnRoomMemberDemotedFromOwner func(ctx context.Context, event *V4Event, payload *V4RoomMemberDemotedFromOwner) error
	OnConnectionRequested        func(ctx context.Context, event *V4Event, payload *V4ConnectionRequested) error
	OnConnectionAccepted         func(ctx context.Context, event *V4Event, payload *V4ConnectionAccepted) error
	OnMessageSuppressed          func(ctx context.Context, event *V4Event, payload *V4MessageSuppressed) error
	OnSymphonyElementsAction     func(ctx context.Context, event *V4Event, payload *V4SymphonyElementsAction) error
}

// Accepts applies the listener's filter, or the default self-event rejection
// when none is set.
func (l *Listener) Accepts(event *V4Event, bot BotInfo) bool {
	if l.AcceptEvent != nil {
		return l.AcceptEvent(event, bot)
	}
	initiator := event.InitiatorUsername()
	if initiator == "" || bot.Username == "" {
		return true
	}
	return !strings.EqualFold(initiator, bot.Username)
}

// Supported reports whether the event type maps to a listener callback.
// Unknown types are logged at debug level by the loop and dropped.
func Supported(eventType string) bool {
	switch eventType {
	case TypeMessageSent, TypeSharedPost, TypeInstantMessageCreated,
		TypeRoomCreated, TypeRoomUpdated, TypeRoomDeactivated, TypeRoomReactivated,
		TypeUserRequestedToJoinRoom, TypeUserJoinedRoom, TypeUserLeftRoom,
		TypeRoomMemberPromotedToOwner, TypeRoomMemberDemotedFromOwner,
		TypeConnectionRequested, TypeConnectionAccepted,
		TypeMessageSuppressed, TypeSymphonyElementsAction:
		return true
	}
	return false
}

// Dispatch invokes the callback matching the event's type discriminator. A
// missing payload variant or an unset callback is a no-op.
func Dispatch(ctx context.Context, l *Listener, event *V4Event) error {
	payload := event.Payload
	if payload == nil {
		return nil
	}
	switch event.Type {
	case TypeMessageSent:
		if l.OnMessageSent != nil && payload.MessageSent != nil {
			return l.OnMessageSent(ctx, event, payload.MessageSent)
		}
	case TypeSharedPost:
		if l.OnSharedPost != nil && payload.SharedPost != nil {
			return l.OnSharedPost(ctx, event, payload.SharedPost)
		}
	case TypeInstantMessageCreated:
		if l.OnInstantMessageCreated != nil && payload.InstantMessageCreated != nil {
			return l.OnInstantMessageCreated(ctx, event, payload.InstantMessageCreated)
		}
	case TypeRoomCreated:
		if l.OnRoomCreated != nil && payload.RoomCreated != nil {
			return l.OnRoomCreated(ctx, event, payload.RoomCreated)
		}
	case TypeRoomUpdated:
		if l.OnRoomUpdated != nil && payload.RoomUpdated != nil {
			return l.OnRoomUpdated(ctx, event, payload.RoomUpdated)
		}
	case TypeRoomDeactivated:
		if l.OnRoomDeactivated != nil && payload.RoomDeactivated != nil {
			return l.OnRoomDeactivated(ctx, event, payload.RoomDeactivated)
		}
	case TypeRoomReactivated:
		if l.OnRoomReactivated != nil && payload.RoomReactivated != nil {
			return l.OnRoomReactivated(ctx, event, payload.RoomReactivated)
		}
	case TypeUserRequestedToJoinRoom:
		if l.OnUserRequestedToJoinRoom != nil && payload.UserRequestedToJoinRoom != nil {
			return l.OnUserRequestedToJoinRoom(ctx, event, payload.UserRequestedToJoinRoom)
		}
	case TypeUserJoinedRoom:
		if l.OnUserJoinedRoom != nil && payload.UserJoinedRoom != nil {
			return l.OnUserJoinedRoom(ctx, event, payload.UserJoinedRoom)
		}
	case TypeUserLeftRoom:
		if l.OnUserLeftRoom != nil && payload.UserLeftRoom != nil {
			return l.OnUserLeftRoom(ctx, event, payload.UserLeftRoom)
		}
	case TypeRoomMemberPromotedToOwner:
		if l.OnRoomMemberPromotedToOwner != nil && payload.RoomMemberPromotedToOwner != nil {
			return l.OnRoomMemberPromotedToOwner(ctx, event, payload.RoomMemberPromotedToOwner)
		}
	case TypeRoomMemberDemotedFromOwner:
		if l.OnRoomMemberDemotedFromOwner != nil && payload.RoomMemberDemotedFromOwner != nil {
			return l.OnRoomMemberDemotedFromOwner(ctx, event, payload.RoomMemberDemotedFromOwner)
		}
	case TypeConnectionRequested:
		if l.OnConnectionRequested != nil && payload.ConnectionRequested != nil {
			return l.OnConnectionRequested(ctx, event, payload.ConnectionRequested)
		}
	case TypeConnectionAccepted:
		if l.OnConnectionAccepted != nil && payload.ConnectionAccepted != nil {
			return l.OnConnectionAccepted(ctx, event, payload.ConnectionAccepted)
		}
	case TypeMessageSuppressed:
		if l.OnMessageSuppressed != nil && payload.MessageSuppressed != nil {
			return l.OnMessageSuppressed(ctx, event, payload.MessageSuppressed)
		}
	case TypeSymphonyElementsAction:
		if l.OnSymphonyElementsAction != nil && payload.SymphonyElementsAction != nil {
			return l.OnSymphonyElementsAction(ctx, event, payload.SymphonyElementsAction)
		}
	}
	return nil
}

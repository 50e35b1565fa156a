// Package event defines the real-time event model delivered by the datafeed
// and the listener capability record the loops dispatch to.
package event

// Event type discriminators as delivered by the agent.
const (
	TypeMessageSent                = "MESSAGESENT"
	TypeSharedPost                 = "SHAREDPOST"
	TypeInstantMessageCreated      = "INSTANTMESSAGECREATED"
	TypeRoomCreated                = "ROOMCREATED"
	TypeRoomUpdated                = "ROOMUPDATED"
	TypeRoomDeactivated            = "ROOMDEACTIVATED"
	TypeRoomReactivated            = "ROOMREACTIVATED"
	TypeUserRequestedToJoinRoom    = "USERREQUESTEDTOJOINROOM"
	TypeUserJoinedRoom             = "USERJOINEDROOM"
	TypeUserLeftRoom               = "USERLEFTROOM"
	TypeRoomMemberPromotedToOwner  = "ROOMMEMBERPROMOTEDTOOWNER"
	TypeRoomMemberDemotedFromOwner = "ROOMMEMBERDEMOTEDFROMOWNER"
	TypeConnectionRequested        = "CONNECTIONREQUESTED"
	TypeConnectionAccepted         = "CONNECTIONACCEPTED"
	TypeMessageSuppressed          = "MESSAGESUPPRESSED"
	TypeSymphonyElementsAction     = "SYMPHONYELEMENTSACTION"
)

// V4User identifies a platform user.
type V4User struct {
	UserID      int64  `json:"userId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
}

// V4Stream identifies the conversation an event happened in.
type V4Stream struct {
	StreamID   string `json:"streamId"`
	StreamType string `json:"streamType"`
	RoomName   string `json:"roomName"`
	External   bool   `json:"external"`
}

// V4Initiator is the user whose action produced the event.
type V4Initiator struct {
	User *V4User `json:"user,omitempty"`
}

// V4Message is a chat message with its PresentationML body and the JSON
// entity data map keyed by data-entity-id.
type V4Message struct {
	MessageID string    `json:"messageId"`
	Timestamp int64     `json:"timestamp"`
	Message   string    `json:"message"`
	Data      string    `json:"data"`
	Stream    *V4Stream `json:"stream,omitempty"`
	User      *V4User   `json:"user,omitempty"`
}

// V4RoomProperties carries room metadata on room lifecycle events.
type V4RoomProperties struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	CreatorUser *V4User `json:"creatorUser,omitempty"`
	CreatedDate int64   `json:"createdDate"`
	External    bool    `json:"external"`
	Public      bool    `json:"public"`
}

type V4MessageSent struct {
	Message *V4Message `json:"message,omitempty"`
}

type V4SharedPost struct {
	Message       *V4Message `json:"message,omitempty"`
	SharedMessage *V4Message `json:"sharedMessage,omitempty"`
}

type V4InstantMessageCreated struct {
	Stream *V4Stream `json:"stream,omitempty"`
}

type V4RoomCreated struct {
	Stream         *V4Stream         `json:"stream,omitempty"`
	RoomProperties *V4RoomProperties `json:"roomProperties,omitempty"`
}

type V4RoomUpdated struct {
	Stream            *V4Stream         `json:"stream,omitempty"`
	NewRoomProperties *V4RoomProperties `json:"newRoomProperties,omitempty"`
}

type V4RoomDeactivated struct {
	Stream *V4Stream `json:"stream,omitempty"`
}

type V4RoomReactivated struct {
	Stream *V4Stream `json:"stream,omitempty"`
}

type V4UserRequestedToJoinRoom struct {
	Stream       *V4Stream `json:"stream,omitempty"`
	AffectedUser *V4User   `json:"affectedUser,omitempty"`
}

type V4UserJoinedRoom struct {
	Stream       *V4Stream `json:"stream,omitempty"`
	AffectedUser *V4User   `json:"affectedUser,omitempty"`
}

type V4UserLeftRoom struct {
	Stream       *V4Stream `json:"stream,omitempty"`
	AffectedUser *V4User   `json:"affectedUser,omitempty"`
}

type V4RoomMemberPromotedToOwner struct {
	Stream       *V4Stream `json:"stream,omitempty"`
	AffectedUser *V4User   `json:"affectedUser,omitempty"`
}

type V4RoomMemberDemotedFromOwner struct {
	Stream       *V4Stream `json:"stream,omitempty"`
	AffectedUser *V4User   `json:"affectedUser,omitempty"`
}

type V4ConnectionRequested struct {
	ToUser *V4User `json:"toUser,omitempty"`
}

type V4ConnectionAccepted struct {
	FromUser *V4User `json:"fromUser,omitempty"`
}

type V4MessageSuppressed struct {
	MessageID string    `json:"messageId"`
	Stream    *V4Stream `json:"stream,omitempty"`
}

// V4SymphonyElementsAction is a Symphony Elements form submission.
type V4SymphonyElementsAction struct {
	Stream        *V4Stream      `json:"stream,omitempty"`
	FormMessageID string         `json:"formMessageId"`
	FormID        string         `json:"formId"`
	FormValues    map[string]any `json:"formValues,omitempty"`
}

// V4Payload holds exactly one variant, selected by the event type.
type V4Payload struct {
	MessageSent                *V4MessageSent                `json:"messageSent,omitempty"`
	SharedPost                 *V4SharedPost                 `json:"sharedPost,omitempty"`
	InstantMessageCreated      *V4InstantMessageCreated      `json:"instantMessageCreated,omitempty"`
	RoomCreated                *V4RoomCreated                `json:"roomCreated,omitempty"`
	RoomUpdated                *V4RoomUpdated                `json:"roomUpdated,omitempty"`
	RoomDeactivated            *V4RoomDeactivated            `json:"roomDeactivated,omitempty"`
	RoomReactivated            *V4RoomReactivated            `json:"roomReactivated,omitempty"`
	UserRequestedToJoinRoom    *V4UserRequestedToJoinRoom    `json:"userRequestedToJoinRoom,omitempty"`
	UserJoinedRoom             *V4UserJoinedRoom             `json:"userJoinedRoom,omitempty"`
	UserLeftRoom               *V4UserLeftRoom               `json:"userLeftRoom,omitempty"`
	RoomMemberPromotedToOwner  *V4RoomMemberPromotedToOwner  `json:"roomMemberPromotedToOwner,omitempty"`
	RoomMemberDemotedFromOwner *V4RoomMemberDemotedFromOwner `json:"roomMemberDemotedFromOwner,omitempty"`
	ConnectionRequested        *V4ConnectionRequested        `json:"connectionRequested,omitempty"`
	ConnectionAccepted         *V4ConnectionAccepted         `json:"connectionAccepted,omitempty"`
	MessageSuppressed          *V4MessageSuppressed          `json:"messageSuppressed,omitempty"`
	SymphonyElementsAction     *V4SymphonyElementsAction     `json:"symphonyElementsAction,omitempty"`
}

// V4Event is one datafeed event.
type V4Event struct {
	ID        string       `json:"id"`
	Timestamp int64        `json:"timestamp"`
	Type      string       `json:"type"`
	Initiator *V4Initiator `json:"initiator,omitempty"`
	Payload   *V4Payload   `json:"payload,omitempty"`
}

// InitiatorUsername returns the initiating user's username, or "".
func (e *V4Event) InitiatorUsername() string {
	if e.Initiator == nil || e.Initiator.User == nil {
		return ""
	}
	return e.Initiator.User.Username
}

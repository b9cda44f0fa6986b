package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

// Envelope is the wire shape for every inbound and outbound message.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Marshal wraps a typed payload in the wire envelope.
func Marshal(event string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return json.Marshal(Envelope{Event: event, Payload: raw})
}

// Inbound events. The dispatcher is an exhaustive switch over this set;
// anything else is rejected with an unknown-event error.
const (
	EventAuthenticate    = "authenticate"
	EventJoinCollab      = "join_collaboration"
	EventLeaveCollab     = "leave_collaboration"
	EventDocumentEdit    = "document_edit"
	EventChatMessage     = "chat_message"
	EventPresenceUpdate  = "presence_update"
	EventGetPresence     = "get_presence"
	EventInventoryUpdate = "inventory_update"
	EventSpendingUpdate  = "spending_update"
	EventAnalyticsUpdate = "analytics_update"
	EventPing            = "ping"
)

// Outbound events.
const (
	EventAuthenticated       = "authenticated"
	EventAdminConnected      = "admin_connected"
	EventCollaborationJoined = "collaboration_joined"
	EventUserJoined          = "user_joined"
	EventCollaborationLeft   = "collaboration_left"
	EventUserLeft            = "user_left"
	EventEditAcknowledged    = "edit_acknowledged"
	EventDocumentUpdated     = "document_updated"
	EventMessageSent         = "message_sent"
	EventChatMessageReceived = "chat_message_received"
	EventPresenceChanged     = "presence_changed"
	EventAdminPresenceUpdate = "admin_presence_update"
	EventPresenceState       = "presence_state"
	EventInventoryUpdated    = "inventory_updated"
	EventSpendingUpdated     = "spending_updated"
	EventAnalyticsUpdated    = "analytics_updated"
	EventPong                = "pong"
	EventUserDisconnected    = "user_disconnected"
	EventAdminDisconnected   = "admin_disconnected"
)

// Error events, sent to the originating connection only.
const (
	EventAuthError          = "auth_error"
	EventCollaborationError = "collaboration_error"
	EventEditError          = "edit_error"
	EventChatError          = "chat_error"
	EventPresenceError      = "presence_error"
	EventSocketError        = "socket_error"
)

// Error codes carried in ErrorPayload.Code.
const (
	CodeInvalidAuthData  = "INVALID_AUTH_DATA"
	CodeAuthRequired     = "AUTH_REQUIRED"
	CodeInvalidRoomData  = "INVALID_ROOM_DATA"
	CodeInvalidEditData  = "INVALID_EDIT_DATA"
	CodeInvalidChatData  = "INVALID_CHAT_DATA"
	CodeInvalidStatus    = "INVALID_STATUS"
	CodeInvalidActivity  = "INVALID_ACTIVITY_DATA"
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodeUnknownEvent     = "UNKNOWN_EVENT"
	CodeJoinFailed       = "JOIN_FAILED"
	CodeEditFailed       = "EDIT_FAILED"
	CodeMessageFailed    = "MESSAGE_FAILED"
	CodeInternalError    = "INTERNAL_ERROR"
)

// --- Inbound payloads ---

type AuthenticatePayload struct {
	UserID string `json:"userId" validate:"required"`
	Role   string `json:"role" validate:"required"`
}

type JoinPayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type LeavePayload struct {
	RoomID string `json:"roomId" validate:"required"`
	UserID string `json:"userId" validate:"required"`
}

type DocumentEditPayload struct {
	RoomID     string          `json:"roomId" validate:"required"`
	UserID     string          `json:"userId" validate:"required"`
	DocumentID string          `json:"documentId" validate:"required"`
	Changes    json.RawMessage `json:"changes" validate:"required"`
}

type ChatMessagePayload struct {
	RoomID    string `json:"roomId" validate:"required"`
	UserID    string `json:"userId" validate:"required"`
	Message   string `json:"message" validate:"required"`
	MessageID string `json:"messageId,omitempty"`
}

type PresenceUpdatePayload struct {
	UserID   string `json:"userId" validate:"required"`
	Status   string `json:"status" validate:"required"`
	Activity string `json:"currentActivity,omitempty"`
}

type GetPresencePayload struct {
	UserID string `json:"userId" validate:"required"`
}

type ActivityPayload struct {
	UserID string          `json:"userId" validate:"required"`
	Action string          `json:"action" validate:"required"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// --- Outbound payloads. Timestamp is RFC 3339 UTC, stamped server-side. ---

type AuthenticatedPayload struct {
	UserID    string `json:"userId"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
}

type AdminConnectedPayload struct {
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type CollaborationJoinedPayload struct {
	RoomID           string   `json:"roomId"`
	ParticipantCount int      `json:"participantCount"`
	Participants     []string `json:"participants"`
	Timestamp        string   `json:"timestamp"`
}

type UserJoinedPayload struct {
	RoomID           string `json:"roomId"`
	UserID           string `json:"userId"`
	ParticipantCount int    `json:"participantCount"`
	Timestamp        string `json:"timestamp"`
}

type CollaborationLeftPayload struct {
	RoomID    string `json:"roomId"`
	Timestamp string `json:"timestamp"`
}

type UserLeftPayload struct {
	RoomID    string `json:"roomId"`
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type EditAcknowledgedPayload struct {
	RoomID     string `json:"roomId"`
	DocumentID string `json:"documentId"`
	Timestamp  string `json:"timestamp"`
}

type DocumentUpdatedPayload struct {
	RoomID     string          `json:"roomId"`
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId"`
	Changes    json.RawMessage `json:"changes"`
	Timestamp  string          `json:"timestamp"`
}

type MessageSentPayload struct {
	RoomID    string `json:"roomId"`
	MessageID string `json:"messageId"`
	Timestamp string `json:"timestamp"`
}

type ChatMessageReceivedPayload struct {
	RoomID    string     `json:"roomId"`
	MessageID string     `json:"messageId"`
	UserID    string     `json:"userId"`
	Role      state.Role `json:"role"`
	Message   string     `json:"message"`
	Timestamp string     `json:"timestamp"`
}

type PresenceChangedPayload struct {
	UserID    string `json:"userId"`
	Status    string `json:"status"`
	Activity  string `json:"currentActivity,omitempty"`
	Timestamp string `json:"timestamp"`
}

type PresenceStatePayload struct {
	UserID     string `json:"userId"`
	Status     string `json:"status"`
	Activity   string `json:"currentActivity,omitempty"`
	LastSeenAt string `json:"lastSeenAt,omitempty"`
	Timestamp  string `json:"timestamp"`
}

type ActivityMirrorPayload struct {
	UserID    string          `json:"userId"`
	Role      state.Role      `json:"role"`
	Action    string          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp"`
}

type PongPayload struct {
	Timestamp string `json:"timestamp"`
}

type UserDisconnectedPayload struct {
	UserID    string `json:"userId"`
	Timestamp string `json:"timestamp"`
}

type ErrorPayload struct {
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Code      string `json:"code"`
	Timestamp string `json:"timestamp"`
}

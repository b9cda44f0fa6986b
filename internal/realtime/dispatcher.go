// Package realtime implements the collaboration core: event dispatch, room
// and presence handling, broadcast fan-out, and the background reaper.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

// Dispatcher is the single entry point for inbound transport events. It
// decodes the envelope, enforces the per-connection state machine
// (unauthenticated -> active -> closed), validates payload shape, and routes
// to the matching handler. A malformed event never takes down the loop: every
// failure is converted to a typed error event for the sender only.
type Dispatcher struct {
	logger    *slog.Logger
	conns     state.ConnectionRegistry
	rooms     state.RoomRegistry
	presence  state.PresenceTracker
	broadcast *Broadcaster
	validate  *validator.Validate
	now       func() time.Time
}

func NewDispatcher(
	logger *slog.Logger,
	conns state.ConnectionRegistry,
	rooms state.RoomRegistry,
	presence state.PresenceTracker,
	broadcast *Broadcaster,
) *Dispatcher {
	return &Dispatcher{
		logger:    logger.With(slog.String("component", "dispatcher")),
		conns:     conns,
		rooms:     rooms,
		presence:  presence,
		broadcast: broadcast,
		validate:  validator.New(),
		now:       time.Now,
	}
}

// HandleMessage is installed as the transport's message callback. Invocations
// for one connection never overlap (single read pump), so connection state
// transitions are race-free without extra locking here.
func (d *Dispatcher) HandleMessage(_ context.Context, connID uuid.UUID, msg []byte) {
	conn, ok := d.conns.Get(connID)
	if !ok {
		// raced with disconnect cleanup; nothing to answer to
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panic recovered",
				slog.String("connID", connID.String()),
				slog.Any("panic", r),
			)
			d.sendError(conn, EventSocketError, "internal error", CodeInternalError)
		}
	}()

	d.conns.Touch(connID)

	event := gjson.GetBytes(msg, "event").String()
	if event == "" {
		d.sendError(conn, EventSocketError, "message is missing an event name", CodeMalformedPayload)
		return
	}
	payload := json.RawMessage(gjson.GetBytes(msg, "payload").Raw)

	d.logger.Debug("Dispatching event",
		slog.String("event", event),
		slog.String("connID", connID.String()),
	)

	// authenticate and ping are the only events accepted before the
	// connection reaches the active state. Everything else is dropped with
	// an auth error; nothing is queued.
	switch event {
	case EventAuthenticate:
		d.handleAuthenticate(conn, payload)
		return
	case EventPing:
		d.handlePing(conn)
		return
	}

	if !conn.Authenticated() {
		d.sendError(conn, EventAuthError, "authenticate before sending events", CodeAuthRequired)
		return
	}

	switch event {
	case EventJoinCollab:
		d.handleJoin(conn, payload)
	case EventLeaveCollab:
		d.handleLeave(conn, payload)
	case EventDocumentEdit:
		d.handleDocumentEdit(conn, payload)
	case EventChatMessage:
		d.handleChatMessage(conn, payload)
	case EventPresenceUpdate:
		d.handlePresenceUpdate(conn, payload)
	case EventGetPresence:
		d.handleGetPresence(conn, payload)
	case EventInventoryUpdate:
		d.handleActivity(conn, payload, EventInventoryUpdated)
	case EventSpendingUpdate:
		d.handleActivity(conn, payload, EventSpendingUpdated)
	case EventAnalyticsUpdate:
		d.handleActivity(conn, payload, EventAnalyticsUpdated)
	default:
		d.sendError(conn, EventSocketError, "unknown event: "+event, CodeUnknownEvent)
	}
}

// HandleDisconnect is installed as the transport's close callback. Removal is
// idempotent; a second invocation finds no record and does nothing.
func (d *Dispatcher) HandleDisconnect(connID uuid.UUID, err error) {
	rec := d.conns.Remove(connID)
	if rec == nil {
		return
	}
	d.logger.Info("Connection disconnected",
		slog.String("connID", connID.String()),
		slog.String("userID", rec.UserID),
		slog.Any("reason", err),
	)
	if !rec.Authenticated() {
		return
	}

	// The record was removed first, so only the user's remaining devices
	// hear about this.
	d.broadcast.ToUser(rec.UserID, EventUserDisconnected, UserDisconnectedPayload{
		UserID:    rec.UserID,
		Timestamp: d.stamp(),
	})
	if rec.Role == state.RoleAdmin {
		d.broadcast.ToAdmins(EventAdminDisconnected, UserDisconnectedPayload{
			UserID:    rec.UserID,
			Timestamp: d.stamp(),
		})
	}
}

// Authenticate attaches identity to a connection and emits the enrolment
// notifications. Shared between the authenticate event handler and the
// upgrade-time identity assertion from the REST auth layer.
func (d *Dispatcher) Authenticate(conn *state.Connection, userID string, role state.Role) error {
	if _, err := d.conns.Authenticate(conn.ID, userID, role); err != nil {
		return err
	}
	conn.Transport.Send(d.mustMarshal(EventAuthenticated, AuthenticatedPayload{
		UserID:    userID,
		Role:      string(role),
		Timestamp: d.stamp(),
	}))
	if role == state.RoleAdmin {
		d.broadcast.ToAdminsExcept(EventAdminConnected, AdminConnectedPayload{
			UserID:    userID,
			Timestamp: d.stamp(),
		}, conn.ID)
	}
	return nil
}

// decode unmarshals and shape-checks an inbound payload. On failure it sends
// the given error event to the origin and reports false.
func (d *Dispatcher) decode(conn *state.Connection, payload json.RawMessage, dst any, errEvent, errCode string) bool {
	if len(payload) == 0 {
		d.sendError(conn, errEvent, "missing payload", errCode)
		return false
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		d.sendError(conn, errEvent, "malformed payload", CodeMalformedPayload)
		return false
	}
	if err := d.validate.Struct(dst); err != nil {
		d.sendError(conn, errEvent, "missing required fields", errCode)
		return false
	}
	return true
}

// sendError emits a typed error event to the originating connection only.
// Errors are never broadcast.
func (d *Dispatcher) sendError(conn *state.Connection, event, message, code string) {
	conn.Transport.Send(d.mustMarshal(event, ErrorPayload{
		Error:     true,
		Message:   message,
		Code:      code,
		Timestamp: d.stamp(),
	}))
}

// mustMarshal is for payloads built from our own structs; a marshal failure
// there is a programming error.
func (d *Dispatcher) mustMarshal(event string, payload any) []byte {
	msg, err := Marshal(event, payload)
	if err != nil {
		panic(err)
	}
	return msg
}

// timeLayout is the ISO-8601 layout used for every server timestamp.
const timeLayout = time.RFC3339

// stamp returns the server-generated ISO-8601 timestamp carried by every
// outbound payload.
func (d *Dispatcher) stamp() string {
	return d.now().UTC().Format(timeLayout)
}

package realtime

import (
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/HobbitNuggettel/Home-Hub-sub000/pkg/state"
)

func (d *Dispatcher) handleAuthenticate(conn *state.Connection, payload json.RawMessage) {
	var p AuthenticatePayload
	if !d.decode(conn, payload, &p, EventAuthError, CodeInvalidAuthData) {
		return
	}
	if err := d.Authenticate(conn, p.UserID, state.Role(p.Role)); err != nil {
		if errors.Is(err, state.ErrInvalidAuthData) {
			d.sendError(conn, EventAuthError, err.Error(), CodeInvalidAuthData)
			return
		}
		d.logger.Error("Authenticate failed", slog.Any("error", err))
		d.sendError(conn, EventAuthError, "authentication failed", CodeInternalError)
	}
}

func (d *Dispatcher) handleJoin(conn *state.Connection, payload json.RawMessage) {
	var p JoinPayload
	if !d.decode(conn, payload, &p, EventCollaborationError, CodeInvalidRoomData) {
		return
	}

	snapshot := d.rooms.Join(p.RoomID, p.UserID, conn.Role)

	conn.Transport.Send(d.mustMarshal(EventCollaborationJoined, CollaborationJoinedPayload{
		RoomID:           snapshot.ID,
		ParticipantCount: snapshot.ParticipantCount,
		Participants:     snapshot.Participants,
		Timestamp:        d.stamp(),
	}))
	d.broadcast.ToRoom(p.RoomID, EventUserJoined, UserJoinedPayload{
		RoomID:           p.RoomID,
		UserID:           p.UserID,
		ParticipantCount: snapshot.ParticipantCount,
		Timestamp:        d.stamp(),
	}, conn.ID)
}

func (d *Dispatcher) handleLeave(conn *state.Connection, payload json.RawMessage) {
	var p LeavePayload
	if !d.decode(conn, payload, &p, EventCollaborationError, CodeInvalidRoomData) {
		return
	}

	d.rooms.Leave(p.RoomID, p.UserID)

	conn.Transport.Send(d.mustMarshal(EventCollaborationLeft, CollaborationLeftPayload{
		RoomID:    p.RoomID,
		Timestamp: d.stamp(),
	}))
	d.broadcast.ToRoom(p.RoomID, EventUserLeft, UserLeftPayload{
		RoomID:    p.RoomID,
		UserID:    p.UserID,
		Timestamp: d.stamp(),
	}, conn.ID)
}

func (d *Dispatcher) handleDocumentEdit(conn *state.Connection, payload json.RawMessage) {
	var p DocumentEditPayload
	if !d.decode(conn, payload, &p, EventEditError, CodeInvalidEditData) {
		return
	}

	// An edit to a room nobody joined is dropped, not answered: the registry
	// already logged it and the room genuinely does not exist for anyone.
	if _, ok := d.rooms.RecordEdit(p.RoomID, p.DocumentID, p.UserID, conn.Role, p.Changes); !ok {
		return
	}

	conn.Transport.Send(d.mustMarshal(EventEditAcknowledged, EditAcknowledgedPayload{
		RoomID:     p.RoomID,
		DocumentID: p.DocumentID,
		Timestamp:  d.stamp(),
	}))
	d.broadcast.ToRoom(p.RoomID, EventDocumentUpdated, DocumentUpdatedPayload{
		RoomID:     p.RoomID,
		DocumentID: p.DocumentID,
		UserID:     p.UserID,
		Changes:    p.Changes,
		Timestamp:  d.stamp(),
	}, conn.ID)
}

func (d *Dispatcher) handleChatMessage(conn *state.Connection, payload json.RawMessage) {
	var p ChatMessagePayload
	if !d.decode(conn, payload, &p, EventChatError, CodeInvalidChatData) {
		return
	}

	msg, ok := d.rooms.RecordChatMessage(p.RoomID, p.UserID, conn.Role, p.Message, p.MessageID)
	if !ok {
		return
	}

	conn.Transport.Send(d.mustMarshal(EventMessageSent, MessageSentPayload{
		RoomID:    p.RoomID,
		MessageID: msg.ID,
		Timestamp: d.stamp(),
	}))
	// Chat reaches the entire room, sender included.
	d.broadcast.ToRoom(p.RoomID, EventChatMessageReceived, ChatMessageReceivedPayload{
		RoomID:    p.RoomID,
		MessageID: msg.ID,
		UserID:    msg.UserID,
		Role:      msg.Role,
		Message:   msg.Content,
		Timestamp: d.stamp(),
	}, noExclusion)
}

func (d *Dispatcher) handlePresenceUpdate(conn *state.Connection, payload json.RawMessage) {
	var p PresenceUpdatePayload
	if !d.decode(conn, payload, &p, EventPresenceError, CodeInvalidStatus) {
		return
	}

	status, err := state.ParsePresenceStatus(p.Status)
	if err != nil {
		d.sendError(conn, EventPresenceError, "status must be one of online|away|busy|offline", CodeInvalidStatus)
		return
	}

	rec, err := d.presence.SetStatus(p.UserID, status, p.Activity)
	if err != nil {
		d.sendError(conn, EventPresenceError, err.Error(), CodeInvalidStatus)
		return
	}

	// Presence feeds back into the connection-level status, except that a
	// live socket is never marked offline.
	switch status {
	case state.PresenceOnline:
		d.conns.SetStatus(conn.ID, state.ConnActive)
	case state.PresenceAway:
		d.conns.SetStatus(conn.ID, state.ConnAway)
	case state.PresenceBusy:
		d.conns.SetStatus(conn.ID, state.ConnBusy)
	}

	changed := PresenceChangedPayload{
		UserID:    rec.UserID,
		Status:    string(rec.Status),
		Activity:  rec.Activity,
		Timestamp: d.stamp(),
	}
	d.broadcast.ToUser(p.UserID, EventPresenceChanged, changed)
	if conn.Role == state.RoleAdmin {
		d.broadcast.ToAdmins(EventAdminPresenceUpdate, changed)
	}
}

func (d *Dispatcher) handleGetPresence(conn *state.Connection, payload json.RawMessage) {
	var p GetPresencePayload
	if !d.decode(conn, payload, &p, EventPresenceError, CodeInvalidStatus) {
		return
	}

	out := PresenceStatePayload{
		UserID:    p.UserID,
		Status:    string(state.PresenceOffline),
		Timestamp: d.stamp(),
	}
	if rec, ok := d.presence.Get(p.UserID); ok {
		out.Status = string(rec.Status)
		out.Activity = rec.Activity
		out.LastSeenAt = rec.LastSeenAt.UTC().Format(timeLayout)
	}
	conn.Transport.Send(d.mustMarshal(EventPresenceState, out))
}

// handleActivity mirrors inventory/spending/analytics updates to the acting
// user's personal channel. Non-admin activity is additionally mirrored to the
// admin channel for monitoring.
func (d *Dispatcher) handleActivity(conn *state.Connection, payload json.RawMessage, outEvent string) {
	var p ActivityPayload
	if !d.decode(conn, payload, &p, EventSocketError, CodeInvalidActivity) {
		return
	}

	mirror := ActivityMirrorPayload{
		UserID:    p.UserID,
		Role:      conn.Role,
		Action:    p.Action,
		Data:      p.Data,
		Timestamp: d.stamp(),
	}
	d.broadcast.ToUser(p.UserID, outEvent, mirror)
	if conn.Role != state.RoleAdmin {
		d.broadcast.ToAdmins(outEvent, mirror)
	}
}

func (d *Dispatcher) handlePing(conn *state.Connection) {
	conn.Transport.Send(d.mustMarshal(EventPong, PongPayload{Timestamp: d.stamp()}))
}

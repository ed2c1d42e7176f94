// Package protocol defines the wire-level request/response/event envelopes
// for the persistence, session, and match protocols (spec §4.2-§4.5, §6).
// Every envelope is a tagged variant over a fixed enumeration; unknown
// tags are rejected at the parse boundary rather than propagated.
package protocol

import "encoding/json"

// Action is the persistence/session request action tag.
type Action string

const (
	ActionCreateUser       Action = "create_user"
	ActionLoginUser        Action = "login_user"
	ActionGetUser          Action = "get_user"
	ActionGetUserByEmail   Action = "get_user_by_email"
	ActionCreateRoom       Action = "create_room"
	ActionGetRoom          Action = "get_room"
	ActionListRooms        Action = "list_rooms"
	ActionUpdateRoom       Action = "update_room"
	ActionDeleteRoom       Action = "delete_room"
	ActionCreateGameLog    Action = "create_game_log"
	ActionListGameLogs     Action = "list_game_logs"

	ActionRegister        Action = "register"
	ActionLogin           Action = "login"
	ActionLogout          Action = "logout"
	ActionListOnlineUsers Action = "list_online_users"
	ActionJoinRoom        Action = "join_room"
	ActionLeaveRoom       Action = "leave_room"
	ActionInvite          Action = "invite"
	ActionStartGame       Action = "start_game"
	ActionKick            Action = "kick"
)

// knownActions is consulted through KnownAction to reject unknown action tags
// at the parse boundary per the "dynamic envelopes -> tagged variants"
// design note.
var knownActions = map[Action]bool{
	ActionCreateUser: true, ActionLoginUser: true, ActionGetUser: true,
	ActionGetUserByEmail: true, ActionCreateRoom: true, ActionGetRoom: true,
	ActionListRooms: true, ActionUpdateRoom: true, ActionDeleteRoom: true,
	ActionCreateGameLog: true, ActionListGameLogs: true,
	ActionRegister: true, ActionLogin: true, ActionLogout: true,
	ActionListOnlineUsers: true, ActionJoinRoom: true, ActionLeaveRoom: true,
	ActionInvite: true, ActionStartGame: true, ActionKick: true,
}

// Request is the envelope every persistence and session request uses.
type Request struct {
	Action Action          `json:"action"`
	Data   json.RawMessage `json:"data"`
}

// Status is the response envelope's status tag.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Response is the envelope every persistence and session response uses.
type Response struct {
	Status  Status          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ErrorData is the Data payload of an error Response.
type ErrorData struct {
	Kind string `json:"kind"`
}

// EventType is the session service's unsolicited push-event tag.
type EventType string

const (
	EventMatchReady EventType = "match_ready"
	EventInvited    EventType = "invited"
)

// Event is the envelope for unsolicited session-service pushes.
type Event struct {
	Event EventType       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// KnownAction reports whether a is a recognized action tag.
func KnownAction(a Action) bool { return knownActions[a] }

// Decode unmarshals req.Data into v.
func (r *Request) Decode(v interface{}) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// NewSuccess builds a success Response carrying v as Data.
func NewSuccess(v interface{}) Response {
	raw, _ := json.Marshal(v)
	return Response{Status: StatusSuccess, Data: raw}
}

// NewError builds an error Response for the given kind and message.
func NewError(kind, message string) Response {
	raw, _ := json.Marshal(ErrorData{Kind: kind})
	return Response{Status: StatusError, Message: message, Data: raw}
}

package protocol

import "tetriduel/internal/model"

// RegisterRequest/LoginRequest mirror the persistence create_user/login_user
// payloads one-to-one; the session service just forwards them.
type RegisterRequest struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

type LoginRequest struct {
	Email        string `json:"email"`
	PasswordHash string `json:"password_hash"`
}

type UserRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type OnlineUsersResponse struct {
	Users []UserRef `json:"users"`
}

type ListRoomsResponse struct {
	Rooms []*model.Room `json:"rooms"`
}

type CreateRoomRequest struct {
	Name       string            `json:"name"`
	Visibility model.Visibility  `json:"visibility"`
}

type JoinRoomRequest struct {
	RoomID int64 `json:"room_id"`
}

type InviteRequest struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}

type KickRequest struct {
	RoomID int64 `json:"room_id"`
	UserID int64 `json:"user_id"`
}

type StartGameRequest struct {
	RoomID int64 `json:"room_id"`
}

// StartGameResponse is returned to the host who called start_game.
type StartGameResponse struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	MatchID string `json:"match_id"`
	Role    Role   `json:"role"`
}

// MatchReadyEvent is pushed to the guest's session, unsolicited, when the
// host's start_game succeeds.
type MatchReadyEvent struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	Role    Role   `json:"role"`
}

// InvitedEvent is pushed to a target user's session when they're invited
// to a private room.
type InvitedEvent struct {
	RoomID   int64  `json:"room_id"`
	RoomName string `json:"room_name"`
	FromUser string `json:"from_user"`
}

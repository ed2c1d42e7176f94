package sessionservice

import (
	"sync"

	"tetriduel/internal/wire"
)

// Session is one connected client (spec §3: "In-memory only... connection
// handle, authenticated user id (nullable), current room id (nullable)").
// It is created on connect and destroyed on disconnect.
type Session struct {
	wc   *wire.Conn
	send chan interface{}

	mu     sync.Mutex
	userID int64 // 0 = not authenticated
	name   string
	roomID int64 // 0 = not in a room
}

func newSession(wc *wire.Conn) *Session {
	return &Session{
		wc:   wc,
		send: make(chan interface{}, 32),
	}
}

func (s *Session) isAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID != 0
}

func (s *Session) setUser(id int64, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = id
	s.name = name
}

func (s *Session) user() (int64, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.name
}

func (s *Session) setRoom(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = id
}

func (s *Session) room() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// enqueue queues an unsolicited event or response for delivery without
// blocking the caller.
func (s *Session) enqueue(msg interface{}) {
	select {
	case s.send <- msg:
	default:
	}
}

func (s *Session) writePump() {
	for msg := range s.send {
		if err := s.wc.WriteMessage(msg); err != nil {
			return
		}
	}
}

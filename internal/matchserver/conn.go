package matchserver

import (
	"encoding/json"
	"log"
	"sync"

	"tetriduel/internal/protocol"
	"tetriduel/internal/wire"
)

// sendBuffer bounds the outgoing queue per player; the tick loop never
// blocks on a slow reader (mirrors the teacher's buffered send channel).
const sendBuffer = 64

// inputBuffer bounds the per-player MPSC input queue.
const inputBuffer = 256

// playerConn is one connected player's transport: a read pump that
// decodes INPUT frames into the match loop's MPSC queue, and a write
// pump that drains outgoing frames onto the socket. Exactly one producer
// (this pump) and one consumer (the tick loop goroutine) touch inputs.
type playerConn struct {
	userID int64
	role   protocol.Role
	wc     *wire.Conn

	send   chan interface{}
	inputs chan protocol.Input

	mu        sync.Mutex
	connected bool
	closeOnce sync.Once
	closed    chan struct{}
}

func newPlayerConn(userID int64, role protocol.Role, wc *wire.Conn) *playerConn {
	return &playerConn{
		userID:    userID,
		role:      role,
		wc:        wc,
		send:      make(chan interface{}, sendBuffer),
		inputs:    make(chan protocol.Input, inputBuffer),
		connected: true,
		closed:    make(chan struct{}),
	}
}

// readPump decodes INPUT frames until the connection errs or closes, then
// reports disconnect via onDisconnect exactly once.
func (p *playerConn) readPump(onDisconnect func(userID int64)) {
	defer p.markDisconnected(onDisconnect)
	for {
		var env protocol.Envelope
		// no deadline: liveness is carried by the match's overall duration
		// cap (internal/launcher), not a per-read timeout, since a player
		// legitimately may not send INPUT for long stretches (e.g. no soft
		// drops) while gravity alone still advances their board.
		raw, err := p.wc.ReadRaw(0)
		if err != nil {
			return
		}
		if err := unmarshalInto(raw, &env); err != nil {
			continue
		}
		if env.Type != protocol.MsgInput {
			continue
		}
		var in protocol.Input
		if err := unmarshalInto(raw, &in); err != nil {
			continue
		}
		if in.UserID != p.userID {
			continue // userId mismatch: dropped silently (spec §4.5)
		}
		select {
		case p.inputs <- in:
		default:
			log.Printf("[matchserver] input queue full for user %d, dropping", p.userID)
		}
	}
}

// writePump drains p.send onto the socket until the channel is closed
// (normal end of match) or the connection itself is torn down. Closing
// p.send rather than the raw conn lets any already-queued GAME_OVER frame
// flush before the socket goes away.
func (p *playerConn) writePump() {
	for {
		select {
		case msg, ok := <-p.send:
			if !ok {
				p.wc.Close()
				return
			}
			if err := p.wc.WriteMessage(msg); err != nil {
				return
			}
		case <-p.closed:
			return
		}
	}
}

// closeSend closes the outgoing queue once the match has finished
// enqueueing messages for this player.
func (p *playerConn) closeSend() {
	close(p.send)
}

// enqueue queues msg for delivery without blocking the tick loop.
func (p *playerConn) enqueue(msg interface{}) {
	select {
	case p.send <- msg:
	default:
		log.Printf("[matchserver] send queue full for user %d, dropping frame", p.userID)
	}
}

func (p *playerConn) markDisconnected(onDisconnect func(userID int64)) {
	p.mu.Lock()
	wasConnected := p.connected
	p.connected = false
	p.mu.Unlock()

	p.closeOnce.Do(func() {
		close(p.closed)
		p.wc.Close()
	})

	if wasConnected && onDisconnect != nil {
		onDisconnect(p.userID)
	}
}

func (p *playerConn) isConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func unmarshalInto(raw []byte, v interface{}) error {
	return json.Unmarshal(raw, v)
}

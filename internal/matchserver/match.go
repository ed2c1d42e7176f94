package matchserver

import (
	"context"
	"log"
	"net"
	"sync"
	"time"

	"tetriduel/internal/engine"
	"tetriduel/internal/model"
	"tetriduel/internal/protocol"
	"tetriduel/internal/wire"
)

const (
	handshakeTimeout = 30 * time.Second
	tickInterval     = 100 * time.Millisecond // 10 Hz (spec §4.5)
	gravityInterval  = 500 * time.Millisecond // spec §4.4/§4.6 default
	previewLen       = 3
)

// Match runs exactly one match to completion.
type Match struct {
	MatchID string
	RoomID  int64
	Seed    int64

	authorized []AuthorizedPlayer
	notifier   Notifier
	logWriter  LogWriter

	mu      sync.Mutex
	state   matchState
	players map[int64]*playerConn
	engines map[int64]*engine.State
	order   []int64 // userIDs in P1,P2 order

	lastGravity map[int64]time.Time
	lastSeqMap  map[int64]int64
	tick        int64

	startedAt time.Time
}

// NewMatch constructs a Match for the two authorized players. logWriter
// and notifier may be nil in tests that don't exercise finalization.
func NewMatch(matchID string, roomID, seed int64, authorized []AuthorizedPlayer, notifier Notifier, logWriter LogWriter) *Match {
	return &Match{
		MatchID:     matchID,
		RoomID:      roomID,
		Seed:        seed,
		authorized:  authorized,
		notifier:    notifier,
		logWriter:   logWriter,
		state:       stateAwaitingPlayers,
		players:     make(map[int64]*playerConn),
		engines:     make(map[int64]*engine.State),
		lastGravity: make(map[int64]time.Time),
	}
}

// Run accepts exactly two connections on ln, runs the handshake window,
// the tick loop, and finalization, then returns once the match reaches
// Done. It blocks until completion or ctx is canceled.
func (m *Match) Run(ctx context.Context, ln net.Listener) error {
	log.Printf("[match %s] awaiting players on %s", m.MatchID, ln.Addr())

	deadline := time.Now().Add(handshakeTimeout)
	acceptCtx, cancelAccept := context.WithDeadline(ctx, deadline)
	defer cancelAccept()

	go func() {
		<-acceptCtx.Done()
		ln.Close()
	}()

	validated := make(chan struct{}, 2)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return // deadline hit or listener closed
			}
			go m.handleHandshake(ctx, wire.NewConn(conn), validated)
		}
	}()

	readyCount := 0
waitLoop:
	for readyCount < 2 {
		select {
		case <-validated:
			readyCount++
		case <-acceptCtx.Done():
			break waitLoop
		}
	}
	cancelAccept()
	ln.Close()

	m.mu.Lock()
	connectedCount := len(m.players)
	m.mu.Unlock()

	if connectedCount < 2 {
		return m.abortIncomplete(ctx)
	}

	m.mu.Lock()
	m.state = stateRunning
	m.startedAt = time.Now()
	now := m.startedAt
	for _, uid := range m.order {
		m.lastGravity[uid] = now
	}
	m.mu.Unlock()

	for _, uid := range m.order {
		p := m.players[uid]
		go p.readPump(m.onDisconnect)
		go p.writePump()
	}

	return m.runTickLoop(ctx)
}

// handleHandshake reads one HELLO frame, validates it against the
// authorized player list, and replies with WELCOME. On success it signals
// validated so Run can stop waiting once both seats are filled.
func (m *Match) handleHandshake(ctx context.Context, wc *wire.Conn, validated chan<- struct{}) {
	var hello protocol.Hello
	if err := wc.ReadMessage(&hello, handshakeTimeout); err != nil {
		wc.Close()
		return
	}
	if hello.Type != protocol.MsgHello {
		wc.Close()
		return
	}

	var matched *AuthorizedPlayer
	for i := range m.authorized {
		ap := m.authorized[i]
		if ap.RoomID == hello.RoomID && ap.UserID == hello.UserID {
			matched = &ap
			break
		}
	}
	if matched == nil {
		wc.Close()
		return
	}

	m.mu.Lock()
	if _, exists := m.players[matched.UserID]; exists {
		m.mu.Unlock()
		wc.Close()
		return
	}
	pc := newPlayerConn(matched.UserID, matched.Role, wc)
	m.players[matched.UserID] = pc
	m.engines[matched.UserID] = engine.New(m.Seed)
	m.order = append(m.order, matched.UserID)
	m.mu.Unlock()

	welcome := protocol.Welcome{
		Type:    protocol.MsgWelcome,
		Role:    matched.Role,
		Seed:    m.Seed,
		BagRule: "7bag",
		GravityPlan: protocol.GravityPlan{
			Mode:   "fixed",
			DropMs: int(gravityInterval / time.Millisecond),
		},
	}
	if err := wc.WriteMessage(welcome); err != nil {
		wc.Close()
		return
	}
	validated <- struct{}{}
}

// abortIncomplete handles the "not both players completed HELLO within
// 30s" branch of the handshake (spec §4.5).
func (m *Match) abortIncomplete(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var winner *int64
	var results []protocol.ResultView
	for _, ap := range m.authorized {
		if _, ok := m.players[ap.UserID]; ok {
			uid := ap.UserID
			winner = &uid
			results = append(results, protocol.ResultView{UserID: uid})
		}
	}
	gameOver := protocol.GameOver{Type: protocol.MsgGameOver, Winner: winner, Results: results}
	// No writePump is running yet at this point (Run only starts the
	// pumps once both players have connected), so the abort notice is
	// written synchronously instead of enqueued.
	for _, pc := range m.players {
		pc.wc.WriteMessage(gameOver)
		pc.wc.Close()
	}
	m.state = stateDone
	m.finalizeLocked(ctx, winner, results)
	return nil
}

// onDisconnect converts a mid-match disconnect into forfeit (spec §4.5,
// §5 "Cancellation").
func (m *Match) onDisconnect(userID int64) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	if state != stateRunning {
		return
	}
	m.mu.Lock()
	if eng, ok := m.engines[userID]; ok {
		eng.GameOver = true
	}
	m.mu.Unlock()
}

func (m *Match) runTickLoop(ctx context.Context) error {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			done := m.step()
			if done {
				return m.terminate(ctx)
			}
		}
	}
}

// step drains queued inputs, applies gravity where due, and broadcasts one
// snapshot per player. Returns true if any engine reports game over.
func (m *Match) step() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tick++
	now := time.Now()

	for _, uid := range m.order {
		eng := m.engines[uid]
		pc := m.players[uid]
		if eng.GameOver {
			continue
		}
		m.drainInputs(uid, eng, pc)
		if eng.GameOver {
			continue
		}
		if now.Sub(m.lastGravity[uid]) >= gravityInterval {
			eng.Gravity()
			m.lastGravity[uid] = now
		}
	}

	anyGameOver := false
	for _, uid := range m.order {
		eng := m.engines[uid]
		m.broadcastSnapshot(uid, eng, now)
		if eng.GameOver {
			anyGameOver = true
		}
	}
	return anyGameOver
}

// drainInputs pulls every currently queued input for uid and applies it in
// arrival order, enforcing strictly increasing per-client seq.
func (m *Match) drainInputs(uid int64, eng *engine.State, pc *playerConn) {
	lastSeq, haveSeq := m.lastSeqFor(uid)
	for {
		select {
		case in := <-pc.inputs:
			if haveSeq && in.Seq <= lastSeq {
				continue // duplicate or out-of-order: dropped
			}
			if !protocol.KnownInputAction(in.Action) {
				continue
			}
			lastSeq = in.Seq
			haveSeq = true
			eng.Apply(engine.Action(in.Action))
		default:
			m.setLastSeqFor(uid, lastSeq, haveSeq)
			return
		}
	}
}

// lastSeqFor/setLastSeqFor track each player's last-applied INPUT seq,
// kept separate from engine state so it persists independent of
// gravity/lock events.
func (m *Match) lastSeqFor(uid int64) (int64, bool) {
	v, ok := m.seqByUser()[uid]
	return v, ok
}

func (m *Match) setLastSeqFor(uid int64, seq int64, ok bool) {
	if !ok {
		return
	}
	m.seqByUser()[uid] = seq
}

func (m *Match) seqByUser() map[int64]int64 {
	if m.lastSeqMap == nil {
		m.lastSeqMap = make(map[int64]int64)
	}
	return m.lastSeqMap
}

func (m *Match) broadcastSnapshot(uid int64, eng *engine.State, now time.Time) {
	pc := m.players[uid]
	next := eng.Next(previewLen)
	nextStrs := make([]string, len(next))
	for i, k := range next {
		nextStrs[i] = k.String()
	}
	hold := ""
	if eng.Hold != engine.KindNone {
		hold = eng.Hold.String()
	}
	snap := protocol.Snapshot{
		Type:   protocol.MsgSnapshot,
		Tick:   m.tick,
		UserID: uid,
		Role:   pc.role,
		BoardRLE: engine.EncodeRLE(&eng.Board),
		Active: protocol.ActivePieceView{
			Shape: eng.Active.Kind.String(),
			X:     eng.Active.X,
			Y:     eng.Active.Y,
			Rot:   eng.Active.Rot,
		},
		Hold:     hold,
		Next:     nextStrs,
		Score:    eng.Score,
		Lines:    eng.Lines,
		Level:    eng.Level(),
		GameOver: eng.GameOver,
		At:       now.UnixMilli(),
	}
	for _, p := range m.players {
		p.enqueue(snap)
	}
}

func (m *Match) terminate(ctx context.Context) error {
	m.mu.Lock()
	m.state = stateTerminating
	m.mu.Unlock()

	// wait one more tick to broadcast final snapshots (spec §4.5)
	select {
	case <-time.After(tickInterval):
	case <-ctx.Done():
	}
	m.step()

	m.mu.Lock()
	winner, results := m.finalResult()
	for _, p := range m.players {
		p.enqueue(protocol.GameOver{Type: protocol.MsgGameOver, Winner: winner, Results: results})
	}
	m.state = stateDone
	m.finalizeLocked(ctx, winner, results)
	for _, p := range m.players {
		p.closeSend()
	}
	m.mu.Unlock()

	return nil
}

// finalResult determines the winner: the surviving (non-game-over) player,
// or nil if both topped out in the same tick.
func (m *Match) finalResult() (*int64, []protocol.ResultView) {
	var alive []int64
	results := make([]protocol.ResultView, 0, len(m.order))
	for _, uid := range m.order {
		eng := m.engines[uid]
		results = append(results, protocol.ResultView{
			UserID: uid,
			Score:  eng.Score,
			Lines:  eng.Lines,
		})
		if !eng.GameOver {
			alive = append(alive, uid)
		}
	}
	if len(alive) == 1 {
		w := alive[0]
		return &w, results
	}
	return nil, results
}

// finalizeLocked writes the MatchLog and notifies the session service.
// Must be called with m.mu held.
func (m *Match) finalizeLocked(ctx context.Context, winner *int64, results []protocol.ResultView) {
	users := make([]int64, 0, len(m.order))
	playerResults := make([]model.PlayerResult, 0, len(results))
	for _, r := range results {
		users = append(users, r.UserID)
		playerResults = append(playerResults, model.PlayerResult{
			UserID: r.UserID,
			Score:  r.Score,
			Lines:  r.Lines,
		})
	}
	log := &model.MatchLog{
		MatchID: m.MatchID,
		RoomID:  m.RoomID,
		Users:   users,
		StartAt: m.startedAt,
		EndAt:   time.Now(),
		Results: playerResults,
	}

	if m.logWriter != nil {
		if _, err := m.logWriter.CreateGameLog(ctx, log); err != nil {
			logMatchError(m.MatchID, "persistence write failed", err)
		}
	}
	if m.notifier != nil {
		msg := protocol.MatchDone{
			Type:       protocol.MsgMatchDone,
			MatchID:    m.MatchID,
			RoomID:     m.RoomID,
			WinnerUser: winner,
		}
		if err := m.notifier.NotifyMatchDone(ctx, msg); err != nil {
			logMatchError(m.MatchID, "session notify failed", err)
		}
	}
}

func logMatchError(matchID, what string, err error) {
	log.Printf("[match %s] %s: %v", matchID, what, err)
}

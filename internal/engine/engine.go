// Package engine implements the pure, deterministic per-player Tetris
// state machine: board, active piece, bag, hold, scoring, and the tick
// step. Nothing in this package performs I/O; it is driven entirely by
// Apply/Gravity calls from the match server's tick loop.
package engine

// Action is one of the seven player actions recognized by Apply.
type Action string

const (
	ActionLeft     Action = "LEFT"
	ActionRight    Action = "RIGHT"
	ActionDown     Action = "DOWN"
	ActionCW       Action = "CW"
	ActionCCW      Action = "CCW"
	ActionHardDrop Action = "HARD_DROP"
	ActionHold     Action = "HOLD"
)

// base holds the per-line-count score multiplier (index = lines cleared).
var base = [5]int{0, 100, 300, 500, 800}

// Active is the falling piece.
type Active struct {
	Kind Kind
	X, Y int
	Rot  int
}

func (a Active) cells() [4]cell {
	return cellsFor(a.Kind, a.Rot, a.X, a.Y)
}

// State is one player's complete engine state within a match.
type State struct {
	Board Board
	Bag   *Bag

	Active   Active
	Hold     Kind // KindNone if empty
	HoldUsed bool

	Score int
	Lines int

	GameOver bool
}

// New returns a freshly spawned engine state for the given shared seed.
func New(seed int64) *State {
	s := &State{Bag: NewBag(seed)}
	s.spawn()
	return s
}

// Level is 1 + lines/10 (spec §4.4).
func (s *State) Level() int {
	return 1 + s.Lines/10
}

// Next returns the upcoming n preview kinds.
func (s *State) Next(n int) []Kind {
	return s.Bag.Preview(n)
}

// spawn draws the next bag kind and places it at its spawn origin. If the
// spawn placement collides, GameOver is set (top-out).
func (s *State) spawn() {
	k := s.Bag.Next()
	s.spawnKind(k)
}

func (s *State) spawnKind(k Kind) {
	x, y := spawnOrigin(k)
	a := Active{Kind: k, X: x, Y: y, Rot: 0}
	s.Active = a
	if s.Board.collides(a.cells()) {
		s.GameOver = true
	}
}

// Apply executes one player action. A no-op/rejected action is silent:
// Apply never returns an error (spec §4.4: "reject (no-op) on collision",
// "rejected silently when hold-used is set").
func (s *State) Apply(act Action) {
	if s.GameOver {
		return
	}
	switch act {
	case ActionLeft:
		s.tryMove(-1, 0)
	case ActionRight:
		s.tryMove(1, 0)
	case ActionDown:
		s.softDrop()
	case ActionCW:
		s.tryRotate(1)
	case ActionCCW:
		s.tryRotate(-1)
	case ActionHardDrop:
		s.hardDrop()
	case ActionHold:
		s.hold()
	}
}

func (s *State) tryMove(dx, dy int) bool {
	moved := s.Active
	moved.X += dx
	moved.Y += dy
	if s.Board.collides(moved.cells()) {
		return false
	}
	s.Active = moved
	return true
}

func (s *State) tryRotate(dir int) bool {
	rotated := s.Active
	rotated.Rot = ((rotated.Rot+dir)%4 + 4) % 4
	if s.Board.collides(rotated.cells()) {
		return false
	}
	s.Active = rotated
	return true
}

// softDrop is DOWN: translate +1 in y; on collision, lock.
func (s *State) softDrop() {
	if !s.tryMove(0, 1) {
		s.lock()
	}
}

// hardDrop translates +1 in y until the next step would collide, then
// locks immediately at that y.
func (s *State) hardDrop() {
	for s.tryMove(0, 1) {
	}
	s.lock()
}

func (s *State) hold() {
	if s.HoldUsed {
		return
	}
	cur := s.Active.Kind
	if s.Hold == KindNone {
		s.Hold = cur
		s.spawn()
	} else {
		swap := s.Hold
		s.Hold = cur
		s.spawnKind(swap)
	}
	s.HoldUsed = true
}

// lock fixes the active piece, clears lines, scores, resets hold-used, and
// spawns the next piece.
func (s *State) lock() {
	s.Board.lock(s.Active.cells(), s.Active.Kind)
	cleared := s.Board.clearLines()
	s.Score += base[cleared] * s.Level()
	s.Lines += cleared
	s.HoldUsed = false
	s.spawn()
}

// Gravity applies one gravity step: DOWN semantics (spec §4.4, §4.6).
func (s *State) Gravity() {
	if s.GameOver {
		return
	}
	s.softDrop()
}

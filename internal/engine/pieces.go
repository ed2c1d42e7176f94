package engine

// Kind is one of the seven tetromino kinds. Board cells store Kind+0 for
// empty (see Board) and the kind's 1-based ordinal otherwise.
type Kind int

const (
	KindNone Kind = iota
	KindI
	KindO
	KindT
	KindS
	KindZ
	KindJ
	KindL
)

// AllKinds is the canonical ordering shuffled to build one bag batch.
var AllKinds = []Kind{KindI, KindO, KindT, KindS, KindZ, KindJ, KindL}

// String returns the single-letter wire representation of k.
func (k Kind) String() string {
	switch k {
	case KindI:
		return "I"
	case KindO:
		return "O"
	case KindT:
		return "T"
	case KindS:
		return "S"
	case KindZ:
		return "Z"
	case KindJ:
		return "J"
	case KindL:
		return "L"
	default:
		return ""
	}
}

type cell struct{ x, y int }

// box is the bounding-box side length a kind's rotation states are computed
// within: 4 for I, 2 for O, 3 for every other kind.
func (k Kind) box() int {
	switch k {
	case KindI:
		return 4
	case KindO:
		return 2
	default:
		return 3
	}
}

// baseCells is rotation state 0 for each kind, within its bounding box.
// No SRS kick tables are defined anywhere in this package: a rotation
// either lands in its box-relative cells unobstructed or it is rejected.
var baseCells = map[Kind][]cell{
	KindI: {{0, 1}, {1, 1}, {2, 1}, {3, 1}},
	KindO: {{0, 0}, {1, 0}, {0, 1}, {1, 1}},
	KindT: {{1, 0}, {0, 1}, {1, 1}, {2, 1}},
	KindS: {{1, 0}, {2, 0}, {0, 1}, {1, 1}},
	KindZ: {{0, 0}, {1, 0}, {1, 1}, {2, 1}},
	KindJ: {{0, 0}, {0, 1}, {1, 1}, {2, 1}},
	KindL: {{2, 0}, {0, 1}, {1, 1}, {2, 1}},
}

// rotationCells caches the four rotation states (as box-relative offsets)
// for every kind, computed once at init by rotating baseCells within its
// box. O is never rotated, so its four states are identical.
var rotationCells = buildRotationTable()

func buildRotationTable() map[Kind][4][]cell {
	out := make(map[Kind][4][]cell)
	for _, k := range AllKinds {
		n := k.box()
		cur := baseCells[k]
		var states [4][]cell
		for r := 0; r < 4; r++ {
			states[r] = cur
			if k != KindO {
				cur = rotateCW(cur, n)
			}
		}
		out[k] = states
	}
	return out
}

// rotateCW rotates each cell 90 degrees clockwise within an n x n box.
func rotateCW(cells []cell, n int) []cell {
	out := make([]cell, len(cells))
	for i, c := range cells {
		out[i] = cell{x: n - 1 - c.y, y: c.x}
	}
	return out
}

// cellsFor returns the four absolute board cells for kind k at rotation
// state rot (0..3) with its box's top-left corner at (originX, originY).
func cellsFor(k Kind, rot, originX, originY int) [4]cell {
	states := rotationCells[k]
	rel := states[((rot%4)+4)%4]
	var out [4]cell
	for i, c := range rel {
		out[i] = cell{x: originX + c.x, y: originY + c.y}
	}
	return out
}

// spawnOrigin returns the top-left corner a freshly spawned piece of kind k
// is placed at: horizontally centered on row 0 (spec: "spawn state places
// the piece horizontally centered on row 0 of the playfield").
func spawnOrigin(k Kind) (int, int) {
	n := k.box()
	return (BoardWidth - n) / 2, 0
}

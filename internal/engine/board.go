package engine

// BoardWidth and BoardHeight fix the playfield dimensions (spec §4.4).
const (
	BoardWidth  = 10
	BoardHeight = 20
)

// Board is a 10x20 grid of cell values; 0 is empty, 1-7 encode piece kinds.
type Board [BoardHeight][BoardWidth]int

// inBounds reports whether (x, y) is within the playfield.
func inBounds(x, y int) bool {
	return x >= 0 && x < BoardWidth && y >= 0 && y < BoardHeight
}

// collides reports whether placing cells on b would collide: out of
// horizontal bounds, below the floor, or overlapping a non-zero cell.
// Cells above the top of the board (y < 0) are permitted, matching how a
// piece spawns with part of its box off-screen.
func (b *Board) collides(cells [4]cell) bool {
	for _, c := range cells {
		if c.x < 0 || c.x >= BoardWidth || c.y >= BoardHeight {
			return true
		}
		if c.y < 0 {
			continue
		}
		if b[c.y][c.x] != 0 {
			return true
		}
	}
	return false
}

// lock fixes cells onto the board with the given kind's cell value.
func (b *Board) lock(cells [4]cell, k Kind) {
	for _, c := range cells {
		if c.y >= 0 {
			b[c.y][c.x] = int(k)
		}
	}
}

// clearLines removes every fully non-zero row, shifting rows above down to
// fill, and returns the number of rows cleared.
func (b *Board) clearLines() int {
	var kept [BoardHeight][BoardWidth]int
	writeRow := BoardHeight - 1
	cleared := 0
	for y := BoardHeight - 1; y >= 0; y-- {
		full := true
		for x := 0; x < BoardWidth; x++ {
			if b[y][x] == 0 {
				full = false
				break
			}
		}
		if full {
			cleared++
			continue
		}
		kept[writeRow] = b[y]
		writeRow--
	}
	*b = kept
	return cleared
}

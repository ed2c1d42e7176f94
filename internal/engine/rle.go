package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// EncodeRLE run-length-encodes b's 200 cells, row-major, as comma-separated
// "count:value" pairs (e.g. "10:0,3:2,7:0,..."). This is the reference
// boardRLE encoding (spec §4.5: "exact encoding is implementation-defined
// provided both server and client agree").
func EncodeRLE(b *Board) string {
	var sb strings.Builder
	run := 0
	runVal := -1
	first := true
	flush := func() {
		if run == 0 {
			return
		}
		if !first {
			sb.WriteByte(',')
		}
		first = false
		fmt.Fprintf(&sb, "%d:%d", run, runVal)
	}
	for y := 0; y < BoardHeight; y++ {
		for x := 0; x < BoardWidth; x++ {
			v := b[y][x]
			if v == runVal {
				run++
				continue
			}
			flush()
			runVal = v
			run = 1
		}
	}
	flush()
	return sb.String()
}

// DecodeRLE reverses EncodeRLE into a Board. It is provided for test
// round-tripping and for clients implemented in this codebase.
func DecodeRLE(s string) (Board, error) {
	var b Board
	if s == "" {
		return b, nil
	}
	idx := 0
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return b, fmt.Errorf("engine: malformed RLE pair %q", pair)
		}
		count, err := strconv.Atoi(parts[0])
		if err != nil {
			return b, err
		}
		val, err := strconv.Atoi(parts[1])
		if err != nil {
			return b, err
		}
		for i := 0; i < count; i++ {
			if idx >= BoardWidth*BoardHeight {
				return b, fmt.Errorf("engine: RLE decodes past board size")
			}
			y, x := idx/BoardWidth, idx%BoardWidth
			b[y][x] = val
			idx++
		}
	}
	return b, nil
}

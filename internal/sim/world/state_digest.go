package world

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"

	"wirecraft.ai/internal/persistence/blocktext"
	"wirecraft.ai/internal/sim/grid"
)

// StateDigest hashes the block text lines of every cell in position order.
func (w *World) StateDigest() string {
	h := sha256.New()
	for _, c := range w.grid.Coords() {
		h.Write([]byte(blocktext.Encode(blocktext.Placed{Pos: c, Block: w.grid.Block(c)})))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func sortCoords(cs []grid.Coord) {
	sort.Slice(cs, func(i, j int) bool { return cs[i].Less(cs[j]) })
}

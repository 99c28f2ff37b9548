// Package blocktext implements the one-line-per-block text form shared with chunk
// files and the wire protocol:
//
//	<kind> <x> <y> [fields...]
//
// wood carries no fields, stone and wire carry one magnitude, repeater and inverter carry
// power then facing. Omitted trailing fields take their defaults (0 magnitude, facing 2,
// inverter power 1).
package blocktext

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"wirecraft.ai/internal/sim/block"
	"wirecraft.ai/internal/sim/grid"
)

// ErrMalformed is wrapped by every decode failure.
var ErrMalformed = errors.New("malformed block line")

const defaultFacing = block.South

// Placed is a block at a position.
type Placed struct {
	Pos   grid.Coord
	Block block.Block
}

// Encode renders p without a trailing newline.
func Encode(p Placed) string {
	name, fields := FormatKind(p.Block)
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.Pos.X))
	sb.WriteByte(' ')
	sb.WriteString(strconv.Itoa(p.Pos.Y))
	for _, f := range fields {
		sb.WriteByte(' ')
		sb.WriteString(f)
	}
	return sb.String()
}

// FormatKind returns the kind name and its data fields.
func FormatKind(b block.Block) (string, []string) {
	switch v := b.(type) {
	case block.Wood:
		return block.NameWood, nil
	case block.Stone:
		return block.NameStone, []string{strconv.Itoa(v.Material)}
	case block.Wire:
		return block.NameWire, []string{strconv.Itoa(v.Power)}
	case block.Repeater:
		return block.NameRepeater, []string{strconv.Itoa(v.Power), strconv.Itoa(int(v.Facing))}
	case block.Inverter:
		return block.NameInverter, []string{strconv.Itoa(v.Power), strconv.Itoa(int(v.Facing))}
	}
	return "", nil
}

// Decode parses a single line.
func Decode(line string) (Placed, error) {
	parts := strings.Fields(line)
	if len(parts) < 3 {
		return Placed{}, errors.Wrapf(ErrMalformed, "in %q: need kind, x and y", line)
	}
	x, err := strconv.Atoi(parts[1])
	if err != nil {
		return Placed{}, errors.Wrapf(ErrMalformed, "in %q: bad x %q", line, parts[1])
	}
	y, err := strconv.Atoi(parts[2])
	if err != nil {
		return Placed{}, errors.Wrapf(ErrMalformed, "in %q: bad y %q", line, parts[2])
	}
	b, err := ParseKind(parts[0], parts[3:])
	if err != nil {
		return Placed{}, errors.Wrapf(err, "in %q", line)
	}
	return Placed{Pos: grid.Coord{X: x, Y: y}, Block: b}, nil
}

// ParseKind builds a block from its kind name and data fields.
func ParseKind(name string, fields []string) (block.Block, error) {
	ints := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "%s field %d: %q is not an integer", name, i, f)
		}
		ints[i] = v
	}
	return KindFromInts(name, ints)
}

// KindFromInts is ParseKind for already-decoded fields.
func KindFromInts(name string, fields []int) (block.Block, error) {
	at := func(i, def int) int {
		if i < len(fields) {
			return fields[i]
		}
		return def
	}

	var (
		b         block.Block
		maxFields int
	)
	switch name {
	case block.NameWood:
		b, maxFields = block.Wood{}, 0
	case block.NameStone:
		b, maxFields = block.Stone{Material: at(0, 0)}, 1
	case block.NameWire:
		b, maxFields = block.Wire{Power: at(0, 0)}, 1
	case block.NameRepeater:
		b, maxFields = block.Repeater{Power: at(0, 0), Facing: block.Dir(at(1, int(defaultFacing)))}, 2
	case block.NameInverter:
		b, maxFields = block.Inverter{Power: at(0, 1), Facing: block.Dir(at(1, int(defaultFacing)))}, 2
	default:
		return nil, errors.Wrapf(ErrMalformed, "unknown kind %q", name)
	}
	if len(fields) > maxFields {
		return nil, errors.Wrapf(ErrMalformed, "%s takes at most %d fields, got %d", name, maxFields, len(fields))
	}
	if !block.Valid(b) {
		return nil, errors.Wrapf(ErrMalformed, "%s fields out of range: %v", name, fields)
	}
	return b, nil
}

package block

// MaxPower is the strength a strong source (and a powered gate) feeds into an adjacent wire.
const MaxPower = 128

// Block is the closed set of block kinds that can occupy a grid cell.
// Implementations are small comparable value types; compare with ==.
type Block interface {
	isBlock()
}

// Wood is an inert opaque solid.
type Wood struct{}

// Stone is a conductive solid. It always feeds MaxPower into adjacent wires and gates.
type Stone struct {
	Material int
}

// Wire carries a decaying power level (0..MaxPower).
type Wire struct {
	Power int
}

// Repeater forwards the binary state of the cell behind it.
type Repeater struct {
	Power  int
	Facing Dir
}

// Inverter outputs the complement of the cell behind it. Unpowered input means powered output.
type Inverter struct {
	Power  int
	Facing Dir
}

func (Wood) isBlock()     {}
func (Stone) isBlock()    {}
func (Wire) isBlock()     {}
func (Repeater) isBlock() {}
func (Inverter) isBlock() {}

const (
	NameWood     = "wood"
	NameStone    = "stone"
	NameWire     = "wire"
	NameRepeater = "repeater"
	NameInverter = "inverter"
)

func Name(b Block) string {
	switch b.(type) {
	case Wood:
		return NameWood
	case Stone:
		return NameStone
	case Wire:
		return NameWire
	case Repeater:
		return NameRepeater
	case Inverter:
		return NameInverter
	default:
		return ""
	}
}

// IsSource reports whether b feeds power unconditionally.
func IsSource(b Block) bool {
	_, ok := b.(Stone)
	return ok
}

func IsWire(b Block) bool {
	_, ok := b.(Wire)
	return ok
}

// IsGate reports whether b is a directional one-input gate.
func IsGate(b Block) bool {
	switch b.(type) {
	case Repeater, Inverter:
		return true
	}
	return false
}

// GateState returns the output power and facing of a gate.
func GateState(b Block) (power int, facing Dir, ok bool) {
	switch v := b.(type) {
	case Repeater:
		return v.Power, v.Facing, true
	case Inverter:
		return v.Power, v.Facing, true
	}
	return 0, 0, false
}

// Power returns the dynamic power carried by b (0 for solids).
func Power(b Block) int {
	switch v := b.(type) {
	case Wire:
		return v.Power
	case Repeater:
		return v.Power
	case Inverter:
		return v.Power
	}
	return 0
}

// Valid checks the per-kind well-formedness rules: non-negative power, wires within
// [0, MaxPower], gate power in {0,1} and a facing in [0,3].
func Valid(b Block) bool {
	switch v := b.(type) {
	case Wood, Stone:
		return true
	case Wire:
		return v.Power >= 0 && v.Power <= MaxPower
	case Repeater:
		return (v.Power == 0 || v.Power == 1) && v.Facing.Valid()
	case Inverter:
		return (v.Power == 0 || v.Power == 1) && v.Facing.Valid()
	}
	return false
}

// Pristine strips runtime state from b: the form a block takes when it is picked up
// and placed again. Facing is kept.
func Pristine(b Block) Block {
	switch v := b.(type) {
	case Stone:
		return Stone{}
	case Wire:
		return Wire{}
	case Repeater:
		return Repeater{Power: 0, Facing: v.Facing}
	case Inverter:
		return Inverter{Power: 1, Facing: v.Facing}
	}
	return b
}

// WithFacing returns b turned to face d. Non-gates are returned unchanged.
func WithFacing(b Block, d Dir) Block {
	switch v := b.(type) {
	case Repeater:
		v.Facing = d
		return v
	case Inverter:
		v.Facing = d
		return v
	}
	return b
}

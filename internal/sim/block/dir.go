package block

// Dir is an axis-aligned direction in 90° steps.
type Dir int

const (
	North Dir = iota // +Y
	East             // +X
	South            // -Y
	West             // -X
)

// Dirs lists the four directions in encoding order.
var Dirs = [4]Dir{North, East, South, West}

func (d Dir) Valid() bool { return d >= 0 && d <= 3 }

func (d Dir) Opposite() Dir { return (d + 2) % 4 }

// Delta is the unit grid offset of d.
func (d Dir) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, 1
	case East:
		return 1, 0
	case South:
		return 0, -1
	case West:
		return -1, 0
	}
	return 0, 0
}

func (d Dir) String() string {
	switch d {
	case North:
		return "+Y"
	case East:
		return "+X"
	case South:
		return "-Y"
	case West:
		return "-X"
	}
	return "?"
}

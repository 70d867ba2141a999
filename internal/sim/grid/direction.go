package grid

// Direction is one of the 8 compass directions.
// Values are ordered clockwise starting at North, so d.Opposite() is d+4 mod 8.
type Direction uint8

const (
	North Direction = iota
	Northeast
	East
	Southeast
	South
	Southwest
	West
	Northwest
)

// NumDirections is the number of compass directions.
const NumDirections = 8

// Directions lists every direction in clockwise order.
var Directions = [NumDirections]Direction{North, Northeast, East, Southeast, South, Southwest, West, Northwest}

var deltas = [NumDirections][2]int{
	North:     {0, -1},
	Northeast: {1, -1},
	East:      {1, 0},
	Southeast: {1, 1},
	South:     {0, 1},
	Southwest: {-1, 1},
	West:      {-1, 0},
	Northwest: {-1, -1},
}

// Delta returns the unit offset of d. y grows southward.
func (d Direction) Delta() (dx, dy int) {
	v := deltas[d%NumDirections]
	return v[0], v[1]
}

// Opposite reverses a direction, e.g. East.Opposite() == West.
func (d Direction) Opposite() Direction {
	return (d + 4) % NumDirections
}

func (d Direction) String() string {
	switch d {
	case North:
		return "North"
	case Northeast:
		return "Northeast"
	case East:
		return "East"
	case Southeast:
		return "Southeast"
	case South:
		return "South"
	case Southwest:
		return "Southwest"
	case West:
		return "West"
	case Northwest:
		return "Northwest"
	default:
		return "Invalid direction"
	}
}

// Sampler produces uniform values in [0,1).
type Sampler interface {
	Next() float64
}

// RandomDirection picks a direction uniformly using a single draw from s.
func RandomDirection(s Sampler) Direction {
	i := int(s.Next() * NumDirections)
	if i < 0 {
		i = 0
	}
	if i >= NumDirections {
		// Only reachable if a sampler misbehaves and returns 1.0.
		i = NumDirections - 1
	}
	return Direction(i)
}

package strategy

// Signal expresses the desired exposure for one bar. Generators emit the
// state the strategy wants to hold while its condition is true, not a
// one-shot event, so the simulator's transition table reads directly off
// the signal sequence.
type Signal int

const (
	// Short requests a short position for the bar.
	Short Signal = -1
	// Flat requests no position for the bar.
	Flat Signal = 0
	// Long requests a long position for the bar.
	Long Signal = 1
)

// String returns the lowercase name of the signal.
func (s Signal) String() string {
	switch s {
	case Long:
		return "long"
	case Short:
		return "short"
	default:
		return "flat"
	}
}

// Opposite returns the inverse directional signal. Flat has no opposite.
func (s Signal) Opposite() Signal {
	switch s {
	case Long:
		return Short
	case Short:
		return Long
	default:
		return Flat
	}
}

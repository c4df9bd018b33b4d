package physics

// Pair is a candidate body pair proposed by a broadphase
type Pair struct {
	A, B *Body
}

// Broadphase proposes candidate pairs for the narrowphase. Build is called
// once per tick with the current bodies, QueryPairs afterwards.
type Broadphase interface {
	Build(bodies []*Body)
	QueryPairs() []Pair
}

// BroadphaseMode selects the Broadphase implementation used by a World
type BroadphaseMode int

const (
	BroadphaseNaive BroadphaseMode = iota
	BroadphaseGrid
)

func (m BroadphaseMode) String() string {
	switch m {
	case BroadphaseGrid:
		return "grid"
	default:
		return "naive"
	}
}

// NaiveBroadphase returns every unordered pair in insertion order
type NaiveBroadphase struct {
	bodies []*Body
	pairs  []Pair
}

// NewNaiveBroadphase creates an all-pairs broadphase
func NewNaiveBroadphase() *NaiveBroadphase {
	return &NaiveBroadphase{}
}

// Build records the bodies for the next query
func (n *NaiveBroadphase) Build(bodies []*Body) {
	n.bodies = bodies
}

// QueryPairs returns n*(n-1)/2 pairs
func (n *NaiveBroadphase) QueryPairs() []Pair {
	n.pairs = n.pairs[:0]
	for i := 0; i < len(n.bodies); i++ {
		for j := i + 1; j < len(n.bodies); j++ {
			n.pairs = append(n.pairs, Pair{n.bodies[i], n.bodies[j]})
		}
	}
	return n.pairs
}

package physics

import "sort"

// Tuning limits shared by the narrowphase, containment and solver
const (
	MaxContactDepth = 50.0 // contact depth clamp
	MaxStep         = 20.0 // per-iteration normal correction clamp
	PenetrationTol  = 0.05 // target post-solve penetration
)

// Contact is a single overlap to be resolved by the solver. NX,NY is a unit
// normal: the solver moves A against it and B along it.
type Contact struct {
	A, B   *Body
	NX, NY float64
	Depth  float64

	applied float64 // separation already resolved this tick
}

// Boundary reports whether the contact is against the environment
func (c *Contact) Boundary() bool { return c.B == Env }

// sortContacts orders contacts by A.ID then B.ID, keeping generation order
// for equal keys.
func sortContacts(cs []Contact) {
	sort.SliceStable(cs, func(i, j int) bool {
		if cs[i].A.ID != cs[j].A.ID {
			return cs[i].A.ID < cs[j].A.ID
		}
		return cs[i].B.ID < cs[j].B.ID
	})
}

// maxDepth returns the largest depth in cs, or 0 for an empty list
func maxDepth(cs []Contact) float64 {
	m := 0.0
	for i := range cs {
		if cs[i].Depth > m {
			m = cs[i].Depth
		}
	}
	return m
}

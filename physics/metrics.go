package physics

// Metrics is a snapshot of the last tick plus cumulative counters
type Metrics struct {
	BroadphaseMs  float64
	NarrowphaseMs float64
	SolverMs      float64

	PreMaxPenetration  float64
	PostMaxPenetration float64
	ContactCount       int
	BroadphasePairs    int

	SleepingCount   int
	WakesThisFrame  int
	WakeEventsTotal int

	ContainmentRepositions int
	OutOfBoundsCount       int

	MouseSpringDisplacement float64

	// Determinism metrics, populated only while enabled
	TotalIterations   int
	FinalContactCount int
}

// determinism holds the opt-in hash segments
type determinism struct {
	metrics     bool
	diagnostics bool

	totalIterations   int
	finalContactCount int

	diagPairs   int
	diagDisp    float64
	diagHasDisp bool
	diagMassKey string
}

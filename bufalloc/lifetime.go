package bufalloc

// Lifetime declares how long an allocation lives and how often it is rewritten
type Lifetime int32

const (
	// Immutable data is written exactly once and lives until it is freed
	Immutable Lifetime = iota
	// Mutable data may be rewritten every frame. It keeps one copy per frame in flight so
	// that the GPU never reads a copy the CPU is writing.
	Mutable
	// SingleFrame data lives until the end of the frame it was allocated in
	SingleFrame
)

var lifetimeMapping = map[Lifetime]string{
	Immutable:   "Immutable",
	Mutable:     "Mutable",
	SingleFrame: "SingleFrame",
}

func (l Lifetime) String() string {
	return lifetimeMapping[l]
}

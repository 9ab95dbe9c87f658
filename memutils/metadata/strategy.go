package metadata

// AllocationStrategy chooses where CreateAllocationRequest places a new suballocation
type AllocationStrategy uint32

const (
	// AllocationStrategyMinMemory takes the free region from the smallest bucket that fits
	AllocationStrategyMinMemory AllocationStrategy = 1 << iota
	// AllocationStrategyMinTime carves from the unused end of the block when it fits
	AllocationStrategyMinTime
	// AllocationStrategyMinOffset takes the lowest fitting offset in the block
	AllocationStrategyMinOffset
)

var strategyMapping = map[AllocationStrategy]string{
	AllocationStrategyMinMemory: "MinMemory",
	AllocationStrategyMinTime:   "MinTime",
	AllocationStrategyMinOffset: "MinOffset",
}

func (s AllocationStrategy) String() string {
	str, ok := strategyMapping[s]
	if !ok {
		return "Unknown"
	}
	return str
}

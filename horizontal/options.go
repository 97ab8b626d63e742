package horizontal

import "runtime"

// DefaultConstructorCodeSizeBudget keeps a merged constructor well below the size at
// which the platform verifier rejects a method.
const DefaultConstructorCodeSizeBudget = 2048

type Options struct {
	// Enabled turns the whole pass on; when false Run returns the program unchanged
	Enabled bool
	// MaxGroupSize bounds how many classes merge into one; <= 0 means unbounded
	MaxGroupSize int
	// ConstructorCodeSizeBudget bounds the summed code size of the constructors
	// folded behind one dispatch constructor
	ConstructorCodeSizeBudget int
	// Workers bounds the goroutines used by parallel phases; <= 0 means GOMAXPROCS
	Workers int
}

func DefaultOptions() Options {
	return Options{
		Enabled:                   true,
		MaxGroupSize:              30,
		ConstructorCodeSizeBudget: DefaultConstructorCodeSizeBudget,
	}
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return runtime.GOMAXPROCS(0)
	}
	return o.Workers
}

func (o Options) constructorBudget() int {
	if o.ConstructorCodeSizeBudget <= 0 {
		return DefaultConstructorCodeSizeBudget
	}
	return o.ConstructorCodeSizeBudget
}

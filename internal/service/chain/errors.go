package chain

import "errors"

var (
	// ErrModelFrozen indicates an attempt to train a model after its build phase ended.
	ErrModelFrozen = errors.New("chain: model is read-only")
	// ErrModelNotFrozen indicates generation was requested before the build phase ended.
	ErrModelNotFrozen = errors.New("chain: model is still being built")
	// ErrModelClosed indicates use of a model after Close.
	ErrModelClosed = errors.New("chain: model is closed")
	// ErrModelConsistency indicates generation reached a context that training never recorded.
	// Build and generation advance the window identically, so this is an internal fault.
	ErrModelConsistency = errors.New("chain: context missing from trained model")
	// ErrUnknownContext indicates a caller-supplied starting context the model never observed.
	ErrUnknownContext = errors.New("chain: context not in model")
	// ErrInvalidMaxSteps indicates a negative generation step budget.
	ErrInvalidMaxSteps = errors.New("chain: max steps must be non-negative")
)

package timber

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is. Each typed error below matches exactly one.
var (
	ErrCapacity             = errors.New("tree capacity exceeded")
	ErrStructuralMismatch   = errors.New("stored leaf does not match expected value")
	ErrRootMismatch         = errors.New("root mismatch")
	ErrTransientPersistence = errors.New("persistence failure")
	ErrConfiguration        = errors.New("invalid tree configuration")
)

// CapacityError rejects a batch that would take the tree past 2^H leaves.
// It is returned before any hashing, so nothing was written.
type CapacityError struct {
	LeafCount uint64
	Requested uint64
	Capacity  uint64
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("append %d leaves at leaf count %d: capacity is %d", e.Requested, e.LeafCount, e.Capacity)
}

func (e *CapacityError) Is(target error) bool { return target == ErrCapacity }

// StructuralMismatchError means the leaf stored at LeafIndex is not the one
// the caller expected. Stored is nil when the leaf was never written.
type StructuralMismatchError struct {
	LeafIndex uint64
	Expected  Digest
	Stored    Digest
}

func (e *StructuralMismatchError) Error() string {
	if e.Stored == nil {
		return fmt.Sprintf("leaf %d: not stored, expected %x", e.LeafIndex, []byte(e.Expected))
	}
	return fmt.Sprintf("leaf %d: stored %x, expected %x", e.LeafIndex, []byte(e.Stored), []byte(e.Expected))
}

func (e *StructuralMismatchError) Is(target error) bool { return target == ErrStructuralMismatch }

// RootMismatchError means a recomputed root disagrees with the recorded
// root, or the root is unknown to the chain registry. Either is treated as a
// protocol fault, typically a reorg, and is not retried.
type RootMismatchError struct {
	Expected Digest
	Computed Digest
	Reason   string
}

func (e *RootMismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("root %x: %s", []byte(e.Computed), e.Reason)
	}
	return fmt.Sprintf("computed root %x, recorded %x", []byte(e.Computed), []byte(e.Expected))
}

func (e *RootMismatchError) Is(target error) bool { return target == ErrRootMismatch }

// TransientPersistenceError wraps a storage failure. The operation may be
// retried; no state derived from the failed call may be treated as durable.
type TransientPersistenceError struct {
	Op  string
	Err error
}

func (e *TransientPersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransientPersistenceError) Unwrap() error { return e.Err }

func (e *TransientPersistenceError) Is(target error) bool { return target == ErrTransientPersistence }

// ConfigurationError reports a tree that cannot be built or resumed as
// configured.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErr(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

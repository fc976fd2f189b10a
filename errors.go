package strata

import (
	"errors"
	"fmt"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("strata: record not found")

	// ErrReadOnly is returned when a mutating operation is attempted
	// on a read-only session or a view entity.
	ErrReadOnly = errors.New("strata: session is read-only")

	// ErrDetached is returned when a record is used with a session
	// it is not attached to.
	ErrDetached = errors.New("strata: record is not attached to this session")
)

// NotFoundError represents an error when a record is not found.
type NotFoundError struct {
	Entity string
	Key    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.Key != nil {
		return fmt.Sprintf("strata: %s not found (key=%v)", e.Entity, e.Key)
	}
	return fmt.Sprintf("strata: %s not found", e.Entity)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// SchemaError aggregates all errors found while building and resolving
// a schema model. The build pass never stops at the first problem; a
// developer sees every model defect in one pass.
type SchemaError struct {
	Errors []error
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("strata: schema build failed: %v", e.Errors[0])
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "strata: schema build failed with %d errors:", len(e.Errors))
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the aggregated errors.
func (e *SchemaError) Unwrap() []error { return e.Errors }

// NewSchemaError returns a SchemaError wrapping the given errors,
// or nil if there are none.
func NewSchemaError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	return &SchemaError{Errors: filtered}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaError
	return errors.As(err, &e)
}

// FaultKind enumerates the validation fault categories.
type FaultKind int

const (
	// ValueMissing reports a non-nullable member with a null or empty value.
	ValueMissing FaultKind = iota + 1
	// ValueTooLong reports a string value exceeding the declared column size.
	ValueTooLong
)

// String returns the fault kind name.
func (k FaultKind) String() string {
	switch k {
	case ValueMissing:
		return "value missing"
	case ValueTooLong:
		return "value too long"
	default:
		return fmt.Sprintf("fault(%d)", int(k))
	}
}

// Fault is a single validation failure on one member of one record.
type Fault struct {
	Kind   FaultKind
	Entity string
	Member string
	Key    any // primary key of the faulty record, if resolvable
}

// Error returns the error string.
func (f *Fault) Error() string {
	return fmt.Sprintf("strata: %s: %s.%s", f.Kind, f.Entity, f.Member)
}

// ValidationError carries every fault found across all changed records
// of one SaveChanges call. Faults are collected, not short-circuited,
// so a single round-trip reports every problem.
type ValidationError struct {
	Faults []*Fault
}

// Error returns the error string.
func (e *ValidationError) Error() string {
	if len(e.Faults) == 1 {
		return e.Faults[0].Error()
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "strata: validation failed with %d faults:", len(e.Faults))
	for i, f := range e.Faults {
		fmt.Fprintf(&sb, "\n  [%d] %s: %s.%s", i+1, f.Kind, f.Entity, f.Member)
	}
	return sb.String()
}

// IsValidationError returns true if the error is a ValidationError.
func IsValidationError(err error) bool {
	if err == nil {
		return false
	}
	var e *ValidationError
	return errors.As(err, &e)
}

// UniqueConstraintError reports a unique-index violation, with the
// offending index and column names parsed out of the vendor message
// where the backend provides them.
type UniqueConstraintError struct {
	Index   string
	Columns []string
	wrap    error
}

// Error returns the error string.
func (e *UniqueConstraintError) Error() string {
	if e.Index != "" {
		return fmt.Sprintf("strata: unique constraint %q violated: %v", e.Index, e.wrap)
	}
	return fmt.Sprintf("strata: unique constraint violated: %v", e.wrap)
}

// Unwrap returns the underlying backend error.
func (e *UniqueConstraintError) Unwrap() error { return e.wrap }

// NewUniqueConstraintError returns a new UniqueConstraintError.
func NewUniqueConstraintError(index string, columns []string, wrap error) *UniqueConstraintError {
	return &UniqueConstraintError{Index: index, Columns: columns, wrap: wrap}
}

// IsUniqueConstraintError returns true if the error is a UniqueConstraintError.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *UniqueConstraintError
	return errors.As(err, &e)
}

// DeadlockError reports that the backend chose this transaction as a
// deadlock victim. Callers typically retry the whole unit of work.
type DeadlockError struct {
	wrap error
}

// Error returns the error string.
func (e *DeadlockError) Error() string {
	return fmt.Sprintf("strata: deadlock: %v", e.wrap)
}

// Unwrap returns the underlying backend error.
func (e *DeadlockError) Unwrap() error { return e.wrap }

// NewDeadlockError returns a new DeadlockError.
func NewDeadlockError(wrap error) *DeadlockError {
	return &DeadlockError{wrap: wrap}
}

// IsDeadlockError returns true if the error is a DeadlockError.
func IsDeadlockError(err error) bool {
	if err == nil {
		return false
	}
	var e *DeadlockError
	return errors.As(err, &e)
}

// IntegrityError reports a foreign-key constraint violation, usually
// an attempt to delete a row that is still referenced.
type IntegrityError struct {
	Constraint string
	wrap       error
}

// Error returns the error string.
func (e *IntegrityError) Error() string {
	if e.Constraint != "" {
		return fmt.Sprintf("strata: integrity constraint %q violated: %v", e.Constraint, e.wrap)
	}
	return fmt.Sprintf("strata: integrity constraint violated: %v", e.wrap)
}

// Unwrap returns the underlying backend error.
func (e *IntegrityError) Unwrap() error { return e.wrap }

// NewIntegrityError returns a new IntegrityError.
func NewIntegrityError(constraint string, wrap error) *IntegrityError {
	return &IntegrityError{Constraint: constraint, wrap: wrap}
}

// IsIntegrityError returns true if the error is an IntegrityError.
func IsIntegrityError(err error) bool {
	if err == nil {
		return false
	}
	var e *IntegrityError
	return errors.As(err, &e)
}

// ConcurrentUpdateError reports an optimistic-concurrency loss: an
// UPDATE or DELETE on a row-versioned entity affected zero rows
// because another session changed or removed the row first.
type ConcurrentUpdateError struct {
	Op    string
	Table string
	Key   string
}

// Error returns the error string.
func (e *ConcurrentUpdateError) Error() string {
	return fmt.Sprintf("strata: concurrent update: %s on %s (key=%s) affected no rows", e.Op, e.Table, e.Key)
}

// IsConcurrentUpdateError returns true if the error is a ConcurrentUpdateError.
func IsConcurrentUpdateError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConcurrentUpdateError
	return errors.As(err, &e)
}

// concurrencyTag marks errors raised by the zero-affected-rows check on
// row-versioned mutations. The full format is tag/operation/table/key.
const concurrencyTag = "strata-occ"

// FormatConcurrencyTag builds the tagged message the command executor
// emits when a row-versioned mutation affects zero rows.
func FormatConcurrencyTag(op, table, key string) string {
	return strings.Join([]string{concurrencyTag, op, table, key}, "/")
}

// ParseConcurrencyTag recognizes a tagged concurrency message and
// returns the structured conflict. The reported ok is false when the
// message does not carry the tag.
func ParseConcurrencyTag(msg string) (*ConcurrentUpdateError, bool) {
	i := strings.Index(msg, concurrencyTag+"/")
	if i < 0 {
		return nil, false
	}
	parts := strings.SplitN(msg[i:], "/", 4)
	if len(parts) != 4 {
		return nil, false
	}
	return &ConcurrentUpdateError{Op: parts[1], Table: parts[2], Key: parts[3]}, true
}

// IsConflict reports whether the error belongs to the persistence
// conflict taxonomy (unique violation, deadlock, integrity violation,
// or concurrent update). Infrastructure failures return false.
func IsConflict(err error) bool {
	return IsUniqueConstraintError(err) ||
		IsDeadlockError(err) ||
		IsIntegrityError(err) ||
		IsConcurrentUpdateError(err)
}

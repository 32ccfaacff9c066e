package bfi

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dd0wney/cluso-bfi/pkg/alloc"
	"github.com/dd0wney/cluso-bfi/pkg/pagestore"
)

// Kind classifies every error returned by an Index
type Kind int

const (
	KindUnknown Kind = iota
	// InputValidation: bad arguments, detected before any mutation
	InputValidation
	// FormatError: the file is not an index this package can read
	FormatError
	// AccessError: permission or I/O failure from the file system
	AccessError
	// StateError: operation not valid for the handle's state
	StateError
	// ConsistencyFault: an internal invariant does not hold
	ConsistencyFault
)

func (k Kind) String() string {
	switch k {
	case InputValidation:
		return "input validation"
	case FormatError:
		return "format"
	case AccessError:
		return "access"
	case StateError:
		return "state"
	case ConsistencyFault:
		return "consistency"
	default:
		return "unknown"
	}
}

// Sentinel errors
var (
	ErrNoValues        = errors.New("need at least one value to index")
	ErrNoLookupValues  = errors.New("need at least one value to look up")
	ErrPayloadTooLarge = errors.New("values do not fit in a slot")
	ErrDuplicateKey    = errors.New("key already indexed")
	ErrKeyNotFound     = errors.New("key not found")
	ErrNoRecord        = errors.New("no record at slot")
	ErrWrongAddressing = errors.New("operation not supported by this file version")
	ErrInvalidOptions  = errors.New("invalid index options")
	ErrClosed          = errors.New("index is closed")
	ErrAlreadyOpen     = errors.New("index is already open")
	ErrCorruptSlot     = errors.New("slot contents do not match its signature")
	ErrCorruptFreeList = errors.New("free list is corrupt")

	// Re-exported from the page store and allocator
	ErrNotBloomIndex       = pagestore.ErrNotBloomIndex
	ErrIncompatibleVersion = pagestore.ErrIncompatibleVersion
	ErrIncompatibleFormat  = pagestore.ErrIncompatibleFormat
	ErrReadOnly            = pagestore.ErrReadOnly
	ErrSlotOutOfRange      = pagestore.ErrSlotRange
	ErrAlreadyFree         = alloc.ErrAlreadyFree
)

// Error carries the failing operation, its classification, and the record
// it was working on.
type Error struct {
	Op    string // Index method, e.g. "append", "open"
	Kind  Kind
	Slot  uint64
	Key   uint64
	Path  string
	Cause error

	hasSlot bool
	hasKey  bool
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.hasKey {
		fmt.Fprintf(&b, " key %d", e.Key)
	}
	if e.hasSlot {
		fmt.Fprintf(&b, " slot %d", e.Slot)
	}
	fmt.Fprintf(&b, ": %v", e.Cause)
	return b.String()
}

// Unwrap returns the underlying cause for error chain support
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error's cause
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// ErrorBuilder provides a fluent interface for building Errors
type ErrorBuilder struct {
	err Error
}

// NewError starts an error for operation op
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: Error{Op: op}}
}

func (b *ErrorBuilder) Kind(k Kind) *ErrorBuilder {
	b.err.Kind = k
	return b
}

func (b *ErrorBuilder) Slot(n uint64) *ErrorBuilder {
	b.err.Slot = n
	b.err.hasSlot = true
	return b
}

func (b *ErrorBuilder) Key(k uint64) *ErrorBuilder {
	b.err.Key = k
	b.err.hasKey = true
	return b
}

func (b *ErrorBuilder) Path(p string) *ErrorBuilder {
	b.err.Path = p
	return b
}

// Cause sets the underlying error. When no Kind was set explicitly the kind
// is derived from the cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Err returns the built error
func (b *ErrorBuilder) Err() error {
	if b.err.Kind == KindUnknown {
		b.err.Kind = classify(b.err.Cause)
	}
	return &b.err
}

// classify maps causes from the lower layers onto error kinds
func classify(err error) Kind {
	var e *Error
	switch {
	case err == nil:
		return KindUnknown
	case errors.As(err, &e):
		return e.Kind
	case errors.Is(err, ErrNoValues), errors.Is(err, ErrNoLookupValues),
		errors.Is(err, ErrPayloadTooLarge), errors.Is(err, ErrDuplicateKey),
		errors.Is(err, ErrKeyNotFound), errors.Is(err, ErrNoRecord),
		errors.Is(err, ErrInvalidOptions):
		return InputValidation
	case errors.Is(err, pagestore.ErrNotBloomIndex), errors.Is(err, pagestore.ErrIncompatibleVersion),
		errors.Is(err, pagestore.ErrIncompatibleFormat), errors.Is(err, pagestore.ErrChecksum):
		return FormatError
	case errors.Is(err, ErrClosed), errors.Is(err, ErrAlreadyOpen),
		errors.Is(err, ErrWrongAddressing), errors.Is(err, pagestore.ErrReadOnly),
		errors.Is(err, pagestore.ErrStoreClosed), errors.Is(err, alloc.ErrAlreadyFree):
		return StateError
	case errors.Is(err, pagestore.ErrHeaderCounts), errors.Is(err, pagestore.ErrTruncated),
		errors.Is(err, pagestore.ErrSlotRange), errors.Is(err, pagestore.ErrSlotSize),
		errors.Is(err, alloc.ErrInconsistent), errors.Is(err, alloc.ErrOutOfRange),
		errors.Is(err, ErrCorruptSlot), errors.Is(err, ErrCorruptFreeList):
		return ConsistencyFault
	}

	// Everything else (fs.PathError, ENOSPC, EIO) came from the file system
	return AccessError
}

// KindOf returns the kind of err, or KindUnknown if err is not from an Index
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func IsInputValidation(err error) bool { return KindOf(err) == InputValidation }
func IsFormat(err error) bool          { return KindOf(err) == FormatError }
func IsAccess(err error) bool          { return KindOf(err) == AccessError }
func IsState(err error) bool           { return KindOf(err) == StateError }
func IsConsistency(err error) bool     { return KindOf(err) == ConsistencyFault }

// IsClosed reports whether err came from using a closed index
func IsClosed(err error) bool {
	return errors.Is(err, ErrClosed)
}

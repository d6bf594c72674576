package magicring

import "fmt"

// Kind classifies the failure modes enumerated in spec.md §7.
type Kind int

const (
	// KindUnexpected covers any platform syscall error not otherwise
	// mapped (spec.md §7 "PlatformUnexpected").
	KindUnexpected Kind = iota
	// KindAlreadyExists is raised by Create when the backing object is
	// already present.
	KindAlreadyExists
	// KindDoesNotExist is raised by Open when the backing object is
	// absent.
	KindDoesNotExist
	// KindAccessDenied is raised on a platform permission refusal.
	KindAccessDenied
	// KindNameTooLong is raised when a name exceeds the platform's
	// naming limits (e.g. POSIX NAME_MAX).
	KindNameTooLong
	// KindFdQuotaExceeded is raised when the process or system
	// descriptor/handle table is exhausted.
	KindFdQuotaExceeded
	// KindMapsNotAdjacent is raised when the platform mapper's mirror
	// view does not land at the expected address; it is fatal to the
	// handle, not merely the operation.
	KindMapsNotAdjacent
	// KindAllocationGranularity is raised on Windows when a requested
	// size is not a multiple of the system allocation granularity.
	KindAllocationGranularity
	// KindIndexOutOfRange is raised by Ring operations on an
	// out-of-bounds logical index.
	KindIndexOutOfRange
	// KindWindowCrossesTail is raised by Ring.Slice (and SliceField) when
	// the requested window starts behind the tail, and by Insert and
	// InsertValues when the target position is behind the tail.
	KindWindowCrossesTail
)

func (k Kind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already exists"
	case KindDoesNotExist:
		return "does not exist"
	case KindAccessDenied:
		return "access denied"
	case KindNameTooLong:
		return "name too long"
	case KindFdQuotaExceeded:
		return "descriptor quota exceeded"
	case KindMapsNotAdjacent:
		return "maps not adjacent"
	case KindAllocationGranularity:
		return "size not a multiple of allocation granularity"
	case KindIndexOutOfRange:
		return "index out of range"
	case KindWindowCrossesTail:
		return "window crosses tail"
	default:
		return "platform error"
	}
}

// Error is the error type returned by the operations in this package.
// Close is the exception: a failure to unmap or to close the underlying
// descriptor or handle is returned as the platform's own error. Op names the failing operation ("create", "open", "close", "push",
// "slice", ...), Name is the ring or backing-object name involved (if
// any), and Err, when non-nil, is the wrapped platform error.
type Error struct {
	Op   string
	Name string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Name == "" {
		if e.Err != nil {
			return fmt.Sprintf("magicring: %s: %s: %v", e.Op, e.Kind, e.Err)
		}
		return fmt.Sprintf("magicring: %s: %s", e.Op, e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("magicring: %s %q: %s: %v", e.Op, e.Name, e.Kind, e.Err)
	}
	return fmt.Sprintf("magicring: %s %q: %s", e.Op, e.Name, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Kind, so
// callers can do errors.Is(err, &magicring.Error{Kind: magicring.KindDoesNotExist}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(op, name string, kind Kind, err error) *Error {
	return &Error{Op: op, Name: name, Kind: kind, Err: err}
}

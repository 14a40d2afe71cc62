package scan

import (
	"errors"
	"fmt"

	"github.com/praetorian-inc/scanrt/pkg/backend"
	"github.com/praetorian-inc/scanrt/pkg/types"
)

// Kind classifies runtime errors.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidArgument
	KindAllocationFailure
	KindVersionOrPlatformMismatch
	KindModeMismatch
	KindScratchInUse
	KindUnsupportedArchitecture
	KindInvalidState
	KindCompile
)

// Sentinels for errors.Is. Every *Error unwraps to the sentinel of its Kind.
var (
	ErrUnknown                   = errors.New("unknown backend error")
	ErrInvalidArgument           = errors.New("invalid argument")
	ErrAllocationFailure         = errors.New("allocation failure")
	ErrVersionOrPlatformMismatch = errors.New("database version or platform mismatch")
	ErrModeMismatch              = errors.New("database mode mismatch")
	ErrScratchInUse              = errors.New("scratch in use")
	ErrUnsupportedArchitecture   = errors.New("unsupported architecture")
	ErrInvalidState              = errors.New("invalid state")
	ErrCompile                   = errors.New("compile error")
)

var kindErrors = map[Kind]error{
	KindUnknown:                   ErrUnknown,
	KindInvalidArgument:           ErrInvalidArgument,
	KindAllocationFailure:         ErrAllocationFailure,
	KindVersionOrPlatformMismatch: ErrVersionOrPlatformMismatch,
	KindModeMismatch:              ErrModeMismatch,
	KindScratchInUse:              ErrScratchInUse,
	KindUnsupportedArchitecture:   ErrUnsupportedArchitecture,
	KindInvalidState:              ErrInvalidState,
	KindCompile:                   ErrCompile,
}

func (k Kind) String() string {
	if err, ok := kindErrors[k]; ok {
		return err.Error()
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// statusKinds is the fixed translation of backend status codes.
// StatusScanTerminated is absent: it becomes the Terminated outcome.
var statusKinds = map[backend.Status]Kind{
	backend.StatusInvalid:       KindInvalidArgument,
	backend.StatusBadAlign:      KindInvalidArgument,
	backend.StatusNoMem:         KindAllocationFailure,
	backend.StatusBadAlloc:      KindAllocationFailure,
	backend.StatusDBVersion:     KindVersionOrPlatformMismatch,
	backend.StatusDBPlatform:    KindVersionOrPlatformMismatch,
	backend.StatusDBMode:        KindModeMismatch,
	backend.StatusScratchInUse:  KindScratchInUse,
	backend.StatusArchError:     KindUnsupportedArchitecture,
	backend.StatusCompilerError: KindCompile,
}

// KindOf returns the runtime kind for a backend status.
func KindOf(st backend.Status) Kind {
	if k, ok := statusKinds[st]; ok {
		return k
	}
	return KindUnknown
}

// Error is returned by every runtime operation.
type Error struct {
	Op   string // operation, e.g. "block scan", "alloc scratch"
	Kind Kind
	Code int   // backend status code, 0 when the runtime raised the error
	Err  error // underlying cause, may be nil
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Err != nil && e.Err.Error() != msg {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Code != 0 {
		return fmt.Sprintf("%s: %s (code %d)", e.Op, msg, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Op, msg)
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *Error) Unwrap() []error {
	errs := []error{kindErrors[e.Kind]}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

func newError(op string, kind Kind, format string, args ...any) *Error {
	var cause error
	if format != "" {
		cause = fmt.Errorf(format, args...)
	}
	return &Error{Op: op, Kind: kind, Err: cause}
}

// translate converts a backend result into a runtime error.
func translate(op string, err error) error {
	if err == nil {
		return nil
	}
	var st backend.Status
	if errors.As(err, &st) {
		return &Error{Op: op, Kind: KindOf(st), Code: int(st), Err: st}
	}
	var ce *types.CompileError
	if errors.As(err, &ce) {
		return &Error{Op: op, Kind: KindCompile, Code: int(backend.StatusCompilerError), Err: ce}
	}
	return &Error{Op: op, Kind: KindUnknown, Err: err}
}

// IsKind reports whether err is a runtime error of kind k.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

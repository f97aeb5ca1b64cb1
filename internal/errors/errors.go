package errors

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Code codes.Code

const (
	CodeInvalidArgument    = Code(codes.InvalidArgument)
	CodeNotFound           = Code(codes.NotFound)
	CodePermissionDenied   = Code(codes.PermissionDenied)
	CodeFailedPrecondition = Code(codes.FailedPrecondition)
	CodeUnavailable        = Code(codes.Unavailable)
	CodeInternal           = Code(codes.Internal)
)

var code2http = map[Code]int{
	CodeInvalidArgument:    http.StatusBadRequest,
	CodeNotFound:           http.StatusNotFound,
	CodePermissionDenied:   http.StatusForbidden,
	CodeFailedPrecondition: http.StatusConflict,
	CodeUnavailable:        http.StatusServiceUnavailable,
	CodeInternal:           http.StatusInternalServerError,
}

// Kind groups errors by how the caller should treat them.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindAuthorization Kind = "authorization"
	KindState         Kind = "state"
	KindNotFound      Kind = "not_found"
	KindInternal      Kind = "internal"
)

var code2kind = map[Code]Kind{
	CodeInvalidArgument:    KindValidation,
	CodePermissionDenied:   KindAuthorization,
	CodeFailedPrecondition: KindState,
	CodeNotFound:           KindNotFound,
}

// Reasons reported by room operations. Compare with errors.Is.
var (
	ErrEmptyName        = New(CodeInvalidArgument, WithReason("EmptyName"), WithMessagef("display name is empty"))
	ErrEmptyMessage     = New(CodeInvalidArgument, WithReason("EmptyMessage"), WithMessagef("chat message is empty"))
	ErrMalformed        = New(CodeInvalidArgument, WithReason("Malformed"), WithMessagef("malformed payload"))
	ErrNotHost          = New(CodePermissionDenied, WithReason("NotHost"), WithMessagef("only the host can do this"))
	ErrAlreadyStarted   = New(CodeFailedPrecondition, WithReason("AlreadyStarted"), WithMessagef("quiz already started"))
	ErrNoActiveQuestion = New(CodeFailedPrecondition, WithReason("NoActiveQuestion"), WithMessagef("no question is open"))
	ErrStaleSubmission  = New(CodeFailedPrecondition, WithReason("StaleSubmission"), WithMessagef("answer is for another question"))
	ErrAlreadyAnswered  = New(CodeFailedPrecondition, WithReason("AlreadyAnswered"), WithMessagef("question already answered"))
	ErrOptionOutOfRange = New(CodeFailedPrecondition, WithReason("OptionOutOfRange"), WithMessagef("option does not exist"))
	ErrNotInRoom        = New(CodeNotFound, WithReason("NotInRoom"), WithMessagef("connection has not joined the room"))
	ErrRoomClosed       = New(CodeUnavailable, WithReason("RoomClosed"), WithMessagef("room is closed"))
)

type Error struct {
	Code    Code   `json:"code"`
	Kind    Kind   `json:"kind"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	err     error
}

func New(code Code, opts ...Option) *Error {
	e := &Error{
		Code:    code,
		Kind:    KindInternal,
		Message: codes.Code(code).String(),
	}
	if k, ok := code2kind[code]; ok {
		e.Kind = k
	}

	for _, opt := range opts {
		opt.apply(e)
	}

	return e
}

func (e *Error) Error() string {
	s := fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
	if e.Reason != "" {
		s += fmt.Sprintf(", reason: %s", e.Reason)
	}
	if e.err != nil {
		s += fmt.Sprintf(", err: %s", e.err)
	}

	return s
}

func (e *Error) Unwrap() error {
	return e.err
}

// Is reports whether target carries the same code and reason.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}

	return e.Code == t.Code && e.Reason == t.Reason
}

// With returns a copy of e with the options applied, so sentinels can carry details.
func (e *Error) With(opts ...Option) *Error {
	c := *e
	for _, opt := range opts {
		opt.apply(&c)
	}

	return &c
}

func (e *Error) GRPCStatus() *status.Status {
	return status.New(codes.Code(e.Code), e.Message)
}

func (e *Error) HTTPStatusCode() int {
	if c, ok := code2http[e.Code]; ok {
		return c
	}

	return http.StatusInternalServerError
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

func Convert(err error) *Error {
	var e *Error
	if !errors.As(err, &e) {
		return Internal(err)
	}

	return e
}

func Internal(err error) *Error {
	return New(CodeInternal, WithCause(err))
}

type Option interface {
	apply(*Error)
}

type optionFunc func(*Error)

func (f optionFunc) apply(e *Error) {
	f(e)
}

func WithCause(err error) Option {
	return optionFunc(func(e *Error) {
		e.err = err
	})
}

func WithMessagef(format string, args ...any) Option {
	return optionFunc(func(e *Error) {
		e.Message = fmt.Sprintf(format, args...)
	})
}

func WithReason(reason string) Option {
	return optionFunc(func(e *Error) {
		e.Reason = reason
	})
}

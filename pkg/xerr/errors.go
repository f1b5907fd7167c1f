package xerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure so callers branch on it instead of on messages.
type Kind uint8

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindForbidden
	KindNotFound
	KindConflict
	KindExpired
	KindExternal
	KindIntegrity
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindExpired:
		return "expired"
	case KindExternal:
		return "external_service"
	case KindIntegrity:
		return "integrity"
	default:
		return "internal"
	}
}

// Business codes returned in the response envelope.
const (
	OK                 = 200
	RequestParamsError = 400
	Unauthorized       = 401
	Forbidden          = 403
	RecordNotFound     = 404
	Conflict           = 409
	Gone               = 410
	ServerCommonError  = 500
	DbError            = 501
	ExternalError      = 502

	// referral preconditions
	ProfileNotFound = 4041
	AlreadyReferred = 4001
	WindowClosed    = 4002
	InvalidCode     = 4003

	InsufficientBalance = 4004

	TxHashUsed     = 4091
	BalanceChanged = 4092
)

type CodeError struct {
	Code  int    `json:"code"`
	Kind  Kind   `json:"-"`
	Msg   string `json:"msg"`
	cause error
}

func (e *CodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ErrCode:%d, Msg:%s, Cause:%v", e.Code, e.Msg, e.cause)
	}
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

func (e *CodeError) Unwrap() error { return e.cause }

// Is matches another *CodeError by code, so sentinel values work with errors.Is.
func (e *CodeError) Is(target error) bool {
	t, ok := target.(*CodeError)
	return ok && t.Code == e.Code && t.Kind == e.Kind
}

// New builds an error whose kind is derived from the code.
func New(code int, msg string) error {
	return &CodeError{Code: code, Kind: kindForCode(code), Msg: msg}
}

func Newf(code int, format string, args ...any) error {
	return New(code, fmt.Sprintf(format, args...))
}

// NewKind builds an error with an explicit kind and the kind's default code.
func NewKind(kind Kind, msg string) error {
	return &CodeError{Code: codeForKind(kind), Kind: kind, Msg: msg}
}

// Wrap keeps err as the cause. A nil err returns nil.
func Wrap(err error, kind Kind, msg string) error {
	if err == nil {
		return nil
	}
	return &CodeError{Code: codeForKind(kind), Kind: kind, Msg: msg, cause: err}
}

// WrapCode is Wrap with an explicit business code.
func WrapCode(err error, code int, msg string) error {
	if err == nil {
		return nil
	}
	return &CodeError{Code: code, Kind: kindForCode(code), Msg: msg, cause: err}
}

func NewErrCode(code int) error {
	return New(code, MapErrMsg(code))
}

// KindOf reports the kind of err; unknown errors are internal.
func KindOf(err error) Kind {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// CodeOf reports the business code of err.
func CodeOf(err error) int {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ServerCommonError
}

// MessageOf returns the user-facing message, never the wrapped cause.
func MessageOf(err error) string {
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Msg
	}
	return MapErrMsg(ServerCommonError)
}

// IsKind is shorthand for KindOf(err) == kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindExpired:
		return http.StatusGone
	case KindExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func MapErrMsg(code int) string {
	switch code {
	case ServerCommonError:
		return "internal server error"
	case RequestParamsError:
		return "invalid request parameters"
	case DbError:
		return "database busy"
	case RecordNotFound:
		return "record not found"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "admin only"
	case ExternalError:
		return "upstream service unavailable"
	default:
		return "unknown error"
	}
}

func kindForCode(code int) Kind {
	switch code {
	case RequestParamsError, AlreadyReferred, WindowClosed, InvalidCode, InsufficientBalance:
		return KindValidation
	case Unauthorized:
		return KindAuth
	case Forbidden:
		return KindForbidden
	case RecordNotFound, ProfileNotFound:
		return KindNotFound
	case Conflict, TxHashUsed, BalanceChanged:
		return KindConflict
	case Gone:
		return KindExpired
	case ExternalError:
		return KindExternal
	default:
		return KindInternal
	}
}

func codeForKind(kind Kind) int {
	switch kind {
	case KindValidation:
		return RequestParamsError
	case KindAuth:
		return Unauthorized
	case KindForbidden:
		return Forbidden
	case KindNotFound:
		return RecordNotFound
	case KindConflict:
		return Conflict
	case KindExpired:
		return Gone
	case KindExternal:
		return ExternalError
	case KindIntegrity:
		return ServerCommonError
	default:
		return ServerCommonError
	}
}

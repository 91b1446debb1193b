package domain

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	ErrNotFound              = NewErr("PASTE_NOT_FOUND", "paste not found", http.StatusNotFound)
	ErrHashCollision         = NewErr("HASH_COLLISION", "hash collision", http.StatusConflict)
	ErrConflict              = NewErr("CONFLICT", "concurrent modification", http.StatusConflict)
	ErrStoreUnavailable      = NewErr("STORE_UNAVAILABLE", "store unavailable", http.StatusServiceUnavailable)
	ErrDecode                = NewErr("DECODE_ERROR", "paste is not valid utf-8", http.StatusUnprocessableEntity)
	ErrUnguessableExtension  = NewErr("UNGUESSABLE_EXTENSION", "no extension known for this paste", http.StatusUnprocessableEntity)
	ErrUnknownMode           = NewErr("UNKNOWN_MODE", "unknown rendering mode", http.StatusBadRequest)
	ErrUnresolvableExtension = NewErr("UNRESOLVABLE_EXTENSION", "unknown extension", http.StatusBadRequest)
	ErrExtensionNotAllowed   = NewErr("EXTENSION_NOT_ALLOWED", "extension not allowed for this mode", http.StatusBadRequest)
	ErrInvalidRequest        = NewErr("INVALID_REQUEST", "invalid request", http.StatusBadRequest)
	ErrContentRequired       = NewErr("CONTENT_REQUIRED", "content required", http.StatusBadRequest)
	ErrInvalidSunset         = NewErr("INVALID_SUNSET", "invalid sunset", http.StatusBadRequest)
	ErrPasteTooLarge         = NewErr("PASTE_TOO_LARGE", "paste too large", http.StatusRequestEntityTooLarge)
	ErrRateLimitExceeded     = NewErr("RATE_LIMIT_EXCEEDED", "rate limit exceeded", http.StatusTooManyRequests)
	ErrInternalServer        = NewErr("INTERNAL_ERROR", "internal error", http.StatusInternalServerError)
)

type Err struct {
	Code   string `json:"code"`
	Msg    string `json:"message"`
	Status int    `json:"-"`
}

func (e *Err) Error() string { return e.Msg }
func NewErr(code, msg string, status int) *Err {
	return &Err{Code: code, Msg: msg, Status: status}
}

// CollisionErr reports that the identifier is already taken by different bytes.
type CollisionErr struct {
	ID string
}

func (e *CollisionErr) Error() string {
	return fmt.Sprintf("hash collision on %s", e.ID)
}
func (e *CollisionErr) Is(target error) bool {
	return target == ErrHashCollision
}

type ErrResp struct {
	Error ErrDetail `json:"error"`
}
type ErrDetail struct {
	Code string                 `json:"code"`
	Msg  string                 `json:"message"`
	Meta map[string]interface{} `json:"meta,omitempty"`
}

func ToResp(err error) ErrResp {
	var ce *CollisionErr
	if errors.As(err, &ce) {
		return ErrResp{Error: ErrDetail{
			Code: ErrHashCollision.Code,
			Msg:  ErrHashCollision.Msg,
			Meta: map[string]interface{}{"hashid": ce.ID},
		}}
	}
	var e *Err
	if errors.As(err, &e) {
		return ErrResp{Error: ErrDetail{Code: e.Code, Msg: e.Msg}}
	}
	return ErrResp{Error: ErrDetail{Code: ErrInternalServer.Code, Msg: ErrInternalServer.Msg}}
}
func Status(err error) int {
	if errors.Is(err, ErrHashCollision) {
		return ErrHashCollision.Status
	}
	var e *Err
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// Unavailable marks err as a store availability failure while keeping the cause.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return &unavailableErr{cause: err}
}

type unavailableErr struct {
	cause error
}

func (e *unavailableErr) Error() string {
	return ErrStoreUnavailable.Msg + ": " + e.cause.Error()
}
func (e *unavailableErr) Unwrap() error { return e.cause }
func (e *unavailableErr) Is(target error) bool {
	return target == ErrStoreUnavailable
}
func (e *unavailableErr) As(target interface{}) bool {
	if t, ok := target.(**Err); ok {
		*t = ErrStoreUnavailable
		return true
	}
	return false
}

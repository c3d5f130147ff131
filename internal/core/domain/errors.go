package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a workflow failure.
type ErrorKind string

const (
	KindLoginFailure       ErrorKind = "LOGIN_FAILURE"
	KindSelectorTimeout    ErrorKind = "SELECTOR_TIMEOUT"
	KindNavigation         ErrorKind = "NAVIGATION_ERROR"
	KindSessionExpired     ErrorKind = "SESSION_EXPIRED"
	KindNotFound           ErrorKind = "NOT_FOUND"
	KindScopeSelection     ErrorKind = "SCOPE_SELECTION"
	KindSubmissionRejected ErrorKind = "SUBMISSION_REJECTED"
	KindInternal           ErrorKind = "INTERNAL_ERROR"
)

// Error is a classified workflow error.
type Error struct {
	Kind  ErrorKind
	Op    string // primitive or step that failed, e.g. "wait input[name=FileName]"
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s (%v)", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified error.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// SelectorTimeout reports a control that never appeared.
func SelectorTimeout(selector string, err error) *Error {
	return NewError(KindSelectorTimeout, "wait "+selector, err)
}

// NavigationFailed reports a failed page transition.
func NavigationFailed(url string, err error) *Error {
	return NewError(KindNavigation, "navigate "+url, err)
}

// NotFound reports a registry miss.
func NotFound(what string) *Error {
	return NewError(KindNotFound, what, nil)
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return err != nil && KindOf(err) == kind
}

// StageOf returns the stage recorded on err, if any.
func StageOf(err error) Stage {
	var e *Error
	if errors.As(err, &e) {
		return e.Stage
	}
	return ""
}

// Retryable reports whether the batch may spend its single retry on err.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindSelectorTimeout, KindNavigation, KindSessionExpired,
		KindScopeSelection, KindSubmissionRejected, KindInternal:
		return true
	}
	return false
}

// Fatal reports whether err ends the whole run.
func Fatal(err error) bool {
	return IsKind(err, KindLoginFailure)
}

// Package cmn provides common low-level types and utilities: configuration,
// the error taxonomy, the hierarchical object URL, and JSON helpers shared
// by every other package in this module.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrClass groups error codes the way the gateway needs to translate them
// to an HTTP status.
type ErrClass int

const (
	ClassTransient ErrClass = iota
	ClassRedirect
	ClassNotFound
	ClassConflict
	ClassPolicy
	ClassBadRequest
	ClassInternal
)

// Numeric codes, stable across the taxonomy - mirrors the source's
// CODE_xxx constants (meta2v2/generic.h, proxy/common.c) without claiming
// wire compatibility (an explicit Non-goal).
const (
	CodeOK = 200

	CodeBadRequest  = 400
	CodeNotAllowed  = 403
	CodeNotFound    = 404
	CodeConflict    = 409
	CodePolicy      = 422
	CodeInternal    = 500
	CodeReadTimeout = 504

	CodeContainerNotFound     = 1000
	CodeContentNotFound       = 1001
	CodeContentExists         = 1002
	CodeUserInUse             = 1003
	CodePolicyNotSatisfiable  = 1004
	CodePolicyNotSupported    = 1005
	CodeNSImpossible          = 1006
	CodeLoopRedirect          = 1007
	CodeTooManyRedirects      = 1008
)

// Err is the structured (code, message) pair every component returns in
// place of the source's GError. Class decides HTTP-status translation at
// the gateway boundary, and only there.
type Err struct {
	code    int
	class   ErrClass
	message string
	cause   error
}

func NewErr(class ErrClass, code int, format string, args ...interface{}) *Err {
	return &Err{class: class, code: code, message: fmt.Sprintf(format, args...)}
}

func WrapErr(class ErrClass, code int, cause error, format string, args ...interface{}) *Err {
	return &Err{class: class, code: code, message: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}

func (e *Err) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func (e *Err) Unwrap() error { return e.cause }
func (e *Err) Code() int     { return e.code }
func (e *Err) Class() ErrClass { return e.class }

// Constructors for the taxonomy named above.

func ErrContainerNotFound(format string, a ...interface{}) *Err {
	return NewErr(ClassNotFound, CodeContainerNotFound, format, a...)
}

func ErrContentNotFound(format string, a ...interface{}) *Err {
	return NewErr(ClassNotFound, CodeContentNotFound, format, a...)
}

func ErrContentExists(format string, a ...interface{}) *Err {
	return NewErr(ClassConflict, CodeContentExists, format, a...)
}

func ErrUserInUse(format string, a ...interface{}) *Err {
	return NewErr(ClassConflict, CodeUserInUse, format, a...)
}

func ErrPolicyNotSatisfiable(format string, a ...interface{}) *Err {
	return NewErr(ClassPolicy, CodePolicyNotSatisfiable, format, a...)
}

func ErrPolicyNotSupported(format string, a ...interface{}) *Err {
	return NewErr(ClassPolicy, CodePolicyNotSupported, format, a...)
}

func ErrNSImpossible(format string, a ...interface{}) *Err {
	return NewErr(ClassPolicy, CodeNSImpossible, format, a...)
}

func ErrBadRequest(format string, a ...interface{}) *Err {
	return NewErr(ClassBadRequest, CodeBadRequest, format, a...)
}

func ErrNotAllowed(format string, a ...interface{}) *Err {
	return NewErr(ClassBadRequest, CodeNotAllowed, format, a...)
}

func ErrInternal(cause error, format string, a ...interface{}) *Err {
	return WrapErr(ClassInternal, CodeInternal, cause, format, a...)
}

func ErrReadTimeout(format string, a ...interface{}) *Err {
	return NewErr(ClassTransient, CodeReadTimeout, format, a...)
}

func ErrLoopRedirect(format string, a ...interface{}) *Err {
	return NewErr(ClassRedirect, CodeLoopRedirect, format, a...)
}

func ErrTooManyRedirects(format string, a ...interface{}) *Err {
	return NewErr(ClassRedirect, CodeTooManyRedirects, format, a...)
}

// AsErr extracts the structured *Err from any error in its cause chain, the
// way the gateway's outer boundary needs to.
func AsErr(err error) (*Err, bool) {
	var e *Err
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// HTTPStatus maps an ErrClass to the HTTP status the gateway responds with.
// This is the *only* place category-to-status translation happens.
func HTTPStatus(err error) int {
	e, ok := AsErr(err)
	if !ok {
		return CodeInternal
	}
	switch e.class {
	case ClassNotFound:
		return 404
	case ClassConflict:
		return 409
	case ClassPolicy:
		return 403
	case ClassBadRequest:
		return 400
	case ClassRedirect:
		return 502
	case ClassTransient:
		return 503
	default:
		return 500
	}
}

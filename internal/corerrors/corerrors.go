// Package corerrors re-exports github.com/cockroachdb/errors, giving every
// package in this module stack traces, wrapping, and hints without each one
// importing the third-party package directly.
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package corerrors

import (
	crdb "github.com/cockroachdb/errors"
)

var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

var (
	WithHint        = crdb.WithHint
	WithHintf       = crdb.WithHintf
	WithDetail      = crdb.WithDetail
	WithSecondaryError = crdb.WithSecondaryError
)

var (
	Is     = crdb.Is
	As     = crdb.As
	Unwrap = crdb.Unwrap
	Mark   = crdb.Mark
)

// Copyright 2022 Piprate Limited
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import "errors"

// Signer and Verifier mirror the teacher's model.Signer/model.Verifier
// pair (model/signature.go), generalised from a single Ed25519 DID key
// to whichever identity type implements them.
type (
	Signer interface {
		Sign(message []byte) []byte
	}

	Verifier interface {
		Verify(message, signature []byte) bool
	}
)

// Code is a flat error taxonomy shared by every layer of the crypto core.
// It is deliberately NOT a hierarchy of error types per package: callers
// that need to distinguish failure modes use errors.Is against the
// sentinels below, the same way the teacher code checks
// errors.Is(err, snacl.ErrInvalidPassword) instead of type-switching.
type Code int

const (
	CodeNotFound Code = iota + 1
	CodeNoNetwork
	CodeNoAccess
	CodeBadOperation
	CodeBadJSON
	CodeForgedSig
	CodeWrongPass
	CodeBadKey
	CodeBadSalt
	CodeCorruptData
)

func (c Code) String() string {
	switch c {
	case CodeNotFound:
		return "not found"
	case CodeNoNetwork:
		return "no network"
	case CodeNoAccess:
		return "no access"
	case CodeBadOperation:
		return "bad operation"
	case CodeBadJSON:
		return "bad json"
	case CodeForgedSig:
		return "forged signature"
	case CodeWrongPass:
		return "wrong passphrase"
	case CodeBadKey:
		return "bad key"
	case CodeBadSalt:
		return "bad salt"
	case CodeCorruptData:
		return "corrupt data"
	default:
		return "unknown error"
	}
}

// Error is the single error type returned across the crypto core. Detail
// is an optional human-readable addendum (e.g. a transport error string
// for CodeNoNetwork); it is never required for control flow.
type Error struct {
	Code   Code
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Code.String()
	}
	return e.Code.String() + ": " + e.Detail
}

// Is allows errors.Is(err, ErrNotFound) (etc.) to match regardless of Detail.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

func NewError(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Sentinels for errors.Is comparisons; Detail is always empty on these.
var (
	ErrNotFound     = &Error{Code: CodeNotFound}
	ErrNoNetwork    = &Error{Code: CodeNoNetwork}
	ErrNoAccess     = &Error{Code: CodeNoAccess}
	ErrBadOperation = &Error{Code: CodeBadOperation}
	ErrBadJSON      = &Error{Code: CodeBadJSON}
	ErrForgedSig    = &Error{Code: CodeForgedSig}
	ErrWrongPass    = &Error{Code: CodeWrongPass}
	ErrBadKey       = &Error{Code: CodeBadKey}
	ErrBadSalt      = &Error{Code: CodeBadSalt}
	ErrCorruptData  = &Error{Code: CodeCorruptData}
)

// NoNetworkError wraps a transport failure with its detail, for callers
// that want the underlying cause alongside errors.Is(err, ErrNoNetwork).
func NoNetworkError(detail string) *Error {
	return NewError(CodeNoNetwork, detail)
}

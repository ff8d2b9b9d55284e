// Copyright 2023-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package resolver

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownHost matches any error reporting that a name or an address
	// could not be resolved.
	ErrUnknownHost = errors.New("unknown host")

	// ErrInvalidInput matches any error reporting a malformed host name or
	// address. Such input is rejected before any lookup is attempted.
	ErrInvalidInput = errors.New("invalid input")
)

// UnknownHostError reports that Host could not be resolved. Err, if not nil,
// is the underlying cause. It may be a *TransientError when the resolver
// failed in an unexpected way.
type UnknownHostError struct {
	Host string
	Err  error
}

func (e *UnknownHostError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrUnknownHost, e.Host)
	}
	return fmt.Sprintf("%v: %s: %v", ErrUnknownHost, e.Host, e.Err)
}

func (e *UnknownHostError) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, ErrUnknownHost) hold for every UnknownHostError.
func (e *UnknownHostError) Is(target error) bool {
	return target == ErrUnknownHost
}

// InvalidInputError reports a malformed host name or address.
type InvalidInputError struct {
	Input  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("%v %q: %s", ErrInvalidInput, e.Input, e.Reason)
}

// Is makes errors.Is(err, ErrInvalidInput) hold for every InvalidInputError.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// TransientError wraps an unexpected failure of a Resolver, including a
// recovered panic. Callers treat it like an unknown host for caching.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return "transient resolver error: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

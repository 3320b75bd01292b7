// Copyright 2024 The vmmguard Authors.
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

package seccomp

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Error kinds. Every error returned by this package wraps one of these, so
// callers can use errors.Is to tell them apart.
var (
	// ErrPolicyAuthoring is returned for a policy that can not be expressed,
	// such as an out-of-range argument index or a syscall listed twice.
	ErrPolicyAuthoring = errors.New("invalid seccomp policy")

	// ErrProgramInvalid is returned when a policy reaches the compiler with
	// content it can not encode.
	ErrProgramInvalid = errors.New("invalid seccomp program")

	// ErrPolicyTooLarge is returned when the compiled program would not fit
	// in the kernel's instruction limit or branch range.
	ErrPolicyTooLarge = errors.New("seccomp policy too large")

	// ErrInstallationRejected is returned when the kernel refuses to install
	// a program.
	ErrInstallationRejected = errors.New("seccomp installation rejected")
)

// AuthoringError describes a mistake in a rule or policy.
type AuthoringError struct {
	// Syscall is the syscall the offending rule is for.
	Syscall uintptr

	// Reason describes the mistake.
	Reason string
}

// Error implements error.Error.
func (e *AuthoringError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrPolicyAuthoring, SyscallName(e.Syscall), e.Reason)
}

// Unwrap returns ErrPolicyAuthoring.
func (e *AuthoringError) Unwrap() error {
	return ErrPolicyAuthoring
}

// PolicyTooLargeError is returned when a program exceeds a size limit.
type PolicyTooLargeError struct {
	// Instructions is the size the program would have had.
	Instructions int

	// Limit is the size it had to fit in.
	Limit int
}

// Error implements error.Error.
func (e *PolicyTooLargeError) Error() string {
	return fmt.Sprintf("%v: %d instructions, limit is %d", ErrPolicyTooLarge, e.Instructions, e.Limit)
}

// Unwrap returns ErrPolicyTooLarge.
func (e *PolicyTooLargeError) Unwrap() error {
	return ErrPolicyTooLarge
}

// InstallError is returned when a system call needed to install a filter
// fails.
type InstallError struct {
	// Op is the step that failed.
	Op string

	// Errno is the error the kernel returned.
	Errno unix.Errno
}

// Error implements error.Error.
func (e *InstallError) Error() string {
	return fmt.Sprintf("%v: %s: %v", ErrInstallationRejected, e.Op, e.Errno)
}

// Unwrap returns both ErrInstallationRejected and the errno.
func (e *InstallError) Unwrap() []error {
	return []error{ErrInstallationRejected, e.Errno}
}

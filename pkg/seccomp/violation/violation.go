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

// Package violation turns evidence of a seccomp denial into errors.
//
// A denied call never returns to the caller: depending on the filter's
// action the kernel kills the thread or process, or delivers SIGSYS. What
// remains is the wait status of the dead process and, when auditing is on,
// a SECCOMP audit record in the kernel log. Both are decoded here.
package violation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/seccomp"
)

// ErrRuntimeDenial is wrapped by every error reporting a denied call.
var ErrRuntimeDenial = errors.New("seccomp denied a system call")

// auditTypeSeccomp is AUDIT_SECCOMP from linux/audit.h.
const auditTypeSeccomp = 1326

// Record is a decoded SECCOMP audit record.
type Record struct {
	// PID is the process that made the call.
	PID int

	// Comm and Exe identify the process' executable.
	Comm string
	Exe  string

	// Signal is the signal the kernel sent, or zero.
	Signal unix.Signal

	// Arch is the AUDIT_ARCH_* value of the call.
	Arch uint32

	// Syscall is the system call number.
	Syscall uintptr

	// Code is the action the filter returned.
	Code linux.BPFAction
}

// SyscallName returns the name of the denied call.
func (r *Record) SyscallName() string {
	if r.Arch != seccomp.NativeArch {
		return fmt.Sprintf("%s:%d", ArchName(r.Arch), r.Syscall)
	}
	return seccomp.SyscallName(r.Syscall)
}

// String implements fmt.Stringer.
func (r *Record) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pid %d", r.PID)
	if r.Comm != "" {
		fmt.Fprintf(&sb, " (%s)", r.Comm)
	}
	fmt.Fprintf(&sb, ": %s (nr %d, arch %s) -> %v", r.SyscallName(), r.Syscall, ArchName(r.Arch), r.Code)
	return sb.String()
}

// ArchName returns the name of an AUDIT_ARCH_* value.
func ArchName(arch uint32) string {
	switch arch {
	case linux.AUDIT_ARCH_X86_64:
		return "x86_64"
	case linux.AUDIT_ARCH_I386:
		return "i386"
	case linux.AUDIT_ARCH_AARCH64:
		return "aarch64"
	default:
		return fmt.Sprintf("arch(%#x)", arch)
	}
}

// Error reports a call denied by a seccomp filter.
type Error struct {
	// PID is the process that made the call.
	PID int

	// Signal is the signal that ended the process, or zero when only an
	// audit record is known.
	Signal unix.Signal

	// Record is the matching audit record, if any.
	Record *Record
}

// Error implements error.Error.
func (e *Error) Error() string {
	switch {
	case e.Record != nil:
		return fmt.Sprintf("%v: %v", ErrRuntimeDenial, e.Record)
	case e.Signal != 0:
		return fmt.Sprintf("%v: pid %d killed by %v", ErrRuntimeDenial, e.PID, unix.SignalName(e.Signal))
	default:
		return fmt.Sprintf("%v: pid %d", ErrRuntimeDenial, e.PID)
	}
}

// Unwrap returns ErrRuntimeDenial.
func (e *Error) Unwrap() error {
	return ErrRuntimeDenial
}

// FromWaitStatus interprets the wait status of a sandboxed process. It
// returns an *Error if the process died of SIGSYS, nil if it exited
// successfully, and a plain error for any other death.
func FromWaitStatus(pid int, ws unix.WaitStatus) error {
	switch {
	case ws.Signaled() && ws.Signal() == unix.SIGSYS:
		return &Error{PID: pid, Signal: unix.SIGSYS}
	case ws.Signaled():
		return fmt.Errorf("pid %d killed by %v", pid, unix.SignalName(ws.Signal()))
	case ws.Exited() && ws.ExitStatus() == 0:
		return nil
	case ws.Exited():
		return fmt.Errorf("pid %d exited with status %d", pid, ws.ExitStatus())
	default:
		return fmt.Errorf("pid %d: unexpected wait status %#x", pid, uint32(ws))
	}
}

// ParseAuditRecord decodes a SECCOMP audit record, as found in the kernel
// log or audit.log:
//
//	audit: type=1326 audit(1700000000.123:45): auid=4294967295 uid=0 gid=0
//	ses=4294967295 pid=1234 comm="vmm" exe="/usr/bin/vmm" sig=31
//	arch=c000003e syscall=39 compat=0 ip=0x7f2b1c0f3a2d code=0x80000000
func ParseAuditRecord(line string) (*Record, error) {
	fields := auditFields(line)
	if t := fields["type"]; t != strconv.Itoa(auditTypeSeccomp) && t != "SECCOMP" {
		return nil, fmt.Errorf("not a seccomp audit record: %q", line)
	}

	var r Record
	sysno, ok := fields["syscall"]
	if !ok {
		return nil, fmt.Errorf("audit record has no syscall field: %q", line)
	}
	n, err := strconv.ParseUint(sysno, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("bad syscall field %q: %w", sysno, err)
	}
	r.Syscall = uintptr(n)

	arch, ok := fields["arch"]
	if !ok {
		return nil, fmt.Errorf("audit record has no arch field: %q", line)
	}
	a, err := strconv.ParseUint(arch, 16, 32)
	if err != nil {
		return nil, fmt.Errorf("bad arch field %q: %w", arch, err)
	}
	r.Arch = uint32(a)

	if v, ok := fields["pid"]; ok {
		if r.PID, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("bad pid field %q: %w", v, err)
		}
	}
	if v, ok := fields["sig"]; ok {
		sig, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("bad sig field %q: %w", v, err)
		}
		r.Signal = unix.Signal(sig)
	}
	if v, ok := fields["code"]; ok {
		code, err := strconv.ParseUint(v, 0, 32)
		if err != nil {
			return nil, fmt.Errorf("bad code field %q: %w", v, err)
		}
		r.Code = linux.BPFAction(code)
	}
	r.Comm = fields["comm"]
	r.Exe = fields["exe"]
	return &r, nil
}

// auditFields splits a record in key=value pairs. Quotes around values are
// removed.
func auditFields(line string) map[string]string {
	fields := make(map[string]string)
	for _, f := range strings.Fields(line) {
		k, v, ok := strings.Cut(f, "=")
		if !ok {
			continue
		}
		if _, dup := fields[k]; dup {
			continue
		}
		fields[k] = strings.Trim(v, `"`)
	}
	return fields
}

// FromAuditRecord returns the *Error for an audit record line.
func FromAuditRecord(line string) (*Error, error) {
	r, err := ParseAuditRecord(line)
	if err != nil {
		return nil, err
	}
	return &Error{PID: r.PID, Signal: r.Signal, Record: r}, nil
}

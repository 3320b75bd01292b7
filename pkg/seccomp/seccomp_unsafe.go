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
	"runtime"
	"unsafe"

	"golang.org/x/sys/unix"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

// SetFilter attaches instrs to the calling thread with seccomp(2).
//
// Filters belong to threads, so the calling goroutine is wired to its thread
// for good. The thread dies with the goroutine.
func SetFilter(instrs []linux.BPFInstruction) error {
	const op = "seccomp(SECCOMP_SET_MODE_FILTER)"
	if len(instrs) == 0 || len(instrs) > 0xffff {
		return &InstallError{Op: op, Errno: unix.EINVAL}
	}
	runtime.LockOSThread()

	// Without CAP_SYS_ADMIN the kernel insists on no_new_privs.
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		errno, _ := err.(unix.Errno)
		return &InstallError{Op: "prctl(PR_SET_NO_NEW_PRIVS)", Errno: errno}
	}

	// linux.BPFInstruction and unix.SockFilter share the struct sock_filter
	// layout.
	fprog := unix.SockFprog{
		Len:    uint16(len(instrs)),
		Filter: (*unix.SockFilter)(unsafe.Pointer(unsafe.SliceData(instrs))),
	}
	_, errno := seccomp(linux.SECCOMP_SET_MODE_FILTER, 0, unsafe.Pointer(&fprog))
	runtime.KeepAlive(instrs)
	if errno != 0 {
		return &InstallError{Op: op, Errno: errno}
	}
	return nil
}

// actionAvailable asks the kernel whether it implements action. Kernels that
// predate SECCOMP_GET_ACTION_AVAIL answer EINVAL, which counts as no.
func actionAvailable(action linux.BPFAction) (bool, error) {
	arg := uint32(action)
	_, errno := seccomp(linux.SECCOMP_GET_ACTION_AVAIL, 0, unsafe.Pointer(&arg))
	switch errno {
	case 0:
		return true, nil
	case unix.EINVAL, unix.EOPNOTSUPP:
		return false, nil
	default:
		return false, &InstallError{Op: "seccomp(SECCOMP_GET_ACTION_AVAIL)", Errno: errno}
	}
}

//go:nosplit
func seccomp(op, flags uint32, ptr unsafe.Pointer) (uintptr, unix.Errno) {
	r, _, errno := unix.RawSyscall(unix.SYS_SECCOMP, uintptr(op), uintptr(flags), uintptr(ptr))
	return r, errno
}

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

package config

import (
	"golang.org/x/sys/unix"
)

// syscallTable is the aarch64 allow list, most frequent calls first.
//
// aarch64 only has the *at forms of the path syscalls and no epoll_wait,
// so both ABIs use epoll_pwait, mkdirat, unlinkat and fstatat.
//
// Rows marked "runtime" are needed by the Go runtime itself on every thread,
// whatever its role and ABI: the netpoller behind timers, parking and
// creating threads, preemption signals, the scavenger, and clock_gettime
// where the vDSO falls back to a real syscall.
var syscallTable = []row{
	allow(unix.SYS_READ, "read", allRoles, allABIs), // runtime
	allow(unix.SYS_READV, "readv", allRoles, allABIs),
	allow(unix.SYS_WRITE, "write", allRoles, allABIs), // runtime
	allow(unix.SYS_WRITEV, "writev", allRoles, allABIs),
	allowArg(unix.SYS_IOCTL, "ioctl", allRoles, allABIs, 1, ioctlValues),
	allow(unix.SYS_EPOLL_PWAIT, "epoll_pwait", allRoles, allABIs), // runtime
	allow(unix.SYS_IO_GETEVENTS, "io_getevents", mainIO, allABIs),
	allow(unix.SYS_IO_SUBMIT, "io_submit", mainIO, allABIs),
	allow(unix.SYS_DUP, "dup", allRoles, allABIs),
	allow(unix.SYS_CLOSE, "close", allRoles, allABIs),
	allow(unix.SYS_EVENTFD2, "eventfd2", allRoles, allABIs),           // runtime
	allow(unix.SYS_EPOLL_CTL, "epoll_ctl", allRoles, allABIs),         // runtime
	allow(unix.SYS_EPOLL_CREATE1, "epoll_create1", allRoles, allABIs), // runtime
	allow(unix.SYS_FDATASYNC, "fdatasync", mainIO, allABIs),
	allow(unix.SYS_RECVMSG, "recvmsg", mainIO, allABIs),
	allow(unix.SYS_SENDMSG, "sendmsg", mainIO, allABIs),
	allow(unix.SYS_RECVFROM, "recvfrom", mainIO, allABIs),
	allow(unix.SYS_MREMAP, "mremap", allRoles, allABIs),
	allow(unix.SYS_IO_SETUP, "io_setup", mainIO, allABIs),
	allow(unix.SYS_BRK, "brk", allRoles, allABIs),
	allowArg(unix.SYS_FCNTL, "fcntl", allRoles, allABIs, 1, fcntlValues),
	allow(unix.SYS_RT_SIGPROCMASK, "rt_sigprocmask", allRoles, allABIs), // runtime
	allow(unix.SYS_OPENAT, "openat", mainIO, allABIs),
	allow(unix.SYS_SIGALTSTACK, "sigaltstack", allRoles, allABIs), // runtime
	allow(unix.SYS_MMAP, "mmap", allRoles, allABIs),               // runtime
	allow(unix.SYS_MPROTECT, "mprotect", allRoles, allABIs),
	allow(unix.SYS_MUNMAP, "munmap", allRoles, allABIs), // runtime
	allow(unix.SYS_ACCEPT4, "accept4", mainIO, allABIs),
	allow(unix.SYS_LSEEK, "lseek", mainIO, allABIs),
	allowArg(unix.SYS_FUTEX, "futex", allRoles, allABIs, 1, futexValues), // runtime
	allow(unix.SYS_SCHED_YIELD, "sched_yield", allRoles, allABIs),        // runtime
	allow(unix.SYS_NANOSLEEP, "nanosleep", allRoles, allABIs),            // runtime
	allow(unix.SYS_EXIT, "exit", allRoles, allABIs),                      // runtime
	allow(unix.SYS_EXIT_GROUP, "exit_group", allRoles, allABIs),
	allow(unix.SYS_RT_SIGRETURN, "rt_sigreturn", allRoles, allABIs), // runtime
	allow(unix.SYS_TKILL, "tkill", allRoles, muslOnly),
	allow(unix.SYS_TGKILL, "tgkill", allRoles, allABIs), // runtime
	allow(unix.SYS_GETTID, "gettid", allRoles, allABIs), // runtime
	allow(unix.SYS_GETPID, "getpid", allRoles, allABIs), // runtime
	allow(unix.SYS_FSTAT, "fstat", mainIO, allABIs),
	allow(unix.SYS_FSTATAT, "newfstatat", mainIO, allABIs),
	allow(unix.SYS_PREAD64, "pread64", mainIO, allABIs),
	allow(unix.SYS_PWRITE64, "pwrite64", mainIO, allABIs),
	allow(unix.SYS_STATX, "statx", mainIO, allABIs),
	allow(unix.SYS_MKDIRAT, "mkdirat", mainIO, allABIs),
	allow(unix.SYS_UNLINKAT, "unlinkat", mainIO, allABIs),
	allowArg(unix.SYS_MADVISE, "madvise", allRoles, allABIs, 2, madviseValues), // runtime
	allow(unix.SYS_MSYNC, "msync", mainIO, allABIs),
	allow(unix.SYS_READLINKAT, "readlinkat", mainIO, allABIs),
	allow(unix.SYS_SOCKET, "socket", mainIO, allABIs),
	allow(unix.SYS_CONNECT, "connect", mainIO, allABIs),
	allow(unix.SYS_GETCWD, "getcwd", mainIO, allABIs),
	allowArg(unix.SYS_CLONE, "clone", allRoles, allABIs, 0, cloneValues), // runtime
	allow(unix.SYS_CLONE3, "clone3", mainOnly, gnuOnly),
	allow(unix.SYS_PRCTL, "prctl", allRoles, allABIs),
	allowArg(unix.SYS_SECCOMP, "seccomp", allRoles, allABIs, 0, seccompValues),
	allow(unix.SYS_SENDTO, "sendto", mainIO, allABIs),
	allow(unix.SYS_GETSOCKNAME, "getsockname", mainIO, allABIs),
	allow(unix.SYS_GETPEERNAME, "getpeername", mainIO, allABIs),
	allow(unix.SYS_SHUTDOWN, "shutdown", mainIO, allABIs),
	allow(unix.SYS_GETRANDOM, "getrandom", allRoles, allABIs),
	allow(unix.SYS_SETSOCKOPT, "setsockopt", mainIO, allABIs),
	allow(unix.SYS_RT_SIGACTION, "rt_sigaction", allRoles, gnuOnly),
	allow(unix.SYS_SET_ROBUST_LIST, "set_robust_list", allRoles, gnuOnly),
	allow(unix.SYS_SCHED_GETAFFINITY, "sched_getaffinity", allRoles, allABIs), // runtime
	allow(unix.SYS_CLOCK_GETTIME, "clock_gettime", allRoles, allABIs),         // runtime
}

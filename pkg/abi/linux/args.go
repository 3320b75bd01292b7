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

package linux

// fcntl(2) commands matched by argument filters.
const (
	F_GETFD         = 1
	F_SETFD         = 2
	F_GETFL         = 3
	F_SETFL         = 4
	F_DUPFD_CLOEXEC = 1030
)

// futex(2) operations. The private variants carry FUTEX_PRIVATE_FLAG.
const (
	FUTEX_WAKE         = 1
	FUTEX_LOCK_PI      = 6
	futexWait          = 0
	futexCmpRequeue    = 4
	futexWakeOp        = 5
	futexWaitBitset    = 9
	futexPrivate       = 0x80
	futexClockRealtime = 0x100

	FUTEX_WAIT_PRIVATE         = futexWait | futexPrivate
	FUTEX_WAKE_PRIVATE         = FUTEX_WAKE | futexPrivate
	FUTEX_CMP_REQUEUE_PRIVATE  = futexCmpRequeue | futexPrivate
	FUTEX_WAKE_OP_PRIVATE      = futexWakeOp | futexPrivate
	FUTEX_WAIT_BITSET_PRIVATE  = futexWaitBitset | futexPrivate
	FUTEX_WAIT_BITSET_REALTIME = FUTEX_WAIT_BITSET_PRIVATE | futexClockRealtime
)

// madvise(2) advice values.
const (
	MADV_WILLNEED   = 3
	MADV_DONTNEED   = 4
	MADV_FREE       = 8
	MADV_HUGEPAGE   = 14
	MADV_NOHUGEPAGE = 15
	MADV_DONTDUMP   = 16
	MADV_COLLAPSE   = 25
)

// clone(2) flags.
const (
	CLONE_VM             = 0x100
	CLONE_FS             = 0x200
	CLONE_FILES          = 0x400
	CLONE_SIGHAND        = 0x800
	CLONE_THREAD         = 0x10000
	CLONE_SYSVSEM        = 0x40000
	CLONE_SETTLS         = 0x80000
	CLONE_PARENT_SETTID  = 0x100000
	CLONE_CHILD_CLEARTID = 0x200000
	CLONE_DETACHED       = 0x400000

	// CLONE_GO_THREAD are the flags the Go runtime creates threads with.
	CLONE_GO_THREAD = CLONE_VM | CLONE_FS | CLONE_FILES | CLONE_SIGHAND | CLONE_SYSVSEM | CLONE_THREAD

	// CLONE_MUSL_THREAD are the flags musl's pthread_create uses.
	CLONE_MUSL_THREAD = CLONE_GO_THREAD | CLONE_SETTLS | CLONE_PARENT_SETTID | CLONE_CHILD_CLEARTID | CLONE_DETACHED
)

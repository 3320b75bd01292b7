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

import "fmt"

// Seccomp constants taken from <linux/seccomp.h>.
const (
	SECCOMP_MODE_NONE   = 0
	SECCOMP_MODE_STRICT = 1
	SECCOMP_MODE_FILTER = 2

	SECCOMP_RET_ACTION_FULL = 0xffff0000
	SECCOMP_RET_ACTION      = 0x7fff0000
	SECCOMP_RET_DATA        = 0x0000ffff

	SECCOMP_SET_MODE_STRICT  = 0
	SECCOMP_SET_MODE_FILTER  = 1
	SECCOMP_GET_ACTION_AVAIL = 2

	SECCOMP_FILTER_FLAG_TSYNC = 1
	SECCOMP_FILTER_FLAG_LOG   = 2
)

// BPFAction is an action for a BPF seccomp filter.
type BPFAction uint32

// BPFAction definitions.
const (
	SECCOMP_RET_KILL_PROCESS BPFAction = 0x80000000
	SECCOMP_RET_KILL_THREAD  BPFAction = 0x00000000
	SECCOMP_RET_TRAP         BPFAction = 0x00030000
	SECCOMP_RET_ERRNO        BPFAction = 0x00050000
	SECCOMP_RET_TRACE        BPFAction = 0x7ff00000
	SECCOMP_RET_LOG          BPFAction = 0x7ffc0000
	SECCOMP_RET_ALLOW        BPFAction = 0x7fff0000
)

func (a BPFAction) String() string {
	switch a & SECCOMP_RET_ACTION_FULL {
	case SECCOMP_RET_KILL_PROCESS:
		return "kill process"
	case SECCOMP_RET_KILL_THREAD:
		return "kill thread"
	case SECCOMP_RET_TRAP:
		return fmt.Sprintf("trap (data=%#x)", a.Data())
	case SECCOMP_RET_ERRNO:
		return fmt.Sprintf("errno (data=%#x)", a.Data())
	case SECCOMP_RET_TRACE:
		return fmt.Sprintf("trace (data=%#x)", a.Data())
	case SECCOMP_RET_LOG:
		return "log"
	case SECCOMP_RET_ALLOW:
		return "allow"
	}
	return fmt.Sprintf("invalid action: %#x", uint32(a))
}

// Data returns the SECCOMP_RET_DATA portion of the action.
func (a BPFAction) Data() uint16 {
	return uint16(a & SECCOMP_RET_DATA)
}

// WithReturnCode sets the lower 16 bits of the SECCOMP_RET_ERRNO,
// SECCOMP_RET_TRAP or SECCOMP_RET_TRACE actions.
func (a BPFAction) WithReturnCode(code uint16) BPFAction {
	return a&SECCOMP_RET_ACTION_FULL | BPFAction(code)
}

// Audit architecture values from <linux/audit.h>.
const (
	AUDIT_ARCH_I386    = 0x40000003
	AUDIT_ARCH_X86_64  = 0xc000003e
	AUDIT_ARCH_AARCH64 = 0xc00000b7
)

// Offsets of the struct seccomp_data fields.
const (
	SECCOMP_DATA_OFFSET_NR   = 0
	SECCOMP_DATA_OFFSET_ARCH = 4
	SECCOMP_DATA_OFFSET_IP   = 8
	SECCOMP_DATA_OFFSET_ARGS = 16

	// SizeOfSeccompData is sizeof(struct seccomp_data).
	SizeOfSeccompData = 64
)

// SeccompDataOffsetArgLow returns the offset of the low 32 bits of the given
// syscall argument in struct seccomp_data.
func SeccompDataOffsetArgLow(i int) uint32 {
	return uint32(SECCOMP_DATA_OFFSET_ARGS + i*8)
}

// SeccompDataOffsetArgHigh returns the offset of the high 32 bits of the
// given syscall argument in struct seccomp_data. It assumes a little-endian
// host.
func SeccompDataOffsetArgHigh(i int) uint32 {
	return SeccompDataOffsetArgLow(i) + 4
}

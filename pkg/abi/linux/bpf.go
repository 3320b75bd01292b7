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

// Package linux contains the constants and types needed to talk to the Linux
// kernel's seccomp and device interfaces.
package linux

import "fmt"

// BPFInstruction is a raw BPF virtual machine instruction, laid out like the
// kernel's struct sock_filter.
type BPFInstruction struct {
	// OpCode is the operation to execute.
	OpCode uint16

	// JumpIfTrue is the number of instructions to skip if OpCode is a
	// conditional instruction and the condition is true.
	JumpIfTrue uint8

	// JumpIfFalse is the number of instructions to skip if OpCode is a
	// conditional instruction and the condition is false.
	JumpIfFalse uint8

	// K is a constant parameter. The meaning depends on the value of OpCode.
	K uint32
}

// SizeOfBPFInstruction is the size of a BPFInstruction in memory.
const SizeOfBPFInstruction = 8

// String implements fmt.Stringer.
func (ins BPFInstruction) String() string {
	return fmt.Sprintf("{0x%02x, %d, %d, 0x%08x}", ins.OpCode, ins.JumpIfTrue, ins.JumpIfFalse, ins.K)
}

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
	"encoding/binary"
	"fmt"
	"strings"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/bpf"
)

// Data is a system call as seen by a seccomp filter: the kernel's struct
// seccomp_data.
type Data struct {
	Nr                 uint32
	Arch               uint32
	InstructionPointer uint64
	Args               [MaxArgs]uint64
}

// AsInput encodes d the way the kernel lays it out in memory.
func (d Data) AsInput() bpf.Input {
	in := make(bpf.Input, linux.SizeOfSeccompData)
	binary.NativeEndian.PutUint32(in[linux.SECCOMP_DATA_OFFSET_NR:], d.Nr)
	binary.NativeEndian.PutUint32(in[linux.SECCOMP_DATA_OFFSET_ARCH:], d.Arch)
	binary.NativeEndian.PutUint64(in[linux.SECCOMP_DATA_OFFSET_IP:], d.InstructionPointer)
	for i, arg := range d.Args {
		binary.NativeEndian.PutUint64(in[linux.SeccompDataOffsetArgLow(i):], arg)
	}
	return in
}

// ProgramOptions control how a policy is compiled.
type ProgramOptions struct {
	// DefaultAction is returned for every call the policy does not allow,
	// including calls made with a foreign architecture.
	DefaultAction linux.BPFAction

	// Arch is the AUDIT_ARCH_* value calls must carry. Zero means the
	// architecture this binary runs on.
	Arch uint32

	// MaxInstructions caps the program size. Zero means bpf.MaxInstructions.
	MaxInstructions int
}

// DefaultProgramOptions returns options that kill the process on a denied
// call made on the native architecture.
func DefaultProgramOptions() ProgramOptions {
	return ProgramOptions{
		DefaultAction:   linux.SECCOMP_RET_KILL_PROCESS,
		Arch:            NativeArch,
		MaxInstructions: bpf.MaxInstructions,
	}
}

// Stats describes the shape of a compiled program.
type Stats struct {
	// Rules is the number of syscalls the program allows.
	Rules int

	// Groups is the number of argument constraint groups.
	Groups int

	// Values is the number of argument values compared against.
	Values int

	// Relays is the number of unconditional jumps added because a
	// conditional jump could not reach its target.
	Relays int

	// LongRules is the number of rules whose body was too long for the
	// syscall comparison to skip over directly.
	LongRules int

	// Instructions is the program length.
	Instructions int
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%d rules, %d groups, %d values, %d relays, %d long rules, %d instructions",
		s.Rules, s.Groups, s.Values, s.Relays, s.LongRules, s.Instructions)
}

// Program is a compiled, validated seccomp filter. It is immutable.
type Program struct {
	insns         []linux.BPFInstruction
	compiled      bpf.Program
	arch          uint32
	defaultAction linux.BPFAction
	stats         Stats
}

// Instructions returns a copy of the program's instructions.
func (p *Program) Instructions() []linux.BPFInstruction {
	return append([]linux.BPFInstruction(nil), p.insns...)
}

// Len returns the number of instructions.
func (p *Program) Len() int {
	return len(p.insns)
}

// Arch returns the AUDIT_ARCH_* value the program accepts.
func (p *Program) Arch() uint32 {
	return p.arch
}

// DefaultAction returns the action taken on denied calls.
func (p *Program) DefaultAction() linux.BPFAction {
	return p.defaultAction
}

// Stats returns statistics gathered while compiling.
func (p *Program) Stats() Stats {
	return p.stats
}

// Evaluate runs the program against d and returns the action the kernel
// would take.
func (p *Program) Evaluate(d Data) (linux.BPFAction, error) {
	ret, err := bpf.Exec(p.compiled, d.AsInput())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrProgramInvalid, err)
	}
	return linux.BPFAction(ret), nil
}

// Trace is like Evaluate but also returns how many instructions ran.
func (p *Program) Trace(d Data) (linux.BPFAction, int, error) {
	m, err := bpf.InstrumentedExec(p.compiled, d.AsInput())
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrProgramInvalid, err)
	}
	return linux.BPFAction(m.ReturnValue), m.Executed(), nil
}

// Bytes returns the program encoded as an array of struct sock_filter.
func (p *Program) Bytes() []byte {
	buf := make([]byte, 0, len(p.insns)*linux.SizeOfBPFInstruction)
	for _, ins := range p.insns {
		buf = binary.NativeEndian.AppendUint16(buf, ins.OpCode)
		buf = append(buf, ins.JumpIfTrue, ins.JumpIfFalse)
		buf = binary.NativeEndian.AppendUint32(buf, ins.K)
	}
	return buf
}

// String returns a human readable listing of the program.
func (p *Program) String() string {
	s, err := bpf.DecodeProgram(p.insns)
	if err != nil {
		return fmt.Sprintf("Error: %v\n%s", err, s)
	}
	return strings.TrimSuffix(s, "\n")
}

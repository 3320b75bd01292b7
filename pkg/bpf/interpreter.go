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

package bpf

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

// Error codes carried by Error.
const (
	// DivisionByZero is a division or modulo by a zero K at compile time, or
	// by a zero X at run time.
	DivisionByZero = iota

	// InvalidEndOfProgram means the final instruction is not a return.
	InvalidEndOfProgram

	// InvalidInstructionCount means the program is empty or longer than
	// MaxInstructions.
	InvalidInstructionCount

	// InvalidJumpTarget means a jump lands past the last instruction.
	InvalidJumpTarget

	// InvalidLoad means a load reads outside struct seccomp_data or at an
	// offset that is not word aligned.
	InvalidLoad

	// InvalidOpcode means seccomp would refuse the opcode.
	InvalidOpcode

	// InvalidRegister means an M register index is >= ScratchMemRegisters.
	InvalidRegister
)

var errorText = [...]string{
	DivisionByZero:          "division by zero",
	InvalidEndOfProgram:     "program does not end with a return",
	InvalidInstructionCount: "instruction count out of range",
	InvalidJumpTarget:       "jump past end of program",
	InvalidLoad:             "unaligned or out of range load",
	InvalidOpcode:           "opcode not permitted",
	InvalidRegister:         "no such scratch register",
}

// Error reports why a program was rejected by Compile or aborted by Exec.
type Error struct {
	// Code is one of the error codes above.
	Code int

	// PC is the index of the offending instruction.
	PC int
}

// Error implements error.Error.
func (e Error) Error() string {
	text := "unknown error"
	if e.Code >= 0 && e.Code < len(errorText) {
		text = errorText[e.Code]
	}
	return fmt.Sprintf("bpf: instruction %d: %s", e.PC, text)
}

// Input is the data a program runs over: a struct seccomp_data in host byte
// order.
type Input []byte

func (in Input) word(off uint32) (uint32, bool) {
	if off%4 != 0 || uint64(off)+4 > uint64(len(in)) {
		return 0, false
	}
	return binary.NativeEndian.Uint32(in[off:]), true
}

// Program is a sequence of instructions accepted by Compile.
type Program struct {
	instructions []linux.BPFInstruction
}

// Length returns the number of instructions in the program.
func (p Program) Length() int {
	return len(p.instructions)
}

// checkFunc validates the class-specific fields of the instruction at pc in a
// program of n instructions. ok is false when code describes a problem.
type checkFunc func(ins linux.BPFInstruction, pc, n int) (code int, ok bool)

var classChecks = [instructionClassMask + 1]checkFunc{
	Ld:   checkLoad,
	Ldx:  checkLoad,
	St:   checkStore,
	Stx:  checkStore,
	Alu:  checkALU,
	Jmp:  checkJump,
	Ret:  checkReturn,
	Misc: checkMisc,
}

// Compile applies the checks seccomp(2) makes when a filter is attached and
// returns a Program that Exec can run.
func Compile(insns []linux.BPFInstruction) (Program, error) {
	n := len(insns)
	if n == 0 || n > MaxInstructions {
		return Program{}, Error{InvalidInstructionCount, n}
	}
	if !IsReturn(insns[n-1]) {
		return Program{}, Error{InvalidEndOfProgram, n - 1}
	}
	for pc, ins := range insns {
		if ins.OpCode&unusedBitsMask != 0 {
			return Program{}, Error{InvalidOpcode, pc}
		}
		if code, ok := classChecks[ins.OpCode&instructionClassMask](ins, pc, n); !ok {
			return Program{}, Error{code, pc}
		}
	}
	return Program{instructions: append([]linux.BPFInstruction(nil), insns...)}, nil
}

func checkScratch(k uint32) (int, bool) {
	if k >= ScratchMemRegisters {
		return InvalidRegister, false
	}
	return 0, true
}

// checkLoad covers Ld and Ldx. Only whole words may be read, and only Ld may
// read struct seccomp_data.
func checkLoad(ins linux.BPFInstruction, _, _ int) (int, bool) {
	if ins.OpCode&loadSizeMask != W {
		return InvalidOpcode, false
	}
	switch mode := ins.OpCode & loadModeMask; {
	case mode == Imm, mode == Len:
		return 0, true
	case mode == Mem:
		return checkScratch(ins.K)
	case mode == Abs && ins.OpCode&instructionClassMask == Ld:
		if ins.K%4 != 0 || ins.K >= linux.SizeOfSeccompData {
			return InvalidLoad, false
		}
		return 0, true
	}
	return InvalidOpcode, false
}

func checkStore(ins linux.BPFInstruction, _, _ int) (int, bool) {
	if ins.OpCode&storeUnusedBitsMask != 0 {
		return InvalidOpcode, false
	}
	return checkScratch(ins.K)
}

func checkALU(ins linux.BPFInstruction, _, _ int) (int, bool) {
	fromK := ins.OpCode&srcAluJmpMask == K
	switch ins.OpCode & aluMask {
	case Add, Sub, Mul, Or, And, Lsh, Rsh, Xor:
	case Div, Mod:
		if fromK && ins.K == 0 {
			return DivisionByZero, false
		}
	case Neg:
		if !fromK {
			return InvalidOpcode, false
		}
	default:
		return InvalidOpcode, false
	}
	return 0, true
}

func checkJump(ins linux.BPFInstruction, pc, n int) (int, bool) {
	// Offsets count from the next instruction.
	lands := func(off uint32) bool {
		return uint64(pc)+1+uint64(off) < uint64(n)
	}
	switch ins.OpCode & jmpMask {
	case Ja:
		if ins.OpCode&srcAluJmpMask != K {
			return InvalidOpcode, false
		}
		if !lands(ins.K) {
			return InvalidJumpTarget, false
		}
	case Jeq, Jgt, Jge, Jset:
		if !lands(uint32(ins.JumpIfTrue)) || !lands(uint32(ins.JumpIfFalse)) {
			return InvalidJumpTarget, false
		}
	default:
		return InvalidOpcode, false
	}
	return 0, true
}

func checkReturn(ins linux.BPFInstruction, _, _ int) (int, bool) {
	if ins.OpCode&retUnusedBitsMask != 0 {
		return InvalidOpcode, false
	}
	if src := ins.OpCode & srcRetMask; src != K && src != A {
		return InvalidOpcode, false
	}
	return 0, true
}

func checkMisc(ins linux.BPFInstruction, _, _ int) (int, bool) {
	if op := ins.OpCode & miscMask; op != Tax && op != Txa {
		return InvalidOpcode, false
	}
	return 0, true
}

// Exec runs p over in and returns the value of the return instruction it
// reaches.
func Exec(p Program, in Input) (uint32, error) {
	return run(p, in, nil)
}

// ExecutionMetrics describes a single run of a program.
type ExecutionMetrics struct {
	// ReturnValue is what the program returned.
	ReturnValue uint32

	// Coverage is indexed by instruction and is true for those that ran.
	// Jumps only go forward, so no instruction runs twice.
	Coverage []bool
}

// Executed returns the number of instructions that ran.
func (e *ExecutionMetrics) Executed() int {
	n := 0
	for _, ran := range e.Coverage {
		if ran {
			n++
		}
	}
	return n
}

// String implements fmt.Stringer.
func (e *ExecutionMetrics) String() string {
	var pcs strings.Builder
	for pc, ran := range e.Coverage {
		if !ran {
			continue
		}
		if pcs.Len() > 0 {
			pcs.WriteByte(',')
		}
		pcs.WriteString(strconv.Itoa(pc))
	}
	return fmt.Sprintf("returned %#x, covered %d/%d instructions (%s)", e.ReturnValue, e.Executed(), len(e.Coverage), pcs.String())
}

// InstrumentedExec is like Exec but also records which instructions ran.
func InstrumentedExec(p Program, in Input) (ExecutionMetrics, error) {
	m := ExecutionMetrics{Coverage: make([]bool, len(p.instructions))}
	v, err := run(p, in, m.Coverage)
	m.ReturnValue = v
	return m, err
}

// machine holds the registers of the BPF virtual machine.
type machine struct {
	a, x uint32
	mem  [ScratchMemRegisters]uint32
	in   Input
}

// operand returns the source operand of an ALU or jump instruction.
func (m *machine) operand(ins linux.BPFInstruction) uint32 {
	if ins.OpCode&srcAluJmpMask == X {
		return m.x
	}
	return ins.K
}

// load returns the value an Ld or Ldx instruction reads.
func (m *machine) load(ins linux.BPFInstruction) (uint32, bool) {
	switch ins.OpCode & loadModeMask {
	case Imm:
		return ins.K, true
	case Len:
		return uint32(len(m.in)), true
	case Mem:
		return m.mem[ins.K], true
	default:
		return m.in.word(ins.K)
	}
}

// alu applies an arithmetic operation. ok is false only on division by zero;
// Compile rejects unknown operations.
func alu(op uint16, a, b uint32) (v uint32, ok bool) {
	switch op {
	case Add:
		return a + b, true
	case Sub:
		return a - b, true
	case Mul:
		return a * b, true
	case Div, Mod:
		if b == 0 {
			return 0, false
		}
		if op == Div {
			return a / b, true
		}
		return a % b, true
	case Or:
		return a | b, true
	case And:
		return a & b, true
	case Lsh:
		return a << b, true
	case Rsh:
		return a >> b, true
	case Neg:
		return -a, true
	case Xor:
		return a ^ b, true
	}
	return a, true
}

// holds evaluates the condition of a conditional jump.
func holds(op uint16, a, b uint32) bool {
	switch op {
	case Jeq:
		return a == b
	case Jgt:
		return a > b
	case Jge:
		return a >= b
	default:
		return a&b != 0
	}
}

func run(p Program, in Input, coverage []bool) (uint32, error) {
	m := machine{in: in}
	for pc := 0; pc < len(p.instructions); pc++ {
		if coverage != nil {
			coverage[pc] = true
		}
		ins := p.instructions[pc]
		switch ins.OpCode & instructionClassMask {
		case Ld, Ldx:
			v, ok := m.load(ins)
			if !ok {
				return 0, Error{InvalidLoad, pc}
			}
			if ins.OpCode&instructionClassMask == Ld {
				m.a = v
			} else {
				m.x = v
			}
		case St:
			m.mem[ins.K] = m.a
		case Stx:
			m.mem[ins.K] = m.x
		case Alu:
			v, ok := alu(ins.OpCode&aluMask, m.a, m.operand(ins))
			if !ok {
				return 0, Error{DivisionByZero, pc}
			}
			m.a = v
		case Jmp:
			switch op := ins.OpCode & jmpMask; {
			case op == Ja:
				pc += int(ins.K)
			case holds(op, m.a, m.operand(ins)):
				pc += int(ins.JumpIfTrue)
			default:
				pc += int(ins.JumpIfFalse)
			}
		case Ret:
			if ins.OpCode&srcRetMask == A {
				return m.a, nil
			}
			return ins.K, nil
		case Misc:
			if ins.OpCode&miscMask == Txa {
				m.a = m.x
			} else {
				m.x = m.a
			}
		}
	}
	return 0, Error{InvalidEndOfProgram, len(p.instructions)}
}

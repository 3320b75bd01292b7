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
	"fmt"
	"strings"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

var (
	aluSymbols = map[uint16]string{
		Add: "+", Sub: "-", Mul: "*", Div: "/", Or: "|",
		And: "&", Lsh: "<<", Rsh: ">>", Mod: "%", Xor: "^",
	}
	jmpSymbols = map[uint16]string{
		Jeq: "==", Jgt: ">", Jge: ">=", Jset: "&",
	}
)

// DecodeProgram renders a program as text, one numbered line per
// instruction. Jump targets are annotated with the absolute line they reach.
func DecodeProgram(program []linux.BPFInstruction) (string, error) {
	var sb strings.Builder
	for pc, ins := range program {
		s, err := disasm(ins, pc)
		if err != nil {
			return "", fmt.Errorf("line %d: %w", pc, err)
		}
		fmt.Fprintf(&sb, "%d: %s\n", pc, s)
	}
	return sb.String(), nil
}

// Decode renders a single instruction as text.
func Decode(ins linux.BPFInstruction) (string, error) {
	return disasm(ins, -1)
}

// disasm renders ins found at pc, or at an unknown location if pc is -1.
func disasm(ins linux.BPFInstruction, pc int) (string, error) {
	switch ins.OpCode & instructionClassMask {
	case Ld, Ldx:
		dst := "A"
		if ins.OpCode&instructionClassMask == Ldx {
			dst = "X"
		}
		if ins.OpCode&loadSizeMask != W {
			return "", undecodable(ins)
		}
		switch ins.OpCode & loadModeMask {
		case Imm:
			return fmt.Sprintf("%s <- %d", dst, ins.K), nil
		case Mem:
			return fmt.Sprintf("%s <- M[%d]", dst, ins.K), nil
		case Len:
			return dst + " <- len", nil
		case Abs:
			if dst == "A" {
				return "A <- data." + seccompField(ins.K), nil
			}
		}
		return "", undecodable(ins)
	case St:
		return fmt.Sprintf("M[%d] <- A", ins.K), nil
	case Stx:
		return fmt.Sprintf("M[%d] <- X", ins.K), nil
	case Alu:
		op := ins.OpCode & aluMask
		if op == Neg {
			return "A <- -A", nil
		}
		sym, ok := aluSymbols[op]
		if !ok {
			return "", undecodable(ins)
		}
		return fmt.Sprintf("A <- A %s %s", sym, operandText(ins)), nil
	case Jmp:
		op := ins.OpCode & jmpMask
		if op == Ja {
			return "pc += " + targetText(ins.K, pc), nil
		}
		sym, ok := jmpSymbols[op]
		if !ok {
			return "", undecodable(ins)
		}
		return fmt.Sprintf("pc += (A %s %s) ? %s : %s", sym, operandText(ins),
			targetText(uint32(ins.JumpIfTrue), pc), targetText(uint32(ins.JumpIfFalse), pc)), nil
	case Ret:
		switch ins.OpCode & srcRetMask {
		case K:
			return "ret " + linux.BPFAction(ins.K).String(), nil
		case A:
			return "ret A", nil
		}
		return "", undecodable(ins)
	default:
		switch ins.OpCode & miscMask {
		case Tax:
			return "X <- A", nil
		case Txa:
			return "A <- X", nil
		}
		return "", undecodable(ins)
	}
}

func undecodable(ins linux.BPFInstruction) error {
	return fmt.Errorf("cannot decode instruction %+v", ins)
}

func operandText(ins linux.BPFInstruction) string {
	if ins.OpCode&srcAluJmpMask == X {
		return "X"
	}
	return fmt.Sprintf("%#x", ins.K)
}

func targetText(off uint32, pc int) string {
	if pc < 0 {
		return fmt.Sprint(off)
	}
	return fmt.Sprintf("%d [%d]", off, pc+1+int(off))
}

// seccompField names the struct seccomp_data word at off.
func seccompField(off uint32) string {
	switch {
	case off == linux.SECCOMP_DATA_OFFSET_NR:
		return "nr"
	case off == linux.SECCOMP_DATA_OFFSET_ARCH:
		return "arch"
	case off == linux.SECCOMP_DATA_OFFSET_IP:
		return "instruction_pointer.lo"
	case off == linux.SECCOMP_DATA_OFFSET_IP+4:
		return "instruction_pointer.hi"
	case off >= linux.SECCOMP_DATA_OFFSET_ARGS && off < linux.SizeOfSeccompData && off%4 == 0:
		rel := off - linux.SECCOMP_DATA_OFFSET_ARGS
		half := "lo"
		if rel%8 != 0 {
			half = "hi"
		}
		return fmt.Sprintf("args[%d].%s", rel/8, half)
	}
	return fmt.Sprintf("[%d]", off)
}

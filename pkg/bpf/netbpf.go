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

	"golang.org/x/net/bpf"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

// ToRaw converts instructions to the golang.org/x/net/bpf representation.
func ToRaw(insns []linux.BPFInstruction) []bpf.RawInstruction {
	raw := make([]bpf.RawInstruction, len(insns))
	for i, ins := range insns {
		raw[i] = bpf.RawInstruction{
			Op: ins.OpCode,
			Jt: ins.JumpIfTrue,
			Jf: ins.JumpIfFalse,
			K:  ins.K,
		}
	}
	return raw
}

// FromRaw converts golang.org/x/net/bpf instructions back.
func FromRaw(raw []bpf.RawInstruction) []linux.BPFInstruction {
	insns := make([]linux.BPFInstruction, len(raw))
	for i, r := range raw {
		insns[i] = linux.BPFInstruction{
			OpCode:      r.Op,
			JumpIfTrue:  r.Jt,
			JumpIfFalse: r.Jf,
			K:           r.K,
		}
	}
	return insns
}

// Assemble converts golang.org/x/net/bpf instructions into raw form.
func Assemble(prog []bpf.Instruction) ([]linux.BPFInstruction, error) {
	raw, err := bpf.Assemble(prog)
	if err != nil {
		return nil, err
	}
	return FromRaw(raw), nil
}

// Disassemble renders each instruction in the golang.org/x/net/bpf assembler
// syntax. It fails if any instruction is not understood.
func Disassemble(insns []linux.BPFInstruction) ([]string, error) {
	decoded, ok := bpf.Disassemble(ToRaw(insns))
	if !ok {
		return nil, fmt.Errorf("program contains instructions golang.org/x/net/bpf cannot decode")
	}
	out := make([]string, len(decoded))
	for i, ins := range decoded {
		out[i] = fmt.Sprint(ins)
	}
	return out, nil
}

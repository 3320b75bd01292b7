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
	"strings"
	"testing"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

func TestDecode(t *testing.T) {
	for want, ins := range map[string]linux.BPFInstruction{
		"A <- 10":                          Stmt(Ld|Imm, 10),
		"A <- data.nr":                     Stmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_NR),
		"A <- data.arch":                   Stmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_ARCH),
		"A <- data.instruction_pointer.lo": Stmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_IP),
		"A <- data.instruction_pointer.hi": Stmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_IP+4),
		"A <- data.args[1].lo":             Stmt(Ld|Abs|W, linux.SeccompDataOffsetArgLow(1)),
		"A <- data.args[5].hi":             Stmt(Ld|Abs|W, linux.SeccompDataOffsetArgHigh(5)),
		"A <- data.[64]":                   Stmt(Ld|Abs|W, linux.SizeOfSeccompData),
		"A <- M[10]":                       Stmt(Ld|Mem, 10),
		"A <- len":                         Stmt(Ld|Len, 0),
		"X <- 10":                          Stmt(Ldx|Imm, 10),
		"X <- M[10]":                       Stmt(Ldx|Mem, 10),
		"X <- len":                         Stmt(Ldx|Len, 0),
		"M[10] <- A":                       Stmt(St, 10),
		"M[10] <- X":                       Stmt(Stx, 10),
		"A <- A + 0xa":                     Stmt(Alu|Add|K, 10),
		"A <- A & 0xff":                    Stmt(Alu|And|K, 0xff),
		"A <- A ^ X":                       Stmt(Alu|Xor|X, 0),
		"A <- A >> 0x4":                    Stmt(Alu|Rsh|K, 4),
		"A <- -A":                          Stmt(Alu|Neg, 0),
		"pc += 10":                         Stmt(Jmp|Ja, 10),
		"pc += (A == 0xa) ? 2 : 5":         Jump(Jmp|Jeq|K, 10, 2, 5),
		"pc += (A > 0xa) ? 2 : 5":          Jump(Jmp|Jgt|K, 10, 2, 5),
		"pc += (A >= X) ? 2 : 5":           Jump(Jmp|Jge|X, 0, 2, 5),
		"pc += (A & X) ? 2 : 5":            Jump(Jmp|Jset|X, 0, 2, 5),
		"ret allow":                        Stmt(Ret|K, uint32(linux.SECCOMP_RET_ALLOW)),
		"ret kill process":                 Stmt(Ret|K, uint32(linux.SECCOMP_RET_KILL_PROCESS)),
		"ret A":                            Stmt(Ret|A, 0),
		"X <- A":                           Stmt(Misc|Tax, 0),
		"A <- X":                           Stmt(Misc|Txa, 0),
	} {
		got, err := Decode(ins)
		if err != nil {
			t.Errorf("Decode(%+v) failed: %v", ins, err)
			continue
		}
		if got != want {
			t.Errorf("Decode(%+v) = %q, want %q", ins, got, want)
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	for _, ins := range []linux.BPFInstruction{
		Stmt(Ld|Ind|W, 0),
		Stmt(Ld|Abs|H, 0),
		Stmt(Ldx|Msh|B, 0),
		Stmt(Ldx|Abs|W, 0),
		Stmt(Alu|0xb0, 0),
		Stmt(Jmp|0x60, 0),
		Stmt(Ret|X, 0),
		Stmt(Misc|0x40, 0),
	} {
		if got, err := Decode(ins); err == nil {
			t.Errorf("Decode(%+v) = %q, want error", ins, got)
		}
	}
}

func TestDecodeProgram(t *testing.T) {
	got, err := DecodeProgram([]linux.BPFInstruction{
		Stmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_NR),
		Stmt(Jmp|Ja, 10),
		Jump(Jmp|Jeq|K, 10, 2, 5),
		Stmt(Ret|K, uint32(linux.SECCOMP_RET_TRAP)),
	})
	if err != nil {
		t.Fatalf("DecodeProgram() failed: %v", err)
	}
	want := strings.Join([]string{
		"0: A <- data.nr",
		"1: pc += 10 [12]",
		"2: pc += (A == 0xa) ? 2 [5] : 5 [8]",
		"3: ret trap (data=0x0)",
		"",
	}, "\n")
	if got != want {
		t.Errorf("DecodeProgram() = %q, want %q", got, want)
	}

	if _, err := DecodeProgram([]linux.BPFInstruction{Stmt(Ld|Abs|W, 0), Stmt(Ld|Len|Mem, 0)}); err == nil || !strings.Contains(err.Error(), "line 1") {
		t.Errorf("DecodeProgram() = %v, want error at line 1", err)
	}
}

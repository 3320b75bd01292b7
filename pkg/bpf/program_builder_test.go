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
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

var (
	retAllow = Stmt(Ret|K, uint32(linux.SECCOMP_RET_ALLOW))
	retTrap  = Stmt(Ret|K, uint32(linux.SECCOMP_RET_TRAP))
)

func mustInstructions(t *testing.T, b *ProgramBuilder) []linux.BPFInstruction {
	t.Helper()
	insns, err := b.Instructions()
	if err != nil {
		t.Fatalf("Instructions() failed: %v", err)
	}
	return insns
}

func TestBuilderWithoutLabels(t *testing.T) {
	b := NewProgramBuilder()
	b.AddStmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_NR)
	b.AddJump(Jmp|Jeq|K, 3, 0, 1)
	b.AddStmt(Ret|K, uint32(linux.SECCOMP_RET_ALLOW))
	b.AddStmt(Ret|K, uint32(linux.SECCOMP_RET_TRAP))
	if got := b.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
	want := []linux.BPFInstruction{
		Stmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_NR),
		Jump(Jmp|Jeq|K, 3, 0, 1),
		retAllow,
		retTrap,
	}
	if diff := cmp.Diff(want, mustInstructions(t, b)); diff != "" {
		t.Errorf("Instructions() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilderResolvesLabels(t *testing.T) {
	b := NewProgramBuilder()
	b.AddStmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_NR)
	b.AddJumpTrueLabel(Jmp|Jeq|K, 1, "allow", 0)
	b.AddJumpFalseLabel(Jmp|Jeq|K, 2, 0, "deny")
	b.AddStmt(Ld|Abs|W, linux.SeccompDataOffsetArgLow(0))
	b.AddJumpLabels(Jmp|Jeq|K, 7, "allow", "deny")
	if err := b.AddLabel("deny"); err != nil {
		t.Fatalf("AddLabel(deny) failed: %v", err)
	}
	b.AddStmt(Ret|K, uint32(linux.SECCOMP_RET_TRAP))
	if err := b.AddLabel("allow"); err != nil {
		t.Fatalf("AddLabel(allow) failed: %v", err)
	}
	b.AddStmt(Ret|K, uint32(linux.SECCOMP_RET_ALLOW))

	want := []linux.BPFInstruction{
		Stmt(Ld|Abs|W, linux.SECCOMP_DATA_OFFSET_NR),
		Jump(Jmp|Jeq|K, 1, 4, 0),
		Jump(Jmp|Jeq|K, 2, 0, 2),
		Stmt(Ld|Abs|W, linux.SeccompDataOffsetArgLow(0)),
		Jump(Jmp|Jeq|K, 7, 1, 0),
		retTrap,
		retAllow,
	}
	if diff := cmp.Diff(want, mustInstructions(t, b)); diff != "" {
		t.Errorf("Instructions() mismatch (-want +got):\n%s", diff)
	}
	// Resolution is idempotent.
	if diff := cmp.Diff(want, mustInstructions(t, b)); diff != "" {
		t.Errorf("second Instructions() mismatch (-want +got):\n%s", diff)
	}
	if _, err := Compile(want); err != nil {
		t.Errorf("Compile() failed: %v", err)
	}
}

func TestBuilderLongDirectJump(t *testing.T) {
	b := NewProgramBuilder()
	b.AddDirectJumpLabel("end")
	for i := range 300 {
		b.AddStmt(Ld|Imm|W, uint32(i))
	}
	if err := b.AddLabel("end"); err != nil {
		t.Fatalf("AddLabel(end) failed: %v", err)
	}
	b.AddStmt(Ret|A, 0)
	if got := mustInstructions(t, b)[0].K; got != 300 {
		t.Errorf("ja offset = %d, want 300", got)
	}
}

func TestBuilderJumpRange(t *testing.T) {
	for _, tc := range []struct {
		name    string
		gap     int
		wantErr bool
	}{
		{name: "at limit", gap: MaxConditionalJump},
		{name: "past limit", gap: MaxConditionalJump + 1, wantErr: true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := NewProgramBuilder()
			b.AddJumpTrueLabel(Jmp|Jeq|K, 10, "far", 0)
			for i := range tc.gap {
				b.AddStmt(Ld|Imm|W, uint32(i))
			}
			if err := b.AddLabel("far"); err != nil {
				t.Fatalf("AddLabel(far) failed: %v", err)
			}
			b.AddStmt(Ret|A, 0)
			_, err := b.Instructions()
			var rangeErr *JumpRangeError
			if got := errors.As(err, &rangeErr); got != tc.wantErr {
				t.Fatalf("Instructions() = %v, want JumpRangeError: %t", err, tc.wantErr)
			}
			if !tc.wantErr {
				return
			}
			want := &JumpRangeError{Label: "far", Line: 0, Offset: MaxConditionalJump + 1, Max: MaxConditionalJump}
			if diff := cmp.Diff(want, rangeErr); diff != "" {
				t.Errorf("JumpRangeError mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuilderReferenced(t *testing.T) {
	b := NewProgramBuilder()
	if b.Referenced("allow") {
		t.Errorf("Referenced(allow) = true before any jump")
	}
	b.AddDirectJumpLabel("allow")
	if !b.Referenced("allow") {
		t.Errorf("Referenced(allow) = false after jump")
	}
}

func TestBuilderErrors(t *testing.T) {
	for name, build := range map[string]func(*ProgramBuilder) error{
		"never placed": func(b *ProgramBuilder) error {
			b.AddJumpTrueLabel(Jmp|Jeq|K, 10, "l", 0)
			b.AddStmt(Ret|K, 0)
			return nil
		},
		"placed at end": func(b *ProgramBuilder) error {
			b.AddJumpTrueLabel(Jmp|Jeq|K, 10, "l", 0)
			return b.AddLabel("l")
		},
		"backwards": func(b *ProgramBuilder) error {
			b.AddJumpTrueLabel(Jmp|Jeq|K, 10, "l", 0)
			if err := b.AddLabel("l"); err != nil {
				return err
			}
			b.AddStmt(Ld|Abs|W, 0)
			b.AddJumpTrueLabel(Jmp|Jeq|K, 10, "l", 0)
			b.AddStmt(Ret|K, 0)
			return nil
		},
	} {
		t.Run(name, func(t *testing.T) {
			b := NewProgramBuilder()
			if err := build(b); err != nil {
				t.Fatalf("building failed: %v", err)
			}
			if _, err := b.Instructions(); err == nil {
				t.Errorf("Instructions() succeeded, want error")
			}
		})
	}
}

func TestAddLabelErrors(t *testing.T) {
	b := NewProgramBuilder()
	if err := b.AddLabel("unused"); err == nil {
		t.Errorf("AddLabel(unused) succeeded, want error")
	}
	b.AddDirectJumpLabel("twice")
	if err := b.AddLabel("twice"); err != nil {
		t.Fatalf("AddLabel(twice) failed: %v", err)
	}
	b.AddStmt(Ret|K, 0)
	if err := b.AddLabel("twice"); err == nil {
		t.Errorf("second AddLabel(twice) succeeded, want error")
	}
}

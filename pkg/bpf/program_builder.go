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
	"maps"
	"math"
	"slices"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

// Placeholders written into jump fields until their label is resolved.
const (
	placeholderCond = math.MaxUint8
	placeholderK    = math.MaxUint32
)

// JumpRangeError is returned when a jump cannot encode the distance to its
// label.
type JumpRangeError struct {
	// Label is the label that could not be reached.
	Label string

	// Line is the index of the jump instruction.
	Line int

	// Offset is the distance the jump would need to encode.
	Offset int

	// Max is the largest offset the jump can encode.
	Max int
}

// Error implements error.Error.
func (e *JumpRangeError) Error() string {
	return fmt.Sprintf("label %q is %d instructions from the jump at line %d, limit is %d", e.Label, e.Offset, e.Line, e.Max)
}

// slot is the field of a jump instruction that refers to a label.
type slot uint8

const (
	slotK slot = iota
	slotTrue
	slotFalse
)

func (s slot) max() int {
	if s == slotK {
		return placeholderK
	}
	return MaxConditionalJump
}

// patch writes off into the slot of ins. It returns false if the slot does
// not hold a placeholder.
func (s slot) patch(ins *linux.BPFInstruction, off int) bool {
	switch s {
	case slotK:
		if ins.K != placeholderK {
			return false
		}
		ins.K = uint32(off)
	case slotTrue:
		if ins.JumpIfTrue != placeholderCond {
			return false
		}
		ins.JumpIfTrue = uint8(off)
	case slotFalse:
		if ins.JumpIfFalse != placeholderCond {
			return false
		}
		ins.JumpIfFalse = uint8(off)
	}
	return true
}

type ref struct {
	line int
	slot slot
}

type label struct {
	// at is the line the label marks, or -1 while unplaced.
	at   int
	refs []ref
}

// ProgramBuilder accumulates instructions whose forward jumps may name
// labels instead of offsets. Instructions resolves the labels.
type ProgramBuilder struct {
	labels       map[string]*label
	instructions []linux.BPFInstruction
}

// NewProgramBuilder returns an empty ProgramBuilder.
func NewProgramBuilder() *ProgramBuilder {
	return &ProgramBuilder{labels: make(map[string]*label)}
}

// Len returns the number of instructions added so far.
func (b *ProgramBuilder) Len() int {
	return len(b.instructions)
}

// AddStmt appends a non-jump instruction.
func (b *ProgramBuilder) AddStmt(code uint16, k uint32) {
	b.instructions = append(b.instructions, Stmt(code, k))
}

// AddJump appends a jump with literal offsets.
func (b *ProgramBuilder) AddJump(code uint16, k uint32, jt, jf uint8) {
	b.instructions = append(b.instructions, Jump(code, k, jt, jf))
}

// AddDirectJumpLabel appends an unconditional jump to name.
func (b *ProgramBuilder) AddDirectJumpLabel(name string) {
	b.refer(name, slotK)
	b.AddJump(Jmp|Ja, placeholderK, 0, 0)
}

// AddJumpTrueLabel appends a conditional jump that goes to jtLabel when the
// condition holds.
func (b *ProgramBuilder) AddJumpTrueLabel(code uint16, k uint32, jtLabel string, jf uint8) {
	b.refer(jtLabel, slotTrue)
	b.AddJump(code, k, placeholderCond, jf)
}

// AddJumpFalseLabel appends a conditional jump that goes to jfLabel when the
// condition fails.
func (b *ProgramBuilder) AddJumpFalseLabel(code uint16, k uint32, jt uint8, jfLabel string) {
	b.refer(jfLabel, slotFalse)
	b.AddJump(code, k, jt, placeholderCond)
}

// AddJumpLabels appends a conditional jump with both targets named.
func (b *ProgramBuilder) AddJumpLabels(code uint16, k uint32, jtLabel, jfLabel string) {
	b.refer(jtLabel, slotTrue)
	b.refer(jfLabel, slotFalse)
	b.AddJump(code, k, placeholderCond, placeholderCond)
}

// Referenced reports whether a jump added so far names the label.
func (b *ProgramBuilder) Referenced(name string) bool {
	_, ok := b.labels[name]
	return ok
}

// AddLabel places name at the next instruction to be added. A location may
// carry several labels. Since jumps only go forward, the label must already
// be referenced.
func (b *ProgramBuilder) AddLabel(name string) error {
	l, ok := b.labels[name]
	switch {
	case !ok:
		return fmt.Errorf("label %q placed before any jump refers to it", name)
	case l.at >= 0:
		return fmt.Errorf("label %q already placed at line %d", name, l.at)
	}
	l.at = len(b.instructions)
	return nil
}

// Instructions resolves all labels and returns the program. On error the
// partially resolved program is returned too, which helps debugging.
func (b *ProgramBuilder) Instructions() ([]linux.BPFInstruction, error) {
	return b.instructions, b.resolve()
}

func (b *ProgramBuilder) refer(name string, s slot) {
	l := b.labels[name]
	if l == nil {
		l = &label{at: -1}
		b.labels[name] = l
	}
	l.refs = append(l.refs, ref{line: len(b.instructions), slot: s})
}

func (b *ProgramBuilder) resolve() error {
	// Sorted so that errors are deterministic.
	for _, name := range slices.Sorted(maps.Keys(b.labels)) {
		l := b.labels[name]
		switch {
		case l.at < 0:
			return fmt.Errorf("label %q is never placed", name)
		case l.at >= len(b.instructions):
			return fmt.Errorf("label %q marks the end of the program", name)
		}
		for _, r := range l.refs {
			if r.line >= l.at {
				return fmt.Errorf("jump at line %d to label %q goes backwards", r.line, name)
			}
			off := l.at - r.line - 1
			if off > r.slot.max() {
				return &JumpRangeError{Label: name, Line: r.line, Offset: off, Max: r.slot.max()}
			}
			if !r.slot.patch(&b.instructions[r.line], off) {
				return fmt.Errorf("jump at line %d has a literal where label %q was expected", r.line, name)
			}
		}
	}
	clear(b.labels)
	return nil
}

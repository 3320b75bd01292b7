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
	"errors"
	"fmt"
	"math"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/bpf"
	"vmmguard.dev/vmmguard/pkg/log"
)

const (
	// denyLabel is the label for the default action.
	denyLabel = "deny"

	// allowLabel is the label for SECCOMP_RET_ALLOW.
	allowLabel = "allow"

	// skipOneInst is the offset to take for skipping one instruction.
	skipOneInst = 1
)

func ruleNextLabel(rule int) string {
	return fmt.Sprintf("rule_%d_next", rule)
}

func groupOKLabel(rule, group int) string {
	return fmt.Sprintf("rule_%d_group_%d_ok", rule, group)
}

func chunkLabel(rule, group, chunk int) string {
	return fmt.Sprintf("rule_%d_group_%d_chunk_%d", rule, group, chunk)
}

func chunkOKLabel(rule, group, chunk int) string {
	return fmt.Sprintf("rule_%d_group_%d_chunk_%d_ok", rule, group, chunk)
}

// Compile translates a policy into a seccomp program.
//
// The program checks the architecture, then compares the syscall number
// against each rule in policy order. A matching rule either jumps straight
// to the allow return or runs its constraint groups, each of which loads an
// argument and compares it against the group's values. The first group
// without a matching value jumps to the deny return. Everything else falls
// through to the deny return too. The deny and allow returns are the last
// two instructions.
//
// Conditional jumps can only skip 255 instructions, so:
//   - a rule whose body is longer than that is entered through an
//     unconditional jump over it, and
//   - a group with more values than that is split into chunks, each ending
//     with a relay to the group's success point.
//
// Compilation is deterministic: the same policy and options always yield
// the same instructions.
func Compile(p *Policy, opts ProgramOptions) (*Program, error) {
	if opts.Arch == 0 {
		opts.Arch = NativeArch
	}
	if opts.MaxInstructions == 0 {
		opts.MaxInstructions = bpf.MaxInstructions
	}
	if opts.MaxInstructions < 0 || opts.MaxInstructions > bpf.MaxInstructions {
		return nil, fmt.Errorf("%w: instruction limit %d outside of (0, %d]", ErrProgramInvalid, opts.MaxInstructions, bpf.MaxInstructions)
	}
	if opts.DefaultAction&linux.SECCOMP_RET_ACTION_FULL == linux.SECCOMP_RET_ALLOW {
		return nil, fmt.Errorf("%w: default action can not be %v", ErrProgramInvalid, opts.DefaultAction)
	}

	rules := p.Rules()
	stats := Stats{Rules: len(rules)}
	size := programSize(rules)
	for _, r := range rules {
		if err := validateRule(r); err != nil {
			return nil, err
		}
	}
	if size > opts.MaxInstructions {
		return nil, &PolicyTooLargeError{Instructions: size, Limit: opts.MaxInstructions}
	}

	program := bpf.NewProgramBuilder()

	// Be paranoid and check that syscall is done in the expected architecture.
	//
	// A = seccomp_data.arch
	// if (A != AUDIT_ARCH) goto deny.
	program.AddStmt(bpf.Ld|bpf.Abs|bpf.W, linux.SECCOMP_DATA_OFFSET_ARCH)
	program.AddJump(bpf.Jmp|bpf.Jeq|bpf.K, opts.Arch, skipOneInst, 0)
	program.AddDirectJumpLabel(denyLabel)

	if len(rules) > 0 {
		// A = seccomp_data.nr
		program.AddStmt(bpf.Ld|bpf.Abs|bpf.W, linux.SECCOMP_DATA_OFFSET_NR)
	}
	for i, r := range rules {
		log.Debugf("syscall filter %v: %v", r.Name(), r)
		if err := emitRule(program, i, r, &stats); err != nil {
			return nil, err
		}
	}

	// Exhausted: return the default action.
	if err := program.AddLabel(denyLabel); err != nil {
		return nil, err
	}
	program.AddStmt(bpf.Ret|bpf.K, uint32(opts.DefaultAction))
	if program.Referenced(allowLabel) {
		if err := program.AddLabel(allowLabel); err != nil {
			return nil, err
		}
	}
	program.AddStmt(bpf.Ret|bpf.K, uint32(linux.SECCOMP_RET_ALLOW))

	insns, err := program.Instructions()
	if err != nil {
		var rangeErr *bpf.JumpRangeError
		if errors.As(err, &rangeErr) {
			return nil, fmt.Errorf("%w: %v", ErrPolicyTooLarge, rangeErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrProgramInvalid, err)
	}
	if len(insns) != size {
		return nil, fmt.Errorf("%w: emitted %d instructions, expected %d", ErrProgramInvalid, len(insns), size)
	}
	compiled, err := bpf.Compile(insns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProgramInvalid, err)
	}
	stats.Instructions = len(insns)
	return &Program{
		insns:         insns,
		compiled:      compiled,
		arch:          opts.Arch,
		defaultAction: opts.DefaultAction,
		stats:         stats,
	}, nil
}

func validateRule(r Rule) error {
	if uint64(r.sysno) > math.MaxUint32 {
		return fmt.Errorf("%w: syscall number %#x does not fit in 32 bits", ErrProgramInvalid, r.sysno)
	}
	seen := make(map[int]bool, len(r.groups))
	for _, g := range r.groups {
		switch {
		case g.Index < 0 || g.Index >= MaxArgs:
			return fmt.Errorf("%w: %s: argument index %d out of range [0, %d]", ErrProgramInvalid, r.Name(), g.Index, MaxArgs-1)
		case g.Op != OpEq:
			return fmt.Errorf("%w: %s: unsupported comparison %v", ErrProgramInvalid, r.Name(), g.Op)
		case len(g.Values) == 0:
			return fmt.Errorf("%w: %s: arg%d has no accepted values", ErrProgramInvalid, r.Name(), g.Index)
		case seen[g.Index]:
			return fmt.Errorf("%w: %s: arg%d constrained by two groups", ErrProgramInvalid, r.Name(), g.Index)
		}
		seen[g.Index] = true
	}
	return nil
}

// chunks splits values into runs that a conditional jump can skip over.
func chunks(values []uint32) [][]uint32 {
	var out [][]uint32
	for len(values) > bpf.MaxConditionalJump {
		out = append(out, values[:bpf.MaxConditionalJump])
		values = values[bpf.MaxConditionalJump:]
	}
	return append(out, values)
}

// groupSize returns the number of instructions emitted for g.
func groupSize(g ConstraintGroup) int {
	cs := chunks(g.Values)
	// One load, then per chunk its comparisons and the jump out of it, then
	// one relay for every chunk but the last.
	n := 1
	for _, c := range cs {
		n += len(c) + 1
	}
	return n + len(cs) - 1
}

// bodySize returns the number of instructions run after r's syscall
// comparison matched.
func bodySize(r Rule) int {
	n := 1 // ja allow
	for _, g := range r.groups {
		n += groupSize(g)
	}
	return n
}

// ruleSize returns the number of instructions emitted for r.
func ruleSize(r Rule) int {
	if body := bodySize(r); body <= bpf.MaxConditionalJump {
		return 1 + body
	}
	return 2 + bodySize(r)
}

// programSize returns the length of the program compiled from rules.
func programSize(rules []Rule) int {
	// ld arch, jeq arch, ja deny, ret deny, ret allow.
	n := 5
	if len(rules) > 0 {
		n++ // ld nr
	}
	for _, r := range rules {
		n += ruleSize(r)
	}
	return n
}

func emitRule(program *bpf.ProgramBuilder, i int, r Rule, stats *Stats) error {
	next := ruleNextLabel(i)
	body := bodySize(r)
	if body <= bpf.MaxConditionalJump {
		// if (A != sysno) goto next.
		program.AddJumpFalseLabel(bpf.Jmp|bpf.Jeq|bpf.K, uint32(r.sysno), 0, next)
	} else {
		// if (A == sysno) skip the jump to next.
		program.AddJump(bpf.Jmp|bpf.Jeq|bpf.K, uint32(r.sysno), skipOneInst, 0)
		program.AddDirectJumpLabel(next)
		stats.LongRules++
	}

	start := program.Len()
	for gi, g := range r.groups {
		if err := emitGroup(program, i, gi, g, stats); err != nil {
			return err
		}
	}
	program.AddDirectJumpLabel(allowLabel)
	if got := program.Len() - start; got != body {
		return fmt.Errorf("%w: %s emitted %d instructions, expected %d", ErrProgramInvalid, r.Name(), got, body)
	}
	return program.AddLabel(next)
}

// emitGroup emits:
//
//	A = seccomp_data.args[g.Index].lo
//	if (A == v0) goto ok
//	...
//	if (A == vn) goto ok
//	goto deny
//	ok:
//
// Groups with more values than a conditional jump can skip are split in
// chunks. Every chunk but the last ends with a jump to the next chunk and a
// relay to ok.
func emitGroup(program *bpf.ProgramBuilder, rule, gi int, g ConstraintGroup, stats *Stats) error {
	stats.Groups++
	stats.Values += len(g.Values)

	program.AddStmt(bpf.Ld|bpf.Abs|bpf.W, linux.SeccompDataOffsetArgLow(g.Index))
	ok := groupOKLabel(rule, gi)
	cs := chunks(g.Values)
	for ci, c := range cs {
		last := ci == len(cs)-1
		if ci > 0 {
			if err := program.AddLabel(chunkLabel(rule, gi, ci)); err != nil {
				return err
			}
		}
		target := ok
		if !last {
			target = chunkOKLabel(rule, gi, ci)
		}
		for _, v := range c {
			program.AddJumpTrueLabel(bpf.Jmp|bpf.Jeq|bpf.K, v, target, 0)
		}
		if last {
			program.AddDirectJumpLabel(denyLabel)
			break
		}
		program.AddDirectJumpLabel(chunkLabel(rule, gi, ci+1))
		if err := program.AddLabel(target); err != nil {
			return err
		}
		program.AddDirectJumpLabel(ok)
		stats.Relays++
	}
	return program.AddLabel(ok)
}

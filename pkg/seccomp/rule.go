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
	"fmt"
	"slices"
	"strings"
)

// MaxArgs is the number of syscall arguments a filter can inspect.
const MaxArgs = 6

// CmpOp is a comparison between a syscall argument and a constant.
type CmpOp int

const (
	// OpEq matches when the low 32 bits of the argument equal the value.
	OpEq CmpOp = iota
)

// String implements fmt.Stringer.
func (op CmpOp) String() string {
	switch op {
	case OpEq:
		return "=="
	default:
		return fmt.Sprintf("op(%d)", int(op))
	}
}

// ArgConstraint requires one syscall argument to compare to a value.
type ArgConstraint struct {
	// Index is the argument position, in [0, MaxArgs).
	Index int

	// Op is the comparison to apply.
	Op CmpOp

	// Value is compared against the low 32 bits of the argument.
	Value uint32
}

// String implements fmt.Stringer.
func (c ArgConstraint) String() string {
	return fmt.Sprintf("arg%d %v %#x", c.Index, c.Op, c.Value)
}

// ConstraintGroup holds alternatives for one argument. The group is
// satisfied when any of its values matches.
type ConstraintGroup struct {
	// Index is the argument position, in [0, MaxArgs).
	Index int

	// Op is the comparison applied to every value.
	Op CmpOp

	// Values are the accepted values, in emission order.
	Values []uint32
}

// Matches returns true if the argument satisfies the group.
func (g ConstraintGroup) Matches(arg uint64) bool {
	if g.Op != OpEq {
		return false
	}
	return slices.Contains(g.Values, uint32(arg))
}

// String implements fmt.Stringer.
func (g ConstraintGroup) String() string {
	vals := make([]string, len(g.Values))
	for i, v := range g.Values {
		vals[i] = fmt.Sprintf("%#x", v)
	}
	return fmt.Sprintf("arg%d %v {%s}", g.Index, g.Op, strings.Join(vals, ", "))
}

func (g ConstraintGroup) clone() ConstraintGroup {
	g.Values = slices.Clone(g.Values)
	return g
}

// Rule allows one syscall, optionally only when its arguments satisfy every
// constraint group. Rules are immutable; build them with NewRule.
type Rule struct {
	sysno  uintptr
	name   string
	groups []ConstraintGroup
}

// Syscall returns the syscall number the rule allows.
func (r Rule) Syscall() uintptr {
	return r.sysno
}

// Name returns the rule's name, or the syscall name if none was given.
func (r Rule) Name() string {
	if r.name != "" {
		return r.name
	}
	return SyscallName(r.sysno)
}

// Groups returns a copy of the rule's constraint groups, in AND order.
func (r Rule) Groups() []ConstraintGroup {
	groups := make([]ConstraintGroup, len(r.groups))
	for i, g := range r.groups {
		groups[i] = g.clone()
	}
	return groups
}

// Unconditional returns true if the rule allows the syscall with any
// arguments.
func (r Rule) Unconditional() bool {
	return len(r.groups) == 0
}

// Matches returns true if the rule allows the given call.
func (r Rule) Matches(d Data) bool {
	if uintptr(d.Nr) != r.sysno {
		return false
	}
	for _, g := range r.groups {
		if g.Index < 0 || g.Index >= MaxArgs || !g.Matches(d.Args[g.Index]) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer.
func (r Rule) String() string {
	if len(r.groups) == 0 {
		return r.Name()
	}
	parts := make([]string, len(r.groups))
	for i, g := range r.groups {
		parts[i] = g.String()
	}
	return fmt.Sprintf("%s(%s)", r.Name(), strings.Join(parts, " && "))
}

// RuleBuilder builds a Rule. The first error encountered is kept and
// returned by Build.
//
// For example:
//
//	rule, err := NewRule(unix.SYS_FCNTL).
//		Allow(1, linux.F_GETFD, linux.F_SETFD).
//		Build()
type RuleBuilder struct {
	rule Rule
	err  error
}

// NewRule starts a rule for the given syscall.
func NewRule(sysno uintptr) *RuleBuilder {
	return &RuleBuilder{rule: Rule{sysno: sysno}}
}

// Named sets the name used in logs and dumps.
func (b *RuleBuilder) Named(name string) *RuleBuilder {
	b.rule.name = name
	return b
}

// Allow accepts any of the given values for argument index.
func (b *RuleBuilder) Allow(index int, values ...uint32) *RuleBuilder {
	if len(values) == 0 {
		b.fail("no values given for arg%d", index)
		return b
	}
	for _, v := range values {
		b.AddConstraint(ArgConstraint{Index: index, Op: OpEq, Value: v})
	}
	return b
}

// AddConstraint adds c to the rule. A constraint on an argument that is
// already constrained becomes one more alternative in that argument's group.
// A constraint on a new argument adds a group that must also be satisfied.
func (b *RuleBuilder) AddConstraint(c ArgConstraint) *RuleBuilder {
	if b.err != nil {
		return b
	}
	if c.Index < 0 || c.Index >= MaxArgs {
		b.fail("argument index %d out of range [0, %d]", c.Index, MaxArgs-1)
		return b
	}
	if c.Op != OpEq {
		b.fail("unsupported comparison %v on arg%d", c.Op, c.Index)
		return b
	}
	for i := range b.rule.groups {
		g := &b.rule.groups[i]
		if g.Index != c.Index {
			continue
		}
		if g.Op != c.Op {
			b.fail("arg%d compared with both %v and %v", c.Index, g.Op, c.Op)
			return b
		}
		// Repeated values are harmless; keep the first occurrence.
		if !slices.Contains(g.Values, c.Value) {
			g.Values = append(g.Values, c.Value)
		}
		return b
	}
	b.rule.groups = append(b.rule.groups, ConstraintGroup{
		Index:  c.Index,
		Op:     c.Op,
		Values: []uint32{c.Value},
	})
	return b
}

// Build returns the rule, or the first error hit while building it.
func (b *RuleBuilder) Build() (Rule, error) {
	if b.err != nil {
		return Rule{}, b.err
	}
	r := b.rule
	r.groups = make([]ConstraintGroup, len(b.rule.groups))
	for i, g := range b.rule.groups {
		r.groups[i] = g.clone()
	}
	return r, nil
}

// MustBuild is like Build but panics on error. It is meant for static rule
// tables.
func (b *RuleBuilder) MustBuild() Rule {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

func (b *RuleBuilder) fail(format string, args ...any) {
	if b.err == nil {
		b.err = &AuthoringError{Syscall: b.rule.sysno, Reason: fmt.Sprintf(format, args...)}
	}
}

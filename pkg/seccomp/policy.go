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
	"strings"
)

// SyscallName gives names to system calls. It is used purely for debugging
// purposes.
//
// An alternate namer can be provided to the package at initialization time.
var SyscallName = func(sysno uintptr) string {
	return fmt.Sprintf("syscall_%d", sysno)
}

// Policy is an ordered list of rules, at most one per syscall. Earlier rules
// are checked first, so frequent syscalls belong at the front.
//
// The zero value is an empty policy, which denies everything.
type Policy struct {
	rules []Rule
	index map[uintptr]int
}

// NewPolicy returns a policy made of the given rules, in order.
func NewPolicy(rules ...Rule) (*Policy, error) {
	p := &Policy{
		rules: make([]Rule, 0, len(rules)),
		index: make(map[uintptr]int, len(rules)),
	}
	for _, r := range rules {
		if err := p.add(r); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *Policy) add(r Rule) error {
	if i, ok := p.index[r.sysno]; ok {
		return &AuthoringError{
			Syscall: r.sysno,
			Reason:  fmt.Sprintf("listed twice, rule %d would shadow rule %d", len(p.rules), i),
		}
	}
	p.index[r.sysno] = len(p.rules)
	p.rules = append(p.rules, r)
	return nil
}

// Len returns the number of rules.
func (p *Policy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.rules)
}

// Rules returns the rules in order.
func (p *Policy) Rules() []Rule {
	if p == nil {
		return nil
	}
	rules := make([]Rule, len(p.rules))
	copy(rules, p.rules)
	return rules
}

// Syscalls returns the syscall numbers the policy names, in rule order.
func (p *Policy) Syscalls() []uintptr {
	if p == nil {
		return nil
	}
	sysnos := make([]uintptr, len(p.rules))
	for i, r := range p.rules {
		sysnos[i] = r.sysno
	}
	return sysnos
}

// Lookup returns the rule for sysno.
func (p *Policy) Lookup(sysno uintptr) (Rule, bool) {
	if p == nil {
		return Rule{}, false
	}
	i, ok := p.index[sysno]
	if !ok {
		return Rule{}, false
	}
	return p.rules[i], true
}

// Allows returns true if the policy allows the given call. Compiled
// programs agree with it for calls made on the program's architecture.
func (p *Policy) Allows(d Data) bool {
	r, ok := p.Lookup(uintptr(d.Nr))
	return ok && r.Matches(d)
}

// String implements fmt.Stringer.
func (p *Policy) String() string {
	var sb strings.Builder
	for i, r := range p.Rules() {
		fmt.Fprintf(&sb, "%d: %v\n", i, r)
	}
	return sb.String()
}

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

package config

import (
	"testing"

	"vmmguard.dev/vmmguard/pkg/seccomp"
)

func TestRuleCounts(t *testing.T) {
	for _, test := range []struct {
		role Role
		abi  ABI
		want int
	}{
		{RoleMain, ABIGNU, 65},
		{RoleMain, ABIMusl, 63},
		{RoleVCPU, ABIGNU, 37},
		{RoleVCPU, ABIMusl, 36},
		{RoleIO, ABIGNU, 64},
		{RoleIO, ABIMusl, 63},
	} {
		p, err := Rules(Options{Role: test.role, ABI: test.abi})
		if err != nil {
			t.Fatalf("Rules(%v, %v) failed: %v", test.role, test.abi, err)
		}
		if got := p.Len(); got != test.want {
			t.Errorf("%v/%v: got %d rules, want %d", test.role, test.abi, got, test.want)
		}
	}
}

func TestMainCoverage(t *testing.T) {
	p, err := Rules(Options{Role: RoleMain, ABI: ABIGNU})
	if err != nil {
		t.Fatalf("Rules failed: %v", err)
	}
	names := make(map[string]bool)
	for _, r := range p.Rules() {
		names[r.Name()] = true
	}
	for _, name := range []string{
		"read", "write", "ioctl", "futex", "mmap", "openat", "clone3",
		"io_submit", "socket", "seccomp", "getrandom", "madvise", "fcntl",
		"epoll_pwait", "mkdirat", "unlinkat", "newfstatat",
	} {
		if !names[name] {
			t.Errorf("main/gnu does not allow %s", name)
		}
	}
	if got := seccomp.SyscallName(p.Rules()[0].Syscall()); got != "read" {
		t.Errorf("first rule is %s, want read", got)
	}
}

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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/google/subcommands"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/vmm/config"
	"vmmguard.dev/vmmguard/vmm/filter"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// Check implements subcommands.Command for the "check" command.
type Check struct {
	role filterconfig.Role
}

// Name implements subcommands.Command.Name.
func (*Check) Name() string {
	return "check"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Check) Synopsis() string {
	return "evaluate a syscall against the filter of a thread role"
}

// Usage implements subcommands.Command.Usage.
func (*Check) Usage() string {
	return `check [flags] <syscall> [arg0 ... arg5] - evaluate a syscall against the filter of a thread role.

The syscall is a name or a number. Arguments are numbers, or names of the
values the filter accepts, such as KVM_RUN for ioctl. Exits with status 1 if
the call is denied.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Check) SetFlags(f *flag.FlagSet) {
	roleFlag(f, &c.role)
}

// Execute implements subcommands.Command.Execute.
func (c *Check) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() < 1 || f.NArg() > 1+seccomp.MaxArgs {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	d, err := parseCall(f.Args())
	if err != nil {
		Fatalf("%v", err)
	}
	prog, err := filter.Build(conf.FilterOptions(c.role))
	if err != nil {
		Fatalf("%v", err)
	}
	action, executed, err := prog.Trace(d)
	if err != nil {
		Fatalf("%v", err)
	}
	fmt.Fprintf(os.Stdout, "%s: %v (%d instructions executed)\n", formatCall(d), action, executed)
	if action != linux.SECCOMP_RET_ALLOW {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// parseCall builds the call described by args: a syscall name or number
// followed by its arguments.
func parseCall(args []string) (seccomp.Data, error) {
	d := seccomp.Data{Arch: seccomp.NativeArch}
	sysno, ok := filterconfig.SyscallNumber(args[0])
	if !ok {
		n, err := strconv.ParseUint(args[0], 0, 32)
		if err != nil {
			return d, fmt.Errorf("unknown syscall %q", args[0])
		}
		sysno = uintptr(n)
	}
	d.Nr = uint32(sysno)
	for i, arg := range args[1:] {
		if v, _, ok := filterconfig.ValueByName(sysno, arg); ok {
			d.Args[i] = uint64(v)
			continue
		}
		v, err := strconv.ParseUint(arg, 0, 64)
		if err != nil {
			return d, fmt.Errorf("invalid argument %d %q: not a number or a value accepted by %s", i, arg, seccomp.SyscallName(sysno))
		}
		d.Args[i] = v
	}
	return d, nil
}

// formatCall formats d as a call expression, naming the values the
// catalog knows.
func formatCall(d seccomp.Data) string {
	sysno := uintptr(d.Nr)
	checked, hasChecked := filterconfig.CheckedArg(sysno)
	s := seccomp.SyscallName(sysno) + "("
	last := seccomp.MaxArgs - 1
	for last >= 0 && d.Args[last] == 0 {
		last--
	}
	for i := 0; i <= last; i++ {
		if i > 0 {
			s += ", "
		}
		if hasChecked && i == checked && d.Args[i] <= 0xffffffff {
			if name, ok := filterconfig.ValueName(sysno, uint32(d.Args[i])); ok {
				s += name
				continue
			}
		}
		s += fmt.Sprintf("%#x", d.Args[i])
	}
	return s + ")"
}

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
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/google/subcommands"

	"vmmguard.dev/vmmguard/pkg/log"
	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/pkg/seccomp/violation"
	"vmmguard.dev/vmmguard/vmm/config"
	"vmmguard.dev/vmmguard/vmm/filter"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// Explain implements subcommands.Command for the "explain" command.
type Explain struct {
	role filterconfig.Role
}

// Name implements subcommands.Command.Name.
func (*Explain) Name() string {
	return "explain"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Explain) Synopsis() string {
	return "explain seccomp audit records"
}

// Usage implements subcommands.Command.Usage.
func (*Explain) Usage() string {
	return `explain [flags] [file...] - explain seccomp audit records.

Reads kernel log or audit.log lines from the given files, or stdin, and
prints every SECCOMP record found along with what the filter of the given
role says about the call. Exits with status 1 if any record was found.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (e *Explain) SetFlags(f *flag.FlagSet) {
	roleFlag(f, &e.role)
}

// Execute implements subcommands.Command.Execute.
func (e *Explain) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	p, err := filter.Rules(conf.FilterOptions(e.role))
	if err != nil {
		Fatalf("%v", err)
	}
	ex := explainer{
		w:        os.Stdout,
		role:     e.role,
		policy:   p,
		reporter: violation.NewReporter(log.Log(), conf.ViolationLogInterval),
	}

	found := 0
	if f.NArg() == 0 {
		if found, err = ex.explain(os.Stdin); err != nil {
			Fatalf("error reading stdin: %v", err)
		}
	}
	for _, name := range f.Args() {
		file, err := os.Open(name)
		if err != nil {
			Fatalf("%v", err)
		}
		n, err := ex.explain(file)
		file.Close()
		if err != nil {
			Fatalf("error reading %q: %v", name, err)
		}
		found += n
	}
	if found > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type explainer struct {
	w        io.Writer
	role     filterconfig.Role
	policy   *seccomp.Policy
	reporter *violation.Reporter
}

// explain prints the SECCOMP records read from r and returns how many were
// found.
func (ex *explainer) explain(r io.Reader) (int, error) {
	found := 0
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var verr *violation.Error
		if !errors.As(ex.reporter.Audit(scanner.Text()), &verr) {
			continue
		}
		found++
		fmt.Fprintf(ex.w, "%v\n\t%s\n", verr.Record, ex.verdict(verr.Record))
	}
	return found, scanner.Err()
}

// verdict says what the policy makes of the call in rec. Only the syscall
// number is known, so argument checks can not be evaluated.
func (ex *explainer) verdict(rec *violation.Record) string {
	if rec.Arch != seccomp.NativeArch {
		return fmt.Sprintf("call made with foreign architecture %s, always denied", violation.ArchName(rec.Arch))
	}
	r, ok := ex.policy.Lookup(rec.Syscall)
	switch {
	case !ok:
		return fmt.Sprintf("%s is not allowed for %v threads", rec.SyscallName(), ex.role)
	case r.Unconditional():
		return fmt.Sprintf("%s is allowed for %v threads; the record comes from another role or configuration", rec.SyscallName(), ex.role)
	default:
		return fmt.Sprintf("%s is allowed for %v threads only as %v; the arguments were likely not accepted", rec.SyscallName(), ex.role, r)
	}
}

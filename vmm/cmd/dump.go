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
	"io"
	"os"

	"github.com/google/subcommands"

	"vmmguard.dev/vmmguard/pkg/bpf"
	"vmmguard.dev/vmmguard/pkg/log"
	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/vmm/config"
	"vmmguard.dev/vmmguard/vmm/filter"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// Dump implements subcommands.Command for the "dump" command.
type Dump struct {
	role   filterconfig.Role
	output string
}

// Name implements subcommands.Command.Name.
func (*Dump) Name() string {
	return "dump"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Dump) Synopsis() string {
	return "print the seccomp-bpf program of a thread role"
}

// Usage implements subcommands.Command.Usage.
func (*Dump) Usage() string {
	return `dump [flags] - print the seccomp-bpf program of a thread role.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (d *Dump) SetFlags(f *flag.FlagSet) {
	roleFlag(f, &d.role)
	f.StringVar(&d.output, "output", "fancy", "Output type: 'fancy' (human-readable with line numbers resolved), 'plain' (diffable but still human-readable output), 'netbpf' (golang.org/x/net/bpf syntax), 'bytecode' (dump raw bytecode)")
}

// Execute implements subcommands.Command.Execute.
func (d *Dump) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	prog, err := filter.Build(conf.FilterOptions(d.role))
	if err != nil {
		Fatalf("%v", err)
	}
	log.Infof("Filter for %v threads: %v", d.role, prog.Stats())
	if err := writeProgram(os.Stdout, prog, d.output); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// writeProgram writes prog to w in the given output format.
func writeProgram(w io.Writer, prog *seccomp.Program, output string) error {
	switch output {
	case "fancy":
		dump, err := bpf.DecodeProgram(prog.Instructions())
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, dump)
		return err
	case "plain":
		for _, ins := range prog.Instructions() {
			if _, err := fmt.Fprintln(w, ins.String()); err != nil {
				return err
			}
		}
		return nil
	case "netbpf":
		lines, err := bpf.Disassemble(prog.Instructions())
		if err != nil {
			return err
		}
		for i, line := range lines {
			if _, err := fmt.Fprintf(w, "%d: %s\n", i, line); err != nil {
				return err
			}
		}
		return nil
	case "bytecode":
		if _, err := w.Write(prog.Bytes()); err != nil {
			return fmt.Errorf("cannot write bytecode: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("invalid output type %q, must be 'fancy', 'plain', 'netbpf' or 'bytecode'", output)
	}
}

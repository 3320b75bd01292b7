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
	"text/tabwriter"

	"github.com/google/subcommands"

	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/vmm/config"
	"vmmguard.dev/vmmguard/vmm/filter"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// Stats implements subcommands.Command for the "stats" command.
type Stats struct{}

// Name implements subcommands.Command.Name.
func (*Stats) Name() string {
	return "stats"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Stats) Synopsis() string {
	return "print the size of every filter variant"
}

// Usage implements subcommands.Command.Usage.
func (*Stats) Usage() string {
	return `stats - compile the filter of every role, ABI and device combination and print its size.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (*Stats) SetFlags(*flag.FlagSet) {}

// Execute implements subcommands.Command.Execute.
func (*Stats) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	variants := filterconfig.Variants(conf.DenyAction)
	programs, err := filter.BuildAll(variants)
	if err != nil {
		Fatalf("%v", err)
	}
	if err := writeStats(os.Stdout, variants, programs); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

func writeStats(w io.Writer, variants []filterconfig.Options, programs []*seccomp.Program) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "OPTIONS\tRULES\tVALUES\tRELAYS\tLONG\tINSTRUCTIONS\n")
	for i, opt := range variants {
		s := programs[i].Stats()
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", opt.ConfigKey(), s.Rules, s.Values, s.Relays, s.LongRules, s.Instructions)
	}
	return tw.Flush()
}

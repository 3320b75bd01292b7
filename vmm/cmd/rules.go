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
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/google/subcommands"

	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/vmm/config"
	"vmmguard.dev/vmmguard/vmm/filter"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// Rules implements subcommands.Command for the "rules" command.
type Rules struct {
	role   filterconfig.Role
	output string
}

// RuleDoc describes one allowed syscall.
type RuleDoc struct {
	Name   string   `json:"name"`
	Number uintptr  `json:"number"`
	Args   []ArgDoc `json:"args,omitempty"`
}

// ArgDoc lists the values accepted for one argument.
type ArgDoc struct {
	Index  int      `json:"index"`
	Values []string `json:"values"`
}

type rulesOutputFunc func(io.Writer, []RuleDoc) error

var rulesOutputMap = map[string]rulesOutputFunc{
	"table": outputRulesTable,
	"json":  outputRulesJSON,
}

// Name implements subcommands.Command.Name.
func (*Rules) Name() string {
	return "rules"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Rules) Synopsis() string {
	return "list the syscalls a thread role may make"
}

// Usage implements subcommands.Command.Usage.
func (*Rules) Usage() string {
	return `rules [flags] - list the syscalls a thread role may make, in the order the filter checks them.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (r *Rules) SetFlags(f *flag.FlagSet) {
	roleFlag(f, &r.role)
	f.StringVar(&r.output, "o", "table", "Output format (table, json).")
}

// Execute implements subcommands.Command.Execute.
func (r *Rules) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	out, ok := rulesOutputMap[r.output]
	if !ok {
		Fatalf("Unsupported output format %q", r.output)
	}
	conf := args[0].(*config.Config)

	p, err := filter.Rules(conf.FilterOptions(r.role))
	if err != nil {
		Fatalf("%v", err)
	}
	if err := out(os.Stdout, ruleDocs(p)); err != nil {
		Fatalf("Error writing output: %v", err)
	}
	return subcommands.ExitSuccess
}

// ruleDocs describes the rules of p, naming values where the catalog
// knows them.
func ruleDocs(p *seccomp.Policy) []RuleDoc {
	var docs []RuleDoc
	for _, r := range p.Rules() {
		doc := RuleDoc{Name: r.Name(), Number: r.Syscall()}
		for _, g := range r.Groups() {
			arg := ArgDoc{Index: g.Index}
			for _, v := range g.Values {
				name, ok := filterconfig.ValueName(r.Syscall(), v)
				if !ok {
					name = fmt.Sprintf("%#x", v)
				}
				arg.Values = append(arg.Values, name)
			}
			doc.Args = append(doc.Args, arg)
		}
		docs = append(docs, doc)
	}
	return docs
}

func outputRulesTable(w io.Writer, docs []RuleDoc) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprint(tw, "#\tSYSCALL\tNR\tARGS\n")
	for i, doc := range docs {
		args := "any"
		if len(doc.Args) > 0 {
			parts := make([]string, len(doc.Args))
			for j, arg := range doc.Args {
				parts[j] = fmt.Sprintf("arg%d in {%s}", arg.Index, strings.Join(arg.Values, ", "))
			}
			args = strings.Join(parts, " && ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i, doc.Name, doc.Number, args)
	}
	return tw.Flush()
}

func outputRulesJSON(w io.Writer, docs []RuleDoc) error {
	j, err := json.MarshalIndent(docs, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(j))
	return err
}

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

// Package cli is the main entrypoint for vmmfilter.
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/google/subcommands"

	"vmmguard.dev/vmmguard/pkg/log"
	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/vmm/cmd"
	"vmmguard.dev/vmmguard/vmm/config"
)

// version is set by the linker.
var version = "dev"

// versionFlagName is the name of a flag that triggers printing the version.
const versionFlagName = "version"

// Main parses the command line, sets up logging and runs the selected
// command. It does not return.
func Main() {
	// Commands register their own flags, so this happens before parsing.
	forEachCmd(subcommands.Register)
	config.RegisterFlags(flag.CommandLine)
	showVersion := flag.Bool(versionFlagName, false, "show version and exit.")
	flag.Parse()

	if *showVersion {
		fmt.Fprintf(os.Stdout, "vmmfilter version %s, %s/%s\n", version, runtime.GOOS, runtime.GOARCH)
		os.Exit(0)
	}

	conf, err := config.NewFromFlags(flag.CommandLine)
	if err != nil {
		cmd.Fatalf("%v", err)
	}
	setupLogging(conf, flag.CommandLine.Arg(0))
	logBanner(conf)

	os.Exit(int(subcommands.Execute(context.Background(), conf)))
}

// setupLogging points the global logger at the file and format conf asks
// for. Fatal errors are copied to the log file as well.
func setupLogging(conf *config.Config, command string) {
	if conf.Debug {
		log.SetLevel(log.Debug)
	}
	var out io.Writer = os.Stderr
	if conf.LogFilename != "" {
		f, err := log.OpenFile(conf.LogFilename, command)
		if err != nil {
			cmd.Fatalf("error opening log file %q: %v", conf.LogFilename, err)
		}
		out = f
		cmd.ErrorLogger = f
	}
	log.SetTarget(newEmitter(conf.LogFormat, out))
}

// logBanner records the environment at debug level.
func logBanner(conf *config.Config) {
	if !log.IsLogging(log.Debug) {
		return
	}
	const rule = "**************** vmmfilter ****************"
	log.Debugf(rule)
	log.Debugf("Version %s, %s, %s, %d CPUs, %s, PID %d", version, runtime.Version(), runtime.GOARCH, runtime.NumCPU(), runtime.GOOS, os.Getpid())
	log.Debugf("Args: %v", os.Args)
	if mode, err := seccomp.Mode(); err == nil {
		log.Debugf("Seccomp mode of this thread: %d", mode)
	}
	conf.Log()
	log.Debugf(rule)
}

// forEachCmd calls cb with every vmmfilter command and its group.
func forEachCmd(cb func(cmd subcommands.Command, group string)) {
	cb(subcommands.HelpCommand(), "")
	cb(subcommands.FlagsCommand(), "")
	cb(subcommands.CommandsCommand(), "")

	cb(new(cmd.Dump), "")
	cb(new(cmd.Rules), "")
	cb(new(cmd.Check), "")
	cb(new(cmd.Stats), "")

	const debugGroup = "debug"
	cb(new(cmd.Explain), debugGroup)
}

func newEmitter(format string, out io.Writer) log.Emitter {
	w := &log.Writer{Next: out}
	switch format {
	case "text":
		return log.GoogleEmitter{Emitter: w}
	case "json":
		return log.JSONEmitter{Writer: w}
	}
	cmd.Fatalf("invalid log format %q, must be 'text' or 'json'", format)
	panic("unreachable")
}

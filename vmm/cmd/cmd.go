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

// Package cmd holds implementations of the vmmfilter commands.
package cmd

import (
	"flag"
	"fmt"
	"io"
	"os"

	"vmmguard.dev/vmmguard/pkg/log"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// ErrorLogger is where error messages should be written to, in addition to
// stderr. May be nil.
var ErrorLogger io.Writer

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	log.Warningf("FATAL ERROR: "+format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	if ErrorLogger != nil {
		fmt.Fprintf(ErrorLogger, format+"\n", args...)
	}
	os.Exit(128)
}

// roleFlag registers the --role flag on f, defaulting to the main thread.
func roleFlag(f *flag.FlagSet, role *filterconfig.Role) {
	*role = filterconfig.RoleMain
	f.Var(role, "role", "thread role whose filter is used: main, vcpu or io.")
}

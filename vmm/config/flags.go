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
	"flag"
	"fmt"
	"iter"
	"reflect"
	"time"

	"vmmguard.dev/vmmguard/pkg/seccomp"
	filterconfig "vmmguard.dev/vmmguard/vmm/filter/config"
)

// RegisterFlags registers the flags NewFromFlags reads.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "path to a TOML file with default settings. Flags given on the command line take precedence.")

	// Logging.
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr. The following variables are available: %TIMESTAMP%, %COMMAND%, %PID%.")
	flagSet.String("log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.Duration("violation-log-interval", time.Second, "minimum time between two logged seccomp violations.")

	// Filter selection.
	abi := filterconfig.HostABI()
	flagSet.Var(&abi, "abi", "C library the VMM is linked against: gnu or musl. Defaults to the host's.")
	action := seccomp.ActionDefault
	flagSet.Var(&action, "deny-action", "action taken on a denied syscall: default, kill-process, kill-thread, trap, log.")
	flagSet.Bool("vfio", false, "allow VFIO device pass-through ioctls. Loosens the main thread filter.")
	flagSet.Bool("vhost", false, "allow vhost ioctls. Loosens the main and I/O thread filters.")
	flagSet.Bool("tap", false, "allow TUN/TAP ioctls. Loosens the main and I/O thread filters.")
	flagSet.Bool("allow-unconfined", false, "run threads without a filter if the kernel refuses to install one (DO NOT USE IN PRODUCTION).")
}

// flagFields yields each Config field carrying a flag tag, in declaration
// order, keyed by flag name.
func (c *Config) flagFields() iter.Seq2[string, reflect.Value] {
	return func(yield func(string, reflect.Value) bool) {
		v := reflect.ValueOf(c).Elem()
		for _, f := range reflect.VisibleFields(v.Type()) {
			name, ok := f.Tag.Lookup("flag")
			if !ok {
				continue
			}
			if !yield(name, v.FieldByIndex(f.Index)) {
				return
			}
		}
	}
}

// lookup returns the flag registered under name. Every tagged field must
// have one.
func lookup(flagSet *flag.FlagSet, name string) *flag.Flag {
	fl := flagSet.Lookup(name)
	if fl == nil {
		panic(fmt.Sprintf("no flag registered for config field %q", name))
	}
	return fl
}

func assign(field reflect.Value, fl *flag.Flag) {
	field.Set(reflect.ValueOf(fl.Value.(flag.Getter).Get()))
}

// NewFromFlags builds a Config from flagSet. When --config names a file, its
// settings override flag defaults and flags given explicitly override both.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	fields := make(map[string]reflect.Value)
	for name, field := range conf.flagFields() {
		assign(field, lookup(flagSet, name))
		fields[name] = field
	}

	if conf.ConfigFile != "" {
		if err := conf.loadFile(conf.ConfigFile); err != nil {
			return nil, err
		}
		flagSet.Visit(func(fl *flag.Flag) {
			if field, ok := fields[fl.Name]; ok {
				assign(field, fl)
			}
		})
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ToFlags renders the settings that differ from the flag defaults as
// command line arguments.
func (c *Config) ToFlags() []string {
	defaults := flag.NewFlagSet("defaults", flag.ContinueOnError)
	RegisterFlags(defaults)

	var args []string
	for name, field := range c.flagFields() {
		if val := formatField(field); val != lookup(defaults, name).DefValue {
			args = append(args, "--"+name+"="+val)
		}
	}
	return args
}

// formatField renders field the way its flag would print it.
func formatField(field reflect.Value) string {
	if s, ok := field.Addr().Interface().(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprint(field.Interface())
}

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

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/subcommands"

	"vmmguard.dev/vmmguard/pkg/log"
)

func TestCommands(t *testing.T) {
	names := make(map[string]string)
	forEachCmd(func(c subcommands.Command, group string) {
		if prev, ok := names[c.Name()]; ok {
			t.Errorf("command %q registered in groups %q and %q", c.Name(), prev, group)
		}
		names[c.Name()] = group
		if c.Synopsis() == "" || c.Usage() == "" {
			t.Errorf("command %q has no documentation", c.Name())
		}
	})
	for _, want := range []string{"dump", "rules", "check", "stats", "explain"} {
		if _, ok := names[want]; !ok {
			t.Errorf("command %q not registered", want)
		}
	}
}

func TestNewEmitter(t *testing.T) {
	for _, format := range []string{"text", "json"} {
		var buf bytes.Buffer
		e := newEmitter(format, &buf)
		log.NewBasicLogger(log.Info, e).Infof("hello %s", format)
		if !strings.Contains(buf.String(), "hello "+format) {
			t.Errorf("%s emitter wrote %q", format, buf.String())
		}
	}
}

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

package filter

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"vmmguard.dev/vmmguard/pkg/log"
	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/pkg/seccomp/violation"
	"vmmguard.dev/vmmguard/vmm/filter/config"
)

const (
	// victimEnv selects the variant a re-executed test binary runs under.
	victimEnv = "VMMGUARD_FILTER_VICTIM"

	// victimInstallFailed is the victim's exit code when the kernel
	// refused its filter.
	victimInstallFailed = 3
)

func TestMain(m *testing.M) {
	if v := os.Getenv(victimEnv); v != "" {
		os.Exit(victim(v))
	}
	os.Exit(m.Run())
}

// victimVariants are the variants victims run under. The deny action is
// resolved by Install, so it kills the process where the kernel can.
func victimVariants() []Options {
	return config.Variants(seccomp.ActionDefault)
}

// victim runs a function that sleeps and blocks under the filter of the
// idx-th variant.
func victim(idx string) int {
	i, err := strconv.Atoi(idx)
	variants := victimVariants()
	if err != nil || i < 0 || i >= len(variants) {
		fmt.Fprintf(os.Stderr, "bad variant %q\n", idx)
		return 1
	}
	opt := variants[i]

	installed := false
	err = RunRestricted(opt, func() error {
		installed = true

		// The first sleep starts the netpoller that backs timers.
		time.Sleep(10 * time.Millisecond)

		ready := make(chan int)
		go func() {
			time.Sleep(10 * time.Millisecond)
			ready <- 42
		}()
		if v := <-ready; v != 42 {
			return fmt.Errorf("received %d, want 42", v)
		}

		<-time.After(5 * time.Millisecond)
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", opt.ConfigKey(), err)
		if !installed {
			return victimInstallFailed
		}
		return 1
	}
	fmt.Println("survived")
	return 0
}

func TestRunRestrictedBlocking(t *testing.T) {
	if !seccomp.Supported() {
		t.Skip("seccomp filters are not supported")
	}
	var logs bytes.Buffer
	reporter := violation.NewReporter(log.NewBasicLogger(log.Debug, log.GoogleEmitter{Emitter: &log.Writer{Next: &logs}}), 0)

	for i, opt := range victimVariants() {
		t.Run(opt.ConfigKey(), func(t *testing.T) {
			cmd := exec.Command(os.Args[0], "-test.run=^$")
			cmd.Env = append(os.Environ(), victimEnv+"="+strconv.Itoa(i))
			out, runErr := cmd.CombinedOutput()
			if cmd.ProcessState == nil {
				t.Fatalf("running victim: %v", runErr)
			}
			ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus)
			if !ok {
				t.Fatalf("unexpected process state %T", cmd.ProcessState.Sys())
			}
			if ws.Exited() && ws.ExitStatus() == victimInstallFailed {
				t.Skipf("victim could not install its filter: %s", out)
			}
			if err := reporter.Wait(cmd.ProcessState.Pid(), unix.WaitStatus(ws)); err != nil {
				t.Fatalf("victim did not survive: %v, logs:\n%s\noutput:\n%s", err, logs.String(), out)
			}
			if !strings.Contains(string(out), "survived") {
				t.Errorf("victim did not finish, output:\n%s", out)
			}
		})
	}
}

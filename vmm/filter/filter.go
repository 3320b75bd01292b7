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

// Package filter installs seccomp filters on VMM threads, so that a
// compromised thread can only make the syscalls its role needs.
package filter

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/log"
	"vmmguard.dev/vmmguard/pkg/seccomp"
	"vmmguard.dev/vmmguard/vmm/filter/config"
)

// ***   DEBUG TIP   ***
// If you suspect a VMM thread is getting killed due to a seccomp violation,
// change this to `true` to get SIGSYS delivered instead, which leaves the
// process alive long enough to print a stack trace.
const debugFilter = false

// Options is a re-export of the config Options type under this package.
type Options = config.Options

// Rules returns the policy for the given options.
func Rules(opt Options) (*seccomp.Policy, error) {
	return config.Rules(opt)
}

// Build compiles the filter for the given options. The deny action is
// resolved without asking the kernel; see Install.
func Build(opt Options) (*seccomp.Program, error) {
	return build(opt, config.SeccompOptions(opt))
}

func build(opt Options, seccompOpts seccomp.ProgramOptions) (*seccomp.Program, error) {
	rules, err := config.Rules(opt)
	if err != nil {
		return nil, err
	}
	prog, err := seccomp.Compile(rules, seccompOpts)
	if err != nil {
		return nil, fmt.Errorf("cannot compile seccomp program for options %v: %w", opt.ConfigKey(), err)
	}
	return prog, nil
}

// BuildAll compiles the filters for all the given options concurrently.
// Programs are returned in the same order as opts.
func BuildAll(opts []Options) ([]*seccomp.Program, error) {
	programs := make([]*seccomp.Program, len(opts))
	var errGroup errgroup.Group
	errGroup.SetLimit(runtime.GOMAXPROCS(0))
	for i, opt := range opts {
		errGroup.Go(func() error {
			prog, err := Build(opt)
			if err != nil {
				return err
			}
			programs[i] = prog
			return nil
		})
	}
	if err := errGroup.Wait(); err != nil {
		return nil, err
	}
	return programs, nil
}

// Install builds the filter for the given options and installs it on the
// calling thread. The calling goroutine stays locked to its thread.
//
// If opt.AllowUnconfined is set, failing to install the filter is logged
// and the thread keeps running unfiltered. Errors in the policy itself are
// always returned.
func Install(opt Options) error {
	for _, warning := range config.Warnings(opt) {
		log.Warningf("*** SECCOMP WARNING: %s", warning)
	}
	runtime.LockOSThread()

	seccompOpts := config.SeccompOptions(opt)
	if debugFilter {
		log.Infof("Seccomp filter debugging is enabled; seccomp failures will result in SIGSYS.")
		seccompOpts.DefaultAction = linux.SECCOMP_RET_TRAP
	} else if opt.DenyAction == seccomp.ActionDefault {
		action, err := seccomp.DefaultAction()
		if err != nil {
			return unconfined(opt, fmt.Errorf("cannot query available seccomp actions: %w", err))
		}
		seccompOpts.DefaultAction = action
	}
	prog, err := build(opt, seccompOpts)
	if err != nil {
		return err
	}
	log.Debugf("Installing %v thread filter for options %v", opt.Role, opt.ConfigKey())
	if err := seccomp.Install(prog); err != nil {
		return unconfined(opt, err)
	}
	return nil
}

// unconfined returns err, unless opt allows running without a filter.
func unconfined(opt Options, err error) error {
	if !opt.AllowUnconfined {
		return err
	}
	if errors.Is(err, seccomp.ErrInstallationRejected) {
		log.Warningf("*** SECCOMP WARNING: %v thread running unconfined: %v", opt.Role, err)
		return nil
	}
	return err
}

// RunRestricted runs fn on a new thread with the filter for opt installed,
// and returns fn's error. The thread is never handed back to the Go
// scheduler, so it exits once fn returns.
func RunRestricted(opt Options, fn func() error) error {
	if err := opt.Validate(); err != nil {
		return err
	}
	errCh := make(chan error, 1)
	go func() {
		// Never unlocked.
		runtime.LockOSThread()
		if err := Install(opt); err != nil {
			errCh <- err
			return
		}
		errCh <- fn()
	}()
	return <-errCh
}

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

// Package seccomp compiles allow-list policies into seccomp-BPF programs and
// installs them on the calling thread. Only little endian systems are
// supported.
package seccomp

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/log"
)

// Install attaches p to the calling thread and leaves the goroutine locked
// there. Threads the caller spawns afterwards inherit the filter.
//
// A denied call is answered with p.DefaultAction(). SECCOMP_RET_TRAP delivers
// SIGSYS, which the process may ignore and keep running; the call itself is
// still blocked and an audit record is still written.
func Install(p *Program) error {
	log.Infof("Installing seccomp filter: %v (action=%v)", p.stats, p.defaultAction)
	if log.IsLogging(log.Debug) {
		log.Debugf("Seccomp program dump:\n%s", p)
	}
	if err := SetFilter(p.insns); err != nil {
		return err
	}
	log.Infof("Seccomp filter installed on thread %d.", unix.Gettid())
	return nil
}

// DefaultAction picks the strongest deny action the kernel offers:
// SECCOMP_RET_KILL_PROCESS when available, SECCOMP_RET_TRAP otherwise.
// SECCOMP_RET_KILL_THREAD is never chosen because a process missing one
// thread tends to hang.
func DefaultAction() (linux.BPFAction, error) {
	ok, err := actionAvailable(linux.SECCOMP_RET_KILL_PROCESS)
	switch {
	case err != nil:
		return 0, err
	case ok:
		return linux.SECCOMP_RET_KILL_PROCESS, nil
	default:
		return linux.SECCOMP_RET_TRAP, nil
	}
}

// Mode returns the seccomp mode of the calling thread, one of the
// linux.SECCOMP_MODE_* values.
func Mode() (int, error) {
	mode, err := unix.PrctlRetInt(unix.PR_GET_SECCOMP, 0, 0, 0, 0)
	if err != nil {
		return 0, fmt.Errorf("prctl(PR_GET_SECCOMP): %w", err)
	}
	return mode, nil
}

// Supported reports whether the kernel was built with seccomp.
func Supported() bool {
	_, err := Mode()
	return !errors.Is(err, unix.EINVAL)
}

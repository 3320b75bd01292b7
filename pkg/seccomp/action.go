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

package seccomp

import (
	"fmt"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
)

// Action selects what happens to a thread that makes a denied call.
type Action int

// Actions. The zero value picks the strongest action the kernel supports.
const (
	// ActionDefault kills the process if the kernel supports it, and traps
	// otherwise.
	ActionDefault Action = iota

	// ActionKillProcess kills the whole process.
	ActionKillProcess

	// ActionKillThread kills the offending thread only.
	ActionKillThread

	// ActionTrap delivers SIGSYS to the offending thread.
	ActionTrap

	// ActionLog lets the call through and logs it. Only meant for building
	// policies.
	ActionLog
)

var actionNames = map[Action]string{
	ActionDefault:     "default",
	ActionKillProcess: "kill-process",
	ActionKillThread:  "kill-thread",
	ActionTrap:        "trap",
	ActionLog:         "log",
}

// ParseAction parses the name of an Action.
func ParseAction(s string) (Action, error) {
	for a, name := range actionNames {
		if name == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("invalid seccomp action %q", s)
}

// String implements fmt.Stringer.
func (a Action) String() string {
	if name, ok := actionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Get implements flag.Getter.
func (a *Action) Get() any {
	return *a
}

// Set implements flag.Value.
func (a *Action) Set(v string) error {
	parsed, err := ParseAction(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(b []byte) error {
	return a.Set(string(b))
}

// Static returns the BPF action without asking the kernel. ActionDefault
// maps to SECCOMP_RET_KILL_PROCESS.
func (a Action) Static() linux.BPFAction {
	switch a {
	case ActionKillThread:
		return linux.SECCOMP_RET_KILL_THREAD
	case ActionTrap:
		return linux.SECCOMP_RET_TRAP
	case ActionLog:
		return linux.SECCOMP_RET_LOG
	default:
		return linux.SECCOMP_RET_KILL_PROCESS
	}
}

// BPF returns the BPF action, checking with the kernel what ActionDefault
// resolves to.
func (a Action) BPF() (linux.BPFAction, error) {
	if a == ActionDefault {
		return DefaultAction()
	}
	return a.Static(), nil
}

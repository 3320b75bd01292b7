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
	"fmt"
	"path/filepath"
	"strings"

	"vmmguard.dev/vmmguard/pkg/seccomp"
)

// Role is the job of a VMM thread. Each role gets its own filter.
type Role int

const (
	// RoleMain is the control thread: VM setup, the management socket and
	// block files. It gets the union of every other role.
	RoleMain Role = iota

	// RoleVCPU runs one virtual CPU: KVM_RUN and register state.
	RoleVCPU

	// RoleIO serves device back-ends: aio, networking, vhost and tap.
	RoleIO
)

var roleNames = []string{"main", "vcpu", "io"}

// Roles lists every role.
var Roles = []Role{RoleMain, RoleVCPU, RoleIO}

// String implements fmt.Stringer.
func (r Role) String() string {
	if r >= 0 && int(r) < len(roleNames) {
		return roleNames[r]
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// ParseRole parses the name of a Role.
func ParseRole(s string) (Role, error) {
	for i, name := range roleNames {
		if name == s {
			return Role(i), nil
		}
	}
	return 0, fmt.Errorf("invalid thread role %q, must be one of %s", s, strings.Join(roleNames, ", "))
}

// Get implements flag.Getter.
func (r *Role) Get() any {
	return *r
}

// Set implements flag.Value.
func (r *Role) Set(v string) error {
	parsed, err := ParseRole(v)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ABI is the C library the VMM is linked against. glibc and musl issue
// different syscalls for the same library calls.
type ABI int

const (
	// ABIGNU is glibc.
	ABIGNU ABI = iota

	// ABIMusl is musl libc.
	ABIMusl
)

var abiNames = []string{"gnu", "musl"}

// ABIs lists every ABI.
var ABIs = []ABI{ABIGNU, ABIMusl}

// String implements fmt.Stringer.
func (a ABI) String() string {
	if a >= 0 && int(a) < len(abiNames) {
		return abiNames[a]
	}
	return fmt.Sprintf("abi(%d)", int(a))
}

// ParseABI parses the name of an ABI.
func ParseABI(s string) (ABI, error) {
	for i, name := range abiNames {
		if name == s {
			return ABI(i), nil
		}
	}
	return 0, fmt.Errorf("invalid ABI %q, must be one of %s", s, strings.Join(abiNames, ", "))
}

// Get implements flag.Getter.
func (a *ABI) Get() any {
	return *a
}

// Set implements flag.Value.
func (a *ABI) Set(v string) error {
	parsed, err := ParseABI(v)
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *ABI) UnmarshalText(b []byte) error {
	return a.Set(string(b))
}

// MarshalText implements encoding.TextMarshaler.
func (a ABI) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// muslLoaders matches the dynamic loader musl installs.
const muslLoaders = "/lib/ld-musl-*.so.1"

// HostABI guesses the C library of the host: musl if its loader is
// installed, glibc otherwise.
func HostABI() ABI {
	if matches, _ := filepath.Glob(muslLoaders); len(matches) > 0 {
		return ABIMusl
	}
	return ABIGNU
}

// Options are seccomp filter related options.
type Options struct {
	// Role selects the thread profile.
	Role Role

	// ABI selects the C library variant of the profile.
	ABI ABI

	// VFIO allows the ioctls used for device pass-through.
	VFIO bool

	// Vhost allows the vhost ioctls used by in-kernel virtio back-ends.
	Vhost bool

	// Tap allows the TUN/TAP ioctls used by virtio-net.
	Tap bool

	// DenyAction is what happens to a thread that makes a denied call.
	DenyAction seccomp.Action

	// AllowUnconfined lets a thread keep running without a filter when the
	// kernel refuses to install one.
	AllowUnconfined bool
}

// Validate checks that the options name known values.
func (opt Options) Validate() error {
	if opt.Role < 0 || int(opt.Role) >= len(roleNames) {
		return fmt.Errorf("invalid thread role %v", opt.Role)
	}
	if opt.ABI < 0 || int(opt.ABI) >= len(abiNames) {
		return fmt.Errorf("invalid ABI %v", opt.ABI)
	}
	if _, err := seccomp.ParseAction(opt.DenyAction.String()); err != nil {
		return err
	}
	return nil
}

// ConfigKey returns a string that uniquely identifies the program the
// options compile to. Options that do not change the program, such as
// AllowUnconfined, are not part of the key.
func (opt Options) ConfigKey() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "role=%v,abi=%v", opt.Role, opt.ABI)
	fmt.Fprintf(&sb, ",vfio=%t,vhost=%t,tap=%t", opt.VFIO, opt.Vhost, opt.Tap)
	fmt.Fprintf(&sb, ",action=%v", opt.DenyAction)
	return sb.String()
}

// Warnings returns a set of warnings that may be useful to display to the
// user when the given options are used.
func Warnings(opt Options) []string {
	var warnings []string
	if opt.VFIO {
		warnings = append(warnings, "VFIO device pass-through enabled: syscall filters less restrictive!")
	}
	if opt.Vhost {
		warnings = append(warnings, "vhost back-ends enabled: syscall filters less restrictive!")
	}
	if opt.Tap {
		warnings = append(warnings, "tap networking enabled: syscall filters less restrictive!")
	}
	if opt.DenyAction == seccomp.ActionLog {
		warnings = append(warnings, "log action selected: denied syscalls are allowed and only logged!")
	}
	if opt.AllowUnconfined {
		warnings = append(warnings, "unconfined fallback enabled: threads run unfiltered if installation fails!")
	}
	return warnings
}

// Variants returns every set of options a VMM may run threads with, for
// the given deny action. Device toggles are only expanded for the roles
// whose filters they change.
func Variants(action seccomp.Action) []Options {
	type expandFn func(opt Options) []Options
	toggle := func(set func(opt *Options, on bool)) expandFn {
		return func(opt Options) []Options {
			yes, no := opt, opt
			set(&yes, true)
			set(&no, false)
			return []Options{yes, no}
		}
	}
	opts := []Options{{DenyAction: action}}
	for _, fn := range []expandFn{
		// Expand all roles.
		func(opt Options) []Options {
			var newOpts []Options
			for _, role := range Roles {
				optCopy := opt
				optCopy.Role = role
				newOpts = append(newOpts, optCopy)
			}
			return newOpts
		},

		// Expand all ABIs.
		func(opt Options) []Options {
			var newOpts []Options
			for _, abi := range ABIs {
				optCopy := opt
				optCopy.ABI = abi
				newOpts = append(newOpts, optCopy)
			}
			return newOpts
		},

		// Expand VFIO vs not, main thread only.
		func(opt Options) []Options {
			if opt.Role != RoleMain {
				return []Options{opt}
			}
			return toggle(func(opt *Options, on bool) { opt.VFIO = on })(opt)
		},

		// Expand vhost and tap vs not, vCPU threads excepted.
		func(opt Options) []Options {
			if opt.Role == RoleVCPU {
				return []Options{opt}
			}
			return toggle(func(opt *Options, on bool) { opt.Vhost = on })(opt)
		},
		func(opt Options) []Options {
			if opt.Role == RoleVCPU {
				return []Options{opt}
			}
			return toggle(func(opt *Options, on bool) { opt.Tap = on })(opt)
		},
	} {
		var newOpts []Options
		for _, opt := range opts {
			newOpts = append(newOpts, fn(opt)...)
		}
		opts = newOpts
	}
	return opts
}

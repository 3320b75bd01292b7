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

// Package config defines all syscalls the VMM threads are allowed to make
// to the host.
//
// The allow lists are tables of rows, one per syscall, each naming the roles
// and C library ABIs that make the call. Rows are ordered by how often the
// call is made, since the filter checks them in order. Calls whose
// arguments are checked carry a table of accepted values, again tagged with
// roles, ABIs and the device back-end that needs them.
package config

import (
	"fmt"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/devices"
	"vmmguard.dev/vmmguard/pkg/devices/kvm"
	"vmmguard.dev/vmmguard/pkg/devices/tap"
	"vmmguard.dev/vmmguard/pkg/devices/vfio"
	"vmmguard.dev/vmmguard/pkg/devices/vhost"
	"vmmguard.dev/vmmguard/pkg/seccomp"
)

// roleSet is a set of roles.
type roleSet uint8

func roles(rs ...Role) roleSet {
	var s roleSet
	for _, r := range rs {
		s |= 1 << r
	}
	return s
}

func (s roleSet) has(r Role) bool {
	return s&(1<<r) != 0
}

// abiSet is a set of ABIs.
type abiSet uint8

func (s abiSet) has(a ABI) bool {
	return s&(1<<a) != 0
}

// Role and ABI sets used by the tables.
var (
	allRoles  = roles(RoleMain, RoleVCPU, RoleIO)
	mainOnly  = roles(RoleMain)
	mainVCPU  = roles(RoleMain, RoleVCPU)
	mainIO    = roles(RoleMain, RoleIO)
	allABIs   = abiSet(1<<ABIGNU | 1<<ABIMusl)
	gnuOnly   = abiSet(1 << ABIGNU)
	muslOnly  = abiSet(1 << ABIMusl)
	anyDevice = feature(0)
)

// feature is a device back-end whose ioctls are only allowed when enabled.
type feature int

const (
	featureVFIO feature = iota + 1
	featureVhost
	featureTap
)

func (f feature) enabled(opt Options) bool {
	switch f {
	case featureVFIO:
		return opt.VFIO
	case featureVhost:
		return opt.Vhost
	case featureTap:
		return opt.Tap
	default:
		return true
	}
}

// value is an accepted argument value.
type value struct {
	val     uint32
	name    string
	roles   roleSet
	abis    abiSet
	feature feature
}

func (v value) selected(opt Options) bool {
	return v.roles.has(opt.Role) && v.abis.has(opt.ABI) && v.feature.enabled(opt)
}

// row allows one syscall.
type row struct {
	sysno uintptr
	name  string
	roles roleSet
	abis  abiSet

	// arg is the argument checked against values. Rows without values
	// allow any arguments.
	arg    int
	values []value
}

// allow returns an unconstrained row.
func allow(sysno uintptr, name string, rs roleSet, abis abiSet) row {
	return row{sysno: sysno, name: name, roles: rs, abis: abis}
}

// allowArg returns a row accepting the given values for argument arg.
func allowArg(sysno uintptr, name string, rs roleSet, abis abiSet, arg int, values []value) row {
	return row{sysno: sysno, name: name, roles: rs, abis: abis, arg: arg, values: values}
}

// fromIoctls tags device ioctls for use in a value table.
func fromIoctls(ioctls []devices.Ioctl, rs roleSet, f feature) []value {
	values := make([]value, len(ioctls))
	for i, ioctl := range ioctls {
		values[i] = value{val: ioctl.Request, name: ioctl.Name, roles: rs, abis: allABIs, feature: f}
	}
	return values
}

// concat joins value tables.
func concat(tables ...[]value) []value {
	var values []value
	for _, t := range tables {
		values = append(values, t...)
	}
	return values
}

// fcntlValues are the accepted fcntl(2) commands.
var fcntlValues = []value{
	{val: linux.F_DUPFD_CLOEXEC, name: "F_DUPFD_CLOEXEC", roles: allRoles, abis: allABIs},
	{val: linux.F_SETFD, name: "F_SETFD", roles: allRoles, abis: allABIs},
	{val: linux.F_GETFD, name: "F_GETFD", roles: allRoles, abis: allABIs},
	{val: linux.F_SETFL, name: "F_SETFL", roles: allRoles, abis: allABIs},
}

// futexValues are the accepted futex(2) operations. Only private futexes
// are used.
var futexValues = []value{
	{val: linux.FUTEX_WAIT_BITSET_REALTIME, name: "FUTEX_WAIT_BITSET_PRIVATE|FUTEX_CLOCK_REALTIME", roles: allRoles, abis: gnuOnly},
	{val: linux.FUTEX_WAKE_PRIVATE, name: "FUTEX_WAKE_PRIVATE", roles: allRoles, abis: allABIs},
	{val: linux.FUTEX_WAIT_PRIVATE, name: "FUTEX_WAIT_PRIVATE", roles: allRoles, abis: allABIs},
	{val: linux.FUTEX_CMP_REQUEUE_PRIVATE, name: "FUTEX_CMP_REQUEUE_PRIVATE", roles: allRoles, abis: allABIs},
	{val: linux.FUTEX_WAKE_OP_PRIVATE, name: "FUTEX_WAKE_OP_PRIVATE", roles: allRoles, abis: allABIs},
	{val: linux.FUTEX_WAIT_BITSET_PRIVATE, name: "FUTEX_WAIT_BITSET_PRIVATE", roles: allRoles, abis: allABIs},
}

// madviseValues are the accepted madvise(2) advice values.
var madviseValues = []value{
	{val: linux.MADV_FREE, name: "MADV_FREE", roles: allRoles, abis: muslOnly},
	{val: linux.MADV_DONTNEED, name: "MADV_DONTNEED", roles: allRoles, abis: allABIs},
	{val: linux.MADV_WILLNEED, name: "MADV_WILLNEED", roles: allRoles, abis: allABIs},
	{val: linux.MADV_DONTDUMP, name: "MADV_DONTDUMP", roles: allRoles, abis: allABIs},
	{val: linux.MADV_HUGEPAGE, name: "MADV_HUGEPAGE", roles: allRoles, abis: allABIs},
	{val: linux.MADV_NOHUGEPAGE, name: "MADV_NOHUGEPAGE", roles: allRoles, abis: allABIs},
	{val: linux.MADV_COLLAPSE, name: "MADV_COLLAPSE", roles: allRoles, abis: allABIs},
}

// cloneValues are the accepted clone(2) flags. Every thread may start Go
// runtime threads; only main starts C library threads.
var cloneValues = []value{
	{val: linux.CLONE_GO_THREAD, name: "CLONE_VM|CLONE_FS|CLONE_FILES|CLONE_SIGHAND|CLONE_SYSVSEM|CLONE_THREAD", roles: allRoles, abis: allABIs},
	{val: linux.CLONE_MUSL_THREAD, name: "CLONE_VM|CLONE_FS|CLONE_FILES|CLONE_SIGHAND|CLONE_SYSVSEM|CLONE_THREAD|CLONE_SETTLS|CLONE_PARENT_SETTID|CLONE_CHILD_CLEARTID|CLONE_DETACHED", roles: mainOnly, abis: muslOnly},
}

// seccompValues lets a thread narrow its own filter further.
var seccompValues = []value{
	{val: linux.SECCOMP_SET_MODE_FILTER, name: "SECCOMP_SET_MODE_FILTER", roles: allRoles, abis: allABIs},
}

// ttyIoctls are the terminal ioctls every thread may make.
var ttyIoctls = []devices.Ioctl{
	{Name: "TCGETS", Request: linux.TCGETS},
	{Name: "TCSETS", Request: linux.TCSETS},
	{Name: "TIOCGWINSZ", Request: linux.TIOCGWINSZ},
	{Name: "FIOCLEX", Request: linux.FIOCLEX},
	{Name: "FIONBIO", Request: linux.FIONBIO},
}

// ioctlValues are the accepted ioctl(2) requests. KVM_RUN comes right after
// the terminal requests since vCPU threads make it constantly. Requests
// listed twice keep their first position.
var ioctlValues = concat(
	fromIoctls(ttyIoctls, allRoles, anyDevice),
	[]value{
		{val: kvm.KVM_RUN, name: "KVM_RUN", roles: mainVCPU, abis: allABIs},
		{val: kvm.KVM_SIGNAL_MSI, name: "KVM_SIGNAL_MSI", roles: mainIO, abis: allABIs},
	},
	fromIoctls(kvm.VMIoctls(), mainOnly, anyDevice),
	fromIoctls(vhost.Ioctls(), mainIO, featureVhost),
	fromIoctls(tap.Ioctls(), mainIO, featureTap),
	fromIoctls(vfio.Ioctls(), mainOnly, featureVFIO),
	fromIoctls(kvm.VCPUIoctls(), mainVCPU, anyDevice),
	fromIoctls(kvm.DirtyLogIoctls(), mainOnly, anyDevice),
)

// Rules returns the policy for the given options.
func Rules(opt Options) (*seccomp.Policy, error) {
	if err := opt.Validate(); err != nil {
		return nil, err
	}
	var rules []seccomp.Rule
	for _, r := range syscallTable {
		if !r.roles.has(opt.Role) || !r.abis.has(opt.ABI) {
			continue
		}
		b := seccomp.NewRule(r.sysno).Named(r.name)
		if r.values != nil {
			var vals []uint32
			for _, v := range r.values {
				if v.selected(opt) {
					vals = append(vals, v.val)
				}
			}
			if len(vals) == 0 {
				return nil, fmt.Errorf("%s: no accepted values for role %v, ABI %v", r.name, opt.Role, opt.ABI)
			}
			b.Allow(r.arg, vals...)
		}
		rule, err := b.Build()
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return seccomp.NewPolicy(rules...)
}

// SeccompOptions returns the seccomp program options to use for the filter.
// The deny action is resolved without asking the kernel, so the result
// only depends on opt.
func SeccompOptions(opt Options) seccomp.ProgramOptions {
	opts := seccomp.DefaultProgramOptions()
	opts.DefaultAction = opt.DenyAction.Static()
	return opts
}

// syscallNames maps syscall numbers to the names used in the tables.
var syscallNames = func() map[uintptr]string {
	names := make(map[uintptr]string, len(syscallTable))
	for _, r := range syscallTable {
		names[r.sysno] = r.name
	}
	return names
}()

// valueNames maps syscall numbers and values to the names used in the
// tables.
var valueNames = func() map[uintptr]map[uint32]string {
	names := make(map[uintptr]map[uint32]string)
	for _, r := range syscallTable {
		if r.values == nil {
			continue
		}
		m := make(map[uint32]string, len(r.values))
		for _, v := range r.values {
			if _, ok := m[v.val]; !ok {
				m[v.val] = v.name
			}
		}
		names[r.sysno] = m
	}
	return names
}()

// SyscallName returns the name of sysno, if it appears in any profile.
func SyscallName(sysno uintptr) (string, bool) {
	name, ok := syscallNames[sysno]
	return name, ok
}

// SyscallNumber returns the number of the syscall the tables call name.
func SyscallNumber(name string) (uintptr, bool) {
	for _, r := range syscallTable {
		if r.name == name {
			return r.sysno, true
		}
	}
	return 0, false
}

// CheckedArg returns the index of the argument checked for sysno, if any.
func CheckedArg(sysno uintptr) (int, bool) {
	for _, r := range syscallTable {
		if r.sysno == sysno {
			return r.arg, r.values != nil
		}
	}
	return 0, false
}

// ValueByName returns the value named name among those accepted for
// sysno's checked argument, and the index of that argument.
func ValueByName(sysno uintptr, name string) (uint32, int, bool) {
	for _, r := range syscallTable {
		if r.sysno != sysno {
			continue
		}
		for _, v := range r.values {
			if v.name == name {
				return v.val, r.arg, true
			}
		}
		return 0, 0, false
	}
	return 0, 0, false
}

// ValueName returns the name of a value accepted for sysno's checked
// argument, such as "KVM_RUN" for an ioctl request.
func ValueName(sysno uintptr, v uint32) (string, bool) {
	name, ok := valueNames[sysno][v]
	return name, ok
}

func init() {
	seccomp.SyscallName = func(sysno uintptr) string {
		if name, ok := syscallNames[sysno]; ok {
			return name
		}
		return fmt.Sprintf("syscall_%d", sysno)
	}
}

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

package kvm

import (
	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/devices"
)

// x86 ioctls. Sizes are those of the x86_64 argument structs.
var (
	KVM_GET_SUPPORTED_CPUID = linux.IOWR(KVMIO, 0x05, 8)
	KVM_GET_IRQCHIP         = linux.IOWR(KVMIO, 0x62, 520)
	KVM_GET_CLOCK           = linux.IOR(KVMIO, 0x7c, 48)
	KVM_GET_REGS            = linux.IOR(KVMIO, 0x81, 144)
	KVM_SET_REGS            = linux.IOW(KVMIO, 0x82, 144)
	KVM_GET_SREGS           = linux.IOR(KVMIO, 0x83, 312)
	KVM_SET_SREGS           = linux.IOW(KVMIO, 0x84, 312)
	KVM_GET_MSRS            = linux.IOWR(KVMIO, 0x88, 8)
	KVM_SET_MSRS            = linux.IOW(KVMIO, 0x89, 8)
	KVM_GET_LAPIC           = linux.IOR(KVMIO, 0x8e, 1024)
	KVM_SET_LAPIC           = linux.IOW(KVMIO, 0x8f, 1024)
	KVM_SET_CPUID2          = linux.IOW(KVMIO, 0x90, 8)
	KVM_GET_PIT2            = linux.IOR(KVMIO, 0x9f, 112)
	KVM_GET_VCPU_EVENTS     = linux.IOR(KVMIO, 0x9f, 64)
	KVM_SET_VCPU_EVENTS     = linux.IOW(KVMIO, 0xa0, 64)
	KVM_GET_DEBUGREGS       = linux.IOR(KVMIO, 0xa1, 128)
	KVM_SET_DEBUGREGS       = linux.IOW(KVMIO, 0xa2, 128)
	KVM_GET_XSAVE           = linux.IOR(KVMIO, 0xa4, 4096)
	KVM_SET_XSAVE           = linux.IOW(KVMIO, 0xa5, 4096)
	KVM_GET_XCRS            = linux.IOR(KVMIO, 0xa6, 392)
	KVM_SET_XCRS            = linux.IOW(KVMIO, 0xa7, 392)
)

func archVMIoctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "KVM_GET_PIT2", Request: KVM_GET_PIT2},
		{Name: "KVM_GET_CLOCK", Request: KVM_GET_CLOCK},
		{Name: "KVM_GET_IRQCHIP", Request: KVM_GET_IRQCHIP},
	}
}

func archVCPUIoctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "KVM_GET_VCPU_EVENTS", Request: KVM_GET_VCPU_EVENTS},
		{Name: "KVM_GET_REGS", Request: KVM_GET_REGS},
		{Name: "KVM_GET_SREGS", Request: KVM_GET_SREGS},
		{Name: "KVM_GET_XSAVE", Request: KVM_GET_XSAVE},
		{Name: "KVM_GET_DEBUGREGS", Request: KVM_GET_DEBUGREGS},
		{Name: "KVM_GET_XCRS", Request: KVM_GET_XCRS},
		{Name: "KVM_GET_LAPIC", Request: KVM_GET_LAPIC},
		{Name: "KVM_GET_MSRS", Request: KVM_GET_MSRS},
		{Name: "KVM_GET_SUPPORTED_CPUID", Request: KVM_GET_SUPPORTED_CPUID},
		{Name: "KVM_SET_CPUID2", Request: KVM_SET_CPUID2},
		{Name: "KVM_SET_MP_STATE", Request: KVM_SET_MP_STATE},
		{Name: "KVM_SET_SREGS", Request: KVM_SET_SREGS},
		{Name: "KVM_SET_REGS", Request: KVM_SET_REGS},
		{Name: "KVM_SET_XSAVE", Request: KVM_SET_XSAVE},
		{Name: "KVM_SET_XCRS", Request: KVM_SET_XCRS},
		{Name: "KVM_SET_DEBUGREGS", Request: KVM_SET_DEBUGREGS},
		{Name: "KVM_SET_LAPIC", Request: KVM_SET_LAPIC},
		{Name: "KVM_SET_MSRS", Request: KVM_SET_MSRS},
		{Name: "KVM_SET_VCPU_EVENTS", Request: KVM_SET_VCPU_EVENTS},
	}
}

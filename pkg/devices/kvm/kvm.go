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

// Package kvm exports the /dev/kvm ioctl requests a VMM makes, from
// linux/kvm.h.
package kvm

import (
	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/devices"
)

// KVMIO is the ioctl type of every KVM request.
const KVMIO = 0xAE

// System and VM ioctls.
var (
	KVM_GET_API_VERSION        = linux.IO(KVMIO, 0x00)
	KVM_CREATE_VM              = linux.IO(KVMIO, 0x01)
	KVM_CHECK_EXTENSION        = linux.IO(KVMIO, 0x03)
	KVM_GET_VCPU_MMAP_SIZE     = linux.IO(KVMIO, 0x04)
	KVM_CREATE_VCPU            = linux.IO(KVMIO, 0x41)
	KVM_GET_DIRTY_LOG          = linux.IOW(KVMIO, 0x42, 16)
	KVM_SET_USER_MEMORY_REGION = linux.IOW(KVMIO, 0x46, 32)
	KVM_IRQ_LINE               = linux.IOW(KVMIO, 0x61, 8)
	KVM_SET_GSI_ROUTING        = linux.IOW(KVMIO, 0x6a, 8)
	KVM_IRQFD                  = linux.IOW(KVMIO, 0x76, 32)
	KVM_IOEVENTFD              = linux.IOW(KVMIO, 0x79, 64)
	KVM_SIGNAL_MSI             = linux.IOW(KVMIO, 0xa5, 32)
	KVM_CREATE_DEVICE          = linux.IOWR(KVMIO, 0xe0, 12)
	KVM_SET_DEVICE_ATTR        = linux.IOW(KVMIO, 0xe1, 24)
	KVM_GET_DEVICE_ATTR        = linux.IOW(KVMIO, 0xe2, 24)
)

// vCPU ioctls common to every architecture.
var (
	KVM_RUN          = linux.IO(KVMIO, 0x80)
	KVM_GET_MP_STATE = linux.IOR(KVMIO, 0x98, 4)
	KVM_SET_MP_STATE = linux.IOW(KVMIO, 0x99, 4)
)

// VMIoctls returns the requests made on VM and device file descriptors
// while the VM is set up and running.
func VMIoctls() []devices.Ioctl {
	return append([]devices.Ioctl{
		{Name: "KVM_SET_DEVICE_ATTR", Request: KVM_SET_DEVICE_ATTR},
		{Name: "KVM_SET_USER_MEMORY_REGION", Request: KVM_SET_USER_MEMORY_REGION},
		{Name: "KVM_IOEVENTFD", Request: KVM_IOEVENTFD},
		{Name: "KVM_SIGNAL_MSI", Request: KVM_SIGNAL_MSI},
		{Name: "KVM_SET_GSI_ROUTING", Request: KVM_SET_GSI_ROUTING},
		{Name: "KVM_IRQFD", Request: KVM_IRQFD},
		{Name: "KVM_CREATE_DEVICE", Request: KVM_CREATE_DEVICE},
		{Name: "KVM_GET_API_VERSION", Request: KVM_GET_API_VERSION},
	}, archVMIoctls()...)
}

// VCPUIoctls returns the requests made on vCPU file descriptors, KVM_RUN
// first.
func VCPUIoctls() []devices.Ioctl {
	return append([]devices.Ioctl{
		{Name: "KVM_RUN", Request: KVM_RUN},
		{Name: "KVM_GET_MP_STATE", Request: KVM_GET_MP_STATE},
	}, archVCPUIoctls()...)
}

// DirtyLogIoctls returns the requests used to track guest memory writes.
func DirtyLogIoctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "KVM_GET_DIRTY_LOG", Request: KVM_GET_DIRTY_LOG},
	}
}

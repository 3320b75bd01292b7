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

// arm64 ioctls.
var (
	KVM_GET_ONE_REG          = linux.IOW(KVMIO, 0xab, 16)
	KVM_SET_ONE_REG          = linux.IOW(KVMIO, 0xac, 16)
	KVM_ARM_VCPU_INIT        = linux.IOW(KVMIO, 0xae, 32)
	KVM_ARM_PREFERRED_TARGET = linux.IOR(KVMIO, 0xaf, 32)
	KVM_GET_REG_LIST         = linux.IOWR(KVMIO, 0xb0, 8)
)

func archVMIoctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "KVM_ARM_PREFERRED_TARGET", Request: KVM_ARM_PREFERRED_TARGET},
	}
}

func archVCPUIoctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "KVM_GET_ONE_REG", Request: KVM_GET_ONE_REG},
		{Name: "KVM_SET_ONE_REG", Request: KVM_SET_ONE_REG},
		{Name: "KVM_SET_MP_STATE", Request: KVM_SET_MP_STATE},
		{Name: "KVM_ARM_VCPU_INIT", Request: KVM_ARM_VCPU_INIT},
		{Name: "KVM_GET_REG_LIST", Request: KVM_GET_REG_LIST},
	}
}

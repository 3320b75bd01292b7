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

// Package tap exports the TUN/TAP ioctl requests used by virtio-net
// back-ends, from linux/if_tun.h.
package tap

import (
	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/devices"
)

// TUN_TYPE is the ioctl type of every TUN/TAP request.
const TUN_TYPE = 'T'

// ioctl(2) request numbers from linux/if_tun.h
var (
	TUNSETIFF       = linux.IOW(TUN_TYPE, 202, 4)
	TUNGETFEATURES  = linux.IOR(TUN_TYPE, 207, 4)
	TUNSETOFFLOAD   = linux.IOW(TUN_TYPE, 208, 4)
	TUNGETIFF       = linux.IOR(TUN_TYPE, 210, 4)
	TUNSETVNETHDRSZ = linux.IOW(TUN_TYPE, 216, 4)
)

// Flags from linux/if_tun.h
const (
	IFF_TUN         = 0x0001
	IFF_TAP         = 0x0002
	IFF_NO_PI       = 0x1000
	IFF_ONE_QUEUE   = 0x2000
	IFF_VNET_HDR    = 0x4000
	IFF_MULTI_QUEUE = 0x0100
)

// Ioctls returns the TUN/TAP requests a VMM makes.
func Ioctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "TUNGETFEATURES", Request: TUNGETFEATURES},
		{Name: "TUNSETIFF", Request: TUNSETIFF},
		{Name: "TUNSETOFFLOAD", Request: TUNSETOFFLOAD},
		{Name: "TUNSETVNETHDRSZ", Request: TUNSETVNETHDRSZ},
	}
}

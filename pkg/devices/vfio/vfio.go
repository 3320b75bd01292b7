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

// Package vfio exports the VFIO ioctl requests used for device
// pass-through, from linux/vfio.h.
package vfio

import (
	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/devices"
)

const (
	// VFIO_TYPE is the ioctl type of every VFIO request.
	VFIO_TYPE = ';'

	// VFIO_BASE is the number of the first VFIO request.
	VFIO_BASE = 100
)

// VFIO requests. They all use _IO; arguments are passed in-band.
var (
	VFIO_GET_API_VERSION        = linux.IO(VFIO_TYPE, VFIO_BASE+0)
	VFIO_CHECK_EXTENSION        = linux.IO(VFIO_TYPE, VFIO_BASE+1)
	VFIO_SET_IOMMU              = linux.IO(VFIO_TYPE, VFIO_BASE+2)
	VFIO_GROUP_GET_STATUS       = linux.IO(VFIO_TYPE, VFIO_BASE+3)
	VFIO_GROUP_SET_CONTAINER    = linux.IO(VFIO_TYPE, VFIO_BASE+4)
	VFIO_GROUP_UNSET_CONTAINER  = linux.IO(VFIO_TYPE, VFIO_BASE+5)
	VFIO_GROUP_GET_DEVICE_FD    = linux.IO(VFIO_TYPE, VFIO_BASE+6)
	VFIO_DEVICE_GET_INFO        = linux.IO(VFIO_TYPE, VFIO_BASE+7)
	VFIO_DEVICE_GET_REGION_INFO = linux.IO(VFIO_TYPE, VFIO_BASE+8)
	VFIO_DEVICE_GET_IRQ_INFO    = linux.IO(VFIO_TYPE, VFIO_BASE+9)
	VFIO_DEVICE_SET_IRQS        = linux.IO(VFIO_TYPE, VFIO_BASE+10)
	VFIO_DEVICE_RESET           = linux.IO(VFIO_TYPE, VFIO_BASE+11)
	VFIO_IOMMU_GET_INFO         = linux.IO(VFIO_TYPE, VFIO_BASE+12)
	VFIO_IOMMU_MAP_DMA          = linux.IO(VFIO_TYPE, VFIO_BASE+13)
	VFIO_IOMMU_UNMAP_DMA        = linux.IO(VFIO_TYPE, VFIO_BASE+14)
)

// Ioctls returns the requests a VMM makes to pass a device through, in
// the order it usually makes them at run time.
func Ioctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "VFIO_DEVICE_SET_IRQS", Request: VFIO_DEVICE_SET_IRQS},
		{Name: "VFIO_GROUP_GET_STATUS", Request: VFIO_GROUP_GET_STATUS},
		{Name: "VFIO_GET_API_VERSION", Request: VFIO_GET_API_VERSION},
		{Name: "VFIO_CHECK_EXTENSION", Request: VFIO_CHECK_EXTENSION},
		{Name: "VFIO_GROUP_SET_CONTAINER", Request: VFIO_GROUP_SET_CONTAINER},
		{Name: "VFIO_SET_IOMMU", Request: VFIO_SET_IOMMU},
		{Name: "VFIO_IOMMU_MAP_DMA", Request: VFIO_IOMMU_MAP_DMA},
		{Name: "VFIO_IOMMU_UNMAP_DMA", Request: VFIO_IOMMU_UNMAP_DMA},
		{Name: "VFIO_GROUP_GET_DEVICE_FD", Request: VFIO_GROUP_GET_DEVICE_FD},
		{Name: "VFIO_DEVICE_GET_INFO", Request: VFIO_DEVICE_GET_INFO},
		{Name: "VFIO_DEVICE_RESET", Request: VFIO_DEVICE_RESET},
		{Name: "VFIO_DEVICE_GET_REGION_INFO", Request: VFIO_DEVICE_GET_REGION_INFO},
		{Name: "VFIO_DEVICE_GET_IRQ_INFO", Request: VFIO_DEVICE_GET_IRQ_INFO},
	}
}

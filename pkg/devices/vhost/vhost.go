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

// Package vhost exports the vhost ioctl requests used by in-kernel virtio
// back-ends, from linux/vhost.h.
package vhost

import (
	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/devices"
)

// VHOST_VIRTIO is the ioctl type of every vhost request.
const VHOST_VIRTIO = 0xAF

// Sizes of the argument structs.
const (
	sizeofU64           = 8
	sizeofInt           = 4
	sizeofVhostMemory   = 8
	sizeofVringState    = 8
	sizeofVringAddr     = 40
	sizeofVringFile     = 8
	sizeofVsockGuestCID = 8
)

// Generic vhost requests.
var (
	VHOST_GET_FEATURES   = linux.IOR(VHOST_VIRTIO, 0x00, sizeofU64)
	VHOST_SET_FEATURES   = linux.IOW(VHOST_VIRTIO, 0x00, sizeofU64)
	VHOST_SET_OWNER      = linux.IO(VHOST_VIRTIO, 0x01)
	VHOST_RESET_OWNER    = linux.IO(VHOST_VIRTIO, 0x02)
	VHOST_SET_MEM_TABLE  = linux.IOW(VHOST_VIRTIO, 0x03, sizeofVhostMemory)
	VHOST_SET_VRING_NUM  = linux.IOW(VHOST_VIRTIO, 0x10, sizeofVringState)
	VHOST_SET_VRING_ADDR = linux.IOW(VHOST_VIRTIO, 0x11, sizeofVringAddr)
	VHOST_SET_VRING_BASE = linux.IOW(VHOST_VIRTIO, 0x12, sizeofVringState)
	VHOST_GET_VRING_BASE = linux.IOWR(VHOST_VIRTIO, 0x12, sizeofVringState)
	VHOST_SET_VRING_KICK = linux.IOW(VHOST_VIRTIO, 0x20, sizeofVringFile)
	VHOST_SET_VRING_CALL = linux.IOW(VHOST_VIRTIO, 0x21, sizeofVringFile)
)

// vhost-net and vhost-vsock requests.
var (
	VHOST_NET_SET_BACKEND     = linux.IOW(VHOST_VIRTIO, 0x30, sizeofVringFile)
	VHOST_VSOCK_SET_GUEST_CID = linux.IOW(VHOST_VIRTIO, 0x60, sizeofVsockGuestCID)
	VHOST_VSOCK_SET_RUNNING   = linux.IOW(VHOST_VIRTIO, 0x61, sizeofInt)
)

// Ioctls returns the vhost requests a VMM makes.
func Ioctls() []devices.Ioctl {
	return []devices.Ioctl{
		{Name: "VHOST_VSOCK_SET_GUEST_CID", Request: VHOST_VSOCK_SET_GUEST_CID},
		{Name: "VHOST_VSOCK_SET_RUNNING", Request: VHOST_VSOCK_SET_RUNNING},
		{Name: "VHOST_SET_VRING_CALL", Request: VHOST_SET_VRING_CALL},
		{Name: "VHOST_SET_VRING_NUM", Request: VHOST_SET_VRING_NUM},
		{Name: "VHOST_GET_VRING_BASE", Request: VHOST_GET_VRING_BASE},
		{Name: "VHOST_SET_VRING_ADDR", Request: VHOST_SET_VRING_ADDR},
		{Name: "VHOST_SET_VRING_BASE", Request: VHOST_SET_VRING_BASE},
		{Name: "VHOST_SET_VRING_KICK", Request: VHOST_SET_VRING_KICK},
		{Name: "VHOST_SET_OWNER", Request: VHOST_SET_OWNER},
		{Name: "VHOST_SET_FEATURES", Request: VHOST_SET_FEATURES},
		{Name: "VHOST_GET_FEATURES", Request: VHOST_GET_FEATURES},
		{Name: "VHOST_SET_MEM_TABLE", Request: VHOST_SET_MEM_TABLE},
		{Name: "VHOST_NET_SET_BACKEND", Request: VHOST_NET_SET_BACKEND},
		{Name: "VHOST_RESET_OWNER", Request: VHOST_RESET_OWNER},
	}
}

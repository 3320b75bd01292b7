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

package linux

// ioctl(2) request encoding, from <asm-generic/ioctl.h>.
const (
	IOC_NRBITS   = 8
	IOC_TYPEBITS = 8
	IOC_SIZEBITS = 14
	IOC_DIRBITS  = 2

	IOC_NRSHIFT   = 0
	IOC_TYPESHIFT = IOC_NRSHIFT + IOC_NRBITS
	IOC_SIZESHIFT = IOC_TYPESHIFT + IOC_TYPEBITS
	IOC_DIRSHIFT  = IOC_SIZESHIFT + IOC_SIZEBITS

	IOC_NONE  = 0
	IOC_WRITE = 1
	IOC_READ  = 2
)

// IOC outputs the result of _IOC macro in include/uapi/asm-generic/ioctl.h.
func IOC(dir, typ, nr, size uint32) uint32 {
	return dir<<IOC_DIRSHIFT | typ<<IOC_TYPESHIFT | nr<<IOC_NRSHIFT | size<<IOC_SIZESHIFT
}

// IO outputs the result of _IO macro in include/uapi/asm-generic/ioctl.h.
func IO(typ, nr uint32) uint32 {
	return IOC(IOC_NONE, typ, nr, 0)
}

// IOR outputs the result of _IOR macro in include/uapi/asm-generic/ioctl.h.
func IOR(typ, nr, size uint32) uint32 {
	return IOC(IOC_READ, typ, nr, size)
}

// IOW outputs the result of _IOW macro in include/uapi/asm-generic/ioctl.h.
func IOW(typ, nr, size uint32) uint32 {
	return IOC(IOC_WRITE, typ, nr, size)
}

// IOWR outputs the result of _IOWR macro in include/uapi/asm-generic/ioctl.h.
func IOWR(typ, nr, size uint32) uint32 {
	return IOC(IOC_READ|IOC_WRITE, typ, nr, size)
}

// IOC_DIR outputs the result of _IOC_DIR macro in
// include/uapi/asm-generic/ioctl.h.
func IOC_DIR(cmd uint32) uint32 {
	return (cmd >> IOC_DIRSHIFT) & (1<<IOC_DIRBITS - 1)
}

// IOC_TYPE outputs the result of _IOC_TYPE macro in
// include/uapi/asm-generic/ioctl.h.
func IOC_TYPE(cmd uint32) uint32 {
	return (cmd >> IOC_TYPESHIFT) & (1<<IOC_TYPEBITS - 1)
}

// IOC_NR outputs the result of _IOC_NR macro in
// include/uapi/asm-generic/ioctl.h.
func IOC_NR(cmd uint32) uint32 {
	return (cmd >> IOC_NRSHIFT) & (1<<IOC_NRBITS - 1)
}

// IOC_SIZE outputs the result of _IOC_SIZE macro in
// include/uapi/asm-generic/ioctl.h.
func IOC_SIZE(cmd uint32) uint32 {
	return (cmd >> IOC_SIZESHIFT) & (1<<IOC_SIZEBITS - 1)
}

// ioctl(2) requests provided by asm-generic/ioctls.h. These predate the
// encoding above.
const (
	TCGETS     = 0x00005401
	TCSETS     = 0x00005402
	TCSETSW    = 0x00005403
	TCSETSF    = 0x00005404
	TIOCGPGRP  = 0x0000540f
	TIOCSPGRP  = 0x00005410
	TIOCGWINSZ = 0x00005413
	TIOCSWINSZ = 0x00005414
	FIONREAD   = 0x0000541b
	FIONBIO    = 0x00005421
	FIONCLEX   = 0x00005450
	FIOCLEX    = 0x00005451
	FIOASYNC   = 0x00005452
)

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

// Package devices describes the ioctl requests VMM device back-ends make.
//
// Each subpackage exports the request numbers of one kernel interface,
// computed with the _IOC encoding helpers in pkg/abi/linux, and lists them
// with their names so sandbox policies can refer to them.
package devices

import "fmt"

// Ioctl is a named ioctl(2) request number.
type Ioctl struct {
	// Name is the request's name in the kernel headers.
	Name string

	// Request is the request number, the second ioctl(2) argument.
	Request uint32
}

// String implements fmt.Stringer.
func (i Ioctl) String() string {
	return fmt.Sprintf("%s(%#x)", i.Name, i.Request)
}

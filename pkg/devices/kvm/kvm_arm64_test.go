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

import "testing"

func TestRequestsARM64(t *testing.T) {
	checkRequests(t, map[string]uint32{
		"KVM_GET_ONE_REG":          0x4010aeab,
		"KVM_SET_ONE_REG":          0x4010aeac,
		"KVM_ARM_VCPU_INIT":        0x4020aeae,
		"KVM_ARM_PREFERRED_TARGET": 0x8020aeaf,
		"KVM_GET_REG_LIST":         0xc008aeb0,
	})
}

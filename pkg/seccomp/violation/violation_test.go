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

package violation

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sys/unix"

	"vmmguard.dev/vmmguard/pkg/abi/linux"
	"vmmguard.dev/vmmguard/pkg/log"
	"vmmguard.dev/vmmguard/pkg/seccomp"
)

const kernelLine = `audit: type=1326 audit(1700000000.123:45): auid=4294967295 uid=0 gid=0 ses=4294967295 subj=unconfined pid=1234 comm="vmm" exe="/usr/bin/vmm" sig=31 arch=c000003e syscall=39 compat=0 ip=0x7f2b1c0f3a2d code=0x80000000`

const auditLogLine = `type=SECCOMP msg=audit(1700000000.456:46): auid=0 uid=0 gid=0 ses=1 pid=77 comm="vcpu0" exe="/usr/bin/vmm" sig=0 arch=c00000b7 syscall=64 compat=0 ip=0xffff8000 code=0x7ffc0000`

func TestFromWaitStatus(t *testing.T) {
	for _, test := range []struct {
		name   string
		ws     unix.WaitStatus
		denial bool
		err    bool
	}{
		{name: "exit 0", ws: 0},
		{name: "exit 1", ws: 1 << 8, err: true},
		{name: "SIGSYS", ws: unix.WaitStatus(unix.SIGSYS), denial: true, err: true},
		{name: "SIGSYS with core", ws: 0x80 | unix.WaitStatus(unix.SIGSYS), denial: true, err: true},
		{name: "SIGKILL", ws: unix.WaitStatus(unix.SIGKILL), err: true},
		{name: "stopped", ws: 0x7f | unix.WaitStatus(unix.SIGSTOP)<<8, err: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			err := FromWaitStatus(42, test.ws)
			if got := err != nil; got != test.err {
				t.Fatalf("FromWaitStatus(%#x) = %v, want error: %t", uint32(test.ws), err, test.err)
			}
			if got := errors.Is(err, ErrRuntimeDenial); got != test.denial {
				t.Errorf("errors.Is(%v, ErrRuntimeDenial) = %t, want %t", err, got, test.denial)
			}
			var e *Error
			if test.denial {
				if !errors.As(err, &e) {
					t.Fatalf("FromWaitStatus() = %T, want *Error", err)
				}
				if e.PID != 42 || e.Signal != unix.SIGSYS {
					t.Errorf("got %+v, want pid 42 and SIGSYS", e)
				}
			}
		})
	}
}

func TestParseAuditRecord(t *testing.T) {
	for _, test := range []struct {
		line string
		want *Record
	}{
		{
			line: kernelLine,
			want: &Record{
				PID:     1234,
				Comm:    "vmm",
				Exe:     "/usr/bin/vmm",
				Signal:  unix.SIGSYS,
				Arch:    linux.AUDIT_ARCH_X86_64,
				Syscall: 39,
				Code:    linux.SECCOMP_RET_KILL_PROCESS,
			},
		},
		{
			line: auditLogLine,
			want: &Record{
				PID:     77,
				Comm:    "vcpu0",
				Exe:     "/usr/bin/vmm",
				Arch:    linux.AUDIT_ARCH_AARCH64,
				Syscall: 64,
				Code:    linux.SECCOMP_RET_LOG,
			},
		},
	} {
		got, err := ParseAuditRecord(test.line)
		if err != nil {
			t.Errorf("ParseAuditRecord(%q) failed: %v", test.line, err)
			continue
		}
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("ParseAuditRecord(%q) mismatch (-want +got):\n%s", test.line, diff)
		}
	}
}

func TestParseAuditRecordErrors(t *testing.T) {
	for _, line := range []string{
		"",
		`type=1400 audit(1700000000.1:2): apparmor="DENIED" operation="open"`,
		`type=1326 audit(1700000000.1:2): pid=1 arch=c000003e`,
		`type=1326 audit(1700000000.1:2): pid=1 syscall=39`,
		`type=1326 audit(1700000000.1:2): pid=1 arch=zz syscall=39`,
		`type=1326 audit(1700000000.1:2): pid=x arch=c000003e syscall=39`,
	} {
		if r, err := ParseAuditRecord(line); err == nil {
			t.Errorf("ParseAuditRecord(%q) = %+v, want error", line, r)
		}
	}
}

func TestRecordName(t *testing.T) {
	r := Record{Arch: seccomp.NativeArch, Syscall: 39}
	if got, want := r.SyscallName(), seccomp.SyscallName(39); got != want {
		t.Errorf("SyscallName() = %q, want %q", got, want)
	}
	r.Arch = linux.AUDIT_ARCH_I386
	if got, want := r.SyscallName(), "i386:39"; got != want {
		t.Errorf("SyscallName() = %q, want %q", got, want)
	}
}

func TestReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(log.NewBasicLogger(log.Info, &log.Writer{Next: &buf}), time.Hour)

	if err := r.Wait(1, 0); err != nil {
		t.Errorf("Wait(exit 0) = %v", err)
	}
	if err := r.Wait(1, 1<<8); err == nil || errors.Is(err, ErrRuntimeDenial) {
		t.Errorf("Wait(exit 1) = %v, want a plain error", err)
	}
	if err := r.Wait(1, unix.WaitStatus(unix.SIGSYS)); !errors.Is(err, ErrRuntimeDenial) {
		t.Errorf("Wait(SIGSYS) = %v, want ErrRuntimeDenial", err)
	}
	if err := r.Audit("not an audit line"); err != nil {
		t.Errorf("Audit(garbage) = %v, want nil", err)
	}
	err := r.Audit(kernelLine)
	var e *Error
	if !errors.As(err, &e) || e.Record == nil || e.Record.PID != 1234 {
		t.Errorf("Audit() = %v, want *Error for pid 1234", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], "SIGSYS") {
		t.Errorf("first line %q does not name SIGSYS", lines[0])
	}
	if !strings.Contains(lines[1], "pid 1234 (vmm)") {
		t.Errorf("second line %q does not name the process", lines[1])
	}
}

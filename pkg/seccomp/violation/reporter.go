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
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"vmmguard.dev/vmmguard/pkg/log"
)

// Reporter logs denials. Logging is rate limited so a process that keeps
// hitting its filter can not flood the log.
type Reporter struct {
	logger log.Logger
}

// NewReporter returns a Reporter that logs to logger at most once per
// every, after a burst of a few messages.
func NewReporter(logger log.Logger, every time.Duration) *Reporter {
	return &Reporter{logger: log.RateLimitedLogger(logger, every, 5)}
}

// Wait reports the outcome of a sandboxed process. It returns the error
// FromWaitStatus returns, logging it first if it is a denial.
//
// Wait is meant for the supervisor that reaps processes running under a
// filter; call it with the status wait4(2) or os.ProcessState returned.
func (r *Reporter) Wait(pid int, ws unix.WaitStatus) error {
	err := FromWaitStatus(pid, ws)
	if errors.Is(err, ErrRuntimeDenial) {
		r.logger.Warningf("%v", err)
	}
	return err
}

// Audit reports a SECCOMP audit record. Lines that are not SECCOMP records
// are ignored and return nil.
func (r *Reporter) Audit(line string) error {
	e, err := FromAuditRecord(line)
	if err != nil {
		r.logger.Debugf("Ignoring audit line: %v", err)
		return nil
	}
	r.logger.Warningf("%v", e)
	return e
}

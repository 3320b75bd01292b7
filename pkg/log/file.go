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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BuildPath expands the variables in a log file pattern:
//
//	%PID%       the process ID
//	%COMMAND%   the given command name
//	%TIMESTAMP% the current time, as YYYYMMDD-HHMMSS.uuuuuu
func BuildPath(logPattern, command string) string {
	r := strings.NewReplacer(
		"%PID%", strconv.Itoa(os.Getpid()),
		"%COMMAND%", command,
		"%TIMESTAMP%", time.Now().Format("20060102-150405.000000"),
	)
	return r.Replace(logPattern)
}

// OpenFile opens a log file for appending. Variables in logPattern are
// expanded with BuildPath. An empty pattern returns a nil file.
func OpenFile(logPattern, command string) (*os.File, error) {
	if len(logPattern) == 0 {
		return nil, nil
	}

	logPath := BuildPath(logPattern, command)

	// Create parent directory if it doesn't exist.
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, fmt.Errorf("error creating dir %q: %v", dir, err)
	}

	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0664)
	if err != nil {
		return nil, fmt.Errorf("error opening file %q: %v", logPath, err)
	}
	return f, nil
}

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
	"runtime"
	"strconv"
	"time"
)

// GoogleEmitter prefixes each message with a glog style header before handing
// it to the wrapped Emitter:
//
//	Lmmdd hh:mm:ss.uuuuuu pid file:line] msg
//
// L is the first letter of the level and pid is right aligned in 7 columns.
type GoogleEmitter struct {
	Emitter
}

// glogPID is the pid column, computed once.
var glogPID = fmt.Sprintf("%7d", os.Getpid())

var levelLetter = [...]byte{Warning: 'W', Info: 'I', Debug: 'D'}

// Emit implements Emitter.Emit.
func (g GoogleEmitter) Emit(depth int, level Level, timestamp time.Time, format string, args ...any) {
	hdr := make([]byte, 0, 64+len(format))
	if int(level) < len(levelLetter) {
		hdr = append(hdr, levelLetter[level])
	} else {
		hdr = append(hdr, '?')
	}
	hdr = timestamp.AppendFormat(hdr, "0102 15:04:05.000000 ")
	hdr = append(hdr, glogPID...)
	hdr = append(hdr, ' ')
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		hdr = append(hdr, filepath.Base(file)...)
		hdr = append(hdr, ':')
		hdr = strconv.AppendInt(hdr, int64(line), 10)
	} else {
		hdr = append(hdr, "???:0"...)
	}
	hdr = append(hdr, "] "...)
	hdr = append(hdr, format...)
	hdr = append(hdr, '\n')
	g.Emitter.Emit(depth+1, level, timestamp, string(hdr), args...)
}

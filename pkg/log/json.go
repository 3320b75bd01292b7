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
	"encoding/json"
	"fmt"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// jsonRecord is one line of JSON output.
type jsonRecord struct {
	Time   time.Time `json:"time"`
	Level  Level     `json:"level"`
	Caller string    `json:"caller,omitempty"`
	Msg    string    `json:"msg"`
}

var levelNames = [...]string{Warning: "warning", Info: "info", Debug: "debug"}

// MarshalJSON implements json.Marshaler. Levels are written by name.
func (l Level) MarshalJSON() ([]byte, error) {
	if int(l) >= len(levelNames) {
		return nil, fmt.Errorf("cannot marshal log level %d", uint32(l))
	}
	return strconv.AppendQuote(nil, levelNames[l]), nil
}

// UnmarshalJSON implements json.Unmarshaler. It accepts a level name or its
// numeric value.
func (l *Level) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		for i, n := range levelNames {
			if n == name {
				*l = Level(i)
				return nil
			}
		}
		return fmt.Errorf("unknown log level %q", name)
	}
	var n uint32
	if err := json.Unmarshal(b, &n); err != nil || int(n) >= len(levelNames) {
		return fmt.Errorf("unknown log level %s", b)
	}
	*l = Level(n)
	return nil
}

// JSONEmitter writes one JSON object per message.
type JSONEmitter struct {
	*Writer
}

// Emit implements Emitter.Emit.
func (e JSONEmitter) Emit(depth int, level Level, timestamp time.Time, format string, v ...any) {
	rec := jsonRecord{
		Time:  timestamp,
		Level: level,
		Msg:   strings.TrimRight(fmt.Sprintf(format, v...), "\n"),
	}
	if _, file, line, ok := runtime.Caller(depth + 1); ok {
		rec.Caller = filepath.Base(file) + ":" + strconv.Itoa(line)
	}
	b, err := json.Marshal(rec)
	if err != nil {
		// Only an unknown level can fail to marshal.
		b = fmt.Appendf(nil, `{"level":%d,"msg":%q}`, uint32(level), rec.Msg)
	}
	e.Writer.Write(b)
}

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
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// throttled forwards to a Logger through a token bucket. Messages that find
// the bucket empty are counted, and the count rides along on the next message
// that gets through.
type throttled struct {
	next    Logger
	bucket  *rate.Limiter
	dropped atomic.Uint64
}

// RateLimitedLogger returns a Logger that forwards at most burst messages at
// once and one per every interval after that.
func RateLimitedLogger(logger Logger, every time.Duration, burst int) Logger {
	return &throttled{
		next:   logger,
		bucket: rate.NewLimiter(rate.Every(every), burst),
	}
}

// BasicRateLimitedLogger is RateLimitedLogger over the global logger with no
// burst.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return RateLimitedLogger(Log(), every, 1)
}

func (t *throttled) forward(level Level, emit func(string, ...any), format string, v []any) {
	// Messages the level filter drops do not spend tokens.
	if !t.next.IsLogging(level) {
		return
	}
	if !t.bucket.Allow() {
		t.dropped.Add(1)
		return
	}
	if n := t.dropped.Swap(0); n > 0 {
		format = fmt.Sprintf("%s (%d similar messages suppressed)", format, n)
	}
	emit(format, v...)
}

func (t *throttled) Debugf(format string, v ...any) {
	t.forward(Debug, t.next.Debugf, format, v)
}

func (t *throttled) Infof(format string, v ...any) {
	t.forward(Info, t.next.Infof, format, v)
}

func (t *throttled) Warningf(format string, v ...any) {
	t.forward(Warning, t.next.Warningf, format, v)
}

func (t *throttled) IsLogging(level Level) bool {
	return t.next.IsLogging(level)
}

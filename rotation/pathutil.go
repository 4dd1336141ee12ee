// Copyright 2015-2017 trivago GmbH
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

package rotation

import (
	"fmt"
	"regexp"
	"sync"
	"time"
)

// timedNameLayout is the fixed-width UTC textual pattern P: millisecond
// precision, lexicographically sortable. Both UniqueTimedName.Next and
// TryMatchTimedName must agree on it exactly (§6 "Timestamp pattern").
const timedNameLayout = "20060102T150405.000"

// timedNamePattern recognizes a token produced by timedNameLayout: 8 digits,
// "T", 6 digits, ".", 3 digits.
var timedNamePattern = regexp.MustCompile(`^\d{8}T\d{6}\.\d{3}$`)

// UniqueTimedName yields a strictly increasing UTC-formatted token across
// calls within a process. It never depends on wall-clock monotonicity for
// correctness: if the same (or an earlier) millisecond is asked for again,
// Next moves the token forward by one millisecond instead.
type UniqueTimedName struct {
	mu   sync.Mutex
	last time.Time
}

// Next returns the formatted token for "now", bumped forward by one
// millisecond if it would not be strictly greater than the previously
// returned token. This guarantees monotonic uniqueness even when called
// faster than the system clock's resolution.
func (u *UniqueTimedName) Next(now time.Time) string {
	u.mu.Lock()
	defer u.mu.Unlock()

	now = now.UTC().Truncate(time.Millisecond)
	if !now.After(u.last) {
		now = u.last.Add(time.Millisecond)
	}
	u.last = now
	return now.Format(timedNameLayout)
}

// TryMatchTimedName reports whether name matches pattern P exactly (no
// surrounding characters) and, if so, the time.Time it encodes.
func TryMatchTimedName(name string) (t time.Time, ok bool) {
	if !timedNamePattern.MatchString(name) {
		return time.Time{}, false
	}
	parsed, err := time.Parse(timedNameLayout, name)
	if err != nil {
		return time.Time{}, false
	}
	return parsed.UTC(), true
}

// tempFileName builds the "T-{unique_time}{suffix}.tmp" temp filename.
func tempFileName(uniqueTime, suffix string) string {
	return fmt.Sprintf("T-%s%s.tmp", uniqueTime, suffix)
}

// finalFileName builds the "{unique_time}{suffix}" final filename.
func finalFileName(uniqueTime, suffix string) string {
	return uniqueTime + suffix
}

// tryMatchTempName recovers the unique-time token from a temp filename of
// the form "T-{token}{suffix}.tmp", given the expected suffix.
func tryMatchTempName(name, suffix string) (string, bool) {
	const prefix = "T-"
	const ext = ".tmp"
	if len(name) < len(prefix)+len(ext)+len(suffix) {
		return "", false
	}
	if name[:len(prefix)] != prefix || name[len(name)-len(ext):] != ext {
		return "", false
	}
	body := name[len(prefix) : len(name)-len(ext)]
	if len(body) < len(suffix) || body[len(body)-len(suffix):] != suffix {
		return "", false
	}
	token := body[:len(body)-len(suffix)]
	if _, ok := TryMatchTimedName(token); !ok {
		return "", false
	}
	return token, true
}

// tryMatchFinalName recovers the unique-time token from a final filename of
// the form "{token}{suffix}".
func tryMatchFinalName(name, suffix string) (string, bool) {
	if len(name) < len(suffix) || name[len(name)-len(suffix):] != suffix {
		return "", false
	}
	token := name[:len(name)-len(suffix)]
	if _, ok := TryMatchTimedName(token); !ok {
		return "", false
	}
	return token, true
}

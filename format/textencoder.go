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

// Package format holds the one encoder the core needs to exercise
// rotation.FileOutput's injected-callback contract (§4.2 "write contract").
// Concrete textual/binary encoders beyond this default are out of scope.
package format

import (
	"fmt"
	"io"

	"github.com/signature-opensource/ck-monitoring-go/core"
)

// TextLine renders a LogEvent as a single human-readable line:
// "{log_time} {level} {monitor_id} {text}", followed by an exception block when
// present. It satisfies rotation.EncodeFunc.
func TextLine(w io.Writer, value interface{}) error {
	event, ok := value.(*core.LogEvent)
	if !ok {
		_, err := fmt.Fprintf(w, "%v\n", value)
		return err
	}

	if _, err := fmt.Fprintf(w, "%s %s %s %s\n",
		event.LogTime.Format("2006-01-02T15:04:05.000Z"), event.Level, event.MonitorID, event.Text); err != nil {
		return err
	}

	for ex := event.Exception; ex != nil; ex = ex.Inner {
		if _, err := fmt.Fprintf(w, "  > %s\n%s\n", ex.Message, ex.StackTrace); err != nil {
			return err
		}
	}
	return nil
}

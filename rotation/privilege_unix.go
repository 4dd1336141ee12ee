//go:build !windows

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
	"errors"
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

// isPrivilegeError classifies err as the platform's "insufficient
// privilege" indication (§7 "Symlink creation — privilege error", §9
// "platform-idiomatic insufficient-privilege classification"). On
// unix-likes that is EPERM or EACCES surfacing from the symlink syscall.
func isPrivilegeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == unix.EPERM || errno == unix.EACCES
	}
	return false
}

//go:build windows

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
)

// isPrivilegeError classifies err as the platform's "insufficient
// privilege" indication. Windows denies unprivileged symlink creation with
// ERROR_PRIVILEGE_NOT_HELD, which os surfaces as os.ErrPermission.
func isPrivilegeError(err error) bool {
	return err != nil && errors.Is(err, os.ErrPermission)
}

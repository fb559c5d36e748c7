// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package replication

import "errors"

var (
	ErrUnknownEntity = errors.New("unknown network entity")
	ErrEntityExists  = errors.New("network entity already exists")
	ErrIDsExhausted  = errors.New("network IDs exhausted")
)

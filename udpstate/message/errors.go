// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package message

import "errors"

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrInvalidRange   = errors.New("invalid sequence range")
	ErrTooLong        = errors.New("value too long")
)

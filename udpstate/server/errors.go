// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package server

import "errors"

var (
	ErrUnknownClient  = errors.New("unknown client")
	ErrTooManyClients = errors.New("too many clients")
	ErrInvalidToken   = errors.New("invalid client token")
)

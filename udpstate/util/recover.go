// Copyright (c) 2023, 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package util

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Recover must be deferred directly. It logs a recovered panic with its stack
// and lets the calling goroutine continue.
func Recover(log *slog.Logger) {
	if r := recover(); r != nil {
		log.Error("recovered from panic",
			"panic", fmt.Sprintf("[%T] %v", r, r),
			"stack", string(debug.Stack()))
	}
}

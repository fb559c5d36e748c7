// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package util

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRecover(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, nil))

	func() {
		defer Recover(log)
		panic("boom")
	}()

	if s := buf.String(); !strings.Contains(s, "boom") || !strings.Contains(s, "recovered from panic") {
		t.Errorf("unexpected log output: %s", s)
	}
}

// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package udpstate

import "errors"

var (
	// ErrProtocolDesync means a delta references an unknown baseline or an unknown entity.
	// It is recovered with a full resync.
	ErrProtocolDesync = errors.New("protocol desync")

	// ErrQuantizationOverflow means a value was outside the declared range and has been clamped.
	ErrQuantizationOverflow = errors.New("quantization overflow")

	// ErrSequenceGap means a packet is missing. It is recovered by waiting
	// and, after a timeout, by skipping the gap and resyncing.
	ErrSequenceGap = errors.New("sequence gap")

	// ErrConnectionLost is the only error surfaced to the caller, as an EventConnectionLost.
	ErrConnectionLost = errors.New("connection lost")
)

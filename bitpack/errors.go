// Copyright (c) 2025 by Marko Gaćeša.
// Licensed under the Apache License, Version 2.0.
// See the LICENSE file or http://www.apache.org/licenses/LICENSE-2.0 for details.

package bitpack

import "errors"

var errVarintOverflow = errors.New("bitpack: varint overflows 64 bits")

/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2025 The pktizr Authors. All Rights Reserved.
 */

package pkt

import "fmt"

// ErrTooSmall is returned by Pack when the destination buffer cannot hold
// the serialized stack.
var ErrTooSmall = fmt.Errorf("pkt: buffer too small")

// MalformedError is returned by Unpack when a frame is truncated or
// otherwise fails to decode; Offset is the byte offset of the first
// header Unpack could not interpret.
type MalformedError struct {
	Offset int
	Reason string
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("pkt: malformed at offset %d: %s", e.Offset, e.Reason)
}

/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package core

import "errors"

// Error definitions
var (
	ErrInvalidArg    = errors.New("invalid argument")
	ErrNotFound      = errors.New("not found")
	ErrCapacity      = errors.New("capacity exhausted")
	ErrCorruptStream = errors.New("corrupt stream")
	ErrInvalidFormat = errors.New("invalid format")
	ErrOutOfOrder    = errors.New("out of order")
	ErrIo            = errors.New("i/o failure")
	ErrTransport     = errors.New("transport failure")
	ErrInternal      = errors.New("internal error")
)

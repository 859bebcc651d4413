/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package core

import "time"

// Version of BGPView.
var Version string

// BuildTime contains the timestamp of when this version of BGPView was built.
var BuildTime string

// StartTimestamp is the time the process was started.
var StartTimestamp time.Time

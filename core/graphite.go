/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package core

import "strings"

var graphiteReplacer = strings.NewReplacer(".", "_", "*", "-")

// GraphiteSafe returns s rewritten so it can be embedded in a metric path:
// "." becomes "_" and "*" becomes "-".
func GraphiteSafe(s string) string {
	return graphiteReplacer.Replace(s)
}

/* BGPView - a BGP routing-table analysis framework
 *
 * Copyright (C) 2026 The BGPView Authors.
 *
 * This file is licensed under the terms of the MIT License, as found in LICENSE.md.
 */

package core

import (
	"github.com/cornelk/hashmap"
)

// stats contains the process-wide statistics table. The engine writes interval
// counters here under graphite-safe metric keys; consumers read them when they
// dump metrics.
var stats = &hashmap.HashMap{}

// GetStat returns the statistics table value at the specified key or nil if it does not exist.
func GetStat(key string) interface{} {
	value, isOk := stats.GetStringKey(key)
	if !isOk {
		return nil
	}
	return value
}

// SetStat atomically sets the value of the specified statistics key only if it is equal to the expected value, returning whether the operation was successful.
func SetStat(key string, expected interface{}, value interface{}) bool {
	return stats.Cas(key, expected, value)
}

// ResetStat unconditionally overwrites the value of the specified statistics key.
func ResetStat(key string, value interface{}) {
	stats.Set(key, value)
}

// AddToStatUint64 adds the specified value to the given statistics key, setting as value if uninitialized.
func AddToStatUint64(key string, value uint64) {
	wasSet := false
	for !wasSet {
		expected := GetStat(key)
		if expected != nil {
			wasSet = SetStat(key, expected, expected.(uint64)+value)
		} else {
			_, wasSet = stats.GetOrInsert(key, value)
			// We need to flip this because it returns false if set
			wasSet = !wasSet
		}
	}
}

// StatRange iterates over all statistics keys. The callback returns false to stop.
func StatRange(cb func(key string, value interface{}) bool) {
	for kv := range stats.Iter() {
		if k, ok := kv.Key.(string); ok {
			if !cb(k, kv.Value) {
				return
			}
		}
	}
}

// Package util contains misc internal utilities.
package util

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// IntSliceToCSV convets a slice of ints to CSV formatted data.
// e.g., []int{1,2,3,4,5} => "1,2,3,4,5"
func IntSliceToCSV(is []int) string {
	s := make([]string, len(is))
	for i, v := range is {
		s[i] = strconv.Itoa(v)
	}

	return strings.Join(s, ",")
}

// CSVToIntSlice is the inverse of IntSliceToCSV.  Whitespace around each
// value is ignored and an empty string is an empty slice
func CSVToIntSlice(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	pieces := strings.Split(s, ",")
	out := make([]int, len(pieces))
	for i, p := range pieces {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("item %d of %q: %w", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// UniqueInts returns the sorted unique values of is
func UniqueInts(is []int) []int {
	seen := map[int]struct{}{}
	out := []int{}
	for _, v := range is {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// GetBit returns the value of a given bit in a mask
func GetBit(mask uint32, bitIndex uint) bool {
	return mask&(1<<bitIndex) != 0
}

// SetBit returns mask with a given bit set or cleared
func SetBit(mask uint32, bitIndex uint, on bool) uint32 {
	if on {
		return mask | 1<<bitIndex
	}
	return mask &^ (1 << bitIndex)
}

// Clamp limits x to [low, high]
func Clamp(x, low, high float64) float64 {
	return math.Max(low, math.Min(x, high))
}

// SecsToDuration converts a floating point number of seconds to a duration
func SecsToDuration(secs float64) time.Duration {
	return time.Duration(math.Round(secs * float64(time.Second)))
}

// Package seqnum implements modular comparison and window-membership tests
// over the 16-bit sequence space used by both H-UDP channels.
package seqnum

import "github.com/lithdew/seq"

// Less reports whether a precedes b in the modular sequence space, i.e.
// whether a is "older" than b. It is false when a == b and undefined (by
// convention, false) at the exact antipodal distance of 2^15, same as any
// other wraparound-based definition.
func Less(a, b uint16) bool {
	return a != b && b-a != 1<<15 && seq.GT(b, a)
}

// InWindow reports whether s falls within the half-open window
// [base, base+width) of the 16-bit sequence space, i.e. whether there
// exists i in [0, width) with (base+i) mod 65536 == s. A width above 2^15
// is treated as 2^15.
func InWindow(s, base uint16, width int) bool {
	if width <= 0 {
		return false
	}
	if width > 1<<15 {
		width = 1 << 15
	}
	diff := s - base
	return uint32(diff) < uint32(width)
}

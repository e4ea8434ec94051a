// Package rate implements fixed-window Redis counters for the
// credential endpoints: INCR plus a conditional EXPIRE on the first hit
// of each window. Policy (which attempts count, when counters reset)
// lives in the engine; this package only owns the counter mechanics.
package rate

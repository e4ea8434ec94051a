// Package role implements the bitmask role model used by the authkit
// authorization engine. A role mask is a 64-bit integer where each bit
// grants one role. Bit 0 is the base-user bit: it is set on every account
// and can never be cleared.
package role

// Mask is a 64-bit role bitmask.
type Mask uint64

// Canonical role bits. The set is extensible through a [Registry]; these
// bits are the fixed vocabulary of the marketplace core.
const (
	// User is the base-user bit. Every account carries it, always.
	User Mask = 1 << 0
	// Courier marks delivery accounts.
	Courier Mask = 1 << 1
	// Seller marks storefront-owning accounts.
	Seller Mask = 1 << 2
	// Admin marks platform operators. Required to start impersonation.
	Admin Mask = 1 << 3
	// Support marks support staff.
	Support Mask = 1 << 4
)

// Has reports whether the mask holds at least one of the required bits.
func (m Mask) Has(required Mask) bool {
	return m&required != 0
}

// HasAll reports whether the mask holds every bit of required.
func (m Mask) HasAll(required Mask) bool {
	return m&required == required
}

// With returns a copy of the mask with the given bits set.
func (m Mask) With(bits Mask) Mask {
	return m | bits
}

// Without returns a copy of the mask with the given bits cleared.
// The base-user bit is never cleared.
func (m Mask) Without(bits Mask) Mask {
	return (m &^ bits) | User
}

// Normalize forces the base-user bit on. Storage writes go through this
// so the roleMask & User != 0 invariant holds for every persisted account.
func (m Mask) Normalize() Mask {
	return m | User
}

// Valid reports whether the mask satisfies the base-user invariant.
func (m Mask) Valid() bool {
	return m&User != 0
}

// HasAny reports whether the mask holds any bit from the given set.
func HasAny(m Mask, required ...Mask) bool {
	for _, r := range required {
		if m.Has(r) {
			return true
		}
	}
	return false
}
